//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	fstorage "fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"

	"bookreader/internal/app"
	"bookreader/internal/crash"
	"bookreader/internal/domain"
	"bookreader/internal/export"
	"bookreader/internal/history"
	applog "bookreader/internal/log"
	"bookreader/internal/storage"
	"bookreader/internal/telemetry"
	"bookreader/internal/version"
)

// screenDPI is the render resolution of the viewer; exports use the configured DPI.
const screenDPI = 150

const (
	prefWidth     = "window.width"
	prefHeight    = "window.height"
	prefWidthMode = "viewer.width_mode"
	prefRecent    = "recent.documents"
)

var docExtensions = []string{".pdf", ".cbz", ".zip", ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

// Run starts the desktop viewer and blocks until its window is closed.
func Run(opts Options) error {
	l := applog.WithComponent("ui")
	l.Info("starting UI")

	target := &crash.Target{}
	defer crash.Recover(target)

	fa := fyneapp.NewWithID("bookreader")
	v := newViewer(fa, opts, target, l)
	if opts.DocPath != "" {
		v.open(opts.DocPath)
	} else {
		v.refresh()
	}
	v.w.ShowAndRun()
	return nil
}

type viewer struct {
	opts   Options
	w      fyne.Window
	prefs  fyne.Preferences
	l      *slog.Logger
	target *crash.Target
	hist   *history.Manager

	rd      *app.Reader
	watcher *storage.Watcher

	view      *SpreadView
	status    *widget.Label
	dirBtn    *widget.Button
	backBtn   *widget.Button
	fwdBtn    *widget.Button
	slider    *widget.Slider
	memoList  *widget.List
	memos     []domain.Memo
	selected  string
	widthMode string
	renderGen uint64

	mainMenu  *fyne.MainMenu
	stepLeft  *fyne.MenuItem
	stepRight *fyne.MenuItem
	recent    *fyne.MenuItem
}

func newViewer(fa fyne.App, opts Options, target *crash.Target, l *slog.Logger) *viewer {
	v := &viewer{
		opts:   opts,
		w:      fa.NewWindow("Book Reader"),
		prefs:  fa.Preferences(),
		l:      l,
		target: target,
		hist:   history.NewManager(history.Config{MaxPerDoc: 100}),
	}
	v.widthMode = v.prefs.StringWithFallback(prefWidthMode, WidthAuto)
	winW := max(v.prefs.IntWithFallback(prefWidth, 1200), 640)
	winH := max(v.prefs.IntWithFallback(prefHeight, 800), 480)
	v.w.Resize(fyne.NewSize(float32(winW), float32(winH)))

	v.view = NewSpreadView()
	v.view.OnResize = v.viewResized
	v.status = widget.NewLabel("Open a document to start reading.")
	v.status.Truncation = fyne.TextTruncateEllipsis

	coverBtn := widget.NewButton("Cover", func() { v.do(ActCover) })
	leftBtn := widget.NewButton("◀", func() { v.do(ActStepBackward) })
	rightBtn := widget.NewButton("▶", func() { v.do(ActStepForward) })
	v.dirBtn = widget.NewButton(DirectionLabel(domain.LeftToRight), func() { v.do(ActToggleDirection) })
	v.backBtn = widget.NewButton("Back", func() { v.do(ActHistoryBack) })
	v.fwdBtn = widget.NewButton("Forward", func() { v.do(ActHistoryForward) })
	v.slider = widget.NewSlider(1, 1)
	v.slider.Step = 1
	v.slider.OnChangeEnded = v.sliderCommitted
	toolbar := container.NewBorder(nil, nil,
		container.NewHBox(coverBtn, leftBtn, rightBtn, v.dirBtn),
		container.NewHBox(v.backBtn, v.fwdBtn),
		v.slider)

	v.memoList = widget.NewList(
		func() int { return len(v.memos) },
		func() fyne.CanvasObject { return widget.NewLabel("") },
		func(i widget.ListItemID, o fyne.CanvasObject) {
			if i >= 0 && i < len(v.memos) {
				o.(*widget.Label).SetText(MemoLabel(v.memos[i]))
			}
		},
	)
	v.memoList.OnSelected = func(i widget.ListItemID) {
		if i >= 0 && i < len(v.memos) {
			v.selected = v.memos[i].ID
		}
	}
	v.memoList.OnUnselected = func(widget.ListItemID) { v.selected = "" }
	memoButtons := container.NewGridWithColumns(2,
		widget.NewButton("Add", v.showAddMemo),
		widget.NewButton("Edit", v.showEditMemo),
		widget.NewButton("Delete", v.confirmDeleteMemo),
		widget.NewButton("Go to", v.jumpToSelected),
	)
	side := container.NewBorder(widget.NewLabel("Memos"), memoButtons, nil, nil, v.memoList)

	split := container.NewHSplit(v.view, side)
	split.Offset = 0.78
	v.w.SetContent(container.NewBorder(toolbar, v.status, nil, nil, split))
	v.w.SetMainMenu(v.buildMenu())

	v.w.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
		if a, ok := ActionForKey(string(ev.Name)); ok {
			v.do(a)
		}
	})
	v.w.SetCloseIntercept(func() {
		sz := v.w.Canvas().Size()
		v.prefs.SetInt(prefWidth, int(sz.Width))
		v.prefs.SetInt(prefHeight, int(sz.Height))
		v.closeDocument()
		v.w.Close()
	})
	return v
}

func (v *viewer) buildMenu() *fyne.MainMenu {
	openItem := fyne.NewMenuItem("Open…", v.showOpenFile)
	openDirItem := fyne.NewMenuItem("Open Folder…", v.showOpenFolder)
	v.recent = fyne.NewMenuItem("Recent", nil)
	v.recent.ChildMenu = fyne.NewMenu("")
	v.refreshRecentMenu()
	searchItem := fyne.NewMenuItem("Search Memos…", v.showSearch)
	fileMenu := fyne.NewMenu("File", openItem, openDirItem, v.recent, fyne.NewMenuItemSeparator(), searchItem)

	v.stepLeft = fyne.NewMenuItem("◀", func() { v.do(ActStepBackward) })
	v.stepRight = fyne.NewMenuItem("▶", func() { v.do(ActStepForward) })
	goMenu := fyne.NewMenu("Go",
		fyne.NewMenuItem("Cover", func() { v.do(ActCover) }),
		v.stepLeft, v.stepRight,
		fyne.NewMenuItem("Page…", v.showGoToPage),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Back", func() { v.do(ActHistoryBack) }),
		fyne.NewMenuItem("Forward", func() { v.do(ActHistoryForward) }),
	)

	viewMenu := fyne.NewMenu("View",
		fyne.NewMenuItem("Toggle Reading Direction", func() { v.do(ActToggleDirection) }),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Pages: Fit Window", func() { v.setWidthMode(WidthAuto) }),
		fyne.NewMenuItem("Pages: One", func() { v.setWidthMode(WidthOne) }),
		fyne.NewMenuItem("Pages: Two", func() { v.setWidthMode(WidthTwo) }),
	)

	exportMenu := fyne.NewMenu("Export",
		fyne.NewMenuItem("Memos as Markdown…", func() { v.exportSheet("md") }),
		fyne.NewMenuItem("Memos as HTML…", func() { v.exportSheet("html") }),
		fyne.NewMenuItem("Memos as PDF…", func() { v.exportSheet("pdf") }),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Current Spread as PNG…", v.exportSpread),
		fyne.NewMenuItem("Pages as CBZ…", v.exportCBZ),
	)

	aboutItem := fyne.NewMenuItem("About Book Reader", func() {
		exe, _ := os.Executable()
		info := fmt.Sprintf("Book Reader\nVersion: %s\nOS: %s\nArch: %s\nGo: %s\nExecutable: %s",
			version.String(), runtime.GOOS, runtime.GOARCH, runtime.Version(), exe)
		dialog.ShowInformation("About", info, v.w)
	})
	helpMenu := fyne.NewMenu("Help", aboutItem)

	v.mainMenu = fyne.NewMainMenu(fileMenu, goMenu, viewMenu, exportMenu, helpMenu)
	return v.mainMenu
}

// open replaces the current document with path.
func (v *viewer) open(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	v.l.Info("open document", slog.String("path", abs))
	v.closeDocument()

	rd, err := app.Open(context.Background(), abs, app.Options{
		Config:      v.opts.Config,
		Password:    v.opts.Password,
		SpreadWidth: SpreadWidthFor(v.widthMode, v.view.Size().Width, v.opts.Config.Viewer),
		History:     v.hist,
	})
	if err != nil {
		v.l.Error("open failed", slog.Any("err", err))
		dialog.ShowError(err, v.w)
		v.refresh()
		return
	}
	v.rd = rd
	v.target.Dir = rd.ReportDir()
	v.target.Session = rd.Session
	v.w.SetTitle("Book Reader - " + filepath.Base(abs))
	v.addRecent(abs)

	if p := rd.StatePath(); p != "" {
		w, werr := storage.WatchFile(p, storage.DefaultWatchDebounce, func() {
			fyne.Do(v.externalChange)
		})
		if werr != nil {
			v.l.Warn("state watcher unavailable", slog.Any("err", werr))
		} else {
			v.watcher = w
		}
	}
	v.refresh()
}

func (v *viewer) closeDocument() {
	if v.watcher != nil {
		_ = v.watcher.Close()
		v.watcher = nil
	}
	if v.rd != nil {
		_ = v.rd.Session.Flush(context.Background())
		if err := v.rd.Close(); err != nil {
			v.l.Warn("close document", slog.Any("err", err))
		}
		v.rd = nil
		v.target.Session = nil
	}
	v.view.SetPages(nil)
}

// externalChange runs on the UI goroutine after another process wrote the state.
func (v *viewer) externalChange() {
	if v.rd == nil {
		return
	}
	changed, err := v.rd.Session.Reload(context.Background())
	if err != nil {
		v.l.Warn("reload state", slog.Any("err", err))
	}
	if changed {
		v.l.Info("state changed on disk")
		v.refresh()
	}
}

func (v *viewer) do(a Action) {
	if v.rd == nil {
		return
	}
	if _, err := Do(context.Background(), v.rd.Session, a); err != nil {
		v.report(err)
	}
	v.refresh()
}

func (v *viewer) sliderCommitted(val float64) {
	if v.rd == nil {
		return
	}
	s := v.rd.Session
	page := SliderPage(val, s.Nav().Total(), s.Nav().Width())
	if err := s.GoToPage(context.Background(), page); err != nil {
		v.report(err)
	}
	v.refresh()
}

func (v *viewer) viewResized(size fyne.Size) {
	if v.rd == nil || v.widthMode != WidthAuto {
		return
	}
	nw := SpreadWidthFor(v.widthMode, size.Width, v.opts.Config.Viewer)
	if nw != v.rd.Session.Nav().Width() {
		v.rd.Session.Nav().SetSpreadWidth(nw)
		v.refresh()
	}
}

func (v *viewer) setWidthMode(mode string) {
	v.widthMode = mode
	v.prefs.SetString(prefWidthMode, mode)
	if v.rd == nil {
		return
	}
	v.rd.Session.Nav().SetSpreadWidth(SpreadWidthFor(mode, v.view.Size().Width, v.opts.Config.Viewer))
	v.refresh()
}

// report shows input errors; store failures only reach the status bar because the session keeps
// working in memory.
func (v *viewer) report(err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve), errors.Is(err, domain.ErrMemoNotFound):
		dialog.ShowError(err, v.w)
	case errors.Is(err, domain.ErrStoreUnavailable):
		v.l.Warn("state not saved", slog.Any("err", err))
	default:
		v.l.Error("action failed", slog.Any("err", err))
		dialog.ShowError(err, v.w)
	}
}

// refresh redraws everything from the session: chrome synchronously, page images in the background.
func (v *viewer) refresh() {
	if v.rd == nil {
		v.memos = nil
		v.memoList.Refresh()
		v.slider.Hide()
		return
	}
	s := v.rd.Session
	n := s.Nav()
	v.status.SetText(StatusText(s))
	v.dirBtn.SetText(DirectionLabel(n.Direction()))
	setEnabled(v.backBtn, s.CanBack())
	setEnabled(v.fwdBtn, s.CanForward())

	v.slider.Show()
	v.slider.Max = float64(max(n.Total(), 1))
	v.slider.SetValue(float64(n.Page()))

	left, right := StepHints(n.Direction())
	v.stepLeft.Label = "◀  " + left
	v.stepRight.Label = "▶  " + right
	v.mainMenu.Refresh()

	v.memos = s.Memos().List()
	v.memoList.Refresh()

	v.renderSpread(s.Spread())
}

func (v *viewer) renderSpread(pages []int) {
	v.renderGen++
	gen := v.renderGen
	src := v.rd.Source
	go func() {
		imgs := make([]image.Image, 0, len(pages))
		var failed []int
		for _, p := range pages {
			img, err := src.RenderPage(context.Background(), p, screenDPI)
			if err != nil {
				v.l.Debug("render page", slog.Int("page", p), slog.Any("err", err))
				failed = append(failed, p)
				img = placeholderPage()
			}
			imgs = append(imgs, img)
		}
		fyne.Do(func() {
			if gen != v.renderGen {
				return
			}
			v.view.SetPages(imgs)
			if len(failed) > 0 && v.rd != nil {
				v.status.SetText(StatusText(v.rd.Session) + fmt.Sprintf("  |  cannot display page %v", failed))
			}
		})
	}()
}

func placeholderPage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 420, 595))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: 225, G: 225, B: 225, A: 255}}, image.Point{}, draw.Src)
	return img
}

func setEnabled(b *widget.Button, on bool) {
	if on {
		b.Enable()
	} else {
		b.Disable()
	}
}

func (v *viewer) showOpenFile() {
	fd := dialog.NewFileOpen(func(rc fyne.URIReadCloser, err error) {
		if err != nil {
			dialog.ShowError(err, v.w)
			return
		}
		if rc == nil {
			return
		}
		path := rc.URI().Path()
		_ = rc.Close()
		v.open(path)
	}, v.w)
	fd.SetFilter(fstorage.NewExtensionFileFilter(docExtensions))
	fd.Show()
}

func (v *viewer) showOpenFolder() {
	dialog.ShowFolderOpen(func(uri fyne.ListableURI, err error) {
		if err != nil {
			dialog.ShowError(err, v.w)
			return
		}
		if uri != nil {
			v.open(uri.Path())
		}
	}, v.w)
}

func (v *viewer) addRecent(path string) {
	v.prefs.SetStringList(prefRecent, AddRecent(v.prefs.StringList(prefRecent), path))
	v.refreshRecentMenu()
}

func (v *viewer) refreshRecentMenu() {
	var items []*fyne.MenuItem
	for _, p := range v.prefs.StringList(prefRecent) {
		items = append(items, fyne.NewMenuItem(p, func() { v.open(p) }))
	}
	if len(items) == 0 {
		none := fyne.NewMenuItem("(none)", nil)
		none.Disabled = true
		items = append(items, none)
	}
	v.recent.ChildMenu.Items = items
	if v.mainMenu != nil {
		v.mainMenu.Refresh()
	}
}

func (v *viewer) showGoToPage() {
	if v.rd == nil {
		return
	}
	s := v.rd.Session
	entry := widget.NewEntry()
	entry.SetText(strconv.Itoa(s.Nav().Page()))
	dialog.ShowForm("Go to Page", "Go", "Cancel", []*widget.FormItem{
		widget.NewFormItem(fmt.Sprintf("Page (1-%d)", s.Nav().Total()), entry),
	}, func(ok bool) {
		if !ok {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(entry.Text))
		if err != nil {
			dialog.ShowError(fmt.Errorf("not a page number: %q", entry.Text), v.w)
			return
		}
		if err := s.GoToPage(context.Background(), n); err != nil {
			v.report(err)
		}
		v.refresh()
	}, v.w)
}

func (v *viewer) showAddMemo() {
	if v.rd == nil {
		return
	}
	s := v.rd.Session
	pageEntry := widget.NewEntry()
	pageEntry.SetText(strconv.Itoa(s.Nav().Page()))
	titleEntry := widget.NewEntry()
	contentEntry := widget.NewMultiLineEntry()
	contentEntry.SetMinRowsVisible(6)
	form := dialog.NewForm("Add Memo", "Add", "Cancel", []*widget.FormItem{
		widget.NewFormItem("Page", pageEntry),
		widget.NewFormItem("Title", titleEntry),
		widget.NewFormItem("Memo", contentEntry),
	}, func(ok bool) {
		if !ok {
			return
		}
		page, err := strconv.Atoi(strings.TrimSpace(pageEntry.Text))
		if err != nil {
			dialog.ShowError(&domain.ValidationError{Field: "page", Reason: "must be a number"}, v.w)
			return
		}
		if _, err := s.Memos().Add(context.Background(), page, titleEntry.Text, contentEntry.Text); err != nil {
			v.report(err)
		} else {
			telemetry.Default().Event(telemetry.EventMemoAdd, nil)
		}
		v.refresh()
	}, v.w)
	form.Resize(fyne.NewSize(520, 420))
	form.Show()
}

func (v *viewer) selectedMemo() (domain.Memo, bool) {
	if v.rd == nil || v.selected == "" {
		dialog.ShowInformation("Memos", "Select a memo first.", v.w)
		return domain.Memo{}, false
	}
	m, err := v.rd.Session.Memos().Get(v.selected)
	if err != nil {
		v.report(err)
		return domain.Memo{}, false
	}
	return m, true
}

func (v *viewer) showEditMemo() {
	m, ok := v.selectedMemo()
	if !ok {
		return
	}
	titleEntry := widget.NewEntry()
	titleEntry.SetText(m.Title)
	contentEntry := widget.NewMultiLineEntry()
	contentEntry.SetText(m.Content)
	contentEntry.SetMinRowsVisible(6)
	form := dialog.NewForm(fmt.Sprintf("Edit Memo (p. %d)", m.Page), "Save", "Cancel", []*widget.FormItem{
		widget.NewFormItem("Title", titleEntry),
		widget.NewFormItem("Memo", contentEntry),
	}, func(ok bool) {
		if !ok {
			return
		}
		if _, err := v.rd.Session.Memos().Update(context.Background(), m.ID, titleEntry.Text, contentEntry.Text); err != nil {
			v.report(err)
		}
		v.refresh()
	}, v.w)
	form.Resize(fyne.NewSize(520, 420))
	form.Show()
}

func (v *viewer) confirmDeleteMemo() {
	m, ok := v.selectedMemo()
	if !ok {
		return
	}
	dialog.ShowConfirm("Delete Memo", fmt.Sprintf("Delete %q on page %d?", m.Title, m.Page), func(yes bool) {
		if !yes {
			return
		}
		if err := v.rd.Session.Memos().Remove(context.Background(), m.ID); err != nil {
			v.report(err)
		}
		v.selected = ""
		v.memoList.UnselectAll()
		v.refresh()
	}, v.w)
}

func (v *viewer) jumpToSelected() {
	m, ok := v.selectedMemo()
	if !ok {
		return
	}
	if _, err := v.rd.Session.JumpToMemo(context.Background(), m.ID); err != nil {
		v.report(err)
	}
	v.refresh()
}

func (v *viewer) showSearch() {
	if v.rd == nil {
		dialog.ShowInformation("Search", "Open a document first.", v.w)
		return
	}
	query := widget.NewEntry()
	all := widget.NewCheck("All documents", nil)
	dialog.ShowForm("Search Memos", "Search", "Cancel", []*widget.FormItem{
		widget.NewFormItem("Text", query),
		widget.NewFormItem("", all),
	}, func(ok bool) {
		if !ok {
			return
		}
		q := storage.SearchQuery{Text: query.Text}
		if !all.Checked {
			q.DocID = v.rd.Session.DocID()
		}
		gw := v.rd.Store
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			res, err := app.Search(ctx, gw, q)
			fyne.Do(func() { v.showResults(res, err) })
		}()
	}, v.w)
}

func (v *viewer) showResults(res []storage.SearchResult, err error) {
	if err != nil && len(res) == 0 {
		dialog.ShowError(err, v.w)
		return
	}
	if len(res) == 0 {
		dialog.ShowInformation("Search", "No memos found.", v.w)
		return
	}
	var d dialog.Dialog
	list := widget.NewList(
		func() int { return len(res) },
		func() fyne.CanvasObject { return widget.NewLabel("") },
		func(i widget.ListItemID, o fyne.CanvasObject) {
			r := res[i]
			o.(*widget.Label).SetText(fmt.Sprintf("%s  p.%d  %s  %s", r.DocID, r.Page, r.Title, r.Snippet))
		},
	)
	list.OnSelected = func(i widget.ListItemID) {
		r := res[i]
		if v.rd == nil || r.DocID != v.rd.Session.DocID() {
			return
		}
		if _, err := v.rd.Session.JumpToMemo(context.Background(), r.MemoID); err != nil {
			v.report(err)
		}
		v.refresh()
		d.Hide()
	}
	d = dialog.NewCustom(fmt.Sprintf("Search Results (%d)", len(res)), "Close", container.NewStack(list), v.w)
	d.Resize(fyne.NewSize(640, 420))
	d.Show()
}

// saveAs asks for a target path with ext and calls write with it.
func (v *viewer) saveAs(title, defName, ext string, write func(path string) error) {
	save := dialog.NewFileSave(func(uc fyne.URIWriteCloser, err error) {
		if err != nil {
			dialog.ShowError(err, v.w)
			return
		}
		if uc == nil {
			return
		}
		outPath := uc.URI().Path()
		_ = uc.Close()
		if err := write(outPath); err != nil {
			v.l.Error("export failed", slog.String("kind", ext), slog.Any("err", err))
			dialog.ShowError(err, v.w)
			return
		}
		telemetry.Default().Event(telemetry.EventExport, map[string]any{"kind": strings.TrimPrefix(ext, ".")})
		dialog.ShowInformation(title, "Exported to "+outPath, v.w)
	}, v.w)
	save.SetFileName(defName)
	save.SetFilter(fstorage.NewExtensionFileFilter([]string{ext}))
	save.Show()
}

func (v *viewer) docBase() string {
	base := filepath.Base(v.rd.Source.Path())
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (v *viewer) currentDocState() domain.DocState {
	s := v.rd.Session
	return *s.State()[s.DocID()]
}

func (v *viewer) exportSheet(kind string) {
	if v.rd == nil {
		return
	}
	sh := export.NewSheet(v.rd.Session.DocID(), v.currentDocState(), export.SheetOptions{ByPage: true})
	v.saveAs("Export Memos", v.docBase()+"-memos."+kind, "."+kind, func(path string) error {
		switch kind {
		case "pdf":
			return export.WritePDF(sh, path, export.PDFOptions{})
		case "html":
			return writeWith(path, func(f *os.File) error { return export.WriteHTML(f, sh) })
		default:
			return writeWith(path, func(f *os.File) error { return export.WriteMarkdown(f, sh) })
		}
	})
}

func (v *viewer) exportSpread() {
	if v.rd == nil {
		return
	}
	s := v.rd.Session
	pages := s.Spread()
	var marks []int
	for _, m := range s.Memos().OnPage(pages...) {
		marks = append(marks, m.Page)
	}
	src := v.rd.Source
	dpi := v.opts.Config.Viewer.DPI
	v.saveAs("Export Spread", fmt.Sprintf("%s-p%d.png", v.docBase(), s.Nav().Page()), ".png", func(path string) error {
		return export.ExportSpreadPNG(context.Background(), src, pages, path, export.PNGOptions{DPI: dpi, MarkPages: marks, Folios: true})
	})
}

func (v *viewer) exportCBZ() {
	if v.rd == nil {
		return
	}
	src := v.rd.Source
	ds := v.currentDocState()
	opt := export.CBZOptions{DPI: v.opts.Config.Viewer.DPI, Title: v.docBase()}
	v.saveAs("Export CBZ", v.docBase()+".cbz", ".cbz", func(path string) error {
		return export.ExportCBZ(context.Background(), src, ds, path, opt)
	})
}

func writeWith(path string, fn func(f *os.File) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(f)
}

// SpreadView shows the page images of one spread side by side, scaled to fit.
type SpreadView struct {
	widget.BaseWidget
	Gutter float32
	// OnResize is called from layout when the width changed.
	OnResize func(fyne.Size)

	images []image.Image
	lastW  float32
}

func NewSpreadView() *SpreadView {
	v := &SpreadView{Gutter: 6}
	v.ExtendBaseWidget(v)
	return v
}

// SetPages replaces the shown images; they are given in screen order.
func (v *SpreadView) SetPages(imgs []image.Image) {
	v.images = imgs
	v.Refresh()
}

func (v *SpreadView) MinSize() fyne.Size { return fyne.NewSize(240, 180) }

func (v *SpreadView) CreateRenderer() fyne.WidgetRenderer {
	r := &spreadRenderer{v: v, bg: canvas.NewRectangle(color.RGBA{R: 48, G: 48, B: 48, A: 255})}
	r.rebuild()
	return r
}

type spreadRenderer struct {
	v       *SpreadView
	bg      *canvas.Rectangle
	pages   []*canvas.Image
	shown   []image.Image
	objects []fyne.CanvasObject
}

func (r *spreadRenderer) rebuild() {
	r.pages = r.pages[:0]
	r.objects = []fyne.CanvasObject{r.bg}
	for _, img := range r.v.images {
		ci := canvas.NewImageFromImage(img)
		ci.FillMode = canvas.ImageFillStretch
		ci.ScaleMode = canvas.ImageScaleSmooth
		r.pages = append(r.pages, ci)
		r.objects = append(r.objects, ci)
	}
	r.shown = r.v.images
}

func (r *spreadRenderer) Layout(size fyne.Size) {
	r.bg.Resize(size)
	r.bg.Move(fyne.NewPos(0, 0))
	sizes := make([][2]int, len(r.shown))
	for i, img := range r.shown {
		b := img.Bounds()
		sizes[i] = [2]int{b.Dx(), b.Dy()}
	}
	boxes := FitSpread(sizes, size.Width, size.Height, r.v.Gutter)
	for i, ci := range r.pages {
		if i >= len(boxes) {
			ci.Hide()
			continue
		}
		ci.Show()
		ci.Move(fyne.NewPos(boxes[i].X, boxes[i].Y))
		ci.Resize(fyne.NewSize(boxes[i].W, boxes[i].H))
	}
	if size.Width != r.v.lastW {
		r.v.lastW = size.Width
		if r.v.OnResize != nil {
			r.v.OnResize(size)
		}
	}
}

func (r *spreadRenderer) MinSize() fyne.Size           { return r.v.MinSize() }
func (r *spreadRenderer) Objects() []fyne.CanvasObject { return r.objects }
func (r *spreadRenderer) Destroy()                     {}

func (r *spreadRenderer) Refresh() {
	if !sameImages(r.shown, r.v.images) {
		r.rebuild()
	}
	r.Layout(r.v.Size())
	canvas.Refresh(r.v)
}

func sameImages(a, b []image.Image) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
