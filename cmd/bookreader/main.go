/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"bookreader/internal/app"
	"bookreader/internal/config"
	"bookreader/internal/crash"
	"bookreader/internal/domain"
	"bookreader/internal/export"
	applog "bookreader/internal/log"
	"bookreader/internal/render"
	"bookreader/internal/session"
	"bookreader/internal/storage"
	"bookreader/internal/telemetry"
	"bookreader/internal/ui"
	"bookreader/internal/version"
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "Book Reader: paged reading with spreads and page memos")
	fmt.Fprintf(w, "Version: %s\n", version.String())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  bookreader version|-v|--version                Show version")
	fmt.Fprintln(w, "  bookreader show <doc>                           Print page, direction, spread and memos on it")
	fmt.Fprintln(w, "  bookreader nav <doc> cover|prev|next|toggle     Navigate and print the new spread")
	fmt.Fprintln(w, "  bookreader nav <doc> goto <page>")
	fmt.Fprintln(w, "  bookreader memo <doc> add <page> <title> <content>")
	fmt.Fprintln(w, "  bookreader memo <doc> list|edit <id> <title> <content>|rm <id>|jump <id>")
	fmt.Fprintln(w, "  bookreader memo <doc> rm <page> <title>          Remove the first memo on page with title")
	fmt.Fprintln(w, "  bookreader export <doc> md|html|pdf|png|cbz <out>")
	fmt.Fprintln(w, "  bookreader search <query> [<doc-id>]            Search memos of all documents")
	fmt.Fprintln(w, "  bookreader config                               Print the effective configuration")
	fmt.Fprintln(w, "  bookreader ui [<doc>]                           Launch desktop UI (build with -tags fyne)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "A leading --debug raises the log level to debug for one command.")
	fmt.Fprintln(w, "BR_SPREAD_WIDTH=1 shows single pages on the command line.")
}

const envSpreadWidth = "BR_SPREAD_WIDTH"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// cli carries what every command needs.
type cli struct {
	ctx    context.Context
	cfg    config.AppConfig
	pwd    string
	out    io.Writer
	errOut io.Writer
	log    *slog.Logger
	crash  *crash.Target
}

func run(args []string, stdout, stderr io.Writer) int {
	target := &crash.Target{}
	defer crash.Recover(target)

	cfg, pwd, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	applog.Init(applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
		Writer:    stderr,
	})
	if len(args) > 0 && args[0] == "--debug" {
		applog.SetLevel("debug")
		args = args[1:]
	}
	defer telemetry.Default().Flush(context.Background())
	if dir, derr := config.DataDir(); derr == nil {
		target.Dir = dir
	}

	c := &cli{
		ctx:    context.Background(),
		cfg:    cfg,
		pwd:    pwd,
		out:    stdout,
		errOut: stderr,
		log:    applog.WithComponent("cli"),
		crash:  target,
	}
	c.log.Debug("start", slog.Int("args", len(args)))
	if len(args) == 0 {
		usage(stdout)
		return 0
	}
	switch args[0] {
	case "version", "--version", "-v":
		fmt.Fprintln(stdout, version.String())
		return 0
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	case "show":
		return c.withDoc(args[1:], 0, c.show)
	case "nav":
		return c.withDoc(args[1:], 1, c.nav)
	case "memo":
		return c.withDoc(args[1:], 1, c.memo)
	case "export":
		return c.withDoc(args[1:], 2, c.export)
	case "search":
		return c.search(args[1:])
	case "config":
		return c.printConfig()
	case "ui":
		var doc string
		if len(args) > 1 {
			doc = args[1]
		}
		if err := ui.Run(ui.Options{Config: cfg, Password: pwd, DocPath: doc}); err != nil {
			fmt.Fprintln(stderr, "Error:", err)
			return 1
		}
		return 0
	}
	fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
	usage(stderr)
	return 2
}

// withDoc opens args[0] and runs fn with the remaining arguments, which must number at least minRest.
func (c *cli) withDoc(args []string, minRest int, fn func(r *app.Reader, rest []string) error) int {
	if len(args) < 1+minRest {
		usage(c.errOut)
		return 2
	}
	r, err := app.Open(c.ctx, args[0], app.Options{Config: c.cfg, Password: c.pwd, SpreadWidth: spreadWidthFromEnv()})
	if err != nil {
		c.log.Error("open failed", slog.String("doc", args[0]), slog.Any("err", err))
		fmt.Fprintln(c.errOut, "Error:", err)
		return 1
	}
	defer func() {
		if err := r.Close(); err != nil {
			c.log.Warn("close failed", slog.Any("err", err))
		}
	}()
	c.crash.Dir = r.ReportDir()
	c.crash.Session = r.Session

	err = fn(r, args[1:])
	for _, w := range r.Session.Warnings() {
		fmt.Fprintln(c.errOut, "Warning:", w)
	}
	var usageErr usageError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &usageErr):
		fmt.Fprintln(c.errOut, usageErr)
		usage(c.errOut)
		return 2
	case errors.Is(err, domain.ErrStoreUnavailable):
		fmt.Fprintln(c.errOut, "The change is shown above but was not saved.")
		return 1
	default:
		fmt.Fprintln(c.errOut, "Error:", err)
		return 1
	}
}

type usageError string

func (e usageError) Error() string { return string(e) }

func spreadWidthFromEnv() int {
	if v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(envSpreadWidth))); err == nil {
		return v
	}
	return 0
}

func (c *cli) show(r *app.Reader, _ []string) error {
	printState(c.out, r.Session)
	return nil
}

func printState(w io.Writer, s *session.Session) {
	n := s.Nav()
	fmt.Fprintf(w, "Document: %s (%d pages)\n", s.DocID(), n.Total())
	fmt.Fprintf(w, "Page: %d  Direction: %s  Spread: %s\n", n.Page(), n.Direction(), joinInts(s.Spread()))
	memos := s.Memos().OnPage(s.Spread()...)
	if len(memos) == 0 {
		return
	}
	fmt.Fprintln(w, "Memos on this spread:")
	for _, m := range memos {
		fmt.Fprintf(w, "  p.%d %s: %s\n", m.Page, m.Title, m.Content)
	}
}

func (c *cli) nav(r *app.Reader, rest []string) error {
	s := r.Session
	var err error
	moved := true
	switch rest[0] {
	case "cover":
		err = s.GoToCover(c.ctx)
	case "prev":
		moved, err = s.StepBackward(c.ctx)
	case "next":
		moved, err = s.StepForward(c.ctx)
	case "toggle":
		err = s.Nav().ToggleDirection(c.ctx)
	case "goto":
		if len(rest) < 2 {
			return usageError("goto requires <page>")
		}
		p, perr := strconv.Atoi(rest[1])
		if perr != nil {
			return usageError(fmt.Sprintf("invalid page %q", rest[1]))
		}
		err = s.GoToPage(c.ctx, p)
	default:
		return usageError(fmt.Sprintf("unknown nav action %q", rest[0]))
	}
	if !moved {
		fmt.Fprintln(c.out, "No further pages in that direction.")
	}
	printState(c.out, s)
	return err
}

func (c *cli) memo(r *app.Reader, rest []string) error {
	store := r.Session.Memos()
	need := func(n int, msg string) error {
		if len(rest) < n {
			return usageError(msg)
		}
		return nil
	}
	switch rest[0] {
	case "add":
		if err := need(4, "memo add requires <page> <title> <content>"); err != nil {
			return err
		}
		page, err := strconv.Atoi(rest[1])
		if err != nil {
			return usageError(fmt.Sprintf("invalid page %q", rest[1]))
		}
		m, err := store.Add(c.ctx, page, rest[2], strings.Join(rest[3:], " "))
		if err != nil && !errors.Is(err, domain.ErrStoreUnavailable) {
			return err
		}
		telemetry.Default().Event(telemetry.EventMemoAdd, nil)
		fmt.Fprintf(c.out, "Added memo %s on page %d\n", m.ID, m.Page)
		return err
	case "list":
		tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tPAGE\tTITLE\tCONTENT")
		for _, m := range store.List() {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", m.ID, m.Page, m.Title, oneLine(m.Content, 60))
		}
		return tw.Flush()
	case "edit":
		if err := need(4, "memo edit requires <id> <title> <content>"); err != nil {
			return err
		}
		m, err := store.Update(c.ctx, rest[1], rest[2], strings.Join(rest[3:], " "))
		if err != nil && !errors.Is(err, domain.ErrStoreUnavailable) {
			return err
		}
		fmt.Fprintf(c.out, "Updated memo %s on page %d\n", m.ID, m.Page)
		return err
	case "rm":
		if err := need(2, "memo rm requires <id> or <page> <title>"); err != nil {
			return err
		}
		id := rest[1]
		if page, perr := strconv.Atoi(rest[1]); perr == nil && len(rest) > 2 {
			title := strings.Join(rest[2:], " ")
			m, ok := store.Match(page, title)
			if !ok {
				fmt.Fprintf(c.out, "No memo %q on page %d\n", title, page)
				return nil
			}
			id = m.ID
		}
		if _, gerr := store.Get(id); gerr != nil {
			fmt.Fprintf(c.out, "No memo %s\n", id)
			return nil
		}
		err := store.Remove(c.ctx, id)
		fmt.Fprintf(c.out, "Removed memo %s\n", id)
		return err
	case "jump":
		if err := need(2, "memo jump requires <id>"); err != nil {
			return err
		}
		_, err := r.Session.JumpToMemo(c.ctx, rest[1])
		if err != nil && !errors.Is(err, domain.ErrStoreUnavailable) {
			return err
		}
		printState(c.out, r.Session)
		return err
	}
	return usageError(fmt.Sprintf("unknown memo action %q", rest[0]))
}

func (c *cli) export(r *app.Reader, rest []string) error {
	kind, out := strings.ToLower(rest[0]), rest[1]
	ds := r.Session.State()[r.Session.DocID()]
	sheet := export.NewSheet(r.Session.DocID(), *ds, export.SheetOptions{ByPage: true})
	var err error
	switch kind {
	case "md", "markdown":
		err = writeFile(out, func(w io.Writer) error { return export.WriteMarkdown(w, sheet) })
	case "html":
		err = writeFile(out, func(w io.Writer) error { return export.WriteHTML(w, sheet) })
	case "pdf":
		err = export.WritePDF(sheet, out, export.PDFOptions{})
	case "png":
		marks := []int{}
		for _, m := range r.Session.Memos().OnPage(r.Session.Spread()...) {
			marks = append(marks, m.Page)
		}
		err = export.ExportSpreadPNG(c.ctx, r.Source, r.Session.Spread(), out, export.PNGOptions{DPI: c.cfg.Viewer.DPI, MarkPages: marks, Folios: true})
	case "cbz":
		err = export.ExportCBZ(c.ctx, r.Source, *ds, out, export.CBZOptions{DPI: c.cfg.Viewer.DPI})
	default:
		return usageError(fmt.Sprintf("unknown export format %q", kind))
	}
	if err != nil {
		if errors.Is(err, render.ErrRenderUnsupported) {
			return fmt.Errorf("%s export needs page images; this document type has no built-in renderer: %w", kind, err)
		}
		return err
	}
	telemetry.Default().Event(telemetry.EventExport, map[string]any{"kind": kind})
	fmt.Fprintf(c.out, "Exported %s to %s\n", kind, out)
	return nil
}

func writeFile(path string, fn func(io.Writer) error) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
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

func (c *cli) search(args []string) int {
	if len(args) < 1 {
		usage(c.errOut)
		return 2
	}
	q := storage.SearchQuery{Text: args[0]}
	if len(args) > 1 {
		q.DocID = args[1]
	}
	gw, _, err := app.OpenStore(c.ctx, c.cfg, c.pwd)
	if err != nil {
		fmt.Fprintln(c.errOut, "Error:", err)
		return 1
	}
	defer gw.Close()
	res, err := app.Search(c.ctx, gw, q)
	if err != nil {
		fmt.Fprintln(c.errOut, "Error:", err)
		if !errors.Is(err, domain.ErrStoreUnavailable) {
			return 1
		}
	}
	if len(res) == 0 {
		fmt.Fprintln(c.out, "No matches.")
		return 0
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DOCUMENT\tPAGE\tTITLE\tMATCH\tID")
	for _, r := range res {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", r.DocID, r.Page, r.Title, oneLine(r.Snippet, 60), r.MemoID)
	}
	_ = tw.Flush()
	return 0
}

func (c *cli) printConfig() int {
	path, _ := config.ConfigPath()
	fmt.Fprintf(c.out, "# %s\n", path)
	b, err := yaml.Marshal(c.cfg)
	if err != nil {
		fmt.Fprintln(c.errOut, "Error:", err)
		return 1
	}
	_, _ = c.out.Write(b)
	for _, key := range config.OverridableKeys() {
		if env, ok := config.EnvOverrideFor(key); ok {
			fmt.Fprintf(c.out, "# %s overridden by %s\n", key, env)
		}
	}
	return 0
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}
