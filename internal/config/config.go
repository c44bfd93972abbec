/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"bookreader/internal/domain"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.

type ViewerConfig struct {
	DPI               int    `yaml:"dpi"`
	SpreadThresholdPx int    `yaml:"spread_threshold_px"`
	DefaultDirection  string `yaml:"default_direction"` // left_to_right | right_to_left
	Identity          string `yaml:"identity"`          // filename | sha256
}

type StoreConfig struct {
	Backend     string `yaml:"backend"` // file | sqlite | postgres
	Path        string `yaml:"path"`
	PostgresDSN string `yaml:"postgres_dsn"`
	// The Postgres password is not stored on disk; it lives in the OS keychain.
}

type CacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Path     string `yaml:"path"`
	MaxBytes int64  `yaml:"max_bytes"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	Viewer        ViewerConfig  `yaml:"viewer"`
	Store         StoreConfig   `yaml:"store"`
	Cache         CacheConfig   `yaml:"cache"`
	Logging       LoggingConfig `yaml:"logging"`
}

const (
	IdentityFilename = "filename"
	IdentitySHA256   = "sha256"
)

// Defaults returns the application defaults. Empty paths resolve under DataDir.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Viewer:        ViewerConfig{DPI: 300, SpreadThresholdPx: 700, DefaultDirection: string(domain.LeftToRight), Identity: IdentityFilename},
		Store:         StoreConfig{Backend: "file"},
		Cache:         CacheConfig{Enabled: true, MaxBytes: 256 * 1024 * 1024},
		Logging:       LoggingConfig{Level: "info", Format: "console", Source: false, File: ""},
	}
}

// Env var names used as overrides.
const (
	EnvConfigFile      = "BR_CONFIG"
	EnvDataDir         = "BR_DATA_DIR"
	EnvDPI             = "BR_DPI"
	EnvSpreadThreshold = "BR_SPREAD_THRESHOLD_PX"
	EnvDirection       = "BR_DIRECTION"
	EnvIdentity        = "BR_IDENTITY"
	EnvStoreBackend    = "BR_STORE_BACKEND"
	EnvStorePath       = "BR_STORE_PATH"
	EnvPostgresDSN     = "BR_PG_DSN"
	EnvCacheEnabled    = "BR_CACHE_ENABLED"
	EnvCacheMaxBytes   = "BR_CACHE_MAX_BYTES"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "BR_LOG_LEVEL"
	EnvLogFormat = "BR_LOG_FORMAT"
	EnvLogSource = "BR_LOG_SOURCE"
	EnvLogFile   = "BR_LOG_FILE"
)

// Service/keys for OS keyring.
const (
	keyringService     = "BookReader"
	keyringPostgresPwd = "postgres_password"
)

// ConfigPath returns the per-user config file path. BR_CONFIG overrides it.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigFile)); p != "" {
		return p, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "BookReader")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "BookReader")
	default: // linux and others
		if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
			base = filepath.Join(x, "bookreader")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "bookreader")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// DataDir returns the per-user directory for the state file and caches. BR_DATA_DIR overrides it.
func DataDir() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvDataDir)); p != "" {
		return p, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("LocalAppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Local")
		}
		base = filepath.Join(base, "BookReader")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "BookReader")
	default:
		if x := os.Getenv("XDG_DATA_HOME"); x != "" {
			base = filepath.Join(x, "bookreader")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".local", "share", "bookreader")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve data directory")
	}
	return base, nil
}

// Load reads user config file (if present), applies defaults, and merges environment overrides.
// It also returns the Postgres password from the keyring (not kept inside the struct).
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err == nil {
			mergeInto(&cfg, &fileCfg)
		}
	}
	applyEnvOverrides(&cfg)
	normalize(&cfg)
	pwd := ""
	if cfg.Store.Backend == "postgres" {
		pwd, _ = secrets.Get(keyringService, keyringPostgresPwd)
	}
	return cfg, pwd, nil
}

// Save writes the user config YAML and persists the Postgres password into the OS keyring
// (if non-empty).
func Save(cfg AppConfig, postgresPassword string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if postgresPassword != "" {
		if err := secrets.Set(keyringService, keyringPostgresPwd, postgresPassword); err != nil {
			return err
		}
	}
	return nil
}

// StorePath resolves the state file or database path for the configured backend.
func (c AppConfig) StorePath() (string, error) {
	if p := strings.TrimSpace(c.Store.Path); p != "" {
		return p, nil
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	if c.Store.Backend == "sqlite" {
		return filepath.Join(dir, "bookreader.sqlite"), nil
	}
	return filepath.Join(dir, "memos.json"), nil
}

// CachePath resolves the rendered page cache database path.
func (c AppConfig) CachePath() (string, error) {
	if p := strings.TrimSpace(c.Cache.Path); p != "" {
		return p, nil
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "pages.sqlite"), nil
}

// Direction returns the configured default reading direction.
func (v ViewerConfig) Direction() domain.Direction {
	if d, ok := domain.ParseDirection(v.DefaultDirection); ok {
		return d
	}
	return domain.LeftToRight
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if src.Viewer.DPI > 0 {
		dst.Viewer.DPI = src.Viewer.DPI
	}
	if src.Viewer.SpreadThresholdPx > 0 {
		dst.Viewer.SpreadThresholdPx = src.Viewer.SpreadThresholdPx
	}
	if s := strings.TrimSpace(src.Viewer.DefaultDirection); s != "" {
		dst.Viewer.DefaultDirection = s
	}
	if s := strings.TrimSpace(src.Viewer.Identity); s != "" {
		dst.Viewer.Identity = strings.ToLower(s)
	}
	if s := strings.TrimSpace(src.Store.Backend); s != "" {
		dst.Store.Backend = strings.ToLower(s)
	}
	if s := strings.TrimSpace(src.Store.Path); s != "" {
		dst.Store.Path = s
	}
	if s := strings.TrimSpace(src.Store.PostgresDSN); s != "" {
		dst.Store.PostgresDSN = s
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.Cache.Enabled = src.Cache.Enabled
	if s := strings.TrimSpace(src.Cache.Path); s != "" {
		dst.Cache.Path = s
	}
	if src.Cache.MaxBytes != 0 {
		dst.Cache.MaxBytes = src.Cache.MaxBytes
	}
	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if n, ok := envInt(EnvDPI); ok {
		cfg.Viewer.DPI = n
	}
	if n, ok := envInt(EnvSpreadThreshold); ok {
		cfg.Viewer.SpreadThresholdPx = n
	}
	if v := strings.TrimSpace(os.Getenv(EnvDirection)); v != "" {
		cfg.Viewer.DefaultDirection = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvIdentity)); v != "" {
		cfg.Viewer.Identity = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvStoreBackend)); v != "" {
		cfg.Store.Backend = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvStorePath)); v != "" {
		cfg.Store.Path = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvPostgresDSN)); v != "" {
		cfg.Store.PostgresDSN = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvCacheEnabled)); v != "" {
		cfg.Cache.Enabled = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvCacheMaxBytes)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Cache.MaxBytes = n
		}
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

// normalize replaces values the rest of the program cannot use with defaults.
func normalize(cfg *AppConfig) {
	def := Defaults()
	if cfg.Viewer.DPI <= 0 {
		cfg.Viewer.DPI = def.Viewer.DPI
	}
	if cfg.Viewer.SpreadThresholdPx <= 0 {
		cfg.Viewer.SpreadThresholdPx = def.Viewer.SpreadThresholdPx
	}
	if d, ok := domain.ParseDirection(cfg.Viewer.DefaultDirection); ok {
		cfg.Viewer.DefaultDirection = string(d)
	} else {
		cfg.Viewer.DefaultDirection = def.Viewer.DefaultDirection
	}
	switch cfg.Viewer.Identity {
	case IdentityFilename, IdentitySHA256:
	default:
		cfg.Viewer.Identity = def.Viewer.Identity
	}
	switch cfg.Store.Backend {
	case "file", "sqlite", "postgres":
	default:
		cfg.Store.Backend = def.Store.Backend
	}
}

var envByKey = []struct{ key, env string }{
	{"viewer.dpi", EnvDPI},
	{"viewer.spread_threshold_px", EnvSpreadThreshold},
	{"viewer.default_direction", EnvDirection},
	{"viewer.identity", EnvIdentity},
	{"store.backend", EnvStoreBackend},
	{"store.path", EnvStorePath},
	{"store.postgres_dsn", EnvPostgresDSN},
	{"cache.enabled", EnvCacheEnabled},
	{"cache.max_bytes", EnvCacheMaxBytes},
	{"logging.level", EnvLogLevel},
	{"logging.format", EnvLogFormat},
	{"logging.source", EnvLogSource},
	{"logging.file", EnvLogFile},
}

// OverridableKeys lists the dotted keys an environment variable can override, in file order.
func OverridableKeys() []string {
	out := make([]string, len(envByKey))
	for i, e := range envByKey {
		out[i] = e.key
	}
	return out
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	for _, e := range envByKey {
		if e.key == key && os.Getenv(e.env) != "" {
			return e.env, true
		}
	}
	return "", false
}

func envInt(name string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

func truthy(v string) bool {
	lv := strings.ToLower(strings.TrimSpace(v))
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}
