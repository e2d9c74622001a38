// Package config loads slotstore's JSONC configuration files.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/slotstore/pkg/catalog"
)

var (
	ErrConfigInvalid      = errors.New("invalid config")
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrDirEmpty           = errors.New("dir must not be empty")
)

// FileName is the project config file looked up in the working directory.
const FileName = ".slotstore.json"

// Config holds all configuration options.
type Config struct {
	// From config files (serialized)
	Dir               string `json:"dir"`
	AutomaticCapacity *int   `json:"automatic_capacity,omitempty"`
	LockTimeout       string `json:"lock_timeout,omitempty"` // Go duration or "none"
	Metadata          *bool  `json:"metadata,omitempty"`
	LogLevel          string `json:"log_level,omitempty"`

	// Resolved (computed, not serialized)
	EffectiveCwd string        `json:"-"`
	DirAbs       string        `json:"-"`
	Timeout      time.Duration `json:"-"` // catalog.NoTimeout for "none"
	Level        slog.Level    `json:"-"`

	Sources Sources `json:"-"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string
	Project string
}

// Default returns the default configuration.
func Default() Config {
	capacity := catalog.DefaultAutomaticCapacity
	metadata := false

	return Config{
		Dir:               ".slotstore",
		AutomaticCapacity: &capacity,
		LockTimeout:       catalog.DefaultLockTimeout.String(),
		Metadata:          &metadata,
		LogLevel:          "warn",
	}
}

// globalPath returns $XDG_CONFIG_HOME/slotstore/config.json, falling back to
// ~/.config/slotstore/config.json, or "" if neither variable is set.
func globalPath(env map[string]string) string {
	if xdg := env["XDG_CONFIG_HOME"]; xdg != "" {
		return filepath.Join(xdg, "slotstore", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "slotstore", "config.json")
	}

	return ""
}

// LoadInput holds the inputs for Load.
type LoadInput struct {
	WorkDirOverride string // -C/--cwd; if empty, os.Getwd() is used
	ConfigPath      string // -c/--config
	Overrides       Config // flag values; zero fields are not applied
	Env             map[string]string
}

// Load resolves configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config
// 3. Project config (.slotstore.json in the working directory, if present)
// 4. Explicit config file via ConfigPath
// 5. Flag overrides.
func Load(input LoadInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := Default()

	if p := globalPath(input.Env); p != "" {
		globalCfg, loaded, err := loadFile(p, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg.Sources.Global = p
			cfg = merge(cfg, globalCfg)
		}
	}

	projectCfg, projectPath, err := loadProject(workDir, input.ConfigPath)
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.Project = projectPath
	cfg = merge(cfg, projectCfg)
	cfg = merge(cfg, input.Overrides)

	cfg.EffectiveCwd = workDir

	err = resolve(&cfg)
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func loadProject(workDir, configPath string) (Config, string, error) {
	if configPath == "" {
		p := filepath.Join(workDir, FileName)

		cfg, loaded, err := loadFile(p, false)
		if err != nil || !loaded {
			return Config{}, "", err
		}

		return cfg, p, nil
	}

	p := configPath
	if !filepath.IsAbs(p) {
		p = filepath.Join(workDir, p)
	}

	_, statErr := os.Stat(p)
	if statErr != nil {
		return Config{}, "", fmt.Errorf("%w: %s", ErrConfigFileNotFound, configPath)
	}

	cfg, _, err := loadFile(p, true)
	if err != nil {
		return Config{}, "", err
	}

	return cfg, p, nil
}

// loadFile reads and parses path. A missing file is only an error when
// mustExist is set.
func loadFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("%w: %s", ErrConfigFileRead, path)
	}

	cfg, err := parse(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return cfg, true, nil
}

func parse(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var raw map[string]json.RawMessage

	err = json.Unmarshal(standardized, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	var cfg Config

	err = json.Unmarshal(standardized, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	if v, ok := raw["dir"]; ok && string(v) == `""` {
		return Config{}, ErrDirEmpty
	}

	return cfg, nil
}

func merge(base, overlay Config) Config {
	if overlay.Dir != "" {
		base.Dir = overlay.Dir
	}

	if overlay.AutomaticCapacity != nil {
		base.AutomaticCapacity = overlay.AutomaticCapacity
	}

	if overlay.LockTimeout != "" {
		base.LockTimeout = overlay.LockTimeout
	}

	if overlay.Metadata != nil {
		base.Metadata = overlay.Metadata
	}

	if overlay.LogLevel != "" {
		base.LogLevel = overlay.LogLevel
	}

	return base
}

// resolve validates cfg and fills the computed fields.
func resolve(cfg *Config) error {
	if cfg.Dir == "" {
		return ErrDirEmpty
	}

	if cfg.AutomaticCapacity != nil && *cfg.AutomaticCapacity < 0 {
		return fmt.Errorf("%w: automatic_capacity must be >= 0, got %d", ErrConfigInvalid, *cfg.AutomaticCapacity)
	}

	switch strings.ToLower(cfg.LockTimeout) {
	case "none", "infinite":
		cfg.Timeout = catalog.NoTimeout
	default:
		d, err := time.ParseDuration(cfg.LockTimeout)
		if err != nil || d <= 0 {
			return fmt.Errorf("%w: lock_timeout %q must be a positive duration or \"none\"", ErrConfigInvalid, cfg.LockTimeout)
		}

		cfg.Timeout = d
	}

	err := cfg.Level.UnmarshalText([]byte(cfg.LogLevel))
	if err != nil {
		return fmt.Errorf("%w: log_level %q: %w", ErrConfigInvalid, cfg.LogLevel, err)
	}

	if filepath.IsAbs(cfg.Dir) {
		cfg.DirAbs = filepath.Clean(cfg.Dir)
	} else {
		cfg.DirAbs = filepath.Join(cfg.EffectiveCwd, cfg.Dir)
	}

	return nil
}

// CatalogOptions maps the configuration onto catalog options.
func (c Config) CatalogOptions(logger *slog.Logger) catalog.Options {
	opts := catalog.Options{
		LockTimeout: c.Timeout,
		Logger:      logger,
	}

	if c.AutomaticCapacity != nil {
		opts.AutomaticCapacity = *c.AutomaticCapacity
		opts.DisableAutomatic = *c.AutomaticCapacity == 0
	}

	if c.Metadata != nil {
		opts.WithMetadata = *c.Metadata
	}

	return opts
}
