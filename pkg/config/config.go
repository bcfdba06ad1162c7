package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/maps"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// DefaultFile is the config file read from the working directory
const DefaultFile = "bluecity.toml"

// EnvPrefix prefixes environment overrides, e.g. BLUECITY_STORAGE_BACKEND
const EnvPrefix = "BLUECITY_"

// Storage backends
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config holds all configuration for the application
type Config struct {
	Port       int              `koanf:"port"`
	Storage    StorageConfig    `koanf:"storage"`
	Share      ShareConfig      `koanf:"share"`
	Simulation SimulationConfig `koanf:"simulation"`
	Verbosity  string           `koanf:"verbosity"`
	VerboseCnt int              `koanf:"verbose"`
	JSONLogs   bool             `koanf:"json-logs"`
}

// StorageConfig selects where the investigation tree is persisted
type StorageConfig struct {
	Backend  string        `koanf:"backend"`
	Path     string        `koanf:"path"`
	Key      string        `koanf:"key"`
	Debounce time.Duration `koanf:"debounce"`
	Watch    bool          `koanf:"watch"`
}

// ShareConfig controls share links
type ShareConfig struct {
	BaseURL string `koanf:"base_url"`
	Param   string `koanf:"param"`
}

// SimulationConfig points at the routing backend
type SimulationConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
	Pairs   int           `koanf:"pairs"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"port":               8080,
		"storage.backend":    BackendFile,
		"storage.path":       defaultDataDir(),
		"storage.key":        "bluecity-state",
		"storage.debounce":   "100ms",
		"storage.watch":      true,
		"share.base_url":     "http://localhost:8080/",
		"share.param":        "inv",
		"simulation.url":     "http://localhost:8000",
		"simulation.timeout": "60s",
		"simulation.pairs":   100,
		"verbosity":          "",
		"verbose":            0,
		"json-logs":          false,
	}
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults
func Load(f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	defs := defaults()
	if err := k.Load(makeMapProvider(defs), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config File (optional), --config or bluecity.toml
	path := DefaultFile
	if f != nil {
		if v, err := f.GetString("config"); err == nil && v != "" {
			path = v
		}
	}
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil && (path != DefaultFile || !errors.Is(err, fs.ErrNotExist)) {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	// 3. Environment Variables
	// Underscores are ambiguous (share.base_url), so names are matched
	// against the known keys.
	known := make(map[string]string, len(defs))
	for key := range defs {
		known[strings.NewReplacer(".", "_", "-", "_").Replace(key)] = key
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		name := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		if key, ok := known[name]; ok {
			return key
		}
		return ""
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// Unmarshal into struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the rest of the program cannot act on
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendFile, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q (want file, sqlite or memory)", c.Storage.Backend)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Simulation.Pairs < 0 {
		return fmt.Errorf("simulation.pairs must not be negative")
	}
	return nil
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ".bluecity"
		}
		dir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dir, "bluecity")
}

// Helper to use a flat, dot-delimited map as a provider
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return maps.Unflatten(p.m, "."), nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
