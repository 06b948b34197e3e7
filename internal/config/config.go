package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// State backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config is the in-memory representation of ~/.memview/config.yaml.
type Config struct {
	StagingDir    string `yaml:"staging_dir,omitempty"`
	StateBackend  string `yaml:"state_backend,omitempty"`
	StatePath     string `yaml:"state_path,omitempty"`
	DefaultK      int    `yaml:"default_k,omitempty"`
	StrictCount   *bool  `yaml:"strict_count,omitempty"`
	SearchWorkers int    `yaml:"search_workers,omitempty"`
	MaxIndexBytes int64  `yaml:"max_index_bytes,omitempty"`
	LogLevel      string `yaml:"log_level,omitempty"`
	LogFormat     string `yaml:"log_format,omitempty"`
}

// MemviewDir returns the absolute path to ~/.memview/.
func MemviewDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".memview"), nil
}

// ConfigPath returns the absolute path to ~/.memview/config.yaml.
func ConfigPath() (string, error) {
	dir, err := MemviewDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot expand ~: %w", err)
	}
	return filepath.Join(home, p[1:]), nil
}

// DefaultConfig returns the Config written by memview init.
func DefaultConfig() *Config {
	strict := true
	return &Config{
		StagingDir:    filepath.Join(os.TempDir(), "memview-staging"),
		StateBackend:  BackendFile,
		DefaultK:      10,
		StrictCount:   &strict,
		SearchWorkers: runtime.GOMAXPROCS(0),
		LogLevel:      "warn",
		LogFormat:     "text",
	}
}

// Load reads ~/.memview/config.yaml. A missing file yields DefaultConfig.
// MEMVIEW_LOG_LEVEL and MEMVIEW_STAGING_DIR (environment or .env) override the file.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
		}
	}

	if v, err := GetConfigValue("MEMVIEW_LOG_LEVEL"); err != nil {
		return nil, err
	} else if v != "" {
		cfg.LogLevel = v
	}
	if v, err := GetConfigValue("MEMVIEW_STAGING_DIR"); err != nil {
		return nil, err
	} else if v != "" {
		cfg.StagingDir = v
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	var err error
	if c.StagingDir == "" {
		c.StagingDir = DefaultConfig().StagingDir
	}
	if c.StagingDir, err = ExpandPath(c.StagingDir); err != nil {
		return err
	}
	switch c.StateBackend {
	case "":
		c.StateBackend = BackendFile
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("unsupported state_backend: %s (want %s or %s)", c.StateBackend, BackendFile, BackendSQLite)
	}
	if c.StatePath == "" {
		dir, err := MemviewDir()
		if err != nil {
			return err
		}
		name := "state.yaml"
		if c.StateBackend == BackendSQLite {
			name = "state.db"
		}
		c.StatePath = filepath.Join(dir, name)
	}
	if c.StatePath, err = ExpandPath(c.StatePath); err != nil {
		return err
	}
	if c.DefaultK <= 0 {
		c.DefaultK = 10
	}
	if c.SearchWorkers <= 0 {
		c.SearchWorkers = runtime.GOMAXPROCS(0)
	}
	return nil
}

// Strict reports whether a row-count mismatch fails connect.
func (c *Config) Strict() bool {
	return c.StrictCount == nil || *c.StrictCount
}

// Save marshals cfg and writes it to ~/.memview/config.yaml.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", filepath.Dir(path), err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write config %s: %w", path, err)
	}
	return nil
}
