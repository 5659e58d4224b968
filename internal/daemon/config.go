// Package daemon wires the store, service and HTTP server into the
// long-running collect process.
package daemon

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/collectnet/collect/internal/infra/logger"
)

// HomeEnv overrides the data and config directory.
const HomeEnv = "COLLECT_HOME"

// Config is the on-disk configuration (config.toml).
type Config struct {
	API     APIConfig     `toml:"api"`
	Storage StorageConfig `toml:"storage"`
	Service ServiceConfig `toml:"service"`
	Log     logger.Config `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`
	Trace   TraceConfig   `toml:"trace"`
}

// APIConfig controls the HTTP listener.
type APIConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	Timeout string `toml:"timeout"` // per-request, Go duration syntax
}

// StorageConfig locates the SQLite database.
type StorageConfig struct {
	Dir string `toml:"dir"` // empty means the collect home directory
}

// ServiceConfig tunes the collection service.
type ServiceConfig struct {
	CommitTimeout string `toml:"commit_timeout"`
	EventsLimit   int    `toml:"events_limit"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// TraceConfig controls the in-memory span buffer served at /api/traces.
type TraceConfig struct {
	Enabled  bool `toml:"enabled"`
	MaxSpans int  `toml:"max_spans"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:    "127.0.0.1",
			Port:    8420,
			Timeout: "30s",
		},
		Service: ServiceConfig{
			CommitTimeout: "5s",
			EventsLimit:   100,
		},
		Log:     logger.DefaultConfig(),
		Metrics: MetricsConfig{Enabled: true},
		Trace:   TraceConfig{Enabled: true, MaxSpans: 1000},
	}
}

// Home returns the collect home directory: $COLLECT_HOME or ~/.collect.
func Home() string {
	if h := os.Getenv(HomeEnv); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".collect"
	}
	return filepath.Join(home, ".collect")
}

// ConfigPath returns the default config file location.
func ConfigPath() string {
	return filepath.Join(Home(), "config.toml")
}

// LoadConfig reads path over the defaults. A missing file yields the
// defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = ConfigPath()
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// StorageDir resolves the database directory.
func (c Config) StorageDir() string {
	if c.Storage.Dir != "" {
		return c.Storage.Dir
	}
	return Home()
}

// Addr is the host:port the API listens on.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// parseDuration parses s, falling back to def when s is empty or invalid.
func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
