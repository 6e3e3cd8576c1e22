// Package config loads pgmock's YAML configuration, with ${VAR}
// environment substitution and an optional fsnotify-backed Watcher that
// re-loads the file when it changes and hands the new Config to a
// callback; the Watcher itself applies nothing to a running server.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for a pgmock server.
type Config struct {
	Listen  ListenConfig  `yaml:"listen"`
	TLS     TLSConfig     `yaml:"tls"`
	Auth    AuthConfig    `yaml:"auth"`
	Session SessionConfig `yaml:"session"`
	HTTP    HTTPConfig    `yaml:"http"`
}

// ListenConfig controls the Postgres-protocol listener.
type ListenConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// TLSConfig controls whether and how SSLRequest is honored.
type TLSConfig struct {
	Enabled            bool   `yaml:"enabled"`
	CertFile           string `yaml:"cert_file"`
	KeyFile            string `yaml:"key_file"`
	CAFile             string `yaml:"ca_file"`
	MinVersion         string `yaml:"min_version"`
	MaxVersion         string `yaml:"max_version"`
	RejectUnauthorized bool   `yaml:"reject_unauthorized"`
}

// AuthConfig selects and parametrizes the startup authentication method.
type AuthConfig struct {
	Method          string `yaml:"method"` // "trust" or "scram-sha-256"
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	SCRAMIterations int    `yaml:"scram_iterations"`
}

// SessionConfig controls per-connection defaults and lifecycle limits.
type SessionConfig struct {
	MaxConnections      int           `yaml:"max_connections"`
	IdleTimeout         time.Duration `yaml:"idle_timeout"`
	IdleReaperInterval  time.Duration `yaml:"idle_reaper_interval"`
	ShutdownDrainTimeout time.Duration `yaml:"shutdown_drain_timeout"`
	ServerVersion       string        `yaml:"server_version"`
	Database            string        `yaml:"database"`
	User                 string        `yaml:"user"`
	Encoding             string        `yaml:"encoding"`
	TimeZone             string        `yaml:"timezone"`
	DevMode              bool          `yaml:"dev_mode"`
}

// HTTPConfig controls the monitoring endpoint.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
}

// TLSEnabled reports whether TLS is both requested and has the material it
// needs to actually serve it.
func (c TLSConfig) TLSEnabled() bool {
	return c.Enabled && c.CertFile != "" && c.KeyFile != ""
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable
// values, leaving a pattern untouched if the variable is unset.
func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(varName)); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file with env var substitution,
// validates it, and fills in defaults for anything left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = substituteEnvVars(data)

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Listen.Host == "" {
		cfg.Listen.Host = "0.0.0.0"
	}
	if cfg.Listen.Port == 0 {
		cfg.Listen.Port = 5432
	}
	if cfg.Auth.Method == "" {
		cfg.Auth.Method = "trust"
	}
	if cfg.Auth.SCRAMIterations == 0 {
		cfg.Auth.SCRAMIterations = 4096
	}
	if cfg.Session.MaxConnections == 0 {
		cfg.Session.MaxConnections = 100
	}
	if cfg.Session.IdleTimeout == 0 {
		cfg.Session.IdleTimeout = 10 * time.Minute
	}
	if cfg.Session.IdleReaperInterval == 0 {
		cfg.Session.IdleReaperInterval = 60 * time.Second
	}
	if cfg.Session.ShutdownDrainTimeout == 0 {
		cfg.Session.ShutdownDrainTimeout = 5 * time.Second
	}
	if cfg.Session.ServerVersion == "" {
		cfg.Session.ServerVersion = "16.0 (pgmock)"
	}
	if cfg.Session.Database == "" {
		cfg.Session.Database = "pgmock"
	}
	if cfg.Session.User == "" {
		cfg.Session.User = "pgmock"
	}
	if cfg.Session.Encoding == "" {
		cfg.Session.Encoding = "UTF8"
	}
	if cfg.Session.TimeZone == "" {
		cfg.Session.TimeZone = "UTC"
	}
	if cfg.HTTP.Bind == "" {
		cfg.HTTP.Bind = "127.0.0.1:9090"
	}
}

func validate(cfg *Config) error {
	switch cfg.Auth.Method {
	case "", "trust", "scram-sha-256":
	default:
		return fmt.Errorf("auth.method: unsupported value %q (must be trust or scram-sha-256)", cfg.Auth.Method)
	}

	if cfg.Auth.Method == "scram-sha-256" && cfg.Auth.Password == "" {
		return fmt.Errorf("auth.password is required when auth.method is scram-sha-256")
	}

	if cfg.TLS.Enabled && (cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "") {
		return fmt.Errorf("tls.cert_file and tls.key_file are required when tls.enabled is true")
	}

	return nil
}

// Watcher watches a config file for changes and invokes callback with the
// newly loaded configuration, debounced so a burst of filesystem events
// (as produced by many editors' atomic-rename saves) triggers one reload.
type Watcher struct {
	path     string
	callback func(*Config)
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	stopCh   chan struct{}
}

// NewWatcher creates a new config file watcher.
func NewWatcher(path string, callback func(*Config)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching config file: %w", err)
	}

	cw := &Watcher{
		path:     path,
		callback: callback,
		watcher:  w,
		stopCh:   make(chan struct{}),
	}

	go cw.run()
	return cw, nil
}

func (cw *Watcher) run() {
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, cw.reload)
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[config] watcher error: %v", err)
		case <-cw.stopCh:
			return
		}
	}
}

func (cw *Watcher) reload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cfg, err := Load(cw.path)
	if err != nil {
		log.Printf("[config] hot-reload failed: %v", err)
		return
	}

	log.Printf("[config] configuration reloaded from %s", cw.path)
	cw.callback(cfg)
}

// Stop stops the config watcher.
func (cw *Watcher) Stop() error {
	close(cw.stopCh)
	return cw.watcher.Close()
}
