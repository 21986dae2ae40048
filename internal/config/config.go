// Package config handles the XDG configuration directory, config.yaml
// settings and file paths.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// AppName is the application directory name.
	AppName = "tasktree"

	// SettingsFile is the settings filename inside the config directory.
	SettingsFile = "config.yaml"

	// CacheFile is the default local cache filename.
	CacheFile = "cache.db"

	// OAuthClientFile is the OAuth client credentials filename.
	OAuthClientFile = "oauth_client.json"

	// TokenFile is the stored OAuth token filename.
	TokenFile = "token.json"
)

// ErrAuth marks missing or unusable credentials.
var ErrAuth = errors.New("auth error")

// Backends.
const (
	BackendREST   = "rest"
	BackendGoogle = "google"
)

// Settings are the values read from config.yaml and TASKTREE_* variables.
type Settings struct {
	Backend        string        `yaml:"backend"`
	APIURL         string        `yaml:"api_url"`
	APIToken       string        `yaml:"api_token"`
	TaskList       string        `yaml:"task_list"`
	CachePath      string        `yaml:"cache_path"`
	SyncInterval   time.Duration `yaml:"sync_interval"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	FailedOps      string        `yaml:"failed_ops"`
	MaxAttempts    int           `yaml:"max_attempts"`
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Backend:        BackendREST,
		APIURL:         "http://localhost:8000",
		TaskList:       "@default",
		SyncInterval:   5 * time.Second,
		RequestTimeout: 10 * time.Second,
		FailedOps:      "drop",
		MaxAttempts:    5,
	}
}

// Config holds configuration paths and settings.
type Config struct {
	// Dir is the configuration directory path.
	Dir string

	// Debug enables debug logging.
	Debug bool

	// Quiet suppresses informational output.
	Quiet bool

	Settings Settings
}

// New creates a Config for the default or specified config directory and
// loads its settings.
// If configDir is empty, uses XDG_CONFIG_HOME/tasktree or $HOME/.config/tasktree.
func New(configDir string) (*Config, error) {
	dir := configDir
	if dir == "" {
		dir = DefaultConfigDir()
	}
	cfg := &Config{Dir: dir, Settings: DefaultSettings()}
	if err := cfg.Load(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfigDir returns the default configuration directory.
// Uses XDG_CONFIG_HOME if set, otherwise $HOME/.config.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home can't be determined
		return AppName
	}
	return filepath.Join(home, ".config", AppName)
}

// Load reads config.yaml (if present) over the current settings, then
// applies environment overrides and validates the result.
func (c *Config) Load() error {
	data, err := os.ReadFile(c.SettingsPath())
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("read %s: %w", SettingsFile, err)
	default:
		if err := yaml.Unmarshal(data, &c.Settings); err != nil {
			return fmt.Errorf("parse %s: %w", SettingsFile, err)
		}
	}

	if err := c.applyEnv(); err != nil {
		return err
	}
	return c.Settings.Validate()
}

func (c *Config) applyEnv() error {
	strs := []struct {
		env string
		dst *string
	}{
		{"TASKTREE_BACKEND", &c.Settings.Backend},
		{"TASKTREE_API_URL", &c.Settings.APIURL},
		{"TASKTREE_API_TOKEN", &c.Settings.APIToken},
		{"TASKTREE_TASK_LIST", &c.Settings.TaskList},
		{"TASKTREE_CACHE_PATH", &c.Settings.CachePath},
		{"TASKTREE_FAILED_OPS", &c.Settings.FailedOps},
	}
	for _, s := range strs {
		if v := os.Getenv(s.env); v != "" {
			*s.dst = v
		}
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{"TASKTREE_SYNC_INTERVAL", &c.Settings.SyncInterval},
		{"TASKTREE_REQUEST_TIMEOUT", &c.Settings.RequestTimeout},
	}
	for _, d := range durations {
		if v := os.Getenv(d.env); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", d.env, err)
			}
			*d.dst = parsed
		}
	}

	if v := os.Getenv("TASKTREE_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TASKTREE_MAX_ATTEMPTS: %w", err)
		}
		c.Settings.MaxAttempts = n
	}
	return nil
}

// Validate checks the settings for values no component accepts.
func (s Settings) Validate() error {
	switch s.Backend {
	case BackendREST, BackendGoogle:
	default:
		return fmt.Errorf("backend: unknown value %q (want %s or %s)", s.Backend, BackendREST, BackendGoogle)
	}
	switch s.FailedOps {
	case "", "drop", "requeue":
	default:
		return fmt.Errorf("failed_ops: unknown value %q (want drop or requeue)", s.FailedOps)
	}
	if s.SyncInterval < 0 || s.RequestTimeout < 0 {
		return errors.New("sync_interval and request_timeout must not be negative")
	}
	if s.MaxAttempts < 0 {
		return errors.New("max_attempts must not be negative")
	}
	return nil
}

// SettingsPath returns the path to config.yaml.
func (c *Config) SettingsPath() string {
	return filepath.Join(c.Dir, SettingsFile)
}

// CachePath returns the local cache database path.
func (c *Config) CachePath() string {
	if c.Settings.CachePath != "" {
		return c.Settings.CachePath
	}
	return filepath.Join(c.Dir, CacheFile)
}

// OAuthClientPath returns the path to the OAuth client credentials file.
func (c *Config) OAuthClientPath() string {
	return filepath.Join(c.Dir, OAuthClientFile)
}

// TokenPath returns the path to the stored OAuth token file.
func (c *Config) TokenPath() string {
	return filepath.Join(c.Dir, TokenFile)
}

// EnsureDir creates the config directory if it doesn't exist.
// Directory is created with mode 0700.
func (c *Config) EnsureDir() error {
	return os.MkdirAll(c.Dir, 0700)
}

// CheckAuth reports whether the configured backend has the credentials it
// needs. The rest backend carries its token in the settings and always passes.
func (c *Config) CheckAuth() error {
	if c.Settings.Backend != BackendGoogle {
		return nil
	}
	if !c.HasOAuthClient() {
		return fmt.Errorf("%w: %s not found in %s", ErrAuth, OAuthClientFile, c.Dir)
	}
	if !c.HasToken() {
		return fmt.Errorf("%w: not logged in (run: %s login)", ErrAuth, AppName)
	}
	return nil
}

// HasOAuthClient checks if the OAuth client credentials file exists.
func (c *Config) HasOAuthClient() bool {
	_, err := os.Stat(c.OAuthClientPath())
	return err == nil
}

// HasToken checks if the token file exists.
func (c *Config) HasToken() bool {
	_, err := os.Stat(c.TokenPath())
	return err == nil
}

// RemoveToken deletes the token file.
func (c *Config) RemoveToken() error {
	return os.Remove(c.TokenPath())
}
