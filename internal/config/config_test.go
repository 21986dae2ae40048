package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSettings(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, SettingsFile), []byte(body), 0600))
}

func TestNew_Defaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := New(dir)
	require.NoError(t, err)

	assert.Equal(t, DefaultSettings(), cfg.Settings)
	assert.Equal(t, filepath.Join(dir, CacheFile), cfg.CachePath())
	assert.Equal(t, filepath.Join(dir, TokenFile), cfg.TokenPath())
	assert.Equal(t, filepath.Join(dir, OAuthClientFile), cfg.OAuthClientPath())
}

func TestDefaultConfigDir_XDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	assert.Equal(t, filepath.Join("/tmp/xdg", AppName), DefaultConfigDir())
}

func TestNew_ReadsSettingsFile(t *testing.T) {
	dir := t.TempDir()
	writeSettings(t, dir, `
backend: google
task_list: Work
cache_path: /var/tmp/tasks.db
sync_interval: 30s
request_timeout: 2s
failed_ops: requeue
max_attempts: 3
`)

	cfg, err := New(dir)
	require.NoError(t, err)

	s := cfg.Settings
	assert.Equal(t, BackendGoogle, s.Backend)
	assert.Equal(t, "Work", s.TaskList)
	assert.Equal(t, 30*time.Second, s.SyncInterval)
	assert.Equal(t, 2*time.Second, s.RequestTimeout)
	assert.Equal(t, "requeue", s.FailedOps)
	assert.Equal(t, 3, s.MaxAttempts)
	assert.Equal(t, "http://localhost:8000", s.APIURL, "unset keys keep defaults")
	assert.Equal(t, "/var/tmp/tasks.db", cfg.CachePath())
}

func TestNew_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeSettings(t, dir, "api_url: http://file.example\nsync_interval: 30s\n")
	t.Setenv("TASKTREE_API_URL", "https://env.example")
	t.Setenv("TASKTREE_API_TOKEN", "tok")
	t.Setenv("TASKTREE_SYNC_INTERVAL", "1m")
	t.Setenv("TASKTREE_MAX_ATTEMPTS", "9")

	cfg, err := New(dir)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example", cfg.Settings.APIURL)
	assert.Equal(t, "tok", cfg.Settings.APIToken)
	assert.Equal(t, time.Minute, cfg.Settings.SyncInterval)
	assert.Equal(t, 9, cfg.Settings.MaxAttempts)
}

func TestNew_InvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		file string
		env  map[string]string
	}{
		{name: "malformed yaml", file: "backend: [rest"},
		{name: "unknown backend", file: "backend: carrier-pigeon"},
		{name: "unknown policy", file: "failed_ops: retry-forever"},
		{name: "negative attempts", file: "max_attempts: -1"},
		{name: "bad duration env", env: map[string]string{"TASKTREE_SYNC_INTERVAL": "soon"}},
		{name: "bad attempts env", env: map[string]string{"TASKTREE_MAX_ATTEMPTS": "many"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.file != "" {
				writeSettings(t, dir, tt.file)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := New(dir)
			assert.Error(t, err)
		})
	}
}

func TestTokenFiles(t *testing.T) {
	cfg, err := New(t.TempDir())
	require.NoError(t, err)

	assert.False(t, cfg.HasToken())
	require.NoError(t, os.WriteFile(cfg.TokenPath(), []byte("{}"), 0600))
	assert.True(t, cfg.HasToken())
	require.NoError(t, cfg.RemoveToken())
	assert.False(t, cfg.HasToken())
}

func TestCheckAuth(t *testing.T) {
	cfg, err := New(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, cfg.CheckAuth(), "rest backend needs no files")

	cfg.Settings.Backend = BackendGoogle
	err = cfg.CheckAuth()
	assert.ErrorIs(t, err, ErrAuth)
	assert.Contains(t, err.Error(), OAuthClientFile)

	require.NoError(t, os.WriteFile(cfg.OAuthClientPath(), []byte("{}"), 0600))
	err = cfg.CheckAuth()
	assert.ErrorIs(t, err, ErrAuth)
	assert.Contains(t, err.Error(), "tasktree login")

	require.NoError(t, os.WriteFile(cfg.TokenPath(), []byte("{}"), 0600))
	assert.NoError(t, cfg.CheckAuth())
}
