package cli_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tasktree/internal/cache"
	"tasktree/internal/cli"
	"tasktree/internal/commands"
	"tasktree/internal/config"
	"tasktree/internal/exitcode"
	"tasktree/internal/hierarchy"
	"tasktree/internal/logging"
	"tasktree/internal/service"
	"tasktree/internal/syncer"
	"tasktree/internal/testutil"
)

// testFactory builds a service over the cache in the config dir and the given store.
func testFactory(store *testutil.FakeStore, built *int) cli.ServiceFactory {
	return func(ctx context.Context, cfg *config.Config) (service.Service, error) {
		c, err := cache.Open(ctx, cfg.CachePath())
		if err != nil {
			return nil, err
		}
		*built++
		engine := syncer.New(c, store, syncer.WithLogger(logging.Discard()))
		return hierarchy.New(c, store, engine, hierarchy.WithLogger(logging.Discard())), nil
	}
}

func run(t *testing.T, factory cli.ServiceFactory, args ...string) (stdout, stderr string, code int) {
	t.Helper()
	var outBuf, errBuf bytes.Buffer
	code = cli.NewDispatcher(commands.DefaultRegistry, factory).Run(context.Background(), args, &outBuf, &errBuf)
	return outBuf.String(), errBuf.String(), code
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	_, stderr, code := run(t, nil, "unknowncmd")

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	expected := "error: unknown command: unknowncmd\n"
	if stderr != expected {
		t.Errorf("expected %q, got %q", expected, stderr)
	}
}

func TestDispatcher_FlagBeforeCommand(t *testing.T) {
	_, stderr, code := run(t, nil, "--quiet")

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	expected := "error: unknown command: --quiet\n"
	if stderr != expected {
		t.Errorf("expected %q, got %q", expected, stderr)
	}
}

func TestDispatcher_HelpCommand(t *testing.T) {
	built := 0
	stdout, stderr, code := run(t, testFactory(testutil.NewFakeStore(), &built), "help", "--config", t.TempDir())

	if code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if stderr != "" {
		t.Errorf("expected no stderr, got %q", stderr)
	}
	if !strings.Contains(stdout, "Usage:") {
		t.Error("expected help output to contain 'Usage:'")
	}
	if built != 0 {
		t.Error("help should not build a service")
	}
}

func TestDispatcher_VersionCommand(t *testing.T) {
	stdout, _, code := run(t, nil, "version", "--config", t.TempDir())

	if code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if stdout != "tasktree 0.1.0\n" {
		t.Errorf("expected 'tasktree 0.1.0\\n', got %q", stdout)
	}
}

func TestDispatcher_UnknownFlag(t *testing.T) {
	_, stderr, code := run(t, nil, "help", "--unknown")

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	expected := "error: unknown flag: -unknown\n"
	if stderr != expected {
		t.Errorf("expected %q, got %q", expected, stderr)
	}
}

func TestDispatcher_FlagNeedsArgument(t *testing.T) {
	_, stderr, code := run(t, nil, "add", "--parent")

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	expected := "error: flag needs an argument: -parent\n"
	if stderr != expected {
		t.Errorf("expected %q, got %q", expected, stderr)
	}
}

func TestDispatcher_DefaultsToList(t *testing.T) {
	store := testutil.NewFakeStore()
	store.Seed(service.Task{ID: 5, Title: "Water plants"})
	built := 0
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	stdout, _, code := run(t, testFactory(store, &built))

	if code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if stdout != "     5  [ ] Water plants\n" {
		t.Errorf("unexpected output: %q", stdout)
	}
	if _, err := os.Stat(filepath.Join(dir, config.AppName, config.CacheFile)); err != nil {
		t.Errorf("expected the cache in the config dir: %v", err)
	}
}

func TestDispatcher_StatePersistsAcrossRuns(t *testing.T) {
	store := testutil.NewFakeStore()
	built := 0
	dir := t.TempDir()
	factory := testFactory(store, &built)

	if _, _, code := run(t, factory, "add", "--config", dir, "Buy", "milk"); code != exitcode.Success {
		t.Fatalf("add failed with code %d", code)
	}
	stdout, _, code := run(t, factory, "pending", "--config", dir)
	if code != exitcode.Success {
		t.Fatalf("pending failed with code %d", code)
	}
	if !strings.Contains(stdout, "create  ~1  Buy milk") {
		t.Errorf("queued create should survive the restart, got %q", stdout)
	}

	stdout, _, _ = run(t, factory, "sync", "--config", dir)
	if stdout != "synced 1 of 1 changes\n" {
		t.Errorf("unexpected sync output: %q", stdout)
	}
	if built != 3 {
		t.Errorf("expected one service per run, got %d", built)
	}
}

func TestDispatcher_GoogleBackendNeedsLogin(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, config.SettingsFile), []byte("backend: google\n"), 0600); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	built := 0

	_, stderr, code := run(t, testFactory(testutil.NewFakeStore(), &built), "list", "--config", dir)

	if code != exitcode.AuthError {
		t.Errorf("expected exit code %d, got %d", exitcode.AuthError, code)
	}
	if !strings.Contains(stderr, config.OAuthClientFile) {
		t.Errorf("expected missing credentials message, got %q", stderr)
	}
	if built != 0 {
		t.Error("no service should be built without credentials")
	}
}

func TestDispatcher_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, config.SettingsFile), []byte("failed_ops: sometimes\n"), 0600); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	_, stderr, code := run(t, nil, "version", "--config", dir)

	if code != exitcode.AuthError {
		t.Errorf("expected exit code %d, got %d", exitcode.AuthError, code)
	}
	if !strings.HasPrefix(stderr, "error: config: ") {
		t.Errorf("unexpected stderr: %q", stderr)
	}
}

func TestDispatcher_FactoryErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"auth", fmt.Errorf("%w: token revoked", config.ErrAuth), exitcode.AuthError},
		{"storage", &service.StorageError{Op: "open", Err: errors.New("read-only")}, exitcode.StorageError},
		{"other", errors.New("bad url"), exitcode.BackendError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory := func(ctx context.Context, cfg *config.Config) (service.Service, error) {
				return nil, tt.err
			}
			_, _, code := run(t, factory, "list", "--config", t.TempDir())
			if code != tt.want {
				t.Errorf("expected exit code %d, got %d", tt.want, code)
			}
		})
	}
}
