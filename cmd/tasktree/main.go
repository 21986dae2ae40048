// Package main is the entry point for the tasktree CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tasktree/internal/backend/googletasks"
	"tasktree/internal/backend/resthttp"
	"tasktree/internal/cache"
	"tasktree/internal/cli"
	"tasktree/internal/commands"
	"tasktree/internal/config"
	"tasktree/internal/hierarchy"
	"tasktree/internal/service"
	"tasktree/internal/syncer"
	"tasktree/internal/telemetry"
)

func main() {
	// Create context that cancels on interrupt
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	if err := telemetry.Init(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, newService)
	code := dispatcher.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)

	cancel()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 2*time.Second)
	telemetry.Shutdown(shutdownCtx)
	cancelShutdown()

	os.Exit(code)
}

// newService opens the cache and wires the configured backend, the sync
// engine and the hierarchy service together.
func newService(ctx context.Context, cfg *config.Config) (service.Service, error) {
	logger := slog.Default()

	c, err := cache.Open(ctx, cfg.CachePath())
	if err != nil {
		return nil, err
	}

	remote, err := newRemote(ctx, cfg, c)
	if err != nil {
		c.Close()
		return nil, err
	}

	policy, err := syncer.ParsePolicy(cfg.Settings.FailedOps)
	if err != nil {
		c.Close()
		return nil, err
	}
	engine := syncer.New(c, remote,
		syncer.WithInterval(cfg.Settings.SyncInterval),
		syncer.WithLogger(logger),
		syncer.WithPolicy(policy, cfg.Settings.MaxAttempts),
		syncer.WithMeter(telemetry.Meter("tasktree/syncer")),
	)
	return hierarchy.New(c, remote, engine, hierarchy.WithLogger(logger)), nil
}

func newRemote(ctx context.Context, cfg *config.Config, c *cache.Cache) (service.RemoteTaskStore, error) {
	switch cfg.Settings.Backend {
	case config.BackendGoogle:
		client, err := googletasks.New(ctx, cfg, c)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrAuth, err)
		}
		return client, nil
	default:
		return resthttp.New(ctx, resthttp.Options{
			BaseURL: cfg.Settings.APIURL,
			Token:   cfg.Settings.APIToken,
			Timeout: cfg.Settings.RequestTimeout,
		})
	}
}
