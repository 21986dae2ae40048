package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"tasktree/internal/config"
	"tasktree/internal/exitcode"
	"tasktree/internal/service"
)

func init() {
	Register(&WatchCmd{})
}

// WatchCmd implements the watch command. It keeps the sync loop running
// until interrupted and resumes early when the process is continued.
type WatchCmd struct{}

func (c *WatchCmd) Name() string       { return "watch" }
func (c *WatchCmd) Aliases() []string  { return nil }
func (c *WatchCmd) Synopsis() string   { return "Keep syncing in the foreground" }
func (c *WatchCmd) Usage() string      { return "tasktree watch" }
func (c *WatchCmd) NeedsService() bool { return true }

func (c *WatchCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *WatchCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if !cfg.Quiet {
		fmt.Fprintf(errOut, "syncing every %s, press Ctrl-C to stop\n", cfg.Settings.SyncInterval)
	}

	resumed := make(chan os.Signal, 1)
	if len(resumeSignals) > 0 {
		signal.Notify(resumed, resumeSignals...)
		defer signal.Stop(resumed)
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-resumed:
				svc.Resume(ctx)
			}
		}
	}()

	if err := svc.RunSync(ctx); err != nil {
		return reportError(errOut, err)
	}
	return exitcode.Success
}
