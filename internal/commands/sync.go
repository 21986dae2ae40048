package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"tasktree/internal/config"
	"tasktree/internal/exitcode"
	"tasktree/internal/output"
	"tasktree/internal/service"
)

func init() {
	Register(&SyncCmd{})
}

// SyncCmd implements the sync command: one drain pass of the queue.
type SyncCmd struct{}

func (c *SyncCmd) Name() string       { return "sync" }
func (c *SyncCmd) Aliases() []string  { return nil }
func (c *SyncCmd) Synopsis() string   { return "Push queued changes to the remote store" }
func (c *SyncCmd) Usage() string      { return "tasktree sync" }
func (c *SyncCmd) NeedsService() bool { return true }

func (c *SyncCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *SyncCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	report, err := svc.Sync(ctx)
	if err != nil {
		return reportError(errOut, err)
	}

	if !cfg.Quiet {
		output.FormatReport(out, report)
	}
	for _, f := range report.Failures {
		fmt.Fprintf(errOut, "error: %s %s: %v\n", f.Op.Operation, output.FormatID(f.Op.Data.ID), f.Err)
	}
	if report.Failed() > 0 {
		return exitcode.BackendError
	}
	return exitcode.Success
}
