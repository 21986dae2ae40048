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
	Register(&PendingCmd{})
}

// PendingCmd implements the pending command.
type PendingCmd struct{}

func (c *PendingCmd) Name() string       { return "pending" }
func (c *PendingCmd) Aliases() []string  { return []string{"queue"} }
func (c *PendingCmd) Synopsis() string   { return "Show changes waiting to sync" }
func (c *PendingCmd) Usage() string      { return "tasktree pending" }
func (c *PendingCmd) NeedsService() bool { return true }

func (c *PendingCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *PendingCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	ops, err := svc.Pending(ctx)
	if err != nil {
		return reportError(errOut, err)
	}

	if len(ops) == 0 {
		if !cfg.Quiet {
			fmt.Fprintln(out, "no pending changes")
		}
		return exitcode.Success
	}
	for _, op := range ops {
		output.FormatOp(out, op)
	}
	return exitcode.Success
}
