package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"tasktree/internal/config"
	"tasktree/internal/exitcode"
	"tasktree/internal/service"
)

func init() {
	Register(&DoneCmd{})
}

// DoneCmd implements the done command.
type DoneCmd struct {
	undo bool
}

func (c *DoneCmd) Name() string       { return "done" }
func (c *DoneCmd) Aliases() []string  { return nil }
func (c *DoneCmd) Synopsis() string   { return "Mark a task completed" }
func (c *DoneCmd) Usage() string      { return "tasktree done [--undo] <id>" }
func (c *DoneCmd) NeedsService() bool { return true }

func (c *DoneCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.undo, "undo", false, "")
}

func (c *DoneCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	id, code, ok := taskIDArg(args, errOut)
	if !ok {
		return code
	}

	completed, status := true, service.StatusDone
	if c.undo {
		completed, status = false, service.StatusNotStarted
	}
	if _, err := svc.UpdateTask(ctx, id, service.TaskPatch{IsCompleted: &completed, Status: &status}); err != nil {
		return reportError(errOut, err)
	}

	if !cfg.Quiet {
		fmt.Fprintln(out, "ok")
	}
	return exitcode.Success
}
