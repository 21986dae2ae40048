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
	Register(&ListCmd{})
}

// ListCmd implements the list command.
type ListCmd struct {
	offline bool
	sync    bool
}

// SetOffline sets the offline flag (for testing).
func (c *ListCmd) SetOffline(offline bool) {
	c.offline = offline
}

func (c *ListCmd) Name() string       { return "list" }
func (c *ListCmd) Aliases() []string  { return []string{"ls"} }
func (c *ListCmd) Synopsis() string   { return "Show the task tree" }
func (c *ListCmd) Usage() string      { return "tasktree list [--offline | --sync]" }
func (c *ListCmd) NeedsService() bool { return true }

func (c *ListCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.offline, "offline", false, "")
	fs.BoolVar(&c.sync, "sync", false, "")
}

func (c *ListCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	if len(args) > 0 {
		fmt.Fprintf(errOut, "error: unexpected argument: %s\n", args[0])
		return exitcode.UserError
	}
	if c.offline && c.sync {
		fmt.Fprintln(errOut, "error: cannot use both --offline and --sync")
		return exitcode.UserError
	}

	var (
		tasks []service.Task
		err   error
	)
	switch {
	case c.offline:
		tasks, err = svc.Tree(ctx)
	case c.sync:
		if _, err = svc.Sync(ctx); err == nil {
			tasks, err = svc.Tree(ctx)
		}
	default:
		tasks, err = svc.FetchTasks(ctx)
	}
	if err != nil {
		return reportError(errOut, err)
	}

	if len(tasks) == 0 {
		if !cfg.Quiet {
			fmt.Fprintln(out, "no tasks found")
		}
	} else {
		output.FormatTree(out, tasks)
	}

	if cfg.Quiet {
		return exitcode.Success
	}
	pending, err := svc.Pending(ctx)
	if err != nil {
		return reportError(errOut, err)
	}
	if n := len(pending); n > 0 {
		fmt.Fprintf(errOut, "%d %s waiting to sync\n", n, plural(n, "change", "changes"))
	}
	return exitcode.Success
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
