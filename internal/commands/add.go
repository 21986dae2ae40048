package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"tasktree/internal/config"
	"tasktree/internal/exitcode"
	"tasktree/internal/output"
	"tasktree/internal/service"
)

func init() {
	Register(&AddCmd{})
}

// AddCmd implements the add command.
type AddCmd struct {
	fields taskFields
}

func (c *AddCmd) Name() string      { return "add" }
func (c *AddCmd) Aliases() []string { return []string{"create"} }
func (c *AddCmd) Synopsis() string  { return "Create a task" }
func (c *AddCmd) Usage() string {
	return "tasktree add [--parent <id>] [--priority <n>] [--status <s>] [--position <n>] [--desc <text>] [--due <date>] <title...>"
}
func (c *AddCmd) NeedsService() bool { return true }

func (c *AddCmd) RegisterFlags(fs *flag.FlagSet) {
	c.fields.register(fs)
}

func (c *AddCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	title := strings.Join(args, " ")
	if strings.TrimSpace(title) == "" {
		fmt.Fprintln(errOut, "error: title required")
		return exitcode.UserError
	}

	input := service.NewTask{Title: title, ParentID: c.fields.parent}
	if c.fields.desc != nil {
		input.Description = *c.fields.desc
	}
	if c.fields.priority != nil {
		input.Priority = *c.fields.priority
	}
	if c.fields.status != nil {
		input.Status = *c.fields.status
		input.IsCompleted = input.Status == service.StatusDone
	}
	if c.fields.position != nil {
		input.Position = *c.fields.position
	}
	input.Deadline = c.fields.due

	task, err := svc.AddTask(ctx, input)
	if err != nil {
		return reportError(errOut, err)
	}

	if !cfg.Quiet {
		fmt.Fprintf(out, "created %s\n", output.FormatID(task.ID))
	}
	return exitcode.Success
}
