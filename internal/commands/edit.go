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
	Register(&EditCmd{})
}

// EditCmd implements the edit command.
type EditCmd struct {
	fields taskFields
	title  *string
	root   bool
}

func (c *EditCmd) Name() string      { return "edit" }
func (c *EditCmd) Aliases() []string { return []string{"mv"} }
func (c *EditCmd) Synopsis() string  { return "Change or move a task" }
func (c *EditCmd) Usage() string {
	return "tasktree edit [--title <t>] [--parent <id> | --root] [--priority <n>] [--status <s>] [--position <n>] [--desc <text>] [--due <date>] <id>"
}
func (c *EditCmd) NeedsService() bool { return true }

func (c *EditCmd) RegisterFlags(fs *flag.FlagSet) {
	c.fields.register(fs)
	c.title = nil
	fs.Func("title", "", func(v string) error {
		c.title = &v
		return nil
	})
	fs.BoolVar(&c.root, "root", false, "")
}

func (c *EditCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	id, code, ok := taskIDArg(args, errOut)
	if !ok {
		return code
	}

	if c.root && c.fields.parent != nil {
		fmt.Fprintln(errOut, "error: cannot use both --parent and --root")
		return exitcode.UserError
	}
	if c.title == nil && !c.root && !c.fields.set() {
		fmt.Fprintln(errOut, "error: nothing to change")
		return exitcode.UserError
	}

	patch := service.TaskPatch{
		Title:       c.title,
		Description: c.fields.desc,
		ParentID:    c.fields.parent,
		ClearParent: c.root,
		Priority:    c.fields.priority,
		Status:      c.fields.status,
		Position:    c.fields.position,
		Deadline:    c.fields.due,
	}
	if c.fields.status != nil {
		done := *c.fields.status == service.StatusDone
		patch.IsCompleted = &done
	}

	if _, err := svc.UpdateTask(ctx, id, patch); err != nil {
		return reportError(errOut, err)
	}

	if !cfg.Quiet {
		fmt.Fprintln(out, "ok")
	}
	return exitcode.Success
}

// taskIDArg parses the task ID argument and reports usage errors.
func taskIDArg(args []string, errOut io.Writer) (int64, int, bool) {
	id, err := ParseTaskID(args)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return 0, exitcode.UserError, false
	}
	return id, exitcode.Success, true
}
