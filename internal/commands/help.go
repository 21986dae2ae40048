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
	Register(&HelpCmd{})
}

// HelpCmd implements the help command.
type HelpCmd struct{}

func (c *HelpCmd) Name() string       { return "help" }
func (c *HelpCmd) Aliases() []string  { return nil }
func (c *HelpCmd) Synopsis() string   { return "Print usage" }
func (c *HelpCmd) Usage() string      { return "tasktree help" }
func (c *HelpCmd) NeedsService() bool { return false }

func (c *HelpCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *HelpCmd) Run(ctx context.Context, cfg *config.Config, svc service.Service, args []string, out, errOut io.Writer) int {
	fmt.Fprint(out, helpText)
	return exitcode.Success
}

const helpText = `Usage:
  tasktree                                 Show the task tree
  tasktree list [--offline | --sync]       Show the task tree
  tasktree add [task flags] <title...>     Create a task
  tasktree edit [task flags] [--title <t>] [--root] <id>
  tasktree done [--undo] <id>              Mark a task completed
  tasktree rm <id>                         Delete a task and its subtasks
  tasktree pending                         Show changes waiting to sync
  tasktree sync                            Push queued changes now
  tasktree watch                           Keep syncing until interrupted
  tasktree login                           Authenticate with Google Tasks
  tasktree logout                          Remove the stored Google token
  tasktree help
  tasktree version

Task IDs:
  12               a task known to the remote store
  ~3               a task created here and not synced yet

Task flags:
  --parent <id>    Nest under another task
  --priority <n>   Priority (higher first among top-level tasks)
  --status <s>     in-progress, not-started, casual, backlog or done
  --position <n>   Position among siblings, stored with the task
  --desc <text>    Description
  --due <date>     Deadline as YYYY-MM-DD

Common flags:
  --config <dir>   Override config directory
  --quiet          Suppress informational output
  --debug          Print debug logs to stderr
`
