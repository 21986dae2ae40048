// Package output provides formatters for CLI output.
package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"tasktree/internal/service"
)

// indentUnit is the indentation per tree level.
const indentUnit = "  "

// FormatID renders a task ID. Temporary IDs are shown as ~N.
func FormatID(id int64) string {
	if id < 0 {
		return "~" + strconv.FormatInt(-id, 10)
	}
	return strconv.FormatInt(id, 10)
}

// FormatTask formats one tree line.
// Format: "{ID:>6}  {INDENT}[x] {TITLE}{  (META)}\n"
func FormatTask(w io.Writer, task service.Task) {
	check := " "
	if task.IsCompleted {
		check = "x"
	}
	indent := strings.Repeat(indentUnit, task.Level)
	line := fmt.Sprintf("%6s  %s[%s] %s", FormatID(task.ID), indent, check, normalizeTitle(task.Title))
	if meta := taskMeta(task); meta != "" {
		line += "  (" + meta + ")"
	}
	fmt.Fprintln(w, line)
}

// FormatTree formats an ordered tree, one line per task.
func FormatTree(w io.Writer, tasks []service.Task) {
	for _, task := range tasks {
		FormatTask(w, task)
	}
}

// taskMeta lists the non-default attributes of a task.
func taskMeta(task service.Task) string {
	var parts []string
	if task.Status != "" && task.Status != service.StatusNotStarted && !(task.IsCompleted && task.Status == service.StatusDone) {
		parts = append(parts, string(task.Status))
	}
	if task.Priority != 0 {
		parts = append(parts, "p"+strconv.Itoa(task.Priority))
	}
	if task.Deadline != nil {
		parts = append(parts, "due "+task.Deadline.Format("2006-01-02"))
	}
	return strings.Join(parts, ", ")
}

// FormatOp formats a queued mutation.
// Format: "{SEQ:>4}  {TIME}  {OP:<6}  {ID}  {TITLE}\n"
func FormatOp(w io.Writer, op service.QueuedOp) {
	line := fmt.Sprintf("%4d  %s  %-6s  %s", op.Seq, op.EnqueuedAt.UTC().Format("2006-01-02 15:04:05"), op.Operation, FormatID(op.Data.ID))
	if op.Operation != service.OpDelete {
		line += "  " + normalizeTitle(op.Data.Title)
	}
	if op.Attempts > 0 {
		line += fmt.Sprintf("  (retry %d)", op.Attempts)
	}
	fmt.Fprintln(w, line)
}

// FormatReport summarizes a sync pass.
func FormatReport(w io.Writer, report service.SyncReport) {
	fmt.Fprintf(w, "synced %d of %d changes", report.Applied, report.Attempted)
	if report.Failed() > 0 {
		fmt.Fprintf(w, ", %d failed", report.Failed())
	}
	if report.Requeued > 0 {
		fmt.Fprintf(w, ", %d will be retried", report.Requeued)
	}
	fmt.Fprintln(w)
}

// normalizeTitle normalizes a task title for display.
// - Empty or whitespace-only titles become "(untitled)"
// - Newlines are replaced with spaces
func normalizeTitle(title string) string {
	title = strings.ReplaceAll(title, "\r", " ")
	title = strings.ReplaceAll(title, "\n", " ")

	if strings.TrimSpace(title) == "" {
		return "(untitled)"
	}
	return title
}
