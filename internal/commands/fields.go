package commands

import (
	"flag"
	"fmt"
	"strconv"
	"time"

	"tasktree/internal/service"
)

// dueLayout is the accepted --due format.
const dueLayout = "2006-01-02"

// taskFields collects the optional task attributes shared by add and edit.
// A nil field was not given on the command line.
type taskFields struct {
	desc     *string
	parent   *int64
	priority *int
	status   *service.Status
	position *int64
	due      *time.Time
}

func (f *taskFields) register(fs *flag.FlagSet) {
	*f = taskFields{}

	fs.Func("desc", "", func(v string) error {
		f.desc = &v
		return nil
	})
	fs.Func("parent", "", func(v string) error {
		id, err := ParseID(v)
		if err != nil {
			return err
		}
		f.parent = &id
		return nil
	})
	fs.Func("priority", "", func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("not a number: %s", v)
		}
		f.priority = &n
		return nil
	})
	fs.Func("status", "", func(v string) error {
		s, err := parseStatus(v)
		if err != nil {
			return err
		}
		f.status = &s
		return nil
	})
	fs.Func("position", "", func(v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return fmt.Errorf("want a positive number: %s", v)
		}
		f.position = &n
		return nil
	})
	fs.Func("due", "", func(v string) error {
		d, err := time.ParseInLocation(dueLayout, v, time.UTC)
		if err != nil {
			return fmt.Errorf("want YYYY-MM-DD: %s", v)
		}
		f.due = &d
		return nil
	})
}

func (f *taskFields) set() bool {
	return f.desc != nil || f.parent != nil || f.priority != nil || f.status != nil || f.position != nil || f.due != nil
}

func parseStatus(v string) (service.Status, error) {
	s := service.Status(v)
	switch s {
	case service.StatusInProgress, service.StatusNotStarted, service.StatusCasual, service.StatusBacklog, service.StatusDone:
		return s, nil
	}
	return "", fmt.Errorf("unknown status %q (want in-progress, not-started, casual, backlog or done)", v)
}
