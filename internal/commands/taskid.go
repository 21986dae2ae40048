package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrTaskIDRequired indicates no task ID was provided.
var ErrTaskIDRequired = errors.New("task id required")

// ParseTaskID parses the task ID from the first positional argument.
//
// Accepted forms:
//   - 12 or #12: a task confirmed by the remote store
//   - ~3: a task created on this machine and not synced yet (ID -3)
func ParseTaskID(args []string) (int64, error) {
	if len(args) == 0 {
		return 0, ErrTaskIDRequired
	}
	if len(args) > 1 {
		return 0, fmt.Errorf("unexpected argument: %s", args[1])
	}
	return ParseID(args[0])
}

// ParseID parses a single task ID in any accepted form.
func ParseID(s string) (int64, error) {
	raw := strings.TrimSpace(s)
	sign := int64(1)
	switch {
	case strings.HasPrefix(raw, "~"):
		raw, sign = raw[1:], -1
	case strings.HasPrefix(raw, "#"):
		raw = raw[1:]
	}
	if raw == "" || !isAllDigits(raw) {
		return 0, fmt.Errorf("invalid task id: %s", s)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid task id: %s", s)
	}
	return sign * n, nil
}

// isAllDigits returns true if s is non-empty and contains only digits.
func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
