package commands

import (
	"errors"
	"fmt"
	"io"

	"tasktree/internal/exitcode"
	"tasktree/internal/service"
)

// reportError prints err and maps it to an exit code.
func reportError(errOut io.Writer, err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound) && !service.IsTransport(err):
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	case errors.Is(err, service.ErrCycle):
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	case service.IsStorage(err):
		fmt.Fprintf(errOut, "error: storage error: %v\n", err)
		return exitcode.StorageError
	default:
		fmt.Fprintf(errOut, "error: backend error: %v\n", err)
		return exitcode.BackendError
	}
}
