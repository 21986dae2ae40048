// Package exitcode defines exit codes for the CLI.
package exitcode

const (
	// Success indicates successful completion.
	Success = 0

	// UserError indicates a user error (bad args, unknown task, cycle).
	UserError = 1

	// AuthError indicates an auth or config error.
	AuthError = 2

	// BackendError indicates a backend/API/network error.
	BackendError = 3

	// StorageError indicates the local cache could not be read or written.
	StorageError = 4
)
