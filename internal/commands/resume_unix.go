//go:build unix

package commands

import (
	"os"
	"syscall"
)

// resumeSignals are delivered when a stopped process is continued.
var resumeSignals = []os.Signal{syscall.SIGCONT}
