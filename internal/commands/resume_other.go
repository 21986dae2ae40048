//go:build !unix

package commands

import "os"

var resumeSignals []os.Signal
