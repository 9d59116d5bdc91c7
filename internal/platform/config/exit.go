package config

import (
	"fmt"
	"os"
)

// Exitf reports a fatal CLI error on stderr and terminates the process with
// status 1. Intended for command entry points only; library code returns
// errors instead.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
