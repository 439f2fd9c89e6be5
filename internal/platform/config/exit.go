package config

import (
	"fmt"
	"os"
)

// Exitf reports an unrecoverable startup error on stderr and terminates the
// process with exit code 1.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
