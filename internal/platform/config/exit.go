package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

var (
	exitOutput io.Writer = os.Stderr
	exitFunc             = os.Exit
)

// Exitf prints "<program>: <message>" to stderr and exits with status 1.
func Exitf(format string, args ...any) {
	fmt.Fprintf(exitOutput, "%s: %s\n", filepath.Base(os.Args[0]), fmt.Sprintf(format, args...))
	exitFunc(1)
}
