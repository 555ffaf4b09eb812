package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/chazu/kestrel/vm"
)

const (
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiDim    = "\x1b[2m"
	ansiBold   = "\x1b[1m"
	ansiReset  = "\x1b[0m"
)

// colorEnabled reports whether diagnostics written to w may use ANSI
// colors: w must be a terminal and NO_COLOR unset.
func colorEnabled(w io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (c *cli) paint(code, s string) string {
	if !c.color {
		return s
	}
	return code + s + ansiReset
}

func (c *cli) errorf(format string, args ...any) {
	fmt.Fprintf(c.stderr, "%s %s\n", c.paint(ansiBold+ansiRed, "error:"), fmt.Sprintf(format, args...))
}

// report prints the diagnostic for a failed run of file.
func (c *cli) report(file string, err error) {
	var th *vm.Throw
	switch {
	case errors.As(err, &th):
		fmt.Fprintf(c.stderr, "%s %s: %s\n", c.paint(ansiBold+ansiRed, "error:"), file, th.Error())
		// The first stack line repeats the name and message.
		if _, frames, ok := strings.Cut(th.Stack, "\n"); ok {
			for _, line := range strings.Split(frames, "\n") {
				fmt.Fprintln(c.stderr, c.paint(ansiDim, line))
			}
		}
	case vm.IsFatal(err):
		fmt.Fprintf(c.stderr, "%s %s: %v\n", c.paint(ansiBold+ansiRed, "fatal:"), file, err)
	default:
		c.errorf("%s: %v", file, err)
	}
}

func (c *cli) warnf(format string, args ...any) {
	fmt.Fprintf(c.stderr, "%s %s\n", c.paint(ansiYellow, "warning:"), fmt.Sprintf(format, args...))
}
