// Kestrel CLI - runs, assembles and disassembles bytecode programs
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("kestrel.cli")

func main() {
	os.Exit(Main(os.Args[1:], os.Stdout, os.Stderr))
}

// Main runs the CLI with args (without the program name) and returns the
// process exit status.
func Main(args []string, stdout, stderr io.Writer) int {
	c := &cli{stdout: stdout, stderr: stderr, color: colorEnabled(stderr)}

	if len(args) == 0 {
		c.usage()
		return 2
	}

	switch cmd, rest := args[0], args[1:]; cmd {
	case "run":
		return c.run(rest)
	case "asm":
		return c.asm(rest)
	case "dis":
		return c.dis(rest)
	case "config":
		return c.config(rest)
	case "stats":
		return c.stats(rest)
	case "help", "-h", "-help", "--help":
		c.usage()
		return 0
	default:
		c.errorf("unknown command %q", cmd)
		c.usage()
		return 2
	}
}

type cli struct {
	stdout io.Writer
	stderr io.Writer
	color  bool
}

func (c *cli) usage() {
	fmt.Fprintf(c.stderr, "Usage: kestrel <command> [options] [files...]\n\n")
	fmt.Fprintf(c.stderr, "Commands:\n")
	fmt.Fprintf(c.stderr, "  run [-config file] [-v] [-stats-db path] [-j N] files...\n")
	fmt.Fprintf(c.stderr, "                          Run .kasm or .kbc programs, each in its own engine\n")
	fmt.Fprintf(c.stderr, "  asm -o out.kbc in.kasm  Assemble a program to a binary file\n")
	fmt.Fprintf(c.stderr, "  dis file                Disassemble a .kasm or .kbc program\n")
	fmt.Fprintf(c.stderr, "  config [-config file]   Print the effective configuration\n")
	fmt.Fprintf(c.stderr, "  stats -db path          Summarize recorded collection statistics\n")
	fmt.Fprintf(c.stderr, "\nExamples:\n")
	fmt.Fprintf(c.stderr, "  kestrel run main.kasm\n")
	fmt.Fprintf(c.stderr, "  kestrel run -j 4 -stats-db gc.db a.kbc b.kbc c.kbc\n")
	fmt.Fprintf(c.stderr, "  kestrel asm -o main.kbc main.kasm && kestrel dis main.kbc\n")
}
