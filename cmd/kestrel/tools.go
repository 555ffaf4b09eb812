package main

import (
	"flag"
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/chazu/kestrel/pkg/bytecode"
	"github.com/chazu/kestrel/stats"
)

// asm handles `kestrel asm`.
//
//	kestrel asm main.kasm            # ./main.kbc
//	kestrel asm -o out.kbc main.kasm # custom output
func (c *cli) asm(args []string) int {
	fs := flag.NewFlagSet("asm", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	output := fs.String("o", "", "Output file (default: input with .kbc extension)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		c.errorf("asm: expected exactly one input file")
		return 2
	}
	in := fs.Arg(0)
	if filepath.Ext(in) != ".kasm" {
		c.errorf("asm: %s is not a .kasm file", in)
		return 2
	}

	prog, err := loadProgram(in)
	if err != nil {
		c.errorf("%s: %v", in, err)
		return 1
	}
	out := *output
	if out == "" {
		out = strings.TrimSuffix(in, filepath.Ext(in)) + ".kbc"
	}
	if err := bytecode.WriteFile(out, prog); err != nil {
		c.errorf("%v", err)
		return 1
	}
	log.Infof("wrote %s", out)
	return 0
}

// dis handles `kestrel dis`.
func (c *cli) dis(args []string) int {
	if len(args) != 1 {
		c.errorf("dis: expected exactly one file")
		return 2
	}
	prog, err := loadProgram(args[0])
	if err != nil {
		c.errorf("%s: %v", args[0], err)
		return 1
	}
	fmt.Fprint(c.stdout, prog.Disassemble())
	return 0
}

// config handles `kestrel config`.
func (c *cli) config(args []string) int {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	configPath := fs.String("config", "", "Configuration file (default: kestrel.toml or kestrel.yaml found upward)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		c.errorf("%v", err)
		return 1
	}
	if cfg.Path != "" {
		fmt.Fprintf(c.stdout, "# %s\n", cfg.Path)
	} else {
		fmt.Fprintf(c.stdout, "# defaults\n")
	}
	if err := cfg.WriteTOML(c.stdout); err != nil {
		c.errorf("%v", err)
		return 1
	}
	return 0
}

// stats handles `kestrel stats`.
func (c *cli) stats(args []string) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	db := fs.String("db", "", "SQLite database written by kestrel run -stats-db")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *db == "" {
		c.errorf("stats: -db is required")
		return 2
	}

	store, err := stats.Open(*db)
	if err != nil {
		c.errorf("stats: %v", err)
		return 1
	}
	defer store.Close()

	runs, err := store.Runs()
	if err != nil {
		c.errorf("stats: %v", err)
		return 1
	}
	if len(runs) == 0 {
		fmt.Fprintln(c.stdout, "no runs recorded")
		return 0
	}

	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCRIPT\tSTARTED\tCYCLES\tFREED\tPEAK LIVE\tPAUSE\tMAX PAUSE")
	for _, r := range runs {
		sum, err := store.Summarize(r.ID)
		if err != nil {
			c.errorf("stats: %v", err)
			return 1
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			r.Script, humanize.Time(r.Started), sum.Cycles,
			humanize.IBytes(uint64(sum.FreedBytes)), humanize.IBytes(uint64(sum.PeakLiveBytes)),
			sum.TotalPause, sum.MaxPause)
	}
	if err := tw.Flush(); err != nil {
		c.errorf("%v", err)
		return 1
	}
	return 0
}
