package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/kestrel/config"
	"github.com/chazu/kestrel/pkg/asm"
	"github.com/chazu/kestrel/pkg/bytecode"
	"github.com/chazu/kestrel/stats"
	"github.com/chazu/kestrel/vm"
)

// run handles `kestrel run`.
func (c *cli) run(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	configPath := fs.String("config", "", "Configuration file (default: kestrel.toml or kestrel.yaml found upward)")
	verbose := fs.Bool("v", false, "Verbose output")
	statsDB := fs.String("stats-db", "", "SQLite database receiving collection statistics")
	jobs := fs.Int("j", runtime.GOMAXPROCS(0), "Maximum number of programs running at once")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	files := fs.Args()
	if len(files) == 0 {
		c.errorf("run: no input files")
		return 2
	}

	if *jobs < 1 {
		c.warnf("-j %d is not positive, running one program at a time", *jobs)
		*jobs = 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		c.errorf("%v", err)
		return 1
	}
	c.configureLogging(cfg, *verbose)

	if *statsDB == "" {
		*statsDB = cfg.Stats.Database
	}
	var store *stats.Store
	if *statsDB != "" {
		store, err = stats.Open(*statsDB)
		if err != nil {
			c.errorf("stats: %v", err)
			return 1
		}
		defer store.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out := &syncWriter{w: c.stdout}
	var g errgroup.Group
	g.SetLimit(*jobs)
	for _, file := range files {
		g.Go(func() error {
			r := &runner{cfg: cfg, store: store, stdout: out}
			err := r.runFile(ctx, file)
			if err != nil {
				out.mu.Lock()
				c.report(file, err)
				out.mu.Unlock()
				return err
			}
			if *verbose {
				out.mu.Lock()
				fmt.Fprintf(c.stderr, "%s: %s\n", file, r.summary())
				out.mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 1
	}
	return 0
}

// loadConfig reads path, or searches upward from the working directory
// when path is empty. Without a file the defaults apply.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg, err := config.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg, nil
}

func (c *cli) configureLogging(cfg *config.Config, verbose bool) {
	verbosity := cfg.Log.Verbosity
	if verbose {
		verbosity++
	}
	var path *string
	if cfg.Log.Path != "" {
		path = &cfg.Log.Path
	}
	commonlog.Configure(verbosity, path)
	if cfg.Path != "" {
		log.Debugf("configuration from %s", cfg.Path)
	}
}

// runner executes one program in a fresh engine.
type runner struct {
	cfg    *config.Config
	store  *stats.Store
	stdout io.Writer

	cycles int
	freed  int64
	pause  time.Duration
	live   int64
}

func (r *runner) runFile(ctx context.Context, file string) error {
	prog, err := loadProgram(file)
	if err != nil {
		return err
	}

	machine := vm.NewVM(
		vm.WithConfig(r.cfg),
		vm.WithStdout(r.stdout),
		vm.WithCollectHook(r.observe),
	)
	defer machine.Shutdown()

	if r.store != nil {
		if err := r.store.Attach(machine, file); err != nil {
			return fmt.Errorf("stats: %w", err)
		}
	}

	script, err := machine.Load(prog)
	if err != nil {
		return err
	}
	log.Debugf("%s: running in vm %s", file, machine.ID)
	if _, err := machine.RunContext(ctx, script); err != nil {
		return err
	}
	r.live = machine.Heap().Bytes()
	return nil
}

func (r *runner) observe(s vm.CollectStats) {
	r.cycles++
	r.freed += s.FreedBytes
	r.pause += s.Duration
}

func (r *runner) summary() string {
	return fmt.Sprintf("%d collections (%s paused), %s freed, %s live at exit",
		r.cycles, r.pause, humanize.IBytes(uint64(r.freed)), humanize.IBytes(uint64(r.live)))
}

// loadProgram reads a .kasm source or a .kbc binary.
func loadProgram(file string) (*bytecode.Program, error) {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".kbc":
		return bytecode.ReadFile(file)
	case ".kasm":
		src, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		return asm.Assemble(string(src))
	}
	return nil, fmt.Errorf("unknown program type %q (want .kasm or .kbc)", filepath.Ext(file))
}

// syncWriter serializes writes from engines running in parallel.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
