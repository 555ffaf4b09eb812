// Package config handles kestrel.toml and kestrel.yaml engine
// configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// File names searched for by FindAndLoad, in order of preference.
var FileNames = []string{"kestrel.toml", "kestrel.yaml", "kestrel.yml"}

// Config is the engine configuration.
type Config struct {
	Heap        Heap        `toml:"heap" yaml:"heap"`
	Interpreter Interpreter `toml:"interpreter" yaml:"interpreter"`
	Log         Log         `toml:"log" yaml:"log"`
	Stats       Stats       `toml:"stats" yaml:"stats"`

	// Path is the file the configuration was loaded from (set at load time).
	Path string `toml:"-" yaml:"-"`
}

// Heap configures the collector's trigger policy and limit.
type Heap struct {
	InitialThreshold ByteSize `toml:"initial-threshold" yaml:"initial-threshold"`
	Growth           float64  `toml:"growth" yaml:"growth"`
	MaxBytes         ByteSize `toml:"max-bytes" yaml:"max-bytes"` // 0 = unlimited
}

// Interpreter configures execution limits.
type Interpreter struct {
	MaxCallDepth int `toml:"max-call-depth" yaml:"max-call-depth"`
	StackSize    int `toml:"stack-size" yaml:"stack-size"`
}

// Log configures diagnostics.
type Log struct {
	Verbosity int    `toml:"verbosity" yaml:"verbosity"`
	Path      string `toml:"path" yaml:"path"` // empty = stderr
}

// Stats configures the collection statistics store.
type Stats struct {
	Database string `toml:"database" yaml:"database"` // empty = disabled
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Heap: Heap{
			InitialThreshold: 1 << 20,
			Growth:           2,
		},
		Interpreter: Interpreter{
			MaxCallDepth: 1024,
			StackSize:    1024,
		},
	}
}

// Load parses a configuration file. The format follows the extension:
// .toml, or .yaml/.yml. Settings absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if err := toml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%s: unsupported configuration format %q", path, ext)
	}

	c.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a configuration file, then
// loads and returns it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		for _, name := range FileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return Load(path)
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Validate reports settings no engine can run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Heap.Growth != 0 && c.Heap.Growth < 1 {
		errs = append(errs, fmt.Errorf("heap.growth must be at least 1, got %g", c.Heap.Growth))
	}
	if c.Heap.MaxBytes != 0 && c.Heap.MaxBytes < c.Heap.InitialThreshold {
		errs = append(errs, fmt.Errorf("heap.max-bytes (%s) is below heap.initial-threshold (%s)",
			c.Heap.MaxBytes, c.Heap.InitialThreshold))
	}
	if c.Interpreter.MaxCallDepth < 0 {
		errs = append(errs, fmt.Errorf("interpreter.max-call-depth must not be negative"))
	}
	if c.Interpreter.StackSize < 0 {
		errs = append(errs, fmt.Errorf("interpreter.stack-size must not be negative"))
	}
	return errors.Join(errs...)
}

// WriteTOML writes c in TOML form.
func (c *Config) WriteTOML(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}
