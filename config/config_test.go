package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "kestrel.toml", `
[heap]
initial-threshold = "64 KiB"
growth = 1.5
max-bytes = 16777216

[interpreter]
max-call-depth = 200

[log]
verbosity = 2

[stats]
database = "gc.db"
`)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Heap.InitialThreshold != 64<<10 {
		t.Errorf("initial-threshold = %d, want %d", c.Heap.InitialThreshold, 64<<10)
	}
	if c.Heap.Growth != 1.5 {
		t.Errorf("growth = %g", c.Heap.Growth)
	}
	if c.Heap.MaxBytes != 16<<20 {
		t.Errorf("max-bytes = %d", c.Heap.MaxBytes)
	}
	if c.Interpreter.MaxCallDepth != 200 {
		t.Errorf("max-call-depth = %d", c.Interpreter.MaxCallDepth)
	}
	// Absent settings keep their defaults.
	if c.Interpreter.StackSize != Default().Interpreter.StackSize {
		t.Errorf("stack-size = %d, want default", c.Interpreter.StackSize)
	}
	if c.Log.Verbosity != 2 || c.Stats.Database != "gc.db" {
		t.Errorf("log/stats = %+v %+v", c.Log, c.Stats)
	}
	if c.Path != path {
		t.Errorf("Path = %q, want %q", c.Path, path)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "kestrel.yaml", `
heap:
  initial-threshold: 2MB
  growth: 3
interpreter:
  stack-size: 4096
`)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Heap.InitialThreshold != 2000000 {
		t.Errorf("initial-threshold = %d, want 2000000", c.Heap.InitialThreshold)
	}
	if c.Heap.Growth != 3 {
		t.Errorf("growth = %g", c.Heap.Growth)
	}
	if c.Interpreter.StackSize != 4096 {
		t.Errorf("stack-size = %d", c.Interpreter.StackSize)
	}
	if c.Interpreter.MaxCallDepth != Default().Interpreter.MaxCallDepth {
		t.Errorf("max-call-depth = %d, want default", c.Interpreter.MaxCallDepth)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		wantErr string
	}{
		{"bad toml", "kestrel.toml", "[heap\n", "parse error"},
		{"bad yaml", "kestrel.yaml", "heap: [1,\n", "parse error"},
		{"bad size", "kestrel.toml", "[heap]\ninitial-threshold = \"lots\"\n", "invalid size"},
		{"negative size", "kestrel.toml", "[heap]\nmax-bytes = -1\n", "negative"},
		{"yaml size mapping", "kestrel.yaml", "heap:\n  max-bytes:\n    a: 1\n", "scalar"},
		{"growth", "kestrel.toml", "[heap]\ngrowth = 0.5\n", "heap.growth"},
		{"max below threshold", "kestrel.toml", "[heap]\ninitial-threshold = \"1 MiB\"\nmax-bytes = \"1 KiB\"\n", "heap.max-bytes"},
		{"depth", "kestrel.yml", "interpreter:\n  max-call-depth: -1\n", "max-call-depth"},
		{"format", "kestrel.json", "{}", "unsupported"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), tt.file, tt.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("missing file loaded")
	}
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "kestrel.toml", "[interpreter]\nmax-call-depth = 77\n")
	sub := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(sub)
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	if c == nil {
		t.Fatal("expected config, got nil")
	}
	if c.Interpreter.MaxCallDepth != 77 {
		t.Errorf("max-call-depth = %d", c.Interpreter.MaxCallDepth)
	}

	// A nearer file wins.
	writeFile(t, sub, "kestrel.yaml", "interpreter:\n  max-call-depth: 5\n")
	c, err = FindAndLoad(sub)
	if err != nil {
		t.Fatal(err)
	}
	if c.Interpreter.MaxCallDepth != 5 {
		t.Errorf("nearer file ignored: max-call-depth = %d", c.Interpreter.MaxCallDepth)
	}
}

func TestFindAndLoad_NotFound(t *testing.T) {
	c, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad: %v", err)
	}
	// The walk may reach a kestrel.toml above the temp dir on unusual
	// hosts; only a loaded file with a Path is acceptable then.
	if c != nil && c.Path == "" {
		t.Error("config without a path")
	}
}

func TestWriteTOMLRoundTrip(t *testing.T) {
	c := Default()
	c.Heap.MaxBytes = 32 << 20
	c.Stats.Database = "stats.db"

	var buf bytes.Buffer
	if err := c.WriteTOML(&buf); err != nil {
		t.Fatalf("WriteTOML: %v", err)
	}
	if !strings.Contains(buf.String(), `max-bytes = "32 MiB"`) {
		t.Errorf("sizes not written in human form:\n%s", buf.String())
	}

	path := writeFile(t, t.TempDir(), "kestrel.toml", buf.String())
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Heap != c.Heap || got.Interpreter != c.Interpreter || got.Stats != c.Stats {
		t.Errorf("round trip: got %+v, want %+v", got, c)
	}
}

func TestByteSizeString(t *testing.T) {
	tests := []struct {
		size ByteSize
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1 << 20, "1.0 MiB"},
	}
	for _, tt := range tests {
		if got := tt.size.String(); got != tt.want {
			t.Errorf("ByteSize(%d).String() = %q, want %q", tt.size, got, tt.want)
		}
	}
}
