package main

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// kestrel runs the CLI and returns its exit status and output.
func kestrel(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Main(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func printProgram(text string) string {
	return `
.func main 0
  GET_NAME print
  UNDEFINED
  CONST "` + text + `"
  INT8 42
  CALL 2
  RETURN
.end
`
}

const throwProgram = `
.func explode 0
  GET_NAME RangeError
  UNDEFINED
  CONST "too far"
  NEW 1
  THROW
.end
.func main 0
  CLOSURE explode
  UNDEFINED
  CALL 0
  RETURN
.end
`

const recursionProgram = `
.func recurse 0
  GET_NAME recurse
  UNDEFINED
  CALL 0
  RETURN
.end
.func main 0
  CLOSURE recurse
  DEFINE_GLOBAL recurse
  GET_NAME recurse
  UNDEFINED
  CALL 0
  RETURN
.end
`

// ---------------------------------------------------------------------------
// run
// ---------------------------------------------------------------------------

func TestRunPrintsOutput(t *testing.T) {
	path := writeFile(t, t.TempDir(), "hello.kasm", printProgram("hello"))
	code, stdout, stderr := kestrel(t, "run", path)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if stdout != "hello 42\n" {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestRunReportsUncaughtThrow(t *testing.T) {
	path := writeFile(t, t.TempDir(), "boom.kasm", throwProgram)
	code, _, stderr := kestrel(t, "run", path)
	if code != 1 {
		t.Fatalf("exit %d, want 1", code)
	}
	for _, want := range []string{"error:", "boom.kasm", "Uncaught RangeError: too far", "at explode", "at main"} {
		if !strings.Contains(stderr, want) {
			t.Errorf("stderr missing %q:\n%s", want, stderr)
		}
	}
	if strings.Contains(stderr, "\x1b[") {
		t.Error("colored output written to a non-terminal")
	}
}

func TestRunReportsFatal(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "kestrel.toml", "[interpreter]\nmax-call-depth = 50\n")
	path := writeFile(t, dir, "deep.kasm", recursionProgram)

	code, _, stderr := kestrel(t, "run", "-config", cfg, path)
	if code != 1 {
		t.Fatalf("exit %d, want 1", code)
	}
	if !strings.Contains(stderr, "fatal:") {
		t.Errorf("stderr = %q, want fatal diagnostic", stderr)
	}
}

func TestRunParallel(t *testing.T) {
	dir := t.TempDir()
	var files []string
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		files = append(files, writeFile(t, dir, name+".kasm", printProgram(name)))
	}

	code, stdout, stderr := kestrel(t, append([]string{"run", "-j", "2"}, files...)...)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	sort.Strings(lines)
	want := []string{"a 42", "b 42", "c 42", "d 42", "e 42"}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Errorf("output lines = %q", lines)
	}
}

func TestRunFailureDoesNotStopOthers(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.kasm", throwProgram)
	good := writeFile(t, dir, "good.kasm", printProgram("fine"))

	code, stdout, stderr := kestrel(t, "run", "-j", "1", bad, good)
	if code != 1 {
		t.Errorf("exit %d, want 1", code)
	}
	if stdout != "fine 42\n" {
		t.Errorf("stdout = %q", stdout)
	}
	if !strings.Contains(stderr, "bad.kasm") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestRunVerboseSummary(t *testing.T) {
	path := writeFile(t, t.TempDir(), "v.kasm", printProgram("v"))
	code, _, stderr := kestrel(t, "run", "-v", path)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if !strings.Contains(stderr, "collections") || !strings.Contains(stderr, "live at exit") {
		t.Errorf("stderr = %q, want run summary", stderr)
	}
}

func TestRunRecordsStats(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "gc.db")
	path := writeFile(t, dir, "s.kasm", printProgram("s"))

	if code, _, stderr := kestrel(t, "run", "-stats-db", db, path); code != 0 {
		t.Fatalf("run: exit %d: %s", code, stderr)
	}
	code, stdout, stderr := kestrel(t, "stats", "-db", db)
	if code != 0 {
		t.Fatalf("stats: exit %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "SCRIPT") || !strings.Contains(stdout, path) {
		t.Errorf("stats output:\n%s", stdout)
	}
}

func TestStatsEmptyDatabase(t *testing.T) {
	code, stdout, _ := kestrel(t, "stats", "-db", filepath.Join(t.TempDir(), "empty.db"))
	if code != 0 || stdout != "no runs recorded\n" {
		t.Errorf("exit %d, stdout %q", code, stdout)
	}
}

// ---------------------------------------------------------------------------
// asm / dis
// ---------------------------------------------------------------------------

func TestAsmThenRunBinary(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "prog.kasm", printProgram("binary"))
	out := filepath.Join(dir, "out.kbc")

	if code, _, stderr := kestrel(t, "asm", "-o", out, src); code != 0 {
		t.Fatalf("asm: exit %d: %s", code, stderr)
	}
	code, stdout, stderr := kestrel(t, "run", out)
	if code != 0 {
		t.Fatalf("run: exit %d: %s", code, stderr)
	}
	if stdout != "binary 42\n" {
		t.Errorf("stdout = %q", stdout)
	}

	code, stdout, _ = kestrel(t, "dis", out)
	if code != 0 {
		t.Fatalf("dis: exit %d", code)
	}
	for _, want := range []string{"main", "GET_NAME", "INT8 42", "CALL 2"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("disassembly missing %q:\n%s", want, stdout)
		}
	}
}

func TestAsmDefaultOutput(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "prog.kasm", printProgram("x"))
	if code, _, stderr := kestrel(t, "asm", src); code != 0 {
		t.Fatalf("asm: exit %d: %s", code, stderr)
	}
	if _, err := os.Stat(filepath.Join(dir, "prog.kbc")); err != nil {
		t.Errorf("default output not written: %v", err)
	}
}

func TestAsmReportsSyntaxErrors(t *testing.T) {
	src := writeFile(t, t.TempDir(), "bad.kasm", ".func main 0\n  NOT_AN_OPCODE\n.end\n")
	code, _, stderr := kestrel(t, "asm", src)
	if code != 1 {
		t.Errorf("exit %d, want 1", code)
	}
	if !strings.Contains(stderr, "bad.kasm") {
		t.Errorf("stderr = %q", stderr)
	}
}

// ---------------------------------------------------------------------------
// config
// ---------------------------------------------------------------------------

func TestConfigCommand(t *testing.T) {
	cfg := writeFile(t, t.TempDir(), "kestrel.yaml", "heap:\n  max-bytes: 64 MiB\ninterpreter:\n  max-call-depth: 77\n")
	code, stdout, stderr := kestrel(t, "config", "-config", cfg)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	for _, want := range []string{"# " + cfg, "max-call-depth = 77", `max-bytes = "64 MiB"`} {
		if !strings.Contains(stdout, want) {
			t.Errorf("output missing %q:\n%s", want, stdout)
		}
	}
}

// ---------------------------------------------------------------------------
// Usage
// ---------------------------------------------------------------------------

func TestUsageErrors(t *testing.T) {
	dir := t.TempDir()
	txt := writeFile(t, dir, "notes.txt", "hello")
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"no command", nil, 2},
		{"unknown command", []string{"frobnicate"}, 2},
		{"help", []string{"help"}, 0},
		{"run without files", []string{"run"}, 2},
		{"run bad flag", []string{"run", "-nope"}, 2},
		{"run unknown type", []string{"run", txt}, 1},
		{"run missing file", []string{"run", filepath.Join(dir, "missing.kasm")}, 1},
		{"run bad config", []string{"run", "-config", txt, txt}, 1},
		{"asm without input", []string{"asm"}, 2},
		{"asm wrong type", []string{"asm", txt}, 2},
		{"dis without input", []string{"dis"}, 2},
		{"dis garbage", []string{"dis", txt}, 1},
		{"stats without db", []string{"stats"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _ := kestrel(t, tt.args...)
			if code != tt.want {
				t.Errorf("exit %d, want %d", code, tt.want)
			}
		})
	}
}
