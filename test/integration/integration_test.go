package integration_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/kestrel/config"
	"github.com/chazu/kestrel/pkg/asm"
	"github.com/chazu/kestrel/pkg/bytecode"
	"github.com/chazu/kestrel/vm"
	"github.com/chazu/kestrel/vm/dist"
)

// ---------------------------------------------------------------------------
// Integration test helpers
// ---------------------------------------------------------------------------

const examplesDir = "../../examples"

// assembleExample reads and assembles examples/<name>.kasm.
func assembleExample(t *testing.T, name string) *bytecode.Program {
	t.Helper()
	src, err := os.ReadFile(filepath.Join(examplesDir, name+".kasm"))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	prog, err := asm.Assemble(string(src))
	if err != nil {
		t.Fatalf("assemble %s: %v", name, err)
	}
	return prog
}

// runProgram executes prog in a fresh engine and returns what it printed,
// its result and the engine.
func runProgram(t *testing.T, prog *bytecode.Program, opts ...vm.Option) (string, vm.Value, *vm.VM) {
	t.Helper()
	var out bytes.Buffer
	vmInst := vm.NewVM(append([]vm.Option{vm.WithStdout(&out)}, opts...)...)
	t.Cleanup(vmInst.Shutdown)

	script, err := vmInst.Load(prog)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	result, err := vmInst.Run(script)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return out.String(), result, vmInst
}

// ---------------------------------------------------------------------------
// Example programs
// ---------------------------------------------------------------------------

func TestIntegrationE2E_Examples(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"factorial", "3628800\n"},
		{"counter", "count 3\n"},
		{"exceptions", "TypeError bad input\n"},
		{"generator", "1\n2\n3\n"},
		{"garbage", "allocated 20000\n"},
		{"json", `{"name":"kestrel","list":[1,2,3]}` + "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, _ := runProgram(t, assembleExample(t, tt.name))
			if out != tt.want {
				t.Errorf("output = %q, want %q", out, tt.want)
			}
		})
	}
}

// Every example behaves the same after a trip through the binary format.
func TestIntegrationE2E_BinaryRoundTrip(t *testing.T) {
	entries, err := os.ReadDir(examplesDir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".kasm")
		if !ok {
			continue
		}
		t.Run(name, func(t *testing.T) {
			prog := assembleExample(t, name)
			want, _, _ := runProgram(t, prog)

			data, err := bytecode.Marshal(prog)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			decoded, err := bytecode.Unmarshal(data)
			if err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if decoded.Disassemble() != prog.Disassemble() {
				t.Error("disassembly differs after round trip")
			}
			got, _, _ := runProgram(t, decoded)
			if got != want {
				t.Errorf("output = %q, want %q", got, want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Collector under configuration
// ---------------------------------------------------------------------------

func TestIntegrationE2E_GarbageIsCollected(t *testing.T) {
	cfg := config.Default()
	cfg.Heap.InitialThreshold = 16 << 10
	cfg.Heap.Growth = 1.5

	var cycles []vm.CollectStats
	out, _, vmInst := runProgram(t, assembleExample(t, "garbage"),
		vm.WithConfig(cfg),
		vm.WithCollectHook(func(s vm.CollectStats) { cycles = append(cycles, s) }))

	if out != "allocated 20000\n" {
		t.Errorf("output = %q", out)
	}
	if len(cycles) == 0 {
		t.Fatal("no collection ran under a 16 KiB threshold")
	}
	var swept int
	for _, c := range cycles {
		swept += c.Swept
	}
	if swept == 0 {
		t.Error("collections reclaimed nothing")
	}
	if live := vmInst.Heap().Bytes(); live > 4<<20 {
		t.Errorf("heap holds %d bytes after the loop", live)
	}
}

func TestIntegrationE2E_HeapLimit(t *testing.T) {
	cfg := config.Default()
	cfg.Heap.MaxBytes = 4 << 20

	// Like the garbage example, but every allocation stays reachable.
	prog, err := asm.Assemble(`
.func main 0
  .locals 1
  NEW_ARRAY 0
  SET_LOCAL 0
  POP
loop:
  GET_LOCAL 0
  DUP
  GET_PROP push
  SWAP
  NEW_OBJECT
  CALL 1
  POP
  JUMP loop
.end
`)
	if err != nil {
		t.Fatal(err)
	}
	vmInst := vm.NewVM(vm.WithConfig(cfg))
	defer vmInst.Shutdown()
	script, err := vmInst.Load(prog)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := vmInst.Run(script); !vm.IsFatal(err) {
		t.Fatalf("err = %v, want a fatal out-of-memory condition", err)
	}
}

// ---------------------------------------------------------------------------
// Values across engines
// ---------------------------------------------------------------------------

func TestIntegrationE2E_TransferResult(t *testing.T) {
	prog, err := asm.Assemble(`
.func main 0
  NEW_OBJECT
  CONST "kestrel"
  DEFINE_PROP name
  INT8 1
  INT8 2
  NEW_ARRAY 2
  DEFINE_PROP list
  RETURN
.end
`)
	if err != nil {
		t.Fatal(err)
	}
	_, result, src := runProgram(t, prog)

	snap, err := dist.Capture(src, result)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	data, err := dist.Marshal(snap)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	decoded, err := dist.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	dst := vm.NewVM()
	defer dst.Shutdown()
	got, err := dist.Restore(dst, decoded, dist.NewRestrictedPolicy(10, 1024))
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	s, err := dst.ToJSON(got, "")
	if err != nil {
		t.Fatal(err)
	}
	if s != `{"name":"kestrel","list":[1,2]}` {
		t.Errorf("restored %s", s)
	}
}
