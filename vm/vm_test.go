package vm

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/chazu/kestrel/config"
	"github.com/chazu/kestrel/pkg/asm"
	"github.com/chazu/kestrel/pkg/intern"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTestVM(t *testing.T, opts ...Option) *VM {
	t.Helper()
	vm := NewVM(append([]Option{WithStdout(&bytes.Buffer{})}, opts...)...)
	t.Cleanup(vm.Shutdown)
	return vm
}

func loadAsm(t *testing.T, vm *VM, src string) *Script {
	t.Helper()
	prog, err := asm.Assemble(src)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	s, err := vm.Load(prog)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return s
}

func runAsm(t *testing.T, vm *VM, src string) (Value, error) {
	t.Helper()
	return vm.Run(loadAsm(t, vm, src))
}

func mustRun(t *testing.T, vm *VM, src string) Value {
	t.Helper()
	v, err := runAsm(t, vm, src)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return v
}

func wantNumber(t *testing.T, v Value, want float64) {
	t.Helper()
	if !v.IsNumber() || v.Float64() != want {
		t.Errorf("got %s, want %v", v.GoString(), want)
	}
}

func wantString(t *testing.T, vm *VM, v Value, want string) {
	t.Helper()
	if !v.IsString() {
		t.Errorf("got %s, want string %q", v.GoString(), want)
		return
	}
	if got := vm.goString(v); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

// wantThrow asserts err is an uncaught throw of the named error type.
func wantThrow(t *testing.T, err error, name string) *Throw {
	t.Helper()
	var th *Throw
	if !errors.As(err, &th) {
		t.Fatalf("error %v is not a throw", err)
	}
	if th.Name != name {
		t.Errorf("thrown %s (%s), want %s", th.Name, th.Message, name)
	}
	return th
}

// method looks up obj[name] and calls it with obj as receiver.
func method(t *testing.T, vm *VM, obj Value, name string, args ...Value) Value {
	t.Helper()
	fn, err := vm.Get(obj, name)
	if err != nil {
		t.Fatalf("Get %s: %v", name, err)
	}
	v, err := vm.Call(fn, obj, args...)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return v
}

// global reads a property path from the global object.
func global(t *testing.T, vm *VM, path ...string) Value {
	t.Helper()
	v := vm.Global()
	for _, p := range path {
		var err error
		if v, err = vm.Get(v, p); err != nil {
			t.Fatalf("Get %s: %v", p, err)
		}
	}
	return v
}

const answerProgram = `
.func main 0
  INT8 42
  RETURN
.end
`

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func TestVMRunSimpleProgram(t *testing.T) {
	vm := newTestVM(t)
	wantNumber(t, mustRun(t, vm, answerProgram), 42)
	wantNumber(t, vm.LastResult(), 42)
	if !vm.LastThrown().IsUndefined() {
		t.Errorf("LastThrown = %s, want undefined", vm.LastThrown().GoString())
	}
}

func TestVMScriptRunsRepeatedly(t *testing.T) {
	vm := newTestVM(t)
	s := loadAsm(t, vm, answerProgram)
	for i := 0; i < 3; i++ {
		v, err := vm.Run(s)
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		wantNumber(t, v, 42)
	}
}

func TestVMForeignScript(t *testing.T) {
	a := newTestVM(t)
	b := newTestVM(t)
	s := loadAsm(t, a, answerProgram)
	if _, err := b.Run(s); !errors.Is(err, ErrForeignScript) {
		t.Errorf("Run on foreign VM: err = %v, want ErrForeignScript", err)
	}
}

func TestVMShutdown(t *testing.T) {
	vm := NewVM(WithStdout(&bytes.Buffer{}))
	s := loadAsm(t, vm, answerProgram)

	finalized := 0
	obj := vm.NewHostObject("resource", func(any) { finalized++ })
	vm.Pin(obj)

	vm.Shutdown()
	if finalized != 1 {
		t.Errorf("finalizer ran %d times at shutdown, want 1", finalized)
	}
	if _, err := vm.Run(s); !errors.Is(err, ErrClosed) {
		t.Errorf("Run after Shutdown: err = %v, want ErrClosed", err)
	}
	vm.Shutdown()
	if finalized != 1 {
		t.Errorf("second Shutdown ran finalizers again")
	}
}

func TestVMPrint(t *testing.T) {
	var out bytes.Buffer
	vm := newTestVM(t, WithStdout(&out))
	mustRun(t, vm, `
.func main 0
  GET_NAME print
  UNDEFINED
  CONST "answer"
  INT8 42
  CONST 10n
  CALL 3
  RETURN
.end
`)
	if got := out.String(); got != "answer 42 10n\n" {
		t.Errorf("print wrote %q", got)
	}
}

// ---------------------------------------------------------------------------
// Isolation
// ---------------------------------------------------------------------------

func TestVMGlobalsAreIsolated(t *testing.T) {
	a := newTestVM(t)
	b := newTestVM(t)

	if err := a.RegisterValue("shared", Number(1)); err != nil {
		t.Fatal(err)
	}
	_, err := runAsm(t, b, `
.func main 0
  GET_NAME shared
  RETURN
.end
`)
	wantThrow(t, err, "ReferenceError")
}

func TestVMSharedInterner(t *testing.T) {
	table := intern.NewTable()
	a := newTestVM(t, WithInterner(table))
	b := newTestVM(t, WithInterner(table))
	if a.NewString("kestrel") != b.NewString("kestrel") {
		t.Error("VMs sharing an interner produced different handles for the same string")
	}
}

func TestVMParallelExecution(t *testing.T) {
	const workers = 8
	src := `
.func main 0
  .locals 2
  INT8 0
  SET_LOCAL 0
  POP
  INT8 0
  SET_LOCAL 1
  POP
loop:
  GET_LOCAL 1
  CONST 1000
  LT
  JUMP_IF_FALSE done
  GET_LOCAL 0
  GET_LOCAL 1
  ADD
  SET_LOCAL 0
  POP
  GET_LOCAL 1
  INC
  SET_LOCAL 1
  POP
  NEW_OBJECT
  POP
  JUMP loop
done:
  GET_LOCAL 0
  RETURN
.end
`
	prog, err := asm.Assemble(src)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			vm := NewVM(WithStdout(&bytes.Buffer{}), WithHeapPolicy(64<<10, 2, 0))
			defer vm.Shutdown()
			s, err := vm.Load(prog)
			if err != nil {
				errs <- err
				return
			}
			v, err := vm.Run(s)
			if err != nil {
				errs <- err
				return
			}
			if v.Float64() != 499500 {
				errs <- fmt.Errorf("sum = %v", v.Float64())
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

// ---------------------------------------------------------------------------
// Pinning
// ---------------------------------------------------------------------------

func TestVMPinKeepsValuesAlive(t *testing.T) {
	vm := newTestVM(t)
	obj := vm.NewObject()
	h := vm.Pin(obj)

	vm.Collect()
	if !vm.IsAlive(obj) {
		t.Fatal("pinned object was collected")
	}
	if h.Value() != obj {
		t.Error("handle returned a different value")
	}

	h.Release()
	h.Release()
	if vm.Pinned() != 0 {
		t.Errorf("Pinned = %d after release, want 0", vm.Pinned())
	}
	vm.Collect()
	if vm.IsAlive(obj) {
		t.Error("released object survived collection")
	}
	if !h.Value().IsUndefined() {
		t.Error("released handle still returns its value")
	}
}

func TestVMWithConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Heap.InitialThreshold = 4 << 20
	cfg.Heap.Growth = 3
	cfg.Heap.MaxBytes = 64 << 20
	cfg.Interpreter.MaxCallDepth = 50
	cfg.Interpreter.StackSize = 2048

	vm := newTestVM(t, WithConfig(cfg))
	if vm.maxDepth != 50 {
		t.Errorf("maxDepth = %d, want 50", vm.maxDepth)
	}
	if len(vm.stack) != 2048 {
		t.Errorf("stack size = %d, want 2048", len(vm.stack))
	}
	h := vm.Heap()
	if h.minThreshold != 4<<20 || h.growth != 3 || h.maxBytes != 64<<20 {
		t.Errorf("heap policy = %d/%g/%d", h.minThreshold, h.growth, h.maxBytes)
	}

	// Zero settings keep the defaults.
	vm = newTestVM(t, WithConfig(&config.Config{}))
	if vm.maxDepth != DefaultMaxCallDepth || len(vm.stack) != DefaultStackSize {
		t.Errorf("zero config changed limits: depth=%d stack=%d", vm.maxDepth, len(vm.stack))
	}
	if vm.Heap().minThreshold != DefaultMinThreshold {
		t.Errorf("zero config changed threshold: %d", vm.Heap().minThreshold)
	}
	newTestVM(t, WithConfig(nil))
}
