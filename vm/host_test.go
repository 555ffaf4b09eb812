package vm

import (
	"errors"
	"io"
	"math"
	"math/big"
	"reflect"
	"testing"
)

// ---------------------------------------------------------------------------
// Native functions
// ---------------------------------------------------------------------------

func TestHostNativeErrorBecomesThrow(t *testing.T) {
	vm := newTestVM(t)
	if err := vm.RegisterFunction("readConfig", 0, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		return Undefined, io.ErrUnexpectedEOF
	}); err != nil {
		t.Fatal(err)
	}

	_, err := runAsm(t, vm, `
.func main 0
  GET_NAME readConfig
  UNDEFINED
  CALL 0
  RETURN
.end
`)
	var hostErr *HostError
	if !errors.As(err, &hostErr) {
		t.Fatalf("err = %v, want a HostError cause", err)
	}
	if hostErr.Function != "readConfig" || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("HostError = %+v", hostErr)
	}
	wantThrow(t, err, "Error")
}

func TestHostNativeErrorIsCatchable(t *testing.T) {
	vm := newTestVM(t)
	if err := vm.RegisterFunction("fail", 0, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		return Undefined, errors.New("disk on fire")
	}); err != nil {
		t.Fatal(err)
	}
	v := mustRun(t, vm, `
.func main 0
  .handler try end catch 0 0
try:
  GET_NAME fail
  UNDEFINED
  CALL 0
  RETURN
end:
catch:
  GET_PROP message
  RETURN
.end
`)
	wantString(t, vm, v, "fail: disk on fire")
}

func TestHostNativeThrowKeepsValue(t *testing.T) {
	vm := newTestVM(t)
	if err := vm.RegisterFunction("raise", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		return Undefined, &Throw{Value: Arg(args, 0)}
	}); err != nil {
		t.Fatal(err)
	}
	_, err := runAsm(t, vm, `
.func main 0
  GET_NAME raise
  UNDEFINED
  INT8 17
  CALL 1
  RETURN
.end
`)
	var th *Throw
	if !errors.As(err, &th) {
		t.Fatalf("err = %v", err)
	}
	wantNumber(t, th.Value, 17)
	if err.Error() != "Uncaught 17" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestHostNativeContextLookup(t *testing.T) {
	vm := newTestVM(t)
	if err := vm.RegisterFunction("peek", 0, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		v, ok := ctx.Lookup("secret")
		if !ok {
			return vm.NewString("missing"), nil
		}
		return v, nil
	}); err != nil {
		t.Fatal(err)
	}
	v := mustRun(t, vm, `
.scope locals secret
.func main 0
  .scope locals
  CONST "found"
  INIT_ENV 0 0
  GET_NAME peek
  UNDEFINED
  CALL 0
  RETURN
.end
`)
	wantString(t, vm, v, "found")
}

func TestHostNativeAllocationsAreRooted(t *testing.T) {
	vm := newTestVM(t)
	if err := vm.RegisterFunction("build", 0, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		first := vm.NewObject()
		if err := vm.Set(first, "tag", vm.NewString("first")); err != nil {
			return Undefined, err
		}
		for i := 0; i < 2000; i++ {
			vm.NewArray(Number(float64(i)))
		}
		vm.Collect() // a no-op while a native runs
		if !vm.IsAlive(first) {
			return Undefined, errors.New("temporary collected")
		}
		return first, nil
	}); err != nil {
		t.Fatal(err)
	}
	vm.Heap().SetPolicy(8<<10, 1.1, 0)
	v := mustRun(t, vm, `
.func main 0
  GET_NAME build
  UNDEFINED
  CALL 0
  GET_PROP tag
  RETURN
.end
`)
	wantString(t, vm, v, "first")
}

func TestHostCallAndConstruct(t *testing.T) {
	vm := newTestVM(t)
	fns := mustRun(t, vm, `
.func add 2
  GET_LOCAL 0
  GET_LOCAL 1
  ADD
  RETURN
.end
.func Box 1
  THIS
  GET_LOCAL 0
  SET_PROP value
  RETURN
.end
.func main 0
  NEW_OBJECT
  CLOSURE add
  DEFINE_PROP add
  CLOSURE Box
  DEFINE_PROP Box
  RETURN
.end
`)
	h := vm.Pin(fns)
	defer h.Release()

	add, _ := vm.Get(fns, "add")
	v, err := vm.Call(add, Undefined, Number(2), Number(3))
	if err != nil {
		t.Fatal(err)
	}
	wantNumber(t, v, 5)

	box, _ := vm.Get(fns, "Box")
	obj, err := vm.Construct(box, vm.NewString("x"))
	if err != nil {
		t.Fatal(err)
	}
	if !obj.IsObject() {
		t.Fatalf("Construct returned %s", obj.GoString())
	}
	got, _ := vm.Get(obj, "value")
	wantString(t, vm, got, "x")

	if _, err := vm.Call(Number(1), Undefined); err == nil {
		t.Error("calling a number succeeded")
	}
	if _, err := vm.Construct(add, Undefined); err != nil {
		t.Errorf("constructing a plain function: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Objects and conversions
// ---------------------------------------------------------------------------

func TestHostValuesSurviveIdentityCall(t *testing.T) {
	vm := newTestVM(t)
	id := mustRun(t, vm, `
.func id 1
  GET_LOCAL 0
  RETURN
.end
.func main 0
  CLOSURE id
  RETURN
.end
`)
	tests := []Value{
		Undefined,
		Null,
		False,
		Number(math.Copysign(0, -1)),
		NaN,
		vm.NewString("round trip"),
		vm.NewObject(),
		vm.NewArray(Number(1)),
		vm.NewSymbol("s"),
	}
	for _, v := range tests {
		got, err := vm.Call(id, Undefined, v)
		if err != nil {
			t.Fatalf("Call(%s): %v", v.GoString(), err)
		}
		if !vm.SameValue(got, v) {
			t.Errorf("Call(%s) = %s", v.GoString(), got.GoString())
		}
	}
}

func TestHostObjectAccess(t *testing.T) {
	vm := newTestVM(t)
	obj := vm.NewObject()
	for _, k := range []string{"zeta", "alpha", "2", "1"} {
		if err := vm.Set(obj, k, vm.NewString(k)); err != nil {
			t.Fatal(err)
		}
	}
	keys, err := vm.Keys(obj)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"zeta", "alpha", "2", "1"}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("Keys = %v, want %v", keys, want)
	}
	if _, err := vm.Keys(Number(1)); err == nil {
		t.Error("Keys on a number succeeded")
	}
	if _, err := vm.Get(Undefined, "x"); err == nil {
		t.Error("Get on undefined succeeded")
	}
}

func TestHostTypeOf(t *testing.T) {
	vm := newTestVM(t)
	tests := []struct {
		v    Value
		want string
	}{
		{Undefined, "undefined"},
		{Null, "object"},
		{True, "boolean"},
		{Number(1), "number"},
		{vm.NewString("s"), "string"},
		{vm.NewBigInt(big.NewInt(1)), "bigint"},
		{vm.NewSymbol("s"), "symbol"},
		{vm.NewObject(), "object"},
		{global(t, vm, "print"), "function"},
	}
	for _, tt := range tests {
		if got := vm.TypeOf(tt.v); got != tt.want {
			t.Errorf("TypeOf(%s) = %q, want %q", tt.v.GoString(), got, tt.want)
		}
	}
}

func TestHostConversions(t *testing.T) {
	vm := newTestVM(t)
	s, err := vm.ToString(Number(1e21))
	if err != nil || s != "1e+21" {
		t.Errorf("ToString(1e21) = %q, %v", s, err)
	}
	s, _ = vm.ToString(vm.NewSymbol("tag"))
	if s != "Symbol(tag)" {
		t.Errorf("ToString(symbol) = %q", s)
	}
	f, err := vm.ToNumber(vm.NewString("  0x1F  "))
	if err != nil || f != 31 {
		t.Errorf("ToNumber(hex) = %v, %v", f, err)
	}
	if _, err := vm.ToNumber(vm.NewSymbol("x")); err == nil {
		t.Error("ToNumber(symbol) succeeded")
	}
	if vm.ToBoolean(vm.NewString("")) || !vm.ToBoolean(vm.NewObject()) {
		t.Error("ToBoolean")
	}
	if got := vm.String(vm.NewObject()); got != "[object Object]" {
		t.Errorf("String(object) = %q", got)
	}
}

func TestHostBigInt(t *testing.T) {
	vm := newTestVM(t)
	n, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	v := vm.NewBigInt(n)
	n.SetInt64(0)
	got, ok := vm.BigIntValue(v)
	if !ok || got.String() != "123456789012345678901234567890" {
		t.Errorf("BigIntValue = %v, %v", got, ok)
	}
	if _, ok := vm.BigIntValue(Number(1)); ok {
		t.Error("BigIntValue accepted a number")
	}
}

func TestHostErrors(t *testing.T) {
	vm := newTestVM(t)
	e := vm.NewError(RangeError, "out of bounds")
	name, _ := vm.Get(e, "name")
	wantString(t, vm, name, "RangeError")
	isErr, err := vm.Call(global(t, vm, "Object", "prototype", "isPrototypeOf"),
		global(t, vm, "Error", "prototype"), e)
	if err != nil || isErr != True {
		t.Errorf("RangeError does not inherit Error.prototype: %v %v", isErr.GoString(), err)
	}
	s, _ := vm.ToString(e)
	if s != "RangeError: out of bounds" {
		t.Errorf("ToString = %q", s)
	}
}

// ---------------------------------------------------------------------------
// Host objects and finalizers
// ---------------------------------------------------------------------------

type fileHandle struct {
	name   string
	closed bool
}

func TestHostObjectFinalizer(t *testing.T) {
	vm := newTestVM(t)
	fh := &fileHandle{name: "data.db"}
	obj := vm.NewHostObject(fh, func(x any) { x.(*fileHandle).closed = true })

	got, ok := vm.HostValue(obj)
	if !ok || got != fh {
		t.Fatalf("HostValue = %v, %v", got, ok)
	}
	if vm.TypeOf(obj) != "object" {
		t.Errorf("TypeOf(host object) = %q", vm.TypeOf(obj))
	}

	h := vm.Pin(obj)
	vm.Collect()
	if fh.closed {
		t.Fatal("finalizer ran while pinned")
	}
	h.Release()
	vm.Collect()
	if !fh.closed {
		t.Error("finalizer did not run after release")
	}
}

func TestHostSetFinalizer(t *testing.T) {
	vm := newTestVM(t)
	if err := vm.SetFinalizer(Number(1), func() {}); err == nil {
		t.Error("SetFinalizer on a number succeeded")
	}
	obj := vm.NewObject()
	runs := 0
	if err := vm.SetFinalizer(obj, func() { runs++ }); err != nil {
		t.Fatal(err)
	}
	vm.Collect()
	vm.Collect()
	if runs != 1 {
		t.Errorf("finalizer ran %d times", runs)
	}
	if err := vm.SetFinalizer(obj, func() {}); err == nil {
		t.Error("SetFinalizer on a collected object succeeded")
	}
}

func TestHostWeakRef(t *testing.T) {
	vm := newTestVM(t)
	target := vm.NewObject()
	ref, err := vm.NewWeakRef(target)
	if err != nil {
		t.Fatal(err)
	}
	refHandle := vm.Pin(ref)
	defer refHandle.Release()
	targetHandle := vm.Pin(target)

	vm.Collect()
	if vm.Deref(ref) != target {
		t.Fatal("weak ref cleared while target pinned")
	}
	deref := method(t, vm, ref, "deref")
	if deref != target {
		t.Error("deref() returned a different value")
	}

	targetHandle.Release()
	vm.Collect()
	if !vm.Deref(ref).IsUndefined() {
		t.Error("weak ref kept its target alive")
	}
	if !method(t, vm, ref, "deref").IsUndefined() {
		t.Error("deref() after collection is not undefined")
	}

	if _, err := vm.NewWeakRef(Number(1)); err == nil {
		t.Error("weak ref to a number succeeded")
	}
}

func TestHostWeakRefConstructor(t *testing.T) {
	vm := newTestVM(t)
	ctor := global(t, vm, "WeakRef")
	if _, err := vm.Call(ctor, Undefined, vm.NewObject()); err == nil {
		t.Error("WeakRef without new succeeded")
	}
	_, err := vm.Construct(ctor, Number(3))
	wantThrow(t, err, "TypeError")
}

// ---------------------------------------------------------------------------
// Equality
// ---------------------------------------------------------------------------

func TestHostEquality(t *testing.T) {
	vm := newTestVM(t)
	negZero := Number(math.Copysign(0, -1))
	obj := vm.NewObject()

	if vm.StrictEquals(NaN, NaN) || !vm.SameValue(NaN, NaN) {
		t.Error("NaN equality")
	}
	if !vm.StrictEquals(negZero, Number(0)) || vm.SameValue(negZero, Number(0)) {
		t.Error("signed zero equality")
	}
	if !vm.StrictEquals(obj, obj) || vm.StrictEquals(obj, vm.NewObject()) {
		t.Error("object identity")
	}
	if !vm.StrictEquals(vm.NewBigInt(big.NewInt(5)), vm.NewBigInt(big.NewInt(5))) {
		t.Error("BigInts compare by value")
	}

	loose := []struct {
		a, b Value
		want bool
	}{
		{Null, Undefined, true},
		{Null, Number(0), false},
		{vm.NewString("1"), Number(1), true},
		{True, Number(1), true},
		{vm.NewBigInt(big.NewInt(2)), Number(2), true},
		{vm.NewBigInt(big.NewInt(2)), vm.NewString("2"), true},
		{vm.NewArray(Number(3)), vm.NewString("3"), true},
		{NaN, NaN, false},
	}
	for i, tt := range loose {
		got, err := vm.Equals(tt.a, tt.b)
		if err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		if got != tt.want {
			t.Errorf("case %d: %s == %s is %v, want %v", i, tt.a.GoString(), tt.b.GoString(), got, tt.want)
		}
	}
}
