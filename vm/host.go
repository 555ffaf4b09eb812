package vm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
)

// ---------------------------------------------------------------------------
// Execution boundary
// ---------------------------------------------------------------------------

// ErrForeignScript is returned when a Script is run on a VM other than the
// one that loaded it.
var ErrForeignScript = errors.New("vm: script was loaded into a different VM")

// host runs fn at an execution boundary. Throws and fatal conditions
// raised inside fn are returned as errors after the interpreter state is
// restored to what it was on entry. The outermost boundary also resets
// the per-execution state: the heap limit applies only inside it and a
// pending interrupt is cleared when it exits.
func (vm *VM) host(fn func()) (err error) {
	if vm.closed {
		return ErrClosed
	}
	outer := vm.depth == 0
	if outer {
		vm.fatal = nil
		vm.heap.enforce = true
	}
	vm.depth++
	defer func() {
		vm.depth--
		if outer {
			vm.heap.enforce = false
			vm.interrupted.Store(false)
			vm.fatal = nil
		}
	}()

	base, frames := vm.sp, len(vm.frames)
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		for len(vm.frames) > frames {
			if f := vm.popFrame(); f.gen != nil {
				f.gen.finish()
			}
		}
		vm.sp = base
		switch x := r.(type) {
		case *Throw:
			vm.describeThrow(x)
			vm.keepAlive(x.Value)
			if outer {
				vm.lastThrown = x.Value
			}
			err = x
		case fatalSignal:
			if !outer {
				vm.fatal = x.err
			}
			vm.log.Warningf("vm %s: %v", vm.ID, x.err)
			err = x.err
		default:
			panic(r)
		}
	}()

	fn()
	return nil
}

// callValue calls fn from inside an execution, re-raising its throw.
func (vm *VM) callValue(fn, this Value, args []Value, construct bool) Value {
	v, err := vm.invoke(fn, this, args, construct)
	if err != nil {
		vm.raise(err, "")
	}
	return v
}

// withContext runs exec with ctx cancellation mapped onto Interrupt.
func (vm *VM) withContext(ctx context.Context, exec func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, vm.Interrupt)
	err := exec()
	stop()
	if errors.Is(err, ErrTerminated) && ctx.Err() != nil {
		return fmt.Errorf("%w: %w", err, context.Cause(ctx))
	}
	return err
}

// ---------------------------------------------------------------------------
// Running code
// ---------------------------------------------------------------------------

// Run executes the script's top-level function with the global object as
// receiver. An uncaught throw is returned as a *Throw; fatal conditions
// are returned as errors satisfying errors.Is(err, ErrFatal). The VM
// remains usable afterwards in both cases.
func (vm *VM) Run(s *Script) (result Value, err error) {
	if s.vm != vm {
		return Undefined, ErrForeignScript
	}
	result = Undefined
	err = vm.host(func() {
		if vm.depth == 1 {
			vm.lastResult, vm.lastThrown = Undefined, Undefined
		}
		closure := vm.makeClosure(s, s.program.EntryFunction(), vm.globalEnv, vm.global)
		result = vm.callValue(closure, vm.global, nil, false)
		if vm.depth == 1 {
			vm.lastResult = result
		}
	})
	return result, err
}

// RunContext is Run with cancellation: when ctx is done the execution is
// interrupted at its next safe point.
func (vm *VM) RunContext(ctx context.Context, s *Script) (result Value, err error) {
	err = vm.withContext(ctx, func() error {
		var err error
		result, err = vm.Run(s)
		return err
	})
	return result, err
}

// Call invokes fn with the given receiver and arguments.
func (vm *VM) Call(fn, this Value, args ...Value) (result Value, err error) {
	result = Undefined
	err = vm.host(func() {
		result = vm.callValue(fn, this, args, false)
	})
	return result, err
}

// CallContext is Call with cancellation.
func (vm *VM) CallContext(ctx context.Context, fn, this Value, args ...Value) (result Value, err error) {
	err = vm.withContext(ctx, func() error {
		var err error
		result, err = vm.Call(fn, this, args...)
		return err
	})
	return result, err
}

// Construct applies new to ctor.
func (vm *VM) Construct(ctor Value, args ...Value) (result Value, err error) {
	result = Undefined
	err = vm.host(func() {
		result = vm.callValue(ctor, Undefined, args, true)
	})
	return result, err
}

// Resume continues a suspended generator or coroutine identified by
// token, the object a call to a generator or async function returned.
// done reports completion; otherwise the result is the value the code
// suspended with (the operand of its yield or await).
func (vm *VM) Resume(token Value, mode ResumeMode, v Value) (result Value, done bool, err error) {
	result = Undefined
	err = vm.host(func() {
		result, done = vm.resume(token, mode, v)
	})
	return result, done, err
}

// LastResult returns the result of the most recent top-level execution.
func (vm *VM) LastResult() Value { return vm.lastResult }

// LastThrown returns the uncaught value of the most recent top-level
// execution, or undefined.
func (vm *VM) LastThrown() Value { return vm.lastThrown }

// ---------------------------------------------------------------------------
// Registration
// ---------------------------------------------------------------------------

// RegisterFunction defines a global native function.
func (vm *VM) RegisterFunction(name string, arity int, fn NativeFunc) error {
	return vm.host(func() {
		vm.defineOwn(vm.object(vm.global), vm.str(name), vm.newNative(name, arity, fn), attrHidden)
	})
}

// RegisterValue defines a global binding.
func (vm *VM) RegisterValue(name string, v Value) error {
	return vm.host(func() {
		vm.defineOwn(vm.object(vm.global), vm.str(name), v, attrWritable|attrConfigurable)
	})
}

// Bind converts a Go value with FromGo and registers it as a global.
// Go functions become native functions.
func (vm *VM) Bind(name string, x any) error {
	v, err := vm.FromGo(x)
	if err != nil {
		return fmt.Errorf("bind %s: %w", name, err)
	}
	return vm.RegisterValue(name, v)
}

// ---------------------------------------------------------------------------
// Pinned handles
// ---------------------------------------------------------------------------

// Handle keeps a value alive for the host. Values held in Go variables
// are invisible to the collector: anything the host keeps across
// executions must be pinned.
type Handle struct {
	vm *VM
	id uint64
}

// Pin roots v until the handle is released.
func (vm *VM) Pin(v Value) *Handle {
	vm.nextPin++
	if vm.pins != nil {
		vm.pins[vm.nextPin] = v
	}
	return &Handle{vm: vm, id: vm.nextPin}
}

// Value returns the pinned value, or undefined after Release.
func (h *Handle) Value() Value {
	if v, ok := h.vm.pins[h.id]; ok {
		return v
	}
	return Undefined
}

// Release unpins the value. Releasing twice is a no-op.
func (h *Handle) Release() {
	delete(h.vm.pins, h.id)
}

// Pinned returns the number of live handles.
func (vm *VM) Pinned() int {
	return len(vm.pins)
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

// NewObject creates an empty ordinary object.
func (vm *VM) NewObject() Value {
	return vm.newOrdinary()
}

// NewArray creates an array holding elems.
func (vm *VM) NewArray(elems ...Value) Value {
	return vm.newArray(elems)
}

// NewString interns s.
func (vm *VM) NewString(s string) Value {
	return vm.str(s)
}

// NewBigInt creates a BigInt holding a copy of n.
func (vm *VM) NewBigInt(n *big.Int) Value {
	return vm.newBigInt(new(big.Int).Set(n))
}

// NewSymbol creates a unique symbol.
func (vm *VM) NewSymbol(description string) Value {
	return vm.newSymbol(vm.str(description))
}

// NewError creates an Error object of the given kind.
func (vm *VM) NewError(kind ErrorKind, message string) Value {
	if kind >= numErrorKinds {
		kind = errPlain
	}
	return vm.newError(kind, message)
}

// NewHostObject wraps a Go value. If finalizer is non-nil it runs with x
// once the object has been collected, or at Shutdown.
func (vm *VM) NewHostObject(x any, finalizer func(any)) Value {
	v := vm.newObjectKind(ObjectHost, vm.intrinsics.hostProto, &hostData{value: x})
	if finalizer != nil {
		vm.heap.setFinalizer(v.ref(), func() { finalizer(x) })
	}
	return v
}

// NewSet creates a Set holding values in order. Duplicates under
// SameValueZero are dropped.
func (vm *VM) NewSet(values ...Value) Value {
	set := vm.newCollection(ObjectSet, vm.intrinsics.setProto)
	c := vm.object(set).internal.(*collectionData)
	for _, v := range values {
		v = normalizeZero(v)
		c.set(vm.collectionKey(v), v, v)
	}
	vm.updateSize(set, c)
	return set
}

// NewMap creates an empty Map.
func (vm *VM) NewMap() Value {
	return vm.newCollection(ObjectMap, vm.intrinsics.mapProto)
}

// CollectionAdd adds key to a Set, or sets key to value in a Map.
func (vm *VM) CollectionAdd(coll, key, value Value) error {
	o := vm.asObject(coll)
	if o == nil || (o.kind != ObjectSet && o.kind != ObjectMap) {
		return fmt.Errorf("collection add: %s is not a Set or Map", coll.GoString())
	}
	return vm.host(func() {
		c := o.internal.(*collectionData)
		key = normalizeZero(key)
		if o.kind == ObjectSet {
			value = key
		}
		if c.set(vm.collectionKey(key), key, value) {
			vm.heap.reserve(48)
			vm.updateSize(coll, c)
		}
	})
}

// CollectionEntries returns the keys and values of a Set or Map in
// insertion order. For a Set both slices hold the elements.
func (vm *VM) CollectionEntries(coll Value) (keys, values []Value, err error) {
	o := vm.asObject(coll)
	if o == nil || (o.kind != ObjectSet && o.kind != ObjectMap) {
		return nil, nil, fmt.Errorf("collection entries: %s is not a Set or Map", coll.GoString())
	}
	for _, e := range o.internal.(*collectionData).entries {
		if e.key != hole {
			keys = append(keys, e.key)
			values = append(values, e.value)
		}
	}
	return keys, values, nil
}

// ---------------------------------------------------------------------------
// Inspection
// ---------------------------------------------------------------------------

// Get reads obj[key].
func (vm *VM) Get(obj Value, key string) (result Value, err error) {
	result = Undefined
	err = vm.host(func() {
		result = vm.getProperty(obj, vm.str(key))
	})
	return result, err
}

// Set performs obj[key] = v with strict semantics.
func (vm *VM) Set(obj Value, key string, v Value) error {
	return vm.host(func() {
		vm.setProperty(obj, vm.str(key), v, true)
	})
}

// Keys returns the enumerable own string keys of obj in order.
func (vm *VM) Keys(obj Value) ([]string, error) {
	o := vm.asObject(obj)
	if o == nil {
		return nil, errNotObject("keys", obj)
	}
	var keys []string
	for _, k := range vm.ownKeys(o, true, false) {
		keys = append(keys, vm.goString(k))
	}
	return keys, nil
}

// TypeOf returns the typeof string of v.
func (vm *VM) TypeOf(v Value) string {
	return vm.goString(vm.typeOf(v))
}

// ToString converts v like String(v) does.
func (vm *VM) ToString(v Value) (s string, err error) {
	err = vm.host(func() {
		if v.IsSymbol() {
			s = vm.symbolDescriptiveString(v)
			return
		}
		s = vm.goString(vm.toString(v))
	})
	return s, err
}

// ToNumber converts v like Number(v) does.
func (vm *VM) ToNumber(v Value) (f float64, err error) {
	err = vm.host(func() {
		f = vm.toNumber(v)
	})
	return f, err
}

// ToBoolean returns the truthiness of v.
func (vm *VM) ToBoolean(v Value) bool {
	return vm.toBoolean(v)
}

// String renders v for diagnostics without running user code.
func (vm *VM) String(v Value) string {
	return vm.safeString(v)
}

// HostValue returns the Go value wrapped by a host object.
func (vm *VM) HostValue(v Value) (any, bool) {
	if o := vm.asObject(v); o != nil {
		if d, ok := o.internal.(*hostData); ok {
			return d.value, true
		}
	}
	return nil, false
}

// BigIntValue returns a copy of the integer held by a BigInt value.
func (vm *VM) BigIntValue(v Value) (*big.Int, bool) {
	if !v.IsBigInt() {
		return nil, false
	}
	return new(big.Int).Set(vm.bigInt(v)), true
}

// IsAlive reports whether a heap value still exists. Primitives without a
// heap cell are always alive.
func (vm *VM) IsAlive(v Value) bool {
	if r, ok := v.heapRef(); ok {
		return vm.heap.alive(r)
	}
	return true
}

// SetFinalizer attaches fn to run exactly once, immediately before the
// object is reclaimed. fn must not retain or resurrect the object.
func (vm *VM) SetFinalizer(v Value, fn func()) error {
	r, ok := v.heapRef()
	if !ok || !vm.heap.alive(r) {
		return fmt.Errorf("set finalizer: %s is not a live heap value", v.GoString())
	}
	vm.heap.setFinalizer(r, fn)
	return nil
}

// IsArray reports whether v is an array.
func (vm *VM) IsArray(v Value) bool {
	o := vm.asObject(v)
	return o != nil && o.kind == ObjectArray
}

// IsCallable reports whether v is a function.
func (vm *VM) IsCallable(v Value) bool {
	o := vm.asObject(v)
	return o != nil && o.isCallable()
}

// IsSet reports whether v is a Set.
func (vm *VM) IsSet(v Value) bool {
	o := vm.asObject(v)
	return o != nil && o.kind == ObjectSet
}

// IsMap reports whether v is a Map.
func (vm *VM) IsMap(v Value) bool {
	o := vm.asObject(v)
	return o != nil && o.kind == ObjectMap
}

// IsError reports whether v was created by an Error constructor.
func (vm *VM) IsError(v Value) bool {
	o := vm.asObject(v)
	return o != nil && o.kind == ObjectError
}

// ErrorKindOf returns the kind named by an error name such as "TypeError".
// Unknown names map to PlainError.
func ErrorKindOf(name string) ErrorKind {
	for k, n := range errorNames {
		if n == name {
			return ErrorKind(k)
		}
	}
	return PlainError
}
