package vm

import (
	"github.com/chazu/kestrel/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Function object layouts
// ---------------------------------------------------------------------------

// closureData is the internal state of an interpreted function: the
// compiled body and the environment it closes over.
type closureData struct {
	script *Script
	fn     *bytecode.Function
	env    Ref
	this   Value // receiver captured by arrow functions
}

func (d *closureData) trace(m *marker) {
	m.ref(d.env)
	m.value(d.this)
}

// NativeFunc is a host function callable from interpreted code. Returning
// a non-nil error throws it into the calling code; a *Throw error throws
// its value unchanged.
type NativeFunc func(ctx *NativeContext, this Value, args []Value) (Value, error)

type nativeData struct {
	name        string
	fn          NativeFunc
	constructor bool
}

func (d *nativeData) trace(m *marker) {}

// boundData is the state of a function created by bind.
type boundData struct {
	target Value
	this   Value
	args   []Value
}

func (d *boundData) trace(m *marker) {
	m.value(d.target)
	m.value(d.this)
	m.values(d.args)
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

// makeClosure creates a function object for fn closing over env. Ordinary
// functions get a fresh prototype object; generator functions get one
// inheriting from the generator prototype.
func (vm *VM) makeClosure(script *Script, fn *bytecode.Function, env Ref, this Value) Value {
	data := &closureData{script: script, fn: fn, env: env}
	if fn.Kind == bytecode.KindArrow {
		data.this = this
	}
	v := vm.newObjectKind(ObjectFunction, vm.intrinsics.functionProto, data)
	o := vm.object(v)
	vm.defineOwn(o, vm.names.name, vm.str(fn.Name), attrConfigurable)
	vm.defineOwn(o, vm.names.length, Number(float64(fn.NumParams)), attrConfigurable)

	switch fn.Kind {
	case bytecode.KindNormal:
		proto := vm.newOrdinary()
		vm.defineOwn(vm.object(proto), vm.names.constructor, v, attrHidden)
		vm.defineOwn(o, vm.names.prototype, proto, attrWritable)
	case bytecode.KindGenerator:
		proto := vm.newObjectKind(ObjectOrdinary, vm.intrinsics.generatorProto, nil)
		vm.defineOwn(o, vm.names.prototype, proto, attrWritable)
	}
	return v
}

// newNative creates a native function object.
func (vm *VM) newNative(name string, arity int, fn NativeFunc) Value {
	v := vm.newObjectKind(ObjectNative, vm.intrinsics.functionProto, &nativeData{name: name, fn: fn})
	o := vm.object(v)
	vm.defineOwn(o, vm.names.name, vm.str(name), attrConfigurable)
	vm.defineOwn(o, vm.names.length, Number(float64(arity)), attrConfigurable)
	return v
}

// newConstructor creates a native function usable with new, wiring its
// prototype property and the prototype's constructor back-link.
func (vm *VM) newConstructor(name string, arity int, proto Value, fn NativeFunc) Value {
	v := vm.newNative(name, arity, fn)
	o := vm.object(v)
	o.internal.(*nativeData).constructor = true
	vm.defineOwn(o, vm.names.prototype, proto, 0)
	vm.defineOwn(vm.object(proto), vm.names.constructor, v, attrHidden)
	return v
}

// bind creates a bound function.
func (vm *VM) bind(target, this Value, args []Value) Value {
	t := vm.object(target)
	v := vm.newObjectKind(ObjectBound, t.proto, &boundData{
		target: target,
		this:   this,
		args:   append([]Value(nil), args...),
	})
	o := vm.object(v)
	name := "bound " + vm.functionName(t)
	length := 0
	if l := vm.getFrom(target, t, vm.names.length); l.IsNumber() {
		length = max(0, int(l.Float64())-len(args))
	}
	vm.defineOwn(o, vm.names.name, vm.str(name), attrConfigurable)
	vm.defineOwn(o, vm.names.length, Number(float64(length)), attrConfigurable)
	return v
}

// ---------------------------------------------------------------------------
// Inspection
// ---------------------------------------------------------------------------

// isConstructor reports whether new may be applied to o.
func (vm *VM) isConstructor(o *Object) bool {
	switch d := o.internal.(type) {
	case *closureData:
		return d.fn.Kind == bytecode.KindNormal
	case *nativeData:
		return d.constructor
	case *boundData:
		return vm.isConstructor(vm.object(d.target))
	}
	return false
}

// functionName returns the name of a callable object without running
// user code.
func (vm *VM) functionName(o *Object) string {
	if p := o.props.get(vm.names.name); p != nil && p.value.IsString() {
		return vm.goString(p.value)
	}
	switch d := o.internal.(type) {
	case *closureData:
		return d.fn.Name
	case *nativeData:
		return d.name
	}
	return ""
}

// classOf returns the class tag used by Object.prototype.toString.
func (vm *VM) classOf(o *Object) string {
	return o.kind.String()
}

// symbolDescriptiveString renders a symbol as Symbol(description).
func (vm *VM) symbolDescriptiveString(v Value) string {
	d := vm.symbol(v).description
	if d.IsString() {
		return "Symbol(" + vm.goString(d) + ")"
	}
	return "Symbol()"
}
