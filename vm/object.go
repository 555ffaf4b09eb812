package vm

import (
	"fmt"
	"math/big"
)

// ObjectKind discriminates the internal layout of an Object.
type ObjectKind uint8

const (
	ObjectOrdinary  ObjectKind = iota
	ObjectArray                // indexed elements with a tracked length
	ObjectFunction             // closure over a bytecode function
	ObjectNative               // host-implemented function
	ObjectBound                // result of Function.prototype.bind
	ObjectError                // Error and its subclasses
	ObjectGenerator            // generator or async coroutine state
	ObjectHost                 // wraps an arbitrary Go value
	ObjectWeakRef              // holds its target weakly
	ObjectSet                  // insertion-ordered unique values
	ObjectMap                  // insertion-ordered key/value pairs
)

var objectKindNames = [...]string{
	ObjectOrdinary:  "Object",
	ObjectArray:     "Array",
	ObjectFunction:  "Function",
	ObjectNative:    "Function",
	ObjectBound:     "Function",
	ObjectError:     "Error",
	ObjectGenerator: "Generator",
	ObjectHost:      "HostObject",
	ObjectWeakRef:   "WeakRef",
	ObjectSet:       "Set",
	ObjectMap:       "Map",
}

func (k ObjectKind) String() string {
	if int(k) < len(objectKindNames) {
		return objectKindNames[k]
	}
	return fmt.Sprintf("ObjectKind(%d)", k)
}

// internalSlots holds kind-specific state and traces any references in it.
type internalSlots interface {
	trace(m *marker)
}

// Object is a heap object: an ordered property map, a prototype link and
// optional kind-specific internal slots.
type Object struct {
	kind       ObjectKind
	proto      Value // Null or an object
	props      propertyMap
	extensible bool
	frozen     bool             // elements are read-only
	elements   []Value          // ObjectArray only; hole marks a missing element
	sparse     map[uint32]Value // ObjectArray elements past the dense prefix
	length     uint32           // ObjectArray only
	internal   internalSlots
}

func (o *Object) trace(m *marker) {
	m.value(o.proto)
	o.props.trace(m)
	for _, v := range o.elements {
		if v != hole {
			m.value(v)
		}
	}
	for _, v := range o.sparse {
		m.value(v)
	}
	if o.internal != nil {
		o.internal.trace(m)
	}
}

func (o *Object) size() int {
	n := 64 + o.props.size() + 8*cap(o.elements) + 24*len(o.sparse)
	if c, ok := o.internal.(*collectionData); ok {
		n += 48 * len(c.entries)
	}
	return n
}

func (o *Object) clearDead(h *Heap) bool {
	if w, ok := o.internal.(*weakRefData); ok {
		return w.clearDead(h)
	}
	return false
}

// isCallable reports whether the object can be invoked.
func (o *Object) isCallable() bool {
	switch o.kind {
	case ObjectFunction, ObjectNative, ObjectBound:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Primitive cells
// ---------------------------------------------------------------------------

// symbolCell backs a symbol value. Identity is the heap reference.
type symbolCell struct {
	description Value // string or undefined
}

func (s *symbolCell) trace(m *marker) {}
func (s *symbolCell) size() int       { return 16 }

// bigIntCell backs an immutable arbitrary-precision integer.
type bigIntCell struct {
	n *big.Int
}

func (b *bigIntCell) trace(m *marker) {}
func (b *bigIntCell) size() int       { return 32 + 8*len(b.n.Bits()) }

// ---------------------------------------------------------------------------
// Internal slot layouts
// ---------------------------------------------------------------------------

// hostData wraps a Go value. Go values are opaque to the collector, so
// they must not hold language values unless those are pinned.
type hostData struct {
	value any
}

func (d *hostData) trace(m *marker) {}

// weakRefData refers to its target without keeping it alive.
type weakRefData struct {
	target Ref
}

func (d *weakRefData) trace(m *marker) {}

func (d *weakRefData) clearDead(h *Heap) bool {
	if d.target != 0 && !h.marked(d.target) {
		d.target = 0
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Heap accessors
// ---------------------------------------------------------------------------

// object returns the Object referenced by v. Panics if v is not an object.
func (vm *VM) object(v Value) *Object {
	if !v.IsObject() {
		panic(fmt.Sprintf("vm: %#v is not an object", v))
	}
	o, ok := vm.heap.get(v.ref()).(*Object)
	if !ok {
		panic(fmt.Sprintf("vm: %#v does not reference an object", v))
	}
	return o
}

// asObject returns the Object referenced by v, or nil for non-objects.
func (vm *VM) asObject(v Value) *Object {
	if !v.IsObject() {
		return nil
	}
	return vm.object(v)
}

func (vm *VM) bigInt(v Value) *big.Int {
	return vm.heap.get(v.ref()).(*bigIntCell).n
}

func (vm *VM) symbol(v Value) *symbolCell {
	return vm.heap.get(v.ref()).(*symbolCell)
}

// alloc places a cell on the heap. While a native function is running,
// the new value stays rooted until the native call returns.
func (vm *VM) alloc(c cell) Ref {
	r := vm.heap.alloc(c)
	if vm.nativeDepth > 0 {
		switch c.(type) {
		case *Object:
			vm.nativeRoots = append(vm.nativeRoots, objectValue(r))
		case *symbolCell:
			vm.nativeRoots = append(vm.nativeRoots, symbolValue(r))
		case *bigIntCell:
			vm.nativeRoots = append(vm.nativeRoots, bigIntValue(r))
		}
	}
	return r
}

// newObjectKind allocates an extensible object with the given prototype.
func (vm *VM) newObjectKind(kind ObjectKind, proto Value, internal internalSlots) Value {
	return objectValue(vm.alloc(&Object{
		kind:       kind,
		proto:      proto,
		extensible: true,
		internal:   internal,
	}))
}

func (vm *VM) newOrdinary() Value {
	return vm.newObjectKind(ObjectOrdinary, vm.intrinsics.objectProto, nil)
}

func (vm *VM) newArray(elems []Value) Value {
	v := vm.newObjectKind(ObjectArray, vm.intrinsics.arrayProto, nil)
	if len(elems) > 0 {
		vm.heap.reserve(8 * len(elems))
		o := vm.object(v)
		o.elements = append([]Value(nil), elems...)
		o.length = uint32(len(elems))
	}
	return v
}

func (vm *VM) newBigInt(n *big.Int) Value {
	return bigIntValue(vm.alloc(&bigIntCell{n: n}))
}

func (vm *VM) newSymbol(description Value) Value {
	return symbolValue(vm.alloc(&symbolCell{description: description}))
}
