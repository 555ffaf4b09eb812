package vm

import "unicode/utf8"

// ---------------------------------------------------------------------------
// Iterators
// ---------------------------------------------------------------------------

// iterationKind selects what an iterator yields for each position.
type iterationKind uint8

const (
	iterValues iterationKind = iota
	iterKeys
	iterEntries
)

// iteratorData is the state of a built-in iterator over an array, a string
// or a keyed collection. source becomes undefined once the iterator is
// exhausted, so a finished iterator holds nothing alive.
type iteratorData struct {
	source Value
	kind   iterationKind
	pos    int
}

func (d *iteratorData) trace(m *marker) {
	m.value(d.source)
}

func (vm *VM) initIterators() {
	in := &vm.intrinsics
	in.iteratorProto = vm.newObjectKind(ObjectOrdinary, in.objectProto, nil)
	vm.defineSymbolMethod(in.iteratorProto, in.iteratorSymbol, "[Symbol.iterator]", func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		return this, nil
	})
	vm.defineMethod(in.iteratorProto, "next", 0, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		o := vm.asObject(this)
		d, ok := o.internalIterator()
		if !ok {
			vm.throwError(errType, "next method called on incompatible receiver %s", vm.safeString(this))
		}
		v, done := vm.step(d)
		return vm.iterResult(v, done), nil
	})

	for _, m := range []struct {
		name string
		kind iterationKind
	}{{"keys", iterKeys}, {"entries", iterEntries}, {"values", iterValues}} {
		vm.defineMethod(in.arrayProto, m.name, 0, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
			vm.thisArray(this, m.name)
			return vm.newIterator(this, m.kind), nil
		})
	}
	arrayValues, _ := vm.ownValue(vm.object(in.arrayProto), vm.str("values"))
	vm.defineOwn(vm.object(in.arrayProto), in.iteratorSymbol, arrayValues, attrHidden)

	vm.defineSymbolMethod(in.stringProto, in.iteratorSymbol, "[Symbol.iterator]", func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		return vm.newIterator(vm.coerceThisString(this, "[Symbol.iterator]"), iterValues), nil
	})
	vm.defineSymbolMethod(in.generatorProto, in.iteratorSymbol, "[Symbol.iterator]", func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		return this, nil
	})
}

// defineSymbolMethod installs a non-enumerable native method keyed by a
// symbol.
func (vm *VM) defineSymbolMethod(obj, key Value, name string, fn NativeFunc) {
	vm.defineOwn(vm.object(obj), key, vm.newNative(name, 0, fn), attrHidden)
}

func (o *Object) internalIterator() (*iteratorData, bool) {
	if o == nil {
		return nil, false
	}
	d, ok := o.internal.(*iteratorData)
	return d, ok
}

// newIterator creates a built-in iterator over source.
func (vm *VM) newIterator(source Value, kind iterationKind) Value {
	if o := vm.asObject(source); o != nil {
		if c, ok := o.internal.(*collectionData); ok {
			c.locks++
		}
	}
	return vm.newObjectKind(ObjectOrdinary, vm.intrinsics.iteratorProto, &iteratorData{source: source, kind: kind})
}

// step advances d, returning the next value or done.
func (vm *VM) step(d *iteratorData) (Value, bool) {
	src := d.source
	switch {
	case src.IsUndefined():
		return Undefined, true

	case src.IsString():
		s := vm.goString(src)
		if d.pos < len(s) {
			_, size := utf8.DecodeRuneInString(s[d.pos:])
			v := vm.str(s[d.pos : d.pos+size])
			d.pos += size
			return v, false
		}

	default:
		o := vm.object(src)
		if c, ok := o.internal.(*collectionData); ok {
			for d.pos < len(c.entries) {
				e := c.entries[d.pos]
				d.pos++
				if e.key == hole {
					continue
				}
				switch d.kind {
				case iterKeys:
					return e.key, false
				case iterValues:
					return e.value, false
				}
				return vm.newArray([]Value{e.key, e.value}), false
			}
			c.locks--
			c.maybeCompact()
		} else if d.pos < int(o.length) {
			i := d.pos
			d.pos++
			switch d.kind {
			case iterKeys:
				return Number(float64(i)), false
			case iterValues:
				return vm.getFrom(src, o, vm.indexKey(i)), false
			}
			return vm.newArray([]Value{Number(float64(i)), vm.getFrom(src, o, vm.indexKey(i))}), false
		}
	}
	d.source = Undefined
	return Undefined, true
}

// iterate runs fn over the values produced by iterable's Symbol.iterator
// method until fn returns false.
func (vm *VM) iterate(iterable Value, fn func(v Value) bool) {
	method := vm.getIndex(iterable, vm.intrinsics.iteratorSymbol)
	if m := vm.asObject(method); m == nil || !m.isCallable() {
		vm.throwError(errType, "%s is not iterable", vm.safeString(iterable))
	}
	iter := vm.callValue(method, iterable, nil, false)
	if !iter.IsObject() {
		vm.throwError(errType, "Result of the Symbol.iterator method is not an object")
	}
	next := vm.getIndex(iter, vm.names.next)
	for {
		r := vm.callValue(next, iter, nil, false)
		if !r.IsObject() {
			vm.throwError(errType, "Iterator result %s is not an object", vm.safeString(r))
		}
		if vm.toBoolean(vm.getIndex(r, vm.names.done)) {
			return
		}
		if !fn(vm.getIndex(r, vm.names.value)) {
			return
		}
	}
}
