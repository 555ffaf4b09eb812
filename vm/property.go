package vm

import (
	"math"
	"strconv"
)

// ---------------------------------------------------------------------------
// Keys
// ---------------------------------------------------------------------------

// arrayIndex reports whether key is a canonical array index.
func (vm *VM) arrayIndex(key Value) (uint32, bool) {
	if !key.IsString() {
		return 0, false
	}
	s := vm.goString(key)
	if s == "" || len(s) > 10 || (len(s) > 1 && s[0] == '0') {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n == math.MaxUint32 {
		return 0, false
	}
	return uint32(n), true
}

// numberIndex reports whether f is an integral array index.
func numberIndex(f float64) (uint32, bool) {
	if f >= 0 && f < math.MaxUint32 && f == math.Trunc(f) {
		return uint32(f), true
	}
	return 0, false
}

// keyString renders a property key for diagnostics.
func (vm *VM) keyString(key Value) string {
	if key.IsSymbol() {
		return vm.symbolDescriptiveString(key)
	}
	return vm.goString(key)
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

// ownValue returns the own property value of o for key.
func (vm *VM) ownValue(o *Object, key Value) (Value, bool) {
	if o.kind == ObjectArray {
		if key == vm.names.length {
			return Number(float64(o.length)), true
		}
		if idx, ok := vm.arrayIndex(key); ok {
			if v, ok := o.element(idx); ok {
				return v, true
			}
			return Undefined, false
		}
	}
	if p := o.props.get(key); p != nil {
		return p.value, true
	}
	return Undefined, false
}

// getFrom looks key up on o and its prototype chain.
func (vm *VM) getFrom(receiver Value, o *Object, key Value) Value {
	for {
		if v, ok := vm.ownValue(o, key); ok {
			return v
		}
		if !o.proto.IsObject() {
			return Undefined
		}
		o = vm.object(o.proto)
	}
}

// getProperty implements v[key] for any value. key must already be a
// property key.
func (vm *VM) getProperty(v, key Value) Value {
	switch v.Type() {
	case TypeObject:
		return vm.getFrom(v, vm.object(v), key)
	case TypeUndefined, TypeNull:
		vm.throwError(errType, "Cannot read properties of %s (reading '%s')",
			vm.goString(vm.primitiveToString(v)), vm.keyString(key))
	case TypeString:
		if key == vm.names.length {
			return Number(float64(utf16Len(vm.goString(v))))
		}
		if idx, ok := vm.arrayIndex(key); ok {
			units := vm.stringUnits(v)
			if int(idx) < len(units) {
				return vm.stringFromUnits(units[idx : idx+1])
			}
			return Undefined
		}
	}
	return vm.getFrom(v, vm.object(vm.protoForPrimitive(v)), key)
}

// getIndex implements v[k] for an arbitrary key value, with a fast path
// for numeric indices into arrays.
func (vm *VM) getIndex(v, k Value) Value {
	if k.IsNumber() && v.IsObject() {
		o := vm.object(v)
		if o.kind == ObjectArray {
			if idx, ok := numberIndex(k.Float64()); ok {
				if e, ok := o.element(idx); ok {
					return e
				}
			}
		}
	}
	if v.IsNullish() {
		vm.throwError(errType, "Cannot read properties of %s (reading '%s')",
			vm.goString(vm.primitiveToString(v)), vm.keyString(vm.toPropertyKey(k)))
	}
	return vm.getProperty(v, vm.toPropertyKey(k))
}

func (vm *VM) hasOwn(o *Object, key Value) bool {
	_, ok := vm.ownValue(o, key)
	return ok
}

func (vm *VM) hasProperty(o *Object, key Value) bool {
	for {
		if vm.hasOwn(o, key) {
			return true
		}
		if !o.proto.IsObject() {
			return false
		}
		o = vm.object(o.proto)
	}
}

// ---------------------------------------------------------------------------
// Writes
// ---------------------------------------------------------------------------

// defineOwn creates or overwrites an own property without any checks. Used
// for object literals and intrinsic setup.
func (vm *VM) defineOwn(o *Object, key, v Value, attrs propAttrs) {
	if o.kind == ObjectArray {
		if idx, ok := vm.arrayIndex(key); ok {
			vm.setElement(o, idx, v)
			return
		}
	}
	if p := o.props.get(key); p != nil {
		p.value = v
		p.attrs = attrs
		return
	}
	vm.heap.reserve(24)
	o.props.add(key, v, attrs)
}

// trySet performs an assignment on o, reporting false when a read-only
// property or a non-extensible object rejects it.
func (vm *VM) trySet(o *Object, key, v Value) bool {
	if o.kind == ObjectArray {
		if key == vm.names.length {
			return vm.setArrayLength(o, v)
		}
		if idx, ok := vm.arrayIndex(key); ok {
			if _, has := o.element(idx); o.frozen || (!has && !o.extensible) {
				return false
			}
			vm.setElement(o, idx, v)
			return true
		}
	}
	if p := o.props.get(key); p != nil {
		if !p.writable() {
			return false
		}
		p.value = v
		return true
	}
	for proto := o.proto; proto.IsObject(); {
		po := vm.object(proto)
		if p := po.props.get(key); p != nil {
			if !p.writable() {
				return false
			}
			break
		}
		proto = po.proto
	}
	if !o.extensible {
		return false
	}
	vm.heap.reserve(24)
	o.props.add(key, v, attrDefault)
	return true
}

// setProperty implements target[key] = v. Rejected writes throw in strict
// code and are ignored otherwise.
func (vm *VM) setProperty(target, key, v Value, strict bool) {
	switch target.Type() {
	case TypeObject:
		if !vm.trySet(vm.object(target), key, v) && strict {
			vm.throwError(errType, "Cannot assign to read only property '%s' of object", vm.keyString(key))
		}
	case TypeUndefined, TypeNull:
		vm.throwError(errType, "Cannot set properties of %s (setting '%s')",
			vm.goString(vm.primitiveToString(target)), vm.keyString(key))
	default:
		if strict {
			vm.throwError(errType, "Cannot create property '%s' on %s", vm.keyString(key), target.Type())
		}
	}
}

// setIndex implements target[k] = v for an arbitrary key value.
func (vm *VM) setIndex(target, k, v Value, strict bool) {
	if k.IsNumber() && target.IsObject() {
		o := vm.object(target)
		if o.kind == ObjectArray && !o.frozen {
			if idx, ok := numberIndex(k.Float64()); ok {
				if _, has := o.element(idx); has || o.extensible {
					vm.setElement(o, idx, v)
					return
				}
			}
		}
	}
	if target.IsNullish() {
		vm.throwError(errType, "Cannot set properties of %s", vm.goString(vm.primitiveToString(target)))
	}
	vm.setProperty(target, vm.toPropertyKey(k), v, strict)
}

// deleteProperty implements delete o[key].
func (vm *VM) deleteProperty(o *Object, key Value, strict bool) bool {
	ok := vm.tryDelete(o, key)
	if !ok && strict {
		vm.throwError(errType, "Cannot delete property '%s' of object", vm.keyString(key))
	}
	return ok
}

func (vm *VM) tryDelete(o *Object, key Value) bool {
	if o.kind == ObjectArray {
		if key == vm.names.length {
			return false
		}
		if idx, ok := vm.arrayIndex(key); ok {
			if _, has := o.element(idx); !has {
				return true
			}
			if o.frozen {
				return false
			}
			o.removeElement(idx)
			return true
		}
	}
	p := o.props.get(key)
	if p == nil {
		return true
	}
	if !p.configurable() {
		return false
	}
	o.props.remove(key)
	return true
}

// ---------------------------------------------------------------------------
// Enumeration
// ---------------------------------------------------------------------------

// ownKeys lists own property keys: array indices first, then properties in
// insertion order.
func (vm *VM) ownKeys(o *Object, enumerableOnly, withSymbols bool) []Value {
	var keys []Value
	if o.kind == ObjectArray {
		for i, v := range o.elements {
			if v != hole {
				keys = append(keys, vm.str(strconv.Itoa(i)))
			}
		}
		for _, i := range o.sparseKeys() {
			keys = append(keys, vm.str(strconv.FormatUint(uint64(i), 10)))
		}
		if !enumerableOnly {
			keys = append(keys, vm.names.length)
		}
	}
	o.props.each(func(p *property) bool {
		if enumerableOnly && !p.enumerable() {
			return true
		}
		if p.key.IsSymbol() && !withSymbols {
			return true
		}
		keys = append(keys, p.key)
		return true
	})
	return keys
}

// freeze makes every own property read-only and non-configurable and the
// object non-extensible.
func (vm *VM) freeze(o *Object) {
	o.extensible = false
	o.frozen = true
	o.props.each(func(p *property) bool {
		p.attrs &^= attrWritable | attrConfigurable
		return true
	})
}

// setPrototype changes o's prototype, refusing cycles and changes to
// non-extensible objects.
func (vm *VM) setPrototype(o *Object, self, proto Value) bool {
	if o.proto == proto {
		return true
	}
	if !o.extensible {
		return false
	}
	for p := proto; p.IsObject(); p = vm.object(p).proto {
		if p == self {
			return false
		}
	}
	o.proto = proto
	return true
}
