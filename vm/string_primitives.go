package vm

import "strings"

// maxStringLength bounds the strings built by repeat and join.
const maxStringLength = 1 << 28

// ---------------------------------------------------------------------------
// String constructor and String.prototype
// ---------------------------------------------------------------------------

// Strings are primitives only: there are no String wrapper objects, so
// new String(x) yields an ordinary object inheriting String.prototype.

func (vm *VM) initString() {
	in := &vm.intrinsics
	in.stringProto = vm.newObjectKind(ObjectOrdinary, in.objectProto, nil)
	proto := in.stringProto

	ctor := vm.newConstructor("String", 1, proto, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		if len(args) == 0 {
			return vm.names.empty, nil
		}
		if args[0].IsSymbol() && !ctx.IsConstruct() {
			return vm.str(vm.symbolDescriptiveString(args[0])), nil
		}
		return vm.toString(args[0]), nil
	})
	vm.defineGlobalValue("String", ctor)

	vm.defineMethod(ctor, "fromCharCode", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		units := make([]uint16, len(args))
		for i, a := range args {
			units[i] = uint16(toUint32(vm.toNumber(a)))
		}
		return vm.stringFromUnits(units), nil
	})

	vm.defineMethod(proto, "toString", 0, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		return vm.thisStringValue(this, "toString"), nil
	})
	vm.defineMethod(proto, "valueOf", 0, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		return vm.thisStringValue(this, "valueOf"), nil
	})
	vm.defineMethod(proto, "charAt", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		units := vm.stringUnits(vm.coerceThisString(this, "charAt"))
		i := vm.toIntegerOrInfinity(Arg(args, 0))
		if i < 0 || i >= float64(len(units)) {
			return vm.names.empty, nil
		}
		return vm.stringFromUnits(units[int(i) : int(i)+1]), nil
	})
	vm.defineMethod(proto, "charCodeAt", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		units := vm.stringUnits(vm.coerceThisString(this, "charCodeAt"))
		i := vm.toIntegerOrInfinity(Arg(args, 0))
		if i < 0 || i >= float64(len(units)) {
			return NaN, nil
		}
		return Number(float64(units[int(i)])), nil
	})
	vm.defineMethod(proto, "indexOf", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		units := vm.stringUnits(vm.coerceThisString(this, "indexOf"))
		search := vm.stringUnits(vm.toString(Arg(args, 0)))
		from := int(max(0, min(vm.toIntegerOrInfinity(Arg(args, 1)), float64(len(units)))))
		return Number(float64(indexUnits(units, search, from))), nil
	})
	vm.defineMethod(proto, "includes", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		s := vm.goString(vm.coerceThisString(this, "includes"))
		return Bool(strings.Contains(s, vm.goString(vm.toString(Arg(args, 0))))), nil
	})
	vm.defineMethod(proto, "startsWith", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		s := vm.goString(vm.coerceThisString(this, "startsWith"))
		return Bool(strings.HasPrefix(s, vm.goString(vm.toString(Arg(args, 0))))), nil
	})
	vm.defineMethod(proto, "endsWith", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		s := vm.goString(vm.coerceThisString(this, "endsWith"))
		return Bool(strings.HasSuffix(s, vm.goString(vm.toString(Arg(args, 0))))), nil
	})
	vm.defineMethod(proto, "slice", 2, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		units := vm.stringUnits(vm.coerceThisString(this, "slice"))
		start, end := relativeRange(len(units), vm.toIntegerOrInfinity(Arg(args, 0)), Arg(args, 1), vm)
		if start >= end {
			return vm.names.empty, nil
		}
		return vm.stringFromUnits(units[start:end]), nil
	})
	vm.defineMethod(proto, "substring", 2, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		units := vm.stringUnits(vm.coerceThisString(this, "substring"))
		n := float64(len(units))
		start := max(0, min(vm.toIntegerOrInfinity(Arg(args, 0)), n))
		end := n
		if e := Arg(args, 1); !e.IsUndefined() {
			end = max(0, min(vm.toIntegerOrInfinity(e), n))
		}
		if start > end {
			start, end = end, start
		}
		return vm.stringFromUnits(units[int(start):int(end)]), nil
	})
	vm.defineMethod(proto, "toUpperCase", 0, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		return vm.str(strings.ToUpper(vm.goString(vm.coerceThisString(this, "toUpperCase")))), nil
	})
	vm.defineMethod(proto, "toLowerCase", 0, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		return vm.str(strings.ToLower(vm.goString(vm.coerceThisString(this, "toLowerCase")))), nil
	})
	vm.defineMethod(proto, "trim", 0, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		return vm.str(strings.TrimFunc(vm.goString(vm.coerceThisString(this, "trim")), isJSWhitespace)), nil
	})
	vm.defineMethod(proto, "repeat", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		s := vm.goString(vm.coerceThisString(this, "repeat"))
		n := vm.toIntegerOrInfinity(Arg(args, 0))
		if n < 0 || n > maxStringLength {
			vm.throwError(errRange, "Invalid count value: %s", formatNumber(n))
		}
		if len(s) > 0 && int(n) > maxStringLength/len(s) {
			vm.throwError(errRange, "Invalid string length")
		}
		vm.heap.reserve(len(s) * int(n))
		return vm.str(strings.Repeat(s, int(n))), nil
	})
	vm.defineMethod(proto, "split", 2, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		s := vm.coerceThisString(this, "split")
		limit := uint32(1<<32 - 1)
		if l := Arg(args, 1); !l.IsUndefined() {
			limit = toUint32(vm.toNumber(l))
		}
		sepArg := Arg(args, 0)
		if sepArg.IsUndefined() {
			if limit == 0 {
				return vm.newArray(nil), nil
			}
			return vm.newArray([]Value{s}), nil
		}
		units := vm.stringUnits(s)
		sep := vm.stringUnits(vm.toString(sepArg))
		var parts []Value
		if len(sep) == 0 {
			for i := 0; i < len(units) && uint32(len(parts)) < limit; i++ {
				parts = append(parts, vm.stringFromUnits(units[i:i+1]))
			}
			return vm.newArray(parts), nil
		}
		start := 0
		for uint32(len(parts)) < limit {
			i := indexUnits(units, sep, start)
			if i < 0 {
				parts = append(parts, vm.stringFromUnits(units[start:]))
				break
			}
			parts = append(parts, vm.stringFromUnits(units[start:i]))
			start = i + len(sep)
		}
		return vm.newArray(parts), nil
	})
}

// thisStringValue returns the receiver of String.prototype.toString and
// valueOf, which accept only strings.
func (vm *VM) thisStringValue(this Value, method string) Value {
	if !this.IsString() {
		vm.throwError(errType, "String.prototype.%s requires that 'this' be a String", method)
	}
	return this
}

// coerceThisString converts the receiver of a generic string method.
func (vm *VM) coerceThisString(this Value, method string) Value {
	if this.IsNullish() {
		vm.throwError(errType, "String.prototype.%s called on null or undefined", method)
	}
	return vm.toString(this)
}

// indexUnits finds sub in units at or after from, or returns -1.
func indexUnits(units, sub []uint16, from int) int {
	for i := from; i+len(sub) <= len(units); i++ {
		match := true
		for j := range sub {
			if units[i+j] != sub[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
