package vm

import (
	"math"
	"strings"
)

// ---------------------------------------------------------------------------
// Array constructor and Array.prototype
// ---------------------------------------------------------------------------

func (vm *VM) initArray() {
	in := &vm.intrinsics
	in.arrayProto = vm.newObjectKind(ObjectArray, in.objectProto, nil)
	proto := in.arrayProto

	ctor := vm.newConstructor("Array", 1, proto, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		if len(args) == 1 && args[0].IsNumber() {
			if _, ok := numberIndex(args[0].Float64()); !ok {
				vm.throwError(errRange, "Invalid array length")
			}
			arr := vm.newArray(nil)
			vm.setArrayLength(vm.object(arr), args[0])
			return arr, nil
		}
		return vm.newArray(args), nil
	})
	vm.defineGlobalValue("Array", ctor)

	vm.defineMethod(ctor, "isArray", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		o := vm.asObject(Arg(args, 0))
		return Bool(o != nil && o.kind == ObjectArray), nil
	})

	vm.defineMethod(proto, "push", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		o := vm.thisArray(this, "push")
		for _, a := range args {
			if o.length == math.MaxUint32 {
				vm.throwError(errType, "Pushing an element would exceed the maximum array length")
			}
			if !vm.trySet(o, vm.indexKey(int(o.length)), a) {
				vm.throwError(errType, "Cannot add property %d, object is not extensible", o.length)
			}
		}
		return Number(float64(o.length)), nil
	})
	vm.defineMethod(proto, "pop", 0, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		o := vm.thisArray(this, "pop")
		n := o.length
		if n == 0 {
			return Undefined, nil
		}
		if o.frozen {
			vm.throwError(errType, "Cannot delete property '%d' of [object Array]", n-1)
		}
		v := vm.getFrom(this, o, vm.indexKey(int(n-1)))
		vm.setArrayLength(o, Number(float64(n-1)))
		return v, nil
	})
	vm.defineMethod(proto, "join", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		sep := ","
		if s := Arg(args, 0); !s.IsUndefined() {
			sep = vm.goString(vm.toString(s))
		}
		return vm.str(vm.join(this, sep)), nil
	})
	vm.defineMethod(proto, "toString", 0, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		return vm.str(vm.join(this, ",")), nil
	})
	vm.defineMethod(proto, "slice", 2, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		o := vm.thisArray(this, "slice")
		start, end := relativeRange(int(o.length), vm.toIntegerOrInfinity(Arg(args, 0)), Arg(args, 1), vm)
		result := vm.newArray(nil)
		ro := vm.object(result)
		vm.eachElement(o, func(i uint32, e Value) bool {
			if int(i) >= end {
				return false
			}
			if int(i) >= start {
				vm.setElement(ro, uint32(int(i)-start), e)
			}
			return true
		})
		ro.length = uint32(max(0, end-start))
		return result, nil
	})
	vm.defineMethod(proto, "indexOf", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		o := vm.thisArray(this, "indexOf")
		x := Arg(args, 0)
		found := -1.0
		vm.eachElement(o, func(i uint32, e Value) bool {
			if vm.strictEquals(e, x) {
				found = float64(i)
				return false
			}
			return true
		})
		return Number(found), nil
	})
	vm.defineMethod(proto, "includes", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		o := vm.thisArray(this, "includes")
		x := Arg(args, 0)
		if x.IsUndefined() && o.presentCount() < int(o.length) {
			return True, nil
		}
		found := false
		vm.eachElement(o, func(i uint32, e Value) bool {
			found = vm.sameValueZero(e, x)
			return !found
		})
		return Bool(found), nil
	})
	vm.defineMethod(proto, "forEach", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		o := vm.thisArray(this, "forEach")
		fn := vm.callbackArg(args, "forEach")
		vm.eachElement(o, func(i uint32, e Value) bool {
			vm.callValue(fn, Arg(args, 1), []Value{e, Number(float64(i)), this}, false)
			return true
		})
		return Undefined, nil
	})
	vm.defineMethod(proto, "map", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		o := vm.thisArray(this, "map")
		fn := vm.callbackArg(args, "map")
		result := vm.newArray(nil)
		ro := vm.object(result)
		ro.length = o.length
		vm.eachElement(o, func(i uint32, e Value) bool {
			vm.setElement(ro, i, vm.callValue(fn, Arg(args, 1), []Value{e, Number(float64(i)), this}, false))
			return true
		})
		return result, nil
	})
	vm.defineMethod(proto, "filter", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		o := vm.thisArray(this, "filter")
		fn := vm.callbackArg(args, "filter")
		result := vm.newArray(nil)
		ro := vm.object(result)
		vm.eachElement(o, func(i uint32, e Value) bool {
			if vm.toBoolean(vm.callValue(fn, Arg(args, 1), []Value{e, Number(float64(i)), this}, false)) {
				vm.setElement(ro, ro.length, e)
			}
			return true
		})
		return result, nil
	})
}

func (vm *VM) thisArray(this Value, method string) *Object {
	o := vm.asObject(this)
	if o == nil || o.kind != ObjectArray {
		vm.throwError(errType, "Array.prototype.%s called on a non-array", method)
	}
	return o
}

func (vm *VM) callbackArg(args []Value, method string) Value {
	fn := Arg(args, 0)
	if o := vm.asObject(fn); o == nil || !o.isCallable() {
		vm.throwError(errType, "%s is not a function (in Array.prototype.%s)", vm.safeString(fn), method)
	}
	return fn
}

// join concatenates array elements; holes, undefined and null render as
// the empty string. Re-entrant joins of the same array yield "" instead of
// recursing forever.
func (vm *VM) join(this Value, sep string) string {
	o := vm.thisArray(this, "join")
	for _, v := range vm.joining {
		if v == this {
			return ""
		}
	}
	vm.joining = append(vm.joining, this)
	defer func() { vm.joining = vm.joining[:len(vm.joining)-1] }()

	n := int(o.length)
	if n == 0 {
		return ""
	}
	if len(sep) > 0 && n-1 > maxStringLength/len(sep) {
		vm.throwError(errRange, "Invalid string length")
	}
	var sb strings.Builder
	seps := 0
	vm.eachElement(o, func(i uint32, e Value) bool {
		sb.WriteString(strings.Repeat(sep, int(i)-seps))
		seps = int(i)
		if !e.IsNullish() {
			sb.WriteString(vm.goString(vm.toString(e)))
		}
		return true
	})
	sb.WriteString(strings.Repeat(sep, n-1-seps))
	return sb.String()
}

// relativeRange resolves slice-style start and end arguments against n.
func relativeRange(n int, start float64, endArg Value, vm *VM) (int, int) {
	clamp := func(f float64) int {
		if f < 0 {
			f = math.Max(0, float64(n)+f)
		}
		return int(math.Min(f, float64(n)))
	}
	end := float64(n)
	if !endArg.IsUndefined() {
		end = vm.toIntegerOrInfinity(endArg)
	}
	return clamp(start), clamp(end)
}
