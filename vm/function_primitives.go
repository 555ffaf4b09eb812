package vm

// ---------------------------------------------------------------------------
// Function.prototype
// ---------------------------------------------------------------------------

func (vm *VM) initFunction() {
	proto := vm.intrinsics.functionProto
	ctor := vm.newConstructor("Function", 0, proto, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		vm.throwError(errType, "Function constructor is not supported: code is compiled ahead of time")
		return Undefined, nil
	})
	vm.defineGlobalValue("Function", ctor)

	vm.defineMethod(proto, "call", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		var rest []Value
		if len(args) > 1 {
			rest = args[1:]
		}
		return vm.callValue(this, Arg(args, 0), rest, false), nil
	})
	vm.defineMethod(proto, "apply", 2, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		return vm.callValue(this, Arg(args, 0), vm.listFromArrayLike(Arg(args, 1)), false), nil
	})
	vm.defineMethod(proto, "bind", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		o := vm.asObject(this)
		if o == nil || !o.isCallable() {
			vm.throwError(errType, "Bind must be called on a function")
		}
		var rest []Value
		if len(args) > 1 {
			rest = args[1:]
		}
		return vm.bind(this, Arg(args, 0), rest), nil
	})
	vm.defineMethod(proto, "toString", 0, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		o := vm.asObject(this)
		if o == nil || !o.isCallable() {
			vm.throwError(errType, "Function.prototype.toString requires that 'this' be a Function")
		}
		body := "[native code]"
		if _, ok := o.internal.(*closureData); ok {
			body = "[bytecode]"
		}
		return vm.str("function " + vm.functionName(o) + "() { " + body + " }"), nil
	})
}

// listFromArrayLike copies the elements of an array-like into a slice.
// Undefined and null produce no elements.
func (vm *VM) listFromArrayLike(v Value) []Value {
	if v.IsNullish() {
		return nil
	}
	o := vm.asObject(v)
	if o == nil {
		vm.throwError(errType, "CreateListFromArrayLike called on non-object")
	}
	n := vm.toIntegerOrInfinity(vm.getFrom(v, o, vm.names.length))
	if n > 1<<24 {
		vm.throwError(errRange, "Too many arguments in function call")
	}
	list := make([]Value, max(0, int(n)))
	for i := range list {
		if o.kind == ObjectArray {
			if e, ok := o.element(uint32(i)); ok {
				list[i] = e
				continue
			}
		}
		list[i] = vm.getFrom(v, o, vm.indexKey(i))
	}
	return list
}

// indexKey returns the property key for array index i.
func (vm *VM) indexKey(i int) Value {
	return vm.str(formatNumber(float64(i)))
}
