package vm

// ---------------------------------------------------------------------------
// WeakRef
// ---------------------------------------------------------------------------

func (vm *VM) initWeakRef() {
	in := &vm.intrinsics
	in.weakRefProto = vm.newObjectKind(ObjectOrdinary, in.objectProto, nil)

	ctor := vm.newConstructor("WeakRef", 1, in.weakRefProto, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		if !ctx.IsConstruct() {
			vm.throwError(errType, "Constructor WeakRef requires 'new'")
		}
		target := Arg(args, 0)
		if !target.IsObject() {
			vm.throwError(errType, "WeakRef: target must be an object")
		}
		return vm.newWeakRef(vm.object(this).proto, target), nil
	})
	vm.defineGlobalValue("WeakRef", ctor)

	vm.defineMethod(in.weakRefProto, "deref", 0, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		if o := vm.asObject(this); o != nil {
			if w, ok := o.internal.(*weakRefData); ok {
				if w.target == 0 {
					return Undefined, nil
				}
				return objectValue(w.target), nil
			}
		}
		vm.throwError(errType, "WeakRef.prototype.deref called on incompatible receiver")
		return Undefined, nil
	})
}

// newWeakRef creates a weak reference to target. The heap clears it in
// the cycle that reclaims the target.
func (vm *VM) newWeakRef(proto, target Value) Value {
	v := vm.newObjectKind(ObjectWeakRef, proto, &weakRefData{target: target.ref()})
	vm.heap.trackWeak(v.ref())
	return v
}

// NewWeakRef creates a WeakRef to an object from the host.
func (vm *VM) NewWeakRef(target Value) (Value, error) {
	if !target.IsObject() {
		return Undefined, errNotObject("weak ref", target)
	}
	return vm.newWeakRef(vm.intrinsics.weakRefProto, target), nil
}

// Deref returns the target of a WeakRef, or undefined once collected.
func (vm *VM) Deref(ref Value) Value {
	if o := vm.asObject(ref); o != nil {
		if w, ok := o.internal.(*weakRefData); ok && w.target != 0 {
			return objectValue(w.target)
		}
	}
	return Undefined
}
