package vm

// ---------------------------------------------------------------------------
// Object constructor and Object.prototype
// ---------------------------------------------------------------------------

func (vm *VM) initObject() {
	proto := vm.intrinsics.objectProto
	ctor := vm.newConstructor("Object", 1, proto, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		v := Arg(args, 0)
		if v.IsObject() {
			return v, nil
		}
		if v.IsNullish() {
			return vm.newOrdinary(), nil
		}
		vm.throwError(errType, "cannot convert %s to an object", v.Type())
		return Undefined, nil
	})
	vm.defineGlobalValue("Object", ctor)

	vm.defineMethod(proto, "toString", 0, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		return vm.str("[object " + vm.toStringTag(this) + "]"), nil
	})
	vm.defineMethod(proto, "valueOf", 0, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		return this, nil
	})
	vm.defineMethod(proto, "hasOwnProperty", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		key := vm.toPropertyKey(Arg(args, 0))
		return Bool(vm.hasOwn(vm.thisObject(this, "hasOwnProperty"), key)), nil
	})
	vm.defineMethod(proto, "isPrototypeOf", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		o := vm.asObject(Arg(args, 0))
		if o == nil {
			return False, nil
		}
		for p := o.proto; p.IsObject(); p = vm.object(p).proto {
			if p == this {
				return True, nil
			}
		}
		return False, nil
	})

	vm.defineMethod(ctor, "keys", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		return vm.newArray(vm.ownKeys(vm.argObject(args, "Object.keys"), true, false)), nil
	})
	vm.defineMethod(ctor, "getOwnPropertyNames", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		return vm.newArray(vm.ownKeys(vm.argObject(args, "Object.getOwnPropertyNames"), false, false)), nil
	})
	vm.defineMethod(ctor, "values", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		o := vm.argObject(args, "Object.values")
		keys := vm.ownKeys(o, true, false)
		values := make([]Value, len(keys))
		for i, k := range keys {
			values[i] = vm.getFrom(args[0], o, k)
		}
		return vm.newArray(values), nil
	})
	vm.defineMethod(ctor, "entries", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		o := vm.argObject(args, "Object.entries")
		keys := vm.ownKeys(o, true, false)
		result := vm.newArray(nil)
		ro := vm.object(result)
		for i, k := range keys {
			pair := vm.newArray([]Value{k, vm.getFrom(args[0], o, k)})
			vm.setElement(ro, uint32(i), pair)
		}
		return result, nil
	})
	vm.defineMethod(ctor, "getPrototypeOf", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		v := Arg(args, 0)
		if o := vm.asObject(v); o != nil {
			return o.proto, nil
		}
		if v.IsNullish() {
			vm.throwError(errType, "Cannot convert undefined or null to object")
		}
		return vm.protoForPrimitive(v), nil
	})
	vm.defineMethod(ctor, "setPrototypeOf", 2, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		o := vm.argObject(args, "Object.setPrototypeOf")
		proto := Arg(args, 1)
		if !proto.IsObject() && proto != Null {
			vm.throwError(errType, "Object prototype may only be an Object or null: %s", vm.safeString(proto))
		}
		if !vm.setPrototype(o, args[0], proto) {
			vm.throwError(errType, "Cyclic __proto__ value or non-extensible object")
		}
		return args[0], nil
	})
	vm.defineMethod(ctor, "create", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		proto := Arg(args, 0)
		if !proto.IsObject() && proto != Null {
			vm.throwError(errType, "Object prototype may only be an Object or null: %s", vm.safeString(proto))
		}
		return vm.newObjectKind(ObjectOrdinary, proto, nil), nil
	})
	vm.defineMethod(ctor, "defineProperty", 3, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		o := vm.argObject(args, "Object.defineProperty")
		key := vm.toPropertyKey(Arg(args, 1))
		desc := vm.asObject(Arg(args, 2))
		if desc == nil {
			vm.throwError(errType, "Property description must be an object: %s", vm.safeString(Arg(args, 2)))
		}
		vm.defineFromDescriptor(o, key, args[2], desc)
		return args[0], nil
	})
	vm.defineMethod(ctor, "freeze", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		if o := vm.asObject(Arg(args, 0)); o != nil {
			vm.freeze(o)
		}
		return Arg(args, 0), nil
	})
	vm.defineMethod(ctor, "isFrozen", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		o := vm.asObject(Arg(args, 0))
		return Bool(o == nil || vm.isFrozen(o)), nil
	})
	vm.defineMethod(ctor, "preventExtensions", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		if o := vm.asObject(Arg(args, 0)); o != nil {
			o.extensible = false
		}
		return Arg(args, 0), nil
	})
	vm.defineMethod(ctor, "isExtensible", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		o := vm.asObject(Arg(args, 0))
		return Bool(o != nil && o.extensible), nil
	})
}

// argObject returns args[0] as an object or throws.
func (vm *VM) argObject(args []Value, fn string) *Object {
	o := vm.asObject(Arg(args, 0))
	if o == nil {
		vm.throwError(errType, "%s called on non-object", fn)
	}
	return o
}

// toStringTag returns the tag Object.prototype.toString reports.
func (vm *VM) toStringTag(v Value) string {
	switch v.Type() {
	case TypeUndefined:
		return "Undefined"
	case TypeNull:
		return "Null"
	case TypeBoolean:
		return "Boolean"
	case TypeNumber:
		return "Number"
	case TypeString:
		return "String"
	case TypeSymbol:
		return "Symbol"
	case TypeBigInt:
		return "BigInt"
	}
	return vm.classOf(vm.object(v))
}

// defineFromDescriptor implements Object.defineProperty for data
// descriptors. Absent attributes default to false for new properties and
// are kept for existing ones.
func (vm *VM) defineFromDescriptor(o *Object, key, descValue Value, desc *Object) {
	field := func(name string) (Value, bool) {
		k := vm.str(name)
		if !vm.hasProperty(desc, k) {
			return Undefined, false
		}
		return vm.getFrom(descValue, desc, k), true
	}

	var attrs propAttrs
	value := Undefined
	existing := o.props.get(key)
	if existing != nil {
		if !existing.configurable() {
			vm.throwError(errType, "Cannot redefine property: %s", vm.keyString(key))
		}
		attrs, value = existing.attrs, existing.value
	} else if !o.extensible {
		vm.throwError(errType, "Cannot define property %s, object is not extensible", vm.keyString(key))
	}

	if v, ok := field("value"); ok {
		value = v
	}
	for _, f := range []struct {
		name string
		bit  propAttrs
	}{{"writable", attrWritable}, {"enumerable", attrEnumerable}, {"configurable", attrConfigurable}} {
		if v, ok := field(f.name); ok {
			if vm.toBoolean(v) {
				attrs |= f.bit
			} else {
				attrs &^= f.bit
			}
		}
	}

	if o.kind == ObjectArray {
		if key == vm.names.length {
			if !vm.setArrayLength(o, value) {
				vm.throwError(errType, "Cannot redefine property: length")
			}
			return
		}
		if idx, ok := vm.arrayIndex(key); ok {
			if o.frozen {
				vm.throwError(errType, "Cannot redefine property: %s", vm.keyString(key))
			}
			vm.setElement(o, idx, value)
			return
		}
	}
	vm.defineOwn(o, key, value, attrs)
}

func (vm *VM) isFrozen(o *Object) bool {
	if o.extensible {
		return false
	}
	if o.kind == ObjectArray && o.presentCount() > 0 && !o.frozen {
		return false
	}
	frozen := true
	o.props.each(func(p *property) bool {
		if p.writable() || p.configurable() {
			frozen = false
			return false
		}
		return true
	})
	return frozen
}
