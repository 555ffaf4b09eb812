package vm

// ---------------------------------------------------------------------------
// Error constructors
// ---------------------------------------------------------------------------

func (vm *VM) initErrors() {
	in := &vm.intrinsics
	for kind := errPlain; kind < numErrorKinds; kind++ {
		parent := in.objectProto
		if kind != errPlain {
			parent = in.errorProtos[errPlain]
		}
		proto := vm.newObjectKind(ObjectOrdinary, parent, nil)
		in.errorProtos[kind] = proto

		name := kind.String()
		vm.defineOwn(vm.object(proto), vm.names.name, vm.str(name), attrHidden)
		vm.defineOwn(vm.object(proto), vm.names.message, vm.names.empty, attrHidden)

		ctor := vm.newConstructor(name, 1, proto, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
			p := vm.intrinsics.errorProtos[kind]
			if ctx.IsConstruct() && this.IsObject() {
				p = vm.object(this).proto
			}
			return vm.constructError(kind, p, Arg(args, 0), Arg(args, 1)), nil
		})
		vm.defineGlobalValue(name, ctor)
	}

	vm.defineMethod(in.errorProtos[errPlain], "toString", 0, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		o := vm.thisObject(this, "Error.prototype.toString")
		name, msg := "Error", ""
		if v := vm.getFrom(this, o, vm.names.name); !v.IsUndefined() {
			name = vm.goString(vm.toString(v))
		}
		if v := vm.getFrom(this, o, vm.names.message); !v.IsUndefined() {
			msg = vm.goString(vm.toString(v))
		}
		switch {
		case name == "":
			return vm.str(msg), nil
		case msg == "":
			return vm.str(name), nil
		}
		return vm.str(name + ": " + msg), nil
	})
}

// constructError builds the object an Error constructor returns. The
// message is only an own property when one was given; options.cause is
// copied when present.
func (vm *VM) constructError(kind ErrorKind, proto, message, options Value) Value {
	v := vm.newObjectKind(ObjectError, proto, nil)
	o := vm.object(v)
	msg := ""
	if !message.IsUndefined() {
		s := vm.toString(message)
		msg = vm.goString(s)
		vm.defineOwn(o, vm.names.message, s, attrHidden)
	}
	if opts := vm.asObject(options); opts != nil && vm.hasProperty(opts, vm.names.cause) {
		vm.defineOwn(o, vm.names.cause, vm.getFrom(options, opts, vm.names.cause), attrHidden)
	}
	vm.defineOwn(o, vm.names.stack, vm.str(vm.captureStack(kind.String(), msg)), attrHidden)
	return v
}
