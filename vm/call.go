package vm

import (
	"github.com/chazu/kestrel/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Invocation
// ---------------------------------------------------------------------------

// call invokes the callee at stack[base] with the receiver at base+1 and
// argc arguments above it. Interpreted callees get a new frame and return
// true, leaving the loop (or run, for entry frames) to execute it. Every
// other callee completes immediately with its result stored at base.
func (vm *VM) call(base, argc int, construct, entry bool) bool {
	for {
		callee := vm.stack[base]
		o := vm.asObject(callee)
		if o == nil || !o.isCallable() {
			vm.throwError(errType, "%s is not a function", vm.safeString(callee))
		}
		if construct && !vm.isConstructor(o) {
			vm.throwError(errType, "%s is not a constructor", vm.safeString(callee))
		}

		switch d := o.internal.(type) {
		case *closureData:
			if construct {
				vm.stack[base+1] = vm.newObjectKind(ObjectOrdinary, vm.constructProto(callee, o), nil)
			}
			switch d.fn.Kind {
			case bytecode.KindGenerator, bytecode.KindAsync:
				vm.stack[base] = vm.newGenerator(d, callee, vm.stack[base+1], base, argc)
				vm.sp = base + 1
				return false
			}
			f := vm.pushFrame(d, callee, vm.stack[base+1], base, argc, entry)
			f.construct = construct
			return true

		case *nativeData:
			this := vm.stack[base+1]
			if construct {
				this = vm.newObjectKind(ObjectOrdinary, vm.constructProto(callee, o), nil)
				vm.stack[base+1] = this
			}
			args := vm.stack[base+2 : base+2+argc : base+2+argc]
			result := vm.callNative(d, this, args, construct)
			if construct && !result.IsObject() {
				result = vm.stack[base+1]
			}
			vm.stack[base] = result
			vm.sp = base + 1
			return false

		case *boundData:
			// Replace the callee with the target and splice in the bound
			// arguments, then dispatch again.
			n := len(d.args)
			vm.sp = base + 2 + argc
			vm.growStack(n)
			copy(vm.stack[base+2+n:], vm.stack[base+2:base+2+argc])
			copy(vm.stack[base+2:], d.args)
			vm.sp += n
			argc += n
			vm.stack[base] = d.target
			if !construct {
				vm.stack[base+1] = d.this
			}

		default:
			panic("vm: callable object without call behavior")
		}
	}
}

// constructProto returns the prototype for objects created by new ctor.
func (vm *VM) constructProto(ctor Value, o *Object) Value {
	if p := vm.getFrom(ctor, o, vm.names.prototype); p.IsObject() {
		return p
	}
	return vm.intrinsics.objectProto
}

// callNative runs a host function. Objects the native allocates stay
// rooted until it returns; a fatal condition it swallowed is re-raised.
func (vm *VM) callNative(d *nativeData, this Value, args []Value, construct bool) (result Value) {
	vm.rooted(func() {
		ctx := &NativeContext{vm: vm, env: vm.currentEnv(), construct: construct}
		var err error
		result, err = d.fn(ctx, this, args)
		if vm.fatal != nil {
			panic(fatalSignal{err: vm.fatal})
		}
		if err != nil {
			vm.raise(err, d.name)
		}
	})
	return result
}

// rooted runs fn with every allocation and call result it produces kept
// alive until fn returns.
func (vm *VM) rooted(fn func()) {
	mark := len(vm.nativeRoots)
	vm.nativeDepth++
	defer func() {
		vm.nativeDepth--
		clear(vm.nativeRoots[mark:])
		vm.nativeRoots = vm.nativeRoots[:mark]
	}()
	fn()
}

// invoke calls fn synchronously and returns its result or its uncaught
// throw as an error. It is the re-entry point for natives, conversions and
// the host: a fresh entry frame runs on top of whatever is executing.
func (vm *VM) invoke(fn, this Value, args []Value, construct bool) (result Value, err error) {
	base, depth := vm.sp, len(vm.frames)
	defer func() {
		if r := recover(); r != nil {
			for len(vm.frames) > depth {
				if f := vm.popFrame(); f.gen != nil {
					f.gen.finish()
				}
			}
			vm.sp = base
			switch x := r.(type) {
			case *Throw:
				vm.keepAlive(x.Value)
				err = x
			case fatalSignal:
				vm.fatal = x.err
				err = x.err
			default:
				panic(r)
			}
		}
	}()

	vm.growStack(len(args) + 2)
	vm.push(fn)
	vm.push(this)
	for _, a := range args {
		vm.push(a)
	}
	vm.reenter(func() {
		if vm.call(base, len(args), construct, true) {
			vm.run(nil)
		}
	})
	result = vm.stack[base]
	vm.sp = base
	vm.keepAlive(result)
	return result, nil
}

// reenter runs interpreted code on behalf of a native. Its frames and
// operand stack are traced directly, so allocations made while it runs are
// not added to the enclosing native's temporaries and can be reclaimed
// before the native returns.
func (vm *VM) reenter(fn func()) {
	depth := vm.nativeDepth
	vm.nativeDepth = 0
	defer func() { vm.nativeDepth = depth }()
	fn()
}

// keepAlive roots v until the active native call returns.
func (vm *VM) keepAlive(v Value) {
	if vm.nativeDepth > 0 && v.isHeap() {
		vm.nativeRoots = append(vm.nativeRoots, v)
	}
}

// ---------------------------------------------------------------------------
// NativeContext
// ---------------------------------------------------------------------------

// NativeContext is passed to native functions. It is valid only for the
// duration of the call.
type NativeContext struct {
	vm        *VM
	env       Ref
	construct bool
}

// VM returns the engine running the call.
func (c *NativeContext) VM() *VM {
	return c.vm
}

// IsConstruct reports whether the native was invoked with new.
func (c *NativeContext) IsConstruct() bool {
	return c.construct
}

// Global returns the global object.
func (c *NativeContext) Global() Value {
	return c.vm.global
}

// Lookup resolves name in the caller's environment chain, falling back to
// the global object.
func (c *NativeContext) Lookup(name string) (Value, bool) {
	var (
		v  Value
		ok bool
	)
	err := c.vm.host(func() {
		v, ok = c.vm.lookupName(c.env, c.vm.str(name))
	})
	if err != nil {
		return Undefined, false
	}
	return v, ok
}

// Call invokes fn from inside a native function.
func (c *NativeContext) Call(fn, this Value, args ...Value) (Value, error) {
	return c.vm.invoke(fn, this, args, false)
}

// Arg returns argument i, or undefined when absent.
func Arg(args []Value, i int) Value {
	if i < len(args) {
		return args[i]
	}
	return Undefined
}
