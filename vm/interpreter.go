package vm

import (
	"encoding/binary"

	"github.com/chazu/kestrel/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// CallFrame: Execution state for a function invocation
// ---------------------------------------------------------------------------

// CallFrame is the execution record of one interpreted invocation. Its
// operand stack region lives on the VM stack: the callee and receiver sit
// at BP-2 and BP-1, locals (parameters first) at BP, and temporaries
// above them.
type CallFrame struct {
	script   *Script
	fn       *bytecode.Function
	callee   Value
	this     Value
	env      Ref // current environment, including pushed block scopes
	envDepth int // block scopes pushed above the function environment

	IP int // next instruction
	PC int // start of the executing instruction; faults are located here
	BP int // first local slot

	entry     bool           // run returns when this frame completes
	construct bool           // a non-object result is replaced by this
	gen       *generatorData // non-nil for generator and coroutine frames
}

// Function returns the compiled function being executed.
func (f *CallFrame) Function() *bytecode.Function {
	return f.fn
}

func (f *CallFrame) trace(m *marker) {
	m.value(f.callee)
	m.value(f.this)
	m.ref(f.env)
}

// ---------------------------------------------------------------------------
// Operand stack
// ---------------------------------------------------------------------------

func (vm *VM) push(v Value) {
	if vm.sp >= len(vm.stack) {
		vm.growStack(1)
	}
	vm.stack[vm.sp] = v
	vm.sp++
}

func (vm *VM) pop() Value {
	if vm.sp <= 0 {
		panic("stack underflow")
	}
	vm.sp--
	return vm.stack[vm.sp]
}

func (vm *VM) top() Value {
	return vm.stack[vm.sp-1]
}

// growStack makes room for n more slots. Code holds stack indices, never
// slices, across anything that can grow the stack.
func (vm *VM) growStack(n int) {
	if vm.sp+n <= len(vm.stack) {
		return
	}
	size := max(2*len(vm.stack), vm.sp+n)
	stack := make([]Value, size)
	copy(stack, vm.stack[:vm.sp])
	vm.stack = stack
}

// ---------------------------------------------------------------------------
// Frame management
// ---------------------------------------------------------------------------

// pushFrame enters fn with callee and receiver at base and base+1 and argc
// arguments above them. Missing parameters become undefined and extra
// arguments are dropped.
func (vm *VM) pushFrame(d *closureData, callee, this Value, base, argc int, entry bool) *CallFrame {
	if len(vm.frames) >= vm.maxDepth {
		panic(fatalSignal{err: ErrStackOverflow})
	}
	fn := d.fn
	bp := base + 2
	vm.sp = bp + min(argc, int(fn.NumParams))
	vm.growStack(int(fn.NumLocals) + int(fn.MaxStack))
	for vm.sp < bp+int(fn.NumLocals) {
		vm.stack[vm.sp] = Undefined
		vm.sp++
	}

	switch {
	case fn.Kind == bytecode.KindArrow:
		this = d.this
	case !fn.Strict && this.IsNullish():
		this = vm.global
	}

	env := d.env
	if scope := d.script.scope(fn); scope != nil {
		env = vm.newEnv(d.env, scope)
	}
	f := &CallFrame{
		script: d.script,
		fn:     fn,
		callee: callee,
		this:   this,
		env:    env,
		BP:     bp,
		entry:  entry,
	}
	vm.frames = append(vm.frames, f)
	return f
}

func (vm *VM) popFrame() *CallFrame {
	n := len(vm.frames) - 1
	f := vm.frames[n]
	vm.frames[n] = nil
	vm.frames = vm.frames[:n]
	return f
}

func (vm *VM) currentFrame() *CallFrame {
	if len(vm.frames) == 0 {
		return nil
	}
	return vm.frames[len(vm.frames)-1]
}

// currentEnv is the environment natives see: the innermost frame's, or the
// global environment when called directly from the host.
func (vm *VM) currentEnv() Ref {
	if f := vm.currentFrame(); f != nil {
		return f.env
	}
	return vm.globalEnv
}

// ---------------------------------------------------------------------------
// Main interpreter loop
// ---------------------------------------------------------------------------

// exitKind tells run how the entry frame left the loop.
type exitKind uint8

const (
	exitReturn exitKind = iota
	exitYield
)

// run executes frames until the topmost frame, which must be an entry
// frame, returns or suspends. A pending throw is raised at the entry
// frame's current instruction before execution continues. An uncaught
// throw unwinds every frame down to and including the entry frame and is
// re-panicked to the caller.
func (vm *VM) run(pending *Throw) (Value, exitKind) {
	entry := len(vm.frames) - 1
	for {
		if pending != nil {
			if !vm.catch(pending, entry) {
				vm.unwind(entry)
				panic(pending)
			}
			pending = nil
		}
		result, exit, thrown := vm.execute(entry)
		if thrown == nil {
			return result, exit
		}
		pending = thrown
	}
}

// execute runs the loop and converts a panicking throw into a return
// value. Fatal signals and interpreter defects keep unwinding.
func (vm *VM) execute(entry int) (result Value, exit exitKind, thrown *Throw) {
	defer func() {
		if r := recover(); r != nil {
			t, ok := r.(*Throw)
			if !ok {
				panic(r)
			}
			thrown = t
		}
	}()
	result, exit = vm.loop(entry)
	return result, exit, nil
}

// catch searches frames from the innermost down to entry for a handler
// covering the faulting instruction. On success the frame is unwound to
// the handler's recorded depths, the thrown value is pushed and execution
// resumes at the handler target.
func (vm *VM) catch(t *Throw, entry int) bool {
	for i := len(vm.frames) - 1; i >= entry; i-- {
		f := vm.frames[i]
		h, ok := f.fn.FindHandler(uint32(f.PC))
		if !ok {
			continue
		}
		for len(vm.frames)-1 > i {
			vm.popFrame()
		}
		for f.envDepth > int(h.EnvDepth) {
			f.env = vm.env(f.env).parent
			f.envDepth--
		}
		vm.sp = f.BP + int(f.fn.NumLocals) + int(h.StackDepth)
		vm.push(t.Value)
		f.IP = int(h.Target)
		f.PC = f.IP
		return true
	}
	return false
}

// unwind pops every frame down to and including entry and releases the
// entry frame's stack region.
func (vm *VM) unwind(entry int) {
	base := vm.frames[entry].BP - 2
	for len(vm.frames) > entry {
		f := vm.popFrame()
		if f.gen != nil {
			f.gen.finish()
		}
	}
	vm.sp = base
}

// safePoint is reached between instructions at backward jumps, calls and
// constructions. Every live value is on the operand stack, in a frame or
// behind a registered root here.
func (vm *VM) safePoint() {
	if vm.interrupted.Load() {
		panic(fatalSignal{err: ErrTerminated})
	}
	if vm.heap.ShouldCollect() {
		vm.heap.Collect()
	}
	// Strings are interned without allocating a cell, so check the limit
	// here as well.
	vm.heap.reserve(0)
}

func (vm *VM) readU16(code []byte, f *CallFrame) int {
	v := binary.LittleEndian.Uint16(code[f.IP:])
	f.IP += 2
	return int(v)
}

// loop is the fetch-decode-execute cycle.
func (vm *VM) loop(entry int) (Value, exitKind) {
	for {
		f := vm.frames[len(vm.frames)-1]
		code := f.fn.Code
		if f.IP >= len(code) {
			if v, done := vm.doReturn(Undefined); done {
				return v, exitReturn
			}
			continue
		}

		f.PC = f.IP
		op := bytecode.Opcode(code[f.IP])
		f.IP++

		switch op {
		// Stack manipulation
		case bytecode.OpNop:
		case bytecode.OpPop:
			vm.sp--
		case bytecode.OpDup:
			vm.push(vm.top())
		case bytecode.OpSwap:
			vm.stack[vm.sp-1], vm.stack[vm.sp-2] = vm.stack[vm.sp-2], vm.stack[vm.sp-1]
		case bytecode.OpDup2:
			a, b := vm.stack[vm.sp-2], vm.stack[vm.sp-1]
			vm.push(a)
			vm.push(b)

		// Constants
		case bytecode.OpConst:
			vm.push(f.script.constant(vm.readU16(code, f)))
		case bytecode.OpUndefined:
			vm.push(Undefined)
		case bytecode.OpNull:
			vm.push(Null)
		case bytecode.OpTrue:
			vm.push(True)
		case bytecode.OpFalse:
			vm.push(False)
		case bytecode.OpInt8:
			vm.push(Number(float64(int8(code[f.IP]))))
			f.IP++
		case bytecode.OpThis:
			vm.push(f.this)
		case bytecode.OpClosure:
			fn := f.script.program.Function(vm.readU16(code, f))
			vm.push(vm.makeClosure(f.script, fn, f.env, f.this))

		// Locals
		case bytecode.OpGetLocal:
			vm.push(vm.stack[f.BP+vm.readU16(code, f)])
		case bytecode.OpSetLocal:
			vm.stack[f.BP+vm.readU16(code, f)] = vm.top()

		// Environments
		case bytecode.OpGetEnv:
			depth := int(code[f.IP])
			f.IP++
			vm.push(vm.readBinding(vm.envAt(f.env, depth), vm.readU16(code, f)))
		case bytecode.OpSetEnv:
			depth := int(code[f.IP])
			f.IP++
			vm.writeBinding(vm.envAt(f.env, depth), vm.readU16(code, f), vm.top())
		case bytecode.OpInitEnv:
			depth := int(code[f.IP])
			f.IP++
			vm.initBinding(vm.envAt(f.env, depth), vm.readU16(code, f), vm.top())
			vm.sp--
		case bytecode.OpPushEnv:
			scope := f.script.scopes[vm.readU16(code, f)]
			f.env = vm.newEnv(f.env, scope)
			f.envDepth++
		case bytecode.OpPopEnv:
			if f.envDepth == 0 {
				panic("vm: POP_ENV without a block scope")
			}
			f.env = vm.env(f.env).parent
			f.envDepth--
		case bytecode.OpGetName:
			vm.push(vm.getName(f.env, f.script.consts[vm.readU16(code, f)]))
		case bytecode.OpSetName:
			vm.setName(f.env, f.script.consts[vm.readU16(code, f)], vm.top(), f.fn.Strict)
		case bytecode.OpTypeOfName:
			v, ok := vm.lookupName(f.env, f.script.consts[vm.readU16(code, f)])
			if !ok {
				v = Undefined
			}
			vm.push(vm.typeOf(v))
		case bytecode.OpDefineGlobal:
			vm.defineGlobal(f.script.consts[vm.readU16(code, f)], vm.top())
			vm.sp--

		// Objects
		case bytecode.OpNewObject:
			vm.push(vm.newOrdinary())
		case bytecode.OpNewArray:
			n := vm.readU16(code, f)
			arr := vm.newArray(vm.stack[vm.sp-n : vm.sp])
			vm.sp -= n
			vm.push(arr)
		case bytecode.OpGetProp:
			name := f.script.consts[vm.readU16(code, f)]
			vm.stack[vm.sp-1] = vm.getProperty(vm.top(), name)
		case bytecode.OpSetProp:
			name := f.script.consts[vm.readU16(code, f)]
			vm.setProperty(vm.stack[vm.sp-2], name, vm.top(), f.fn.Strict)
			vm.stack[vm.sp-2] = vm.top()
			vm.sp--
		case bytecode.OpGetIndex:
			v := vm.getIndex(vm.stack[vm.sp-2], vm.top())
			vm.stack[vm.sp-2] = v
			vm.sp--
		case bytecode.OpSetIndex:
			vm.setIndex(vm.stack[vm.sp-3], vm.stack[vm.sp-2], vm.top(), f.fn.Strict)
			vm.stack[vm.sp-3] = vm.top()
			vm.sp -= 2
		case bytecode.OpDeleteProp:
			name := f.script.consts[vm.readU16(code, f)]
			vm.stack[vm.sp-1] = Bool(vm.deleteValue(vm.top(), name, f.fn.Strict))
		case bytecode.OpDeleteIndex:
			key := vm.toPropertyKey(vm.top())
			vm.stack[vm.sp-2] = Bool(vm.deleteValue(vm.stack[vm.sp-2], key, f.fn.Strict))
			vm.sp--
		case bytecode.OpDefineProp:
			name := f.script.consts[vm.readU16(code, f)]
			vm.defineOwn(vm.object(vm.stack[vm.sp-2]), name, vm.top(), attrDefault)
			vm.sp--
		case bytecode.OpIn:
			r := vm.in(vm.stack[vm.sp-2], vm.top())
			vm.stack[vm.sp-2] = Bool(r)
			vm.sp--
		case bytecode.OpInstanceOf:
			r := vm.instanceOf(vm.stack[vm.sp-2], vm.top())
			vm.stack[vm.sp-2] = Bool(r)
			vm.sp--

		// Arithmetic and bitwise
		case bytecode.OpAdd:
			r := vm.add(vm.sp - 2)
			vm.stack[vm.sp-2] = r
			vm.sp--
		case bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod, bytecode.OpExp,
			bytecode.OpBitAnd, bytecode.OpBitOr, bytecode.OpBitXor,
			bytecode.OpShl, bytecode.OpShr, bytecode.OpUShr:
			r := vm.arith(op, vm.sp-2)
			vm.stack[vm.sp-2] = r
			vm.sp--
		case bytecode.OpNeg, bytecode.OpPlus, bytecode.OpInc, bytecode.OpDec, bytecode.OpBitNot:
			vm.stack[vm.sp-1] = vm.unary(op, vm.sp-1)

		// Comparison and logic
		case bytecode.OpEq, bytecode.OpNe:
			r := vm.looseEquals(vm.stack[vm.sp-2], vm.top())
			vm.stack[vm.sp-2] = Bool(r == (op == bytecode.OpEq))
			vm.sp--
		case bytecode.OpStrictEq, bytecode.OpStrictNe:
			r := vm.strictEquals(vm.stack[vm.sp-2], vm.top())
			vm.stack[vm.sp-2] = Bool(r == (op == bytecode.OpStrictEq))
			vm.sp--
		case bytecode.OpLt, bytecode.OpLe, bytecode.OpGt, bytecode.OpGe:
			r := vm.relational(op, vm.sp-2)
			vm.stack[vm.sp-2] = Bool(r)
			vm.sp--
		case bytecode.OpNot:
			vm.stack[vm.sp-1] = Bool(!vm.toBoolean(vm.top()))
		case bytecode.OpTypeOf:
			vm.stack[vm.sp-1] = vm.typeOf(vm.top())

		// Control flow
		case bytecode.OpJump:
			vm.jump(f, code)
		case bytecode.OpJumpIfFalse, bytecode.OpJumpIfTrue:
			cond := vm.toBoolean(vm.pop())
			if cond == (op == bytecode.OpJumpIfTrue) {
				vm.jump(f, code)
			} else {
				f.IP += 4
			}
		case bytecode.OpJumpIfFalseKeep, bytecode.OpJumpIfTrueKeep:
			if vm.toBoolean(vm.top()) == (op == bytecode.OpJumpIfTrueKeep) {
				vm.jump(f, code)
			} else {
				vm.sp--
				f.IP += 4
			}
		case bytecode.OpJumpIfNotNullish:
			if !vm.top().IsNullish() {
				vm.jump(f, code)
			} else {
				vm.sp--
				f.IP += 4
			}

		// Calls
		case bytecode.OpCall, bytecode.OpNew:
			argc := int(code[f.IP])
			f.IP++
			vm.safePoint()
			vm.call(vm.sp-argc-2, argc, op == bytecode.OpNew, false)
		case bytecode.OpReturn:
			if v, done := vm.doReturn(vm.top()); done {
				return v, exitReturn
			}
		case bytecode.OpReturnUndefined:
			if v, done := vm.doReturn(Undefined); done {
				return v, exitReturn
			}
		case bytecode.OpThrow:
			vm.throwValue(vm.pop())

		// Suspension
		case bytecode.OpYield, bytecode.OpAwait:
			if f.gen == nil || f.gen.async != (op == bytecode.OpAwait) {
				vm.throwError(errSyntax, "%s is not valid in %s function", op, f.fn.Kind)
			}
			return vm.suspend(f), exitYield

		default:
			panic("vm: unknown opcode " + op.String())
		}
	}
}

// jump transfers control to the u32 target at IP. Backward jumps are
// safe points.
func (vm *VM) jump(f *CallFrame, code []byte) {
	target := int(binary.LittleEndian.Uint32(code[f.IP:]))
	if target <= f.PC {
		vm.safePoint()
	}
	f.IP = target
}

// doReturn completes the top frame with v, storing the result in the
// callee slot. done reports that the completed frame was an entry frame.
func (vm *VM) doReturn(v Value) (Value, bool) {
	f := vm.popFrame()
	if f.construct && !v.IsObject() {
		v = f.this
	}
	if f.gen != nil {
		f.gen.finish()
	}
	vm.sp = f.BP - 2
	vm.stack[vm.sp] = v
	vm.sp++
	return v, f.entry
}

func (vm *VM) defineGlobal(name, v Value) {
	g := vm.object(vm.global)
	if p := g.props.get(name); p != nil {
		if p.writable() {
			p.value = v
		}
		return
	}
	vm.defineOwn(g, name, v, attrWritable|attrEnumerable)
}

// deleteValue implements delete on an arbitrary base value.
func (vm *VM) deleteValue(base, key Value, strict bool) bool {
	if base.IsNullish() {
		vm.throwError(errType, "Cannot convert undefined or null to object")
	}
	o := vm.asObject(base)
	if o == nil {
		return true
	}
	return vm.deleteProperty(o, key, strict)
}
