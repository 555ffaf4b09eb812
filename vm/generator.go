package vm

import (
	"fmt"

	"github.com/chazu/kestrel/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Suspended frames
// ---------------------------------------------------------------------------

// ResumeMode selects how a suspended generator or coroutine continues.
type ResumeMode uint8

const (
	ResumeNext   ResumeMode = iota // the suspension point evaluates to the value
	ResumeReturn                   // complete immediately with the value
	ResumeThrow                    // the suspension point throws the value
)

func (m ResumeMode) String() string {
	switch m {
	case ResumeNext:
		return "next"
	case ResumeReturn:
		return "return"
	case ResumeThrow:
		return "throw"
	}
	return fmt.Sprintf("ResumeMode(%d)", m)
}

type genState uint8

const (
	genStart genState = iota
	genSuspended
	genRunning
	genDone
)

// Checkpoint is the resumption state of a parked frame: where to continue
// and the frame's locals and temporaries at the suspension point. It lives
// on the heap inside the generator object, so a parked frame can be
// resumed from any call path.
type Checkpoint struct {
	IP       int
	PC       int
	Env      Ref
	EnvDepth int
	Stack    []Value // slots from the frame's BP up to its stack top
}

type generatorData struct {
	script *Script
	fn     *bytecode.Function
	callee Value
	this   Value
	async  bool
	state  genState
	cp     Checkpoint
}

func (g *generatorData) trace(m *marker) {
	m.value(g.callee)
	m.value(g.this)
	m.ref(g.cp.Env)
	m.values(g.cp.Stack)
}

// finish marks the generator completed and drops its saved state.
func (g *generatorData) finish() {
	g.state = genDone
	g.cp = Checkpoint{}
}

// newGenerator creates the suspended generator or coroutine object for a
// call to d. Arguments are captured into the initial checkpoint.
func (vm *VM) newGenerator(d *closureData, callee, this Value, base, argc int) Value {
	fn := d.fn
	if !fn.Strict && this.IsNullish() {
		this = vm.global
	}
	stack := make([]Value, fn.NumLocals)
	for i := range stack {
		stack[i] = Undefined
	}
	copy(stack, vm.stack[base+2:base+2+min(argc, int(fn.NumParams))])

	env := d.env
	if scope := d.script.scope(fn); scope != nil {
		env = vm.newEnv(d.env, scope)
	}
	g := &generatorData{
		script: d.script,
		fn:     fn,
		callee: callee,
		this:   this,
		async:  fn.Kind == bytecode.KindAsync,
		cp:     Checkpoint{Env: env, Stack: stack},
	}

	proto := vm.intrinsics.coroutineProto
	if !g.async {
		proto = vm.constructProto(callee, vm.object(callee))
		if proto == vm.intrinsics.objectProto {
			proto = vm.intrinsics.generatorProto
		}
	}
	vm.heap.reserve(8 * len(stack))
	return vm.newObjectKind(ObjectGenerator, proto, g)
}

func (vm *VM) generator(v Value) *generatorData {
	if o := vm.asObject(v); o != nil {
		if g, ok := o.internal.(*generatorData); ok {
			return g
		}
	}
	vm.throwError(errType, "%s is not a generator", vm.safeString(v))
	return nil
}

// suspend parks the generator frame f at a yield or await, returning the
// value it suspended with.
func (vm *VM) suspend(f *CallFrame) Value {
	v := vm.pop()
	g := f.gen
	g.cp = Checkpoint{
		IP:       f.IP,
		PC:       f.PC,
		Env:      f.env,
		EnvDepth: f.envDepth,
		Stack:    append([]Value(nil), vm.stack[f.BP:vm.sp]...),
	}
	g.state = genSuspended
	vm.popFrame()
	vm.sp = f.BP - 2
	return v
}

// resume continues a suspended generator or coroutine. done reports that
// it completed, in which case the result is its return value.
func (vm *VM) resume(gv Value, mode ResumeMode, v Value) (Value, bool) {
	g := vm.generator(gv)
	switch g.state {
	case genRunning:
		vm.throwError(errType, "Generator is already running")
	case genDone:
		switch mode {
		case ResumeReturn:
			return v, true
		case ResumeThrow:
			vm.throwValue(v)
		}
		return Undefined, true
	}
	if mode == ResumeReturn {
		g.finish()
		return v, true
	}
	if mode == ResumeThrow && g.state == genStart {
		g.finish()
		vm.throwValue(v)
	}
	if len(vm.frames) >= vm.maxDepth {
		panic(fatalSignal{err: ErrStackOverflow})
	}

	cp := g.cp
	base := vm.sp
	vm.growStack(2 + len(cp.Stack) + int(g.fn.MaxStack) + 1)
	vm.push(g.callee)
	vm.push(g.this)
	for _, s := range cp.Stack {
		vm.push(s)
	}
	vm.frames = append(vm.frames, &CallFrame{
		script:   g.script,
		fn:       g.fn,
		callee:   g.callee,
		this:     g.this,
		env:      cp.Env,
		envDepth: cp.EnvDepth,
		IP:       cp.IP,
		PC:       cp.PC,
		BP:       base + 2,
		entry:    true,
		gen:      g,
	})

	var pending *Throw
	if g.state == genSuspended {
		switch mode {
		case ResumeNext:
			vm.push(v)
		case ResumeThrow:
			pending = &Throw{Value: v}
		}
	}
	g.state = genRunning
	g.cp = Checkpoint{}

	var (
		result Value
		exit   exitKind
	)
	vm.reenter(func() { result, exit = vm.run(pending) })
	vm.keepAlive(result)
	if exit == exitYield {
		return result, false
	}
	vm.sp = base
	return result, true
}

// iterResult creates a {value, done} object.
func (vm *VM) iterResult(v Value, done bool) Value {
	r := vm.newOrdinary()
	o := vm.object(r)
	vm.defineOwn(o, vm.names.value, v, attrDefault)
	vm.defineOwn(o, vm.names.done, Bool(done), attrDefault)
	return r
}
