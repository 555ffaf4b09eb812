package vm

import (
	"io"
	"os"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/kestrel/config"
	"github.com/chazu/kestrel/pkg/intern"
)

// ---------------------------------------------------------------------------
// VM: The Kestrel engine instance
// ---------------------------------------------------------------------------

// Default interpreter limits.
const (
	DefaultMaxCallDepth = 1024
	DefaultStackSize    = 1024
)

// VM is one engine instance: a heap, its global object and environment,
// and the interpreter state running against them. A VM is confined to one
// goroutine at a time; distinct VMs share nothing mutable and may run in
// parallel. Only Interrupt may be called from another goroutine.
type VM struct {
	// ID identifies the instance in logs and snapshots.
	ID uuid.UUID

	heap    *Heap
	strings intern.Interner

	// Well-known strings and intrinsic objects
	names      names
	intrinsics intrinsics

	// Global state
	global    Value
	globalEnv Ref

	// Execution state
	stack    []Value      // operand stack
	sp       int          // stack pointer (next free slot)
	frames   []*CallFrame // call stack
	maxDepth int          // frame limit; exceeding it is a stack overflow
	depth    int          // nesting of host entries (Run, Call, ...)

	// Allocations made while a native function runs stay rooted until the
	// outermost native call returns.
	nativeRoots []Value
	nativeDepth int

	// Host-held roots
	pins    map[uint64]Value
	nextPin uint64

	// Result and thrown value of the latest top-level execution.
	lastResult Value
	lastThrown Value

	// fatal is set when a fatal condition crosses a native boundary as an
	// error, so it is re-raised even if the native swallows it.
	fatal error

	// arrays being joined, to cut cycles
	joining []Value

	interrupted atomic.Bool
	closed      bool

	stdout io.Writer
	log    commonlog.Logger
}

// Option configures a VM.
type Option func(*vmConfig)

type vmConfig struct {
	interner     intern.Interner
	maxDepth     int
	stackSize    int
	minThreshold int64
	growth       float64
	maxBytes     int64
	stdout       io.Writer
	hooks        []func(CollectStats)
}

// WithInterner shares an interner between engines. The default is a fresh
// intern.Table per VM.
func WithInterner(in intern.Interner) Option {
	return func(c *vmConfig) { c.interner = in }
}

// WithMaxCallDepth sets the frame limit beyond which calls fail with
// ErrStackOverflow.
func WithMaxCallDepth(n int) Option {
	return func(c *vmConfig) { c.maxDepth = n }
}

// WithStackSize sets the initial operand stack size in slots.
func WithStackSize(n int) Option {
	return func(c *vmConfig) { c.stackSize = n }
}

// WithHeapPolicy sets the collection trigger and the heap limit. Zero
// values keep the defaults; maxBytes 0 means unlimited.
//
// String values are interned and never reclaimed. When the interner
// reports its size, as *intern.Table does, content interned after the VM
// was created counts against maxBytes for as long as the interner lives,
// so a script that keeps building new strings eventually fails with
// ErrOutOfMemory even if it drops them. With a shared interner this
// includes strings interned by other VMs.
func WithHeapPolicy(minThreshold int64, growth float64, maxBytes int64) Option {
	return func(c *vmConfig) {
		c.minThreshold = minThreshold
		c.growth = growth
		c.maxBytes = maxBytes
	}
}

// WithStdout sets where print writes.
func WithStdout(w io.Writer) Option {
	return func(c *vmConfig) { c.stdout = w }
}

// WithCollectHook registers a hook receiving every cycle's statistics.
func WithCollectHook(fn func(CollectStats)) Option {
	return func(c *vmConfig) { c.hooks = append(c.hooks, fn) }
}

// WithConfig applies the heap and interpreter sections of a loaded
// configuration. Zero settings keep the defaults.
func WithConfig(cfg *config.Config) Option {
	return func(c *vmConfig) {
		if cfg == nil {
			return
		}
		c.minThreshold = int64(cfg.Heap.InitialThreshold)
		c.growth = cfg.Heap.Growth
		c.maxBytes = int64(cfg.Heap.MaxBytes)
		if cfg.Interpreter.MaxCallDepth > 0 {
			c.maxDepth = cfg.Interpreter.MaxCallDepth
		}
		if cfg.Interpreter.StackSize > 0 {
			c.stackSize = cfg.Interpreter.StackSize
		}
	}
}

// NewVM creates an engine with its own heap, global object and intrinsics.
func NewVM(opts ...Option) *VM {
	cfg := &vmConfig{
		maxDepth:  DefaultMaxCallDepth,
		stackSize: DefaultStackSize,
		stdout:    os.Stdout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.interner == nil {
		cfg.interner = intern.NewTable()
	}

	vm := &VM{
		ID:         uuid.New(),
		heap:       NewHeap(),
		strings:    cfg.interner,
		stack:      make([]Value, max(cfg.stackSize, 64)),
		maxDepth:   max(cfg.maxDepth, 1),
		pins:       make(map[uint64]Value),
		lastResult: Undefined,
		lastThrown: Undefined,
		stdout:     cfg.stdout,
		log:        commonlog.GetLogger("kestrel.interp"),
	}
	vm.heap.SetPolicy(cfg.minThreshold, cfg.growth, cfg.maxBytes)
	for _, hook := range cfg.hooks {
		vm.heap.OnCollect(hook)
	}
	vm.heap.AddRoot(vm.markRoots)

	vm.names.init(vm)
	vm.bootstrap()
	if sized, ok := vm.strings.(interface{ Bytes() int64 }); ok {
		base := sized.Bytes()
		vm.heap.external = func() int64 { return max(0, sized.Bytes()-base) }
	}

	vm.log.Debugf("vm %s: started with %d intrinsic allocations", vm.ID, vm.heap.Live())
	return vm
}

// markRoots marks everything the interpreter can reach directly: the
// global object and environment, intrinsics, the live operand stack,
// frames, native temporaries, pinned handles and the last results.
func (vm *VM) markRoots(m *marker) {
	m.value(vm.global)
	m.ref(vm.globalEnv)
	vm.intrinsics.trace(m)
	m.values(vm.stack[:vm.sp])
	for _, f := range vm.frames {
		f.trace(m)
	}
	m.values(vm.nativeRoots)
	for _, v := range vm.pins {
		m.value(v)
	}
	m.value(vm.lastResult)
	m.value(vm.lastThrown)
}

// Heap returns the engine's heap.
func (vm *VM) Heap() *Heap {
	return vm.heap
}

// Interner returns the interner string values are resolved against.
func (vm *VM) Interner() intern.Interner {
	return vm.strings
}

// Global returns the global object.
func (vm *VM) Global() Value {
	return vm.global
}

// Collect runs a collection cycle. It is only honored between executions
// and at interpreter safe points; inside a native function it is a no-op
// because the native's Go locals are not visible to the collector beyond
// its rooted temporaries.
func (vm *VM) Collect() CollectStats {
	if vm.closed || vm.nativeDepth > 0 {
		return CollectStats{}
	}
	return vm.heap.Collect()
}

// Interrupt asks the running execution to stop at its next safe point
// with ErrTerminated. It is safe to call from any goroutine.
func (vm *VM) Interrupt() {
	vm.interrupted.Store(true)
}

// Shutdown tears the engine down: every outstanding finalizer runs once
// and further operations fail with ErrClosed.
func (vm *VM) Shutdown() {
	if vm.closed {
		return
	}
	n := vm.heap.finalizeAll()
	vm.closed = true
	vm.pins = nil
	vm.frames = nil
	vm.sp = 0
	vm.log.Debugf("vm %s: shut down, %d finalizers run", vm.ID, n)
}

// ---------------------------------------------------------------------------
// Well-known strings
// ---------------------------------------------------------------------------

// names caches interned strings the engine uses internally.
type names struct {
	empty       Value
	undefined   Value
	null        Value
	true_       Value
	false_      Value
	length      Value
	name        Value
	message     Value
	stack       Value
	cause       Value
	prototype   Value
	constructor Value
	valueOf     Value
	toString    Value
	toJSON      Value
	value       Value
	done        Value
	next        Value
	size        Value
}

func (n *names) init(vm *VM) {
	n.empty = vm.str("")
	n.undefined = vm.str("undefined")
	n.null = vm.str("null")
	n.true_ = vm.str("true")
	n.false_ = vm.str("false")
	n.length = vm.str("length")
	n.name = vm.str("name")
	n.message = vm.str("message")
	n.stack = vm.str("stack")
	n.cause = vm.str("cause")
	n.prototype = vm.str("prototype")
	n.constructor = vm.str("constructor")
	n.valueOf = vm.str("valueOf")
	n.toString = vm.str("toString")
	n.toJSON = vm.str("toJSON")
	n.value = vm.str("value")
	n.done = vm.str("done")
	n.next = vm.str("next")
	n.size = vm.str("size")
}

// ---------------------------------------------------------------------------
// Intrinsics
// ---------------------------------------------------------------------------

// intrinsics are the built-in prototypes and constructors. They are
// rooted independently of the global object so deleting a global never
// invalidates the engine's own references.
type intrinsics struct {
	objectProto    Value
	functionProto  Value
	arrayProto     Value
	stringProto    Value
	numberProto    Value
	booleanProto   Value
	symbolProto    Value
	bigIntProto    Value
	errorProtos    [numErrorKinds]Value
	generatorProto Value
	coroutineProto Value
	weakRefProto   Value
	hostProto      Value
	iteratorProto  Value
	iteratorSymbol Value
	setProto       Value
	mapProto       Value
}

func (in *intrinsics) trace(m *marker) {
	m.value(in.objectProto)
	m.value(in.functionProto)
	m.value(in.arrayProto)
	m.value(in.stringProto)
	m.value(in.numberProto)
	m.value(in.booleanProto)
	m.value(in.symbolProto)
	m.value(in.bigIntProto)
	m.values(in.errorProtos[:])
	m.value(in.generatorProto)
	m.value(in.coroutineProto)
	m.value(in.weakRefProto)
	m.value(in.hostProto)
	m.value(in.iteratorProto)
	m.value(in.iteratorSymbol)
	m.value(in.setProto)
	m.value(in.mapProto)
}
