package vm

import (
	"github.com/chazu/kestrel/pkg/bytecode"
)

// linkedScope is a bytecode scope whose binding names have been interned.
type linkedScope struct {
	names []Value // string values, parallel to kinds
	kinds []bytecode.BindingKind
}

func (vm *VM) linkScope(s *bytecode.Scope) *linkedScope {
	ls := &linkedScope{
		names: make([]Value, len(s.Names)),
		kinds: make([]bytecode.BindingKind, len(s.Names)),
	}
	for i, name := range s.Names {
		ls.names[i] = vm.str(name)
		ls.kinds[i] = s.Kind(i)
	}
	return ls
}

var emptyScope = &linkedScope{}

// Environment is a lexical scope's binding storage, chained to the
// enclosing scope through parent. Environments are heap allocations so
// closures can keep them alive and form cycles through captured values.
type Environment struct {
	parent Ref
	scope  *linkedScope
	vars   []Value
}

func (e *Environment) trace(m *marker) {
	m.ref(e.parent)
	m.values(e.vars)
}

func (e *Environment) size() int {
	return 32 + 8*len(e.vars)
}

func (e *Environment) indexOf(name Value) int {
	for i, n := range e.scope.names {
		if n == name {
			return i
		}
	}
	return -1
}

// newEnv allocates an environment for scope. Var bindings start undefined
// and lexical bindings start uninitialized.
func (vm *VM) newEnv(parent Ref, scope *linkedScope) Ref {
	vars := make([]Value, len(scope.names))
	for i := range vars {
		if scope.kinds[i] == bytecode.BindVar {
			vars[i] = Undefined
		} else {
			vars[i] = uninitialized
		}
	}
	return vm.alloc(&Environment{parent: parent, scope: scope, vars: vars})
}

func (vm *VM) env(r Ref) *Environment {
	return vm.heap.get(r).(*Environment)
}

// envAt walks depth parent links from r.
func (vm *VM) envAt(r Ref, depth int) *Environment {
	e := vm.env(r)
	for ; depth > 0; depth-- {
		if e.parent == 0 {
			panic("vm: environment depth exceeds chain")
		}
		e = vm.env(e.parent)
	}
	return e
}

// resolve finds the innermost binding named name along the chain from r.
func (vm *VM) resolve(r Ref, name Value) (*Environment, int) {
	for r != 0 {
		e := vm.env(r)
		if i := e.indexOf(name); i >= 0 {
			return e, i
		}
		r = e.parent
	}
	return nil, -1
}

// ---------------------------------------------------------------------------
// Binding access
// ---------------------------------------------------------------------------

func (vm *VM) readBinding(e *Environment, i int) Value {
	v := e.vars[i]
	if v == uninitialized {
		vm.throwError(errReference, "Cannot access '%s' before initialization", vm.goString(e.scope.names[i]))
	}
	return v
}

func (vm *VM) writeBinding(e *Environment, i int, v Value) {
	if e.vars[i] == uninitialized {
		vm.throwError(errReference, "Cannot access '%s' before initialization", vm.goString(e.scope.names[i]))
	}
	if e.scope.kinds[i] == bytecode.BindConst {
		vm.throwError(errType, "Assignment to constant variable.")
	}
	e.vars[i] = v
}

func (vm *VM) initBinding(e *Environment, i int, v Value) {
	e.vars[i] = v
}

// lookupName resolves name along the chain from env, falling back to the
// global object. ok is false when no binding or global property exists.
func (vm *VM) lookupName(env Ref, name Value) (Value, bool) {
	if e, i := vm.resolve(env, name); e != nil {
		return vm.readBinding(e, i), true
	}
	g := vm.object(vm.global)
	if !vm.hasProperty(g, name) {
		return Undefined, false
	}
	return vm.getFrom(vm.global, g, name), true
}

// getName reads a name, throwing a ReferenceError for undeclared names.
func (vm *VM) getName(env Ref, name Value) Value {
	v, ok := vm.lookupName(env, name)
	if !ok {
		vm.throwError(errReference, "%s is not defined", vm.goString(name))
	}
	return v
}

// setName assigns a name. Sloppy code creates a global property for an
// undeclared name; strict code throws a ReferenceError.
func (vm *VM) setName(env Ref, name, v Value, strict bool) {
	if e, i := vm.resolve(env, name); e != nil {
		vm.writeBinding(e, i, v)
		return
	}
	g := vm.object(vm.global)
	if strict && !vm.hasProperty(g, name) {
		vm.throwError(errReference, "%s is not defined", vm.goString(name))
	}
	vm.setProperty(vm.global, name, v, strict)
}
