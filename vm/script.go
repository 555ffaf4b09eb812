package vm

import (
	"fmt"
	"math/big"

	"github.com/chazu/kestrel/pkg/bytecode"
)

// Script is a Program linked into one VM: string constants are interned
// into the VM's interner and scopes are resolved to interned names. A
// Script holds no heap references, so it needs no rooting and may be run
// any number of times.
type Script struct {
	vm      *VM
	program *bytecode.Program
	consts  []Value        // numbers and strings; other kinds are undefined
	bigints []*big.Int     // parallel to consts; nil unless the constant is a BigInt
	scopes  []*linkedScope // parallel to consts; nil unless the constant is a Scope
}

// Load validates p and links it into the VM.
func (vm *VM) Load(p *bytecode.Program) (*Script, error) {
	if vm.closed {
		return nil, ErrClosed
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	s := &Script{
		vm:      vm,
		program: p,
		consts:  make([]Value, len(p.Constants)),
		bigints: make([]*big.Int, len(p.Constants)),
		scopes:  make([]*linkedScope, len(p.Constants)),
	}
	for i, c := range p.Constants {
		s.consts[i] = Undefined
		switch c.Kind {
		case bytecode.ConstNumber:
			s.consts[i] = Number(c.Number)
		case bytecode.ConstString:
			s.consts[i] = vm.str(c.Text)
		case bytecode.ConstBigInt:
			n, ok := new(big.Int).SetString(c.Text, 10)
			if !ok {
				return nil, fmt.Errorf("load: constant %d: malformed BigInt %q", i, c.Text)
			}
			s.bigints[i] = n
		case bytecode.ConstScope:
			s.scopes[i] = vm.linkScope(c.Scope)
		}
	}
	return s, nil
}

// Program returns the program the script was linked from.
func (s *Script) Program() *bytecode.Program {
	return s.program
}

// constant returns the runtime value of constant i. BigInt constants
// allocate a fresh cell on every use; BigInt equality is by value.
func (s *Script) constant(i int) Value {
	if n := s.bigints[i]; n != nil {
		return s.vm.newBigInt(new(big.Int).Set(n))
	}
	return s.consts[i]
}

func (s *Script) scope(fn *bytecode.Function) *linkedScope {
	if fn.Scope < 0 {
		return nil
	}
	return s.scopes[fn.Scope]
}
