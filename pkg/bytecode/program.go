package bytecode

import (
	"encoding/binary"
	"fmt"
	"math"
)

// FormatVersion is the current program format version.
// Increment when making incompatible changes to the format.
const FormatVersion uint16 = 1

// ConstKind identifies what a constant pool entry holds.
type ConstKind uint8

const (
	ConstNumber   ConstKind = 0
	ConstString   ConstKind = 1
	ConstBigInt   ConstKind = 2 // Text holds base-10 digits with optional sign
	ConstFunction ConstKind = 3
	ConstScope    ConstKind = 4
)

// String returns a human-readable name for ConstKind.
func (k ConstKind) String() string {
	switch k {
	case ConstNumber:
		return "number"
	case ConstString:
		return "string"
	case ConstBigInt:
		return "bigint"
	case ConstFunction:
		return "function"
	case ConstScope:
		return "scope"
	default:
		return fmt.Sprintf("ConstKind(%d)", k)
	}
}

// FunctionKind selects call and suspension behavior.
type FunctionKind uint8

const (
	KindNormal    FunctionKind = 0
	KindGenerator FunctionKind = 1 // Calling returns a suspended generator
	KindAsync     FunctionKind = 2 // Calling returns a suspended coroutine driven by the host
	KindArrow     FunctionKind = 3 // Lexical this, not constructible
)

// String returns a human-readable name for FunctionKind.
func (k FunctionKind) String() string {
	switch k {
	case KindNormal:
		return "normal"
	case KindGenerator:
		return "generator"
	case KindAsync:
		return "async"
	case KindArrow:
		return "arrow"
	default:
		return fmt.Sprintf("FunctionKind(%d)", k)
	}
}

// Constant is one entry in the program constant pool.
type Constant struct {
	Kind     ConstKind `cbor:"1,keyasint"`
	Number   float64   `cbor:"2,keyasint"`
	Text     string    `cbor:"3,keyasint,omitempty"`
	Function *Function `cbor:"4,keyasint,omitempty"`
	Scope    *Scope    `cbor:"5,keyasint,omitempty"`
}

// Handler is an exception table entry.
type Handler struct {
	Start      uint32 `cbor:"1,keyasint"` // First protected byte
	End        uint32 `cbor:"2,keyasint"` // One past the last protected byte
	Target     uint32 `cbor:"3,keyasint"` // Handler entry offset
	StackDepth uint16 `cbor:"4,keyasint"` // Operand depth above locals to restore
	EnvDepth   uint16 `cbor:"5,keyasint"` // Block scopes to keep above the function env
}

// Covers reports whether pc is protected by this handler.
func (h Handler) Covers(pc uint32) bool {
	end := h.End
	if h.Target >= h.Start && h.Target < end {
		end = h.Target
	}
	return pc >= h.Start && pc < end
}

// BindingKind classifies a declared binding.
type BindingKind uint8

const (
	BindVar   BindingKind = 0 // Starts undefined, mutable
	BindLet   BindingKind = 1 // Starts uninitialized, mutable
	BindConst BindingKind = 2 // Starts uninitialized, immutable once initialized
)

// Scope describes the bindings of a declarative environment.
type Scope struct {
	Names []string      `cbor:"1,keyasint"`
	Kinds []BindingKind `cbor:"2,keyasint,omitempty"` // Parallel to Names; nil means all var
}

// Kind returns the kind of binding i.
func (s *Scope) Kind(i int) BindingKind {
	if i < len(s.Kinds) {
		return s.Kinds[i]
	}
	return BindVar
}

// IsConst reports whether binding i is immutable.
func (s *Scope) IsConst(i int) bool {
	return s.Kind(i) == BindConst
}

// IsLexical reports whether binding i starts in the temporal dead zone.
func (s *Scope) IsLexical(i int) bool {
	return s.Kind(i) != BindVar
}

// Function is a compiled function body.
type Function struct {
	Name      string       `cbor:"1,keyasint"`
	Kind      FunctionKind `cbor:"2,keyasint"`
	Strict    bool         `cbor:"3,keyasint,omitempty"`
	NumParams uint16       `cbor:"4,keyasint"`
	NumLocals uint16       `cbor:"5,keyasint"` // Includes parameters
	MaxStack  uint16       `cbor:"6,keyasint"`
	Scope     int32        `cbor:"7,keyasint"` // Constant index of the function scope, -1 for none
	Code      []byte       `cbor:"8,keyasint"`
	Handlers  []Handler    `cbor:"9,keyasint,omitempty"`
}

// FindHandler returns the narrowest handler covering pc.
func (f *Function) FindHandler(pc uint32) (Handler, bool) {
	var best Handler
	found := false
	for _, h := range f.Handlers {
		if !h.Covers(pc) {
			continue
		}
		if !found || h.End-h.Start < best.End-best.Start {
			best = h
			found = true
		}
	}
	return best, found
}

// Program is a loadable unit: a constant pool plus the entry function.
type Program struct {
	Version   uint16     `cbor:"1,keyasint"`
	Constants []Constant `cbor:"2,keyasint"`
	Entry     uint16     `cbor:"3,keyasint"` // Constant index of the top-level function
}

// NewProgram creates an empty program at the current format version.
func NewProgram() *Program {
	return &Program{Version: FormatVersion}
}

// ---------------------------------------------------------------------------
// Constant pool
// ---------------------------------------------------------------------------

func (p *Program) add(c Constant) uint16 {
	if len(p.Constants) >= math.MaxUint16 {
		panic("bytecode: constant pool overflow")
	}
	p.Constants = append(p.Constants, c)
	return uint16(len(p.Constants) - 1)
}

// AddNumber adds a number constant, reusing an identical entry.
// Entries are compared bit-for-bit so -0 and NaN payloads stay distinct.
func (p *Program) AddNumber(f float64) uint16 {
	bits := math.Float64bits(f)
	for i, c := range p.Constants {
		if c.Kind == ConstNumber && math.Float64bits(c.Number) == bits {
			return uint16(i)
		}
	}
	return p.add(Constant{Kind: ConstNumber, Number: f})
}

// AddString adds a string constant, reusing an identical entry.
func (p *Program) AddString(s string) uint16 {
	for i, c := range p.Constants {
		if c.Kind == ConstString && c.Text == s {
			return uint16(i)
		}
	}
	return p.add(Constant{Kind: ConstString, Text: s})
}

// AddBigInt adds a big integer literal given in base 10.
func (p *Program) AddBigInt(digits string) uint16 {
	for i, c := range p.Constants {
		if c.Kind == ConstBigInt && c.Text == digits {
			return uint16(i)
		}
	}
	return p.add(Constant{Kind: ConstBigInt, Text: digits})
}

// AddFunction adds a function body. Functions are never deduplicated.
func (p *Program) AddFunction(fn *Function) uint16 {
	return p.add(Constant{Kind: ConstFunction, Function: fn})
}

// AddScope adds a scope descriptor. A nil kinds slice declares every
// binding as var.
func (p *Program) AddScope(names []string, kinds []BindingKind) uint16 {
	return p.add(Constant{Kind: ConstScope, Scope: &Scope{Names: names, Kinds: kinds}})
}

// Function returns the function at constant index i, or nil.
func (p *Program) Function(i int) *Function {
	if i < 0 || i >= len(p.Constants) || p.Constants[i].Kind != ConstFunction {
		return nil
	}
	return p.Constants[i].Function
}

// EntryFunction returns the top-level function.
func (p *Program) EntryFunction() *Function {
	return p.Function(int(p.Entry))
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate checks the structural well-formedness of the program: version,
// constant kinds, operand bounds, jump targets and handler ranges.
func (p *Program) Validate() error {
	if p.Version != FormatVersion {
		return fmt.Errorf("bytecode: unsupported version %d (want %d)", p.Version, FormatVersion)
	}
	if p.EntryFunction() == nil {
		return fmt.Errorf("bytecode: entry %d is not a function constant", p.Entry)
	}
	for i, c := range p.Constants {
		switch c.Kind {
		case ConstNumber, ConstString:
		case ConstBigInt:
			if c.Text == "" {
				return fmt.Errorf("bytecode: constant %d: empty bigint literal", i)
			}
		case ConstFunction:
			if c.Function == nil {
				return fmt.Errorf("bytecode: constant %d: missing function body", i)
			}
			if err := p.validateFunction(c.Function); err != nil {
				return fmt.Errorf("bytecode: function %q (constant %d): %w", c.Function.Name, i, err)
			}
		case ConstScope:
			if c.Scope == nil {
				return fmt.Errorf("bytecode: constant %d: missing scope", i)
			}
			if len(c.Scope.Kinds) != 0 && len(c.Scope.Kinds) != len(c.Scope.Names) {
				return fmt.Errorf("bytecode: constant %d: scope kinds length %d != %d names",
					i, len(c.Scope.Kinds), len(c.Scope.Names))
			}
			for j, k := range c.Scope.Kinds {
				if k > BindConst {
					return fmt.Errorf("bytecode: constant %d: binding %d has unknown kind %d", i, j, k)
				}
			}
		default:
			return fmt.Errorf("bytecode: constant %d: unknown kind %d", i, c.Kind)
		}
	}
	return nil
}

func (p *Program) constOfKind(idx int, kinds ...ConstKind) bool {
	if idx < 0 || idx >= len(p.Constants) {
		return false
	}
	for _, k := range kinds {
		if p.Constants[idx].Kind == k {
			return true
		}
	}
	return false
}

func (p *Program) validateFunction(fn *Function) error {
	if fn.NumParams > fn.NumLocals {
		return fmt.Errorf("%d params exceed %d locals", fn.NumParams, fn.NumLocals)
	}
	if fn.Scope >= 0 && !p.constOfKind(int(fn.Scope), ConstScope) {
		return fmt.Errorf("scope %d is not a scope constant", fn.Scope)
	}
	if len(fn.Code) == 0 {
		return fmt.Errorf("empty code")
	}

	starts := make(map[uint32]bool)
	code := fn.Code
	for pc := 0; pc < len(code); {
		op := Opcode(code[pc])
		if !op.IsValid() {
			return fmt.Errorf("invalid opcode 0x%02X at %d", byte(op), pc)
		}
		starts[uint32(pc)] = true
		n := op.InstructionLen()
		if pc+n > len(code) {
			return fmt.Errorf("truncated %s at %d", op, pc)
		}
		operands := code[pc+1 : pc+n]
		switch op {
		case OpConst:
			if !p.constOfKind(int(binary.LittleEndian.Uint16(operands)), ConstNumber, ConstString, ConstBigInt) {
				return fmt.Errorf("%s at %d: bad value constant", op, pc)
			}
		case OpClosure:
			if !p.constOfKind(int(binary.LittleEndian.Uint16(operands)), ConstFunction) {
				return fmt.Errorf("%s at %d: not a function constant", op, pc)
			}
		case OpPushEnv:
			if !p.constOfKind(int(binary.LittleEndian.Uint16(operands)), ConstScope) {
				return fmt.Errorf("%s at %d: not a scope constant", op, pc)
			}
		case OpGetName, OpSetName, OpTypeOfName, OpDefineGlobal,
			OpGetProp, OpSetProp, OpDeleteProp, OpDefineProp:
			if !p.constOfKind(int(binary.LittleEndian.Uint16(operands)), ConstString) {
				return fmt.Errorf("%s at %d: name is not a string constant", op, pc)
			}
		case OpGetLocal, OpSetLocal:
			if binary.LittleEndian.Uint16(operands) >= fn.NumLocals {
				return fmt.Errorf("%s at %d: slot out of range", op, pc)
			}
		}
		pc += n
	}

	for pc := 0; pc < len(code); {
		op := Opcode(code[pc])
		if op.IsJump() {
			target := binary.LittleEndian.Uint32(code[pc+1:])
			if !starts[target] {
				return fmt.Errorf("%s at %d: target %d is not an instruction", op, pc, target)
			}
		}
		pc += op.InstructionLen()
	}

	for i, h := range fn.Handlers {
		if h.Start > h.End || int(h.End) > len(code) {
			return fmt.Errorf("handler %d: bad range [%d,%d)", i, h.Start, h.End)
		}
		if !starts[h.Target] {
			return fmt.Errorf("handler %d: target %d is not an instruction", i, h.Target)
		}
	}
	return nil
}
