package bytecode

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Label identifies a code position that may be referenced before it is marked.
type Label int

type fixup struct {
	offset int // Operand position to patch
	label  Label
}

type pendingHandler struct {
	start, end, target Label
	stackDepth         uint16
	envDepth           uint16
}

// Builder assembles a Function. Jumps and handler ranges refer to labels,
// which are resolved when Build is called.
type Builder struct {
	fn       Function
	labels   []int
	fixups   []fixup
	handlers []pendingHandler
	maxStack int
}

// NewBuilder creates a builder for a normal function with the given
// parameter count. Parameters occupy the first local slots.
func NewBuilder(name string, numParams int) *Builder {
	return &Builder{
		fn: Function{
			Name:      name,
			NumParams: uint16(numParams),
			NumLocals: uint16(numParams),
			Scope:     -1,
		},
		maxStack: -1,
	}
}

// SetKind sets the function kind.
func (b *Builder) SetKind(k FunctionKind) *Builder {
	b.fn.Kind = k
	return b
}

// SetStrict marks the function body as strict mode code.
func (b *Builder) SetStrict(strict bool) *Builder {
	b.fn.Strict = strict
	return b
}

// SetLocals sets the number of local slots, parameters included.
func (b *Builder) SetLocals(n int) *Builder {
	if n < int(b.fn.NumParams) {
		n = int(b.fn.NumParams)
	}
	b.fn.NumLocals = uint16(n)
	return b
}

// SetScope attaches a function-level environment described by the scope
// constant at idx.
func (b *Builder) SetScope(idx uint16) *Builder {
	b.fn.Scope = int32(idx)
	return b
}

// SetMaxStack overrides the computed operand stack bound.
func (b *Builder) SetMaxStack(n int) *Builder {
	b.maxStack = n
	return b
}

// Offset returns the offset of the next emitted instruction.
func (b *Builder) Offset() int {
	return len(b.fn.Code)
}

// ---------------------------------------------------------------------------
// Emission
// ---------------------------------------------------------------------------

// Emit appends an instruction without operands.
func (b *Builder) Emit(op Opcode) int {
	off := len(b.fn.Code)
	b.fn.Code = append(b.fn.Code, byte(op))
	return off
}

// EmitU8 appends an instruction with a single byte operand.
func (b *Builder) EmitU8(op Opcode, v uint8) int {
	off := b.Emit(op)
	b.fn.Code = append(b.fn.Code, v)
	return off
}

// EmitI8 appends an instruction with a signed byte operand.
func (b *Builder) EmitI8(op Opcode, v int8) int {
	return b.EmitU8(op, uint8(v))
}

// EmitU16 appends an instruction with a 16-bit operand.
func (b *Builder) EmitU16(op Opcode, v uint16) int {
	off := b.Emit(op)
	b.fn.Code = binary.LittleEndian.AppendUint16(b.fn.Code, v)
	return off
}

// EmitEnv appends an environment access with a hop count and binding index.
func (b *Builder) EmitEnv(op Opcode, depth uint8, index uint16) int {
	off := b.Emit(op)
	b.fn.Code = append(b.fn.Code, depth)
	b.fn.Code = binary.LittleEndian.AppendUint16(b.fn.Code, index)
	return off
}

// NewLabel allocates an unmarked label.
func (b *Builder) NewLabel() Label {
	b.labels = append(b.labels, -1)
	return Label(len(b.labels) - 1)
}

// Mark binds the label to the current offset.
func (b *Builder) Mark(l Label) {
	b.labels[l] = len(b.fn.Code)
}

// EmitJump appends a jump to a label.
func (b *Builder) EmitJump(op Opcode, l Label) int {
	off := b.Emit(op)
	b.fixups = append(b.fixups, fixup{offset: len(b.fn.Code), label: l})
	b.fn.Code = append(b.fn.Code, 0, 0, 0, 0)
	return off
}

// Handler registers an exception handler protecting [start, end) that
// transfers to target. stackDepth is the operand depth above the locals to
// restore and envDepth the number of block scopes to keep.
func (b *Builder) Handler(start, end, target Label, stackDepth, envDepth int) {
	b.handlers = append(b.handlers, pendingHandler{
		start:      start,
		end:        end,
		target:     target,
		stackDepth: uint16(stackDepth),
		envDepth:   uint16(envDepth),
	})
}

// Build resolves labels, computes MaxStack unless overridden, and returns
// the finished function.
func (b *Builder) Build() (*Function, error) {
	resolve := func(l Label) (uint32, error) {
		if int(l) < 0 || int(l) >= len(b.labels) {
			return 0, fmt.Errorf("bytecode: unknown label %d", l)
		}
		off := b.labels[l]
		if off < 0 {
			return 0, fmt.Errorf("bytecode: %s: label %d never marked", b.fn.Name, l)
		}
		return uint32(off), nil
	}

	for _, f := range b.fixups {
		target, err := resolve(f.label)
		if err != nil {
			return nil, err
		}
		binary.LittleEndian.PutUint32(b.fn.Code[f.offset:], target)
	}

	b.fn.Handlers = b.fn.Handlers[:0]
	for _, h := range b.handlers {
		start, err := resolve(h.start)
		if err != nil {
			return nil, err
		}
		end, err := resolve(h.end)
		if err != nil {
			return nil, err
		}
		target, err := resolve(h.target)
		if err != nil {
			return nil, err
		}
		b.fn.Handlers = append(b.fn.Handlers, Handler{
			Start:      start,
			End:        end,
			Target:     target,
			StackDepth: h.stackDepth,
			EnvDepth:   h.envDepth,
		})
	}

	if len(b.fn.Code) == 0 || !Opcode(b.fn.Code[len(b.fn.Code)-1]).IsTerminator() {
		b.Emit(OpReturnUndefined)
	}

	fn := b.fn
	fn.Code = append([]byte(nil), b.fn.Code...)
	fn.Handlers = append([]Handler(nil), b.fn.Handlers...)

	if b.maxStack >= 0 {
		fn.MaxStack = uint16(b.maxStack)
	} else {
		depth, err := ComputeMaxStack(&fn)
		if err != nil {
			return nil, fmt.Errorf("bytecode: %s: %w", fn.Name, err)
		}
		fn.MaxStack = uint16(depth)
	}
	return &fn, nil
}

// ---------------------------------------------------------------------------
// Stack depth analysis
// ---------------------------------------------------------------------------

// ComputeMaxStack walks every reachable path through fn, including handler
// entries, and returns the deepest operand stack the body can reach.
// Inconsistent depths at a join point or a stack underflow are errors.
func ComputeMaxStack(fn *Function) (int, error) {
	code := fn.Code
	depthAt := make(map[int]int)
	work := []int{0}
	depthAt[0] = 0
	for _, h := range fn.Handlers {
		d := int(h.StackDepth) + 1
		if prev, ok := depthAt[int(h.Target)]; ok && prev != d {
			return 0, fmt.Errorf("handler target %04X entered at depth %d and %d", h.Target, prev, d)
		}
		depthAt[int(h.Target)] = d
		work = append(work, int(h.Target))
	}

	maxDepth := 0
	for _, d := range depthAt {
		maxDepth = max(maxDepth, d)
	}

	visit := func(pc, depth int) error {
		if prev, ok := depthAt[pc]; ok {
			if prev != depth {
				return fmt.Errorf("inconsistent stack depth at %04X: %d vs %d", pc, prev, depth)
			}
			return nil
		}
		depthAt[pc] = depth
		work = append(work, pc)
		return nil
	}

	for len(work) > 0 {
		pc := work[len(work)-1]
		work = work[:len(work)-1]
		depth := depthAt[pc]

		if pc >= len(code) {
			return 0, fmt.Errorf("control reaches end of code at %04X", pc)
		}
		op := Opcode(code[pc])
		if !op.IsValid() {
			return 0, fmt.Errorf("invalid opcode 0x%02X at %04X", byte(op), pc)
		}
		n := op.InstructionLen()
		if pc+n > len(code) {
			return 0, fmt.Errorf("truncated %s at %04X", op, pc)
		}
		info := GetOpcodeInfo(op)

		pops := info.StackPop
		switch op {
		case OpNewArray:
			pops = int(binary.LittleEndian.Uint16(code[pc+1:]))
		case OpCall, OpNew:
			pops = int(code[pc+1]) + 2
		}
		if depth < pops {
			return 0, fmt.Errorf("stack underflow at %04X (%s needs %d, have %d)", pc, op, pops, depth)
		}

		switch {
		case op.IsJump():
			target := int(binary.LittleEndian.Uint32(code[pc+1:]))
			taken := depth - pops
			if op == OpJumpIfFalseKeep || op == OpJumpIfTrueKeep || op == OpJumpIfNotNullish {
				taken = depth
			}
			if err := visit(target, taken); err != nil {
				return 0, err
			}
			if op.IsConditionalJump() {
				if err := visit(pc+n, depth-pops); err != nil {
					return 0, err
				}
			}
		case op.IsTerminator():
		default:
			next := depth - pops + info.StackPush
			maxDepth = max(maxDepth, next)
			if err := visit(pc+n, next); err != nil {
				return 0, err
			}
		}
	}

	if maxDepth > math.MaxUint16 {
		return 0, fmt.Errorf("stack depth %d exceeds format limit", maxDepth)
	}
	return maxDepth, nil
}
