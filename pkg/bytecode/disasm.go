package bytecode

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of every function in the
// program, preceded by the constant pool.
func (p *Program) Disassemble() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("; Kestrel Bytecode v%d\n", p.Version))
	sb.WriteString(fmt.Sprintf("; Entry: %d\n\n", p.Entry))

	if len(p.Constants) > 0 {
		sb.WriteString("; Constants:\n")
		for i, c := range p.Constants {
			sb.WriteString(fmt.Sprintf(";   [%3d] %-8s %s\n", i, c.Kind, p.describeConstant(i)))
		}
		sb.WriteString("\n")
	}

	for i, c := range p.Constants {
		if c.Kind != ConstFunction || c.Function == nil {
			continue
		}
		sb.WriteString(p.DisassembleFunction(c.Function, fmt.Sprintf("%s (constant %d)", displayName(c.Function), i)))
		sb.WriteString("\n")
	}
	return sb.String()
}

// DisassembleFunction returns the listing for a single function body.
// Constant operands are annotated using the program's pool.
func (p *Program) DisassembleFunction(fn *Function, header string) string {
	var sb strings.Builder

	if header != "" {
		sb.WriteString(fmt.Sprintf("; === function %s ===\n", header))
	}
	sb.WriteString(fmt.Sprintf("; kind=%s params=%d locals=%d max_stack=%d",
		fn.Kind, fn.NumParams, fn.NumLocals, fn.MaxStack))
	if fn.Scope >= 0 {
		sb.WriteString(fmt.Sprintf(" scope=%d", fn.Scope))
	}
	if fn.Strict {
		sb.WriteString(" [STRICT]")
	}
	sb.WriteString("\n")

	if len(fn.Handlers) > 0 {
		sb.WriteString("; Handlers:\n")
		for _, h := range fn.Handlers {
			sb.WriteString(fmt.Sprintf(";   [%04X, %04X) -> %04X stack=%d env=%d\n",
				h.Start, h.End, h.Target, h.StackDepth, h.EnvDepth))
		}
	}

	sb.WriteString("; Code:\n")
	offset := 0
	for offset < len(fn.Code) {
		line, n := p.disassembleInstruction(fn, offset)
		sb.WriteString(fmt.Sprintf("%04X  %s\n", offset, line))
		if n == 0 {
			break
		}
		offset += n
	}
	return sb.String()
}

// disassembleInstruction disassembles a single instruction at the given offset.
// Returns the formatted string and the instruction length.
func (p *Program) disassembleInstruction(fn *Function, offset int) (string, int) {
	code := fn.Code
	op := Opcode(code[offset])
	info := GetOpcodeInfo(op)
	n := op.InstructionLen()
	if !op.IsValid() {
		return info.Name, 1
	}
	if offset+n > len(code) {
		return fmt.Sprintf("%s <truncated>", info.Name), 0
	}
	operands := code[offset+1 : offset+n]

	switch info.Operand {
	case OperandU8:
		return fmt.Sprintf("%s %d", info.Name, operands[0]), n
	case OperandI8:
		return fmt.Sprintf("%s %d", info.Name, int8(operands[0])), n
	case OperandU16:
		idx := binary.LittleEndian.Uint16(operands)
		switch op {
		case OpGetLocal, OpSetLocal, OpNewArray:
			return fmt.Sprintf("%s %d", info.Name, idx), n
		}
		return fmt.Sprintf("%s %d ; %s", info.Name, idx, p.describeConstant(int(idx))), n
	case OperandEnv:
		return fmt.Sprintf("%s %d %d", info.Name, operands[0], binary.LittleEndian.Uint16(operands[1:])), n
	case OperandU32:
		return fmt.Sprintf("%s %04X", info.Name, binary.LittleEndian.Uint32(operands)), n
	}
	return info.Name, n
}

func (p *Program) describeConstant(i int) string {
	if i < 0 || i >= len(p.Constants) {
		return "<out of range>"
	}
	c := p.Constants[i]
	switch c.Kind {
	case ConstNumber:
		return fmt.Sprintf("%v", c.Number)
	case ConstString:
		// Truncate long strings for readability
		display := c.Text
		if len(display) > 40 {
			display = display[:37] + "..."
		}
		return fmt.Sprintf("%q", display)
	case ConstBigInt:
		return c.Text + "n"
	case ConstFunction:
		if c.Function == nil {
			return "<nil function>"
		}
		return displayName(c.Function)
	case ConstScope:
		if c.Scope == nil {
			return "<nil scope>"
		}
		names := make([]string, len(c.Scope.Names))
		for j, name := range c.Scope.Names {
			switch c.Scope.Kind(j) {
			case BindLet:
				name = "let " + name
			case BindConst:
				name = "const " + name
			}
			names[j] = name
		}
		return "{" + strings.Join(names, ", ") + "}"
	}
	return "?"
}

func displayName(fn *Function) string {
	if fn.Name == "" {
		return "<anonymous>"
	}
	return fn.Name
}
