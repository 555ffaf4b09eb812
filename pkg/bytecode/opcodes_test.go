package bytecode

import (
	"strings"
	"testing"
)

func TestAllOpcodesHaveMetadata(t *testing.T) {
	// Ensure every defined opcode has metadata
	for _, op := range AllOpcodes() {
		info := GetOpcodeInfo(op)
		if info.Name == "" || strings.HasPrefix(info.Name, "UNKNOWN") {
			t.Errorf("Opcode 0x%02X has no metadata", byte(op))
		}
	}
}

func TestOpcodeNamesUnique(t *testing.T) {
	seen := make(map[string]Opcode)
	for _, op := range AllOpcodes() {
		name := op.String()
		if prev, ok := seen[name]; ok {
			t.Errorf("opcodes 0x%02X and 0x%02X share name %s", byte(prev), byte(op), name)
		}
		seen[name] = op
		if got, ok := LookupOpcode(name); !ok || got != op {
			t.Errorf("LookupOpcode(%q) = %v, %v; want %v", name, got, ok, op)
		}
	}
}

func TestOpcodeString(t *testing.T) {
	tests := []struct {
		op   Opcode
		want string
	}{
		{OpNop, "NOP"},
		{OpPop, "POP"},
		{OpConst, "CONST"},
		{OpGetEnv, "GET_ENV"},
		{OpAdd, "ADD"},
		{OpStrictEq, "STRICT_EQ"},
		{OpJumpIfFalse, "JUMP_IF_FALSE"},
		{OpCall, "CALL"},
		{OpYield, "YIELD"},
	}

	for _, tt := range tests {
		got := tt.op.String()
		if got != tt.want {
			t.Errorf("Opcode(0x%02X).String() = %q, want %q", byte(tt.op), got, tt.want)
		}
	}
}

func TestUnknownOpcodeString(t *testing.T) {
	op := Opcode(0xEE) // Not defined
	if got := op.String(); !strings.HasPrefix(got, "UNKNOWN") {
		t.Errorf("Unknown opcode should return UNKNOWN, got %q", got)
	}
	if op.IsValid() {
		t.Error("0xEE should not be valid")
	}
}

func TestOpcodeInstructionLen(t *testing.T) {
	tests := []struct {
		op   Opcode
		want int
	}{
		{OpNop, 1},
		{OpInt8, 2},
		{OpCall, 2},
		{OpConst, 3},
		{OpGetLocal, 3},
		{OpGetEnv, 4},
		{OpJump, 5},
		{OpJumpIfNotNullish, 5},
	}
	for _, tt := range tests {
		if got := tt.op.InstructionLen(); got != tt.want {
			t.Errorf("%s.InstructionLen() = %d, want %d", tt.op, got, tt.want)
		}
	}
}

func TestOpcodeCategories(t *testing.T) {
	for _, op := range []Opcode{OpJump, OpJumpIfFalse, OpJumpIfTrueKeep, OpJumpIfNotNullish} {
		if !op.IsJump() {
			t.Errorf("%s should be a jump", op)
		}
	}
	if OpJump.IsConditionalJump() {
		t.Error("JUMP is unconditional")
	}
	if OpCall.IsJump() {
		t.Error("CALL is not a jump")
	}
	for _, op := range []Opcode{OpReturn, OpReturnUndefined, OpThrow, OpJump} {
		if !op.IsTerminator() {
			t.Errorf("%s should terminate a block", op)
		}
	}
	if OpYield.IsTerminator() {
		t.Error("YIELD resumes at the next instruction")
	}
}
