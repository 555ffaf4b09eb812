package bytecode

import "fmt"

// Opcode represents a bytecode instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Stack manipulation (0x00-0x0F)
	// ========================================================================

	OpNop  Opcode = 0x00 // No operation
	OpPop  Opcode = 0x01 // Pop top of stack
	OpDup  Opcode = 0x02 // Duplicate top of stack
	OpSwap Opcode = 0x03 // Swap top two stack elements
	OpDup2 Opcode = 0x04 // Duplicate top two: a b -> a b a b

	// ========================================================================
	// Constants (0x10-0x1F)
	// ========================================================================

	OpConst     Opcode = 0x10 // Push constant from pool: OpConst <index:u16>
	OpUndefined Opcode = 0x11 // Push undefined
	OpNull      Opcode = 0x12 // Push null
	OpTrue      Opcode = 0x13 // Push true
	OpFalse     Opcode = 0x14 // Push false
	OpInt8      Opcode = 0x15 // Push small integer: OpInt8 <value:i8>
	OpThis      Opcode = 0x16 // Push the frame receiver
	OpClosure   Opcode = 0x17 // Push closure over current env: OpClosure <function:u16>

	// ========================================================================
	// Local slots (0x20-0x2F)
	// ========================================================================

	OpGetLocal Opcode = 0x20 // Push local slot: OpGetLocal <slot:u16>
	OpSetLocal Opcode = 0x21 // Store TOS to local (value stays): OpSetLocal <slot:u16>

	// ========================================================================
	// Environments (0x30-0x3F)
	// ========================================================================

	OpGetEnv       Opcode = 0x30 // Push binding: OpGetEnv <depth:u8> <index:u16>
	OpSetEnv       Opcode = 0x31 // Assign binding (value stays): OpSetEnv <depth:u8> <index:u16>
	OpInitEnv      Opcode = 0x32 // Pop and initialize binding: OpInitEnv <depth:u8> <index:u16>
	OpPushEnv      Opcode = 0x33 // Enter block scope: OpPushEnv <scope:u16>
	OpPopEnv       Opcode = 0x34 // Leave block scope
	OpGetName      Opcode = 0x35 // Resolve name along env chain then global: OpGetName <name:u16>
	OpSetName      Opcode = 0x36 // Assign name (value stays): OpSetName <name:u16>
	OpTypeOfName   Opcode = 0x37 // typeof on a possibly undeclared name: OpTypeOfName <name:u16>
	OpDefineGlobal Opcode = 0x38 // Pop and define global property: OpDefineGlobal <name:u16>

	// ========================================================================
	// Objects (0x40-0x4F)
	// ========================================================================

	OpNewObject   Opcode = 0x40 // Push new ordinary object
	OpNewArray    Opcode = 0x41 // Pop count values into new array: OpNewArray <count:u16>
	OpGetProp     Opcode = 0x42 // obj -> obj.name: OpGetProp <name:u16>
	OpSetProp     Opcode = 0x43 // obj val -> val: OpSetProp <name:u16>
	OpGetIndex    Opcode = 0x44 // obj key -> obj[key]
	OpSetIndex    Opcode = 0x45 // obj key val -> val
	OpDeleteProp  Opcode = 0x46 // obj -> bool: OpDeleteProp <name:u16>
	OpDeleteIndex Opcode = 0x47 // obj key -> bool
	OpDefineProp  Opcode = 0x48 // obj val -> obj (literal definition): OpDefineProp <name:u16>
	OpIn          Opcode = 0x49 // key obj -> bool
	OpInstanceOf  Opcode = 0x4A // val ctor -> bool

	// ========================================================================
	// Arithmetic (0x50-0x5F)
	// ========================================================================

	OpAdd  Opcode = 0x50 // a b -> a + b
	OpSub  Opcode = 0x51 // a b -> a - b
	OpMul  Opcode = 0x52 // a b -> a * b
	OpDiv  Opcode = 0x53 // a b -> a / b
	OpMod  Opcode = 0x54 // a b -> a % b
	OpExp  Opcode = 0x55 // a b -> a ** b
	OpNeg  Opcode = 0x56 // a -> -a
	OpPlus Opcode = 0x57 // a -> ToNumeric(a)
	OpInc  Opcode = 0x58 // a -> ToNumeric(a) + 1
	OpDec  Opcode = 0x59 // a -> ToNumeric(a) - 1

	// ========================================================================
	// Comparison (0x60-0x67)
	// ========================================================================

	OpEq       Opcode = 0x60 // a == b
	OpNe       Opcode = 0x61 // a != b
	OpStrictEq Opcode = 0x62 // a === b
	OpStrictNe Opcode = 0x63 // a !== b
	OpLt       Opcode = 0x64 // a < b
	OpLe       Opcode = 0x65 // a <= b
	OpGt       Opcode = 0x66 // a > b
	OpGe       Opcode = 0x67 // a >= b

	// ========================================================================
	// Logic (0x68-0x6F)
	// ========================================================================

	OpNot    Opcode = 0x68 // !a
	OpTypeOf Opcode = 0x69 // typeof a

	// ========================================================================
	// Bitwise (0x70-0x7F)
	// ========================================================================

	OpBitAnd Opcode = 0x70 // a & b
	OpBitOr  Opcode = 0x71 // a | b
	OpBitXor Opcode = 0x72 // a ^ b
	OpBitNot Opcode = 0x73 // ~a
	OpShl    Opcode = 0x74 // a << b
	OpShr    Opcode = 0x75 // a >> b
	OpUShr   Opcode = 0x76 // a >>> b

	// ========================================================================
	// Control flow (0x80-0x8F)
	// ========================================================================

	OpJump             Opcode = 0x80 // Unconditional jump: OpJump <target:u32>
	OpJumpIfFalse      Opcode = 0x81 // Pop, jump if falsy
	OpJumpIfTrue       Opcode = 0x82 // Pop, jump if truthy
	OpJumpIfFalseKeep  Opcode = 0x83 // Jump if falsy keeping TOS, else pop (&&)
	OpJumpIfTrueKeep   Opcode = 0x84 // Jump if truthy keeping TOS, else pop (||)
	OpJumpIfNotNullish Opcode = 0x85 // Jump if not null/undefined keeping TOS, else pop (??)

	// ========================================================================
	// Calls (0x90-0x9F)
	// ========================================================================

	OpCall            Opcode = 0x90 // callee this args... -> result: OpCall <argc:u8>
	OpNew             Opcode = 0x91 // ctor _ args... -> object: OpNew <argc:u8>
	OpReturn          Opcode = 0x92 // Return TOS
	OpReturnUndefined Opcode = 0x93 // Return undefined
	OpThrow           Opcode = 0x94 // Throw TOS

	// ========================================================================
	// Suspension (0xA0-0xAF)
	// ========================================================================

	OpYield Opcode = 0xA0 // Suspend generator with TOS; resume value is pushed
	OpAwait Opcode = 0xA1 // Suspend coroutine awaiting TOS; resume value is pushed
)

// OperandKind describes how an instruction's operand bytes are laid out.
type OperandKind uint8

const (
	OperandNone OperandKind = iota
	OperandU8                // 1 byte
	OperandI8                // 1 byte, signed
	OperandU16               // 2 bytes, little-endian
	OperandEnv               // 1 byte depth + 2 bytes index
	OperandU32               // 4 bytes, little-endian jump target
)

// Len returns the number of operand bytes.
func (k OperandKind) Len() int {
	switch k {
	case OperandU8, OperandI8:
		return 1
	case OperandU16:
		return 2
	case OperandEnv:
		return 3
	case OperandU32:
		return 4
	}
	return 0
}

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name      string      // Human-readable name
	StackPop  int         // How many values popped from stack (-1 = variable)
	StackPush int         // How many values pushed to stack
	Operand   OperandKind // Operand layout following the opcode
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Stack manipulation
	OpNop:  {"NOP", 0, 0, OperandNone},
	OpPop:  {"POP", 1, 0, OperandNone},
	OpDup:  {"DUP", 1, 2, OperandNone},
	OpSwap: {"SWAP", 2, 2, OperandNone},
	OpDup2: {"DUP2", 2, 4, OperandNone},

	// Constants
	OpConst:     {"CONST", 0, 1, OperandU16},
	OpUndefined: {"UNDEFINED", 0, 1, OperandNone},
	OpNull:      {"NULL", 0, 1, OperandNone},
	OpTrue:      {"TRUE", 0, 1, OperandNone},
	OpFalse:     {"FALSE", 0, 1, OperandNone},
	OpInt8:      {"INT8", 0, 1, OperandI8},
	OpThis:      {"THIS", 0, 1, OperandNone},
	OpClosure:   {"CLOSURE", 0, 1, OperandU16},

	// Locals
	OpGetLocal: {"GET_LOCAL", 0, 1, OperandU16},
	OpSetLocal: {"SET_LOCAL", 1, 1, OperandU16},

	// Environments
	OpGetEnv:       {"GET_ENV", 0, 1, OperandEnv},
	OpSetEnv:       {"SET_ENV", 1, 1, OperandEnv},
	OpInitEnv:      {"INIT_ENV", 1, 0, OperandEnv},
	OpPushEnv:      {"PUSH_ENV", 0, 0, OperandU16},
	OpPopEnv:       {"POP_ENV", 0, 0, OperandNone},
	OpGetName:      {"GET_NAME", 0, 1, OperandU16},
	OpSetName:      {"SET_NAME", 1, 1, OperandU16},
	OpTypeOfName:   {"TYPEOF_NAME", 0, 1, OperandU16},
	OpDefineGlobal: {"DEFINE_GLOBAL", 1, 0, OperandU16},

	// Objects
	OpNewObject:   {"NEW_OBJECT", 0, 1, OperandNone},
	OpNewArray:    {"NEW_ARRAY", -1, 1, OperandU16}, // Pops count values
	OpGetProp:     {"GET_PROP", 1, 1, OperandU16},
	OpSetProp:     {"SET_PROP", 2, 1, OperandU16},
	OpGetIndex:    {"GET_INDEX", 2, 1, OperandNone},
	OpSetIndex:    {"SET_INDEX", 3, 1, OperandNone},
	OpDeleteProp:  {"DELETE_PROP", 1, 1, OperandU16},
	OpDeleteIndex: {"DELETE_INDEX", 2, 1, OperandNone},
	OpDefineProp:  {"DEFINE_PROP", 2, 1, OperandU16},
	OpIn:          {"IN", 2, 1, OperandNone},
	OpInstanceOf:  {"INSTANCEOF", 2, 1, OperandNone},

	// Arithmetic
	OpAdd:  {"ADD", 2, 1, OperandNone},
	OpSub:  {"SUB", 2, 1, OperandNone},
	OpMul:  {"MUL", 2, 1, OperandNone},
	OpDiv:  {"DIV", 2, 1, OperandNone},
	OpMod:  {"MOD", 2, 1, OperandNone},
	OpExp:  {"EXP", 2, 1, OperandNone},
	OpNeg:  {"NEG", 1, 1, OperandNone},
	OpPlus: {"PLUS", 1, 1, OperandNone},
	OpInc:  {"INC", 1, 1, OperandNone},
	OpDec:  {"DEC", 1, 1, OperandNone},

	// Comparison
	OpEq:       {"EQ", 2, 1, OperandNone},
	OpNe:       {"NE", 2, 1, OperandNone},
	OpStrictEq: {"STRICT_EQ", 2, 1, OperandNone},
	OpStrictNe: {"STRICT_NE", 2, 1, OperandNone},
	OpLt:       {"LT", 2, 1, OperandNone},
	OpLe:       {"LE", 2, 1, OperandNone},
	OpGt:       {"GT", 2, 1, OperandNone},
	OpGe:       {"GE", 2, 1, OperandNone},

	// Logic
	OpNot:    {"NOT", 1, 1, OperandNone},
	OpTypeOf: {"TYPEOF", 1, 1, OperandNone},

	// Bitwise
	OpBitAnd: {"BIT_AND", 2, 1, OperandNone},
	OpBitOr:  {"BIT_OR", 2, 1, OperandNone},
	OpBitXor: {"BIT_XOR", 2, 1, OperandNone},
	OpBitNot: {"BIT_NOT", 1, 1, OperandNone},
	OpShl:    {"SHL", 2, 1, OperandNone},
	OpShr:    {"SHR", 2, 1, OperandNone},
	OpUShr:   {"USHR", 2, 1, OperandNone},

	// Control flow
	OpJump:             {"JUMP", 0, 0, OperandU32},
	OpJumpIfFalse:      {"JUMP_IF_FALSE", 1, 0, OperandU32},
	OpJumpIfTrue:       {"JUMP_IF_TRUE", 1, 0, OperandU32},
	OpJumpIfFalseKeep:  {"JUMP_IF_FALSE_KEEP", 1, 0, OperandU32}, // Keeps TOS when jumping
	OpJumpIfTrueKeep:   {"JUMP_IF_TRUE_KEEP", 1, 0, OperandU32},
	OpJumpIfNotNullish: {"JUMP_IF_NOT_NULLISH", 1, 0, OperandU32},

	// Calls
	OpCall:            {"CALL", -1, 1, OperandU8}, // Pops callee + this + argc args
	OpNew:             {"NEW", -1, 1, OperandU8},
	OpReturn:          {"RETURN", 1, 0, OperandNone},
	OpReturnUndefined: {"RETURN_UNDEFINED", 0, 0, OperandNone},
	OpThrow:           {"THROW", 1, 0, OperandNone},

	// Suspension
	OpYield: {"YIELD", 1, 1, OperandNone},
	OpAwait: {"AWAIT", 1, 1, OperandNone},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// LookupOpcode finds an opcode by its disassembly name.
func LookupOpcode(name string) (Opcode, bool) {
	for op, info := range opcodeInfoTable {
		if info.Name == name {
			return op, true
		}
	}
	return 0, false
}

// IsValid reports whether op is a defined opcode.
func (op Opcode) IsValid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// OperandLen returns the number of operand bytes for this opcode.
func (op Opcode) OperandLen() int {
	return GetOpcodeInfo(op).Operand.Len()
}

// InstructionLen returns the total length of an instruction (1 + operand bytes).
func (op Opcode) InstructionLen() int {
	return 1 + op.OperandLen()
}

// IsJump returns true if this opcode is a jump instruction.
func (op Opcode) IsJump() bool {
	return op >= OpJump && op <= OpJumpIfNotNullish
}

// IsConditionalJump returns true for jumps that may fall through.
func (op Opcode) IsConditionalJump() bool {
	return op > OpJump && op <= OpJumpIfNotNullish
}

// IsTerminator returns true if control never falls through to the next instruction.
func (op Opcode) IsTerminator() bool {
	switch op {
	case OpJump, OpReturn, OpReturnUndefined, OpThrow:
		return true
	}
	return false
}

// AllOpcodes returns a slice of all defined opcodes.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}
