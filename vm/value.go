package vm

import (
	"fmt"
	"math"

	"github.com/chazu/kestrel/pkg/intern"
)

// Value represents a kestrel value using NaN-boxing.
//
// All values are represented as 64-bit IEEE 754 doubles. Non-number values
// are encoded in the NaN space using the quiet NaN prefix and tag bits to
// distinguish types.
//
// Encoding scheme:
//   - Number: Native IEEE 754 double; NaN is canonicalized on construction
//   - Object: Quiet NaN + tagObject + 48-bit heap reference
//   - Special: Quiet NaN + tagSpecial + undefined/null/true/false
//   - String: Quiet NaN + tagString + interned handle
//   - Symbol: Quiet NaN + tagSymbol + 48-bit heap reference
//   - BigInt: Quiet NaN + tagBigInt + 48-bit heap reference
//   - Internal: Quiet NaN + tagInternal + marker (never visible to programs)
//
// The zero Value is the number +0.
type Value uint64

// NaN-boxing constants
const (
	// Quiet NaN prefix: exponent all 1s, quiet bit set, sign bit 0
	// 0x7FF8_0000_0000_0000
	nanBits uint64 = 0x7FF8000000000000

	signBit uint64 = 0x8000000000000000

	// Tag mask: 3 bits within the NaN mantissa space
	// 0x0007_0000_0000_0000
	tagMask uint64 = 0x0007000000000000

	// Payload mask: 48 bits for reference/handle/id
	// 0x0000_FFFF_FFFF_FFFF
	payloadMask uint64 = 0x0000FFFFFFFFFFFF

	boxMask = signBit | nanBits | tagMask

	// Tag values (shifted into position)
	tagObject   uint64 = 0x0001000000000000 // Heap object reference
	tagSpecial  uint64 = 0x0002000000000000 // undefined, null, true, false
	tagString   uint64 = 0x0003000000000000 // Interned string handle
	tagSymbol   uint64 = 0x0004000000000000 // Heap symbol reference
	tagBigInt   uint64 = 0x0005000000000000 // Heap big integer reference
	tagInternal uint64 = 0x0006000000000000 // Interpreter markers
)

// Special value payloads
const (
	specialUndefined uint64 = 0
	specialNull      uint64 = 1
	specialTrue      uint64 = 2
	specialFalse     uint64 = 3
)

// Pre-defined special values
const (
	Undefined Value = Value(nanBits | tagSpecial | specialUndefined)
	Null      Value = Value(nanBits | tagSpecial | specialNull)
	True      Value = Value(nanBits | tagSpecial | specialTrue)
	False     Value = Value(nanBits | tagSpecial | specialFalse)
	NaN       Value = Value(nanBits)
)

// Internal markers. hole fills absent array elements; uninitialized marks a
// lexical binding in its temporal dead zone.
const (
	hole          Value = Value(nanBits | tagInternal | 0)
	uninitialized Value = Value(nanBits | tagInternal | 1)
)

// Type is the language-level type of a value.
type Type uint8

const (
	TypeUndefined Type = iota
	TypeNull
	TypeBoolean
	TypeNumber
	TypeString
	TypeBigInt
	TypeSymbol
	TypeObject
)

var typeNames = [...]string{
	TypeUndefined: "undefined",
	TypeNull:      "null",
	TypeBoolean:   "boolean",
	TypeNumber:    "number",
	TypeString:    "string",
	TypeBigInt:    "bigint",
	TypeSymbol:    "symbol",
	TypeObject:    "object",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", t)
}

// ---------------------------------------------------------------------------
// Heap references
// ---------------------------------------------------------------------------

// Ref addresses a heap slot: a 32-bit arena index plus a 16-bit generation
// that detects reuse of the slot. The zero Ref addresses nothing.
type Ref uint64

func makeRef(index uint32, gen uint16) Ref {
	return Ref(uint64(gen)<<32 | uint64(index))
}

func (r Ref) index() uint32 { return uint32(r) }
func (r Ref) gen() uint16   { return uint16(r >> 32) }

// IsZero reports whether r addresses nothing.
func (r Ref) IsZero() bool { return r == 0 }

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

// Number returns a number value. All NaNs collapse to a single canonical
// NaN so that no float bit pattern can be mistaken for a tagged value.
func Number(f float64) Value {
	if f != f {
		return NaN
	}
	return Value(math.Float64bits(f))
}

// Bool returns True or False.
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

func stringValue(h intern.Handle) Value {
	return Value(nanBits | tagString | uint64(h))
}

func objectValue(r Ref) Value {
	return Value(nanBits | tagObject | uint64(r))
}

func symbolValue(r Ref) Value {
	return Value(nanBits | tagSymbol | uint64(r))
}

func bigIntValue(r Ref) Value {
	return Value(nanBits | tagBigInt | uint64(r))
}

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

func (v Value) tag() uint64 {
	bits := uint64(v)
	if bits&(signBit|nanBits) != nanBits {
		return 0
	}
	return bits & tagMask
}

// IsNumber returns true if v is a number, including NaN and infinities.
func (v Value) IsNumber() bool { return v.tag() == 0 }

// IsObject returns true if v references a heap object.
func (v Value) IsObject() bool { return uint64(v)&boxMask == nanBits|tagObject }

// IsString returns true if v is an interned string.
func (v Value) IsString() bool { return uint64(v)&boxMask == nanBits|tagString }

// IsSymbol returns true if v is a symbol.
func (v Value) IsSymbol() bool { return uint64(v)&boxMask == nanBits|tagSymbol }

// IsBigInt returns true if v is a big integer.
func (v Value) IsBigInt() bool { return uint64(v)&boxMask == nanBits|tagBigInt }

// IsUndefined returns true if v is undefined.
func (v Value) IsUndefined() bool { return v == Undefined }

// IsNull returns true if v is null.
func (v Value) IsNull() bool { return v == Null }

// IsNullish returns true for undefined and null.
func (v Value) IsNullish() bool { return v == Undefined || v == Null }

// IsBool returns true if v is true or false.
func (v Value) IsBool() bool { return v == True || v == False }

func (v Value) isInternal() bool { return uint64(v)&boxMask == nanBits|tagInternal }

// isHeap reports whether v holds a reference the collector must trace.
func (v Value) isHeap() bool {
	switch v.tag() {
	case tagObject, tagSymbol, tagBigInt:
		return true
	}
	return false
}

// Type returns the language type of v.
func (v Value) Type() Type {
	switch v.tag() {
	case 0:
		return TypeNumber
	case tagObject:
		return TypeObject
	case tagString:
		return TypeString
	case tagSymbol:
		return TypeSymbol
	case tagBigInt:
		return TypeBigInt
	case tagSpecial:
		switch v {
		case Undefined:
			return TypeUndefined
		case Null:
			return TypeNull
		}
		return TypeBoolean
	}
	panic(fmt.Sprintf("Value.Type: internal marker 0x%016X escaped", uint64(v)))
}

// ---------------------------------------------------------------------------
// Extraction
// ---------------------------------------------------------------------------

// Float64 returns the number held by v. Panics if v is not a number.
func (v Value) Float64() float64 {
	if !v.IsNumber() {
		panic("Value.Float64: not a number")
	}
	return math.Float64frombits(uint64(v))
}

// IsTrue returns true only for the boolean true.
func (v Value) IsTrue() bool { return v == True }

func (v Value) handle() intern.Handle {
	return intern.Handle(uint64(v) & payloadMask)
}

func (v Value) ref() Ref {
	return Ref(uint64(v) & payloadMask)
}

// heapRef returns the reference for object, symbol and bigint values.
func (v Value) heapRef() (Ref, bool) {
	if v.isHeap() {
		return v.ref(), true
	}
	return 0, false
}

// GoString renders the raw encoding for debugging.
func (v Value) GoString() string {
	switch v.tag() {
	case 0:
		return fmt.Sprintf("Number(%v)", v.Float64())
	case tagObject:
		return fmt.Sprintf("Object(#%d.%d)", v.ref().index(), v.ref().gen())
	case tagString:
		return fmt.Sprintf("String(@%d)", v.handle())
	case tagSymbol:
		return fmt.Sprintf("Symbol(#%d.%d)", v.ref().index(), v.ref().gen())
	case tagBigInt:
		return fmt.Sprintf("BigInt(#%d.%d)", v.ref().index(), v.ref().gen())
	case tagInternal:
		if v == hole {
			return "<hole>"
		}
		return "<uninitialized>"
	}
	switch v {
	case Undefined:
		return "undefined"
	case Null:
		return "null"
	case True:
		return "true"
	}
	return "false"
}
