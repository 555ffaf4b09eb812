package vm

import (
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf16"
)

// ---------------------------------------------------------------------------
// Strings
// ---------------------------------------------------------------------------

// str interns s and returns it as a string value.
func (vm *VM) str(s string) Value {
	return stringValue(vm.strings.Intern(s))
}

// goString returns the content of a string value.
func (vm *VM) goString(v Value) string {
	return vm.strings.Lookup(v.handle())
}

// utf16Len returns the length of s in UTF-16 code units.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Numbers
// ---------------------------------------------------------------------------

// formatNumber renders f the way the language's Number-to-String
// conversion does: shortest round-trip digits, plain notation for
// exponents in [-6, 21), exponential notation otherwise.
func formatNumber(f float64) string {
	switch {
	case f != f:
		return "NaN"
	case f == 0:
		return "0"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	sign := ""
	if f < 0 {
		sign = "-"
		f = -f
	}

	// d.ddddde±x
	e := strconv.FormatFloat(f, 'e', -1, 64)
	mant, expStr, _ := strings.Cut(e, "e")
	digits := strings.Replace(mant, ".", "", 1)
	exp, _ := strconv.Atoi(expStr)
	k := len(digits)
	n := exp + 1

	var out string
	switch {
	case k <= n && n <= 21:
		out = digits + strings.Repeat("0", n-k)
	case 0 < n && n <= 21:
		out = digits[:n] + "." + digits[n:]
	case -6 < n && n <= 0:
		out = "0." + strings.Repeat("0", -n) + digits
	default:
		expSign := "+"
		if n-1 < 0 {
			expSign = "-"
		}
		out = digits[:1]
		if k > 1 {
			out += "." + digits[1:]
		}
		out += "e" + expSign + strconv.Itoa(abs(n-1))
	}
	return sign + out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func isJSWhitespace(r rune) bool {
	switch r {
	case '\t', '\n', '\v', '\f', '\r', ' ', 0xA0, 0x1680, 0x2028, 0x2029, 0x202F, 0x205F, 0x3000, 0xFEFF:
		return true
	}
	return r >= 0x2000 && r <= 0x200A
}

// parseNumber converts string content to a number. Surrounding
// whitespace is ignored; the empty string is 0; malformed input is NaN.
func parseNumber(s string) float64 {
	s = strings.TrimFunc(s, isJSWhitespace)
	if s == "" {
		return 0
	}
	switch s {
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			n, ok := new(big.Int).SetString(s[2:], base)
			if !ok || strings.ContainsAny(s[2:], "_+-") {
				return math.NaN()
			}
			f, _ := new(big.Float).SetInt(n).Float64()
			return f
		}
	}
	for _, c := range s {
		if !(c >= '0' && c <= '9' || c == '.' || c == 'e' || c == 'E' || c == '+' || c == '-') {
			return math.NaN()
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return f
		}
		return math.NaN()
	}
	return f
}

// parseBigInt converts string content to a big integer, as BigInt(string)
// does. ok is false for malformed input.
func parseBigInt(s string) (*big.Int, bool) {
	s = strings.TrimFunc(s, isJSWhitespace)
	if s == "" {
		return new(big.Int), true
	}
	base := 10
	if len(s) > 2 && s[0] == '0' {
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 10 {
			s = s[2:]
			if strings.ContainsAny(s, "+-") {
				return nil, false
			}
		}
	}
	if strings.Contains(s, "_") {
		return nil, false
	}
	return new(big.Int).SetString(s, base)
}

// toInt32 implements the modular conversion used by bitwise operators.
func toInt32(f float64) int32 {
	return int32(toUint32(f))
}

func toUint32(f float64) uint32 {
	if f != f || math.IsInf(f, 0) {
		return 0
	}
	f = math.Trunc(f)
	f = math.Mod(f, 4294967296)
	if f < 0 {
		f += 4294967296
	}
	return uint32(f)
}

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

// toBoolean never fails and never runs user code.
func (vm *VM) toBoolean(v Value) bool {
	switch v.Type() {
	case TypeUndefined, TypeNull:
		return false
	case TypeBoolean:
		return v == True
	case TypeNumber:
		f := v.Float64()
		return f != 0 && f == f
	case TypeString:
		return v != vm.names.empty
	case TypeBigInt:
		return vm.bigInt(v).Sign() != 0
	}
	return true
}

// primitiveToString converts a non-object, non-symbol value to a string.
func (vm *VM) primitiveToString(v Value) Value {
	switch v.Type() {
	case TypeUndefined:
		return vm.names.undefined
	case TypeNull:
		return vm.names.null
	case TypeBoolean:
		if v == True {
			return vm.names.true_
		}
		return vm.names.false_
	case TypeNumber:
		return vm.str(formatNumber(v.Float64()))
	case TypeString:
		return v
	case TypeBigInt:
		return vm.str(vm.bigInt(v).String())
	case TypeSymbol:
		vm.throwError(errType, "Cannot convert a Symbol value to a string")
	}
	panic("primitiveToString: object")
}

// toString converts any value to a string, calling toString/valueOf on
// objects.
func (vm *VM) toString(v Value) Value {
	if v.IsObject() {
		v = vm.toPrimitive(v, hintString)
	}
	return vm.primitiveToString(v)
}

// toNumber converts v to a number. BigInts and symbols throw.
func (vm *VM) toNumber(v Value) float64 {
	switch v.Type() {
	case TypeUndefined:
		return math.NaN()
	case TypeNull:
		return 0
	case TypeBoolean:
		if v == True {
			return 1
		}
		return 0
	case TypeNumber:
		return v.Float64()
	case TypeString:
		return parseNumber(vm.goString(v))
	case TypeBigInt:
		vm.throwError(errType, "Cannot convert a BigInt value to a number")
	case TypeSymbol:
		vm.throwError(errType, "Cannot convert a Symbol value to a number")
	}
	return vm.toNumber(vm.toPrimitive(v, hintNumber))
}

// toNumeric converts v to a number or BigInt value.
func (vm *VM) toNumeric(v Value) Value {
	if v.IsObject() {
		v = vm.toPrimitive(v, hintNumber)
	}
	if v.IsBigInt() || v.IsNumber() {
		return v
	}
	return Number(vm.toNumber(v))
}

// toPropertyKey converts v to a string or symbol key.
func (vm *VM) toPropertyKey(v Value) Value {
	switch v.Type() {
	case TypeString, TypeSymbol:
		return v
	case TypeObject:
		return vm.toPropertyKey(vm.toPrimitive(v, hintString))
	}
	return vm.primitiveToString(v)
}

type primitiveHint uint8

const (
	hintDefault primitiveHint = iota
	hintNumber
	hintString
)

// toPrimitive converts an object to a primitive by calling valueOf and
// toString in the order the hint selects. Other values are returned as is.
func (vm *VM) toPrimitive(v Value, hint primitiveHint) Value {
	if !v.IsObject() {
		return v
	}
	order := [2]Value{vm.names.valueOf, vm.names.toString}
	if hint == hintString {
		order = [2]Value{vm.names.toString, vm.names.valueOf}
	}
	for _, name := range order {
		fn := vm.getProperty(v, name)
		if o := vm.asObject(fn); o != nil && o.isCallable() {
			result, err := vm.invoke(fn, v, nil, false)
			if err != nil {
				vm.raise(err, vm.goString(name))
			}
			if !result.IsObject() {
				return result
			}
		}
	}
	vm.throwError(errType, "Cannot convert object to primitive value")
	return Undefined
}

// protoForPrimitive returns the prototype supplying the properties of a
// primitive value.
func (vm *VM) protoForPrimitive(v Value) Value {
	switch v.Type() {
	case TypeString:
		return vm.intrinsics.stringProto
	case TypeNumber:
		return vm.intrinsics.numberProto
	case TypeBoolean:
		return vm.intrinsics.booleanProto
	case TypeSymbol:
		return vm.intrinsics.symbolProto
	case TypeBigInt:
		return vm.intrinsics.bigIntProto
	}
	return Null
}

// toIntegerOrInfinity truncates toward zero; NaN becomes 0.
func (vm *VM) toIntegerOrInfinity(v Value) float64 {
	f := vm.toNumber(v)
	if f != f {
		return 0
	}
	return math.Trunc(f)
}

// stringUnits returns the UTF-16 code units of a string value.
func (vm *VM) stringUnits(v Value) []uint16 {
	return utf16.Encode([]rune(vm.goString(v)))
}

func (vm *VM) stringFromUnits(units []uint16) Value {
	return vm.str(string(utf16.Decode(units)))
}
