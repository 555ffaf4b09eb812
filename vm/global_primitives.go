package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Bootstrap: intrinsic objects and the global object
// ---------------------------------------------------------------------------

func (vm *VM) bootstrap() {
	in := &vm.intrinsics
	in.objectProto = vm.newObjectKind(ObjectOrdinary, Null, nil)
	in.functionProto = vm.newObjectKind(ObjectOrdinary, in.objectProto, nil)

	vm.global = vm.newObjectKind(ObjectOrdinary, in.objectProto, nil)
	vm.globalEnv = vm.newEnv(0, emptyScope)

	vm.defineGlobalValue("globalThis", vm.global)
	vm.defineConstant(vm.global, "undefined", Undefined)
	vm.defineConstant(vm.global, "NaN", NaN)
	vm.defineConstant(vm.global, "Infinity", Number(math.Inf(1)))
	in.iteratorSymbol = vm.newSymbol(vm.str("Symbol.iterator"))

	vm.initObject()
	vm.initFunction()
	vm.initArray()
	vm.initString()
	vm.initNumber()
	vm.initMath()
	vm.initBoolean()
	vm.initSymbol()
	vm.initBigInt()
	vm.initErrors()
	vm.initGenerators()
	vm.initIterators()
	vm.initCollections()
	vm.initWeakRef()
	vm.initJSON()
	vm.initGlobalFunctions()

	in.hostProto = vm.newObjectKind(ObjectOrdinary, in.objectProto, nil)
}

// ---------------------------------------------------------------------------
// Definition helpers
// ---------------------------------------------------------------------------

// defineMethod installs a non-enumerable native method on obj.
func (vm *VM) defineMethod(obj Value, name string, arity int, fn NativeFunc) {
	vm.defineOwn(vm.object(obj), vm.str(name), vm.newNative(name, arity, fn), attrHidden)
}

// defineConstant installs a read-only, non-configurable property.
func (vm *VM) defineConstant(obj Value, name string, v Value) {
	vm.defineOwn(vm.object(obj), vm.str(name), v, 0)
}

func (vm *VM) defineGlobalValue(name string, v Value) {
	vm.defineOwn(vm.object(vm.global), vm.str(name), v, attrHidden)
}

// thisObject returns the receiver as an object or throws.
func (vm *VM) thisObject(this Value, method string) *Object {
	o := vm.asObject(this)
	if o == nil {
		vm.throwError(errType, "%s called on non-object", method)
	}
	return o
}

// ---------------------------------------------------------------------------
// Global functions
// ---------------------------------------------------------------------------

func (vm *VM) initGlobalFunctions() {
	vm.defineMethod(vm.global, "print", 0, vm.globalPrint)
	vm.defineMethod(vm.global, "isNaN", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		f := vm.toNumber(Arg(args, 0))
		return Bool(f != f), nil
	})
	vm.defineMethod(vm.global, "isFinite", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		f := vm.toNumber(Arg(args, 0))
		return Bool(!math.IsInf(f, 0) && f == f), nil
	})
	vm.defineMethod(vm.global, "parseFloat", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		return Number(parseFloatPrefix(vm.goString(vm.toString(Arg(args, 0))))), nil
	})
	vm.defineMethod(vm.global, "parseInt", 2, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		s := vm.goString(vm.toString(Arg(args, 0)))
		radix := int(toInt32(vm.toNumber(Arg(args, 1))))
		return Number(parseIntPrefix(s, radix)), nil
	})
}

// globalPrint writes its arguments separated by spaces and a newline.
func (vm *VM) globalPrint(ctx *NativeContext, this Value, args []Value) (Value, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = vm.display(a)
	}
	if _, err := fmt.Fprintln(vm.stdout, strings.Join(parts, " ")); err != nil {
		return Undefined, err
	}
	return Undefined, nil
}

// display renders v for print: strings raw, symbols descriptively,
// everything else through toString.
func (vm *VM) display(v Value) string {
	switch v.Type() {
	case TypeString:
		return vm.goString(v)
	case TypeSymbol:
		return vm.symbolDescriptiveString(v)
	case TypeBigInt:
		return vm.bigInt(v).String() + "n"
	}
	return vm.goString(vm.toString(v))
}

// parseFloatPrefix parses the longest numeric prefix of s.
func parseFloatPrefix(s string) float64 {
	s = strings.TrimLeftFunc(s, isJSWhitespace)
	for _, inf := range []string{"Infinity", "+Infinity", "-Infinity"} {
		if strings.HasPrefix(s, inf) {
			return parseNumber(inf)
		}
	}
	end, seenDot, seenExp, seenDigit := 0, false, false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			seenDigit = true
			end = i + 1
		case (c == '+' || c == '-') && (i == 0 || s[i-1] == 'e' || s[i-1] == 'E'):
		case c == '.' && !seenDot && !seenExp:
			seenDot = true
		case (c == 'e' || c == 'E') && seenDigit && !seenExp:
			seenExp = true
		default:
			i = len(s)
		}
	}
	if !seenDigit {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return f
		}
		return math.NaN()
	}
	return f
}

// parseIntPrefix parses the longest integer prefix of s in radix.
func parseIntPrefix(s string, radix int) float64 {
	s = strings.TrimLeftFunc(s, isJSWhitespace)
	sign := 1.0
	if s != "" && (s[0] == '+' || s[0] == '-') {
		if s[0] == '-' {
			sign = -1
		}
		s = s[1:]
	}
	if radix == 0 {
		radix = 10
		if len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
			radix = 16
			s = s[2:]
		}
	} else if radix == 16 && len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	if radix < 2 || radix > 36 {
		return math.NaN()
	}
	result, digits := 0.0, 0
	for _, c := range strings.ToLower(s) {
		var d int
		switch {
		case c >= '0' && c <= '9':
			d = int(c - '0')
		case c >= 'a' && c <= 'z':
			d = int(c-'a') + 10
		default:
			d = radix
		}
		if d >= radix {
			break
		}
		result = result*float64(radix) + float64(d)
		digits++
	}
	if digits == 0 {
		return math.NaN()
	}
	return sign * result
}
