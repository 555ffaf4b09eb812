package vm

import (
	"math"
	"math/big"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Number
// ---------------------------------------------------------------------------

func (vm *VM) initNumber() {
	in := &vm.intrinsics
	in.numberProto = vm.newObjectKind(ObjectOrdinary, in.objectProto, nil)
	proto := in.numberProto

	ctor := vm.newConstructor("Number", 1, proto, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		if len(args) == 0 {
			return Number(0), nil
		}
		n := vm.toNumeric(args[0])
		if n.IsBigInt() {
			f, _ := new(big.Float).SetInt(vm.bigInt(n)).Float64()
			return Number(f), nil
		}
		return n, nil
	})
	vm.defineGlobalValue("Number", ctor)

	for _, c := range []struct {
		name string
		v    float64
	}{
		{"MAX_SAFE_INTEGER", 1<<53 - 1},
		{"MIN_SAFE_INTEGER", -(1<<53 - 1)},
		{"EPSILON", math.Nextafter(1, 2) - 1},
		{"MAX_VALUE", math.MaxFloat64},
		{"MIN_VALUE", math.SmallestNonzeroFloat64},
		{"POSITIVE_INFINITY", math.Inf(1)},
		{"NEGATIVE_INFINITY", math.Inf(-1)},
		{"NaN", math.NaN()},
	} {
		vm.defineConstant(ctor, c.name, Number(c.v))
	}

	vm.defineMethod(ctor, "isInteger", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		v := Arg(args, 0)
		return Bool(v.IsNumber() && isIntegral(v.Float64())), nil
	})
	vm.defineMethod(ctor, "isSafeInteger", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		v := Arg(args, 0)
		return Bool(v.IsNumber() && isIntegral(v.Float64()) && math.Abs(v.Float64()) <= 1<<53-1), nil
	})
	vm.defineMethod(ctor, "isNaN", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		v := Arg(args, 0)
		return Bool(v.IsNumber() && v.Float64() != v.Float64()), nil
	})
	vm.defineMethod(ctor, "isFinite", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		v := Arg(args, 0)
		return Bool(v.IsNumber() && isFinite(v.Float64())), nil
	})

	vm.defineMethod(proto, "toString", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		f := vm.thisNumber(this, "toString")
		radix := 10.0
		if r := Arg(args, 0); !r.IsUndefined() {
			radix = vm.toIntegerOrInfinity(r)
		}
		if radix < 2 || radix > 36 {
			vm.throwError(errRange, "toString() radix must be between 2 and 36")
		}
		if radix == 10 {
			return vm.str(formatNumber(f)), nil
		}
		return vm.str(formatRadix(f, int(radix))), nil
	})
	vm.defineMethod(proto, "toFixed", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		f := vm.thisNumber(this, "toFixed")
		digits := vm.toIntegerOrInfinity(Arg(args, 0))
		if digits < 0 || digits > 100 {
			vm.throwError(errRange, "toFixed() digits argument must be between 0 and 100")
		}
		if !isFinite(f) || math.Abs(f) >= 1e21 {
			return vm.str(formatNumber(f)), nil
		}
		return vm.str(strconv.FormatFloat(f, 'f', int(digits), 64)), nil
	})
	vm.defineMethod(proto, "valueOf", 0, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		return Number(vm.thisNumber(this, "valueOf")), nil
	})
}

func (vm *VM) thisNumber(this Value, method string) float64 {
	if !this.IsNumber() {
		vm.throwError(errType, "Number.prototype.%s requires that 'this' be a Number", method)
	}
	return this.Float64()
}

func isIntegral(f float64) bool {
	return isFinite(f) && f == math.Trunc(f)
}

func isFinite(f float64) bool {
	return f == f && !math.IsInf(f, 0)
}

// formatRadix renders f in the given radix. Integral values are exact;
// fractions are cut off after 20 digits.
func formatRadix(f float64, radix int) string {
	if !isFinite(f) {
		return formatNumber(f)
	}
	neg := f < 0
	f = math.Abs(f)
	ip, frac := math.Modf(f)

	var sb strings.Builder
	if neg {
		sb.WriteByte('-')
	}
	if ip < 1<<63 {
		sb.WriteString(strconv.FormatUint(uint64(ip), radix))
	} else {
		n, _ := new(big.Float).SetFloat64(ip).Int(nil)
		sb.WriteString(n.Text(radix))
	}
	if frac > 0 {
		sb.WriteByte('.')
		for i := 0; i < 20 && frac > 0; i++ {
			frac *= float64(radix)
			d := int(frac)
			sb.WriteByte("0123456789abcdefghijklmnopqrstuvwxyz"[d])
			frac -= float64(d)
		}
	}
	return sb.String()
}

// ---------------------------------------------------------------------------
// Math
// ---------------------------------------------------------------------------

func (vm *VM) initMath() {
	m := vm.newOrdinary()
	vm.defineGlobalValue("Math", m)
	vm.defineConstant(m, "PI", Number(math.Pi))
	vm.defineConstant(m, "E", Number(math.E))

	unary := map[string]func(float64) float64{
		"abs":   math.Abs,
		"floor": math.Floor,
		"ceil":  math.Ceil,
		"trunc": math.Trunc,
		"sqrt":  math.Sqrt,
		"log":   math.Log,
		"exp":   math.Exp,
		"round": func(x float64) float64 { return math.Floor(x + 0.5) },
		"sign": func(x float64) float64 {
			if x > 0 {
				return 1
			} else if x < 0 {
				return -1
			}
			return x
		},
	}
	for _, name := range []string{"abs", "floor", "ceil", "trunc", "sqrt", "log", "exp", "round", "sign"} {
		fn := unary[name]
		vm.defineMethod(m, name, 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
			return Number(fn(vm.toNumber(Arg(args, 0)))), nil
		})
	}
	vm.defineMethod(m, "pow", 2, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		return Number(pow(vm.toNumber(Arg(args, 0)), vm.toNumber(Arg(args, 1)))), nil
	})
	vm.defineMethod(m, "max", 2, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		return Number(vm.extremum(args, math.Inf(-1), func(a, b float64) bool { return a > b })), nil
	})
	vm.defineMethod(m, "min", 2, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		return Number(vm.extremum(args, math.Inf(1), func(a, b float64) bool { return a < b })), nil
	})
}

// extremum folds args with better; any NaN makes the result NaN. Of two
// zeros, max prefers +0 and min prefers -0.
func (vm *VM) extremum(args []Value, start float64, better func(a, b float64) bool) float64 {
	result := start
	nan := false
	for _, a := range args {
		f := vm.toNumber(a)
		switch {
		case f != f:
			nan = true
		case better(f, result):
			result = f
		case f == 0 && result == 0 && math.Signbit(f) != math.Signbit(result):
			if better(1/f, 1/result) {
				result = f
			}
		}
	}
	if nan {
		return math.NaN()
	}
	return result
}

// ---------------------------------------------------------------------------
// Boolean
// ---------------------------------------------------------------------------

func (vm *VM) initBoolean() {
	in := &vm.intrinsics
	in.booleanProto = vm.newObjectKind(ObjectOrdinary, in.objectProto, nil)
	proto := in.booleanProto

	ctor := vm.newConstructor("Boolean", 1, proto, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		return Bool(vm.toBoolean(Arg(args, 0))), nil
	})
	vm.defineGlobalValue("Boolean", ctor)

	vm.defineMethod(proto, "toString", 0, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		return vm.primitiveToString(vm.thisBoolean(this, "toString")), nil
	})
	vm.defineMethod(proto, "valueOf", 0, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		return vm.thisBoolean(this, "valueOf"), nil
	})
}

func (vm *VM) thisBoolean(this Value, method string) Value {
	if !this.IsBool() {
		vm.throwError(errType, "Boolean.prototype.%s requires that 'this' be a Boolean", method)
	}
	return this
}

// ---------------------------------------------------------------------------
// Symbol
// ---------------------------------------------------------------------------

func (vm *VM) initSymbol() {
	in := &vm.intrinsics
	in.symbolProto = vm.newObjectKind(ObjectOrdinary, in.objectProto, nil)
	proto := in.symbolProto

	ctor := vm.newNative("Symbol", 0, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		if ctx.IsConstruct() {
			vm.throwError(errType, "Symbol is not a constructor")
		}
		desc := Undefined
		if d := Arg(args, 0); !d.IsUndefined() {
			desc = vm.toString(d)
		}
		return vm.newSymbol(desc), nil
	})
	vm.defineOwn(vm.object(ctor), vm.names.prototype, proto, 0)
	vm.defineOwn(vm.object(proto), vm.names.constructor, ctor, attrHidden)
	vm.defineGlobalValue("Symbol", ctor)
	vm.defineConstant(ctor, "iterator", in.iteratorSymbol)

	vm.defineMethod(proto, "toString", 0, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		return vm.str(vm.symbolDescriptiveString(vm.thisSymbol(this, "toString"))), nil
	})
	vm.defineMethod(proto, "valueOf", 0, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		return vm.thisSymbol(this, "valueOf"), nil
	})
}

func (vm *VM) thisSymbol(this Value, method string) Value {
	if !this.IsSymbol() {
		vm.throwError(errType, "Symbol.prototype.%s requires that 'this' be a Symbol", method)
	}
	return this
}

// ---------------------------------------------------------------------------
// BigInt
// ---------------------------------------------------------------------------

func (vm *VM) initBigInt() {
	in := &vm.intrinsics
	in.bigIntProto = vm.newObjectKind(ObjectOrdinary, in.objectProto, nil)
	proto := in.bigIntProto

	ctor := vm.newNative("BigInt", 1, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		if ctx.IsConstruct() {
			vm.throwError(errType, "BigInt is not a constructor")
		}
		return vm.toBigInt(vm.toPrimitive(Arg(args, 0), hintNumber)), nil
	})
	vm.defineOwn(vm.object(ctor), vm.names.prototype, proto, 0)
	vm.defineOwn(vm.object(proto), vm.names.constructor, ctor, attrHidden)
	vm.defineGlobalValue("BigInt", ctor)

	vm.defineMethod(proto, "toString", 0, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		if !this.IsBigInt() {
			vm.throwError(errType, "BigInt.prototype.toString requires that 'this' be a BigInt")
		}
		radix := 10.0
		if r := Arg(args, 0); !r.IsUndefined() {
			radix = vm.toIntegerOrInfinity(r)
		}
		if radix < 2 || radix > 36 {
			vm.throwError(errRange, "toString() radix must be between 2 and 36")
		}
		return vm.str(vm.bigInt(this).Text(int(radix))), nil
	})
	vm.defineMethod(proto, "valueOf", 0, func(ctx *NativeContext, this Value, args []Value) (Value, error) {
		if !this.IsBigInt() {
			vm.throwError(errType, "BigInt.prototype.valueOf requires that 'this' be a BigInt")
		}
		return this, nil
	})
}

// toBigInt converts a primitive to a BigInt.
func (vm *VM) toBigInt(v Value) Value {
	switch v.Type() {
	case TypeBigInt:
		return v
	case TypeBoolean:
		if v == True {
			return vm.newBigInt(big.NewInt(1))
		}
		return vm.newBigInt(big.NewInt(0))
	case TypeNumber:
		f := v.Float64()
		if !isIntegral(f) {
			vm.throwError(errRange, "The number %s cannot be converted to a BigInt because it is not an integer", formatNumber(f))
		}
		n, _ := new(big.Float).SetFloat64(f).Int(nil)
		return vm.newBigInt(n)
	case TypeString:
		s := vm.goString(v)
		n, ok := parseBigInt(s)
		if !ok {
			vm.throwError(errSyntax, "Cannot convert %s to a BigInt", s)
		}
		return vm.newBigInt(n)
	}
	vm.throwError(errType, "Cannot convert %s to a BigInt", vm.safeString(v))
	return Undefined
}
