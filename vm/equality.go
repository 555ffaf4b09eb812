package vm

import (
	"math"
	"math/big"
)

// strictEquals implements ===: identity for objects and symbols, IEEE-754
// comparison for numbers (NaN is unequal to itself, +0 equals -0), and
// numeric comparison for BigInts.
func (vm *VM) strictEquals(a, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		return a.Float64() == b.Float64()
	}
	if a.IsBigInt() && b.IsBigInt() {
		return vm.bigInt(a).Cmp(vm.bigInt(b)) == 0
	}
	return a == b
}

// sameValue is like strictEquals except NaN equals NaN and +0 differs
// from -0.
func (vm *VM) sameValue(a, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		x, y := a.Float64(), b.Float64()
		if x != x && y != y {
			return true
		}
		if x == 0 && y == 0 {
			return math.Signbit(x) == math.Signbit(y)
		}
		return x == y
	}
	return vm.strictEquals(a, b)
}

// sameValueZero is sameValue with +0 and -0 considered equal.
func (vm *VM) sameValueZero(a, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		x, y := a.Float64(), b.Float64()
		return x == y || (x != x && y != y)
	}
	return vm.strictEquals(a, b)
}

// looseEquals implements == with its type coercions. At most one operand
// is an object here, so at most one toPrimitive call runs user code.
func (vm *VM) looseEquals(a, b Value) bool {
	for {
		ta, tb := a.Type(), b.Type()
		if ta == tb {
			return vm.strictEquals(a, b)
		}
		switch {
		case a.IsNullish() && b.IsNullish():
			return true
		case a.IsNullish() || b.IsNullish():
			return false
		case ta == TypeNumber && tb == TypeString:
			return a.Float64() == parseNumber(vm.goString(b))
		case ta == TypeString && tb == TypeNumber:
			return parseNumber(vm.goString(a)) == b.Float64()
		case ta == TypeBigInt && tb == TypeString:
			n, ok := parseBigInt(vm.goString(b))
			return ok && vm.bigInt(a).Cmp(n) == 0
		case ta == TypeString && tb == TypeBigInt:
			a, b = b, a
			continue
		case ta == TypeBoolean:
			a = Number(vm.toNumber(a))
			continue
		case tb == TypeBoolean:
			b = Number(vm.toNumber(b))
			continue
		case ta == TypeObject:
			a = vm.toPrimitive(a, hintDefault)
			continue
		case tb == TypeObject:
			b = vm.toPrimitive(b, hintDefault)
			continue
		case ta == TypeBigInt && tb == TypeNumber:
			return compareBigFloat(vm.bigInt(a), b.Float64()) == 0
		case ta == TypeNumber && tb == TypeBigInt:
			return compareBigFloat(vm.bigInt(b), a.Float64()) == 0
		}
		return false
	}
}

// compareBigFloat compares n with f, returning -1, 0 or 1. NaN yields 2.
func compareBigFloat(n *big.Int, f float64) int {
	switch {
	case f != f:
		return 2
	case math.IsInf(f, 1):
		return -1
	case math.IsInf(f, -1):
		return 1
	}
	return new(big.Float).SetInt(n).Cmp(big.NewFloat(f))
}

// StrictEquals reports a === b.
func (vm *VM) StrictEquals(a, b Value) bool {
	return vm.strictEquals(a, b)
}

// SameValue reports whether a and b are the same value: NaN equals NaN and
// +0 differs from -0.
func (vm *VM) SameValue(a, b Value) bool {
	return vm.sameValue(a, b)
}

// Equals reports a == b. Objects are converted with valueOf/toString,
// which may run interpreted code and fail.
func (vm *VM) Equals(a, b Value) (result bool, err error) {
	err = vm.host(func() {
		result = vm.looseEquals(a, b)
	})
	return result, err
}
