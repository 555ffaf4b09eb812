package vm

import (
	"math"
	"math/big"

	"github.com/chazu/kestrel/pkg/bytecode"
)

// Operators read their operands from operand stack slots and write every
// intermediate conversion back, so a collection triggered by user code
// in valueOf or toString never reclaims a half-converted operand.

func (vm *VM) primitiveSlot(i int, hint primitiveHint) Value {
	v := vm.toPrimitive(vm.stack[i], hint)
	vm.stack[i] = v
	return v
}

func (vm *VM) numericSlot(i int) Value {
	v := vm.toNumeric(vm.stack[i])
	vm.stack[i] = v
	return v
}

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

// add implements a + b for operands in slots i and i+1.
func (vm *VM) add(i int) Value {
	a := vm.primitiveSlot(i, hintDefault)
	b := vm.primitiveSlot(i+1, hintDefault)
	if a.IsNumber() && b.IsNumber() {
		return Number(a.Float64() + b.Float64())
	}
	if a.IsString() || b.IsString() {
		return vm.str(vm.goString(vm.primitiveToString(a)) + vm.goString(vm.primitiveToString(b)))
	}
	vm.stack[i] = vm.toNumeric(a)
	vm.stack[i+1] = vm.toNumeric(b)
	return vm.arith(bytecode.OpAdd, i)
}

// arith implements the numeric binary operators for slots i and i+1.
func (vm *VM) arith(op bytecode.Opcode, i int) Value {
	a := vm.numericSlot(i)
	b := vm.numericSlot(i + 1)
	if a.IsBigInt() || b.IsBigInt() {
		if !a.IsBigInt() || !b.IsBigInt() {
			vm.throwError(errType, "Cannot mix BigInt and other types, use explicit conversions")
		}
		return vm.bigArith(op, vm.bigInt(a), vm.bigInt(b))
	}
	x, y := a.Float64(), b.Float64()
	switch op {
	case bytecode.OpAdd:
		return Number(x + y)
	case bytecode.OpSub:
		return Number(x - y)
	case bytecode.OpMul:
		return Number(x * y)
	case bytecode.OpDiv:
		return Number(x / y)
	case bytecode.OpMod:
		return Number(math.Mod(x, y))
	case bytecode.OpExp:
		return Number(pow(x, y))
	case bytecode.OpBitAnd:
		return Number(float64(toInt32(x) & toInt32(y)))
	case bytecode.OpBitOr:
		return Number(float64(toInt32(x) | toInt32(y)))
	case bytecode.OpBitXor:
		return Number(float64(toInt32(x) ^ toInt32(y)))
	case bytecode.OpShl:
		return Number(float64(toInt32(x) << (toUint32(y) & 31)))
	case bytecode.OpShr:
		return Number(float64(toInt32(x) >> (toUint32(y) & 31)))
	case bytecode.OpUShr:
		return Number(float64(toUint32(x) >> (toUint32(y) & 31)))
	}
	panic("arith: unexpected opcode " + op.String())
}

// pow differs from math.Pow where the language defines NaN results.
func pow(x, y float64) float64 {
	if y != y {
		return math.NaN()
	}
	if (x == 1 || x == -1) && math.IsInf(y, 0) {
		return math.NaN()
	}
	return math.Pow(x, y)
}

func (vm *VM) bigArith(op bytecode.Opcode, x, y *big.Int) Value {
	r := new(big.Int)
	switch op {
	case bytecode.OpAdd:
		r.Add(x, y)
	case bytecode.OpSub:
		r.Sub(x, y)
	case bytecode.OpMul:
		r.Mul(x, y)
	case bytecode.OpDiv:
		if y.Sign() == 0 {
			vm.throwError(errRange, "Division by zero")
		}
		r.Quo(x, y)
	case bytecode.OpMod:
		if y.Sign() == 0 {
			vm.throwError(errRange, "Division by zero")
		}
		r.Rem(x, y)
	case bytecode.OpExp:
		if y.Sign() < 0 {
			vm.throwError(errRange, "Exponent must be non-negative")
		}
		if !y.IsInt64() || y.Int64() > 1<<20 {
			vm.throwError(errRange, "Maximum BigInt size exceeded")
		}
		r.Exp(x, y, nil)
	case bytecode.OpBitAnd:
		r.And(x, y)
	case bytecode.OpBitOr:
		r.Or(x, y)
	case bytecode.OpBitXor:
		r.Xor(x, y)
	case bytecode.OpShl, bytecode.OpShr:
		if !y.IsInt64() || y.Int64() > 1<<24 || y.Int64() < -(1<<24) {
			vm.throwError(errRange, "Maximum BigInt size exceeded")
		}
		n := y.Int64()
		if op == bytecode.OpShr {
			n = -n
		}
		if n >= 0 {
			r.Lsh(x, uint(n))
		} else {
			r.Rsh(x, uint(-n))
		}
	case bytecode.OpUShr:
		vm.throwError(errType, "BigInts have no unsigned right shift, use >> instead")
	default:
		panic("bigArith: unexpected opcode " + op.String())
	}
	return vm.newBigInt(r)
}

// unary implements the single-operand numeric operators on slot i.
func (vm *VM) unary(op bytecode.Opcode, i int) Value {
	a := vm.numericSlot(i)
	if a.IsBigInt() {
		n := vm.bigInt(a)
		r := new(big.Int)
		switch op {
		case bytecode.OpNeg:
			r.Neg(n)
		case bytecode.OpPlus:
			vm.throwError(errType, "Cannot convert a BigInt value to a number")
		case bytecode.OpInc:
			r.Add(n, big.NewInt(1))
		case bytecode.OpDec:
			r.Sub(n, big.NewInt(1))
		case bytecode.OpBitNot:
			r.Not(n)
		}
		return vm.newBigInt(r)
	}
	x := a.Float64()
	switch op {
	case bytecode.OpNeg:
		return Number(-x)
	case bytecode.OpPlus:
		return a
	case bytecode.OpInc:
		return Number(x + 1)
	case bytecode.OpDec:
		return Number(x - 1)
	case bytecode.OpBitNot:
		return Number(float64(^toInt32(x)))
	}
	panic("unary: unexpected opcode " + op.String())
}

// ---------------------------------------------------------------------------
// Relational comparison
// ---------------------------------------------------------------------------

// compareUndefined is returned by compare when either operand is NaN.
const compareUndefined = 2

// compare orders the operands in slots i and i+1, returning -1, 0, 1 or
// compareUndefined.
func (vm *VM) compare(i int) int {
	a := vm.primitiveSlot(i, hintNumber)
	b := vm.primitiveSlot(i+1, hintNumber)
	if a.IsString() && b.IsString() {
		return compareUnits(vm.stringUnits(a), vm.stringUnits(b))
	}
	if a.IsBigInt() && b.IsString() {
		n, ok := parseBigInt(vm.goString(b))
		if !ok {
			return compareUndefined
		}
		return vm.bigInt(a).Cmp(n)
	}
	if a.IsString() && b.IsBigInt() {
		n, ok := parseBigInt(vm.goString(a))
		if !ok {
			return compareUndefined
		}
		return n.Cmp(vm.bigInt(b))
	}
	na, nb := vm.toNumeric(a), vm.toNumeric(b)
	switch {
	case na.IsBigInt() && nb.IsBigInt():
		return vm.bigInt(na).Cmp(vm.bigInt(nb))
	case na.IsBigInt():
		return compareBigFloat(vm.bigInt(na), nb.Float64())
	case nb.IsBigInt():
		c := compareBigFloat(vm.bigInt(nb), na.Float64())
		if c == compareUndefined {
			return c
		}
		return -c
	}
	x, y := na.Float64(), nb.Float64()
	switch {
	case x != x || y != y:
		return compareUndefined
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func compareUnits(a, b []uint16) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// relational evaluates a comparison opcode for slots i and i+1.
func (vm *VM) relational(op bytecode.Opcode, i int) bool {
	c := vm.compare(i)
	if c == compareUndefined {
		return false
	}
	switch op {
	case bytecode.OpLt:
		return c < 0
	case bytecode.OpLe:
		return c <= 0
	case bytecode.OpGt:
		return c > 0
	case bytecode.OpGe:
		return c >= 0
	}
	panic("relational: unexpected opcode " + op.String())
}

// ---------------------------------------------------------------------------
// Type operators
// ---------------------------------------------------------------------------

// typeOf returns the typeof string for v.
func (vm *VM) typeOf(v Value) Value {
	switch v.Type() {
	case TypeNull:
		return vm.str("object")
	case TypeObject:
		if vm.object(v).isCallable() {
			return vm.str("function")
		}
		return vm.str("object")
	}
	return vm.str(v.Type().String())
}

// instanceOf implements v instanceof ctor.
func (vm *VM) instanceOf(v, ctor Value) bool {
	c := vm.asObject(ctor)
	if c == nil || !c.isCallable() {
		vm.throwError(errType, "Right-hand side of 'instanceof' is not callable")
	}
	if b, ok := c.internal.(*boundData); ok {
		return vm.instanceOf(v, b.target)
	}
	o := vm.asObject(v)
	if o == nil {
		return false
	}
	proto := vm.getFrom(ctor, c, vm.names.prototype)
	if !proto.IsObject() {
		vm.throwError(errType, "Function has non-object prototype '%s' in instanceof check", vm.safeString(proto))
	}
	for p := o.proto; p.IsObject(); p = vm.object(p).proto {
		if p == proto {
			return true
		}
	}
	return false
}

// in implements key in obj.
func (vm *VM) in(key, obj Value) bool {
	o := vm.asObject(obj)
	if o == nil {
		vm.throwError(errType, "Cannot use 'in' operator to search for '%s' in %s",
			vm.safeString(key), vm.safeString(obj))
	}
	return vm.hasProperty(o, vm.toPropertyKey(key))
}
