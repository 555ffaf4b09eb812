package vm

import (
	"math"
	"testing"
)

func TestNumberRoundTrip(t *testing.T) {
	tests := []float64{
		0, 1, -1, 0.5, 42, -3.75,
		math.MaxFloat64, math.SmallestNonzeroFloat64,
		math.Inf(1), math.Inf(-1),
		9007199254740993,
	}
	for _, f := range tests {
		v := Number(f)
		if !v.IsNumber() {
			t.Errorf("Number(%v) is not a number", f)
			continue
		}
		if got := v.Float64(); got != f {
			t.Errorf("Number(%v).Float64() = %v", f, got)
		}
	}
}

func TestNegativeZeroIsDistinct(t *testing.T) {
	neg := Number(math.Copysign(0, -1))
	if neg == Number(0) {
		t.Fatal("-0 and +0 share an encoding")
	}
	if !math.Signbit(neg.Float64()) {
		t.Error("-0 lost its sign")
	}
}

func TestNaNIsCanonical(t *testing.T) {
	payloads := []uint64{
		0x7FF8000000000001,
		0x7FF4000000000000,
		0xFFF8000000000000,
		nanBits | tagObject | 5, // a NaN that looks like an object reference
	}
	for _, bits := range payloads {
		v := Number(math.Float64frombits(bits))
		if v != NaN {
			t.Errorf("NaN with bits %016X not canonicalized: %016X", bits, uint64(v))
		}
		if !v.IsNumber() || v.IsObject() {
			t.Errorf("NaN with bits %016X decoded as %s", bits, v.Type())
		}
	}
}

func TestValueTypes(t *testing.T) {
	tests := []struct {
		v    Value
		want Type
	}{
		{Undefined, TypeUndefined},
		{Null, TypeNull},
		{True, TypeBoolean},
		{False, TypeBoolean},
		{Number(1), TypeNumber},
		{NaN, TypeNumber},
		{Number(math.Inf(-1)), TypeNumber},
		{stringValue(7), TypeString},
		{objectValue(makeRef(3, 1)), TypeObject},
		{symbolValue(makeRef(4, 0)), TypeSymbol},
		{bigIntValue(makeRef(5, 2)), TypeBigInt},
	}
	for _, tt := range tests {
		if got := tt.v.Type(); got != tt.want {
			t.Errorf("%s.Type() = %s, want %s", tt.v.GoString(), got, tt.want)
		}
	}
}

func TestValuePredicates(t *testing.T) {
	if !Undefined.IsNullish() || !Null.IsNullish() || Number(0).IsNullish() {
		t.Error("IsNullish")
	}
	if !True.IsBool() || !False.IsBool() || Null.IsBool() {
		t.Error("IsBool")
	}
	if !True.IsTrue() || False.IsTrue() || Number(1).IsTrue() {
		t.Error("IsTrue")
	}
	if Bool(true) != True || Bool(false) != False {
		t.Error("Bool")
	}
	if Value(0) != Number(0) {
		t.Error("zero Value is not +0")
	}
}

func TestHeapReferences(t *testing.T) {
	r := makeRef(123456, 789)
	if r.index() != 123456 || r.gen() != 789 {
		t.Fatalf("makeRef round trip: index %d gen %d", r.index(), r.gen())
	}
	for _, v := range []Value{objectValue(r), symbolValue(r), bigIntValue(r)} {
		got, ok := v.heapRef()
		if !ok || got != r {
			t.Errorf("%s.heapRef() = %v, %v", v.GoString(), got, ok)
		}
	}
	for _, v := range []Value{Undefined, Number(3), stringValue(1), hole, uninitialized} {
		if _, ok := v.heapRef(); ok {
			t.Errorf("%s has a heap reference", v.GoString())
		}
	}
	if !Ref(0).IsZero() || r.IsZero() {
		t.Error("IsZero")
	}
}

func TestInternalMarkersAreHidden(t *testing.T) {
	for _, v := range []Value{hole, uninitialized} {
		if !v.isInternal() {
			t.Errorf("%s is not internal", v.GoString())
		}
		if v.IsNumber() || v.IsObject() || v.IsUndefined() {
			t.Errorf("%s matches a language type", v.GoString())
		}
	}
	defer func() {
		if recover() == nil {
			t.Error("Type() on an internal marker did not panic")
		}
	}()
	_ = hole.Type()
}

func TestValueGoString(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Undefined, "undefined"},
		{Null, "null"},
		{True, "true"},
		{False, "false"},
		{Number(2.5), "Number(2.5)"},
		{objectValue(makeRef(3, 1)), "Object(#3.1)"},
		{hole, "<hole>"},
	}
	for _, tt := range tests {
		if got := tt.v.GoString(); got != tt.want {
			t.Errorf("GoString = %q, want %q", got, tt.want)
		}
	}
}
