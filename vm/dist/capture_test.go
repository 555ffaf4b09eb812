package dist

import (
	"errors"
	"math"
	"math/big"
	"testing"

	"github.com/chazu/kestrel/vm"
)

func newVM(t *testing.T) *vm.VM {
	t.Helper()
	m := vm.NewVM()
	t.Cleanup(m.Shutdown)
	return m
}

func mustSet(t *testing.T, m *vm.VM, obj vm.Value, key string, v vm.Value) {
	t.Helper()
	if err := m.Set(obj, key, v); err != nil {
		t.Fatalf("Set %s: %v", key, err)
	}
}

func mustGet(t *testing.T, m *vm.VM, obj vm.Value, key string) vm.Value {
	t.Helper()
	v, err := m.Get(obj, key)
	if err != nil {
		t.Fatalf("Get %s: %v", key, err)
	}
	return v
}

func TestTransferPrimitives(t *testing.T) {
	src, dst := newVM(t), newVM(t)
	tests := []vm.Value{
		vm.Undefined,
		vm.Null,
		vm.True,
		vm.Number(-2.5),
		vm.Number(math.Copysign(0, -1)),
		vm.NaN,
		src.NewString("héllo"),
	}
	for _, v := range tests {
		got, err := Transfer(dst, src, v)
		if err != nil {
			t.Fatalf("Transfer(%s): %v", v.GoString(), err)
		}
		if v.IsString() {
			if dst.String(got) != src.String(v) {
				t.Errorf("string = %q", dst.String(got))
			}
			continue
		}
		if !dst.SameValue(got, v) {
			t.Errorf("Transfer(%s) = %s", v.GoString(), got.GoString())
		}
	}

	n, _ := new(big.Int).SetString("-98765432109876543210", 10)
	got, err := Transfer(dst, src, src.NewBigInt(n))
	if err != nil {
		t.Fatal(err)
	}
	if b, ok := dst.BigIntValue(got); !ok || b.Cmp(n) != 0 {
		t.Errorf("BigInt = %v", b)
	}
}

func TestTransferKeepsShapeAndOrder(t *testing.T) {
	src, dst := newVM(t), newVM(t)
	root, err := src.FromJSON([]byte(`{"zeta":1,"alpha":[true,"x",{"deep":null}],"mid":"m"}`))
	if err != nil {
		t.Fatal(err)
	}
	got, err := Transfer(dst, src, root)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := src.ToJSON(root, "")
	s, _ := dst.ToJSON(got, "")
	if s != want {
		t.Errorf("restored %s, want %s", s, want)
	}
	if !dst.IsArray(mustGet(t, dst, got, "alpha")) {
		t.Error("array restored as a plain object")
	}
}

func TestTransferCyclesAndSharing(t *testing.T) {
	src, dst := newVM(t), newVM(t)
	root := src.NewObject()
	shared := src.NewArray(src.NewString("s"))
	mustSet(t, src, root, "self", root)
	mustSet(t, src, root, "a", shared)
	mustSet(t, src, root, "b", shared)
	mustSet(t, src, shared, "1", root)

	snap, err := Capture(src, root)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Nodes) != 2 {
		t.Errorf("captured %d nodes, want 2", len(snap.Nodes))
	}
	if snap.Source != src.ID {
		t.Error("snapshot does not record its source engine")
	}

	got, err := Restore(dst, snap, nil)
	if err != nil {
		t.Fatal(err)
	}
	if mustGet(t, dst, got, "self") != got {
		t.Error("self reference not preserved")
	}
	a, b := mustGet(t, dst, got, "a"), mustGet(t, dst, got, "b")
	if a != b {
		t.Error("shared array was duplicated")
	}
	if mustGet(t, dst, a, "1") != got {
		t.Error("back reference from array not preserved")
	}
}

func TestTransferSparseArray(t *testing.T) {
	src, dst := newVM(t), newVM(t)
	root := src.NewArray(src.NewString("a"))
	mustSet(t, src, root, "1000000", vm.Number(7))
	mustSet(t, src, root, "length", vm.Number(4294967295))

	snap, err := Capture(src, root)
	if err != nil {
		t.Fatal(err)
	}
	if n := snap.Nodes[0]; n.Length != 4294967295 || len(n.Values) != 2 {
		t.Fatalf("array node: length %d, %d values", n.Length, len(n.Values))
	}
	data, err := Marshal(snap)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Restore(dst, decoded, nil)
	if err != nil {
		t.Fatal(err)
	}
	if l := mustGet(t, dst, got, "length"); l.Float64() != 4294967295 {
		t.Errorf("length = %v", l.Float64())
	}
	if e := mustGet(t, dst, got, "1000000"); e.Float64() != 7 {
		t.Errorf("element = %s", e.GoString())
	}
	if e := mustGet(t, dst, got, "0"); dst.String(e) != "a" {
		t.Errorf("first element = %s", e.GoString())
	}
	if keys, _ := dst.Keys(got); len(keys) != 2 {
		t.Errorf("keys = %v, holes were filled in", keys)
	}
}

func TestTransferCollections(t *testing.T) {
	src, dst := newVM(t), newVM(t)
	shared := src.NewObject()
	mustSet(t, src, shared, "id", vm.Number(1))
	set := src.NewSet(vm.NaN, shared, src.NewString("x"))
	m := src.NewMap()
	if err := src.CollectionAdd(m, shared, src.NewString("first")); err != nil {
		t.Fatal(err)
	}
	if err := src.CollectionAdd(m, vm.Number(2), shared); err != nil {
		t.Fatal(err)
	}

	got, err := Transfer(dst, src, src.NewArray(set, m))
	if err != nil {
		t.Fatal(err)
	}
	gotSet, gotMap := mustGet(t, dst, got, "0"), mustGet(t, dst, got, "1")
	if !dst.IsSet(gotSet) || !dst.IsMap(gotMap) {
		t.Fatal("collections restored as plain objects")
	}
	if size := mustGet(t, dst, gotSet, "size"); size.Float64() != 3 {
		t.Errorf("set size = %v", size.Float64())
	}

	elems, _, _ := dst.CollectionEntries(gotSet)
	if len(elems) != 3 || !dst.SameValue(elems[0], vm.NaN) || dst.String(elems[2]) != "x" {
		t.Fatalf("set elements = %v", elems)
	}
	keys, values, _ := dst.CollectionEntries(gotMap)
	if len(keys) != 2 {
		t.Fatalf("map has %d entries", len(keys))
	}
	if keys[0] != elems[1] || values[1] != elems[1] {
		t.Error("shared object was duplicated")
	}
	if dst.String(values[0]) != "first" || keys[1].Float64() != 2 {
		t.Errorf("map entries = %v => %v", keys, values)
	}
}

func TestTransferErrors(t *testing.T) {
	src, dst := newVM(t), newVM(t)
	e := src.NewError(vm.RangeError, "too far")
	mustSet(t, src, e, "code", vm.Number(7))

	got, err := Transfer(dst, src, e)
	if err != nil {
		t.Fatal(err)
	}
	if !dst.IsError(got) {
		t.Fatal("error restored as a plain object")
	}
	s, _ := dst.ToString(got)
	if s != "RangeError: too far" {
		t.Errorf("ToString = %q", s)
	}
	if code := mustGet(t, dst, got, "code"); code.Float64() != 7 {
		t.Errorf("code = %s", code.GoString())
	}
	stack := mustGet(t, dst, got, "stack")
	if dst.String(stack) != src.String(mustGet(t, src, e, "stack")) {
		t.Errorf("stack = %q", dst.String(stack))
	}

	custom := src.NewError(vm.PlainError, "x")
	mustSet(t, src, custom, "name", src.NewString("ParseError"))
	got, err = Transfer(dst, src, custom)
	if err != nil {
		t.Fatal(err)
	}
	if name := dst.String(mustGet(t, dst, got, "name")); name != "ParseError" {
		t.Errorf("custom name = %q", name)
	}
}

func TestCaptureRejectsEngineBoundValues(t *testing.T) {
	src := newVM(t)
	printFn, _ := src.Get(src.Global(), "print")
	tests := []struct {
		name string
		v    vm.Value
	}{
		{"function", printFn},
		{"symbol", src.NewSymbol("s")},
		{"host object", src.NewHostObject(struct{}{}, nil)},
		{"nested function", src.NewArray(vm.Number(1), printFn)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Capture(src, tt.v); !errors.Is(err, ErrNotTransferable) {
				t.Errorf("err = %v, want ErrNotTransferable", err)
			}
		})
	}
}

func TestRestoreRejectsMalformed(t *testing.T) {
	dst := newVM(t)
	tests := []struct {
		name string
		snap *Snapshot
	}{
		{"dangling root", &Snapshot{Root: Slot{Kind: SlotRef, Ref: 3}}},
		{"negative ref", &Snapshot{Root: Slot{Kind: SlotRef, Ref: -1}, Nodes: []Node{{Kind: NodeObject}}}},
		{"unknown slot", &Snapshot{Root: Slot{Kind: 99}}},
		{"bad bigint", &Snapshot{Root: Slot{Kind: SlotBigInt, Str: "12z"}}},
		{"unknown node", &Snapshot{Nodes: []Node{{Kind: 9}}}},
		{"key count", &Snapshot{Nodes: []Node{{Kind: NodeObject, Keys: []string{"a"}}}}},
		{"array keys", &Snapshot{Nodes: []Node{{Kind: NodeArray, Keys: []string{"a"}, Values: []Slot{{}}}}}},
		{"sparse index past length", &Snapshot{Nodes: []Node{{Kind: NodeArray, Length: 3, Keys: []string{"5"}, Values: []Slot{{}}}}}},
		{"unpaired map key", &Snapshot{Nodes: []Node{{Kind: NodeMap, Values: []Slot{{}}}}}},
		{"set keys", &Snapshot{Nodes: []Node{{Kind: NodeSet, Keys: []string{"a"}, Values: []Slot{{}}}}}},
		{"sparse key not an index", &Snapshot{Nodes: []Node{{Kind: NodeArray, Length: 3, Keys: []string{"01"}, Values: []Slot{{}}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Restore(dst, tt.snap, nil); err == nil {
				t.Error("malformed snapshot restored")
			}
		})
	}
}
