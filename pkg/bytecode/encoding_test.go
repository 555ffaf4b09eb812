package bytecode

import (
	"bytes"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

func sampleProgram(t *testing.T) *Program {
	t.Helper()
	p := NewProgram()
	scope := p.AddScope([]string{"x"}, nil)

	inner := NewBuilder("inner", 1).SetKind(KindGenerator).SetStrict(true)
	inner.EmitU16(OpGetLocal, 0)
	inner.Emit(OpYield)
	inner.Emit(OpReturn)
	innerFn, err := inner.Build()
	if err != nil {
		t.Fatal(err)
	}
	innerIdx := p.AddFunction(innerFn)

	main := NewBuilder("main", 0).SetScope(scope)
	main.EmitU16(OpClosure, innerIdx)
	main.EmitEnv(OpInitEnv, 0, 0)
	main.EmitU16(OpConst, p.AddBigInt("-18446744073709551617"))
	main.Emit(OpReturn)
	mainFn, err := main.Build()
	if err != nil {
		t.Fatal(err)
	}
	p.Entry = p.AddFunction(mainFn)
	return p
}

func TestMarshalUnmarshal(t *testing.T) {
	p := sampleProgram(t)
	data, err := Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.HasPrefix(data, Magic) {
		t.Fatal("missing magic")
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(p, got) {
		t.Errorf("decoded program differs:\n got %+v\nwant %+v", got, p)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	a, err := Marshal(sampleProgram(t))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Marshal(sampleProgram(t))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Error("canonical encoding should be byte-identical")
	}
}

func TestUnmarshalBadMagic(t *testing.T) {
	_, err := Unmarshal([]byte("TTBC\x00"))
	if !errors.Is(err, ErrBadMagic) {
		t.Errorf("err = %v, want ErrBadMagic", err)
	}
}

func TestWriteReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prog.kbc")
	p := sampleProgram(t)
	if err := WriteFile(path, p); err != nil {
		t.Fatal(err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.EntryFunction().Name != "main" {
		t.Errorf("entry = %q", got.EntryFunction().Name)
	}
}
