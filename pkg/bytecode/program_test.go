package bytecode

import (
	"math"
	"strings"
	"testing"
)

func TestAddConstantDedup(t *testing.T) {
	p := NewProgram()
	a := p.AddString("x")
	b := p.AddString("x")
	if a != b {
		t.Errorf("AddString not deduplicated: %d vs %d", a, b)
	}
	n1 := p.AddNumber(1.5)
	n2 := p.AddNumber(1.5)
	if n1 != n2 {
		t.Errorf("AddNumber not deduplicated: %d vs %d", n1, n2)
	}
	if p.AddNumber(0) == p.AddNumber(math.Copysign(0, -1)) {
		t.Error("0 and -0 must be distinct constants")
	}
	if p.AddBigInt("10") == p.AddString("10") {
		t.Error("bigint and string constants must not alias")
	}
}

func TestHandlerCovers(t *testing.T) {
	h := Handler{Start: 0, End: 10, Target: 20}
	for _, pc := range []uint32{0, 5, 9} {
		if !h.Covers(pc) {
			t.Errorf("[0,10) should cover %d", pc)
		}
	}
	if h.Covers(10) {
		t.Error("range end is exclusive")
	}

	// Target inside its own range protects only [Start, Target).
	inner := Handler{Start: 0, End: 10, Target: 6}
	if !inner.Covers(5) {
		t.Error("should cover 5")
	}
	if inner.Covers(6) || inner.Covers(8) {
		t.Error("handler code must not be protected by its own handler")
	}
}

func TestFindHandlerNarrowest(t *testing.T) {
	fn := &Function{Handlers: []Handler{
		{Start: 0, End: 10, Target: 20},
		{Start: 2, End: 6, Target: 8},
	}}

	h, ok := fn.FindHandler(4)
	if !ok || h.Target != 8 {
		t.Errorf("FindHandler(4) = %+v, %v; want target 8", h, ok)
	}
	h, ok = fn.FindHandler(7)
	if !ok || h.Target != 20 {
		t.Errorf("FindHandler(7) = %+v, %v; want target 20", h, ok)
	}
	if _, ok := fn.FindHandler(12); ok {
		t.Error("FindHandler(12) should find nothing")
	}
}

func buildProgram(t *testing.T, build func(p *Program, b *Builder)) *Program {
	t.Helper()
	p := NewProgram()
	b := NewBuilder("main", 0)
	build(p, b)
	fn, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	p.Entry = p.AddFunction(fn)
	return p
}

func TestValidateAcceptsWellFormed(t *testing.T) {
	p := buildProgram(t, func(p *Program, b *Builder) {
		b.EmitU16(OpConst, p.AddString("hi"))
		b.EmitU16(OpGetProp, p.AddString("length"))
		b.Emit(OpReturn)
	})
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name  string
		build func(p *Program)
		want  string
	}{
		{
			name: "bad entry",
			build: func(p *Program) {
				p.Entry = p.AddNumber(1)
			},
			want: "entry",
		},
		{
			name: "invalid opcode",
			build: func(p *Program) {
				p.Entry = p.AddFunction(&Function{Name: "f", Scope: -1, Code: []byte{0xEE}})
			},
			want: "invalid opcode",
		},
		{
			name: "truncated operand",
			build: func(p *Program) {
				p.Entry = p.AddFunction(&Function{Name: "f", Scope: -1, Code: []byte{byte(OpConst), 0}})
			},
			want: "truncated",
		},
		{
			name: "property name not a string",
			build: func(p *Program) {
				idx := p.AddNumber(3)
				p.Entry = p.AddFunction(&Function{Name: "f", Scope: -1,
					Code: []byte{byte(OpNewObject), byte(OpGetProp), byte(idx), 0, byte(OpReturn)}})
			},
			want: "not a string",
		},
		{
			name: "jump into operand",
			build: func(p *Program) {
				p.Entry = p.AddFunction(&Function{Name: "f", Scope: -1,
					Code: []byte{byte(OpJump), 2, 0, 0, 0, byte(OpReturnUndefined)}})
			},
			want: "not an instruction",
		},
		{
			name: "local out of range",
			build: func(p *Program) {
				p.Entry = p.AddFunction(&Function{Name: "f", Scope: -1, NumLocals: 1,
					Code: []byte{byte(OpGetLocal), 1, 0, byte(OpReturn)}})
			},
			want: "slot out of range",
		},
		{
			name: "handler range",
			build: func(p *Program) {
				p.Entry = p.AddFunction(&Function{Name: "f", Scope: -1,
					Code:     []byte{byte(OpReturnUndefined)},
					Handlers: []Handler{{Start: 0, End: 4, Target: 0}}})
			},
			want: "bad range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProgram()
			tt.build(p)
			err := p.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}
