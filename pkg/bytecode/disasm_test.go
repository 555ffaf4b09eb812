package bytecode

import (
	"strings"
	"testing"
)

func TestDisassembleProgram(t *testing.T) {
	p := buildProgram(t, func(p *Program, b *Builder) {
		b.EmitU16(OpConst, p.AddString("hello world"))
		b.EmitU16(OpGetProp, p.AddString("length"))
		b.EmitEnv(OpGetEnv, 1, 2)
		b.Emit(OpAdd)
		b.Emit(OpReturn)
	})

	output := p.Disassemble()

	for _, want := range []string{
		"Kestrel Bytecode v1",
		"Constants:",
		`"hello world"`,
		"function main",
		"0000  CONST 0 ; \"hello world\"",
		"GET_PROP 1 ; \"length\"",
		"GET_ENV 1 2",
		"ADD",
		"RETURN",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("disassembly missing %q:\n%s", want, output)
		}
	}
}

func TestDisassembleHandlersAndJumps(t *testing.T) {
	p := buildProgram(t, func(p *Program, b *Builder) {
		start, end, catch := b.NewLabel(), b.NewLabel(), b.NewLabel()
		b.Mark(start)
		b.Emit(OpNull)
		b.Emit(OpThrow)
		b.Mark(end)
		b.Mark(catch)
		b.Emit(OpReturn)
		b.Handler(start, end, catch, 0, 0)
	})

	output := p.Disassemble()
	if !strings.Contains(output, "[0000, 0002) -> 0002") {
		t.Errorf("missing handler line:\n%s", output)
	}
}

func TestDisassembleScopeAndBigInt(t *testing.T) {
	p := NewProgram()
	p.AddScope([]string{"x", "y", "z"}, []BindingKind{BindVar, BindConst, BindLet})
	p.AddBigInt("123")
	out := p.Disassemble()
	if !strings.Contains(out, "{x, const y, let z}") {
		t.Errorf("scope not described:\n%s", out)
	}
	if !strings.Contains(out, "123n") {
		t.Errorf("bigint not described:\n%s", out)
	}
}
