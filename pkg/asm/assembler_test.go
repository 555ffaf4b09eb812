package asm

import (
	"errors"
	"strings"
	"testing"

	"github.com/chazu/kestrel/pkg/bytecode"
)

func mustAssemble(t *testing.T, src string) *bytecode.Program {
	t.Helper()
	p, err := Assemble(src)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	return p
}

// ---------------------------------------------------------------------------
// Programs
// ---------------------------------------------------------------------------

func TestAssembleOperandKinds(t *testing.T) {
	p := mustAssemble(t, `
.scope block x:let y:const z
.func helper 1 strict
  GET_LOCAL 0
  RETURN
.end

.func main 0
  .locals 1
  CONST 1.5
  CONST "text"
  CONST 12345678901234567890n
  CONST NaN
  INT8 -3
  NEW_ARRAY 5
  SET_LOCAL 0
  POP
  PUSH_ENV block
  GET_ENV 0 2
  POP
  POP_ENV
  CLOSURE helper
  UNDEFINED
  GET_NAME print
  GET_PROP "length"
  POP
  CALL 0
  RETURN
.end
`)

	main := p.EntryFunction()
	if main == nil || main.Name != "main" {
		t.Fatalf("entry = %v, want main", main)
	}
	if main.NumLocals != 1 {
		t.Errorf("main locals = %d, want 1", main.NumLocals)
	}

	out := p.Disassemble()
	for _, want := range []string{
		"; 1.5",
		`"text"`,
		"12345678901234567890n",
		"INT8 -3",
		"NEW_ARRAY 5",
		"PUSH_ENV",
		"{let x, const y, z}",
		"GET_ENV 0 2",
		"CLOSURE",
		"helper",
		`GET_NAME`,
		`"print"`,
		"[STRICT]",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}
}

func TestAssembleEntrySelection(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"first function", ".func a 0\n.end\n.func b 0\n.end\n", "a"},
		{"main wins", ".func a 0\n.end\n.func main 0\n.end\n", "main"},
		{"explicit entry", ".func main 0\n.end\n.func start 0\n.end\n.entry start\n", "start"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mustAssemble(t, tt.src)
			if got := p.EntryFunction().Name; got != tt.want {
				t.Errorf("entry = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAssembleJumpsAndHandlers(t *testing.T) {
	p := mustAssemble(t, `
.func main 0
  .handler try end catch 0 0
try:
  CONST "boom"
  THROW
end:
  JUMP done
catch:
  POP
done:
  UNDEFINED
  RETURN
.end
`)
	fn := p.EntryFunction()
	if len(fn.Handlers) != 1 {
		t.Fatalf("handlers = %d, want 1", len(fn.Handlers))
	}
	h := fn.Handlers[0]
	if h.Start != 0 || h.End <= h.Start || h.Target < h.End {
		t.Errorf("handler = %+v", h)
	}
	if fn.MaxStack < 1 {
		t.Errorf("MaxStack = %d, want >= 1", fn.MaxStack)
	}
}

func TestAssembleFunctionKinds(t *testing.T) {
	p := mustAssemble(t, `
.func gen 0 generator
  INT8 1
  YIELD
  RETURN
.end
.func co 0 async
  UNDEFINED
  AWAIT
  RETURN
.end
.func arrow 0 arrow
  THIS
  RETURN
.end
.func main 0
.end
`)
	want := map[string]bytecode.FunctionKind{
		"gen":   bytecode.KindGenerator,
		"co":    bytecode.KindAsync,
		"arrow": bytecode.KindArrow,
		"main":  bytecode.KindNormal,
	}
	for _, c := range p.Constants {
		if c.Kind != bytecode.ConstFunction {
			continue
		}
		if k := want[c.Function.Name]; c.Function.Kind != k {
			t.Errorf("%s kind = %s, want %s", c.Function.Name, c.Function.Kind, k)
		}
	}
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

func TestAssembleErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unknown opcode", ".func main 0\n  FROB\n.end\n", "unknown opcode FROB"},
		{"operand count", ".func main 0\n  ADD 1\n.end\n", "takes 0 operand(s)"},
		{"missing end", ".func main 0\n  ADD\n", "missing .end"},
		{"outside func", "ADD\n", "outside of .func"},
		{"undefined label", ".func main 0\n  JUMP nowhere\n.end\n", "label nowhere is not defined"},
		{"unknown function", ".func main 0\n  CLOSURE ghost\n.end\n", "unknown function ghost"},
		{"unknown scope", ".func main 0\n  PUSH_ENV ghost\n  POP_ENV\n.end\n", "unknown scope ghost"},
		{"bad const", ".func main 0\n  CONST main\n.end\n", "CONST expects a literal"},
		{"int8 range", ".func main 0\n  INT8 300\n.end\n", "out of range"},
		{"duplicate function", ".func a 0\n.end\n.func a 0\n.end\n", "redefined"},
		{"bad flag", ".func a 0 lazy\n.end\n", "unknown function flag"},
		{"bad binding kind", ".scope s x:mutable\n.func a 0\n.end\n", "unknown binding kind"},
		{"empty", "; nothing\n", "no functions"},
		{"lexer error", ".func a 0\n  CONST \"open\n.end\n", "unterminated string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Assemble(tt.src)
			if err == nil {
				t.Fatalf("Assemble succeeded, want error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestAssembleErrorPosition(t *testing.T) {
	_, err := Assemble(".func main 0\n  ADD\n  BOGUS\n.end\n")
	var asmErr *Error
	if !errors.As(err, &asmErr) {
		t.Fatalf("error %v is not *Error", err)
	}
	if asmErr.Pos.Line != 3 || asmErr.Pos.Column != 3 {
		t.Errorf("position = %s, want 3:3", asmErr.Pos)
	}
}

func TestAssembleRoundTripEncoding(t *testing.T) {
	p := mustAssemble(t, ".func main 0\n  CONST 42\n  RETURN\n.end\n")
	data, err := bytecode.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	q, err := bytecode.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if q.Disassemble() != p.Disassemble() {
		t.Errorf("decoded program differs:\n%s\nvs\n%s", q.Disassemble(), p.Disassemble())
	}
}
