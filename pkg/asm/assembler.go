package asm

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/chazu/kestrel/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Assembler: text to bytecode programs
// ---------------------------------------------------------------------------
//
// A source file is a sequence of line-oriented statements:
//
//	; comment
//	.scope NAME binding[:let|:const] ...   declare a named scope
//	.func NAME PARAMS [strict] [generator|async|arrow]
//	  .locals N                            local slots, parameters included
//	  .scope NAME                          function-level environment
//	  .handler START END TARGET STACK ENV  exception handler over labels
//	  LABEL:
//	  OPCODE [operands]
//	.end
//	.entry NAME                            top-level function (default main)
//
// Operands follow the opcode's layout: CONST takes a number, "string" or
// 123n literal; name operands (GET_NAME, GET_PROP, ...) take an identifier
// or a string; CLOSURE takes a function name; PUSH_ENV a scope name; jumps
// a label; GET_ENV/SET_ENV/INIT_ENV a depth and an index.

// Error is an assembly error at a source position.
type Error struct {
	Pos Position
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

type instr struct {
	op       bytecode.Opcode
	operands []Token
	pos      Position
}

type handlerDecl struct {
	start, end, target string
	stack, env         int
	pos                Position
}

type funcDecl struct {
	name     string
	params   int
	locals   int
	kind     bytecode.FunctionKind
	strict   bool
	scope    string
	scopePos Position
	body     []any // instr or a label name (string)
	handlers []handlerDecl
	pos      Position
}

type scopeDecl struct {
	name  string
	names []string
	kinds []bytecode.BindingKind
}

type parser struct {
	tokens []Token
	pos    int
	scopes []*scopeDecl
	funcs  []*funcDecl
	entry  Token
}

// Assemble parses source and returns a validated program.
func Assemble(source string) (*bytecode.Program, error) {
	p := &parser{tokens: Tokenize(source)}
	if last := p.tokens[len(p.tokens)-1]; last.Type == TokenError {
		return nil, &Error{Pos: last.Pos, Msg: last.Literal}
	}
	if err := p.parse(); err != nil {
		return nil, err
	}
	return p.link()
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

func (p *parser) peek() Token { return p.tokens[p.pos] }

func (p *parser) next() Token {
	t := p.tokens[p.pos]
	if t.Type != TokenEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(pos Position, format string, args ...any) error {
	return &Error{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// lineTokens consumes the rest of the current line.
func (p *parser) lineTokens() []Token {
	var toks []Token
	for {
		t := p.peek()
		if t.Type == TokenEOF {
			return toks
		}
		p.next()
		if t.Type == TokenNewline {
			return toks
		}
		toks = append(toks, t)
	}
}

func (p *parser) parse() error {
	var fn *funcDecl
	for p.peek().Type != TokenEOF {
		first := p.peek()
		if first.Type == TokenNewline {
			p.next()
			continue
		}
		line := p.lineTokens()

		switch {
		case first.Type == TokenDirective:
			var err error
			if fn, err = p.directive(fn, line); err != nil {
				return err
			}

		case fn == nil:
			return p.errorf(first.Pos, "%s outside of .func", first)

		case first.Type == TokenIdentifier && len(line) >= 2 && line[1].Type == TokenColon:
			fn.body = append(fn.body, first.Literal)
			if len(line) > 2 {
				return p.errorf(line[2].Pos, "unexpected %s after label", line[2])
			}

		case first.Type == TokenIdentifier:
			op, ok := bytecode.LookupOpcode(strings.ToUpper(first.Literal))
			if !ok {
				return p.errorf(first.Pos, "unknown opcode %s", first.Literal)
			}
			want := 0
			switch bytecode.GetOpcodeInfo(op).Operand {
			case bytecode.OperandNone:
			case bytecode.OperandEnv:
				want = 2
			default:
				want = 1
			}
			if len(line)-1 != want {
				return p.errorf(first.Pos, "%s takes %d operand(s), got %d", op, want, len(line)-1)
			}
			fn.body = append(fn.body, instr{op: op, operands: line[1:], pos: first.Pos})

		default:
			return p.errorf(first.Pos, "unexpected %s", first)
		}
	}
	if fn != nil {
		return p.errorf(fn.pos, "function %s is missing .end", fn.name)
	}
	return nil
}

func (p *parser) directive(fn *funcDecl, line []Token) (*funcDecl, error) {
	d := line[0]
	args := line[1:]
	switch d.Literal {
	case "func":
		if fn != nil {
			return nil, p.errorf(d.Pos, "nested .func (missing .end for %s)", fn.name)
		}
		if len(args) < 2 || args[0].Type != TokenIdentifier || args[1].Type != TokenInteger {
			return nil, p.errorf(d.Pos, "usage: .func NAME PARAMS [flags]")
		}
		params, err := intOperand(args[1], 0, math.MaxUint16)
		if err != nil {
			return nil, err
		}
		for _, f := range p.funcs {
			if f.name == args[0].Literal {
				return nil, p.errorf(args[0].Pos, "function %s redefined", f.name)
			}
		}
		fn = &funcDecl{name: args[0].Literal, params: params, locals: params, pos: d.Pos}
		for _, flag := range args[2:] {
			switch flag.Literal {
			case "strict":
				fn.strict = true
			case "generator":
				fn.kind = bytecode.KindGenerator
			case "async":
				fn.kind = bytecode.KindAsync
			case "arrow":
				fn.kind = bytecode.KindArrow
			default:
				return nil, p.errorf(flag.Pos, "unknown function flag %s", flag.Literal)
			}
		}
		return fn, nil

	case "end":
		if fn == nil {
			return nil, p.errorf(d.Pos, ".end without .func")
		}
		p.funcs = append(p.funcs, fn)
		return nil, nil

	case "locals":
		if fn == nil || len(args) != 1 {
			return nil, p.errorf(d.Pos, "usage: .locals N inside .func")
		}
		n, err := intOperand(args[0], 0, math.MaxUint16)
		if err != nil {
			return nil, err
		}
		fn.locals = n
		return fn, nil

	case "handler":
		if fn == nil || len(args) != 5 {
			return nil, p.errorf(d.Pos, "usage: .handler START END TARGET STACK ENV inside .func")
		}
		stack, err := intOperand(args[3], 0, math.MaxUint16)
		if err != nil {
			return nil, err
		}
		env, err := intOperand(args[4], 0, math.MaxUint16)
		if err != nil {
			return nil, err
		}
		fn.handlers = append(fn.handlers, handlerDecl{
			start: args[0].Literal, end: args[1].Literal, target: args[2].Literal,
			stack: stack, env: env, pos: d.Pos,
		})
		return fn, nil

	case "scope":
		if fn != nil {
			if len(args) != 1 {
				return nil, p.errorf(d.Pos, "usage: .scope NAME inside .func")
			}
			fn.scope, fn.scopePos = args[0].Literal, args[0].Pos
			return fn, nil
		}
		return nil, p.scopeDirective(d, args)

	case "entry":
		if fn != nil || len(args) != 1 {
			return nil, p.errorf(d.Pos, "usage: .entry NAME at top level")
		}
		p.entry = args[0]
		return nil, nil
	}
	return nil, p.errorf(d.Pos, "unknown directive .%s", d.Literal)
}

// scopeDirective parses: .scope NAME a b:let c:const
func (p *parser) scopeDirective(d Token, args []Token) error {
	if len(args) == 0 || args[0].Type != TokenIdentifier {
		return p.errorf(d.Pos, "usage: .scope NAME bindings...")
	}
	for _, s := range p.scopes {
		if s.name == args[0].Literal {
			return p.errorf(args[0].Pos, "scope %s redefined", s.name)
		}
	}
	s := &scopeDecl{name: args[0].Literal}
	for i := 1; i < len(args); i++ {
		name := args[i]
		if name.Type != TokenIdentifier && name.Type != TokenString {
			return p.errorf(name.Pos, "expected binding name, got %s", name)
		}
		kind := bytecode.BindVar
		if i+1 < len(args) && args[i+1].Type == TokenColon {
			if i+2 >= len(args) {
				return p.errorf(args[i+1].Pos, "missing binding kind")
			}
			switch args[i+2].Literal {
			case "var":
			case "let":
				kind = bytecode.BindLet
			case "const":
				kind = bytecode.BindConst
			default:
				return p.errorf(args[i+2].Pos, "unknown binding kind %s", args[i+2].Literal)
			}
			i += 2
		}
		s.names = append(s.names, name.Literal)
		s.kinds = append(s.kinds, kind)
	}
	p.scopes = append(p.scopes, s)
	return nil
}

// ---------------------------------------------------------------------------
// Linking
// ---------------------------------------------------------------------------

func (p *parser) link() (*bytecode.Program, error) {
	prog := bytecode.NewProgram()
	scopes := make(map[string]uint16, len(p.scopes))
	for _, s := range p.scopes {
		scopes[s.name] = prog.AddScope(s.names, s.kinds)
	}
	funcs := make(map[string]uint16, len(p.funcs))
	for _, f := range p.funcs {
		funcs[f.name] = prog.AddFunction(&bytecode.Function{Name: f.name, Scope: -1})
	}
	if len(p.funcs) == 0 {
		return nil, p.errorf(Position{Line: 1, Column: 1}, "program has no functions")
	}

	for _, f := range p.funcs {
		fn, err := p.assemble(prog, f, funcs, scopes)
		if err != nil {
			return nil, err
		}
		prog.Constants[funcs[f.name]].Function = fn
	}

	switch {
	case p.entry.Literal != "":
		idx, ok := funcs[p.entry.Literal]
		if !ok {
			return nil, p.errorf(p.entry.Pos, "unknown entry function %s", p.entry.Literal)
		}
		prog.Entry = idx
	default:
		prog.Entry = funcs[p.funcs[0].name]
		if idx, ok := funcs["main"]; ok {
			prog.Entry = idx
		}
	}

	if err := prog.Validate(); err != nil {
		return nil, err
	}
	return prog, nil
}

func (p *parser) assemble(prog *bytecode.Program, f *funcDecl, funcs, scopes map[string]uint16) (*bytecode.Function, error) {
	b := bytecode.NewBuilder(f.name, f.params).SetKind(f.kind).SetStrict(f.strict).SetLocals(f.locals)
	if f.scope != "" {
		idx, ok := scopes[f.scope]
		if !ok {
			return nil, p.errorf(f.scopePos, "unknown scope %s", f.scope)
		}
		b.SetScope(idx)
	}

	labels := make(map[string]bytecode.Label)
	marked := make(map[string]bool)
	label := func(name string) bytecode.Label {
		l, ok := labels[name]
		if !ok {
			l = b.NewLabel()
			labels[name] = l
		}
		return l
	}

	for _, item := range f.body {
		switch it := item.(type) {
		case string:
			if marked[it] {
				return nil, p.errorf(f.pos, "%s: label %s defined twice", f.name, it)
			}
			marked[it] = true
			b.Mark(label(it))
		case instr:
			if err := p.emit(prog, b, it, label, funcs, scopes); err != nil {
				return nil, err
			}
		}
	}
	for _, h := range f.handlers {
		for _, name := range []string{h.start, h.end, h.target} {
			if !marked[name] {
				return nil, p.errorf(h.pos, "handler label %s is not defined", name)
			}
		}
		b.Handler(label(h.start), label(h.end), label(h.target), h.stack, h.env)
	}
	for name := range labels {
		if !marked[name] {
			return nil, p.errorf(f.pos, "%s: label %s is not defined", f.name, name)
		}
	}
	return b.Build()
}

func (p *parser) emit(prog *bytecode.Program, b *bytecode.Builder, in instr, label func(string) bytecode.Label, funcs, scopes map[string]uint16) error {
	op := in.op
	switch bytecode.GetOpcodeInfo(op).Operand {
	case bytecode.OperandNone:
		b.Emit(op)

	case bytecode.OperandU8:
		n, err := intOperand(in.operands[0], 0, math.MaxUint8)
		if err != nil {
			return err
		}
		b.EmitU8(op, uint8(n))

	case bytecode.OperandI8:
		n, err := intOperand(in.operands[0], math.MinInt8, math.MaxInt8)
		if err != nil {
			return err
		}
		b.EmitI8(op, int8(n))

	case bytecode.OperandEnv:
		depth, err := intOperand(in.operands[0], 0, math.MaxUint8)
		if err != nil {
			return err
		}
		index, err := intOperand(in.operands[1], 0, math.MaxUint16)
		if err != nil {
			return err
		}
		b.EmitEnv(op, uint8(depth), uint16(index))

	case bytecode.OperandU32:
		t := in.operands[0]
		if t.Type != TokenIdentifier {
			return p.errorf(t.Pos, "%s expects a label, got %s", op, t)
		}
		b.EmitJump(op, label(t.Literal))

	case bytecode.OperandU16:
		idx, err := p.u16Operand(prog, op, in.operands[0], funcs, scopes)
		if err != nil {
			return err
		}
		b.EmitU16(op, idx)
	}
	return nil
}

// u16Operand resolves a 16-bit operand according to the opcode.
func (p *parser) u16Operand(prog *bytecode.Program, op bytecode.Opcode, t Token, funcs, scopes map[string]uint16) (uint16, error) {
	switch op {
	case bytecode.OpGetLocal, bytecode.OpSetLocal, bytecode.OpNewArray:
		n, err := intOperand(t, 0, math.MaxUint16)
		return uint16(n), err

	case bytecode.OpConst:
		return constOperand(prog, t)

	case bytecode.OpClosure:
		idx, ok := funcs[t.Literal]
		if !ok || t.Type != TokenIdentifier {
			return 0, p.errorf(t.Pos, "unknown function %s", t.Literal)
		}
		return idx, nil

	case bytecode.OpPushEnv:
		idx, ok := scopes[t.Literal]
		if !ok || t.Type != TokenIdentifier {
			return 0, p.errorf(t.Pos, "unknown scope %s", t.Literal)
		}
		return idx, nil
	}

	// Name operands
	if t.Type != TokenIdentifier && t.Type != TokenString {
		return 0, p.errorf(t.Pos, "%s expects a name, got %s", op, t)
	}
	return prog.AddString(t.Literal), nil
}

// constOperand adds a literal to the constant pool.
func constOperand(prog *bytecode.Program, t Token) (uint16, error) {
	switch t.Type {
	case TokenString:
		return prog.AddString(t.Literal), nil
	case TokenBigInt:
		n, ok := new(big.Int).SetString(t.Literal, 10)
		if !ok {
			return 0, &Error{Pos: t.Pos, Msg: fmt.Sprintf("invalid BigInt literal %sn", t.Literal)}
		}
		return prog.AddBigInt(n.String()), nil
	case TokenInteger:
		n, err := strconv.ParseInt(t.Literal, 0, 64)
		if err != nil {
			return 0, &Error{Pos: t.Pos, Msg: fmt.Sprintf("invalid integer %s", t.Literal)}
		}
		return prog.AddNumber(float64(n)), nil
	case TokenFloat:
		f, err := strconv.ParseFloat(t.Literal, 64)
		if err != nil {
			return 0, &Error{Pos: t.Pos, Msg: fmt.Sprintf("invalid number %s", t.Literal)}
		}
		return prog.AddNumber(f), nil
	case TokenIdentifier:
		switch t.Literal {
		case "NaN":
			return prog.AddNumber(math.NaN()), nil
		case "Infinity":
			return prog.AddNumber(math.Inf(1)), nil
		case "-Infinity":
			return prog.AddNumber(math.Inf(-1)), nil
		}
	}
	return 0, &Error{Pos: t.Pos, Msg: fmt.Sprintf("CONST expects a literal, got %s", t)}
}

func intOperand(t Token, lo, hi int) (int, error) {
	if t.Type != TokenInteger {
		return 0, &Error{Pos: t.Pos, Msg: fmt.Sprintf("expected integer, got %s", t)}
	}
	n, err := strconv.ParseInt(t.Literal, 0, 64)
	if err != nil || n < int64(lo) || n > int64(hi) {
		return 0, &Error{Pos: t.Pos, Msg: fmt.Sprintf("integer %s out of range [%d, %d]", t.Literal, lo, hi)}
	}
	return int(n), nil
}
