package asm

import "testing"

func TestLexerBasicTokens(t *testing.T) {
	input := ".func main 0\nloop: JUMP loop ; trailing comment\n"
	expected := []struct {
		typ TokenType
		lit string
	}{
		{TokenDirective, "func"},
		{TokenIdentifier, "main"},
		{TokenInteger, "0"},
		{TokenNewline, "\n"},
		{TokenIdentifier, "loop"},
		{TokenColon, ":"},
		{TokenIdentifier, "JUMP"},
		{TokenIdentifier, "loop"},
		{TokenNewline, "\n"},
		{TokenEOF, ""},
	}

	l := NewLexer(input)
	for i, exp := range expected {
		tok := l.NextToken()
		if tok.Type != exp.typ {
			t.Errorf("token[%d] type = %v, want %v", i, tok.Type, exp.typ)
		}
		if tok.Literal != exp.lit {
			t.Errorf("token[%d] literal = %q, want %q", i, tok.Literal, exp.lit)
		}
	}
}

func TestLexerNumbers(t *testing.T) {
	tests := []struct {
		input string
		typ   TokenType
		want  string
	}{
		{"42", TokenInteger, "42"},
		{"-7", TokenInteger, "-7"},
		{"0x1F", TokenInteger, "0x1F"},
		{"0b101", TokenInteger, "0b101"},
		{"3.25", TokenFloat, "3.25"},
		{"-0.5", TokenFloat, "-0.5"},
		{"1e21", TokenFloat, "1e21"},
		{"2.5E-3", TokenFloat, "2.5E-3"},
		{"123n", TokenBigInt, "123"},
		{"-9007199254740993n", TokenBigInt, "-9007199254740993"},
	}

	for _, tc := range tests {
		tok := NewLexer(tc.input).NextToken()
		if tok.Type != tc.typ {
			t.Errorf("Lexer(%q): type = %v, want %v", tc.input, tok.Type, tc.typ)
		}
		if tok.Literal != tc.want {
			t.Errorf("Lexer(%q): literal = %q, want %q", tc.input, tok.Literal, tc.want)
		}
	}
}

func TestLexerStrings(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"hello"`, "hello"},
		{`""`, ""},
		{`"a\nb"`, "a\nb"},
		{`"say \"hi\""`, `say "hi"`},
		{`"été"`, "été"},
	}

	for _, tc := range tests {
		tok := NewLexer(tc.input).NextToken()
		if tok.Type != TokenString {
			t.Errorf("Lexer(%q): type = %v, want STRING", tc.input, tok.Type)
			continue
		}
		if tok.Literal != tc.want {
			t.Errorf("Lexer(%q): literal = %q, want %q", tc.input, tok.Literal, tc.want)
		}
	}
}

func TestLexerErrors(t *testing.T) {
	for _, input := range []string{`"unterminated`, "\"line\nbreak\"", "@"} {
		tokens := Tokenize(input)
		last := tokens[len(tokens)-1]
		if last.Type != TokenError {
			t.Errorf("Tokenize(%q): last token = %v, want ERROR", input, last)
		}
	}
}

func TestLexerPositions(t *testing.T) {
	tokens := Tokenize("ADD\n  SUB")
	if len(tokens) != 4 {
		t.Fatalf("got %d tokens, want 4: %v", len(tokens), tokens)
	}
	sub := tokens[2]
	if sub.Pos.Line != 2 || sub.Pos.Column != 3 {
		t.Errorf("SUB position = %s, want 2:3", sub.Pos)
	}
}

func TestLexerSpecialIdentifiers(t *testing.T) {
	for _, input := range []string{"NaN", "Infinity", "-Infinity", "$tmp", "loop_end"} {
		tok := NewLexer(input).NextToken()
		if tok.Type != TokenIdentifier || tok.Literal != input {
			t.Errorf("Lexer(%q) = %v, want IDENTIFIER(%q)", input, tok, input)
		}
	}
}
