package lexer

import "testing"

func kinds(toks []Token) []Kind {
	out := make([]Kind, len(toks))
	for i, t := range toks {
		out[i] = t.Kind
	}
	return out
}

func TestLexInstructionLine(t *testing.T) {
	toks, err := Lex("start: mov r0, #10")
	if err != nil {
		t.Fatalf("lex: %v", err)
	}
	want := []Kind{Label, Instruction, Register, Immediate}
	got := kinds(toks)
	if len(got) != len(want) {
		t.Fatalf("got %d tokens %+v, want %d", len(got), toks, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d kind = %v, want %v", i, got[i], want[i])
		}
	}
	if toks[0].Lexeme != "start" {
		t.Errorf("label lexeme = %q, want start", toks[0].Lexeme)
	}
	if toks[1].Lexeme != "MOV" {
		t.Errorf("instruction lexeme = %q, want MOV", toks[1].Lexeme)
	}
}

func TestLexDirectivesAndStrings(t *testing.T) {
	toks, err := Lex(`.name "Imp"`)
	if err != nil {
		t.Fatalf("lex: %v", err)
	}
	if len(toks) != 2 {
		t.Fatalf("got %d tokens, want 2: %+v", len(toks), toks)
	}
	if toks[0].Kind != Directive || toks[0].Lexeme != ".name" {
		t.Errorf("directive token = %+v", toks[0])
	}
	if toks[1].Kind != String || toks[1].Lexeme != "Imp" {
		t.Errorf("string token = %+v", toks[1])
	}
}

func TestLexBareDirectives(t *testing.T) {
	toks, err := Lex("db 1")
	if err != nil {
		t.Fatalf("lex: %v", err)
	}
	if toks[0].Kind != Directive || toks[0].Lexeme != "db" {
		t.Errorf("bare directive = %+v", toks[0])
	}
	if toks[1].Kind != Immediate || toks[1].Lexeme != "1" {
		t.Errorf("operand = %+v", toks[1])
	}
}

func TestLexAddressForms(t *testing.T) {
	toks, err := Lex("jmp $1F")
	if err != nil {
		t.Fatalf("lex: %v", err)
	}
	if toks[1].Kind != Address || toks[1].Lexeme != "$1F" {
		t.Errorf("direct address = %+v", toks[1])
	}

	toks, err = Lex("mov r0, [r1]")
	if err != nil {
		t.Fatalf("lex: %v", err)
	}
	if toks[2].Kind != Address || toks[2].Lexeme != "[r1]" {
		t.Errorf("indirect address = %+v", toks[2])
	}

	toks, err = Lex("jmp @loop")
	if err != nil {
		t.Fatalf("lex: %v", err)
	}
	if toks[1].Kind != Address || toks[1].Lexeme != "@loop" {
		t.Errorf("indexed address = %+v", toks[1])
	}
}

func TestLexSymbolOperand(t *testing.T) {
	toks, err := Lex("jnz loop")
	if err != nil {
		t.Fatalf("lex: %v", err)
	}
	if toks[1].Kind != Symbol || toks[1].Lexeme != "loop" {
		t.Errorf("symbol operand = %+v", toks[1])
	}
}

func TestLexCommentStripped(t *testing.T) {
	toks, err := Lex("nop ; this is a comment with ; inside")
	if err != nil {
		t.Fatalf("lex: %v", err)
	}
	if len(toks) != 1 || toks[0].Kind != Instruction {
		t.Fatalf("got %+v, want single NOP instruction", toks)
	}
}

func TestLexCommentInsideStringNotStripped(t *testing.T) {
	toks, err := Lex(`.strategy "rush ; no comment"`)
	if err != nil {
		t.Fatalf("lex: %v", err)
	}
	if len(toks) != 2 || toks[1].Lexeme != "rush ; no comment" {
		t.Fatalf("got %+v", toks)
	}
}

func TestLexNegativeImmediate(t *testing.T) {
	toks, err := Lex("mov r0, #-5")
	if err != nil {
		t.Fatalf("lex: %v", err)
	}
	if toks[2].Kind != Immediate || toks[2].Lexeme != "#-5" {
		t.Errorf("negative immediate = %+v", toks[2])
	}
}

func TestLexHexImmediate(t *testing.T) {
	toks, err := Lex("mov r0, #0xFF")
	if err != nil {
		t.Fatalf("lex: %v", err)
	}
	if toks[2].Lexeme != "#0xFF" {
		t.Errorf("hex immediate = %+v", toks[2])
	}
}

func TestLexInvalidOperandReportsLine(t *testing.T) {
	_, err := Lex("mov r0, #10\nmov r1, %bad")
	if err == nil {
		t.Fatal("expected error")
	}
	lexErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("error type = %T, want *lexer.Error", err)
	}
	if lexErr.Line != 2 {
		t.Errorf("error line = %d, want 2", lexErr.Line)
	}
}

func TestLexMultipleLabelsAndBlankLines(t *testing.T) {
	src := "start:\n\nloop: nop\n"
	toks, err := Lex(src)
	if err != nil {
		t.Fatalf("lex: %v", err)
	}
	want := []Kind{Label, Label, Instruction}
	got := kinds(toks)
	if len(got) != len(want) {
		t.Fatalf("got %+v, want kinds %v", toks, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %v, want %v", i, got[i], want[i])
		}
	}
}
