// Package assemble implements the two-pass assembler (spec.md §4.3):
// pass 1 walks the parsed statements building a symbol table of
// label offsets, pass 2 emits the instruction stream and resolves
// symbolic operands into relocations.
package assemble

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rcornwell/corewar/lexer"
	"github.com/rcornwell/corewar/opcode"
	"github.com/rcornwell/corewar/register"
)

// arity gives the number of real operands each opcode consumes; the
// instruction word is always the fixed 6-byte encoding regardless.
var arity = map[opcode.Op]int{
	opcode.NOP: 0, opcode.RET: 0, opcode.HLT: 0, opcode.DAT: 0,
	opcode.NOT: 1, opcode.JMP: 1, opcode.JZ: 1, opcode.JNZ: 1,
	opcode.JL: 1, opcode.JG: 1, opcode.CALL: 1, opcode.SPL: 1,
	opcode.MOV: 2, opcode.ADD: 2, opcode.SUB: 2, opcode.MUL: 2,
	opcode.DIV: 2, opcode.AND: 2, opcode.OR: 2, opcode.XOR: 2,
	opcode.CMP: 2,
}

// symbol is one entry of the assembler's symbol table: either a code
// label (its value needs the load base added when used as an
// address) or an `equ` constant (a plain value, never relocated).
type symbol struct {
	value   uint32
	isConst bool
}

// statement is one source line reduced to its labels plus the single
// directive or instruction that follows them.
type statement struct {
	line          int
	labels        []string
	directiveName string
	symbolDef     string // set for "NAME equ VALUE" lines
	mnemonic      string
	op            opcode.Op
	pseudo        string // "dec" or "inc": expands to SUB/ADD #1
	operands      []lexer.Token
}

// Assemble runs both passes over source and returns the resulting
// Image, or the first error encountered.
func Assemble(source string) (*Image, error) {
	tokens, err := lexer.Lex(source)
	if err != nil {
		return nil, err
	}
	stmts, err := parseStatements(tokens)
	if err != nil {
		return nil, err
	}

	img := &Image{Symbols: map[string]uint32{}}
	symbols := map[string]symbol{}

	if err := pass1(stmts, symbols, img); err != nil {
		return nil, err
	}
	if err := pass2(stmts, symbols, img); err != nil {
		return nil, err
	}
	for name, s := range symbols {
		if !s.isConst {
			img.Symbols[name] = s.value
		}
	}
	return img, nil
}

func parseStatements(tokens []lexer.Token) ([]statement, error) {
	var stmts []statement
	i := 0
	for i < len(tokens) {
		line := tokens[i].Line
		var st statement
		st.line = line
		for i < len(tokens) && tokens[i].Line == line && tokens[i].Kind == lexer.Label {
			st.labels = append(st.labels, tokens[i].Lexeme)
			i++
		}
		if i >= len(tokens) || tokens[i].Line != line {
			if len(st.labels) > 0 {
				stmts = append(stmts, st)
			}
			continue
		}
		tok := tokens[i]
		switch {
		case tok.Kind == lexer.Symbol && i+1 < len(tokens) &&
			tokens[i+1].Line == line && tokens[i+1].Kind == lexer.Directive &&
			strings.EqualFold(tokens[i+1].Lexeme, "equ"):
			st.symbolDef = tok.Lexeme
			i += 2
		case tok.Kind == lexer.Directive:
			st.directiveName = strings.ToLower(strings.TrimPrefix(tok.Lexeme, "."))
			i++
		case tok.Kind == lexer.Symbol && (strings.EqualFold(tok.Lexeme, "dec") || strings.EqualFold(tok.Lexeme, "inc")):
			st.pseudo = strings.ToLower(tok.Lexeme)
			i++
		case tok.Kind == lexer.Instruction:
			st.mnemonic = tok.Lexeme
			op, ok := opcode.Lookup(tok.Lexeme)
			if !ok {
				return nil, &Error{Line: line, Err: fmt.Errorf("%w: %s", ErrUnknownOpcode, tok.Lexeme)}
			}
			st.op = op
			i++
		default:
			return nil, &Error{Line: line, Err: fmt.Errorf("%w: unexpected token %q", ErrInvalidOperand, tok.Lexeme)}
		}
		for i < len(tokens) && tokens[i].Line == line {
			st.operands = append(st.operands, tokens[i])
			i++
		}
		stmts = append(stmts, st)
	}
	return stmts, nil
}

// Error wraps an assembler failure with its originating source line.
type Error struct {
	Line int
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

func pass1(stmts []statement, symbols map[string]symbol, img *Image) error {
	offset := uint32(0)
	for idx := range stmts {
		st := &stmts[idx]
		for _, label := range st.labels {
			if _, dup := symbols[label]; dup {
				return &Error{Line: st.line, Err: fmt.Errorf("%w: %s", ErrDuplicateLabel, label)}
			}
			symbols[label] = symbol{value: offset}
		}
		switch {
		case st.symbolDef != "":
			if _, dup := symbols[st.symbolDef]; dup {
				return &Error{Line: st.line, Err: fmt.Errorf("%w: %s", ErrDuplicateLabel, st.symbolDef)}
			}
			v, err := parseInt(operandText(st.operands, 0))
			if err != nil {
				return &Error{Line: st.line, Err: err}
			}
			symbols[st.symbolDef] = symbol{value: uint32(v), isConst: true}
		case st.directiveName != "":
			adv, err := directiveAdvance(st, offset)
			if err != nil {
				return err
			}
			offset = adv
		case st.mnemonic != "", st.pseudo != "":
			offset += opcode.InstructionSize
		}
	}
	img.Size = offset
	return nil
}

// directiveAdvance returns the program offset after applying a pass-1
// directive. Metadata directives (.name/.author/.version/.strategy)
// and section markers (.code/.data/.const) never advance.
func directiveAdvance(st *statement, offset uint32) (uint32, error) {
	switch st.directiveName {
	case "name", "author", "version", "strategy", "code", "data", "const":
		return offset, nil
	case "org":
		v, err := parseInt(operandText(st.operands, 0))
		if err != nil {
			return 0, &Error{Line: st.line, Err: err}
		}
		return uint32(v), nil
	case "align":
		n, err := parseInt(operandText(st.operands, 0))
		if err != nil || n <= 0 {
			return 0, &Error{Line: st.line, Err: fmt.Errorf("%w: .align requires a positive count", ErrInvalidOperand)}
		}
		rem := offset % uint32(n)
		if rem == 0 {
			return offset, nil
		}
		return offset + uint32(n) - rem, nil
	case "space":
		n, err := parseInt(operandText(st.operands, 0))
		if err != nil || n < 0 {
			return 0, &Error{Line: st.line, Err: fmt.Errorf("%w: .space requires a non-negative count", ErrInvalidOperand)}
		}
		return offset + uint32(n), nil
	case "db":
		return offset + uint32(dbLength(st.operands)), nil
	case "dw":
		return offset + uint32(len(st.operands))*opcode.WordSize, nil
	default:
		return 0, &Error{Line: st.line, Err: fmt.Errorf("%w: unknown directive .%s", ErrInvalidOperand, st.directiveName)}
	}
}

func dbLength(operands []lexer.Token) int {
	n := 0
	for _, tok := range operands {
		if tok.Kind == lexer.String {
			n += len(tok.Lexeme)
		} else {
			n++
		}
	}
	return n
}

func operandText(operands []lexer.Token, idx int) string {
	if idx >= len(operands) {
		return ""
	}
	return operands[idx].Lexeme
}

func pass2(stmts []statement, symbols map[string]symbol, img *Image) error {
	code := make([]byte, img.Size)
	var relocs []Relocation
	offset := uint32(0)
	for idx := range stmts {
		st := &stmts[idx]
		switch {
		case st.symbolDef != "":
			// Already resolved in pass 1; nothing to emit.
		case st.directiveName != "":
			next, err := emitDirective(st, offset, code, symbols, img)
			if err != nil {
				return err
			}
			offset = next
		case st.mnemonic != "":
			relocsHere, err := emitInstruction(st, offset, code, symbols)
			if err != nil {
				return err
			}
			relocs = append(relocs, relocsHere...)
			offset += opcode.InstructionSize
		case st.pseudo != "":
			relocsHere, err := emitPseudo(st, offset, code, symbols)
			if err != nil {
				return err
			}
			relocs = append(relocs, relocsHere...)
			offset += opcode.InstructionSize
		}
	}
	img.Code = code
	img.Relocations = relocs
	return nil
}

func emitDirective(st *statement, offset uint32, code []byte, symbols map[string]symbol, img *Image) (uint32, error) {
	switch st.directiveName {
	case "name":
		img.Name = operandText(st.operands, 0)
		return offset, nil
	case "author":
		img.Author = operandText(st.operands, 0)
		return offset, nil
	case "version":
		img.Version = operandText(st.operands, 0)
		return offset, nil
	case "strategy":
		img.Strategy = operandText(st.operands, 0)
		return offset, nil
	case "code", "data", "const":
		return offset, nil
	case "org":
		v, _ := parseInt(operandText(st.operands, 0))
		return uint32(v), nil
	case "align":
		n, _ := parseInt(operandText(st.operands, 0))
		rem := offset % uint32(n)
		if rem == 0 {
			return offset, nil
		}
		return offset + uint32(n) - rem, nil
	case "space":
		n, _ := parseInt(operandText(st.operands, 0))
		return offset + uint32(n), nil
	case "db":
		pos := offset
		for _, tok := range st.operands {
			if tok.Kind == lexer.String {
				for _, b := range []byte(tok.Lexeme) {
					code[pos] = b
					pos++
				}
				continue
			}
			v, err := resolveValue(tok, symbols)
			if err != nil {
				return 0, &Error{Line: st.line, Err: err}
			}
			code[pos] = byte(v)
			pos++
		}
		return pos, nil
	case "dw":
		pos := offset
		for _, tok := range st.operands {
			v, err := resolveValue(tok, symbols)
			if err != nil {
				return 0, &Error{Line: st.line, Err: err}
			}
			opcode.PutWord(code[pos:pos+opcode.WordSize], uint16(v))
			pos += opcode.WordSize
		}
		return pos, nil
	default:
		return 0, &Error{Line: st.line, Err: fmt.Errorf("%w: unknown directive .%s", ErrInvalidOperand, st.directiveName)}
	}
}

// operandSlot describes how one instruction operand resolved: its
// addressing mode (ignored for register operands), whether it names
// a register, the 16-bit word to store, and an optional relocation.
type operandSlot struct {
	mode    opcode.Mode
	isReg   bool
	word    uint16
	reloc   *RelocationKind
}

// emitPseudo expands a "dec"/"inc" pseudo-mnemonic into its single
// real SUB/ADD instruction against an implicit immediate 1, so it
// consumes no opcode value of its own.
func emitPseudo(st *statement, offset uint32, code []byte, symbols map[string]symbol) ([]Relocation, error) {
	if len(st.operands) != 1 {
		return nil, &Error{Line: st.line, Err: fmt.Errorf("%w: %s wants 1 operand, got %d", ErrInvalidOperand, st.pseudo, len(st.operands))}
	}
	real := statement{
		line:     st.line,
		mnemonic: strings.ToUpper(st.pseudo),
		operands: []lexer.Token{
			st.operands[0],
			{Kind: lexer.Immediate, Lexeme: "1", Line: st.line},
		},
	}
	if st.pseudo == "dec" {
		real.op = opcode.SUB
	} else {
		real.op = opcode.ADD
	}
	return emitInstruction(&real, offset, code, symbols)
}

func emitInstruction(st *statement, offset uint32, code []byte, symbols map[string]symbol) ([]Relocation, error) {
	want := arity[st.op]
	if len(st.operands) != want {
		return nil, &Error{Line: st.line, Err: fmt.Errorf("%w: %s wants %d operand(s), got %d", ErrInvalidOperand, st.mnemonic, want, len(st.operands))}
	}
	var slotA, slotB operandSlot
	var err error
	switch want {
	case 2:
		slotA, err = resolveOperand(st.operands[0], offset, symbols)
		if err != nil {
			return nil, &Error{Line: st.line, Err: err}
		}
		slotB, err = resolveOperand(st.operands[1], offset, symbols)
		if err != nil {
			return nil, &Error{Line: st.line, Err: err}
		}
	case 1:
		slotA, err = resolveOperand(st.operands[0], offset, symbols)
		if err != nil {
			return nil, &Error{Line: st.line, Err: err}
		}
	}
	header := opcode.Encode(st.op, slotA.mode, slotB.mode, slotA.isReg, slotB.isReg)
	code[offset] = header[0]
	code[offset+1] = header[1]
	opcode.PutWord(code[offset+2:offset+2+opcode.WordSize], slotA.word)
	opcode.PutWord(code[offset+2+opcode.WordSize:offset+2+2*opcode.WordSize], slotB.word)

	var relocs []Relocation
	if slotA.reloc != nil {
		relocs = append(relocs, Relocation{Offset: offset + 2, Kind: *slotA.reloc})
	}
	if slotB.reloc != nil {
		relocs = append(relocs, Relocation{Offset: offset + 2 + opcode.WordSize, Kind: *slotB.reloc})
	}
	return relocs, nil
}

func resolveOperand(tok lexer.Token, instrOffset uint32, symbols map[string]symbol) (operandSlot, error) {
	switch tok.Kind {
	case lexer.Register:
		idx, ok := register.Index(tok.Lexeme)
		if !ok {
			return operandSlot{}, fmt.Errorf("%w: %s", ErrUnknownRegister, tok.Lexeme)
		}
		return operandSlot{isReg: true, word: uint16(idx)}, nil

	case lexer.Immediate:
		v, sym, err := resolveOperandValue(tok.Lexeme, symbols)
		if err != nil {
			return operandSlot{}, err
		}
		slot := operandSlot{mode: opcode.Immediate, word: uint16(v)}
		if sym != nil && !sym.isConst {
			k := Absolute
			slot.reloc = &k
		}
		return slot, nil

	case lexer.Symbol:
		v, sym, err := resolveOperandValue(tok.Lexeme, symbols)
		if err != nil {
			return operandSlot{}, err
		}
		slot := operandSlot{mode: opcode.Direct, word: uint16(v)}
		if sym != nil && !sym.isConst {
			k := Absolute
			slot.reloc = &k
		}
		return slot, nil

	case lexer.Address:
		return resolveAddressOperand(tok.Lexeme, instrOffset, symbols)

	default:
		return operandSlot{}, fmt.Errorf("%w: %s", ErrInvalidOperand, tok.Lexeme)
	}
}

func resolveAddressOperand(lexeme string, instrOffset uint32, symbols map[string]symbol) (operandSlot, error) {
	switch {
	case strings.HasPrefix(lexeme, "$"):
		v, err := strconv.ParseInt(lexeme[1:], 16, 64)
		if err != nil {
			return operandSlot{}, fmt.Errorf("%w: %s", ErrInvalidOperand, lexeme)
		}
		return operandSlot{mode: opcode.Direct, word: uint16(v)}, nil

	case strings.HasPrefix(lexeme, "["):
		inner := strings.TrimSuffix(strings.TrimPrefix(lexeme, "["), "]")
		v, sym, err := resolveOperandValue(inner, symbols)
		if err != nil {
			return operandSlot{}, err
		}
		slot := operandSlot{mode: opcode.Indirect, word: uint16(v)}
		if sym != nil && !sym.isConst {
			k := Absolute
			slot.reloc = &k
		}
		return slot, nil

	case strings.HasPrefix(lexeme, "@"):
		inner := lexeme[1:]
		s, ok := symbols[inner]
		if !ok {
			return operandSlot{}, fmt.Errorf("%w: %s", ErrUndefinedSymbol, inner)
		}
		delta := int64(s.value) - int64(instrOffset)
		slot := operandSlot{mode: opcode.Indexed, word: uint16(delta)}
		k := PCRelative
		slot.reloc = &k
		return slot, nil

	default:
		return operandSlot{}, fmt.Errorf("%w: %s", ErrInvalidOperand, lexeme)
	}
}

// resolveOperandValue resolves a bare numeral or symbol reference to
// a value, returning the symbol table entry (nil for a literal
// numeral) so the caller can decide whether a relocation is needed.
func resolveOperandValue(text string, symbols map[string]symbol) (int64, *symbol, error) {
	text = strings.TrimPrefix(text, "#")
	if v, err := parseInt(text); err == nil {
		return v, nil, nil
	}
	s, ok := symbols[text]
	if !ok {
		return 0, nil, fmt.Errorf("%w: %s", ErrUndefinedSymbol, text)
	}
	return int64(s.value), &s, nil
}

func resolveValue(tok lexer.Token, symbols map[string]symbol) (int64, error) {
	v, _, err := resolveOperandValue(tok.Lexeme, symbols)
	return v, err
}

func parseInt(text string) (int64, error) {
	text = strings.TrimPrefix(text, "#")
	neg := false
	if strings.HasPrefix(text, "-") {
		neg = true
		text = text[1:]
	}
	var v int64
	var err error
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		v, err = strconv.ParseInt(text[2:], 16, 64)
	} else {
		v, err = strconv.ParseInt(text, 10, 64)
	}
	if err != nil {
		return 0, err
	}
	if neg {
		v = -v
	}
	return v, nil
}
