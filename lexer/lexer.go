// Package lexer tokenizes battle-core assembly source: labels,
// mnemonics, registers, immediates, addresses, directives, symbols,
// and string literals (spec.md §4.2).
package lexer

import (
	"strings"
	"unicode"

	"github.com/rcornwell/corewar/opcode"
)

var registers = func() map[string]bool {
	names := []string{"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7", "ax", "bx", "cx", "dx"}
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}()

var bareDirectives = map[string]bool{"db": true, "dw": true, "equ": true}

// Lex tokenizes source into a Token stream. It returns the first
// lexical error encountered, tagged with its source line.
func Lex(source string) ([]Token, error) {
	var tokens []Token
	lines := strings.Split(source, "\n")
	for i, raw := range lines {
		lineNo := i + 1
		line := stripComment(raw)
		toks, err := lexLine(line, lineNo)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, toks...)
	}
	return tokens, nil
}

// stripComment removes a trailing ';' comment, respecting quoted
// strings so a ';' inside one is not treated as a comment start.
func stripComment(line string) string {
	inString := false
	for i, r := range line {
		switch r {
		case '"':
			inString = !inString
		case ';':
			if !inString {
				return line[:i]
			}
		}
	}
	return line
}

func lexLine(line string, lineNo int) ([]Token, error) {
	var tokens []Token
	for {
		line = skipSpace(line)
		if line == "" {
			return tokens, nil
		}
		var tok Token
		var err error
		tok, line, err = lexOne(line, lineNo)
		if err != nil {
			return nil, err
		}
		if tok.Kind == skip {
			// Separator consumed (comma); no token emitted.
			continue
		}
		tokens = append(tokens, tok)
	}
}

func skipSpace(str string) string {
	for i, r := range str {
		if !unicode.IsSpace(r) {
			return str[i:]
		}
	}
	return ""
}

const skip Kind = -1

func lexOne(str string, lineNo int) (Token, string, error) {
	c := str[0]
	switch {
	case c == ',':
		return Token{Kind: skip}, str[1:], nil
	case c == '.':
		word, rest := scanWhile(str[1:], isIdentRune)
		return Token{Kind: Directive, Lexeme: "." + word, Line: lineNo}, rest, nil
	case c == '"':
		return lexString(str, lineNo)
	case c == '#':
		return lexImmediate(str, lineNo)
	case c == '$':
		word, rest := scanWhile(str[1:], isHexRune)
		if word == "" {
			return Token{}, "", &Error{Kind: InvalidOperand, Line: lineNo, Text: str}
		}
		return Token{Kind: Address, Lexeme: "$" + word, Line: lineNo}, rest, nil
	case c == '[':
		return lexBracketAddress(str, lineNo)
	case c == '@':
		word, rest := scanWhile(str[1:], isIdentRune)
		if word == "" {
			return Token{}, "", &Error{Kind: InvalidOperand, Line: lineNo, Text: str}
		}
		return Token{Kind: Address, Lexeme: "@" + word, Line: lineNo}, rest, nil
	case c == '-' || unicode.IsDigit(rune(c)):
		return lexNumber(str, lineNo)
	case isIdentStartRune(rune(c)):
		return lexIdent(str, lineNo)
	default:
		return Token{}, "", &Error{Kind: InvalidOperand, Line: lineNo, Text: str}
	}
}

func lexString(str string, lineNo int) (Token, string, error) {
	for i := 1; i < len(str); i++ {
		if str[i] == '"' {
			return Token{Kind: String, Lexeme: str[1:i], Line: lineNo}, str[i+1:], nil
		}
	}
	return Token{}, "", &Error{Kind: InvalidOperand, Line: lineNo, Text: str}
}

func lexImmediate(str string, lineNo int) (Token, string, error) {
	body := str[1:]
	if body != "" && isIdentStartRune(rune(body[0])) {
		name, rest := scanWhile(body, isIdentRune)
		return Token{Kind: Immediate, Lexeme: "#" + name, Line: lineNo}, rest, nil
	}
	neg := ""
	if strings.HasPrefix(body, "-") {
		neg = "-"
		body = body[1:]
	}
	num, rest, ok := scanNumeral(body)
	if !ok {
		return Token{}, "", &Error{Kind: InvalidImmediate, Line: lineNo, Text: str}
	}
	return Token{Kind: Immediate, Lexeme: "#" + neg + num, Line: lineNo}, rest, nil
}

func lexNumber(str string, lineNo int) (Token, string, error) {
	neg := ""
	body := str
	if strings.HasPrefix(body, "-") {
		neg = "-"
		body = body[1:]
	}
	num, rest, ok := scanNumeral(body)
	if !ok {
		return Token{}, "", &Error{Kind: InvalidImmediate, Line: lineNo, Text: str}
	}
	return Token{Kind: Immediate, Lexeme: neg + num, Line: lineNo}, rest, nil
}

// scanNumeral consumes a decimal or 0x-prefixed hex numeral from the
// front of str.
func scanNumeral(str string) (numeral string, rest string, ok bool) {
	if strings.HasPrefix(str, "0x") || strings.HasPrefix(str, "0X") {
		hex, r := scanWhile(str[2:], isHexRune)
		if hex == "" {
			return "", str, false
		}
		return "0x" + hex, r, true
	}
	dec, r := scanWhile(str, unicode.IsDigit)
	if dec == "" {
		return "", str, false
	}
	return dec, r, true
}

func lexBracketAddress(str string, lineNo int) (Token, string, error) {
	depth := 0
	for i, r := range str {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return Token{Kind: Address, Lexeme: str[:i+1], Line: lineNo}, str[i+1:], nil
			}
		}
	}
	return Token{}, "", &Error{Kind: InvalidOperand, Line: lineNo, Text: str}
}

func lexIdent(str string, lineNo int) (Token, string, error) {
	word, rest := scanWhile(str, isIdentRune)
	if strings.HasPrefix(rest, ":") {
		return Token{Kind: Label, Lexeme: word, Line: lineNo}, rest[1:], nil
	}
	upper := strings.ToUpper(word)
	if _, ok := opcode.Lookup(upper); ok {
		return Token{Kind: Instruction, Lexeme: upper, Line: lineNo}, rest, nil
	}
	lower := strings.ToLower(word)
	if registers[lower] {
		return Token{Kind: Register, Lexeme: lower, Line: lineNo}, rest, nil
	}
	if bareDirectives[lower] {
		return Token{Kind: Directive, Lexeme: lower, Line: lineNo}, rest, nil
	}
	return Token{Kind: Symbol, Lexeme: word, Line: lineNo}, rest, nil
}

func scanWhile(str string, pred func(rune) bool) (string, string) {
	for i, r := range str {
		if !pred(r) {
			return str[:i], str[i:]
		}
	}
	return str, ""
}

func isIdentStartRune(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func isHexRune(r rune) bool {
	return unicode.IsDigit(r) ||
		(r >= 'a' && r <= 'f') ||
		(r >= 'A' && r <= 'F')
}
