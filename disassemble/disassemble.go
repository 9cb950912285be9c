// Package disassemble renders an assembled Image back into assembly
// text: diagnostic output for tooling, and the other half of the
// assembler round-trip property in spec.md §8. It is grounded on the
// same opcode-table idiom as the assembler, keyed by opcode instead
// of by mnemonic.
package disassemble

import (
	"fmt"
	"strings"

	"github.com/rcornwell/corewar/assemble"
	"github.com/rcornwell/corewar/opcode"
	"github.com/rcornwell/corewar/register"
	"github.com/rcornwell/corewar/util/hex"
)

// arity mirrors the assembler's operand count per opcode (spec.md
// §4.5's instruction table).
var arity = map[opcode.Op]int{
	opcode.NOP: 0, opcode.RET: 0, opcode.HLT: 0, opcode.DAT: 0,
	opcode.NOT: 1, opcode.JMP: 1, opcode.JZ: 1, opcode.JNZ: 1,
	opcode.JL: 1, opcode.JG: 1, opcode.CALL: 1, opcode.SPL: 1,
	opcode.MOV: 2, opcode.ADD: 2, opcode.SUB: 2, opcode.MUL: 2,
	opcode.DIV: 2, opcode.AND: 2, opcode.OR: 2, opcode.XOR: 2,
	opcode.CMP: 2,
}

// Disassemble renders img's code as assembly text, one line per
// instruction, with labels from img.Symbols emitted on their own
// line immediately before the instruction they name.
func Disassemble(img *assemble.Image) string {
	offsetToLabel := make(map[uint32]string, len(img.Symbols))
	labelsAt := make(map[uint32][]string)
	for name, offset := range img.Symbols {
		offsetToLabel[offset] = name
		labelsAt[offset] = append(labelsAt[offset], name)
	}
	relocAt := make(map[uint32]assemble.RelocationKind, len(img.Relocations))
	for _, r := range img.Relocations {
		relocAt[r.Offset] = r.Kind
	}

	var out strings.Builder
	for offset := uint32(0); offset+opcode.InstructionSize <= img.Size; offset += opcode.InstructionSize {
		for _, name := range labelsAt[offset] {
			out.WriteString(name)
			out.WriteString(":\n")
		}
		out.WriteString(formatInstruction(img.Code, offset, offsetToLabel, relocAt))
		out.WriteString("\n")
	}
	return out.String()
}

func formatInstruction(code []byte, offset uint32, offsetToLabel map[uint32]string, relocAt map[uint32]assemble.RelocationKind) string {
	header := [opcode.HeaderSize]byte{code[offset], code[offset+1]}
	op, modeA, modeB, regA, regB := opcode.Decode(header)
	slotAOffset := offset + opcode.HeaderSize
	slotBOffset := slotAOffset + opcode.WordSize
	wordA := opcode.GetWord(code[slotAOffset : slotAOffset+opcode.WordSize])
	wordB := opcode.GetWord(code[slotBOffset : slotBOffset+opcode.WordSize])

	want := arity[op]
	var ops []string
	if want >= 1 {
		relocA, hasRelocA := relocAt[slotAOffset]
		ops = append(ops, formatOperand(modeA, regA, wordA, offset, offsetToLabel, relocA, hasRelocA))
	}
	if want == 2 {
		relocB, hasRelocB := relocAt[slotBOffset]
		ops = append(ops, formatOperand(modeB, regB, wordB, offset, offsetToLabel, relocB, hasRelocB))
	}
	if len(ops) == 0 {
		return "\t" + op.String()
	}
	return "\t" + op.String() + " " + strings.Join(ops, ", ")
}

// formatOperand renders one operand word. reloc/hasReloc come from
// the image's relocation list, not from guessing at numeric
// coincidence: a Direct or Indirect word that isn't backed by an
// Absolute relocation was a plain numeral in the source (or an `equ`
// constant, which carries no symbol table entry of its own) and must
// be re-emitted as one, even if its value happens to match some
// label's offset.
func formatOperand(mode opcode.Mode, isReg bool, word uint16, instrOffset uint32, offsetToLabel map[uint32]string, reloc assemble.RelocationKind, hasReloc bool) string {
	if isReg {
		return register.Name(int(word))
	}
	switch mode {
	case opcode.Immediate:
		return fmt.Sprintf("#%d", word)
	case opcode.Direct:
		if hasReloc && reloc == assemble.Absolute {
			if name, ok := offsetToLabel[uint32(word)]; ok {
				return name // bare symbol operand, spec.md §4.3 lexer.Symbol path
			}
		}
		// $HEX is always a literal, non-relocated address in this
		// syntax (spec.md §6).
		var b strings.Builder
		b.WriteByte('$')
		hex.FormatWord16(&b, word)
		return b.String()
	case opcode.Indirect:
		if hasReloc && reloc == assemble.Absolute {
			if name, ok := offsetToLabel[uint32(word)]; ok {
				return "[" + name + "]"
			}
		}
		// resolveOperandValue parses a bracketed non-symbol operand
		// with parseInt, which defaults to base 10 absent a "0x"
		// prefix, so the fallback numeral must be decimal.
		return fmt.Sprintf("[%d]", word)
	case opcode.Indexed:
		// Indexed operands are always symbolic in this syntax (the
		// lexer only accepts an identifier after '@') and always
		// carry a PCRelative relocation.
		delta := int16(word)
		target := int64(instrOffset) + int64(delta)
		if target < 0 {
			target = 0
		}
		if name, ok := offsetToLabel[uint32(target)]; ok {
			return "@" + name
		}
		return fmt.Sprintf("@?%d", uint32(target))
	default:
		return fmt.Sprintf("?%d", word)
	}
}
