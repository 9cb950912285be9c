// Package decode turns a fetched instruction header into its opcode and
// addressing-mode tags, and resolves an operand's effective address.
// Neither operation touches memory (spec.md §4.4): indirection and
// register access are left to the executor so that protection and
// ownership get logged at the correct step.
package decode

import (
	"github.com/rcornwell/corewar/opcode"
)

// Instruction is the decoded form of a fetched header plus its two
// raw operand words.
type Instruction struct {
	Op   opcode.Op
	ModeA, ModeB   opcode.Mode
	RegA, RegB     bool
	WordA, WordB   uint16
}

// Fetch decodes the two header bytes at pc and the two little-endian
// operand words that follow them. code must hold at least
// opcode.InstructionSize bytes starting at pc.
func Fetch(code []byte, pc uint32) Instruction {
	header := [opcode.HeaderSize]byte{code[pc], code[pc+1]}
	op, modeA, modeB, regA, regB := opcode.Decode(header)
	wa := opcode.GetWord(code[pc+opcode.HeaderSize : pc+opcode.HeaderSize+opcode.WordSize])
	wb := opcode.GetWord(code[pc+opcode.HeaderSize+opcode.WordSize : pc+opcode.HeaderSize+2*opcode.WordSize])
	return Instruction{Op: op, ModeA: modeA, ModeB: modeB, RegA: regA, RegB: regB, WordA: wa, WordB: wb}
}

// ResolveAddress returns the effective address for a memory operand
// word under mode, wrapped into [0, memSize). ok is false for
// Immediate operands, which carry a value rather than an address;
// the caller uses the word itself in that case.
//
// Indirect resolves to the address of the pointer cell, not the
// address it ultimately points to: dereferencing that pointer is a
// memory read and is the executor's job. Indexed adds the operand to
// pc, matching spec.md §3's "adds it to the program counter modulo
// MEMORY_SIZE".
func ResolveAddress(mode opcode.Mode, word uint16, pc uint32, memSize uint32) (addr uint32, ok bool) {
	switch mode {
	case opcode.Immediate:
		return 0, false
	case opcode.Direct, opcode.Indirect:
		return wrap(uint32(word), memSize), true
	case opcode.Indexed:
		return wrap(pc+uint32(word), memSize), true
	default:
		return 0, false
	}
}

func wrap(addr, memSize uint32) uint32 {
	if memSize == 0 {
		return 0
	}
	return addr % memSize
}
