package assemble

import "errors"

// Sentinel errors for the assembler's pass 1/2 failure modes
// (spec.md §4.3, §7.2).
var (
	ErrDuplicateLabel  = errors.New("duplicate label")
	ErrUndefinedSymbol = errors.New("undefined symbol")
	ErrInvalidOperand  = errors.New("invalid operand")
	ErrUnknownOpcode   = errors.New("unknown opcode")
	ErrUnknownRegister = errors.New("unknown register")
)
