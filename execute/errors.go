package execute

import "errors"

// Sentinel errors for runtime failures (spec.md §7.3). Each one
// terminates only the offending process; none of them propagate past
// Step.
var (
	ErrInvalidOpcode  = errors.New("invalid opcode")
	ErrDivideByZero   = errors.New("divide by zero")
	ErrInvalidOperand = errors.New("invalid operand")
)
