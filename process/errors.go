package process

import "errors"

// Sentinel errors for process-table and stack operations (spec.md §7).
var (
	ErrUnknownProcess = errors.New("unknown process")
	ErrStackOverflow  = errors.New("stack overflow")
	ErrStackUnderflow = errors.New("stack underflow")
)
