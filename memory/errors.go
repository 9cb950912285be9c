package memory

import "errors"

// Sentinel errors returned by Memory operations (spec.md §7.3).
var (
	ErrProtection = errors.New("protection violation")
	ErrAllocation = errors.New("allocation failed")
)
