package battle

import "errors"

// Sentinel errors for bot loading and control-surface misuse
// (spec.md §7.2, §7.4).
var (
	ErrImageTooLarge  = errors.New("image too large")
	ErrNoFreeRegion   = errors.New("no free region for load base")
	ErrAlreadyRunning = errors.New("battle already running")
	ErrNotInitialized = errors.New("battle not initialized")
	ErrUnknownBot     = errors.New("unknown bot")
)
