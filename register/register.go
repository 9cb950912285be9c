// Package register names and indexes the battle core's per-process
// register file (spec.md §3: "minimum r0..r7 plus ax,bx,cx,dx").
package register

import "strings"

// Count is the number of addressable general registers.
const Count = 12

var names = [Count]string{
	"r0", "r1", "r2", "r3", "r4", "r5", "r6", "r7",
	"ax", "bx", "cx", "dx",
}

var byName = func() map[string]int {
	m := make(map[string]int, Count)
	for i, n := range names {
		m[n] = i
	}
	return m
}()

// Index returns the register index for a name (case-insensitive) and
// whether it was recognized.
func Index(name string) (int, bool) {
	i, ok := byName[strings.ToLower(name)]
	return i, ok
}

// Name returns the canonical lowercase name for a register index.
// Panics if idx is out of range, mirroring slice-index semantics.
func Name(idx int) string {
	return names[idx]
}
