// Package config holds battle configuration: the option set in
// spec.md §6, its documented defaults, and a loader for a
// line-oriented text file in the style of the teacher's
// config/configparser ("key value" lines, "#" comments).
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds one battle's tunable options (spec.md §6).
type Config struct {
	MemorySize          uint32
	MaxTurns            uint64
	CyclesPerTurn       uint32
	MaxMemoryPerProcess uint32
	MinSpacing          uint32
	RoundRobin          bool
	RandomPCWindow      uint32
	Seed                int64
	HasSeed             bool
}

// Default returns the documented defaults (spec.md §6). Seed is left
// unset (HasSeed is false): the host must supply one to get a
// deterministic battle.
func Default() Config {
	return Config{
		MemorySize:          65536,
		MaxTurns:            10000,
		CyclesPerTurn:       100,
		MaxMemoryPerProcess: 8192,
		MinSpacing:          128,
		RoundRobin:          true,
		RandomPCWindow:      0,
	}
}

// Load reads path and applies "key value" or "key = value" overrides
// (one per line, split at the first "=" or else the first space, "#"
// starts a trailing comment, blank lines ignored) onto the documented
// defaults.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	cfg := Default()
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := stripComment(scanner.Text())
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := splitKeyValue(line)
		if !ok {
			return Config{}, fmt.Errorf("config: %s:%d: malformed line %q", path, lineNo, line)
		}
		if err := cfg.apply(key, value); err != nil {
			return Config{}, fmt.Errorf("config: %s:%d: %w", path, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return cfg, nil
}

func stripComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		return line[:i]
	}
	return line
}

func splitKeyValue(line string) (key, value string, ok bool) {
	key, value, found := strings.Cut(line, "=")
	if !found {
		key, value, found = strings.Cut(line, " ")
	}
	if !found {
		return "", "", false
	}
	return strings.TrimSpace(key), strings.TrimSpace(value), true
}

func (c *Config) apply(key, value string) error {
	switch strings.ToLower(key) {
	case "memory_size":
		v, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("memory_size: %w", err)
		}
		c.MemorySize = uint32(v)
	case "max_turns":
		v, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("max_turns: %w", err)
		}
		c.MaxTurns = v
	case "cycles_per_turn":
		v, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("cycles_per_turn: %w", err)
		}
		c.CyclesPerTurn = uint32(v)
	case "max_memory_per_process":
		v, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("max_memory_per_process: %w", err)
		}
		c.MaxMemoryPerProcess = uint32(v)
	case "min_spacing":
		v, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("min_spacing: %w", err)
		}
		c.MinSpacing = uint32(v)
	case "round_robin":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("round_robin: %w", err)
		}
		c.RoundRobin = v
	case "random_pc_window":
		v, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("random_pc_window: %w", err)
		}
		c.RandomPCWindow = uint32(v)
	case "seed":
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		c.Seed = v
		c.HasSeed = true
	default:
		return fmt.Errorf("unknown option %q", key)
	}
	return nil
}
