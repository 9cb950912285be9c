package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	c := Default()
	if c.MemorySize != 65536 || c.MaxTurns != 10000 || c.CyclesPerTurn != 100 {
		t.Errorf("unexpected defaults: %+v", c)
	}
	if c.HasSeed {
		t.Error("Default() must not set a seed")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "battle.cfg")
	contents := "# a battle config\n" +
		"memory_size 4096\n" +
		"max_turns = 500\n" +
		"round_robin false\n" +
		"seed 42\n" +
		"\n" +
		"cycles_per_turn 10 # inline comment\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.MemorySize != 4096 {
		t.Errorf("MemorySize = %d, want 4096", c.MemorySize)
	}
	if c.MaxTurns != 500 {
		t.Errorf("MaxTurns = %d, want 500", c.MaxTurns)
	}
	if c.RoundRobin {
		t.Error("RoundRobin should be false")
	}
	if !c.HasSeed || c.Seed != 42 {
		t.Errorf("Seed = %d, HasSeed=%v, want 42,true", c.Seed, c.HasSeed)
	}
	if c.CyclesPerTurn != 10 {
		t.Errorf("CyclesPerTurn = %d, want 10", c.CyclesPerTurn)
	}
	// Untouched defaults survive.
	if c.MaxMemoryPerProcess != 8192 {
		t.Errorf("MaxMemoryPerProcess = %d, want unchanged default 8192", c.MaxMemoryPerProcess)
	}
}

func TestLoadUnknownOption(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "battle.cfg")
	if err := os.WriteFile(path, []byte("bogus_option 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an unknown option")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/no/such/file.cfg"); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
