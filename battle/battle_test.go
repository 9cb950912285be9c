package battle

import (
	"testing"

	"github.com/rcornwell/corewar/config"
	"github.com/rcornwell/corewar/event"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.MemorySize = 2048
	cfg.CyclesPerTurn = 20
	cfg.MinSpacing = 16
	cfg.Seed = 1
	cfg.HasSeed = true
	return cfg
}

const imp = "start: mov r0, #1\n" +
	"       jmp start\n"

const suicide = "start: hlt\n"

func TestLoadBotPlacesNonOverlappingRegions(t *testing.T) {
	b := New(testConfig())
	if _, err := b.LoadBot("imp-1", imp); err != nil {
		t.Fatalf("LoadBot imp-1: %v", err)
	}
	if _, err := b.LoadBot("imp-2", imp); err != nil {
		t.Fatalf("LoadBot imp-2: %v", err)
	}
	base1, size1, err := b.BotRegion("imp-1")
	if err != nil {
		t.Fatal(err)
	}
	base2, size2, err := b.BotRegion("imp-2")
	if err != nil {
		t.Fatal(err)
	}
	lo1, hi1 := int64(base1)-int64(b.cfg.MinSpacing), int64(base1)+int64(size1)+int64(b.cfg.MinSpacing)
	lo2, hi2 := int64(base2), int64(base2)+int64(size2)
	if lo1 < hi2 && hi1 > lo2 {
		t.Fatalf("regions overlap within min spacing: [%d,%d) vs [%d,%d)", base1, base1+size1, base2, base2+size2)
	}
}

func TestLoadBotUnknownBotLookupFails(t *testing.T) {
	b := New(testConfig())
	if _, _, err := b.BotRegion("nobody"); err == nil {
		t.Fatal("expected ErrUnknownBot")
	}
}

func TestLoadBotTooLargeImageRejected(t *testing.T) {
	cfg := testConfig()
	cfg.MaxMemoryPerProcess = 4
	b := New(cfg)
	if _, err := b.LoadBot("imp", imp); err == nil {
		t.Fatal("expected ErrImageTooLarge")
	}
}

func TestRunTurnsMutualDestructionHasNoWinner(t *testing.T) {
	b := New(testConfig())
	if _, err := b.LoadBot("a", suicide); err != nil {
		t.Fatal(err)
	}
	if _, err := b.LoadBot("b", suicide); err != nil {
		t.Fatal(err)
	}
	b.RunTurns(5)
	res, ok := b.Result()
	if !ok {
		t.Fatal("expected battle to complete")
	}
	if res.Winner != "" {
		t.Errorf("winner = %q, want none", res.Winner)
	}
	if res.Reason != "mutual-destruction" {
		t.Errorf("reason = %q, want mutual-destruction", res.Reason)
	}
}

func TestRunTurnsLastBotStandingWins(t *testing.T) {
	b := New(testConfig())
	if _, err := b.LoadBot("survivor", imp); err != nil {
		t.Fatal(err)
	}
	if _, err := b.LoadBot("victim", suicide); err != nil {
		t.Fatal(err)
	}
	b.RunTurns(3)
	res, ok := b.Result()
	if !ok {
		t.Fatal("expected battle to complete")
	}
	if res.Winner != "survivor" {
		t.Errorf("winner = %q, want survivor", res.Winner)
	}
	if res.Reason != "last-bot-standing" {
		t.Errorf("reason = %q, want last-bot-standing", res.Reason)
	}
}

func TestRunTurnsEmitsBattleEndedEvent(t *testing.T) {
	b := New(testConfig())
	if _, err := b.LoadBot("survivor", imp); err != nil {
		t.Fatal(err)
	}
	if _, err := b.LoadBot("victim", suicide); err != nil {
		t.Fatal(err)
	}
	b.RunTurns(3)
	var found bool
	for _, ev := range b.Events() {
		if ev.Kind == event.BattleEnded {
			found = true
		}
	}
	if !found {
		t.Error("expected a BattleEnded event")
	}
}

func TestStartPauseAbort(t *testing.T) {
	b := New(testConfig())
	if _, err := b.LoadBot("a", imp); err != nil {
		t.Fatal(err)
	}
	if _, err := b.LoadBot("b", imp); err != nil {
		t.Fatal(err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	b.Pause()
	b.Abort()
	res, ok := b.Result()
	if !ok || res.Reason != "aborted" {
		t.Errorf("result = %+v, ok=%v, want aborted", res, ok)
	}
}

func TestStartWithNoBotsFails(t *testing.T) {
	b := New(testConfig())
	if err := b.Start(); err != ErrNotInitialized {
		t.Errorf("Start() = %v, want ErrNotInitialized", err)
	}
}

func TestResetReproducesIdenticalPlacement(t *testing.T) {
	b := New(testConfig())
	if _, err := b.LoadBot("a", imp); err != nil {
		t.Fatal(err)
	}
	base1, _, _ := b.BotRegion("a")
	b.RunTurns(2)

	if err := b.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, ok := b.Result(); ok {
		t.Error("Result should be cleared after Reset")
	}
	if _, err := b.LoadBot("a", imp); err != nil {
		t.Fatal(err)
	}
	base2, _, _ := b.BotRegion("a")
	if base1 != base2 {
		t.Errorf("base1=%d base2=%d, want equal after Reset with same seed", base1, base2)
	}
}

func TestResetRefusesWhileRunning(t *testing.T) {
	b := New(testConfig())
	if _, err := b.LoadBot("a", imp); err != nil {
		t.Fatal(err)
	}
	if _, err := b.LoadBot("b", imp); err != nil {
		t.Fatal(err)
	}
	if err := b.Start(); err != nil {
		t.Fatal(err)
	}
	defer b.Abort()
	if err := b.Reset(); err != ErrAlreadyRunning {
		t.Errorf("Reset() = %v, want ErrAlreadyRunning", err)
	}
}

func TestDeterministicPlacementAcrossIdenticalSeeds(t *testing.T) {
	cfg := testConfig()
	b1 := New(cfg)
	b2 := New(cfg)
	if _, err := b1.LoadBot("a", imp); err != nil {
		t.Fatal(err)
	}
	if _, err := b2.LoadBot("a", imp); err != nil {
		t.Fatal(err)
	}
	base1, _, _ := b1.BotRegion("a")
	base2, _, _ := b2.BotRegion("a")
	if base1 != base2 {
		t.Errorf("base1=%d base2=%d, want equal for identical seed", base1, base2)
	}
}
