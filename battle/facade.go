package battle

import (
	"fmt"

	"github.com/rcornwell/corewar/assemble"
	"github.com/rcornwell/corewar/event"
	"github.com/rcornwell/corewar/opcode"
)

// maxPlacementAttempts bounds the random-base search before giving up
// (spec.md §4.2's loader never promises a free region exists).
const maxPlacementAttempts = 1000

// LoadBot assembles source, picks a non-overlapping load base that
// respects MinSpacing, copies its code into memory with relocations
// applied, stamps ownership over the loaded range, and creates the
// bot's first process. It returns the id of that first process; name
// is the bot's handle for later lookups.
func (b *Battle) LoadBot(name, source string) (uint16, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	img, err := assemble.Assemble(source)
	if err != nil {
		return 0, fmt.Errorf("battle: assemble %s: %w", name, err)
	}
	if b.cfg.MaxMemoryPerProcess > 0 && img.Size > b.cfg.MaxMemoryPerProcess {
		return 0, fmt.Errorf("battle: %s: %w (%d > %d)", name, ErrImageTooLarge, img.Size, b.cfg.MaxMemoryPerProcess)
	}

	base, err := b.pickBase(img.Size)
	if err != nil {
		return 0, fmt.Errorf("battle: %s: %w", name, err)
	}

	code := relocateForBase(img, base)
	b.mem.SetCurrentProcess(0)
	for i, v := range code {
		// Written with no current process set: ownership is stamped
		// explicitly below, as its own step, rather than picked up
		// incidentally from the write (spec.md §4.2 steps 4-5).
		if err := b.mem.Write(int64(base)+int64(i), v); err != nil {
			return 0, fmt.Errorf("battle: %s: writing load image: %w", name, err)
		}
	}
	entryOffset := img.EntryOffset
	if b.cfg.RandomPCWindow > 0 && img.Size > 0 {
		steps := b.rng.Intn(int(b.cfg.RandomPCWindow))
		perturb := uint32(steps) * opcode.InstructionSize
		entryOffset = (entryOffset + perturb) % img.Size
	}
	entryPC := base + entryOffset

	p := b.procs.Create(name, name, entryPC)
	b.mem.SetOwnershipRange(base, img.Size, p.ID)

	b.bots = append(b.bots, &botRecord{name: name, base: base, size: img.Size, entryPID: p.ID})
	b.regions = append(b.regions, region{base: base, size: img.Size})

	b.events.Append(event.Event{Kind: event.ProcessCreated, ProcessID: p.ID, OwnerBot: name, PCAfter: entryPC})
	return p.ID, nil
}

// relocateForBase returns a copy of img.Code with every Absolute
// relocation's word advanced by base; PCRelative words are already
// base-invariant and are left untouched (spec.md §4.3).
func relocateForBase(img *assemble.Image, base uint32) []byte {
	code := make([]byte, len(img.Code))
	copy(code, img.Code)
	for _, r := range img.Relocations {
		if r.Kind != assemble.Absolute {
			continue
		}
		word := opcode.GetWord(code[r.Offset : r.Offset+opcode.WordSize])
		opcode.PutWord(code[r.Offset:r.Offset+opcode.WordSize], uint16(uint32(word)+base))
	}
	return code
}

// pickBase searches for a load base in [0, MemorySize-size] that
// keeps size bytes (extended by MinSpacing on each side) clear of
// every region already loaded. Candidates are drawn uniformly at
// random, mirroring the non-deterministic placement spec.md §4.2
// describes, made reproducible by the battle's seeded generator.
func (b *Battle) pickBase(size uint32) (uint32, error) {
	if size == 0 || size > b.mem.Size() {
		return 0, ErrImageTooLarge
	}
	span := b.mem.Size() - size + 1
	for attempt := 0; attempt < maxPlacementAttempts; attempt++ {
		base := uint32(b.rng.Int63n(int64(span)))
		if b.fits(base, size) {
			return base, nil
		}
	}
	return 0, ErrNoFreeRegion
}

func (b *Battle) fits(base, size uint32) bool {
	lo := int64(base) - int64(b.cfg.MinSpacing)
	hi := int64(base) + int64(size) + int64(b.cfg.MinSpacing)
	for _, r := range b.regions {
		rlo, rhi := int64(r.base), int64(r.base)+int64(r.size)
		if lo < rhi && hi > rlo {
			return false
		}
	}
	return true
}

// Bots returns the loaded bots' names in load order.
func (b *Battle) Bots() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, len(b.bots))
	for i, br := range b.bots {
		names[i] = br.name
	}
	return names
}

// BotRegion reports name's load base and size, for diagnostics and
// disassembling a live bot in place.
func (b *Battle) BotRegion(name string) (base, size uint32, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, br := range b.bots {
		if br.name == name {
			return br.base, br.size, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: %s", ErrUnknownBot, name)
}
