// Package battle is the top-level controller that drives one battle
// to completion: it owns the shared memory, the process table and
// the event stream, runs the turn loop described in spec.md §4.7, and
// detects termination and victory. Its control surface (Start/Stop/
// Pause/Resume) is grounded on the teacher's emu/core/core.go, which
// drives a CPU with a goroutine reading from a done channel and a
// packet channel; here the packets are Control values instead of
// master.Packet, and the "CPU" is the ready-queue turn loop.
package battle

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rcornwell/corewar/config"
	"github.com/rcornwell/corewar/event"
	"github.com/rcornwell/corewar/execute"
	"github.com/rcornwell/corewar/memory"
	"github.com/rcornwell/corewar/process"
)

// Status is the battle's lifecycle state (spec.md §4.7).
type Status int

const (
	Pending Status = iota
	Running
	Paused
	Completed
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Completed:
		return "completed"
	default:
		return "pending"
	}
}

// Control is a message sent to a running battle's goroutine, in the
// shape of the teacher's master.Packet.
type Control int

const (
	CtrlPause Control = iota
	CtrlResume
	CtrlAbort
)

// Result summarizes a finished battle (spec.md §4.7's victory rule).
type Result struct {
	Winner   string // owner bot name, "" if no survivor
	Turns    uint64
	Reason   string
}

// Battle drives one battle instance: it is the sole writer of mem,
// procs and events once Start has been called (spec.md §5 — a single
// cooperative scheduler, never concurrent process execution).
type Battle struct {
	mu sync.Mutex

	mem    *memory.Memory
	procs  *process.Table
	events *event.Stream
	cfg    config.Config
	rng    *rand.Rand

	bots    []*botRecord
	regions []region

	turn    uint64
	status  Status
	result  *Result

	control chan Control
	done    chan struct{}
	wg      sync.WaitGroup
}

type botRecord struct {
	name        string
	base        uint32
	size        uint32
	entryPID    uint16
}

type region struct {
	base, size uint32
}

// New creates a battle with fresh memory sized per cfg. If cfg has no
// seed, the wall clock seeds the generator (spec.md §6: a supplied
// seed is what makes a battle reproducible, not a hard requirement).
func New(cfg config.Config) *Battle {
	seed := cfg.Seed
	if !cfg.HasSeed {
		seed = time.Now().UnixNano()
	}
	return &Battle{
		mem:    memory.New(cfg.MemorySize),
		procs:  process.NewTable(),
		events: event.NewStream(),
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(seed)),
		control: make(chan Control, 4),
	}
}

// Memory exposes the shared arena for inspection (disassembly,
// snapshots, tests).
func (b *Battle) Memory() *memory.Memory { return b.mem }

// Events returns every event recorded so far, in order.
func (b *Battle) Events() []event.Event { return b.events.All() }

// Subscribe forwards future events to ch, non-blocking on a full or
// absent receiver (event.Stream's contract).
func (b *Battle) Subscribe(ch chan<- event.Event) { b.events.Subscribe(ch) }

// Status reports the current lifecycle state.
func (b *Battle) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Turn reports how many turns have completed.
func (b *Battle) Turn() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.turn
}

// Result returns the outcome once the battle has completed.
func (b *Battle) Result() (Result, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.result == nil {
		return Result{}, false
	}
	return *b.result, true
}

// RunTurns synchronously advances the battle by at most n turns (or
// until it completes, whichever is first). It is the entry point for
// callers, such as tests, that do not need the channel-driven control
// surface; cmd/corewar uses Start and Wait instead.
func (b *Battle) RunTurns(n int) {
	for i := 0; i < n; i++ {
		if b.Status() == Completed {
			return
		}
		b.runTurn()
	}
}

// runTurn executes spec.md §4.7's turn body: every process that was
// ready at the turn's start gets up to CyclesPerTurn instructions,
// in the ready queue's snapshot order, before the next turn begins.
func (b *Battle) runTurn() {
	b.mu.Lock()
	turn := b.turn
	ready := make([]*process.Process, 0, b.procs.ReadyLen())
	for i, n := 0, b.procs.ReadyLen(); i < n; i++ {
		p, ok := b.procs.Next()
		if !ok {
			break
		}
		ready = append(ready, p)
	}
	b.mu.Unlock()

	for _, p := range ready {
		for cycle := uint32(0); cycle < b.cfg.CyclesPerTurn; cycle++ {
			if p.State == process.Terminated {
				break
			}
			execute.Step(b.mem, b.procs, p, b.events, turn, cycle)
		}
		if p.State != process.Terminated {
			b.procs.Reschedule(p.ID)
		}
	}

	b.events.Append(event.Event{Kind: event.TurnCompleted, Turn: turn})

	b.mu.Lock()
	b.turn++
	b.mu.Unlock()

	b.checkVictory()
}

// checkVictory implements spec.md §4.7's termination rule: the battle
// ends when at most one bot has a live process, or MaxTurns is
// reached. Ties among processes of the same bot are broken by highest
// CyclesUsed, then lowest process id, so the report is deterministic.
func (b *Battle) checkVictory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.result != nil {
		return
	}

	alive := b.procs.CountAlivePerBot()
	maxTurnsHit := b.cfg.MaxTurns > 0 && b.turn >= b.cfg.MaxTurns

	if len(alive) > 1 && !maxTurnsHit {
		return
	}

	reason := "last-bot-standing"
	if len(alive) == 0 {
		reason = "mutual-destruction"
	} else if maxTurnsHit && len(alive) > 1 {
		reason = "max-turns-reached"
	}

	winner, winnerID := b.pickWinner()
	b.status = Completed
	b.result = &Result{Winner: winner, Turns: b.turn, Reason: reason}
	b.events.Append(event.Event{Kind: event.BattleEnded, Turn: b.turn, Winner: winnerID, Reason: reason})
}

// pickWinner returns the surviving bot's name and representative
// process id, or the tie-broken leader among survivors when MaxTurns
// cut the battle short with more than one bot still alive, or ("", 0)
// if every process died.
func (b *Battle) pickWinner() (string, uint16) {
	best := make(map[string]*process.Process)
	for _, p := range b.procs.List() {
		if p.State == process.Terminated {
			continue
		}
		cur, ok := best[p.OwnerBot]
		if !ok || p.CyclesUsed > cur.CyclesUsed ||
			(p.CyclesUsed == cur.CyclesUsed && p.ID < cur.ID) {
			best[p.OwnerBot] = p
		}
	}
	var winner string
	var winnerProc *process.Process
	for name, p := range best {
		if winnerProc == nil || p.CyclesUsed > winnerProc.CyclesUsed ||
			(p.CyclesUsed == winnerProc.CyclesUsed && p.ID < winnerProc.ID) {
			winner, winnerProc = name, p
		}
	}
	if winnerProc == nil {
		return "", 0
	}
	return winner, winnerProc.ID
}

// Start launches the channel-driven control loop in a goroutine and
// runs turns until completion, pause, or abort. It mirrors the
// teacher's core.Start: a select between the done channel, incoming
// control messages, and a default case that advances the simulation.
func (b *Battle) Start() error {
	b.mu.Lock()
	if b.status == Running {
		b.mu.Unlock()
		return ErrAlreadyRunning
	}
	if len(b.bots) == 0 {
		b.mu.Unlock()
		return ErrNotInitialized
	}
	b.status = Running
	b.done = make(chan struct{})
	b.mu.Unlock()

	b.wg.Add(1)
	go b.run()
	return nil
}

func (b *Battle) run() {
	defer b.wg.Done()
	paused := false
	for {
		select {
		case <-b.done:
			return
		case ctrl := <-b.control:
			switch ctrl {
			case CtrlPause:
				paused = true
				b.mu.Lock()
				b.status = Paused
				b.mu.Unlock()
			case CtrlResume:
				paused = false
				b.mu.Lock()
				if b.status != Completed {
					b.status = Running
				}
				b.mu.Unlock()
			case CtrlAbort:
				b.mu.Lock()
				if b.result == nil {
					b.status = Completed
					b.result = &Result{Reason: "aborted", Turns: b.turn}
					b.events.Append(event.Event{Kind: event.BattleEnded, Turn: b.turn, Reason: "aborted"})
				}
				b.mu.Unlock()
				return
			}
		default:
			if paused {
				continue
			}
			if b.Status() == Completed {
				return
			}
			b.runTurn()
		}
	}
}

// Reset discards all battle state — memory, processes, events, loaded
// bots, turn count, and result — and reseeds the random generator from
// the original config, so a fresh sequence of LoadBot/Start calls
// reproduces the same battle as a brand-new Battle built from the same
// config (spec.md §6's control surface). Reset refuses while running.
func (b *Battle) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status == Running || b.status == Paused {
		return ErrAlreadyRunning
	}
	seed := b.cfg.Seed
	if !b.cfg.HasSeed {
		seed = time.Now().UnixNano()
	}
	b.mem = memory.New(b.cfg.MemorySize)
	b.procs = process.NewTable()
	b.events = event.NewStream()
	b.rng = rand.New(rand.NewSource(seed))
	b.bots = nil
	b.regions = nil
	b.turn = 0
	b.status = Pending
	b.result = nil
	b.done = nil
	return nil
}

// Pause requests the control loop stop advancing turns.
func (b *Battle) Pause() { b.send(CtrlPause) }

// Resume requests the control loop continue advancing turns.
func (b *Battle) Resume() { b.send(CtrlResume) }

// Abort requests the control loop end the battle immediately with no
// winner, and blocks until it has stopped.
func (b *Battle) Abort() {
	b.send(CtrlAbort)
	b.Stop()
	// Stop may win the loop's select before the abort message is read;
	// record the abort here in that case.
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.result == nil {
		b.status = Completed
		b.result = &Result{Reason: "aborted", Turns: b.turn}
		b.events.Append(event.Event{Kind: event.BattleEnded, Turn: b.turn, Reason: "aborted"})
	}
}

func (b *Battle) send(c Control) {
	select {
	case b.control <- c:
	default:
	}
}

// Wait blocks until the running goroutine started by Start has
// exited, i.e. until the battle completes or is aborted. It is a
// no-op if Start was never called.
func (b *Battle) Wait() {
	b.wg.Wait()
}

// Stop signals the running goroutine to exit and waits for it, with a
// one-second fallback in case the loop is wedged (same shape as the
// teacher's core.Stop).
func (b *Battle) Stop() {
	b.mu.Lock()
	done := b.done
	b.mu.Unlock()
	if done == nil {
		return
	}
	select {
	case <-done:
	default:
		close(done)
	}
	waitCh := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(waitCh)
	}()
	select {
	case <-waitCh:
	case <-time.After(time.Second):
	}
}

// Snapshot reports per-process statistics for external observers
// (spec.md §4.8's facade).
type Snapshot struct {
	Turn     uint64
	Status   Status
	Result   *Result
	Bots     []string
	Processes []ProcessInfo
}

// ProcessInfo is one process's externally visible state.
type ProcessInfo struct {
	ID         uint16
	OwnerBot   string
	State      string
	PC         uint32
	CyclesUsed uint64
}

// Snapshot builds a point-in-time view of the battle for reporting.
func (b *Battle) Snapshot() Snapshot {
	b.mu.Lock()
	turn, status := b.turn, b.status
	var result *Result
	if b.result != nil {
		r := *b.result
		result = &r
	}
	names := make([]string, len(b.bots))
	for i, br := range b.bots {
		names[i] = br.name
	}
	b.mu.Unlock()

	procs := b.procs.List()
	infos := make([]ProcessInfo, len(procs))
	for i, p := range procs {
		infos[i] = ProcessInfo{
			ID: p.ID, OwnerBot: p.OwnerBot, State: p.State.String(),
			PC: p.PC, CyclesUsed: p.CyclesUsed,
		}
	}
	return Snapshot{Turn: turn, Status: status, Result: result, Bots: names, Processes: infos}
}

func (b *Battle) String() string {
	return fmt.Sprintf("battle(turn=%d status=%s)", b.Turn(), b.Status())
}
