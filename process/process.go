// Package process holds the battle's process table: per-process
// register state, a bounded call stack, and a round-robin ready
// queue (spec.md §4.6).
package process

import (
	"fmt"

	"github.com/rcornwell/corewar/register"
)

// State is a process's position in its Ready/Running/Blocked/
// Terminated lifecycle (spec.md §3). Terminated is absorbing.
type State int

const (
	Ready State = iota
	Running
	Blocked
	Terminated
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Blocked:
		return "blocked"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Flags is the condition-code register set by arithmetic and compare
// instructions (spec.md §3).
type Flags struct {
	Zero     bool
	Sign     bool
	Overflow bool
	Carry    bool
}

// RegisterFile is one process's general registers, stack pointer, and
// flags. PC is carried on Process itself, not here, since the
// scheduler advances it independently of register writes.
type RegisterFile struct {
	Regs  [register.Count]uint16
	SP    uint32
	Flags Flags
}

// defaultStackLimit bounds a process's call stack (spec.md §7.3
// StackOverflow) to 256 return addresses.
const defaultStackLimit = 256

// Process is one independently scheduled execution context.
type Process struct {
	ID              uint16
	OwnerBot        string
	Name            string
	PC              uint32
	Regs            RegisterFile
	stack           []uint32
	stackLimit      int
	State           State
	CyclesUsed      uint64
	MemoryFootprint uint32
	Parent          uint16 // 0 = none
}

// PushCall pushes addr onto the process's call stack, failing with
// ErrStackOverflow once stackLimit is reached.
func (p *Process) PushCall(addr uint32) error {
	if len(p.stack) >= p.stackLimit {
		return fmt.Errorf("%w: process %d", ErrStackOverflow, p.ID)
	}
	p.stack = append(p.stack, addr)
	return nil
}

// PopCall pops the most recently pushed address, failing with
// ErrStackUnderflow on an empty stack.
func (p *Process) PopCall() (uint32, error) {
	if len(p.stack) == 0 {
		return 0, fmt.Errorf("%w: process %d", ErrStackUnderflow, p.ID)
	}
	top := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	return top, nil
}

// StackDepth returns the number of addresses currently on the call
// stack.
func (p *Process) StackDepth() int {
	return len(p.stack)
}

// clone returns a copy of p suitable for seeding a forked child:
// the register file, flags, and call stack are copied, but identity
// fields (id, pc, parent, cycles) are left to the caller.
func (p *Process) clone() (RegisterFile, []uint32) {
	regs := p.Regs
	stack := make([]uint32, len(p.stack))
	copy(stack, p.stack)
	return regs, stack
}

type qnode struct {
	pid  uint16
	prev *qnode
	next *qnode
}

// Table is the battle's process table and FIFO ready queue.
type Table struct {
	processes map[uint16]*Process
	nextID    uint16
	head      *qnode
	tail      *qnode
	nodes     map[uint16]*qnode // pid -> its queue node, if queued
}

// NewTable returns an empty process table.
func NewTable() *Table {
	return &Table{
		processes: make(map[uint16]*Process),
		nodes:     make(map[uint16]*qnode),
	}
}

// Create allocates a new process in Ready state at entryPC, appends
// it to the ready queue, and returns it.
func (t *Table) Create(ownerBot, name string, entryPC uint32) *Process {
	t.nextID++
	p := &Process{
		ID:         t.nextID,
		OwnerBot:   ownerBot,
		Name:       name,
		PC:         entryPC,
		State:      Ready,
		stackLimit: defaultStackLimit,
	}
	t.processes[p.ID] = p
	t.enqueue(p.ID)
	return p
}

// Fork creates a new Ready process owned by the same bot as parent,
// starting at pc, with parent's register file and call stack copied
// (spec.md §4.5 SPL). The child is appended to the ready queue.
func (t *Table) Fork(parent *Process, pc uint32) *Process {
	t.nextID++
	regs, stack := parent.clone()
	child := &Process{
		ID:         t.nextID,
		OwnerBot:   parent.OwnerBot,
		Name:       parent.Name,
		PC:         pc,
		Regs:       regs,
		stack:      stack,
		State:      Ready,
		Parent:     parent.ID,
		stackLimit: parent.stackLimit,
	}
	t.processes[child.ID] = child
	t.enqueue(child.ID)
	return child
}

// Terminate marks pid Terminated and removes it from the ready queue.
// Accounting (CyclesUsed, MemoryFootprint) is preserved.
func (t *Table) Terminate(pid uint16) error {
	p, ok := t.processes[pid]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownProcess, pid)
	}
	p.State = Terminated
	t.dequeue(pid)
	return nil
}

// Next dequeues the ready-queue head, if any, transitions it to
// Running, and returns it.
func (t *Table) Next() (*Process, bool) {
	if t.head == nil {
		return nil, false
	}
	pid := t.head.pid
	t.dequeue(pid)
	p := t.processes[pid]
	p.State = Running
	return p, true
}

// Reschedule re-queues pid at the tail if it is still Ready (not
// Terminated and not already queued).
func (t *Table) Reschedule(pid uint16) {
	p, ok := t.processes[pid]
	if !ok || p.State == Terminated {
		return
	}
	if _, queued := t.nodes[pid]; queued {
		return
	}
	p.State = Ready
	t.enqueue(pid)
}

// List returns every process in id order (stable for snapshots).
func (t *Table) List() []*Process {
	out := make([]*Process, 0, len(t.processes))
	for id := uint16(1); id <= t.nextID; id++ {
		if p, ok := t.processes[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Info returns the process with the given id, if any.
func (t *Table) Info(pid uint16) (*Process, bool) {
	p, ok := t.processes[pid]
	return p, ok
}

// ReadyLen returns the number of processes currently in the ready
// queue.
func (t *Table) ReadyLen() int {
	return len(t.nodes)
}

// CountAlivePerBot returns, for each owner bot, the number of
// processes not in the Terminated state.
func (t *Table) CountAlivePerBot() map[string]int {
	counts := make(map[string]int)
	for _, p := range t.processes {
		if p.State != Terminated {
			counts[p.OwnerBot]++
		}
	}
	return counts
}

func (t *Table) enqueue(pid uint16) {
	n := &qnode{pid: pid}
	if t.tail == nil {
		t.head, t.tail = n, n
	} else {
		n.prev = t.tail
		t.tail.next = n
		t.tail = n
	}
	t.nodes[pid] = n
}

func (t *Table) dequeue(pid uint16) {
	n, ok := t.nodes[pid]
	if !ok {
		return
	}
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		t.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		t.tail = n.prev
	}
	delete(t.nodes, pid)
}
