// Package execute implements the battle core's execution unit
// (spec.md §4.5): fetch, decode, operand resolution, the ALU, branch
// and call/return handling, process forking, and flag updates. Step
// is a function from (memory, process) to an updated process plus an
// event; a failure of any kind inside an instruction terminates only
// that process and never returns a Go error to the caller.
package execute

import (
	"errors"
	"fmt"

	"github.com/rcornwell/corewar/decode"
	"github.com/rcornwell/corewar/event"
	"github.com/rcornwell/corewar/memory"
	"github.com/rcornwell/corewar/opcode"
	"github.com/rcornwell/corewar/process"
	"github.com/rcornwell/corewar/register"
)

// kind classifies a resolved operand: a register, an immediate
// value, or a memory word address (already dereferenced once, if the
// source mode was Indirect).
type kind int

const (
	regOperand kind = iota
	immOperand
	memOperand
)

type operand struct {
	kind   kind
	regIdx int
	value  uint16
	addr   uint32
}

// resolveOperand turns a decoded (mode, word, isReg) triple into an
// addressable operand, performing the single memory dereference that
// Indirect mode requires (decode.ResolveAddress deliberately stops
// one step short of it).
func resolveOperand(p *process.Process, mem *memory.Memory, mode opcode.Mode, word uint16, isReg bool, pc uint32) (operand, error) {
	if isReg {
		idx := int(word)
		if idx < 0 || idx >= register.Count {
			return operand{}, fmt.Errorf("%w: register index %d", ErrInvalidOperand, idx)
		}
		return operand{kind: regOperand, regIdx: idx}, nil
	}
	switch mode {
	case opcode.Immediate:
		return operand{kind: immOperand, value: word}, nil
	case opcode.Direct:
		addr, _ := decode.ResolveAddress(opcode.Direct, word, pc, mem.Size())
		return operand{kind: memOperand, addr: addr}, nil
	case opcode.Indirect:
		ptr, _ := decode.ResolveAddress(opcode.Indirect, word, pc, mem.Size())
		final := wrap(uint32(readWord(mem, ptr)), mem.Size())
		return operand{kind: memOperand, addr: final}, nil
	case opcode.Indexed:
		addr, _ := decode.ResolveAddress(opcode.Indexed, word, pc, mem.Size())
		return operand{kind: memOperand, addr: addr}, nil
	default:
		return operand{}, fmt.Errorf("%w: addressing mode %d", ErrInvalidOperand, mode)
	}
}

func (o operand) read(p *process.Process, mem *memory.Memory) uint16 {
	switch o.kind {
	case regOperand:
		return p.Regs.Regs[o.regIdx]
	case immOperand:
		return o.value
	default:
		return readWord(mem, o.addr)
	}
}

func (o operand) write(p *process.Process, mem *memory.Memory, v uint16, w *stepWrites) error {
	switch o.kind {
	case regOperand:
		p.Regs.Regs[o.regIdx] = v
		return nil
	case immOperand:
		return fmt.Errorf("%w: cannot write to an immediate operand", ErrInvalidOperand)
	default:
		return writeWord(mem, o.addr, v, w)
	}
}

// asAddress interprets the operand as a jump/fork target rather than
// a data value: a register holds the target address, an immediate
// word is the target address itself, and a memory operand is already
// the resolved (and, for Indirect, dereferenced) address.
func (o operand) asAddress(p *process.Process, mem *memory.Memory) uint32 {
	switch o.kind {
	case regOperand:
		return wrap(uint32(p.Regs.Regs[o.regIdx]), mem.Size())
	case immOperand:
		return wrap(uint32(o.value), mem.Size())
	default:
		return o.addr
	}
}

func wrap(addr, size uint32) uint32 {
	if size == 0 {
		return 0
	}
	return addr % size
}

func readWord(mem *memory.Memory, addr uint32) uint16 {
	lo := mem.Read(int64(addr))
	hi := mem.Read(int64(addr) + 1)
	return uint16(lo) | uint16(hi)<<8
}

func writeWord(mem *memory.Memory, addr uint32, v uint16, w *stepWrites) error {
	if err := writeByte(mem, addr, byte(v), w); err != nil {
		return err
	}
	return writeByte(mem, addr+1, byte(v>>8), w)
}

func writeByte(mem *memory.Memory, addr uint32, v byte, w *stepWrites) error {
	if err := mem.Write(int64(addr), v); err != nil {
		w.violation(addr, err)
		return err
	}
	w.success(addr, v)
	return nil
}

// stepWrites accumulates the memory writes one Step makes and reports
// each one to the stream as it happens (spec.md §4.7 step 3 and §6's
// requirement that MemoryWrite/AccessViolation be observable).
type stepWrites struct {
	stream *event.Stream
	turn   uint64
	cycle  uint32
	pid    uint16
	owner  string
	writes []event.Write
}

func (w *stepWrites) success(addr uint32, v byte) {
	w.writes = append(w.writes, event.Write{Address: addr, Value: v})
	w.stream.Append(event.Event{
		Kind: event.MemoryWrite, Turn: w.turn, Cycle: w.cycle,
		ProcessID: w.pid, OwnerBot: w.owner, Address: addr, Value: v,
	})
}

func (w *stepWrites) violation(addr uint32, err error) {
	w.stream.Append(event.Event{
		Kind: event.AccessViolation, Turn: w.turn, Cycle: w.cycle,
		ProcessID: w.pid, OwnerBot: w.owner, Address: addr, Reason: writeFailureReason(err),
	})
}

// fetch reads one instruction's header and operand words through
// Memory.Read only, preserving the "no direct byte access" invariant
// spec.md §4.1 requires of every higher-level component, then hands
// the raw bytes to decode.Fetch for the actual decoding (spec.md
// §4.4's decoder is the single place header and operand layout are
// interpreted).
func fetch(mem *memory.Memory, pc uint32) decode.Instruction {
	var raw [opcode.InstructionSize]byte
	for i := range raw {
		raw[i] = mem.Read(int64(pc) + int64(i))
	}
	return decode.Fetch(raw[:], 0)
}

// Step executes one instruction for p against mem, forking new
// processes into tbl when SPL is encountered, and appending the
// resulting events to stream at the given (turn, cycle) coordinate.
// It never returns a Go error: runtime failures terminate only p.
func Step(mem *memory.Memory, tbl *process.Table, p *process.Process, stream *event.Stream, turn uint64, cycle uint32) {
	mem.SetCurrentProcess(p.ID)
	pcBefore := p.PC
	f := fetch(mem, pcBefore)
	nextPC := wrap(pcBefore+opcode.InstructionSize, mem.Size())
	writes := &stepWrites{stream: stream, turn: turn, cycle: cycle, pid: p.ID, owner: p.OwnerBot}

	terminated := false
	reason := ""

	fail := func(r string) {
		terminated = true
		reason = r
	}

	dst := func() (operand, bool) {
		o, err := resolveOperand(p, mem, f.ModeA, f.WordA, f.RegA, pcBefore)
		if err != nil {
			fail("invalid-operand")
			return operand{}, false
		}
		return o, true
	}
	src := func() (operand, bool) {
		o, err := resolveOperand(p, mem, f.ModeB, f.WordB, f.RegB, pcBefore)
		if err != nil {
			fail("invalid-operand")
			return operand{}, false
		}
		return o, true
	}
	target := func() (uint32, bool) {
		o, err := resolveOperand(p, mem, f.ModeA, f.WordA, f.RegA, pcBefore)
		if err != nil {
			fail("invalid-operand")
			return 0, false
		}
		return o.asAddress(p, mem), true
	}

	switch f.Op {
	case opcode.NOP:
		// no effect

	case opcode.MOV:
		d, ok := dst()
		if !ok {
			break
		}
		s, ok := src()
		if !ok {
			break
		}
		v := s.read(p, mem)
		if err := d.write(p, mem, v, writes); err != nil {
			fail(writeFailureReason(err))
		}

	case opcode.ADD, opcode.SUB:
		d, ok := dst()
		if !ok {
			break
		}
		s, ok := src()
		if !ok {
			break
		}
		a, b := d.read(p, mem), s.read(p, mem)
		var result uint16
		if f.Op == opcode.ADD {
			result = a + b
			p.Regs.Flags = addFlags(a, b, result)
		} else {
			result = a - b
			p.Regs.Flags = subFlags(a, b, result)
		}
		if err := d.write(p, mem, result, writes); err != nil {
			fail(writeFailureReason(err))
		}

	case opcode.MUL:
		d, ok := dst()
		if !ok {
			break
		}
		s, ok := src()
		if !ok {
			break
		}
		a, b := d.read(p, mem), s.read(p, mem)
		result := a * b
		p.Regs.Flags = zsFlags(result)
		if err := d.write(p, mem, result, writes); err != nil {
			fail(writeFailureReason(err))
		}

	case opcode.DIV:
		d, ok := dst()
		if !ok {
			break
		}
		s, ok := src()
		if !ok {
			break
		}
		a, b := d.read(p, mem), s.read(p, mem)
		if b == 0 {
			fail("divide-by-zero")
			break
		}
		result := a / b
		p.Regs.Flags = zsFlags(result)
		if err := d.write(p, mem, result, writes); err != nil {
			fail(writeFailureReason(err))
		}

	case opcode.AND, opcode.OR, opcode.XOR:
		d, ok := dst()
		if !ok {
			break
		}
		s, ok := src()
		if !ok {
			break
		}
		a, b := d.read(p, mem), s.read(p, mem)
		var result uint16
		switch f.Op {
		case opcode.AND:
			result = a & b
		case opcode.OR:
			result = a | b
		case opcode.XOR:
			result = a ^ b
		}
		p.Regs.Flags = zsFlags(result)
		if err := d.write(p, mem, result, writes); err != nil {
			fail(writeFailureReason(err))
		}

	case opcode.NOT:
		d, ok := dst()
		if !ok {
			break
		}
		result := ^d.read(p, mem)
		p.Regs.Flags = zsFlags(result)
		if err := d.write(p, mem, result, writes); err != nil {
			fail(writeFailureReason(err))
		}

	case opcode.CMP:
		a, ok := dst()
		if !ok {
			break
		}
		b, ok := src()
		if !ok {
			break
		}
		av, bv := a.read(p, mem), b.read(p, mem)
		p.Regs.Flags = subFlags(av, bv, av-bv)

	case opcode.JMP:
		if t, ok := target(); ok {
			nextPC = t
		}

	case opcode.JZ:
		if t, ok := target(); ok && p.Regs.Flags.Zero {
			nextPC = t
		}

	case opcode.JNZ:
		if t, ok := target(); ok && !p.Regs.Flags.Zero {
			nextPC = t
		}

	case opcode.JL:
		if t, ok := target(); ok && p.Regs.Flags.Sign != p.Regs.Flags.Overflow {
			nextPC = t
		}

	case opcode.JG:
		if t, ok := target(); ok && !p.Regs.Flags.Zero && p.Regs.Flags.Sign == p.Regs.Flags.Overflow {
			nextPC = t
		}

	case opcode.CALL:
		t, ok := target()
		if !ok {
			break
		}
		if err := p.PushCall(nextPC); err != nil {
			fail("stack-overflow")
			break
		}
		nextPC = t

	case opcode.RET:
		addr, err := p.PopCall()
		if err != nil {
			fail("stack-underflow")
			break
		}
		nextPC = wrap(addr, mem.Size())

	case opcode.SPL:
		t, ok := target()
		if !ok {
			break
		}
		child := tbl.Fork(p, t)
		stream.Append(event.Event{
			Kind: event.ProcessCreated, Turn: turn, Cycle: cycle,
			ProcessID: child.ID, OwnerBot: child.OwnerBot, PCAfter: child.PC,
		})

	case opcode.HLT:
		fail("halt")

	case opcode.DAT:
		fail("dat")

	default:
		fail("invalid-opcode")
	}

	ev := event.Event{
		Kind: event.InstructionExecuted, Turn: turn, Cycle: cycle,
		ProcessID: p.ID, OwnerBot: p.OwnerBot,
		PCBefore: pcBefore, Instruction: f.Op.String(),
		Flags: event.Flags{
			Zero: p.Regs.Flags.Zero, Sign: p.Regs.Flags.Sign,
			Overflow: p.Regs.Flags.Overflow, Carry: p.Regs.Flags.Carry,
		},
		Writes: writes.writes,
	}
	if terminated {
		tbl.Terminate(p.ID)
		ev.PCAfter = pcBefore
		stream.Append(ev)
		stream.Append(event.Event{
			Kind: event.ProcessTerminated, Turn: turn, Cycle: cycle,
			ProcessID: p.ID, OwnerBot: p.OwnerBot, Reason: reason,
		})
		return
	}
	p.CyclesUsed++
	p.PC = nextPC
	ev.PCAfter = nextPC
	stream.Append(ev)
}

func writeFailureReason(err error) string {
	if errors.Is(err, memory.ErrProtection) {
		return "protection"
	}
	return "invalid-operand"
}

func addFlags(a, b, result uint16) process.Flags {
	signA, signB, signR := a&0x8000 != 0, b&0x8000 != 0, result&0x8000 != 0
	return process.Flags{
		Zero:     result == 0,
		Sign:     signR,
		Carry:    uint32(a)+uint32(b) > 0xFFFF,
		Overflow: signA == signB && signR != signA,
	}
}

func subFlags(a, b, result uint16) process.Flags {
	signA, signB, signR := a&0x8000 != 0, b&0x8000 != 0, result&0x8000 != 0
	return process.Flags{
		Zero:     result == 0,
		Sign:     signR,
		Carry:    a < b,
		Overflow: signA != signB && signR != signA,
	}
}

func zsFlags(result uint16) process.Flags {
	return process.Flags{
		Zero: result == 0,
		Sign: result&0x8000 != 0,
	}
}
