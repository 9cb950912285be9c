package assemble

import (
	"errors"
	"testing"

	"github.com/rcornwell/corewar/opcode"
)

func TestAssembleSymbolsAndSize(t *testing.T) {
	src := "start: mov r0, #10\n" +
		"loop:  sub r0, #1\n" +
		"       jnz loop\n" +
		"       hlt\n"
	img, err := Assemble(src)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if img.Symbols["start"] != 0 {
		t.Errorf("start = %d, want 0", img.Symbols["start"])
	}
	if img.Symbols["loop"] != opcode.InstructionSize {
		t.Errorf("loop = %d, want %d", img.Symbols["loop"], opcode.InstructionSize)
	}
	if img.Size != 4*opcode.InstructionSize {
		t.Errorf("size = %d, want %d", img.Size, 4*opcode.InstructionSize)
	}
	if len(img.Code) != int(img.Size) {
		t.Errorf("len(Code) = %d, want %d", len(img.Code), img.Size)
	}

	jnzOffset := uint32(2 * opcode.InstructionSize)
	if len(img.Relocations) != 1 {
		t.Fatalf("relocations = %+v, want exactly 1", img.Relocations)
	}
	reloc := img.Relocations[0]
	if reloc.Offset != jnzOffset+2 || reloc.Kind != Absolute {
		t.Errorf("reloc = %+v, want offset %d kind Absolute", reloc, jnzOffset+2)
	}
}

func TestAssembleRegisterOperand(t *testing.T) {
	img, err := Assemble("mov r0, #10\n")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	op, modeA, _, regA, regB := opcode.Decode([opcode.HeaderSize]byte{img.Code[0], img.Code[1]})
	if op != opcode.MOV {
		t.Errorf("op = %v, want MOV", op)
	}
	if !regA || regB {
		t.Errorf("regA=%v regB=%v, want true,false", regA, regB)
	}
	wordA := opcode.GetWord(img.Code[2 : 2+opcode.WordSize])
	if wordA != 0 {
		t.Errorf("register word = %d, want 0 (r0)", wordA)
	}
	if modeA != opcode.Immediate {
		t.Logf("modeA for register operand is %v (ignored by decode)", modeA)
	}
	wordB := opcode.GetWord(img.Code[2+opcode.WordSize : 2+2*opcode.WordSize])
	if wordB != 10 {
		t.Errorf("immediate word = %d, want 10", wordB)
	}
}

func TestAssembleDecExpandsToSub(t *testing.T) {
	decImg, err := Assemble("loop: dec r0\njnz loop\n")
	if err != nil {
		t.Fatalf("assemble dec: %v", err)
	}
	subImg, err := Assemble("loop: sub r0, #1\njnz loop\n")
	if err != nil {
		t.Fatalf("assemble sub: %v", err)
	}
	if string(decImg.Code) != string(subImg.Code) {
		t.Errorf("dec expansion = %x, want identical to sub: %x", decImg.Code, subImg.Code)
	}
}

func TestAssembleDuplicateLabel(t *testing.T) {
	_, err := Assemble("start: nop\nstart: hlt\n")
	if !errors.Is(err, ErrDuplicateLabel) {
		t.Fatalf("err = %v, want ErrDuplicateLabel", err)
	}
}

func TestAssembleUndefinedSymbol(t *testing.T) {
	_, err := Assemble("jmp missing\n")
	if !errors.Is(err, ErrUndefinedSymbol) {
		t.Fatalf("err = %v, want ErrUndefinedSymbol", err)
	}
}

func TestAssembleIdempotent(t *testing.T) {
	src := "start: mov r0, #10\nloop: sub r0, #1\njnz loop\nhlt\n"
	a, err := Assemble(src)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Assemble(src)
	if err != nil {
		t.Fatal(err)
	}
	if string(a.Code) != string(b.Code) {
		t.Error("assembling the same source twice produced different code")
	}
	if a.Size != b.Size {
		t.Error("assembling the same source twice produced different sizes")
	}
}

func TestAssembleEquConstant(t *testing.T) {
	img, err := Assemble("MAXHP equ 100\nmov r0, #MAXHP\n")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if _, ok := img.Symbols["MAXHP"]; ok {
		t.Error("equ constant should not appear in the label symbol table")
	}
	if len(img.Relocations) != 0 {
		t.Errorf("relocations = %+v, want none for a constant operand", img.Relocations)
	}
	word := opcode.GetWord(img.Code[2+opcode.WordSize : 2+2*opcode.WordSize])
	if word != 100 {
		t.Errorf("immediate = %d, want 100", word)
	}
}

func TestAssembleMetadataDirectives(t *testing.T) {
	src := ".name \"Imp\"\n.author \"Alice\"\n.version \"1\"\n.strategy \"rush\"\nnop\n"
	img, err := Assemble(src)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if img.Name != "Imp" || img.Author != "Alice" || img.Version != "1" || img.Strategy != "rush" {
		t.Errorf("metadata = %+v", img)
	}
	if img.Size != opcode.InstructionSize {
		t.Errorf("size = %d, want %d (metadata directives do not advance)", img.Size, opcode.InstructionSize)
	}
}

func TestAssembleDbDwSpaceAlign(t *testing.T) {
	src := "db 1, 2, 3\ndw 0x100\n.space 4\n.align 8\nnop\n"
	img, err := Assemble(src)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	// db: 3 bytes, dw: 2 bytes, space: 4 bytes -> offset 9 before align.
	// align 8 rounds 9 up to 16, then nop adds InstructionSize.
	want := uint32(16) + opcode.InstructionSize
	if img.Size != want {
		t.Errorf("size = %d, want %d", img.Size, want)
	}
	if img.Code[0] != 1 || img.Code[1] != 2 || img.Code[2] != 3 {
		t.Errorf("db bytes = %v, want [1 2 3]", img.Code[:3])
	}
	if opcode.GetWord(img.Code[3:5]) != 0x100 {
		t.Errorf("dw word = %#x, want 0x100", opcode.GetWord(img.Code[3:5]))
	}
}

func TestAssembleIndexedOperandIsPCRelative(t *testing.T) {
	src := "loop: nop\njmp @loop\n"
	img, err := Assemble(src)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if len(img.Relocations) != 1 || img.Relocations[0].Kind != PCRelative {
		t.Fatalf("relocations = %+v, want one PCRelative entry", img.Relocations)
	}
}
