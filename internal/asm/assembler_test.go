package asm

import (
	"os"
	"path/filepath"
	"testing"

	"cherry/internal/isa"
)

func assemble(t *testing.T, src string) []byte {
	t.Helper()
	dest := filepath.Join(t.TempDir(), "out.bin")
	a := NewAssembler(isa.DefaultTable())
	if err := a.Assemble(src, dest, Options{}); err != nil {
		t.Fatalf("assemble failed: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading assembled output: %v", err)
	}
	return data
}

func TestMovImmediateToRegisterByte(t *testing.T) {
	data := assemble(t, "MOV 2Ah, GA\n")

	wantOp, _ := isa.EncodeOpcode(isa.FamilyMOV, isa.FormOpAdd, 1)
	wantOpAdd := isa.OpAdd{Mode: isa.ModeSpecial, Primary: isa.SpecialLiteral, Secondary: 0}.Encode()

	if len(data) != 3 {
		t.Fatalf("expected 3 bytes, got %d: % X", len(data), data)
	}
	if data[0] != wantOp || data[1] != wantOpAdd || data[2] != 0x2A {
		t.Fatalf("unexpected encoding: % X", data)
	}
}

func TestCallToLabelBackpatches(t *testing.T) {
	src := "start: MOV 1:1, GA\n" +
		"CALL routine\n" +
		"HLT\n" +
		"routine: MOV 2:1, GA\n" +
		"RET\n"
	data := assemble(t, src)

	// CALL's 2-byte address placeholder begins 2 bytes into the CALL
	// instruction (opcode + op-add byte); the CALL instruction itself
	// starts right after the first MOV (3 bytes: opcode+opadd+literal).
	callAddrOffset := 3 + 2
	sub := int(data[callAddrOffset]) | int(data[callAddrOffset+1])<<8

	// "routine:" labels the instruction right after CALL;HLT.
	callLen := 1 + 1 + 2 // opcode, op-add, 2-byte address
	hltLen := 1
	wantSub := 3 + callLen + hltLen
	if sub != wantSub {
		t.Fatalf("expected routine label to resolve to offset %d, got %d", wantSub, sub)
	}
}

func TestDuplicateLabelRejectedAndLeavesNoOutput(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.bin")
	a := NewAssembler(isa.DefaultTable())
	src := "dup: HLT\ndup: HLT\n"
	err := a.Assemble(src, dest, Options{})
	if err == nil {
		t.Fatal("expected duplicate label error")
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Fatal("expected no output file after a failed assembly")
	}
	entries, _ := os.ReadDir(filepath.Dir(dest))
	for _, e := range entries {
		if e.Name() != filepath.Base(dest) {
			t.Fatalf("stray temp file left behind: %s", e.Name())
		}
	}
}

func TestReservedLabelRejected(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.bin")
	a := NewAssembler(isa.DefaultTable())
	err := a.Assemble("ga: HLT\n", dest, Options{})
	if err == nil {
		t.Fatal("expected reserved-label error for a label shadowing register GA")
	}
}

func TestUnknownMnemonicRejected(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.bin")
	a := NewAssembler(isa.DefaultTable())
	err := a.Assemble("FROB GA\n", dest, Options{})
	if err == nil {
		t.Fatal("expected unknown mnemonic error")
	}
}

func TestPushPopRoundTripEncodesBothRegisters(t *testing.T) {
	data := assemble(t, "PUSH-W GA\nPOP-W GB\n")
	if len(data) != 4 {
		t.Fatalf("expected 4 bytes (2 instructions x 2 bytes), got %d: % X", len(data), data)
	}
}

func TestStringModeProducesHexListing(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.hex")
	a := NewAssembler(isa.DefaultTable())
	if err := a.Assemble("MOV 2Ah, GA\n", dest, Options{StringMode: true}); err != nil {
		t.Fatalf("assemble: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading listing: %v", err)
	}
	got := string(data)
	if got != "" && got[len(got)-1] == '\n' {
		got = got[:len(got)-1]
	}
	if len(got) != len("XX XX XX") {
		t.Fatalf("unexpected listing format: %q", got)
	}
}

func TestLabelDefinedBeforeOrAfterUseResolvesToItsOffset(t *testing.T) {
	before := assemble(t, "target: HLT\nJMP target\n")
	after := assemble(t, "JMP target\ntarget: HLT\n")

	// The two programs hold the same HLT and JMP in opposite order (HLT at
	// 0 then JMP to 0, vs JMP to 3 then HLT at 3). The JMP must encode the
	// same way whichever side of the use its label is defined on, and its
	// patched 2-byte target must be the label's own offset.
	if len(before) != len(after) {
		t.Fatalf("expected equal-length output, got %d vs %d", len(before), len(after))
	}
	if len(before) != 4 {
		t.Fatalf("expected 4 bytes (HLT + 3-byte JMP), got %d: % X", len(before), before)
	}
	if before[1] != after[0] {
		t.Fatalf("expected the same JMP opcode, got 0x%02X vs 0x%02X", before[1], after[0])
	}
	if got := int(before[2]) | int(before[3])<<8; got != 0 {
		t.Fatalf("label defined before use: expected target 0, got %d", got)
	}
	if got := int(after[1]) | int(after[2])<<8; got != 3 {
		t.Fatalf("label defined after use: expected target 3, got %d", got)
	}
}
