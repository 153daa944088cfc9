package isa

import (
	"testing"

	"cherry/internal/bitvec"
)

func TestRegisterWriteToParentPropagatesToChild(t *testing.T) {
	f := DefaultTable().NewFile()

	if err := f.Write("GA", bitvec.UintWidth(0x04030201, 4)); err != nil {
		t.Fatalf("write GA: %v", err)
	}
	low, err := f.Read("GAL")
	if err != nil {
		t.Fatalf("read GAL: %v", err)
	}
	if low[0] != bitvec.Byte(0x01) {
		t.Fatalf("expected GAL to mirror GA's low byte 0x01, got 0x%02X", low[0])
	}
}

func TestRegisterWriteToChildPropagatesUp(t *testing.T) {
	f := DefaultTable().NewFile()

	if err := f.Write("GA", bitvec.UintWidth(0x04030201, 4)); err != nil {
		t.Fatalf("write GA: %v", err)
	}
	if err := f.Write("GAL", bitvec.UintWidth(0xFF, 1)); err != nil {
		t.Fatalf("write GAL: %v", err)
	}
	wide, err := f.Read("GA")
	if err != nil {
		t.Fatalf("read GA: %v", err)
	}
	want := bitvec.UintWidth(0x040302FF, 4)
	if !wide.Equal(want) {
		t.Fatalf("expected GA=%s after child write, got %s", want.Hex(), wide.Hex())
	}
}

func TestByOpAddSharesCodeAcrossWidths(t *testing.T) {
	f := DefaultTable().NewFile()

	wide, err := f.ByOpAdd(2, 4)
	if err != nil {
		t.Fatalf("op-add width 4: %v", err)
	}
	if wide.Spec.Name != "GC" {
		t.Fatalf("expected op-add code 2 width 4 to resolve to GC, got %s", wide.Spec.Name)
	}

	narrow, err := f.ByOpAdd(2, 1)
	if err != nil {
		t.Fatalf("op-add width 1: %v", err)
	}
	if narrow.Spec.Name != "GCL" {
		t.Fatalf("expected op-add code 2 width 1 to resolve to GCL, got %s", narrow.Spec.Name)
	}
}

func TestFlagsIndividuallyAddressable(t *testing.T) {
	f := DefaultTable().NewFile()

	if err := f.SetFlag(FlagZ, true); err != nil {
		t.Fatalf("set Z: %v", err)
	}
	if err := f.SetFlag(FlagC, true); err != nil {
		t.Fatalf("set C: %v", err)
	}
	z, _ := f.Flag(FlagZ)
	c, _ := f.Flag(FlagC)
	n, _ := f.Flag(FlagN)
	if !z || !c || n {
		t.Fatalf("unexpected flag state z=%v c=%v n=%v", z, c, n)
	}

	if err := f.SetFlag(FlagZ, false); err != nil {
		t.Fatalf("clear Z: %v", err)
	}
	z, _ = f.Flag(FlagZ)
	c, _ = f.Flag(FlagC)
	if z || !c {
		t.Fatalf("clearing Z should not disturb C: z=%v c=%v", z, c)
	}
}

func TestWriteWrongWidthErrors(t *testing.T) {
	f := DefaultTable().NewFile()
	if err := f.Write("GA", bitvec.NewByteArray(1)); err == nil {
		t.Fatal("expected width-mismatch error writing 1 byte to a 4-byte register")
	}
}
