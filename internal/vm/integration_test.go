package vm

import (
	"bytes"
	"os"
	"testing"

	"cherry/internal/asm"
	"cherry/internal/isa"
)

// TestAssembleAndRunSampleProgram exercises the assembler and the VM
// together against testdata/hello.casm, the sample program the toolchain's
// own tests draw on.
func TestAssembleAndRunSampleProgram(t *testing.T) {
	src, err := os.ReadFile("../../testdata/hello.casm")
	if err != nil {
		t.Fatalf("reading sample program: %v", err)
	}

	table := isa.DefaultTable()
	dest := t.TempDir() + "/hello.bin"
	a := asm.NewAssembler(table)
	if err := a.Assemble(string(src), dest, asm.Options{}); err != nil {
		t.Fatalf("assemble: %v", err)
	}

	program, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading assembled bytecode: %v", err)
	}

	m := NewMachine(table)
	var out bytes.Buffer
	m.Stdout = &out
	if err := m.Load(program, 0); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := RunBounded(m, 1000); err != nil {
		t.Fatalf("RunBounded: %v", err)
	}
	if !m.Halted {
		t.Fatal("expected machine halted after running the sample program")
	}
	if out.String() != "HI" {
		t.Fatalf("expected stdout %q, got %q", "HI", out.String())
	}
}
