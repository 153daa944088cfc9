package debugger

import (
	"testing"

	"cherry/internal/isa"
	"cherry/internal/vm"
)

func newTestDebugger(t *testing.T, program []byte) *Debugger {
	t.Helper()
	m := vm.NewMachine(isa.DefaultTable())
	if err := m.Load(program, 0); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return New(m)
}

func hlt(t *testing.T) byte {
	t.Helper()
	b, err := isa.EncodeOpcode(isa.FamilyHLT, isa.FormOpAdd, 1)
	if err != nil {
		t.Fatalf("EncodeOpcode: %v", err)
	}
	return b
}

func TestStepAdvancesAndReportsHalt(t *testing.T) {
	d := newTestDebugger(t, []byte{hlt(t)})

	if err := d.ExecuteCommand("n"); err != nil {
		t.Fatalf("ExecuteCommand next: %v", err)
	}
	if !d.VM.Halted {
		t.Fatal("expected machine halted after stepping past HLT")
	}
	if d.Output.Len() == 0 {
		t.Fatal("expected a halt message in the output scrollback")
	}
}

func TestBreakpointToggle(t *testing.T) {
	d := newTestDebugger(t, []byte{hlt(t), hlt(t)})

	if err := d.ExecuteCommand("b 0x0001"); err != nil {
		t.Fatalf("set breakpoint: %v", err)
	}
	if !d.Breakpoints[0x0001] {
		t.Fatal("expected breakpoint at 0x0001 to be set")
	}

	if err := d.ExecuteCommand("break 1"); err != nil {
		t.Fatalf("toggle breakpoint: %v", err)
	}
	if d.Breakpoints[0x0001] {
		t.Fatal("expected breakpoint at 0x0001 to be cleared by a second toggle")
	}
}

func TestRunThenTickStopsAtBreakpoint(t *testing.T) {
	nop, err := isa.EncodeOpcode(isa.FamilyMOV, isa.FormOpAdd, 1)
	if err != nil {
		t.Fatalf("EncodeOpcode MOV: %v", err)
	}
	opAdd := isa.OpAdd{Mode: isa.ModeRegReg, Primary: 0, Secondary: 0}.Encode()

	d := newTestDebugger(t, []byte{nop, opAdd, nop, opAdd, hlt(t)})
	d.Breakpoints[2] = true

	if err := d.ExecuteCommand("r"); err != nil {
		t.Fatalf("run: %v", err)
	}
	d.Tick() // executes the first MOV, advancing IP to the breakpoint address
	d.Tick() // observes the breakpoint before executing the second MOV
	if d.VM.IP() != 0x0002 {
		t.Fatalf("expected to stop at the breakpoint address 0x0002, got 0x%04X", d.VM.IP())
	}
	if d.Running {
		t.Fatal("expected Running to clear once a breakpoint is hit")
	}
}

func TestRegisterAndMemoryLinesRenderWithoutError(t *testing.T) {
	d := newTestDebugger(t, []byte{hlt(t)})
	if len(d.RegisterLines()) == 0 {
		t.Fatal("expected at least one register line")
	}
	if len(d.MemoryLines(0, 32)) == 0 {
		t.Fatal("expected at least one memory line")
	}
}

func TestQuitMarksFinished(t *testing.T) {
	d := newTestDebugger(t, []byte{hlt(t)})
	if err := d.ExecuteCommand("q"); err != nil {
		t.Fatalf("quit: %v", err)
	}
	if !d.Finished {
		t.Fatal("expected Finished after quit command")
	}
}
