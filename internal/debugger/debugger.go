// Package debugger implements cherry's interactive stepper: a small
// breakpoint/stepping core (this file) driven through a single-pane
// tcell/tview terminal UI (tui.go).
package debugger

import (
	"fmt"
	"strconv"
	"strings"

	"cherry/internal/isa"
	"cherry/internal/vm"
)

// registerOrder is the fixed display order for the register panel.
var registerOrder = []string{"GA", "GB", "GC", "GD", "GE", "IP", "SP", "RI", "RS", "FL"}

// Debugger holds the stepping state around a *vm.Machine: breakpoints,
// whether the machine is free-running, and the scrollback of commands and
// their output, in the shape of the teacher's own debug-mode REPL state
// (waitForInput / breakAtLines / lastBreakLine in vm/run.go) generalized
// from line numbers to byte-offset addresses.
type Debugger struct {
	VM *vm.Machine

	Breakpoints map[uint16]bool
	Running     bool

	History     []string
	LastCommand string
	Output      strings.Builder

	Finished bool
	Err      error
}

// New builds a Debugger around an already-loaded machine.
func New(m *vm.Machine) *Debugger {
	return &Debugger{
		VM:          m,
		Breakpoints: make(map[uint16]bool),
	}
}

// ExecuteCommand parses and runs one command line, in the teacher's
// n/next, r/run, b/break vocabulary plus c/continue and q/quit.
func (d *Debugger) ExecuteCommand(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		line = d.LastCommand
	}
	if line == "" {
		return nil
	}
	d.History = append(d.History, line)
	d.LastCommand = line

	fields := strings.Fields(line)
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {
	case "n", "next":
		return d.step()
	case "r", "run":
		d.Running = true
		return nil
	case "c", "continue":
		d.Running = true
		return nil
	case "b", "break":
		return d.toggleBreak(args)
	case "q", "quit":
		d.Finished = true
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// Tick advances the machine by one instruction when Running is set and no
// breakpoint has just been hit, mirroring the teacher's free-run loop that
// checks breakAtLines before every step rather than only between input
// prompts.
func (d *Debugger) Tick() {
	if !d.Running || d.Finished || d.VM.Halted {
		return
	}
	if d.Breakpoints[d.VM.IP()] {
		d.Running = false
		fmt.Fprintf(&d.Output, "breakpoint at 0x%04X\n", d.VM.IP())
		return
	}
	d.step()
}

func (d *Debugger) step() error {
	if d.VM.Halted {
		d.Finished = true
		return nil
	}
	if err := d.VM.Step(); err != nil {
		d.Err = err
		d.Running = false
		fmt.Fprintf(&d.Output, "%v\n", err)
		if err == vm.ErrProgramFinished {
			d.Finished = true
		}
		return err
	}
	if d.VM.Halted {
		d.Running = false
		fmt.Fprintf(&d.Output, "halted after %d operation(s)\n", d.VM.OperationCounter)
	}
	return nil
}

func (d *Debugger) toggleBreak(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: break <addr>")
	}
	addr, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	if d.Breakpoints[addr] {
		delete(d.Breakpoints, addr)
		fmt.Fprintf(&d.Output, "removed breakpoint at 0x%04X\n", addr)
	} else {
		d.Breakpoints[addr] = true
		fmt.Fprintf(&d.Output, "set breakpoint at 0x%04X\n", addr)
	}
	return nil
}

func parseAddress(s string) (uint16, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return uint16(v), nil
}

// RegisterLines renders the register/flag panel's text, one register per
// line, in registerOrder.
func (d *Debugger) RegisterLines() []string {
	lines := make([]string, 0, len(registerOrder)+1)
	for _, name := range registerOrder {
		reg, err := d.VM.File.Get(name)
		if err != nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("%-3s %s", name, reg.Value.Hex()))
	}
	z, _ := d.VM.File.Flag(isa.FlagZ)
	c, _ := d.VM.File.Flag(isa.FlagC)
	n, _ := d.VM.File.Flag(isa.FlagN)
	h, _ := d.VM.File.Flag(isa.FlagH)
	lines = append(lines, fmt.Sprintf("Z=%s C=%s N=%s H=%s", bit(z), bit(c), bit(n), bit(h)))
	return lines
}

func bit(on bool) string {
	if on {
		return "1"
	}
	return "0"
}

// MemoryLines renders a hex dump of count bytes starting at addr, 16 bytes
// per line, in the uppercase hex convention spec §6 uses for the assembler's
// own listing output.
func (d *Debugger) MemoryLines(addr uint16, count int) []string {
	var lines []string
	data := d.VM.Memory.Read(addr, count).Bytes()
	for i := 0; i < len(data); i += 16 {
		end := i + 16
		if end > len(data) {
			end = len(data)
		}
		row := data[i:end]
		lines = append(lines, fmt.Sprintf("%04X  %s", int(addr)+i, hexRow(row)))
	}
	return lines
}

func hexRow(row []byte) string {
	var b strings.Builder
	for i, v := range row {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", v)
	}
	return b.String()
}
