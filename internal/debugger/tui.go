package debugger

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"cherry/internal/config"
	"cherry/internal/vm"
)

// TUI is the single-pane terminal interface around a Debugger: a register
// panel, a memory-peek panel, an output scrollback, and a command input.
// Deliberately one tview.Flex rather than a multi-page tview.Pages layout —
// the Cherry ISA has far fewer state dimensions to show than a full CPU
// emulator's debugger (no disassembly-vs-source paging, no watch
// expressions).
type TUI struct {
	Debugger *Debugger
	App      *tview.Application

	RegisterView *tview.TextView
	MemoryView   *tview.TextView
	OutputView   *tview.TextView
	CommandInput *tview.InputField

	MemoryAddress uint16
}

// NewTUI builds a TUI bound to d, with every panel freshly rendered from the
// machine's current state.
func NewTUI(d *Debugger) *TUI {
	t := &TUI{
		Debugger: d,
		App:      tview.NewApplication(),
	}
	t.initViews()
	t.Refresh()
	return t
}

func (t *TUI) initViews() {
	t.RegisterView = tview.NewTextView().SetDynamicColors(true)
	t.RegisterView.SetBorder(true).SetTitle(" Registers ")

	t.MemoryView = tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	t.MemoryView.SetBorder(true).SetTitle(" Memory ")

	t.OutputView = tview.NewTextView().SetDynamicColors(true).SetScrollable(true)
	t.OutputView.SetBorder(true).SetTitle(" Output ")

	t.CommandInput = tview.NewInputField().SetLabel("> ")
	t.CommandInput.SetBorder(true).SetTitle(" Command (n/next, r/run, c/continue, b <addr>, q/quit) ")
	t.CommandInput.SetDoneFunc(t.handleInput)
}

func (t *TUI) layout() tview.Primitive {
	top := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(t.RegisterView, 0, 1, false).
		AddItem(t.MemoryView, 0, 2, false)

	return tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(top, 0, 3, false).
		AddItem(t.OutputView, 0, 2, false).
		AddItem(t.CommandInput, 3, 0, true)
}

func (t *TUI) handleInput(key tcell.Key) {
	if key != tcell.KeyEnter {
		return
	}
	cmd := t.CommandInput.GetText()
	t.CommandInput.SetText("")
	if err := t.Debugger.ExecuteCommand(cmd); err != nil {
		fmt.Fprintf(&t.Debugger.Output, "error: %v\n", err)
	}
	t.Refresh()
	if t.Debugger.Finished {
		t.App.Stop()
	}
}

// Refresh repaints every panel from the current machine/debugger state.
func (t *TUI) Refresh() {
	t.RegisterView.SetText(fmt.Sprintf("IP=0x%04X\n%s", t.Debugger.VM.IP(), strings.Join(t.Debugger.RegisterLines(), "\n")))
	t.MemoryView.SetText(strings.Join(t.Debugger.MemoryLines(t.MemoryAddress, 128), "\n"))
	t.OutputView.SetText(t.Debugger.Output.String())
	t.OutputView.ScrollToEnd()
}

// runFreeRun drives Tick on a ticker while the debugger is in "running" mode,
// so the App.Run() event loop stays responsive to keyboard input between
// steps instead of blocking inside a tight Go loop.
func (t *TUI) runFreeRun() {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		if t.Debugger.Finished {
			t.App.QueueUpdateDraw(t.App.Stop)
			return
		}
		if !t.Debugger.Running {
			continue
		}
		t.Debugger.Tick()
		t.App.QueueUpdateDraw(t.Refresh)
	}
}

// Run starts the tview event loop and blocks until the user quits or the
// program halts.
func (t *TUI) Run() error {
	go t.runFreeRun()
	return t.App.SetRoot(t.layout(), true).SetFocus(t.CommandInput).Run()
}

// Run is the `cherry debug` subcommand's entrypoint: build a Debugger and
// TUI around an already-loaded machine and drive the interactive stepper
// until the user quits.
func Run(m *vm.Machine, cfg *config.Config) error {
	d := New(m)
	return NewTUI(d).Run()
}
