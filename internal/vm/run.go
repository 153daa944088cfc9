package vm

import (
	"fmt"
	"os"
	"runtime/debug"
	"strconv"
)

// ErrOperationLimit is returned by RunBounded when a program runs past its
// configured operation ceiling without halting, the safety bound the CLI's
// `run` command uses so a runaway program doesn't spin forever.
var ErrOperationLimit = fmt.Errorf("vm: exceeded configured operation limit")

// RunBounded runs m to completion or until it has executed max operations,
// whichever comes first. max == 0 means unbounded.
func RunBounded(m *Machine, max uint64) error {
	gcPercent := currentGCPercent()
	defer debug.SetGCPercent(gcPercent)

	// Programs are fetched and executed in a tight loop whose allocations
	// are small and short-lived; disabling the collector for the run avoids
	// paying for GC cycles during it.
	debug.SetGCPercent(-1)

	for !m.Halted {
		if max != 0 && m.OperationCounter >= max {
			return ErrOperationLimit
		}
		if err := m.Step(); err != nil {
			return err
		}
	}
	return nil
}

func currentGCPercent() int {
	key, ok := os.LookupEnv("GOGC")
	if !ok {
		return 100
	}
	v, err := strconv.ParseInt(key, 10, 32)
	if err != nil {
		return 100
	}
	return int(v)
}
