// Package vm implements the Cherry fetch-decode-execute loop: a register
// file and a 64 KiB memory image driven by the same opcode tables the
// assembler encodes against, so that what the assembler packs into bytes and
// what the VM unpacks out of them can never drift apart.
package vm

import (
	"fmt"
	"io"
	"os"

	"cherry/internal/bitvec"
	"cherry/internal/isa"
)

// Machine holds everything the ISA says a running program touches: the
// register file (with its parent/child propagation), the flat memory image,
// the operation counter, and the halted flag. Per Design Notes §9, neither
// the register file nor the memory image is shared with anything else; a
// Machine owns both exclusively for its whole lifetime.
type Machine struct {
	File   *isa.File
	Memory *isa.Memory
	Table  *isa.Table

	OperationCounter uint64
	Halted           bool

	Stdout io.Writer
}

// NewMachine builds a fresh machine from the given ISA table: a zeroed
// register file, a zeroed 64 KiB memory image, and an operation counter and
// halted flag both reset to their initial state.
func NewMachine(table *isa.Table) *Machine {
	return &Machine{
		File:   table.NewFile(),
		Memory: isa.NewMemory(),
		Table:  table,
		Stdout: os.Stdout,
	}
}

// Load copies program into memory starting at address 0, in 4 KiB pages, and
// leaves IP at the given start address, per spec §4.2's Load step.
func (m *Machine) Load(program []byte, start uint16) error {
	m.Memory.LoadPages(program)
	return m.File.Write("IP", bitvec.UintWidth(uint64(start), 2))
}

// IP returns the machine's current instruction pointer.
func (m *Machine) IP() uint16 {
	ip, err := m.ip()
	if err != nil {
		panic(err) // IP is a built-in register; this can only fail on programmer error
	}
	return ip
}

func (m *Machine) ip() (uint16, error) {
	v, err := m.File.Read("IP")
	if err != nil {
		return 0, err
	}
	u, err := v.Uint64()
	if err != nil {
		return 0, err
	}
	return uint16(u), nil
}

func (m *Machine) setIP(addr uint16) error {
	return m.File.Write("IP", bitvec.UintWidth(uint64(addr), 2))
}

func (m *Machine) flag(bit uint) bool {
	on, err := m.File.Flag(bit)
	if err != nil {
		panic(err) // FL is a built-in register; this can only fail on programmer error
	}
	return on
}

func (m *Machine) setFlag(bit uint, on bool) {
	if err := m.File.SetFlag(bit, on); err != nil {
		panic(err)
	}
}

func addressFromBytes(b []byte) uint16 {
	v, _ := bitvec.FromBytes(b).Uint64() // 2 bytes always fits
	return uint16(v)
}

// indirectAddress resolves an op-add register code to the 2-byte address it
// holds, always reading the register's 4-byte parent form: the pointer
// itself is never addressed at byte width, matching the reference machine's
// use of a register's full value wherever it names a memory location.
func (m *Machine) indirectAddress(code int) (uint16, error) {
	reg, err := m.File.ByOpAdd(code, 4)
	if err != nil {
		return 0, err
	}
	v, err := reg.Value.Uint64()
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}

// readPrimary resolves the primary operand of an op-add byte: a register, an
// indirect memory location addressed by a register, or (when Mode is
// special) null, a trailing literal, or a trailing absolute address.
func (m *Machine) readPrimary(in isa.Instruction, width int) (bitvec.ByteArray, error) {
	switch in.OpAdd.Mode {
	case isa.ModeRegReg, isa.ModeIndirectSecondary:
		reg, err := m.File.ByOpAdd(in.OpAdd.Primary, width)
		if err != nil {
			return nil, err
		}
		return reg.Value, nil
	case isa.ModeIndirectPrimary:
		addr, err := m.indirectAddress(in.OpAdd.Primary)
		if err != nil {
			return nil, err
		}
		return m.Memory.Read(addr, width), nil
	case isa.ModeSpecial:
		switch in.OpAdd.Primary {
		case isa.SpecialNull:
			return bitvec.NewByteArray(width), nil
		case isa.SpecialLiteral:
			return bitvec.FromBytes(in.Literal), nil
		case isa.SpecialAddress:
			return m.Memory.Read(addressFromBytes(in.Address), width), nil
		}
		return nil, fmt.Errorf("%w: selector %d", ErrReservedOpAdd, in.OpAdd.Primary)
	}
	return nil, fmt.Errorf("%w: mode %d", ErrInvalidOperand, in.OpAdd.Mode)
}

// readSecondary resolves the secondary operand: a register, or an indirect
// memory location addressed by a register.
func (m *Machine) readSecondary(in isa.Instruction, width int) (bitvec.ByteArray, error) {
	switch in.OpAdd.Mode {
	case isa.ModeRegReg, isa.ModeIndirectPrimary, isa.ModeSpecial:
		reg, err := m.File.ByOpAdd(in.OpAdd.Secondary, width)
		if err != nil {
			return nil, err
		}
		return reg.Value, nil
	case isa.ModeIndirectSecondary:
		addr, err := m.indirectAddress(in.OpAdd.Secondary)
		if err != nil {
			return nil, err
		}
		return m.Memory.Read(addr, width), nil
	}
	return nil, fmt.Errorf("%w: mode %d", ErrInvalidOperand, in.OpAdd.Mode)
}

// writeSecondary stores data at the secondary operand's location (register
// or indirect memory), the destination every binary-shaped family writes
// its result to.
func (m *Machine) writeSecondary(in isa.Instruction, width int, data bitvec.ByteArray) error {
	switch in.OpAdd.Mode {
	case isa.ModeRegReg, isa.ModeIndirectPrimary, isa.ModeSpecial:
		reg, err := m.File.ByOpAdd(in.OpAdd.Secondary, width)
		if err != nil {
			return err
		}
		return m.File.Write(reg.Spec.Name, data)
	case isa.ModeIndirectSecondary:
		addr, err := m.indirectAddress(in.OpAdd.Secondary)
		if err != nil {
			return err
		}
		m.Memory.Write(addr, data)
		return nil
	}
	return fmt.Errorf("%w: mode %d", ErrInvalidOperand, in.OpAdd.Mode)
}

func notBytes(a bitvec.ByteArray) bitvec.ByteArray {
	out := make(bitvec.ByteArray, len(a))
	for i, b := range a {
		out[i] = b.Not()
	}
	return out
}

func logicalBytes(a, b bitvec.ByteArray, op func(bitvec.Byte, bitvec.Byte) bitvec.Byte) bitvec.ByteArray {
	out := make(bitvec.ByteArray, len(a))
	for i := range a {
		out[i] = op(a[i], b[i])
	}
	return out
}

func isZero(a bitvec.ByteArray) bool {
	for _, b := range a {
		if b != 0 {
			return false
		}
	}
	return true
}

// pushAll pushes the fixed CALL save list onto the stack in declared order,
// each register at its own width, decrementing SP before each write.
func (m *Machine) pushAll() error {
	for _, name := range isa.SaveOnCall {
		reg, err := m.File.Get(name)
		if err != nil {
			return err
		}
		if err := m.push(reg.Value); err != nil {
			return err
		}
	}
	return nil
}

// popAll restores the fixed CALL save list in reverse order, incrementing SP
// after each read, mirroring pushAll exactly so SP round-trips to its
// pre-call value.
func (m *Machine) popAll() error {
	for i := len(isa.SaveOnCall) - 1; i >= 0; i-- {
		name := isa.SaveOnCall[i]
		reg, err := m.File.Get(name)
		if err != nil {
			return err
		}
		data, err := m.pop(reg.Spec.Size)
		if err != nil {
			return err
		}
		if err := m.File.Write(name, data); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) push(data bitvec.ByteArray) error {
	sp, err := m.File.Read("SP")
	if err != nil {
		return err
	}
	addr, err := sp.Uint64()
	if err != nil {
		return err
	}
	addr = (addr - uint64(len(data))) & 0xFFFF
	m.Memory.Write(uint16(addr), data)
	return m.File.Write("SP", bitvec.UintWidth(addr, 2))
}

func (m *Machine) pop(size int) (bitvec.ByteArray, error) {
	sp, err := m.File.Read("SP")
	if err != nil {
		return nil, err
	}
	addr, err := sp.Uint64()
	if err != nil {
		return nil, err
	}
	data := m.Memory.Read(uint16(addr), size)
	addr = (addr + uint64(size)) & 0xFFFF
	if err := m.File.Write("SP", bitvec.UintWidth(addr, 2)); err != nil {
		return nil, err
	}
	return data, nil
}
