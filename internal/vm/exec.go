package vm

import (
	"fmt"

	"cherry/internal/bitvec"
	"cherry/internal/isa"
)

// Step performs exactly one fetch-decode-execute cycle per spec §4.2: fetch
// a 16-byte window at IP, decode it, evaluate any conditional prefix,
// execute the family's effect, then advance IP by the decoded length unless
// the effect already moved IP itself (flag H).
func (m *Machine) Step() error {
	if m.Halted {
		return ErrProgramFinished
	}

	ipBefore, err := m.ip()
	if err != nil {
		return err
	}
	window := m.Memory.Read(ipBefore, 16).Bytes()

	in, err := isa.DecodeInstruction(window)
	if err != nil {
		return &Fault{IP: ipBefore, Err: err}
	}

	if in.HasCondition && !in.Condition.Holds(m.flag(isa.FlagZ), m.flag(isa.FlagN)) {
		if err := m.setIP(ipBefore + uint16(in.Length)); err != nil {
			return err
		}
		m.OperationCounter++
		return nil
	}

	if err := m.execute(in); err != nil {
		return &Fault{IP: ipBefore, Err: err}
	}

	if !m.Halted {
		if !m.flag(isa.FlagH) {
			if err := m.setIP(ipBefore + uint16(in.Length)); err != nil {
				return err
			}
		} else {
			m.setFlag(isa.FlagH, false)
		}
	}
	m.OperationCounter++
	return nil
}

// Run steps the machine until it halts or a fault occurs.
func (m *Machine) Run() error {
	for !m.Halted {
		if err := m.Step(); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) execute(in isa.Instruction) error {
	width := in.Opcode.Width
	fi, ok := isa.FamilyByCode[in.Opcode.Family]
	if !ok {
		return fmt.Errorf("%w: family %d", ErrUnknownOpcode, in.Opcode.Family)
	}

	switch fi.Shape {
	case isa.ShapeBinary:
		return m.execBinary(in.Opcode.Family, in, width)
	case isa.ShapeUnary:
		return m.execNOT(in, width)
	case isa.ShapeBitLiteral:
		switch in.Opcode.Family {
		case isa.FamilyBIT:
			return m.execBIT(in, width)
		case isa.FamilyBBIT:
			return m.execBBIT(in)
		case isa.FamilyBYTE:
			return m.execBYTE(in)
		}
	case isa.ShapeBitRef:
		return m.execREFBIT(in)
	case isa.ShapeShift:
		return m.execSHIFT(in, width)
	case isa.ShapeStack:
		if in.Opcode.Family == isa.FamilyPUSH {
			return m.execPUSH(in, width)
		}
		return m.execPOP(in, width)
	case isa.ShapeJump:
		if in.Opcode.Family == isa.FamilyJMP {
			return m.execJMP(in)
		}
		return m.execJREL(in)
	case isa.ShapeCallReturn:
		if in.Opcode.Family == isa.FamilyCALL {
			return m.execCALL(in)
		}
		return m.execRET()
	case isa.ShapeNoArgs:
		m.Halted = true
		return nil
	case isa.ShapeIO:
		return m.execOUT(in, width)
	}
	return fmt.Errorf("%w: unhandled shape for family %s", ErrUnknownOpcode, fi.Mnemonic)
}

// --- ShapeBinary: MOV, ADD, SUB, CMP, AND, OR, XOR ---

func (m *Machine) execBinary(family isa.Family, in isa.Instruction, width int) error {
	var primary bitvec.ByteArray
	var err error
	var readDest func() (bitvec.ByteArray, error)
	var writeDest func(bitvec.ByteArray) error

	switch in.Opcode.Form {
	case isa.FormOpAdd:
		primary, err = m.readPrimary(in, width)
		if err != nil {
			return err
		}
		readDest = func() (bitvec.ByteArray, error) { return m.readSecondary(in, width) }
		writeDest = func(v bitvec.ByteArray) error { return m.writeSecondary(in, width, v) }

	case isa.FormImmediateToOpAdd:
		primary = bitvec.FromBytes(in.Literal)
		readDest = func() (bitvec.ByteArray, error) { return m.readSecondary(in, width) }
		writeDest = func(v bitvec.ByteArray) error { return m.writeSecondary(in, width, v) }

	case isa.FormImmediateToMemory:
		primary = bitvec.FromBytes(in.Literal)
		addr := addressFromBytes(in.Address)
		readDest = func() (bitvec.ByteArray, error) { return m.Memory.Read(addr, width), nil }
		writeDest = func(v bitvec.ByteArray) error { m.Memory.Write(addr, v); return nil }

	case isa.FormRegisterToMemory:
		reg, rerr := m.File.ByOpAdd(in.OpAdd.Secondary, width)
		if rerr != nil {
			return rerr
		}
		primary = reg.Value
		addr := addressFromBytes(in.Address)
		readDest = func() (bitvec.ByteArray, error) { return m.Memory.Read(addr, width), nil }
		writeDest = func(v bitvec.ByteArray) error { m.Memory.Write(addr, v); return nil }

	default:
		return fmt.Errorf("%w: form %d", ErrInvalidOperand, in.Opcode.Form)
	}

	switch family {
	case isa.FamilyMOV:
		return writeDest(append(bitvec.ByteArray(nil), primary...))

	case isa.FamilyADD, isa.FamilySUB:
		// Operands are read as raw unsigned magnitudes so the pre-truncation
		// sum reflects an actual carry out of the top bit; the stored result
		// is the truncated low width bytes of that sum, two's-complement for
		// SUB so a borrow wraps the same way a real ALU would.
		b, err := readDest()
		if err != nil {
			return err
		}
		a, err := primary.Uint64()
		if err != nil {
			return err
		}
		bVal, err := b.Uint64()
		if err != nil {
			return err
		}
		var raw int64
		if family == isa.FamilySUB {
			raw = int64(bVal) - int64(a)
		} else {
			raw = int64(a) + int64(bVal)
		}
		result := bitvec.IntWidth(raw, width)
		if err := writeDest(result); err != nil {
			return err
		}
		m.setFlag(isa.FlagZ, isZero(result))
		if family == isa.FamilyADD {
			m.setFlag(isa.FlagC, raw > int64(bitvec.MaxUnsigned(width)))
		} else {
			m.setFlag(isa.FlagN, raw < 0)
		}
		return nil

	case isa.FamilyCMP:
		b, err := readDest()
		if err != nil {
			return err
		}
		a, err := primary.Int64()
		if err != nil {
			return err
		}
		bVal, err := b.Int64()
		if err != nil {
			return err
		}
		m.setFlag(isa.FlagZ, a == bVal)
		m.setFlag(isa.FlagN, a < bVal)
		return nil

	case isa.FamilyAND, isa.FamilyOR, isa.FamilyXOR:
		b, err := readDest()
		if err != nil {
			return err
		}
		var op func(bitvec.Byte, bitvec.Byte) bitvec.Byte
		switch family {
		case isa.FamilyAND:
			op = bitvec.Byte.And
		case isa.FamilyOR:
			op = bitvec.Byte.Or
		case isa.FamilyXOR:
			op = bitvec.Byte.Xor
		}
		result := logicalBytes(primary, b, op)
		if err := writeDest(result); err != nil {
			return err
		}
		m.setFlag(isa.FlagZ, isZero(result))
		return nil
	}
	return fmt.Errorf("vm: family %v has no binary effect", family)
}

// --- ShapeUnary: NOT ---

func (m *Machine) execNOT(in isa.Instruction, width int) error {
	current, err := m.readPrimary(in, width)
	if err != nil {
		return err
	}
	return m.writeSingleOperand(in, width, notBytes(current))
}

// writeSingleOperand writes back to wherever the primary operand came from:
// a register, or the indirect memory location a register addresses.
func (m *Machine) writeSingleOperand(in isa.Instruction, width int, data bitvec.ByteArray) error {
	switch in.OpAdd.Mode {
	case isa.ModeRegReg:
		reg, err := m.File.ByOpAdd(in.OpAdd.Primary, width)
		if err != nil {
			return err
		}
		return m.File.Write(reg.Spec.Name, data)
	case isa.ModeIndirectPrimary:
		addr, err := m.indirectAddress(in.OpAdd.Primary)
		if err != nil {
			return err
		}
		m.Memory.Write(addr, data)
		return nil
	}
	return fmt.Errorf("%w: mode %d", ErrInvalidOperand, in.OpAdd.Mode)
}

// --- ShapeBitLiteral: BIT, BBIT, BYTE ---

func (m *Machine) execBIT(in isa.Instruction, width int) error {
	content, err := m.readPrimary(in, width)
	if err != nil {
		return err
	}
	m.setFlag(isa.FlagZ, content[0].Bit(uint(in.IndexByte)) == 1)
	return nil
}

func (m *Machine) execBBIT(in isa.Instruction) error {
	content, err := m.readPrimary(in, 4)
	if err != nil {
		return err
	}
	byteIdx := int(in.IndexByte >> 3)
	bit := uint(in.IndexByte & 0x7)
	if byteIdx < 0 || byteIdx >= len(content) {
		return fmt.Errorf("vm: byte index %d out of range", byteIdx)
	}
	m.setFlag(isa.FlagZ, content[byteIdx].Bit(bit) == 1)
	return nil
}

func (m *Machine) execBYTE(in isa.Instruction) error {
	content, err := m.readPrimary(in, 4)
	if err != nil {
		return err
	}
	idx := int(in.IndexByte)
	if idx < 0 || idx >= len(content) {
		return fmt.Errorf("vm: byte index %d out of range", idx)
	}
	return m.writeSecondary(in, 1, bitvec.ByteArray{content[idx]})
}

// --- ShapeBitRef: REFBIT ---

func (m *Machine) execREFBIT(in isa.Instruction) error {
	content, err := m.readPrimary(in, 1)
	if err != nil {
		return err
	}
	idxBytes, err := m.readSecondary(in, 1)
	if err != nil {
		return err
	}
	bit := uint(idxBytes[0]) & 0x7
	m.setFlag(isa.FlagZ, content[0].Bit(bit) == 1)
	return nil
}

// --- ShapeShift: LSH, RSH, ASH, ROT (merged) ---

func maskBits(bits uint) uint64 {
	if bits >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << bits) - 1
}

func (m *Machine) execSHIFT(in isa.Instruction, width int) error {
	variant := int(in.IndexByte >> 6)
	count := uint(in.IndexByte & 0x1F)
	bits := uint(width) * 8

	current, err := m.readPrimary(in, width)
	if err != nil {
		return err
	}

	var out bitvec.ByteArray
	switch variant {
	case 0: // LSH
		v, err := current.Uint64()
		if err != nil {
			return err
		}
		out = bitvec.UintWidth((v<<count)&maskBits(bits), width)
	case 1: // RSH
		v, err := current.Uint64()
		if err != nil {
			return err
		}
		out = bitvec.UintWidth(v>>count, width)
	case 2: // ASH: arithmetic, sign-preserving
		signed, err := current.Int64()
		if err != nil {
			return err
		}
		out = bitvec.IntWidth(signed>>count, width)
	case 3: // ROT
		v, err := current.Uint64()
		if err != nil {
			return err
		}
		c := count % bits
		var result uint64
		if c == 0 {
			result = v
		} else {
			result = ((v << c) | (v >> (bits - c))) & maskBits(bits)
		}
		out = bitvec.UintWidth(result, width)
	default:
		return fmt.Errorf("vm: unknown shift variant %d", variant)
	}
	return m.writeSingleOperand(in, width, out)
}

// --- ShapeStack: PUSH, POP ---

func (m *Machine) execPUSH(in isa.Instruction, width int) error {
	var data bitvec.ByteArray
	if in.Opcode.Form == isa.FormImmediateToOpAdd {
		data = bitvec.FromBytes(in.Literal)
	} else {
		reg, err := m.File.ByOpAdd(in.OpAdd.Primary, width)
		if err != nil {
			return err
		}
		data = reg.Value
	}
	return m.push(data)
}

func (m *Machine) execPOP(in isa.Instruction, width int) error {
	data, err := m.pop(width)
	if err != nil {
		return err
	}
	reg, err := m.File.ByOpAdd(in.OpAdd.Primary, width)
	if err != nil {
		return err
	}
	return m.File.Write(reg.Spec.Name, data)
}

// --- ShapeJump: JMP, JREL ---

func (m *Machine) execJMP(in isa.Instruction) error {
	if err := m.setIP(addressFromBytes(in.Address)); err != nil {
		return err
	}
	m.setFlag(isa.FlagH, true)
	return nil
}

func (m *Machine) execJREL(in isa.Instruction) error {
	rel, err := bitvec.FromBytes(in.Literal).Int64()
	if err != nil {
		return err
	}
	ip, err := m.ip()
	if err != nil {
		return err
	}
	if err := m.setIP(uint16(int64(ip) + rel)); err != nil {
		return err
	}
	m.setFlag(isa.FlagH, true)
	return nil
}

// --- ShapeCallReturn: CALL, RET ---

func (m *Machine) execCALL(in isa.Instruction) error {
	var target uint16
	switch in.OpAdd.Mode {
	case isa.ModeRegReg:
		reg, err := m.File.ByOpAdd(in.OpAdd.Primary, 4)
		if err != nil {
			return err
		}
		v, err := reg.Value.Uint64()
		if err != nil {
			return err
		}
		target = uint16(v)
	case isa.ModeIndirectPrimary:
		addr, err := m.indirectAddress(in.OpAdd.Primary)
		if err != nil {
			return err
		}
		target = addressFromBytes(m.Memory.Read(addr, 2).Bytes())
	case isa.ModeSpecial:
		target = addressFromBytes(in.Address)
	default:
		return fmt.Errorf("%w: CALL mode %d", ErrInvalidOperand, in.OpAdd.Mode)
	}

	if err := m.pushAll(); err != nil {
		return err
	}

	ip, err := m.ip()
	if err != nil {
		return err
	}
	if err := m.File.Write("RI", bitvec.UintWidth(uint64(ip)+uint64(in.Length), 2)); err != nil {
		return err
	}
	sp, err := m.File.Read("SP")
	if err != nil {
		return err
	}
	if err := m.File.Write("RS", sp); err != nil {
		return err
	}

	if err := m.setIP(target); err != nil {
		return err
	}
	m.setFlag(isa.FlagH, true)
	return nil
}

func (m *Machine) execRET() error {
	rs, err := m.File.Read("RS")
	if err != nil {
		return err
	}
	if err := m.File.Write("SP", rs); err != nil {
		return err
	}
	ri, err := m.File.Read("RI")
	if err != nil {
		return err
	}
	if err := m.File.Write("IP", ri); err != nil {
		return err
	}
	if err := m.popAll(); err != nil {
		return err
	}
	m.setFlag(isa.FlagH, true)
	return nil
}

// --- ShapeIO: OUT ---

func (m *Machine) execOUT(in isa.Instruction, width int) error {
	var data bitvec.ByteArray
	if in.OpAdd.Mode == isa.ModeSpecial {
		data = bitvec.FromBytes(in.Literal)
	} else {
		v, err := m.readPrimary(in, width)
		if err != nil {
			return err
		}
		data = v
	}
	for _, b := range data.Bytes() {
		if b == 0 {
			continue
		}
		if _, err := m.Stdout.Write([]byte{b}); err != nil {
			return err
		}
	}
	return nil
}
