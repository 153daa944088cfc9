package isa

import "fmt"

// Instruction is the result of decoding one instruction out of a fetch
// window. The VM's fetch-decode-execute loop (and the decode tests, which
// check it against the assembler's output) use this single routine to
// learn how many bytes an encoding occupies (the "instruction length
// agreement" property); the assembler itself does not call it.
type Instruction struct {
	Window []byte // the fetch window this instruction was decoded from

	HasCondition bool
	Condition    Condition

	Opcode DecodedOpcode

	HasOpAdd bool
	OpAdd    OpAdd

	// Trailing given bytes, shape-dependent; both Address and Literal are
	// set only by FormImmediateToMemory. HasIndex marks the
	// single-byte index/variant field BIT, BBIT, BYTE, and the shift family
	// all carry.
	Address    []byte // 2-byte absolute address, little-endian
	Literal    []byte // width-byte immediate (or, for JREL, the 1-byte signed offset)
	HasIndex   bool
	IndexByte  byte

	Length int // total bytes this instruction occupies, conditional byte included
}

// DecodeInstruction decodes a single instruction from the start of window,
// which must be at least long enough to contain it (the VM always supplies
// a 16-byte fetch window per spec §4.2, which is long enough for every
// encoding this ISA defines).
func DecodeInstruction(window []byte) (Instruction, error) {
	if len(window) == 0 {
		return Instruction{}, fmt.Errorf("isa: empty fetch window")
	}

	idx := 0
	opcode, err := DecodeOpcode(window[idx])
	if err != nil {
		return Instruction{}, err
	}

	in := Instruction{Window: window}

	if opcode.IsCondition {
		in.HasCondition = true
		in.Condition = opcode.Condition
		idx++
		if idx >= len(window) {
			return Instruction{}, fmt.Errorf("isa: truncated fetch window after conditional prefix")
		}
		opcode, err = DecodeOpcode(window[idx])
		if err != nil {
			return Instruction{}, err
		}
		if opcode.IsCondition {
			return Instruction{}, fmt.Errorf("isa: conditional prefix cannot itself be conditional")
		}
	}
	in.Opcode = opcode
	idx++ // past the real opcode byte

	fi, ok := FamilyByCode[opcode.Family]
	if !ok {
		return Instruction{}, fmt.Errorf("isa: unknown family %d", opcode.Family)
	}
	width := opcode.Width

	need := func(n int) error {
		if idx+n > len(window) {
			return fmt.Errorf("isa: truncated fetch window decoding %s", fi.Mnemonic)
		}
		return nil
	}
	takeOpAdd := func() error {
		if err := need(1); err != nil {
			return err
		}
		in.HasOpAdd = true
		in.OpAdd = DecodeOpAdd(window[idx])
		idx++
		return nil
	}
	takeAddress := func() error {
		if err := need(2); err != nil {
			return err
		}
		in.Address = window[idx : idx+2]
		idx += 2
		return nil
	}
	takeLiteral := func(n int) error {
		if err := need(n); err != nil {
			return err
		}
		in.Literal = window[idx : idx+n]
		idx += n
		return nil
	}
	takeIndex := func() error {
		if err := need(1); err != nil {
			return err
		}
		in.HasIndex = true
		in.IndexByte = window[idx]
		idx++
		return nil
	}

	switch fi.Shape {
	case ShapeBinary:
		switch opcode.Form {
		case FormOpAdd:
			if err := takeOpAdd(); err != nil {
				return Instruction{}, err
			}
			if in.OpAdd.Mode == ModeSpecial {
				switch in.OpAdd.Primary {
				case SpecialLiteral:
					if err := takeLiteral(width); err != nil {
						return Instruction{}, err
					}
				case SpecialAddress:
					if err := takeAddress(); err != nil {
						return Instruction{}, err
					}
				}
			}
		case FormImmediateToOpAdd:
			if err := takeOpAdd(); err != nil {
				return Instruction{}, err
			}
			if err := takeLiteral(width); err != nil {
				return Instruction{}, err
			}
		case FormImmediateToMemory:
			if err := takeAddress(); err != nil {
				return Instruction{}, err
			}
			if err := takeLiteral(width); err != nil {
				return Instruction{}, err
			}
		case FormRegisterToMemory:
			if err := takeOpAdd(); err != nil {
				return Instruction{}, err
			}
			if err := takeAddress(); err != nil {
				return Instruction{}, err
			}
		}

	case ShapeUnary, ShapeBitRef:
		if err := takeOpAdd(); err != nil {
			return Instruction{}, err
		}

	case ShapeBitLiteral, ShapeShift:
		if err := takeOpAdd(); err != nil {
			return Instruction{}, err
		}
		if err := takeIndex(); err != nil {
			return Instruction{}, err
		}

	case ShapeStack:
		if fi.Family == FamilyPUSH && opcode.Form == FormImmediateToOpAdd {
			if err := takeLiteral(width); err != nil {
				return Instruction{}, err
			}
		} else {
			if err := takeOpAdd(); err != nil {
				return Instruction{}, err
			}
		}

	case ShapeJump:
		if fi.Family == FamilyJMP {
			if err := takeAddress(); err != nil {
				return Instruction{}, err
			}
		} else {
			if err := takeLiteral(1); err != nil {
				return Instruction{}, err
			}
		}

	case ShapeCallReturn:
		if fi.Family != FamilyRET {
			if err := takeOpAdd(); err != nil {
				return Instruction{}, err
			}
			if in.OpAdd.Mode == ModeSpecial {
				if err := takeAddress(); err != nil {
					return Instruction{}, err
				}
			}
		}

	case ShapeNoArgs:
		// opcode only

	case ShapeIO:
		if err := takeOpAdd(); err != nil {
			return Instruction{}, err
		}
		if in.OpAdd.Mode == ModeSpecial {
			if err := takeLiteral(width); err != nil {
				return Instruction{}, err
			}
		}

	default:
		return Instruction{}, fmt.Errorf("isa: family %s has no decode rule", fi.Mnemonic)
	}

	in.Length = idx
	return in, nil
}
