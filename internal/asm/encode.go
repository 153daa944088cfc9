package asm

import (
	"fmt"

	"cherry/internal/bitvec"
	"cherry/internal/isa"
)

// regInfo is what the encoder needs to know about a register name; it does
// not need a live isa.File since assembly never touches register values,
// only their static shape.
type regInfo struct {
	size      int
	opAddCode int
}

// registerCodes builds the name -> regInfo lookup the encoder uses from the
// ISA table's register specs.
func registerCodes(specs []isa.RegisterSpec) map[string]regInfo {
	m := make(map[string]regInfo, len(specs))
	for _, s := range specs {
		m[s.Name] = regInfo{size: s.Size, opAddCode: s.OpAddCode}
	}
	return m
}

// pendingUse marks where, within a just-built instruction's bytes, a 2-byte
// label placeholder begins.
type pendingUse struct {
	Label  string
	Offset int // byte offset within the instruction, where the placeholder starts
}

// encoded is the result of encoding one instruction.
type encoded struct {
	Bytes []byte
	Uses  []pendingUse
}

func (e *encoded) emit(b ...byte)         { e.Bytes = append(e.Bytes, b...) }
func (e *encoded) emitArray(a bitvec.ByteArray) { e.Bytes = append(e.Bytes, a.Bytes()...) }
func (e *encoded) placeholder(label string) {
	e.Uses = append(e.Uses, pendingUse{Label: label, Offset: len(e.Bytes)})
	e.emit(0, 0)
}

// encodeCondition appends the one-byte conditional prefix, if present.
func encodeCondition(e *encoded, condition string) error {
	if condition == "" {
		return nil
	}
	cond, ok := isa.ConditionByMnemonic(condition)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMnemonic, condition)
	}
	e.emit(isa.EncodeConditionOpcode(cond))
	return nil
}

// encodeInstruction dispatches to the shape-specific encoder for the parsed
// line's family.
func (a *Assembler) encodeInstruction(pl ParsedLine) (*encoded, error) {
	fi, ok := isa.FamilyByMnemonic[pl.Mnemonic]
	if !ok {
		if fam, isShift := isa.ShiftMnemonics[pl.Mnemonic]; isShift {
			fi = isa.FamilyByCode[fam]
		} else {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMnemonic, pl.Mnemonic)
		}
	}

	e := &encoded{}
	if err := encodeCondition(e, pl.Condition); err != nil {
		return nil, err
	}

	args, err := a.parseArgs(pl.Args)
	if err != nil {
		return nil, err
	}

	switch fi.Shape {
	case isa.ShapeBinary:
		err = a.encodeBinary(e, fi.Family, pl.Suffix, args)
	case isa.ShapeUnary:
		err = a.encodeUnary(e, fi.Family, pl.Suffix, args)
	case isa.ShapeBitLiteral:
		err = a.encodeBitLiteral(e, fi.Family, args)
	case isa.ShapeBitRef:
		err = a.encodeBitRef(e, fi.Family, args)
	case isa.ShapeShift:
		err = a.encodeShift(e, pl.Mnemonic, pl.Suffix, args)
	case isa.ShapeStack:
		err = a.encodeStack(e, fi.Family, pl.Suffix, args)
	case isa.ShapeJump:
		err = a.encodeJump(e, fi.Family, args)
	case isa.ShapeCallReturn:
		err = a.encodeCallReturn(e, fi.Family, args)
	case isa.ShapeNoArgs:
		err = a.encodeNoArgs(e, fi.Family, args)
	case isa.ShapeIO:
		err = a.encodeIO(e, fi.Family, pl.Suffix, args)
	default:
		err = fmt.Errorf("asm: family %s has no encoder", pl.Mnemonic)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (a *Assembler) parseArgs(tokens []string) ([]Argument, error) {
	out := make([]Argument, len(tokens))
	for i, tok := range tokens {
		arg, err := parseArgument(tok, a.registers)
		if err != nil {
			return nil, err
		}
		if arg.Kind == ArgLabel {
			if err := ValidateLabelName(arg.Label, a.reserved); err != nil {
				return nil, err
			}
		}
		out[i] = arg
	}
	return out, nil
}

// resolveWidth implements spec §4.1's width-resolution rule: a forced
// suffix wins outright; otherwise the first operand with an inherent width
// decides; absent that, default to 1.
func (a *Assembler) resolveWidth(suffix string, args []Argument) (int, error) {
	if suffix == "B" {
		return 1, nil
	}
	if suffix == "W" {
		return 4, nil
	}
	regWidth := func(name string) (int, bool) {
		info, ok := a.regInfo[name]
		if !ok {
			return 0, false
		}
		return info.size, true
	}
	for _, arg := range args {
		if w, ok := arg.InherentWidth(regWidth); ok {
			return w, nil
		}
	}
	return 1, nil
}

func (a *Assembler) opAddCode(name string) (int, error) {
	info, ok := a.regInfo[name]
	if !ok || info.opAddCode < 0 {
		return 0, fmt.Errorf("%w: %q is not addressable by op-add", ErrInvalidOperand, name)
	}
	return info.opAddCode, nil
}

// --- ShapeBinary: MOV, ADD, SUB, CMP, AND, OR, XOR ---

func (a *Assembler) encodeBinary(e *encoded, family isa.Family, suffix string, args []Argument) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: expected 2, got %d", ErrWrongArgCount, len(args))
	}
	primary, secondary := args[0], args[1]
	width, err := a.resolveWidth(suffix, args)
	if err != nil {
		return err
	}

	switch {
	case primary.Kind == ArgRegister && secondary.Kind == ArgRegister:
		return a.emitOpAdd(e, family, isa.FormOpAdd, width, isa.ModeRegReg, primary.Register, secondary.Register, nil)

	case primary.Kind == ArgRegister && secondary.Kind == ArgIndirect:
		return a.emitOpAdd(e, family, isa.FormOpAdd, width, isa.ModeIndirectSecondary, primary.Register, secondary.Register, nil)

	case primary.Kind == ArgIndirect && secondary.Kind == ArgRegister:
		return a.emitOpAdd(e, family, isa.FormOpAdd, width, isa.ModeIndirectPrimary, primary.Register, secondary.Register, nil)

	case primary.Kind == ArgRegister && secondary.Kind == ArgMemory:
		return a.emitRegisterToMemory(e, family, width, primary.Register, secondary.Address)

	case primary.Kind == ArgMemory && secondary.Kind == ArgRegister:
		return a.emitSpecialAddressSource(e, family, width, primary.Address, secondary.Register)

	case primary.Kind == ArgLiteral && secondary.Kind == ArgRegister:
		return a.emitSpecialLiteralDest(e, family, width, primary, secondary.Register)

	case primary.Kind == ArgLiteral && secondary.Kind == ArgIndirect:
		return a.emitImmediateToOpAdd(e, family, width, isa.ModeIndirectSecondary, primary, secondary.Register)

	case primary.Kind == ArgLiteral && secondary.Kind == ArgMemory:
		return a.emitImmediateToMemory(e, family, width, primary, secondary.Address)

	default:
		return fmt.Errorf("%w: %s cannot take (%v, %v)", ErrInvalidOperand, familyName(family), primary.Kind, secondary.Kind)
	}
}

// --- ShapeUnary: NOT ---

func (a *Assembler) encodeUnary(e *encoded, family isa.Family, suffix string, args []Argument) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: expected 1, got %d", ErrWrongArgCount, len(args))
	}
	width, err := a.resolveWidth(suffix, args)
	if err != nil {
		return err
	}
	operand := args[0]
	switch operand.Kind {
	case ArgRegister:
		return a.emitOpAdd(e, family, isa.FormOpAdd, width, isa.ModeRegReg, operand.Register, operand.Register, nil)
	case ArgIndirect:
		return a.emitOpAdd(e, family, isa.FormOpAdd, width, isa.ModeIndirectPrimary, operand.Register, "", nil)
	default:
		return fmt.Errorf("%w: NOT requires a register or indirect operand", ErrInvalidOperand)
	}
}

// --- ShapeBitLiteral: BIT, BBIT, BYTE ---

func (a *Assembler) encodeBitLiteral(e *encoded, family isa.Family, args []Argument) error {
	switch family {
	case isa.FamilyBIT:
		if len(args) != 2 {
			return fmt.Errorf("%w: BIT expects (operand, bit-index)", ErrWrongArgCount)
		}
		idx, err := literalIndex(args[1], 0, 7)
		if err != nil {
			return err
		}
		if err := a.emitSingleOperand(e, family, isa.FormOpAdd, 1, args[0]); err != nil {
			return err
		}
		e.emit(byte(idx))
		return nil

	case isa.FamilyBBIT:
		if len(args) != 3 {
			return fmt.Errorf("%w: BBIT expects (operand, byte-index, bit-index)", ErrWrongArgCount)
		}
		byteIdx, err := literalIndex(args[1], 0, 3)
		if err != nil {
			return err
		}
		bitIdx, err := literalIndex(args[2], 0, 7)
		if err != nil {
			return err
		}
		if err := a.emitSingleOperand(e, family, isa.FormOpAdd, 4, args[0]); err != nil {
			return err
		}
		e.emit(byte(byteIdx<<3 | bitIdx))
		return nil

	case isa.FamilyBYTE:
		if len(args) != 3 {
			return fmt.Errorf("%w: BYTE expects (word-operand, byte-index, destination)", ErrWrongArgCount)
		}
		byteIdx, err := literalIndex(args[1], 0, 3)
		if err != nil {
			return err
		}
		dest := args[2]
		if dest.Kind != ArgRegister {
			return fmt.Errorf("%w: BYTE destination must be a register", ErrInvalidOperand)
		}
		source := args[0]
		if source.Kind != ArgRegister {
			return fmt.Errorf("%w: BYTE source must be a register", ErrInvalidOperand)
		}
		if err := a.emitOpAdd(e, family, isa.FormOpAdd, 4, isa.ModeRegReg, source.Register, dest.Register, nil); err != nil {
			return err
		}
		e.emit(byte(byteIdx))
		return nil
	}
	return fmt.Errorf("asm: unreachable bit-literal family %v", family)
}

func literalIndex(arg Argument, lo, hi int) (int, error) {
	if arg.Kind != ArgLiteral {
		return 0, fmt.Errorf("%w: expected a literal index", ErrInvalidOperand)
	}
	if arg.Value < int64(lo) || arg.Value > int64(hi) {
		return 0, fmt.Errorf("%w: index %d out of range [%d,%d]", ErrOversizedLiteral, arg.Value, lo, hi)
	}
	return int(arg.Value), nil
}

// --- ShapeBitRef: REFBIT ---

func (a *Assembler) encodeBitRef(e *encoded, family isa.Family, args []Argument) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: REFBIT expects (operand, index-register)", ErrWrongArgCount)
	}
	operand, idxReg := args[0], args[1]
	if idxReg.Kind != ArgRegister {
		return fmt.Errorf("%w: REFBIT index must be a register", ErrInvalidOperand)
	}
	if operand.Kind != ArgRegister && operand.Kind != ArgIndirect {
		return fmt.Errorf("%w: REFBIT operand must be a register or indirect", ErrInvalidOperand)
	}
	mode := isa.ModeRegReg
	if operand.Kind == ArgIndirect {
		mode = isa.ModeIndirectPrimary
	}
	return a.emitOpAdd(e, family, isa.FormOpAdd, 1, mode, operand.Register, idxReg.Register, nil)
}

// --- ShapeShift: LSH, RSH, ASH, ROT (merged into FamilySHIFT) ---

var shiftVariant = map[string]int{"LSH": 0, "RSH": 1, "ASH": 2, "ROT": 3}

func (a *Assembler) encodeShift(e *encoded, mnemonic, suffix string, args []Argument) error {
	variant, ok := shiftVariant[mnemonic]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMnemonic, mnemonic)
	}
	if len(args) != 2 {
		return fmt.Errorf("%w: expected (destination, shift-count)", ErrWrongArgCount)
	}
	dest, count := args[0], args[1]
	countVal, err := literalIndex(count, 0, 31)
	if err != nil {
		return err
	}
	width, err := a.resolveWidth(suffix, args[:1])
	if err != nil {
		return err
	}
	if err := a.emitSingleOperand(e, isa.FamilySHIFT, isa.FormOpAdd, width, dest); err != nil {
		return err
	}
	e.emit(byte(variant<<6 | countVal))
	return nil
}

// --- ShapeStack: PUSH, POP ---

func (a *Assembler) encodeStack(e *encoded, family isa.Family, suffix string, args []Argument) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: expected 1, got %d", ErrWrongArgCount, len(args))
	}
	operand := args[0]
	width, err := a.resolveWidth(suffix, args)
	if err != nil {
		return err
	}
	if family == isa.FamilyPOP {
		if operand.Kind != ArgRegister {
			return fmt.Errorf("%w: POP requires a register destination", ErrInvalidOperand)
		}
		return a.emitOpAdd(e, family, isa.FormOpAdd, width, isa.ModeRegReg, operand.Register, operand.Register, nil)
	}
	// PUSH
	switch operand.Kind {
	case ArgRegister:
		return a.emitOpAdd(e, family, isa.FormOpAdd, width, isa.ModeRegReg, operand.Register, operand.Register, nil)
	case ArgLiteral:
		op, err := isa.EncodeOpcode(family, isa.FormImmediateToOpAdd, width)
		if err != nil {
			return err
		}
		e.emit(op)
		e.emitArray(literalBytes(operand, width))
		return nil
	default:
		return fmt.Errorf("%w: PUSH accepts a register or literal", ErrInvalidOperand)
	}
}

// --- ShapeJump: JMP, JREL ---

func (a *Assembler) encodeJump(e *encoded, family isa.Family, args []Argument) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: expected 1, got %d", ErrWrongArgCount, len(args))
	}
	width := 2
	if family == isa.FamilyJREL {
		width = 1
	}
	op, err := isa.EncodeOpcode(family, isa.FormOpAdd, width)
	if err != nil {
		return err
	}
	e.emit(op)

	switch family {
	case isa.FamilyJMP:
		switch args[0].Kind {
		case ArgMemory:
			e.emitArray(bitvec.UintWidth(uint64(args[0].Address), 2))
		case ArgLabel:
			e.placeholder(args[0].Label)
		default:
			return fmt.Errorf("%w: JMP accepts a memory address or label", ErrInvalidOperand)
		}
	case isa.FamilyJREL:
		if args[0].Kind != ArgLiteral {
			return fmt.Errorf("%w: JREL requires a literal offset", ErrInvalidOperand)
		}
		if args[0].Value < -128 || args[0].Value > 127 {
			return fmt.Errorf("%w: %d", ErrOversizedRelative, args[0].Value)
		}
		e.emitArray(bitvec.IntWidth(args[0].Value, 1))
	}
	return nil
}

// --- ShapeCallReturn: CALL, RET ---

func (a *Assembler) encodeCallReturn(e *encoded, family isa.Family, args []Argument) error {
	if family == isa.FamilyRET {
		if len(args) != 0 {
			return fmt.Errorf("%w: RET takes no arguments", ErrWrongArgCount)
		}
		op, err := isa.EncodeOpcode(family, isa.FormOpAdd, 2)
		if err != nil {
			return err
		}
		e.emit(op)
		return nil
	}

	if len(args) != 1 {
		return fmt.Errorf("%w: expected 1, got %d", ErrWrongArgCount, len(args))
	}
	op, err := isa.EncodeOpcode(family, isa.FormOpAdd, 2)
	if err != nil {
		return err
	}

	target := args[0]
	switch target.Kind {
	case ArgRegister:
		code, err := a.opAddCode(target.Register)
		if err != nil {
			return err
		}
		e.emit(op, isa.OpAdd{Mode: isa.ModeRegReg, Primary: code, Secondary: code}.Encode())
	case ArgIndirect:
		code, err := a.opAddCode(target.Register)
		if err != nil {
			return err
		}
		e.emit(op, isa.OpAdd{Mode: isa.ModeIndirectPrimary, Primary: code, Secondary: 0}.Encode())
	case ArgMemory:
		e.emit(op, isa.OpAdd{Mode: isa.ModeSpecial, Primary: isa.SpecialAddress, Secondary: 0}.Encode())
		e.emitArray(bitvec.UintWidth(uint64(target.Address), 2))
	case ArgLabel:
		e.emit(op, isa.OpAdd{Mode: isa.ModeSpecial, Primary: isa.SpecialAddress, Secondary: 0}.Encode())
		e.placeholder(target.Label)
	default:
		return fmt.Errorf("%w: CALL accepts a register, indirect, memory address, or label", ErrInvalidOperand)
	}
	return nil
}

// --- ShapeNoArgs: HLT ---

func (a *Assembler) encodeNoArgs(e *encoded, family isa.Family, args []Argument) error {
	if len(args) != 0 {
		return fmt.Errorf("%w: expected 0, got %d", ErrWrongArgCount, len(args))
	}
	op, err := isa.EncodeOpcode(family, isa.FormOpAdd, 1)
	if err != nil {
		return err
	}
	e.emit(op)
	return nil
}

// --- ShapeIO: OUT ---

func (a *Assembler) encodeIO(e *encoded, family isa.Family, suffix string, args []Argument) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: expected 1, got %d", ErrWrongArgCount, len(args))
	}
	width, err := a.resolveWidth(suffix, args)
	if err != nil {
		return err
	}
	operand := args[0]
	switch operand.Kind {
	case ArgRegister:
		return a.emitOpAdd(e, family, isa.FormOpAdd, width, isa.ModeRegReg, operand.Register, operand.Register, nil)
	case ArgLiteral:
		op, err := isa.EncodeOpcode(family, isa.FormOpAdd, operand.Width)
		if err != nil {
			return err
		}
		e.emit(op, isa.OpAdd{Mode: isa.ModeSpecial, Primary: isa.SpecialLiteral, Secondary: 0}.Encode())
		e.emitArray(literalBytes(operand, operand.Width))
		return nil
	default:
		return fmt.Errorf("%w: OUT accepts a register or literal", ErrInvalidOperand)
	}
}

// --- shared op-add emission helpers ---

func (a *Assembler) emitOpAdd(e *encoded, family isa.Family, form isa.Form, width int, mode isa.OpAddMode, primaryReg, secondaryReg string, _ []byte) error {
	op, err := isa.EncodeOpcode(family, form, width)
	if err != nil {
		return err
	}
	var primaryCode, secondaryCode int
	if primaryReg != "" {
		primaryCode, err = a.opAddCode(primaryReg)
		if err != nil {
			return err
		}
	}
	if secondaryReg != "" {
		secondaryCode, err = a.opAddCode(secondaryReg)
		if err != nil {
			return err
		}
	}
	e.emit(op, isa.OpAdd{Mode: mode, Primary: primaryCode, Secondary: secondaryCode}.Encode())
	return nil
}

// emitSingleOperand is emitOpAdd specialized for unary-shaped families
// (shifts, BIT, BBIT) where only one operand exists; it is carried in
// both the primary and secondary fields when the operand is a plain
// register, or as a bare indirect primary with secondary unused.
func (a *Assembler) emitSingleOperand(e *encoded, family isa.Family, form isa.Form, width int, operand Argument) error {
	switch operand.Kind {
	case ArgRegister:
		return a.emitOpAdd(e, family, form, width, isa.ModeRegReg, operand.Register, operand.Register, nil)
	case ArgIndirect:
		return a.emitOpAdd(e, family, form, width, isa.ModeIndirectPrimary, operand.Register, "", nil)
	default:
		return fmt.Errorf("%w: expected a register or indirect operand", ErrInvalidOperand)
	}
}

func (a *Assembler) emitRegisterToMemory(e *encoded, family isa.Family, width int, srcReg string, addr uint16) error {
	op, err := isa.EncodeOpcode(family, isa.FormRegisterToMemory, width)
	if err != nil {
		return err
	}
	code, err := a.opAddCode(srcReg)
	if err != nil {
		return err
	}
	e.emit(op, isa.OpAdd{Mode: isa.ModeRegReg, Primary: 0, Secondary: code}.Encode())
	e.emitArray(bitvec.UintWidth(uint64(addr), 2))
	return nil
}

// emitSpecialLiteralDest encodes the (literal, register) pairing per the
// spec's own worked example: opcode (form0), an op-add byte with the
// special primary selector set to "literal follows" and the secondary
// field naming the destination register, then the width-byte immediate.
func (a *Assembler) emitSpecialLiteralDest(e *encoded, family isa.Family, width int, lit Argument, destReg string) error {
	op, err := isa.EncodeOpcode(family, isa.FormOpAdd, width)
	if err != nil {
		return err
	}
	code, err := a.opAddCode(destReg)
	if err != nil {
		return err
	}
	e.emit(op, isa.OpAdd{Mode: isa.ModeSpecial, Primary: isa.SpecialLiteral, Secondary: code}.Encode())
	e.emitArray(literalBytes(lit, width))
	return nil
}

func (a *Assembler) emitSpecialAddressSource(e *encoded, family isa.Family, width int, addr uint16, destReg string) error {
	op, err := isa.EncodeOpcode(family, isa.FormOpAdd, width)
	if err != nil {
		return err
	}
	code, err := a.opAddCode(destReg)
	if err != nil {
		return err
	}
	e.emit(op, isa.OpAdd{Mode: isa.ModeSpecial, Primary: isa.SpecialAddress, Secondary: code}.Encode())
	e.emitArray(bitvec.UintWidth(uint64(addr), 2))
	return nil
}

func (a *Assembler) emitImmediateToOpAdd(e *encoded, family isa.Family, width int, mode isa.OpAddMode, lit Argument, destReg string) error {
	op, err := isa.EncodeOpcode(family, isa.FormImmediateToOpAdd, width)
	if err != nil {
		return err
	}
	e.emit(op)
	code, err := a.opAddCode(destReg)
	if err != nil {
		return err
	}
	e.emit(isa.OpAdd{Mode: mode, Primary: 0, Secondary: code}.Encode())
	e.emitArray(literalBytes(lit, width))
	return nil
}

func (a *Assembler) emitImmediateToMemory(e *encoded, family isa.Family, width int, lit Argument, addr uint16) error {
	op, err := isa.EncodeOpcode(family, isa.FormImmediateToMemory, width)
	if err != nil {
		return err
	}
	e.emit(op)
	e.emitArray(bitvec.UintWidth(uint64(addr), 2))
	e.emitArray(literalBytes(lit, width))
	return nil
}

func literalBytes(lit Argument, width int) bitvec.ByteArray {
	return bitvec.IntWidth(lit.Value, width)
}

func familyName(f isa.Family) string {
	if fi, ok := isa.FamilyByCode[f]; ok {
		return fi.Mnemonic
	}
	return "?"
}
