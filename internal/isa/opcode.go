package isa

import "fmt"

// EncodeOpcode packs the width bit, form, and family group into a single
// opcode byte per spec §3.4: bit 7 is W, bits 6-5 are form, bits 4-0 are
// group. A width-fixed family may also be encoded at its own fixed width
// (2 for JMP/CALL/RET); its W bit is then 0.
func EncodeOpcode(family Family, form Form, width int) (byte, error) {
	w, err := widthBit(width)
	if err != nil {
		fi, ok := FamilyByCode[family]
		if !ok || !fi.WidthFixed || width != fixedWidthFor(family) {
			return 0, err
		}
		w = 0
	}
	return byte(w<<7) | byte(form)<<5 | byte(family), nil
}

// EncodeConditionOpcode packs a conditional prefix's (W, form) pair using
// the same opcode-byte formula with group fixed at groupCondition, so the
// prefix byte is never mistaken for a real instruction's first byte.
func EncodeConditionOpcode(c Condition) byte {
	w := int(c) / 4
	form := int(c) % 4
	return byte(w<<7) | byte(form)<<5 | byte(groupCondition)
}

// DecodedOpcode is the result of splitting an opcode byte back into its
// fields.
type DecodedOpcode struct {
	IsCondition bool
	Condition   Condition
	Family      Family
	Form        Form
	Width       int
}

// DecodeOpcode splits an opcode byte into its (W, form, group) fields and
// resolves group to either a real Family or the reserved conditional-prefix
// group.
func DecodeOpcode(b byte) (DecodedOpcode, error) {
	w := (b >> 7) & 0x1
	form := Form((b >> 5) & 0x3)
	group := int(b & 0x1F)

	if group == groupCondition {
		cond := Condition(int(w)*4 + int(form))
		return DecodedOpcode{IsCondition: true, Condition: cond}, nil
	}

	fi, ok := FamilyByCode[Family(group)]
	if !ok {
		return DecodedOpcode{}, fmt.Errorf("isa: unknown opcode group %d (byte 0x%02X)", group, b)
	}
	width := 1
	if w == 1 {
		width = 4
	}
	if fi.WidthFixed {
		width = fixedWidthFor(fi.Family)
	}
	return DecodedOpcode{Family: fi.Family, Form: form, Width: width}, nil
}

// fixedWidthFor returns the operand width of families whose W bit does not
// mean "1 vs 4 bytes" because the family has no byte/word choice at all
// (control-flow addresses, indices, HLT).
func fixedWidthFor(f Family) int {
	switch f {
	case FamilyJMP, FamilyCALL, FamilyRET:
		return 2 // addresses are always 2 bytes
	case FamilyJREL:
		return 1 // relative offsets are always 1 signed byte
	case FamilyBBIT, FamilyBYTE:
		return 4 // these always operate on a 4-byte word
	case FamilyHLT:
		return 0
	}
	return 1
}

func widthBit(width int) (int, error) {
	switch width {
	case 1:
		return 0, nil
	case 4:
		return 1, nil
	default:
		return 0, fmt.Errorf("isa: unsupported operand width %d", width)
	}
}

// OpAddMode is the two-bit mode field (bits 7-6) of an op-add byte.
type OpAddMode int

const (
	ModeRegReg          OpAddMode = iota // primary register, secondary register
	ModeIndirectPrimary                  // primary indirect (memory at register value), secondary register
	ModeIndirectSecondary                // primary register, secondary indirect
	ModeSpecial                          // primary is special: null, literal-follows, or address-follows
)

// Special-source selectors used when Mode == ModeSpecial; values occupy the
// same 3 bits that otherwise hold the primary register code.
const (
	SpecialNull    = 0
	SpecialLiteral = 1
	SpecialAddress = 4
)

// OpAdd is the decoded form of an op-add byte.
type OpAdd struct {
	Mode      OpAddMode
	Primary   int // register code, or special selector when Mode == ModeSpecial
	Secondary int // register code
}

// Encode packs an OpAdd back into its single-byte wire form.
func (o OpAdd) Encode() byte {
	return byte(o.Mode)<<6 | byte(o.Primary&0x7)<<3 | byte(o.Secondary&0x7)
}

// DecodeOpAdd unpacks an op-add byte into its mode, primary, and secondary
// fields per spec §3.4.
func DecodeOpAdd(b byte) OpAdd {
	return OpAdd{
		Mode:      OpAddMode((b >> 6) & 0x3),
		Primary:   int((b >> 3) & 0x7),
		Secondary: int(b & 0x7),
	}
}
