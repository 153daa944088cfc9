package isa

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultRegisterSpecs describes the Cherry register file: five 4-byte
// general registers GA-GE, each with a 1-byte low-byte alias addressable by
// the same op-add code at width 1 (the size-keyed code-sharing scheme from
// Design Notes §9 and the reference machine's op_add_registers table), plus
// the special-purpose IP/SP/RI/RS/FL registers that are named directly
// rather than through an op-add code.
var DefaultRegisterSpecs = []RegisterSpec{
	{Name: "GA", Size: 4, PointerCode: 0, OpAddCode: 0, Children: []Alias{{Name: "GAL", Offset: 0}}},
	{Name: "GAL", Size: 1, PointerCode: 0, OpAddCode: 0},
	{Name: "GB", Size: 4, PointerCode: 1, OpAddCode: 1, Children: []Alias{{Name: "GBL", Offset: 0}}},
	{Name: "GBL", Size: 1, PointerCode: 1, OpAddCode: 1},
	{Name: "GC", Size: 4, PointerCode: 2, OpAddCode: 2, Children: []Alias{{Name: "GCL", Offset: 0}}},
	{Name: "GCL", Size: 1, PointerCode: 2, OpAddCode: 2},
	{Name: "GD", Size: 4, PointerCode: 3, OpAddCode: 3, Children: []Alias{{Name: "GDL", Offset: 0}}},
	{Name: "GDL", Size: 1, PointerCode: 3, OpAddCode: 3},
	{Name: "GE", Size: 4, PointerCode: 4, OpAddCode: 4, Children: []Alias{{Name: "GEL", Offset: 0}}},
	{Name: "GEL", Size: 1, PointerCode: 4, OpAddCode: 4},

	{Name: "IP", Size: 2, PointerCode: 5, OpAddCode: -1},
	{Name: "SP", Size: 2, PointerCode: 6, OpAddCode: -1},
	{Name: "RI", Size: 2, PointerCode: 7, OpAddCode: -1},
	{Name: "RS", Size: 2, PointerCode: 8, OpAddCode: -1},
	{Name: "FL", Size: 1, PointerCode: 9, OpAddCode: -1},
}

// SaveOnCall is the fixed register save list CALL pushes and RET pops, in
// push order, per spec §4.2.
var SaveOnCall = []string{"GA", "GB", "GC", "GD", "FL", "RI", "RS"}

// Table bundles the register specs, instruction families, and conditional
// prefixes that both the assembler and the VM load from, so the two can
// never disagree about the bit layout in play. In this implementation the
// table is a compiled-in Go literal (see SPEC_FULL.md's resolution of the
// "external opcode table" open question); there is no loader for an
// external table file, and Dump prints the table in readable form.
type Table struct {
	Registers []RegisterSpec
	Families  []FamilyInfo
}

// DefaultTable is the built-in Cherry ISA description.
func DefaultTable() *Table {
	return &Table{
		Registers: DefaultRegisterSpecs,
		Families:  Families,
	}
}

// NewFile builds a fresh register file from this table's register specs.
func (t *Table) NewFile() *File {
	return NewFile(t.Registers)
}

// ReservedWords returns every identifier that a label may not collide with:
// instruction mnemonics, conditional-prefix mnemonics, and register names.
func (t *Table) ReservedWords() map[string]bool {
	reserved := make(map[string]bool)
	for _, fi := range t.Families {
		reserved[strings.ToUpper(fi.Mnemonic)] = true
	}
	for m := range ShiftMnemonics {
		reserved[m] = true
	}
	for _, m := range conditionMnemonics {
		reserved[strings.ToUpper(m)] = true
	}
	for _, rs := range t.Registers {
		reserved[strings.ToUpper(rs.Name)] = true
	}
	return reserved
}

// Dump renders the full opcode and register table in a human-readable
// form, used by the `cherry dump` subcommand so the "external declarative
// data" spec §6 describes is actually inspectable rather than an opaque Go
// literal.
func (t *Table) Dump() string {
	var b strings.Builder

	fmt.Fprintln(&b, "Registers:")
	regs := append([]RegisterSpec(nil), t.Registers...)
	sort.Slice(regs, func(i, j int) bool { return regs[i].PointerCode < regs[j].PointerCode })
	for _, r := range regs {
		opAdd := "-"
		if r.OpAddCode >= 0 {
			opAdd = fmt.Sprintf("%d", r.OpAddCode)
		}
		fmt.Fprintf(&b, "  %-4s size=%d ptr=%d opadd=%s\n", r.Name, r.Size, r.PointerCode, opAdd)
		for _, c := range r.Children {
			fmt.Fprintf(&b, "    %-4s offset=%d (alias of %s)\n", c.Name, c.Offset, r.Name)
		}
	}

	fmt.Fprintln(&b, "Families:")
	for _, fi := range t.Families {
		forms := make([]string, len(fi.Forms))
		for i, f := range fi.Forms {
			forms[i] = fmt.Sprintf("%d", f)
		}
		fmt.Fprintf(&b, "  %-6s shape=%-12s forms=[%s]\n", fi.Mnemonic, shapeName(fi.Shape), strings.Join(forms, ","))
	}

	fmt.Fprintln(&b, "Conditions:")
	for i, m := range conditionMnemonics {
		fmt.Fprintf(&b, "  %-6s = 0x%02X\n", m, EncodeConditionOpcode(Condition(i)))
	}

	return b.String()
}

func shapeName(s Shape) string {
	switch s {
	case ShapeBinary:
		return "binary"
	case ShapeUnary:
		return "unary"
	case ShapeBitLiteral:
		return "bit-literal"
	case ShapeBitRef:
		return "bit-ref"
	case ShapeShift:
		return "shift"
	case ShapeStack:
		return "stack"
	case ShapeJump:
		return "jump"
	case ShapeCallReturn:
		return "call-return"
	case ShapeNoArgs:
		return "no-args"
	case ShapeIO:
		return "io"
	}
	return "?"
}
