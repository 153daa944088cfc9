// Package asm implements the Cherry two-pass assembler: source text in,
// byte-exact bytecode out, with forward label references resolved by a
// back-patch pass over a temporary file that is renamed onto the
// destination only once every line has assembled cleanly.
package asm

// ArgKind tags the variant carried by an Argument, per Design Notes §9's
// "one sum type with variants Register, Indirect, Memory, Literal, Label,
// Null" — the parser produces these, the encoder pattern-matches on them.
type ArgKind int

const (
	ArgNull ArgKind = iota
	ArgRegister
	ArgIndirect
	ArgMemory
	ArgLiteral
	ArgLabel
)

// Argument is one parsed operand.
type Argument struct {
	Kind ArgKind

	// ArgRegister, ArgIndirect: canonical (uppercase) register name.
	Register string

	// ArgMemory: absolute address.
	Address uint16

	// ArgLiteral: value and its resolved width in bytes (1 or 4).
	Value    int64
	Width    int
	IsString bool

	// ArgLabel: the referenced label, case-folded to lowercase per §3.5.
	Label string
}

func (a Argument) String() string {
	switch a.Kind {
	case ArgRegister:
		return a.Register
	case ArgIndirect:
		return "@" + a.Register
	case ArgMemory:
		return "#" + string(rune(a.Address))
	case ArgLiteral:
		return "literal"
	case ArgLabel:
		return a.Label
	default:
		return "null"
	}
}

// InherentWidth reports the width an operand contributes to the
// width-resolution rule in spec §4.1 ("the width comes from the first
// operand that has an inherent width"), and whether it has one at all.
func (a Argument) InherentWidth(regWidth func(name string) (int, bool)) (int, bool) {
	switch a.Kind {
	case ArgRegister, ArgIndirect:
		return regWidth(a.Register)
	case ArgLiteral:
		return a.Width, true
	default:
		return 0, false
	}
}
