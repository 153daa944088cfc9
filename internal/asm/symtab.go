package asm

import (
	"regexp"
	"strings"
)

// labelPattern matches the label grammar from spec §3.5: a letter or
// underscore, then any run of letters, digits, underscore, hyphen, or dot.
var labelPattern = regexp.MustCompile(`^[a-z_][a-z0-9_\-.]+$`)

// BackpatchSite is one location in the output stream where a label's
// resolved address must be written once pass 2 completes.
type BackpatchSite struct {
	Label  string
	Offset int64 // byte offset in the output file of the 2-byte placeholder
}

// SymbolTable holds the two dictionaries spec §3.5 calls for: where each
// label is defined, and every site that needs its resolved address
// back-patched in.
type SymbolTable struct {
	definitions map[string]int64
	uses        []BackpatchSite
}

// NewSymbolTable returns an empty symbol table.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{definitions: make(map[string]int64)}
}

// ValidateLabelName checks a label against the grammar and the reserved-word
// set, independent of whether it is being defined or used.
func ValidateLabelName(name string, reserved map[string]bool) error {
	lower := strings.ToLower(name)
	if !labelPattern.MatchString(lower) {
		return lineErr(0, ErrInvalidLabel, "%q", name)
	}
	if reserved[strings.ToUpper(name)] {
		return lineErr(0, ErrReservedLabel, "%q", name)
	}
	return nil
}

// Define records a label's byte offset during pass 2, once the offset is
// known. Duplicate definitions are rejected here as well, although pass 1
// (Assembler.checkLabelDefinitions) already reports them first.
func (s *SymbolTable) Define(name string, offset int64) error {
	lower := strings.ToLower(name)
	if _, exists := s.definitions[lower]; exists {
		return lineErr(0, ErrDuplicateLabel, "%q", name)
	}
	s.definitions[lower] = offset
	return nil
}

// Defined reports whether a label has been defined.
func (s *SymbolTable) Defined(name string) bool {
	_, ok := s.definitions[strings.ToLower(name)]
	return ok
}

// Use records a back-patch site for a label reference encountered during
// pass 2; the label need not be defined yet.
func (s *SymbolTable) Use(name string, offset int64) {
	s.uses = append(s.uses, BackpatchSite{Label: strings.ToLower(name), Offset: offset})
}

// Resolve returns every back-patch site paired with its label's defined
// offset. An undefined label at this point is a hard error: pass 1 should
// have caught every label definition already, so a use with no definition
// means the source referenced a label that is never defined anywhere.
func (s *SymbolTable) Resolve() (map[int64]int64, error) {
	patches := make(map[int64]int64, len(s.uses))
	for _, use := range s.uses {
		addr, ok := s.definitions[use.Label]
		if !ok {
			return nil, lineErr(0, ErrUndefinedLabel, "%q", use.Label)
		}
		patches[use.Offset] = addr
	}
	return patches, nil
}
