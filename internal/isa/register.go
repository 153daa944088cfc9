// Package isa holds the Cherry register file, memory image, and opcode/
// register tables shared by the assembler and the virtual machine. Both
// consumers load the same Table value so that the bit layout the assembler
// emits and the bit layout the VM decodes can never drift apart.
package isa

import (
	"fmt"

	"cherry/internal/bitvec"
)

// Alias describes one narrower byte-view of a wider register: its name and
// the byte offset within the parent at which it lives.
type Alias struct {
	Name   string
	Offset int
}

// RegisterSpec is the static description of one architectural register:
// its width, its "pointer code" (a unique per-register number that
// Table.Dump orders registers by), its op-add code (or -1 if the register cannot be
// named by an op-add byte), and the narrower aliases that overlap it.
type RegisterSpec struct {
	Name       string
	Size       int // bytes
	PointerCode int
	OpAddCode  int // -1 if not addressable via op-add
	Children   []Alias
}

// Register is one live, stateful register: its spec plus its current bytes.
type Register struct {
	Spec  RegisterSpec
	Value bitvec.ByteArray
}

// File is the live register file: an arena of Registers plus the
// parent/child index maps that Design Notes §9 calls for, so that a write
// to any register propagates both down to its children and up through all
// of its ancestors without the registers holding pointers to each other.
type File struct {
	byName   map[string]*Register
	children map[string][]Alias  // parent name -> its aliases
	parent   map[string]string   // child name -> parent name
	opAdd    map[opAddKey]string // (code, size) -> register name
}

type opAddKey struct {
	code int
	size int
}

// NewFile builds a register file from a table's register specs, zeroing
// every register and wiring up the parent/child/op-add index maps.
func NewFile(specs []RegisterSpec) *File {
	f := &File{
		byName:   make(map[string]*Register, len(specs)),
		children: make(map[string][]Alias, len(specs)),
		parent:   make(map[string]string),
		opAdd:    make(map[opAddKey]string),
	}
	for _, spec := range specs {
		f.byName[spec.Name] = &Register{Spec: spec, Value: bitvec.NewByteArray(spec.Size)}
		if spec.OpAddCode >= 0 {
			f.opAdd[opAddKey{spec.OpAddCode, spec.Size}] = spec.Name
		}
		if len(spec.Children) > 0 {
			f.children[spec.Name] = spec.Children
		}
	}
	for parentName, aliases := range f.children {
		for _, alias := range aliases {
			f.parent[alias.Name] = parentName
		}
	}
	return f
}

// Get returns the named register, or an error if no such register exists.
func (f *File) Get(name string) (*Register, error) {
	r, ok := f.byName[name]
	if !ok {
		return nil, fmt.Errorf("isa: no such register %q", name)
	}
	return r, nil
}

// ByOpAdd resolves an op-add register code to the register whose width
// matches the operand width currently in play. The same numeric code
// resolves to a register's 4-byte parent or its 1-byte child alias
// depending on width, mirroring the reference machine's size-keyed op-add
// table.
func (f *File) ByOpAdd(code, width int) (*Register, error) {
	name, ok := f.opAdd[opAddKey{code, width}]
	if !ok {
		return nil, fmt.Errorf("isa: no register for op-add code %d at width %d", code, width)
	}
	return f.Get(name)
}

// Read returns a copy of the register's current value.
func (f *File) Read(name string) (bitvec.ByteArray, error) {
	r, err := f.Get(name)
	if err != nil {
		return nil, err
	}
	out := make(bitvec.ByteArray, len(r.Value))
	copy(out, r.Value)
	return out, nil
}

// Write stores a new value into the named register and propagates the
// change through the overlap graph: downward into every child (the slice of
// the new value at the child's recorded offset) and upward into every
// ancestor (splicing the written bytes into the ancestor at this register's
// recorded offset), recursively in both directions.
func (f *File) Write(name string, value bitvec.ByteArray) error {
	r, err := f.Get(name)
	if err != nil {
		return err
	}
	if len(value) != r.Spec.Size {
		return fmt.Errorf("isa: write to %s expected %d bytes, got %d", name, r.Spec.Size, len(value))
	}
	copy(r.Value, value)
	f.propagateDown(name)
	f.propagateUp(name)
	return nil
}

// propagateDown copies the parent's current bytes into every direct child,
// then recurses into each child's own children.
func (f *File) propagateDown(parentName string) {
	parent := f.byName[parentName]
	for _, alias := range f.children[parentName] {
		child := f.byName[alias.Name]
		copy(child.Value, parent.Value[alias.Offset:alias.Offset+child.Spec.Size])
		f.propagateDown(alias.Name)
	}
}

// propagateUp splices the child's current bytes into its parent at the
// child's recorded offset, then recurses up through the parent's own
// ancestors. It does not re-descend into sibling children: the spliced
// bytes at other offsets are untouched, and propagateDown is not invoked
// here since only the written child's own subtree could have changed.
func (f *File) propagateUp(childName string) {
	parentName, ok := f.parent[childName]
	if !ok {
		return
	}
	parent := f.byName[parentName]
	child := f.byName[childName]
	var offset int
	for _, alias := range f.children[parentName] {
		if alias.Name == childName {
			offset = alias.Offset
			break
		}
	}
	copy(parent.Value[offset:offset+child.Spec.Size], child.Value)
	f.propagateUp(parentName)
}

// Flag bit positions within FL, named per spec §3.2.
const (
	FlagZ = 0 // zero
	FlagC = 1 // carry
	FlagN = 2 // negative
	FlagH = 7 // non-linear advance
)

// Flag reads a single named bit out of FL.
func (f *File) Flag(bit uint) (bool, error) {
	fl, err := f.Get("FL")
	if err != nil {
		return false, err
	}
	return fl.Value[0].Bit(bit) == 1, nil
}

// SetFlag sets or clears a single named bit in FL, leaving the others
// untouched.
func (f *File) SetFlag(bit uint, on bool) error {
	fl, err := f.Get("FL")
	if err != nil {
		return err
	}
	cur := fl.Value[0]
	if on {
		cur = cur.Or(bitvec.Byte(1 << bit))
	} else {
		cur = cur.And(bitvec.Byte(1<<bit).Not())
	}
	return f.Write("FL", bitvec.ByteArray{cur})
}
