package asm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cherry/internal/isa"
)

// Options controls Assemble's output mode.
type Options struct {
	StringMode bool // emit a hex-listing file (§6) instead of raw bytecode
	Overwrite  bool // allow clobbering an existing file at dest
}

// Assembler is the two-pass translator described in spec §4.1: it loads an
// isa.Table once and reuses its register/opcode metadata across every
// Assemble call, per Design Notes §9's "replace global mutable tables with
// parsed-once configuration passed explicitly into the constructor."
type Assembler struct {
	table     *isa.Table
	registers map[string]bool
	reserved  map[string]bool
	regInfo   map[string]regInfo
}

// NewAssembler builds an Assembler bound to the given ISA description.
func NewAssembler(table *isa.Table) *Assembler {
	registers := make(map[string]bool, len(table.Registers))
	for _, r := range table.Registers {
		registers[strings.ToUpper(r.Name)] = true
	}
	return &Assembler{
		table:     table,
		registers: registers,
		reserved:  table.ReservedWords(),
		regInfo:   registerCodes(table.Registers),
	}
}

// Assemble translates source into a bytecode file (or, in string mode, a
// hex-listing file) at dest. Any syntax error aborts the run and leaves no
// file at dest; a temporary file is used throughout and renamed onto dest
// only once assembly succeeds completely (in string mode the listing is
// written to dest from the temporary file, which is then removed), per spec
// §4.1's failure discipline and §5's "crash leaves at most one stray file"
// requirement.
func (a *Assembler) Assemble(source, dest string, opts Options) error {
	lines := strings.Split(source, "\n")

	if err := a.checkLabelDefinitions(lines); err != nil {
		return err
	}

	if !opts.Overwrite {
		if _, err := os.Stat(dest); err == nil {
			return fmt.Errorf("asm: %s already exists (overwrite not requested)", dest)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".cherry-asm-*.tmp")
	if err != nil {
		return fmt.Errorf("asm: creating temporary output: %w", err)
	}
	tmpPath := tmp.Name()
	succeeded := false
	defer func() {
		tmp.Close()
		if !succeeded {
			os.Remove(tmpPath)
		}
	}()

	symtab := NewSymbolTable()
	var offset int64

	for i, raw := range lines {
		lineNo := i + 1
		pl := ParseLine(raw)

		if pl.Label != "" {
			if err := ValidateLabelName(pl.Label, a.reserved); err != nil {
				return lineErr(lineNo, err, "%q", pl.Label)
			}
			if err := symtab.Define(pl.Label, offset); err != nil {
				return lineErr(lineNo, err, "%q", pl.Label)
			}
		}
		if pl.Blank {
			continue
		}

		enc, err := a.encodeInstruction(pl)
		if err != nil {
			return lineErr(lineNo, err, "%s", strings.TrimSpace(raw))
		}
		for _, use := range enc.Uses {
			symtab.Use(use.Label, offset+int64(use.Offset))
		}
		if _, err := tmp.Write(enc.Bytes); err != nil {
			return fmt.Errorf("asm: writing temporary output: %w", err)
		}
		offset += int64(len(enc.Bytes))
	}

	patches, err := symtab.Resolve()
	if err != nil {
		return err
	}
	if err := backpatch(tmp, patches); err != nil {
		return fmt.Errorf("asm: back-patching labels: %w", err)
	}

	if opts.StringMode {
		if err := writeHexListing(tmp, dest); err != nil {
			return err
		}
		tmp.Close()
		os.Remove(tmpPath)
	} else {
		tmp.Close()
		if err := os.Rename(tmpPath, dest); err != nil {
			return fmt.Errorf("asm: renaming output into place: %w", err)
		}
	}

	succeeded = true
	return nil
}

// checkLabelDefinitions is pass 1: walk every line once, validating and
// recording label definitions, independent of any byte offsets (which are
// only known once pass 2 actually encodes instructions). Its only purpose
// is to surface reserved-word and duplicate-label errors before any output
// is produced.
func (a *Assembler) checkLabelDefinitions(lines []string) error {
	seen := make(map[string]bool)
	for i, raw := range lines {
		pl := ParseLine(raw)
		if pl.Label == "" {
			continue
		}
		lineNo := i + 1
		if err := ValidateLabelName(pl.Label, a.reserved); err != nil {
			return lineErr(lineNo, err, "%q", pl.Label)
		}
		lower := strings.ToLower(pl.Label)
		if seen[lower] {
			return lineErr(lineNo, ErrDuplicateLabel, "%q", pl.Label)
		}
		seen[lower] = true
	}
	return nil
}
