package asm

import (
	"fmt"
	"io"

	"cherry/internal/bitvec"
)

// backpatch seeks to each recorded placeholder offset in f and overwrites
// the two zero bytes there with the label's resolved address, little-endian,
// per spec §3.5 and §4.1's final pass.
func backpatch(f io.WriteSeeker, patches map[int64]int64) error {
	for offset, addr := range patches {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return fmt.Errorf("seeking to offset %d: %w", offset, err)
		}
		bytes := bitvec.UintWidth(uint64(addr), 2).Bytes()
		if _, err := f.Write(bytes); err != nil {
			return fmt.Errorf("writing patch at offset %d: %w", offset, err)
		}
	}
	return nil
}
