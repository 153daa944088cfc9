package asm

import (
	"bufio"
	"fmt"
	"os"

	"cherry/internal/bitvec"
)

// writeHexListing renders tmp's full contents as the ASCII hex-listing
// format from spec §6: 16 uppercase hex bytes per line, single-space
// separated, a final partial line allowed.
func writeHexListing(tmp *os.File, dest string) error {
	if _, err := tmp.Seek(0, 0); err != nil {
		return fmt.Errorf("asm: rewinding temporary output: %w", err)
	}
	raw, err := os.ReadFile(tmp.Name())
	if err != nil {
		return fmt.Errorf("asm: reading temporary output: %w", err)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("asm: creating listing file: %w", err)
	}
	defer out.Close()

	w := bufio.NewWriter(out)
	const perLine = 16
	for offset := 0; offset < len(raw); offset += perLine {
		end := offset + perLine
		if end > len(raw) {
			end = len(raw)
		}
		line := bitvec.FromBytes(raw[offset:end])
		if _, err := fmt.Fprintln(w, line.Hex()); err != nil {
			return fmt.Errorf("asm: writing listing: %w", err)
		}
	}
	return w.Flush()
}
