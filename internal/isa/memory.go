package isa

import "cherry/internal/bitvec"

// MemorySize is the fixed size of the Cherry machine's flat address space.
const MemorySize = 65536

// Memory is the 64 KiB linear store described in spec §3.3: byte-granular
// reads and writes at any address, no alignment requirement, addresses
// beyond the end wrap (writes truncate rather than trap).
type Memory struct {
	bytes [MemorySize]byte
}

// NewMemory returns a zeroed 64 KiB memory image.
func NewMemory() *Memory {
	return &Memory{}
}

// Read returns a copy of length bytes starting at addr. Reads that run past
// the end of memory wrap around to address 0, matching Write's truncation
// behavior so a read immediately following a wrapped write observes the
// same bytes.
func (m *Memory) Read(addr uint16, length int) bitvec.ByteArray {
	out := bitvec.NewByteArray(length)
	a := int(addr)
	for i := 0; i < length; i++ {
		out[i] = bitvec.Byte(m.bytes[(a+i)%MemorySize])
	}
	return out
}

// Write overwrites memory starting at addr with data, wrapping at the end
// of the address space.
func (m *Memory) Write(addr uint16, data bitvec.ByteArray) {
	a := int(addr)
	for i, b := range data {
		m.bytes[(a+i)%MemorySize] = byte(b)
	}
}

// LoadPages copies program bytes into memory starting at address 0, in
// 4 KiB pages, per spec §4.2's Load step. Programs larger than MemorySize
// are truncated to fit; the VM does not treat this as an error since the
// assembler is the component responsible for producing programs that fit
// the address space.
func (m *Memory) LoadPages(program []byte) {
	const pageSize = 4096
	for offset := 0; offset < len(program); offset += pageSize {
		end := offset + pageSize
		if end > len(program) {
			end = len(program)
		}
		page := program[offset:end]
		if offset >= MemorySize {
			return
		}
		for i, b := range page {
			addr := offset + i
			if addr >= MemorySize {
				return
			}
			m.bytes[addr] = b
		}
	}
}
