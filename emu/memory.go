// Package emu provides functional emulation of the micro-ISA.
//
// It is the architectural reference for the timing core: the same Memory
// backs the core's committed loads and stores, and Evaluate supplies the
// per-opcode result, address and branch semantics to its execution lanes.
package emu

import (
	"bytes"
	"errors"
	"fmt"
)

// Memory access faults.
var (
	ErrMisaligned  = errors.New("misaligned access")
	ErrAccessFault = errors.New("access fault")
	ErrBadSize     = errors.New("unsupported access size")
)

const pageBits = 12
const pageSize = 1 << pageBits

// Region is a half-open address range [Base, Base+Size).
type Region struct {
	Base uint64
	Size uint64
}

// Contains reports whether [addr, addr+size) overlaps the region.
func (r Region) Contains(addr uint64, size int) bool {
	return addr < r.Base+r.Size && r.Base < addr+uint64(size)
}

// Memory is a sparse, byte-addressable little-endian memory. Accesses must
// be naturally aligned and must not touch a protected region.
type Memory struct {
	pages     map[uint64][]byte
	protected []Region
}

// NewMemory creates an empty memory. Unwritten bytes read as zero.
func NewMemory() *Memory {
	return &Memory{pages: make(map[uint64][]byte)}
}

// Protect makes a region inaccessible. Any load or store that touches it
// fails with ErrAccessFault.
func (m *Memory) Protect(base, size uint64) {
	m.protected = append(m.protected, Region{Base: base, Size: size})
}

// Check validates an access without performing it.
func (m *Memory) Check(addr uint64, size int) error {
	switch size {
	case 1, 2, 4, 8:
	default:
		return fmt.Errorf("%w: %d bytes", ErrBadSize, size)
	}

	if addr%uint64(size) != 0 {
		return fmt.Errorf("%w: %d-byte access at %#x", ErrMisaligned, size, addr)
	}

	for _, r := range m.protected {
		if r.Contains(addr, size) {
			return fmt.Errorf("%w: %#x", ErrAccessFault, addr)
		}
	}

	return nil
}

// Load reads size bytes at addr, sign- or zero-extending to 64 bits.
func (m *Memory) Load(addr uint64, size int, signed bool) (uint64, error) {
	if err := m.Check(addr, size); err != nil {
		return 0, err
	}

	var v uint64
	for i := 0; i < size; i++ {
		v |= uint64(m.Read8(addr+uint64(i))) << (8 * i)
	}

	return Extend(v, size, signed), nil
}

// Store writes the low size bytes of value at addr.
func (m *Memory) Store(addr uint64, size int, value uint64) error {
	if err := m.Check(addr, size); err != nil {
		return err
	}

	for i := 0; i < size; i++ {
		m.Write8(addr+uint64(i), byte(value>>(8*i)))
	}

	return nil
}

// Read8 reads one byte without any checks.
func (m *Memory) Read8(addr uint64) byte {
	page, ok := m.pages[addr>>pageBits]
	if !ok {
		return 0
	}
	return page[addr&(pageSize-1)]
}

// Write8 writes one byte without any checks.
func (m *Memory) Write8(addr uint64, b byte) {
	key := addr >> pageBits
	page, ok := m.pages[key]
	if !ok {
		page = make([]byte, pageSize)
		m.pages[key] = page
	}
	page[addr&(pageSize-1)] = b
}

// Read64 reads a 64-bit little-endian value without any checks.
func (m *Memory) Read64(addr uint64) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(m.Read8(addr+uint64(i))) << (8 * i)
	}
	return v
}

// Write64 writes a 64-bit little-endian value without any checks.
func (m *Memory) Write64(addr uint64, v uint64) {
	for i := 0; i < 8; i++ {
		m.Write8(addr+uint64(i), byte(v>>(8*i)))
	}
}

// WriteBytes copies data into memory starting at addr.
func (m *Memory) WriteBytes(addr uint64, data []byte) {
	for i, b := range data {
		m.Write8(addr+uint64(i), b)
	}
}

// Clone returns a deep copy of the memory.
func (m *Memory) Clone() *Memory {
	c := &Memory{
		pages:     make(map[uint64][]byte, len(m.pages)),
		protected: append([]Region(nil), m.protected...),
	}
	for k, p := range m.pages {
		c.pages[k] = append([]byte(nil), p...)
	}
	return c
}

// Equal reports whether both memories hold the same bytes. A page that was
// never written equals a zeroed page.
func (m *Memory) Equal(o *Memory) bool {
	return m.within(o) && o.within(m)
}

func (m *Memory) within(o *Memory) bool {
	zero := make([]byte, pageSize)
	for k, p := range m.pages {
		q, ok := o.pages[k]
		if !ok {
			q = zero
		}
		if !bytes.Equal(p, q) {
			return false
		}
	}
	return true
}

// Extend sign- or zero-extends the low size bytes of v.
func Extend(v uint64, size int, signed bool) uint64 {
	if size >= 8 {
		return v
	}

	shift := uint(64 - 8*size)
	if signed {
		return uint64(int64(v<<shift) >> shift)
	}
	return (v << shift) >> shift
}
