package engine

import (
	"encoding/binary"

	"github.com/wippyai/wasm-vm/errors"
	"github.com/wippyai/wasm-vm/wasm"
)

// MemoryInstance is a linear memory owned by the store. The buffer is sized
// in 64 KiB pages; growth reallocates, so raw pointers into the buffer must
// be re-derived on every access.
type MemoryInstance struct {
	Limits   wasm.Limits
	data     []byte
	maxPages uint32 // engine-wide cap, in addition to declared limits
}

// NewMemoryInstance allocates a zeroed memory of the declared minimum size.
func NewMemoryInstance(mt wasm.MemoryType, maxPages uint32) *MemoryInstance {
	if maxPages == 0 || maxPages > wasm.MaxMemoryPages {
		maxPages = wasm.MaxMemoryPages
	}
	return &MemoryInstance{
		Limits:   mt.Limits,
		data:     make([]byte, uint64(mt.Limits.Min)*wasm.PageSize),
		maxPages: maxPages,
	}
}

// Pages returns the current size in pages.
func (m *MemoryInstance) Pages() uint32 {
	return uint32(len(m.data) / wasm.PageSize)
}

// ByteSize returns the current size in bytes.
func (m *MemoryInstance) ByteSize() uint64 {
	return uint64(len(m.data))
}

// Grow extends the memory by the given number of pages. It returns the old
// size in pages on success or -1 when growth would exceed the declared
// maximum or the engine cap. Failure leaves the memory unchanged.
func (m *MemoryInstance) Grow(pages uint32) int32 {
	old := m.Pages()
	limit := m.maxPages
	if m.Limits.Max != nil && *m.Limits.Max < limit {
		limit = *m.Limits.Max
	}
	if uint64(old)+uint64(pages) > uint64(limit) {
		return -1
	}
	m.data = append(m.data, make([]byte, uint64(pages)*wasm.PageSize)...)
	return int32(old)
}

// span bounds-checks an access and returns the backing bytes. The effective
// address is computed in 64 bits so that addr+offset cannot wrap.
func (m *MemoryInstance) span(addr uint32, offset uint32, width uint64) ([]byte, error) {
	effective := uint64(addr) + uint64(offset)
	if effective+width > m.ByteSize() {
		return nil, errors.TrapWithDetail(errors.TrapOutOfBoundsMemoryAccess,
			"address %d width %d size %d", effective, width, m.ByteSize())
	}
	return m.data[effective : effective+width], nil
}

// ReadByte loads one byte.
func (m *MemoryInstance) ReadByte(addr, offset uint32) (byte, error) {
	b, err := m.span(addr, offset, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadUint16 loads a little-endian uint16.
func (m *MemoryInstance) ReadUint16(addr, offset uint32) (uint16, error) {
	b, err := m.span(addr, offset, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadUint32 loads a little-endian uint32.
func (m *MemoryInstance) ReadUint32(addr, offset uint32) (uint32, error) {
	b, err := m.span(addr, offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadUint64 loads a little-endian uint64.
func (m *MemoryInstance) ReadUint64(addr, offset uint32) (uint64, error) {
	b, err := m.span(addr, offset, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// WriteByte stores one byte.
func (m *MemoryInstance) WriteByte(addr, offset uint32, v byte) error {
	b, err := m.span(addr, offset, 1)
	if err != nil {
		return err
	}
	b[0] = v
	return nil
}

// WriteUint16 stores a little-endian uint16.
func (m *MemoryInstance) WriteUint16(addr, offset uint32, v uint16) error {
	b, err := m.span(addr, offset, 2)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(b, v)
	return nil
}

// WriteUint32 stores a little-endian uint32.
func (m *MemoryInstance) WriteUint32(addr, offset uint32, v uint32) error {
	b, err := m.span(addr, offset, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, v)
	return nil
}

// WriteUint64 stores a little-endian uint64.
func (m *MemoryInstance) WriteUint64(addr, offset uint32, v uint64) error {
	b, err := m.span(addr, offset, 8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, v)
	return nil
}

// Write copies data into memory at the given byte offset.
func (m *MemoryInstance) Write(offset uint64, data []byte) error {
	if offset+uint64(len(data)) > m.ByteSize() {
		return errors.TrapWithDetail(errors.TrapOutOfBoundsMemoryAccess,
			"write of %d bytes at %d, size %d", len(data), offset, m.ByteSize())
	}
	copy(m.data[offset:], data)
	return nil
}

// Read returns a copy of n bytes starting at the given byte offset.
func (m *MemoryInstance) Read(offset, n uint64) ([]byte, error) {
	if offset+n > m.ByteSize() {
		return nil, errors.TrapWithDetail(errors.TrapOutOfBoundsMemoryAccess,
			"read of %d bytes at %d, size %d", n, offset, m.ByteSize())
	}
	out := make([]byte, n)
	copy(out, m.data[offset:offset+n])
	return out, nil
}

// Fill sets n bytes starting at offset to val.
func (m *MemoryInstance) Fill(offset, n uint64, val byte) error {
	if offset+n > m.ByteSize() {
		return errors.NewTrap(errors.TrapOutOfBoundsMemoryAccess)
	}
	for i := uint64(0); i < n; i++ {
		m.data[offset+i] = val
	}
	return nil
}

// Copy moves n bytes from src in m to dst in dest. The regions may overlap
// when m == dest.
func (m *MemoryInstance) Copy(dest *MemoryInstance, dst, src, n uint64) error {
	if src+n > m.ByteSize() || dst+n > dest.ByteSize() {
		return errors.NewTrap(errors.TrapOutOfBoundsMemoryAccess)
	}
	copy(dest.data[dst:dst+n], m.data[src:src+n])
	return nil
}

// Init copies n bytes from a data segment into memory.
func (m *MemoryInstance) Init(dst, src, n uint64, content []byte) error {
	if src+n > uint64(len(content)) || dst+n > m.ByteSize() {
		return errors.NewTrap(errors.TrapOutOfBoundsMemoryAccess)
	}
	copy(m.data[dst:dst+n], content[src:src+n])
	return nil
}
