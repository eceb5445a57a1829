package testutil

import (
	"encoding/binary"

	"github.com/reglet-dev/valbridge/domain/ports"
)

// PageSize is the size of one linear-memory page.
const PageSize = 65536

var _ ports.Memory = (*Memory)(nil)

// Memory is a slice-backed ports.Memory. Grow always moves the buffer to a
// new backing array, so code holding a stale view sees the old bytes.
type Memory struct {
	buf      []byte
	maxPages uint32

	// Grows counts successful Grow calls with a non-zero delta.
	Grows int
}

// NewMemory creates a memory of pages pages that may grow up to maxPages.
func NewMemory(pages, maxPages uint32) *Memory {
	return &Memory{buf: make([]byte, int(pages)*PageSize), maxPages: maxPages}
}

// Bytes returns the current backing buffer.
func (m *Memory) Bytes() []byte {
	return m.buf
}

// Size implements ports.Memory.
func (m *Memory) Size() uint32 {
	return uint32(len(m.buf))
}

// Grow implements ports.Memory.
func (m *Memory) Grow(delta uint32) (uint32, bool) {
	prev := uint32(len(m.buf) / PageSize)
	if delta == 0 {
		return prev, true
	}
	if prev+delta > m.maxPages {
		return 0, false
	}
	next := make([]byte, int(prev+delta)*PageSize)
	copy(next, m.buf)
	m.buf = next
	m.Grows++
	return prev, true
}

// Read implements ports.Memory.
func (m *Memory) Read(offset, byteCount uint32) ([]byte, bool) {
	if !m.inBounds(offset, byteCount) {
		return nil, false
	}
	return m.buf[offset : offset+byteCount : offset+byteCount], true
}

// Write implements ports.Memory.
func (m *Memory) Write(offset uint32, v []byte) bool {
	if !m.inBounds(offset, uint32(len(v))) {
		return false
	}
	copy(m.buf[offset:], v)
	return true
}

// ReadUint32Le implements ports.Memory.
func (m *Memory) ReadUint32Le(offset uint32) (uint32, bool) {
	if !m.inBounds(offset, 4) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(m.buf[offset:]), true
}

// WriteUint32Le implements ports.Memory.
func (m *Memory) WriteUint32Le(offset, v uint32) bool {
	if !m.inBounds(offset, 4) {
		return false
	}
	binary.LittleEndian.PutUint32(m.buf[offset:], v)
	return true
}

func (m *Memory) inBounds(offset, n uint32) bool {
	return uint64(offset)+uint64(n) <= uint64(len(m.buf))
}
