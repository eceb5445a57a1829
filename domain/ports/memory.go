package ports

// Memory is the sandboxed module's linear memory as seen from the host.
// Offsets are byte offsets from the start of the buffer.
type Memory interface {
	// Size returns the current size of the buffer in bytes.
	Size() uint32

	// Grow extends the buffer by delta 64KiB pages and returns the previous
	// size in pages. ok is false when the runtime refused to grow.
	Grow(deltaPages uint32) (previousPages uint32, ok bool)

	// Read returns a view of byteCount bytes starting at offset. The view
	// aliases the buffer and is invalidated by Grow.
	Read(offset, byteCount uint32) ([]byte, bool)

	// Write copies v into the buffer at offset.
	Write(offset uint32, v []byte) bool

	// ReadUint32Le reads a little-endian uint32 at offset.
	ReadUint32Le(offset uint32) (uint32, bool)

	// WriteUint32Le writes a little-endian uint32 at offset.
	WriteUint32Le(offset, v uint32) bool
}
