package ports

// Allocator hands out byte ranges inside a Memory.
// A returned pointer of 0 means "no allocation".
type Allocator interface {
	// Allocate reserves n bytes and returns the offset of the first byte.
	Allocate(n uint32) (uint32, error)

	// Release returns a previously allocated range. Releasing 0 is a no-op.
	Release(ptr uint32) error

	// Resize changes the size of an allocation, moving it if needed.
	Resize(ptr, n uint32) (uint32, error)
}
