// Package abi implements the byte-level side of the bridge. It provides a
// first-fit allocator over the sandboxed module's linear memory, a cached view
// of that memory and the string helpers.
package abi

const (
	// PageSize is the linear-memory page size in bytes.
	PageSize = 65536

	// HeaderSize is the width of the block header that precedes every block.
	HeaderSize = 8

	// Alignment is the granularity of block sizes and pointers.
	Alignment = 8
)

func alignUp(n uint64) uint64 {
	return (n + Alignment - 1) &^ (Alignment - 1)
}
