package entities

// RegistryStats is a point-in-time snapshot of the handle registry.
type RegistryStats struct {
	// Live is the number of live handles, reserved ones included.
	Live int `json:"live"`

	// NextHandle is the handle the next new value will receive.
	NextHandle Handle `json:"next_handle"`
}

// HeapStats is a point-in-time snapshot of the shared-memory allocator.
type HeapStats struct {
	// Base is the offset of the first block header.
	Base uint32 `json:"base"`

	// Brk is the first byte never carved out of the buffer.
	Brk uint32 `json:"brk"`

	// MemorySize is the current size of the backing buffer in bytes.
	MemorySize uint32 `json:"memory_size"`

	// FreeBlocks is the length of the free list.
	FreeBlocks int `json:"free_blocks"`

	// FreeBytes is the sum of the free blocks' user-visible sizes.
	FreeBytes uint64 `json:"free_bytes"`

	// Growths counts how many times the allocator grew the buffer.
	Growths uint64 `json:"growths"`
}
