package hostfuncs

import (
	"fmt"

	"github.com/reglet-dev/valbridge/internal/abi"
)

// Malloc allocates n bytes from the bridge heap.
func (b *Bridge) Malloc(n uint32) (uint32, error) {
	if b.heap == nil {
		return 0, b.noHeap("malloc")
	}
	return b.heap.Allocate(n)
}

// Free releases a block from the bridge heap.
func (b *Bridge) Free(ptr uint32) error {
	if b.heap == nil {
		return b.noHeap("free")
	}
	return b.heap.Release(ptr)
}

// Realloc resizes a block from the bridge heap.
func (b *Bridge) Realloc(ptr, n uint32) (uint32, error) {
	if b.heap == nil {
		return 0, b.noHeap("realloc")
	}
	return b.heap.Resize(ptr, n)
}

// NotifyMemoryGrowth refreshes cached memory views after the module grew its
// memory on its own.
func (b *Bridge) NotifyMemoryGrowth(index uint32) {
	if b.heap != nil {
		b.heap.NotifyGrowth()
	}
	if b.mem == nil {
		return
	}
	pages := b.mem.Size() / abi.PageSize
	b.config.logger.Debug("module memory grew", "memory_index", index, "pages", pages)
	if b.config.onGrowth != nil {
		b.config.onGrowth(pages)
	}
}

func (b *Bridge) noHeap(op string) error {
	if b.mem == nil {
		return ErrNotBound
	}
	return fmt.Errorf("%s: module provides its own allocator", op)
}
