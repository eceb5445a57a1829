package abi

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/reglet-dev/valbridge/domain/entities"
	"github.com/reglet-dev/valbridge/domain/errors"
	"github.com/reglet-dev/valbridge/domain/ports"
)

// GrowHook is called after the heap grew memory from prevPages to newPages.
type GrowHook func(prevPages, newPages uint32)

type heapConfig struct {
	logger   *slog.Logger
	hooks    []GrowHook
	base     uint32
	maxPages uint32
	baseSet  bool
}

func defaultHeapConfig() heapConfig {
	return heapConfig{
		logger:   slog.Default(),
		maxPages: 65536,
	}
}

// HeapOption configures a Heap.
type HeapOption func(*heapConfig)

// WithBase sets the offset of the first block header. Without it the heap
// starts at the end of the memory as it is when the heap is created.
func WithBase(base uint32) HeapOption {
	return func(c *heapConfig) {
		c.base = base
		c.baseSet = true
	}
}

// WithMaxPages caps the number of pages the heap may grow memory to.
func WithMaxPages(pages uint32) HeapOption {
	return func(c *heapConfig) {
		if pages > 0 {
			c.maxPages = pages
		}
	}
}

// WithHeapLogger sets the logger used for growth events.
func WithHeapLogger(logger *slog.Logger) HeapOption {
	return func(c *heapConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithGrowHook registers a hook fired after every growth.
func WithGrowHook(hook GrowHook) HeapOption {
	return func(c *heapConfig) {
		if hook != nil {
			c.hooks = append(c.hooks, hook)
		}
	}
}

var _ ports.Allocator = (*Heap)(nil)

// Heap is a first-fit allocator over linear memory.
//
// Every block is preceded by an 8-byte header: a little-endian int32 size
// (negative while the block is free) followed by the uint32 pointer of the
// next free block. Free blocks form a singly linked list ordered by address.
// Memory between base and brk is fully tiled by blocks; beyond brk nothing has
// been handed out yet. Pointers returned are the address just past a header.
//
// A Heap is not safe for concurrent use.
type Heap struct {
	mem      ports.Memory
	view     *View
	config   heapConfig
	base     uint32
	brk      uint32
	freelist uint32
	growths  uint64
}

// NewHeap creates a heap over mem.
func NewHeap(mem ports.Memory, opts ...HeapOption) *Heap {
	cfg := defaultHeapConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	base := mem.Size()
	if cfg.baseSet {
		base = cfg.base
	}
	base = uint32(alignUp(uint64(base)))

	return &Heap{
		mem:    mem,
		view:   NewView(mem),
		config: cfg,
		base:   base,
		brk:    base,
	}
}

// View returns the heap's cached view of memory.
func (h *Heap) View() *View {
	return h.view
}

// NotifyGrowth refreshes the cached view after memory grew outside the heap.
func (h *Heap) NotifyGrowth() {
	h.view.Refresh()
}

// Allocate reserves n bytes. Allocating zero bytes returns 0.
func (h *Heap) Allocate(n uint32) (uint32, error) {
	if n == 0 {
		return 0, nil
	}
	size := alignUp(uint64(n))
	if size > uint64(^uint32(0)>>1) {
		return 0, h.allocationError(n, nil)
	}

	if p, ok, err := h.takeFree(uint32(size)); err != nil || ok {
		return p, err
	}
	return h.carve(n, uint32(size))
}

// takeFree carves size bytes out of the first free block large enough.
func (h *Heap) takeFree(size uint32) (uint32, bool, error) {
	var prev uint32
	for cur := h.freelist; cur != 0; {
		bsize, next, err := h.header(cur)
		if err != nil {
			return 0, false, err
		}
		if bsize >= 0 {
			return 0, false, &errors.CorruptionError{Ptr: cur, Reason: "live block on free list"}
		}
		if err := checkNext(cur, next); err != nil {
			return 0, false, err
		}
		avail := uint32(-bsize)
		if avail < size {
			prev, cur = cur, next
			continue
		}

		replacement := next
		if avail-size > HeaderSize {
			rest := cur + size + HeaderSize
			h.setHeader(rest, -int32(avail-size-HeaderSize), next)
			replacement = rest
			avail = size
		}
		h.link(prev, replacement)
		h.setHeader(cur, int32(avail), 0)
		return cur, true, nil
	}
	return 0, false, nil
}

// carve takes a new block at brk, growing memory if needed.
func (h *Heap) carve(requested, size uint32) (uint32, error) {
	end := uint64(h.brk) + HeaderSize + uint64(size)
	if end > uint64(^uint32(0)) {
		return 0, h.allocationError(requested, nil)
	}
	if err := h.ensure(end, requested); err != nil {
		return 0, err
	}

	p := h.brk + HeaderSize
	h.setHeader(p, int32(size), 0)
	h.brk = uint32(end)
	return p, nil
}

// ensure grows memory by whole pages until it spans end bytes.
func (h *Heap) ensure(end uint64, requested uint32) error {
	current := uint64(h.mem.Size())
	if end <= current {
		return nil
	}

	prevPages := uint32(current / PageSize)
	delta := uint32((end - current + PageSize - 1) / PageSize)
	if uint64(prevPages)+uint64(delta) > uint64(h.config.maxPages) {
		return h.allocationError(requested, fmt.Errorf("growing by %d pages exceeds the limit", delta))
	}
	if _, ok := h.mem.Grow(delta); !ok {
		return h.allocationError(requested, fmt.Errorf("memory refused to grow by %d pages", delta))
	}

	h.growths++
	h.view.Refresh()
	h.config.logger.Debug("heap grew memory", "from_pages", prevPages, "to_pages", prevPages+delta)
	for _, hook := range h.config.hooks {
		hook(prevPages, prevPages+delta)
	}
	return nil
}

// Release returns a block to the free list and merges it with free
// neighbours. Releasing 0 is a no-op.
func (h *Heap) Release(p uint32) error {
	if p == 0 {
		return nil
	}
	size, err := h.liveBlock(p)
	if err != nil {
		return err
	}

	var prev uint32
	cur := h.freelist
	for cur != 0 && cur < p {
		_, next, err := h.header(cur)
		if err != nil {
			return err
		}
		if err := checkNext(cur, next); err != nil {
			return err
		}
		prev, cur = cur, next
	}
	if cur == p {
		return &errors.CorruptionError{Ptr: p, Reason: "block already on free list"}
	}

	h.setHeader(p, -int32(size), cur)
	h.link(prev, p)

	if cur != 0 && p+size+HeaderSize == cur {
		csize, cnext, err := h.header(cur)
		if err != nil {
			return err
		}
		size += HeaderSize + uint32(-csize)
		h.setHeader(p, -int32(size), cnext)
	}

	if prev != 0 {
		psize, _, err := h.header(prev)
		if err != nil {
			return err
		}
		if prev+uint32(-psize)+HeaderSize == p {
			_, pnext, _ := h.header(p)
			h.setHeader(prev, -int32(uint32(-psize)+HeaderSize+size), pnext)
		}
	}
	return nil
}

// Resize changes the size of the block at p. A zero pointer allocates, a zero
// size releases. Blocks that already fit are returned unchanged; others move
// and keep min(old, new) bytes of content.
func (h *Heap) Resize(p, n uint32) (uint32, error) {
	if p == 0 {
		return h.Allocate(n)
	}
	if n == 0 {
		return 0, h.Release(p)
	}
	size, err := h.liveBlock(p)
	if err != nil {
		return 0, err
	}
	if alignUp(uint64(n)) <= uint64(size) {
		return p, nil
	}

	q, err := h.Allocate(n)
	if err != nil {
		return 0, err
	}
	buf := h.view.Bytes()
	copy(buf[q:q+size], buf[p:p+size])
	if err := h.Release(p); err != nil {
		return 0, err
	}
	return q, nil
}

// Stats returns a snapshot of the heap.
func (h *Heap) Stats() entities.HeapStats {
	stats := entities.HeapStats{
		Base:       h.base,
		Brk:        h.brk,
		MemorySize: h.mem.Size(),
		Growths:    h.growths,
	}
	for cur := h.freelist; cur != 0; {
		size, next, err := h.header(cur)
		if err != nil || checkNext(cur, next) != nil {
			break
		}
		stats.FreeBlocks++
		stats.FreeBytes += uint64(-size)
		cur = next
	}
	return stats
}

// Check walks every block between base and brk and the free list, and
// reports the first inconsistency: bad sizes, blocks running past brk,
// unordered or dangling free-list links, or adjacent free blocks that were
// not merged.
func (h *Heap) Check() error {
	free := make(map[uint32]bool)
	prevFree := false
	off := h.base
	for off < h.brk {
		p := off + HeaderSize
		size, _, err := h.header(p)
		if err != nil {
			return err
		}
		if size == 0 {
			return fmt.Errorf("block 0x%x has zero size", p)
		}
		abs := uint32(size)
		if size < 0 {
			abs = uint32(-size)
			if prevFree {
				return fmt.Errorf("free block 0x%x follows another free block", p)
			}
			free[p] = true
		}
		prevFree = size < 0
		if uint64(p)+uint64(abs) > uint64(h.brk) {
			return fmt.Errorf("block 0x%x of %d bytes runs past brk 0x%x", p, abs, h.brk)
		}
		off = p + abs
	}
	if off != h.brk {
		return fmt.Errorf("blocks end at 0x%x, brk is 0x%x", off, h.brk)
	}

	seen := 0
	var last uint32
	for cur := h.freelist; cur != 0; {
		if !free[cur] {
			return fmt.Errorf("free list entry 0x%x is not a free block", cur)
		}
		if cur <= last {
			return fmt.Errorf("free list out of order at 0x%x", cur)
		}
		_, next, err := h.header(cur)
		if err != nil {
			return err
		}
		seen++
		last, cur = cur, next
	}
	if seen != len(free) {
		return fmt.Errorf("free list holds %d blocks, heap has %d", seen, len(free))
	}
	return nil
}

// liveBlock validates p as the pointer of an allocated block and returns its size.
func (h *Heap) liveBlock(p uint32) (uint32, error) {
	if p < h.base+HeaderSize || p >= h.brk || (p-h.base)%Alignment != 0 {
		return 0, &errors.CorruptionError{Ptr: p, Reason: "pointer outside heap"}
	}
	size, _, err := h.header(p)
	if err != nil {
		return 0, err
	}
	if size <= 0 {
		return 0, &errors.CorruptionError{Ptr: p, Reason: "block is not allocated"}
	}
	if uint64(p)+uint64(size) > uint64(h.brk) {
		return 0, &errors.CorruptionError{Ptr: p, Reason: "block size runs past brk"}
	}
	return uint32(size), nil
}

// header reads the header of the block at p.
func (h *Heap) header(p uint32) (int32, uint32, error) {
	buf := h.view.Bytes()
	if p < HeaderSize || uint64(p) > uint64(len(buf)) || p < h.base+HeaderSize || p > h.brk {
		return 0, 0, &errors.CorruptionError{Ptr: p, Reason: "header out of bounds"}
	}
	off := p - HeaderSize
	size := int32(binary.LittleEndian.Uint32(buf[off:]))
	next := binary.LittleEndian.Uint32(buf[off+4:])
	return size, next, nil
}

// checkNext rejects a free-list link that does not move to a higher address.
// The list lives in guest-writable memory, so a rewritten link could
// otherwise form a cycle.
func checkNext(cur, next uint32) error {
	if next != 0 && next <= cur {
		return &errors.CorruptionError{Ptr: cur, Reason: "free list out of order"}
	}
	return nil
}

// setHeader writes the header of the block at p. Callers have validated p.
func (h *Heap) setHeader(p uint32, size int32, next uint32) {
	buf := h.view.Bytes()
	off := p - HeaderSize
	binary.LittleEndian.PutUint32(buf[off:], uint32(size))
	binary.LittleEndian.PutUint32(buf[off+4:], next)
}

// link points prev (or the list head when prev is 0) at next.
func (h *Heap) link(prev, next uint32) {
	if prev == 0 {
		h.freelist = next
		return
	}
	buf := h.view.Bytes()
	binary.LittleEndian.PutUint32(buf[prev-HeaderSize+4:], next)
}

func (h *Heap) allocationError(n uint32, cause error) error {
	return &errors.AllocationError{
		Requested: n,
		Pages:     h.mem.Size() / PageSize,
		Limit:     h.config.maxPages,
		Err:       cause,
	}
}
