package abi

import (
	"errors"
	"math/rand"
	"testing"

	bridgeerrors "github.com/reglet-dev/valbridge/domain/errors"
	"github.com/reglet-dev/valbridge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHeap(t *testing.T, opts ...HeapOption) (*testutil.Memory, *Heap) {
	t.Helper()
	mem := testutil.NewMemory(1, 16)
	opts = append([]HeapOption{WithBase(1024)}, opts...)
	return mem, NewHeap(mem, opts...)
}

func TestHeap_AllocateZero(t *testing.T) {
	_, h := newTestHeap(t)

	p, err := h.Allocate(0)
	require.NoError(t, err)
	assert.Zero(t, p)
	assert.Equal(t, uint32(1024), h.Stats().Brk)
}

func TestHeap_RoundTrip(t *testing.T) {
	mem, h := newTestHeap(t)

	for _, n := range []uint32{1, 7, 8, 9, 100, 4096} {
		p, err := h.Allocate(n)
		require.NoError(t, err)
		require.NotZero(t, p)
		assert.Zero(t, p%Alignment, "pointer 0x%x is not aligned", p)

		pattern := make([]byte, n)
		for i := range pattern {
			pattern[i] = byte(i*31 + int(n))
		}
		testutil.WriteBytes(t, mem, p, pattern)
		testutil.AssertBytesAt(t, mem, p, pattern)
	}
	require.NoError(t, h.Check())
}

func TestHeap_ReuseAfterRelease(t *testing.T) {
	_, h := newTestHeap(t)

	p, err := h.Allocate(10)
	require.NoError(t, err)
	require.NoError(t, h.Release(p))

	q, err := h.Allocate(10)
	require.NoError(t, err)
	assert.Equal(t, p, q)
}

func TestHeap_CoalescingLaw(t *testing.T) {
	_, h := newTestHeap(t)

	big, err := h.Allocate(64)
	require.NoError(t, err)
	guard, err := h.Allocate(8)
	require.NoError(t, err)
	require.NoError(t, h.Release(big))

	a, err := h.Allocate(16)
	require.NoError(t, err)
	b, err := h.Allocate(40)
	require.NoError(t, err)
	require.Equal(t, big, a)
	require.Equal(t, a+16+HeaderSize, b)
	assert.Equal(t, 0, h.Stats().FreeBlocks)

	require.NoError(t, h.Release(a))
	require.NoError(t, h.Release(b))

	stats := h.Stats()
	assert.Equal(t, 1, stats.FreeBlocks)
	assert.Equal(t, uint64(16+40+HeaderSize), stats.FreeBytes)
	require.NoError(t, h.Check())

	// Release order must not matter.
	a, _ = h.Allocate(16)
	b, _ = h.Allocate(40)
	require.NoError(t, h.Release(b))
	require.NoError(t, h.Release(a))
	assert.Equal(t, 1, h.Stats().FreeBlocks)
	assert.Equal(t, uint64(64), h.Stats().FreeBytes)

	require.NoError(t, h.Release(guard))
	require.NoError(t, h.Check())
	assert.Equal(t, 1, h.Stats().FreeBlocks)
}

func TestHeap_SplitLeavesRemainder(t *testing.T) {
	_, h := newTestHeap(t)

	p, _ := h.Allocate(128)
	_, _ = h.Allocate(8)
	require.NoError(t, h.Release(p))

	q, err := h.Allocate(32)
	require.NoError(t, err)
	assert.Equal(t, p, q)

	stats := h.Stats()
	assert.Equal(t, 1, stats.FreeBlocks)
	assert.Equal(t, uint64(128-32-HeaderSize), stats.FreeBytes)
}

func TestHeap_NoSplitForTinyRemainder(t *testing.T) {
	_, h := newTestHeap(t)

	p, _ := h.Allocate(24)
	_, _ = h.Allocate(8)
	require.NoError(t, h.Release(p))

	// 24-16 leaves exactly one header width, which is not worth a block.
	q, err := h.Allocate(16)
	require.NoError(t, err)
	assert.Equal(t, p, q)
	assert.Equal(t, 0, h.Stats().FreeBlocks)

	// The whole 24-byte block was handed out, so 24 bytes fit in place.
	r, err := h.Resize(q, 24)
	require.NoError(t, err)
	assert.Equal(t, q, r)
}

func TestHeap_GrowthOnlyWhenNeeded(t *testing.T) {
	grows := 0
	mem := testutil.NewMemory(1, 16)
	h := NewHeap(mem, WithGrowHook(func(prev, next uint32) {
		grows++
		assert.Greater(t, next, prev)
	}))

	p, err := h.Allocate(1000)
	require.NoError(t, err)
	assert.Equal(t, 1, grows)
	assert.Equal(t, 1, mem.Grows)
	assert.GreaterOrEqual(t, p, uint32(testutil.PageSize))

	require.NoError(t, h.Release(p))
	for i := 0; i < 10; i++ {
		q, err := h.Allocate(100)
		require.NoError(t, err)
		require.NoError(t, h.Release(q))
	}
	assert.Equal(t, 1, grows)
	assert.Equal(t, uint64(1), h.Stats().Growths)
}

func TestHeap_GrowthSpansPages(t *testing.T) {
	mem, h := newTestHeap(t)

	p, err := h.Allocate(3 * testutil.PageSize)
	require.NoError(t, err)
	assert.Equal(t, uint32(4*testutil.PageSize), mem.Size())

	pattern := []byte("end of block")
	end := p + 3*testutil.PageSize - uint32(len(pattern))
	testutil.WriteBytes(t, mem, end, pattern)
	testutil.AssertBytesAt(t, mem, end, pattern)
}

func TestHeap_PageLimit(t *testing.T) {
	_, h := newTestHeap(t, WithMaxPages(2))

	_, err := h.Allocate(testutil.PageSize)
	require.NoError(t, err)

	_, err = h.Allocate(testutil.PageSize)
	var allocErr *bridgeerrors.AllocationError
	require.True(t, errors.As(err, &allocErr))
	assert.Equal(t, uint32(testutil.PageSize), allocErr.Requested)
	assert.Equal(t, uint32(2), allocErr.Limit)
	assert.False(t, bridgeerrors.IsFatal(err))
}

func TestHeap_MemoryRefusesGrowth(t *testing.T) {
	mem := testutil.NewMemory(1, 1)
	h := NewHeap(mem, WithBase(0))

	_, err := h.Allocate(2 * testutil.PageSize)
	var allocErr *bridgeerrors.AllocationError
	require.True(t, errors.As(err, &allocErr))
	assert.Contains(t, allocErr.Error(), "refused")
}

func TestHeap_ReleaseZero(t *testing.T) {
	_, h := newTestHeap(t)
	assert.NoError(t, h.Release(0))
}

func TestHeap_DoubleFree(t *testing.T) {
	_, h := newTestHeap(t)

	p, _ := h.Allocate(32)
	_, _ = h.Allocate(32)
	require.NoError(t, h.Release(p))

	err := h.Release(p)
	var corrupt *bridgeerrors.CorruptionError
	require.True(t, errors.As(err, &corrupt))
	assert.Equal(t, p, corrupt.Ptr)
	assert.True(t, bridgeerrors.IsFatal(err))
	require.NoError(t, h.Check())
}

func TestHeap_ReleaseForeignPointer(t *testing.T) {
	_, h := newTestHeap(t)
	_, _ = h.Allocate(32)

	tests := []struct {
		name string
		ptr  uint32
	}{
		{name: "below base", ptr: 16},
		{name: "beyond brk", ptr: 60000},
		{name: "misaligned", ptr: 1024 + HeaderSize + 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var corrupt *bridgeerrors.CorruptionError
			assert.True(t, errors.As(h.Release(tt.ptr), &corrupt))
		})
	}
}

func TestHeap_CorruptedHeader(t *testing.T) {
	mem, h := newTestHeap(t)

	p, _ := h.Allocate(32)
	_, _ = h.Allocate(32)
	// Claim the block is far larger than the heap.
	require.True(t, mem.WriteUint32Le(p-HeaderSize, 1<<20))

	var corrupt *bridgeerrors.CorruptionError
	assert.True(t, errors.As(h.Release(p), &corrupt))
	assert.Error(t, h.Check())
}

func TestHeap_FreeListCycle(t *testing.T) {
	mem, h := newTestHeap(t)

	a, _ := h.Allocate(16)
	_, _ = h.Allocate(16)
	c, _ := h.Allocate(16)
	d, _ := h.Allocate(16)
	require.NoError(t, h.Release(a))
	require.NoError(t, h.Release(c))

	// Point c back at a so the list reads a -> c -> a.
	require.True(t, mem.WriteUint32Le(c-HeaderSize+4, a))

	var corrupt *bridgeerrors.CorruptionError
	_, err := h.Allocate(1000)
	require.True(t, errors.As(err, &corrupt))
	assert.Equal(t, "free list out of order", corrupt.Reason)
	assert.Equal(t, c, corrupt.Ptr)
	assert.True(t, bridgeerrors.IsFatal(err))

	err = h.Release(d)
	require.True(t, errors.As(err, &corrupt))
	assert.Equal(t, "free list out of order", corrupt.Reason)

	assert.Equal(t, 1, h.Stats().FreeBlocks)
	assert.Error(t, h.Check())
}

func TestHeap_Resize(t *testing.T) {
	mem, h := newTestHeap(t)

	t.Run("nil pointer allocates", func(t *testing.T) {
		p, err := h.Resize(0, 16)
		require.NoError(t, err)
		assert.NotZero(t, p)
	})

	t.Run("zero size releases", func(t *testing.T) {
		p, _ := h.Allocate(16)
		q, err := h.Resize(p, 0)
		require.NoError(t, err)
		assert.Zero(t, q)
		var corrupt *bridgeerrors.CorruptionError
		assert.True(t, errors.As(h.Release(p), &corrupt))
	})

	t.Run("shrink stays in place", func(t *testing.T) {
		p, _ := h.Allocate(64)
		q, err := h.Resize(p, 10)
		require.NoError(t, err)
		assert.Equal(t, p, q)
	})

	t.Run("grow moves and keeps content", func(t *testing.T) {
		p, _ := h.Allocate(16)
		_, _ = h.Allocate(8)
		content := []byte("0123456789abcdef")
		testutil.WriteBytes(t, mem, p, content)

		q, err := h.Resize(p, 256)
		require.NoError(t, err)
		assert.NotEqual(t, p, q)
		testutil.AssertBytesAt(t, mem, q, content)

		var corrupt *bridgeerrors.CorruptionError
		assert.True(t, errors.As(h.Release(p), &corrupt), "old block must be free")
	})

	require.NoError(t, h.Check())
}

func TestHeap_RandomOperations(t *testing.T) {
	mem := testutil.NewMemory(1, 64)
	h := NewHeap(mem, WithBase(512))
	rng := rand.New(rand.NewSource(7))

	live := map[uint32]uint32{}
	fill := map[uint32]byte{}
	ptrs := func() []uint32 {
		out := make([]uint32, 0, len(live))
		for p := range live {
			out = append(out, p)
		}
		return out
	}

	for i := 0; i < 2000; i++ {
		switch op := rng.Intn(3); {
		case op == 0 || len(live) == 0:
			n := uint32(rng.Intn(300) + 1)
			p, err := h.Allocate(n)
			require.NoError(t, err)
			b := byte(rng.Intn(256))
			data := make([]byte, n)
			for j := range data {
				data[j] = b
			}
			testutil.WriteBytes(t, mem, p, data)
			live[p], fill[p] = n, b
		case op == 1:
			all := ptrs()
			p := all[rng.Intn(len(all))]
			require.NoError(t, h.Release(p))
			delete(live, p)
			delete(fill, p)
		default:
			all := ptrs()
			p := all[rng.Intn(len(all))]
			n := uint32(rng.Intn(400) + 1)
			q, err := h.Resize(p, n)
			require.NoError(t, err)
			keep := min(n, live[p])
			b := fill[p]
			delete(live, p)
			delete(fill, p)
			expect := make([]byte, keep)
			for j := range expect {
				expect[j] = b
			}
			testutil.AssertBytesAt(t, mem, q, expect)
			data := make([]byte, n)
			for j := range data {
				data[j] = b
			}
			testutil.WriteBytes(t, mem, q, data)
			live[q], fill[q] = n, b
		}

		if i%100 == 0 {
			require.NoError(t, h.Check(), "after %d operations", i)
			testutil.AssertDisjoint(t, live)
		}
	}

	for p, n := range live {
		expect := make([]byte, n)
		for j := range expect {
			expect[j] = fill[p]
		}
		testutil.AssertBytesAt(t, mem, p, expect)
	}
	require.NoError(t, h.Check())
	testutil.AssertDisjoint(t, live)
}

func TestHeap_DefaultBaseIsEndOfMemory(t *testing.T) {
	mem := testutil.NewMemory(2, 4)
	h := NewHeap(mem)

	assert.Equal(t, uint32(2*testutil.PageSize), h.Stats().Base)
	p, err := h.Allocate(8)
	require.NoError(t, err)
	assert.Equal(t, uint32(2*testutil.PageSize+HeaderSize), p)
}

func TestView_RefreshesAfterGrowth(t *testing.T) {
	mem := testutil.NewMemory(1, 4)
	v := NewView(mem)
	require.Len(t, v.Bytes(), testutil.PageSize)

	_, ok := mem.Grow(1)
	require.True(t, ok)
	assert.Len(t, v.Bytes(), 2*testutil.PageSize)

	require.True(t, mem.Write(10, []byte{0xAB}))
	assert.Equal(t, byte(0xAB), v.Bytes()[10])
}
