// Package testutil provides test doubles and assertions shared by the bridge's tests.
package testutil

import (
	"testing"

	"github.com/reglet-dev/valbridge/domain/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RequireCString reads the NUL-terminated string at ptr.
func RequireCString(t *testing.T, mem ports.Memory, ptr uint32) string {
	t.Helper()
	require.NotZero(t, ptr, "expected a non-null string pointer")

	var out []byte
	for off := ptr; ; off++ {
		b, ok := mem.Read(off, 1)
		require.True(t, ok, "string at 0x%x runs past the end of memory", ptr)
		if b[0] == 0 {
			break
		}
		out = append(out, b[0])
	}
	return string(out)
}

// WriteBytes copies data into mem at offset and fails the test if it does not fit.
func WriteBytes(t *testing.T, mem ports.Memory, offset uint32, data []byte) {
	t.Helper()
	require.True(t, mem.Write(offset, data), "write of %d bytes at 0x%x out of bounds", len(data), offset)
}

// AssertBytesAt asserts that mem holds want at offset.
func AssertBytesAt(t *testing.T, mem ports.Memory, offset uint32, want []byte, msgAndArgs ...interface{}) {
	t.Helper()
	got, ok := mem.Read(offset, uint32(len(want)))
	require.True(t, ok, "read of %d bytes at 0x%x out of bounds", len(want), offset)
	assert.Equal(t, want, got, msgAndArgs...)
}

// AssertDisjoint asserts that no two [start, start+size) ranges overlap.
func AssertDisjoint(t *testing.T, ranges map[uint32]uint32) {
	t.Helper()
	for a, an := range ranges {
		for b, bn := range ranges {
			if a == b {
				continue
			}
			if a < b+bn && b < a+an {
				assert.Failf(t, "overlapping allocations", "[0x%x,+%d) overlaps [0x%x,+%d)", a, an, b, bn)
			}
		}
	}
}
