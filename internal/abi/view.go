package abi

import "github.com/reglet-dev/valbridge/domain/ports"

// View caches a byte slice over the whole of a Memory. The slice is refreshed
// on an explicit growth notification or when the memory size no longer
// matches the cached length. Offsets stay valid across refreshes.
type View struct {
	mem  ports.Memory
	buf  []byte
	size uint32
}

// NewView creates a view over mem.
func NewView(mem ports.Memory) *View {
	v := &View{mem: mem}
	v.Refresh()
	return v
}

// Bytes returns the current buffer, refreshing it first if it went stale.
func (v *View) Bytes() []byte {
	if v.buf == nil || v.size != v.mem.Size() {
		v.Refresh()
	}
	return v.buf
}

// Refresh re-reads the buffer from the underlying memory.
func (v *View) Refresh() {
	size := v.mem.Size()
	buf, ok := v.mem.Read(0, size)
	if !ok {
		buf = nil
	}
	v.buf = buf
	v.size = size
}
