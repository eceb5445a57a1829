package abi

import (
	"encoding/binary"

	"github.com/reglet-dev/valbridge/domain/errors"
	"github.com/reglet-dev/valbridge/domain/ports"
	"golang.org/x/text/encoding/unicode"
)

// ReadBytes copies n bytes starting at ptr out of mem.
func ReadBytes(mem ports.Memory, ptr, n uint32) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	data, ok := mem.Read(ptr, n)
	if !ok {
		return nil, &errors.MemoryAccessError{Op: "read", Offset: ptr, Length: n, Size: mem.Size()}
	}
	out := make([]byte, n)
	copy(out, data)
	return out, nil
}

// ReadString decodes n bytes at ptr as UTF-8. A leading byte order mark is
// dropped and ill-formed sequences become U+FFFD.
func ReadString(mem ports.Memory, ptr, n uint32) (string, error) {
	data, err := ReadBytes(mem, ptr, n)
	if err != nil || len(data) == 0 {
		return "", err
	}
	decoded, err := unicode.UTF8BOM.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// WriteCString stores s followed by a NUL byte in a fresh allocation and
// returns its pointer. The caller owns the allocation.
func WriteCString(alloc ports.Allocator, mem ports.Memory, s string) (uint32, error) {
	n := uint32(len(s)) + 1
	ptr, err := alloc.Allocate(n)
	if err != nil {
		return 0, err
	}
	buf := make([]byte, n)
	copy(buf, s)
	if !mem.Write(ptr, buf) {
		_ = alloc.Release(ptr)
		return 0, &errors.MemoryAccessError{Op: "write", Offset: ptr, Length: n, Size: mem.Size()}
	}
	return ptr, nil
}

// ReadUTF16 copies units little-endian UTF-16 code units starting at ptr.
// Unpaired surrogates are kept as they are.
func ReadUTF16(mem ports.Memory, ptr, units uint32) ([]uint16, error) {
	if uint64(units)*2 > 1<<32-1 {
		return nil, &errors.MemoryAccessError{Op: "read", Offset: ptr, Length: units, Size: mem.Size()}
	}
	data, err := ReadBytes(mem, ptr, units*2)
	if err != nil {
		return nil, err
	}
	out := make([]uint16, units)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(data[2*i:])
	}
	return out, nil
}

// WriteUTF16 stores units as little-endian code units followed by a zero unit
// in a fresh allocation and returns its pointer. The caller owns the
// allocation.
func WriteUTF16(alloc ports.Allocator, mem ports.Memory, units []uint16) (uint32, error) {
	n := uint32(len(units)+1) * 2
	ptr, err := alloc.Allocate(n)
	if err != nil {
		return 0, err
	}
	buf := make([]byte, n)
	for i, u := range units {
		binary.LittleEndian.PutUint16(buf[2*i:], u)
	}
	if !mem.Write(ptr, buf) {
		_ = alloc.Release(ptr)
		return 0, &errors.MemoryAccessError{Op: "write", Offset: ptr, Length: n, Size: mem.Size()}
	}
	return ptr, nil
}
