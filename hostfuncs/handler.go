package hostfuncs

import (
	"context"
	"math"
)

// ValueType is the wasm type of one parameter or result of an entry point.
type ValueType byte

const (
	// ValueTypeI32 is a 32-bit integer: handles, pointers, lengths, booleans.
	ValueTypeI32 ValueType = iota + 1
	// ValueTypeI64 is a 64-bit integer.
	ValueTypeI64
	// ValueTypeF64 is a 64-bit float.
	ValueTypeF64
)

// String implements fmt.Stringer.
func (t ValueType) String() string {
	switch t {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF64:
		return "f64"
	}
	return "unknown"
}

// ValueHandler implements an entry point over raw wasm values. Parameters
// arrive in stack and results are written back into it starting at index 0,
// so stack holds max(len(params), len(results)) slots.
type ValueHandler func(ctx context.Context, stack []uint64) error

// Entry is one named entry point the module can import.
type Entry struct {
	Handler ValueHandler
	Name    string
	Params  []ValueType
	Results []ValueType

	// FixedName entries ignore the registry's name prefix.
	FixedName bool
}

// StackSize returns the number of stack slots the entry needs.
func (e Entry) StackSize() int {
	return max(len(e.Params), len(e.Results))
}

// Stack encoding helpers. i32 values travel zero-extended in a uint64 slot,
// i64 values as their two's complement bits and f64 values as their IEEE 754
// bits.

func argI32(stack []uint64, i int) uint32 {
	return uint32(stack[i])
}

func argI64(stack []uint64, i int) uint64 {
	return stack[i]
}

func argF64(stack []uint64, i int) float64 {
	return math.Float64frombits(stack[i])
}

func putI32(stack []uint64, v uint32) {
	stack[0] = uint64(v)
}

func putI64(stack []uint64, v uint64) {
	stack[0] = v
}

func putF64(stack []uint64, v float64) {
	stack[0] = math.Float64bits(v)
}

func putBool(stack []uint64, v bool) {
	if v {
		stack[0] = 1
		return
	}
	stack[0] = 0
}
