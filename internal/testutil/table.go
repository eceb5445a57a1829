package testutil

import (
	"context"
	"fmt"

	"github.com/reglet-dev/valbridge/domain/ports"
)

var _ ports.FunctionTable = (*FunctionTable)(nil)

// TableFunc is a fake (i32) -> i32 table entry.
type TableFunc func(ctx context.Context, arg uint32) (uint32, error)

// TableCall records one indirect call.
type TableCall struct {
	Index uint32
	Arg   uint32
}

// FunctionTable is an in-memory ports.FunctionTable.
type FunctionTable struct {
	funcs map[uint32]TableFunc
	Calls []TableCall
}

// NewFunctionTable creates an empty table.
func NewFunctionTable() *FunctionTable {
	return &FunctionTable{funcs: make(map[uint32]TableFunc)}
}

// Set installs fn at index.
func (t *FunctionTable) Set(index uint32, fn TableFunc) {
	t.funcs[index] = fn
}

// Call implements ports.FunctionTable.
func (t *FunctionTable) Call(ctx context.Context, index, arg uint32) (uint32, error) {
	t.Calls = append(t.Calls, TableCall{Index: index, Arg: arg})
	fn, ok := t.funcs[index]
	if !ok {
		return 0, fmt.Errorf("table index %d is empty", index)
	}
	return fn(ctx, arg)
}
