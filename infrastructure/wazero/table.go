package wazero

import (
	"context"
	"fmt"

	"github.com/reglet-dev/valbridge/domain/ports"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental/table"
)

var _ ports.FunctionTable = (*FunctionTable)(nil)

var callbackSignature = []api.ValueType{api.ValueTypeI32}

// FunctionTable performs indirect calls through a guest's function table.
// Every table entry called must have the signature (i32) -> i32.
type FunctionTable struct {
	mod        api.Module
	tableIndex uint32
}

// NewFunctionTable returns a FunctionTable over the tableIndex-th table of mod.
func NewFunctionTable(mod api.Module, tableIndex uint32) *FunctionTable {
	return &FunctionTable{mod: mod, tableIndex: tableIndex}
}

// Call implements ports.FunctionTable. The entry is looked up on every call
// because the guest may rewrite its table.
func (t *FunctionTable) Call(ctx context.Context, index, arg uint32) (uint32, error) {
	fn, err := t.lookup(index)
	if err != nil {
		return 0, err
	}
	results, err := fn.Call(ctx, api.EncodeI32(int32(arg)))
	if err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("table entry %d returned no result", index)
	}
	return api.DecodeU32(results[0]), nil
}

// lookup resolves a table entry. wazero reports missing entries and
// signature mismatches by panicking.
func (t *FunctionTable) lookup(index uint32) (fn api.Function, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("table %d entry %d is not callable as (i32) -> i32: %v", t.tableIndex, index, r)
		}
	}()
	return table.LookupFunction(t.mod, t.tableIndex, index, callbackSignature, callbackSignature), nil
}
