package wazero

import (
	"context"
	"fmt"

	"github.com/reglet-dev/valbridge/domain/errors"
	"github.com/reglet-dev/valbridge/domain/ports"
	"github.com/tetratelabs/wazero/api"
)

var _ ports.Allocator = (*GuestAllocator)(nil)

// GuestAllocator allocates in guest memory through the guest's exported
// malloc, free and (optionally) realloc.
type GuestAllocator struct {
	malloc  api.Function
	free    api.Function
	realloc api.Function
	ctx     func() context.Context
}

// NewGuestAllocator returns an allocator backed by mod's exports. ok is false
// when mod does not export both malloc and free. ctx supplies the context for
// each call; calls usually happen from inside an entry point, so it should
// return the context of the call in progress.
func NewGuestAllocator(mod api.Module, ctx func() context.Context) (alloc *GuestAllocator, ok bool) {
	malloc := mod.ExportedFunction("malloc")
	free := mod.ExportedFunction("free")
	if malloc == nil || free == nil {
		return nil, false
	}
	if ctx == nil {
		ctx = context.Background
	}
	return &GuestAllocator{
		malloc:  malloc,
		free:    free,
		realloc: mod.ExportedFunction("realloc"),
		ctx:     ctx,
	}, true
}

// Allocate implements ports.Allocator.
func (g *GuestAllocator) Allocate(n uint32) (uint32, error) {
	ptr, err := g.call(g.malloc, api.EncodeU32(n))
	if err != nil {
		return 0, &errors.AllocationError{Requested: n, Err: err}
	}
	if ptr == 0 && n > 0 {
		return 0, &errors.AllocationError{Requested: n}
	}
	return ptr, nil
}

// Release implements ports.Allocator.
func (g *GuestAllocator) Release(ptr uint32) error {
	if ptr == 0 {
		return nil
	}
	_, err := g.free.Call(g.ctx(), api.EncodeU32(ptr))
	return err
}

// Resize implements ports.Allocator.
func (g *GuestAllocator) Resize(ptr, n uint32) (uint32, error) {
	if g.realloc == nil {
		return 0, fmt.Errorf("guest does not export realloc")
	}
	q, err := g.call(g.realloc, api.EncodeU32(ptr), api.EncodeU32(n))
	if err != nil {
		return 0, &errors.AllocationError{Requested: n, Err: err}
	}
	if q == 0 && n > 0 {
		return 0, &errors.AllocationError{Requested: n}
	}
	return q, nil
}

func (g *GuestAllocator) call(fn api.Function, params ...uint64) (uint32, error) {
	results, err := fn.Call(g.ctx(), params...)
	if err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("%s returned no result", fn.Definition().Name())
	}
	return api.DecodeU32(results[0]), nil
}
