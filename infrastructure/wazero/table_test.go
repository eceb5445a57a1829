package wazero

import (
	"context"
	"testing"

	"github.com/reglet-dev/valbridge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// instantiateGuest instantiates a test guest with stub imports that are never
// called by these tests.
func instantiateGuest(t *testing.T, opts ...testutil.GuestOption) api.Module {
	t.Helper()
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	t.Cleanup(func() { _ = rt.Close(ctx) })

	noop := func(ctx context.Context, mod api.Module, stack []uint64) {}
	i32 := []api.ValueType{api.ValueTypeI32}
	_, err := rt.NewHostModuleBuilder("env").
		NewFunctionBuilder().WithGoModuleFunction(api.GoModuleFunc(noop), i32, i32).Export("val_make_int").
		NewFunctionBuilder().WithGoModuleFunction(api.GoModuleFunc(noop), i32, nil).Export("val_throw").
		NewFunctionBuilder().WithGoModuleFunction(api.GoModuleFunc(noop), []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, i32).Export("val_func_call").
		NewFunctionBuilder().WithGoModuleFunction(api.GoModuleFunc(noop), nil, i32).Export("val_new_array").
		Instantiate(ctx)
	require.NoError(t, err)

	mod, err := rt.Instantiate(ctx, testutil.GuestModule(opts...))
	require.NoError(t, err)
	return mod
}

func TestFunctionTable_Call(t *testing.T) {
	mod := instantiateGuest(t)
	table := NewFunctionTable(mod, 0)

	ret, err := table.Call(context.Background(), 0, 21)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), ret)
}

func TestFunctionTable_OutOfRange(t *testing.T) {
	mod := instantiateGuest(t)
	table := NewFunctionTable(mod, 0)

	_, err := table.Call(context.Background(), 3, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry 3")
}

func TestGuestAllocator(t *testing.T) {
	mod := instantiateGuest(t, testutil.WithGuestAllocator())

	alloc, ok := NewGuestAllocator(mod, nil)
	require.True(t, ok)

	p, err := alloc.Allocate(16)
	require.NoError(t, err)
	assert.Equal(t, uint32(1024), p)

	q, err := alloc.Allocate(8)
	require.NoError(t, err)
	assert.Equal(t, uint32(1040), q)

	require.NoError(t, alloc.Release(p))
	require.NoError(t, alloc.Release(0))

	_, err = alloc.Resize(q, 32)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "realloc")
}

func TestGuestAllocator_Missing(t *testing.T) {
	mod := instantiateGuest(t)

	_, ok := NewGuestAllocator(mod, nil)
	assert.False(t, ok)
}

func TestGuestMemory(t *testing.T) {
	mod := instantiateGuest(t)

	mem, err := GuestMemory(mod)
	require.NoError(t, err)
	assert.Equal(t, uint32(testutil.PageSize), mem.Size())
}
