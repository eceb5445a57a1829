package hostfuncs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoEntry(name string) Entry {
	return Entry{
		Name:    name,
		Params:  []ValueType{ValueTypeI32},
		Results: []ValueType{ValueTypeI32},
		Handler: func(ctx context.Context, stack []uint64) error {
			stack[0]++
			return nil
		},
	}
}

func TestNewRegistry_Empty(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	require.NotNil(t, reg)
	assert.Empty(t, reg.Names())
}

func TestNewRegistry_WithEntry(t *testing.T) {
	reg, err := NewRegistry(WithEntry(echoEntry("inc")))
	require.NoError(t, err)

	assert.True(t, reg.Has("inc"))
	assert.False(t, reg.Has("nonexistent"))
	assert.Equal(t, []string{"inc"}, reg.Names())
}

func TestNewRegistry_DuplicateEntry(t *testing.T) {
	_, err := NewRegistry(
		WithEntry(echoEntry("test")),
		WithEntry(echoEntry("test")),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate entry name")
}

func TestNewRegistry_InvalidEntry(t *testing.T) {
	_, err := NewRegistry(WithEntry(echoEntry("")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be empty")

	_, err = NewRegistry(WithEntry(Entry{Name: "nil_handler"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no handler")
}

func TestNewRegistry_NamePrefix(t *testing.T) {
	fixed := echoEntry("emscripten_notify_memory_growth")
	fixed.FixedName = true

	reg, err := NewRegistry(
		WithNamePrefix("emlite_"),
		WithEntry(echoEntry("val_null")),
		WithEntry(fixed),
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"emlite_val_null", "emscripten_notify_memory_growth"}, reg.Names())
	e, ok := reg.Lookup("emlite_val_null")
	require.True(t, ok)
	assert.Equal(t, "emlite_val_null", e.Name)
}

func TestHandlerRegistry_Invoke(t *testing.T) {
	reg, err := NewRegistry(WithEntry(echoEntry("inc")))
	require.NoError(t, err)

	t.Run("found entry", func(t *testing.T) {
		stack := []uint64{41}
		require.NoError(t, reg.Invoke(context.Background(), "inc", stack))
		assert.Equal(t, uint64(42), stack[0])
	})

	t.Run("unknown entry", func(t *testing.T) {
		err := reg.Invoke(context.Background(), "missing", []uint64{0})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown entry point")
	})

	t.Run("short stack", func(t *testing.T) {
		err := reg.Invoke(context.Background(), "inc", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "stack slots")
	})
}

func TestHandlerRegistry_InvokeSetsFunctionName(t *testing.T) {
	var seen string
	reg, err := NewRegistry(WithEntry(Entry{
		Name: "echo_name",
		Handler: func(ctx context.Context, stack []uint64) error {
			seen = FunctionNameFrom(ctx)
			return nil
		},
	}))
	require.NoError(t, err)

	require.NoError(t, reg.Invoke(context.Background(), "echo_name", nil))
	assert.Equal(t, "echo_name", seen)
}

func TestHandlerRegistry_NamesIsCopy(t *testing.T) {
	reg, err := NewRegistry(WithEntry(echoEntry("a")), WithEntry(echoEntry("b")))
	require.NoError(t, err)

	names := reg.Names()
	names[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, reg.Names())

	entries := reg.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Name)
	assert.Equal(t, "b", entries[1].Name)
}

func TestEntry_StackSize(t *testing.T) {
	e := Entry{Params: []ValueType{ValueTypeI32, ValueTypeI32, ValueTypeI32}, Results: []ValueType{ValueTypeI32}}
	assert.Equal(t, 3, e.StackSize())
	e = Entry{Results: []ValueType{ValueTypeF64}}
	assert.Equal(t, 1, e.StackSize())
	assert.Equal(t, "f64", ValueTypeF64.String())
}
