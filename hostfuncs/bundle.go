package hostfuncs

import (
	"context"
	stdErrors "errors"

	"github.com/reglet-dev/valbridge/domain/entities"
	"github.com/reglet-dev/valbridge/domain/errors"
)

// HostFuncBundle is a pre-configured set of related entry points.
type HostFuncBundle interface {
	// Entries returns the bundle's entry points.
	Entries() []Entry
}

// staticBundle implements HostFuncBundle with a fixed set of entries.
type staticBundle struct {
	entries []Entry
}

func (s *staticBundle) Entries() []Entry {
	return s.entries
}

// compositeBundle combines multiple bundles into one.
type compositeBundle struct {
	bundles []HostFuncBundle
}

func (c *compositeBundle) Entries() []Entry {
	var result []Entry
	for _, bundle := range c.bundles {
		result = append(result, bundle.Entries()...)
	}
	return result
}

// WithBundle registers all entries from a bundle.
func WithBundle(bundle HostFuncBundle) RegistryOption {
	return func(b *registryBuilder) {
		for _, e := range bundle.Entries() {
			if err := b.addEntry(e); err != nil {
				b.errors = append(b.errors, err)
			}
		}
	}
}

var (
	none    []ValueType
	i32     = []ValueType{ValueTypeI32}
	i32x2   = []ValueType{ValueTypeI32, ValueTypeI32}
	i32x3   = []ValueType{ValueTypeI32, ValueTypeI32, ValueTypeI32}
	i32x4   = []ValueType{ValueTypeI32, ValueTypeI32, ValueTypeI32, ValueTypeI32}
	i64Only = []ValueType{ValueTypeI64}
	f64Only = []ValueType{ValueTypeF64}
)

// entry builds an Entry whose handler runs with ctx installed as the
// bridge's callback context.
func (b *Bridge) entry(name string, params, results []ValueType, fn func(stack []uint64) error) Entry {
	return Entry{
		Name:    name,
		Params:  params,
		Results: results,
		Handler: func(ctx context.Context, stack []uint64) error {
			restore := b.Enter(ctx)
			defer restore()
			return fn(stack)
		},
	}
}

func handleArg(stack []uint64, i int) entities.Handle {
	return entities.Handle(argI32(stack, i))
}

func (b *Bridge) constant(name string, h entities.Handle) Entry {
	return b.entry(name, none, i32, func(stack []uint64) error {
		putI32(stack, uint32(h))
		return nil
	})
}

func (b *Bridge) producer(name string, fn func() entities.Handle) Entry {
	return b.entry(name, none, i32, func(stack []uint64) error {
		putI32(stack, uint32(fn()))
		return nil
	})
}

func (b *Bridge) unaryPredicate(name string, fn func(entities.Handle) (bool, error)) Entry {
	return b.entry(name, i32, i32, func(stack []uint64) error {
		ok, err := fn(handleArg(stack, 0))
		if err != nil {
			return err
		}
		putBool(stack, ok)
		return nil
	})
}

func (b *Bridge) binaryPredicate(name string, fn func(x, y entities.Handle) (bool, error)) Entry {
	return b.entry(name, i32x2, i32, func(stack []uint64) error {
		ok, err := fn(handleArg(stack, 0), handleArg(stack, 1))
		if err != nil {
			return err
		}
		putBool(stack, ok)
		return nil
	})
}

func (b *Bridge) propertyPredicate(name string, fn func(entities.Handle, uint32, uint32) (bool, error)) Entry {
	return b.entry(name, i32x3, i32, func(stack []uint64) error {
		ok, err := fn(handleArg(stack, 0), argI32(stack, 1), argI32(stack, 2))
		if err != nil {
			return err
		}
		putBool(stack, ok)
		return nil
	})
}

func (b *Bridge) stringOut(name string, fn func(entities.Handle) (uint32, error)) Entry {
	return b.entry(name, i32, i32, func(stack []uint64) error {
		ptr, err := fn(handleArg(stack, 0))
		if err != nil {
			return err
		}
		putI32(stack, ptr)
		return nil
	})
}

func (b *Bridge) releaser(name string, fn func(entities.Handle)) Entry {
	return b.entry(name, i32, none, func(stack []uint64) error {
		fn(handleArg(stack, 0))
		return nil
	})
}

// ValueBundle returns the entry points that create, inspect, compare and
// invoke host values.
func ValueBundle(b *Bridge) HostFuncBundle {
	return &staticBundle{entries: []Entry{
		b.constant("val_null", entities.HandleNull),
		b.constant("val_undefined", entities.HandleUndefined),
		b.constant("val_false", entities.HandleFalse),
		b.constant("val_true", entities.HandleTrue),
		b.constant("val_global_this", entities.HandleGlobalThis),

		b.producer("val_new_array", b.NewArray),
		b.producer("val_new_object", b.NewObject),
		b.entry("val_make_int", i32, i32, func(stack []uint64) error {
			putI32(stack, uint32(b.MakeInt(int32(argI32(stack, 0)))))
			return nil
		}),
		b.entry("val_make_uint", i32, i32, func(stack []uint64) error {
			putI32(stack, uint32(b.MakeUint(argI32(stack, 0))))
			return nil
		}),
		b.entry("val_make_bigint", i64Only, i32, func(stack []uint64) error {
			putI32(stack, uint32(b.MakeBigInt(int64(argI64(stack, 0)))))
			return nil
		}),
		b.entry("val_make_biguint", i64Only, i32, func(stack []uint64) error {
			putI32(stack, uint32(b.MakeBigUint(argI64(stack, 0))))
			return nil
		}),
		b.entry("val_make_double", f64Only, i32, func(stack []uint64) error {
			putI32(stack, uint32(b.MakeDouble(argF64(stack, 0))))
			return nil
		}),
		b.entry("val_make_str", i32x2, i32, func(stack []uint64) error {
			h, err := b.MakeString(argI32(stack, 0), argI32(stack, 1))
			if err != nil {
				return err
			}
			putI32(stack, uint32(h))
			return nil
		}),
		b.entry("val_make_str_utf16", i32x2, i32, func(stack []uint64) error {
			h, err := b.MakeStringUTF16(argI32(stack, 0), argI32(stack, 1))
			if err != nil {
				return err
			}
			putI32(stack, uint32(h))
			return nil
		}),
		b.entry("val_make_bool", i32, i32, func(stack []uint64) error {
			putI32(stack, uint32(b.MakeBool(argI32(stack, 0) != 0)))
			return nil
		}),

		b.entry("val_get_value_int", i32, i32, func(stack []uint64) error {
			n, err := b.GetInt(handleArg(stack, 0))
			if err != nil {
				return err
			}
			putI32(stack, uint32(n))
			return nil
		}),
		b.entry("val_get_value_uint", i32, i32, func(stack []uint64) error {
			n, err := b.GetUint(handleArg(stack, 0))
			if err != nil {
				return err
			}
			putI32(stack, n)
			return nil
		}),
		b.entry("val_get_value_bigint", i32, i64Only, func(stack []uint64) error {
			n, err := b.GetBigInt(handleArg(stack, 0))
			if err != nil {
				return err
			}
			putI64(stack, uint64(n))
			return nil
		}),
		b.entry("val_get_value_biguint", i32, i64Only, func(stack []uint64) error {
			n, err := b.GetBigUint(handleArg(stack, 0))
			if err != nil {
				return err
			}
			putI64(stack, n)
			return nil
		}),
		b.entry("val_get_value_double", i32, f64Only, func(stack []uint64) error {
			f, err := b.GetDouble(handleArg(stack, 0))
			if err != nil {
				return err
			}
			putF64(stack, f)
			return nil
		}),
		b.stringOut("val_get_value_string", b.GetString),
		b.stringOut("val_get_value_string_utf16", b.GetStringUTF16),
		b.stringOut("val_typeof", b.TypeOf),

		b.entry("val_push", i32x2, none, func(stack []uint64) error {
			return b.Push(handleArg(stack, 0), handleArg(stack, 1))
		}),
		b.entry("val_get_elem", i32x2, i32, func(stack []uint64) error {
			h, err := b.GetElem(handleArg(stack, 0), argI32(stack, 1))
			if err != nil {
				return err
			}
			putI32(stack, uint32(h))
			return nil
		}),

		b.unaryPredicate("val_not", b.Not),
		b.unaryPredicate("val_is_string", b.IsString),
		b.unaryPredicate("val_is_number", b.IsNumber),
		b.unaryPredicate("val_is_bool", b.IsBool),
		b.binaryPredicate("val_gt", b.Gt),
		b.binaryPredicate("val_gte", b.Gte),
		b.binaryPredicate("val_lt", b.Lt),
		b.binaryPredicate("val_lte", b.Lte),
		b.binaryPredicate("val_equals", b.Equals),
		b.binaryPredicate("val_strictly_equals", b.StrictlyEquals),
		b.binaryPredicate("val_instanceof", b.InstanceOf),

		b.entry("val_obj_prop", i32x3, i32, func(stack []uint64) error {
			h, err := b.ObjProp(handleArg(stack, 0), argI32(stack, 1), argI32(stack, 2))
			if err != nil {
				return err
			}
			putI32(stack, uint32(h))
			return nil
		}),
		b.entry("val_obj_set_prop", i32x4, none, func(stack []uint64) error {
			return b.ObjSetProp(handleArg(stack, 0), argI32(stack, 1), argI32(stack, 2), handleArg(stack, 3))
		}),
		b.propertyPredicate("val_obj_has_prop", b.ObjHasProp),
		b.propertyPredicate("val_obj_has_own_prop", b.ObjHasOwnProp),
		b.propertyPredicate("val_obj_delete_prop", b.ObjDeleteProp),
		b.entry("val_get", i32x2, i32, func(stack []uint64) error {
			h, err := b.Get(handleArg(stack, 0), handleArg(stack, 1))
			if err != nil {
				return err
			}
			putI32(stack, uint32(h))
			return nil
		}),
		b.entry("val_set", i32x3, none, func(stack []uint64) error {
			return b.Set(handleArg(stack, 0), handleArg(stack, 1), handleArg(stack, 2))
		}),
		b.binaryPredicate("val_has", b.Has),

		b.entry("val_obj_call", i32x4, i32, func(stack []uint64) error {
			h, err := b.ObjCall(handleArg(stack, 0), argI32(stack, 1), argI32(stack, 2), handleArg(stack, 3))
			if err != nil {
				return err
			}
			putI32(stack, uint32(h))
			return nil
		}),
		b.entry("val_construct_new", i32x2, i32, func(stack []uint64) error {
			h, err := b.ConstructNew(handleArg(stack, 0), handleArg(stack, 1))
			if err != nil {
				return err
			}
			putI32(stack, uint32(h))
			return nil
		}),
		b.entry("val_func_call", i32x2, i32, func(stack []uint64) error {
			h, err := b.FuncCall(handleArg(stack, 0), handleArg(stack, 1))
			if err != nil {
				return err
			}
			putI32(stack, uint32(h))
			return nil
		}),
	}}
}

// LifecycleBundle returns the entry points that manage handle lifetimes,
// raise exceptions and create callbacks.
func LifecycleBundle(b *Bridge) HostFuncBundle {
	return &staticBundle{entries: []Entry{
		b.releaser("val_inc_ref", b.IncRef),
		b.releaser("val_dec_ref", b.DecRef),
		b.releaser("val_delete", b.Delete),
		b.entry("val_throw", i32, none, func(stack []uint64) error {
			return b.Throw(handleArg(stack, 0))
		}),
		b.entry("val_make_callback", i32, i32, func(stack []uint64) error {
			h, err := b.MakeCallback(argI32(stack, 0))
			if err != nil {
				return err
			}
			putI32(stack, uint32(h))
			return nil
		}),
		b.entry("reset_object_map", none, none, func(stack []uint64) error {
			b.ResetHandles()
			return nil
		}),
	}}
}

// MemoryBundle returns the allocator entry points and the growth notification.
// Allocation failures are reported to the module as a null pointer.
func MemoryBundle(b *Bridge) HostFuncBundle {
	growth := b.entry("emscripten_notify_memory_growth", i32, none, func(stack []uint64) error {
		b.NotifyMemoryGrowth(argI32(stack, 0))
		return nil
	})
	growth.FixedName = true

	return &staticBundle{entries: []Entry{
		b.entry("malloc", i32, i32, func(stack []uint64) error {
			ptr, err := b.Malloc(argI32(stack, 0))
			if err = nullOnExhaustion(err); err != nil {
				return err
			}
			putI32(stack, ptr)
			return nil
		}),
		b.entry("free", i32, none, func(stack []uint64) error {
			return b.Free(argI32(stack, 0))
		}),
		b.entry("realloc", i32x2, i32, func(stack []uint64) error {
			ptr, err := b.Realloc(argI32(stack, 0), argI32(stack, 1))
			if err = nullOnExhaustion(err); err != nil {
				return err
			}
			putI32(stack, ptr)
			return nil
		}),
		growth,
	}}
}

// AllBundles returns every entry point the bridge provides.
func AllBundles(b *Bridge) HostFuncBundle {
	return &compositeBundle{
		bundles: []HostFuncBundle{
			ValueBundle(b),
			LifecycleBundle(b),
			MemoryBundle(b),
		},
	}
}

func nullOnExhaustion(err error) error {
	var allocErr *errors.AllocationError
	if stdErrors.As(err, &allocErr) {
		return nil
	}
	return err
}
