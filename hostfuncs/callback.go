package hostfuncs

import (
	stdErrors "errors"

	"github.com/dop251/goja"
	"github.com/reglet-dev/valbridge/domain/entities"
	"github.com/reglet-dev/valbridge/domain/errors"
)

// MakeCallback registers a host function that calls back into the module's
// function table at index fidx. The function collects its arguments into an
// array, passes the array's handle to the table entry and returns the
// entry's i32 result as a number. A callback belongs to the module bound when
// it was made and throws a TypeError once the bridge is bound to another.
func (b *Bridge) MakeCallback(fidx uint32) (entities.Handle, error) {
	if b.table == nil {
		return 0, ErrNotBound
	}

	id := b.nextCb
	b.nextCb++
	b.callbacks[id] = fidx

	fn := b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		return b.trampoline(id, call.Arguments)
	})
	h := b.handles.Register(fn)

	b.config.logger.Debug("callback created", "id", id, "table_index", fidx, "handle", uint32(h))
	return h, nil
}

// Callbacks returns the number of callbacks made for the bound module.
func (b *Bridge) Callbacks() int {
	return len(b.callbacks)
}

// trampoline performs one callback invocation. The argument array handle is
// released on every exit path, including a panic raised to rethrow.
func (b *Bridge) trampoline(id uint32, args []goja.Value) goja.Value {
	fidx, ok := b.callbacks[id]
	if !ok {
		panic(b.vm.NewTypeError("callback %d belongs to a module that is no longer bound", id))
	}

	items := make([]interface{}, len(args))
	for i, a := range args {
		items[i] = a
	}
	argv := b.handles.Register(b.vm.NewArray(items...))
	if b.config.releaseArgs {
		defer b.handles.Release(argv)
	}

	ret, err := b.table.Call(b.ctx, fidx, uint32(argv))
	if err != nil {
		var thrown *errors.ThrownError
		if stdErrors.As(err, &thrown) {
			if v, ok := thrown.Value.(goja.Value); ok && v != nil {
				panic(v)
			}
			panic(b.vm.NewGoError(thrown))
		}
		b.config.logger.Error("callback into module failed", "table_index", fidx, "error", err)
		panic(err)
	}
	return b.vm.ToValue(int64(int32(ret)))
}
