package host

import (
	"context"
	"fmt"

	"github.com/reglet-dev/valbridge/hostfuncs"
	"github.com/reglet-dev/valbridge/internal/abi"
	"github.com/reglet-dev/valbridge/log"
	"github.com/tetratelabs/wazero/api"
)

// Instance is a guest module bound to an Executor's bridge.
type Instance struct {
	exec   *Executor
	module api.Module
}

// Name returns the name the module was instantiated under.
func (i *Instance) Name() string {
	return i.module.Name()
}

// Module returns the underlying wazero module.
func (i *Instance) Module() api.Module {
	return i.module
}

// Call invokes an exported function. While it runs, ctx is the context
// callbacks into the module are made with. Host code running inside the call
// may call back into the Instance. Exceptions the module raises through the
// bridge are returned as *errors.ThrownError.
func (i *Instance) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	fn := i.module.ExportedFunction(name)
	if fn == nil {
		return nil, fmt.Errorf("module does not export %q", name)
	}

	restore := i.exec.bridge.Enter(ctx)
	defer restore()

	results, err := fn.Call(ctx, params...)
	i.exec.observe()
	if err != nil {
		i.exec.config.logger.DebugContext(ctx, "module call failed", "function", name, log.ErrorAttr(err))
		return nil, fmt.Errorf("call %q: %w", name, err)
	}
	return results, nil
}

// WriteString copies s into a fresh NUL-terminated allocation in the module's
// memory. The module owns the returned pointer.
func (i *Instance) WriteString(s string) (uint32, error) {
	b := i.exec.bridge
	if b.Allocator() == nil {
		return 0, hostfuncs.ErrNotBound
	}
	return abi.WriteCString(b.Allocator(), b.Memory(), s)
}

// ReadString decodes n bytes at ptr in the module's memory as UTF-8.
func (i *Instance) ReadString(ptr, n uint32) (string, error) {
	mem := i.exec.bridge.Memory()
	if mem == nil {
		return "", hostfuncs.ErrNotBound
	}
	return abi.ReadString(mem, ptr, n)
}

// Close closes the module. The executor can load another one afterwards.
func (i *Instance) Close(ctx context.Context) error {
	i.exec.mu.Lock()
	defer i.exec.mu.Unlock()

	if i.exec.instance == i {
		i.exec.instance = nil
	}
	return i.module.Close(ctx)
}
