// Package host runs sandboxed modules against a JavaScript object graph.
//
// An Executor owns a wazero runtime, a goja runtime and the bridge between
// them. It exports the bridge's entry points as a host module, instantiates
// a guest module, binds the bridge to the guest's memory and function table,
// and chooses the allocator: the guest's own malloc and free when it exports
// them, otherwise a bridge-managed heap starting at __heap_base.
//
//	exec, err := host.NewExecutor(ctx, host.WithConfig(cfg))
//	if err != nil {
//	    return err
//	}
//	defer exec.Close(ctx)
//
//	inst, err := exec.LoadModule(ctx, wasmBytes)
//	if err != nil {
//	    return err
//	}
//	results, err := inst.Call(ctx, "main")
package host
