// Package wazero connects the bridge's entry points and ports to the wazero runtime.
//
// It handles:
//
//   - Exporting every entry of a hostfuncs.HandlerRegistry from a host module
//   - Performing indirect calls through the guest's function table
//   - Allocating in guest memory through the guest's own malloc and free
//
// # Basic Usage
//
//	registry, err := hostfuncs.NewRegistry(
//	    hostfuncs.WithMiddleware(hostfuncs.PanicRecoveryMiddleware()),
//	    hostfuncs.WithBundle(hostfuncs.AllBundles(bridge)),
//	)
//	if err != nil {
//	    return err
//	}
//
//	runtime := wazero.NewRuntime(ctx)
//	err = wazero.RegisterWithRuntime(ctx, runtime, registry,
//	    wazero.WithModuleName("env"),
//	)
//
// # Errors
//
// An entry point that returns an error aborts the guest call. The error is
// raised as a panic, which wazero recovers and returns from the exported
// function's Call wrapped with %w, so errors.As still finds the bridge error.
package wazero
