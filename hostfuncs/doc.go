// Package hostfuncs implements the bridge's entry points in plain Go.
//
// A Bridge owns the handle registry and performs every host operation the
// sandboxed module can request. Bundles expose those operations as named
// entries over raw wasm values, and a HandlerRegistry wraps them with
// middleware. Nothing here depends on a particular wasm runtime; the
// infrastructure/wazero package links the registry into wazero.
package hostfuncs
