// Package entities provides the core domain types of the bridge.
// These are plain data types shared by the registry, the allocator and the
// call marshaller; they carry no behaviour tied to a particular runtime.
package entities
