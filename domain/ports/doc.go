// Package ports defines interfaces for infrastructure operations.
// The registry, allocator and marshaller depend on these abstractions; the
// wazero adapter and the test doubles in internal/testutil implement them.
package ports
