package ports

import "context"

// FunctionTable performs indirect calls into the sandboxed module.
type FunctionTable interface {
	// Call invokes the (i32) -> i32 function stored at index with a single
	// argument and returns its result.
	Call(ctx context.Context, index, arg uint32) (uint32, error)
}
