package hostfuncs

import (
	"errors"
	"fmt"
)

// ErrNotBound is returned by operations that need the module's memory or
// function table before Bind was called.
var ErrNotBound = errors.New("bridge is not bound to a module")

// PanicError is returned by PanicRecoveryMiddleware for a recovered panic.
type PanicError struct {
	Value    any
	Function string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Function, e.Value)
}

// Unwrap exposes a panic value that was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
