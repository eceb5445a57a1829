package hostfuncs

import (
	"context"
	"log/slog"
	"time"

	"github.com/reglet-dev/valbridge/domain/errors"
	"github.com/reglet-dev/valbridge/log"
)

// Middleware wraps a ValueHandler to add cross-cutting behaviour.
// Middleware executes in FIFO order (first registered wraps outermost).
type Middleware func(next ValueHandler) ValueHandler

// RegistryOption is a functional option for configuring a HandlerRegistry.
type RegistryOption func(*registryBuilder)

// PanicRecoveryMiddleware converts a panic inside an entry point into a
// *PanicError so the runtime adapter can abort the module call cleanly.
func PanicRecoveryMiddleware() Middleware {
	return func(next ValueHandler) ValueHandler {
		return func(ctx context.Context, stack []uint64) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &PanicError{Function: FunctionNameFrom(ctx), Value: r}
				}
			}()
			return next(ctx, stack)
		}
	}
}

// LoggingMiddleware logs every entry point call at debug level and every
// failure at error (fatal) or warn (recoverable) level, with the error's
// structured detail attached.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next ValueHandler) ValueHandler {
		return func(ctx context.Context, stack []uint64) error {
			name := FunctionNameFrom(ctx)
			err := next(ctx, stack)
			switch {
			case err == nil:
				logger.DebugContext(ctx, "entry point completed", "function", name)
			case errors.IsFatal(err):
				logger.ErrorContext(ctx, "entry point failed", "function", name, log.ErrorAttr(err))
			default:
				logger.WarnContext(ctx, "entry point raised", "function", name, log.ErrorAttr(err))
			}
			return err
		}
	}
}

// CallObserver receives the outcome of one entry point call.
type CallObserver func(function string, elapsed time.Duration, err error)

// ObserverMiddleware reports every call to observe, e.g. to feed metrics.
func ObserverMiddleware(observe CallObserver) Middleware {
	return func(next ValueHandler) ValueHandler {
		return func(ctx context.Context, stack []uint64) error {
			start := time.Now()
			err := next(ctx, stack)
			observe(FunctionNameFrom(ctx), time.Since(start), err)
			return err
		}
	}
}
