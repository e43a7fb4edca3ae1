package microapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// CallbackOption configures Callback and Guard.
type CallbackOption func(*callbackConfig)

type callbackConfig struct {
	exceptions ExceptionHandler
	logger     *slog.Logger
}

// WithExceptions attaches the function that produces the response when the
// handler fails.
func WithExceptions(fn ExceptionHandler) CallbackOption {
	return func(c *callbackConfig) {
		c.exceptions = fn
	}
}

// WithErrorLogger sets the logger that records contained failures.
func WithErrorLogger(l *slog.Logger) CallbackOption {
	return func(c *callbackConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

func newCallbackConfig(opts []CallbackOption) *callbackConfig {
	cfg := &callbackConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Callback adapts a route handler to the Stage contract. It is terminal: it
// writes the handler's result and never calls next. Failures are contained.
// An attached exceptions handler produces the fallback response; otherwise
// errors carrying a status are written with it, and anything else becomes
// a logged, generic 500.
func Callback(h Handler, opts ...CallbackOption) Stage {
	cfg := newCallbackConfig(opts)

	return func(c *Context, _ Next) error {
		var res *Result
		err := protect(func() error {
			var herr error
			res, herr = h(c)
			return herr
		})
		if err != nil {
			res = cfg.fallback(c, err)
		}
		writeResult(c.Response, res)
		return nil
	}
}

func (cfg *callbackConfig) fallback(c *Context, err error) *Result {
	if cfg.exceptions != nil {
		var res *Result
		perr := protect(func() error {
			res = cfg.exceptions(c, err)
			return nil
		})
		if perr == nil && res != nil {
			return res
		}
		if perr != nil {
			err = errors.Join(err, perr)
		}
	}

	var sc StatusCoder
	if (errors.As(err, &sc) && sc.StatusCode() != 0) || errors.Is(err, context.DeadlineExceeded) {
		status, body := errorResponse(err, http.StatusInternalServerError)
		return &Result{Status: status, Body: body}
	}

	cfg.logFailure(c, "handler failed", err)
	return &Result{Status: http.StatusInternalServerError, Body: internalError()}
}

func (cfg *callbackConfig) logFailure(c *Context, msg string, err error) {
	attrs := []any{
		"method", c.Request.Method,
		"path", c.Request.Path,
		"err", err,
	}
	var pe *panicError
	if errors.As(err, &pe) {
		attrs = append(attrs, "stack", string(pe.stack))
	}
	cfg.logger.ErrorContext(c.Context(), msg, attrs...)
}

// writeResult copies res onto resp. A nil result keeps whatever the handler
// wrote to the response directly.
func writeResult(resp *Response, res *Result) {
	if res != nil {
		resp.Body = res.Body
		resp.Status = res.Status
	}
	if resp.Status == 0 {
		if resp.Body == nil {
			resp.Status = http.StatusNoContent
		} else {
			resp.Status = http.StatusOK
		}
	}
}

// Guard adapts a use-declared middleware to the Stage contract. When h
// fails, its status and body are written and next is not called. Only
// WithErrorLogger applies.
func Guard(h UseHandler, opts ...CallbackOption) Stage {
	cfg := newCallbackConfig(opts)

	return func(c *Context, next Next) error {
		err := protect(func() error { return h(c) })
		if err == nil {
			err = next()
		}
		if err != nil {
			var pe *panicError
			if errors.As(err, &pe) {
				cfg.logFailure(c, "middleware panicked", err)
				c.Response.Status = http.StatusInternalServerError
				c.Response.Body = internalError()
				return nil
			}
			c.Response.Status, c.Response.Body = errorResponse(err, http.StatusInternalServerError)
		}
		return nil
	}
}

// panicError wraps a recovered panic value.
type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// protect runs fn and converts a panic into a *panicError.
func protect(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &panicError{value: rec, stack: debug.Stack()}
		}
	}()
	return fn()
}
