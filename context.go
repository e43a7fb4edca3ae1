package microapi

import (
	"context"
	"net/http"
)

// Request is the inbound half of a Context. Params, Query and Body hold
// decoded values; the gate replaces them with their validated form.
type Request struct {
	Method string
	Path   string
	Params map[string]any
	Query  map[string]any
	Body   any
	Header http.Header

	raw *http.Request
}

// Raw returns the underlying *http.Request, or nil outside a host.
func (r *Request) Raw() *http.Request { return r.raw }

// Response is the outbound half of a Context. The host writes Status, Header
// and Body once the chain returns.
type Response struct {
	Status   int
	Body     any
	Header   http.Header
	Warnings []error
}

// Context carries one request through a compiled chain. It is never shared
// between requests.
type Context struct {
	Request  *Request
	Response *Response

	ctx context.Context
}

// NewContext returns a Context for req. Hosts call this once per request.
func NewContext(ctx context.Context, req *Request) *Context {
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	return &Context{
		Request:  req,
		Response: &Response{Header: make(http.Header)},
		ctx:      ctx,
	}
}

// Context returns the request's context. Hosts cancel it to stop handlers.
func (c *Context) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// SetContext replaces the request's context.
func (c *Context) SetContext(ctx context.Context) {
	c.ctx = ctx
}

// Param returns a path parameter.
func (c *Context) Param(name string) any {
	return c.Request.Params[name]
}

type contextKey[T any] struct{}

// SetValue stores a typed value in the request context. For use in middleware.
func SetValue[T any](c *Context, val T) {
	c.ctx = context.WithValue(c.Context(), contextKey[T]{}, val)
}

// GetValue retrieves a typed value from the request context. For use in handlers.
func GetValue[T any](ctx context.Context) (T, bool) {
	val, ok := ctx.Value(contextKey[T]{}).(T)
	return val, ok
}

// Next continues a chain with its next stage.
type Next func() error

// Stage is one step of a compiled chain: the gate, a use-middleware, or a
// wrapped handler. Stages that do not call next end the chain.
type Stage func(c *Context, next Next) error

// Run executes chain against c.
func Run(c *Context, chain ...Stage) error {
	var dispatch func(i int) error
	dispatch = func(i int) error {
		if i >= len(chain) {
			return nil
		}
		return chain[i](c, func() error { return dispatch(i + 1) })
	}
	return dispatch(0)
}
