package microapi

import "context"

// Result is what a route handler produces. A zero Status means 200, or 204
// when Body is nil.
type Result struct {
	Body   any
	Status int
}

// Handler is a terminal route handler.
type Handler func(c *Context) (*Result, error)

// UseHandler is a middleware declared with Use. Returning an error ends the
// chain with the error's status and body.
type UseHandler func(c *Context) error

// ExceptionHandler produces the response for a failed Handler.
type ExceptionHandler func(c *Context, err error) *Result

// RequestValidator is a custom check run after the request schema checks.
// Returning an error rejects the request; status and body follow the error
// (see Failure).
type RequestValidator func(ctx context.Context, req *Request) error

// ResponseValidator is a custom check run after the response is shaped.
// Its errors are recorded as warnings on the response.
type ResponseValidator func(ctx context.Context, resp *Response) error
