package microapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"
)

// Router is the default Host. It registers compiled chains on an
// http.ServeMux and implements http.Handler.
type Router struct {
	mux        *http.ServeMux
	middleware []Middleware
	specs      []PathSpec
	resolvers  []*Resolver

	title   string
	version string

	logger      *slog.Logger
	bodyLimit   int64
	compileOpts []CompileOption

	encoders []Encoder
	decoders []Decoder
	codecs   *codecs

	mu sync.Mutex
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithTitle sets the API title (used in OpenAPI spec).
func WithTitle(title string) RouterOption {
	return func(r *Router) {
		r.title = title
	}
}

// WithVersion sets the API version (used in OpenAPI spec).
func WithVersion(version string) RouterOption {
	return func(r *Router) {
		r.version = version
	}
}

// WithLogger sets the logger used by the router, its gates and its handler
// wrappers. Defaults to slog.Default().
func WithLogger(l *slog.Logger) RouterOption {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithBodyLimit caps request bodies at n bytes. Larger bodies are rejected
// with 413.
func WithBodyLimit(n int64) RouterOption {
	return func(r *Router) {
		r.bodyLimit = n
	}
}

// WithCompileOptions applies opts to every Define call.
func WithCompileOptions(opts ...CompileOption) RouterOption {
	return func(r *Router) {
		r.compileOpts = append(r.compileOpts, opts...)
	}
}

// WithEncoder registers an additional response encoder.
func WithEncoder(enc Encoder) RouterOption {
	return func(r *Router) {
		r.encoders = append(r.encoders, enc)
	}
}

// WithDecoder registers an additional request body decoder.
func WithDecoder(dec Decoder) RouterOption {
	return func(r *Router) {
		r.decoders = append(r.decoders, dec)
	}
}

// New creates a new Router with the given options.
func New(opts ...RouterOption) *Router {
	r := &Router{
		mux:    http.NewServeMux(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.codecs = newCodecs(r.bodyLimit, r.encoders, r.decoders)
	return r
}

// API is a complete definition: the route tree, the schema tree that
// mirrors it, the named definitions its schemas reference, and the global
// middleware index.
type API struct {
	Routes      *RouteNode
	Schemas     *SchemaNode
	Definitions Definitions
	Middleware  []Middleware
}

// Define resolves the API's definitions, compiles its route tree onto the
// router and adds its global middleware.
func (r *Router) Define(api API) error {
	return r.define(r, api, "/")
}

func (r *Router) define(host Host, api API, prefix string) error {
	resolver, err := NewResolver(api.Definitions)
	if err != nil {
		return fmt.Errorf("resolve definitions: %w", err)
	}

	specs, err := Compile(host, api.Routes, api.Schemas, resolver, prefix, r.defineOptions()...)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.specs = append(r.specs, specs...)
	r.resolvers = append(r.resolvers, resolver)
	r.mu.Unlock()

	r.Use(api.Middleware...)
	return nil
}

func (r *Router) defineOptions() []CompileOption {
	base := []CompileOption{
		WithCompileLogger(r.logger),
		WithCallbackOptions(WithErrorLogger(r.logger)),
		WithGateOptions(WithGateLogger(r.logger)),
	}
	return append(base, r.compileOpts...)
}

// Routes returns the compiled PathSpecs in registration order.
func (r *Router) Routes() []PathSpec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.specs)
}

// Use adds middleware to the router. Middleware is applied in the order added.
func (r *Router) Use(mw ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw...)
}

// Handle implements Host. path uses capture syntax (/users/:id).
func (r *Router) Handle(method, path string, chain ...Stage) error {
	return r.handle(method, path, r.Handler(path, nil, chain...))
}

func (r *Router) handle(method, path string, h http.Handler) (err error) {
	pattern := method + " " + muxPath(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	// ServeMux panics on conflicting patterns.
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("register %s: %v", pattern, rec)
		}
	}()
	r.mux.Handle(pattern, h)
	return nil
}

// Mount registers a plain http.Handler outside the compiled routes, such as
// a metrics endpoint. pattern is a ServeMux pattern.
func (r *Router) Mount(pattern string, h http.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mux.Handle(pattern, h)
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	mw := r.middleware
	r.mu.Unlock()

	handler := http.Handler(r.mux)
	for i := len(mw) - 1; i >= 0; i-- {
		handler = mw[i](handler)
	}
	handler.ServeHTTP(w, req)
}

// ListenAndServe starts an HTTP server on the given address.
// It blocks until the context is cancelled, then shuts down gracefully.
func (r *Router) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// ParamFunc returns the value of a path capture.
type ParamFunc func(req *http.Request, name string) string

func pathValue(req *http.Request, name string) string {
	return req.PathValue(name)
}

// Handler adapts a compiled chain to http.Handler using the router's codecs
// and body limit. path uses capture syntax; lookup reads each capture from
// the request and defaults to http.Request.PathValue. Hosts other than
// Router use it to serve chains.
func (r *Router) Handler(path string, lookup ParamFunc, chain ...Stage) http.Handler {
	if lookup == nil {
		lookup = pathValue
	}
	params := pathParams(path)

	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		in, err := r.readRequest(w, req, params, lookup)
		if err != nil {
			status, body := errorResponse(err, http.StatusBadRequest)
			r.write(w, req, &Response{Status: status, Body: body})
			return
		}

		c := NewContext(req.Context(), in)
		if err := Run(c, chain...); err != nil {
			c.Response.Status, c.Response.Body = errorResponse(err, http.StatusInternalServerError)
		}
		r.write(w, req, c.Response)
	})
}

// readRequest builds the Request a chain sees: path captures, query values
// and the decoded body.
func (r *Router) readRequest(w http.ResponseWriter, req *http.Request, params []string, lookup ParamFunc) (*Request, error) {
	in := &Request{
		Method: req.Method,
		Path:   req.URL.Path,
		Params: make(map[string]any, len(params)),
		Query:  queryValues(req),
		Header: req.Header.Clone(),
		raw:    req,
	}
	for _, name := range params {
		in.Params[name] = lookup(req, name)
	}

	body, err := r.codecs.decode(w, req)
	if err != nil {
		return nil, err
	}
	in.Body = body
	return in, nil
}

// queryValues flattens the query string: one value stays a string, repeated
// keys become a list.
func queryValues(req *http.Request) map[string]any {
	q := req.URL.Query()
	out := make(map[string]any, len(q))
	for key, vals := range q {
		switch len(vals) {
		case 0:
		case 1:
			out[key] = vals[0]
		default:
			list := make([]any, len(vals))
			for i, v := range vals {
				list[i] = v
			}
			out[key] = list
		}
	}
	return out
}

// write sends resp and logs encoding failures; the status line is already
// out by then.
func (r *Router) write(w http.ResponseWriter, req *http.Request, resp *Response) {
	if err := r.codecs.encode(w, req, resp); err != nil {
		r.logger.ErrorContext(req.Context(), "encode response",
			"method", req.Method,
			"path", req.URL.Path,
			"err", err,
		)
	}
}
