// Package chimux registers compiled microapi chains on a go-chi router.
package chimux

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bjaus/microapi"
)

// Mux is a microapi.Host over chi.Router. Request decoding and response
// encoding follow the microapi.Router built from the options passed to New.
type Mux struct {
	mux   chi.Router
	codec *microapi.Router
	specs []microapi.PathSpec
}

// New wraps r. A nil r gets a fresh chi.NewRouter.
func New(r chi.Router, opts ...microapi.RouterOption) *Mux {
	if r == nil {
		r = chi.NewRouter()
	}
	return &Mux{mux: r, codec: microapi.New(opts...)}
}

// Define resolves and compiles api onto the chi router. It returns the
// compiled PathSpecs.
func (m *Mux) Define(api microapi.API, opts ...microapi.CompileOption) ([]microapi.PathSpec, error) {
	resolver, err := microapi.NewResolver(api.Definitions)
	if err != nil {
		return nil, fmt.Errorf("resolve definitions: %w", err)
	}
	if err := m.use(api.Middleware); err != nil {
		return nil, err
	}

	specs, err := microapi.Compile(m, api.Routes, api.Schemas, resolver, "/", opts...)
	if err != nil {
		return nil, err
	}
	m.specs = append(m.specs, specs...)
	return specs, nil
}

// use adds global middleware. chi only accepts it before the first route.
func (m *Mux) use(mw []microapi.Middleware) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("add middleware: %v", rec)
		}
	}()
	for _, fn := range mw {
		m.mux.Use(fn)
	}
	return nil
}

// Routes returns the PathSpecs compiled by Define.
func (m *Mux) Routes() []microapi.PathSpec {
	return append([]microapi.PathSpec(nil), m.specs...)
}

// Handle implements microapi.Host.
func (m *Mux) Handle(method, path string, chain ...microapi.Stage) (err error) {
	pattern := chiPattern(path)

	// chi panics on unsupported methods and conflicting wildcards.
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("register %s %s: %v", method, pattern, rec)
		}
	}()
	m.mux.Method(method, pattern, m.codec.Handler(path, urlParam, chain...))
	return nil
}

// ServeHTTP implements http.Handler.
func (m *Mux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mux.ServeHTTP(w, r)
}

func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// chiPattern converts /users/:id to /users/{id}.
func chiPattern(path string) string {
	if path == "" {
		return "/"
	}
	segs := strings.Split(path, "/")
	for i, s := range segs {
		if name, ok := strings.CutPrefix(s, ":"); ok && name != "" {
			segs[i] = "{" + name + "}"
		}
	}
	return strings.Join(segs, "/")
}
