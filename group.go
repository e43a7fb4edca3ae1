package microapi

import (
	"net/http"
	"path"
)

// Group is a collection of routes under a shared prefix with shared middleware.
type Group struct {
	router     *Router
	prefix     string
	middleware []Middleware
}

// GroupOption configures a Group.
type GroupOption func(*Group)

// WithGroupMiddleware adds middleware to the group. It wraps only the
// group's routes.
func WithGroupMiddleware(mw ...Middleware) GroupOption {
	return func(g *Group) {
		g.middleware = append(g.middleware, mw...)
	}
}

// Group creates a new route group with the given prefix and options.
func (r *Router) Group(prefix string, opts ...GroupOption) *Group {
	g := &Group{
		router: r,
		prefix: path.Join("/", prefix),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Define compiles api under the group's prefix. The API's own global
// middleware is added to the router.
func (g *Group) Define(api API) error {
	return g.router.define(g, api, g.prefix)
}

// Handle implements Host. Group middleware wraps the registered chain.
func (g *Group) Handle(method, p string, chain ...Stage) error {
	return g.router.handle(method, p, g.wrap(g.router.Handler(p, nil, chain...)))
}

func (g *Group) wrap(h http.Handler) http.Handler {
	for i := len(g.middleware) - 1; i >= 0; i-- {
		h = g.middleware[i](h)
	}
	return h
}
