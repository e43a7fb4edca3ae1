package microapi

import "strings"

// PathSpec is one compiled (method, path, handler) binding.
type PathSpec struct {
	Method  string // route keyword: get, post, put or delete
	Path    string // capture syntax: /users/:id
	Handler Handler
	Schema  *MethodSchema

	// Guarded reports whether a use handler runs before Handler.
	Guarded bool

	options []CallbackOption
}

// HTTPMethod returns the upper-case request method.
func (p PathSpec) HTTPMethod() string {
	return strings.ToUpper(p.Method)
}

// Pattern returns the http.ServeMux pattern for p.
func (p PathSpec) Pattern() string {
	return p.HTTPMethod() + " " + muxPath(p.Path)
}

// capturePath turns underscore segments into captures: /users/_id becomes
// /users/:id.
func capturePath(p string) string {
	return strings.ReplaceAll(p, "/_", "/:")
}

// muxPath converts capture syntax to ServeMux wildcards: /users/:id becomes
// /users/{id}. The root matches only itself.
func muxPath(p string) string {
	if p == "" || p == "/" {
		return "/{$}"
	}
	segs := strings.Split(p, "/")
	for i, s := range segs {
		if name, ok := strings.CutPrefix(s, ":"); ok && name != "" {
			segs[i] = "{" + name + "}"
		}
	}
	return strings.Join(segs, "/")
}

// openAPIPath converts capture syntax to OpenAPI templating.
func openAPIPath(p string) string {
	if p == "" {
		return "/"
	}
	return strings.TrimSuffix(muxPath(p), "{$}")
}

// pathParams lists the capture names of p in order.
func pathParams(p string) []string {
	var names []string
	for _, s := range strings.Split(p, "/") {
		if name, ok := strings.CutPrefix(s, ":"); ok && name != "" {
			names = append(names, name)
		}
	}
	return names
}
