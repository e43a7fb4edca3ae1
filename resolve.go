package microapi

import (
	"maps"
	"slices"
	"sync"
)

type visitState uint8

const (
	stateVisiting visitState = iota + 1
	stateDone
)

// Resolver substitutes definition references with their definitions.
// Resolution builds new trees and never mutates its input; substituted
// nodes are the resolved definitions themselves, shared by every referent.
// Definitions are treated as immutable once the Resolver is built.
type Resolver struct {
	raw  Definitions
	defs Definitions

	// state is only set while the registry resolves against itself.
	state map[string]visitState

	mu   sync.Mutex
	gaps map[string]struct{}
}

// NewResolver resolves the registry against itself. It fails with a
// *CycleError when a definition depends on itself.
func NewResolver(defs Definitions) (*Resolver, error) {
	r := &Resolver{
		raw:   defs,
		defs:  make(Definitions, len(defs)),
		state: make(map[string]visitState, len(defs)),
		gaps:  make(map[string]struct{}),
	}

	for _, name := range slices.Sorted(maps.Keys(defs)) {
		if _, err := r.definition(name, nil); err != nil {
			return nil, err
		}
	}
	r.state = nil

	return r, nil
}

// Resolve returns s with every known reference substituted.
func (r *Resolver) Resolve(s *Schema) (*Schema, error) {
	return r.walk(s, nil)
}

// ResolveFields resolves every field of a request section.
func (r *Resolver) ResolveFields(fields Fields) (Fields, error) {
	if fields == nil {
		return nil, nil
	}
	out := make(Fields, len(fields))
	for name, s := range fields {
		rs, err := r.walk(s, nil)
		if err != nil {
			return nil, err
		}
		out[name] = rs
	}
	return out, nil
}

// Definition returns the resolved definition for name.
func (r *Resolver) Definition(name string) (*Schema, bool) {
	s, ok := r.defs[name]
	return s, ok
}

// Definitions returns a copy of the resolved registry.
func (r *Resolver) Definitions() Definitions {
	return maps.Clone(r.defs)
}

// Label returns the definition name when s is a resolved definition.
func (r *Resolver) Label(s *Schema) (string, bool) {
	if s == nil || s.Class == "" {
		return "", false
	}
	if s.origin != nil {
		s = s.origin
	}
	if def, ok := r.defs[s.Class]; ok && def == s {
		return s.Class, true
	}
	return "", false
}

// Gaps returns the referenced names that had no definition, sorted.
func (r *Resolver) Gaps() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.gaps))
}

func (r *Resolver) definition(name string, path []string) (*Schema, error) {
	switch r.state[name] {
	case stateDone:
		return r.defs[name], nil
	case stateVisiting:
		start := slices.Index(path, name)
		if start < 0 {
			start = 0
		}
		cycle := append(slices.Clone(path[start:]), name)
		return nil, &CycleError{Path: cycle}
	}

	r.state[name] = stateVisiting
	path = append(path, name)
	src := r.raw[name]

	var (
		resolved *Schema
		err      error
	)
	switch {
	case src == nil:
		resolved = &Schema{Class: name}
	case src.Class != "" && src.Class != name:
		// An alias of another definition.
		resolved, err = r.walk(src, path)
	default:
		// The root's own class tag labels the definition.
		resolved, err = r.expand(src, path)
	}
	if err != nil {
		return nil, err
	}

	r.defs[name] = resolved
	r.state[name] = stateDone
	return resolved, nil
}

func (r *Resolver) walk(s *Schema, path []string) (*Schema, error) {
	if s == nil {
		return nil, nil
	}

	if s.Class != "" {
		def, ok, err := r.lookup(s.Class, path)
		if err != nil {
			return nil, err
		}
		if ok {
			return required(def, s.Required), nil
		}
		r.gap(s.Class)
	}

	return r.expand(s, path)
}

// expand resolves the children of s into a copy. Terminal nodes are shared.
func (r *Resolver) expand(s *Schema, path []string) (*Schema, error) {
	if !s.hasChildren() {
		return s, nil
	}

	out := *s
	if s.Properties != nil {
		out.Properties = make(map[string]*Schema, len(s.Properties))
		for name, child := range s.Properties {
			rc, err := r.walk(child, path)
			if err != nil {
				return nil, err
			}
			out.Properties[name] = rc
		}
	}
	if s.Items != nil {
		items, err := r.walk(s.Items, path)
		if err != nil {
			return nil, err
		}
		out.Items = items
	}
	return &out, nil
}

func (r *Resolver) lookup(name string, path []string) (*Schema, bool, error) {
	if _, ok := r.raw[name]; !ok {
		return nil, false, nil
	}
	if r.state == nil {
		return r.defs[name], true, nil
	}
	def, err := r.definition(name, path)
	if err != nil {
		return nil, false, err
	}
	return def, true, nil
}

func (r *Resolver) gap(name string) {
	r.mu.Lock()
	r.gaps[name] = struct{}{}
	r.mu.Unlock()
}

// required marks a substituted definition as required at the point of
// reference. The definition itself is left untouched.
func required(def *Schema, req bool) *Schema {
	if def == nil || !req || def.Required {
		return def
	}
	cp := *def
	cp.Required = true
	cp.origin = def
	return &cp
}
