package microapi

import (
	"fmt"
	"log/slog"
	"path"
)

// Host registers compiled chains. Router implements it over net/http; the
// chimux package adapts a chi router.
type Host interface {
	Handle(method, path string, chain ...Stage) error
}

// UseScope decides which leaves of a tree level a use handler guards.
type UseScope uint8

const (
	// UseScopeLevel guards every leaf declared at the use handler's level.
	UseScopeLevel UseScope = iota
	// UseScopeFirstLeaf guards only the first leaf registered at the level,
	// then drops the handler. Kept for trees written against that behavior.
	UseScopeFirstLeaf
)

func (s UseScope) String() string {
	switch s {
	case UseScopeLevel:
		return "level"
	case UseScopeFirstLeaf:
		return "first-leaf"
	default:
		return "unknown"
	}
}

// CompileOption configures Compile.
type CompileOption func(*compileConfig)

type compileConfig struct {
	scope    UseScope
	gateOpts []GateOption
	cbOpts   []CallbackOption
	logger   *slog.Logger
}

// WithUseScope sets how use handlers are attached. Defaults to
// UseScopeLevel.
func WithUseScope(s UseScope) CompileOption {
	return func(c *compileConfig) {
		c.scope = s
	}
}

// WithGateOptions passes options to every gate built by Compile.
func WithGateOptions(opts ...GateOption) CompileOption {
	return func(c *compileConfig) {
		c.gateOpts = append(c.gateOpts, opts...)
	}
}

// WithCallbackOptions applies opts to every handler and use handler before
// the options declared on the leaf itself.
func WithCallbackOptions(opts ...CallbackOption) CompileOption {
	return func(c *compileConfig) {
		c.cbOpts = append(c.cbOpts, opts...)
	}
}

// WithCompileLogger sets the logger for compile-time warnings.
func WithCompileLogger(l *slog.Logger) CompileOption {
	return func(c *compileConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

type compiler struct {
	host     Host
	resolver *Resolver
	cfg      *compileConfig
	specs    []PathSpec
}

// Compile walks routes in step with schemas and registers one chain per
// method leaf on host: the validation gate, the level's use handler when it
// applies, and the wrapped handler. Segments named with a leading
// underscore become path captures. It returns the PathSpecs in
// registration order, deepest levels first.
func Compile(host Host, routes *RouteNode, schemas *SchemaNode, r *Resolver, prefix string, opts ...CompileOption) ([]PathSpec, error) {
	cfg := &compileConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}
	if routes == nil {
		return nil, nil
	}
	if r == nil {
		var err error
		if r, err = NewResolver(nil); err != nil {
			return nil, err
		}
	}
	if prefix == "" {
		prefix = "/"
	}

	c := &compiler{host: host, resolver: r, cfg: cfg}
	if err := c.level(routes, schemas, prefix); err != nil {
		return nil, err
	}

	for _, name := range r.Gaps() {
		cfg.logger.Warn("unresolved schema reference", "class", name)
	}
	return c.specs, nil
}

// level scans one tree level. Child segments are compiled as they are met;
// the level's own leaves are registered after the scan.
func (c *compiler) level(node *RouteNode, schemas *SchemaNode, prefix string) error {
	var (
		leaves  specSet
		pending UseHandler
	)

	for _, child := range node.Children {
		if child == nil {
			continue
		}

		switch child.Kind {
		case SegmentNode:
			next := path.Join(prefix, child.Name)
			if err := c.level(child, schemas.Segment(child.Name), next); err != nil {
				return err
			}

		case MethodNode:
			if !routeMethods[child.Name] {
				return fmt.Errorf("%w: %q at %s", ErrUnknownMethod, child.Name, prefix)
			}
			p := capturePath(prefix)
			if child.Handler == nil {
				return fmt.Errorf("%w: %s %s", ErrNilHandler, child.Name, p)
			}
			leaves.put(PathSpec{
				Method:  child.Name,
				Path:    p,
				Handler: child.Handler,
				Schema:  schemas.Method(child.Name),
				options: child.Options,
			})

		case UseNode:
			if child.Use == nil {
				return fmt.Errorf("%w: use at %s", ErrNilHandler, prefix)
			}
			pending = child.Use

		default:
			return fmt.Errorf("%w: %s at %s", ErrUnknownNode, child.Kind, prefix)
		}
	}

	return c.register(leaves.list(), schemas, pending)
}

func (c *compiler) register(leaves []PathSpec, schemas *SchemaNode, pending UseHandler) error {
	for _, spec := range leaves {
		gateOpts := append([]GateOption{WithRoute(spec.Path)}, c.cfg.gateOpts...)
		gate, err := BuildGate(spec.Method, schemas, c.resolver, gateOpts...)
		if err != nil {
			return fmt.Errorf("build gate for %s %s: %w", spec.HTTPMethod(), spec.Path, err)
		}

		chain := []Stage{gate}
		if pending != nil {
			chain = append(chain, Guard(pending, c.cfg.cbOpts...))
			spec.Guarded = true
			if c.cfg.scope == UseScopeFirstLeaf {
				pending = nil
			}
		}
		opts := append(append([]CallbackOption(nil), c.cfg.cbOpts...), spec.options...)
		chain = append(chain, Callback(spec.Handler, opts...))

		if err := c.host.Handle(spec.HTTPMethod(), spec.Path, chain...); err != nil {
			return fmt.Errorf("register %s %s: %w", spec.HTTPMethod(), spec.Path, err)
		}
		c.specs = append(c.specs, spec)
	}
	return nil
}

// specSet keeps leaves in declaration order keyed by "method path". A
// repeated key replaces the earlier leaf in place.
type specSet struct {
	index map[string]int
	specs []PathSpec
}

func (s *specSet) put(spec PathSpec) {
	key := spec.Method + " " + spec.Path
	if i, ok := s.index[key]; ok {
		s.specs[i] = spec
		return
	}
	if s.index == nil {
		s.index = make(map[string]int)
	}
	s.index[key] = len(s.specs)
	s.specs = append(s.specs, spec)
}

func (s *specSet) list() []PathSpec {
	return s.specs
}
