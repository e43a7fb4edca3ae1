package microapi

// NodeKind discriminates route tree nodes.
type NodeKind uint8

const (
	// SegmentNode is a path segment holding child nodes.
	SegmentNode NodeKind = iota + 1
	// MethodNode is a terminal method handler (get, post, put, delete).
	MethodNode
	// UseNode declares the middleware for its tree level.
	UseNode
)

// String returns the string representation of NodeKind.
func (k NodeKind) String() string {
	switch k {
	case SegmentNode:
		return "segment"
	case MethodNode:
		return "method"
	case UseNode:
		return "use"
	default:
		return "unknown"
	}
}

// Method keywords accepted in a route tree.
const (
	MethodGet    = "get"
	MethodPost   = "post"
	MethodPut    = "put"
	MethodDelete = "delete"
	keywordUse   = "use"
)

var routeMethods = map[string]bool{
	MethodGet:    true,
	MethodPost:   true,
	MethodPut:    true,
	MethodDelete: true,
}

// RouteNode is a node of a route tree. Its Kind is fixed by the builder
// that created it; children keep declaration order.
type RouteNode struct {
	Kind     NodeKind
	Name     string
	Children []*RouteNode

	Handler Handler
	Options []CallbackOption

	Use UseHandler
}

// Routes returns the root of a route tree.
func Routes(children ...*RouteNode) *RouteNode {
	return &RouteNode{Kind: SegmentNode, Children: children}
}

// Dir returns a path segment. A name starting with an underscore becomes a
// path parameter: "_id" is registered as ":id".
func Dir(name string, children ...*RouteNode) *RouteNode {
	return &RouteNode{Kind: SegmentNode, Name: name, Children: children}
}

// Get returns a GET handler leaf.
func Get(h Handler, opts ...CallbackOption) *RouteNode {
	return method(MethodGet, h, opts)
}

// Post returns a POST handler leaf.
func Post(h Handler, opts ...CallbackOption) *RouteNode {
	return method(MethodPost, h, opts)
}

// Put returns a PUT handler leaf.
func Put(h Handler, opts ...CallbackOption) *RouteNode {
	return method(MethodPut, h, opts)
}

// Delete returns a DELETE handler leaf.
func Delete(h Handler, opts ...CallbackOption) *RouteNode {
	return method(MethodDelete, h, opts)
}

// Use returns the middleware leaf for the enclosing level. When a level
// declares more than one, the last declaration wins.
func Use(h UseHandler) *RouteNode {
	return &RouteNode{Kind: UseNode, Name: keywordUse, Use: h}
}

func method(name string, h Handler, opts []CallbackOption) *RouteNode {
	return &RouteNode{Kind: MethodNode, Name: name, Handler: h, Options: opts}
}

// SchemaNode mirrors a route tree and carries the contract of each method.
type SchemaNode struct {
	Segments map[string]*SchemaNode  `yaml:"segments,omitempty"`
	Methods  map[string]*MethodSchema `yaml:"methods,omitempty"`
}

// NewSchemaNode returns an empty schema tree.
func NewSchemaNode() *SchemaNode {
	return &SchemaNode{}
}

// Dir returns the child for name, creating it when missing.
func (n *SchemaNode) Dir(name string) *SchemaNode {
	if n.Segments == nil {
		n.Segments = make(map[string]*SchemaNode)
	}
	child, ok := n.Segments[name]
	if !ok {
		child = &SchemaNode{}
		n.Segments[name] = child
	}
	return child
}

// Set stores the contract for a method keyword and returns n.
func (n *SchemaNode) Set(method string, ms *MethodSchema) *SchemaNode {
	if n.Methods == nil {
		n.Methods = make(map[string]*MethodSchema)
	}
	n.Methods[method] = ms
	return n
}

// Segment returns the child for name. It is safe on a nil node.
func (n *SchemaNode) Segment(name string) *SchemaNode {
	if n == nil {
		return nil
	}
	return n.Segments[name]
}

// Method returns the contract for a method keyword. It is safe on a nil node.
func (n *SchemaNode) Method(name string) *MethodSchema {
	if n == nil {
		return nil
	}
	return n.Methods[name]
}

// MethodSchema is the contract of one route method. Request maps section
// names (path, query, body, header) to their fields; Responses maps a status
// code or "default" to the response schema.
type MethodSchema struct {
	Summary     string                    `yaml:"summary,omitempty"`
	Tags        []string                  `yaml:"tags,omitempty"`
	Request     map[string]Fields         `yaml:"request,omitempty"`
	Responses   map[string]ResponseSchema `yaml:"responses,omitempty"`
	Validations Validations               `yaml:"-"`
}

// ResponseSchema describes the body for one response status.
type ResponseSchema struct {
	Description string  `yaml:"description,omitempty"`
	Body        *Schema `yaml:"body,omitempty"`
}

// Validations are custom checks that run next to the schema checks.
type Validations struct {
	Request  RequestValidator
	Response ResponseValidator
}
