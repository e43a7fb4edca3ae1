package microapi

import (
	"slices"
)

// Schema is a schema shape. Object schemas list their named children in
// Properties; Class tags the node with the name of a definition. A node
// whose Class names a registered definition is a reference and is replaced
// by that definition during resolution.
type Schema struct {
	Type        string             `yaml:"type,omitempty" json:"type,omitempty"`
	Format      string             `yaml:"format,omitempty" json:"format,omitempty"`
	Description string             `yaml:"description,omitempty" json:"description,omitempty"`
	Enum        []any              `yaml:"enum,omitempty" json:"enum,omitempty"`
	Pattern     string             `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Minimum     *float64           `yaml:"minimum,omitempty" json:"minimum,omitempty"`
	Maximum     *float64           `yaml:"maximum,omitempty" json:"maximum,omitempty"`
	MinLength   *int               `yaml:"minLength,omitempty" json:"minLength,omitempty"`
	MaxLength   *int               `yaml:"maxLength,omitempty" json:"maxLength,omitempty"`
	MinItems    *int               `yaml:"minItems,omitempty" json:"minItems,omitempty"`
	MaxItems    *int               `yaml:"maxItems,omitempty" json:"maxItems,omitempty"`
	Required    bool               `yaml:"required,omitempty" json:"required,omitempty"`
	Default     any                `yaml:"default,omitempty" json:"default,omitempty"`
	Properties  map[string]*Schema `yaml:"properties,omitempty" json:"properties,omitempty"`
	Items       *Schema            `yaml:"items,omitempty" json:"items,omitempty"`
	Class       string             `yaml:"class,omitempty" json:"class,omitempty"`

	origin *Schema // definition this node was copied from
}

// Fields maps field names to schemas. It is the shape of one request section.
type Fields map[string]*Schema

// Definitions is the registry of named, reusable schemas.
type Definitions map[string]*Schema

// Any returns a schema that accepts every value.
func Any() *Schema { return &Schema{} }

// String returns a string schema.
func String() *Schema { return &Schema{Type: "string"} }

// Integer returns an integer schema.
func Integer() *Schema { return &Schema{Type: "integer"} }

// Number returns a number schema.
func Number() *Schema { return &Schema{Type: "number"} }

// Boolean returns a boolean schema.
func Boolean() *Schema { return &Schema{Type: "boolean"} }

// Object returns an object schema with the given children. A nil map
// accepts any keys; a non-nil map declares the complete key set.
func Object(fields Fields) *Schema {
	return &Schema{Type: "object", Properties: fields}
}

// Array returns an array schema.
func Array(items *Schema) *Schema {
	return &Schema{Type: "array", Items: items}
}

// Ref returns a reference to the named definition.
func Ref(class string) *Schema {
	return &Schema{Class: class}
}

// Require marks the schema as a required child of its parent.
func (s *Schema) Require() *Schema {
	s.Required = true
	return s
}

// Describe sets the description.
func (s *Schema) Describe(d string) *Schema {
	s.Description = d
	return s
}

// WithDefault sets the value used when the field is absent.
func (s *Schema) WithDefault(v any) *Schema {
	s.Default = v
	return s
}

// WithFormat sets the string format (email, date-time, uuid, ...).
func (s *Schema) WithFormat(f string) *Schema {
	s.Format = f
	return s
}

// Label tags the schema with its definition name.
func (s *Schema) Label(class string) *Schema {
	s.Class = class
	return s
}

// OneOf restricts the schema to the given values.
func (s *Schema) OneOf(values ...any) *Schema {
	s.Enum = values
	return s
}

// Min sets the inclusive lower bound: minimum for numbers, minLength for
// strings, minItems for arrays.
func (s *Schema) Min(n int) *Schema {
	switch s.Type {
	case "string":
		s.MinLength = &n
	case "array":
		s.MinItems = &n
	default:
		f := float64(n)
		s.Minimum = &f
	}
	return s
}

// Max sets the inclusive upper bound, mirroring Min.
func (s *Schema) Max(n int) *Schema {
	switch s.Type {
	case "string":
		s.MaxLength = &n
	case "array":
		s.MaxItems = &n
	default:
		f := float64(n)
		s.Maximum = &f
	}
	return s
}

func (s *Schema) hasChildren() bool {
	return s.Properties != nil || s.Items != nil
}

// JSONSchema is the JSON Schema rendering of a Schema. It is what the
// validation engine compiles and what OpenAPI documents embed.
type JSONSchema struct {
	Type        string                 `json:"type,omitempty" yaml:"type,omitempty"`
	Format      string                 `json:"format,omitempty" yaml:"format,omitempty"`
	Description string                 `json:"description,omitempty" yaml:"description,omitempty"`
	Enum        []any                  `json:"enum,omitempty" yaml:"enum,omitempty"`
	Pattern     string                 `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Minimum     *float64               `json:"minimum,omitempty" yaml:"minimum,omitempty"`
	Maximum     *float64               `json:"maximum,omitempty" yaml:"maximum,omitempty"`
	MinLength   *int                   `json:"minLength,omitempty" yaml:"minLength,omitempty"`
	MaxLength   *int                   `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`
	MinItems    *int                   `json:"minItems,omitempty" yaml:"minItems,omitempty"`
	MaxItems    *int                   `json:"maxItems,omitempty" yaml:"maxItems,omitempty"`
	Default     any                    `json:"default,omitempty" yaml:"default,omitempty"`
	Properties  map[string]*JSONSchema `json:"properties,omitempty" yaml:"properties,omitempty"`
	Items       *JSONSchema            `json:"items,omitempty" yaml:"items,omitempty"`
	Required    []string               `json:"required,omitempty" yaml:"required,omitempty"`
	Ref         string                 `json:"$ref,omitempty" yaml:"$ref,omitempty"`
}

// JSONSchema renders s with every node inlined.
func (s *Schema) JSONSchema() *JSONSchema {
	return toJSONSchema(s, nil)
}

// toJSONSchema renders s. When ref returns a non-empty string for a node,
// that node is emitted as a $ref instead of being inlined.
func toJSONSchema(s *Schema, ref func(*Schema) string) *JSONSchema {
	if s == nil {
		return &JSONSchema{}
	}
	if ref != nil {
		if r := ref(s); r != "" {
			return &JSONSchema{Ref: r}
		}
	}

	js := &JSONSchema{
		Type:        s.Type,
		Format:      s.Format,
		Description: s.Description,
		Enum:        s.Enum,
		Pattern:     s.Pattern,
		Minimum:     s.Minimum,
		Maximum:     s.Maximum,
		MinLength:   s.MinLength,
		MaxLength:   s.MaxLength,
		MinItems:    s.MinItems,
		MaxItems:    s.MaxItems,
		Default:     s.Default,
	}

	if s.Properties != nil {
		if js.Type == "" {
			js.Type = "object"
		}
		js.Properties = make(map[string]*JSONSchema, len(s.Properties))
		for name, child := range s.Properties {
			js.Properties[name] = toJSONSchema(child, ref)
			if child != nil && child.Required {
				js.Required = append(js.Required, name)
			}
		}
		slices.Sort(js.Required)
	}

	if s.Items != nil {
		if js.Type == "" {
			js.Type = "array"
		}
		js.Items = toJSONSchema(s.Items, ref)
	}

	return js
}
