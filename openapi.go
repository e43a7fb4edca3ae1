package microapi

import (
	"maps"
	"net/http"
	"slices"
	"strconv"
)

// OpenAPISpec is the top-level OpenAPI 3.1 document.
type OpenAPISpec struct {
	OpenAPI    string              `json:"openapi" yaml:"openapi"`
	Info       OpenAPIInfo         `json:"info" yaml:"info"`
	Paths      map[string]PathItem `json:"paths" yaml:"paths"`
	Components *Components         `json:"components,omitempty" yaml:"components,omitempty"`
}

// OpenAPIInfo holds API metadata.
type OpenAPIInfo struct {
	Title   string `json:"title" yaml:"title"`
	Version string `json:"version" yaml:"version"`
}

// Components holds the named definitions referenced from operations.
type Components struct {
	Schemas map[string]*JSONSchema `json:"schemas,omitempty" yaml:"schemas,omitempty"`
}

// PathItem maps HTTP methods to operations.
type PathItem map[string]Operation

// Operation describes a single API operation on a path.
type Operation struct {
	Summary     string        `json:"summary,omitempty" yaml:"summary,omitempty"`
	Tags        []string      `json:"tags,omitempty" yaml:"tags,omitempty"`
	Parameters  []Parameter   `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	RequestBody *RequestBody  `json:"requestBody,omitempty" yaml:"requestBody,omitempty"`
	Responses   OperationResp `json:"responses" yaml:"responses"`
}

// Parameter describes a single operation parameter.
type Parameter struct {
	Name        string      `json:"name" yaml:"name"`
	In          string      `json:"in" yaml:"in"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool        `json:"required,omitempty" yaml:"required,omitempty"`
	Schema      *JSONSchema `json:"schema" yaml:"schema"`
}

// RequestBody describes the request body.
type RequestBody struct {
	Required bool                `json:"required" yaml:"required"`
	Content  map[string]MediaObj `json:"content" yaml:"content"`
}

// MediaObj is a media type object with an optional schema.
type MediaObj struct {
	Schema *JSONSchema `json:"schema,omitempty" yaml:"schema,omitempty"`
}

// OperationResp maps HTTP status codes to response objects.
type OperationResp map[string]ResponseObj

// ResponseObj describes a single response.
type ResponseObj struct {
	Description string              `json:"description" yaml:"description"`
	Content     map[string]MediaObj `json:"content,omitempty" yaml:"content,omitempty"`
}

const componentPrefix = "#/components/schemas/"

// Spec generates the OpenAPI 3.1 document for every compiled route.
// Definitions become components; nodes substituted from a definition are
// emitted as $ref.
func (r *Router) Spec() OpenAPISpec {
	r.mu.Lock()
	specs := slices.Clone(r.specs)
	resolvers := slices.Clone(r.resolvers)
	r.mu.Unlock()

	doc := OpenAPISpec{
		OpenAPI: "3.1.0",
		Info: OpenAPIInfo{
			Title:   r.title,
			Version: r.version,
		},
		Paths: make(map[string]PathItem),
	}

	// Any node naming a registered definition is emitted as a $ref, whether
	// it was substituted already or is still a raw reference.
	ref := func(s *Schema) string {
		if s == nil || s.Class == "" {
			return ""
		}
		for _, res := range resolvers {
			if _, ok := res.Definition(s.Class); ok {
				return componentPrefix + s.Class
			}
		}
		return ""
	}

	for _, res := range resolvers {
		for name, def := range res.Definitions() {
			if doc.Components == nil {
				doc.Components = &Components{Schemas: make(map[string]*JSONSchema)}
			}
			root := def
			doc.Components.Schemas[name] = toJSONSchema(def, func(s *Schema) string {
				if s == root {
					return ""
				}
				return ref(s)
			})
		}
	}

	for _, spec := range specs {
		p := openAPIPath(spec.Path)
		if doc.Paths[p] == nil {
			doc.Paths[p] = make(PathItem)
		}
		doc.Paths[p][spec.Method] = buildOperation(spec, ref)
	}

	return doc
}

// buildOperation creates an Operation from a compiled PathSpec.
func buildOperation(spec PathSpec, ref func(*Schema) string) Operation {
	op := Operation{Responses: make(OperationResp)}
	ms := spec.Schema
	if ms == nil {
		ms = &MethodSchema{}
	}
	op.Summary = ms.Summary
	op.Tags = ms.Tags

	pathFields := ms.Request[SectionPath]
	for _, name := range pathParams(spec.Path) {
		s := pathFields[name]
		if s == nil {
			s = String()
		}
		op.Parameters = append(op.Parameters, Parameter{
			Name:        name,
			In:          "path",
			Description: s.Description,
			Required:    true,
			Schema:      toJSONSchema(s, ref),
		})
	}
	op.Parameters = append(op.Parameters, fieldParameters("query", ms.Request[SectionQuery], ref)...)
	op.Parameters = append(op.Parameters, fieldParameters("header", ms.Request[SectionHeader], ref)...)

	if body, ok := ms.Request[SectionBody]; ok {
		required := false
		for _, s := range body {
			if s != nil && s.Required {
				required = true
			}
		}
		op.RequestBody = &RequestBody{
			Required: required,
			Content: map[string]MediaObj{
				"application/json": {Schema: toJSONSchema(Object(body), ref)},
			},
		}
	}

	for key, rs := range ms.Responses {
		obj := ResponseObj{Description: responseDescription(key, rs)}
		if rs.Body != nil {
			obj.Content = map[string]MediaObj{
				"application/json": {Schema: toJSONSchema(rs.Body, ref)},
			}
		}
		op.Responses[key] = obj
	}
	if len(op.Responses) == 0 {
		op.Responses[strconv.Itoa(http.StatusOK)] = ResponseObj{Description: "Successful response"}
	}

	return op
}

// fieldParameters lists the fields of a query or header section, sorted by
// name.
func fieldParameters(in string, fields Fields, ref func(*Schema) string) []Parameter {
	var params []Parameter
	for _, name := range slices.Sorted(maps.Keys(fields)) {
		s := fields[name]
		if s == nil {
			s = Any()
		}
		params = append(params, Parameter{
			Name:        name,
			In:          in,
			Description: s.Description,
			Required:    s.Required,
			Schema:      toJSONSchema(s, ref),
		})
	}
	return params
}

func responseDescription(key string, rs ResponseSchema) string {
	if rs.Description != "" {
		return rs.Description
	}
	if code, err := strconv.Atoi(key); err == nil {
		if text := http.StatusText(code); text != "" {
			return text
		}
	}
	return "Default response"
}
