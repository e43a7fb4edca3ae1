package microapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Checker validates decoded values against one compiled schema.
// Implementations must be safe for concurrent use.
type Checker interface {
	Check(value any) error
}

// Engine compiles resolved schemas into Checkers. Schemas are compiled once
// when routes are registered.
type Engine interface {
	Compile(s *Schema) (Checker, error)
}

// JSONSchemaEngine is the default Engine. It renders schemas as JSON Schema
// (draft 2020-12) and validates with santhosh-tekuri/jsonschema.
type JSONSchemaEngine struct {
	printer *message.Printer
}

// NewJSONSchemaEngine returns a JSONSchemaEngine with English messages.
func NewJSONSchemaEngine() *JSONSchemaEngine {
	return &JSONSchemaEngine{printer: message.NewPrinter(language.English)}
}

// Compile implements Engine.
func (e *JSONSchemaEngine) Compile(s *Schema) (Checker, error) {
	raw, err := json.Marshal(s.JSONSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat()

	const url = "schema.json"
	if err := compiler.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &jsonSchemaChecker{schema: compiled, printer: e.printer}, nil
}

type jsonSchemaChecker struct {
	schema  *jsonschema.Schema
	printer *message.Printer
}

func (c *jsonSchemaChecker) Check(value any) error {
	err := c.schema.Validate(value)
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return &SchemaError{Errors: []ValidationError{{Message: err.Error()}}}
	}

	result := &SchemaError{}
	c.collect(verr, result)
	return result
}

// collect flattens the leaves of a validation error tree.
func (c *jsonSchemaChecker) collect(verr *jsonschema.ValidationError, result *SchemaError) {
	if len(verr.Causes) > 0 {
		for _, cause := range verr.Causes {
			c.collect(cause, result)
		}
		return
	}

	if req, ok := verr.ErrorKind.(*kind.Required); ok {
		for _, missing := range req.Missing {
			result.Errors = append(result.Errors, ValidationError{
				Field:   joinField(append(slices.Clone(verr.InstanceLocation), missing)),
				Message: "is required",
			})
		}
		return
	}

	result.Errors = append(result.Errors, ValidationError{
		Field:   joinField(verr.InstanceLocation),
		Message: verr.ErrorKind.LocalizedString(c.printer),
	})
}

func joinField(loc []string) string {
	return strings.Join(loc, ".")
}

// prefixErrors qualifies field names with the section they belong to.
func prefixErrors(section string, errs []ValidationError) []ValidationError {
	out := make([]ValidationError, len(errs))
	for i, e := range errs {
		e.Field = qualify(section, e.Field)
		out[i] = e
	}
	return out
}

func qualify(section, field string) string {
	if field == "" {
		return section
	}
	return section + "." + field
}
