// Package loader reads schema and definition trees from a directory.
//
// Layout under root:
//
//	definitions/<Class>.yaml        one named definition per file
//	schemas/<segment>/.../<method>.yaml
//
// Schema directories mirror the route tree: schemas/users/_id/get.yaml
// describes GET /users/:id. A method file holds the request sections, the
// responses and optional expr rules:
//
//	request:
//	  body:
//	    name: {type: string, required: true}
//	responses:
//	  "201":
//	    body: {class: User}
//	validations:
//	  request:
//	    - rule: body.age >= 18
//	      status: 422
//	      message: must be an adult
package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bjaus/microapi"
)

var (
	// ErrOrphanSchema is returned by Attach when a schema has no route.
	ErrOrphanSchema = errors.New("schema without route")
	// ErrUnknownMethodFile is returned for a method file whose name is not
	// a route method.
	ErrUnknownMethodFile = errors.New("unknown method file")
)

var methods = map[string]bool{
	microapi.MethodGet:    true,
	microapi.MethodPost:   true,
	microapi.MethodPut:    true,
	microapi.MethodDelete: true,
}

// methodFile is the on-disk form of a method schema.
type methodFile struct {
	microapi.MethodSchema `yaml:",inline"`

	Validations struct {
		Request  []Rule `yaml:"request"`
		Response []Rule `yaml:"response"`
	} `yaml:"validations"`
}

// Load reads definitions and schemas below root. The returned API has no
// routes; pair it with handlers using Attach.
func Load(fsys fs.FS, root string) (*microapi.API, error) {
	if root == "" {
		root = "."
	}

	defs, err := loadDefinitions(fsys, path.Join(root, "definitions"))
	if err != nil {
		return nil, err
	}
	schemas, err := loadSchemas(fsys, path.Join(root, "schemas"))
	if err != nil {
		return nil, err
	}

	return &microapi.API{Schemas: schemas, Definitions: defs}, nil
}

func loadDefinitions(fsys fs.FS, dir string) (microapi.Definitions, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if errors.Is(err, fs.ErrNotExist) {
		return microapi.Definitions{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read definitions: %w", err)
	}

	defs := make(microapi.Definitions, len(entries))
	for _, e := range entries {
		name, ok := yamlName(e)
		if !ok {
			continue
		}
		var s microapi.Schema
		if err := readYAML(fsys, path.Join(dir, e.Name()), &s); err != nil {
			return nil, err
		}
		defs[name] = &s
	}
	return defs, nil
}

func loadSchemas(fsys fs.FS, dir string) (*microapi.SchemaNode, error) {
	tree := microapi.NewSchemaNode()

	err := fs.WalkDir(fsys, dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		method, ok := yamlName(d)
		if !ok {
			return nil
		}
		method = strings.ToLower(method)
		if !methods[method] {
			return fmt.Errorf("%w: %s", ErrUnknownMethodFile, p)
		}

		rel, err := relDir(dir, p)
		if err != nil {
			return err
		}
		node := tree
		for _, seg := range rel {
			node = node.Dir(seg)
		}

		ms, err := readMethod(fsys, p)
		if err != nil {
			return err
		}
		node.Set(method, ms)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load schemas: %w", err)
	}
	return tree, nil
}

func readMethod(fsys fs.FS, p string) (*microapi.MethodSchema, error) {
	var mf methodFile
	if err := readYAML(fsys, p, &mf); err != nil {
		return nil, err
	}

	ms := mf.MethodSchema
	if len(mf.Validations.Request) > 0 {
		v, err := requestValidator(mf.Validations.Request)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		ms.Validations.Request = v
	}
	if len(mf.Validations.Response) > 0 {
		v, err := responseValidator(mf.Validations.Response)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		ms.Validations.Response = v
	}
	return &ms, nil
}

func readYAML(fsys fs.FS, p string, v any) error {
	raw, err := fs.ReadFile(fsys, p)
	if err != nil {
		return fmt.Errorf("read %s: %w", p, err)
	}
	if err := yaml.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", p, err)
	}
	return nil
}

// yamlName returns the base name of a YAML file without its extension.
func yamlName(d fs.DirEntry) (string, bool) {
	if d.IsDir() {
		return "", false
	}
	ext := path.Ext(d.Name())
	if ext != ".yaml" && ext != ".yml" {
		return "", false
	}
	return strings.TrimSuffix(d.Name(), ext), true
}

// relDir returns the directory segments of p below dir.
func relDir(dir, p string) ([]string, error) {
	rel, ok := strings.CutPrefix(path.Dir(p), dir)
	if !ok {
		return nil, fmt.Errorf("%s is outside %s", p, dir)
	}
	rel = strings.Trim(rel, "/")
	if rel == "" {
		return nil, nil
	}
	return strings.Split(rel, "/"), nil
}

// Attach sets routes on api after checking that every loaded method schema
// has a matching route leaf.
func Attach(api *microapi.API, routes *microapi.RouteNode) error {
	var orphans []string
	collectOrphans(api.Schemas, routes, "", &orphans)
	if len(orphans) > 0 {
		sort.Strings(orphans)
		return fmt.Errorf("%w: %s", ErrOrphanSchema, strings.Join(orphans, ", "))
	}
	api.Routes = routes
	return nil
}

func collectOrphans(schemas *microapi.SchemaNode, routes *microapi.RouteNode, prefix string, out *[]string) {
	if schemas == nil {
		return
	}

	leaves := make(map[string]bool)
	segments := make(map[string]*microapi.RouteNode)
	if routes != nil {
		for _, child := range routes.Children {
			if child == nil {
				continue
			}
			switch child.Kind {
			case microapi.MethodNode:
				leaves[child.Name] = true
			case microapi.SegmentNode:
				segments[child.Name] = child
			case microapi.UseNode:
			}
		}
	}

	for method := range schemas.Methods {
		if !leaves[method] {
			*out = append(*out, strings.ToUpper(method)+" "+path.Join("/", prefix))
		}
	}
	for name, child := range schemas.Segments {
		collectOrphans(child, segments[name], path.Join(prefix, name), out)
	}
}
