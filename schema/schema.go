// Package schema reflects tool input structs into JSON schemas used for
// tool self-description, and flattens them into an ordered parameter list
// used by the registry to validate call arguments.
package schema

import (
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var (
	cache   = make(map[reflect.Type]*Schema)
	cacheMu sync.RWMutex
)

// Schema is the reflected input schema of a tool.
type Schema struct {
	*jsonschema.Schema
	// Parameters is the flattened function-parameter schema, with all
	// $defs references resolved inline.
	Parameters *jsonschema.Schema

	params []Parameter
}

// Parameter is one declared tool parameter in struct field order.
type Parameter struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Required    bool     `json:"required"`
	Enum        []string `json:"enum,omitempty"`
	Description string   `json:"description,omitempty"`
	// Items is the element type for array parameters.
	Items string `json:"items,omitempty"`
}

// New reflects the schema for the given struct type. Schemas are cached
// per type; reflection happens once.
func New(t reflect.Type) (*Schema, error) {
	cacheMu.RLock()
	s, ok := cache[t]
	cacheMu.RUnlock()
	if ok {
		return s, nil
	}

	s, err := buildSchema(t)
	if err != nil {
		return nil, err
	}

	cacheMu.Lock()
	cache[t] = s
	cacheMu.Unlock()
	return s, nil
}

// ParameterList returns the declared parameters in struct field order.
func (s *Schema) ParameterList() []Parameter {
	return s.params
}

func buildSchema(t reflect.Type) (*Schema, error) {
	reflected := reflectType(t)

	flat, err := flatten(reflected)
	if err != nil {
		return nil, err
	}
	params, err := parameterize(flat)
	if err != nil {
		return nil, err
	}

	return &Schema{
		Schema:     reflected,
		Parameters: flat,
		params:     params,
	}, nil
}

func reflectType(t reflect.Type) *jsonschema.Schema {
	r := new(jsonschema.Reflector)

	// Struct names may collide across packages; qualify with a hash of the
	// package path so $defs references stay unambiguous.
	r.Namer = func(t reflect.Type) string {
		name := t.Name()
		if t.Kind() == reflect.Struct && t.PkgPath() != "" {
			name = name + "@" + strconv.FormatUint(xxhash.Sum64String(t.PkgPath()+"/"+t.Name()), 10)
		}
		return name
	}

	return r.ReflectFromType(t)
}

// flatten resolves the root $ref and inlines all definition references so
// the result is a self-contained object schema.
func flatten(s *jsonschema.Schema) (*jsonschema.Schema, error) {
	rootID := strings.TrimPrefix(s.Ref, "#/$defs/")

	defs := make(map[string]*jsonschema.Schema)
	var root *jsonschema.Schema
	for name, def := range s.Definitions {
		if name == rootID {
			root = def
		} else {
			defs[name] = def
		}
	}
	if root == nil {
		return nil, errors.Errorf("schema has no root definition %q", rootID)
	}

	res := &jsonschema.Schema{
		Type:       root.Type,
		Properties: root.Properties,
		Required:   root.Required,
	}
	if err := resolveRefs(res.Properties, defs); err != nil {
		return nil, err
	}
	return res, nil
}

func resolveRefs(props *orderedmap.OrderedMap[string, *jsonschema.Schema], defs map[string]*jsonschema.Schema) error {
	if props == nil {
		return nil
	}
	for pair := props.Oldest(); pair != nil; pair = pair.Next() {
		child := pair.Value
		if child.Ref != "" {
			name := strings.TrimPrefix(child.Ref, "#/$defs/")
			def, ok := defs[name]
			if !ok {
				return errors.Errorf("unresolved schema reference %q", child.Ref)
			}
			pair.Value = def
			child = def
		}
		if child.Items != nil && child.Items.Ref != "" {
			name := strings.TrimPrefix(child.Items.Ref, "#/$defs/")
			def, ok := defs[name]
			if !ok {
				return errors.Errorf("unresolved schema reference %q", child.Items.Ref)
			}
			child.Items = def
		}
		if child.Properties != nil {
			if err := resolveRefs(child.Properties, defs); err != nil {
				return err
			}
		}
	}
	return nil
}

// parameterize turns a flattened object schema into the ordered parameter
// list consumed by argument validation.
func parameterize(flat *jsonschema.Schema) ([]Parameter, error) {
	required := make(map[string]bool, len(flat.Required))
	for _, name := range flat.Required {
		required[name] = true
	}

	var params []Parameter
	if flat.Properties == nil {
		return params, nil
	}
	for pair := flat.Properties.Oldest(); pair != nil; pair = pair.Next() {
		prop := pair.Value
		p := Parameter{
			Name:        pair.Key,
			Type:        prop.Type,
			Required:    required[pair.Key],
			Description: prop.Description,
		}
		for _, e := range prop.Enum {
			s, ok := e.(string)
			if !ok {
				return nil, errors.Errorf("parameter %q: only string enums are supported", pair.Key)
			}
			p.Enum = append(p.Enum, s)
		}
		if prop.Type == "array" && prop.Items != nil {
			p.Items = prop.Items.Type
		}
		params = append(params, p)
	}
	return params, nil
}
