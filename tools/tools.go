package tools

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/cockroachdb/errors"

	"github.com/stemformatics/mcp/faults"
	"github.com/stemformatics/mcp/schema"
)

// ITool is a named, schema-described operation callable over the wire.
type ITool interface {
	// Name returns the wire name of the tool.
	Name() string
	// Description returns the human-readable description exposed in the
	// tool catalog.
	Description() string
	// Schema returns the reflected input schema.
	Schema() *schema.Schema

	// Call executes the tool with JSON-encoded arguments.
	Call(ctx context.Context, args json.RawMessage) (any, error)
}

type tool[I any] struct {
	name        string
	description string
	sc          *schema.Schema
	run         func(context.Context, *I) (any, error)
}

// NewTool builds a typed tool from a handler function. The input schema is
// reflected from I once at construction, so a schema problem fails at
// registration time rather than on the first call.
func NewTool[I any](name, description string, run func(context.Context, *I) (any, error)) (ITool, error) {
	if name == "" {
		return nil, errors.New("tool name is required")
	}
	sc, err := schema.New(reflect.TypeOf(*new(I)))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to reflect input schema for tool %q", name)
	}
	return &tool[I]{
		name:        name,
		description: description,
		sc:          sc,
		run:         run,
	}, nil
}

func (t *tool[I]) Name() string {
	return t.name
}

func (t *tool[I]) Description() string {
	return t.description
}

func (t *tool[I]) Schema() *schema.Schema {
	return t.sc
}

func (t *tool[I]) Call(ctx context.Context, args json.RawMessage) (any, error) {
	var in I
	if len(args) > 0 {
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, faults.Wrap(faults.Validation, err, "failed to unmarshal arguments")
		}
	}
	return t.run(ctx, &in)
}
