package tools

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/invopop/jsonschema"

	"github.com/stemformatics/mcp/faults"
	"github.com/stemformatics/mcp/schema"
)

// Descriptor is the self-description of one registered tool.
type Descriptor struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  []schema.Parameter `json:"parameters"`
	InputSchema *jsonschema.Schema `json:"input_schema,omitempty"`
}

// Registry is the declarative catalog mapping tool names to handlers.
// Descriptors are immutable after registration and names are unique.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]ITool
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]ITool),
	}
}

// Register adds a tool; a duplicate name is a configuration error and is
// rejected.
func (r *Registry) Register(t ITool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[t.Name()]; ok {
		return errors.Errorf("tool already registered: %s", t.Name())
	}
	r.entries[t.Name()] = t
	r.order = append(r.order, t.Name())
	return nil
}

// Lookup resolves a tool by name.
func (r *Registry) Lookup(name string) (ITool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.entries[name]
	if !ok {
		return nil, faults.New(faults.UnknownTool, "unknown tool: %s", name)
	}
	return t, nil
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Descriptors returns the full catalog in registration order.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		t := r.entries[name]
		sc := t.Schema()
		out = append(out, Descriptor{
			Name:        name,
			Description: t.Description(),
			Parameters:  sc.ParameterList(),
			InputSchema: sc.Parameters,
		})
	}
	return out
}
