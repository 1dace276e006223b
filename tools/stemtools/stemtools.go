// Package stemtools defines the tool catalog exposed by the server. Tool
// names are the wire contract: retrieval tools proxy the Stemformatics API
// through the caching client, analysis tools compute statistics locally
// over fetched expression matrices.
package stemtools

import (
	"context"

	"github.com/effective-security/xlog"

	"github.com/stemformatics/mcp/stemformatics"
	"github.com/stemformatics/mcp/tools"
)

var logger = xlog.NewPackageLogger("github.com/stemformatics/mcp", "stemtools")

// Service wires the tool handlers to the Stemformatics client.
type Service struct {
	client *stemformatics.Client

	// adjustPValues enables Benjamini-Hochberg correction for the local
	// analysis tools. Off unless configured.
	adjustPValues bool
}

// ServiceOption configures the service.
type ServiceOption func(*Service)

// WithPValueAdjustment enables multiple-testing correction in the local
// analysis tools.
func WithPValueAdjustment(on bool) ServiceOption {
	return func(s *Service) {
		s.adjustPValues = on
	}
}

// NewService creates the tool service.
func NewService(client *stemformatics.Client, opts ...ServiceOption) *Service {
	s := &Service{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterAll registers the full tool catalog, including the list_tools
// self-description tool.
func (s *Service) RegisterAll(reg *tools.Registry) error {
	if err := s.registerRetrieval(reg); err != nil {
		return err
	}
	if err := s.registerAnalysis(reg); err != nil {
		return err
	}
	return register(reg, "list_tools",
		"List all available tools with their parameter schemas.",
		func(_ context.Context, _ *listToolsRequest) (any, error) {
			return reg.Descriptors(), nil
		})
}

type listToolsRequest struct{}

// register builds a typed tool and adds it to the registry.
func register[I any](reg *tools.Registry, name, description string, run func(context.Context, *I) (any, error)) error {
	t, err := tools.NewTool(name, description, run)
	if err != nil {
		return err
	}
	logger.KV(xlog.DEBUG, "reason", "tool_registered", "tool", name)
	return reg.Register(t)
}
