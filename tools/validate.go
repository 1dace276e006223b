package tools

import (
	"math"
	"slices"

	"github.com/stemformatics/mcp/faults"
	"github.com/stemformatics/mcp/schema"
)

// ValidateArguments checks a decoded argument map against a tool's declared
// parameters: every required parameter must be present, and every present
// parameter must match its declared type. Parameters are checked in
// declaration order and the first violation wins, so the reported error is
// deterministic. Undeclared arguments are ignored.
func ValidateArguments(args map[string]any, params []schema.Parameter) error {
	for _, p := range params {
		v, ok := args[p.Name]
		if !ok || v == nil {
			if p.Required {
				return faults.Validationf(p.Name, "required parameter missing")
			}
			continue
		}
		if err := checkType(p, v); err != nil {
			return err
		}
	}
	return nil
}

func checkType(p schema.Parameter, v any) error {
	switch p.Type {
	case "string":
		s, ok := v.(string)
		if !ok {
			return faults.Validationf(p.Name, "expected a string, got %T", v)
		}
		if len(p.Enum) > 0 && !slices.Contains(p.Enum, s) {
			return faults.Validationf(p.Name, "value %q is not one of %v", s, p.Enum)
		}
	case "integer":
		f, ok := v.(float64)
		if !ok || f != math.Trunc(f) {
			return faults.Validationf(p.Name, "expected an integer, got %v", v)
		}
	case "number":
		switch v.(type) {
		case float64:
		default:
			return faults.Validationf(p.Name, "expected a number, got %T", v)
		}
	case "boolean":
		if _, ok := v.(bool); !ok {
			return faults.Validationf(p.Name, "expected a boolean, got %T", v)
		}
	case "array":
		items, ok := v.([]any)
		if !ok {
			return faults.Validationf(p.Name, "expected a list, got %T", v)
		}
		if p.Items == "string" {
			for i, item := range items {
				if _, ok := item.(string); !ok {
					return faults.Validationf(p.Name, "element %d: expected a string, got %T", i, item)
				}
			}
		}
	}
	return nil
}
