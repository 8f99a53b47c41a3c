package mcpservice

import (
	"slices"

	"github.com/ggoodman/latex-mcp-go/mcp"
)

// FieldSpec describes one input field of a tool.
type FieldSpec struct {
	Type        string
	Required    bool
	Default     any
	Enum        []any
	Description string
}

// ToolSpec is the declared shape of a tool. Order keeps the declaration
// order of Fields for listing and validation.
type ToolSpec struct {
	Name                 string
	Description          string
	Fields               map[string]FieldSpec
	Order                []string
	AllowAdditionalProps bool
}

// Clone returns a deep copy of s.
func (s ToolSpec) Clone() ToolSpec {
	out := s
	out.Order = slices.Clone(s.Order)
	out.Fields = make(map[string]FieldSpec, len(s.Fields))
	for k, f := range s.Fields {
		f.Enum = slices.Clone(f.Enum)
		out.Fields[k] = f
	}
	return out
}

// Descriptor renders s as an MCP tool descriptor.
func (s ToolSpec) Descriptor() mcp.Tool {
	props := make(map[string]mcp.SchemaProperty, len(s.Fields))
	var required []string
	for _, name := range s.Order {
		f := s.Fields[name]
		props[name] = mcp.SchemaProperty{
			Type:        f.Type,
			Description: f.Description,
			Default:     f.Default,
			Enum:        slices.Clone(f.Enum),
		}
		if f.Required {
			required = append(required, name)
		}
	}
	return mcp.Tool{
		Name:        s.Name,
		Description: s.Description,
		InputSchema: mcp.ToolInputSchema{
			Type:                 "object",
			Properties:           props,
			Required:             required,
			AdditionalProperties: s.AllowAdditionalProps,
		},
	}
}
