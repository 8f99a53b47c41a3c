package mcpservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"

	"github.com/ggoodman/latex-mcp-go/mcp"
	"github.com/ggoodman/latex-mcp-go/sessions"
	"github.com/invopop/jsonschema"
)

// ToolHandler receives arguments that already passed validation, with
// defaults substituted.
type ToolHandler func(ctx context.Context, session *sessions.Session, args json.RawMessage) (*mcp.CallToolResult, error)

// StaticTool pairs a tool spec with its handler.
type StaticTool struct {
	Spec    ToolSpec
	Handler ToolHandler
}

// ToolRequest is the container for tool call input, generic over the typed
// argument struct A.
type ToolRequest[A any] struct {
	name string
	raw  json.RawMessage
	args A
}

func (r *ToolRequest[A]) Name() string                  { return r.name }
func (r *ToolRequest[A]) RawArguments() json.RawMessage { return r.raw }
func (r *ToolRequest[A]) Args() A                       { return r.args }

// ToolOption configures NewTool behavior.
type ToolOption func(*toolConfig)

type toolConfig struct {
	description               string
	allowAdditionalProperties bool
}

// WithToolDescription sets the tool description used in listings.
func WithToolDescription(desc string) ToolOption {
	return func(c *toolConfig) { c.description = desc }
}

// WithToolAllowAdditionalProperties controls whether unknown fields are
// accepted. They are rejected by default.
func WithToolAllowAdditionalProperties(allow bool) ToolOption {
	return func(c *toolConfig) { c.allowAdditionalProperties = allow }
}

// NewTool builds a StaticTool from the argument struct A and a writer-based
// handler.
func NewTool[A any](name string, fn func(ctx context.Context, session *sessions.Session, w ToolResponseWriter, r *ToolRequest[A]) error, opts ...ToolOption) StaticTool {
	cfg := toolConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	spec := reflectToolSpec[A](cfg.allowAdditionalProperties)
	spec.Name = name
	spec.Description = cfg.description

	handler := func(ctx context.Context, session *sessions.Session, raw json.RawMessage) (*mcp.CallToolResult, error) {
		var a A
		dec := json.NewDecoder(bytes.NewReader(raw))
		if !cfg.allowAdditionalProperties {
			dec.DisallowUnknownFields()
		}
		if err := dec.Decode(&a); err != nil {
			return nil, &InvalidInputError{Reason: fmt.Sprintf("cannot decode arguments: %v", err)}
		}
		w := newToolResponseWriter()
		if err := fn(ctx, session, w, &ToolRequest[A]{name: name, raw: raw, args: a}); err != nil {
			return nil, err
		}
		return w.Result(), nil
	}

	return StaticTool{Spec: spec, Handler: handler}
}

// reflectToolSpec reflects A with invopop/jsonschema and keeps the parts the
// validator understands.
func reflectToolSpec[A any](allowAdditional bool) ToolSpec {
	t := reflect.TypeFor[A]()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	r := &jsonschema.Reflector{
		DoNotReference: true,
		// ExpandedStruct looks the root up by type name, which anonymous
		// structs such as struct{} do not have.
		ExpandedStruct:            t.Name() != "",
		AllowAdditionalProperties: allowAdditional,
	}
	s := r.ReflectFromType(t)

	spec := ToolSpec{Fields: map[string]FieldSpec{}, AllowAdditionalProps: allowAdditional}
	if s == nil || s.Type != "object" || s.Properties == nil {
		// Without properties the tool takes an empty object.
		return spec
	}

	for el := s.Properties.Oldest(); el != nil; el = el.Next() {
		p := el.Value
		spec.Order = append(spec.Order, el.Key)
		spec.Fields[el.Key] = FieldSpec{
			Type:        p.Type,
			Required:    slices.Contains(s.Required, el.Key),
			Default:     p.Default,
			Enum:        slices.Clone(p.Enum),
			Description: p.Description,
		}
	}
	return spec
}
