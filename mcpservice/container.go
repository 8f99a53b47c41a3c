package mcpservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ggoodman/latex-mcp-go/mcp"
	"github.com/ggoodman/latex-mcp-go/sessions"
)

// ErrDuplicateTool is returned by Register for an already registered name.
var ErrDuplicateTool = errors.New("duplicate tool name")

type registeredTool struct {
	spec    ToolSpec
	handler ToolHandler
}

// ToolsContainer owns a threadsafe set of tools in registration order.
type ToolsContainer struct {
	mu    sync.RWMutex
	order []string
	tools map[string]registeredTool
}

// NewToolsContainer constructs a container with the given tools. It panics on
// invalid definitions, which are programming errors.
func NewToolsContainer(defs ...StaticTool) *ToolsContainer {
	c := &ToolsContainer{tools: make(map[string]registeredTool)}
	for _, d := range defs {
		if err := c.Register(d); err != nil {
			panic(err)
		}
	}
	return c
}

// Register adds a tool. The ToolSpec is copied, so later changes by the caller do
// not affect the registered tool.
func (c *ToolsContainer) Register(def StaticTool) error {
	name := def.Spec.Name
	if name == "" {
		return fmt.Errorf("register tool: missing name")
	}
	if def.Handler == nil {
		return fmt.Errorf("register tool %q: missing handler", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.tools[name]; exists {
		return fmt.Errorf("register tool %q: %w", name, ErrDuplicateTool)
	}
	c.tools[name] = registeredTool{spec: def.Spec.Clone(), handler: def.Handler}
	c.order = append(c.order, name)
	return nil
}

// Snapshot returns the tool descriptors in registration order.
func (c *ToolsContainer) Snapshot() []mcp.Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]mcp.Tool, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.tools[name].spec.Descriptor())
	}
	return out
}

// Spec returns a copy of the named tool's spec.
func (c *ToolsContainer) Spec(name string) (ToolSpec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tools[name]
	if !ok {
		return ToolSpec{}, false
	}
	return t.spec.Clone(), true
}

// Dispatch validates raw against the named tool's spec and invokes its
// handler. Validation failures return *InvalidInputError and the handler is
// not called.
func (c *ToolsContainer) Dispatch(ctx context.Context, session *sessions.Session, name string, raw json.RawMessage) (*mcp.CallToolResult, error) {
	c.mu.RLock()
	t, ok := c.tools[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	args, err := t.spec.Validate(raw)
	if err != nil {
		return nil, err
	}
	return t.handler(ctx, session, args)
}
