package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ggoodman/latex-mcp-go/internal/jsonrpc"
	"github.com/ggoodman/latex-mcp-go/mcp"
	"github.com/ggoodman/latex-mcp-go/mcpservice"
	"github.com/ggoodman/latex-mcp-go/sessions"
)

type echoArgs struct {
	Message string `json:"message"`
	Mode    string `json:"mode,omitempty" jsonschema:"enum=plain,enum=loud,default=plain"`
}

func newTestEngine(t *testing.T, calls *int) *Engine {
	t.Helper()
	tools := mcpservice.NewToolsContainer(
		mcpservice.NewTool[echoArgs]("echo", func(ctx context.Context, s *sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[echoArgs]) error {
			*calls++
			return w.AppendText(r.Args().Mode + ":" + r.Args().Message)
		}),
		mcpservice.NewTool[struct{}]("explode", func(ctx context.Context, s *sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[struct{}]) error {
			panic("kaboom")
		}),
		mcpservice.NewTool[struct{}]("broken", func(ctx context.Context, s *sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[struct{}]) error {
			return errors.New("disk on fire")
		}),
	)
	return NewEngine(tools,
		WithServerInfo(mcp.ImplementationInfo{Name: "test", Version: "1"}),
		WithInstructions(func() string { return "use /workspaces" }),
	)
}

func request(t *testing.T, id any, method string, params any) *jsonrpc.Request {
	t.Helper()
	req := &jsonrpc.Request{JSONRPCVersion: jsonrpc.ProtocolVersion, Method: method, ID: jsonrpc.NewRequestID(id)}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			t.Fatalf("marshal params: %v", err)
		}
		req.Params = b
	}
	return req
}

func call(t *testing.T, e *Engine, req *jsonrpc.Request) *jsonrpc.Response {
	t.Helper()
	resp, err := e.HandleRequest(context.Background(), sessions.NewImplicit(sessions.BindingStdio), req)
	if err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}
	return resp
}

func TestInitialize(t *testing.T) {
	var calls int
	e := newTestEngine(t, &calls)
	sess := sessions.NewImplicit(sessions.BindingStdio)

	resp, err := e.HandleRequest(context.Background(), sess, request(t, 1, "initialize", mcp.InitializeRequest{
		ProtocolVersion: "2025-03-26",
		ClientInfo:      mcp.ImplementationInfo{Name: "client", Version: "0"},
	}))
	if err != nil || resp.Error != nil {
		t.Fatalf("initialize failed: %v %+v", err, resp.Error)
	}
	var res mcp.InitializeResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.ProtocolVersion != "2025-03-26" || res.ServerInfo.Name != "test" || res.Instructions != "use /workspaces" {
		t.Fatalf("unexpected initialize result: %+v", res)
	}
	if res.Capabilities.Tools == nil {
		t.Fatalf("tools capability missing")
	}
	if sess.ProtocolVersion() != "2025-03-26" || sess.ClientName() != "client" {
		t.Fatalf("session not updated")
	}
}

func TestInitializeUnknownVersionFallsBackToLatest(t *testing.T) {
	var calls int
	e := newTestEngine(t, &calls)
	resp := call(t, e, request(t, 1, "initialize", map[string]any{"protocolVersion": "1999-01-01"}))
	var res mcp.InitializeResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.ProtocolVersion != mcp.LatestProtocolVersion {
		t.Fatalf("expected latest version, got %s", res.ProtocolVersion)
	}
}

func TestPingAndToolsList(t *testing.T) {
	var calls int
	e := newTestEngine(t, &calls)

	if resp := call(t, e, request(t, "p", "ping", nil)); resp.Error != nil || string(resp.Result) != "{}" {
		t.Fatalf("unexpected ping response: %+v %s", resp.Error, resp.Result)
	}

	resp := call(t, e, request(t, 2, "tools/list", nil))
	var res mcp.ListToolsResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Tools) != 3 || res.Tools[0].Name != "echo" {
		t.Fatalf("unexpected tools: %+v", res.Tools)
	}
	if res.Tools[0].InputSchema.Properties["mode"].Default != "plain" {
		t.Fatalf("default not advertised: %+v", res.Tools[0].InputSchema.Properties)
	}
}

func TestToolCallSuccess(t *testing.T) {
	var calls int
	e := newTestEngine(t, &calls)
	resp := call(t, e, request(t, 3, "tools/call", map[string]any{"name": "echo", "arguments": map[string]any{"message": "hi"}}))
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	var res mcp.CallToolResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Content) != 1 || res.Content[0].Text != "plain:hi" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestToolCallErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		params   map[string]any
		code     jsonrpc.ErrorCode
		dataKey  string
		dataWant string
	}{
		{"unknown tool", map[string]any{"name": "nope"}, jsonrpc.ErrorCodeInvalidParams, "tool", "nope"},
		{"missing field", map[string]any{"name": "echo", "arguments": map[string]any{}}, jsonrpc.ErrorCodeInvalidParams, "field", "message"},
		{"bad enum", map[string]any{"name": "echo", "arguments": map[string]any{"message": "x", "mode": "shout"}}, jsonrpc.ErrorCodeInvalidParams, "field", "mode"},
		{"missing name", map[string]any{}, jsonrpc.ErrorCodeInvalidParams, "field", "name"},
		{"panic", map[string]any{"name": "explode"}, jsonrpc.ErrorCodeInternalError, "", ""},
		{"handler error", map[string]any{"name": "broken"}, jsonrpc.ErrorCodeInternalError, "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var calls int
			e := newTestEngine(t, &calls)
			resp := call(t, e, request(t, 4, "tools/call", tc.params))
			if resp.Error == nil {
				t.Fatalf("expected error response, got %s", resp.Result)
			}
			if resp.Error.Code != tc.code {
				t.Fatalf("code = %d, want %d", resp.Error.Code, tc.code)
			}
			if tc.dataKey != "" {
				data, ok := resp.Error.Data.(map[string]string)
				if !ok || data[tc.dataKey] != tc.dataWant {
					t.Fatalf("unexpected data: %#v", resp.Error.Data)
				}
			}
			if calls != 0 {
				t.Fatalf("echo handler must not run")
			}
		})
	}
}

func TestToolCallRunsDetachedFromCancellation(t *testing.T) {
	var seen error
	tools := mcpservice.NewToolsContainer(mcpservice.NewTool[struct{}]("probe", func(ctx context.Context, s *sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[struct{}]) error {
		seen = ctx.Err()
		return w.AppendText("done")
	}))
	e := NewEngine(tools)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp, err := e.HandleRequest(ctx, sessions.NewImplicit(sessions.BindingStdio), request(t, 5, "tools/call", map[string]any{"name": "probe"}))
	if err != nil || resp.Error != nil {
		t.Fatalf("unexpected failure: %v %+v", err, resp)
	}
	if seen != nil {
		t.Fatalf("tool context should not be cancelled, got %v", seen)
	}
}

func TestUnknownMethod(t *testing.T) {
	var calls int
	e := newTestEngine(t, &calls)
	resp := call(t, e, request(t, 6, "resources/list", nil))
	if resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodeMethodNotFound {
		t.Fatalf("expected method not found, got %+v", resp.Error)
	}
}
