// Package engine is the dispatcher shared by both transport bindings. It
// routes decoded JSON-RPC requests to the protocol handlers and the tool
// registry and converts registry errors into JSON-RPC errors.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"slices"
	"time"

	"github.com/ggoodman/latex-mcp-go/internal/jsonrpc"
	"github.com/ggoodman/latex-mcp-go/internal/logctx"
	"github.com/ggoodman/latex-mcp-go/mcp"
	"github.com/ggoodman/latex-mcp-go/mcpservice"
	"github.com/ggoodman/latex-mcp-go/sessions"
)

// ErrInternalFault wraps handler errors and panics. Callers only ever see a
// generic internal error for it.
var ErrInternalFault = errors.New("internal fault")

// Engine coordinates protocol handling for sessions of any binding.
type Engine struct {
	tools        *mcpservice.ToolsContainer
	info         mcp.ImplementationInfo
	instructions func() string
	log          *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a custom logger for the Engine.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithServerInfo sets the implementation info returned from initialize.
func WithServerInfo(info mcp.ImplementationInfo) EngineOption {
	return func(e *Engine) { e.info = info }
}

// WithInstructions sets a function rendering the initialize instructions. It
// is called on every initialize so the text can reflect current state.
func WithInstructions(fn func() string) EngineOption {
	return func(e *Engine) { e.instructions = fn }
}

func NewEngine(tools *mcpservice.ToolsContainer, opts ...EngineOption) *Engine {
	e := &Engine{
		tools: tools,
		info:  mcp.ImplementationInfo{Name: "latex-mcp", Version: "dev"},
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// HandleRequest answers a request that carries an id. The returned error is
// only non-nil when the response itself cannot be encoded.
func (e *Engine) HandleRequest(ctx context.Context, sess *sessions.Session, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: req.Method, ID: req.ID.String(), Type: "request"})

	switch mcp.Method(req.Method) {
	case mcp.InitializeMethod:
		return e.handleInitialize(ctx, sess, req)
	case mcp.PingMethod:
		return jsonrpc.NewResultResponse(req.ID, mcp.EmptyResult{})
	case mcp.ToolsListMethod:
		return e.handleToolsList(ctx, req)
	case mcp.ToolsCallMethod:
		return e.handleToolCall(ctx, sess, req)
	}

	e.log.InfoContext(ctx, "engine.handle_request.unsupported")
	return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "method not found", nil), nil
}

// HandleNotification consumes a notification. Notifications never produce a
// response.
func (e *Engine) HandleNotification(ctx context.Context, sess *sessions.Session, req *jsonrpc.Request) {
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: req.Method, Type: "notification"})
	switch mcp.Method(req.Method) {
	case mcp.InitializedNotificationMethod:
		e.log.DebugContext(ctx, "engine.session.initialized")
	case mcp.CancelledNotificationMethod:
		// Tool calls run to completion; cancellation is acknowledged only.
		e.log.InfoContext(ctx, "engine.notification.cancel_ignored")
	default:
		e.log.DebugContext(ctx, "engine.notification.ignored")
	}
}

func (e *Engine) handleInitialize(ctx context.Context, sess *sessions.Session, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	var params mcp.InitializeRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()))
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
		}
	}

	version := mcp.LatestProtocolVersion
	if slices.Contains(mcp.SupportedProtocolVersions, params.ProtocolVersion) {
		version = params.ProtocolVersion
	}
	sess.RecordInitialize(version, params.ClientInfo.Name)

	res := &mcp.InitializeResult{
		ProtocolVersion: version,
		ServerInfo:      e.info,
	}
	res.Capabilities.Tools = &struct {
		ListChanged bool `json:"listChanged"`
	}{}
	res.Capabilities.Logging = &struct{}{}
	if e.instructions != nil {
		res.Instructions = e.instructions()
	}

	e.log.InfoContext(ctx, "engine.initialize.ok",
		slog.String("protocol_version", version),
		slog.String("client", params.ClientInfo.Name),
	)
	return jsonrpc.NewResultResponse(req.ID, res)
}

func (e *Engine) handleToolsList(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	tools := e.tools.Snapshot()
	e.log.DebugContext(ctx, "engine.handle_request.ok", slog.Int("tool_count", len(tools)))
	return jsonrpc.NewResultResponse(req.ID, &mcp.ListToolsResult{Tools: tools})
}

func (e *Engine) handleToolCall(ctx context.Context, sess *sessions.Session, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	start := time.Now()

	var params mcp.CallToolRequestReceived
	if err := json.Unmarshal(req.Params, &params); err != nil {
		e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
	}
	if params.Name == "" {
		e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", "missing tool name"))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", map[string]string{"field": "name", "reason": "missing tool name"}), nil
	}

	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: params.Name})

	// Tool calls are not cancellable once dispatched.
	res, err := e.callTool(context.WithoutCancel(ctx), sess, &params)
	dur := slog.Int64("dur_ms", time.Since(start).Milliseconds())

	var invalid *mcpservice.InvalidInputError
	switch {
	case err == nil:
		e.log.InfoContext(ctx, "engine.handle_request.ok", dur, slog.Bool("is_error", res.IsError))
		return jsonrpc.NewResultResponse(req.ID, res)
	case errors.Is(err, mcpservice.ErrUnknownTool):
		e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), dur)
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "unknown tool", map[string]string{"tool": params.Name}), nil
	case errors.As(err, &invalid):
		e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), dur)
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid input", map[string]string{"field": invalid.Field, "reason": invalid.Reason}), nil
	default:
		e.log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()), dur)
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil), nil
	}
}

// callTool dispatches to the registry and turns handler errors and panics
// into ErrInternalFault. Registry validation errors pass through unchanged.
func (e *Engine) callTool(ctx context.Context, sess *sessions.Session, params *mcp.CallToolRequestReceived) (res *mcp.CallToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.ErrorContext(ctx, "engine.tool.panic", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			res, err = nil, fmt.Errorf("%w: panic: %v", ErrInternalFault, r)
		}
	}()

	res, err = e.tools.Dispatch(ctx, sess, params.Name, params.Arguments)
	if err != nil {
		var invalid *mcpservice.InvalidInputError
		if errors.Is(err, mcpservice.ErrUnknownTool) || errors.As(err, &invalid) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrInternalFault, err)
	}
	if res == nil {
		return nil, fmt.Errorf("%w: tool %s returned no result", ErrInternalFault, params.Name)
	}
	return res, nil
}
