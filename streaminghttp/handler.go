package streaminghttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/latex-mcp-go/internal/engine"
	"github.com/ggoodman/latex-mcp-go/internal/jsonrpc"
	"github.com/ggoodman/latex-mcp-go/internal/logctx"
	"github.com/ggoodman/latex-mcp-go/mcp"
	"github.com/ggoodman/latex-mcp-go/sessions"
	"github.com/google/uuid"
)

var (
	_ http.Handler = (*StreamingHTTPHandler)(nil)
)

var (
	jsonMediaType         = contenttype.NewMediaType("application/json")
	eventStreamMediaType  = contenttype.NewMediaType("text/event-stream")
	eventStreamMediaTypes = []contenttype.MediaType{eventStreamMediaType}
	responseMediaTypes    = []contenttype.MediaType{jsonMediaType, eventStreamMediaType}
)

const (
	lastEventIDHeader        = "Last-Event-ID"
	mcpSessionIDHeader       = "Mcp-Session-Id"
	mcpProtocolVersionHeader = "Mcp-Protocol-Version"

	authServerMetadataPath = "/.well-known/oauth-authorization-server"
	defaultPath            = "/mcp"
)

// writeJSONError emits a minimal JSON body for HTTP-layer rejections before a JSON-RPC
// message exchange is possible. Shape: {"error":{"code":<httpStatus>,"message":"<reason>"}}
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	if ct := w.Header().Get("Content-Type"); ct == "" || ct == jsonMediaType.String() {
		w.Header().Set("Content-Type", jsonMediaType.String())
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

// Option configures the StreamingHTTPHandler.
type Option func(*newConfig)

type newConfig struct {
	path   string
	logger *slog.Logger
}

// WithLogger sets the slog logger used by the handler. If not provided, logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(c *newConfig) { c.logger = l }
}

// WithPath sets the endpoint path. Defaults to /mcp.
func WithPath(path string) Option {
	return func(c *newConfig) { c.path = path }
}

// StreamingHTTPHandler implements the streamable HTTP binding of the Model
// Context Protocol on top of a session registry and a session event host.
type StreamingHTTPHandler struct {
	mux  *http.ServeMux
	log  *slog.Logger
	path string

	eng  *engine.Engine
	reg  *sessions.Registry
	host sessions.SessionHost
}

// lockedWriteFlusher wraps an io.Writer + http.Flusher with a mutex and an optional context.
// It serializes concurrent writes/flushes and avoids writing after ctx is canceled.
type lockedWriteFlusher struct {
	io.Writer
	http.Flusher
	mu  sync.Mutex
	ctx context.Context
}

func (l *lockedWriteFlusher) Write(p []byte) (int, error) {
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	return l.Writer.Write(p)
}

func (l *lockedWriteFlusher) Flush() {
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.Flusher.Flush()
}

// New constructs a StreamingHTTPHandler.
//
// Required:
//   - eng: the dispatcher shared with the other bindings
//   - reg: the registry that owns the sessions of this binding
//   - host: the per-session event stream backing GET polls
func New(eng *engine.Engine, reg *sessions.Registry, host sessions.SessionHost, opts ...Option) (*StreamingHTTPHandler, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if reg == nil {
		return nil, fmt.Errorf("session registry is required")
	}
	if host == nil {
		return nil, fmt.Errorf("SessionHost is required")
	}

	cfg := &newConfig{path: defaultPath, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(cfg)
	}
	path := "/" + strings.Trim(cfg.path, "/")

	log := cfg.logger
	if _, ok := log.Handler().(logctx.Handler); !ok {
		log = slog.New(logctx.New(log.Handler()))
	}

	h := &StreamingHTTPHandler{
		log:  log,
		path: path,
		eng:  eng,
		reg:  reg,
		host: host,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(fmt.Sprintf("POST %s", path), h.handlePostMCP)
	mux.HandleFunc(fmt.Sprintf("GET %s", path), h.handleGetMCP)
	mux.HandleFunc(fmt.Sprintf("DELETE %s", path), h.handleDeleteMCP)

	// Some clients probe for OAuth metadata before connecting. There is no
	// authorization server, so both probe locations answer with an empty document.
	mux.HandleFunc(fmt.Sprintf("GET %s", authServerMetadataPath), h.handleGetAuthorizationServerMetadata)
	if path != "/" {
		mux.HandleFunc(fmt.Sprintf("GET %s%s", path, authServerMetadataPath), h.handleGetAuthorizationServerMetadata)
	}

	h.mux = mux
	return h, nil
}

// Path returns the endpoint path the handler serves.
func (h *StreamingHTTPHandler) Path() string { return h.path }

func (h *StreamingHTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r.WithContext(logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})))
}

// handleDeleteMCP terminates an existing session. The session is removed from
// the registry and its event stream is cleaned up; later use of the id is
// answered with 404.
func (h *StreamingHTTPHandler) handleDeleteMCP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.delete.start")

	sessID := r.Header.Get(mcpSessionIDHeader)
	if sessID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing session id")
		h.log.WarnContext(ctx, "delete.missing_session_id")
		return
	}

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sessID, Binding: string(sessions.BindingStreamingHTTP)})

	if err := h.reg.Close(ctx, sessID); err != nil {
		if errors.Is(err, sessions.ErrUnknownSession) {
			writeJSONError(w, http.StatusNotFound, "unknown session")
			h.log.InfoContext(ctx, "session.delete.miss")
			return
		}
		// The session is already gone from the registry; only the stream
		// cleanup failed.
		h.log.WarnContext(ctx, "session.delete.cleanup_fail", slog.String("err", err.Error()))
	}

	w.WriteHeader(http.StatusNoContent)
	h.log.InfoContext(ctx, "http.delete.ok", slog.Duration("dur", time.Since(start)))
}

// handlePostMCP handles the POST endpoint, which is used by the client to send
// MCP messages to the server and to establish a session.
func (h *StreamingHTTPHandler) handlePostMCP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.post.start")

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		h.log.WarnContext(ctx, "content_type.unsupported")
		return
	}

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		h.log.WarnContext(ctx, "json.decode.fail", slog.String("err", err.Error()))
		return
	}
	if len(raw) > 0 && raw[0] == '[' {
		writeJSONError(w, http.StatusBadRequest, "JSON-RPC batch arrays are forbidden on streaming HTTP transport")
		h.log.WarnContext(ctx, "jsonrpc.batch.forbidden")
		return
	}

	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON-RPC message: "+err.Error())
		h.log.WarnContext(ctx, "jsonrpc.message.invalid", slog.String("err", err.Error()))
		return
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: msg.Method,
		ID:     msg.ID.String(),
		Type:   msg.Type(),
	})

	// Everything that does not depend on the session is checked before one
	// is created, so a rejected POST never leaves a session behind.
	req := msg.AsRequest()
	chosen := jsonMediaType
	if msg.Type() == "request" {
		if req == nil {
			writeJSONError(w, http.StatusBadRequest, "unrecognized JSON-RPC message")
			h.log.WarnContext(ctx, "jsonrpc.message.unrecognized")
			return
		}
		if r.Header.Get("Accept") != "" {
			chosen, _, err = contenttype.GetAcceptableMediaType(r, responseMediaTypes)
			if err != nil {
				writeJSONError(w, http.StatusNotAcceptable, "client must accept application/json or text/event-stream")
				h.log.WarnContext(ctx, "accept.unsupported", slog.String("accept", r.Header.Get("Accept")))
				return
			}
		}
	}

	var sess *sessions.Session
	sessID := r.Header.Get(mcpSessionIDHeader)
	switch {
	case sessID == "" && msg.Type() != "request":
		writeJSONError(w, http.StatusBadRequest, "missing session id")
		h.log.WarnContext(ctx, "post.missing_session_id")
		return
	case sessID == "":
		sess, err = h.reg.Create(ctx, sessions.BindingStreamingHTTP)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to create session")
			h.log.ErrorContext(ctx, "session.create.fail", slog.String("err", err.Error()))
			return
		}
	default:
		sess, err = h.reg.Lookup(sessID)
		if err != nil {
			writeJSONError(w, http.StatusNotFound, "unknown session")
			h.log.InfoContext(ctx, "session.load.miss")
			return
		}
	}

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID:       sess.ID(),
		Binding:         string(sess.Binding()),
		ProtocolVersion: sess.ProtocolVersion(),
	})

	clientPV := r.Header.Get(mcpProtocolVersionHeader)
	if clientPV != "" && sess.ProtocolVersion() != "" && clientPV != sess.ProtocolVersion() {
		writeJSONError(w, http.StatusBadRequest, "protocol version mismatch")
		h.log.WarnContext(ctx, "protocol.version.mismatch", slog.String("client_version", clientPV))
		return
	}

	w.Header().Set(mcpSessionIDHeader, sess.ID())

	switch msg.Type() {
	case "notification":
		h.eng.HandleNotification(ctx, sess, req)
		h.setProtocolVersion(w, sess)
		w.WriteHeader(http.StatusAccepted)
		h.log.InfoContext(ctx, "notification.inbound.ok", slog.Duration("dur", time.Since(start)))
		return
	case "response":
		// The gateway never issues server-to-client requests, so there is
		// nothing to correlate a client response with.
		h.setProtocolVersion(w, sess)
		w.WriteHeader(http.StatusAccepted)
		h.log.InfoContext(ctx, "response.inbound.ignored", slog.Duration("dur", time.Since(start)))
		return
	}

	res, err := h.eng.HandleRequest(ctx, sess, req)
	if err != nil {
		h.log.ErrorContext(ctx, "rpc.inbound.fail", slog.String("err", err.Error()))
		res = jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}

	// The session may have been terminated while the request was running.
	if !h.reg.Alive(sess.ID()) {
		writeJSONError(w, http.StatusNotFound, "unknown session")
		h.log.InfoContext(ctx, "rpc.response.discarded", slog.Duration("dur", time.Since(start)))
		return
	}

	if mcp.Method(req.Method) == mcp.ToolsCallMethod {
		h.publishToolLog(ctx, sess, req, res)
	}

	b, err := json.Marshal(res)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		h.log.ErrorContext(ctx, "rpc.response.marshal.fail", slog.String("err", err.Error()))
		return
	}

	h.setProtocolVersion(w, sess)

	if chosen.Matches(jsonMediaType) {
		w.Header().Set("Content-Type", jsonMediaType.String())
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(append(b, '\n')); err != nil {
			h.log.ErrorContext(ctx, "rpc.response.write.fail", slog.String("err", err.Error()))
			return
		}
		h.log.InfoContext(ctx, "rpc.inbound.ok", slog.Duration("dur", time.Since(start)))
		return
	}

	f, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		h.log.ErrorContext(ctx, "flusher.missing")
		return
	}
	wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: ctx}
	setEventStreamHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := writeSSEEvent(wf, "", b); err != nil {
		h.log.ErrorContext(ctx, "sse.write.fail", slog.String("err", err.Error()))
		return
	}
	h.log.InfoContext(ctx, "rpc.inbound.ok", slog.Duration("dur", time.Since(start)))
}

// handleGetMCP streams the session's event stream as Server-Sent Events. A
// Last-Event-ID header resumes after that event; without it only events
// published from now on are delivered. The stream ends when the client goes
// away or the session is closed.
func (h *StreamingHTTPHandler) handleGetMCP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes); err != nil {
		writeJSONError(w, http.StatusNotAcceptable, "client must accept text/event-stream")
		h.log.WarnContext(ctx, "http.get.unsupported_media_type")
		return
	}

	f, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		h.log.ErrorContext(ctx, "sse.flusher.missing")
		return
	}

	sessID := r.Header.Get(mcpSessionIDHeader)
	if sessID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing session id")
		h.log.WarnContext(ctx, "session.id.missing")
		return
	}

	sess, err := h.reg.Lookup(sessID)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "unknown session")
		h.log.InfoContext(ctx, "session.load.miss")
		return
	}

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID:       sess.ID(),
		Binding:         string(sess.Binding()),
		ProtocolVersion: sess.ProtocolVersion(),
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-sess.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: ctx}
	lastEventID := r.Header.Get(lastEventIDHeader)

	h.setProtocolVersion(w, sess)
	setEventStreamHeaders(w)
	w.WriteHeader(http.StatusOK)
	wf.Flush()

	h.log.InfoContext(ctx, "sse.stream.start", slog.String("last_event_id", lastEventID))

	err = h.host.SubscribeSession(ctx, sess.ID(), lastEventID, func(cbCtx context.Context, msgID string, bytes []byte) error {
		if err := writeSSEEvent(wf, msgID, bytes); err != nil {
			return err
		}
		h.log.DebugContext(cbCtx, "sse.message.deliver", slog.String("event_id", msgID))
		return nil
	})
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		h.log.InfoContext(ctx, "sse.stream.end", slog.Duration("dur", time.Since(start)))
	case errors.Is(err, sessions.ErrEventNotFound):
		h.log.WarnContext(ctx, "subscribe.session.resume_miss", slog.String("last_event_id", lastEventID))
	default:
		h.log.ErrorContext(ctx, "subscribe.session.fail", slog.String("err", err.Error()))
	}
}

// handleGetAuthorizationServerMetadata answers OAuth discovery probes with an
// empty document.
func (h *StreamingHTTPHandler) handleGetAuthorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", jsonMediaType.String())
	_, _ = w.Write([]byte("{}\n"))
	h.log.DebugContext(r.Context(), "wellknown.oauth.probe")
}

// publishToolLog records the outcome of a tool call on the session's event
// stream as a notifications/message log record.
func (h *StreamingHTTPHandler) publishToolLog(ctx context.Context, sess *sessions.Session, req *jsonrpc.Request, res *jsonrpc.Response) {
	var call mcp.CallToolRequestReceived
	_ = json.Unmarshal(req.Params, &call)

	level := mcp.LoggingLevelInfo
	data := map[string]any{"tool": call.Name}
	switch {
	case res.Error != nil:
		level = mcp.LoggingLevelWarning
		data["error"] = res.Error.Message
	default:
		var out struct {
			IsError bool `json:"isError"`
		}
		_ = json.Unmarshal(res.Result, &out)
		if out.IsError {
			level = mcp.LoggingLevelWarning
		}
		data["isError"] = out.IsError
	}

	n, err := jsonrpc.NewNotification(string(mcp.LoggingMessageNotificationMethod), mcp.LoggingMessageNotification{
		Level:  level,
		Logger: "latex-mcp",
		Data:   data,
	})
	if err != nil {
		h.log.ErrorContext(ctx, "session.publish.encode_fail", slog.String("err", err.Error()))
		return
	}
	b, err := json.Marshal(n)
	if err != nil {
		h.log.ErrorContext(ctx, "session.publish.encode_fail", slog.String("err", err.Error()))
		return
	}
	if _, err := h.reg.Publish(ctx, sess.ID(), b); err != nil {
		if errors.Is(err, sessions.ErrUnknownSession) {
			h.log.InfoContext(ctx, "session.publish.skipped_closed")
			return
		}
		h.log.WarnContext(ctx, "session.publish.fail", slog.String("err", err.Error()))
	}
}

func (h *StreamingHTTPHandler) setProtocolVersion(w http.ResponseWriter, sess *sessions.Session) {
	if spv := sess.ProtocolVersion(); spv != "" {
		w.Header().Set(mcpProtocolVersionHeader, spv)
	}
}

func setEventStreamHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", eventStreamMediaType.String())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// writeSSEEvent writes a Server-Sent Event carrying payload as its data field
// and flushes the response.
func writeSSEEvent(wf *lockedWriteFlusher, msgID string, payload []byte) error {
	if msgID != "" {
		if _, err := fmt.Fprintf(wf, "id: %s\n", msgID); err != nil {
			return fmt.Errorf("failed to write SSE event ID: %w", err)
		}
	}
	if _, err := wf.Write([]byte("data: ")); err != nil {
		return fmt.Errorf("failed to write SSE data prefix: %w", err)
	}
	if _, err := wf.Write(payload); err != nil {
		return fmt.Errorf("failed to write SSE payload: %w", err)
	}
	if _, err := wf.Write([]byte("\n\n")); err != nil {
		return fmt.Errorf("failed to write SSE frame terminator: %w", err)
	}
	wf.Flush()
	return nil
}
