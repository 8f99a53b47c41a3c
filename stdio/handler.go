package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/ggoodman/latex-mcp-go/internal/engine"
	"github.com/ggoodman/latex-mcp-go/internal/jsonrpc"
	"github.com/ggoodman/latex-mcp-go/internal/logctx"
	"github.com/ggoodman/latex-mcp-go/sessions"
)

// Handler is a single-connection stdio transport. By default it reads
// os.Stdin and writes os.Stdout.
type Handler struct {
	eng *engine.Engine
	r   io.Reader
	w   io.Writer
	l   *slog.Logger

	wmu sync.Mutex
}

// NewHandler constructs a stdio Handler with defaults and applies options.
func NewHandler(eng *engine.Engine, opts ...Option) *Handler {
	h := &Handler{
		eng: eng,
		r:   os.Stdin,
		w:   os.Stdout,
		l:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type readResult struct {
	line []byte
	err  error
}

// Serve runs the event loop until EOF on the reader or ctx is cancelled. It
// is safe to call at most once per Handler. On EOF it waits for in-flight
// requests so their responses are written. On cancellation it closes the
// session and returns; late results are discarded.
func (h *Handler) Serve(ctx context.Context) error {
	sess := sessions.NewImplicit(sessions.BindingStdio)
	defer sess.Close()

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sess.ID(), Binding: string(sess.Binding())})
	h.l.InfoContext(ctx, "stdio.serve.start")

	lines := make(chan readResult)
	go h.readLoop(ctx, lines)

	var inflight sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			h.l.InfoContext(ctx, "stdio.serve.cancelled")
			return nil
		case rr := <-lines:
			if rr.err != nil {
				if errors.Is(rr.err, io.EOF) {
					inflight.Wait()
					h.l.InfoContext(ctx, "stdio.serve.eof")
					return nil
				}
				h.l.ErrorContext(ctx, "stdio.read.fail", slog.String("err", rr.err.Error()))
				return fmt.Errorf("read stdin: %w", rr.err)
			}
			h.handleLine(ctx, sess, rr.line, &inflight)
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, out chan<- readResult) {
	br := bufio.NewReader(h.r)
	for {
		line, err := br.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			select {
			case out <- readResult{line: line}:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			select {
			case out <- readResult{err: err}:
			case <-ctx.Done():
			}
			return
		}
	}
}

func (h *Handler) handleLine(ctx context.Context, sess *sessions.Session, line []byte, inflight *sync.WaitGroup) {
	line = bytes.TrimSpace(line)
	if !json.Valid(line) {
		h.l.InfoContext(ctx, "stdio.message.parse_fail")
		h.write(ctx, jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeParseError, "parse error", nil))
		return
	}
	if line[0] == '[' {
		h.write(ctx, jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeInvalidRequest, "batch requests are not supported", nil))
		return
	}

	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		h.l.InfoContext(ctx, "stdio.message.invalid", slog.String("err", err.Error()))
		h.write(ctx, jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeInvalidRequest, "invalid request", nil))
		return
	}

	switch msg.Type() {
	case "request":
		req := msg.AsRequest()
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			resp, err := h.eng.HandleRequest(ctx, sess, req)
			if err != nil {
				h.l.ErrorContext(ctx, "stdio.request.fail", slog.String("err", err.Error()))
				resp = jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
			}
			if sess.Closed() {
				h.l.InfoContext(ctx, "stdio.response.discarded", slog.String("method", req.Method))
				return
			}
			h.write(ctx, resp)
		}()
	case "notification":
		h.eng.HandleNotification(ctx, sess, msg.AsRequest())
	default:
		// The gateway never issues server-to-client requests.
		h.l.DebugContext(ctx, "stdio.response.ignored")
	}
}

func (h *Handler) write(ctx context.Context, resp *jsonrpc.Response) {
	b, err := json.Marshal(resp)
	if err != nil {
		h.l.ErrorContext(ctx, "stdio.write.encode_fail", slog.String("err", err.Error()))
		return
	}
	h.wmu.Lock()
	defer h.wmu.Unlock()
	if _, err := h.w.Write(append(b, '\n')); err != nil {
		h.l.ErrorContext(ctx, "stdio.write.fail", slog.String("err", err.Error()))
	}
}
