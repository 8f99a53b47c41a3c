package memoryhost

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ggoodman/latex-mcp-go/sessions"
	"github.com/ggoodman/latex-mcp-go/sessions/sessionhosttest"
)

func TestMemorySessionHost(t *testing.T) {
	sessionhosttest.RunSessionHostTests(t, func(t *testing.T) sessions.SessionHost {
		return New()
	})
}

func TestMaxEventsTrimsOldest(t *testing.T) {
	h := New(WithMaxEvents(2))
	ctx := context.Background()

	first, _ := h.PublishSession(ctx, "s", []byte("1"))
	second, _ := h.PublishSession(ctx, "s", []byte("2"))
	if _, err := h.PublishSession(ctx, "s", []byte("3")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	subCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	if err := h.SubscribeSession(subCtx, "s", first, func(context.Context, string, []byte) error { return nil }); !errors.Is(err, sessions.ErrEventNotFound) {
		t.Fatalf("trimmed event should not be resumable, got %v", err)
	}

	var got []string
	err := h.SubscribeSession(subCtx, "s", second, func(_ context.Context, _ string, data []byte) error {
		got = append(got, string(data))
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("subscribe: %v", err)
	}
	if len(got) != 1 || got[0] != "3" {
		t.Fatalf("unexpected replay %v", got)
	}
}
