// Package sessionhosttest holds a conformance suite for sessions.SessionHost
// implementations.
package sessionhosttest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/latex-mcp-go/internal/jsonrpc"
	"github.com/ggoodman/latex-mcp-go/sessions"
	"github.com/google/uuid"
)

// HostFactory creates a new SessionHost instance for testing.
type HostFactory func(t *testing.T) sessions.SessionHost

// RunSessionHostTests runs the complete SessionHost test suite against the provided factory.
func RunSessionHostTests(t *testing.T, factory HostFactory) {
	t.Run("Messaging_PublishAndSubscribeFromBeginning", func(t *testing.T) { testPublishAndSubscribeFromBeginning(t, factory) })
	t.Run("Messaging_PublishAndResumeFromLastEventID", func(t *testing.T) { testPublishAndSubscribeFromLastEventID(t, factory) })
	t.Run("Messaging_PreservesPublishOrder", func(t *testing.T) { testPublishOrder(t, factory) })
	t.Run("Messaging_IsolationBetweenSessions", func(t *testing.T) { testSessionIsolation(t, factory) })
	t.Run("Messaging_SubscriptionContextCancellation", func(t *testing.T) { testSubscriptionContextCancellation(t, factory) })
	t.Run("Messaging_HandlerErrorStopsSubscription", func(t *testing.T) { testHandlerErrorStopsSubscription(t, factory) })
	t.Run("Messaging_ResumeFromNonExistentEventID", func(t *testing.T) { testResumeFromNonExistentEventID(t, factory) })
	t.Run("Messaging_CleanupDropsStream", func(t *testing.T) { testCleanupDropsStream(t, factory) })
}

func sessionID(name string) string { return name + "-" + uuid.NewString() }

func notification(t *testing.T, method string) []byte {
	t.Helper()
	n, err := jsonrpc.NewNotification(method, map[string]any{"level": "info"})
	if err != nil {
		t.Fatalf("notification: %v", err)
	}
	b, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func methodOf(t *testing.T, data []byte) string {
	t.Helper()
	var got jsonrpc.Request
	if err := json.Unmarshal(data, &got); err != nil {
		t.Errorf("unmarshal: %v", err)
	}
	return got.Method
}

func testPublishAndSubscribeFromBeginning(t *testing.T, factory HostFactory) {
	h := factory(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sid := sessionID("sess-1")
	msg := notification(t, "notifications/message")

	type rec struct {
		id   string
		data []byte
	}
	var received []rec
	var mu sync.Mutex

	done := make(chan error, 1)
	go func() {
		done <- h.SubscribeSession(ctx, sid, "", func(ctx context.Context, msgID string, data []byte) error {
			mu.Lock()
			received = append(received, rec{msgID, data})
			mu.Unlock()
			cancel()
			return nil
		})
	}()

	time.Sleep(100 * time.Millisecond)

	evID, err := h.PublishSession(ctx, sid, msg)
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if evID == "" {
		t.Fatalf("expected non-empty event id")
	}

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("subscribe returned: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe timeout")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected 1 message, got %d", len(received))
	}
	if received[0].id != evID {
		t.Fatalf("expected event id %s, got %s", evID, received[0].id)
	}
	if got := methodOf(t, received[0].data); got != "notifications/message" {
		t.Fatalf("unexpected method %q", got)
	}
}

func testPublishAndSubscribeFromLastEventID(t *testing.T, factory HostFactory) {
	h := factory(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sid := sessionID("sess-2")

	ev1, err := h.PublishSession(ctx, sid, notification(t, "test/m1"))
	if err != nil {
		t.Fatalf("publish 1: %v", err)
	}
	ev2, err := h.PublishSession(ctx, sid, notification(t, "test/m2"))
	if err != nil {
		t.Fatalf("publish 2: %v", err)
	}

	var ids, methods []string
	var mu sync.Mutex
	done := make(chan error, 1)

	go func() {
		done <- h.SubscribeSession(ctx, sid, ev1, func(ctx context.Context, msgID string, data []byte) error {
			mu.Lock()
			ids = append(ids, msgID)
			methods = append(methods, methodOf(t, data))
			mu.Unlock()
			cancel()
			return nil
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("subscribe: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe timeout")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(ids) != 1 {
		t.Fatalf("expected 1 msg, got %d", len(ids))
	}
	if ids[0] != ev2 || methods[0] != "test/m2" {
		t.Fatalf("expected %s/test/m2, got %s/%s", ev2, ids[0], methods[0])
	}
}

func testPublishOrder(t *testing.T, factory HostFactory) {
	h := factory(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sid := sessionID("sess-order")
	const n = 20

	var got []string
	done := make(chan error, 1)
	go func() {
		done <- h.SubscribeSession(ctx, sid, "", func(ctx context.Context, _ string, data []byte) error {
			got = append(got, methodOf(t, data))
			if len(got) == n {
				cancel()
			}
			return nil
		})
	}()

	time.Sleep(100 * time.Millisecond)
	for i := 0; i < n; i++ {
		if _, err := h.PublishSession(ctx, sid, notification(t, fmt.Sprintf("test/%02d", i))); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("subscribe timeout")
	}

	if len(got) != n {
		t.Fatalf("expected %d messages, got %d", n, len(got))
	}
	for i, m := range got {
		if want := fmt.Sprintf("test/%02d", i); m != want {
			t.Fatalf("message %d = %s, want %s", i, m, want)
		}
	}
}

func testSessionIsolation(t *testing.T, factory HostFactory) {
	h := factory(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s1, s2 := sessionID("sess-3a"), sessionID("sess-3b")

	var got1, got2 []string
	var mu sync.Mutex

	d1 := make(chan error, 1)
	go func() {
		d1 <- h.SubscribeSession(ctx, s1, "", func(ctx context.Context, id string, data []byte) error {
			mu.Lock()
			got1 = append(got1, methodOf(t, data))
			mu.Unlock()
			return nil
		})
	}()

	d2 := make(chan error, 1)
	go func() {
		d2 <- h.SubscribeSession(ctx, s2, "", func(ctx context.Context, id string, data []byte) error {
			mu.Lock()
			got2 = append(got2, methodOf(t, data))
			mu.Unlock()
			return nil
		})
	}()

	time.Sleep(100 * time.Millisecond)
	if _, err := h.PublishSession(ctx, s1, notification(t, "test/a")); err != nil {
		t.Fatalf("publish s1: %v", err)
	}
	if _, err := h.PublishSession(ctx, s2, notification(t, "test/b")); err != nil {
		t.Fatalf("publish s2: %v", err)
	}

	time.Sleep(300 * time.Millisecond)
	cancel()

	<-d1
	<-d2

	mu.Lock()
	defer mu.Unlock()
	if len(got1) != 1 || got1[0] != "test/a" {
		t.Fatalf("s1 got %v", got1)
	}
	if len(got2) != 1 || got2[0] != "test/b" {
		t.Fatalf("s2 got %v", got2)
	}
}

func testSubscriptionContextCancellation(t *testing.T, factory HostFactory) {
	h := factory(t)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- h.SubscribeSession(ctx, sessionID("sess-4"), "", func(ctx context.Context, id string, msg []byte) error { return nil })
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("subscribe timeout")
	}
}

func testHandlerErrorStopsSubscription(t *testing.T, factory HostFactory) {
	h := factory(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sid := sessionID("sess-5")
	expectedErr := errors.New("handler error")

	done := make(chan error, 1)
	go func() {
		done <- h.SubscribeSession(ctx, sid, "", func(ctx context.Context, id string, msg []byte) error { return expectedErr })
	}()
	time.Sleep(100 * time.Millisecond)
	if _, err := h.PublishSession(ctx, sid, notification(t, "test/m")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, expectedErr) {
			t.Fatalf("expected handler error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe timeout")
	}
}

func testResumeFromNonExistentEventID(t *testing.T, factory HostFactory) {
	h := factory(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	delivered := false
	err := h.SubscribeSession(ctx, sessionID("sess-7"), "non-existent-id", func(ctx context.Context, id string, msg []byte) error {
		delivered = true
		return nil
	})
	// Implementations may either return an error immediately, or block until deadline with no delivery.
	if err == nil {
		t.Fatalf("expected an error")
	}
	if delivered {
		t.Fatalf("no message should be delivered")
	}
}

func testCleanupDropsStream(t *testing.T, factory HostFactory) {
	h := factory(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sid := sessionID("sess-8")
	ev, err := h.PublishSession(ctx, sid, notification(t, "test/old"))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := h.CleanupSession(ctx, sid); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	subCtx, subCancel := context.WithTimeout(ctx, 700*time.Millisecond)
	defer subCancel()
	var replayed []string
	_ = h.SubscribeSession(subCtx, sid, "", func(ctx context.Context, id string, data []byte) error {
		replayed = append(replayed, id)
		return nil
	})
	for _, id := range replayed {
		if id == ev {
			t.Fatalf("cleaned up event %s was replayed", ev)
		}
	}
}
