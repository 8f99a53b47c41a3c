package redishost

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ggoodman/latex-mcp-go/sessions"
	"github.com/ggoodman/latex-mcp-go/sessions/sessionhosttest"
)

func newTestHost(t *testing.T) *Host {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	h, err := New(ctx, Config{RedisAddr: os.Getenv("REDIS_ADDR"), MaxLen: 64})
	if err != nil {
		t.Skipf("skipping redis session host tests: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestRedisSessionHost(t *testing.T) {
	newTestHost(t)

	sessionhosttest.RunSessionHostTests(t, func(t *testing.T) sessions.SessionHost {
		return newTestHost(t)
	})
}
