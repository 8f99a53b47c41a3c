package config

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"WORKSPACE_ROOT", "MCP_HOST", "MCP_PORT", "MCP_PATH", "ENABLE_STDIO", "ENABLE_HTTP", "LATEXMK_BIN", "OUTPUT_CAP_BYTES", "COMMAND_TIMEOUT", "LOG_LEVEL", "REDIS_ADDR", "SESSIONS_KEY_PREFIX", "SESSIONS_STREAM_MAXLEN"} {
		t.Setenv(k, "")
	}

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.WorkspaceRoot != "/workspaces" {
		t.Fatalf("root: %q", cfg.WorkspaceRoot)
	}
	if cfg.Addr() != "0.0.0.0:4000" || cfg.Path != "/mcp" {
		t.Fatalf("http: %s %s", cfg.Addr(), cfg.Path)
	}
	if !cfg.EnableStdio || !cfg.EnableHTTP {
		t.Fatalf("bindings should default to enabled: %+v", cfg)
	}
	if cfg.Latexmk != "latexmk" || cfg.OutputCap != 1<<20 || cfg.CommandTimeout != 0 {
		t.Fatalf("exec defaults: %+v", cfg)
	}
	if cfg.LogLevel != slog.LevelInfo || cfg.RedisAddr != "" || cfg.SessionsKeyPrefix != "latex-mcp:sessions:" || cfg.SessionsStreamMaxLen != 1024 {
		t.Fatalf("ambient defaults: %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("WORKSPACE_ROOT", "/srv/tex/../tex")
	t.Setenv("MCP_HOST", "127.0.0.1")
	t.Setenv("MCP_PORT", "8080")
	t.Setenv("MCP_PATH", "rpc/")
	t.Setenv("ENABLE_STDIO", "0")
	t.Setenv("ENABLE_HTTP", "true")
	t.Setenv("LATEXMK_BIN", "/opt/tex/latexmk")
	t.Setenv("OUTPUT_CAP_BYTES", "4096")
	t.Setenv("COMMAND_TIMEOUT", "90s")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("SESSIONS_STREAM_MAXLEN", "64")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WorkspaceRoot != "/srv/tex" {
		t.Fatalf("root: %q", cfg.WorkspaceRoot)
	}
	if cfg.Addr() != "127.0.0.1:8080" || cfg.Path != "/rpc" {
		t.Fatalf("http: %s %s", cfg.Addr(), cfg.Path)
	}
	if cfg.EnableStdio || !cfg.EnableHTTP {
		t.Fatalf("bindings: %+v", cfg)
	}
	if cfg.Latexmk != "/opt/tex/latexmk" || cfg.OutputCap != 4096 || cfg.CommandTimeout != 90*time.Second {
		t.Fatalf("exec: %+v", cfg)
	}
	if cfg.LogLevel != slog.LevelDebug || cfg.RedisAddr != "redis:6379" || cfg.SessionsStreamMaxLen != 64 {
		t.Fatalf("ambient: %+v", cfg)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("MCP_PORT", "http")
	t.Setenv("ENABLE_STDIO", "maybe")
	t.Setenv("ENABLE_HTTP", "1")
	t.Setenv("OUTPUT_CAP_BYTES", "-5")
	t.Setenv("COMMAND_TIMEOUT", "soon")
	t.Setenv("LOG_LEVEL", "loud")
	t.Setenv("SESSIONS_STREAM_MAXLEN", "0")

	var buf bytes.Buffer
	cfg, err := Load(slog.New(slog.NewTextHandler(&buf, nil)))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 4000 || !cfg.EnableStdio || cfg.OutputCap != 1<<20 || cfg.CommandTimeout != 0 || cfg.LogLevel != slog.LevelInfo || cfg.SessionsStreamMaxLen != 1024 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	for _, key := range []string{"MCP_PORT", "ENABLE_STDIO", "OUTPUT_CAP_BYTES", "COMMAND_TIMEOUT", "LOG_LEVEL", "SESSIONS_STREAM_MAXLEN"} {
		if !strings.Contains(buf.String(), "key="+key) {
			t.Fatalf("no warning for %s in:\n%s", key, buf.String())
		}
	}
}

func TestLoadTimeoutSeconds(t *testing.T) {
	t.Setenv("COMMAND_TIMEOUT", "300")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CommandTimeout != 5*time.Minute {
		t.Fatalf("timeout: %s", cfg.CommandTimeout)
	}
}

func TestLoadNoBindings(t *testing.T) {
	t.Setenv("ENABLE_STDIO", "0")
	t.Setenv("ENABLE_HTTP", "false")

	if _, err := Load(nil); !errors.Is(err, ErrNoBindings) {
		t.Fatalf("want ErrNoBindings, got %v", err)
	}
}
