// Package config loads the gateway configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

// ErrNoBindings is returned when both transport bindings are disabled.
var ErrNoBindings = errors.New("no transports enabled; set ENABLE_STDIO or ENABLE_HTTP to 1")

const (
	defaultPort         = 4000
	defaultOutputCap    = 1 << 20
	defaultStreamMaxLen = 1024
)

// env mirrors the environment. Every field is a string so that a malformed
// value can be reported and replaced by its default instead of failing the
// whole decode.
type env struct {
	WorkspaceRoot     string `env:"WORKSPACE_ROOT,default=/workspaces"`
	Host              string `env:"MCP_HOST,default=0.0.0.0"`
	Port              string `env:"MCP_PORT,default=4000"`
	Path              string `env:"MCP_PATH,default=/mcp"`
	EnableStdio       string `env:"ENABLE_STDIO,default=1"`
	EnableHTTP        string `env:"ENABLE_HTTP,default=1"`
	Latexmk           string `env:"LATEXMK_BIN,default=latexmk"`
	OutputCap         string `env:"OUTPUT_CAP_BYTES,default=1048576"`
	CommandTimeout    string `env:"COMMAND_TIMEOUT,default=0"`
	LogLevel          string `env:"LOG_LEVEL,default=info"`
	RedisAddr         string `env:"REDIS_ADDR"`
	SessionsKeyPrefix string `env:"SESSIONS_KEY_PREFIX,default=latex-mcp:sessions:"`
	StreamMaxLen      string `env:"SESSIONS_STREAM_MAXLEN,default=1024"`
}

// Config is the resolved gateway configuration.
type Config struct {
	WorkspaceRoot  string
	Host           string
	Port           int
	Path           string
	EnableStdio    bool
	EnableHTTP     bool
	Latexmk        string
	OutputCap      int
	CommandTimeout time.Duration
	LogLevel       slog.Level

	// RedisAddr selects the Redis session host when non-empty.
	RedisAddr         string
	SessionsKeyPrefix string
	// SessionsStreamMaxLen approximately bounds each Redis session stream.
	SessionsStreamMaxLen int
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Load reads the environment. Values that cannot be parsed are replaced by
// their defaults and reported on log. Load fails only when the workspace root
// cannot be made absolute or no binding is enabled.
func Load(log *slog.Logger) (Config, error) {
	var e env
	if err := envdecode.Decode(&e); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}

	p := parser{log: log}
	cfg := Config{
		Host:              e.Host,
		Port:              p.port("MCP_PORT", e.Port),
		Path:              "/" + strings.Trim(e.Path, "/"),
		EnableStdio:       p.flag("ENABLE_STDIO", e.EnableStdio, true),
		EnableHTTP:        p.flag("ENABLE_HTTP", e.EnableHTTP, true),
		Latexmk:           e.Latexmk,
		OutputCap:         p.positive("OUTPUT_CAP_BYTES", e.OutputCap, defaultOutputCap),
		CommandTimeout:    p.duration("COMMAND_TIMEOUT", e.CommandTimeout),
		LogLevel:          p.level("LOG_LEVEL", e.LogLevel),
		RedisAddr:         e.RedisAddr,
		SessionsKeyPrefix: e.SessionsKeyPrefix,

		SessionsStreamMaxLen: p.positive("SESSIONS_STREAM_MAXLEN", e.StreamMaxLen, defaultStreamMaxLen),
	}

	root, err := filepath.Abs(e.WorkspaceRoot)
	if err != nil {
		return Config{}, fmt.Errorf("resolve WORKSPACE_ROOT %q: %w", e.WorkspaceRoot, err)
	}
	cfg.WorkspaceRoot = root

	if !cfg.EnableStdio && !cfg.EnableHTTP {
		return Config{}, ErrNoBindings
	}
	return cfg, nil
}

type parser struct {
	log *slog.Logger
}

func (p parser) invalid(key, value string, fallback any) {
	if p.log == nil {
		return
	}
	p.log.Warn("config.value.invalid",
		slog.String("key", key),
		slog.String("value", value),
		slog.Any("default", fallback),
	)
}

func (p parser) flag(key, value string, fallback bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		p.invalid(key, value, fallback)
		return fallback
	}
	return b
}

func (p parser) port(key, value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 0 || n > 65535 {
		p.invalid(key, value, defaultPort)
		return defaultPort
	}
	return n
}

func (p parser) positive(key, value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		p.invalid(key, value, fallback)
		return fallback
	}
	return n
}

// duration accepts Go durations ("90s", "2m") and bare integers as seconds.
func (p parser) duration(key, value string) time.Duration {
	value = strings.TrimSpace(value)
	if n, err := strconv.Atoi(value); err == nil && n >= 0 {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		p.invalid(key, value, "0")
		return 0
	}
	return d
}

func (p parser) level(key, value string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		p.invalid(key, value, slog.LevelInfo.String())
		return slog.LevelInfo
	}
	return l
}
