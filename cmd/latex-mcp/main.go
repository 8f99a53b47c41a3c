// Command latex-mcp serves the LaTeX build tools over stdio and streamable
// HTTP at the same time.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ggoodman/latex-mcp-go/execution"
	"github.com/ggoodman/latex-mcp-go/internal/config"
	"github.com/ggoodman/latex-mcp-go/internal/engine"
	"github.com/ggoodman/latex-mcp-go/internal/logctx"
	"github.com/ggoodman/latex-mcp-go/latex"
	"github.com/ggoodman/latex-mcp-go/mcp"
	"github.com/ggoodman/latex-mcp-go/mcpservice"
	"github.com/ggoodman/latex-mcp-go/sessions"
	"github.com/ggoodman/latex-mcp-go/sessions/memoryhost"
	"github.com/ggoodman/latex-mcp-go/sessions/redishost"
	"github.com/ggoodman/latex-mcp-go/stdio"
	"github.com/ggoodman/latex-mcp-go/streaminghttp"
	"golang.org/x/sync/errgroup"
)

// Set via -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	// Stdout carries the stdio binding, so logs go to stderr.
	level := new(slog.LevelVar)
	log := slog.New(logctx.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log, level); err != nil {
		log.Error("latex_mcp.fatal", slog.String("err", err.Error()))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger, level *slog.LevelVar) error {
	cfg, err := config.Load(log)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level.Set(cfg.LogLevel)

	host, closeHost, err := newSessionHost(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeHost()

	reg := sessions.NewRegistry(sessions.WithHost(host), sessions.WithLogger(log))

	runner := execution.NewRunner(
		execution.WithOutputCap(cfg.OutputCap),
		execution.WithTimeout(cfg.CommandTimeout),
		execution.WithLogger(log),
	)
	toolset := latex.New(cfg.WorkspaceRoot, runner, latex.WithLatexmk(cfg.Latexmk), latex.WithLogger(log))

	eng := engine.NewEngine(
		mcpservice.NewToolsContainer(toolset.Tools()...),
		engine.WithLogger(log),
		engine.WithServerInfo(mcp.ImplementationInfo{Name: "latex-compiler", Version: version}),
		engine.WithInstructions(toolset.Instructions),
	)

	log.Info("latex_mcp.start",
		slog.String("version", version),
		slog.String("workspace_root", cfg.WorkspaceRoot),
		slog.Bool("stdio", cfg.EnableStdio),
		slog.Bool("http", cfg.EnableHTTP),
	)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.EnableHTTP {
		h, err := streaminghttp.New(eng, reg, host, streaminghttp.WithLogger(log), streaminghttp.WithPath(cfg.Path))
		if err != nil {
			return fmt.Errorf("init http binding: %w", err)
		}
		ln, err := net.Listen("tcp", cfg.Addr())
		if err != nil {
			return fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
		}
		srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}

		g.Go(func() error {
			log.Info("http.serve.start", slog.String("addr", ln.Addr().String()), slog.String("path", h.Path()))
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http binding: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			if err := reg.CloseAll(shutdownCtx); err != nil {
				log.Warn("session.close_all.fail", slog.String("err", err.Error()))
			}
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn("http.shutdown.fail", slog.String("err", err.Error()))
			}
			log.Info("http.serve.stop")
			return nil
		})
	}

	if cfg.EnableStdio {
		sh := stdio.NewHandler(eng, stdio.WithLogger(log))
		g.Go(func() error {
			if err := sh.Serve(gctx); err != nil {
				return fmt.Errorf("stdio binding: %w", err)
			}
			return nil
		})
	}

	err = g.Wait()
	log.Info("latex_mcp.stop")
	return err
}

// newSessionHost returns the Redis host when REDIS_ADDR is set and the
// in-process host otherwise.
func newSessionHost(ctx context.Context, cfg config.Config) (sessions.SessionHost, func(), error) {
	if cfg.RedisAddr == "" {
		return memoryhost.New(), func() {}, nil
	}
	h, err := redishost.New(ctx, redishost.Config{
		RedisAddr: cfg.RedisAddr,
		KeyPrefix: cfg.SessionsKeyPrefix,
		MaxLen:    int64(cfg.SessionsStreamMaxLen),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init redis session host: %w", err)
	}
	return h, func() { _ = h.Close() }, nil
}
