package execution

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"time"
)

const (
	// DefaultOutputCap bounds captured output per invocation.
	DefaultOutputCap = 1 << 20
	DefaultShell     = "/bin/sh"
)

// Runner executes shell commands. The zero value is not usable; construct
// one with NewRunner.
type Runner struct {
	shell   string
	cap     int
	timeout time.Duration
	log     *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithOutputCap sets the capture cap in bytes. Non-positive values keep the
// default.
func WithOutputCap(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.cap = n
		}
	}
}

// WithTimeout sets a wall-clock limit per command. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithShell overrides the shell used to interpret commands.
func WithShell(path string) Option {
	return func(r *Runner) {
		if path != "" {
			r.shell = path
		}
	}
}

// WithLogger sets the logger for command outcome events.
func WithLogger(log *slog.Logger) Option {
	return func(r *Runner) {
		if log != nil {
			r.log = log
		}
	}
}

// NewRunner returns a Runner using DefaultShell and DefaultOutputCap with no
// timeout unless opts say otherwise.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		shell: DefaultShell,
		cap:   DefaultOutputCap,
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OutputCap returns the configured capture cap.
func (r *Runner) OutputCap() int { return r.cap }

// Execute runs command through the shell in dir and waits for it to finish.
// Stdout and stderr share one capped buffer so output keeps its emission
// order.
func (r *Runner) Execute(ctx context.Context, command, dir string) *Report {
	start := time.Now()

	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	out := &cappedBuffer{limit: r.cap}
	cmd := exec.CommandContext(runCtx, r.shell, "-c", command)
	cmd.Dir = dir
	// exec.Cmd serializes writes when Stdout == Stderr.
	cmd.Stdout = out
	cmd.Stderr = out
	configureProcessGroup(cmd)

	err := cmd.Run()

	rep := &Report{
		Command:   command,
		Dir:       dir,
		Output:    out.buf.String(),
		Truncated: out.truncated,
		Cap:       r.cap,
		Timeout:   r.timeout,
		Duration:  time.Since(start),
	}
	rep.Exit = classify(runCtx, r.timeout, cmd, err)

	attrs := []any{
		slog.String("dir", dir),
		slog.String("exit", string(rep.Exit.Kind)),
		slog.Int64("dur_ms", rep.Duration.Milliseconds()),
		slog.Bool("truncated", rep.Truncated),
	}
	if rep.Exit.Success() {
		r.log.DebugContext(ctx, "exec.run.ok", attrs...)
	} else {
		attrs = append(attrs, slog.Int("code", rep.Exit.Code))
		r.log.InfoContext(ctx, "exec.run.fail", attrs...)
	}

	return rep
}

func classify(runCtx context.Context, timeout time.Duration, cmd *exec.Cmd, err error) ExitStatus {
	if err == nil {
		return ExitStatus{Kind: ExitSuccess}
	}

	if timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return ExitStatus{Kind: ExitTimeout, Code: -1}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if sig, ok := signalOf(exitErr); ok {
			return ExitStatus{Kind: ExitSignal, Code: -1, Signal: sig}
		}
		return ExitStatus{Kind: ExitCode, Code: exitErr.ExitCode()}
	}

	if cmd.ProcessState == nil {
		return ExitStatus{Kind: ExitStart, Code: 127, Err: err.Error()}
	}

	return ExitStatus{Kind: ExitCode, Code: cmd.ProcessState.ExitCode()}
}
