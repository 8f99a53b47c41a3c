package execution

import (
	"fmt"
	"strings"
	"time"
)

// ExitKind classifies how a command ended.
type ExitKind string

const (
	ExitSuccess ExitKind = "success"
	ExitCode    ExitKind = "exit"
	ExitSignal  ExitKind = "signal"
	ExitTimeout ExitKind = "timeout"
	ExitStart   ExitKind = "start"
)

// ExitStatus is the exit indicator of a Report. Code is set for ExitCode,
// Signal for ExitSignal and Err for ExitStart.
type ExitStatus struct {
	Kind   ExitKind
	Code   int
	Signal string
	Err    string
}

// Success reports whether the command exited with status zero.
func (s ExitStatus) Success() bool { return s.Kind == ExitSuccess }

// Report is the outcome of one command invocation. It is not modified after
// Execute returns.
type Report struct {
	Command   string
	Dir       string
	Output    string
	Exit      ExitStatus
	Truncated bool
	Cap       int
	Timeout   time.Duration
	Duration  time.Duration
}

const marker = "[latex-mcp]"

// Text renders the report the way tools present it: the command line, the
// combined output and a trailing diagnostic when the command did not
// succeed or the output was cut.
func (r *Report) Text() string {
	var b strings.Builder
	b.WriteString("> ")
	b.WriteString(r.Command)
	b.WriteString("\n\n")
	b.WriteString(r.Output)

	if r.Truncated {
		fmt.Fprintf(&b, "\n\n%s Output truncated at %d bytes\n", marker, r.Cap)
	}

	switch r.Exit.Kind {
	case ExitCode:
		fmt.Fprintf(&b, "\n\n%s Command exited with code %d\n", marker, r.Exit.Code)
	case ExitSignal:
		fmt.Fprintf(&b, "\n\n%s Command terminated by signal %s\n", marker, r.Exit.Signal)
	case ExitTimeout:
		fmt.Fprintf(&b, "\n\n%s Command timed out after %s\n", marker, r.Timeout)
	case ExitStart:
		fmt.Fprintf(&b, "\n\n%s Command failed to start: %s\n", marker, r.Exit.Err)
	}

	return b.String()
}
