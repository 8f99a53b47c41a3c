package latex_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ggoodman/latex-mcp-go/execution"
	"github.com/ggoodman/latex-mcp-go/latex"
	"github.com/ggoodman/latex-mcp-go/mcp"
	"github.com/ggoodman/latex-mcp-go/mcpservice"
	"github.com/ggoodman/latex-mcp-go/sessions"
)

type harness struct {
	root  string
	tools *mcpservice.ToolsContainer
	sess  *sessions.Session
}

func newHarness(t *testing.T, latexmk string, runnerOpts ...execution.Option) *harness {
	t.Helper()
	root := t.TempDir()
	ts := latex.New(root, execution.NewRunner(runnerOpts...), latex.WithLatexmk(latexmk))
	return &harness{
		root:  root,
		tools: mcpservice.NewToolsContainer(ts.Tools()...),
		sess:  sessions.NewImplicit(sessions.BindingStdio),
	}
}

func (h *harness) write(t *testing.T, rel, content string) string {
	t.Helper()
	p := filepath.Join(h.root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
	return p
}

func (h *harness) call(t *testing.T, tool string, args map[string]any) (*mcp.CallToolResult, string) {
	t.Helper()
	raw, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	res, err := h.tools.Dispatch(context.Background(), h.sess, tool, raw)
	if err != nil {
		t.Fatalf("dispatch %s: %v", tool, err)
	}
	if len(res.Content) != 1 || res.Content[0].Type != mcp.ContentTypeText {
		t.Fatalf("want one text block, got %+v", res.Content)
	}
	return res, res.Content[0].Text
}

func TestToolsAreRegistered(t *testing.T) {
	h := newHarness(t, "true")

	var names []string
	for _, tool := range h.tools.Snapshot() {
		names = append(names, tool.Name)
	}
	if got, want := strings.Join(names, ","), "build_latex,clean_latex,read_latex_log"; got != want {
		t.Fatalf("tools: want %s got %s", want, got)
	}

	spec, ok := h.tools.Spec(latex.BuildToolName)
	if !ok {
		t.Fatalf("build_latex spec missing")
	}
	engine := spec.Fields["engine"]
	if engine.Default != "pdflatex" || len(engine.Enum) != 3 || engine.Required {
		t.Fatalf("unexpected engine field: %+v", engine)
	}
	if !spec.Fields["file"].Required {
		t.Fatalf("file must be required")
	}
}

func TestBuildMissingFile(t *testing.T) {
	h := newHarness(t, "touch spawned;")
	if err := os.MkdirAll(filepath.Join(h.root, "proj"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	res, text := h.call(t, latex.BuildToolName, map[string]any{"file": filepath.Join(h.root, "proj", "main.doc"), "engine": "pdflatex"})
	if res.IsError {
		t.Fatalf("missing file must be a successful result")
	}
	if !strings.HasPrefix(text, "ERROR: File not found: "+filepath.Join(h.root, "proj", "main.doc")) {
		t.Fatalf("unexpected text: %q", text)
	}
	if _, err := os.Stat(filepath.Join(h.root, "proj", "spawned")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("a process was spawned for a missing file")
	}
}

func TestBuildSuccessWithArtifact(t *testing.T) {
	h := newHarness(t, "true")
	h.write(t, "proj/main.tex", `\documentclass{article}`)
	pdf := h.write(t, "proj/main.pdf", "%PDF")

	res, text := h.call(t, latex.BuildToolName, map[string]any{"file": "proj/main.tex"})
	if res.IsError {
		t.Fatalf("unexpected error result: %s", text)
	}

	for _, want := range []string{
		"build_latex finished.\n\n",
		"Working directory: " + filepath.Join(h.root, "proj") + "\n",
		`Command: true -synctex=1 -interaction=nonstopmode -file-line-error -pdf "main.tex"` + "\n",
		"PDF exists: " + pdf + "\n\n",
		"--- Latexmk log ---\n> true ",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("report is missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "[latex-mcp]") {
		t.Fatalf("successful build must not carry a diagnostic line:\n%s", text)
	}
}

func TestBuildEngineFlags(t *testing.T) {
	h := newHarness(t, "true")
	h.write(t, "main.tex", "")

	tests := []struct {
		engine string
		flag   string
	}{
		{"pdflatex", "-pdf "},
		{"xelatex", "-pdfxe "},
		{"lualatex", "-pdflua "},
	}
	for _, tt := range tests {
		t.Run(tt.engine, func(t *testing.T) {
			_, text := h.call(t, latex.BuildToolName, map[string]any{"file": "main.tex", "engine": tt.engine})
			if !strings.Contains(text, "-file-line-error "+tt.flag) {
				t.Fatalf("missing flag %q:\n%s", tt.flag, text)
			}
			if !strings.Contains(text, "PDF exists: NO\n") {
				t.Fatalf("pdf should be reported missing:\n%s", text)
			}
		})
	}
}

func TestBuildFailureIsReportedAsData(t *testing.T) {
	h := newHarness(t, "false")
	h.write(t, "proj/main.tex", "")

	res, text := h.call(t, latex.BuildToolName, map[string]any{"file": "proj/main.tex"})
	if res.IsError {
		t.Fatalf("failed build must still be a successful result")
	}
	if !strings.HasSuffix(text, "\n\n[latex-mcp] Command exited with code 1\n") {
		t.Fatalf("missing exit diagnostic:\n%s", text)
	}
	if !strings.Contains(text, "PDF exists: NO") {
		t.Fatalf("unexpected artifact state:\n%s", text)
	}
}

func TestBuildRejectsPathOutsideRoot(t *testing.T) {
	h := newHarness(t, "touch spawned;")

	res, text := h.call(t, latex.BuildToolName, map[string]any{"file": "../escape/main.tex"})
	if !res.IsError {
		t.Fatalf("confinement violation must be an error result")
	}
	if !strings.HasPrefix(text, "ERROR: Path ") || !strings.Contains(text, "is outside workspace root "+h.root) {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestMissingRequiredFieldSpawnsNothing(t *testing.T) {
	h := newHarness(t, "touch spawned;")

	for _, tool := range []string{latex.BuildToolName, latex.CleanToolName, latex.ReadLogToolName} {
		_, err := h.tools.Dispatch(context.Background(), h.sess, tool, json.RawMessage(`{}`))
		var invalid *mcpservice.InvalidInputError
		if !errors.As(err, &invalid) || invalid.Field != "file" {
			t.Fatalf("%s: want InvalidInputError on file, got %v", tool, err)
		}
	}
	if _, err := os.Stat(filepath.Join(h.root, "spawned")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("a process was spawned for invalid input")
	}
}

func TestInvalidEngineRejected(t *testing.T) {
	h := newHarness(t, "true")
	h.write(t, "main.tex", "")

	_, err := h.tools.Dispatch(context.Background(), h.sess, latex.BuildToolName, json.RawMessage(`{"file":"main.tex","engine":"tectonic"}`))
	var invalid *mcpservice.InvalidInputError
	if !errors.As(err, &invalid) || invalid.Field != "engine" {
		t.Fatalf("want InvalidInputError on engine, got %v", err)
	}
}

func TestCleanAllIsIdempotent(t *testing.T) {
	stub := filepath.Join(t.TempDir(), "latexmk")
	if err := os.WriteFile(stub, []byte("#!/bin/sh\nrm -f *.aux *.log *.pdf\necho cleaned\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}

	h := newHarness(t, stub)
	h.write(t, "doc/main.tex", "")
	h.write(t, "doc/main.aux", "")
	h.write(t, "doc/main.pdf", "")

	for i := 0; i < 2; i++ {
		res, text := h.call(t, latex.CleanToolName, map[string]any{"file": "doc/main.tex", "mode": "all"})
		if res.IsError {
			t.Fatalf("run %d: unexpected error result: %s", i, text)
		}
		want := "clean_latex finished.\nMode: all\nCommand: " + stub + ` -C "main.tex"` + "\n\n--- Latexmk log ---\n"
		if !strings.HasPrefix(text, want) {
			t.Fatalf("run %d: unexpected text:\n%s", i, text)
		}
		if strings.Contains(text, "[latex-mcp]") {
			t.Fatalf("run %d: clean reported a failure:\n%s", i, text)
		}
	}
	if _, err := os.Stat(filepath.Join(h.root, "doc", "main.pdf")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("pdf was not removed")
	}
}

func TestCleanDefaultsToAux(t *testing.T) {
	h := newHarness(t, "true")
	h.write(t, "main.tex", "")

	_, text := h.call(t, latex.CleanToolName, map[string]any{"file": "main.tex"})
	if !strings.Contains(text, "Mode: aux\nCommand: true -c \"main.tex\"\n") {
		t.Fatalf("unexpected text:\n%s", text)
	}
}

func TestReadLog(t *testing.T) {
	h := newHarness(t, "true")
	h.write(t, "paper/main.tex", "")

	res, text := h.call(t, latex.ReadLogToolName, map[string]any{"file": "paper/main.tex"})
	if res.IsError {
		t.Fatalf("missing log must be a successful result")
	}
	logPath := filepath.Join(h.root, "paper", "main.log")
	if !strings.HasPrefix(text, "Log file not found: "+logPath+"\nYou may need to run build_latex first.\n") {
		t.Fatalf("unexpected text: %q", text)
	}

	h.write(t, "paper/main.log", "This is pdfTeX\nOutput written on main.pdf\n")
	_, text = h.call(t, latex.ReadLogToolName, map[string]any{"file": "paper/main.tex"})
	if want := "Log path: " + logPath + "\n\nThis is pdfTeX\nOutput written on main.pdf\n"; text != want {
		t.Fatalf("want %q got %q", want, text)
	}
}

func TestReadLogIsCapped(t *testing.T) {
	h := newHarness(t, "true", execution.WithOutputCap(8))
	h.write(t, "main.log", "0123456789abcdef")

	_, text := h.call(t, latex.ReadLogToolName, map[string]any{"file": "main.tex"})
	if !strings.Contains(text, "\n\n01234567\n\n[latex-mcp] Log truncated at 8 bytes\n") {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestQuotedFileNames(t *testing.T) {
	h := newHarness(t, "echo")
	h.write(t, "odd $name.tex", "")

	_, text := h.call(t, latex.CleanToolName, map[string]any{"file": "odd $name.tex"})
	if !strings.Contains(text, "\n-c odd $name.tex\n") {
		t.Fatalf("file name was not passed through verbatim:\n%s", text)
	}
}
