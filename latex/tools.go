package latex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/ggoodman/latex-mcp-go/execution"
	"github.com/ggoodman/latex-mcp-go/mcpservice"
	"github.com/ggoodman/latex-mcp-go/sessions"
	"github.com/ggoodman/latex-mcp-go/workspace"
)

const (
	BuildToolName   = "build_latex"
	CleanToolName   = "clean_latex"
	ReadLogToolName = "read_latex_log"

	DefaultLatexmk = "latexmk"
)

const pathNote = "Path note: pass container paths under WORKSPACE_ROOT (e.g. /workspaces/<repo>/...). " +
	`If you are on Windows, rewrite C:\Users\...\<repo>\foo.tex -> /workspaces/<repo>/foo.tex before calling.`

// BuildArgs are the arguments of build_latex.
type BuildArgs struct {
	File   string `json:"file" jsonschema:"description=Path to the .tex entry point"`
	Engine string `json:"engine,omitempty" jsonschema:"enum=pdflatex,enum=xelatex,enum=lualatex,default=pdflatex,description=TeX engine used by latexmk"`
}

// CleanArgs are the arguments of clean_latex.
type CleanArgs struct {
	File string `json:"file" jsonschema:"description=Path to the .tex entry point"`
	Mode string `json:"mode,omitempty" jsonschema:"enum=aux,enum=all,default=aux,description=aux removes auxiliary files and all also removes generated output"`
}

// ReadLogArgs are the arguments of read_latex_log.
type ReadLogArgs struct {
	File string `json:"file" jsonschema:"description=Path to the .tex entry point whose .log is read"`
}

var engineFlags = map[string]string{
	"pdflatex": "-pdf",
	"xelatex":  "-pdfxe",
	"lualatex": "-pdflua",
}

// Toolset holds the shared configuration of the LaTeX tools.
type Toolset struct {
	root    string
	latexmk string
	runner  *execution.Runner
	log     *slog.Logger
}

// Option configures a Toolset.
type Option func(*Toolset)

// WithLatexmk sets the build tool executable. Defaults to latexmk.
func WithLatexmk(bin string) Option {
	return func(t *Toolset) {
		if bin != "" {
			t.latexmk = bin
		}
	}
}

// WithLogger sets the logger for tool events.
func WithLogger(l *slog.Logger) Option {
	return func(t *Toolset) {
		if l != nil {
			t.log = l
		}
	}
}

// New returns a Toolset confined to root that runs commands with runner.
func New(root string, runner *execution.Runner, opts ...Option) *Toolset {
	t := &Toolset{
		root:    root,
		latexmk: DefaultLatexmk,
		runner:  runner,
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Root returns the workspace root the tools are confined to.
func (t *Toolset) Root() string { return t.root }

// Instructions renders the path guidance advertised on initialize.
func (t *Toolset) Instructions() string { return workspace.Guidance(t.root) }

// Tools returns the tool definitions in registration order.
func (t *Toolset) Tools() []mcpservice.StaticTool {
	return []mcpservice.StaticTool{
		mcpservice.NewTool[BuildArgs](BuildToolName, t.build,
			mcpservice.WithToolDescription("Build the given .tex file with latexmk.\n\n"+pathNote)),
		mcpservice.NewTool[CleanArgs](CleanToolName, t.clean,
			mcpservice.WithToolDescription("Clean latexmk artifacts next to the target .tex.\n\n"+pathNote)),
		mcpservice.NewTool[ReadLogArgs](ReadLogToolName, t.readLog,
			mcpservice.WithToolDescription("Read the .log file next to the target .tex.\n\n"+pathNote)),
	}
}

// resolve confines input to the root. On failure it writes the rejection to
// w and returns false.
func (t *Toolset) resolve(ctx context.Context, w mcpservice.ToolResponseWriter, input string) (workspace.ResolvedPath, bool) {
	p, err := workspace.Resolve(input, t.root)
	if err != nil {
		t.log.InfoContext(ctx, "latex.path.rejected", slog.String("input", input), slog.String("err", err.Error()))
		w.SetError(true)
		_ = w.AppendText(fmt.Sprintf("ERROR: %v %s", err, workspace.Guidance(t.root)))
		return workspace.ResolvedPath{}, false
	}
	return p, true
}

// requireSource reports whether the resolved source exists, writing the
// not-found report otherwise.
func (t *Toolset) requireSource(ctx context.Context, w mcpservice.ToolResponseWriter, p workspace.ResolvedPath) bool {
	if _, err := os.Stat(p.Path); err != nil {
		t.log.InfoContext(ctx, "latex.source.missing", slog.String("path", p.Path))
		_ = w.AppendText(fmt.Sprintf("ERROR: File not found: %s\n%s", p.Path, workspace.Guidance(t.root)))
		return false
	}
	return true
}

func (t *Toolset) build(ctx context.Context, _ *sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[BuildArgs]) error {
	a := r.Args()
	p, ok := t.resolve(ctx, w, a.File)
	if !ok || !t.requireSource(ctx, w, p) {
		return nil
	}

	flag, ok := engineFlags[a.Engine]
	if !ok {
		flag = engineFlags["pdflatex"]
	}

	cmd := strings.Join([]string{
		t.latexmk,
		"-synctex=1",
		"-interaction=nonstopmode",
		"-file-line-error",
		flag,
		quote(p.Base()),
	}, " ")

	rep := t.runner.Execute(ctx, cmd, p.Dir())

	pdf := "NO"
	pdfPath := p.Sibling(".pdf")
	if _, err := os.Stat(pdfPath); err == nil {
		pdf = pdfPath
	}

	return w.AppendText(fmt.Sprintf(
		"build_latex finished.\n\nWorking directory: %s\nCommand: %s\nPDF exists: %s\n\n--- Latexmk log ---\n%s",
		p.Dir(), cmd, pdf, rep.Text(),
	))
}

func (t *Toolset) clean(ctx context.Context, _ *sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[CleanArgs]) error {
	a := r.Args()
	p, ok := t.resolve(ctx, w, a.File)
	if !ok || !t.requireSource(ctx, w, p) {
		return nil
	}

	mode := a.Mode
	flag := "-c"
	if mode == "all" {
		flag = "-C"
	} else {
		mode = "aux"
	}

	cmd := fmt.Sprintf("%s %s %s", t.latexmk, flag, quote(p.Base()))
	rep := t.runner.Execute(ctx, cmd, p.Dir())

	return w.AppendText(fmt.Sprintf(
		"clean_latex finished.\nMode: %s\nCommand: %s\n\n--- Latexmk log ---\n%s",
		mode, cmd, rep.Text(),
	))
}

func (t *Toolset) readLog(ctx context.Context, _ *sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[ReadLogArgs]) error {
	p, ok := t.resolve(ctx, w, r.Args().File)
	if !ok {
		return nil
	}

	logPath := p.Sibling(".log")
	content, truncated, err := readCapped(logPath, t.runner.OutputCap())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return w.AppendText(fmt.Sprintf(
				"Log file not found: %s\nYou may need to run build_latex first.\n%s",
				logPath, workspace.Guidance(t.root),
			))
		}
		return fmt.Errorf("read %s: %w", logPath, err)
	}

	text := fmt.Sprintf("Log path: %s\n\n%s", logPath, content)
	if truncated {
		text += fmt.Sprintf("\n\n[latex-mcp] Log truncated at %d bytes\n", t.runner.OutputCap())
	}
	return w.AppendText(text)
}

// readCapped reads at most limit bytes of path, dropping invalid UTF-8.
func readCapped(path string, limit int) (string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, err
	}
	defer f.Close()

	b, err := io.ReadAll(io.LimitReader(f, int64(limit)+1))
	if err != nil {
		return "", false, err
	}
	truncated := len(b) > limit
	if truncated {
		b = b[:limit]
	}
	return strings.ToValidUTF8(string(b), ""), truncated, nil
}

// quote wraps s in double quotes for /bin/sh, escaping the characters that
// stay special inside them.
func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "$", `\$`, "`", "\\`")
	return `"` + r.Replace(s) + `"`
}
