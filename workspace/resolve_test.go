package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolveInsideRoot(t *testing.T) {
	root := "/workspaces"
	cases := []struct {
		in   string
		want string
	}{
		{"/workspaces/proj/main.tex", "/workspaces/proj/main.tex"},
		{"proj/main.tex", "/workspaces/proj/main.tex"},
		{"/workspaces", "/workspaces"},
		{".", "/workspaces"},
		{"proj/../other/./doc.tex", "/workspaces/other/doc.tex"},
		{"/workspaces/proj/sub/../../x.tex", "/workspaces/x.tex"},
		{"/workspaces//proj///main.tex", "/workspaces/proj/main.tex"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := Resolve(tc.in, root)
			if err != nil {
				t.Fatalf("Resolve(%q): %v", tc.in, err)
			}
			if got.Path != tc.want {
				t.Fatalf("Resolve(%q) = %q, want %q", tc.in, got.Path, tc.want)
			}
			if got.Input != tc.in || got.Root != root {
				t.Fatalf("unexpected resolved path: %+v", got)
			}
		})
	}
}

func TestResolveOutsideRoot(t *testing.T) {
	root := "/workspaces"
	cases := []string{
		"/workspaces-other/x",
		"/workspacesX",
		"/etc/passwd",
		"../etc/passwd",
		"proj/../../etc",
		"/workspaces/../workspaces-evil/main.tex",
		"/",
	}
	for _, in := range cases {
		t.Run(in, func(t *testing.T) {
			_, err := Resolve(in, root)
			if !errors.Is(err, ErrOutOfBoundsPath) {
				t.Fatalf("Resolve(%q) err = %v, want ErrOutOfBoundsPath", in, err)
			}
			var oob *OutOfBoundsError
			if !errors.As(err, &oob) {
				t.Fatalf("expected *OutOfBoundsError, got %T", err)
			}
			if !strings.Contains(err.Error(), root) {
				t.Fatalf("error should name the root: %v", err)
			}
		})
	}
}

func TestResolveRootWithTrailingSeparator(t *testing.T) {
	got, err := Resolve("a.tex", "/workspaces/")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Path != "/workspaces/a.tex" || got.Root != "/workspaces" {
		t.Fatalf("unexpected: %+v", got)
	}
}

func TestResolvedPathHelpers(t *testing.T) {
	p, err := Resolve("proj/main.tex", "/workspaces")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.Dir() != "/workspaces/proj" || p.Base() != "main.tex" || p.Stem() != "main" {
		t.Fatalf("unexpected helpers: %q %q %q", p.Dir(), p.Base(), p.Stem())
	}
	if got := p.Sibling(".pdf"); got != "/workspaces/proj/main.pdf" {
		t.Fatalf("Sibling = %q", got)
	}
}

func TestOverview(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 12; i++ {
		if err := os.MkdirAll(filepath.Join(root, "d"+string(rune('a'+i))), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	for _, s := range []string{"s1", "s2", "s3", "s4", "s5", "s6"} {
		if err := os.MkdirAll(filepath.Join(root, "da", s), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "file.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	got := Overview(root)
	lines := strings.Split(got, "\n")
	if lines[0] != "- "+root {
		t.Fatalf("first line = %q", lines[0])
	}
	if lines[1] != "  - da (subdirs: s1, s2, s3, s4, s5)" {
		t.Fatalf("subdir line = %q", lines[1])
	}
	if lines[len(lines)-1] != "  - ... (2 more)" {
		t.Fatalf("last line = %q", lines[len(lines)-1])
	}
	if len(lines) != 12 {
		t.Fatalf("expected 12 lines, got %d:\n%s", len(lines), got)
	}
	if strings.Contains(got, "file.txt") {
		t.Fatalf("files must not be listed:\n%s", got)
	}
}

func TestGuidanceMentionsRoot(t *testing.T) {
	root := t.TempDir()
	g := Guidance(root)
	if !strings.Contains(g, "Use paths under "+root) {
		t.Fatalf("guidance missing root: %s", g)
	}
	if !strings.Contains(g, "Workspace overview:\n- "+root) {
		t.Fatalf("guidance missing overview: %s", g)
	}
}
