package workspace

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

const (
	overviewMaxDirs    = 10
	overviewMaxSubdirs = 5
)

// Guidance returns the path-handling instructions for clients, followed by
// an overview of the workspace root.
func Guidance(root string) string {
	return fmt.Sprintf(
		"This MCP server runs inside a dev container. Use paths under %s "+
			"as seen inside the container; the server will reject paths outside this root. "+
			"If you are on Windows, rewrite host paths like "+
			`C:\Users\...\<repo>\subdir\file.tex to /workspaces/<repo>/subdir/file.tex `+
			"or a relative path under WORKSPACE_ROOT before calling the tools. "+
			"The server does not auto-convert host paths. "+
			"Workspace overview:\n%s",
		root, Overview(root),
	)
}

// Overview lists root and up to ten of its directories, each with up to five
// of its own subdirectories.
func Overview(root string) string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Sprintf("(could not list %s: %v)", root, err)
	}

	lines := []string{"- " + root}
	dirs := dirNames(entries)

	for i, name := range dirs {
		if i == overviewMaxDirs {
			lines = append(lines, fmt.Sprintf("  - ... (%d more)", len(dirs)-overviewMaxDirs))
			break
		}
		line := "  - " + name
		if subEntries, err := os.ReadDir(root + string(os.PathSeparator) + name); err == nil {
			subs := dirNames(subEntries)
			if len(subs) > overviewMaxSubdirs {
				subs = subs[:overviewMaxSubdirs]
			}
			if len(subs) > 0 {
				line += " (subdirs: " + strings.Join(subs, ", ") + ")"
			}
		}
		lines = append(lines, line)
	}

	return strings.Join(lines, "\n")
}

func dirNames(entries []os.DirEntry) []string {
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out
}
