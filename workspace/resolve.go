package workspace

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutOfBoundsPath is returned when a path resolves outside the root.
var ErrOutOfBoundsPath = errors.New("path is outside workspace root")

// ResolvedPath is the result of a successful Resolve. Path is always Root or
// a separator-bounded descendant of Root.
type ResolvedPath struct {
	Input string
	Path  string
	Root  string
}

// Dir returns the directory containing the resolved path.
func (p ResolvedPath) Dir() string { return filepath.Dir(p.Path) }

// Base returns the last element of the resolved path.
func (p ResolvedPath) Base() string { return filepath.Base(p.Path) }

// Stem returns the base name without its final extension.
func (p ResolvedPath) Stem() string {
	base := p.Base()
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Sibling returns the path of stem+ext next to the resolved path.
func (p ResolvedPath) Sibling(ext string) string {
	return filepath.Join(p.Dir(), p.Stem()+ext)
}

// OutOfBoundsError carries the offending resolved path and root.
type OutOfBoundsError struct {
	Path string
	Root string
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("Path %s is outside workspace root %s.", e.Path, e.Root)
}

func (e *OutOfBoundsError) Unwrap() error { return ErrOutOfBoundsPath }

// Resolve resolves input against root. Absolute inputs are taken as given,
// relative inputs are joined onto root. The result is cleaned and must equal
// root or lie below it on a path separator boundary.
func Resolve(input, root string) (ResolvedPath, error) {
	root = filepath.Clean(root)

	candidate := input
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(root, candidate)
	}
	candidate = filepath.Clean(candidate)

	if !Within(candidate, root) {
		return ResolvedPath{}, &OutOfBoundsError{Path: candidate, Root: root}
	}

	return ResolvedPath{Input: input, Path: candidate, Root: root}, nil
}

// Within reports whether the cleaned path equals root or is a descendant of
// it. "/workspaces-other" is not within "/workspaces".
func Within(path, root string) bool {
	if path == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}
