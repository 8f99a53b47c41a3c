// Package workspace confines caller-supplied paths to a workspace root.
//
// Resolve is pure path arithmetic: it never touches the filesystem, so a
// path is accepted or rejected before any tool has a chance to act on it.
// Existence checks belong to the caller. Guidance renders the instructions
// shown to clients alongside rejections and missing-file reports.
package workspace
