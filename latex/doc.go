// Package latex provides the gateway's tools: build_latex, clean_latex and
// read_latex_log. Every tool confines its file argument to the workspace
// root before touching the filesystem and runs latexmk through an
// execution.Runner.
//
// Expected failures (a missing source file, a failing build) are reported as
// text in a successful tool result. Only a path outside the workspace root
// marks the result as an error.
package latex
