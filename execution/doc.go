// Package execution runs external commands through a shell and turns their
// combined output and exit status into a Report.
//
// A child that fails is data, not an error: Execute always returns a
// Report, and callers render it with Report.Text. Invocations are not
// serialized. Two commands racing on the same directory may interleave
// their effects on shared files.
package execution
