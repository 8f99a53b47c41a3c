// Package stdio implements the persistent-channel binding: one MCP client
// speaking newline-delimited JSON-RPC over stdin/stdout.
//
// Characteristics
//
//	Connection model : 1 process <-> 1 client
//	Sessions         : exactly one implicit session, never registered
//	Framing          : one JSON-RPC message per line
//	Concurrency      : each request runs on its own goroutine; writes are serialized
//
// Example:
//
//	h := stdio.NewHandler(eng, stdio.WithLogger(log))
//	if err := h.Serve(ctx); err != nil { ... }
package stdio
