// Package streaminghttp implements the MCP streamable HTTP transport. It mounts
// as a standard net/http handler and serves many concurrent sessions on one
// endpoint, each identified by the Mcp-Session-Id header.
//
// Responsibilities
//   - Session creation on the first POST without an id (via sessions.Registry)
//   - Request/response RPC over POST, answered as JSON or a single SSE event
//   - Polling a session's event stream over GET (via sessions.SessionHost)
//   - Session termination over DELETE
//
// Construction
//
//	host := memoryhost.New()
//	reg := sessions.NewRegistry(sessions.WithHost(host))
//	h, err := streaminghttp.New(eng, reg, host, streaminghttp.WithPath("/mcp"))
//
// # Session lifetimes
//
// A session lives until it is deleted or the process shuts down. Requests
// naming an unknown or closed session are rejected with 404 and have no side
// effects. Tool calls run to completion even if the client disconnects; if
// the session was closed while the call was running the result is dropped.
//
// # Error Handling
//
// Transport-level errors map to HTTP status codes with a small JSON body;
// MCP-level errors are serialized as JSON-RPC error responses.
//
// Example (mount in net/http):
//
//	srv := &http.Server{Addr: ":4000", Handler: h}
//	srv.ListenAndServe()
package streaminghttp
