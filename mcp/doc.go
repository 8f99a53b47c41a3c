// Package mcp contains the Model Context Protocol data types used by the
// gateway: the initialize handshake, tool descriptors, tool call
// requests/results and logging notifications. The types mirror the wire
// representation with exported structs and json tags.
//
// The package is free of transport logic. The stdio and streaminghttp
// bindings frame these types; the engine serializes them into JSON-RPC
// envelopes.
//
// Example (tool result construction):
//
//	res := &mcp.CallToolResult{
//	    Content: []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: "hello"}},
//	}
package mcp
