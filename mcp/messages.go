package mcp

import "encoding/json"

type Method string

const (
	InitializeMethod                 Method = "initialize"
	InitializedNotificationMethod    Method = "notifications/initialized"
	PingMethod                       Method = "ping"
	ToolsListMethod                  Method = "tools/list"
	ToolsCallMethod                  Method = "tools/call"
	LoggingMessageNotificationMethod Method = "notifications/message"
	CancelledNotificationMethod      Method = "notifications/cancelled"
)

// InitializeRequest opens a session.
type InitializeRequest struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      ImplementationInfo `json:"clientInfo"`
}

// InitializeResult answers InitializeRequest.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ImplementationInfo `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// ListToolsRequest carries an optional pagination cursor. The tool set is
// small and always returned in one page.
type ListToolsRequest struct {
	Cursor string `json:"cursor,omitempty"`
}

type ListToolsResult struct {
	Tools      []Tool `json:"tools"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// CallToolRequestReceived is the server-side view of tools/call params. The
// arguments stay raw until the tool registry validates them.
type CallToolRequestReceived struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type CallToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// LoggingMessageNotification is published to a session's event stream.
type LoggingMessageNotification struct {
	Level  LoggingLevel `json:"level"`
	Logger string       `json:"logger,omitempty"`
	Data   any          `json:"data"`
}

// EmptyResult is returned by ping.
type EmptyResult struct{}
