// Package mcpservice holds the tool registry: tool specs, their typed
// handlers and the validation that runs before any handler.
//
// A tool is declared from a Go argument struct. NewTool reflects the struct
// with invopop/jsonschema into a ToolSpec (field types, required fields,
// defaults and enumerations), and ToolsContainer.Dispatch validates raw
// JSON arguments against that spec before decoding them into the struct:
//
//	type EchoArgs struct {
//	    Message string `json:"message" jsonschema:"description=Text to echo"`
//	    Mode    string `json:"mode,omitempty" jsonschema:"enum=plain,enum=loud,default=plain"`
//	}
//
//	tools := mcpservice.NewToolsContainer()
//	err := tools.Register(mcpservice.NewTool[EchoArgs]("echo",
//	    func(ctx context.Context, s *sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[EchoArgs]) error {
//	        return w.AppendText(r.Args().Message)
//	    },
//	    mcpservice.WithToolDescription("Echo a message back to the caller"),
//	))
//
// Handlers report expected failures (a missing file, a failing command) as
// text in a successful result. A returned error is a protocol-level fault.
package mcpservice
