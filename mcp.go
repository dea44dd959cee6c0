package claudeagent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
)

// MCPToolServer is an in-process MCP server.
//
// Tool servers provide tools the agent can invoke. This implementation runs
// inside the host process: the CLI routes tool traffic back over the control
// channel as mcp_message requests instead of spawning a subprocess, so
// handlers share the host's memory and state.
//
// Use NewMCPToolServer to create a server and RegisterTool to add tools.
type MCPToolServer struct {
	name    string
	version string
	order   []string
	tools   map[string]*toolEntry
}

// toolEntry stores tool metadata and handler.
type toolEntry struct {
	name        string
	description string
	schema      json.RawMessage
	handler     func(ctx context.Context, args json.RawMessage) (ToolResult, error)
}

// ToolResult is the result of a tool invocation.
type ToolResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// ToolContent represents content in a tool result.
type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// TextResult creates a successful tool result with text content.
func TextResult(text string) ToolResult {
	return ToolResult{
		Content: []ToolContent{{Type: "text", Text: text}},
	}
}

// ErrorResult creates an error tool result with text content.
func ErrorResult(text string) ToolResult {
	return ToolResult{
		Content: []ToolContent{{Type: "text", Text: text}},
		IsError: true,
	}
}

// ToolRegistrar registers a tool with a server. Use Tool to create one.
type ToolRegistrar func(*MCPToolServer)

// NewMCPToolServer creates an in-process MCP server with the given tools.
//
// Example:
//
//	server := claudeagent.NewMCPToolServer("calculator", "1.0.0",
//	    claudeagent.Tool("add", "Add two numbers", addHandler),
//	)
func NewMCPToolServer(name, version string, tools ...ToolRegistrar) *MCPToolServer {
	if version == "" {
		version = "1.0.0"
	}
	server := &MCPToolServer{
		name:    name,
		version: version,
		tools:   make(map[string]*toolEntry),
	}
	for _, registrar := range tools {
		registrar(server)
	}
	return server
}

// Tool creates a registrar for a typed tool.
//
// The generic Args type specifies the expected input; arguments are
// unmarshaled from JSON before the handler runs, and the tool's input
// schema is generated from the type's json and jsonschema struct tags.
//
// Example:
//
//	type AddArgs struct {
//	    A int `json:"a" jsonschema:"required,description=First addend"`
//	    B int `json:"b" jsonschema:"required,description=Second addend"`
//	}
//
//	claudeagent.Tool("add", "Add two numbers",
//	    func(ctx context.Context, args AddArgs) (claudeagent.ToolResult, error) {
//	        return claudeagent.TextResult(fmt.Sprintf("%d", args.A+args.B)), nil
//	    },
//	)
func Tool[Args any](
	name, description string,
	handler func(ctx context.Context, args Args) (ToolResult, error),
) ToolRegistrar {
	return func(s *MCPToolServer) {
		s.register(&toolEntry{
			name:        name,
			description: description,
			schema:      generateSchema[Args](),
			handler: func(ctx context.Context, rawArgs json.RawMessage) (ToolResult, error) {
				var args Args
				if len(rawArgs) > 0 {
					if err := json.Unmarshal(rawArgs, &args); err != nil {
						return ErrorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
					}
				}
				return handler(ctx, args)
			},
		})
	}
}

// ToolWithSchema creates a registrar with an explicit input schema, for
// tools that need dynamic argument handling.
func ToolWithSchema(
	name, description string,
	schema json.RawMessage,
	handler func(ctx context.Context, args json.RawMessage) (ToolResult, error),
) ToolRegistrar {
	return func(s *MCPToolServer) {
		s.register(&toolEntry{
			name:        name,
			description: description,
			schema:      schema,
			handler:     handler,
		})
	}
}

// RegisterTool adds a tool built by a registrar to an existing server.
func (s *MCPToolServer) RegisterTool(registrar ToolRegistrar) *MCPToolServer {
	registrar(s)
	return s
}

func (s *MCPToolServer) register(entry *toolEntry) {
	if _, exists := s.tools[entry.name]; !exists {
		s.order = append(s.order, entry.name)
	}
	s.tools[entry.name] = entry
}

// Name returns the server name.
func (s *MCPToolServer) Name() string {
	return s.name
}

// ToolNames returns the names of all registered tools in registration order.
func (s *MCPToolServer) ToolNames() []string {
	return append([]string(nil), s.order...)
}

// CallTool invokes a tool by name with the given arguments.
//
// Returns an error if the tool is not registered. Tool execution failures
// are reported via ToolResult.IsError, not as Go errors.
func (s *MCPToolServer) CallTool(
	ctx context.Context,
	name string,
	args json.RawMessage,
) (ToolResult, error) {
	entry, ok := s.tools[name]
	if !ok {
		return ToolResult{}, fmt.Errorf("tool not found: %s", name)
	}
	return entry.handler(ctx, args)
}

// JSON-RPC error codes used in mcp_message responses.
const (
	jsonRPCMethodNotFound = -32601
	jsonRPCInvalidParams  = -32602
	jsonRPCInternalError  = -32603
)

// HandleMessage processes one JSON-RPC message routed from the CLI.
//
// Supported methods are initialize, tools/list, and tools/call.
// Notifications (methods prefixed "notifications/") are acknowledged with a
// nil response. Unknown methods and unknown tools produce a JSON-RPC error
// object in the response body; the surrounding control response still
// reports success, since the protocol exchange itself worked.
func (s *MCPToolServer) HandleMessage(
	ctx context.Context,
	message map[string]any,
) map[string]any {
	method, _ := message["method"].(string)
	id := message["id"]

	if strings.HasPrefix(method, "notifications/") {
		return nil
	}

	switch method {
	case "initialize":
		return jsonRPCResult(id, map[string]any{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]any{
				"tools": map[string]any{},
			},
			"serverInfo": map[string]any{
				"name":    s.name,
				"version": s.version,
			},
		})

	case "tools/list":
		tools := make([]map[string]any, 0, len(s.order))
		for _, name := range s.order {
			entry := s.tools[name]
			tool := map[string]any{
				"name":        entry.name,
				"description": entry.description,
			}
			if entry.schema != nil {
				tool["inputSchema"] = entry.schema
			}
			tools = append(tools, tool)
		}
		return jsonRPCResult(id, map[string]any{"tools": tools})

	case "tools/call":
		params, _ := message["params"].(map[string]any)
		name, _ := params["name"].(string)
		if name == "" {
			return jsonRPCError(id, jsonRPCInvalidParams, "missing tool name")
		}

		entry, ok := s.tools[name]
		if !ok {
			return jsonRPCError(id, jsonRPCMethodNotFound,
				fmt.Sprintf("tool not found: %s", name))
		}

		var args json.RawMessage
		if raw, exists := params["arguments"]; exists {
			data, err := json.Marshal(raw)
			if err != nil {
				return jsonRPCError(id, jsonRPCInvalidParams,
					fmt.Sprintf("invalid arguments: %v", err))
			}
			args = data
		}

		result, err := entry.handler(ctx, args)
		if err != nil {
			return jsonRPCError(id, jsonRPCInternalError, err.Error())
		}
		return jsonRPCResult(id, map[string]any{
			"content": result.Content,
			"isError": result.IsError,
		})

	default:
		return jsonRPCError(id, jsonRPCMethodNotFound,
			fmt.Sprintf("method not found: %s", method))
	}
}

func jsonRPCResult(id any, result map[string]any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  result,
	}
}

func jsonRPCError(id any, code int, message string) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	}
}

// generateSchema derives a JSON schema from a Go struct type using its
// json and jsonschema struct tags. Definitions are inlined so the CLI
// receives a self-contained schema.
func generateSchema[T any]() json.RawMessage {
	reflector := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}

	var zero T
	schema := reflector.Reflect(zero)

	data, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("failed to generate schema for type %T: %v", zero, err))
	}
	return json.RawMessage(data)
}
