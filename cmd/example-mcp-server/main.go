// Example standalone MCP server for testing external server integration.
//
// It uses the official github.com/modelcontextprotocol/go-sdk and speaks
// MCP over stdio, so it can be wired into a session as an external server:
//
//	go build -o example-mcp-server ./cmd/example-mcp-server
//	# WithMCPServer("textutils", MCPServerConfig{Command: "./example-mcp-server"})
package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// WordCountArgs is the input schema for the word_count tool.
type WordCountArgs struct {
	Text string `json:"text" jsonschema:"Text to count words in"`
}

// ShoutArgs is the input schema for the shout tool.
type ShoutArgs struct {
	Text string `json:"text" jsonschema:"Text to upper-case"`
}

// AddNumbersArgs is the input schema for the add_numbers tool.
type AddNumbersArgs struct {
	A float64 `json:"a" jsonschema:"First number"`
	B float64 `json:"b" jsonschema:"Second number"`
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func main() {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "textutils",
			Version: "1.0.0",
		},
		nil,
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "word_count",
		Description: "Count the words in a piece of text",
	}, func(
		ctx context.Context,
		req *mcp.CallToolRequest,
		args WordCountArgs,
	) (*mcp.CallToolResult, any, error) {
		count := len(strings.Fields(args.Text))
		return textResult(fmt.Sprintf("%d", count)), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "shout",
		Description: "Upper-case the provided text",
	}, func(
		ctx context.Context,
		req *mcp.CallToolRequest,
		args ShoutArgs,
	) (*mcp.CallToolResult, any, error) {
		return textResult(strings.ToUpper(args.Text)), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_numbers",
		Description: "Add two numbers and return the sum",
	}, func(
		ctx context.Context,
		req *mcp.CallToolRequest,
		args AddNumbersArgs,
	) (*mcp.CallToolResult, any, error) {
		return textResult(fmt.Sprintf("%g", args.A+args.B)), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "current_time",
		Description: "Report the current time in RFC 3339 format",
	}, func(
		ctx context.Context,
		req *mcp.CallToolRequest,
		args struct{},
	) (*mcp.CallToolResult, any, error) {
		return textResult(time.Now().Format(time.RFC3339)), nil, nil
	})

	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
