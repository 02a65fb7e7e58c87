package mcp

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/twinmind/pkg/interfaces"
	"github.com/m-mizutani/twinmind/pkg/model"
	"github.com/m-mizutani/twinmind/pkg/utils/logging"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	ToolStoreMemory  = "store_memory"
	ToolSearchMemory = "search_memory"
)

// MemoryParams is the input of both memory tools
type MemoryParams struct {
	User string `json:"user"`
	Text string `json:"text"`
}

func memorySchema(textDescription string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"user": {
				Type:        "string",
				Description: "User ID the memory belongs to",
			},
			"text": {
				Type:        "string",
				Description: textDescription,
			},
		},
		Required: []string{"user", "text"},
	}
}

// NewServer creates an MCP server exposing the relay as tools
func NewServer(relay interfaces.MemoryRelay, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "twinmind",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolStoreMemory,
		Description: "Store a piece of text as a memory of the user",
		InputSchema: memorySchema("Text to remember"),
	}, newHandler(relay, model.OperationStore))

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolSearchMemory,
		Description: "Search memories of the user by free-form text or keywords",
		InputSchema: memorySchema("Query text or keywords"),
	}, newHandler(relay, model.OperationSearch))

	return server
}

// Run serves the memory tools over stdio until ctx is canceled or the
// client disconnects.
func Run(ctx context.Context, relay interfaces.MemoryRelay, version string) error {
	logging.From(ctx).Info("starting MCP server on stdio")
	if err := NewServer(relay, version).Run(ctx, &mcp.StdioTransport{}); err != nil {
		return goerr.Wrap(err, "MCP server stopped")
	}
	return nil
}

// newHandler maps relay results onto tool results. Relay failures become
// tool errors visible to the model rather than protocol errors.
func newHandler(relay interfaces.MemoryRelay, op model.Operation) mcp.ToolHandlerFor[*MemoryParams, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, params *MemoryParams) (*mcp.CallToolResult, any, error) {
		result := relay.Execute(ctx, op, params.User, params.Text)

		return &mcp.CallToolResult{
			IsError: !result.OK(),
			Content: []mcp.Content{
				&mcp.TextContent{Text: result.Text()},
			},
		}, nil, nil
	}
}
