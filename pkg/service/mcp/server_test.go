package mcp_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/twinmind/pkg/model"
	"github.com/m-mizutani/twinmind/pkg/service/mcp"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

type mockRelay struct {
	mu  sync.Mutex
	ops []model.Operation
}

func (m *mockRelay) operations() []model.Operation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Operation(nil), m.ops...)
}

func (m *mockRelay) Execute(ctx context.Context, op model.Operation, userID, text string) *model.Result {
	m.mu.Lock()
	m.ops = append(m.ops, op)
	m.mu.Unlock()

	if userID == "" {
		return &model.Result{Operation: op, Failure: &model.Failure{
			Kind:    model.FailureValidation,
			Message: "User ID is required",
		}}
	}
	return &model.Result{Operation: op, Success: &model.Success{
		DisplayText: string(op) + ":" + userID + ":" + text,
	}}
}

func connect(t *testing.T, relay *mockRelay) *mcpsdk.ClientSession {
	t.Helper()
	ctx := context.Background()

	server := mcp.NewServer(relay, "test")
	handler := mcpsdk.NewStreamableHTTPHandler(func(r *http.Request) *mcpsdk.Server {
		return server
	}, nil)
	testServer := httptest.NewServer(handler)
	t.Cleanup(testServer.Close)

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    "twinmind-test",
		Version: "0.0.1",
	}, nil)

	session, err := client.Connect(ctx, &mcpsdk.StreamableClientTransport{
		Endpoint: testServer.URL,
	}, nil)
	gt.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	return session
}

func textOf(t *testing.T, result *mcpsdk.CallToolResult) string {
	t.Helper()
	gt.A(t, result.Content).Length(1)
	text, ok := result.Content[0].(*mcpsdk.TextContent)
	gt.True(t, ok)
	return text.Text
}

func TestListTools(t *testing.T) {
	session := connect(t, &mockRelay{})

	tools, err := session.ListTools(context.Background(), nil)
	gt.NoError(t, err)
	gt.A(t, tools.Tools).Length(2)

	names := make(map[string]bool)
	for _, tool := range tools.Tools {
		names[tool.Name] = true

		schemaJSON, err := json.Marshal(tool.InputSchema)
		gt.NoError(t, err)
		var schema jsonschema.Schema
		gt.NoError(t, json.Unmarshal(schemaJSON, &schema))

		gt.Equal(t, schema.Type, "object")
		gt.Equal(t, schema.Required, []string{"user", "text"})
		gt.Map(t, schema.Properties).HasKey("user")
		gt.Map(t, schema.Properties).HasKey("text")
	}
	gt.True(t, names[mcp.ToolStoreMemory])
	gt.True(t, names[mcp.ToolSearchMemory])
}

func TestCallTools(t *testing.T) {
	ctx := context.Background()
	relay := &mockRelay{}
	session := connect(t, relay)

	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      mcp.ToolStoreMemory,
		Arguments: map[string]any{"user": "alice", "text": "keys on the desk"},
	})
	gt.NoError(t, err)
	gt.False(t, result.IsError)
	gt.Equal(t, textOf(t, result), "store:alice:keys on the desk")

	result, err = session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      mcp.ToolSearchMemory,
		Arguments: map[string]any{"user": "alice", "text": "keys"},
	})
	gt.NoError(t, err)
	gt.False(t, result.IsError)
	gt.Equal(t, textOf(t, result), "search:alice:keys")

	gt.Equal(t, relay.operations(), []model.Operation{model.OperationStore, model.OperationSearch})
}

func TestCallToolFailure(t *testing.T) {
	session := connect(t, &mockRelay{})

	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      mcp.ToolSearchMemory,
		Arguments: map[string]any{"user": "", "text": "keys"},
	})
	gt.NoError(t, err)
	gt.True(t, result.IsError)
	gt.Equal(t, textOf(t, result), "User ID is required")
}
