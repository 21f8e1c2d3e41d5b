package control

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	_ "modernc.org/sqlite"

	"github.com/cadecuddy/money-dollar/state"
)

var testImpl = &mcp.Implementation{Name: "moneydollar-test", Version: "0.1.0"}

// mcpSession registers the tools and returns a connected client session.
func mcpSession(t *testing.T) (*Server, *mcp.ClientSession) {
	t.Helper()
	srv, _ := testServer(t)

	mcpSrv := mcp.NewServer(testImpl, nil)
	srv.RegisterMCP(mcpSrv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()

	go func() {
		_ = mcpSrv.Run(ctx, serverT)
	}()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })

	return srv, session
}

// callTool invokes a tool and returns the JSON text of the first TextContent.
func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if err := result.GetError(); err != nil {
		t.Fatalf("CallTool(%s) tool error: %v", name, err)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	return tc.Text
}

func TestMCP_Rewrite(t *testing.T) {
	_, session := mcpSession(t)

	out := callTool(t, session, "moneydollar_rewrite", map[string]any{"text": "$5 million in funding"})
	var resp struct {
		Text    string `json:"text"`
		Changed bool   `json:"changed"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Text != "$5 million dollars in funding" || !resp.Changed {
		t.Errorf("rewrite tool = %+v", resp)
	}
}

func TestMCP_ToggleAndStatus(t *testing.T) {
	srv, session := mcpSession(t)

	callTool(t, session, "moneydollar_toggle", map[string]any{"enabled": false})

	enabled, err := state.Enabled(context.Background(), srv.db)
	if err != nil {
		t.Fatalf("Enabled: %v", err)
	}
	if enabled {
		t.Error("toggle tool did not persist disabled")
	}

	out := callTool(t, session, "moneydollar_status", map[string]any{})
	if !strings.Contains(out, `"enabled":false`) {
		t.Errorf("status tool = %s", out)
	}
}
