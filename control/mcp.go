package control

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cadecuddy/money-dollar/rewrite"
	"github.com/cadecuddy/money-dollar/state"
)

// RegisterMCP registers the moneydollar tools on an MCP server, so an agent
// can exercise the rewrite rules and the toggle without the HTTP surface.
func (s *Server) RegisterMCP(srv *mcp.Server) {
	s.registerRewriteTool(srv)
	s.registerToggleTool(srv)
	s.registerStatusTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func (s *Server) registerRewriteTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "moneydollar_rewrite",
		Description: "Annotate currency amounts in a text string and return the rewritten text.",
		InputSchema: inputSchema(map[string]any{
			"text": map[string]any{"type": "string", "description": "Text possibly containing currency amounts"},
		}, []string{"text"}),
	}
	addTool(srv, tool, func(ctx context.Context, args json.RawMessage) (any, error) {
		var req struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(args, &req); err != nil {
			return nil, err
		}
		out, changed := rewrite.Rewrite(req.Text)
		return map[string]any{"text": out, "changed": changed}, nil
	})
}

func (s *Server) registerToggleTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "moneydollar_toggle",
		Description: "Enable or disable currency annotation. Persists the flag and notifies every attached page.",
		InputSchema: inputSchema(map[string]any{
			"enabled": map[string]any{"type": "boolean", "description": "New annotation state"},
		}, []string{"enabled"}),
	}
	addTool(srv, tool, func(ctx context.Context, args json.RawMessage) (any, error) {
		var req struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.Unmarshal(args, &req); err != nil {
			return nil, err
		}
		if err := state.SetEnabled(ctx, s.db, req.Enabled); err != nil {
			return nil, fmt.Errorf("persist toggle: %w", err)
		}
		failed := s.bcast.Broadcast(ctx, Message{Type: TypeToggleState, Enabled: req.Enabled})
		return map[string]any{"enabled": req.Enabled, "delivery_failures": failed}, nil
	})
}

func (s *Server) registerStatusTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "moneydollar_status",
		Description: "Report the persisted annotation flag and the attached pages.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	addTool(srv, tool, func(ctx context.Context, _ json.RawMessage) (any, error) {
		enabled, err := state.Enabled(ctx, s.db)
		if err != nil {
			return nil, fmt.Errorf("read flag: %w", err)
		}
		return map[string]any{"enabled": enabled, "pages": s.bcast.Pages()}, nil
	})
}

// addTool wires a JSON-in/JSON-out endpoint as an MCP tool handler.
func addTool(srv *mcp.Server, tool *mcp.Tool, endpoint func(context.Context, json.RawMessage) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp, err := endpoint(ctx, req.Params.Arguments)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("invalid call: %w", err))
			return &res, nil
		}
		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}
