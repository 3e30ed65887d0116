package control

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterMCP registers the control tools on an MCP server.
func (c *Controller) RegisterMCP(srv *mcp.Server) {
	noArgs := inputSchema(map[string]any{}, nil)
	label := map[string]any{"type": "string", "description": "Name for the capture"}

	registerTool(srv, &mcp.Tool{
		Name:        "flowcapture_start",
		Description: "Start recording user interactions on the attached page. Clears the previous trace.",
		InputSchema: noArgs,
	}, func(ctx context.Context, _ *struct{}) (any, error) {
		return c.StartRecording(ctx)
	})

	registerTool(srv, &mcp.Tool{
		Name:        "flowcapture_stop",
		Description: "Stop recording. Finalizes the open interaction and saves the trace when a store is configured.",
		InputSchema: noArgs,
	}, func(ctx context.Context, _ *struct{}) (any, error) {
		return c.StopRecording(ctx)
	})

	registerTool(srv, &mcp.Tool{
		Name:        "flowcapture_checkpoint",
		Description: "Record an initial-state checkpoint of the page.",
		InputSchema: inputSchema(map[string]any{"label": label}, nil),
	}, func(ctx context.Context, r *captureRequest) (any, error) {
		return c.CaptureCheckpoint(ctx, r.Label)
	})

	registerTool(srv, &mcp.Tool{
		Name:        "flowcapture_capture",
		Description: "Mark a manual screenshot in the trace.",
		InputSchema: inputSchema(map[string]any{
			"label": label,
			"mode":  map[string]any{"type": "string", "enum": []any{"viewport", "full", "dynamic"}, "description": "Capture mode (default viewport)"},
		}, nil),
	}, func(ctx context.Context, r *captureRequest) (any, error) {
		return c.MarkCapture(ctx, r.Label, r.Mode)
	})

	registerTool(srv, &mcp.Tool{
		Name:        "flowcapture_trace",
		Description: "Return the recorded steps and the compiled workflow.",
		InputSchema: inputSchema(map[string]any{
			"compiler": map[string]any{"type": "string", "enum": []any{Interpret, Compile}, "description": "Compiler (default interpret)"},
		}, nil),
	}, func(ctx context.Context, r *traceRequest) (any, error) {
		return c.GetTrace(ctx, r.Compiler)
	})
}

type traceRequest struct {
	Compiler string `json:"compiler,omitempty"`
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// registerTool decodes the arguments into Req, tags the context with the
// mcp transport and returns the endpoint result as JSON text. Endpoint
// errors become tool errors.
func registerTool[Req any](srv *mcp.Server, tool *mcp.Tool, endpoint func(context.Context, *Req) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var r Req
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
				var res mcp.CallToolResult
				res.SetError(fmt.Errorf("invalid arguments: %w", err))
				return &res, nil
			}
		}
		resp, err := endpoint(withTransport(ctx, "mcp"), &r)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(err)
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
