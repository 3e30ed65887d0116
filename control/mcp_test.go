package control

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testImpl = &mcp.Implementation{Name: "flowcapture-test", Version: "0.1.0"}

func mcpSession(t *testing.T) *mcp.ClientSession {
	t.Helper()
	f := setup(t, nil)

	srv := mcp.NewServer(testImpl, nil)
	f.c.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		_ = srv.Run(ctx, serverT)
	}()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	return tc.Text, result.IsError
}

func TestMCP_Tools(t *testing.T) {
	session := mcpSession(t)

	text, isErr := callTool(t, session, "flowcapture_start", map[string]any{})
	if isErr {
		t.Fatalf("start: %s", text)
	}
	var st Status
	if err := json.Unmarshal([]byte(text), &st); err != nil {
		t.Fatal(err)
	}
	if !st.Recording || st.TraceID != "trace_1" {
		t.Errorf("start status: %+v", st)
	}

	if text, isErr := callTool(t, session, "flowcapture_checkpoint", map[string]any{"label": "home"}); isErr {
		t.Fatalf("checkpoint: %s", text)
	}
	if text, isErr := callTool(t, session, "flowcapture_capture", map[string]any{"label": "end", "mode": "full"}); isErr {
		t.Fatalf("capture: %s", text)
	}
	if text, isErr := callTool(t, session, "flowcapture_stop", map[string]any{}); isErr {
		t.Fatalf("stop: %s", text)
	}

	text, isErr = callTool(t, session, "flowcapture_trace", map[string]any{"compiler": "compile"})
	if isErr {
		t.Fatalf("trace: %s", text)
	}
	var res TraceResult
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Steps) != 2 || res.Compiler != Compile {
		t.Errorf("trace: compiler %s steps %d", res.Compiler, len(res.Steps))
	}
	if len(res.Program) != 4 {
		t.Errorf("program: got %d instructions, want 4", len(res.Program))
	}

	if _, isErr := callTool(t, session, "flowcapture_stop", map[string]any{}); !isErr {
		t.Error("second stop: expected tool error")
	}
}
