package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/wisestar/internal/chat"
	"github.com/kalambet/wisestar/internal/conversation"
	"github.com/kalambet/wisestar/internal/intent"
	"github.com/kalambet/wisestar/internal/storage"
)

// --- mocks ---

type mockSender struct {
	res chat.SendResult
	err error
}

func (m *mockSender) Send(_ context.Context, _ chat.SendRequest) (chat.SendResult, error) {
	return m.res, m.err
}

// --- helpers ---

func newTestMCPDeps(t *testing.T, resp intent.Response) MCPDeps {
	t.Helper()
	convs := conversation.New(storage.NewMemoryKV(), "")
	convs.Initialize()
	return MCPDeps{
		Conversations: convs,
		Chat:          chat.NewService(convs, fixedDispatcher{resp: resp}, nil, nil),
	}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestMCPTool_Ask(t *testing.T) {
	md, _ := conversation.NewMetadata(conversation.MetadataSolve, map[string]string{"answer": "x = 2"})
	deps := newTestMCPDeps(t, intent.Response{Intent: intent.Solve, Content: "解题完成！", Metadata: md})

	result, err := mcpAsk(deps)(context.Background(), makeCallToolRequest("ask", map[string]interface{}{
		"text": "求解 2x+3=7",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	text := toolText(t, result)
	if !strings.Contains(text, "解题完成！") || !strings.Contains(text, "x = 2") {
		t.Errorf("text = %q", text)
	}

	msgs := deps.Conversations.Messages()
	if len(msgs) != 2 || msgs[1].Role != conversation.RoleAssistant {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestMCPTool_AskFallbackIsPlainText(t *testing.T) {
	deps := newTestMCPDeps(t, intent.Response{Intent: intent.Fallback, Content: intent.FallbackMessage})

	result, _ := mcpAsk(deps)(context.Background(), makeCallToolRequest("ask", map[string]interface{}{"text": "你好"}))
	if result.IsError || toolText(t, result) != intent.FallbackMessage {
		t.Errorf("result = %+v", result)
	}
}

func TestMCPTool_AskErrorReply(t *testing.T) {
	md, _ := conversation.NewMetadata(conversation.MetadataError, map[string]string{"message": "backend down"})
	deps := newTestMCPDeps(t, intent.Response{
		Intent:   intent.Solve,
		Content:  intent.ApologyMessage,
		Metadata: md,
		Err:      errors.New("backend down"),
	})

	result, _ := mcpAsk(deps)(context.Background(), makeCallToolRequest("ask", map[string]interface{}{"text": "解题 1+1"}))
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if !strings.Contains(toolText(t, result), "backend down") {
		t.Errorf("text = %q", toolText(t, result))
	}
}

func TestMCPTool_AskMissingText(t *testing.T) {
	deps := newTestMCPDeps(t, intent.Response{})

	result, _ := mcpAsk(deps)(context.Background(), makeCallToolRequest("ask", map[string]interface{}{}))
	if !result.IsError {
		t.Error("expected error for missing text")
	}
	result, _ = mcpAsk(deps)(context.Background(), makeCallToolRequest("ask", map[string]interface{}{"text": "   "}))
	if !result.IsError {
		t.Error("expected error for blank text")
	}
}

func TestMCPTool_AskStale(t *testing.T) {
	deps := newTestMCPDeps(t, intent.Response{})
	deps.Chat = &mockSender{
		res: chat.SendResult{Response: intent.Response{Content: "late reply"}},
		err: chat.ErrStaleConversation,
	}

	result, _ := mcpAsk(deps)(context.Background(), makeCallToolRequest("ask", map[string]interface{}{"text": "统计"}))
	if !result.IsError || !strings.Contains(toolText(t, result), "late reply") {
		t.Errorf("result = %+v", result)
	}
}

func TestMCPTool_ConversationLifecycle(t *testing.T) {
	deps := newTestMCPDeps(t, intent.Response{})
	first := deps.Conversations.CurrentID()
	ctx := context.Background()

	result, _ := mcpNewConversation(deps)(ctx, makeCallToolRequest("new_conversation", nil))
	second := deps.Conversations.CurrentID()
	if second == first || !strings.Contains(toolText(t, result), second) {
		t.Errorf("new_conversation: %q (current %s)", toolText(t, result), second)
	}

	result, _ = mcpListConversations(deps)(ctx, makeCallToolRequest("list_conversations", nil))
	var list []ConversationSummary
	if err := json.Unmarshal([]byte(toolText(t, result)), &list); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(list) != 2 || list[0].ID != second || !list[0].Current {
		t.Errorf("list = %+v", list)
	}

	result, _ = mcpSwitchConversation(deps)(ctx, makeCallToolRequest("switch_conversation", map[string]interface{}{"id": first}))
	if result.IsError || deps.Conversations.CurrentID() != first {
		t.Errorf("switch failed: %s", toolText(t, result))
	}

	result, _ = mcpSwitchConversation(deps)(ctx, makeCallToolRequest("switch_conversation", map[string]interface{}{"id": "missing"}))
	if !result.IsError {
		t.Error("expected error for unknown id")
	}
	if deps.Conversations.CurrentID() != first {
		t.Error("unknown id changed the current conversation")
	}
}

func TestMCPTool_Export(t *testing.T) {
	deps := newTestMCPDeps(t, intent.Response{})
	deps.Conversations.AddMessage(conversation.Message{Role: conversation.RoleUser, Content: "生成一道函数题"})
	ctx := context.Background()

	result, _ := mcpExportConversation(deps)(ctx, makeCallToolRequest("export_conversation", nil))
	if result.IsError || !strings.HasPrefix(toolText(t, result), "# 生成一道函数题") {
		t.Errorf("markdown export = %q", toolText(t, result))
	}

	result, _ = mcpExportConversation(deps)(ctx, makeCallToolRequest("export_conversation", map[string]interface{}{"format": "json"}))
	var doc struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &doc); err != nil || doc.Title != "生成一道函数题" {
		t.Errorf("json export: %v %+v", err, doc)
	}

	result, _ = mcpExportConversation(deps)(ctx, makeCallToolRequest("export_conversation", map[string]interface{}{"format": "docx"}))
	if !result.IsError {
		t.Error("expected error for unsupported format")
	}

	result, _ = mcpExportConversation(deps)(ctx, makeCallToolRequest("export_conversation", map[string]interface{}{"id": "missing"}))
	if !result.IsError {
		t.Error("expected error for unknown conversation")
	}
}

func TestMCPResource_Current(t *testing.T) {
	deps := newTestMCPDeps(t, intent.Response{})
	deps.Conversations.AddMessage(conversation.Message{Role: conversation.RoleUser, Content: "hello"})

	uri := "wisestar://conversation/current"
	contents, err := mcpResourceCurrent(deps)(context.Background(), makeReadResourceRequest(uri))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("got %d contents, want 1", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	var c conversation.Conversation
	if err := json.Unmarshal([]byte(tc.Text), &c); err != nil {
		t.Fatalf("decoding resource: %v", err)
	}
	if c.ID != deps.Conversations.CurrentID() || len(c.Messages) != 1 || tc.URI != uri {
		t.Errorf("resource = %+v", c)
	}
}

func TestNewMCPServer_Registers(t *testing.T) {
	deps := newTestMCPDeps(t, intent.Response{})
	if s := NewMCPServer(deps); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}
