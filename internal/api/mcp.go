package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/wisestar/internal/chat"
	"github.com/kalambet/wisestar/internal/conversation"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Conversations *conversation.Store
	Chat          Sender
	Version       string
}

// NewMCPServer creates an MCP server with all wisestar tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"wisestar",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("wisestar is a math tutor: it solves problems, generates practice questions and reports learning statistics. Messages are kept in conversations."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Send a message to the math tutor in the current conversation and return its reply. Mention 解题/求解/计算 to solve, 生成/出题 to generate a problem, 统计 for statistics, 错题/历史 for learning history."),
			mcp.WithString("text", mcp.Description("The message text"), mcp.Required()),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("new_conversation",
			mcp.WithDescription("Start a new empty conversation and make it current."),
		),
		mcpNewConversation(deps),
	)

	s.AddTool(
		mcp.NewTool("list_conversations",
			mcp.WithDescription("List all conversations, most recent first."),
		),
		mcpListConversations(deps),
	)

	s.AddTool(
		mcp.NewTool("switch_conversation",
			mcp.WithDescription("Make an existing conversation current."),
			mcp.WithString("id", mcp.Description("Conversation id"), mcp.Required()),
		),
		mcpSwitchConversation(deps),
	)

	s.AddTool(
		mcp.NewTool("export_conversation",
			mcp.WithDescription("Export a conversation as Markdown or JSON."),
			mcp.WithString("id", mcp.Description("Conversation id (default: current)")),
			mcp.WithString("format", mcp.Description("markdown (default) or json")),
		),
		mcpExportConversation(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"wisestar://conversation/current",
			"Current Conversation",
			mcp.WithResourceDescription("The current conversation with all its messages, as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceCurrent(deps),
	)

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}

		res, err := deps.Chat.Send(ctx, chat.SendRequest{Text: text})
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			return mcpError("text is required"), nil
		case errors.Is(err, chat.ErrStaleConversation):
			return mcpError(fmt.Sprintf("conversation changed before the reply arrived; reply was: %s", res.Response.Content)), nil
		case err != nil:
			return mcpError(fmt.Sprintf("ask failed: %v", err)), nil
		}

		if res.Reply.Metadata == nil || res.Reply.Metadata.Type == conversation.MetadataStatistics {
			return mcpText(res.Reply.Content), nil
		}
		if res.Reply.Metadata.Type == conversation.MetadataError {
			return mcpError(res.Reply.Content + "\n" + string(res.Reply.Metadata.Data)), nil
		}
		return mcpText(res.Reply.Content + "\n\n" + string(res.Reply.Metadata.Data)), nil
	}
}

func mcpNewConversation(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := deps.Conversations.CreateConversation()
		return mcpText(fmt.Sprintf("Started conversation %s", id)), nil
	}
}

func mcpListConversations(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s := deps.Conversations
		b, err := json.Marshal(summarize(s.Conversations(), s.CurrentID()))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal conversations: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSwitchConversation(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		if !deps.Conversations.SwitchConversation(id) {
			return mcpError(fmt.Sprintf("conversation %s not found", id)), nil
		}
		return mcpText(fmt.Sprintf("Switched to conversation %s", id)), nil
	}
}

func mcpExportConversation(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := req.GetString("id", "")
		if id == "" {
			id = deps.Conversations.CurrentID()
		}
		c, ok := deps.Conversations.Conversation(id)
		if !ok {
			return mcpError(fmt.Sprintf("conversation %s not found", id)), nil
		}

		now := time.Now()
		switch format := req.GetString("format", "markdown"); format {
		case "markdown", "md":
			return mcpText(conversation.ExportMarkdown(c, now)), nil
		case "json":
			data, err := conversation.ExportJSON(c, now)
			if err != nil {
				return mcpError(fmt.Sprintf("export failed: %v", err)), nil
			}
			return mcpText(string(data)), nil
		default:
			return mcpError(fmt.Sprintf("unsupported format %q", format)), nil
		}
	}
}

func mcpResourceCurrent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		c, ok := deps.Conversations.Conversation(deps.Conversations.CurrentID())
		if !ok {
			return nil, errors.New("no current conversation")
		}
		b, err := json.Marshal(c)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal conversation: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
