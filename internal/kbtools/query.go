package kbtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/paroxysm/internal/keyword"
)

// QueryTool handles the kb_query MCP tool.
type QueryTool struct {
	kb *KB
}

// NewQueryTool creates a QueryTool.
func NewQueryTool(kb *KB) *QueryTool {
	return &QueryTool{kb: kb}
}

// Definition returns the MCP tool definition for kb_query.
func (t *QueryTool) Definition() mcp.Tool {
	return mcp.NewTool("kb_query",
		mcp.WithDescription(
			"Look up a keyword the way a chat user in the given channel would see it. "+
				"Returns one entry, or every entry when all=true.",
		),
		mcp.WithString("keyword",
			mcp.Required(),
			mcp.Description("Keyword name (case-insensitive)"),
		),
		mcp.WithString("channel",
			mcp.Description("Channel to resolve from, e.g. #rust. Omit to see only general keywords"),
		),
		mcp.WithNumber("position",
			mcp.Description("1-based entry position (default: 1)"),
		),
		mcp.WithBoolean("all",
			mcp.Description("Return every entry"),
		),
	)
}

// Handle processes the kb_query tool call.
func (t *QueryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := strings.TrimSpace(req.GetString("keyword", ""))
	if name == "" {
		return mcp.NewToolResultError("'keyword' is required"), nil
	}
	channel := channelArg(req)
	pos := intArg(req, "position", 1)
	if pos < 1 {
		pos = 1
	}

	t.kb.mu.Lock()
	defer t.kb.mu.Unlock()

	k, err := keyword.Get(ctx, t.kb.store, name, channel, t.kb.opts()...)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to look up %q: %v", name, err)), nil
	}
	if k == nil {
		return mcp.NewToolResultText(fmt.Sprintf("%s: no entries yet", name)), nil
	}
	if k.Len() == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("%s: blank keyword", name)), nil
	}

	if boolArg(req, "all", false) {
		var sb strings.Builder
		fmt.Fprintf(&sb, "## %s (%s)\n\n", k.Name(), scopeLabel(k.Scope()))
		for i := 1; i <= k.Len(); i++ {
			line, _ := k.Format(i)
			sb.WriteString(Plain(line))
			sb.WriteByte('\n')
		}
		return mcp.NewToolResultText(sb.String()), nil
	}

	line, ok := k.Format(pos)
	if !ok {
		return mcp.NewToolResultText(fmt.Sprintf("%s: only has %d entries", name, k.Len())), nil
	}
	return mcp.NewToolResultText(Plain(line)), nil
}

func scopeLabel(scope string) string {
	if scope == "*" {
		return "general"
	}
	return scope
}
