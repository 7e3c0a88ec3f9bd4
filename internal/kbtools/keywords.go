package kbtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/mark3labs/mcp-go/mcp"
)

// KeywordsTool handles the kb_keywords MCP tool.
type KeywordsTool struct {
	kb *KB
}

// NewKeywordsTool creates a KeywordsTool.
func NewKeywordsTool(kb *KB) *KeywordsTool {
	return &KeywordsTool{kb: kb}
}

// Definition returns the MCP tool definition for kb_keywords.
func (t *KeywordsTool) Definition() mcp.Tool {
	return mcp.NewTool("kb_keywords",
		mcp.WithDescription(
			"List keywords with their entry counts and when they were last taught.",
		),
		mcp.WithString("scope",
			mcp.Description("Only list keywords of this scope: a channel such as #rust, or * for general. Omit for all"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum keywords to list (default: 50)"),
		),
	)
}

// Handle processes the kb_keywords tool call.
func (t *KeywordsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scope := strings.TrimSpace(req.GetString("scope", ""))
	limit := intArg(req, "limit", 50)
	if limit < 1 {
		limit = 50
	}

	t.kb.mu.Lock()
	defer t.kb.mu.Unlock()

	list, err := t.kb.store.ListKeywords(ctx, scope)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list keywords: %v", err)), nil
	}
	if len(list) == 0 {
		return mcp.NewToolResultText("No keywords yet."), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Keywords (%d)\n\n", len(list))
	for i, k := range list {
		if i == limit {
			fmt.Fprintf(&sb, "\n... %d more\n", len(list)-limit)
			break
		}
		last := "never"
		if k.LastEntry != nil {
			last = humanize.Time(*k.LastEntry)
		}
		fmt.Fprintf(&sb, "- **%s** [%s]: %s, last entry %s\n",
			k.Name, scopeLabel(k.Scope), english.Plural(k.Entries, "entry", "entries"), last)
	}
	return mcp.NewToolResultText(sb.String()), nil
}
