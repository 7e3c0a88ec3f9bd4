package kbtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mark3labs/mcp-go/mcp"
)

// StatsTool handles the kb_stats MCP tool.
type StatsTool struct {
	kb *KB
}

// NewStatsTool creates a StatsTool.
func NewStatsTool(kb *KB) *StatsTool {
	return &StatsTool{kb: kb}
}

// Definition returns the MCP tool definition for kb_stats.
func (t *StatsTool) Definition() mcp.Tool {
	return mcp.NewTool("kb_stats",
		mcp.WithDescription(
			"Show knowledge base statistics: keywords, entries, contributors and the scopes in use.",
		),
	)
}

// Handle processes the kb_stats tool call.
func (t *StatsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t.kb.mu.Lock()
	defer t.kb.mu.Unlock()

	stats, err := t.kb.store.Stats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get stats: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString("## Knowledge Base Statistics\n\n")
	fmt.Fprintf(&sb, "- **Keywords**: %s (%s general)\n", humanize.Comma(int64(stats.Keywords)), humanize.Comma(int64(stats.GeneralKeywords)))
	fmt.Fprintf(&sb, "- **Entries**: %s\n", humanize.Comma(int64(stats.Entries)))
	fmt.Fprintf(&sb, "- **Contributors**: %s\n", humanize.Comma(int64(stats.Authors)))
	if len(stats.Scopes) > 0 {
		fmt.Fprintf(&sb, "- **Scopes** (%d): %s\n", len(stats.Scopes), strings.Join(stats.Scopes, ", "))
	} else {
		sb.WriteString("- **Scopes**: none\n")
	}
	return mcp.NewToolResultText(sb.String()), nil
}
