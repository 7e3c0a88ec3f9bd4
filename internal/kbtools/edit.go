package kbtools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/paroxysm/internal/keyword"
)

// ─── LearnTool ──────────────────────────────────────────────────────────────

// LearnTool handles the kb_learn MCP tool.
type LearnTool struct {
	kb *KB
}

// NewLearnTool creates a LearnTool.
func NewLearnTool(kb *KB) *LearnTool {
	return &LearnTool{kb: kb}
}

// Definition returns the MCP tool definition for kb_learn.
func (t *LearnTool) Definition() mcp.Tool {
	return mcp.NewTool("kb_learn",
		mcp.WithDescription(
			"Append an entry to a keyword, creating the keyword if it does not exist. "+
				"Start the text with 'see: <other>' in the first entry to make the keyword an alias.",
		),
		mcp.WithString("keyword",
			mcp.Required(),
			mcp.Description("Keyword name"),
		),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Entry text, a single line"),
		),
		mcp.WithString("channel",
			mcp.Description("Channel scope for a new keyword, e.g. #rust. Omit for a general keyword"),
		),
	)
}

// Handle processes the kb_learn tool call.
func (t *LearnTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := strings.TrimSpace(req.GetString("keyword", ""))
	text := strings.TrimSpace(req.GetString("text", ""))
	if name == "" {
		return mcp.NewToolResultError("'keyword' is required"), nil
	}
	if text == "" {
		return mcp.NewToolResultError("'text' is required"), nil
	}
	if strings.ContainsAny(name, "[:") {
		return mcp.NewToolResultError("'keyword' must not contain '[' or ':'"), nil
	}
	text = strings.Join(strings.Fields(text), " ")

	t.kb.mu.Lock()
	defer t.kb.mu.Unlock()

	k, err := keyword.GetOrCreate(ctx, t.kb.store, name, channelArg(req), t.kb.opts()...)
	if errors.Is(err, keyword.ErrRedirectLoop) {
		k, err = keyword.Load(ctx, t.kb.store, name, channelArg(req), t.kb.opts()...)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load %q: %v", name, err)), nil
	}
	pos, err := k.Learn(ctx, Operator, text)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to learn: %v", err)), nil
	}
	line, _ := k.Format(pos)
	return mcp.NewToolResultText(fmt.Sprintf("Learned: %s", Plain(line))), nil
}

// ─── ForgetTool ─────────────────────────────────────────────────────────────

// ForgetTool handles the kb_forget MCP tool.
type ForgetTool struct {
	kb *KB
}

// NewForgetTool creates a ForgetTool.
func NewForgetTool(kb *KB) *ForgetTool {
	return &ForgetTool{kb: kb}
}

// Definition returns the MCP tool definition for kb_forget.
func (t *ForgetTool) Definition() mcp.Tool {
	return mcp.NewTool("kb_forget",
		mcp.WithDescription(
			"Delete one entry from a keyword. Later entries move up to close the gap.",
		),
		mcp.WithString("keyword",
			mcp.Required(),
			mcp.Description("Keyword name"),
		),
		mcp.WithNumber("position",
			mcp.Required(),
			mcp.Description("1-based position of the entry to delete"),
		),
		mcp.WithString("channel",
			mcp.Description("Channel to resolve from. Omit for general keywords"),
		),
	)
}

// Handle processes the kb_forget tool call.
func (t *ForgetTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := strings.TrimSpace(req.GetString("keyword", ""))
	if name == "" {
		return mcp.NewToolResultError("'keyword' is required"), nil
	}
	pos := intArg(req, "position", 0)
	if pos < 1 {
		return mcp.NewToolResultError("'position' must be 1 or more"), nil
	}

	t.kb.mu.Lock()
	defer t.kb.mu.Unlock()

	k, res := t.kb.existing(ctx, name, channelArg(req))
	if res != nil {
		return res, nil
	}
	if err := k.Delete(ctx, pos); err != nil {
		return mcp.NewToolResultError(describe(err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s: deleted entry %d, %d left", k.Name(), pos, k.Len())), nil
}

// ─── SwapTool ───────────────────────────────────────────────────────────────

// SwapTool handles the kb_swap MCP tool.
type SwapTool struct {
	kb *KB
}

// NewSwapTool creates a SwapTool.
func NewSwapTool(kb *KB) *SwapTool {
	return &SwapTool{kb: kb}
}

// Definition returns the MCP tool definition for kb_swap.
func (t *SwapTool) Definition() mcp.Tool {
	return mcp.NewTool("kb_swap",
		mcp.WithDescription("Exchange the positions of two entries of a keyword."),
		mcp.WithString("keyword",
			mcp.Required(),
			mcp.Description("Keyword name"),
		),
		mcp.WithNumber("from",
			mcp.Required(),
			mcp.Description("1-based position of the first entry"),
		),
		mcp.WithNumber("to",
			mcp.Required(),
			mcp.Description("1-based position of the second entry"),
		),
		mcp.WithString("channel",
			mcp.Description("Channel to resolve from. Omit for general keywords"),
		),
	)
}

// Handle processes the kb_swap tool call.
func (t *SwapTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := strings.TrimSpace(req.GetString("keyword", ""))
	if name == "" {
		return mcp.NewToolResultError("'keyword' is required"), nil
	}
	from, to := intArg(req, "from", 0), intArg(req, "to", 0)
	if from < 1 || to < 1 {
		return mcp.NewToolResultError("'from' and 'to' must be 1 or more"), nil
	}

	t.kb.mu.Lock()
	defer t.kb.mu.Unlock()

	k, res := t.kb.existing(ctx, name, channelArg(req))
	if res != nil {
		return res, nil
	}
	if err := k.Swap(ctx, from, to); err != nil {
		return mcp.NewToolResultError(describe(err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s: swapped entries %d and %d", k.Name(), from, to)), nil
}

// existing loads a keyword that must already exist. Redirects are not
// followed, so an alias is edited as itself. The caller holds kb.mu.
func (kb *KB) existing(ctx context.Context, name, channel string) (*keyword.Keyword, *mcp.CallToolResult) {
	k, err := keyword.Load(ctx, kb.store, name, channel, kb.opts()...)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("failed to load %q: %v", name, err))
	}
	if k == nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf("keyword %q not found in %s", name, scopeLabel(channel)))
	}
	return k, nil
}

func describe(err error) string {
	if errors.Is(err, keyword.ErrNotFound) {
		return fmt.Sprintf("nothing to change: %v", err)
	}
	return fmt.Sprintf("store failure: %v", err)
}
