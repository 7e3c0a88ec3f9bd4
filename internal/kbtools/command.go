package kbtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/paroxysm/internal/bot"
)

// Dispatcher runs one chat line. *bot.Bot satisfies it.
type Dispatcher interface {
	Handle(ctx context.Context, msg bot.Message, n bot.Notifier) error
}

// CommandTool handles the kb_command MCP tool. It feeds a raw chat line to
// the dispatcher and returns the notices it would have sent.
type CommandTool struct {
	kb  *KB
	bot Dispatcher
}

// NewCommandTool creates a CommandTool. d should be built with
// OperatorAdmins so operator lines pass the admin check.
func NewCommandTool(kb *KB, d Dispatcher) *CommandTool {
	return &CommandTool{kb: kb, bot: d}
}

// Definition returns the MCP tool definition for kb_command.
func (t *CommandTool) Definition() mcp.Tool {
	return mcp.NewTool("kb_command",
		mcp.WithDescription(
			"Run one chat command exactly as the bot would handle it, e.g. '??foo: bar', "+
				"'??foo[2]', '??!foo[1]->-1' or '??coffee++'. Returns the replies.",
		),
		mcp.WithString("line",
			mcp.Required(),
			mcp.Description("The chat line, starting with ??"),
		),
		mcp.WithString("channel",
			mcp.Description("Channel the line is said in (default: #operator)"),
		),
		mcp.WithString("nick",
			mcp.Description("Nickname to act as (default: mcp)"),
		),
	)
}

// Handle processes the kb_command tool call.
func (t *CommandTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	line := strings.TrimSpace(req.GetString("line", ""))
	if line == "" {
		return mcp.NewToolResultError("'line' is required"), nil
	}
	channel := strings.TrimSpace(req.GetString("channel", ""))
	if channel == "" {
		channel = "#operator"
	}
	nick := strings.TrimSpace(req.GetString("nick", ""))
	if nick == "" {
		nick = Operator
	}

	t.kb.mu.Lock()
	defer t.kb.mu.Unlock()

	var replies []string
	capture := bot.NoticeFunc(func(target, text string) error {
		replies = append(replies, fmt.Sprintf("-> %s: %s", target, Plain(text)))
		return nil
	})
	err := t.bot.Handle(ctx, bot.Message{
		Sender:  nick + "!" + Operator + "@localhost",
		Channel: channel,
		Text:    line,
	}, capture)

	if len(replies) == 0 {
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("command failed: %v", err)), nil
		}
		return mcp.NewToolResultText("Not a keyword command; nothing happened."), nil
	}
	out := strings.Join(replies, "\n")
	if err != nil {
		return mcp.NewToolResultError(out), nil
	}
	return mcp.NewToolResultText(out), nil
}
