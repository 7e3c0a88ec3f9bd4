// Package prompts implements MCP prompt handlers for the knowledge base.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// UsagePrompt handles the kb-usage MCP prompt.
// It explains the chat grammar so the AI can answer questions about it.
type UsagePrompt struct{}

// NewUsagePrompt creates a UsagePrompt.
func NewUsagePrompt() *UsagePrompt {
	return &UsagePrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *UsagePrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("kb-usage",
		mcp.WithPromptDescription(
			"Explain how chat users teach and query the keyword bot, "+
				"then show what the knowledge base currently holds.",
		),
	)
}

// Handle processes the kb-usage prompt request.
func (p *UsagePrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "Keyword bot usage",
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.NewTextContent(usageText),
			},
		},
	}, nil
}

const usageText = "Explain to me how the keyword bot is used in chat. The commands are:\n\n" +
	"- `??name: text` teaches a new entry (`??!name: text` teaches a general keyword, admins only)\n" +
	"- `??name`, `??name[3]`, `??name[*]` query the first, third or every entry (`??!name` reads the general keyword)\n" +
	"- `??name[2]->1` swaps two entries, `??name[2]->-1` deletes entry 2\n" +
	"- `??name++` / `??name--` bump today's counter\n" +
	"- an entry 1 of `see: other` makes the keyword an alias for `other`\n\n" +
	"Keywords taught in a channel are only visible there; general keywords are visible everywhere, " +
	"and a channel keyword wins over a general one with the same name.\n\n" +
	"Then run `kb_stats` and `kb_keywords` and summarize what the knowledge base holds."
