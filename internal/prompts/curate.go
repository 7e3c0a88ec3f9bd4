package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// CuratePrompt handles the kb-curate MCP prompt.
// It guides the AI through reviewing and tidying one keyword.
type CuratePrompt struct{}

// NewCuratePrompt creates a CuratePrompt.
func NewCuratePrompt() *CuratePrompt {
	return &CuratePrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *CuratePrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("kb-curate",
		mcp.WithPromptDescription(
			"Review one keyword's entries and propose deletions, reorderings "+
				"or merges before applying any of them.",
		),
		mcp.WithArgument("keyword",
			mcp.ArgumentDescription("Keyword to review"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("channel",
			mcp.ArgumentDescription("Channel the keyword belongs to. Omit for a general keyword"),
		),
	)
}

// Handle processes the kb-curate prompt request.
func (p *CuratePrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := req.Params.Arguments["keyword"]
	if name == "" {
		return nil, fmt.Errorf("keyword argument is required")
	}
	channel := req.Params.Arguments["channel"]
	where := "as a general keyword"
	channelArg := ""
	if channel != "" {
		where = "in " + channel
		channelArg = fmt.Sprintf(", channel='%s'", channel)
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Curate keyword: %s", name),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"I want to tidy up the keyword '%s' %s.\n\n"+
						"Please:\n"+
						"1. Run `kb_query` with keyword='%s'%s and all=true\n"+
						"2. Point out duplicates, outdated entries and entries in an odd order\n"+
						"3. Propose concrete `kb_forget` and `kb_swap` calls, remembering that positions shift after every delete\n"+
						"4. Wait for my approval before running any of them",
					name, where, name, channelArg,
				)),
			},
		},
	}, nil
}
