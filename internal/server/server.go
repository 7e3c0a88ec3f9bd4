// Package server wires all MCP components and creates the server instance.
//
// This is the composition root for the operator surface: it opens the
// store, builds an operator dispatcher and injects both into the tools,
// prompts and resources. No business logic lives here, only wiring.
package server

import (
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/HendryAvila/paroxysm/internal/bot"
	"github.com/HendryAvila/paroxysm/internal/config"
	"github.com/HendryAvila/paroxysm/internal/grammar"
	"github.com/HendryAvila/paroxysm/internal/kbtools"
	"github.com/HendryAvila/paroxysm/internal/prompts"
	"github.com/HendryAvila/paroxysm/internal/resources"
	"github.com/HendryAvila/paroxysm/internal/store"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New opens the database named by cfg and returns an MCP server with every
// tool, prompt and resource registered.
//
// The returned cleanup function closes the store and must be called on
// shutdown (typically via defer). It is always non-nil.
func New(cfg *config.Config, log *zap.Logger) (*server.MCPServer, func(), error) {
	if log == nil {
		log = zap.NewNop()
	}

	st, err := store.New(store.Config{Path: cfg.Database})
	if err != nil {
		return nil, noop, fmt.Errorf("opening knowledge base: %w", err)
	}
	cleanup := func() {
		if err := st.Close(); err != nil {
			log.Warn("store close failed", zap.Error(err))
		}
	}

	return Build(st, log), cleanup, nil
}

// Build registers everything on a new MCP server backed by st.
func Build(st *store.Store, log *zap.Logger) *server.MCPServer {
	s := server.NewMCPServer(
		"paroxysm",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	kb := kbtools.NewKB(st)
	operator := bot.New(grammar.New(), st, kbtools.OperatorAdmins{},
		bot.WithLogger(log.Named("operator")),
	)

	// --- Register tools ---

	queryTool := kbtools.NewQueryTool(kb)
	s.AddTool(queryTool.Definition(), queryTool.Handle)

	learnTool := kbtools.NewLearnTool(kb)
	s.AddTool(learnTool.Definition(), learnTool.Handle)

	forgetTool := kbtools.NewForgetTool(kb)
	s.AddTool(forgetTool.Definition(), forgetTool.Handle)

	swapTool := kbtools.NewSwapTool(kb)
	s.AddTool(swapTool.Definition(), swapTool.Handle)

	keywordsTool := kbtools.NewKeywordsTool(kb)
	s.AddTool(keywordsTool.Definition(), keywordsTool.Handle)

	statsTool := kbtools.NewStatsTool(kb)
	s.AddTool(statsTool.Definition(), statsTool.Handle)

	commandTool := kbtools.NewCommandTool(kb, operator)
	s.AddTool(commandTool.Definition(), commandTool.Handle)

	// --- Register prompts ---

	usagePrompt := prompts.NewUsagePrompt()
	s.AddPrompt(usagePrompt.Definition(), usagePrompt.Handle)

	curatePrompt := prompts.NewCuratePrompt()
	s.AddPrompt(curatePrompt.Definition(), curatePrompt.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(st)
	s.AddResource(resourceHandler.StatsResource(), resourceHandler.HandleStats)
	s.AddResource(resourceHandler.KeywordsResource(), resourceHandler.HandleKeywords)

	return s
}

// noop is the cleanup returned when nothing was opened.
func noop() {}

// serverInstructions tells the AI how the knowledge base is organized.
func serverInstructions() string {
	return `You have access to paroxysm, the keyword knowledge base behind an IRC bot.

## Data model
- A keyword is a named topic holding an ordered list of entries, numbered 1..N.
- Keywords are scoped to one channel (e.g. #rust) or general (scope *).
  A channel keyword wins over a general keyword with the same name.
- Names are case-insensitive. An entry 1 of "see: other" makes the keyword
  an alias that lookups follow.

## Tools
- kb_query / kb_keywords / kb_stats are read-only. Use them freely.
- kb_learn appends an entry. kb_forget deletes one and renumbers the rest.
  kb_swap exchanges two positions.
- kb_command runs a raw chat line such as "??foo[2]->-1" exactly as the bot would.

## Rules
- You act as an administrator: you can edit general keywords.
  Confirm with the user before deleting or reordering entries.
- Positions shift after every delete. Re-query before issuing a second delete.
- Entries are single lines; newlines are collapsed.`
}
