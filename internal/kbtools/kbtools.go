// Package kbtools provides MCP tool handlers that let a local operator read
// and curate the keyword knowledge base.
//
// Each tool follows the same shape:
// - A struct holding the shared *KB, injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() processes the request and returns a result
//
// Operators are trusted: tool calls bypass the admin check that guards
// general keywords in chat.
package kbtools

import (
	"regexp"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/paroxysm/internal/keyword"
	"github.com/HendryAvila/paroxysm/internal/store"
)

// Operator is the author recorded on entries written through MCP.
const Operator = "mcp"

// KB is the state every tool shares. Its mutex makes tool calls run one at a
// time, the same way chat commands do.
type KB struct {
	mu    sync.Mutex
	store *store.Store
	clock keyword.Clock
}

// NewKB wraps st for the tools.
func NewKB(st *store.Store) *KB {
	return &KB{store: st}
}

func (kb *KB) opts() []keyword.Option {
	if kb.clock == nil {
		return nil
	}
	return []keyword.Option{keyword.WithClock(kb.clock)}
}

// OperatorAdmins treats every nickname as an administrator.
type OperatorAdmins struct{}

func (OperatorAdmins) Contains(string) bool { return true }

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// boolArg extracts a boolean argument from a tool request.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// channelArg reads the "channel" argument; empty means general.
func channelArg(req mcp.CallToolRequest) string {
	ch := strings.TrimSpace(req.GetString("channel", ""))
	if ch == "" {
		return store.GeneralScope
	}
	return ch
}

// formatting matches IRC bold, italic, underline, reverse and reset codes,
// and a color code with up to two foreground digits and an optional
// ",NN" background.
var formatting = regexp.MustCompile(`[\x02\x0f\x1d\x1f\x16]|\x03(?:\d{1,2}(?:,\d{1,2})?)?`)

// Plain strips IRC bold, reset and color codes.
func Plain(s string) string {
	return formatting.ReplaceAllString(s, "")
}
