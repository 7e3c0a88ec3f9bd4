package kbtools

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/paroxysm/internal/bot"
	"github.com/HendryAvila/paroxysm/internal/config"
	"github.com/HendryAvila/paroxysm/internal/grammar"
	"github.com/HendryAvila/paroxysm/internal/store"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

var testDay = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

// newTestKB creates a KB over a temp store with a pinned clock.
func newTestKB(t *testing.T) *KB {
	t.Helper()
	st, err := store.New(store.Config{Path: filepath.Join(t.TempDir(), "kb.db")})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	kb := NewKB(st)
	kb.clock = func() time.Time { return testDay }
	return kb
}

// makeReq builds a mcp.CallToolRequest with the given arguments.
func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func call(t *testing.T, handle func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	res, err := handle(context.Background(), makeReq(args))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return res
}

func learn(t *testing.T, kb *KB, args map[string]interface{}) {
	t.Helper()
	res := call(t, NewLearnTool(kb).Handle, args)
	if res.IsError {
		t.Fatalf("kb_learn failed: %s", resultText(res))
	}
}

// ─── Plain ───────────────────────────────────────────────────────────────────

func TestPlain(t *testing.T) {
	tests := []struct{ in, want string }{
		{"\x02foo\x0f[1/1]: bar \x0314[2026-10-19]\x0f", "foo[1/1]: bar [2026-10-19]"},
		{"\x02\x0307rules\x0f[1/2]: x", "rules[1/2]: x"},
		{"\x034,12red on blue\x0f", "red on blue"},
		{"\x03,5 comma is text", ",5 comma is text"},
		{"\x0399 bottles", " bottles"},
		{"\x03", ""},
		{"\x033,456x", "6x"},
		{"\x1ditalic\x1d \x1funder\x1f \x16rev", "italic under rev"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := Plain(tt.in); got != tt.want {
			t.Errorf("Plain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// ─── Definitions ─────────────────────────────────────────────────────────────

func TestDefinitions(t *testing.T) {
	kb := newTestKB(t)
	b := bot.New(grammar.New(), kb.store, OperatorAdmins{})
	tests := []struct {
		def      mcp.Tool
		name     string
		required []string
	}{
		{NewQueryTool(kb).Definition(), "kb_query", []string{"keyword"}},
		{NewLearnTool(kb).Definition(), "kb_learn", []string{"keyword", "text"}},
		{NewForgetTool(kb).Definition(), "kb_forget", []string{"keyword", "position"}},
		{NewSwapTool(kb).Definition(), "kb_swap", []string{"keyword", "from", "to"}},
		{NewKeywordsTool(kb).Definition(), "kb_keywords", nil},
		{NewStatsTool(kb).Definition(), "kb_stats", nil},
		{NewCommandTool(kb, b).Definition(), "kb_command", []string{"line"}},
	}
	for _, tt := range tests {
		if tt.def.Name != tt.name {
			t.Errorf("tool name = %q, want %q", tt.def.Name, tt.name)
		}
		for _, r := range tt.required {
			if _, ok := tt.def.InputSchema.Properties[r]; !ok {
				t.Errorf("%s: missing %q parameter", tt.name, r)
			}
			found := false
			for _, req := range tt.def.InputSchema.Required {
				if req == r {
					found = true
				}
			}
			if !found {
				t.Errorf("%s: %q should be required", tt.name, r)
			}
		}
	}
}

// ─── LearnTool / QueryTool ───────────────────────────────────────────────────

func TestLearnAndQuery(t *testing.T) {
	kb := newTestKB(t)

	res := call(t, NewLearnTool(kb).Handle, map[string]interface{}{
		"keyword": "rules", "text": "be  nice\nalways",
	})
	if res.IsError {
		t.Fatalf("unexpected error: %s", resultText(res))
	}
	if got, want := resultText(res), "Learned: rules[1/1]: be nice always [2026-10-19]"; got != want {
		t.Errorf("learn = %q, want %q", got, want)
	}

	// General keywords are visible from any channel.
	res = call(t, NewQueryTool(kb).Handle, map[string]interface{}{"keyword": "RULES", "channel": "#rust"})
	if got, want := resultText(res), "rules[1/1]: be nice always [2026-10-19]"; got != want {
		t.Errorf("query = %q, want %q", got, want)
	}

	entries := listEntries(t, kb, "rules", "*")
	if len(entries) != 1 || entries[0].Author != Operator {
		t.Errorf("entries = %+v, want one entry by %q", entries, Operator)
	}
}

func TestLearnTool_ChannelScope(t *testing.T) {
	kb := newTestKB(t)
	learn(t, kb, map[string]interface{}{"keyword": "tips", "text": "local", "channel": "#go"})

	res := call(t, NewQueryTool(kb).Handle, map[string]interface{}{"keyword": "tips"})
	if got := resultText(res); got != "tips: no entries yet" {
		t.Errorf("general query saw channel keyword: %q", got)
	}
	res = call(t, NewQueryTool(kb).Handle, map[string]interface{}{"keyword": "tips", "channel": "#go"})
	if !strings.Contains(resultText(res), "local") {
		t.Errorf("channel query = %q", resultText(res))
	}
}

func TestLearnTool_Validation(t *testing.T) {
	kb := newTestKB(t)
	tool := NewLearnTool(kb)
	for _, args := range []map[string]interface{}{
		{"text": "x"},
		{"keyword": "k"},
		{"keyword": "  ", "text": "x"},
		{"keyword": "a[1]", "text": "x"},
		{"keyword": "a:b", "text": "x"},
	} {
		if res := call(t, tool.Handle, args); !res.IsError {
			t.Errorf("args %v: expected error, got %q", args, resultText(res))
		}
	}
}

func TestQueryTool(t *testing.T) {
	kb := newTestKB(t)
	for _, txt := range []string{"one", "two", "three"} {
		learn(t, kb, map[string]interface{}{"keyword": "x", "text": txt})
	}
	tool := NewQueryTool(kb)

	tests := []struct {
		args map[string]interface{}
		want string
	}{
		{map[string]interface{}{"keyword": "x"}, "x[1/3]: one [2026-10-19]"},
		{map[string]interface{}{"keyword": "x", "position": float64(3)}, "x[3/3]: three [2026-10-19]"},
		{map[string]interface{}{"keyword": "x", "position": float64(0)}, "x[1/3]: one [2026-10-19]"},
		{map[string]interface{}{"keyword": "x", "position": float64(9)}, "x: only has 3 entries"},
		{map[string]interface{}{"keyword": "nope"}, "nope: no entries yet"},
	}
	for _, tt := range tests {
		if got := resultText(call(t, tool.Handle, tt.args)); got != tt.want {
			t.Errorf("query %v = %q, want %q", tt.args, got, tt.want)
		}
	}

	all := resultText(call(t, tool.Handle, map[string]interface{}{"keyword": "x", "all": true}))
	for _, want := range []string{"## x (general)", "x[1/3]: one", "x[2/3]: two", "x[3/3]: three"} {
		if !strings.Contains(all, want) {
			t.Errorf("all output missing %q:\n%s", want, all)
		}
	}

	if res := call(t, tool.Handle, map[string]interface{}{}); !res.IsError {
		t.Error("expected error without keyword")
	}
}

func TestQueryTool_BlankKeyword(t *testing.T) {
	kb := newTestKB(t)
	if _, err := kb.store.CreateKeyword(context.Background(), "empty", "*"); err != nil {
		t.Fatal(err)
	}
	res := call(t, NewQueryTool(kb).Handle, map[string]interface{}{"keyword": "empty"})
	if got := resultText(res); got != "empty: blank keyword" {
		t.Errorf("got %q", got)
	}
}

// ─── ForgetTool / SwapTool ───────────────────────────────────────────────────

func TestForgetTool(t *testing.T) {
	kb := newTestKB(t)
	for _, txt := range []string{"a", "b", "c"} {
		learn(t, kb, map[string]interface{}{"keyword": "x", "text": txt})
	}
	tool := NewForgetTool(kb)

	res := call(t, tool.Handle, map[string]interface{}{"keyword": "x", "position": float64(1)})
	if res.IsError {
		t.Fatalf("unexpected error: %s", resultText(res))
	}
	if got := resultText(res); got != "x: deleted entry 1, 2 left" {
		t.Errorf("got %q", got)
	}
	entries := listEntries(t, kb, "x", "*")
	if len(entries) != 2 || entries[0].Text != "b" || entries[0].Position != 1 || entries[1].Position != 2 {
		t.Errorf("entries after delete = %+v", entries)
	}

	for _, args := range []map[string]interface{}{
		{"keyword": "x", "position": float64(5)},
		{"keyword": "x"},
		{"keyword": "missing", "position": float64(1)},
		{"position": float64(1)},
	} {
		if res := call(t, tool.Handle, args); !res.IsError {
			t.Errorf("args %v: expected error, got %q", args, resultText(res))
		}
	}
}

func TestForgetTool_EditsAliasItself(t *testing.T) {
	kb := newTestKB(t)
	learn(t, kb, map[string]interface{}{"keyword": "target", "text": "the answer"})
	learn(t, kb, map[string]interface{}{"keyword": "self", "text": "see: self"})
	learn(t, kb, map[string]interface{}{"keyword": "alias", "text": "see: target"})

	res := call(t, NewForgetTool(kb).Handle, map[string]interface{}{"keyword": "self", "position": float64(1)})
	if res.IsError {
		t.Fatalf("forget on a looping keyword failed: %s", resultText(res))
	}
	if got := resultText(res); got != "self: deleted entry 1, 0 left" {
		t.Errorf("got %q", got)
	}

	res = call(t, NewForgetTool(kb).Handle, map[string]interface{}{"keyword": "alias", "position": float64(1)})
	if res.IsError {
		t.Fatalf("forget on an alias failed: %s", resultText(res))
	}
	if entries := listEntries(t, kb, "alias", "*"); len(entries) != 0 {
		t.Errorf("alias entries = %+v, want none", entries)
	}
	if entries := listEntries(t, kb, "target", "*"); len(entries) != 1 || entries[0].Text != "the answer" {
		t.Errorf("redirect target changed: %+v", entries)
	}
}

func TestSwapTool(t *testing.T) {
	kb := newTestKB(t)
	for _, txt := range []string{"a", "b"} {
		learn(t, kb, map[string]interface{}{"keyword": "x", "text": txt, "channel": "#go"})
	}
	tool := NewSwapTool(kb)

	res := call(t, tool.Handle, map[string]interface{}{"keyword": "x", "from": float64(1), "to": float64(2), "channel": "#go"})
	if res.IsError {
		t.Fatalf("unexpected error: %s", resultText(res))
	}
	entries := listEntries(t, kb, "x", "#go")
	if entries[0].Text != "b" || entries[1].Text != "a" {
		t.Errorf("entries after swap = %+v", entries)
	}

	res = call(t, tool.Handle, map[string]interface{}{"keyword": "x", "from": float64(1), "to": float64(2)})
	if !res.IsError || !strings.Contains(resultText(res), "not found in general") {
		t.Errorf("swap from general scope = %q", resultText(res))
	}
	res = call(t, tool.Handle, map[string]interface{}{"keyword": "x", "from": float64(1), "to": float64(7), "channel": "#go"})
	if !res.IsError || !strings.Contains(resultText(res), "nothing to change") {
		t.Errorf("swap with missing position = %q", resultText(res))
	}
}

// ─── KeywordsTool / StatsTool ────────────────────────────────────────────────

func TestKeywordsTool(t *testing.T) {
	kb := newTestKB(t)
	tool := NewKeywordsTool(kb)

	if got := resultText(call(t, tool.Handle, map[string]interface{}{})); got != "No keywords yet." {
		t.Errorf("empty list = %q", got)
	}

	learn(t, kb, map[string]interface{}{"keyword": "alpha", "text": "1"})
	learn(t, kb, map[string]interface{}{"keyword": "alpha", "text": "2"})
	learn(t, kb, map[string]interface{}{"keyword": "beta", "text": "1", "channel": "#go"})
	if _, err := kb.store.CreateKeyword(context.Background(), "gamma", "#go"); err != nil {
		t.Fatal(err)
	}

	out := resultText(call(t, tool.Handle, map[string]interface{}{}))
	for _, want := range []string{
		"## Keywords (3)",
		"**alpha** [general]: 2 entries, last entry ",
		"**beta** [#go]: 1 entry",
		"**gamma** [#go]: 0 entries, last entry never",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out = resultText(call(t, tool.Handle, map[string]interface{}{"scope": "#go", "limit": float64(1)}))
	if !strings.Contains(out, "beta") || strings.Contains(out, "alpha") || !strings.Contains(out, "... 1 more") {
		t.Errorf("scoped, limited output:\n%s", out)
	}
}

func TestStatsTool(t *testing.T) {
	kb := newTestKB(t)
	tool := NewStatsTool(kb)

	out := resultText(call(t, tool.Handle, map[string]interface{}{}))
	if !strings.Contains(out, "**Keywords**: 0") || !strings.Contains(out, "**Scopes**: none") {
		t.Errorf("empty stats:\n%s", out)
	}

	learn(t, kb, map[string]interface{}{"keyword": "a", "text": "1"})
	learn(t, kb, map[string]interface{}{"keyword": "b", "text": "1", "channel": "#go"})
	out = resultText(call(t, tool.Handle, map[string]interface{}{}))
	for _, want := range []string{
		"**Keywords**: 2 (1 general)",
		"**Entries**: 2",
		"**Contributors**: 1",
		"**Scopes** (2): #go, *",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("stats missing %q:\n%s", want, out)
		}
	}
}

// ─── CommandTool ─────────────────────────────────────────────────────────────

func newCommandTool(t *testing.T, kb *KB, admins bot.Admins) *CommandTool {
	t.Helper()
	b := bot.New(grammar.New(), kb.store, admins, bot.WithClock(kb.clock))
	return NewCommandTool(kb, b)
}

func TestCommandTool(t *testing.T) {
	kb := newTestKB(t)
	tool := newCommandTool(t, kb, OperatorAdmins{})

	res := call(t, tool.Handle, map[string]interface{}{"line": "??!rules: be nice"})
	if res.IsError {
		t.Fatalf("unexpected error: %s", resultText(res))
	}
	if got, want := resultText(res), "-> #operator: rules[1/1]: be nice [2026-10-19]"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	res = call(t, tool.Handle, map[string]interface{}{"line": "??rules", "channel": "#rust", "nick": "alice"})
	if got, want := resultText(res), "-> #rust: rules[1/1]: be nice [2026-10-19]"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	res = call(t, tool.Handle, map[string]interface{}{"line": "hello there"})
	if res.IsError || !strings.Contains(resultText(res), "Not a keyword command") {
		t.Errorf("non-command = %q", resultText(res))
	}

	res = call(t, tool.Handle, map[string]interface{}{"line": "??rules[1]->5"})
	if !res.IsError || !strings.Contains(resultText(res), "-> mcp: Error: ") {
		t.Errorf("failed command = %q", resultText(res))
	}

	if res := call(t, tool.Handle, map[string]interface{}{}); !res.IsError {
		t.Error("expected error without line")
	}
}

func TestCommandTool_RespectsAdmins(t *testing.T) {
	kb := newTestKB(t)
	tool := newCommandTool(t, kb, config.NewAdminSet([]string{"alice"}))

	res := call(t, tool.Handle, map[string]interface{}{"line": "??!rules: x", "nick": "bob"})
	if !res.IsError || !strings.Contains(resultText(res), "permission denied") {
		t.Errorf("non-admin general learn = %q", resultText(res))
	}
	res = call(t, tool.Handle, map[string]interface{}{"line": "??!rules: x", "nick": "alice"})
	if res.IsError {
		t.Errorf("admin general learn failed: %q", resultText(res))
	}
}

// ─── helpers ─────────────────────────────────────────────────────────────────

func listEntries(t *testing.T, kb *KB, name, channel string) []store.Entry {
	t.Helper()
	ctx := context.Background()
	kw, err := kb.store.FindKeyword(ctx, name, channel)
	if err != nil || kw == nil {
		t.Fatalf("FindKeyword(%q, %q) = %v, %v", name, channel, kw, err)
	}
	entries, err := kb.store.ListEntries(ctx, kw.ID)
	if err != nil {
		t.Fatal(err)
	}
	return entries
}
