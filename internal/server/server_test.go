package server

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/HendryAvila/paroxysm/internal/config"
)

func rpc(t *testing.T, cfg *config.Config, method string, params string) string {
	t.Helper()
	s, cleanup, err := New(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer cleanup()

	msg := `{"jsonrpc":"2.0","id":1,"method":"` + method + `","params":` + params + `}`
	resp := s.HandleMessage(context.Background(), json.RawMessage(msg))
	out, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return string(out)
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Database = filepath.Join(t.TempDir(), "kb.db")
	return cfg
}

func TestNew_RegistersTools(t *testing.T) {
	out := rpc(t, testConfig(t), "tools/list", `{}`)
	for _, name := range []string{"kb_query", "kb_learn", "kb_forget", "kb_swap", "kb_keywords", "kb_stats", "kb_command"} {
		if !strings.Contains(out, `"`+name+`"`) {
			t.Errorf("tools/list missing %s: %s", name, out)
		}
	}
}

func TestNew_RegistersPromptsAndResources(t *testing.T) {
	cfg := testConfig(t)
	out := rpc(t, cfg, "prompts/list", `{}`)
	for _, name := range []string{"kb-usage", "kb-curate"} {
		if !strings.Contains(out, name) {
			t.Errorf("prompts/list missing %s: %s", name, out)
		}
	}
	out = rpc(t, cfg, "resources/list", `{}`)
	for _, uri := range []string{"kb://stats", "kb://keywords"} {
		if !strings.Contains(out, uri) {
			t.Errorf("resources/list missing %s: %s", uri, out)
		}
	}
}

func TestNew_CommandRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	out := rpc(t, cfg, "tools/call", `{"name":"kb_command","arguments":{"line":"??!rules: be nice"}}`)
	if !strings.Contains(out, "rules[1/1]: be nice") {
		t.Fatalf("kb_command output: %s", out)
	}
	// Same database, new server: the entry persisted.
	out = rpc(t, cfg, "tools/call", `{"name":"kb_query","arguments":{"keyword":"rules"}}`)
	if !strings.Contains(out, "rules[1/1]: be nice") {
		t.Errorf("kb_query output: %s", out)
	}
}

func TestNew_BadDatabase(t *testing.T) {
	cfg := config.Default()
	cfg.Database = ""
	_, cleanup, err := New(cfg, nil)
	if err == nil {
		t.Fatal("expected error for empty database path")
	}
	cleanup()
}

func TestServerInstructions(t *testing.T) {
	text := serverInstructions()
	for _, want := range []string{"kb_command", "see: other", "scope *"} {
		if !strings.Contains(text, want) {
			t.Errorf("instructions missing %q", want)
		}
	}
}
