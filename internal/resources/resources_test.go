package resources

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/paroxysm/internal/store"
)

type fakeSource struct {
	stats *store.Stats
	list  []store.KeywordSummary
	err   error
}

func (f *fakeSource) Stats(context.Context) (*store.Stats, error) { return f.stats, f.err }

func (f *fakeSource) ListKeywords(context.Context, string) ([]store.KeywordSummary, error) {
	return f.list, f.err
}

func readReq(uri string) mcp.ReadResourceRequest {
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	return req
}

func onlyText(t *testing.T, contents []mcp.ResourceContents) mcp.TextResourceContents {
	t.Helper()
	if len(contents) != 1 {
		t.Fatalf("got %d contents, want 1", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("content is %T, want TextResourceContents", contents[0])
	}
	return tc
}

func TestResourceDefinitions(t *testing.T) {
	h := NewHandler(&fakeSource{})
	if got := h.StatsResource().URI; got != "kb://stats" {
		t.Errorf("stats URI = %q", got)
	}
	if got := h.KeywordsResource().URI; got != "kb://keywords" {
		t.Errorf("keywords URI = %q", got)
	}
}

func TestHandleStats(t *testing.T) {
	h := NewHandler(&fakeSource{stats: &store.Stats{Keywords: 4, GeneralKeywords: 1, Entries: 9, Authors: 2, Scopes: []string{"#go", "*"}}})
	contents, err := h.HandleStats(context.Background(), readReq("kb://stats"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tc := onlyText(t, contents)
	if tc.MIMEType != "application/json" {
		t.Errorf("MIMEType = %q", tc.MIMEType)
	}
	var got store.Stats
	if err := json.Unmarshal([]byte(tc.Text), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.Keywords != 4 || got.Entries != 9 || len(got.Scopes) != 2 {
		t.Errorf("stats = %+v", got)
	}
}

func TestHandleKeywords(t *testing.T) {
	ts := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	h := NewHandler(&fakeSource{list: []store.KeywordSummary{
		{Keyword: store.Keyword{ID: 1, Name: "rules", Scope: "*"}, Entries: 2, LastEntry: &ts},
		{Keyword: store.Keyword{ID: 2, Name: "empty", Scope: "#go"}},
	}})
	contents, err := h.HandleKeywords(context.Background(), readReq("kb://keywords"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := onlyText(t, contents).Text
	for _, want := range []string{`"name": "rules"`, `"entries": 2`, `"last_entry": "2026-10-19T08:00:00Z"`, `"scope": "#go"`} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %s in:\n%s", want, text)
		}
	}
}

func TestHandleKeywords_EmptyIsArray(t *testing.T) {
	h := NewHandler(&fakeSource{})
	contents, err := h.HandleKeywords(context.Background(), readReq("kb://keywords"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := onlyText(t, contents).Text; got != "[]" {
		t.Errorf("got %q, want []", got)
	}
}

func TestHandle_SourceError(t *testing.T) {
	h := NewHandler(&fakeSource{err: errors.New("database is locked")})
	for _, handle := range []func(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error){
		h.HandleStats, h.HandleKeywords,
	} {
		contents, err := handle(context.Background(), readReq("kb://x"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		tc := onlyText(t, contents)
		if tc.MIMEType != "text/plain" || tc.Text != "Error: database is locked" {
			t.Errorf("got %+v", tc)
		}
	}
}
