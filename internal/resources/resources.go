// Package resources implements MCP resource handlers for the knowledge base.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (kb://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/paroxysm/internal/store"
)

// Source is the read side of the store the resources need.
type Source interface {
	Stats(ctx context.Context) (*store.Stats, error)
	ListKeywords(ctx context.Context, scope string) ([]store.KeywordSummary, error)
}

// Handler manages knowledge base resource endpoints.
type Handler struct {
	src Source
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(src Source) *Handler {
	return &Handler{src: src}
}

// StatsResource returns the MCP resource definition for store statistics.
func (h *Handler) StatsResource() mcp.Resource {
	return mcp.NewResource(
		"kb://stats",
		"Knowledge Base Statistics",
		mcp.WithResourceDescription("Keyword, entry and contributor counts plus the scopes in use"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleStats returns the statistics as JSON.
func (h *Handler) HandleStats(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	stats, err := h.src.Stats(ctx)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	return jsonResource(req.Params.URI, stats)
}

// KeywordsResource returns the MCP resource definition for the keyword index.
func (h *Handler) KeywordsResource() mcp.Resource {
	return mcp.NewResource(
		"kb://keywords",
		"Keyword Index",
		mcp.WithResourceDescription("Every keyword with its scope, entry count and last entry time"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleKeywords returns the keyword index as JSON.
func (h *Handler) HandleKeywords(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	list, err := h.src.ListKeywords(ctx, "")
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}
	if list == nil {
		list = []store.KeywordSummary{}
	}
	return jsonResource(req.Params.URI, list)
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
