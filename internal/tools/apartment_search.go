package tools

import (
	"context"
	"fmt"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/listings"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/search"
)

// Compile-time interface assertion.
var _ Tool = (*ApartmentSearch)(nil)

// ApartmentSearch ranks listings against a free-text query through a
// [search.Searcher] (the remote search service or the local listings store).
type ApartmentSearch struct {
	searcher search.Searcher
	topK     int
}

// NewApartmentSearch creates the apartment_search tool. topK caps the result
// count; values below 1 default to 3.
func NewApartmentSearch(searcher search.Searcher, topK int) *ApartmentSearch {
	if topK < 1 {
		topK = 3
	}
	return &ApartmentSearch{searcher: searcher, topK: topK}
}

// Name implements Tool.
func (t *ApartmentSearch) Name() string { return "apartment_search" }

// Description implements Tool.
func (t *ApartmentSearch) Description() string {
	return "Search available apartment listings matching the caller's criteria."
}

// Schema implements Tool.
func (t *ApartmentSearch) Schema() map[string]Param {
	return map[string]Param{
		"query": {
			Type:        "string",
			Description: "Free-text search query, e.g. \"2 bedrooms downtown under 2000\".",
			Required:    true,
		},
	}
}

// Execute implements Tool.
func (t *ApartmentSearch) Execute(ctx context.Context, args map[string]any) (string, error) {
	query := args["query"].(string)
	results, err := t.searcher.Query(ctx, query, t.topK)
	if err != nil {
		return "", fmt.Errorf("tools: apartment_search: %w", err)
	}
	return listings.FormatResults(results), nil
}
