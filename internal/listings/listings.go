// Package listings holds the apartment listing domain: the listing record, a
// PostgreSQL store with pgvector semantic search, and the result formatting
// used to narrate matches to the caller.
//
// The store implements [search.Searcher], so it can back the apartment_search
// tool directly when no remote search service is configured.
package listings

import (
	"fmt"
	"strings"
	"time"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/search"
)

// Listing is one apartment available for viewing.
type Listing struct {
	// ID identifies the listing (e.g., "L123").
	ID string `json:"id"`

	// Address is the street address shown to the caller.
	Address string `json:"address"`

	// Area is the neighbourhood name used for matching.
	Area string `json:"area"`

	// Bedrooms is the bedroom count.
	Bedrooms int `json:"bedrooms"`

	// Rent is the monthly rent in whole currency units.
	Rent int `json:"rent"`

	// AvailableFrom is the earliest move-in date. Zero means available now.
	AvailableFrom time.Time `json:"available_from,omitempty"`

	// Description is the free-form listing text that gets embedded for
	// semantic search.
	Description string `json:"description"`
}

// EmbeddingText returns the text that is embedded for this listing. It folds
// the structured attributes into the description so that queries like "two
// bedrooms downtown under 2000" rank correctly.
func (l Listing) EmbeddingText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d bedroom apartment in %s at %s, %d per month.", l.Bedrooms, l.Area, l.Address, l.Rent)
	if !l.AvailableFrom.IsZero() {
		fmt.Fprintf(&b, " Available from %s.", l.AvailableFrom.Format("January 2, 2006"))
	}
	if l.Description != "" {
		b.WriteString(" ")
		b.WriteString(l.Description)
	}
	return b.String()
}

// FormatResults renders ranked search results as a numbered, speakable block
// for inclusion in an LLM prompt. Metadata keys written by the store are
// surfaced; missing ones are skipped rather than narrated as nulls.
func FormatResults(results []search.Result) string {
	if len(results) == 0 {
		return "No listings matched the caller's criteria."
	}
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. ", i+1)
		if addr, ok := r.Metadata["address"].(string); ok && addr != "" {
			b.WriteString(addr)
		} else {
			b.WriteString("Listing " + r.ID)
		}
		var attrs []string
		if bedrooms, ok := metadataInt(r.Metadata, "bedrooms"); ok {
			attrs = append(attrs, fmt.Sprintf("%d bedrooms", bedrooms))
		}
		if rent, ok := metadataInt(r.Metadata, "rent"); ok {
			attrs = append(attrs, fmt.Sprintf("%d per month", rent))
		}
		if area, ok := r.Metadata["area"].(string); ok && area != "" {
			attrs = append(attrs, area)
		}
		if len(attrs) > 0 {
			b.WriteString(" — " + strings.Join(attrs, ", "))
		}
		fmt.Fprintf(&b, " (listing id %s)", r.ID)
	}
	return b.String()
}

// metadataInt reads a numeric metadata value that may have been decoded from
// JSON as float64 or carried natively as int.
func metadataInt(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
