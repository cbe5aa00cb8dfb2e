package listings

import (
	"strings"
	"testing"
	"time"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/search"
)

func TestEmbeddingText(t *testing.T) {
	t.Parallel()
	l := Listing{
		ID:            "L123",
		Address:       "412 Pine St, Unit 2",
		Area:          "downtown",
		Bedrooms:      2,
		Rent:          1950,
		AvailableFrom: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		Description:   "Bright corner unit near the park.",
	}
	text := l.EmbeddingText()
	for _, want := range []string{
		"2 bedroom", "downtown", "412 Pine St", "1950",
		"October 1, 2026", "Bright corner unit",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("embedding text %q missing %q", text, want)
		}
	}
}

func TestEmbeddingText_NoAvailabilityDate(t *testing.T) {
	t.Parallel()
	l := Listing{ID: "L1", Address: "1 Main St", Area: "midtown", Bedrooms: 1, Rent: 1200}
	if strings.Contains(l.EmbeddingText(), "Available from") {
		t.Error("zero availability date should not be narrated")
	}
}

func TestFormatResults(t *testing.T) {
	t.Parallel()
	results := []search.Result{
		{
			ID: "L123",
			Metadata: map[string]any{
				"address": "412 Pine St, Unit 2", "bedrooms": 2, "rent": 1950, "area": "downtown",
			},
		},
		{
			ID:       "L077",
			Metadata: map[string]any{"address": "9 Oak Ave"},
		},
	}
	out := FormatResults(results)

	lines := strings.Split(out, "\n")
	if len(lines) != 2 {
		t.Fatalf("formatted output has %d lines:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "1. 412 Pine St, Unit 2") {
		t.Errorf("first line = %q", lines[0])
	}
	for _, want := range []string{"2 bedrooms", "1950 per month", "downtown", "listing id L123"} {
		if !strings.Contains(lines[0], want) {
			t.Errorf("first line %q missing %q", lines[0], want)
		}
	}
	if !strings.Contains(lines[1], "9 Oak Ave") || !strings.Contains(lines[1], "listing id L077") {
		t.Errorf("second line = %q", lines[1])
	}
}

func TestFormatResults_JSONDecodedNumbers(t *testing.T) {
	t.Parallel()
	// Metadata decoded from JSON carries float64 numbers.
	out := FormatResults([]search.Result{
		{ID: "L5", Metadata: map[string]any{"address": "5 Elm St", "bedrooms": float64(3), "rent": float64(2400)}},
	})
	if !strings.Contains(out, "3 bedrooms") || !strings.Contains(out, "2400 per month") {
		t.Errorf("formatted output = %q", out)
	}
}

func TestFormatResults_Empty(t *testing.T) {
	t.Parallel()
	out := FormatResults(nil)
	if !strings.Contains(out, "No listings") {
		t.Errorf("empty results formatted as %q", out)
	}
}

func TestFormatResults_MissingAddressFallsBackToID(t *testing.T) {
	t.Parallel()
	out := FormatResults([]search.Result{{ID: "L9"}})
	if !strings.Contains(out, "Listing L9") {
		t.Errorf("formatted output = %q", out)
	}
}
