package session

import (
	"testing"
)

func TestExtractSignal_FencedJSON(t *testing.T) {
	t.Parallel()
	text := "Great to meet you!\n```json\n{\"intent\":\"greeted\"}\n```"
	signal, stripped, ok := ExtractSignal(text)
	if !ok {
		t.Fatal("signal not found")
	}
	if signal["intent"] != "greeted" {
		t.Errorf("signal = %v", signal)
	}
	if stripped != "Great to meet you!" {
		t.Errorf("stripped = %q", stripped)
	}
}

func TestExtractSignal_BareFence(t *testing.T) {
	t.Parallel()
	text := "Here you go.\n```\n{\"intent\":\"done\",\"bedrooms\":2}\n```\n"
	signal, stripped, ok := ExtractSignal(text)
	if !ok {
		t.Fatal("signal not found")
	}
	if signal["bedrooms"] != float64(2) {
		t.Errorf("signal = %v", signal)
	}
	if stripped != "Here you go." {
		t.Errorf("stripped = %q", stripped)
	}
}

func TestExtractSignal_LastFencedBlockWins(t *testing.T) {
	t.Parallel()
	text := "```json\n{\"intent\":\"first\"}\n```\nmore text\n```json\n{\"intent\":\"second\"}\n```"
	signal, _, ok := ExtractSignal(text)
	if !ok || signal["intent"] != "second" {
		t.Fatalf("signal = %v, ok = %v", signal, ok)
	}
}

func TestExtractSignal_BareLine(t *testing.T) {
	t.Parallel()
	text := "Sounds good, booking that now.\n{\"selected_date\": \"2026-09-02\", \"selected_time\": \"14:00\", \"intent\": \"time_selected\"}"
	signal, stripped, ok := ExtractSignal(text)
	if !ok {
		t.Fatal("signal not found")
	}
	if signal["selected_date"] != "2026-09-02" || signal["intent"] != "time_selected" {
		t.Errorf("signal = %v", signal)
	}
	if stripped != "Sounds good, booking that now." {
		t.Errorf("stripped = %q", stripped)
	}
}

func TestExtractSignal_NoSignal(t *testing.T) {
	t.Parallel()
	tests := []string{
		"Just a plain reply.",
		"A brace { in the middle } but not a JSON line.",
		"```json\nnot json at all\n```",
		"{broken json}",
		"",
	}
	for _, text := range tests {
		signal, stripped, ok := ExtractSignal(text)
		if ok {
			t.Errorf("ExtractSignal(%q) found %v", text, signal)
		}
		if stripped != trimOf(text) {
			t.Errorf("stripped = %q for input %q", stripped, text)
		}
	}
}

func trimOf(s string) string {
	// Mirror of the trimming contract: no signal means trimmed input.
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\n') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == '\n') {
		s = s[:len(s)-1]
	}
	return s
}

func TestExtractSignal_StripRoundtrip(t *testing.T) {
	t.Parallel()
	// strip(S + fenced(J)) == S for any prose S.
	prose := "We have three great options for you.\nThe first is on Pine Street."
	text := prose + "\n```json\n{\"intent\": \"presented\"}\n```"
	_, stripped, ok := ExtractSignal(text)
	if !ok {
		t.Fatal("signal not found")
	}
	if stripped != prose {
		t.Errorf("stripped = %q, want %q", stripped, prose)
	}
}

func TestRedact(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, want string }{
		{"abcde", "***"},
		{"+15551234567", "+15***67"},
		{"", "***"},
		{"dana@example.com", "dan***om"},
		{"1234567", "***"},
		{"12345678", "123***78"},
	}
	for _, tt := range tests {
		if got := Redact(tt.in); got != tt.want {
			t.Errorf("Redact(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMatchesExitPhrase(t *testing.T) {
	t.Parallel()
	phrases := []string{"goodbye", "hang up", "that is all"}
	tests := []struct {
		utterance string
		want      bool
	}{
		{"goodbye", true},
		{"Goodbye!", true},
		{"okay then goodbye", true},
		{"good by", true},        // fuzzy STT mangling
		{"please hang up", true}, // substring
		{"that is all thanks", true},
		{"I need two bedrooms", false},
		{"", false},
		{"good morning", false},
	}
	for _, tt := range tests {
		if got := MatchesExitPhrase(tt.utterance, phrases); got != tt.want {
			t.Errorf("MatchesExitPhrase(%q) = %v, want %v", tt.utterance, got, tt.want)
		}
	}
}
