package session

import (
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{([a-zA-Z0-9_]+)\}\}`)

// Prompt directives appended to every rendered system prompt. The first
// keeps replies speakable through TTS; the second stops the model from
// narrating empty values.
const (
	ttsDirective = "Speak naturally for a phone call: short sentences, no markdown, " +
		"no bullet points, no emoji, spell out times and numbers the way a person would say them."
	neverNullDirective = "Never say the words null, none, N/A, or undefined. " +
		"If you do not know a value, simply do not mention it."
)

// placeholderResolvers maps each allowed {{placeholder}} to its typed reader.
// The set mirrors workflow.Placeholders; workflow validation guarantees that
// prompts only use these.
var placeholderResolvers = map[string]func(*Session) string{
	"search_results":        func(s *Session) string { return s.stepData["search_results"] },
	"available_slots":       func(s *Session) string { return s.stepData["available_slots"] },
	"selected_address":      func(s *Session) string { return s.caller.ListingAddress },
	"selected_time_display": func(s *Session) string { return s.selectedTimeDisplay() },
	"caller_email":          func(s *Session) string { return s.caller.CallerEmail },
	"booking_confirmation":  func(s *Session) string { return s.stepData["booking_confirmation"] },
}

// renderPrompt substitutes the placeholder tokens in template and appends the
// fixed speech directives. Unknown placeholders are left literal; validation
// should have rejected them at load time.
func (s *Session) renderPrompt(template string) string {
	rendered := placeholderPattern.ReplaceAllStringFunc(template, func(token string) string {
		name := strings.Trim(token, "{}")
		resolve, ok := placeholderResolvers[name]
		if !ok {
			return token
		}
		return resolve(s)
	})
	return rendered + "\n\n" + ttsDirective + "\n" + neverNullDirective
}

// selectedTimeDisplay renders the chosen viewing slot for prompts, preferring
// the composed slot string over its parts.
func (s *Session) selectedTimeDisplay() string {
	if s.caller.SelectedTimeSlot != "" {
		return s.caller.SelectedTimeSlot
	}
	date := s.stepData["selected_date"]
	clock := s.stepData["selected_time"]
	return strings.TrimSpace(date + " " + clock)
}
