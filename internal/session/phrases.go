package session

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// exitPhraseThreshold is the minimum Jaro-Winkler similarity for a fuzzy
// exit-phrase hit. STT mangles short farewells ("goodbye" → "good by"), so
// exact matching alone misses real hangup intents.
const exitPhraseThreshold = 0.90

// MatchesExitPhrase reports whether the utterance is one of the workflow's
// exit phrases. Matching is case-insensitive: first a substring test on the
// normalised utterance, then Jaro-Winkler similarity against the whole
// utterance and against its trailing words.
func MatchesExitPhrase(utterance string, phrases []string) bool {
	u := normalizePhrase(utterance)
	if u == "" {
		return false
	}
	for _, phrase := range phrases {
		p := normalizePhrase(phrase)
		if p == "" {
			continue
		}
		if strings.Contains(u, p) {
			return true
		}
		if matchr.JaroWinkler(u, p, false) >= exitPhraseThreshold {
			return true
		}
		// Compare against the utterance tail of matching word length:
		// "okay then goodbye" should match the phrase "goodbye".
		if tail := trailingWords(u, len(strings.Fields(p))); tail != u {
			if matchr.JaroWinkler(tail, p, false) >= exitPhraseThreshold {
				return true
			}
		}
	}
	return false
}

// normalizePhrase lowercases and strips everything but letters, digits, and
// single spaces.
func normalizePhrase(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func trailingWords(s string, n int) string {
	words := strings.Fields(s)
	if n <= 0 || n >= len(words) {
		return s
	}
	return strings.Join(words[len(words)-n:], " ")
}
