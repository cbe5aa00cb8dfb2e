package session

import (
	"encoding/json"
	"regexp"
	"strings"
)

// fencedBlock matches ```json … ``` and bare ``` … ``` code fences.
var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ExtractSignal pulls the JSON completion signal out of an LLM reply.
//
// Extraction tries, in order: the last fenced code block whose content parses
// as a JSON object, then any line that begins with "{" and ends with "}" and
// parses (scanned from the end, matching "end your reply with" phrasing).
//
// stripped is the reply with exactly the parsed JSON removed and surrounding
// whitespace trimmed. When no signal is found, ok is false and stripped
// equals the trimmed input.
func ExtractSignal(text string) (signal map[string]any, stripped string, ok bool) {
	matches := fencedBlock.FindAllStringSubmatchIndex(text, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		content := text[m[2]:m[3]]
		var obj map[string]any
		if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &obj); err == nil {
			rest := text[:m[0]] + text[m[1]:]
			return obj, strings.TrimSpace(rest), true
		}
	}

	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
			continue
		}
		rest := append(append([]string{}, lines[:i]...), lines[i+1:]...)
		return obj, strings.TrimSpace(strings.Join(rest, "\n")), true
	}

	return nil, strings.TrimSpace(text), false
}
