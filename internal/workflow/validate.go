package workflow

import (
	"fmt"
	"regexp"
	"strings"
)

// Placeholders is the closed set of {{placeholder}} tokens allowed in state
// system prompts. The session resolves each from caller state or step data;
// validation rejects prompts that reference anything else.
var Placeholders = map[string]bool{
	"search_results":        true,
	"available_slots":       true,
	"selected_address":      true,
	"selected_time_display": true,
	"caller_email":          true,
	"booking_confirmation":  true,
}

var placeholderPattern = regexp.MustCompile(`\{\{([a-zA-Z0-9_]+)\}\}`)

// Validate checks structural integrity of the workflow:
//
//   - the initial state exists
//   - every non-exit transition target resolves to an existing state
//   - every state is reachable from the initial state
//   - from every state an exit target is reachable
//   - every step type is known and tool states name at least one tool
//   - system prompts reference only known placeholders
//
// The first violation found is returned; a valid workflow returns nil.
func (w *Workflow) Validate() error {
	if w.ID == "" {
		return fmt.Errorf("workflow: missing id")
	}
	if len(w.States) == 0 {
		return fmt.Errorf("workflow %q: no states", w.ID)
	}
	if _, ok := w.States[w.InitialState]; !ok {
		return fmt.Errorf("workflow %q: initial_state %q does not exist", w.ID, w.InitialState)
	}

	for id, st := range w.States {
		if st.ID == "" {
			st.ID = id
		} else if st.ID != id {
			return fmt.Errorf("workflow %q: state keyed %q declares id %q", w.ID, id, st.ID)
		}
		switch st.StepType {
		case StepLLM, StepTool:
		case "":
			return fmt.Errorf("workflow %q: state %q: missing step_type", w.ID, id)
		default:
			return fmt.Errorf("workflow %q: state %q: unknown step_type %q", w.ID, id, st.StepType)
		}
		if st.StepType == StepTool && len(st.ToolNames) == 0 {
			return fmt.Errorf("workflow %q: tool state %q names no tools", w.ID, id)
		}
		for intent, raw := range st.Transitions {
			t := ParseTarget(raw, w.ExitMessage)
			if t.Exit || t.StateID == "" {
				continue
			}
			if _, ok := w.States[t.StateID]; !ok {
				return fmt.Errorf("workflow %q: state %q: transition %q targets unknown state %q",
					w.ID, id, intent, t.StateID)
			}
		}
		if st.MaxTurnsTarget != "" {
			t := ParseTarget(st.MaxTurnsTarget, w.ExitMessage)
			if !t.Exit && t.StateID != "" {
				if _, ok := w.States[t.StateID]; !ok {
					return fmt.Errorf("workflow %q: state %q: max_turns_target %q targets unknown state",
						w.ID, id, st.MaxTurnsTarget)
				}
			}
		}
		if err := w.checkPlaceholders(st); err != nil {
			return err
		}
	}

	if err := w.checkReachable(); err != nil {
		return err
	}
	return w.checkExitReachable()
}

func (w *Workflow) checkPlaceholders(st *State) error {
	for _, m := range placeholderPattern.FindAllStringSubmatch(st.SystemPrompt, -1) {
		if !Placeholders[m[1]] {
			return fmt.Errorf("workflow %q: state %q: unknown placeholder {{%s}}", w.ID, st.ID, m[1])
		}
	}
	return nil
}

// checkReachable verifies forward reachability of every state from the
// initial state via BFS over transition targets.
func (w *Workflow) checkReachable() error {
	seen := map[string]bool{w.InitialState: true}
	queue := []string{w.InitialState}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range w.successors(id) {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	for id := range w.States {
		if !seen[id] {
			return fmt.Errorf("workflow %q: state %q is unreachable from initial_state %q",
				w.ID, id, w.InitialState)
		}
	}
	return nil
}

// checkExitReachable verifies that every state has at least one path ending in
// an exit target. Implemented as a reverse BFS from the set of states that
// transition to exit directly.
func (w *Workflow) checkExitReachable() error {
	canExit := map[string]bool{}
	queue := []string{}
	for id, st := range w.States {
		for _, raw := range st.Transitions {
			if ParseTarget(raw, w.ExitMessage).Exit {
				canExit[id] = true
				queue = append(queue, id)
				break
			}
		}
	}

	// Invert the transition graph once, then flood backwards.
	preds := map[string][]string{}
	for id := range w.States {
		for _, next := range w.successors(id) {
			preds[next] = append(preds[next], id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, pred := range preds[id] {
			if !canExit[pred] {
				canExit[pred] = true
				queue = append(queue, pred)
			}
		}
	}

	for id := range w.States {
		if !canExit[id] {
			return fmt.Errorf("workflow %q: state %q cannot reach an exit", w.ID, id)
		}
	}
	return nil
}

// successors returns the distinct non-exit transition targets of a state,
// including its max-turns escape target.
func (w *Workflow) successors(id string) []string {
	st := w.States[id]
	if st == nil {
		return nil
	}
	var out []string
	seen := map[string]bool{}
	add := func(raw string) {
		t := ParseTarget(raw, w.ExitMessage)
		if t.Exit || t.StateID == "" || seen[t.StateID] {
			return
		}
		seen[t.StateID] = true
		out = append(out, t.StateID)
	}
	for _, raw := range st.Transitions {
		add(raw)
	}
	if strings.TrimSpace(st.MaxTurnsTarget) != "" {
		add(st.MaxTurnsTarget)
	}
	return out
}
