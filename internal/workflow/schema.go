// Package workflow defines the branching conversation state machine that
// drives a scheduling call: immutable-at-load state definitions, intent-based
// transitions, declarative data capture, and tool steps.
//
// A [Workflow] is loaded from a JSONL file (one JSON object per line, one
// workflow per file), validated for transition closure and reachability, and
// then shared read-mostly between live calls. Runtime edits go through the
// [Registry], which applies a validated copy-and-swap so that a call holding a
// reference never observes a half-applied patch.
package workflow

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Step types for [State.StepType].
const (
	// StepLLM marks a state whose turn is an LLM call, optionally followed by
	// a JSON-signalled transition.
	StepLLM = "llm"

	// StepTool marks a state that auto-runs its named tools and routes on
	// their success or error.
	StepTool = "tool"
)

// ExitTarget is the transition target that terminates the call. It may carry
// an override goodbye message after a colon ("exit:Goodbye!").
const ExitTarget = "exit"

// Wildcard is the transition key matched when the resolved intent has no
// explicit entry.
const Wildcard = "*"

// State is one node of a workflow. States are immutable between load/edit
// cycles; the Session reads them without locking.
type State struct {
	// ID is the state identifier, unique within its workflow.
	ID string `json:"id"`

	// StepType is [StepLLM] or [StepTool].
	StepType string `json:"step_type"`

	// SystemPrompt is the LLM system prompt template for this state. It may
	// contain {{placeholder}} tokens from the closed set in [Placeholders].
	SystemPrompt string `json:"system_prompt,omitempty"`

	// ToolNames lists the tools a tool state runs, in order.
	ToolNames []string `json:"tool_names,omitempty"`

	// Transitions maps an intent string to a transition target. The key
	// [Wildcard] is the fallback for unknown intents.
	Transitions map[string]string `json:"transitions,omitempty"`

	// OnEnter, when non-empty, is narrated (rephrased by the LLM) as the call
	// enters this state.
	OnEnter string `json:"on_enter,omitempty"`

	// Narration is a fixed line spoken verbatim for dedicated recovery states.
	Narration string `json:"narration,omitempty"`

	// StateFields maps a JSON-signal key to a capture target: "state.<field>"
	// sets a caller-state field, "step_data.<key>" sets a step-data entry.
	// Keys without a recognised prefix fall back to the legacy mapping.
	StateFields map[string]string `json:"state_fields,omitempty"`

	// ToolArgsMap maps a tool parameter to a data path ("state.<field>",
	// "step_data.<key>", or a literal). A non-empty map takes precedence over
	// the legacy per-tool argument builder.
	ToolArgsMap map[string]string `json:"tool_args_map,omitempty"`

	// AutoIntent is the intent used after a successful tool step. Empty means
	// "success".
	AutoIntent string `json:"auto_intent,omitempty"`

	// Handler is a free-form hint for special-case step handling (e.g.,
	// "propose_times" slot composition).
	Handler string `json:"handler,omitempty"`

	// MaxTurns caps how many LLM turns may occur in this state before the
	// session forces the MaxTurnsTarget transition. Zero means unlimited.
	MaxTurns int `json:"max_turns,omitempty"`

	// MaxTurnsTarget is the transition target applied when MaxTurns is
	// exceeded.
	MaxTurnsTarget string `json:"max_turns_target,omitempty"`
}

// Workflow is a complete, validated state machine definition.
type Workflow struct {
	// ID is the workflow identifier, also used as the JSONL file stem.
	ID string `json:"id"`

	// InitialState is the ID of the state a new call starts in.
	InitialState string `json:"initial_state"`

	// ExitPhrases are caller utterances that end the call from any state
	// (matched fuzzily by the session).
	ExitPhrases []string `json:"exit_phrases,omitempty"`

	// ExitMessage is the default goodbye when an exit target carries none.
	ExitMessage string `json:"exit_message,omitempty"`

	// TriggerKeywords select this workflow when multiple are loaded.
	TriggerKeywords []string `json:"trigger_keywords,omitempty"`

	// States maps state ID to definition.
	States map[string]*State `json:"states"`
}

// State returns the state with the given ID, or nil if absent.
func (w *Workflow) State(id string) *State {
	return w.States[id]
}

// Clone returns a deep copy of the workflow. The Registry patches the copy,
// validates it, and swaps it in atomically.
func (w *Workflow) Clone() *Workflow {
	cp := *w
	cp.ExitPhrases = append([]string(nil), w.ExitPhrases...)
	cp.TriggerKeywords = append([]string(nil), w.TriggerKeywords...)
	cp.States = make(map[string]*State, len(w.States))
	for id, st := range w.States {
		sc := *st
		sc.ToolNames = append([]string(nil), st.ToolNames...)
		sc.Transitions = cloneStringMap(st.Transitions)
		sc.StateFields = cloneStringMap(st.StateFields)
		sc.ToolArgsMap = cloneStringMap(st.ToolArgsMap)
		cp.States[id] = &sc
	}
	return &cp
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Target is a parsed transition target.
type Target struct {
	// StateID is the destination state. Empty for exit targets and for the
	// empty (stay-in-place) target.
	StateID string

	// Message is the override message carried after the colon, or the
	// workflow's default exit message for a bare "exit" target.
	Message string

	// Exit reports whether the target terminates the call.
	Exit bool
}

// ParseTarget parses a transition target string.
//
//	""          → stay in the current state
//	"exit"      → exit with exitMessage
//	"exit:bye"  → exit with "bye"
//	"id"        → advance to id
//	"id:hello"  → advance to id with override message "hello"
func ParseTarget(raw, exitMessage string) Target {
	if raw == "" {
		return Target{}
	}
	if raw == ExitTarget || strings.HasPrefix(raw, ExitTarget+":") {
		msg := exitMessage
		if rest, ok := strings.CutPrefix(raw, ExitTarget+":"); ok {
			msg = rest
		}
		return Target{Message: msg, Exit: true}
	}
	if id, msg, ok := strings.Cut(raw, ":"); ok {
		return Target{StateID: id, Message: msg}
	}
	return Target{StateID: raw}
}

// Resolve looks up the transition for intent on state st, falling back to the
// wildcard entry. ok is false when neither exists; the caller stays put.
func (w *Workflow) Resolve(st *State, intent string) (Target, bool) {
	raw, found := st.Transitions[intent]
	if !found {
		raw, found = st.Transitions[Wildcard]
	}
	if !found {
		return Target{}, false
	}
	return ParseTarget(raw, w.ExitMessage), true
}

// PatchFields is the closed set of state fields the admin surface may modify.
// Patch bodies containing any other key are rejected.
var PatchFields = map[string]bool{
	"on_enter":         true,
	"system_prompt":    true,
	"narration":        true,
	"tool_names":       true,
	"transitions":      true,
	"state_fields":     true,
	"tool_args_map":    true,
	"auto_intent":      true,
	"step_type":        true,
	"handler":          true,
	"max_turns":        true,
	"max_turns_target": true,
}

// ApplyPatch applies an allowlisted field patch to st in place. The patch is
// a decoded JSON object; values must have the field's JSON shape.
func (st *State) ApplyPatch(patch map[string]json.RawMessage) error {
	for field := range patch {
		if !PatchFields[field] {
			return fmt.Errorf("workflow: field %q is not patchable", field)
		}
	}
	for field, raw := range patch {
		var err error
		switch field {
		case "on_enter":
			err = json.Unmarshal(raw, &st.OnEnter)
		case "system_prompt":
			err = json.Unmarshal(raw, &st.SystemPrompt)
		case "narration":
			err = json.Unmarshal(raw, &st.Narration)
		case "tool_names":
			err = json.Unmarshal(raw, &st.ToolNames)
		case "transitions":
			err = json.Unmarshal(raw, &st.Transitions)
		case "state_fields":
			err = json.Unmarshal(raw, &st.StateFields)
		case "tool_args_map":
			err = json.Unmarshal(raw, &st.ToolArgsMap)
		case "auto_intent":
			err = json.Unmarshal(raw, &st.AutoIntent)
		case "step_type":
			err = json.Unmarshal(raw, &st.StepType)
		case "handler":
			err = json.Unmarshal(raw, &st.Handler)
		case "max_turns":
			err = json.Unmarshal(raw, &st.MaxTurns)
		case "max_turns_target":
			err = json.Unmarshal(raw, &st.MaxTurnsTarget)
		}
		if err != nil {
			return fmt.Errorf("workflow: patch field %q: %w", field, err)
		}
	}
	return nil
}
