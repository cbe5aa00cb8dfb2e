// Package session drives one call through the scheduling workflow: it turns
// caller utterances into LLM turns, parses JSON completion signals, applies
// transitions, auto-executes tool states, and emits debug events along the
// way.
//
// A Session is quiescent between utterances. Exactly one goroutine (the turn
// controller) calls [Session.Greeting] and [Session.HandleUtterance]; admin
// operations (pause, resume, snapshot) may arrive concurrently from HTTP
// handlers and only touch flag state under the session lock.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/debugbus"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/tools"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/workflow"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/channel"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/llm"
)

const (
	// History trimming: when the message history exceeds historyMax entries,
	// only the last historyKeep are retained.
	historyMax  = 30
	historyKeep = 20

	// snapshotValueLimit elides long step-data values in detail snapshots.
	snapshotValueLimit = 500

	// fallbackLine is spoken when the LLM call fails; the call continues in
	// the same state.
	fallbackLine = "I'm sorry, something went wrong on my end. Could you say that again?"

	greetingPrompt = "The caller has just been connected. Greet them warmly in one or two " +
		"short sentences and ask how you can help. Do not include any JSON in this reply."

	onEnterPromptPrefix = "You just entered this step of the conversation. Say the following " +
		"to the caller, rephrased naturally in your own words: "
)

// Session is the per-call state machine driver. Create with [New].
type Session struct {
	id        string
	startedAt time.Time
	wf        *workflow.Workflow
	tools     *tools.Registry
	llm       llm.Provider
	log       *slog.Logger

	mu           sync.Mutex
	bus          *debugbus.Broadcaster
	currentState string
	caller       CallerState
	stepData     map[string]string
	history      []llm.Message
	turnsInState int
	paused       chan struct{} // non-nil while paused; closed by Resume
	done         bool
	exitMessage  string
}

// Option is a functional option for [New].
type Option func(*Session)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Session) {
		s.log = log
	}
}

// WithID overrides the generated session ID. Intended for tests.
func WithID(id string) Option {
	return func(s *Session) {
		s.id = id
	}
}

// New creates a session positioned at the workflow's initial state with a
// fresh high-entropy ID. The workflow reference is held for the session's
// lifetime; registry edits swap in new snapshots that only affect new calls.
func New(wf *workflow.Workflow, provider llm.Provider, registry *tools.Registry, opts ...Option) *Session {
	s := &Session{
		id:           newSessionID(),
		startedAt:    time.Now().UTC(),
		wf:           wf,
		tools:        registry,
		llm:          provider,
		log:          slog.Default(),
		bus:          debugbus.NewBroadcaster(""),
		currentState: wf.InitialState,
		stepData:     make(map[string]string),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// newSessionID returns a 128-bit random identifier in base64url.
func newSessionID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("session: crypto/rand failed: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// WorkflowID returns the identifier of the workflow driving this session.
func (s *Session) WorkflowID() string { return s.wf.ID }

// Start stamps the caller identifiers. It does not advance the state machine.
func (s *Session) Start(info channel.CallerInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caller.CallID = info.CallID
	s.caller.PhoneNumber = info.From
}

// AttachBroadcaster replaces the debug event sink.
func (s *Session) AttachBroadcaster(b *debugbus.Broadcaster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bus = b
}

// Done reports whether an exit transition has been taken.
func (s *Session) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// ExitMessage returns the goodbye line chosen by the exit transition, or the
// workflow default. Empty until Done.
func (s *Session) ExitMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitMessage
}

// End marks the session done without a farewell, e.g. on transport loss or
// admin hangup.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
}

// CurrentState returns the ID of the state the session is in.
func (s *Session) CurrentState() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentState
}

// Caller returns a copy of the caller state.
func (s *Session) Caller() CallerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caller
}

// Pause blocks the next HandleUtterance until Resume. Emits a pause event.
// Pausing an already paused session is a no-op.
func (s *Session) Pause() {
	s.mu.Lock()
	if s.paused == nil {
		s.paused = make(chan struct{})
		s.bus.Emit(debugbus.EventPause, s.currentState, nil)
	}
	s.mu.Unlock()
}

// Resume unblocks a paused session. Emits a resume event. Resuming a running
// session is a no-op.
func (s *Session) Resume() {
	s.mu.Lock()
	if s.paused != nil {
		close(s.paused)
		s.paused = nil
		s.bus.Emit(debugbus.EventResume, s.currentState, nil)
	}
	s.mu.Unlock()
}

// Paused reports whether the session is currently paused.
func (s *Session) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused != nil
}

// awaitResume blocks while the session is paused, honouring ctx.
func (s *Session) awaitResume(ctx context.Context) error {
	for {
		s.mu.Lock()
		ch := s.paused
		s.mu.Unlock()
		if ch == nil {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Greeting runs the LLM once in the initial state with a fixed
// "just connected" prompt. It does not parse a JSON signal and does not
// advance the state machine.
func (s *Session) Greeting(ctx context.Context) (string, error) {
	s.mu.Lock()
	st := s.wf.State(s.currentState)
	prompt := s.renderPrompt(st.SystemPrompt)
	stateID := s.currentState
	s.mu.Unlock()

	resp, err := s.complete(ctx, stateID, prompt, []llm.Message{
		{Role: llm.RoleUser, Content: greetingPrompt},
	})
	if err != nil {
		return "", fmt.Errorf("session: greeting: %w", err)
	}
	// Strip any signal the model emitted anyway; the greeting never advances.
	_, stripped, _ := ExtractSignal(resp)
	return stripped, nil
}

// HandleUtterance is the main driver: one caller utterance in, one spoken
// reply out. Blocks while paused. See the package doc for the event order.
func (s *Session) HandleUtterance(ctx context.Context, text string) (string, error) {
	if err := s.awaitResume(ctx); err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return "", errors.New("session: already done")
	}
	s.bus.Emit(debugbus.EventSTT, s.currentState, map[string]any{"text": text})

	if MatchesExitPhrase(text, s.wf.ExitPhrases) {
		s.done = true
		s.exitMessage = s.wf.ExitMessage
		msg := s.exitMessage
		s.bus.Emit(debugbus.EventTransition, s.currentState, map[string]any{
			"from": s.currentState, "to": "exit", "intent": "exit_phrase",
		})
		s.mu.Unlock()
		return msg, nil
	}

	st := s.wf.State(s.currentState)
	if st == nil {
		s.mu.Unlock()
		return "", fmt.Errorf("session: unknown state %q", s.currentState)
	}
	if st.StepType != workflow.StepLLM {
		// Tool states are only entered via runToolSteps after an LLM state
		// completes; landing here means the workflow is malformed.
		s.mu.Unlock()
		return "", fmt.Errorf("session: utterance received in tool state %q", s.currentState)
	}
	prompt := s.renderPrompt(st.SystemPrompt)
	stateID := s.currentState
	messages := append(append([]llm.Message{}, s.history...), llm.Message{Role: llm.RoleUser, Content: text})
	s.mu.Unlock()

	resp, err := s.complete(ctx, stateID, prompt, messages)
	if err != nil {
		s.mu.Lock()
		s.bus.Emit(debugbus.EventError, stateID, map[string]any{"error": err.Error()})
		s.mu.Unlock()
		s.log.Error("llm turn failed", "session_id", s.id, "state", stateID, "error", err)
		return fallbackLine, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendHistory(text, resp)
	s.turnsInState++
	s.detectFieldProgress(st, text, resp)

	signal, stripped, found := ExtractSignal(resp)
	if !found {
		if st.MaxTurns > 0 && s.turnsInState >= st.MaxTurns && st.MaxTurnsTarget != "" {
			target := workflow.ParseTarget(st.MaxTurnsTarget, s.wf.ExitMessage)
			return s.applyTransition(ctx, st, "max_turns", target, stripped)
		}
		return stripped, nil
	}

	s.captureFields(st, signal)
	s.bus.Emit(debugbus.EventStepComplete, stateID, map[string]any{"data": signal})

	intent := "success"
	if v, ok := signal["intent"].(string); ok && v != "" {
		intent = v
	}
	target, ok := s.wf.Resolve(st, intent)
	if !ok {
		// No transition for this intent and no wildcard: stay put.
		return stripped, nil
	}
	return s.applyTransition(ctx, st, intent, target, stripped)
}

// complete performs one LLM call with llm_call/llm_response events around it.
// Called without the session lock held.
func (s *Session) complete(ctx context.Context, stateID, systemPrompt string, messages []llm.Message) (string, error) {
	s.mu.Lock()
	s.bus.Emit(debugbus.EventLLMCall, stateID, map[string]any{
		"messages": len(messages),
	})
	s.mu.Unlock()

	resp, err := s.llm.Complete(ctx, llm.Request{
		SystemPrompt: systemPrompt,
		Messages:     messages,
	})
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.bus.Emit(debugbus.EventLLMResponse, stateID, map[string]any{
		"text": truncate(resp.Content, snapshotValueLimit),
	})
	s.mu.Unlock()
	return resp.Content, nil
}

func (s *Session) appendHistory(userText, assistantText string) {
	s.history = append(s.history,
		llm.Message{Role: llm.RoleUser, Content: userText},
		llm.Message{Role: llm.RoleAssistant, Content: assistantText},
	)
	if len(s.history) > historyMax {
		trimmed := make([]llm.Message, historyKeep)
		copy(trimmed, s.history[len(s.history)-historyKeep:])
		s.history = trimmed
	}
}

// detectFieldProgress flags state_fields keys mentioned in the exchange and
// emits one field_progress event listing all of them. Detection is a
// case-insensitive substring test over underscore, hyphen, and space variants
// of each key.
func (s *Session) detectFieldProgress(st *workflow.State, userText, reply string) {
	if len(st.StateFields) == 0 {
		return
	}
	haystack := strings.ToLower(userText + " " + reply)
	var matched []string
	for key := range st.StateFields {
		lower := strings.ToLower(key)
		variants := []string{
			lower,
			strings.ReplaceAll(lower, "_", "-"),
			strings.ReplaceAll(lower, "_", " "),
		}
		for _, v := range variants {
			if strings.Contains(haystack, v) {
				matched = append(matched, key)
				break
			}
		}
	}
	if len(matched) > 0 {
		s.bus.Emit(debugbus.EventFieldProgress, st.ID, map[string]any{"fields": matched})
	}
}

// captureFields applies the state's state_fields mapping to the signal data:
// "state.<field>" targets set a caller-state field, "step_data.<key>" targets
// set step data, and unprefixed targets fall back to the legacy hardcoded
// mapping. The propose_times handler additionally composes the selected time
// slot from its date and time parts.
func (s *Session) captureFields(st *workflow.State, signal map[string]any) {
	for key, target := range st.StateFields {
		value, present := signal[key]
		if !present || value == nil {
			continue
		}
		switch {
		case strings.HasPrefix(target, "state."):
			field := strings.TrimPrefix(target, "state.")
			if err := s.caller.setField(field, value); err != nil {
				s.log.Warn("field capture failed", "session_id", s.id, "field", field, "error", err)
			}
		case strings.HasPrefix(target, "step_data."):
			s.stepData[strings.TrimPrefix(target, "step_data.")] = toString(value)
		default:
			s.captureLegacy(key, value)
		}
	}

	if st.Handler == "propose_times" {
		date := toString(signal["selected_date"])
		clock := toString(signal["selected_time"])
		if date != "" && clock != "" {
			s.caller.SelectedTimeSlot = date + " " + clock
			s.stepData["selected_date"] = date
			s.stepData["selected_time"] = clock
		}
	}
}

// captureLegacy is the backward-compatible mapping for state_fields targets
// without a recognised prefix: the signal key itself names the caller-state
// field. Kept for workflows written before declarative targets.
func (s *Session) captureLegacy(key string, value any) {
	legacy := map[string]string{
		"bedrooms":     "bedrooms",
		"budget":       "max_budget",
		"area":         "preferred_area",
		"move_in":      "move_in_date",
		"move_in_date": "move_in_date",
		"name":         "caller_name",
		"email":        "caller_email",
		"listing":      "listing_id",
		"listing_id":   "listing_id",
		"address":      "listing_address",
		"event_id":     "event_id",
		"confirmed":    "confirmed",
	}
	field, ok := legacy[key]
	if !ok {
		s.stepData[key] = toString(value)
		return
	}
	if err := s.caller.setField(field, value); err != nil {
		s.log.Warn("legacy field capture failed", "session_id", s.id, "field", field, "error", err)
	}
}

// applyTransition advances (or exits) per target, auto-executes chained tool
// states, and narrates entry into the new state. Called with the lock held;
// spokenSoFar is the stripped LLM text for the current turn.
func (s *Session) applyTransition(ctx context.Context, from *workflow.State, intent string, target workflow.Target, spokenSoFar string) (string, error) {
	parts := []string{}
	if spokenSoFar != "" {
		parts = append(parts, spokenSoFar)
	}

	if target.Exit {
		s.done = true
		s.exitMessage = target.Message
		s.bus.Emit(debugbus.EventTransition, from.ID, map[string]any{
			"from": from.ID, "to": "exit", "intent": intent,
		})
		if target.Message != "" {
			parts = append(parts, target.Message)
		}
		return strings.Join(parts, " "), nil
	}
	if target.StateID == "" {
		return spokenSoFar, nil
	}

	s.advanceTo(from.ID, target.StateID, intent)
	if target.Message != "" {
		parts = append(parts, target.Message)
	}

	// Auto-execute tool states until the call settles on an LLM state or exits.
	for {
		st := s.wf.State(s.currentState)
		if st == nil || st.StepType != workflow.StepTool {
			break
		}
		toolIntent := s.runToolSteps(ctx, st)
		next, ok := s.wf.Resolve(st, toolIntent)
		if !ok {
			break
		}
		if next.Exit {
			s.done = true
			s.exitMessage = next.Message
			s.bus.Emit(debugbus.EventTransition, st.ID, map[string]any{
				"from": st.ID, "to": "exit", "intent": toolIntent,
			})
			if next.Message != "" {
				parts = append(parts, next.Message)
			}
			return strings.Join(parts, " "), nil
		}
		if next.StateID == "" {
			break
		}
		s.advanceTo(st.ID, next.StateID, toolIntent)
		if next.Message != "" {
			parts = append(parts, next.Message)
		}
	}

	// Narrate entry into the new LLM state so the caller hears a continuous
	// reply across the transition.
	if st := s.wf.State(s.currentState); st != nil && st.StepType == workflow.StepLLM && st.OnEnter != "" {
		narration, err := s.narrateOnEnter(ctx, st)
		if err != nil {
			s.log.Warn("on_enter narration failed", "session_id", s.id, "state", st.ID, "error", err)
			if st.Narration != "" {
				parts = append(parts, st.Narration)
			}
		} else if narration != "" {
			parts = append(parts, narration)
		}
	}
	return strings.Join(parts, " "), nil
}

func (s *Session) advanceTo(fromID, toID, intent string) {
	s.currentState = toID
	s.turnsInState = 0
	s.bus.Emit(debugbus.EventTransition, fromID, map[string]any{
		"from": fromID, "to": toID, "intent": intent,
	})
}

// narrateOnEnter asks the LLM to rephrase the state's on_enter line. The
// session lock is held by the caller; the LLM call runs without it.
func (s *Session) narrateOnEnter(ctx context.Context, st *workflow.State) (string, error) {
	prompt := s.renderPrompt(st.SystemPrompt)
	stateID := st.ID
	onEnter := st.OnEnter
	s.mu.Unlock()
	resp, err := s.complete(ctx, stateID, prompt, []llm.Message{
		{Role: llm.RoleUser, Content: onEnterPromptPrefix + onEnter},
	})
	s.mu.Lock()
	if err != nil {
		return "", err
	}
	_, stripped, _ := ExtractSignal(resp)
	return stripped, nil
}

// runToolSteps executes a tool state's tools in order and returns the routing
// intent: the state's auto_intent (default "success"), or "error" when any
// tool fails. Results are stored in step data under the state ID and the
// tool's placeholder alias. The session lock is held on entry and exit.
func (s *Session) runToolSteps(ctx context.Context, st *workflow.State) string {
	for _, name := range st.ToolNames {
		args := s.buildToolArgs(st, name)

		s.mu.Unlock()
		result, err := s.tools.Execute(ctx, name, args)
		s.mu.Lock()

		if err != nil {
			result = "Error: " + err.Error()
			s.stepData[st.ID] = result
			s.bus.Emit(debugbus.EventToolExec, st.ID, map[string]any{
				"tool_name": name, "args": redactArgs(args), "result": truncate(result, snapshotValueLimit), "error": true,
			})
			s.log.Error("tool failed", "session_id", s.id, "tool", name, "error", err)
			return "error"
		}

		s.stepData[st.ID] = result
		if alias, ok := toolResultAliases[name]; ok {
			s.stepData[alias] = result
		}
		s.bus.Emit(debugbus.EventToolExec, st.ID, map[string]any{
			"tool_name": name, "args": redactArgs(args), "result": truncate(result, snapshotValueLimit),
		})
	}
	if st.AutoIntent != "" {
		return st.AutoIntent
	}
	return "success"
}

// toolResultAliases maps tool names to the step-data keys their placeholder
// resolvers read.
var toolResultAliases = map[string]string{
	"apartment_search":   "search_results",
	"check_availability": "available_slots",
	"create_booking":     "booking_confirmation",
}

// buildToolArgs resolves tool arguments. A non-empty tool_args_map wins:
// "state.<field>" reads caller state, "step_data.<key>" reads step data,
// anything else is a literal. An empty map falls back to the legacy per-tool
// builder.
func (s *Session) buildToolArgs(st *workflow.State, toolName string) map[string]any {
	if len(st.ToolArgsMap) > 0 {
		args := make(map[string]any, len(st.ToolArgsMap))
		for param, path := range st.ToolArgsMap {
			args[param] = s.resolvePath(path)
		}
		return args
	}
	return s.legacyToolArgs(toolName)
}

func (s *Session) resolvePath(path string) any {
	switch {
	case strings.HasPrefix(path, "state."):
		return s.callerFieldValue(strings.TrimPrefix(path, "state."))
	case strings.HasPrefix(path, "step_data."):
		return s.stepData[strings.TrimPrefix(path, "step_data.")]
	default:
		return path
	}
}

func (s *Session) callerFieldValue(field string) any {
	switch field {
	case "bedrooms":
		return s.caller.Bedrooms
	case "max_budget":
		return s.caller.MaxBudget
	case "preferred_area":
		return s.caller.PreferredArea
	case "move_in_date":
		return s.caller.MoveInDate
	case "listing_id":
		return s.caller.ListingID
	case "listing_address":
		return s.caller.ListingAddress
	case "selected_time_slot":
		return s.caller.SelectedTimeSlot
	case "caller_name":
		return s.caller.CallerName
	case "caller_email":
		return s.caller.CallerEmail
	case "event_id":
		return s.caller.EventID
	case "phone_number":
		return s.caller.PhoneNumber
	default:
		return ""
	}
}

// legacyToolArgs assembles arguments for the built-in tools from known
// session state. Deprecated in favour of tool_args_map; retained for
// workflows that predate it.
func (s *Session) legacyToolArgs(toolName string) map[string]any {
	switch toolName {
	case "apartment_search":
		var sb strings.Builder
		if s.caller.Bedrooms > 0 {
			fmt.Fprintf(&sb, "%d bedrooms", s.caller.Bedrooms)
		}
		if s.caller.PreferredArea != "" {
			fmt.Fprintf(&sb, " in %s", s.caller.PreferredArea)
		}
		if s.caller.MaxBudget > 0 {
			fmt.Fprintf(&sb, " under %d per month", s.caller.MaxBudget)
		}
		if s.caller.MoveInDate != "" {
			fmt.Fprintf(&sb, " moving in around %s", s.caller.MoveInDate)
		}
		query := strings.TrimSpace(sb.String())
		if query == "" {
			query = "available apartments"
		}
		return map[string]any{"query": query}
	case "check_availability":
		return map[string]any{}
	case "create_booking":
		return map[string]any{
			"date":    s.stepData["selected_date"],
			"time":    s.stepData["selected_time"],
			"name":    s.caller.CallerName,
			"email":   s.caller.CallerEmail,
			"address": s.caller.ListingAddress,
		}
	default:
		return map[string]any{}
	}
}

// redactArgs masks PII-bearing argument values in debug events.
func redactArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		switch k {
		case "email", "name":
			out[k] = Redact(toString(v))
		default:
			out[k] = v
		}
	}
	return out
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}

// Snapshot returns a JSON-friendly view of the session. Detail mode adds
// truncated step data, the last six messages, and the full event log.
func (s *Session) Snapshot(detail bool) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := map[string]any{
		"session_id":    s.id,
		"started_at":    s.startedAt,
		"workflow_id":   s.wf.ID,
		"current_state": s.currentState,
		"paused":        s.paused != nil,
		"done":          s.done,
		"caller_state":  s.caller.redacted(),
	}
	if !detail {
		return snap
	}

	stepData := make(map[string]string, len(s.stepData))
	for k, v := range s.stepData {
		stepData[k] = truncate(v, snapshotValueLimit)
	}
	snap["step_data"] = stepData

	n := len(s.history)
	if n > 6 {
		n = 6
	}
	recent := make([]llm.Message, n)
	copy(recent, s.history[len(s.history)-n:])
	snap["messages"] = recent
	snap["events"] = s.bus.Log()
	return snap
}
