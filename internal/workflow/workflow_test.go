package workflow

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// testWorkflow builds a small valid three-state machine for reuse.
func testWorkflow() *Workflow {
	return &Workflow{
		ID:           "test",
		InitialState: "a",
		ExitMessage:  "Bye!",
		States: map[string]*State{
			"a": {
				ID:          "a",
				StepType:    StepLLM,
				Transitions: map[string]string{"next": "b", "*": "c"},
			},
			"b": {
				ID:        "b",
				StepType:  StepTool,
				ToolNames: []string{"apartment_search"},
				Transitions: map[string]string{
					"success": "c",
					"error":   "a",
				},
			},
			"c": {
				ID:          "c",
				StepType:    StepLLM,
				Transitions: map[string]string{"done": "exit:See you!", "*": "exit"},
			},
		},
	}
}

func TestParseTarget(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		stateID string
		message string
		exit    bool
	}{
		{"", "", "", false},
		{"id", "id", "", false},
		{"id:m", "id", "m", false},
		{"exit", "", "Bye!", true},
		{"exit:g", "", "g", true},
		{"exit:", "", "", true},
	}
	for _, tt := range tests {
		got := ParseTarget(tt.raw, "Bye!")
		if got.StateID != tt.stateID || got.Message != tt.message || got.Exit != tt.exit {
			t.Errorf("ParseTarget(%q) = %+v, want {%q %q %v}",
				tt.raw, got, tt.stateID, tt.message, tt.exit)
		}
	}
}

func TestResolve_WildcardFallback(t *testing.T) {
	t.Parallel()
	w := testWorkflow()
	st := w.State("a")

	target, ok := w.Resolve(st, "next")
	if !ok || target.StateID != "b" {
		t.Errorf("known intent resolved to %+v", target)
	}
	target, ok = w.Resolve(st, "unheard-of")
	if !ok || target.StateID != "c" {
		t.Errorf("unknown intent should fall back to wildcard, got %+v", target)
	}

	st.Transitions = map[string]string{"only": "b"}
	if _, ok := w.Resolve(st, "unheard-of"); ok {
		t.Error("no wildcard: unknown intent should not resolve")
	}
}

func TestValidate_Valid(t *testing.T) {
	t.Parallel()
	if err := testWorkflow().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_Failures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Workflow)
		wantSub string
	}{
		{"missing initial", func(w *Workflow) { w.InitialState = "nope" }, "initial_state"},
		{"dangling target", func(w *Workflow) { w.States["a"].Transitions["next"] = "ghost" }, "unknown state"},
		{"unreachable state", func(w *Workflow) {
			w.States["d"] = &State{ID: "d", StepType: StepLLM, Transitions: map[string]string{"*": "exit"}}
		}, "unreachable"},
		{"no exit path", func(w *Workflow) {
			w.States["c"].Transitions = map[string]string{"loop": "a"}
		}, "cannot reach an exit"},
		{"bad step type", func(w *Workflow) { w.States["a"].StepType = "magic" }, "unknown step_type"},
		{"tool state without tools", func(w *Workflow) { w.States["b"].ToolNames = nil }, "names no tools"},
		{"unknown placeholder", func(w *Workflow) {
			w.States["a"].SystemPrompt = "Hi {{wat}}"
		}, "unknown placeholder"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := testWorkflow()
			tt.mutate(w)
			err := w.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q should mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestValidate_KnownPlaceholdersAccepted(t *testing.T) {
	t.Parallel()
	w := testWorkflow()
	w.States["a"].SystemPrompt = "Options:\n{{search_results}}\nSlots: {{available_slots}}"
	if err := w.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestApplyPatch_RejectsUnknownField(t *testing.T) {
	t.Parallel()
	st := &State{ID: "a", StepType: StepLLM}
	err := st.ApplyPatch(map[string]json.RawMessage{"id": json.RawMessage(`"evil"`)})
	if err == nil {
		t.Fatal("expected rejection of non-allowlisted field")
	}
}

func TestApplyPatch_AllowedFields(t *testing.T) {
	t.Parallel()
	st := &State{ID: "a", StepType: StepLLM}
	patch := map[string]json.RawMessage{
		"system_prompt": json.RawMessage(`"new prompt"`),
		"transitions":   json.RawMessage(`{"go":"b"}`),
		"max_turns":     json.RawMessage(`4`),
	}
	if err := st.ApplyPatch(patch); err != nil {
		t.Fatalf("ApplyPatch: %v", err)
	}
	if st.SystemPrompt != "new prompt" || st.Transitions["go"] != "b" || st.MaxTurns != 4 {
		t.Errorf("patch not applied: %+v", st)
	}
}

func TestSaveLoad_Roundtrip(t *testing.T) {
	t.Parallel()
	w := testWorkflow()
	path := filepath.Join(t.TempDir(), "nested", "test.jsonl")

	if err := SaveFile(w, path); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if n := strings.Count(strings.TrimRight(string(data), "\n"), "\n"); n != 0 {
		t.Errorf("expected a single JSON line, got %d extra newlines", n)
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if loaded.ID != w.ID || loaded.InitialState != w.InitialState {
		t.Errorf("roundtrip mismatch: %+v", loaded)
	}
	if loaded.States["c"].Transitions["done"] != "exit:See you!" {
		t.Errorf("transitions lost in roundtrip: %+v", loaded.States["c"])
	}
}

func TestDefaultWorkflow_LoadsAndValidates(t *testing.T) {
	t.Parallel()
	r, err := NewRegistry("")
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	w, err := r.Get("apartment_viewing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if w.InitialState != "hello" {
		t.Errorf("initial state = %q, want hello", w.InitialState)
	}
	for _, id := range []string{"greet_and_gather", "search_listings", "search_error",
		"present_options", "check_availability", "propose_times", "collect_details",
		"create_booking", "confirm_done"} {
		if w.State(id) == nil {
			t.Errorf("default workflow missing state %q", id)
		}
	}
	if w.State("search_listings").StepType != StepTool {
		t.Error("search_listings should be a tool state")
	}
}

func TestRegistry_PatchState_SwapAndRollback(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := SaveFile(testWorkflow(), filepath.Join(dir, "test.jsonl")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	r, err := NewRegistry(dir)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	before, _ := r.Get("test")

	// Invalid patch: dangling transition target. Published workflow must not move.
	_, err = r.PatchState("test", "a", map[string]json.RawMessage{
		"transitions": json.RawMessage(`{"next":"ghost"}`),
	})
	if err == nil {
		t.Fatal("expected validation failure")
	}
	after, _ := r.Get("test")
	if after != before {
		t.Error("failed patch must not replace the published workflow")
	}

	// Valid patch swaps in a new snapshot and leaves the old one untouched.
	patched, err := r.PatchState("test", "a", map[string]json.RawMessage{
		"system_prompt": json.RawMessage(`"hello there"`),
	})
	if err != nil {
		t.Fatalf("PatchState: %v", err)
	}
	if patched.State("a").SystemPrompt != "hello there" {
		t.Error("patch not visible in new snapshot")
	}
	if before.State("a").SystemPrompt == "hello there" {
		t.Error("patch leaked into the old snapshot")
	}

	// Persisted: a fresh registry sees the patch.
	r2, err := NewRegistry(dir)
	if err != nil {
		t.Fatalf("NewRegistry reload: %v", err)
	}
	reloaded, _ := r2.Get("test")
	if reloaded.State("a").SystemPrompt != "hello there" {
		t.Error("patch was not persisted to disk")
	}
}

func TestRegistry_Replace(t *testing.T) {
	t.Parallel()
	r, err := NewRegistry("")
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	w := testWorkflow()
	w.ID = "apartment_viewing"
	if err := r.Replace("apartment_viewing", w); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	got, _ := r.Get("apartment_viewing")
	if got.InitialState != "a" {
		t.Error("replacement not published")
	}

	bad := testWorkflow()
	bad.ID = "apartment_viewing"
	bad.InitialState = "ghost"
	if err := r.Replace("apartment_viewing", bad); err == nil {
		t.Fatal("invalid replacement must be rejected")
	}
	if err := r.Replace("other", testWorkflow()); err == nil {
		t.Fatal("mismatched IDs must be rejected")
	}
}

func TestRegistry_Select(t *testing.T) {
	t.Parallel()
	r, _ := NewRegistry("")
	w, err := r.Select("anything at all")
	if err != nil || w.ID != "apartment_viewing" {
		t.Fatalf("single workflow should always be selected, got %v, %v", w, err)
	}
}
