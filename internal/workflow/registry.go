package workflow

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound is returned by Registry lookups for unknown workflow IDs.
var ErrNotFound = errors.New("workflow: not found")

//go:embed defaults/apartment_viewing.jsonl
var defaultApartmentViewing []byte

// Registry holds the loaded workflows and serialises edits: admin patches and
// replacements are single-writer, calls read snapshots. A call takes its
// workflow reference at turn start and keeps it for the whole turn; edits
// swap in a new validated copy and never mutate a published one.
type Registry struct {
	mu        sync.RWMutex
	dir       string
	workflows map[string]*Workflow
}

// NewRegistry loads every *.jsonl file in dir. When the directory is missing
// or contains no workflows, the built-in apartment_viewing workflow is
// installed (and persisted when dir is non-empty).
func NewRegistry(dir string) (*Registry, error) {
	r := &Registry{
		dir:       dir,
		workflows: make(map[string]*Workflow),
	}

	if dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("workflow: read dir %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
				continue
			}
			w, err := LoadFile(filepath.Join(dir, e.Name()))
			if err != nil {
				return nil, err
			}
			r.workflows[w.ID] = w
		}
	}

	if len(r.workflows) == 0 {
		w, err := Parse(bytes.NewReader(defaultApartmentViewing))
		if err != nil {
			return nil, fmt.Errorf("workflow: built-in default: %w", err)
		}
		r.workflows[w.ID] = w
		if dir != "" {
			if err := SaveFile(w, r.path(w.ID)); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

func (r *Registry) path(id string) string {
	return filepath.Join(r.dir, id+".jsonl")
}

// Get returns the current snapshot of the workflow with the given ID. The
// returned value must be treated as read-only.
func (r *Registry) Get(id string) (*Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workflows[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return w, nil
}

// IDs returns the identifiers of all loaded workflows.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.workflows))
	for id := range r.workflows {
		ids = append(ids, id)
	}
	return ids
}

// Select picks the workflow whose trigger keywords match the utterance, or
// the single loaded workflow when only one exists. Matching is a
// case-insensitive substring test.
func (r *Registry) Select(utterance string) (*Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.workflows) == 1 {
		for _, w := range r.workflows {
			return w, nil
		}
	}
	lower := strings.ToLower(utterance)
	for _, w := range r.workflows {
		for _, kw := range w.TriggerKeywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				return w, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: no workflow matches utterance", ErrNotFound)
}

// PatchState applies an allowlisted patch to one state of a workflow. The
// patch is validated against a deep copy; only a copy that passes full
// workflow validation is swapped in and persisted. On any failure the
// published workflow is untouched.
func (r *Registry) PatchState(workflowID, stateID string, patch map[string]json.RawMessage) (*Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.workflows[workflowID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, workflowID)
	}
	next := current.Clone()
	st := next.State(stateID)
	if st == nil {
		return nil, fmt.Errorf("%w: state %q in workflow %q", ErrNotFound, stateID, workflowID)
	}
	if err := st.ApplyPatch(patch); err != nil {
		return nil, err
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	if r.dir != "" {
		if err := SaveFile(next, r.path(workflowID)); err != nil {
			return nil, err
		}
	}
	r.workflows[workflowID] = next
	return next, nil
}

// Replace swaps in a whole new definition for workflowID. The replacement is
// validated and persisted before publication.
func (r *Registry) Replace(workflowID string, w *Workflow) error {
	if w.ID != workflowID {
		return fmt.Errorf("workflow: body id %q does not match path id %q", w.ID, workflowID)
	}
	if err := w.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workflows[workflowID]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, workflowID)
	}
	if r.dir != "" {
		if err := SaveFile(w, r.path(workflowID)); err != nil {
			return err
		}
	}
	r.workflows[workflowID] = w
	return nil
}
