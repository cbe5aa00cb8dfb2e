// Package tools defines the capabilities a workflow tool state can invoke:
// apartment search, availability lookup, and booking creation.
//
// Each tool declares a parameter schema once; the [Registry] type-checks
// arguments against it before execution, so a bad declarative args mapping
// surfaces as an error intent instead of a crash inside the tool. Results are
// returned as already-narrated text suitable for inclusion in an LLM prompt.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/observe"
)

// Param describes one tool parameter.
type Param struct {
	// Type is the JSON type name: "string", "number", "integer" or "boolean".
	Type string `json:"type"`

	// Description documents the parameter for operators and prompts.
	Description string `json:"description"`

	// Required marks parameters that must be present at invocation.
	Required bool `json:"required"`
}

// Tool is one named capability invocable by a workflow tool state.
type Tool interface {
	// Name is the identifier referenced by workflow tool_names.
	Name() string

	// Description is a human-readable summary of what the tool does.
	Description() string

	// Schema declares the accepted parameters.
	Schema() map[string]Param

	// Execute runs the tool and returns a formatted text result. Arguments
	// have already been validated against Schema by the registry.
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Registry holds the available tools. Safe for concurrent use; registration
// normally happens once at startup.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. A later registration under the same name replaces
// the earlier one.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns the tool with the given name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("tools: unknown tool %q", name)
	}
	return t, nil
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute validates args against the tool's schema and runs it. Missing
// required parameters and type mismatches are rejected before the tool sees
// the arguments.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	t, err := r.Get(name)
	if err != nil {
		return "", err
	}
	if err := ValidateArgs(t.Schema(), args); err != nil {
		return "", fmt.Errorf("tools: %s: %w", name, err)
	}

	m := observe.DefaultMetrics()
	start := time.Now()
	result, err := t.Execute(ctx, args)
	m.ToolDuration.Record(ctx, time.Since(start).Seconds())
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RecordToolCall(ctx, name, status)
	return result, err
}

// ValidateArgs type-checks args against a parameter schema. Parameters not
// declared in the schema are rejected.
func ValidateArgs(schema map[string]Param, args map[string]any) error {
	for name, p := range schema {
		v, present := args[name]
		if !present {
			if p.Required {
				return fmt.Errorf("missing required parameter %q", name)
			}
			continue
		}
		if !typeMatches(p.Type, v) {
			return fmt.Errorf("parameter %q: expected %s, got %T", name, p.Type, v)
		}
	}
	for name := range args {
		if _, ok := schema[name]; !ok {
			return fmt.Errorf("unknown parameter %q", name)
		}
	}
	return nil
}

func typeMatches(typ string, v any) bool {
	switch typ {
	case "string":
		_, ok := v.(string)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "number":
		switch v.(type) {
		case float64, float32, int, int64:
			return true
		}
		return false
	case "integer":
		switch n := v.(type) {
		case int, int64:
			return true
		case float64:
			return n == float64(int64(n))
		}
		return false
	default:
		return false
	}
}
