// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the conversation layer sends the
// right requests and to feed controlled responses without a live backend.
// Responses are consumed from the Responses queue in order; when the queue is
// exhausted the last element repeats.
//
// Example:
//
//	p := &mock.Provider{
//	    Responses: []string{"Hello!", `Got it. {"completed": true, "intent": "done"}`},
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/llm"
)

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the Request passed to Complete.
	Req llm.Request
}

// Provider is a mock implementation of llm.Provider.
// A zero value returns empty responses and nil errors.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Responses is the queue of reply contents returned by successive
	// Complete calls. When exhausted, the final element repeats; when empty,
	// Complete returns an empty response.
	Responses []string

	// Err, if non-nil, is returned from every Complete call.
	Err error

	// --- Call records (read after test) ---

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall

	next int
}

// Complete records the call and returns the next queued response.
func (p *Provider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	if p.Err != nil {
		return nil, p.Err
	}
	if len(p.Responses) == 0 {
		return &llm.Response{}, nil
	}
	idx := min(p.next, len(p.Responses)-1)
	p.next++
	return &llm.Response{Content: p.Responses[idx]}, nil
}

// Calls returns a copy of the recorded Complete calls.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]CompleteCall, len(p.CompleteCalls))
	copy(out, p.CompleteCalls)
	return out
}

// Reset clears all recorded calls and rewinds the response queue. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
	p.next = 0
}
