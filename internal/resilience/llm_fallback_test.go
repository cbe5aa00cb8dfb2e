package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/llm"
	llmmock "github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/llm/mock"
)

func TestLLMFallback_Complete_PrimarySuccess(t *testing.T) {
	primary := &llmmock.Provider{Responses: []string{"hello from primary"}}
	secondary := &llmmock.Provider{Responses: []string{"hello from secondary"}}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	resp, err := fb.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "hello from primary" {
		t.Fatalf("content = %q, want 'hello from primary'", resp.Content)
	}
	if len(primary.Calls()) != 1 {
		t.Fatalf("primary called %d times, want 1", len(primary.Calls()))
	}
	if len(secondary.Calls()) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.Calls()))
	}
}

func TestLLMFallback_Complete_Failover(t *testing.T) {
	primary := &llmmock.Provider{Err: errors.New("primary down")}
	secondary := &llmmock.Provider{Responses: []string{"hello from secondary"}}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	resp, err := fb.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "hello from secondary" {
		t.Fatalf("content = %q, want 'hello from secondary'", resp.Content)
	}
	if len(primary.Calls()) != 1 {
		t.Fatalf("primary called %d times, want 1", len(primary.Calls()))
	}
}

func TestLLMFallback_Complete_AllFail(t *testing.T) {
	primary := &llmmock.Provider{Err: errors.New("primary down")}
	secondary := &llmmock.Provider{Err: errors.New("secondary down")}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	_, err := fb.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestLLMFallback_OpenBreakerSkipsPrimary(t *testing.T) {
	primary := &llmmock.Provider{Err: errors.New("primary down")}
	secondary := &llmmock.Provider{Responses: []string{"backup reply"}}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2},
	})
	fb.AddFallback("secondary", secondary)

	req := llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}}

	// Two failures open the primary's breaker.
	for i := 0; i < 2; i++ {
		if _, err := fb.Complete(context.Background(), req); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	primaryCalls := len(primary.Calls())

	// With the breaker open the primary is no longer tried.
	if _, err := fb.Complete(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(primary.Calls()) != primaryCalls {
		t.Fatalf("primary called while breaker open: %d calls", len(primary.Calls()))
	}
}
