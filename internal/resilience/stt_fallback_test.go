package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/stt"
	sttmock "github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/stt/mock"
)

func TestSTTFallback_Transcribe_PrimarySuccess(t *testing.T) {
	primary := &sttmock.Provider{Results: []stt.Result{{Text: "two bedrooms please"}}}
	secondary := &sttmock.Provider{Results: []stt.Result{{Text: "backup transcript"}}}

	fb := NewSTTFallback(primary, "whisper", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("openai", secondary)

	res, err := fb.Transcribe(context.Background(), make([]byte, 320), 16000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "two bedrooms please" {
		t.Fatalf("text = %q", res.Text)
	}
	if len(secondary.Calls()) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.Calls()))
	}
}

func TestSTTFallback_Transcribe_Failover(t *testing.T) {
	primary := &sttmock.Provider{Err: errors.New("model crashed")}
	secondary := &sttmock.Provider{Results: []stt.Result{{Text: "backup transcript"}}}

	fb := NewSTTFallback(primary, "whisper", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("openai", secondary)

	pcm := make([]byte, 640)
	res, err := fb.Transcribe(context.Background(), pcm, 16000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "backup transcript" {
		t.Fatalf("text = %q", res.Text)
	}

	// The fallback must receive the same audio the primary saw.
	calls := secondary.Calls()
	if len(calls) != 1 || len(calls[0].PCM) != len(pcm) || calls[0].SampleRate != 16000 {
		t.Fatalf("fallback call = %+v", calls)
	}
}

func TestSTTFallback_Transcribe_AllFail(t *testing.T) {
	primary := &sttmock.Provider{Err: errors.New("down")}
	secondary := &sttmock.Provider{Err: errors.New("also down")}

	fb := NewSTTFallback(primary, "whisper", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("openai", secondary)

	_, err := fb.Transcribe(context.Background(), make([]byte, 320), 16000)
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
