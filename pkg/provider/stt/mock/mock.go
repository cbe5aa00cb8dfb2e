// Package mock provides a test double for the stt.Provider interface.
//
// Results are consumed from the Results queue in order; when the queue is
// exhausted the last element repeats. Set Err to make every call fail.
package mock

import (
	"context"
	"sync"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/stt"
)

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// PCM is a copy of the audio passed in.
	PCM []byte
	// SampleRate is the rate passed in.
	SampleRate int
}

// Provider is a mock implementation of stt.Provider.
// A zero value returns no-speech results and nil errors.
type Provider struct {
	mu sync.Mutex

	// Results is the queue of results returned by successive Transcribe
	// calls. When exhausted, the final element repeats.
	Results []stt.Result

	// Err, if non-nil, is returned from every Transcribe call.
	Err error

	// TranscribeCalls records every invocation in order.
	TranscribeCalls []TranscribeCall

	next int
}

// Transcribe records the call and returns the next queued result.
func (p *Provider) Transcribe(_ context.Context, pcm []byte, sampleRate int) (stt.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{PCM: buf, SampleRate: sampleRate})
	if p.Err != nil {
		return stt.Result{}, p.Err
	}
	if len(p.Results) == 0 {
		return stt.Result{NoSpeechProb: 1}, nil
	}
	idx := min(p.next, len(p.Results)-1)
	p.next++
	return p.Results[idx], nil
}

// Calls returns a copy of the recorded calls.
func (p *Provider) Calls() []TranscribeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TranscribeCall, len(p.TranscribeCalls))
	copy(out, p.TranscribeCalls)
	return out
}

// Reset clears recorded calls and rewinds the result queue. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
	p.next = 0
}
