// Package mock provides a test double for the tts.Provider interface.
//
// Each Synthesize call records its text and voice and returns the configured
// Audio. Set Err to make every call fail.
package mock

import (
	"context"
	"sync"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/tts"
)

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	Text  string
	Voice string
}

// Provider is a mock implementation of tts.Provider.
// A zero value returns empty audio and nil errors.
type Provider struct {
	mu sync.Mutex

	// Audio is returned from every Synthesize call. When its PCM is nil a
	// short silent frame is returned instead so callers always get playable
	// audio.
	Audio tts.Audio

	// VoiceList is returned from Voices.
	VoiceList []string

	// Err, if non-nil, is returned from every Synthesize and Voices call.
	Err error

	// SynthesizeCalls records every invocation in order.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call and returns the configured audio.
func (p *Provider) Synthesize(_ context.Context, text, voice string) (tts.Audio, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Text: text, Voice: voice})
	if p.Err != nil {
		return tts.Audio{}, p.Err
	}
	if p.Audio.PCM == nil {
		return tts.Audio{PCM: make([]byte, 640), SampleRate: 16000}, nil
	}
	return p.Audio, nil
}

// Voices returns the configured voice list.
func (p *Provider) Voices(_ context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	out := make([]string, len(p.VoiceList))
	copy(out, p.VoiceList)
	return out, nil
}

// Calls returns a copy of the recorded Synthesize calls.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeCall, len(p.SynthesizeCalls))
	copy(out, p.SynthesizeCalls)
	return out
}

// Reset clears recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}
