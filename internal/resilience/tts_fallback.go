package resilience

import (
	"context"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with automatic failover across
// multiple TTS backends. Each backend has its own circuit breaker.
//
// Voice names are provider-specific, so a fallback synthesising with the
// primary's voice name may fail; configure fallbacks with voices they
// actually have, or leave the voice empty to use each backend's default.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred
// backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional TTS provider as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Synthesize renders text with the first healthy provider. If the primary
// fails, subsequent fallbacks are tried with the same text and voice.
func (f *TTSFallback) Synthesize(ctx context.Context, text, voice string) (tts.Audio, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (tts.Audio, error) {
		return p.Synthesize(ctx, text, voice)
	})
}

// Voices returns the voice catalogue of the first healthy provider.
func (f *TTSFallback) Voices(ctx context.Context) ([]string, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]string, error) {
		return p.Voices(ctx)
	})
}
