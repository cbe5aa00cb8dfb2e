// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (a local Coqui server, a
// cloud API) and presents a uniform batch interface: the turn loop hands it
// one complete reply at a time and plays the resulting PCM, so streaming
// synthesis buys nothing here.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Audio is one synthesised utterance of 16-bit little-endian mono PCM.
type Audio struct {
	// PCM is the raw sample data.
	PCM []byte

	// SampleRate is the rate of PCM in Hz. Providers may emit their model's
	// native rate; callers resample to the pipeline rate as needed.
	SampleRate int
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text as speech in the given voice. An empty voice
	// selects the provider's default. Returns an error if synthesis fails or
	// ctx is cancelled.
	Synthesize(ctx context.Context, text, voice string) (Audio, error)

	// Voices returns the identifiers of all voices this provider offers.
	// The list reflects the backend's current catalogue.
	Voices(ctx context.Context) ([]string, error)
}
