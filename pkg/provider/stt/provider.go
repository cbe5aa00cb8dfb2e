// Package stt defines the Provider interface for Speech-to-Text backends.
//
// The voice loop segments utterances itself (it owns the endpointing logic),
// so the contract here is batch transcription: one complete utterance of PCM
// in, one recognition result out. Alongside the text, providers report the
// model's confidence signals so callers can discard hallucinated transcripts
// of silence or noise.
//
// Implementations must be safe for concurrent use; several calls may be
// transcribing at once.
package stt

import "context"

// Result is the outcome of transcribing one utterance.
type Result struct {
	// Text is the recognised utterance, trimmed of leading and trailing
	// whitespace. Empty when the model heard nothing intelligible.
	Text string

	// NoSpeechProb is the model's probability that the audio contains no
	// speech at all, in [0, 1]. Callers typically discard results above 0.6.
	NoSpeechProb float64

	// AvgLogProb is the mean log-probability of the decoded tokens. Values
	// near 0 indicate a confident decode; strongly negative values indicate
	// guessing.
	AvgLogProb float64
}

// Provider is the abstraction over any batch STT backend.
type Provider interface {
	// Transcribe recognises one utterance of 16-bit little-endian mono PCM
	// at the given sample rate. Returns an error if the backend fails or ctx
	// is cancelled; an inaudible utterance is not an error and comes back as
	// an empty-text Result with a high NoSpeechProb.
	Transcribe(ctx context.Context, pcm []byte, sampleRate int) (Result, error)
}
