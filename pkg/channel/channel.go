// Package channel defines the transport abstraction between the voice turn
// loop and the concrete audio transports (telephony media streams, browser
// peers). The turn loop sees only this interface; everything
// transport-specific stays inside the adapter packages.
package channel

import (
	"context"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/audio"
)

// CallerInfo identifies the remote party on a channel.
type CallerInfo struct {
	// CallID is the transport's identifier for this call (telephony call SID,
	// or a generated ID for browser peers).
	CallID string

	// From is the caller's address: an E.164 phone number for telephony,
	// "browser" for peer sessions.
	From string
}

// State describes what the adapter knows about transport liveness.
type State int

const (
	// StateUnknown means the adapter cannot determine liveness. Callers
	// treat it as alive.
	StateUnknown State = iota

	// StateConnected means the transport is up and exchanging media.
	StateConnected

	// StateClosed means the remote side hung up or the transport failed.
	StateClosed
)

// Channel is a bidirectional audio path to one caller. All audio crossing
// the interface is canonical-format PCM (16 kHz mono int16); adapters do
// their wire conversions internally.
//
// Implementations must be safe for one draining goroutine (the turn loop)
// running concurrently with the adapter's own receive loop.
type Channel interface {
	// DrainMicFrames returns every caller frame buffered since the previous
	// call, oldest first, and empties the buffer. It never blocks.
	DrainMicFrames() []audio.Frame

	// SendAudio queues synthesized speech for playback to the caller.
	// The PCM must be canonical format. It returns once the audio has been
	// handed to the transport, not once playback completes.
	SendAudio(ctx context.Context, pcm []byte) error

	// StopSpeaking discards all queued playback immediately. Used for
	// barge-in and hangup.
	StopSpeaking(ctx context.Context) error

	// CallerInfo returns the remote party's identity. Valid once the
	// transport handshake has completed.
	CallerInfo() CallerInfo

	// ConnectionState reports transport liveness.
	ConnectionState() State

	// Close tears down the transport. Safe to call more than once.
	Close() error
}
