package webrtc

import (
	"context"
	"sync"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/audio"
)

// PeerTransport abstracts the WebRTC peer connection. This decouples the
// channel logic from any particular WebRTC stack and allows testing without
// one. [PionTransport] is the production implementation.
type PeerTransport interface {
	// Answer processes the remote peer's SDP offer and returns the local
	// SDP answer.
	Answer(ctx context.Context, sdpOffer string) (sdpAnswer string, err error)

	// AudioInput returns the channel delivering audio frames received from
	// the peer, at the transport's native sample rate. The channel closes
	// when the peer disconnects.
	AudioInput() <-chan audio.Frame

	// SendAudio queues an audio frame for playback to the peer.
	SendAudio(frame audio.Frame) error

	// ClearPlayback discards all queued playback frames.
	ClearPlayback()

	// Close tears down the peer connection and releases resources.
	Close() error
}

// LoopbackTransport is an in-memory [PeerTransport] for tests. It exposes
// channels that tests can write to (simulate peer audio input) and read from
// (verify sent frames).
type LoopbackTransport struct {
	audioIn  chan audio.Frame
	audioOut chan audio.Frame

	mu     sync.Mutex
	closed bool
}

// Compile-time interface assertion.
var _ PeerTransport = (*LoopbackTransport)(nil)

// NewLoopbackTransport returns a transport with small buffered channels on
// both directions.
func NewLoopbackTransport() *LoopbackTransport {
	return &LoopbackTransport{
		audioIn:  make(chan audio.Frame, 64),
		audioOut: make(chan audio.Frame, 64),
	}
}

// PushInput simulates audio arriving from the peer. It is a no-op after Close.
func (l *LoopbackTransport) PushInput(frame audio.Frame) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.audioIn <- frame:
	default:
	}
}

// Output returns the channel carrying frames sent to the peer.
func (l *LoopbackTransport) Output() <-chan audio.Frame { return l.audioOut }

func (l *LoopbackTransport) Answer(_ context.Context, _ string) (string, error) {
	return "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=Voice Session\r\n", nil
}

func (l *LoopbackTransport) AudioInput() <-chan audio.Frame { return l.audioIn }

func (l *LoopbackTransport) SendAudio(frame audio.Frame) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	select {
	case l.audioOut <- frame:
	default:
	}
	return nil
}

func (l *LoopbackTransport) ClearPlayback() {
	for {
		select {
		case <-l.audioOut:
		default:
			return
		}
	}
}

func (l *LoopbackTransport) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	close(l.audioIn)
	return nil
}
