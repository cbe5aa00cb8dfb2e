package webrtc

import (
	"context"
	"fmt"
	"sync"

	pion "github.com/pion/webrtc/v4"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/audio"
)

// Compile-time interface assertion.
var _ PeerTransport = (*PionTransport)(nil)

// ICEServer is one STUN or TURN entry for [NewPionTransport].
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

const (
	// inputBuffer bounds frames waiting for the audio pump. At 20 ms per
	// frame this is several seconds of backlog; beyond it frames are dropped.
	inputBuffer = 256

	// maxPending bounds playback frames queued before the data channel opens.
	maxPending = 512

	// clearMessage tells the browser to flush its playback buffer. Text
	// messages carry control, binary messages carry PCM.
	clearMessage = "clear"
)

// PionTransport is a [PeerTransport] over a pion peer connection. Media runs
// on a browser-created data channel: binary messages are 48 kHz mono
// little-endian PCM16 in both directions, the text message "clear" asks the
// browser to discard buffered playback. Audio sent before the data channel
// opens is queued and flushed on open, so a greeting synthesized during ICE
// setup is not lost.
type PionTransport struct {
	pc *pion.PeerConnection

	audioIn   chan audio.Frame
	closeOnce sync.Once

	mu      sync.Mutex
	dc      *pion.DataChannel
	open    bool
	closed  bool
	pending [][]byte
}

// NewPionTransport creates a peer connection using the given ICE servers.
// The remote offer is processed later by [PionTransport.Answer].
func NewPionTransport(ice []ICEServer) (*PionTransport, error) {
	var cfg pion.Configuration
	for _, s := range ice {
		cfg.ICEServers = append(cfg.ICEServers, pion.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	pc, err := pion.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("webrtc: new peer connection: %w", err)
	}

	t := &PionTransport{pc: pc, audioIn: make(chan audio.Frame, inputBuffer)}
	pc.OnDataChannel(t.bindDataChannel)
	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		switch state {
		case pion.PeerConnectionStateFailed, pion.PeerConnectionStateClosed:
			t.closeInput()
		}
	})
	return t, nil
}

// bindDataChannel attaches the media handlers to the browser-created channel.
func (t *PionTransport) bindDataChannel(dc *pion.DataChannel) {
	dc.OnOpen(func() {
		t.mu.Lock()
		t.dc = dc
		t.open = true
		pending := t.pending
		t.pending = nil
		t.mu.Unlock()
		for _, buf := range pending {
			if err := dc.Send(buf); err != nil {
				return
			}
		}
	})
	dc.OnMessage(func(msg pion.DataChannelMessage) {
		if msg.IsString {
			return
		}
		data := make([]byte, len(msg.Data))
		copy(data, msg.Data)
		select {
		case t.audioIn <- audio.Frame{Data: data, SampleRate: peerRate}:
		default:
		}
	})
	dc.OnClose(t.closeInput)
}

// Answer implements [PeerTransport]. The returned answer carries all ICE
// candidates; the signaling protocol has no trickle messages, so gathering
// completes before the SDP is produced.
func (t *PionTransport) Answer(ctx context.Context, sdpOffer string) (string, error) {
	offer := pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: sdpOffer}
	if err := t.pc.SetRemoteDescription(offer); err != nil {
		return "", fmt.Errorf("webrtc: set remote description: %w", err)
	}
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("webrtc: create answer: %w", err)
	}
	gathered := pion.GatheringCompletePromise(t.pc)
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("webrtc: set local description: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return t.pc.LocalDescription().SDP, nil
}

func (t *PionTransport) AudioInput() <-chan audio.Frame { return t.audioIn }

func (t *PionTransport) SendAudio(frame audio.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	if !t.open {
		if len(t.pending) < maxPending {
			buf := make([]byte, len(frame.Data))
			copy(buf, frame.Data)
			t.pending = append(t.pending, buf)
		}
		return nil
	}
	if err := t.dc.Send(frame.Data); err != nil {
		return fmt.Errorf("webrtc: data channel send: %w", err)
	}
	return nil
}

func (t *PionTransport) ClearPlayback() {
	t.mu.Lock()
	t.pending = nil
	dc, open := t.dc, t.open
	t.mu.Unlock()
	if open {
		_ = dc.SendText(clearMessage)
	}
}

func (t *PionTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.closeInput()
	return t.pc.Close()
}

func (t *PionTransport) closeInput() {
	t.closeOnce.Do(func() { close(t.audioIn) })
}
