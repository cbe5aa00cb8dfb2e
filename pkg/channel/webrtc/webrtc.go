// Package webrtc adapts a browser peer connection to the [channel.Channel]
// interface. The peer exchanges 48 kHz PCM; the adapter converts to and from
// the canonical pipeline format. Signaling (offer/answer, ICE) is handled by
// the gateway; this package only deals with media once a [PeerTransport]
// exists.
package webrtc

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/audio"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/channel"
)

// Compile-time interface assertion.
var _ channel.Channel = (*Channel)(nil)

// peerRate is the browser-side sample rate in Hz.
const peerRate = 48000

// peerFrameBytes is one 20 ms mono frame at the peer rate.
const peerFrameBytes = peerRate / 50 * 2

// Channel is a [channel.Channel] over one browser peer. Create it with [New],
// then run [Channel.Run] in its own goroutine to pump peer audio into the
// mic buffer.
type Channel struct {
	transport PeerTransport
	log       *slog.Logger
	info      channel.CallerInfo

	mu      sync.Mutex
	frames  []audio.Frame
	state   channel.State
	elapsed time.Duration

	closeOnce sync.Once
}

// New wraps a negotiated peer transport. The caller ID is generated; browser
// peers have no phone number, so From is the literal "browser".
func New(transport PeerTransport, log *slog.Logger) *Channel {
	if log == nil {
		log = slog.Default()
	}
	return &Channel{
		transport: transport,
		log:       log,
		info: channel.CallerInfo{
			CallID: "peer-" + randomID(),
			From:   "browser",
		},
		state: channel.StateConnected,
	}
}

// Run pumps peer audio into the mic buffer until the peer disconnects or ctx
// is cancelled. It always leaves the channel in the closed state.
func (c *Channel) Run(ctx context.Context) error {
	defer c.markClosed()

	conv := audio.Resampler{TargetRate: audio.SampleRate}
	for {
		select {
		case frame, ok := <-c.transport.AudioInput():
			if !ok {
				c.log.Info("webrtc: peer disconnected", "callID", c.info.CallID)
				return nil
			}
			canonical := conv.Convert(frame)
			if len(canonical.Data) == 0 {
				continue
			}
			c.mu.Lock()
			canonical.Timestamp = c.elapsed
			c.elapsed += canonical.Duration()
			c.frames = append(c.frames, canonical)
			c.mu.Unlock()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Channel) DrainMicFrames() []audio.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.frames
	c.frames = nil
	return out
}

func (c *Channel) SendAudio(_ context.Context, pcm []byte) error {
	peerPCM := audio.ResampleMono16(pcm, audio.SampleRate, peerRate)
	for off := 0; off < len(peerPCM); off += peerFrameBytes {
		end := min(off+peerFrameBytes, len(peerPCM))
		err := c.transport.SendAudio(audio.Frame{
			Data:       peerPCM[off:end],
			SampleRate: peerRate,
		})
		if err != nil {
			return fmt.Errorf("webrtc: send audio: %w", err)
		}
	}
	return nil
}

func (c *Channel) StopSpeaking(_ context.Context) error {
	c.transport.ClearPlayback()
	return nil
}

func (c *Channel) CallerInfo() channel.CallerInfo { return c.info }

func (c *Channel) ConnectionState() channel.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.markClosed()
		err = c.transport.Close()
	})
	return err
}

func (c *Channel) markClosed() {
	c.mu.Lock()
	c.state = channel.StateClosed
	c.mu.Unlock()
}

func randomID() string {
	buf := make([]byte, 9)
	_, _ = rand.Read(buf)
	return base64.RawURLEncoding.EncodeToString(buf)
}
