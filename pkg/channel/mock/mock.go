// Package mock provides a scriptable [channel.Channel] for testing the turn
// loop without a real transport.
package mock

import (
	"context"
	"sync"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/audio"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/channel"
)

// Compile-time interface assertion.
var _ channel.Channel = (*Channel)(nil)

// Channel is a test double. Tests push caller frames with [Channel.PushFrames]
// and inspect what the turn loop sent with [Channel.Sent] and
// [Channel.StopCount].
type Channel struct {
	// Info is returned from CallerInfo.
	Info channel.CallerInfo

	// SendErr, when set, is returned from SendAudio.
	SendErr error

	mu        sync.Mutex
	pending   []audio.Frame
	sent      [][]byte
	stopCount int
	state     channel.State
	closed    bool
}

// New returns a mock channel in the connected state.
func New() *Channel {
	return &Channel{
		Info:  channel.CallerInfo{CallID: "CA-mock", From: "+15550000000"},
		state: channel.StateConnected,
	}
}

// PushFrames queues caller frames for the next DrainMicFrames call.
func (c *Channel) PushFrames(frames ...audio.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, frames...)
}

// SetState changes the reported connection state.
func (c *Channel) SetState(s channel.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// Sent returns a copy of every PCM buffer passed to SendAudio.
func (c *Channel) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

// StopCount returns how many times StopSpeaking was called.
func (c *Channel) StopCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopCount
}

// Closed reports whether Close was called.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Channel) DrainMicFrames() []audio.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.pending
	c.pending = nil
	return out
}

func (c *Channel) SendAudio(_ context.Context, pcm []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return c.SendErr
	}
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	c.sent = append(c.sent, buf)
	return nil
}

func (c *Channel) StopSpeaking(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopCount++
	return nil
}

func (c *Channel) CallerInfo() channel.CallerInfo { return c.Info }

func (c *Channel) ConnectionState() channel.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.state = channel.StateClosed
	return nil
}
