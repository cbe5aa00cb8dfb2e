// Package twilio adapts a Twilio Media Streams WebSocket to the
// [channel.Channel] interface. Inbound media arrives as base64 mu-law at
// 8 kHz and is converted to canonical frames; outbound speech is converted
// back and chunked into 20 ms media messages. Barge-in maps to the
// protocol's clear event, which flushes Twilio's playback buffer.
package twilio

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/audio"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/channel"
)

// Compile-time interface assertion.
var _ channel.Channel = (*Channel)(nil)

// wireRate is the media stream sample rate in Hz.
const wireRate = 8000

// wireFrameBytes is one 20 ms mu-law chunk at the wire rate.
const wireFrameBytes = wireRate / 50

// inboundMessage covers every media stream event the adapter reads.
type inboundMessage struct {
	Event string `json:"event"`
	Start *struct {
		StreamSID        string            `json:"streamSid"`
		CallSID          string            `json:"callSid"`
		From             string            `json:"from"`
		CustomParameters map[string]string `json:"customParameters"`
	} `json:"start,omitempty"`
	Media *struct {
		Payload string `json:"payload"`
	} `json:"media,omitempty"`
}

type mediaPayload struct {
	Payload string `json:"payload"`
}

type outboundMedia struct {
	Event     string       `json:"event"`
	StreamSID string       `json:"streamSid"`
	Media     mediaPayload `json:"media"`
}

type outboundClear struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
}

// Channel is a [channel.Channel] over one media stream connection.
// Create it with [New], then run [Channel.Run] in its own goroutine and wait
// for [Channel.WaitForStart] before using the channel.
type Channel struct {
	conn *websocket.Conn
	log  *slog.Logger

	mu        sync.Mutex
	frames    []audio.Frame
	info      channel.CallerInfo
	streamSID string
	state     channel.State
	elapsed   time.Duration

	started   chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

// New wraps an accepted media stream WebSocket.
func New(conn *websocket.Conn, log *slog.Logger) *Channel {
	if log == nil {
		log = slog.Default()
	}
	return &Channel{
		conn:    conn,
		log:     log,
		state:   channel.StateUnknown,
		started: make(chan struct{}),
	}
}

// Run reads media stream events until the stream ends, the connection fails,
// or ctx is cancelled. It always leaves the channel in the closed state.
func (c *Channel) Run(ctx context.Context) error {
	defer c.markClosed()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("twilio: read media stream: %w", err)
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn("twilio: skipping malformed media stream message", "error", err)
			continue
		}

		switch msg.Event {
		case "connected":
			// Protocol preamble before start; nothing to record yet.
		case "start":
			c.handleStart(&msg)
		case "media":
			c.handleMedia(&msg)
		case "stop":
			c.log.Info("twilio: media stream stopped", "callID", c.CallerInfo().CallID)
			return nil
		default:
			c.log.Debug("twilio: ignoring media stream event", "event", msg.Event)
		}
	}
}

func (c *Channel) handleStart(msg *inboundMessage) {
	if msg.Start == nil {
		return
	}
	from := msg.Start.From
	if from == "" {
		from = msg.Start.CustomParameters["from"]
	}

	c.mu.Lock()
	c.streamSID = msg.Start.StreamSID
	c.info = channel.CallerInfo{CallID: msg.Start.CallSID, From: from}
	c.state = channel.StateConnected
	c.mu.Unlock()

	c.startOnce.Do(func() { close(c.started) })
}

func (c *Channel) handleMedia(msg *inboundMessage) {
	if msg.Media == nil {
		return
	}
	ulaw, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
	if err != nil {
		c.log.Warn("twilio: dropping media with bad base64 payload", "error", err)
		return
	}

	pcm := audio.ResampleMono16(audio.DecodeULaw(ulaw), wireRate, audio.SampleRate)

	c.mu.Lock()
	c.frames = append(c.frames, audio.Frame{
		Data:       pcm,
		SampleRate: audio.SampleRate,
		Timestamp:  c.elapsed,
	})
	c.elapsed += time.Duration(len(ulaw)) * time.Second / wireRate
	c.mu.Unlock()
}

// WaitForStart blocks until the protocol's start event arrives, carrying the
// stream and call identifiers.
func (c *Channel) WaitForStart(ctx context.Context) error {
	select {
	case <-c.started:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Channel) DrainMicFrames() []audio.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.frames
	c.frames = nil
	return out
}

func (c *Channel) SendAudio(ctx context.Context, pcm []byte) error {
	c.mu.Lock()
	sid := c.streamSID
	c.mu.Unlock()
	if sid == "" {
		return fmt.Errorf("twilio: send before stream start")
	}

	ulaw := audio.EncodeULaw(audio.ResampleMono16(pcm, audio.SampleRate, wireRate))
	for off := 0; off < len(ulaw); off += wireFrameBytes {
		end := min(off+wireFrameBytes, len(ulaw))
		msg, err := json.Marshal(outboundMedia{
			Event:     "media",
			StreamSID: sid,
			Media:     mediaPayload{Payload: base64.StdEncoding.EncodeToString(ulaw[off:end])},
		})
		if err != nil {
			return fmt.Errorf("twilio: marshal media: %w", err)
		}
		if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
			return fmt.Errorf("twilio: write media: %w", err)
		}
	}
	return nil
}

func (c *Channel) StopSpeaking(ctx context.Context) error {
	c.mu.Lock()
	sid := c.streamSID
	c.mu.Unlock()
	if sid == "" {
		return nil
	}

	msg, err := json.Marshal(outboundClear{Event: "clear", StreamSID: sid})
	if err != nil {
		return fmt.Errorf("twilio: marshal clear: %w", err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
		return fmt.Errorf("twilio: write clear: %w", err)
	}
	return nil
}

func (c *Channel) CallerInfo() channel.CallerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

func (c *Channel) ConnectionState() channel.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.markClosed()
		_ = c.conn.Close(websocket.StatusNormalClosure, "call ended")
	})
	return nil
}

func (c *Channel) markClosed() {
	c.mu.Lock()
	c.state = channel.StateClosed
	c.mu.Unlock()
}
