package webrtc_test

import (
	"context"
	"testing"
	"time"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/audio"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/channel"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/channel/webrtc"
)

func startChannel(t *testing.T) (*webrtc.Channel, *webrtc.LoopbackTransport) {
	t.Helper()
	transport := webrtc.NewLoopbackTransport()
	ch := webrtc.New(transport, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = ch.Run(ctx) }()
	return ch, transport
}

func drainWithin(t *testing.T, ch *webrtc.Channel, d time.Duration) []audio.Frame {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if frames := ch.DrainMicFrames(); len(frames) > 0 {
			return frames
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no frames arrived before deadline")
	return nil
}

func TestChannel_PeerAudioDownsampledToCanonical(t *testing.T) {
	t.Parallel()

	ch, transport := startChannel(t)

	// One 20 ms frame at 48 kHz (960 samples) must come out as one canonical
	// frame (320 samples at 16 kHz).
	transport.PushInput(audio.Frame{Data: make([]byte, 1920), SampleRate: 48000})

	frames := drainWithin(t, ch, 2*time.Second)
	if frames[0].SampleRate != audio.SampleRate {
		t.Errorf("frame rate = %d, want %d", frames[0].SampleRate, audio.SampleRate)
	}
	if got, want := frames[0].Samples(), audio.FrameSamples; got != want {
		t.Errorf("frame samples = %d, want %d", got, want)
	}
}

func TestChannel_SendAudioUpsamplesAndChunks(t *testing.T) {
	t.Parallel()

	ch, transport := startChannel(t)

	// 40 ms of canonical audio becomes two 20 ms frames at 48 kHz.
	ctx := context.Background()
	if err := ch.SendAudio(ctx, make([]byte, audio.FrameBytes*2)); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	for i := range 2 {
		select {
		case frame := <-transport.Output():
			if frame.SampleRate != 48000 {
				t.Errorf("frame %d: rate = %d, want 48000", i, frame.SampleRate)
			}
			if got, want := frame.Samples(), 960; got != want {
				t.Errorf("frame %d: samples = %d, want %d", i, got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("frame %d never arrived", i)
		}
	}
}

func TestChannel_StopSpeakingClearsPlayback(t *testing.T) {
	t.Parallel()

	ch, transport := startChannel(t)

	ctx := context.Background()
	if err := ch.SendAudio(ctx, make([]byte, audio.FrameBytes*4)); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if err := ch.StopSpeaking(ctx); err != nil {
		t.Fatalf("StopSpeaking: %v", err)
	}

	select {
	case frame := <-transport.Output():
		t.Errorf("playback queue not cleared, got %d-sample frame", frame.Samples())
	default:
	}
}

func TestChannel_PeerDisconnectClosesChannel(t *testing.T) {
	t.Parallel()

	ch, transport := startChannel(t)
	if ch.ConnectionState() != channel.StateConnected {
		t.Fatalf("state = %v, want connected", ch.ConnectionState())
	}

	_ = transport.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ch.ConnectionState() == channel.StateClosed {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("channel never reached closed state after peer disconnect")
}

func TestChannel_CallerInfo(t *testing.T) {
	t.Parallel()

	ch, _ := startChannel(t)
	info := ch.CallerInfo()
	if info.From != "browser" {
		t.Errorf("From = %q, want browser", info.From)
	}
	if info.CallID == "" {
		t.Error("CallID is empty")
	}
}
