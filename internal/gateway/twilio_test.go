package gateway_test

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/audio"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/stt"
)

// wireFrame returns 20 ms of constant-amplitude mu-law audio at 8 kHz,
// base64-encoded as a media payload.
func wireFrame(amp int16) string {
	pcm := make([]byte, 320)
	for i := 0; i < len(pcm); i += 2 {
		binary.LittleEndian.PutUint16(pcm[i:], uint16(amp))
	}
	return base64.StdEncoding.EncodeToString(audio.EncodeULaw(pcm))
}

func TestTwilioStreamFullCall(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.stt.Results = []stt.Result{{Text: "goodbye"}}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(f.srv.URL, "/twilio/stream"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	send := func(msg map[string]any) {
		t.Helper()
		if err := wsjson.Write(ctx, conn, msg); err != nil {
			t.Fatalf("write %v: %v", msg["event"], err)
		}
	}

	send(map[string]any{"event": "connected"})
	send(map[string]any{
		"event": "start",
		"start": map[string]any{
			"streamSid": "MZ-test",
			"callSid":   "CA-test",
			"from":      "+15551234567",
		},
	})

	// The greeting arrives as outbound media once the call is up.
	var media map[string]any
	for {
		if err := wsjson.Read(ctx, conn, &media); err != nil {
			t.Fatalf("read greeting media: %v", err)
		}
		if media["event"] == "media" {
			break
		}
	}
	if media["streamSid"] != "MZ-test" {
		t.Errorf("media streamSid = %v", media["streamSid"])
	}
	payload, _ := media["media"].(map[string]any)
	if payload["payload"] == "" {
		t.Error("empty media payload")
	}
	waitFor(t, time.Second, func() bool { return f.sessions.Len() == 1 })

	// Let greeting playback finish so the caller audio is endpointed instead
	// of treated as an interruption.
	time.Sleep(100 * time.Millisecond)

	voiced := wireFrame(3000)
	quiet := wireFrame(0)
	for i := 0; i < 6; i++ {
		send(map[string]any{"event": "media", "media": map[string]any{"payload": voiced}})
	}
	for i := 0; i < 12; i++ {
		send(map[string]any{"event": "media", "media": map[string]any{"payload": quiet}})
	}

	// "goodbye" matches the exit phrase; the goodbye line is spoken and the
	// call is torn down, closing the socket.
	deadline := time.Now().Add(5 * time.Second)
	sawGoodbyeAudio := false
	for time.Now().Before(deadline) {
		readCtx, readCancel := context.WithTimeout(ctx, time.Second)
		var msg map[string]any
		err := wsjson.Read(readCtx, conn, &msg)
		readCancel()
		if err != nil {
			break
		}
		if msg["event"] == "media" {
			sawGoodbyeAudio = true
		}
	}
	if !sawGoodbyeAudio {
		t.Error("no goodbye audio received")
	}

	waitFor(t, 2*time.Second, func() bool { return f.sessions.Len() == 0 })

	calls := f.tts.Calls()
	if len(calls) < 2 {
		t.Fatalf("tts calls = %d, want at least 2", len(calls))
	}
	if calls[0].Text != "Hello caller!" {
		t.Errorf("greeting = %q", calls[0].Text)
	}
	if got := calls[len(calls)-1].Text; got != exitLine {
		t.Errorf("goodbye = %q", got)
	}

	sttCalls := f.stt.Calls()
	if len(sttCalls) == 0 {
		t.Fatal("no transcription happened")
	}
}

func TestTwilioStreamNoStart(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(f.srv.URL, "/twilio/stream"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	// Ending the stream before start must not create a session.
	if err := wsjson.Write(ctx, conn, map[string]any{"event": "stop"}); err != nil {
		t.Fatalf("write stop: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if f.sessions.Len() != 0 {
		t.Errorf("sessions = %d, want 0", f.sessions.Len())
	}
}
