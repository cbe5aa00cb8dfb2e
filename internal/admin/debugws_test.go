package admin_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/admin"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/debugbus"
)

func wsURL(srv string, path string) string {
	return "ws" + strings.TrimPrefix(srv, "http") + path
}

func TestDebugSocketStreamsEvents(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(f.srv.URL, "/sessions/sess-1/debug?token="+adminToken), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	bus := f.buses.Get("sess-1")
	// The subscriber is registered during the upgrade; give the handler a
	// moment before emitting.
	deadline := time.Now().Add(2 * time.Second)
	var ev debugbus.Event
	for {
		bus.Emit(debugbus.EventTransition, "hello", map[string]any{"to": "greet_and_gather"})

		readCtx, readCancel := context.WithTimeout(ctx, 200*time.Millisecond)
		err = wsjson.Read(readCtx, conn, &ev)
		readCancel()
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no event received: %v", err)
		}
	}

	if ev.Type != debugbus.EventTransition || ev.SessionID != "sess-1" || ev.StateID != "hello" {
		t.Errorf("event = %+v", ev)
	}
	if ev.Data["to"] != "greet_and_gather" {
		t.Errorf("event data = %+v", ev.Data)
	}
}

func TestDebugSocketRejectsBadToken(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(f.srv.URL, "/sessions/sess-1/debug?token=wrong"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	var ev debugbus.Event
	err = wsjson.Read(ctx, conn, &ev)
	if err == nil {
		t.Fatal("read succeeded on unauthenticated socket")
	}
	if got := websocket.CloseStatus(err); got != admin.CloseUnauthorized {
		t.Errorf("close status = %v, want %v", got, admin.CloseUnauthorized)
	}
}

func TestDebugSocketUnknownSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(f.srv.URL, "/sessions/no-such/debug?token="+adminToken), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	var ev debugbus.Event
	err = wsjson.Read(ctx, conn, &ev)
	if err == nil {
		t.Fatal("read succeeded for unknown session")
	}
	if got := websocket.CloseStatus(err); got != admin.CloseUnknownSession {
		t.Errorf("close status = %v, want %v", got, admin.CloseUnknownSession)
	}
}
