package admin

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// WebSocket close codes for the debug stream. Auth and identifier problems
// are reported after the upgrade so browser clients can read them.
const (
	CloseUnauthorized   websocket.StatusCode = 4001
	CloseUnknownSession websocket.StatusCode = 4003
)

// debugSocket streams the session's debug events as JSON until the client
// disconnects. Each connection gets its own bounded subscriber queue; a slow
// reader loses oldest events, never blocks the session.
func (h *Handler) debugSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Debug("admin: debug socket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	if !h.auth.Authorize(r) {
		conn.Close(CloseUnauthorized, "missing or invalid bearer token")
		return
	}

	id := r.PathValue("id")
	if !idPattern.MatchString(id) {
		conn.Close(CloseUnknownSession, "invalid session identifier")
		return
	}
	bus, ok := h.buses.Lookup(id)
	if !ok {
		conn.Close(CloseUnknownSession, "unknown session "+id)
		return
	}

	events := bus.Subscribe()
	defer bus.Unsubscribe(events)

	// CloseRead discards inbound frames and cancels the context when the
	// client goes away.
	ctx := conn.CloseRead(r.Context())

	h.log.Debug("admin: debug socket connected", "session_id", id)
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev := <-events:
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				h.log.Debug("admin: debug socket write failed", "session_id", id, "err", err)
				return
			}
		}
	}
}
