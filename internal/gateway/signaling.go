package gateway

import (
	"context"
	"net/http"
	"strconv"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/config"
	webrtcchan "github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/channel/webrtc"
)

// signalMessage covers every message on the signaling socket, both
// directions. Unused fields stay empty and are omitted on the wire.
type signalMessage struct {
	Type       string             `json:"type"`
	SDP        string             `json:"sdp,omitempty"`
	ICEServers []config.ICEServer `json:"ice_servers,omitempty"`
	Message    string             `json:"message,omitempty"`
}

// signalingSocket handles the browser connection-setup dance: hello for ICE
// servers, an SDP offer answered from the peer transport, then the call runs
// until hangup or disconnect.
func (s *Server) signalingSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn("gateway: signaling accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	// One call at a time per socket. cancel ends the controller; the channel
	// close propagates to the peer transport.
	var callCancel context.CancelFunc
	defer func() {
		if callCancel != nil {
			callCancel()
		}
	}()

	for {
		var msg signalMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) < 0 {
				s.log.Debug("gateway: signaling read failed", "err", err)
			}
			return
		}

		switch msg.Type {
		case "hello":
			reply := signalMessage{Type: "hello_ack", ICEServers: s.iceServers(ctx)}
			if reply.ICEServers == nil {
				reply.ICEServers = []config.ICEServer{}
			}
			if err := wsjson.Write(ctx, conn, reply); err != nil {
				return
			}

		case "webrtc_offer":
			if msg.SDP == "" {
				s.signalError(ctx, conn, "missing sdp in webrtc_offer")
				continue
			}
			if callCancel != nil {
				s.signalError(ctx, conn, "call already in progress")
				continue
			}

			if s.cfg.NewPeerTransport == nil {
				s.signalError(ctx, conn, "webrtc transport not configured")
				continue
			}
			transport, err := s.cfg.NewPeerTransport()
			if err != nil {
				s.log.Error("gateway: peer transport setup failed", "err", err)
				s.signalError(ctx, conn, "webrtc transport unavailable")
				continue
			}
			answer, err := transport.Answer(ctx, msg.SDP)
			if err != nil {
				transport.Close()
				s.signalError(ctx, conn, "offer rejected: "+err.Error())
				continue
			}

			ch := webrtcchan.New(transport, s.log)
			callCtx, cancel := context.WithCancel(ctx)
			callCancel = cancel
			go func() {
				defer cancel()
				if err := ch.Run(callCtx); err != nil && callCtx.Err() == nil {
					s.log.Warn("gateway: peer audio pump failed", "err", err)
				}
			}()
			go s.runCall(callCtx, ch, "webrtc")

			if err := wsjson.Write(ctx, conn, signalMessage{Type: "webrtc_answer", SDP: answer}); err != nil {
				cancel()
				return
			}

		case "hangup":
			s.log.Info("gateway: client hangup")
			if callCancel != nil {
				callCancel()
				callCancel = nil
			}

		case "ping":
			if err := wsjson.Write(ctx, conn, signalMessage{Type: "pong"}); err != nil {
				return
			}

		default:
			s.signalError(ctx, conn, "unknown message type "+strconv.Quote(msg.Type))
		}
	}
}

func (s *Server) signalError(ctx context.Context, conn *websocket.Conn, message string) {
	if err := wsjson.Write(ctx, conn, signalMessage{Type: "error", Message: message}); err != nil {
		s.log.Debug("gateway: signaling error write failed", "err", err)
	}
}
