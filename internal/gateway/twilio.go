package gateway

import (
	"context"
	"encoding/xml"
	"net/http"

	"github.com/coder/websocket"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/channel/twilio"
)

// twimlResponse is the minimal TwiML document that tells Twilio to open a
// media-stream socket back to us.
type twimlResponse struct {
	XMLName xml.Name     `xml:"Response"`
	Connect twimlConnect `xml:"Connect"`
}

type twimlConnect struct {
	Stream twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL string `xml:"url,attr"`
}

// twilioVoice answers the incoming-call webhook with TwiML pointing Twilio at
// the media-stream endpoint. Twilio requires TLS for stream sockets, so the
// URL scheme is always wss.
func (s *Server) twilioVoice(w http.ResponseWriter, r *http.Request) {
	host := s.cfg.PublicHost
	if host == "" {
		host = r.Host
	}
	streamURL := "wss://" + host + "/twilio/stream"

	body, err := xml.Marshal(twimlResponse{
		Connect: twimlConnect{Stream: twimlStream{URL: streamURL}},
	})
	if err != nil {
		http.Error(w, "twiml encoding failure", http.StatusInternalServerError)
		return
	}

	s.log.Info("gateway: voice webhook, connecting stream", "url", streamURL)
	w.Header().Set("Content-Type", "application/xml")
	w.Write([]byte(xml.Header))
	w.Write(body)
}

// twilioStream accepts the media-stream socket and runs the call on it. The
// handler returns when the call ends; the socket lives exactly as long as the
// request.
func (s *Server) twilioStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn("gateway: media stream accept failed", "err", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := twilio.New(conn, s.log)
	go func() {
		defer cancel()
		if err := ch.Run(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn("gateway: media stream reader failed", "err", err)
		}
	}()

	startCtx, startCancel := context.WithTimeout(ctx, startTimeout)
	err = ch.WaitForStart(startCtx)
	startCancel()
	if err != nil {
		s.log.Warn("gateway: media stream never started", "err", err)
		ch.Close()
		return
	}

	s.runCall(ctx, ch, "twilio")
}
