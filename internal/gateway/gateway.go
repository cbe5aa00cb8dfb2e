// Package gateway is the outer HTTP surface of the scheduler: the Twilio
// voice webhook and media-stream socket, the browser signaling socket, and
// the plumbing that turns an accepted transport into a running call (session,
// debug broadcaster, turn controller).
//
// The gateway owns no conversation state. Each accepted transport gets its
// own [call.Controller] goroutine; registries are shared process-wide so the
// admin surface can reach live calls.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/call"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/config"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/debugbus"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/observe"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/session"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/tools"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/workflow"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/channel"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/channel/webrtc"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/llm"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/stt"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/tts"
)

// shutdownTimeout bounds graceful HTTP shutdown once the run context ends.
const shutdownTimeout = 5 * time.Second

// startTimeout bounds the wait for the Twilio start event after the media
// socket is accepted.
const startTimeout = 15 * time.Second

// Config holds the dependencies for [New].
type Config struct {
	Runtime   *config.Runtime
	Workflows *workflow.Registry
	Sessions  *session.Registry
	Buses     *debugbus.Registry
	Tools     *tools.Registry

	LLM llm.Provider
	STT stt.Provider
	TTS tts.Provider

	// TTSEngines holds additional synthesizers selectable at runtime via the
	// tts_engine setting. Engines not in the map fall back to TTS.
	TTSEngines map[string]tts.Provider

	// TURN supplies ephemeral ICE credentials; nil disables the fetch and the
	// signaling hello falls straight back to ICEFallback.
	TURN *TURNClient

	// ICEFallback is offered to browser peers when no TURN credentials can be
	// fetched.
	ICEFallback []config.ICEServer

	// PublicHost overrides the Host header in the TwiML stream URL. Needed
	// when the service sits behind a tunnel whose hostname Twilio must dial.
	PublicHost string

	// Debug enables diagnostic behavior such as barge-in transcription.
	Debug bool

	// NewPeerTransport builds the WebRTC transport for a signaling offer.
	// Nil means no transport is available and webrtc_offer messages are
	// rejected.
	NewPeerTransport func() (webrtc.PeerTransport, error)

	// CallOptions are appended to every controller; tests use them to shrink
	// polling intervals.
	CallOptions []call.Option

	// Metrics receives call counters. Nil defaults to the process-wide
	// instance.
	Metrics *observe.Metrics

	Logger *slog.Logger
}

// Server wires transports to calls and serves the public HTTP routes.
type Server struct {
	cfg Config
	log *slog.Logger
}

// New creates a gateway server.
func New(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Server{cfg: cfg, log: log}
}

// Register mounts the public routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /twilio/voice", s.twilioVoice)
	mux.HandleFunc("GET /twilio/stream", s.twilioStream)
	mux.HandleFunc("GET /ws", s.signalingSocket)
}

// Run serves handler on ln until ctx is cancelled, then shuts down
// gracefully. In-flight call sockets are closed by the shutdown.
func (s *Server) Run(ctx context.Context, ln net.Listener, handler http.Handler) error {
	srv := &http.Server{
		Handler:     handler,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// runCall drives one call on ch until it ends. It owns the session lifecycle:
// registry entries exist exactly as long as the controller runs, plus the
// broadcaster which lingers until removed so admin clients can read the tail.
func (s *Server) runCall(ctx context.Context, ch channel.Channel, transport string) {
	wf, err := s.cfg.Workflows.Select("")
	if err != nil {
		s.log.Error("gateway: no workflow available for call", "err", err)
		ch.Close()
		return
	}

	s.cfg.Metrics.RecordCallStarted(ctx, transport)
	s.cfg.Metrics.ActiveSessions.Add(ctx, 1)
	defer s.cfg.Metrics.ActiveSessions.Add(context.WithoutCancel(ctx), -1)

	sess := session.New(wf, s.cfg.LLM, s.cfg.Tools, session.WithLogger(s.log))
	sess.AttachBroadcaster(s.cfg.Buses.Get(sess.ID()))
	s.cfg.Sessions.Register(sess)
	defer func() {
		s.cfg.Sessions.Unregister(sess.ID())
		s.cfg.Buses.Remove(sess.ID())
	}()

	opts := []call.Option{
		call.WithLogger(s.log),
		call.WithTuning(s.tuning),
		call.WithDebug(s.cfg.Debug),
		call.WithTTSEngines(s.cfg.TTSEngines),
	}
	opts = append(opts, s.cfg.CallOptions...)

	ctl := call.NewController(ch, sess, s.cfg.STT, s.cfg.TTS, opts...)
	s.log.Info("gateway: call started", "session_id", sess.ID(), "workflow_id", wf.ID)
	if err := ctl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("gateway: call ended with error", "session_id", sess.ID(), "err", err)
		return
	}
	s.log.Info("gateway: call ended", "session_id", sess.ID())
}

// tuning maps the live runtime settings to controller tuning. Read on every
// turn boundary so admin patches reach calls in progress.
func (s *Server) tuning() call.Tuning {
	set := s.cfg.Runtime.Snapshot()
	return call.Tuning{
		VADEnergyThreshold:     set.VADEnergyThreshold,
		VADSpeechConfirmFrames: set.VADSpeechConfirmFrames,
		VADSilenceGapFrames:    set.VADSilenceGapFrames,
		BargeInEnabled:         set.BargeInEnabled,
		BargeInEnergyThreshold: set.BargeInEnergyThreshold,
		BargeInConfirmFrames:   set.BargeInConfirmFrames,
		TTSVoice:               set.TTSVoice,
		TTSEngine:              set.TTSEngine,
	}
}
