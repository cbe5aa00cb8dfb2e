package call

import (
	"context"
	"log/slog"
	"time"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/observe"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/internal/session"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/audio"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/channel"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/stt"
	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/provider/tts"
)

const (
	// noSpeechMax discards transcripts the model itself believes are not
	// speech (breathing, line noise, playback echo).
	noSpeechMax = 0.6

	// bargeWindow is how many recent playback-mode frames are preserved for
	// the next utterance when the caller interrupts.
	bargeWindow = 5

	// preRoll is how many pre-speech frames are kept ahead of the first
	// confirmed speech frame so word onsets are not clipped.
	preRoll = 3

	greetingFallback = "Hello! Thanks for calling. How can I help you today?"
)

// Controller runs the voice loop for one call: it alternates listening and
// speaking, endpoints utterances, detects barge-in during playback, and feeds
// finished utterances to the session. Exactly one Controller goroutine exists
// per call, and it is the only goroutine that crosses the STT/LLM/TTS
// boundary for that call.
type Controller struct {
	ch      channel.Channel
	sess    *session.Session
	stt     stt.Provider
	tts     tts.Provider
	engines map[string]tts.Provider
	log     *slog.Logger
	metrics *observe.Metrics

	tuning func() Tuning
	debug  bool

	pollInterval     time.Duration
	playbackInterval time.Duration
	deadAfter        time.Duration
}

// Option is a functional option for [NewController].
type Option func(*Controller)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// WithTuning sets the source of live detection parameters. The controller
// calls it at every turn boundary. Defaults to [DefaultTuning].
func WithTuning(fn func() Tuning) Option {
	return func(c *Controller) { c.tuning = fn }
}

// WithTTSEngines registers additional synthesizers selectable per turn via
// [Tuning.TTSEngine]. Names absent from the map fall back to the default
// provider.
func WithTTSEngines(engines map[string]tts.Provider) Option {
	return func(c *Controller) { c.engines = engines }
}

// WithDebug enables diagnostic transcription of barge-in trigger frames.
func WithDebug(debug bool) Option {
	return func(c *Controller) { c.debug = debug }
}

// WithPollInterval overrides the idle listening poll. Intended for tests.
func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) { c.pollInterval = d }
}

// WithPlaybackPollInterval overrides the playback-mode poll. Intended for
// tests.
func WithPlaybackPollInterval(d time.Duration) Option {
	return func(c *Controller) { c.playbackInterval = d }
}

// WithDeadTransportTimeout overrides how long the controller waits with no
// inbound audio before declaring the transport dead.
func WithDeadTransportTimeout(d time.Duration) Option {
	return func(c *Controller) { c.deadAfter = d }
}

// WithMetrics sets the metrics sink. Defaults to the process-wide instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// NewController binds a controller to one channel and session.
func NewController(ch channel.Channel, sess *session.Session, sttp stt.Provider, ttsp tts.Provider, opts ...Option) *Controller {
	c := &Controller{
		ch:               ch,
		sess:             sess,
		stt:              sttp,
		tts:              ttsp,
		log:              slog.Default(),
		tuning:           DefaultTuning,
		pollInterval:     20 * time.Millisecond,
		playbackInterval: 100 * time.Millisecond,
		deadAfter:        10 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Run drives the call to completion: greeting, then the listen/speak loop.
// It returns when the session finishes, the transport dies, or ctx is
// cancelled. The channel is closed on the way out.
func (c *Controller) Run(ctx context.Context) error {
	defer c.ch.Close()

	c.sess.Start(c.ch.CallerInfo())

	greeting, err := c.sess.Greeting(ctx)
	if err != nil {
		c.log.Error("greeting failed", "session_id", c.sess.ID(), "error", err)
		greeting = greetingFallback
	}
	preserved, err := c.speak(ctx, greeting)
	if err != nil {
		return err
	}

	ep := NewEndpointer(c.tuning())
	var buf []audio.Frame
	buf = c.absorb(ep, buf, preserved)

	lastAudio := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.sess.Done() {
			return nil
		}
		if c.ch.ConnectionState() == channel.StateClosed {
			c.log.Info("transport closed", "session_id", c.sess.ID())
			c.sess.End()
			return nil
		}

		frames := c.ch.DrainMicFrames()
		if len(frames) == 0 {
			if time.Since(lastAudio) >= c.deadAfter {
				c.log.Warn("no inbound audio, declaring transport dead",
					"session_id", c.sess.ID(), "idle", c.deadAfter)
				c.sess.End()
				return nil
			}
			if err := sleep(ctx, c.pollInterval); err != nil {
				return err
			}
			continue
		}
		lastAudio = time.Now()

		for _, f := range frames {
			buf = append(buf, f)
			if !ep.Feed(f) {
				// Outside an utterance, keep only a short pre-roll so
				// silence cannot grow the buffer without bound.
				if !ep.Speaking() && len(buf) > preRoll {
					buf = buf[len(buf)-preRoll:]
				}
				continue
			}
			preserved, err := c.turn(ctx, buf)
			if err != nil {
				return err
			}
			buf = nil
			ep = NewEndpointer(c.tuning())
			buf = c.absorb(ep, buf, preserved)
			if c.sess.Done() {
				return nil
			}
		}
	}
}

// absorb seeds a fresh utterance buffer with frames preserved across a
// barge-in, keeping the endpointer state consistent with the buffer.
func (c *Controller) absorb(ep *Endpointer, buf, preserved []audio.Frame) []audio.Frame {
	for _, f := range preserved {
		buf = append(buf, f)
		ep.Feed(f)
	}
	return buf
}

// turn handles one completed utterance: transcribe, hand to the session,
// speak the reply. Returns frames preserved by a barge-in during the reply.
func (c *Controller) turn(ctx context.Context, buf []audio.Frame) ([]audio.Frame, error) {
	turnStart := time.Now()
	pcm := concatFrames(buf)

	sttStart := time.Now()
	res, err := c.stt.Transcribe(ctx, pcm, audio.SampleRate)
	c.metrics.STTDuration.Record(ctx, time.Since(sttStart).Seconds())
	if err != nil {
		c.log.Error("transcription failed", "session_id", c.sess.ID(), "error", err)
		return nil, nil
	}
	if res.Text == "" || res.NoSpeechProb > noSpeechMax {
		c.log.Debug("discarding non-speech segment",
			"session_id", c.sess.ID(), "no_speech_prob", res.NoSpeechProb)
		return nil, nil
	}

	llmStart := time.Now()
	reply, err := c.sess.HandleUtterance(ctx, res.Text)
	c.metrics.LLMDuration.Record(ctx, time.Since(llmStart).Seconds())
	if err != nil {
		c.log.Error("utterance handling failed", "session_id", c.sess.ID(), "error", err)
		return nil, err
	}
	c.metrics.TurnDuration.Record(ctx, time.Since(turnStart).Seconds())
	return c.speak(ctx, reply)
}

// speak synthesizes text and plays it, polling for barge-in until playback
// ends. On a confirmed interruption it stops playback and returns the recent
// frames that triggered detection so the caller's speech is not lost.
func (c *Controller) speak(ctx context.Context, text string) ([]audio.Frame, error) {
	if text == "" {
		return nil, nil
	}
	tn := c.tuning()

	ttsStart := time.Now()
	aud, err := c.synthesizer(tn).Synthesize(ctx, text, tn.TTSVoice)
	c.metrics.TTSDuration.Record(ctx, time.Since(ttsStart).Seconds())
	if err != nil {
		c.log.Error("synthesis failed", "session_id", c.sess.ID(), "error", err)
		return nil, nil
	}
	pcm := aud.PCM
	if aud.SampleRate > 0 && aud.SampleRate != audio.SampleRate {
		pcm = audio.ResampleMono16(pcm, aud.SampleRate, audio.SampleRate)
	}
	if err := c.ch.SendAudio(ctx, pcm); err != nil {
		c.log.Error("playback send failed", "session_id", c.sess.ID(), "error", err)
		return nil, nil
	}

	detector := NewBargeDetector(tn)
	var recent []audio.Frame
	deadline := time.Now().Add(pcmDuration(pcm))
	for time.Now().Before(deadline) {
		if err := sleep(ctx, c.playbackInterval); err != nil {
			return nil, err
		}
		frames := c.ch.DrainMicFrames()
		if len(frames) == 0 {
			continue
		}
		recent = append(recent, frames...)
		if len(recent) > bargeWindow {
			recent = recent[len(recent)-bargeWindow:]
		}
		if !tn.BargeInEnabled {
			continue
		}
		if detector.Feed(frames) {
			if err := c.ch.StopSpeaking(ctx); err != nil {
				c.log.Error("stop speaking failed", "session_id", c.sess.ID(), "error", err)
			}
			preserved := make([]audio.Frame, len(recent))
			copy(preserved, recent)
			c.log.Debug("barge-in detected", "session_id", c.sess.ID(), "preserved_frames", len(preserved))
			if c.debug {
				go c.debugTranscribe(preserved)
			}
			return preserved, nil
		}
	}
	return nil, nil
}

// synthesizer resolves the TTS provider for this turn. The tts_engine setting
// picks from the registered engines; unknown names are logged once per turn
// and the default provider is used.
func (c *Controller) synthesizer(tn Tuning) tts.Provider {
	if tn.TTSEngine == "" {
		return c.tts
	}
	if p, ok := c.engines[tn.TTSEngine]; ok {
		return p
	}
	c.log.Warn("unknown tts engine, using default",
		"session_id", c.sess.ID(), "engine", tn.TTSEngine)
	return c.tts
}

// debugTranscribe transcribes barge-in trigger frames for diagnostics. Log
// output only; no debug event is emitted.
func (c *Controller) debugTranscribe(frames []audio.Frame) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := c.stt.Transcribe(ctx, concatFrames(frames), audio.SampleRate)
	if err != nil {
		c.log.Debug("barge-in trigger transcription failed", "session_id", c.sess.ID(), "error", err)
		return
	}
	c.log.Debug("barge-in trigger audio", "session_id", c.sess.ID(),
		"text", res.Text, "no_speech_prob", res.NoSpeechProb)
}

func concatFrames(frames []audio.Frame) []byte {
	var n int
	for _, f := range frames {
		n += len(f.Data)
	}
	out := make([]byte, 0, n)
	for _, f := range frames {
		out = append(out, f.Data...)
	}
	return out
}

func pcmDuration(pcm []byte) time.Duration {
	return time.Duration(len(pcm)/2) * time.Second / audio.SampleRate
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
