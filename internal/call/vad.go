// Package call runs the real-time voice loop for one connected caller: frame
// ingestion, energy-based endpointing, barge-in during playback, and the
// hand-off of finished utterances to the conversation session.
package call

import (
	"time"

	"github.com/davidbmar/voice-calendar-scheduler-FSM/pkg/audio"
)

// Tuning holds the live-adjustable voice-detection parameters. The controller
// re-reads it at every turn boundary so admin changes apply to calls already
// in progress.
type Tuning struct {
	// VADEnergyThreshold is the RMS level above which a frame counts as
	// speech while listening.
	VADEnergyThreshold float64

	// VADSpeechConfirmFrames is how many consecutive speech frames open an
	// utterance.
	VADSpeechConfirmFrames int

	// VADSilenceGapFrames is how many consecutive sub-threshold frames close
	// an utterance.
	VADSilenceGapFrames int

	// BargeInEnabled gates interruption detection during playback.
	BargeInEnabled bool

	// BargeInEnergyThreshold is the RMS level for interruption detection.
	// Higher than the listening threshold because the caller's line carries
	// playback echo.
	BargeInEnergyThreshold float64

	// BargeInConfirmFrames is how many consecutive loud frames confirm an
	// interruption.
	BargeInConfirmFrames int

	// TTSVoice selects the synthesis voice. Empty means provider default.
	TTSVoice string

	// TTSEngine selects among the controller's registered synthesizers.
	// Empty or unknown names use the default engine.
	TTSEngine string
}

// DefaultTuning returns the shipped detection parameters.
func DefaultTuning() Tuning {
	return Tuning{
		VADEnergyThreshold:     300,
		VADSpeechConfirmFrames: 1,
		VADSilenceGapFrames:    8,
		BargeInEnabled:         true,
		BargeInEnergyThreshold: 1000,
		BargeInConfirmFrames:   3,
	}
}

const (
	// minSpeech is the least accumulated voiced audio that counts as a real
	// utterance; shorter blips are treated as noise and discarded.
	minSpeech = 100 * time.Millisecond

	// maxUtterance force-endpoints an utterance so the frame buffer cannot
	// grow without bound on a noisy line.
	maxUtterance = 30 * time.Second
)

// Endpointer segments the caller's audio into utterances from per-frame RMS
// energy. Feed it every listening-mode frame in order; it reports true on the
// frame that completes an utterance.
//
// quiet → speaking after ConfirmFrames consecutive frames at or above
// Threshold; speaking → endpoint after SilenceGap consecutive frames below it,
// provided at least MinSpeech of voiced audio accumulated. A burst shorter
// than MinSpeech resets the detector instead of endpointing.
type Endpointer struct {
	Threshold     float64
	ConfirmFrames int
	SilenceGap    int
	MinSpeech     time.Duration
	MaxUtterance  time.Duration

	speaking bool
	confirm  int
	silence  int
	voiced   time.Duration
	total    time.Duration
}

// NewEndpointer returns an endpointer configured from t.
func NewEndpointer(t Tuning) *Endpointer {
	return &Endpointer{
		Threshold:     t.VADEnergyThreshold,
		ConfirmFrames: t.VADSpeechConfirmFrames,
		SilenceGap:    t.VADSilenceGapFrames,
		MinSpeech:     minSpeech,
		MaxUtterance:  maxUtterance,
	}
}

// Speaking reports whether an utterance is currently open.
func (e *Endpointer) Speaking() bool { return e.speaking }

// Reset returns the endpointer to the quiet state.
func (e *Endpointer) Reset() {
	e.speaking = false
	e.confirm = 0
	e.silence = 0
	e.voiced = 0
	e.total = 0
}

// Feed consumes one frame and reports whether it completes an utterance.
func (e *Endpointer) Feed(f audio.Frame) bool {
	energy := audio.RMS(f.Data)

	if !e.speaking {
		if energy < e.Threshold {
			e.confirm = 0
			return false
		}
		e.confirm++
		if e.confirm < e.ConfirmFrames {
			return false
		}
		e.speaking = true
		e.silence = 0
	}

	e.total += f.Duration()
	if energy >= e.Threshold {
		e.voiced += f.Duration()
		e.silence = 0
	} else {
		e.silence++
	}

	if e.total >= e.MaxUtterance {
		return true
	}
	if e.silence >= e.SilenceGap {
		if e.voiced >= e.MinSpeech {
			return true
		}
		// Too short to be speech; drop the burst and start over.
		e.Reset()
	}
	return false
}

// BargeDetector confirms caller interruptions during playback. It keeps a
// streak of consecutive loud frames across Feed calls, so detection is not
// sensitive to how frames happen to batch at drain boundaries.
type BargeDetector struct {
	Threshold     float64
	ConfirmFrames int

	streak int
}

// NewBargeDetector returns a detector configured from t.
func NewBargeDetector(t Tuning) *BargeDetector {
	return &BargeDetector{
		Threshold:     t.BargeInEnergyThreshold,
		ConfirmFrames: t.BargeInConfirmFrames,
	}
}

// Feed consumes a batch of frames and reports whether the interruption is
// confirmed within it.
func (d *BargeDetector) Feed(frames []audio.Frame) bool {
	for _, f := range frames {
		if audio.RMS(f.Data) >= d.Threshold {
			d.streak++
			if d.streak >= d.ConfirmFrames {
				return true
			}
		} else {
			d.streak = 0
		}
	}
	return false
}
