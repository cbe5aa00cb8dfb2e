// Package audio defines the canonical audio representation shared by every
// transport adapter and the voice pipeline: 16 kHz mono little-endian int16
// PCM, carried in 20 ms frames. Adapters convert their wire formats (8 kHz
// mu-law for telephony, 48 kHz PCM for browser peers) to and from this
// format at the edge; everything inside the pipeline assumes it.
package audio

import "time"

// Canonical pipeline format.
const (
	// SampleRate is the pipeline sample rate in Hz.
	SampleRate = 16000

	// FrameDuration is the length of one frame.
	FrameDuration = 20 * time.Millisecond

	// FrameSamples is the number of int16 samples in one canonical frame.
	FrameSamples = SampleRate / 50

	// FrameBytes is the byte length of one canonical frame.
	FrameBytes = FrameSamples * 2
)

// Frame is a single frame of mono little-endian int16 PCM.
type Frame struct {
	// Data holds the PCM bytes. For canonical frames this is FrameBytes long,
	// but adapters may produce shorter tail frames at stream end.
	Data []byte

	// SampleRate in Hz. Canonical frames are always SampleRate (16000);
	// the field exists so adapters can hand raw wire-rate frames to the
	// converters below.
	SampleRate int

	// Timestamp marks when the frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Samples returns the number of int16 samples in the frame.
func (f Frame) Samples() int { return len(f.Data) / 2 }

// Duration returns the play time of the frame at its sample rate.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.Samples()) * time.Second / time.Duration(f.SampleRate)
}
