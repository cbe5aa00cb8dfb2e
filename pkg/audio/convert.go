package audio

import (
	"log/slog"
	"sync"
	"time"
)

// ToCanonical converts a frame of arbitrary-rate mono PCM into the canonical
// pipeline format. Frames already at the pipeline rate pass through unchanged.
func ToCanonical(frame Frame) Frame {
	if frame.SampleRate == SampleRate || frame.SampleRate <= 0 {
		frame.SampleRate = SampleRate
		return frame
	}
	return Frame{
		Data:       ResampleMono16(frame.Data, frame.SampleRate, SampleRate),
		SampleRate: SampleRate,
		Timestamp:  frame.Timestamp,
	}
}

// Resampler converts mono frames to a target sample rate. It logs a warning
// on the first rate mismatch and validates PCM data alignment.
// Create one per stream; not designed for shared use across goroutines.
type Resampler struct {
	TargetRate     int
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert resamples a frame to the target rate. If the source rate already
// matches, the frame is returned unchanged (zero allocation).
func (r *Resampler) Convert(frame Frame) Frame {
	// Odd byte count means the int16 stream is corrupt; drop the frame.
	if len(frame.Data)%2 != 0 {
		r.warnedCorrupt.Do(func() {
			slog.Warn("audio resampler: odd byte count in PCM data, dropping frame",
				"bytes", len(frame.Data),
				"sampleRate", frame.SampleRate,
			)
		})
		return Frame{SampleRate: r.TargetRate, Timestamp: frame.Timestamp}
	}

	if frame.SampleRate == r.TargetRate {
		return frame
	}

	r.warnedMismatch.Do(func() {
		slog.Warn("audio rate mismatch: resampling",
			"from", frame.SampleRate,
			"to", r.TargetRate,
		)
	})

	return Frame{
		Data:       ResampleMono16(frame.Data, frame.SampleRate, r.TargetRate),
		SampleRate: r.TargetRate,
		Timestamp:  frame.Timestamp,
	}
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation. The input must be little-endian int16 samples. If
// srcRate == dstRate, the input is returned unchanged.
//
// Integer downsample ratios degenerate to plain decimation (every Nth
// sample) and integer upsample ratios to linear interpolation between
// neighbours, which is exactly what the telephony (8 kHz) and browser
// (48 kHz) edges need.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		var s1 int16
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		} else {
			s1 = s0
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(interpolated)
		out[i*2+1] = byte(interpolated >> 8)
	}
	return out
}

// DownmixStereo averages L+R per stereo frame (4 bytes) to produce mono.
// Uses int32 arithmetic to prevent overflow and clamps to int16 range.
func DownmixStereo(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		lSample := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		rSample := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := (lSample + rSample) / 2

		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}

		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// SplitFrames slices canonical-rate PCM into 20 ms frames. The final frame
// may be shorter. Timestamps start at base and advance by one frame duration
// per frame.
func SplitFrames(pcm []byte, base time.Duration) []Frame {
	var frames []Frame
	for off := 0; off < len(pcm); off += FrameBytes {
		end := min(off+FrameBytes, len(pcm))
		frames = append(frames, Frame{
			Data:       pcm[off:end],
			SampleRate: SampleRate,
			Timestamp:  base + time.Duration(off/FrameBytes)*FrameDuration,
		})
	}
	return frames
}
