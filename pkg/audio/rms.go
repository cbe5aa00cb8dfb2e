package audio

import "math"

// RMS computes the root-mean-square energy of little-endian int16 PCM.
// Empty or odd-length input yields 0. The result is in raw sample units
// (0..32768), matching the energy thresholds used by the voice detector.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n*2; i += 2 {
		s := float64(int16(pcm[i]) | int16(pcm[i+1])<<8)
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}
