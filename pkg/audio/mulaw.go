package audio

// G.711 mu-law codec for the telephony edge. Telephony media streams carry
// 8 kHz mu-law; these functions translate to and from linear int16 PCM.

const (
	ulawBias = 0x84
	ulawClip = 8159
)

// segment upper bounds for the 8 mu-law segments (14-bit domain).
var ulawSegEnds = [8]int32{0x3F, 0x7F, 0xFF, 0x1FF, 0x3FF, 0x7FF, 0xFFF, 0x1FFF}

// ulawToLinear maps each mu-law byte to its linear int16 value.
var ulawToLinear [256]int16

func init() {
	for i := range ulawToLinear {
		u := ^uint8(i)
		t := (int32(u&0x0F)<<3 + ulawBias) << ((u & 0x70) >> 4)
		if u&0x80 != 0 {
			ulawToLinear[i] = int16(ulawBias - t)
		} else {
			ulawToLinear[i] = int16(t - ulawBias)
		}
	}
}

// DecodeULaw expands mu-law bytes to little-endian int16 PCM.
func DecodeULaw(ulaw []byte) []byte {
	out := make([]byte, len(ulaw)*2)
	for i, b := range ulaw {
		s := ulawToLinear[b]
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// EncodeULaw compresses little-endian int16 PCM to mu-law bytes.
// An odd trailing byte is ignored.
func EncodeULaw(pcm []byte) []byte {
	n := len(pcm) / 2
	out := make([]byte, n)
	for i := range n {
		s := int32(int16(pcm[i*2]) | int16(pcm[i*2+1])<<8)
		out[i] = linearToULaw(s)
	}
	return out
}

func linearToULaw(sample int32) byte {
	// The algorithm works on 14-bit magnitudes.
	sample >>= 2
	var sign byte
	if sample < 0 {
		sample = -sample
		sign = 0x80
	}
	if sample > ulawClip {
		sample = ulawClip
	}
	sample += ulawBias >> 2

	seg := 8
	for i, end := range ulawSegEnds {
		if sample <= end {
			seg = i
			break
		}
	}
	if seg >= 8 {
		return ^(sign | 0x7F)
	}
	uval := byte(seg)<<4 | byte((sample>>(uint(seg)+1))&0x0F)
	return ^(sign | uval)
}
