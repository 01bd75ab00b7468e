package speech

// G.711 mu-law codec. The phone network carries 8-bit mu-law at 8 kHz;
// recognition and synthesis use 16-bit little-endian PCM at the same rate.

const (
	mulawBias = 0x84
	mulawClip = 32635
)

// EncodeMulawSample compresses one 16-bit PCM sample to 8-bit mu-law.
func EncodeMulawSample(sample int16) byte {
	sign := byte(0)
	s := int32(sample)
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > mulawClip {
		s = mulawClip
	}
	s += mulawBias

	exponent := byte(7)
	for mask := int32(0x4000); (s&mask) == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte((s >> (exponent + 3)) & 0x0F)
	return ^(sign | exponent<<4 | mantissa)
}

// DecodeMulawSample expands one 8-bit mu-law sample to 16-bit PCM.
func DecodeMulawSample(b byte) int16 {
	b = ^b
	sign := b & 0x80
	exponent := (b >> 4) & 0x07
	mantissa := b & 0x0F
	s := (int32(mantissa)<<3 + mulawBias) << exponent
	s -= mulawBias
	if sign != 0 {
		s = -s
	}
	return int16(s)
}

// PCMToMulaw compresses 16-bit little-endian PCM to mu-law. A trailing odd
// byte is dropped.
func PCMToMulaw(pcm []byte) []byte {
	out := make([]byte, len(pcm)/2)
	for i := range out {
		sample := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		out[i] = EncodeMulawSample(sample)
	}
	return out
}

// MulawToPCM expands mu-law to 16-bit little-endian PCM.
func MulawToPCM(mulaw []byte) []byte {
	out := make([]byte, len(mulaw)*2)
	for i, b := range mulaw {
		sample := uint16(DecodeMulawSample(b))
		out[2*i] = byte(sample)
		out[2*i+1] = byte(sample >> 8)
	}
	return out
}
