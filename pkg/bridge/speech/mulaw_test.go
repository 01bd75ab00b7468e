package speech

import (
	"math"
	"testing"
)

func TestMulawKnownValues(t *testing.T) {
	// Silence encodes to 0xFF in mu-law.
	if got := EncodeMulawSample(0); got != 0xFF {
		t.Fatalf("EncodeMulawSample(0) = %#x, want 0xff", got)
	}
	if got := DecodeMulawSample(0xFF); got != 0 {
		t.Fatalf("DecodeMulawSample(0xff) = %d, want 0", got)
	}
}

func TestMulawRoundTripError(t *testing.T) {
	// mu-law is lossy; the round trip must stay within the step size of
	// the sample's magnitude segment.
	for _, sample := range []int16{0, 1, -1, 100, -100, 1000, -1000, 8000, -8000, 30000, -30000, 32635, -32635} {
		encoded := EncodeMulawSample(sample)
		decoded := DecodeMulawSample(encoded)
		diff := math.Abs(float64(sample) - float64(decoded))
		tolerance := math.Max(16, math.Abs(float64(sample))*0.07)
		if diff > tolerance {
			t.Fatalf("sample %d -> %#x -> %d, off by %.0f", sample, encoded, decoded, diff)
		}
	}
}

func TestMulawSignPreserved(t *testing.T) {
	for _, sample := range []int16{500, 5000, 20000} {
		if DecodeMulawSample(EncodeMulawSample(sample)) <= 0 {
			t.Fatalf("positive sample %d decoded non-positive", sample)
		}
		if DecodeMulawSample(EncodeMulawSample(-sample)) >= 0 {
			t.Fatalf("negative sample %d decoded non-negative", -sample)
		}
	}
}

func TestPCMToMulawDropsTrailingByte(t *testing.T) {
	out := PCMToMulaw([]byte{0x00, 0x00, 0x12})
	if len(out) != 1 {
		t.Fatalf("len = %d, want 1", len(out))
	}
}

func TestPCMBufferRoundTrip(t *testing.T) {
	// A ramp through both codecs keeps its shape.
	pcm := make([]byte, 0, 64)
	for i := range 32 {
		sample := int16(i * 1000)
		pcm = append(pcm, byte(uint16(sample)), byte(uint16(sample)>>8))
	}

	back := MulawToPCM(PCMToMulaw(pcm))
	if len(back) != len(pcm) {
		t.Fatalf("length changed: %d -> %d", len(pcm), len(back))
	}
	for i := 0; i < len(pcm); i += 2 {
		orig := int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8)
		got := int16(uint16(back[i]) | uint16(back[i+1])<<8)
		diff := math.Abs(float64(orig) - float64(got))
		tolerance := math.Max(16, math.Abs(float64(orig))*0.07)
		if diff > tolerance {
			t.Fatalf("sample %d: %d -> %d", i/2, orig, got)
		}
	}
}
