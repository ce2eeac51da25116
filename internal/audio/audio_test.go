package audio

import (
	"testing"
	"time"
)

func TestToneLengthAndBounds(t *testing.T) {
	t.Parallel()

	pcm := Tone(880, 500*time.Millisecond, 80)
	wantSamples := SampleRate / 2
	if len(pcm) != wantSamples*2 {
		t.Fatalf("len(pcm) = %d, want %d", len(pcm), wantSamples*2)
	}
	if got := Duration(len(pcm)); got != 500*time.Millisecond {
		t.Fatalf("Duration = %v, want 500ms", got)
	}
}

func TestToneVolumeScaling(t *testing.T) {
	t.Parallel()

	peak := func(pcm []byte) int {
		max := 0
		for i := 0; i+1 < len(pcm); i += 2 {
			v := int(int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8))
			if v < 0 {
				v = -v
			}
			if v > max {
				max = v
			}
		}
		return max
	}

	loud := peak(Tone(440, 100*time.Millisecond, 100))
	quiet := peak(Tone(440, 100*time.Millisecond, 25))
	if quiet >= loud {
		t.Fatalf("volume scaling broken: quiet peak %d >= loud peak %d", quiet, loud)
	}
	if loud > 32767 {
		t.Fatalf("peak %d exceeds int16 range", loud)
	}
}

func TestSilenceIsZero(t *testing.T) {
	t.Parallel()

	pcm := Silence(200 * time.Millisecond)
	if got := Duration(len(pcm)); got != 200*time.Millisecond {
		t.Fatalf("Duration = %v, want 200ms", got)
	}
	for i, b := range pcm {
		if b != 0 {
			t.Fatalf("pcm[%d] = %d, want 0", i, b)
		}
	}
}
