package voice

import (
	"math"
	"testing"
)

func TestRMSSilenceIsZero(t *testing.T) {
	if got := RMS(make([]int16, 960)); got != 0 {
		t.Fatalf("RMS of silence: want=0 got=%f", got)
	}
	if got := RMS(nil); got != 0 {
		t.Fatalf("RMS of empty: want=0 got=%f", got)
	}
}

func TestRMSConstantAmplitude(t *testing.T) {
	samples := make([]int16, 960)
	for i := range samples {
		samples[i] = 3277
	}
	want := 3277.0 / 32768.0
	if got := RMS(samples); math.Abs(got-want) > 1e-9 {
		t.Fatalf("RMS mismatch: want=%f got=%f", want, got)
	}
}

// TestDetectSpeechThresholdIsStrict verifies energy exactly at the
// threshold counts as silence.
func TestDetectSpeechThresholdIsStrict(t *testing.T) {
	samples := make([]int16, 960)
	for i := range samples {
		samples[i] = 3277
	}
	level := RMS(samples)
	if DetectSpeech(samples, level) {
		t.Fatal("energy equal to threshold should not count as speech")
	}
	if !DetectSpeech(samples, level-1e-6) {
		t.Fatal("energy above threshold should count as speech")
	}
	if DetectSpeech(nil, 0) {
		t.Fatal("empty block should never count as speech")
	}
}

func TestDownmixStereoAverages(t *testing.T) {
	stereo := []int16{100, 200, -100, 100, 0, 0}
	mono := Downmix(stereo, 2)
	want := []int16{150, 0, 0}
	if len(mono) != len(want) {
		t.Fatalf("downmix length: want=%d got=%d", len(want), len(mono))
	}
	for i := range want {
		if mono[i] != want[i] {
			t.Fatalf("downmix sample %d: want=%d got=%d", i, want[i], mono[i])
		}
	}
}

func TestDownmixMonoPassthrough(t *testing.T) {
	mono := []int16{1, 2, 3}
	if got := Downmix(mono, 1); &got[0] != &mono[0] {
		t.Fatal("mono input should be returned unchanged")
	}
}
