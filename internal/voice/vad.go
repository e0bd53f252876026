package voice

import "math"

// RMS computes the root-mean-square amplitude of the samples normalized to
// full scale, so the result lands in [0, 1].
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSq float64
	for _, s := range samples {
		v := float64(s)
		sumSq += v * v
	}
	return math.Sqrt(sumSq/float64(len(samples))) / 32768.0
}

// DetectSpeech decides whether a block of mono samples contains speech by
// comparing normalized RMS energy against threshold.
func DetectSpeech(samples []int16, threshold float64) bool {
	if len(samples) == 0 {
		return false
	}
	return RMS(samples) > threshold
}

// Downmix converts interleaved multi-channel PCM to mono by averaging
// channels. Mono input is returned unchanged.
func Downmix(samples []int16, channels int) []int16 {
	if channels <= 1 || len(samples) == 0 {
		return samples
	}
	mono := make([]int16, 0, len(samples)/channels)
	for i := 0; i+channels <= len(samples); i += channels {
		var sum int32
		for c := 0; c < channels; c++ {
			sum += int32(samples[i+c])
		}
		mono = append(mono, int16(sum/int32(channels)))
	}
	return mono
}
