package dsp

import "math"

// RMS returns the root-mean-square amplitude of a block of normalized
// samples. An empty block measures 0 rather than dividing by zero, so a
// stalled stream reads as silence.
func RMS(block []float32) float32 {
	if len(block) == 0 {
		return 0
	}
	var sum float64
	for _, s := range block {
		sum += float64(s) * float64(s)
	}
	return float32(math.Sqrt(sum / float64(len(block))))
}

// Percent maps an RMS amplitude onto a 0..100 meter reading. Full scale and
// anything above it (hot float32 sources can exceed 1.0) pin at 100.
func Percent(rms float32) float32 {
	p := rms * 100
	if p > 100 {
		return 100
	}
	return p
}
