package dsp

import "fmt"

// DownmixMono collapses interleaved normalized samples to a mono stream.
// Mono input is copied through untouched; stereo frames average to
// (L+R)/2. A trailing unpaired sample in a stereo stream pairs with
// silence instead of being dropped. Layouts beyond stereo return
// ErrUnsupportedChannelLayout.
func DownmixMono(samples []float32, channels int) ([]float32, error) {
	switch channels {
	case 1:
		out := make([]float32, len(samples))
		copy(out, samples)
		return out, nil
	case 2:
		frames := (len(samples) + 1) / 2
		out := make([]float32, frames)
		for f := range out {
			l := samples[2*f]
			var r float32
			if 2*f+1 < len(samples) {
				r = samples[2*f+1]
			}
			out[f] = (l + r) * 0.5
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %d channels", ErrUnsupportedChannelLayout, channels)
	}
}
