// Package waveform decodes audio files into the canonical in-memory shape
// the rest of the system works with: mono float32 samples in [-1, 1] plus
// the source sample rate and derived duration.
//
// Container support is routed by file extension. WAV and AIFF decode any
// PCM bit depth the normalizer knows, MP3 arrives as 16-bit stereo from the
// decoder, and Ogg Vorbis is already float. Unrecognized extensions fall
// through to the WAV decoder, which validates the header itself.
package waveform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jdboyer/micmeter/internal/dsp"
)

var (
	// ErrOpen reports that the file could not be opened at all.
	ErrOpen = errors.New("failed to open audio file")

	// ErrSampleRead reports a failure while pulling samples out of an
	// already-validated container.
	ErrSampleRead = errors.New("failed to read samples")
)

// Data is one fully decoded waveform. It is immutable once produced and
// owned by the caller.
type Data struct {
	Samples    []float32 `json:"samples"`
	SampleRate int       `json:"sample_rate"`
	DurationMS float64   `json:"duration_ms"`
}

// Decode reads the file at path into canonical mono form.
func Decode(path string) (*Data, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".aiff", ".aif":
		return decodeAIFF(f)
	case ".mp3":
		return decodeMP3(f)
	case ".ogg", ".oga":
		return decodeVorbis(f)
	default:
		return decodeWAV(f)
	}
}

// finish funnels every container through the same tail: downmix to mono and
// derive the duration.
func finish(samples []float32, channels, sampleRate int) (*Data, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", dsp.ErrUnsupportedFormat, sampleRate)
	}
	mono, err := dsp.DownmixMono(samples, channels)
	if err != nil {
		return nil, err
	}
	return &Data{
		Samples:    mono,
		SampleRate: sampleRate,
		DurationMS: float64(len(mono)) / float64(sampleRate) * 1000,
	}, nil
}
