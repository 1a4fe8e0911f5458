package waveform

import (
	"fmt"
	"io"

	"github.com/go-audio/aiff"
	"github.com/go-audio/audio"

	"github.com/jdboyer/micmeter/internal/dsp"
)

func decodeAIFF(r io.ReadSeeker) (*Data, error) {
	dec := aiff.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a decodable AIFF stream", dsp.ErrUnsupportedFormat)
	}
	dec.ReadInfo()

	conv, err := dsp.IntConverter(int(dec.BitDepth))
	if err != nil {
		return nil, err
	}

	channels := int(dec.NumChans)
	sampleRate := int(dec.SampleRate)

	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:   make([]int, 8192),
	}
	samples := make([]float32, 0, 8192)
	for {
		n, err := dec.PCMBuffer(buf)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSampleRead, err)
		}
		if n == 0 {
			break
		}
		for _, v := range buf.Data[:n] {
			samples = append(samples, conv(v))
		}
	}

	return finish(samples, channels, sampleRate)
}
