package waveform

import (
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/jdboyer/micmeter/internal/dsp"
)

// wavFormatPCM is the fmt-chunk tag for plain integer PCM. Compressed and
// IEEE-float payloads carry other tags and are not decoded here.
const wavFormatPCM = 1

func decodeWAV(r io.ReadSeeker) (*Data, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a decodable RIFF/WAVE stream", dsp.ErrUnsupportedFormat)
	}
	dec.ReadInfo()

	if dec.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("%w: WAV format tag %d", dsp.ErrUnsupportedFormat, dec.WavAudioFormat)
	}
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
		// PCMBuffer may return fewer samples on the final chunk.
		for _, v := range buf.Data[:n] {
			samples = append(samples, conv(v))
		}
	}

	return finish(samples, channels, sampleRate)
}
