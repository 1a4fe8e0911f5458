package waveform

import (
	"fmt"
	"io"

	"github.com/jfreymuth/oggvorbis"

	"github.com/jdboyer/micmeter/internal/dsp"
)

func decodeVorbis(r io.Reader) (*Data, error) {
	vr, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dsp.ErrUnsupportedFormat, err)
	}

	samples := make([]float32, 0, 1<<14)
	buf := make([]float32, 4096)
	for {
		// Read counts individual interleaved samples, not frames.
		n, err := vr.Read(buf)
		if n > 0 {
			samples = append(samples, buf[:n]...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSampleRead, err)
		}
	}

	return finish(samples, vr.Channels(), vr.SampleRate())
}
