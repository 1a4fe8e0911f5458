package waveform

import (
	"encoding/binary"
	"fmt"
	"io"

	mp3 "github.com/hajimehoshi/go-mp3"

	"github.com/jdboyer/micmeter/internal/dsp"
)

// decodeMP3 drains the stream through go-mp3, which always emits 16-bit
// little-endian stereo regardless of the source layout.
func decodeMP3(r io.Reader) (*Data, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dsp.ErrUnsupportedFormat, err)
	}

	samples := make([]float32, 0, 1<<14)
	buf := make([]byte, 8192)
	rem := 0
	for {
		n, err := dec.Read(buf[rem:])
		if n > 0 {
			total := rem + n
			usable := total - total%2
			for i := 0; i+1 < usable; i += 2 {
				v := int16(binary.LittleEndian.Uint16(buf[i:]))
				samples = append(samples, dsp.Int16(v))
			}
			// Reads are not sample-aligned; carry a split byte forward.
			rem = total - usable
			if rem > 0 {
				buf[0] = buf[usable]
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSampleRead, err)
		}
	}

	return finish(samples, 2, dec.SampleRate())
}
