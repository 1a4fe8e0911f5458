// Package dsp holds the sample-level primitives shared by the live capture
// pipeline and the waveform file decoder: sample-format normalization to
// canonical float32 in [-1, 1], RMS loudness measurement, and channel downmix.
package dsp

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat reports a sample encoding the normalizer cannot
	// convert. The wrapping error carries the offending format descriptor.
	ErrUnsupportedFormat = errors.New("unsupported sample format")

	// ErrUnsupportedChannelLayout reports a channel count the mixer cannot
	// downmix (anything beyond mono or stereo).
	ErrUnsupportedChannelLayout = errors.New("unsupported channel layout")
)

// Format identifies the raw encoding of a sample block. The set is closed:
// these are the only encodings either pipeline can produce, so callers
// dispatch on it once per stream open or file decode.
type Format int

const (
	FormatInt16 Format = iota
	FormatUint16
	FormatInt24 // 24-bit signed, carried in a 32-bit container
	FormatInt32
	FormatFloat32
)

func (f Format) String() string {
	switch f {
	case FormatInt16:
		return "int16"
	case FormatUint16:
		return "uint16"
	case FormatInt24:
		return "int24"
	case FormatInt32:
		return "int32"
	case FormatFloat32:
		return "float32"
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// Valid reports whether f is one of the known encodings.
func (f Format) Valid() bool {
	return f >= FormatInt16 && f <= FormatFloat32
}

// Int16 normalizes a signed 16-bit sample.
func Int16(v int16) float32 { return float32(v) / 32767.0 }

// Uint16 normalizes an unsigned 16-bit sample, rescaling [0, 65535] to [-1, 1].
func Uint16(v uint16) float32 { return float32(v)/65535.0*2.0 - 1.0 }

// Int24 normalizes a signed 24-bit sample carried in an int32.
func Int24(v int32) float32 { return float32(v) / 8388608.0 }

// Int32 normalizes a signed 32-bit sample.
func Int32(v int32) float32 { return float32(v) / 2147483647.0 }

// IntConverter returns the per-sample normalizer for PCM samples carried in a
// Go int, as go-audio decoders deliver them, selected by bit depth. Decoders
// call this once and run the returned func over every sample, so an
// unsupported depth aborts before any sample is read.
func IntConverter(bitDepth int) (func(int) float32, error) {
	switch bitDepth {
	case 16:
		return func(v int) float32 { return Int16(int16(v)) }, nil
	case 24:
		return func(v int) float32 { return Int24(int32(v)) }, nil
	case 32:
		return func(v int) float32 { return Int32(int32(v)) }, nil
	default:
		return nil, fmt.Errorf("%w: %d-bit PCM", ErrUnsupportedFormat, bitDepth)
	}
}

// AppendInt16 appends the normalized form of src to dst. Callers reuse dst
// across capture callbacks to stay allocation-free: buf = AppendInt16(buf[:0], in).
func AppendInt16(dst []float32, src []int16) []float32 {
	for _, v := range src {
		dst = append(dst, Int16(v))
	}
	return dst
}

// AppendUint16 appends the normalized form of src to dst.
func AppendUint16(dst []float32, src []uint16) []float32 {
	for _, v := range src {
		dst = append(dst, Uint16(v))
	}
	return dst
}

// AppendInt32 appends the normalized form of src to dst.
func AppendInt32(dst []float32, src []int32) []float32 {
	for _, v := range src {
		dst = append(dst, Int32(v))
	}
	return dst
}
