package audio

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jdboyer/micmeter/internal/dsp"
)

var (
	// ErrEnumerationFailed reports that the backend could not list devices.
	ErrEnumerationFailed = errors.New("device enumeration failed")

	// ErrDeviceNotFound reports an identifier that no current device answers
	// to, either because the id is malformed or the device went away.
	ErrDeviceNotFound = errors.New("input device not found")

	// ErrConfigQuery reports a device that offered no usable capture
	// configuration.
	ErrConfigQuery = errors.New("no usable capture configuration")

	// ErrStreamBuild reports a stream that could not be opened.
	ErrStreamBuild = errors.New("failed to build capture stream")

	// ErrStreamStart reports a stream that opened but refused to start.
	ErrStreamStart = errors.New("failed to start capture stream")
)

// Device describes one capture-capable device as seen by enumeration.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// StreamConfig is a negotiated capture configuration for one device.
type StreamConfig struct {
	Format     dsp.Format
	Channels   int
	SampleRate float64
}

// BlockHandler receives each captured block, already normalized to float32
// in [-1, 1]. The slice is reused between blocks; handlers must copy
// anything they keep.
type BlockHandler func(block []float32)

// Stream is one running capture. Close stops delivery and releases the
// device; it is safe to call more than once.
type Stream interface {
	Close() error
}

// Host is the audio backend. The live monitor talks only to this interface
// so it can run against a fake in tests.
type Host interface {
	// Devices lists every input-capable device in enumeration order.
	Devices() ([]Device, error)
	// DeviceConfig negotiates a capture configuration for the device.
	DeviceConfig(id string) (StreamConfig, error)
	// OpenStream starts capturing from the device, delivering each block
	// to handler until the returned stream is closed.
	OpenStream(id string, cfg StreamConfig, handler BlockHandler) (Stream, error)
	// Close releases the backend. No streams may be open.
	Close() error
}

const idPrefix = "input_"

// DeviceID formats the identifier for the input device at the given
// enumeration position.
func DeviceID(index int) string {
	return idPrefix + strconv.Itoa(index)
}

// ParseDeviceID recovers the enumeration position from an identifier
// produced by DeviceID. Malformed identifiers report ErrDeviceNotFound, the
// same as a device that has gone away, so callers handle both alike.
func ParseDeviceID(id string) (int, error) {
	if !strings.HasPrefix(id, idPrefix) {
		return 0, fmt.Errorf("%w: malformed id %q", ErrDeviceNotFound, id)
	}
	n, err := strconv.Atoi(strings.TrimPrefix(id, idPrefix))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: malformed id %q", ErrDeviceNotFound, id)
	}
	return n, nil
}
