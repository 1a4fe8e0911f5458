package audio

import (
	"errors"
	"testing"
)

func TestDeviceIDFormat(t *testing.T) {
	t.Parallel()

	if got := DeviceID(0); got != "input_0" {
		t.Errorf("DeviceID(0) = %q, want %q", got, "input_0")
	}
	if got := DeviceID(17); got != "input_17" {
		t.Errorf("DeviceID(17) = %q, want %q", got, "input_17")
	}
}

func TestParseDeviceIDRoundTrip(t *testing.T) {
	t.Parallel()

	for _, index := range []int{0, 1, 5, 123} {
		got, err := ParseDeviceID(DeviceID(index))
		if err != nil {
			t.Fatalf("ParseDeviceID(DeviceID(%d)) returned error: %v", index, err)
		}
		if got != index {
			t.Errorf("round trip of %d gave %d", index, got)
		}
	}
}

func TestParseDeviceIDMalformed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		id   string
	}{
		{"empty", ""},
		{"wrong prefix", "output_1"},
		{"bare prefix", "input_"},
		{"non-numeric index", "input_abc"},
		{"negative index", "input_-2"},
		{"no prefix", "3"},
		{"raw device name", "Built-in Microphone"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseDeviceID(tc.id)
			if !errors.Is(err, ErrDeviceNotFound) {
				t.Errorf("ParseDeviceID(%q) = %v, want ErrDeviceNotFound", tc.id, err)
			}
		})
	}
}
