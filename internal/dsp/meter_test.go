package dsp

import (
	"math"
	"testing"
)

func TestRMSEmptyBlock(t *testing.T) {
	t.Parallel()

	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
	if got := RMS([]float32{}); got != 0 {
		t.Errorf("RMS(empty) = %v, want 0", got)
	}
}

func TestRMSSilence(t *testing.T) {
	t.Parallel()

	if got := RMS(make([]float32, 512)); got != 0 {
		t.Errorf("RMS(silence) = %v, want 0", got)
	}
}

func TestRMSConstantBlock(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		level float32
		want  float32
	}{
		{"positive half scale", 0.5, 0.5},
		{"negative quarter scale", -0.25, 0.25},
		{"full scale", 1.0, 1.0},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			block := make([]float32, 256)
			for i := range block {
				block[i] = tc.level
			}
			if got := RMS(block); !near(got, tc.want) {
				t.Errorf("RMS(constant %v) = %v, want %v", tc.level, got, tc.want)
			}
		})
	}
}

func TestRMSMixedBlock(t *testing.T) {
	t.Parallel()

	// sqrt((0.36 + 0.64) / 2) = sqrt(0.5)
	got := RMS([]float32{0.6, 0.8})
	want := float32(math.Sqrt(0.5))
	if !near(got, want) {
		t.Errorf("RMS = %v, want %v", got, want)
	}
}

func TestRMSSine(t *testing.T) {
	t.Parallel()

	// A full-scale sine measures 1/sqrt(2) over whole periods.
	block := make([]float32, 4800)
	for i := range block {
		block[i] = float32(math.Sin(2 * math.Pi * float64(i) / 480))
	}
	want := float32(1 / math.Sqrt2)
	if got := RMS(block); math.Abs(float64(got-want)) > 1e-3 {
		t.Errorf("RMS(sine) = %v, want about %v", got, want)
	}
}

func TestPercent(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		rms  float32
		want float32
	}{
		{"silence", 0, 0},
		{"half scale", 0.5, 50},
		{"full scale", 1.0, 100},
		{"over full scale pins", 1.5, 100},
		{"quiet signal keeps precision", 0.003, 0.3},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Percent(tc.rms); !near(got, tc.want) {
				t.Errorf("Percent(%v) = %v, want %v", tc.rms, got, tc.want)
			}
		})
	}
}
