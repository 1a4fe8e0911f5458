package monitor

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/jdboyer/micmeter/internal/audio"
	"github.com/jdboyer/micmeter/internal/dsp"
)

type fakeStream struct {
	mu      sync.Mutex
	closed  bool
	handler audio.BlockHandler
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// deliver pushes a block through the stream's handler, standing in for the
// capture goroutine.
func (s *fakeStream) deliver(block []float32) {
	s.handler(block)
}

type fakeHost struct {
	mu      sync.Mutex
	cfg     audio.StreamConfig
	cfgErr  error
	openErr error
	streams []*fakeStream
	closed  bool
}

func newFakeHost(channels int) *fakeHost {
	return &fakeHost{
		cfg: audio.StreamConfig{Format: dsp.FormatFloat32, Channels: channels, SampleRate: 48000},
	}
}

func (h *fakeHost) Devices() ([]audio.Device, error) {
	return []audio.Device{
		{ID: "input_0", Name: "Fake Microphone"},
		{ID: "input_1", Name: "Fake Line In"},
	}, nil
}

func (h *fakeHost) DeviceConfig(id string) (audio.StreamConfig, error) {
	if h.cfgErr != nil {
		return audio.StreamConfig{}, h.cfgErr
	}
	return h.cfg, nil
}

func (h *fakeHost) OpenStream(id string, cfg audio.StreamConfig, handler audio.BlockHandler) (audio.Stream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.openErr != nil {
		return nil, h.openErr
	}
	s := &fakeStream{handler: handler}
	h.streams = append(h.streams, s)
	return s, nil
}

func (h *fakeHost) Close() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	return nil
}

func (h *fakeHost) openCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, s := range h.streams {
		if !s.isClosed() {
			n++
		}
	}
	return n
}

func (h *fakeHost) stream(i int) *fakeStream {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.streams[i]
}

func newTestManager(h *fakeHost) *Manager {
	return New(h, zerolog.Nop())
}

func constantBlock(level float32, n int) []float32 {
	block := make([]float32, n)
	for i := range block {
		block[i] = level
	}
	return block
}

func TestStartPublishesLevels(t *testing.T) {
	h := newFakeHost(1)
	m := newTestManager(h)

	if err := m.Start(Primary, "input_0"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if got := m.Volume(Primary); got != 0 {
		t.Errorf("volume before first block = %v, want 0", got)
	}

	h.stream(0).deliver(constantBlock(0.5, 512))
	if got := m.Volume(Primary); math.Abs(float64(got-50)) > 1e-4 {
		t.Errorf("volume = %v, want 50", got)
	}
}

func TestVolumePinsAtFullScale(t *testing.T) {
	h := newFakeHost(1)
	m := newTestManager(h)

	if err := m.Start(Primary, "input_0"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	h.stream(0).deliver(constantBlock(1.5, 64))
	if got := m.Volume(Primary); got != 100 {
		t.Errorf("volume = %v, want pinned 100", got)
	}
}

func TestStereoBlocksDownmixBeforeMeasuring(t *testing.T) {
	h := newFakeHost(2)
	m := newTestManager(h)

	if err := m.Start(Primary, "input_0"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Every frame is (1.0, 0.0), which downmixes to a constant 0.5.
	block := make([]float32, 128)
	for i := 0; i < len(block); i += 2 {
		block[i] = 1.0
	}
	h.stream(0).deliver(block)

	if got := m.Volume(Primary); math.Abs(float64(got-50)) > 1e-4 {
		t.Errorf("volume = %v, want 50", got)
	}
}

func TestSupersedeClosesPreviousStream(t *testing.T) {
	h := newFakeHost(1)
	m := newTestManager(h)

	if err := m.Start(Primary, "input_0"); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	old := h.stream(0)

	if err := m.Start(Primary, "input_1"); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}

	if !old.isClosed() {
		t.Error("superseded stream was not closed")
	}
	if got := h.openCount(); got != 1 {
		t.Errorf("open streams = %d, want 1", got)
	}

	// A straggler block from the old session must not reach the cell.
	old.deliver(constantBlock(0.9, 64))
	if got := m.Volume(Primary); got != 0 {
		t.Errorf("volume after stale block = %v, want 0", got)
	}

	h.stream(1).deliver(constantBlock(0.25, 64))
	if got := m.Volume(Primary); math.Abs(float64(got-25)) > 1e-4 {
		t.Errorf("volume from new session = %v, want 25", got)
	}
}

func TestStopZeroesLevelAndIsIdempotent(t *testing.T) {
	h := newFakeHost(1)
	m := newTestManager(h)

	if err := m.Start(Primary, "input_0"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	h.stream(0).deliver(constantBlock(0.5, 64))
	if got := m.Volume(Primary); got == 0 {
		t.Fatal("expected a non-zero level before Stop")
	}

	if err := m.Stop(Primary); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if got := m.Volume(Primary); got != 0 {
		t.Errorf("volume after Stop = %v, want 0", got)
	}
	if got := h.openCount(); got != 0 {
		t.Errorf("open streams after Stop = %d, want 0", got)
	}

	// Late blocks from the stopped session stay suppressed.
	h.stream(0).deliver(constantBlock(0.9, 64))
	if got := m.Volume(Primary); got != 0 {
		t.Errorf("volume after stale block = %v, want 0", got)
	}

	if err := m.Stop(Primary); err != nil {
		t.Errorf("second Stop on idle slot = %v, want nil", err)
	}
}

func TestSlotsAreIndependent(t *testing.T) {
	h := newFakeHost(1)
	m := newTestManager(h)

	if err := m.Start(Primary, "input_0"); err != nil {
		t.Fatalf("Start primary failed: %v", err)
	}
	if err := m.Start(Secondary, "input_1"); err != nil {
		t.Fatalf("Start secondary failed: %v", err)
	}

	h.stream(0).deliver(constantBlock(0.5, 64))
	h.stream(1).deliver(constantBlock(0.25, 64))

	if got := m.Volume(Primary); math.Abs(float64(got-50)) > 1e-4 {
		t.Errorf("primary volume = %v, want 50", got)
	}
	if got := m.Volume(Secondary); math.Abs(float64(got-25)) > 1e-4 {
		t.Errorf("secondary volume = %v, want 25", got)
	}

	if err := m.Stop(Primary); err != nil {
		t.Fatalf("Stop primary failed: %v", err)
	}
	h.stream(1).deliver(constantBlock(0.75, 64))
	if got := m.Volume(Secondary); math.Abs(float64(got-75)) > 1e-4 {
		t.Errorf("secondary volume after stopping primary = %v, want 75", got)
	}
}

func TestFailedStartKeepsPreviousSession(t *testing.T) {
	h := newFakeHost(1)
	m := newTestManager(h)

	if err := m.Start(Primary, "input_0"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	h.mu.Lock()
	h.openErr = fmt.Errorf("%w: device busy", audio.ErrStreamStart)
	h.mu.Unlock()

	err := m.Start(Primary, "input_1")
	if !errors.Is(err, audio.ErrStreamStart) {
		t.Fatalf("expected ErrStreamStart, got %v", err)
	}

	if got := h.openCount(); got != 1 {
		t.Errorf("open streams = %d, want the original 1", got)
	}
	h.stream(0).deliver(constantBlock(0.5, 64))
	if got := m.Volume(Primary); math.Abs(float64(got-50)) > 1e-4 {
		t.Errorf("previous session stopped publishing: volume = %v, want 50", got)
	}

	if id, ok := m.Active(Primary); !ok || id != "input_0" {
		t.Errorf("Active = %q/%v, want input_0/true", id, ok)
	}
}

func TestStartUnknownDevice(t *testing.T) {
	h := newFakeHost(1)
	h.cfgErr = fmt.Errorf("%w: input_9", audio.ErrDeviceNotFound)
	m := newTestManager(h)

	err := m.Start(Primary, "input_9")
	if !errors.Is(err, audio.ErrDeviceNotFound) {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
	if got := m.Volume(Primary); got != 0 {
		t.Errorf("volume = %v, want 0 on failed start", got)
	}
	if _, ok := m.Active(Primary); ok {
		t.Error("slot should stay idle after a failed start")
	}
}

func TestActiveTracksSessions(t *testing.T) {
	h := newFakeHost(1)
	m := newTestManager(h)

	if _, ok := m.Active(Primary); ok {
		t.Error("fresh slot should be idle")
	}
	if err := m.Start(Primary, "input_0"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if id, ok := m.Active(Primary); !ok || id != "input_0" {
		t.Errorf("Active = %q/%v, want input_0/true", id, ok)
	}
	if err := m.Stop(Primary); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if _, ok := m.Active(Primary); ok {
		t.Error("stopped slot should be idle")
	}
}

func TestCloseStopsEverything(t *testing.T) {
	h := newFakeHost(1)
	m := newTestManager(h)

	if err := m.Start(Primary, "input_0"); err != nil {
		t.Fatalf("Start primary failed: %v", err)
	}
	if err := m.Start(Secondary, "input_1"); err != nil {
		t.Fatalf("Start secondary failed: %v", err)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := h.openCount(); got != 0 {
		t.Errorf("open streams after Close = %d, want 0", got)
	}
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if !closed {
		t.Error("backend was not closed")
	}
	if got := m.Volume(Primary); got != 0 {
		t.Errorf("primary volume after Close = %v, want 0", got)
	}
}

func TestDevicesPassThrough(t *testing.T) {
	h := newFakeHost(1)
	m := newTestManager(h)

	devices, err := m.Devices()
	if err != nil {
		t.Fatalf("Devices failed: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2", len(devices))
	}
	if devices[0].ID != "input_0" || devices[1].ID != "input_1" {
		t.Errorf("unexpected ids: %+v", devices)
	}
}

func TestInvalidSlotIsAnErrorNotAPanic(t *testing.T) {
	h := newFakeHost(1)
	m := newTestManager(h)

	for _, slot := range []Slot{Slot(-1), Slot(2), Slot(99)} {
		if err := m.Start(slot, "input_0"); !errors.Is(err, ErrInvalidSlot) {
			t.Errorf("Start(%d) = %v, want ErrInvalidSlot", int(slot), err)
		}
		if err := m.Stop(slot); !errors.Is(err, ErrInvalidSlot) {
			t.Errorf("Stop(%d) = %v, want ErrInvalidSlot", int(slot), err)
		}
		if got := m.Volume(slot); got != 0 {
			t.Errorf("Volume(%d) = %v, want 0", int(slot), got)
		}
		if _, ok := m.Active(slot); ok {
			t.Errorf("Active(%d) reported a session", int(slot))
		}
	}
	if got := h.openCount(); got != 0 {
		t.Errorf("open streams = %d, want 0", got)
	}
}

func TestParseSlot(t *testing.T) {
	cases := map[string]Slot{
		"secondary": Secondary,
		"SECONDARY": Secondary,
		"primary":   Primary,
		"":          Primary,
		"garbage":   Primary,
	}
	for name, want := range cases {
		if got := ParseSlot(name); got != want {
			t.Errorf("ParseSlot(%q) = %v, want %v", name, got, want)
		}
	}
}
