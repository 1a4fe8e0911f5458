// Package monitor runs the live input-level pipeline: two independent
// capture slots whose streams publish per-block RMS loudness into cells a
// UI can poll at any rate.
package monitor

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jdboyer/micmeter/internal/audio"
	"github.com/jdboyer/micmeter/internal/dsp"
)

// ErrInvalidSlot reports a Slot value outside the two fixed positions.
var ErrInvalidSlot = errors.New("invalid slot")

// Slot selects one of the two monitoring positions.
type Slot int

const (
	Primary Slot = iota
	Secondary
)

func (s Slot) valid() bool {
	return s == Primary || s == Secondary
}

func (s Slot) String() string {
	if s == Secondary {
		return "secondary"
	}
	return "primary"
}

// ParseSlot maps a slot name to its Slot. Anything other than "secondary"
// selects Primary.
func ParseSlot(name string) Slot {
	if strings.EqualFold(name, "secondary") {
		return Secondary
	}
	return Primary
}

// session is one running capture bound to a slot.
type session struct {
	deviceID string
	stream   audio.Stream
}

// levelCell publishes the latest loudness of one slot. The capture goroutine
// writes, pollers read, and the owner pointer keeps writes from a superseded
// session out of the cell.
type levelCell struct {
	mu    sync.Mutex
	rms   float32
	owner *session
}

func (c *levelCell) publish(s *session, rms float32) {
	c.mu.Lock()
	if c.owner == s {
		c.rms = rms
	}
	c.mu.Unlock()
}

// claim installs s as the owner (nil for idle) and zeroes the level. It
// returns the previous owner so its stream can be closed outside the cell
// lock.
func (c *levelCell) claim(s *session) *session {
	c.mu.Lock()
	prev := c.owner
	c.owner = s
	c.rms = 0
	c.mu.Unlock()
	return prev
}

func (c *levelCell) load() float32 {
	c.mu.Lock()
	v := c.rms
	c.mu.Unlock()
	return v
}

// Manager owns the two capture slots. Control operations serialize on one
// mutex; level reads touch only the cells, so a polling UI never waits
// behind a device open.
type Manager struct {
	host audio.Host
	log  zerolog.Logger

	mu    sync.Mutex
	cells [2]levelCell
}

// New returns a Manager capturing through host. The caller keeps ownership
// of host's backend but must shut it down via Close so open streams are
// released first.
func New(host audio.Host, log zerolog.Logger) *Manager {
	return &Manager{
		host: host,
		log:  log.With().Str("component", "monitor").Logger(),
	}
}

// Devices lists the capture devices currently visible to the backend.
func (m *Manager) Devices() ([]audio.Device, error) {
	return m.host.Devices()
}

// Start begins monitoring deviceID on the slot, replacing whatever session
// the slot was running. On failure the slot keeps its previous session
// untouched.
func (m *Manager) Start(slot Slot, deviceID string) error {
	if !slot.valid() {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, int(slot))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, err := m.host.DeviceConfig(deviceID)
	if err != nil {
		return fmt.Errorf("device %s: %w", deviceID, err)
	}

	s := &session{deviceID: deviceID}
	cell := &m.cells[slot]

	// Blocks delivered before claim installs the session find a different
	// owner and are dropped, so a half-started session never writes.
	stream, err := m.host.OpenStream(deviceID, cfg, func(block []float32) {
		mono, derr := dsp.DownmixMono(block, cfg.Channels)
		if derr != nil {
			cell.publish(s, 0)
			return
		}
		cell.publish(s, dsp.RMS(mono))
	})
	if err != nil {
		return fmt.Errorf("device %s: %w", deviceID, err)
	}
	s.stream = stream

	prev := cell.claim(s)
	m.closeSession(prev)

	m.log.Info().
		Str("slot", slot.String()).
		Str("device", deviceID).
		Str("format", cfg.Format.String()).
		Msg("monitoring started")
	return nil
}

// Stop ends monitoring on the slot and leaves its level at zero. Stopping
// an idle slot is a no-op, and a stream that fails to close is logged
// rather than surfaced: once the cell is released the slot is idle either
// way.
func (m *Manager) Stop(slot Slot) error {
	if !slot.valid() {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, int(slot))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.cells[slot].claim(nil)
	if prev == nil {
		return nil
	}
	m.closeSession(prev)
	m.log.Info().
		Str("slot", slot.String()).
		Str("device", prev.deviceID).
		Msg("monitoring stopped")
	return nil
}

// Volume reports the slot's current loudness as a 0..100 percentage. An
// idle or invalid slot reads 0.
func (m *Manager) Volume(slot Slot) float32 {
	if !slot.valid() {
		return 0
	}
	return dsp.Percent(m.cells[slot].load())
}

// Active reports which device the slot is monitoring, if any.
func (m *Manager) Active(slot Slot) (string, bool) {
	if !slot.valid() {
		return "", false
	}
	cell := &m.cells[slot]
	cell.mu.Lock()
	defer cell.mu.Unlock()
	if cell.owner == nil {
		return "", false
	}
	return cell.owner.deviceID, true
}

// Close stops both slots and releases the backend.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for slot := range m.cells {
		if prev := m.cells[slot].claim(nil); prev != nil {
			m.closeSession(prev)
		}
	}
	if err := m.host.Close(); err != nil {
		return fmt.Errorf("failed to close audio host: %w", err)
	}
	return nil
}

func (m *Manager) closeSession(s *session) {
	if s == nil {
		return
	}
	if err := s.stream.Close(); err != nil {
		m.log.Error().Err(err).Str("device", s.deviceID).Msg("failed to close capture stream")
	}
}
