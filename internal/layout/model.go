package layout

import (
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/shaunagostinho/gaugedash/internal/palette"
	"github.com/shaunagostinho/gaugedash/internal/storage"
	"github.com/shaunagostinho/gaugedash/internal/telemetry"
)

// Bus speeds the CAN transport may settle on, in fallback order.
var SupportedSpeeds = []uint32{1000000, 500000, 250000, 125000}

const fallbackSpeed = 1000000

// Store is the byte-addressable persistence the model writes through.
type Store interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Commit() error
}

// Model owns the active Configuration. Mutations persist synchronously.
type Model struct {
	mu     sync.RWMutex
	cfg    Configuration
	store  Store
	state  *telemetry.State
	seed   string
	offset int64
}

// NewModel returns a model seeded with the named preset. Call Load before use.
// An unknown preset name falls back to PresetCluster9.
func NewModel(store Store, state *telemetry.State, seed string) *Model {
	if _, ok := presets[seed]; !ok {
		log.Warnf("[layout] unknown preset %q, using %s", seed, PresetCluster9)
		seed = PresetCluster9
	}
	cfg, _ := Preset(seed)
	return &Model{
		cfg:    cfg,
		store:  store,
		state:  state,
		seed:   seed,
		offset: storage.ConfigAddr,
	}
}

// Load reads the stored layout. A block that fails the acceptance check is
// replaced with the seed preset, which is persisted immediately.
func (m *Model) Load() {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := make([]byte, BlockSize)
	cfg, err := m.read(buf)
	if err == nil && cfg.Valid() {
		m.cfg = cfg
		log.Infof("[layout] loaded %d panels, %d indicators", cfg.ActivePanels, cfg.ActiveIndicators)
		return
	}
	if err != nil {
		log.Warnf("[layout] stored layout unreadable: %v", err)
	} else {
		log.WithFields(log.Fields{
			"panels":     cfg.ActivePanels,
			"indicators": cfg.ActiveIndicators,
		}).Warn("[layout] stored layout rejected")
	}
	m.cfg, _ = Preset(m.seed)
	m.saveLocked()
	log.Infof("[layout] reset to %s preset", m.seed)
}

func (m *Model) read(buf []byte) (Configuration, error) {
	if _, err := m.store.ReadAt(buf, m.offset); err != nil {
		return Configuration{}, errors.Wrap(err, "layout: read block")
	}
	return decode(buf)
}

// Save persists the current layout. Failures are logged, never returned.
func (m *Model) Save() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.saveLocked()
}

func (m *Model) saveLocked() {
	b, err := encode(&m.cfg)
	if err == nil {
		_, err = m.store.WriteAt(b, m.offset)
	}
	if err == nil {
		err = m.store.Commit()
	}
	if err != nil {
		log.Errorf("[layout] save failed: %v", err)
		return
	}
	log.Debug("[layout] saved")
}

// ResetToDefault installs the seed preset and persists it.
func (m *Model) ResetToDefault() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg, _ = Preset(m.seed)
	m.saveLocked()
	log.Infof("[layout] reset to %s preset", m.seed)
}

// ApplyPreset installs a named built-in layout and persists it.
func (m *Model) ApplyPreset(name string) error {
	cfg, ok := Preset(name)
	if !ok {
		return errors.Errorf("layout: unknown preset %q", name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg.CanSpeed = m.cfg.CanSpeed
	m.cfg = cfg
	m.saveLocked()
	log.Infof("[layout] applied %s preset", name)
	return nil
}

// AddPanel appends a panel. It is a no-op once all positions are taken,
// reported by a false return.
func (m *Model) AddPanel(position uint8, label string, ch telemetry.Channel, enabled bool, decimals uint8) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.cfg.addPanel(position, label, ch, enabled, decimals) {
		return false
	}
	m.saveLocked()
	return true
}

// AddIndicator appends an indicator. It is a no-op at capacity.
func (m *Model) AddIndicator(position uint8, label string, ind telemetry.Indicator, enabled bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.cfg.addIndicator(position, label, ind, enabled) {
		return false
	}
	m.saveLocked()
	return true
}

// ClearPanels removes every panel so a layout can be rebuilt with AddPanel.
// Indicators are kept.
func (m *Model) ClearPanels() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.Panels = [MaxPanels]Panel{}
	m.cfg.ActivePanels = 0
	m.saveLocked()
}

// Config returns a copy of the active layout.
func (m *Model) Config() Configuration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// CanSpeed returns the stored bus speed. Anything outside SupportedSpeeds
// reads as 1 Mbit/s.
func (m *Model) CanSpeed() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if supportedSpeed(m.cfg.CanSpeed) {
		return m.cfg.CanSpeed
	}
	return fallbackSpeed
}

// SetCanSpeed stores a supported bus speed and persists it. Other values are
// ignored.
func (m *Model) SetCanSpeed(bps uint32) {
	if !supportedSpeed(bps) {
		log.Warnf("[layout] ignoring unsupported CAN speed %d", bps)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.CanSpeed = bps
	m.saveLocked()
}

func supportedSpeed(bps uint32) bool {
	for _, s := range SupportedSpeeds {
		if s == bps {
			return true
		}
	}
	return false
}

// ValueFor reads a channel from the telemetry state.
func (m *Model) ValueFor(ch telemetry.Channel) float64 {
	return m.state.Value(ch)
}

// IndicatorFor reads a status bit from the telemetry state.
func (m *Model) IndicatorFor(ind telemetry.Indicator) bool {
	return m.state.Indicator(ind)
}

// ColorFor is the presentation color of a channel value.
func ColorFor(ch telemetry.Channel, v float64) palette.Color {
	switch ch {
	case telemetry.ChannelAFR:
		if v < 13.0 {
			return palette.Orange
		}
		if v > 14.7 {
			return palette.Red
		}
		return palette.Green
	case telemetry.ChannelCoolant:
		if v > 95 {
			return palette.Red
		}
		return palette.White
	case telemetry.ChannelVoltage:
		if v < 11.5 || v > 14.5 {
			return palette.Orange
		}
		return palette.Green
	case telemetry.ChannelAdvance:
		return palette.Red
	}
	return palette.White
}
