// Package telemetry holds the latest decoded engine values shared between the
// ingestion transport, the renderer and the web server.
package telemetry

import "sync"

// Snapshot is the latest known value of every channel.
//
// Fields keep their last decoded value until a transport overwrites them.
// There is no "unknown" state: a channel that never arrived reads as zero.
type Snapshot struct {
	RPM           uint16  `json:"rpm"`
	MAP           float64 `json:"map"`          // kPa
	TPS           float64 `json:"tps"`          // %
	Coolant       float64 `json:"coolant"`      // °C
	IAT           float64 `json:"iat"`          // °C
	Battery       float64 `json:"battery"`      // V
	AFR           float64 `json:"afr"`          // air:fuel ratio
	FuelPressure  float64 `json:"fuelPressure"` // psi
	Advance       float64 `json:"advance"`      // degrees BTDC
	VSS           float64 `json:"vss"`          // km/h
	TriggerErrors uint16  `json:"triggerErrors"`

	Sync   bool `json:"sync"`
	Fan    bool `json:"fan"`
	ASE    bool `json:"ase"`
	WUE    bool `json:"wue"`
	Rev    bool `json:"rev"`
	Launch bool `json:"launch"`
	AirCon bool `json:"airCon"`
	DFCO   bool `json:"dfco"`
}

// State is the process-wide telemetry container.
//
// Exactly one transport writes it. Each Update call is applied atomically, so
// all fields decoded from one CAN identifier become visible together. Values
// decoded from different identifiers carry no common timestamp.
type State struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewState returns a zeroed State.
func NewState() *State {
	return &State{}
}

// Update applies fn to the snapshot under the write lock.
func (s *State) Update(fn func(*Snapshot)) {
	s.mu.Lock()
	fn(&s.snap)
	s.mu.Unlock()
}

// Snapshot returns a copy of the current values.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Reset zeroes every field.
func (s *State) Reset() {
	s.mu.Lock()
	s.snap = Snapshot{}
	s.mu.Unlock()
}

// Value returns the numeric value for a channel. ChannelNone and unknown
// channels yield 0.
func (s *State) Value(ch Channel) float64 {
	snap := s.Snapshot()
	return snap.Value(ch)
}

// Indicator returns the state of a status indicator. IndicatorNone yields false.
func (s *State) Indicator(ind Indicator) bool {
	snap := s.Snapshot()
	return snap.Indicator(ind)
}

// Value returns the numeric value for a channel.
func (s Snapshot) Value(ch Channel) float64 {
	switch ch {
	case ChannelIAT:
		return s.IAT
	case ChannelCoolant:
		return s.Coolant
	case ChannelAFR:
		return s.AFR
	case ChannelAdvance:
		return s.Advance
	case ChannelTrigger:
		return float64(s.TriggerErrors)
	case ChannelTPS:
		return s.TPS
	case ChannelVoltage:
		return s.Battery
	case ChannelMAP:
		return s.MAP
	case ChannelRPM:
		return float64(s.RPM)
	case ChannelFuelPressure:
		return s.FuelPressure
	case ChannelVSS:
		return s.VSS
	}
	return 0
}

// Indicator returns the state of a status indicator.
func (s Snapshot) Indicator(ind Indicator) bool {
	switch ind {
	case IndicatorSync:
		return s.Sync
	case IndicatorFan:
		return s.Fan
	case IndicatorASE:
		return s.ASE
	case IndicatorWUE:
		return s.WUE
	case IndicatorRev:
		return s.Rev
	case IndicatorLaunch:
		return s.Launch
	case IndicatorAirCon:
		return s.AirCon
	case IndicatorDFCO:
		return s.DFCO
	}
	return false
}
