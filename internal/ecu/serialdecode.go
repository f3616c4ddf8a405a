package ecu

import (
	"time"

	"github.com/shaunagostinho/gaugedash/internal/telemetry"
)

// Response is one realtime data block read from the ECU's secondary serial
// port. Accessors return zero for offsets past the end of the block.
type Response []byte

// Byte returns the byte at off.
func (r Response) Byte(off int) uint8 {
	if off < 0 || off >= len(r) {
		return 0
	}
	return r[off]
}

// Word returns the little-endian 16-bit value at off.
func (r Response) Word(off int) uint16 {
	return uint16(r.Byte(off)) | uint16(r.Byte(off+1))<<8
}

// Bit reports bit n of the byte at off.
func (r Response) Bit(off int, n uint) bool {
	return r.Byte(off)&(1<<n) != 0
}

// Realtime block offsets.
const (
	offDFCO     = 1   // engine bits, bit 4
	offStatus2  = 2   // ASE bit 2, WUE bit 3
	offMAP      = 4   // word
	offIAT      = 6   // +40 offset
	offCoolant  = 7   // +40 offset
	offBattery  = 9   // tenths of a volt
	offAFR      = 10  // tenths
	offRPM      = 14  // word
	offAdvance  = 23  // signed degrees
	offTPS      = 24  // half percent
	offStatus3  = 31  // launch bit 0, rev bit 2, sync bit 7
	offFP       = 103 // psi
	offFan      = 106 // bit 3
	offAirCon   = 122
	respMinSize = offAirCon + 1

	slowRefresh = 100 * time.Millisecond
)

// SerialDecoder applies realtime blocks to the telemetry state. Coolant,
// intake air and battery change slowly and are refreshed at most every
// 100 ms, except while the engine is below 100 rpm.
type SerialDecoder struct {
	state    *telemetry.State
	lastSlow time.Time
	now      func() time.Time
}

func NewSerialDecoder(state *telemetry.State) *SerialDecoder {
	return &SerialDecoder{state: state, now: time.Now}
}

// Decode applies r to the state in one update.
func (d *SerialDecoder) Decode(r Response) {
	now := d.now()
	rpm := r.Word(offRPM)
	slow := now.Sub(d.lastSlow) > slowRefresh || rpm < 100
	if slow {
		d.lastSlow = now
	}

	d.state.Update(func(s *telemetry.Snapshot) {
		if slow {
			s.Coolant = float64(r.Byte(offCoolant)) - 40
			s.IAT = float64(r.Byte(offIAT)) - 40
			s.Battery = float64(r.Byte(offBattery)) * 0.1
		}
		s.RPM = rpm
		s.MAP = float64(r.Word(offMAP))
		s.AFR = float64(r.Byte(offAFR)) * 0.1
		s.TPS = float64(r.Byte(offTPS)) * 0.5
		s.Advance = float64(int8(r.Byte(offAdvance)))
		s.FuelPressure = float64(r.Byte(offFP))

		s.Sync = r.Bit(offStatus3, 7)
		s.ASE = r.Bit(offStatus2, 2)
		s.WUE = r.Bit(offStatus2, 3)
		s.Rev = r.Bit(offStatus3, 2)
		s.Launch = r.Bit(offStatus3, 0)
		s.AirCon = r.Byte(offAirCon) != 0
		s.Fan = r.Bit(offFan, 3)
		s.DFCO = r.Bit(offDFCO, 4)
	})
}
