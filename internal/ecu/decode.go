package ecu

import (
	"encoding/binary"
	"sort"
	"sync/atomic"

	"github.com/brutella/can"
	"github.com/pkg/errors"

	"github.com/shaunagostinho/gaugedash/internal/telemetry"
)

// Broadcast identifiers of the ECU's fixed CAN stream.
const (
	IDEngine       uint32 = 0x360 // rpm, map, tps
	IDFuelPressure uint32 = 0x361
	IDIgnition     uint32 = 0x362 // advance in bytes 4-5
	IDLambda       uint32 = 0x368
	IDTrigger      uint32 = 0x369
	IDSpeed        uint32 = 0x370
	IDBattery      uint32 = 0x372
	IDTemps        uint32 = 0x3E0 // coolant, intake air
	IDStatus       uint32 = 0x3E4 // packed status bits
)

// SocketCAN flag bit for 29-bit identifiers. The stream uses 11-bit IDs only.
const effFlag = 0x80000000

// ErrShortFrame is returned for a known identifier whose payload is shorter
// than its decode rule reads.
var ErrShortFrame = errors.New("ecu: frame too short")

type rule struct {
	need  uint8
	apply func(d []byte, s *telemetry.Snapshot)
}

func be16(d []byte, off int) uint16 { return binary.BigEndian.Uint16(d[off:]) }

func tenths(d []byte, off int) float64 { return float64(be16(d, off)) / 10 }

func bit(b byte, n uint) bool { return b&(1<<n) != 0 }

var rules = map[uint32]rule{
	IDEngine: {6, func(d []byte, s *telemetry.Snapshot) {
		s.RPM = be16(d, 0)
		s.MAP = tenths(d, 2)
		s.TPS = tenths(d, 4)
	}},
	IDFuelPressure: {2, func(d []byte, s *telemetry.Snapshot) {
		s.FuelPressure = tenths(d, 0) - 101.3
	}},
	IDIgnition: {6, func(d []byte, s *telemetry.Snapshot) {
		s.Advance = tenths(d, 4)
	}},
	IDLambda: {2, func(d []byte, s *telemetry.Snapshot) {
		s.AFR = float64(be16(d, 0)) / 1000 * 14.7
	}},
	IDTrigger: {2, func(d []byte, s *telemetry.Snapshot) {
		s.TriggerErrors = be16(d, 0)
	}},
	IDSpeed: {2, func(d []byte, s *telemetry.Snapshot) {
		s.VSS = tenths(d, 0)
	}},
	IDBattery: {2, func(d []byte, s *telemetry.Snapshot) {
		s.Battery = tenths(d, 0)
	}},
	IDTemps: {4, func(d []byte, s *telemetry.Snapshot) {
		s.Coolant = tenths(d, 0) - 273.15
		s.IAT = tenths(d, 2) - 273.15
	}},
	IDStatus: {8, func(d []byte, s *telemetry.Snapshot) {
		s.DFCO = bit(d[1], 4)
		s.Launch = bit(d[2], 7)
		s.Rev = bit(d[2], 1)
		s.AirCon = bit(d[3], 4)
		s.Fan = bit(d[3], 0)
		s.Sync = bit(d[7], 0)
	}},
}

// IDs returns the decoded identifiers in ascending order.
func IDs() []uint32 {
	ids := make([]uint32, 0, len(rules))
	for id := range rules {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Decoder applies CAN frames to the telemetry state.
type Decoder struct {
	state  *telemetry.State
	frames atomic.Uint64
}

func NewDecoder(state *telemetry.State) *Decoder {
	return &Decoder{state: state}
}

// Decode applies one frame. It reports whether the identifier was
// recognised. Unknown identifiers and extended frames are ignored without
// error; a short frame for a known identifier is rejected with ErrShortFrame
// and leaves the state untouched.
func (d *Decoder) Decode(f can.Frame) (bool, error) {
	if f.ID&effFlag != 0 {
		return false, nil
	}
	r, ok := rules[f.ID]
	if !ok {
		return false, nil
	}
	if f.Length < r.need {
		return false, errors.Wrapf(ErrShortFrame, "id 0x%03X: length %d, need %d", f.ID, f.Length, r.need)
	}
	data := f.Data
	d.state.Update(func(s *telemetry.Snapshot) { r.apply(data[:], s) })
	d.frames.Add(1)
	return true, nil
}

// Frames returns the number of frames decoded so far.
func (d *Decoder) Frames() uint64 {
	return d.frames.Load()
}
