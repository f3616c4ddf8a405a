package ecu

import (
	"math"
	"math/rand"
	"time"

	"github.com/shaunagostinho/gaugedash/internal/telemetry"
)

// Demo generates simulated engine data for bench testing without an ECU.
// Fast channels move every poll, temperatures and pressures every 500 ms.
type Demo struct {
	state    *telemetry.State
	t        float64 // virtual time accumulator
	lastSlow time.Time
	now      func() time.Time
	rnd      *rand.Rand
}

func NewDemo(state *telemetry.State) *Demo {
	return &Demo{
		state: state,
		now:   time.Now,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (d *Demo) Name() string { return "demo" }
func (d *Demo) Open() error  { return nil }
func (d *Demo) Close() error { return nil }

// Poll advances the simulation by one 50 ms step.
func (d *Demo) Poll() error {
	d.t += 0.05
	now := d.now()
	slow := now.Sub(d.lastSlow) > 500*time.Millisecond
	if slow {
		d.lastSlow = now
	}

	// RPM cycling between idle and revving
	rpmBase := 850.0 + 5500.0*math.Pow(math.Sin(d.t*0.3), 2)
	rpm := rpmBase + d.rnd.Float64()*50
	load := (rpm - 850) / (7000 - 850)
	tps := clamp(load*100, 0, 100)

	d.state.Update(func(s *telemetry.Snapshot) {
		s.RPM = uint16(rpm)
		s.MAP = 30 + load*170
		s.TPS = tps
		s.AFR = clamp(14.7-load*2.2+d.rnd.Float64()*0.4, 10, 18)
		s.Advance = 10 + load*28
		s.VSS = tps / 100 * 220

		if slow {
			s.Coolant = 85 + d.rnd.Float64()*30
			s.IAT = 25 + d.rnd.Float64()*40
			s.Battery = 11.8 + d.rnd.Float64()*2.8
			s.FuelPressure = 26 + d.rnd.Float64()*20
		}

		s.Sync = true
		s.Rev = rpm > 6200
		s.Launch = false
		s.DFCO = tps < 1 && rpm > 2000
		s.Fan = s.Coolant > 100
		s.ASE = d.t < 30
		s.WUE = s.Coolant < 60
		s.AirCon = int(d.t)%40 > 30
	})
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
