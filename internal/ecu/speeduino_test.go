package ecu

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/shaunagostinho/gaugedash/internal/telemetry"
)

// portStub answers every 'r' command with the next scripted reply.
type portStub struct {
	replies [][]byte
	rx      bytes.Buffer
	written [][]byte
	closed  bool
}

func (p *portStub) Write(b []byte) (int, error) {
	p.written = append(p.written, append([]byte(nil), b...))
	if len(p.replies) > 0 {
		p.rx.Write(p.replies[0])
		p.replies = p.replies[1:]
	}
	return len(b), nil
}

func (p *portStub) Read(b []byte) (int, error) {
	if p.rx.Len() == 0 {
		return 0, io.EOF
	}
	return p.rx.Read(b)
}

func (p *portStub) Close() error                       { p.closed = true; return nil }
func (p *portStub) ResetInputBuffer() error            { p.rx.Reset(); return nil }
func (p *portStub) SetReadTimeout(time.Duration) error { return nil }

func realtimeBlock() []byte {
	b := make([]byte, realtimeSize)
	b[offDFCO] = 1 << 4
	b[offStatus2] = 1<<2 | 1<<3
	b[offMAP], b[offMAP+1] = 0x64, 0x00 // 100 kPa
	b[offIAT] = 65                      // 25 °C
	b[offCoolant] = 130                 // 90 °C
	b[offBattery] = 138                 // 13.8 V
	b[offAFR] = 147
	b[offRPM], b[offRPM+1] = 0xDC, 0x05 // 1500
	b[offAdvance] = 0xF6                // -10
	b[offTPS] = 50                      // 25 %
	b[offStatus3] = 1<<7 | 1<<2 | 1<<0
	b[offFP] = 43
	b[offFan] = 1 << 3
	b[offAirCon] = 1
	return b
}

func reply(block []byte) []byte {
	return append([]byte{'r', rCommandType}, block...)
}

func openStub(t *testing.T, p *portStub) (*Speeduino, *telemetry.State) {
	origOpen, origDelay := openPort, postOpenDelay
	openPort = func(string, *serial.Mode) (port, error) { return p, nil }
	postOpenDelay = 0
	t.Cleanup(func() { openPort, postOpenDelay = origOpen, origDelay })

	st := telemetry.NewState()
	s := NewSpeeduino(SpeeduinoConfig{PortPath: "/dev/null"}, st)
	require.NoError(t, s.Open())
	return s, st
}

func TestSpeeduinoPollDecodes(t *testing.T) {
	p := &portStub{replies: [][]byte{reply(realtimeBlock())}}
	s, st := openStub(t, p)

	require.NoError(t, s.Poll())
	require.Len(t, p.written, 1)
	assert.Equal(t, []byte{'r', 0, rCommandType, 0, 0, realtimeSize, 0}, p.written[0])

	snap := st.Snapshot()
	assert.Equal(t, uint16(1500), snap.RPM)
	assert.InDelta(t, 100.0, snap.MAP, 1e-9)
	assert.InDelta(t, 90.0, snap.Coolant, 1e-9)
	assert.InDelta(t, 25.0, snap.IAT, 1e-9)
	assert.InDelta(t, 13.8, snap.Battery, 1e-9)
	assert.InDelta(t, 14.7, snap.AFR, 1e-9)
	assert.InDelta(t, 25.0, snap.TPS, 1e-9)
	assert.InDelta(t, -10.0, snap.Advance, 1e-9)
	assert.InDelta(t, 43.0, snap.FuelPressure, 1e-9)
	assert.True(t, snap.Sync)
	assert.True(t, snap.Rev)
	assert.True(t, snap.Launch)
	assert.True(t, snap.ASE)
	assert.True(t, snap.WUE)
	assert.True(t, snap.Fan)
	assert.True(t, snap.AirCon)
	assert.True(t, snap.DFCO)
}

func TestSpeeduinoFailureZeroes(t *testing.T) {
	p := &portStub{replies: [][]byte{reply(realtimeBlock())}}
	s, st := openStub(t, p)
	require.NoError(t, s.Poll())
	require.NotZero(t, st.Snapshot().RPM)

	// no reply queued: the read comes back short
	assert.Error(t, s.Poll())
	assert.Equal(t, telemetry.Snapshot{}, st.Snapshot())
}

func TestSpeeduinoBadEchoZeroes(t *testing.T) {
	bad := reply(realtimeBlock())
	bad[0] = 'A'
	p := &portStub{replies: [][]byte{bad}}
	s, st := openStub(t, p)
	st.Update(func(snap *telemetry.Snapshot) { snap.RPM = 4000 })

	assert.Error(t, s.Poll())
	assert.Zero(t, st.Snapshot().RPM)
}

func TestSpeeduinoNotConnected(t *testing.T) {
	st := telemetry.NewState()
	st.Update(func(snap *telemetry.Snapshot) { snap.Battery = 12 })
	s := NewSpeeduino(SpeeduinoConfig{}, st)

	assert.ErrorIs(t, s.Poll(), ErrNotConnected)
	assert.Zero(t, st.Snapshot().Battery)
}

func TestSpeeduinoOpenError(t *testing.T) {
	orig := openPort
	openPort = func(string, *serial.Mode) (port, error) { return nil, errors.New("no such file") }
	defer func() { openPort = orig }()

	s := NewSpeeduino(SpeeduinoConfig{PortPath: "/dev/ttyECU"}, telemetry.NewState())
	assert.Error(t, s.Open())
}

func TestSpeeduinoClose(t *testing.T) {
	p := &portStub{}
	s, _ := openStub(t, p)
	require.NoError(t, s.Close())
	assert.True(t, p.closed)
	_, err := s.Request()
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestResponseAccessorsOutOfRange(t *testing.T) {
	r := Response{0x34, 0x12}
	assert.Equal(t, uint16(0x1234), r.Word(0))
	assert.Equal(t, uint16(0x0012), r.Word(1))
	assert.Zero(t, r.Byte(5))
	assert.Zero(t, r.Byte(-1))
	assert.False(t, r.Bit(9, 0))
}

func TestSerialDecoderSlowChannels(t *testing.T) {
	st := telemetry.NewState()
	d := NewSerialDecoder(st)
	now := time.Unix(100, 0)
	d.now = func() time.Time { return now }

	block := realtimeBlock()
	d.Decode(Response(block))
	assert.InDelta(t, 90.0, st.Snapshot().Coolant, 1e-9)

	// 50 ms later with the engine running: coolant is not refreshed
	now = now.Add(50 * time.Millisecond)
	block[offCoolant] = 140
	d.Decode(Response(block))
	assert.InDelta(t, 90.0, st.Snapshot().Coolant, 1e-9)

	// below 100 rpm every block refreshes
	block[offRPM], block[offRPM+1] = 50, 0
	d.Decode(Response(block))
	assert.InDelta(t, 100.0, st.Snapshot().Coolant, 1e-9)

	// and so does a block after the refresh interval
	block[offRPM], block[offRPM+1] = 0xDC, 0x05
	block[offCoolant] = 120
	now = now.Add(150 * time.Millisecond)
	d.Decode(Response(block))
	assert.InDelta(t, 80.0, st.Snapshot().Coolant, 1e-9)
}
