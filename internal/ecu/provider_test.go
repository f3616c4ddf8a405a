package ecu

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunagostinho/gaugedash/internal/telemetry"
)

func TestModes(t *testing.T) {
	assert.Equal(t, ModeCAN, ModeFromByte(0))
	assert.Equal(t, ModeSerial, ModeFromByte(1))
	assert.Equal(t, ModeCAN, ModeFromByte(0xFF), "erased storage selects CAN")

	m, err := ParseMode("Serial")
	require.NoError(t, err)
	assert.Equal(t, ModeSerial, m)
	assert.Equal(t, "serial", m.String())

	_, err = ParseMode("lin")
	assert.Error(t, err)
}

type countingTransport struct {
	polls  atomic.Int32
	closed atomic.Bool
}

func (c *countingTransport) Name() string { return "counting" }
func (c *countingTransport) Open() error  { return nil }
func (c *countingTransport) Poll() error  { c.polls.Add(1); return nil }
func (c *countingTransport) Close() error { c.closed.Store(true); return nil }

func TestRunPollsUntilCancelled(t *testing.T) {
	tr := &countingTransport{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Run(ctx, tr, time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return tr.polls.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()
	<-done
	assert.True(t, tr.closed.Load())
}

func TestDemoProducesPlausibleValues(t *testing.T) {
	st := telemetry.NewState()
	d := NewDemo(st)
	require.NoError(t, d.Open())

	for i := 0; i < 100; i++ {
		require.NoError(t, d.Poll())
	}
	s := st.Snapshot()
	assert.True(t, s.Sync)
	assert.GreaterOrEqual(t, s.RPM, uint16(850))
	assert.GreaterOrEqual(t, s.Coolant, 85.0)
	assert.LessOrEqual(t, s.TPS, 100.0)
	assert.GreaterOrEqual(t, s.AFR, 10.0)
}
