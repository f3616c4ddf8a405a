package ecu

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunagostinho/gaugedash/internal/telemetry"
)

func TestDemoPoll(t *testing.T) {
	state := telemetry.NewState()
	d := NewDemo(state)
	clock := time.Unix(1000, 0)
	d.now = func() time.Time { return clock }

	require.NoError(t, d.Open())
	require.NoError(t, d.Poll())

	s := state.Snapshot()
	assert.True(t, s.Sync)
	assert.GreaterOrEqual(t, s.RPM, uint16(850))
	assert.LessOrEqual(t, s.RPM, uint16(6400))
	assert.InDelta(t, 100, s.Coolant, 15.01, "slow channels fill on the first poll")
	assert.GreaterOrEqual(t, s.AFR, 10.0)
	assert.LessOrEqual(t, s.AFR, 18.0)

	clt := s.Coolant
	clock = clock.Add(100 * time.Millisecond)
	require.NoError(t, d.Poll())
	assert.Equal(t, clt, state.Snapshot().Coolant, "slow channels hold between refreshes")

	clock = clock.Add(time.Second)
	for i := 0; i < 5; i++ {
		require.NoError(t, d.Poll())
	}
	assert.NoError(t, d.Close())
}
