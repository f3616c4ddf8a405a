package button

import (
	"context"
	"testing"

	evdev "github.com/holoplot/go-evdev"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
)

type levels struct {
	seq []bool
	i   int
}

func (l *levels) Pressed() bool {
	v := l.seq[l.i]
	if l.i < len(l.seq)-1 {
		l.i++
	}
	return v
}

func TestEdgeFiresOncePerPress(t *testing.T) {
	e := NewEdge(&levels{seq: []bool{false, true, true, true, false, true, false}})
	var fired []bool
	for i := 0; i < 7; i++ {
		fired = append(fired, e.Sample())
	}
	assert.Equal(t, []bool{false, true, false, false, false, true, false}, fired)
}

func TestNeverAndUnknownBackend(t *testing.T) {
	in, err := Open(context.Background(), Config{Backend: "none"})
	require.NoError(t, err)
	assert.False(t, in.Pressed())

	_, err = Open(context.Background(), Config{Backend: "morse"})
	assert.Error(t, err)
}

type pinLevel gpio.Level

func (p pinLevel) Read() gpio.Level { return gpio.Level(p) }

func TestGPIOActiveLow(t *testing.T) {
	assert.True(t, (&GPIO{pin: pinLevel(gpio.Low)}).Pressed())
	assert.False(t, (&GPIO{pin: pinLevel(gpio.High)}).Pressed())
}

func TestEvdevHandle(t *testing.T) {
	e := &Evdev{code: evdev.KEY_ENTER}

	e.handle(&evdev.InputEvent{Type: evdev.EV_KEY, Code: evdev.KEY_ENTER, Value: 1})
	assert.True(t, e.Pressed())

	e.handle(&evdev.InputEvent{Type: evdev.EV_KEY, Code: evdev.KEY_ENTER, Value: 2})
	assert.True(t, e.Pressed(), "autorepeat keeps it down")

	e.handle(&evdev.InputEvent{Type: evdev.EV_KEY, Code: evdev.KEY_A, Value: 0})
	assert.True(t, e.Pressed(), "other keys ignored")

	e.handle(&evdev.InputEvent{Type: evdev.EV_SYN, Code: evdev.KEY_ENTER, Value: 0})
	assert.True(t, e.Pressed(), "non-key events ignored")

	e.handle(&evdev.InputEvent{Type: evdev.EV_KEY, Code: evdev.KEY_ENTER, Value: 0})
	assert.False(t, e.Pressed())
}

func TestResolveDevice(t *testing.T) {
	p, err := resolveDevice("/dev/input/event3")
	require.NoError(t, err)
	assert.Equal(t, "/dev/input/event3", p)

	_, err = resolveDevice("")
	assert.Error(t, err)
}
