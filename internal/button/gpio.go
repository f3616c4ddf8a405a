package button

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

type levelReader interface {
	Read() gpio.Level
}

// GPIO is an active-low button wired between a pin and ground.
type GPIO struct {
	pin levelReader
}

func OpenGPIO(name string) (*GPIO, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "button: periph host init")
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, errors.Errorf("button: pin %q not found", name)
	}
	if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, errors.Wrapf(err, "button: configure %s", name)
	}
	log.WithField("pin", name).Info("[button] gpio input ready")
	return &GPIO{pin: p}, nil
}

func (g *GPIO) Pressed() bool {
	return g.pin.Read() == gpio.Low
}
