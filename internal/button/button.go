// Package button reads the single push button that flips the cluster between
// basic and full color.
package button

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Input reports the current button level.
type Input interface {
	Pressed() bool
}

// Config selects the backend.
type Config struct {
	Backend string `yaml:"backend" json:"backend"` // "gpio", "evdev" or "none"
	Pin     string `yaml:"pin" json:"pin"`         // gpio: periph pin name
	Device  string `yaml:"device" json:"device"`   // evdev: path or device name
	KeyCode uint16 `yaml:"key_code" json:"keyCode"`
}

func DefaultConfig() Config {
	return Config{
		Backend: "gpio",
		Pin:     "GPIO17",
		KeyCode: 28, // KEY_ENTER
	}
}

// Open returns the configured backend. Evdev readers stop when ctx ends.
func Open(ctx context.Context, cfg Config) (Input, error) {
	switch cfg.Backend {
	case "gpio":
		return OpenGPIO(cfg.Pin)
	case "evdev":
		return OpenEvdev(ctx, cfg.Device, cfg.KeyCode)
	case "", "none":
		log.Info("[button] no button configured")
		return Never{}, nil
	}
	return nil, errors.Errorf("button: unknown backend %q", cfg.Backend)
}

// Never is an Input that is never pressed.
type Never struct{}

func (Never) Pressed() bool { return false }

// Edge turns a level into press events.
type Edge struct {
	in   Input
	last bool
}

func NewEdge(in Input) *Edge {
	return &Edge{in: in}
}

// Sample reads the input once and reports true only on the transition from
// released to pressed.
func (e *Edge) Sample() bool {
	now := e.in.Pressed()
	fired := now && !e.last
	e.last = now
	return fired
}
