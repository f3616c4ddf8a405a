package button

import (
	"context"
	"sync/atomic"
	"time"

	evdev "github.com/holoplot/go-evdev"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Evdev follows one key of a Linux input device, e.g. a gpio-keys node.
type Evdev struct {
	code    evdev.EvCode
	pressed atomic.Bool
}

// OpenEvdev opens device, which is either a /dev/input path or a device name
// as reported by the kernel, and tracks code until ctx ends.
func OpenEvdev(ctx context.Context, device string, code uint16) (*Evdev, error) {
	path, err := resolveDevice(device)
	if err != nil {
		return nil, err
	}
	dev, err := evdev.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "button: open %s", path)
	}
	name, _ := dev.Name()
	log.WithFields(log.Fields{"path": path, "name": name}).Info("[button] evdev input ready")

	e := &Evdev{code: evdev.EvCode(code)}
	go func() {
		<-ctx.Done()
		dev.Close()
	}()
	go e.readLoop(ctx, dev)
	return e, nil
}

func resolveDevice(device string) (string, error) {
	if device == "" {
		return "", errors.New("button: no evdev device configured")
	}
	if device[0] == '/' {
		return device, nil
	}
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return "", errors.Wrap(err, "button: list input devices")
	}
	for _, p := range paths {
		if p.Name == device {
			return p.Path, nil
		}
	}
	return "", errors.Errorf("button: no input device named %q", device)
}

func (e *Evdev) readLoop(ctx context.Context, dev *evdev.InputDevice) {
	for {
		ev, err := dev.ReadOne()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Debug("[button] read failed")
			time.Sleep(100 * time.Millisecond)
			continue
		}
		e.handle(ev)
	}
}

func (e *Evdev) handle(ev *evdev.InputEvent) {
	if ev.Type != evdev.EV_KEY || ev.Code != e.code {
		return
	}
	switch ev.Value {
	case 1:
		e.pressed.Store(true)
	case 0:
		e.pressed.Store(false)
	}
}

func (e *Evdev) Pressed() bool {
	return e.pressed.Load()
}
