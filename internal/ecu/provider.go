package ecu

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Transport is the interface every telemetry ingestion path implements.
// Only one transport feeds the telemetry state at a time.
type Transport interface {
	// Name returns the human-readable name of this transport.
	Name() string
	// Open brings the link up. A failed Open leaves ingestion disabled.
	Open() error
	// Poll performs one ingestion pass and never blocks for long: the CAN
	// path decodes at most one queued frame, the serial path runs one
	// request/response cycle under its timeout.
	Poll() error
	// Close releases the underlying device.
	Close() error
}

// ErrNotConnected is returned by Poll before a successful Open.
var ErrNotConnected = errors.New("ecu: not connected")

// Mode selects the transport. The numeric values are what the settings store
// keeps at its transport byte.
type Mode uint8

const (
	ModeCAN    Mode = 0
	ModeSerial Mode = 1
)

func (m Mode) String() string {
	if m == ModeSerial {
		return "serial"
	}
	return "can"
}

// ModeFromByte maps a stored byte to a Mode. Anything other than the serial
// value, including erased storage, selects CAN.
func ModeFromByte(b byte) Mode {
	if b == byte(ModeSerial) {
		return ModeSerial
	}
	return ModeCAN
}

// ParseMode accepts "can" or "serial".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "can":
		return ModeCAN, nil
	case "serial":
		return ModeSerial, nil
	}
	return ModeCAN, errors.Errorf("ecu: unknown mode %q", s)
}

// Run polls t every interval until ctx is cancelled. Poll errors are logged
// at debug level; the transport has already applied its own failure policy.
func Run(ctx context.Context, t Transport, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Infof("[%s] ingestion running every %v", t.Name(), interval)
	for {
		select {
		case <-ctx.Done():
			if err := t.Close(); err != nil {
				log.Warnf("[%s] close: %v", t.Name(), err)
			}
			return
		case <-ticker.C:
			if err := t.Poll(); err != nil {
				log.WithField("transport", t.Name()).Debug(err)
			}
		}
	}
}
