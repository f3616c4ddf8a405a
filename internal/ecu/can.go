package ecu

import (
	"fmt"
	"time"

	"github.com/brutella/can"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/shaunagostinho/gaugedash/internal/layout"
)

// Bus is the CAN controller the transport drives. Reads never block:
// callers check Available before Read.
type Bus interface {
	// Configure binds the bus to a network interface such as "can0".
	Configure(iface string) error
	// Begin starts the controller at bitrate bits/s.
	Begin(bitrate uint32) error
	// Watch admits frames with this identifier into the receive queue.
	Watch(id uint32)
	Available() bool
	Read() (can.Frame, error)
	Send(f can.Frame) error
	Close() error
}

// SpeedStore persists the bus speed the transport settled on.
type SpeedStore interface {
	CanSpeed() uint32
	SetCanSpeed(bps uint32)
}

// ErrBusStart is returned when the bus fails at every candidate speed.
var ErrBusStart = errors.New("ecu: CAN bus failed to start at any speed")

const (
	testFrameID    = 0x123
	reportInterval = 5 * time.Second
)

type CANConfig struct {
	Interface string `yaml:"interface" json:"interface"`
}

// CANTransport ingests the ECU's broadcast stream from a CAN bus.
type CANTransport struct {
	bus    Bus
	speeds SpeedStore
	dec    *Decoder
	iface  string

	bitrate    uint32
	open       bool
	lastReport time.Time
	lastFrames uint64
	now        func() time.Time
}

func NewCAN(bus Bus, speeds SpeedStore, dec *Decoder, cfg CANConfig) *CANTransport {
	if cfg.Interface == "" {
		cfg.Interface = "can0"
	}
	return &CANTransport{
		bus:    bus,
		speeds: speeds,
		dec:    dec,
		iface:  cfg.Interface,
		now:    time.Now,
	}
}

func (c *CANTransport) Name() string { return "can" }

// Bitrate returns the speed the bus started at, or 0 before Open.
func (c *CANTransport) Bitrate() uint32 { return c.bitrate }

// Open starts the bus, registers the receive filters and sends one test
// frame.
func (c *CANTransport) Open() error {
	if err := c.bus.Configure(c.iface); err != nil {
		return errors.Wrapf(err, "ecu: configure %s", c.iface)
	}
	bitrate, err := c.begin()
	if err != nil {
		return err
	}
	c.bitrate = bitrate

	for _, id := range IDs() {
		c.bus.Watch(id)
	}

	test := can.Frame{ID: testFrameID, Length: 8}
	for i := range test.Data {
		test.Data[i] = uint8(i)
	}
	if err := c.bus.Send(test); err != nil {
		log.Warnf("[can] test frame failed: %v", err)
	} else {
		log.Debug("[can] test frame sent")
	}

	c.open = true
	c.lastReport = c.now()
	log.Infof("[can] %s started at %d bps, %d filters", c.iface, bitrate, len(rules))
	return nil
}

// begin tries the stored speed first, then each supported speed in order.
// The first fallback that works is persisted.
func (c *CANTransport) begin() (uint32, error) {
	primary := c.speeds.CanSpeed()
	err := c.bus.Begin(primary)
	if err == nil {
		return primary, nil
	}
	log.Warnf("[can] start at %d bps failed: %v", primary, err)

	for _, bps := range layout.SupportedSpeeds {
		if bps == primary {
			continue
		}
		if err := c.bus.Begin(bps); err != nil {
			log.Warnf("[can] start at %d bps failed: %v", bps, err)
			continue
		}
		c.speeds.SetCanSpeed(bps)
		log.Infof("[can] fell back to %d bps", bps)
		return bps, nil
	}
	return 0, ErrBusStart
}

// Poll decodes at most one queued frame.
func (c *CANTransport) Poll() error {
	if !c.open {
		return ErrNotConnected
	}
	defer c.report()

	if !c.bus.Available() {
		return nil
	}
	f, err := c.bus.Read()
	if err != nil {
		log.Warnf("[can] read failed: %v", err)
		return errors.Wrap(err, "ecu: read frame")
	}
	if _, err := c.dec.Decode(f); err != nil {
		log.WithField("canID", fmt.Sprintf("0x%03X", f.ID)).Debug(err)
		return err
	}
	return nil
}

func (c *CANTransport) report() {
	now := c.now()
	elapsed := now.Sub(c.lastReport)
	if elapsed < reportInterval {
		return
	}
	frames := c.dec.Frames()
	rate := float64(frames-c.lastFrames) / elapsed.Seconds()
	log.WithFields(log.Fields{
		"frames": frames,
		"rate":   fmt.Sprintf("%.1f/s", rate),
	}).Info("[can] ingest")
	c.lastReport = now
	c.lastFrames = frames
}

func (c *CANTransport) Close() error {
	c.open = false
	return c.bus.Close()
}
