package ecu

import (
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/brutella/can"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
)

// ErrNoFrame is returned by Read when the receive queue is empty.
var ErrNoFrame = errors.New("ecu: no frame available")

const rxQueueLen = 256

// canBus is the subset of *can.Bus the SocketCAN adapter uses.
type canBus interface {
	SubscribeFunc(fn can.HandlerFunc)
	ConnectAndPublish() error
	Disconnect() error
	Publish(f can.Frame) error
}

// Seams replaced in tests.
var (
	newBus = func(iface string) (canBus, error) {
		return can.NewBusForInterfaceWithName(iface)
	}
	setBitrate = linkBitrate
)

// SocketCAN implements Bus on a Linux SocketCAN interface. Received frames
// pass the identifier filter and are queued in arrival order.
type SocketCAN struct {
	mu      sync.Mutex
	iface   string
	bus     canBus
	watch   map[uint32]struct{}
	queue   chan can.Frame
	dropped atomic.Uint64
}

func NewSocketCAN() *SocketCAN {
	return &SocketCAN{
		watch: make(map[uint32]struct{}),
		queue: make(chan can.Frame, rxQueueLen),
	}
}

// Configure records the interface name.
func (s *SocketCAN) Configure(iface string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.iface = iface
	return nil
}

// Begin reprograms the link bitrate, brings it up and opens a raw socket.
func (s *SocketCAN) Begin(bitrate uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bus != nil {
		s.bus.Disconnect()
		s.bus = nil
	}
	if err := setBitrate(s.iface, bitrate); err != nil {
		return err
	}
	bus, err := newBus(s.iface)
	if err != nil {
		return errors.Wrapf(err, "socketcan: open %s", s.iface)
	}
	bus.SubscribeFunc(s.handle)
	s.bus = bus

	go func() {
		if err := bus.ConnectAndPublish(); err != nil {
			log.Errorf("[can] %s receive loop stopped: %v", s.iface, err)
		}
	}()
	return nil
}

func (s *SocketCAN) handle(f can.Frame) {
	s.mu.Lock()
	_, ok := s.watch[f.ID]
	s.mu.Unlock()
	if !ok {
		return
	}
	select {
	case s.queue <- f:
	default:
		if n := s.dropped.Add(1); n%100 == 1 {
			log.WithField("canID", f.ID).Warnf("[can] rx queue full, %d frames dropped", n)
		}
	}
}

func (s *SocketCAN) Watch(id uint32) {
	s.mu.Lock()
	s.watch[id] = struct{}{}
	s.mu.Unlock()
}

func (s *SocketCAN) Available() bool {
	return len(s.queue) > 0
}

func (s *SocketCAN) Read() (can.Frame, error) {
	select {
	case f := <-s.queue:
		return f, nil
	default:
		return can.Frame{}, ErrNoFrame
	}
}

func (s *SocketCAN) Send(f can.Frame) error {
	s.mu.Lock()
	bus := s.bus
	s.mu.Unlock()
	if bus == nil {
		return ErrNotConnected
	}
	return errors.Wrap(bus.Publish(f), "socketcan: publish")
}

func (s *SocketCAN) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bus == nil {
		return nil
	}
	err := s.bus.Disconnect()
	s.bus = nil
	return err
}

// linkBitrate takes the interface down, sets the bitrate and brings it back
// up. The bitrate itself is applied with ip(8).
func linkBitrate(iface string, bitrate uint32) error {
	link, err := netlink.LinkByName(iface)
	if err != nil {
		return errors.Wrapf(err, "socketcan: link %s", iface)
	}
	if err := netlink.LinkSetDown(link); err != nil {
		return errors.Wrapf(err, "socketcan: down %s", iface)
	}
	out, err := exec.Command("ip", "link", "set", iface, "type", "can",
		"bitrate", strconv.FormatUint(uint64(bitrate), 10)).CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "socketcan: bitrate %d: %s", bitrate, out)
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return errors.Wrapf(err, "socketcan: up %s", iface)
	}
	return nil
}
