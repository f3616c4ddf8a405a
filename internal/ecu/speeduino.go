package ecu

import (
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"github.com/shaunagostinho/gaugedash/internal/telemetry"
)

// port is the part of serial.Port the link uses.
type port interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
	SetReadTimeout(t time.Duration) error
}

var openPort = func(path string, mode *serial.Mode) (port, error) {
	return serial.Open(path, mode)
}

// Speeduino is the legacy serial transport. It polls the ECU's secondary
// serial port with the plain 'r' command and decodes the realtime block.
//
// A failed or late response zeroes the telemetry state. The CAN path keeps
// stale values instead; the two policies are deliberately different.
type Speeduino struct {
	portPath string
	baudRate int
	canID    byte
	timeout  time.Duration

	mu        sync.Mutex
	port      port
	connected bool

	dec   *SerialDecoder
	state *telemetry.State
}

// SpeeduinoConfig holds connection configuration for the serial transport.
type SpeeduinoConfig struct {
	PortPath string        `yaml:"port_path" json:"portPath"`
	BaudRate int           `yaml:"baud_rate" json:"baudRate"`
	CanID    byte          `yaml:"can_id" json:"canId"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"` // per request cycle
}

const (
	rCommandType = 0x30
	realtimeSize = 130 // realtime block bytes requested via 'r'

	drainSilence = 100 * time.Millisecond
	drainTimeout = 1500 * time.Millisecond
)

// Delay required after opening the port before the ECU answers.
var postOpenDelay = 1 * time.Second

// NewSpeeduino creates the serial transport writing into state.
func NewSpeeduino(cfg SpeeduinoConfig, state *telemetry.State) *Speeduino {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 50 * time.Millisecond
	}
	return &Speeduino{
		portPath: cfg.PortPath,
		baudRate: cfg.BaudRate,
		canID:    cfg.CanID,
		timeout:  cfg.Timeout,
		dec:      NewSerialDecoder(state),
		state:    state,
	}
}

func (s *Speeduino) Name() string { return "serial" }

// Open opens the port 8N1 and drains whatever the ECU printed at boot.
func (s *Speeduino) Open() error {
	mode := &serial.Mode{
		BaudRate: s.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := openPort(s.portPath, mode)
	if err != nil {
		return errors.Wrapf(err, "speeduino: open %s", s.portPath)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.port = p
	log.Infof("[serial] opened %s at %d baud", s.portPath, s.baudRate)

	time.Sleep(postOpenDelay)
	s.drainSerial()
	s.connected = true
	return nil
}

// drainSerial discards input until the line has been silent for a while.
func (s *Speeduino) drainSerial() {
	s.port.ResetInputBuffer()
	s.port.SetReadTimeout(drainSilence)

	total := 0
	deadline := time.Now().Add(drainTimeout)
	buf := make([]byte, 256)
	for time.Now().Before(deadline) {
		n, _ := s.port.Read(buf)
		if n == 0 {
			break
		}
		total += n
	}
	if total > 0 {
		log.Debugf("[serial] drained %d bytes", total)
	}
	s.port.SetReadTimeout(s.timeout)
}

// Poll runs one request cycle. Any failure resets every telemetry field to
// zero until the next good response.
func (s *Speeduino) Poll() error {
	resp, err := s.Request()
	if err != nil {
		s.state.Reset()
		return err
	}
	s.dec.Decode(resp)
	return nil
}

// Request sends the 'r' command and reads the realtime block within the
// configured timeout.
func (s *Speeduino) Request() (Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected || s.port == nil {
		return nil, ErrNotConnected
	}
	s.port.ResetInputBuffer()

	length := uint16(realtimeSize)
	cmd := []byte{
		'r',
		s.canID,
		rCommandType,
		0, 0, // offset
		byte(length & 0xFF), byte(length >> 8),
	}
	if _, err := s.port.Write(cmd); err != nil {
		return nil, errors.Wrap(err, "speeduino: write")
	}

	// echo('r') + type(0x30) + data
	resp := make([]byte, 2+int(length))
	if err := s.readExact(resp, s.timeout); err != nil {
		return nil, errors.Wrap(err, "speeduino: r-cmd")
	}
	if resp[0] != 'r' {
		return nil, errors.Errorf("speeduino: unexpected echo 0x%02X", resp[0])
	}
	if resp[1] != rCommandType {
		return nil, errors.Errorf("speeduino: unexpected r-type 0x%02X", resp[1])
	}
	return Response(resp[2:]), nil
}

func (s *Speeduino) readExact(buf []byte, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	got := 0
	for got < len(buf) && time.Now().Before(deadline) {
		n, err := s.port.Read(buf[got:])
		if err != nil && n == 0 {
			return errors.Wrapf(err, "read after %d/%d bytes", got, len(buf))
		}
		got += n
	}
	if got < len(buf) {
		return errors.Errorf("incomplete: got %d bytes, want %d", got, len(buf))
	}
	return nil
}

func (s *Speeduino) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	if s.port != nil {
		err := s.port.Close()
		s.port = nil
		return err
	}
	return nil
}
