// Package tft drives an ST7789 SPI panel such as the 1.9" 170x320 module
// the cluster is built around.
package tft

import (
	"encoding/binary"
	"image"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// ST7789 command set used by this driver.
const (
	cmdSWRESET = 0x01
	cmdSLPOUT  = 0x11
	cmdNORON   = 0x13
	cmdINVON   = 0x21
	cmdDISPON  = 0x29
	cmdCASET   = 0x2A
	cmdRASET   = 0x2B
	cmdRAMWR   = 0x2C
	cmdMADCTL  = 0x36
	cmdCOLMOD  = 0x3A

	colmod16bit = 0x55

	// MADCTL bits: row/column exchange and column mirror give landscape.
	MadctlLandscape = 0x60

	// chunkSize bounds one SPI transfer; spidev rejects larger buffers by
	// default.
	chunkSize = 4096
)

var (
	ErrNoPin = errors.New("tft: gpio pin not found")

	// sleep is replaced in tests so the reset sequence runs instantly.
	sleep = time.Sleep
)

// Config selects the SPI port, control pins and panel geometry.
type Config struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	SPIPort   string `yaml:"spi_port" json:"spiPort"` // "" picks the first port
	SpeedMHz  int    `yaml:"speed_mhz" json:"speedMhz"`
	DCPin     string `yaml:"dc_pin" json:"dcPin"`
	ResetPin  string `yaml:"reset_pin" json:"resetPin"`
	Backlight string `yaml:"backlight_pin" json:"backlightPin"`
	Width     int    `yaml:"width" json:"width"`
	Height    int    `yaml:"height" json:"height"`
	ColOffset int    `yaml:"col_offset" json:"colOffset"`
	RowOffset int    `yaml:"row_offset" json:"rowOffset"`
	Madctl    uint8  `yaml:"madctl" json:"madctl"`
}

// DefaultConfig is the 170x320 panel mounted landscape.
func DefaultConfig() Config {
	return Config{
		SpeedMHz:  40,
		DCPin:     "GPIO25",
		ResetPin:  "GPIO27",
		Backlight: "GPIO18",
		Width:     320,
		Height:    170,
		RowOffset: 35,
		Madctl:    MadctlLandscape,
	}
}

type bus interface {
	Tx(w, r []byte) error
}

type pin interface {
	Out(l gpio.Level) error
}

// ST7789 is the panel. It implements display.Sink.
type ST7789 struct {
	bus  bus
	dc   pin
	rst  pin
	bl   pin
	cfg  Config
	buf  []byte
	port spi.PortCloser
}

// Open initialises the periph host, connects the SPI port and control pins
// and runs the panel init sequence.
func Open(cfg Config) (*ST7789, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "tft: periph host init")
	}
	port, err := spireg.Open(cfg.SPIPort)
	if err != nil {
		return nil, errors.Wrapf(err, "tft: open spi %q", cfg.SPIPort)
	}
	conn, err := port.Connect(physic.Frequency(cfg.SpeedMHz)*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, errors.Wrap(err, "tft: spi connect")
	}

	dc := gpioreg.ByName(cfg.DCPin)
	rst := gpioreg.ByName(cfg.ResetPin)
	if dc == nil || rst == nil {
		port.Close()
		return nil, errors.Wrapf(ErrNoPin, "dc=%q reset=%q", cfg.DCPin, cfg.ResetPin)
	}
	d := newST7789(conn, dc, rst, cfg)
	d.port = port
	if bl := gpioreg.ByName(cfg.Backlight); bl != nil {
		d.bl = bl
	} else if cfg.Backlight != "" {
		log.WithField("pin", cfg.Backlight).Warn("[tft] backlight pin not found")
	}

	if err := d.Init(); err != nil {
		port.Close()
		return nil, err
	}
	log.WithFields(log.Fields{
		"port":   port.String(),
		"width":  cfg.Width,
		"height": cfg.Height,
	}).Info("[tft] panel ready")
	return d, nil
}

func newST7789(b bus, dc, rst pin, cfg Config) *ST7789 {
	return &ST7789{
		bus: b,
		dc:  dc,
		rst: rst,
		cfg: cfg,
		buf: make([]byte, 0, chunkSize),
	}
}

// Init hardware-resets the panel and configures 16-bit color.
func (d *ST7789) Init() error {
	if err := d.rst.Out(gpio.High); err != nil {
		return errors.Wrap(err, "tft: reset pin")
	}
	sleep(5 * time.Millisecond)
	d.rst.Out(gpio.Low)
	sleep(20 * time.Millisecond)
	d.rst.Out(gpio.High)
	sleep(150 * time.Millisecond)

	seq := []struct {
		cmd   byte
		data  []byte
		delay time.Duration
	}{
		{cmdSWRESET, nil, 150 * time.Millisecond},
		{cmdSLPOUT, nil, 120 * time.Millisecond},
		{cmdCOLMOD, []byte{colmod16bit}, 10 * time.Millisecond},
		{cmdMADCTL, []byte{d.cfg.Madctl}, 0},
		{cmdINVON, nil, 10 * time.Millisecond},
		{cmdNORON, nil, 10 * time.Millisecond},
		{cmdDISPON, nil, 10 * time.Millisecond},
	}
	for _, s := range seq {
		if err := d.command(s.cmd, s.data...); err != nil {
			return err
		}
		if s.delay > 0 {
			sleep(s.delay)
		}
	}
	return d.Backlight(true)
}

// Backlight switches the backlight pin when one is wired.
func (d *ST7789) Backlight(on bool) error {
	if d.bl == nil {
		return nil
	}
	return errors.Wrap(d.bl.Out(gpio.Level(on)), "tft: backlight")
}

func (d *ST7789) command(cmd byte, data ...byte) error {
	if err := d.dc.Out(gpio.Low); err != nil {
		return errors.Wrap(err, "tft: dc pin")
	}
	if err := d.bus.Tx([]byte{cmd}, nil); err != nil {
		return errors.Wrapf(err, "tft: command %#02x", cmd)
	}
	if len(data) == 0 {
		return nil
	}
	return d.write(data)
}

func (d *ST7789) write(data []byte) error {
	if err := d.dc.Out(gpio.High); err != nil {
		return errors.Wrap(err, "tft: dc pin")
	}
	for len(data) > 0 {
		n := min(len(data), chunkSize)
		if err := d.bus.Tx(data[:n], nil); err != nil {
			return errors.Wrap(err, "tft: write")
		}
		data = data[n:]
	}
	return nil
}

func (d *ST7789) window(r image.Rectangle) error {
	var b [4]byte
	x0, x1 := r.Min.X+d.cfg.ColOffset, r.Max.X-1+d.cfg.ColOffset
	binary.BigEndian.PutUint16(b[0:], uint16(x0))
	binary.BigEndian.PutUint16(b[2:], uint16(x1))
	if err := d.command(cmdCASET, b[:]...); err != nil {
		return err
	}
	y0, y1 := r.Min.Y+d.cfg.RowOffset, r.Max.Y-1+d.cfg.RowOffset
	binary.BigEndian.PutUint16(b[0:], uint16(y0))
	binary.BigEndian.PutUint16(b[2:], uint16(y1))
	if err := d.command(cmdRASET, b[:]...); err != nil {
		return err
	}
	return d.command(cmdRAMWR)
}

// Blit streams the r region of img to the panel as RGB565.
func (d *ST7789) Blit(img *image.RGBA, r image.Rectangle) error {
	r = r.Intersect(img.Bounds()).Intersect(image.Rect(0, 0, d.cfg.Width, d.cfg.Height))
	if r.Empty() {
		return nil
	}
	if err := d.window(r); err != nil {
		return err
	}
	if err := d.dc.Out(gpio.High); err != nil {
		return errors.Wrap(err, "tft: dc pin")
	}

	buf := d.buf[:0]
	for y := r.Min.Y; y < r.Max.Y; y++ {
		off := img.PixOffset(r.Min.X, y)
		for x := r.Min.X; x < r.Max.X; x++ {
			p := img.Pix[off : off+4 : off+4]
			c := uint16(p[0]>>3)<<11 | uint16(p[1]>>2)<<5 | uint16(p[2]>>3)
			buf = append(buf, byte(c>>8), byte(c))
			off += 4
			if len(buf) == chunkSize {
				if err := d.bus.Tx(buf, nil); err != nil {
					return errors.Wrap(err, "tft: pixel data")
				}
				buf = buf[:0]
			}
		}
	}
	if len(buf) > 0 {
		if err := d.bus.Tx(buf, nil); err != nil {
			return errors.Wrap(err, "tft: pixel data")
		}
	}
	return nil
}

// Close turns the backlight off and releases the SPI port.
func (d *ST7789) Close() error {
	d.Backlight(false)
	if d.port == nil {
		return nil
	}
	return d.port.Close()
}
