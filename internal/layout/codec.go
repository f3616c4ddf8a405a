package layout

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/shaunagostinho/gaugedash/internal/palette"
	"github.com/shaunagostinho/gaugedash/internal/telemetry"
)

const (
	labelLen = 10
	unitLen  = 6
)

// On-storage records. Every field is fixed size so binary.Size is constant
// and a blank (0xFF) or zeroed image decodes without error and then fails
// Valid.
type panelRecord struct {
	Channel  uint8
	Kind     uint8
	Position uint8
	Decimals uint8
	Enabled  uint8
	Label    [labelLen]byte
	Unit     [unitLen]byte
	Color    uint16
}

type indicatorRecord struct {
	Indicator uint8
	Position  uint8
	Enabled   uint8
	Label     [labelLen]byte
}

type configRecord struct {
	Panels           [MaxPanels]panelRecord
	Indicators       [MaxIndicators]indicatorRecord
	ActivePanels     uint8
	ActiveIndicators uint8
	RPMMode          uint8
	ShowIndicators   uint8
	CanSpeed         uint32
}

// BlockSize is the number of bytes a Configuration occupies in storage.
var BlockSize = binary.Size(configRecord{})

func encode(c *Configuration) ([]byte, error) {
	var rec configRecord
	for i, p := range c.Panels {
		rec.Panels[i] = panelRecord{
			Channel:  uint8(p.Channel),
			Kind:     uint8(p.Kind),
			Position: p.Position,
			Decimals: p.Decimals,
			Enabled:  boolByte(p.Enabled),
			Color:    uint16(p.Color),
		}
		copy(rec.Panels[i].Label[:], p.Label)
		copy(rec.Panels[i].Unit[:], p.Unit)
	}
	for i, ind := range c.Indicators {
		rec.Indicators[i] = indicatorRecord{
			Indicator: uint8(ind.Indicator),
			Position:  ind.Position,
			Enabled:   boolByte(ind.Enabled),
		}
		copy(rec.Indicators[i].Label[:], ind.Label)
	}
	rec.ActivePanels = c.ActivePanels
	rec.ActiveIndicators = c.ActiveIndicators
	rec.RPMMode = c.RPMMode
	rec.ShowIndicators = boolByte(c.ShowIndicators)
	rec.CanSpeed = c.CanSpeed

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &rec); err != nil {
		return nil, errors.Wrap(err, "layout: encode")
	}
	return buf.Bytes(), nil
}

func decode(b []byte) (Configuration, error) {
	var rec configRecord
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, &rec); err != nil {
		return Configuration{}, errors.Wrap(err, "layout: decode")
	}

	var c Configuration
	for i, p := range rec.Panels {
		c.Panels[i] = Panel{
			Position: p.Position,
			Channel:  telemetry.Channel(p.Channel),
			Kind:     Kind(p.Kind),
			Decimals: p.Decimals,
			Enabled:  p.Enabled == 1,
			Label:    cString(p.Label[:]),
			Unit:     cString(p.Unit[:]),
			Color:    palette.Color(p.Color),
		}
	}
	for i, ind := range rec.Indicators {
		c.Indicators[i] = IndicatorSlot{
			Position:  ind.Position,
			Indicator: telemetry.Indicator(ind.Indicator),
			Enabled:   ind.Enabled == 1,
			Label:     cString(ind.Label[:]),
		}
	}
	c.ActivePanels = rec.ActivePanels
	c.ActiveIndicators = rec.ActiveIndicators
	c.RPMMode = rec.RPMMode
	c.ShowIndicators = rec.ShowIndicators == 1
	c.CanSpeed = rec.CanSpeed
	return c, nil
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// cString trims at the first NUL or erased byte.
func cString(b []byte) string {
	for i, c := range b {
		if c == 0 || c == 0xFF {
			return string(b[:i])
		}
	}
	return string(b)
}
