// Package layout models which telemetry channels appear where on the gauge
// cluster, and persists that model in the settings store.
package layout

import (
	"image"
	"strings"

	"github.com/pkg/errors"

	"github.com/shaunagostinho/gaugedash/internal/palette"
	"github.com/shaunagostinho/gaugedash/internal/telemetry"
)

const (
	MaxPanels     = 9
	MaxIndicators = 8

	// ExpectedIndicators is the enabled-indicator count a stored layout must
	// carry to be accepted. Layouts written by older firmware fail this check
	// and are replaced on load.
	ExpectedIndicators = 6
)

// Coordinates maps a panel position to its top-left pixel on a 320x170
// screen: four panels on the top row, five on the bottom row.
var Coordinates = [MaxPanels]image.Point{
	{0, 10}, {70, 10}, {145, 10}, {245, 10},
	{0, 80}, {74, 80}, {138, 80}, {202, 80}, {256, 80},
}

// Point returns the screen origin of a position. Positions outside the table
// report false and are not drawn.
func Point(pos uint8) (image.Point, bool) {
	if int(pos) >= len(Coordinates) {
		return image.Point{}, false
	}
	return Coordinates[pos], true
}

// Kind is the numeric format of a panel value.
type Kind uint8

const (
	KindInt Kind = iota
	KindUnsigned
	KindFloat
)

var kindNames = []string{"int", "uint", "float"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "int"
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	s := strings.ToLower(string(b))
	for i, n := range kindNames {
		if n == s {
			*k = Kind(i)
			return nil
		}
	}
	return errors.Errorf("layout: unknown kind %q", s)
}

// Panel binds one channel to a screen position.
type Panel struct {
	Position uint8             `json:"position"`
	Channel  telemetry.Channel `json:"channel"`
	Kind     Kind              `json:"kind"`
	Decimals uint8             `json:"decimals"`
	Enabled  bool              `json:"enabled"`
	Label    string            `json:"label"`
	Unit     string            `json:"unit"`
	Color    palette.Color     `json:"color"`
}

// IndicatorSlot binds one status bit to a slot in the indicator row.
type IndicatorSlot struct {
	Position  uint8               `json:"position"`
	Indicator telemetry.Indicator `json:"indicator"`
	Enabled   bool                `json:"enabled"`
	Label     string              `json:"label"`
}

// Configuration is the complete screen layout.
type Configuration struct {
	Panels           [MaxPanels]Panel             `json:"panels"`
	Indicators       [MaxIndicators]IndicatorSlot `json:"indicators"`
	ActivePanels     uint8                        `json:"activePanels"`
	ActiveIndicators uint8                        `json:"activeIndicators"`
	RPMMode          uint8                        `json:"rpmMode"`
	ShowIndicators   bool                         `json:"showIndicators"`
	CanSpeed         uint32                       `json:"canSpeed"`
}

// Valid applies the load-time acceptance check.
func (c *Configuration) Valid() bool {
	return c.ActivePanels <= MaxPanels &&
		c.ActiveIndicators <= MaxIndicators &&
		c.ActiveIndicators == ExpectedIndicators
}

// ActivePanelList returns the configured panels, bounded by capacity.
func (c *Configuration) ActivePanelList() []Panel {
	n := int(c.ActivePanels)
	if n > MaxPanels {
		n = MaxPanels
	}
	return c.Panels[:n]
}

// ActiveIndicatorList returns the configured indicators, bounded by capacity.
func (c *Configuration) ActiveIndicatorList() []IndicatorSlot {
	n := int(c.ActiveIndicators)
	if n > MaxIndicators {
		n = MaxIndicators
	}
	return c.Indicators[:n]
}

func (c *Configuration) addPanel(position uint8, label string, ch telemetry.Channel, enabled bool, decimals uint8) bool {
	if c.ActivePanels >= MaxPanels {
		return false
	}
	kind := KindInt
	if decimals > 0 {
		kind = KindFloat
	}
	c.Panels[c.ActivePanels] = Panel{
		Position: position,
		Channel:  ch,
		Kind:     kind,
		Decimals: decimals,
		Enabled:  enabled,
		Label:    truncate(label, labelLen),
		Color:    palette.White,
	}
	c.ActivePanels++
	return true
}

func (c *Configuration) addIndicator(position uint8, label string, ind telemetry.Indicator, enabled bool) bool {
	if c.ActiveIndicators >= MaxIndicators {
		return false
	}
	c.Indicators[c.ActiveIndicators] = IndicatorSlot{
		Position:  position,
		Indicator: ind,
		Enabled:   enabled,
		Label:     truncate(label, labelLen),
	}
	c.ActiveIndicators++
	return true
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
