// Package palette defines the RGB565 colors shared by the layout model, the
// renderer and the panel driver.
package palette

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Color is a 16-bit RGB565 value, the native pixel format of the TFT.
type Color uint16

const (
	Black  Color = 0x0000
	White  Color = 0xFFFF
	Red    Color = 0xF800
	Green  Color = 0x07E0
	Blue   Color = 0x001F
	Cyan   Color = 0x07FF
	Yellow Color = 0xFFE0
	Orange Color = 0xFDA0
	Grey   Color = 0x8410
)

var names = map[Color]string{
	Black:  "black",
	White:  "white",
	Red:    "red",
	Green:  "green",
	Blue:   "blue",
	Cyan:   "cyan",
	Yellow: "yellow",
	Orange: "orange",
	Grey:   "grey",
}

// RGBA implements color.Color, expanding each channel to 16 bits.
func (c Color) RGBA() (r, g, b, a uint32) {
	r8 := uint32(c>>11&0x1F) << 3
	g8 := uint32(c>>5&0x3F) << 2
	b8 := uint32(c&0x1F) << 3
	r8 |= r8 >> 5
	g8 |= g8 >> 6
	b8 |= b8 >> 5
	return r8 * 0x101, g8 * 0x101, b8 * 0x101, 0xFFFF
}

// FromColor converts any color to RGB565, dropping alpha.
func FromColor(c color.Color) Color {
	r, g, b, _ := c.RGBA()
	return Color((r>>11)<<11 | (g>>10)<<5 | b>>11)
}

// Hex returns the CSS form, e.g. "#ff0000".
func (c Color) Hex() string {
	r, g, b, _ := c.RGBA()
	return fmt.Sprintf("#%02x%02x%02x", r>>8, g>>8, b>>8)
}

func (c Color) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("0x%04X", uint16(c))
}

func (c Color) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText accepts a color name or a 0x-prefixed RGB565 value.
func (c *Color) UnmarshalText(b []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(b)))
	for v, n := range names {
		if n == s {
			*c = v
			return nil
		}
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 16)
	if err != nil {
		return errors.Errorf("palette: bad color %q", s)
	}
	*c = Color(v)
	return nil
}
