package render

import (
	"image"

	"github.com/shaunagostinho/gaugedash/internal/palette"
)

// Font selects one of the display's text faces.
type Font int

const (
	FontSmall  Font = iota // 7x13 labels
	FontMedium             // panel values
)

// Datum is the text anchor relative to the draw coordinate.
type Datum int

const (
	TopLeft Datum = iota
	TopCenter
	TopRight
	MiddleCenter
)

// Canvas is the set of primitives the renderer draws with. Calls cannot
// fail; out-of-bounds drawing is clipped.
type Canvas interface {
	Size() (w, h int)
	FillScreen(c palette.Color)
	FillRect(x, y, w, h int, c palette.Color)
	FillRoundRect(x, y, w, h, r int, c palette.Color)
	DrawRoundRect(x, y, w, h, r int, c palette.Color)
	DrawString(s string, x, y int, f Font, d Datum, c palette.Color)
	DrawNumber(n int64, x, y int, f Font, d Datum, c palette.Color)
	DrawFloat(v float64, decimals int, x, y int, f Font, d Datum, c palette.Color)
	DrawImage(img image.Image, x, y int)
}

// Sprite is an off-screen buffer. It is composed completely, then pushed to
// the display in one blit so a value never flickers half drawn.
type Sprite interface {
	Canvas
	Push(x, y int)
}

// Display is the physical screen plus its sprite allocator.
type Display interface {
	Canvas
	NewSprite(w, h int) Sprite
}
