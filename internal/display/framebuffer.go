// Package display implements the renderer's drawing surface in memory. The
// framebuffer tracks which region changed since the last flush and hands
// only that region to the panel driver.
package display

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"
	"sync"

	"github.com/llgcode/draw2d/draw2dimg"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/shaunagostinho/gaugedash/internal/palette"
	"github.com/shaunagostinho/gaugedash/internal/render"
)

const mediumSize = 24

// Sink receives the changed region of the frame. The TFT driver is one.
type Sink interface {
	Blit(img *image.RGBA, r image.Rectangle) error
}

// Framebuffer is a render.Display backed by an image.RGBA.
type Framebuffer struct {
	canvas
	dirty image.Rectangle
	sink  Sink
}

// New allocates a w x h framebuffer. sink may be nil when nothing is
// attached, e.g. when the frame is only served over HTTP.
func New(w, h int, sink Sink) (*Framebuffer, error) {
	faces, err := loadFaces()
	if err != nil {
		return nil, err
	}
	fb := &Framebuffer{sink: sink}
	fb.canvas = canvas{
		img:   image.NewRGBA(image.Rect(0, 0, w, h)),
		faces: faces,
		mu:    &sync.Mutex{},
		mark:  fb.markDirty,
	}
	return fb, nil
}

func loadFaces() ([]font.Face, error) {
	ttf, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, errors.Wrap(err, "display: parse go bold")
	}
	medium, err := opentype.NewFace(ttf, &opentype.FaceOptions{
		Size:    mediumSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, errors.Wrap(err, "display: medium face")
	}
	return []font.Face{render.FontSmall: basicfont.Face7x13, render.FontMedium: medium}, nil
}

func (fb *Framebuffer) markDirty(r image.Rectangle) {
	fb.dirty = fb.dirty.Union(r.Intersect(fb.img.Bounds()))
}

// NewSprite allocates an off-screen buffer sharing the framebuffer's fonts.
func (fb *Framebuffer) NewSprite(w, h int) render.Sprite {
	return &Sprite{
		canvas: canvas{
			img:   image.NewRGBA(image.Rect(0, 0, w, h)),
			faces: fb.faces,
		},
		fb: fb,
	}
}

// Dirty reports the region changed since the last Flush.
func (fb *Framebuffer) Dirty() image.Rectangle {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.dirty
}

// Flush sends the dirty region to the sink and clears it.
func (fb *Framebuffer) Flush() error {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	r := fb.dirty
	if r.Empty() {
		return nil
	}
	fb.dirty = image.Rectangle{}
	if fb.sink == nil {
		return nil
	}
	if err := fb.sink.Blit(fb.img, r); err != nil {
		return errors.Wrapf(err, "display: flush %v", r)
	}
	log.WithField("rect", r).Trace("[display] flushed")
	return nil
}

// Image returns a copy of the current frame.
func (fb *Framebuffer) Image() *image.RGBA {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	out := image.NewRGBA(fb.img.Bounds())
	copy(out.Pix, fb.img.Pix)
	return out
}

// Sprite is an off-screen buffer pushed to its framebuffer in one blit.
type Sprite struct {
	canvas
	fb *Framebuffer
}

func (s *Sprite) Push(x, y int) {
	fb := s.fb
	fb.mu.Lock()
	defer fb.mu.Unlock()

	r := s.img.Bounds().Add(image.Pt(x, y))
	draw.Draw(fb.img, r, s.img, image.Point{}, draw.Src)
	fb.markDirty(r)
}

// canvas holds the drawing primitives shared by the framebuffer and its
// sprites. Sprites have no lock and no dirty tracking.
type canvas struct {
	img   *image.RGBA
	faces []font.Face
	mu    *sync.Mutex
	mark  func(image.Rectangle)
}

func (c *canvas) lock() func() {
	if c.mu == nil {
		return func() {}
	}
	c.mu.Lock()
	return c.mu.Unlock
}

func (c *canvas) touched(r image.Rectangle) {
	if c.mark != nil {
		c.mark(r)
	}
}

func (c *canvas) Size() (int, int) {
	b := c.img.Bounds()
	return b.Dx(), b.Dy()
}

func (c *canvas) FillScreen(col palette.Color) {
	defer c.lock()()
	draw.Draw(c.img, c.img.Bounds(), image.NewUniform(col), image.Point{}, draw.Src)
	c.touched(c.img.Bounds())
}

func (c *canvas) FillRect(x, y, w, h int, col palette.Color) {
	defer c.lock()()
	r := image.Rect(x, y, x+w, y+h).Intersect(c.img.Bounds())
	draw.Draw(c.img, r, image.NewUniform(col), image.Point{}, draw.Src)
	c.touched(r)
}

func (c *canvas) FillRoundRect(x, y, w, h, radius int, col palette.Color) {
	defer c.lock()()
	gc := draw2dimg.NewGraphicContext(c.img)
	gc.SetFillColor(col)
	roundedRect(gc, float64(x), float64(y), float64(w), float64(h), float64(radius))
	gc.Fill()
	c.touched(image.Rect(x, y, x+w, y+h))
}

func (c *canvas) DrawRoundRect(x, y, w, h, radius int, col palette.Color) {
	defer c.lock()()
	gc := draw2dimg.NewGraphicContext(c.img)
	gc.SetStrokeColor(col)
	gc.SetLineWidth(1)
	// stroke along pixel centres so the outline stays inside the box
	roundedRect(gc, float64(x)+0.5, float64(y)+0.5, float64(w-1), float64(h-1), float64(radius))
	gc.Stroke()
	c.touched(image.Rect(x, y, x+w, y+h))
}

func roundedRect(gc *draw2dimg.GraphicContext, x, y, w, h, r float64) {
	gc.BeginPath()
	gc.MoveTo(x+r, y)
	gc.LineTo(x+w-r, y)
	gc.ArcTo(x+w-r, y+r, r, r, -math.Pi/2, math.Pi/2)
	gc.LineTo(x+w, y+h-r)
	gc.ArcTo(x+w-r, y+h-r, r, r, 0, math.Pi/2)
	gc.LineTo(x+r, y+h)
	gc.ArcTo(x+r, y+h-r, r, r, math.Pi/2, math.Pi/2)
	gc.LineTo(x, y+r)
	gc.ArcTo(x+r, y+r, r, r, math.Pi, math.Pi/2)
	gc.Close()
}

func (c *canvas) face(f render.Font) font.Face {
	if int(f) < len(c.faces) && c.faces[f] != nil {
		return c.faces[f]
	}
	return basicfont.Face7x13
}

func (c *canvas) DrawString(s string, x, y int, f render.Font, d render.Datum, col palette.Color) {
	defer c.lock()()
	c.drawString(s, x, y, f, d, col)
}

func (c *canvas) drawString(s string, x, y int, f render.Font, d render.Datum, col palette.Color) {
	face := c.face(f)
	dr := &font.Drawer{Dst: c.img, Src: image.NewUniform(color.Color(col)), Face: face}

	m := face.Metrics()
	w := dr.MeasureString(s).Round()
	h := m.Ascent.Round() + m.Descent.Round()

	switch d {
	case render.TopCenter:
		x -= w / 2
	case render.TopRight:
		x -= w
	case render.MiddleCenter:
		x -= w / 2
		y -= h / 2
	}
	dr.Dot = fixed.P(x, y+m.Ascent.Round())
	dr.DrawString(s)
	c.touched(image.Rect(x, y, x+w, y+h))
}

func (c *canvas) DrawNumber(n int64, x, y int, f render.Font, d render.Datum, col palette.Color) {
	c.DrawString(strconv.FormatInt(n, 10), x, y, f, d, col)
}

func (c *canvas) DrawFloat(v float64, decimals int, x, y int, f render.Font, d render.Datum, col palette.Color) {
	c.DrawString(strconv.FormatFloat(v, 'f', decimals, 64), x, y, f, d, col)
}

func (c *canvas) DrawImage(src image.Image, x, y int) {
	defer c.lock()()
	b := src.Bounds()
	r := image.Rect(x, y, x+b.Dx(), y+b.Dy())
	draw.Draw(c.img, r, src, b.Min, draw.Over)
	c.touched(r)
}
