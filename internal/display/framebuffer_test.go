package display

import (
	"image"
	"image/color"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunagostinho/gaugedash/internal/palette"
	"github.com/shaunagostinho/gaugedash/internal/render"
)

type sinkStub struct {
	rects []image.Rectangle
	err   error
}

func (s *sinkStub) Blit(img *image.RGBA, r image.Rectangle) error {
	s.rects = append(s.rects, r)
	return s.err
}

func newFB(t *testing.T, sink Sink) *Framebuffer {
	t.Helper()
	fb, err := New(320, 170, sink)
	require.NoError(t, err)
	return fb
}

func rgba(c palette.Color) color.RGBA {
	return color.RGBAModel.Convert(c).(color.RGBA)
}

func TestFillRectMarksDirtyAndFlushes(t *testing.T) {
	sink := &sinkStub{}
	fb := newFB(t, sink)

	fb.FillRect(10, 20, 30, 5, palette.Red)
	assert.Equal(t, image.Rect(10, 20, 40, 25), fb.Dirty())
	assert.Equal(t, rgba(palette.Red), fb.img.RGBAAt(15, 22))

	require.NoError(t, fb.Flush())
	require.Len(t, sink.rects, 1)
	assert.Equal(t, image.Rect(10, 20, 40, 25), sink.rects[0])
	assert.True(t, fb.Dirty().Empty())

	require.NoError(t, fb.Flush())
	assert.Len(t, sink.rects, 1, "nothing dirty, nothing sent")
}

func TestDirtyRegionIsUnion(t *testing.T) {
	fb := newFB(t, nil)
	fb.FillRect(0, 0, 10, 10, palette.White)
	fb.FillRect(300, 160, 40, 40, palette.White)
	assert.Equal(t, image.Rect(0, 0, 320, 170), fb.Dirty(), "clipped to the screen")
	assert.NoError(t, fb.Flush())
}

func TestFlushError(t *testing.T) {
	sink := &sinkStub{err: errors.New("spi gone")}
	fb := newFB(t, sink)
	fb.FillScreen(palette.Black)
	assert.Error(t, fb.Flush())
}

func TestSpritePush(t *testing.T) {
	fb := newFB(t, nil)
	s := fb.NewSprite(8, 4)
	s.FillScreen(palette.Green)
	assert.True(t, fb.Dirty().Empty(), "sprite drawing stays off screen")

	s.Push(100, 50)
	assert.Equal(t, image.Rect(100, 50, 108, 54), fb.Dirty())
	assert.Equal(t, rgba(palette.Green), fb.img.RGBAAt(107, 53))
	assert.Equal(t, color.RGBA{}, fb.img.RGBAAt(108, 53))
}

func TestDrawStringDatums(t *testing.T) {
	fb := newFB(t, nil)

	fb.DrawString("88", 160, 40, render.FontMedium, render.TopCenter, palette.White)
	d := fb.Dirty()
	assert.Less(t, d.Min.X, 160)
	assert.Greater(t, d.Max.X, 160)
	assert.Equal(t, 40, d.Min.Y)
	require.NoError(t, fb.Flush())

	fb.DrawNumber(1234, 300, 100, render.FontSmall, render.TopRight, palette.White)
	d = fb.Dirty()
	assert.Equal(t, 300, d.Max.X)
	assert.Equal(t, 300-4*7, d.Min.X, "basic face is 7px wide")
	require.NoError(t, fb.Flush())

	fb.DrawFloat(14.7, 1, 50, 160, render.FontSmall, render.MiddleCenter, palette.White)
	d = fb.Dirty()
	assert.Less(t, d.Min.Y, 160)
}

func TestRoundRects(t *testing.T) {
	fb := newFB(t, nil)
	fb.FillRoundRect(3, 150, 50, 18, 8, palette.Orange)
	assert.Equal(t, rgba(palette.Orange), fb.img.RGBAAt(28, 159), "interior filled")
	assert.Equal(t, color.RGBA{}, fb.img.RGBAAt(3, 150), "corner cut off")

	fb.FillScreen(palette.Black)
	fb.DrawRoundRect(3, 150, 50, 18, 3, palette.White)
	assert.Equal(t, rgba(palette.Black), fb.img.RGBAAt(28, 159), "outline leaves the interior")
	assert.NotEqual(t, rgba(palette.Black), fb.img.RGBAAt(28, 150), "top edge stroked")
	assert.Equal(t, image.Rect(0, 0, 320, 170), fb.Dirty())
}

func TestDrawImageAndSnapshot(t *testing.T) {
	fb := newFB(t, nil)
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	src.Set(1, 1, color.RGBA{R: 255, A: 255})
	fb.DrawImage(src, 10, 10)
	assert.Equal(t, color.RGBA{R: 255, A: 255}, fb.img.RGBAAt(11, 11))

	snap := fb.Image()
	fb.FillScreen(palette.White)
	assert.Equal(t, color.RGBA{R: 255, A: 255}, snap.RGBAAt(11, 11), "snapshot is a copy")
}

func TestFramebufferIsRenderDisplay(t *testing.T) {
	var _ render.Display = newFB(t, nil)
}
