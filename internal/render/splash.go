package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"runtime"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/shaunagostinho/gaugedash/internal/palette"
)

const (
	logoW, logoH = 180, 57
	SplashHold   = 2 * time.Second
)

// Splash shows the boot screen for hold, then clears it. A logo that fails
// to rasterise is logged and left out.
func Splash(ctx context.Context, d Display, logoSVG []byte, version string, hold time.Duration) {
	w, h := d.Size()
	cx, cy := w/2, h/2-35

	d.FillScreen(palette.Black)
	d.DrawString("Made for", cx-20, cy-8, FontSmall, TopCenter, palette.White)

	if logo, err := RasterizeSVG(logoSVG, logoW, logoH); err != nil {
		log.WithError(err).Warn("[splash] logo skipped")
	} else {
		d.DrawImage(logo, (w-logoW)/2, cy)
	}

	line := fmt.Sprintf("gaugedash %s on %s/%s", version, runtime.GOOS, runtime.GOARCH)
	d.DrawString(line, cx, h-15, FontSmall, TopCenter, palette.White)

	select {
	case <-ctx.Done():
	case <-time.After(hold):
	}
	d.FillScreen(palette.Black)
}

// RasterizeSVG renders an SVG document into a w x h image.
func RasterizeSVG(data []byte, w, h int) (*image.RGBA, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "render: parse svg")
	}
	if icon.ViewBox.W <= 0 || icon.ViewBox.H <= 0 {
		return nil, errors.New("render: svg has no viewBox")
	}
	icon.SetTarget(0, 0, float64(w), float64(h))

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	scanner := rasterx.NewScannerGV(w, h, img, img.Bounds())
	dasher := rasterx.NewDasher(w, h, scanner)
	icon.Draw(dasher, 1.0)
	return img, nil
}
