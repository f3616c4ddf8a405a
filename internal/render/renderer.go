// Package render draws the gauge cluster. Only what changed since the last
// pass is redrawn, and panel and indicator updates are rate limited so the
// SPI bus is not saturated by telemetry that changes every millisecond.
package render

import (
	"image"
	"math"
	"sync/atomic"
	"time"

	"github.com/shaunagostinho/gaugedash/internal/layout"
	"github.com/shaunagostinho/gaugedash/internal/palette"
	"github.com/shaunagostinho/gaugedash/internal/telemetry"
)

const (
	panelInterval     = 50 * time.Millisecond
	indicatorInterval = 100 * time.Millisecond

	labelW, labelH = 50, 18
	rpmW, rpmH     = 72, 40
	intW, intH     = 64, 38
	floatW, floatH = 70, 38

	labelOffsetX  = 10
	labelTextTop  = 3
	valueOffsetY  = 20
	valueTextTop  = 4
	rpmTextInset  = 2
	screenW       = 320
	indicatorRowH = 20

	indicatorY        = 150
	indicatorW        = 50
	indicatorH        = 18
	indicatorRadius   = 3
	indicatorMargin   = 3
	indicatorSpacing  = 2
	maxIndicatorSlots = 6
)

// LayoutSource supplies the current screen layout.
type LayoutSource interface {
	Config() layout.Configuration
}

// Renderer performs differential render passes against a Display.
//
// Setup and Draw must be called from one goroutine. ForceRefresh, Relayout
// and SetFullColor may be called from any goroutine.
type Renderer struct {
	disp   Display
	layout LayoutSource
	state  *telemetry.State
	cache  *Cache
	now    func() time.Time

	firstRun bool
	force    bool

	forceReq  atomic.Bool
	setupReq  atomic.Bool
	fullColor atomic.Bool

	lastPanels     time.Time
	lastIndicators time.Time

	labelSprite Sprite
	rpmSprite   Sprite
	intSprite   Sprite
	floatSprite Sprite
}

func New(disp Display, src LayoutSource, state *telemetry.State) *Renderer {
	return &Renderer{
		disp:     disp,
		layout:   src,
		state:    state,
		cache:    NewCache(),
		now:      time.Now,
		firstRun: true,
	}
}

// Setup clears the screen and draws every panel, label and indicator,
// bypassing the throttles.
func (r *Renderer) Setup() {
	r.cache.Reset()
	r.disp.FillScreen(palette.Black)
	r.pass(true)
	r.firstRun = false
	r.force = false
}

// Draw runs one render pass.
func (r *Renderer) Draw() {
	if r.setupReq.Swap(false) {
		r.Setup()
		return
	}
	if r.forceReq.Swap(false) {
		r.force = true
	}
	r.pass(false)
	r.firstRun = false
	r.force = false
}

// ForceRefresh makes the next pass redraw every panel, label and indicator.
func (r *Renderer) ForceRefresh() {
	r.forceReq.Store(true)
}

// Relayout makes the next pass a full setup pass. Panels that moved or were
// removed leave nothing behind.
func (r *Renderer) Relayout() {
	r.setupReq.Store(true)
}

// SetFullColor switches between the basic and the threshold color scheme.
// A change forces a refresh.
func (r *Renderer) SetFullColor(on bool) {
	if r.fullColor.Swap(on) != on {
		r.ForceRefresh()
	}
}

func (r *Renderer) FullColor() bool {
	return r.fullColor.Load()
}

func (r *Renderer) pass(setup bool) {
	now := r.now()
	cfg := r.layout.Config()
	snap := r.state.Snapshot()
	full := setup || r.force || r.firstRun

	if full || now.Sub(r.lastPanels) >= panelInterval {
		r.drawPanels(&cfg, snap, full)
		r.lastPanels = now
	}
	if full || now.Sub(r.lastIndicators) >= indicatorInterval {
		r.drawIndicators(&cfg, snap, full)
		r.lastIndicators = now
	}
}

func (r *Renderer) drawPanels(cfg *layout.Configuration, snap telemetry.Snapshot, full bool) {
	for _, p := range cfg.ActivePanelList() {
		if !p.Enabled {
			continue
		}
		pt, ok := layout.Point(p.Position)
		if !ok {
			continue
		}
		v := snap.Value(p.Channel)
		if !full && !r.cache.panelChanged(p.Position, v) {
			continue
		}
		if full {
			r.drawLabel(p, pt)
		}
		r.drawValue(p, pt, v)
		r.cache.storePanel(p.Position, v)
	}
}

func (r *Renderer) drawLabel(p layout.Panel, pt image.Point) {
	s := r.sprite(&r.labelSprite, labelW, labelH)
	s.FillScreen(palette.Black)
	c := palette.Cyan
	if r.FullColor() {
		c = palette.White
	}
	s.DrawString(p.Label, 0, labelTextTop, FontSmall, TopLeft, c)
	s.Push(pt.X+labelOffsetX, pt.Y)
}

func (r *Renderer) drawValue(p layout.Panel, pt image.Point, v float64) {
	c := basicTint
	if r.FullColor() {
		c = ThresholdColor(p.Channel, v)
	}

	if p.Channel == telemetry.ChannelRPM {
		s := r.sprite(&r.rpmSprite, rpmW, rpmH)
		s.FillScreen(palette.Black)
		s.DrawNumber(int64(v), rpmW-rpmTextInset, valueTextTop, FontMedium, TopRight, c)
		s.Push(pt.X, pt.Y+valueOffsetY)
		return
	}

	if p.Kind == layout.KindFloat || p.Decimals > 0 {
		s := r.sprite(&r.floatSprite, floatW, floatH)
		s.FillScreen(palette.Black)
		s.DrawFloat(v, int(p.Decimals), floatW/2, valueTextTop, FontMedium, TopCenter, c)
		s.Push(pt.X, pt.Y+valueOffsetY)
		return
	}

	n := int64(math.Trunc(v))
	if p.Kind == layout.KindUnsigned && n < 0 {
		n = 0
	}
	s := r.sprite(&r.intSprite, intW, intH)
	s.FillScreen(palette.Black)
	s.DrawNumber(n, intW/2, valueTextTop, FontMedium, TopCenter, c)
	s.Push(pt.X, pt.Y+valueOffsetY)
}

func (r *Renderer) drawIndicators(cfg *layout.Configuration, snap telemetry.Snapshot, full bool) {
	if full {
		w, _ := r.disp.Size()
		if w <= 0 {
			w = screenW
		}
		r.disp.FillRect(0, indicatorY, w, indicatorRowH, palette.Black)
		r.cache.resetIndicators()
	}
	if !cfg.ShowIndicators {
		return
	}

	slot := 0
	for _, ind := range cfg.ActiveIndicatorList() {
		if slot >= maxIndicatorSlots {
			break
		}
		if !ind.Enabled {
			continue
		}
		on := snap.Indicator(ind.Indicator)
		if full || r.cache.indicatorChanged(slot, on) {
			r.drawIndicator(slot, ind, on)
			r.cache.storeIndicator(slot, on)
		}
		slot++
	}
}

func (r *Renderer) drawIndicator(slot int, ind layout.IndicatorSlot, on bool) {
	x := indicatorMargin + slot*(indicatorW+indicatorSpacing)
	r.disp.FillRoundRect(x, indicatorY, indicatorW, indicatorH, indicatorRadius, palette.Black)
	r.disp.DrawRoundRect(x, indicatorY, indicatorW, indicatorH, indicatorRadius, palette.White)

	c := palette.White
	if on {
		c = indicatorAccent(ind.Indicator)
	}
	r.disp.DrawString(ind.Label, x+indicatorW/2, indicatorY+indicatorH/2, FontSmall, MiddleCenter, c)
}

func (r *Renderer) sprite(slot *Sprite, w, h int) Sprite {
	if *slot == nil {
		*slot = r.disp.NewSprite(w, h)
	}
	return *slot
}
