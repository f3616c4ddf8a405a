package render

import "github.com/shaunagostinho/gaugedash/internal/layout"

type panelEntry struct {
	value float64
	drawn bool
}

type indicatorEntry struct {
	on    bool
	drawn bool
}

// Cache remembers what is currently on screen: the last drawn value per
// panel position and the last drawn state per indicator slot. A fresh cache
// holds no entries, so every unit draws on its first pass.
type Cache struct {
	panels     [layout.MaxPanels]panelEntry
	indicators [maxIndicatorSlots]indicatorEntry
}

func NewCache() *Cache {
	return &Cache{}
}

// Reset forgets everything drawn.
func (c *Cache) Reset() {
	*c = Cache{}
}

func (c *Cache) panelChanged(pos uint8, v float64) bool {
	e := c.panels[pos]
	return !e.drawn || e.value != v
}

func (c *Cache) storePanel(pos uint8, v float64) {
	c.panels[pos] = panelEntry{value: v, drawn: true}
}

func (c *Cache) indicatorChanged(slot int, on bool) bool {
	e := c.indicators[slot]
	return !e.drawn || e.on != on
}

func (c *Cache) storeIndicator(slot int, on bool) {
	c.indicators[slot] = indicatorEntry{on: on, drawn: true}
}

func (c *Cache) resetIndicators() {
	c.indicators = [maxIndicatorSlots]indicatorEntry{}
}
