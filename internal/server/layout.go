package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	svg "github.com/ajstarks/svgo"
	log "github.com/sirupsen/logrus"

	"github.com/shaunagostinho/gaugedash/internal/layout"
	"github.com/shaunagostinho/gaugedash/internal/telemetry"
)

// layoutResponse is the body of GET /api/layout.
type layoutResponse struct {
	Layout     layout.Configuration `json:"layout"`
	Presets    []string             `json:"presets"`
	Channels   []string             `json:"channels"`
	Indicators []string             `json:"indicators"`
	CanSpeeds  []uint32             `json:"canSpeeds"`
}

type presetRequest struct {
	Name string `json:"name"`
}

type panelRequest struct {
	Position uint8             `json:"position"`
	Label    string            `json:"label"`
	Channel  telemetry.Channel `json:"channel"`
	Enabled  bool              `json:"enabled"`
	Decimals uint8             `json:"decimals"`
}

type indicatorRequest struct {
	Position  uint8               `json:"position"`
	Label     string              `json:"label"`
	Indicator telemetry.Indicator `json:"indicator"`
	Enabled   bool                `json:"enabled"`
}

func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := layoutResponse{
		Layout:    s.Layout.Config(),
		Presets:   layout.Presets(),
		CanSpeeds: layout.SupportedSpeeds,
	}
	for _, ch := range telemetry.Channels() {
		resp.Channels = append(resp.Channels, ch.String())
	}
	for _, ind := range telemetry.Indicators() {
		resp.Indicators = append(resp.Indicators, ind.String())
	}
	writeJSON(w, resp)
}

func (s *Server) handleLayoutReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.Layout.ResetToDefault()
	s.layoutChanged(w)
}

func (s *Server) handleLayoutPreset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req presetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if err := s.Layout.ApplyPreset(req.Name); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.layoutChanged(w)
}

func (s *Server) handleLayoutPanels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req panelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if _, ok := layout.Point(req.Position); !ok {
		http.Error(w, fmt.Sprintf("position %d out of range", req.Position), http.StatusBadRequest)
		return
	}
	if !s.Layout.AddPanel(req.Position, req.Label, req.Channel, req.Enabled, req.Decimals) {
		http.Error(w, "all panel slots are in use", http.StatusConflict)
		return
	}
	s.layoutChanged(w)
}

func (s *Server) handleLayoutClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.Layout.ClearPanels()
	s.layoutChanged(w)
}

func (s *Server) handleLayoutIndicators(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req indicatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if !s.Layout.AddIndicator(req.Position, req.Label, req.Indicator, req.Enabled) {
		http.Error(w, "all indicator slots are in use", http.StatusConflict)
		return
	}
	s.layoutChanged(w)
}

// layoutChanged redraws the screen, tells clients and replies with the new
// layout.
func (s *Server) layoutChanged(w http.ResponseWriter) {
	cfg := s.Layout.Config()
	if s.Redraw != nil {
		s.Redraw.Relayout()
	}
	s.broadcast(Frame{Layout: &cfg, Stamp: time.Now().UnixMilli()})
	log.WithFields(log.Fields{
		"panels":     cfg.ActivePanels,
		"indicators": cfg.ActiveIndicators,
	}).Info("[server] layout changed")
	writeJSON(w, cfg)
}

// Preview geometry, matching the renderer's screen.
const (
	previewW, previewH = 320, 170
	previewCellW       = 64
	previewCellH       = 58
	previewIndY        = 150
	previewIndW        = 50
	previewIndH        = 18
	previewIndPitch    = 52
	previewIndMax      = 6
)

// handleLayoutSVG draws a wireframe of the active layout.
func (s *Server) handleLayoutSVG(w http.ResponseWriter, r *http.Request) {
	cfg := s.Layout.Config()
	w.Header().Set("Content-Type", "image/svg+xml")

	canvas := svg.New(w)
	canvas.Start(previewW, previewH)
	canvas.Rect(0, 0, previewW, previewH, "fill:black")

	for _, p := range cfg.ActivePanelList() {
		pt, ok := layout.Point(p.Position)
		if !ok {
			continue
		}
		style := "fill:none;stroke:#555555"
		if !p.Enabled {
			style += ";stroke-dasharray:3,3"
		}
		canvas.Rect(pt.X, pt.Y, previewCellW, previewCellH, style)
		canvas.Text(pt.X+10, pt.Y+12, p.Label, "fill:cyan;font-size:11px;font-family:monospace")
		canvas.Text(pt.X+previewCellW/2, pt.Y+42, p.Channel.String(),
			"fill:"+p.Color.Hex()+";font-size:14px;font-family:monospace;text-anchor:middle")
	}

	if cfg.ShowIndicators {
		slot := 0
		for _, ind := range cfg.ActiveIndicatorList() {
			if slot >= previewIndMax {
				break
			}
			if !ind.Enabled {
				continue
			}
			x := 3 + slot*previewIndPitch
			canvas.Roundrect(x, previewIndY, previewIndW, previewIndH, 3, 3, "fill:black;stroke:white")
			canvas.Text(x+previewIndW/2, previewIndY+13, ind.Label,
				"fill:white;font-size:10px;font-family:monospace;text-anchor:middle")
			slot++
		}
	}
	canvas.End()
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debugf("[server] encode response: %v", err)
	}
}
