// Package server is the cluster's management interface: firmware upload,
// transport and color mode switches, layout editing and a live telemetry
// feed for browsers.
package server

import (
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/shaunagostinho/gaugedash/internal/ecu"
	"github.com/shaunagostinho/gaugedash/internal/layout"
	"github.com/shaunagostinho/gaugedash/internal/storage"
	"github.com/shaunagostinho/gaugedash/internal/telemetry"
)

const (
	broadcastInterval = 100 * time.Millisecond
	restartDelay      = time.Second
)

// FrameSource provides the current screen contents.
type FrameSource interface {
	Image() *image.RGBA
}

// Redrawer is the part of the renderer other goroutines may drive.
type Redrawer interface {
	ForceRefresh()
	Relayout()
	SetFullColor(on bool)
}

// Deps are the collaborators the handlers act on. Frames and Restart may be
// nil.
type Deps struct {
	State    *telemetry.State
	Layout   *layout.Model
	Settings *storage.Settings
	Redraw   Redrawer
	Frames   FrameSource
	Restart  func()
	WebFS    fs.FS
}

// Server serves the management routes and broadcasts telemetry to
// WebSocket clients.
type Server struct {
	cfg *Config
	Deps

	exePath      func() (string, error)
	restartDelay time.Duration

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Frame is the JSON structure sent to WebSocket clients.
type Frame struct {
	Telemetry *telemetry.Snapshot   `json:"telemetry,omitempty"`
	Colors    map[string]string     `json:"colors,omitempty"` // channel name to CSS color
	Layout    *layout.Configuration `json:"layout,omitempty"`
	FullColor *bool                 `json:"fullColor,omitempty"`
	Stamp     int64                 `json:"stamp"` // Unix ms
}

// New creates a new Server.
func New(cfg *Config, d Deps) *Server {
	return &Server{
		cfg:          cfg,
		Deps:         d,
		exePath:      executable,
		restartDelay: restartDelay,
		clients:      make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if s.WebFS != nil {
		mux.Handle("/", http.FileServer(http.FS(s.WebFS)))
	}
	mux.HandleFunc("/update", s.handleUpdate)
	mux.HandleFunc("/setMode", s.handleSetMode)
	mux.HandleFunc("/toggle", s.handleToggle)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/layout", s.handleLayout)
	mux.HandleFunc("/api/layout/reset", s.handleLayoutReset)
	mux.HandleFunc("/api/layout/preset", s.handleLayoutPreset)
	mux.HandleFunc("/api/layout/panels", s.handleLayoutPanels)
	mux.HandleFunc("/api/layout/panels/clear", s.handleLayoutClear)
	mux.HandleFunc("/api/layout/indicators", s.handleLayoutIndicators)
	mux.HandleFunc("/layout.svg", s.handleLayoutSVG)
	mux.HandleFunc("/frame.png", s.handleFrame)
	return mux
}

// Run starts the HTTP server and the telemetry broadcast loop.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Server.ListenAddr,
		Handler: s.Handler(),
	}

	go s.broadcastLoop(ctx)

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Infof("[server] listening on %s", s.cfg.Server.ListenAddr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// restartSoon runs Restart after the reply has had time to reach the client.
func (s *Server) restartSoon() {
	if s.Restart == nil {
		log.Warn("[server] restart requested but no restart hook is set")
		return
	}
	time.AfterFunc(s.restartDelay, s.Restart)
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	mode, err := ecu.ParseMode(r.FormValue("mode"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.Settings.SetTransportMode(byte(mode)); err != nil {
		log.Errorf("[server] persist transport mode: %v", err)
		http.Error(w, "could not save mode", http.StatusInternalServerError)
		return
	}
	log.WithField("mode", mode).Info("[server] transport mode changed, restarting")
	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, "Mode updated")
	s.restartSoon()
}

// handleToggle sets the color mode from a plain "on" or "off" body. An
// empty body flips it.
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 16))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var on bool
	switch string(body) {
	case "on":
		on, err = true, s.Settings.SetFullColor(true)
	case "off":
		on, err = false, s.Settings.SetFullColor(false)
	case "":
		on, err = s.Settings.ToggleFullColor()
	default:
		http.Error(w, `body must be "on" or "off"`, http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Errorf("[server] persist color mode: %v", err)
		http.Error(w, "could not save color mode", http.StatusInternalServerError)
		return
	}
	if s.Redraw != nil {
		s.Redraw.SetFullColor(on)
		s.Redraw.ForceRefresh()
	}
	s.broadcast(Frame{FullColor: &on, Stamp: time.Now().UnixMilli()})

	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, "OK")
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("[ws] upgrade error: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	n := len(s.clients)
	s.clientsMu.Unlock()

	log.Infof("[ws] client connected (%d total)", n)

	// layout and color mode first so the page can build itself
	cfg := s.Layout.Config()
	full := s.Settings.FullColor()
	if data, err := json.Marshal(Frame{Layout: &cfg, FullColor: &full, Stamp: time.Now().UnixMilli()}); err == nil {
		client.send <- data
	}

	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			n := len(s.clients)
			s.clientsMu.Unlock()
			close(client.send)
			log.Infof("[ws] client disconnected (%d total)", n)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		data, err := s.cfg.ToJSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)

	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if err := s.cfg.UpdateFromJSON(body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.cfg.Save(); err != nil {
			log.Errorf("[config] save failed: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	if s.Frames == nil {
		http.Error(w, "no framebuffer", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := png.Encode(w, s.Frames.Image()); err != nil {
		log.Debugf("[server] frame encode: %v", err)
	}
}

// broadcastLoop sends a telemetry frame to every client at 10 Hz.
func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(broadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.clientCount() == 0 {
				continue
			}
			s.broadcast(s.telemetryFrame())
		}
	}
}

func (s *Server) telemetryFrame() Frame {
	snap := s.State.Snapshot()
	colors := make(map[string]string)
	for _, ch := range telemetry.Channels() {
		colors[ch.String()] = layout.ColorFor(ch, snap.Value(ch)).Hex()
	}
	return Frame{
		Telemetry: &snap,
		Colors:    colors,
		Stamp:     time.Now().UnixMilli(),
	}
}

func (s *Server) clientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *Server) broadcast(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// Client too slow, skip
		}
	}
}
