package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/shaunagostinho/gaugedash/internal/button"
	"github.com/shaunagostinho/gaugedash/internal/display"
	"github.com/shaunagostinho/gaugedash/internal/ecu"
	"github.com/shaunagostinho/gaugedash/internal/layout"
	"github.com/shaunagostinho/gaugedash/internal/render"
	"github.com/shaunagostinho/gaugedash/internal/server"
	"github.com/shaunagostinho/gaugedash/internal/storage"
	"github.com/shaunagostinho/gaugedash/internal/telemetry"
	"github.com/shaunagostinho/gaugedash/internal/tft"
	"github.com/shaunagostinho/gaugedash/web"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

const (
	canPollInterval    = time.Millisecond
	serialPollInterval = 10 * time.Millisecond
	demoPollInterval   = 50 * time.Millisecond
)

func main() {
	configPath := flag.String("config", server.DefaultConfigPath, "Path to config file")
	demo := flag.Bool("demo", false, "Run with simulated ECU data")
	listenAddr := flag.String("listen", "", "Override listen address (e.g. :8080)")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.Infof("[main] gaugedash %s starting", version)

	cfg := server.LoadConfig(*configPath)
	if lvl, err := log.ParseLevel(cfg.Logging.Level); err == nil {
		log.SetLevel(lvl)
	} else {
		log.Warnf("[main] bad log level %q, keeping info", cfg.Logging.Level)
	}
	if *demo {
		cfg.ECU.Transport = "demo"
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Infof("[main] received %v, shutting down", sig)
		cancel()
	}()

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0755); err != nil {
		log.Warnf("[main] storage dir: %v", err)
	}
	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		log.Fatalf("[main] %v", err)
	}
	settings := storage.NewSettings(store)

	state := telemetry.NewState()
	model := layout.NewModel(store, state, cfg.Display.Preset)
	model.Load()

	panel := cfg.Display.Panel
	var sink display.Sink
	if panel.Enabled {
		lcd, err := tft.Open(panel)
		if err != nil {
			log.Errorf("[main] panel unavailable, rendering off-screen only: %v", err)
		} else {
			defer lcd.Close()
			sink = lcd
		}
	}
	fb, err := display.New(panel.Width, panel.Height, sink)
	if err != nil {
		log.Fatalf("[main] %v", err)
	}

	renderer := render.New(fb, model, state)
	renderer.SetFullColor(settings.FullColor())
	if cfg.Display.Splash {
		render.Splash(ctx, fb, web.Logo, version, render.SplashHold)
		flush(fb)
	}
	renderer.Setup()
	flush(fb)

	transport := openTransport(ctx, cfg, settings, model, state)
	if transport != nil {
		go ecu.Run(ctx, transport.t, transport.interval)
	}

	srv := server.New(cfg, server.Deps{
		State:    state,
		Layout:   model,
		Settings: settings,
		Redraw:   renderer,
		Frames:   fb,
		Restart:  restart,
		WebFS:    web.FS,
	})
	go func() {
		if err := srv.Run(ctx); err != nil {
			log.Errorf("[main] server exited: %v", err)
		}
	}()

	in, err := button.Open(ctx, cfg.Button)
	if err != nil {
		log.Warnf("[main] button unavailable: %v", err)
		in = button.Never{}
	}

	renderLoop(ctx, cfg.Display.FPS, fb, renderer, settings, button.NewEdge(in))

	if err := store.Commit(); err != nil {
		log.Warnf("[main] final commit: %v", err)
	}
	log.Info("[main] stopped")
}

type selected struct {
	t        ecu.Transport
	interval time.Duration
}

// openTransport picks the configured transport, falling back to the mode in
// the settings store. A transport that fails to open leaves ingestion off
// and the cluster shows whatever the state holds.
func openTransport(ctx context.Context, cfg *server.Config, settings *storage.Settings, model *layout.Model, state *telemetry.State) *selected {
	name := cfg.ECU.Transport
	if name == "" {
		name = ecu.ModeFromByte(settings.TransportMode()).String()
	}
	log.WithField("transport", name).Info("[main] selecting transport")

	switch name {
	case "demo":
		return &selected{ecu.NewDemo(state), demoPollInterval}

	case "serial":
		s := ecu.NewSpeeduino(ecu.SpeeduinoConfig{
			PortPath: cfg.ECU.PortPath,
			BaudRate: cfg.ECU.BaudRate,
			CanID:    byte(cfg.ECU.CanID),
			Timeout:  time.Duration(cfg.ECU.TimeoutMs) * time.Millisecond,
		}, state)
		go connectWithRetry(ctx, "serial", s, 10)
		return &selected{s, serialPollInterval}

	case "can":
		c := ecu.NewCAN(ecu.NewSocketCAN(), model, ecu.NewDecoder(state), ecu.CANConfig{
			Interface: cfg.ECU.CANInterface,
		})
		if err := c.Open(); err != nil {
			log.Errorf("[can] %v, ingestion disabled", err)
			return nil
		}
		return &selected{c, canPollInterval}
	}

	log.Errorf("[main] unknown transport %q, ingestion disabled", name)
	return nil
}

// renderLoop draws at fps until ctx ends. A press of the button flips the
// color mode.
func renderLoop(ctx context.Context, fps int, fb *display.Framebuffer, r *render.Renderer, settings *storage.Settings, btn *button.Edge) {
	if fps <= 0 {
		fps = 100
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if btn.Sample() {
			on, err := settings.ToggleFullColor()
			if err != nil {
				log.Warnf("[button] persist color mode: %v", err)
			}
			log.WithField("fullColor", on).Info("[button] color mode toggled")
		}
		r.SetFullColor(settings.FullColor())
		r.Draw()
		flush(fb)
	}
}

func flush(fb *display.Framebuffer) {
	if err := fb.Flush(); err != nil {
		log.Debugf("[display] %v", err)
	}
}

// restart replaces the process image with the binary on disk, which after an
// update is the new one.
func restart() {
	exe, err := os.Executable()
	if err != nil {
		log.Errorf("[main] restart: %v", err)
		os.Exit(1)
	}
	log.Info("[main] restarting")
	if err := syscall.Exec(exe, os.Args, os.Environ()); err != nil {
		log.Errorf("[main] exec %s: %v", exe, err)
		os.Exit(1)
	}
}

type connectable interface {
	Open() error
	Close() error
}

// connectWithRetry attempts to connect with exponential backoff.
// Starts at 1s, doubles each attempt up to 60s, retries up to maxAttempts
// then continues at max interval indefinitely.
func connectWithRetry(ctx context.Context, name string, c connectable, maxAttempts int) {
	delay := 1 * time.Second
	maxDelay := 60 * time.Second
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := c.Open(); err != nil {
			attempt++
			if attempt <= maxAttempts {
				log.Warnf("[%s] connect attempt %d/%d failed: %v (retry in %v)",
					name, attempt, maxAttempts, err, delay)
			} else {
				log.Warnf("[%s] connect attempt %d failed: %v (retry in %v)",
					name, attempt, err, delay)
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
		} else {
			log.Infof("[%s] connected (attempt %d)", name, attempt+1)
			return
		}
	}
}
