package server

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunagostinho/gaugedash/internal/ecu"
	"github.com/shaunagostinho/gaugedash/internal/layout"
	"github.com/shaunagostinho/gaugedash/internal/storage"
	"github.com/shaunagostinho/gaugedash/internal/telemetry"
)

type redrawStub struct {
	forced    atomic.Int32
	relayouts atomic.Int32
	fullColor atomic.Bool
}

func (r *redrawStub) ForceRefresh()        { r.forced.Add(1) }
func (r *redrawStub) Relayout()            { r.relayouts.Add(1) }
func (r *redrawStub) SetFullColor(on bool) { r.fullColor.Store(on) }

type frameStub struct{}

func (frameStub) Image() *image.RGBA { return image.NewRGBA(image.Rect(0, 0, 320, 170)) }

type fixture struct {
	srv      *Server
	h        http.Handler
	settings *storage.Settings
	model    *layout.Model
	state    *telemetry.State
	redraw   *redrawStub
	restarts atomic.Int32
	exe      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.Open(filepath.Join(dir, "eeprom.bin"))
	require.NoError(t, err)

	f := &fixture{
		settings: storage.NewSettings(store),
		state:    telemetry.NewState(),
		redraw:   &redrawStub{},
		exe:      filepath.Join(dir, "gaugedash"),
	}
	f.model = layout.NewModel(store, f.state, layout.PresetCluster9)
	f.model.Load()
	require.NoError(t, os.WriteFile(f.exe, []byte("old"), 0755))

	cfg := DefaultConfig()
	cfg.path = filepath.Join(dir, "config.yaml")
	f.srv = New(cfg, Deps{
		State:    f.state,
		Layout:   f.model,
		Settings: f.settings,
		Redraw:   f.redraw,
		Frames:   frameStub{},
		Restart:  func() { f.restarts.Add(1) },
		WebFS:    fstest.MapFS{"index.html": {Data: []byte("<html>upload</html>")}},
	})
	f.srv.restartDelay = 0
	f.srv.exePath = func() (string, error) { return f.exe, nil }
	f.h = f.srv.Handler()
	return f
}

func (f *fixture) do(method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) restarted(t *testing.T) {
	t.Helper()
	assert.Eventually(t, func() bool { return f.restarts.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestIndexServed(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "upload")
}

func TestSetMode(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/setMode", "application/x-www-form-urlencoded", []byte("mode=serial"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Mode updated", rec.Body.String())
	assert.Equal(t, byte(ecu.ModeSerial), f.settings.TransportMode())
	f.restarted(t)

	rec = f.do(http.MethodPost, "/setMode", "application/x-www-form-urlencoded", []byte("mode=lin"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/setMode", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestToggle(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/toggle", "text/plain", []byte("on"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.settings.FullColor())
	assert.True(t, f.redraw.fullColor.Load())
	assert.Equal(t, int32(1), f.redraw.forced.Load())

	f.do(http.MethodPost, "/toggle", "text/plain", []byte("off"))
	assert.False(t, f.settings.FullColor())

	f.do(http.MethodPost, "/toggle", "text/plain", nil)
	assert.True(t, f.settings.FullColor(), "empty body flips")

	rec = f.do(http.MethodPost, "/toggle", "text/plain", []byte("maybe"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, f.restarts.Load(), "toggling never restarts")
}

func upload(t *testing.T, field string, data []byte) (string, []byte) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "gaugedash")
	require.NoError(t, err)
	fw.Write(data)
	require.NoError(t, mw.Close())
	return mw.FormDataContentType(), buf.Bytes()
}

func TestUpdateReplacesExecutable(t *testing.T) {
	f := newFixture(t)
	ct, body := upload(t, "firmware", []byte("new image"))

	rec := f.do(http.MethodPost, "/update", ct, body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "successful")

	got, err := os.ReadFile(f.exe)
	require.NoError(t, err)
	assert.Equal(t, "new image", string(got))
	_, err = os.Stat(f.exe + ".new")
	assert.True(t, os.IsNotExist(err))
	f.restarted(t)
}

func TestUpdateFailureStillRestarts(t *testing.T) {
	f := newFixture(t)
	ct, body := upload(t, "other", []byte("junk"))

	rec := f.do(http.MethodPost, "/update", ct, body)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Update failed!", rec.Body.String())

	got, _ := os.ReadFile(f.exe)
	assert.Equal(t, "old", string(got))
	f.restarted(t)
}

func TestUpdateRejectsEmptyImage(t *testing.T) {
	f := newFixture(t)
	ct, body := upload(t, "firmware", nil)

	rec := f.do(http.MethodPost, "/update", ct, body)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	got, _ := os.ReadFile(f.exe)
	assert.Equal(t, "old", string(got))
}

func TestLayoutGet(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/layout", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp layoutResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint8(9), resp.Layout.ActivePanels)
	assert.Equal(t, telemetry.ChannelCoolant, resp.Layout.Panels[0].Channel)
	assert.Contains(t, resp.Presets, layout.PresetDefault)
	assert.Contains(t, resp.Channels, "RPM")
	assert.Contains(t, resp.Indicators, "LCH")
	assert.Equal(t, layout.SupportedSpeeds, resp.CanSpeeds)
}

func TestLayoutPresetAndReset(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/layout/preset", "application/json", []byte(`{"name":"default"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint8(8), f.model.Config().ActivePanels)
	assert.Equal(t, int32(1), f.redraw.relayouts.Load())

	rec = f.do(http.MethodPost, "/api/layout/preset", "application/json", []byte(`{"name":"race"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/layout/reset", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint8(9), f.model.Config().ActivePanels)
	assert.Equal(t, int32(2), f.redraw.relayouts.Load())
}

func TestLayoutPanels(t *testing.T) {
	f := newFixture(t)
	panel := []byte(`{"position":4,"label":"SPD","channel":"VSS","enabled":true,"decimals":0}`)

	rec := f.do(http.MethodPost, "/api/layout/panels", "application/json", panel)
	assert.Equal(t, http.StatusConflict, rec.Code, "cluster9 fills every slot")

	rec = f.do(http.MethodPost, "/api/layout/panels/clear", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, f.model.Config().ActivePanels)

	rec = f.do(http.MethodPost, "/api/layout/panels", "application/json", panel)
	require.Equal(t, http.StatusOK, rec.Code)
	cfg := f.model.Config()
	require.Equal(t, uint8(1), cfg.ActivePanels)
	assert.Equal(t, telemetry.ChannelVSS, cfg.Panels[0].Channel)
	assert.Equal(t, "SPD", cfg.Panels[0].Label)

	rec = f.do(http.MethodPost, "/api/layout/panels", "application/json", []byte(`{"position":20,"channel":"RPM"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/layout/panels", "application/json", []byte(`{"position":1,"channel":"BOOST"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLayoutIndicators(t *testing.T) {
	f := newFixture(t)
	ind := []byte(`{"position":6,"label":"WUE","indicator":"WUE","enabled":true}`)

	rec := f.do(http.MethodPost, "/api/layout/indicators", "application/json", ind)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint8(7), f.model.Config().ActiveIndicators)

	f.do(http.MethodPost, "/api/layout/indicators", "application/json", ind)
	rec = f.do(http.MethodPost, "/api/layout/indicators", "application/json", ind)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLayoutSVG(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/layout.svg", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "<svg")
	assert.Contains(t, body, "CLT")
	assert.Contains(t, body, "DFCO")
	// background, nine panels, six indicators
	assert.Equal(t, 16, strings.Count(body, "<rect"))
}

func TestFramePNG(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/frame.png", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 320, img.Bounds().Dx())

	f.srv.Frames = nil
	rec = f.do(http.MethodGet, "/frame.png", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConfigAPI(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/config", "application/json", []byte(`{"ecu":{"baudRate":57600}}`))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/api/config", "", nil)
	var got map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.EqualValues(t, 57600, got["ecu"]["baudRate"])
	assert.Equal(t, "/dev/ttySpeeduino", got["ecu"]["portPath"], "untouched fields survive")

	rec = f.do(http.MethodPost, "/api/config", "application/json", []byte(`not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTelemetryFrameColors(t *testing.T) {
	f := newFixture(t)
	f.state.Update(func(s *telemetry.Snapshot) {
		s.AFR = 15.5
		s.Battery = 13.8
	})
	fr := f.srv.telemetryFrame()
	require.NotNil(t, fr.Telemetry)
	assert.Equal(t, 15.5, fr.Telemetry.AFR)
	assert.Equal(t, "#ff0000", fr.Colors["AFR"])
	assert.Equal(t, layout.ColorFor(telemetry.ChannelVoltage, 13.8).Hex(), fr.Colors["BAT"])
}

func TestWebSocketFeed(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.h)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	var first Frame
	require.NoError(t, conn.ReadJSON(&first))
	require.NotNil(t, first.Layout)
	assert.Equal(t, uint8(9), first.Layout.ActivePanels)
	require.NotNil(t, first.FullColor)
	assert.False(t, *first.FullColor)

	assert.Eventually(t, func() bool { return f.srv.clientCount() == 1 }, time.Second, 5*time.Millisecond)
	f.state.Update(func(s *telemetry.Snapshot) { s.RPM = 3200 })
	f.srv.broadcast(f.srv.telemetryFrame())

	var next Frame
	require.NoError(t, conn.ReadJSON(&next))
	require.NotNil(t, next.Telemetry)
	assert.Equal(t, uint16(3200), next.Telemetry.RPM)
}
