// SPDX-License-Identifier: MIT
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"entrain/internal/light"
	"entrain/internal/metrics"
	"entrain/internal/playback"
	"entrain/internal/sink"
	"entrain/internal/transport"
	"entrain/pkg/utils"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *playback.ThermalState) {
	t.Helper()
	ws := transport.NewWebSocketTransport()
	t.Cleanup(func() { ws.Close() })
	thermal := playback.NewThermalState()
	return New("127.0.0.1:0", ws, metrics.New(), thermal), thermal
}

func do(t *testing.T, h http.Handler, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func attachPlayer(t *testing.T, s *Server, governor playback.ThermalGovernor) *playback.Player {
	t.Helper()
	mode, err := light.LookupMode("alpha")
	require.NoError(t, err)
	script, err := light.NewGenerator(light.DefaultSafetyLimits(), light.SinkDisplay).Generate(120, mode, nil, 10)
	require.NoError(t, err)

	p, err := playback.NewPlayer(sink.NewDisplay(&utils.MockTransport{}), playback.PlayerOptions{
		Limits:   light.DefaultSafetyLimits(),
		Governor: governor,
	})
	require.NoError(t, err)
	require.NoError(t, p.Begin(script))
	t.Cleanup(func() { p.Stop() })
	s.Attach(uuid.New(), p)
	return p
}

func TestStatusWithoutSession(t *testing.T) {
	s, _ := newTestServer(t)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s.Handler(), http.MethodGet, "/status", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s.Handler(), http.MethodPost, "/pause", nil).Code)
}

func TestStatusAndControl(t *testing.T) {
	s, thermal := newTestServer(t)
	p := attachPlayer(t, s, thermal)
	p.Tick(time.Now().Add(50 * time.Millisecond))

	rec := do(t, s.Handler(), http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var st statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "alpha", st.Mode)
	assert.Equal(t, "running", st.State)
	assert.Equal(t, "normal", st.Thermal)
	assert.InDelta(t, 10, st.Frequency, 1e-9)
	assert.NotEmpty(t, st.Session)

	assert.Equal(t, http.StatusAccepted, do(t, s.Handler(), http.MethodPost, "/pause", nil).Code)
	p.Tick(time.Now().Add(100 * time.Millisecond))
	assert.Equal(t, playback.StatePaused, p.Status().State)

	assert.Equal(t, http.StatusAccepted, do(t, s.Handler(), http.MethodPost, "/resume", nil).Code)
	p.Tick(time.Now().Add(150 * time.Millisecond))
	assert.Equal(t, playback.StateRunning, p.Status().State)
}

func TestThermalEndpoint(t *testing.T) {
	s, thermal := newTestServer(t)

	rec := do(t, s.Handler(), http.MethodPut, "/thermal",
		strings.NewReader(`{"max_intensity": 0.4, "duty_cycle_multiplier": 0.5}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"throttled"`)
	assert.Equal(t, playback.ThermalReading{MaxIntensity: 0.4, Multiplier: 0.5}, thermal.Reading())

	rec = do(t, s.Handler(), http.MethodPut, "/thermal",
		strings.NewReader(`{"max_intensity": 1, "duty_cycle_multiplier": 0}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, playback.ThermalShutoff, playback.ThermalStatusOf(thermal))

	assert.Equal(t, http.StatusBadRequest,
		do(t, s.Handler(), http.MethodPut, "/thermal", strings.NewReader("not json")).Code)
	assert.Equal(t, http.StatusBadRequest,
		do(t, s.Handler(), http.MethodPut, "/thermal", strings.NewReader(`{"max_intensity": 1}`)).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s.Handler(), http.MethodGet, "/status", nil)

	rec := do(t, s.Handler(), http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "entrain_http_requests_total 1")
	assert.Contains(t, body, "entrain_http_errors_total 1")
	assert.Contains(t, body, "entrain_ws_clients 0")
}

func TestWebSocketPreview(t *testing.T) {
	ws := transport.NewWebSocketTransport()
	defer ws.Close()
	s := New("127.0.0.1:0", ws, metrics.New(), nil)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return ws.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, ws.Send(transport.Frame{Seq: 7, Intensity: 0.5, R: 10, HasColor: true}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got transport.Frame
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, uint32(7), got.Seq)
	assert.Equal(t, float32(0.5), got.Intensity)
	assert.Equal(t, uint8(10), got.R)

	rec := do(t, s.Handler(), http.MethodPut, "/thermal", bytes.NewReader(nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "thermal route is off without a thermal state")
}

func TestStartAndShutdown(t *testing.T) {
	s, _ := newTestServer(t)
	require.NoError(t, s.Start())
	require.NoError(t, s.Shutdown(context.Background()))
}
