// SPDX-License-Identifier: MIT
/*
Package server exposes a running session over HTTP: the WebSocket light
frame preview, Prometheus metrics, a status endpoint, playback control and
the thermal input.
*/
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	applog "entrain/internal/log"
	"entrain/internal/metrics"
	"entrain/internal/playback"
	"entrain/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const shutdownTimeout = 5 * time.Second

// Server is the session HTTP surface. A session attaches its player once
// playback begins; until then status and control return 503.
type Server struct {
	srv     *http.Server
	router  chi.Router
	ws      *transport.WebSocketTransport
	metrics *metrics.Metrics
	thermal *playback.ThermalState
	log     *slog.Logger

	player    atomic.Pointer[playback.Player]
	sessionID atomic.Pointer[uuid.UUID]
}

// New builds the router. ws and thermal may be nil to disable their routes.
func New(addr string, ws *transport.WebSocketTransport, m *metrics.Metrics, thermal *playback.ThermalState) *Server {
	s := &Server{
		ws:      ws,
		metrics: m,
		thermal: thermal,
		log:     applog.Logger(),
	}

	r := chi.NewRouter()
	r.Use(RequestLogger(s.log))
	r.Use(metrics.RequestMiddleware(m))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		m.Handler(s.refreshGauges).ServeHTTP(w, r)
	})
	if ws != nil {
		r.Get("/ws", ws.Handler())
	}
	r.Get("/status", s.handleStatus)
	r.Post("/pause", s.handlePause)
	r.Post("/resume", s.handleResume)
	if thermal != nil {
		r.Put("/thermal", s.handleThermal)
	}

	s.router = r
	s.srv = &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Attach publishes the session player to the status and control routes.
func (s *Server) Attach(id uuid.UUID, p *playback.Player) {
	s.sessionID.Store(&id)
	s.player.Store(p)
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", s.srv.Addr, err)
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server error", "error", err)
		}
	}()
	s.log.Info("server started", "addr", ln.Addr().String())
	return nil
}

// Shutdown drains connections, giving up after a short timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	s.log.Info("server stopped")
	return nil
}

func (s *Server) refreshGauges() {
	if s.ws != nil {
		s.metrics.SetClients(s.ws.ClientCount())
	}
}

// statusResponse is the JSON body of GET /status.
type statusResponse struct {
	Session    string  `json:"session"`
	Mode       string  `json:"mode"`
	State      string  `json:"state"`
	Elapsed    float64 `json:"elapsed"`
	Duration   float64 `json:"duration"`
	Intensity  float64 `json:"intensity"`
	Frequency  float64 `json:"frequency"`
	BPM        float64 `json:"bpm"`
	Event      int     `json:"event"`
	Thermal    string  `json:"thermal"`
	Calibrated bool    `json:"calibrated"`
	Caution    bool    `json:"caution"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	p := s.player.Load()
	if p == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	st := p.Status()
	resp := statusResponse{
		Session:    s.sessionID.Load().String(),
		State:      st.State.String(),
		Elapsed:    st.Elapsed,
		Intensity:  st.Intensity,
		Event:      st.Event,
		Thermal:    st.Thermal.String(),
		Calibrated: st.Calibrated,
	}
	if st.Script != nil {
		resp.Mode = st.Script.Mode
		resp.Duration = st.Script.Duration
		resp.Frequency = st.Script.Frequency
		resp.BPM = st.Script.BPM
		resp.Caution = st.Script.Caution
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.control(w, (*playback.Player).Pause)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.control(w, (*playback.Player).Resume)
}

func (s *Server) control(w http.ResponseWriter, fn func(*playback.Player)) {
	p := s.player.Load()
	if p == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	fn(p)
	w.WriteHeader(http.StatusAccepted)
}

// thermalRequest is the JSON body of PUT /thermal.
type thermalRequest struct {
	MaxIntensity *float64 `json:"max_intensity"`
	Multiplier   *float64 `json:"duty_cycle_multiplier"`
}

func (s *Server) handleThermal(w http.ResponseWriter, r *http.Request) {
	var req thermalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.log.Debug("invalid thermal body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if req.MaxIntensity == nil || req.Multiplier == nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.thermal.Set(*req.MaxIntensity, *req.Multiplier)
	reading := s.thermal.Reading()
	s.log.Info("thermal update",
		slog.Float64("max_intensity", reading.MaxIntensity),
		slog.Float64("multiplier", reading.Multiplier),
		slog.String("status", reading.Status().String()))
	writeJSON(w, http.StatusOK, map[string]any{
		"max_intensity":         reading.MaxIntensity,
		"duty_cycle_multiplier": reading.Multiplier,
		"status":                reading.Status().String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
