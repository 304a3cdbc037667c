// SPDX-License-Identifier: MIT
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for analysis and playback.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry            *prometheus.Registry
	ticksTotal          prometheus.Counter
	ticksSkippedTotal   prometheus.Counter
	intensity           prometheus.Gauge
	beatsDetectedTotal  prometheus.Counter
	tempoBPM            prometheus.Gauge
	thermalShutoffs     prometheus.Counter
	sinkErrorsTotal     prometheus.Counter
	scriptEvents        prometheus.Gauge
	activeSessions      prometheus.Gauge
	requestsTotal       prometheus.Counter
	requestErrorsTotal  prometheus.Counter
	analysisOutcomes    *prometheus.CounterVec
	scriptRegenerations prometheus.Counter
	wsClients           prometheus.Gauge
}

// New creates and registers the metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		ticksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "entrain_ticks_total",
			Help: "Total number of playback ticks that wrote an intensity",
		}),
		ticksSkippedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "entrain_ticks_skipped_total",
			Help: "Ticks skipped because the player was stopping",
		}),
		intensity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "entrain_intensity",
			Help: "Most recent output intensity in [0,1]",
		}),
		beatsDetectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "entrain_beats_detected_total",
			Help: "Total number of beats detected, offline and live",
		}),
		tempoBPM: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "entrain_tempo_bpm",
			Help: "Current tempo estimate",
		}),
		thermalShutoffs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "entrain_thermal_shutoffs_total",
			Help: "Ticks forced dark by the thermal governor",
		}),
		sinkErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "entrain_sink_errors_total",
			Help: "Failed light sink writes",
		}),
		scriptEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "entrain_script_events",
			Help: "Number of events in the active light script",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "entrain_active_sessions",
			Help: "Number of running sessions",
		}),
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "entrain_http_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		requestErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "entrain_http_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		analysisOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "entrain_analysis_runs_total",
			Help: "Analysis runs by outcome",
		}, []string{"outcome"}),
		scriptRegenerations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "entrain_script_regenerations_total",
			Help: "Live scripts rebuilt from new beats",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "entrain_ws_clients",
			Help: "Connected WebSocket preview clients",
		}),
	}

	registry.MustRegister(
		m.ticksTotal,
		m.ticksSkippedTotal,
		m.intensity,
		m.beatsDetectedTotal,
		m.tempoBPM,
		m.thermalShutoffs,
		m.sinkErrorsTotal,
		m.scriptEvents,
		m.activeSessions,
		m.requestsTotal,
		m.requestErrorsTotal,
		m.analysisOutcomes,
		m.scriptRegenerations,
		m.wsClients,
	)
	return m
}

// ObserveTick records one written tick.
func (m *Metrics) ObserveTick(intensity float64) {
	if m == nil {
		return
	}
	m.ticksTotal.Inc()
	m.intensity.Set(intensity)
}

// IncTicksSkipped counts a tick dropped by the stopping guard.
func (m *Metrics) IncTicksSkipped() {
	if m == nil {
		return
	}
	m.ticksSkippedTotal.Inc()
}

// AddBeats adds newly detected beats.
func (m *Metrics) AddBeats(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.beatsDetectedTotal.Add(float64(n))
}

// SetTempo sets the tempo gauge.
func (m *Metrics) SetTempo(bpm float64) {
	if m == nil {
		return
	}
	m.tempoBPM.Set(bpm)
}

// IncThermalShutoffs counts a tick forced dark.
func (m *Metrics) IncThermalShutoffs() {
	if m == nil {
		return
	}
	m.thermalShutoffs.Inc()
}

// IncSinkErrors counts a failed sink write.
func (m *Metrics) IncSinkErrors() {
	if m == nil {
		return
	}
	m.sinkErrorsTotal.Inc()
}

// SetScriptEvents sets the active script size.
func (m *Metrics) SetScriptEvents(n int) {
	if m == nil {
		return
	}
	m.scriptEvents.Set(float64(n))
}

// SessionStarted increments the active session gauge.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

// SessionEnded decrements the active session gauge.
func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

// IncAnalysis counts an analysis run by outcome name.
func (m *Metrics) IncAnalysis(outcome string) {
	if m == nil {
		return
	}
	m.analysisOutcomes.WithLabelValues(outcome).Inc()
}

// IncRegenerations counts a live script rebuild.
func (m *Metrics) IncRegenerations() {
	if m == nil {
		return
	}
	m.scriptRegenerations.Inc()
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}

// IncErrors increments the HTTP error counter.
func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.requestErrorsTotal.Inc()
}

// SetClients sets the WebSocket client gauge.
func (m *Metrics) SetClients(n int) {
	if m == nil {
		return
	}
	m.wsClients.Set(float64(n))
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	inner := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		inner.ServeHTTP(w, r)
	})
}
