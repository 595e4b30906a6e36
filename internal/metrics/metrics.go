package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline counters. The hot path only touches atomics;
// Prometheus reads them lazily through GaugeFunc collectors on scrape.
type Metrics struct {
	// Frame pipeline
	FramesCaptured  atomic.Uint64
	FramesProcessed atomic.Uint64
	FramesDropped   atomic.Uint64

	// Classifier sidecar
	ClassifierCalls  atomic.Uint64
	ClassifierErrors atomic.Uint64
	InferenceMs      atomic.Uint64

	// Sensor ingestion
	MoistureReports atomic.Uint64
	ClimateReports  atomic.Uint64

	registry *prometheus.Registry
}

// SprayerStats is what the sprayer exposes for scraping.
type SprayerStats interface {
	Active() bool
	SessionsTotal() uint64
}

// New creates the metrics set and registers its collectors. sprayer may be
// nil in tests.
func New(sprayer SprayerStats) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.register(sprayer)
	return m
}

func (m *Metrics) register(sprayer SprayerStats) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "phyto_frames_captured_total",
			Help: "Total frames read from the capture source",
		},
		func() float64 { return float64(m.FramesCaptured.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "phyto_frames_processed_total",
			Help: "Total frames run through the classification pipeline",
		},
		func() float64 { return float64(m.FramesProcessed.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "phyto_frames_dropped_total",
			Help: "Frames overwritten before processing could take them",
		},
		func() float64 { return float64(m.FramesDropped.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "phyto_classifier_calls_total",
			Help: "Total classification sidecar requests",
		},
		func() float64 { return float64(m.ClassifierCalls.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "phyto_classifier_errors_total",
			Help: "Failed classification sidecar requests",
		},
		func() float64 { return float64(m.ClassifierErrors.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "phyto_inference_latency_ms",
			Help: "Latest classification round-trip in milliseconds",
		},
		func() float64 { return float64(m.InferenceMs.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "phyto_moisture_reports_total",
			Help: "Total soil moisture reports received",
		},
		func() float64 { return float64(m.MoistureReports.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "phyto_climate_reports_total",
			Help: "Total temperature/humidity reports received",
		},
		func() float64 { return float64(m.ClimateReports.Load()) },
	))

	if sprayer != nil {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "phyto_sprayer_active",
				Help: "Sprayer session in progress (0=idle, 1=running)",
			},
			func() float64 {
				if sprayer.Active() {
					return 1
				}
				return 0
			},
		))

		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "phyto_spray_sessions_total",
				Help: "Spray sessions started since boot",
			},
			func() float64 { return float64(sprayer.SessionsTotal()) },
		))
	}
}

// RegisterWSClients exposes the websocket hub's client count as a gauge.
// Called once during wiring, before the first scrape.
func (m *Metrics) RegisterWSClients(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "phyto_ws_clients",
			Help: "Connected websocket dashboard clients",
		},
		func() float64 { return float64(count()) },
	))
}

// ObserveInference records one sidecar round-trip.
func (m *Metrics) ObserveInference(d time.Duration) {
	m.ClassifierCalls.Add(1)
	m.InferenceMs.Store(uint64(d.Milliseconds()))
}

// Handler returns the Prometheus scrape handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
