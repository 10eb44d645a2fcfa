package main

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors. A single package-level instance
// registers against the default registry at startup.
type Metrics struct {
	// Session metrics
	sessionState    prometheus.Gauge // current lifecycle state (0=idle 1=starting 2=active 3=stopping)
	sessionsTotal   prometheus.Counter
	recordingActive prometheus.Gauge

	// Decoder signal metrics
	berGauge          prometheus.Gauge
	eventsTotal       *prometheus.CounterVec // parsed events by type
	unrecognizedLines prometheus.Counter
	historyEntries    prometheus.Gauge

	// Audio pipeline metrics
	audioBytesTotal   prometheus.Counter
	audioDroppedTotal *prometheus.CounterVec // dropped chunks by consumer

	// Process metrics
	processExits      *prometheus.CounterVec // unexpected exits by role
	decoderCPUPercent prometheus.Gauge
	decoderRSSBytes   prometheus.Gauge

	// Resource metrics
	goroutineCount   prometheus.Gauge
	memoryAllocBytes prometheus.Gauge
}

var metrics = newMetrics()

func newMetrics() *Metrics {
	return &Metrics{
		sessionState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "hdradio_session_state",
			Help: "Current session lifecycle state (0=idle, 1=starting, 2=active, 3=stopping)",
		}),
		sessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hdradio_sessions_total",
			Help: "Total radio sessions started",
		}),
		recordingActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "hdradio_recording_active",
			Help: "Whether a recording is in progress (0 or 1)",
		}),
		berGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "hdradio_ber",
			Help: "Most recent bit error rate reported by the decoder (0-1)",
		}),
		eventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hdradio_decoder_events_total",
			Help: "Parsed decoder log events by type",
		}, []string{"type"}),
		unrecognizedLines: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hdradio_decoder_unrecognized_lines_total",
			Help: "Decoder log lines that matched no known pattern",
		}),
		historyEntries: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "hdradio_history_entries",
			Help: "Current number of play history entries",
		}),
		audioBytesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "hdradio_audio_bytes_total",
			Help: "Total raw audio bytes read from the decoder",
		}),
		audioDroppedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hdradio_audio_dropped_chunks_total",
			Help: "Audio chunks dropped per fan-out consumer",
		}, []string{"consumer"}),
		processExits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "hdradio_process_exits_total",
			Help: "Unexpected child process exits by role",
		}, []string{"role"}),
		decoderCPUPercent: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "hdradio_decoder_cpu_percent",
			Help: "Decoder process CPU usage percent",
		}),
		decoderRSSBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "hdradio_decoder_rss_bytes",
			Help: "Decoder process resident memory in bytes",
		}),
		goroutineCount: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "hdradio_goroutines",
			Help: "Current number of goroutines",
		}),
		memoryAllocBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "hdradio_memory_alloc_bytes",
			Help: "Current allocated heap memory in bytes",
		}),
	}
}

// StartResourceMetrics updates the process resource gauges on an interval
func StartResourceMetrics(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			metrics.goroutineCount.Set(float64(runtime.NumGoroutine()))
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			metrics.memoryAllocBytes.Set(float64(m.Alloc))
		}
	}()
}
