package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// FramesCaptured counts raw frames read off the packet socket.
	FramesCaptured = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "capwatch",
			Name:      "frames_captured_total",
			Help:      "Total number of raw frames read by the sniffer",
		},
		[]string{"interface"},
	)

	// FramesDropped counts frames dropped from the frame queue on overflow.
	FramesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "capwatch",
			Name:      "frames_dropped_total",
			Help:      "Total number of frames dropped by the frame queue",
		},
		[]string{"interface"},
	)

	// TuneAttempts counts the Tuner's try_tune calls, tagged by outcome.
	// Scan-list construction and parking are not counted.
	TuneAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "capwatch",
			Name:      "tune_attempts_total",
			Help:      "Total number of Radio Controller tune attempts",
		},
		[]string{"outcome"}, // ok | invalid | fatal
	)

	// EventsEmitted counts Update Channel events, tagged by kind.
	EventsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "capwatch",
			Name:      "events_emitted_total",
			Help:      "Total number of events published on the Update Channel",
		},
		[]string{"kind"},
	)

	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry.
// Idempotent: safe to call multiple times.
func InitMetrics() {
	once.Do(func() {
		prometheus.DefaultRegisterer.Register(FramesCaptured)
		prometheus.DefaultRegisterer.Register(FramesDropped)
		prometheus.DefaultRegisterer.Register(TuneAttempts)
		prometheus.DefaultRegisterer.Register(EventsEmitted)
	})
}
