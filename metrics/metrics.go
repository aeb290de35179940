// Package metrics provides Prometheus metrics for a conversion run.
//
// Collectors live on a private registry so several runs (and tests) never
// share state. At the end of a run the registry can be written as a
// node-exporter textfile.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "avifopt"

// Recorder is safe for concurrent use. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	assets          *prometheus.CounterVec
	bytes           *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	detections      *prometheus.CounterVec
	frames          *prometheus.CounterVec
	cleanupFailures prometheus.Counter
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		assets: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assets_total",
			Help:      "Assets processed, by outcome",
		}, []string{"outcome"}),
		bytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_total",
			Help:      "Bytes read and written by successful conversions",
		}, []string{"direction"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Time spent per pipeline stage",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"stage"}),
		detections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detector",
			Name:      "verdicts_total",
			Help:      "Detection verdicts, by deciding tier",
		}, []string{"method", "verdict"}),
		frames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "frames_total",
			Help:      "Frames extracted from sources and retained after sampling",
		}, []string{"phase"}),
		cleanupFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workspace",
			Name:      "cleanup_failures_total",
			Help:      "Workspaces that could not be removed",
		}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) CountAsset(outcome string) {
	if r == nil {
		return
	}
	r.assets.WithLabelValues(outcome).Inc()
}

// AddBytes records the input and output size of one converted asset.
func (r *Recorder) AddBytes(in, out int64) {
	if r == nil {
		return
	}
	r.bytes.WithLabelValues("in").Add(float64(in))
	r.bytes.WithLabelValues("out").Add(float64(out))
}

func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (r *Recorder) CountDetection(method, verdict string) {
	if r == nil {
		return
	}
	r.detections.WithLabelValues(method, verdict).Inc()
}

func (r *Recorder) AddFrames(phase string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.frames.WithLabelValues(phase).Add(float64(n))
}

func (r *Recorder) CountCleanupFailure() {
	if r == nil {
		return
	}
	r.cleanupFailures.Inc()
}

// WriteTextfile writes every collected metric to path in the text
// exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
