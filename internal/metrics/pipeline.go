// Package metrics provides Prometheus metrics for the capture pipeline
// and the control channel.
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "arducam",
		Subsystem: "pipeline",
		Name:      "frames_captured_total",
		Help:      "Raw frames accepted from the camera",
	})

	framesEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "arducam",
		Subsystem: "pipeline",
		Name:      "frames_emitted_total",
		Help:      "De-interleaved frames delivered to the sink in order",
	})

	framesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "arducam",
		Subsystem: "pipeline",
		Name:      "frames_dropped_total",
		Help:      "Frames discarded after a transform failure",
	})

	bytesOut = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "arducam",
		Subsystem: "pipeline",
		Name:      "bytes_out_total",
		Help:      "Frame payload bytes handed to the sink",
	})

	transformSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "arducam",
		Subsystem: "pipeline",
		Name:      "transform_seconds",
		Help:      "Band de-interleave duration per frame",
		Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25},
	})

	ingressDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "arducam",
		Subsystem: "pipeline",
		Name:      "ingress_depth",
		Help:      "Raw frames waiting in the ingress queue",
	})

	outputDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "arducam",
		Subsystem: "pipeline",
		Name:      "output_depth",
		Help:      "Transformed frames waiting per worker output queue",
	}, []string{"worker"})

	capturing = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "arducam",
		Subsystem: "pipeline",
		Name:      "capturing",
		Help:      "Whether the capture gate is open (1) or closed (0)",
	})

	cameraRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "arducam",
		Subsystem: "camera",
		Name:      "restarts_total",
		Help:      "Streaming restarts after device timeouts",
	})

	controlMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arducam",
		Subsystem: "control",
		Name:      "messages_total",
		Help:      "Decoded control messages by key",
	}, []string{"key"})

	controlRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arducam",
		Subsystem: "control",
		Name:      "rejects_total",
		Help:      "Control messages rejected by reason",
	}, []string{"reason"})

	// Local cache for the status endpoint.
	pipelineCache   PipelineMetrics
	pipelineCacheMu sync.RWMutex
)

// PipelineMetrics holds current counter values for the status endpoint.
type PipelineMetrics struct {
	FramesCaptured uint64  `json:"frames_captured"`
	FramesEmitted  uint64  `json:"frames_emitted"`
	FramesDropped  uint64  `json:"frames_dropped"`
	BytesOut       uint64  `json:"bytes_out"`
	CameraRestarts uint64  `json:"camera_restarts"`
	Capturing      bool    `json:"capturing"`
	LastTransformS float64 `json:"last_transform_seconds"`
}

// IncFrameCaptured counts one raw frame accepted from the camera.
func IncFrameCaptured() {
	framesCaptured.Inc()
	updateCache(func(m *PipelineMetrics) { m.FramesCaptured++ })
}

// IncFrameEmitted counts one in-order frame delivery of the given size.
func IncFrameEmitted(bytes int) {
	framesEmitted.Inc()
	bytesOut.Add(float64(bytes))
	updateCache(func(m *PipelineMetrics) {
		m.FramesEmitted++
		m.BytesOut += uint64(bytes)
	})
}

// IncFrameDropped counts one frame lost to a transform failure.
func IncFrameDropped() {
	framesDropped.Inc()
	updateCache(func(m *PipelineMetrics) { m.FramesDropped++ })
}

// ObserveTransform records one de-interleave duration.
func ObserveTransform(seconds float64) {
	transformSeconds.Observe(seconds)
	updateCache(func(m *PipelineMetrics) { m.LastTransformS = seconds })
}

// SetIngressDepth publishes the current ingress queue depth.
func SetIngressDepth(depth int) {
	ingressDepth.Set(float64(depth))
}

// SetOutputDepth publishes one worker's output queue depth.
func SetOutputDepth(worker int, depth int) {
	outputDepth.WithLabelValues(strconv.Itoa(worker)).Set(float64(depth))
}

// SetCapturing publishes the capture gate state.
func SetCapturing(on bool) {
	v := 0.0
	if on {
		v = 1.0
	}
	capturing.Set(v)
	updateCache(func(m *PipelineMetrics) { m.Capturing = on })
}

// IncCameraRestart counts one stop/start recovery after a device timeout.
func IncCameraRestart() {
	cameraRestarts.Inc()
	updateCache(func(m *PipelineMetrics) { m.CameraRestarts++ })
}

// IncControlMessage counts one decoded control message.
func IncControlMessage(key string) {
	controlMessages.WithLabelValues(key).Inc()
}

// IncControlReject counts one rejected control message.
func IncControlReject(reason string) {
	controlRejects.WithLabelValues(reason).Inc()
}

// GetPipelineMetrics returns a snapshot of the cached pipeline counters.
func GetPipelineMetrics() PipelineMetrics {
	pipelineCacheMu.RLock()
	defer pipelineCacheMu.RUnlock()
	return pipelineCache
}

// ResetPipelineMetrics clears the cached counters for a new session.
func ResetPipelineMetrics() {
	pipelineCacheMu.Lock()
	defer pipelineCacheMu.Unlock()
	pipelineCache = PipelineMetrics{}
}

func updateCache(update func(*PipelineMetrics)) {
	pipelineCacheMu.Lock()
	defer pipelineCacheMu.Unlock()
	update(&pipelineCache)
}
