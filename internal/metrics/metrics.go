package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all pipeline metrics.
// The zero value is not usable; call New. All methods are nil-safe.
type Metrics struct {
	// Acquisition counters
	FramesRead      atomic.Uint64
	FramesAnnotated atomic.Uint64
	Runs            atomic.Uint64

	// Error counters
	CameraErrors    atomic.Uint64
	InferenceErrors atomic.Uint64
	StorageErrors   atomic.Uint64

	// Capture log
	CapturesWritten atomic.Uint64
	RowsAppended    atomic.Uint64

	// Latency tracking
	TickLatencyMs      atomic.Uint64 // Last tick latency in ms
	InferenceLatencyMs atomic.Uint64 // Last inference latency in ms

	// Session state
	AcquisitionActive atomic.Uint64 // 0 = idle, 1 = acquiring

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics()
	return m
}

type gauge struct {
	name string
	help string
	v    *atomic.Uint64
}

func (m *Metrics) registerPrometheusMetrics() {
	gauges := []gauge{
		{"detector_frames_read_total", "Total frames read from the camera", &m.FramesRead},
		{"detector_frames_annotated_total", "Total frames run through detection and annotation", &m.FramesAnnotated},
		{"detector_acquisition_runs_total", "Total acquisition runs started", &m.Runs},
		{"detector_camera_errors_total", "Total camera open/read failures", &m.CameraErrors},
		{"detector_inference_errors_total", "Total detection failures", &m.InferenceErrors},
		{"detector_storage_errors_total", "Total capture log write failures", &m.StorageErrors},
		{"detector_captures_written_total", "Total capture events persisted", &m.CapturesWritten},
		{"detector_log_rows_appended_total", "Total structured log rows appended", &m.RowsAppended},
		{"detector_tick_latency_ms", "Latency of the last acquisition tick in milliseconds", &m.TickLatencyMs},
		{"detector_inference_latency_ms", "Latency of the last detection call in milliseconds", &m.InferenceLatencyMs},
		{"detector_acquisition_active", "Acquisition active (0=idle, 1=acquiring)", &m.AcquisitionActive},
	}

	for _, g := range gauges {
		v := g.v
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			func() float64 { return float64(v.Load()) },
		))
	}
}

// ObserveTick records the latency of one tick.
func (m *Metrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.TickLatencyMs.Store(uint64(d.Milliseconds()))
}

// ObserveInference records the latency of one detection call.
func (m *Metrics) ObserveInference(d time.Duration) {
	if m == nil {
		return
	}
	m.InferenceLatencyMs.Store(uint64(d.Milliseconds()))
}

// SetAcquiring updates the acquisition state gauge.
func (m *Metrics) SetAcquiring(active bool) {
	if m == nil {
		return
	}
	if active {
		m.AcquisitionActive.Store(1)
	} else {
		m.AcquisitionActive.Store(0)
	}
}

// Inc adds one to counter when m is non-nil.
func (m *Metrics) Inc(counter func(*Metrics) *atomic.Uint64) {
	if m == nil {
		return
	}
	counter(m).Add(1)
}

// Add adds n to counter when m is non-nil.
func (m *Metrics) Add(counter func(*Metrics) *atomic.Uint64, n uint64) {
	if m == nil {
		return
	}
	counter(m).Add(n)
}

// Counter selectors for Inc/Add.
var (
	FramesRead      = func(m *Metrics) *atomic.Uint64 { return &m.FramesRead }
	FramesAnnotated = func(m *Metrics) *atomic.Uint64 { return &m.FramesAnnotated }
	Runs            = func(m *Metrics) *atomic.Uint64 { return &m.Runs }
	CameraErrors    = func(m *Metrics) *atomic.Uint64 { return &m.CameraErrors }
	InferenceErrors = func(m *Metrics) *atomic.Uint64 { return &m.InferenceErrors }
	StorageErrors   = func(m *Metrics) *atomic.Uint64 { return &m.StorageErrors }
	CapturesWritten = func(m *Metrics) *atomic.Uint64 { return &m.CapturesWritten }
	RowsAppended    = func(m *Metrics) *atomic.Uint64 { return &m.RowsAppended }
)

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
