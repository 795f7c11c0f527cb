package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Operation results reported by HardwareMetrics.
const (
	ResultOK       = "ok"
	ResultNotFound = "not_found"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// HardwareMetrics counts reservation engine outcomes.
type HardwareMetrics struct {
	operations *prometheus.CounterVec
	swept      prometheus.Counter
}

// NewHardwareMetrics registers the hardware metrics on reg. A nil registerer yields a no-op recorder.
func NewHardwareMetrics(reg prometheus.Registerer) *HardwareMetrics {
	if reg == nil {
		return &HardwareMetrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hardware_operations_total",
		Help: "Hardware reservation operations by outcome.",
	}, []string{"op", "result"})
	swept := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hardware_reservations_swept_total",
		Help: "Expired reservations reclaimed.",
	})
	reg.MustRegister(operations, swept)
	return &HardwareMetrics{operations: operations, swept: swept}
}

// Observe records one operation outcome.
func (m *HardwareMetrics) Observe(op, result string) {
	if m == nil || m.operations == nil {
		return
	}
	m.operations.WithLabelValues(normalizeLabel(op), normalizeLabel(result)).Inc()
}

// AddSwept adds n reclaimed reservations.
func (m *HardwareMetrics) AddSwept(n int) {
	if m == nil || m.swept == nil || n <= 0 {
		return
	}
	m.swept.Add(float64(n))
}
