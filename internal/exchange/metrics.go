package exchange

import (
	"strconv"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"

	"ammLedger/internal/fixed"
)

// Metrics holds the Prometheus collectors for an exchange.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	swapVolume *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ammledger_operations_total",
			Help: "Operations applied, labeled by kind and outcome.",
		}, []string{"kind", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ammledger_operation_duration_seconds",
			Help:    "Time taken to apply a single operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		swapVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ammledger_swap_volume_tokens",
			Help: "Token units swapped into pools, labeled by pool and token.",
		}, []string{"pool", "token"}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.duration, m.swapVolume)
	}
	return m
}

func (m *Metrics) observe(kind string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "rejected"
	}
	m.operations.WithLabelValues(kind, outcome).Inc()
	m.duration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

func (m *Metrics) swapped(pool, token string, amount *uint256.Int) {
	if m == nil || amount == nil {
		return
	}
	v, err := strconv.ParseFloat(fixed.Format(amount), 64)
	if err != nil {
		return
	}
	m.swapVolume.WithLabelValues(pool, token).Add(v)
}
