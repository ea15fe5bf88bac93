package sourcemap

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	lvMiss = "miss"
	lvHit  = "hit"

	lvSuccess = "success"
	lvError   = "error"
)

// Metrics records cache activity. One Metrics value is shared by every Cache
// created against the same registry.
type Metrics struct {
	requests     *prometheus.CounterVec
	loads        *prometheus.CounterVec
	loadDuration prometheus.Histogram
}

// NewMetrics registers the cache collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "profremap_sourcemap_cache_requests_total",
			Help: "Total number of source map cache requests.",
		}, []string{"result"}),
		loads: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "profremap_sourcemap_loads_total",
			Help: "Total number of source map loads.",
		}, []string{"result"}),
		loadDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "profremap_sourcemap_load_duration_seconds",
			Help:    "Time spent reading and parsing source maps.",
			Buckets: []float64{0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1},
		}),
	}
}

func (m *Metrics) recordHit() {
	m.requests.WithLabelValues(lvHit).Inc()
}

func (m *Metrics) recordMiss() {
	m.requests.WithLabelValues(lvMiss).Inc()
}

func (m *Metrics) recordLoad(took time.Duration, err error) {
	if err != nil {
		m.loads.WithLabelValues(lvError).Inc()
	} else {
		m.loads.WithLabelValues(lvSuccess).Inc()
	}
	m.loadDuration.Observe(took.Seconds())
}
