package fedclient

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/socialdist/fednode/types"
)

// Metrics counts outbound federation traffic. A nil *Metrics records nothing.
type Metrics struct {
	requestsOut *prometheus.HistogramVec
	failures    *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	res := Metrics{}

	res.requestsOut = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fednode_requests_out_duration_seconds",
		Help:    "Duration of outbound requests to peer nodes",
		Buckets: prometheus.DefBuckets,
	}, []string{"node", "method", "status"})
	res.requestsOut = register(res.requestsOut)

	res.failures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fednode_requests_out_failures_total",
		Help: "Outbound requests that never got an answer",
	}, []string{"node"})
	res.failures = register(res.failures)

	return &res
}

// register returns the collector already registered under the same name, if any.
func register[T prometheus.Collector](c T) T {
	if err := prometheus.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

func (m *Metrics) observe(n types.Node, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requestsOut.WithLabelValues(n.Name, method, statusLabel(status)).Observe(d.Seconds())
}

func (m *Metrics) failure(n types.Node) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(n.Name).Inc()
}
