// Package metrics exposes Prometheus metrics for the round services.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/flashbots/richest-revealer/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OutcomeOK labels successful operations. Failures use protocol.ErrorCode.
const OutcomeOK = "ok"

// RoundMetrics instruments round operations. A nil *RoundMetrics is valid
// and records nothing.
type RoundMetrics struct {
	submissions        *prometheus.CounterVec
	computations       *prometheus.CounterVec
	decryptionRequests *prometheus.CounterVec
	callbacks          *prometheus.CounterVec
	deliveries         *prometheus.CounterVec
	phase              prometheus.Gauge
	participants       prometheus.Gauge
	coprocessorLatency *prometheus.HistogramVec
}

// NewRoundMetrics registers round metrics with reg.
func NewRoundMetrics(reg prometheus.Registerer, namespace string) *RoundMetrics {
	factory := promauto.With(reg)
	outcome := []string{"outcome"}

	return &RoundMetrics{
		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "round",
			Name:      "submissions_total",
			Help:      "Wealth submissions by outcome",
		}, outcome),
		computations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "round",
			Name:      "computations_total",
			Help:      "Richest computations by outcome",
		}, outcome),
		decryptionRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "round",
			Name:      "decryption_requests_total",
			Help:      "Decryption requests by outcome",
		}, outcome),
		callbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "round",
			Name:      "decryption_callbacks_total",
			Help:      "Oracle decryption callbacks by outcome",
		}, outcome),
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "deliveries_total",
			Help:      "Decryption deliveries attempted by the oracle",
		}, outcome),
		phase: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "round",
			Name:      "phase",
			Help:      "Current round phase (0 open .. 4 revealed)",
		}),
		participants: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "round",
			Name:      "participants",
			Help:      "Number of accepted submissions",
		}),
		coprocessorLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "coprocessor",
			Name:      "request_duration_seconds",
			Help:      "Latency of round operations including coprocessor calls",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"operation"}),
	}
}

func outcomeOf(err error) string {
	if err == nil {
		return OutcomeOK
	}
	return protocol.ErrorCode(err)
}

func (m *RoundMetrics) Submission(err error) {
	if m != nil {
		m.submissions.WithLabelValues(outcomeOf(err)).Inc()
	}
}

func (m *RoundMetrics) Computation(err error) {
	if m != nil {
		m.computations.WithLabelValues(outcomeOf(err)).Inc()
	}
}

func (m *RoundMetrics) DecryptionRequest(err error) {
	if m != nil {
		m.decryptionRequests.WithLabelValues(outcomeOf(err)).Inc()
	}
}

func (m *RoundMetrics) Callback(err error) {
	if m != nil {
		m.callbacks.WithLabelValues(outcomeOf(err)).Inc()
	}
}

// Delivery records an oracle delivery attempt.
func (m *RoundMetrics) Delivery(err error) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = "failed"
	}
	m.deliveries.WithLabelValues(outcome).Inc()
}

// ObserveState updates the round gauges.
func (m *RoundMetrics) ObserveState(state *protocol.RoundState) {
	if m != nil {
		m.phase.Set(float64(state.Phase))
		m.participants.Set(float64(state.Count()))
	}
}

// ObserveLatency records the duration of operation since start.
func (m *RoundMetrics) ObserveLatency(operation string, start time.Time) {
	if m != nil {
		m.coprocessorLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// MetricsServer serves /metrics from its own listener.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server for reg, adding the Go runtime and process
// collectors under namespace.
func New(namespace, addr string, reg *prometheus.Registry) (*MetricsServer, error) {
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace})); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	return &MetricsServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
