package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/Klodi1379/LogiSys-Pro/core/metrics"
)

// PromSink records dispatch-engine events as Prometheus metrics.
type PromSink struct {
	optimizations *prometheus.CounterVec
	optElapsed    prometheus.Histogram
	unassigned    prometheus.Counter
	transitions   *prometheus.CounterVec
	pings         *prometheus.CounterVec
}

// NewPromSink registers the collectors on reg, reusing already-registered
// ones. If reg is nil, the default registerer is used.
func NewPromSink(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		optimizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "route_optimizations_total",
			Help: "Total number of optimization runs",
		}, []string{"timed_out"}),
		optElapsed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "route_optimization_seconds",
			Help:    "Wall time of optimization runs",
			Buckets: prometheus.DefBuckets,
		}),
		unassigned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "route_orders_unassigned_total",
			Help: "Orders no vehicle could serve",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shipment_transitions_total",
			Help: "Shipment lifecycle transitions",
		}, []string{"from", "to"}),
		pings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracking_pings_total",
			Help: "Tracking events by ingestion outcome",
		}, []string{"outcome"}),
	}

	for _, c := range []prometheus.Collector{s.optimizations, s.optElapsed, s.unassigned, s.transitions, s.pings} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, err
			}
		}
	}
	return s, nil
}

func (s *PromSink) RecordOptimization(r coremetrics.OptimizationResult) error {
	s.optimizations.WithLabelValues(strconv.FormatBool(r.TimedOut)).Inc()
	s.optElapsed.Observe(r.Elapsed.Seconds())
	s.unassigned.Add(float64(r.OrdersDropped))
	return nil
}

func (s *PromSink) RecordTransition(r coremetrics.TransitionRecord) error {
	s.transitions.WithLabelValues(string(r.From), string(r.To)).Inc()
	return nil
}

func (s *PromSink) RecordTracking(r coremetrics.TrackingRecord) error {
	outcome := "accepted"
	if r.Stale {
		outcome = "stale"
	}
	s.pings.WithLabelValues(outcome).Inc()
	return nil
}
