// Package promcollector exports catalog metrics to Prometheus.
package promcollector

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/calvinalkan/slotstore/pkg/catalog"
)

// Collector implements catalog.MetricsCollector with Prometheus metrics.
type Collector struct {
	opLatency *prometheus.HistogramVec
	ops       *prometheus.CounterVec
	evictions prometheus.Counter
	repairs   *prometheus.CounterVec
	entries   *prometheus.GaugeVec
}

var _ catalog.MetricsCollector = (*Collector)(nil)

// New creates the metrics and registers them with reg. A nil reg uses
// prometheus.DefaultRegisterer. Labels are added to every metric, which
// lets several catalogs share one registry.
func New(reg prometheus.Registerer, labels prometheus.Labels) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "slotstore_operation_duration_seconds",
			Help:        "Latency of catalog operations, lock wait included.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}, []string{"op", "status"}),
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "slotstore_operations_total",
			Help:        "Catalog operations by outcome.",
			ConstLabels: labels,
		}, []string{"op", "status"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "slotstore_evictions_total",
			Help:        "Automatic entries deleted to respect the capacity.",
			ConstLabels: labels,
		}),
		repairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "slotstore_repairs_total",
			Help:        "Entries dropped by normalization when opening a catalog.",
			ConstLabels: labels,
		}, []string{"kind"}),
		entries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "slotstore_entries",
			Help:        "Current number of entries per collection.",
			ConstLabels: labels,
		}, []string{"category"}),
	}

	cols := []prometheus.Collector{c.opLatency, c.ops, c.evictions, c.repairs, c.entries}

	for i, col := range cols {
		err := reg.Register(col)
		if err != nil {
			for _, done := range cols[:i] {
				reg.Unregister(done)
			}

			return nil, fmt.Errorf("register catalog metrics: %w", err)
		}
	}

	return c, nil
}

func status(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, catalog.ErrTimeout):
		return "timeout"
	case errors.Is(err, catalog.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// RecordOperation implements catalog.MetricsCollector.
func (c *Collector) RecordOperation(op catalog.Op, duration time.Duration, err error) {
	s := status(err)
	c.opLatency.WithLabelValues(string(op), s).Observe(duration.Seconds())
	c.ops.WithLabelValues(string(op), s).Inc()
}

// RecordEviction implements catalog.MetricsCollector.
func (c *Collector) RecordEviction(count int) {
	c.evictions.Add(float64(count))
}

// RecordRepairs implements catalog.MetricsCollector.
func (c *Collector) RecordRepairs(r catalog.Repairs) {
	c.repairs.WithLabelValues("orphan").Add(float64(r.Orphans))
	c.repairs.WithLabelValues("duplicate_id").Add(float64(r.DuplicateIDs))
	c.repairs.WithLabelValues("duplicate_revision").Add(float64(r.DuplicateRevisions))
	c.repairs.WithLabelValues("evicted").Add(float64(r.Evicted))
}

// RecordSize implements catalog.MetricsCollector.
func (c *Collector) RecordSize(manual, automatic int) {
	c.entries.WithLabelValues("manual").Set(float64(manual))
	c.entries.WithLabelValues("automatic").Set(float64(automatic))
}
