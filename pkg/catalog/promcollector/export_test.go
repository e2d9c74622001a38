package promcollector

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/calvinalkan/slotstore/pkg/catalog"
)

func (c *Collector) OpsCounter(op catalog.Op, status string) prometheus.Counter {
	return c.ops.WithLabelValues(string(op), status)
}

func (c *Collector) EvictionsCounter() prometheus.Counter {
	return c.evictions
}

func (c *Collector) EntriesGauge(cat catalog.Category) prometheus.Gauge {
	return c.entries.WithLabelValues(cat.String())
}
