// Package metric provides Prometheus metrics for ussal.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector reports build information and process uptime.
type Collector struct {
	started time.Time
	now     func() time.Time

	buildInfo *prometheus.Desc
	uptime    *prometheus.Desc

	version, commit, mode string
}

// NewCollector creates a collector for the running build.
func NewCollector(version, commit, mode string) *Collector {
	return &Collector{
		started: time.Now(),
		now:     time.Now,
		buildInfo: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "build_info"),
			"Build information of the running server",
			[]string{"version", "commit", "mode"}, nil,
		),
		uptime: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "uptime_seconds"),
			"Seconds since the server started",
			nil, nil,
		),
		version: version,
		commit:  commit,
		mode:    mode,
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.buildInfo
	ch <- c.uptime
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.buildInfo, prometheus.GaugeValue, 1, c.version, c.commit, c.mode)
	ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, c.now().Sub(c.started).Seconds())
}
