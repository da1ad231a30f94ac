// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all registry Prometheus metrics
type Metrics struct {
	ProfileCount   prometheus.Gauge
	ProfilesAdded  prometheus.Counter
	ProfilesEvicted prometheus.Counter

	Updates *prometheus.CounterVec // result: success, invalid, denied

	Disables *prometheus.CounterVec // reason label
	Enables  prometheus.Counter

	StoreWrites      prometheus.Counter
	StoreWriteErrors prometheus.Counter

	MacRotations prometheus.Counter
	LinksActive  prometheus.Gauge
}

// NewMetrics creates a new Prometheus metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		ProfileCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "airwall_profiles",
			Help: "Number of profiles currently in the registry",
		}),
		ProfilesAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "airwall_profiles_added_total",
			Help: "Total number of profiles added to the registry",
		}),
		ProfilesEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "airwall_profiles_evicted_total",
			Help: "Total number of profiles removed by the capacity policy",
		}),

		Updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airwall_profile_updates_total",
			Help: "Total number of profile add/update requests by result",
		}, []string{"result"}),

		Disables: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airwall_profile_disables_total",
			Help: "Total number of selection disables by reason",
		}, []string{"reason"}),
		Enables: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "airwall_profile_enables_total",
			Help: "Total number of selection enables",
		}),

		StoreWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "airwall_store_writes_total",
			Help: "Total number of durable store writes",
		}),
		StoreWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "airwall_store_write_errors_total",
			Help: "Total number of failed durable store writes",
		}),

		MacRotations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "airwall_mac_rotations_total",
			Help: "Total number of randomized address rotations",
		}),
		LinksActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "airwall_profile_links",
			Help: "Number of active profile link pairs",
		}),
	}
}

// Describe implements prometheus.Collector
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.ProfileCount.Describe(ch)
	m.ProfilesAdded.Describe(ch)
	m.ProfilesEvicted.Describe(ch)
	m.Updates.Describe(ch)
	m.Disables.Describe(ch)
	m.Enables.Describe(ch)
	m.StoreWrites.Describe(ch)
	m.StoreWriteErrors.Describe(ch)
	m.MacRotations.Describe(ch)
	m.LinksActive.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.ProfileCount.Collect(ch)
	m.ProfilesAdded.Collect(ch)
	m.ProfilesEvicted.Collect(ch)
	m.Updates.Collect(ch)
	m.Disables.Collect(ch)
	m.Enables.Collect(ch)
	m.StoreWrites.Collect(ch)
	m.StoreWriteErrors.Collect(ch)
	m.MacRotations.Collect(ch)
	m.LinksActive.Collect(ch)
}

// RegisterMetrics registers all metrics with Prometheus
func (m *Metrics) RegisterMetrics() {
	prometheus.MustRegister(m)
}
