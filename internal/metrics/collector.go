// Package metrics exposes Prometheus instrumentation for the bot.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "quickhelp"

// Remote services observed by RecordRemoteCall.
const (
	ServiceLLM      = "llm"
	ServiceOCR      = "ocr"
	ServiceTelegram = "telegram"
)

// activeWindow is how long a user counts as active after their last update.
const activeWindow = 5 * time.Minute

// Collector manages all Prometheus metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	updatesTotal        *prometheus.CounterVec
	quotaDecisionsTotal *prometheus.CounterVec
	remoteCallsTotal    *prometheus.CounterVec
	remoteCallDuration  *prometheus.HistogramVec
	premiumUpgrades     prometheus.Counter
	activeUsersGauge    prometheus.Gauge
	queueDepth          *prometheus.GaugeVec

	gatherer prometheus.Gatherer

	mu          sync.Mutex
	activeUsers map[int64]time.Time
	now         func() time.Time
}

// NewCollector creates a collector on a fresh registry that also carries
// the Go runtime and process collectors.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewCollectorWithRegistry(registry)
}

// NewCollectorWithRegistry registers all metrics on registry, or on the
// default registry when it is nil.
func NewCollectorWithRegistry(registry *prometheus.Registry) *Collector {
	var factory promauto.Factory
	var gatherer prometheus.Gatherer
	if registry == nil {
		factory = promauto.With(prometheus.DefaultRegisterer)
		gatherer = prometheus.DefaultGatherer
	} else {
		factory = promauto.With(registry)
		gatherer = registry
	}

	return &Collector{
		updatesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "updates_total",
				Help:      "Total number of routed Telegram updates by handler kind",
			},
			[]string{"kind"},
		),

		quotaDecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quota_decisions_total",
				Help:      "Total number of free-tier quota decisions",
			},
			[]string{"decision"},
		),

		remoteCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remote_calls_total",
				Help:      "Total number of calls to remote services",
			},
			[]string{"service", "status"},
		),

		remoteCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "remote_call_duration_seconds",
				Help:      "Time spent waiting on remote services",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"service"},
		),

		premiumUpgrades: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "premium_upgrades_total",
				Help:      "Total number of users added to the premium set",
			},
		),

		activeUsersGauge: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_users",
				Help:      "Number of users seen in the last five minutes",
			},
		),

		queueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_queue_depth",
				Help:      "Current depth of the worker pool queues",
			},
			[]string{"queue"},
		),

		gatherer:    gatherer,
		activeUsers: make(map[int64]time.Time),
		now:         time.Now,
	}
}

// Gatherer returns the registry the collector reports to.
func (m *Collector) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.DefaultGatherer
	}
	return m.gatherer
}

// RecordUpdate counts a routed update and marks the user active.
func (m *Collector) RecordUpdate(userID int64, kind string) {
	if m == nil {
		return
	}
	m.updatesTotal.WithLabelValues(kind).Inc()

	m.mu.Lock()
	m.activeUsers[userID] = m.now()
	m.mu.Unlock()

	m.updateActiveUsersGauge()
}

// RecordQuotaDecision counts a quota check outcome: allowed, denied or premium.
func (m *Collector) RecordQuotaDecision(decision string) {
	if m == nil {
		return
	}
	m.quotaDecisionsTotal.WithLabelValues(decision).Inc()
}

// RecordRemoteCall records one remote call outcome and its latency.
func (m *Collector) RecordRemoteCall(service string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.remoteCallsTotal.WithLabelValues(service, status).Inc()
	m.remoteCallDuration.WithLabelValues(service).Observe(duration.Seconds())
}

func (m *Collector) RecordPremiumUpgrade() {
	if m == nil {
		return
	}
	m.premiumUpgrades.Inc()
}

// UpdateQueueDepth sets the current length of a worker queue.
func (m *Collector) UpdateQueueDepth(queue string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(queue).Set(float64(depth))
}

// updateActiveUsersGauge drops users idle for longer than activeWindow.
func (m *Collector) updateActiveUsersGauge() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-activeWindow)
	for userID, lastSeen := range m.activeUsers {
		if lastSeen.Before(cutoff) {
			delete(m.activeUsers, userID)
		}
	}

	m.activeUsersGauge.Set(float64(len(m.activeUsers)))
}

// GetActiveUsersCount returns the current number of active users.
func (m *Collector) GetActiveUsersCount() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.activeUsers)
}

// Cleanup performs periodic cleanup of the active user set.
func (m *Collector) Cleanup() {
	if m == nil {
		return
	}
	m.updateActiveUsersGauge()
}
