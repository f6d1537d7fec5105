// Package metrics records dispatch statistics as Prometheus collectors and
// keeps a per-kind in-memory view for diagnostics.
package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	errspkg "github.com/drblury/parcelflow/internal/runtime/errors"
	"github.com/drblury/parcelflow/internal/runtime/parcel"
)

// Outcome labels recorded for every dispatched parcel.
const (
	OutcomeOK           = "ok"
	OutcomeErrorEvents  = "error_events"
	OutcomeNotFound     = "not_found"
	OutcomeLibraryError = "library_error"
	OutcomeFailed       = "failed"
)

// KindStats holds the counters of one request kind.
type KindStats struct {
	Dispatched   uint64        `json:"dispatched"`
	Responses    uint64        `json:"responses"`
	ErrorEvents  uint64        `json:"error_events"`
	NotFound     uint64        `json:"not_found"`
	Failures     uint64        `json:"failures"`
	TotalElapsed time.Duration `json:"total_elapsed"`
	LastSeenAt   time.Time     `json:"last_seen_at"`
}

// Snapshot is a point-in-time copy of the in-memory statistics.
type Snapshot struct {
	TotalDispatched uint64                `json:"total_dispatched"`
	TotalErrors     uint64                `json:"total_errors"`
	Kinds           map[string]*KindStats `json:"kinds"`
	CollectedAt     time.Time             `json:"collected_at"`
}

// Metrics tracks dispatcher activity.
type Metrics struct {
	mu    sync.RWMutex
	kinds map[string]*KindStats

	dispatchedTotal *prometheus.CounterVec
	responsesTotal  *prometheus.CounterVec
	errorEvents     *prometheus.CounterVec
	durationSeconds *prometheus.HistogramVec

	registerer prometheus.Registerer
	registered bool
	pending    []prometheus.Collector
}

func newCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "parcelflow",
			Subsystem: "dispatch",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// New creates a collector set bound to registerer. A nil registerer uses the
// Prometheus default registerer.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Metrics{
		kinds:           make(map[string]*KindStats),
		registerer:      registerer,
		dispatchedTotal: newCounterVec("parcels_total", "Parcels handed to the dispatcher by kind and outcome", []string{"kind", "outcome"}),
		responsesTotal:  newCounterVec("responses_total", "Response parcels produced by response kind", []string{"kind"}),
		errorEvents:     newCounterVec("error_events_total", "Caught-exception events produced by request kind", []string{"kind"}),
		durationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "parcelflow",
				Subsystem: "dispatch",
				Name:      "duration_seconds",
				Help:      "Time spent dispatching one parcel",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
	}
}

// Register registers the collectors. Calling it again is a no-op.
func (m *Metrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.dispatchedTotal,
		m.responsesTotal,
		m.errorEvents,
		m.durationSeconds,
	}
	collectors = append(collectors, m.pending...)

	for _, c := range collectors {
		if err := register(m.registerer, c); err != nil {
			return err
		}
	}

	m.registered = true
	return nil
}

func register(registerer prometheus.Registerer, c prometheus.Collector) error {
	err := registerer.Register(c)
	var already prometheus.AlreadyRegisteredError
	if err != nil && !errors.As(err, &already) {
		return err
	}
	return nil
}

// TrackQueue exposes the depth reported by depth as a gauge labelled with
// name. It is meant for deferred runner queues.
func (m *Metrics) TrackQueue(name string, depth func() int) error {
	gauge := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   "parcelflow",
			Subsystem:   "deferred",
			Name:        "queue_depth",
			Help:        "Tasks waiting in a deferred runner queue",
			ConstLabels: prometheus.Labels{"runner": name},
		},
		func() float64 { return float64(depth()) },
	)

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.registered {
		m.pending = append(m.pending, gauge)
		return nil
	}
	return register(m.registerer, gauge)
}

// ObserveDispatch records the outcome of one dispatcher call.
func (m *Metrics) ObserveDispatch(kind string, results []parcel.Parcel, err error, elapsed time.Duration) {
	outcome := OutcomeOK
	var responses, errorEvents uint64
	for _, r := range results {
		if r.IsError() {
			errorEvents++
			continue
		}
		responses++
		m.responsesTotal.WithLabelValues(r.Kind()).Inc()
	}
	switch {
	case errspkg.IsLibraryError(err):
		outcome = OutcomeLibraryError
	case errors.Is(err, errspkg.ErrNotFound):
		outcome = OutcomeNotFound
	case err != nil:
		outcome = OutcomeFailed
	case errorEvents > 0:
		outcome = OutcomeErrorEvents
	}

	m.dispatchedTotal.WithLabelValues(kind, outcome).Inc()
	m.durationSeconds.WithLabelValues(kind).Observe(elapsed.Seconds())
	if errorEvents > 0 {
		m.errorEvents.WithLabelValues(kind).Add(float64(errorEvents))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.getOrCreateKind(kind)
	stats.Dispatched++
	stats.Responses += responses
	stats.ErrorEvents += errorEvents
	stats.TotalElapsed += elapsed
	stats.LastSeenAt = time.Now()
	switch outcome {
	case OutcomeNotFound:
		stats.NotFound++
	case OutcomeLibraryError, OutcomeFailed:
		stats.Failures++
	}
}

// GetSnapshot returns a copy of the in-memory statistics.
func (m *Metrics) GetSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := Snapshot{
		Kinds:       make(map[string]*KindStats, len(m.kinds)),
		CollectedAt: time.Now(),
	}
	for kind, stats := range m.kinds {
		statsCopy := *stats
		snapshot.Kinds[kind] = &statsCopy
		snapshot.TotalDispatched += stats.Dispatched
		snapshot.TotalErrors += stats.ErrorEvents + stats.Failures
	}
	return snapshot
}

// GetKindStats returns a copy of the statistics of kind, or nil.
func (m *Metrics) GetKindStats(kind string) *KindStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if stats, ok := m.kinds[kind]; ok {
		statsCopy := *stats
		return &statsCopy
	}
	return nil
}

func (m *Metrics) getOrCreateKind(kind string) *KindStats {
	if stats, ok := m.kinds[kind]; ok {
		return stats
	}
	stats := &KindStats{}
	m.kinds[kind] = stats
	return stats
}

// Reset clears every statistic (useful for testing).
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.kinds = make(map[string]*KindStats)
	m.dispatchedTotal.Reset()
	m.responsesTotal.Reset()
	m.errorEvents.Reset()
	m.durationSeconds.Reset()
}
