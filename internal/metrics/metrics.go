// Package metrics exposes Prometheus collectors for the progress engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "playbook"

// Metrics holds the engine collectors.
type Metrics struct {
	operationDuration *prometheus.HistogramVec
	verifications     *prometheus.CounterVec
	stepsCompleted    *prometheus.CounterVec
	journeysCompleted *prometheus.CounterVec
	conflicts         prometheus.Counter
	reg               prometheus.Registerer
}

// New registers the engine collectors on reg, reusing collectors that are
// already registered there.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		reg: reg,
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operation_duration_seconds",
			Help:      "Duration of journey operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "result"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "verifications_total",
			Help:      "Verification rule lookups by step type and outcome.",
		}, []string{"step_type", "outcome"}),
		stepsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "steps_completed_total",
			Help:      "Steps marked completed, by how they were completed.",
		}, []string{"mode"}),
		journeysCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "journeys_completed_total",
			Help:      "Journeys that reached 100%.",
		}, []string{"playbook_id"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "concurrent_modifications_total",
			Help:      "Conditional progress writes lost to a concurrent writer.",
		}),
	}

	if err := register(reg, &m.operationDuration); err != nil {
		return nil, err
	}
	if err := register(reg, &m.verifications); err != nil {
		return nil, err
	}
	if err := register(reg, &m.stepsCompleted); err != nil {
		return nil, err
	}
	if err := register(reg, &m.journeysCompleted); err != nil {
		return nil, err
	}
	if err := register(reg, &m.conflicts); err != nil {
		return nil, err
	}
	return m, nil
}

// register registers *c, swapping in the existing collector on a duplicate.
func register[C prometheus.Collector](reg prometheus.Registerer, c *C) error {
	if err := reg.Register(*c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				*c = existing
				return nil
			}
		}
		return err
	}
	return nil
}

// ObserveOperation records an operation's duration and whether it failed.
func (m *Metrics) ObserveOperation(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.operationDuration.WithLabelValues(operation, result).Observe(d.Seconds())
}

// IncVerification counts one rule lookup.
func (m *Metrics) IncVerification(stepType, outcome string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(stepType, outcome).Inc()
}

// AddStepsCompleted counts newly completed steps. mode is "auto" or "manual".
func (m *Metrics) AddStepsCompleted(mode string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.stepsCompleted.WithLabelValues(mode).Add(float64(n))
}

// IncJourneyCompleted counts a journey reaching completion.
func (m *Metrics) IncJourneyCompleted(playbookID string) {
	if m == nil {
		return
	}
	m.journeysCompleted.WithLabelValues(playbookID).Inc()
}

// IncConflict counts a lost optimistic write.
func (m *Metrics) IncConflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

// RegisterCacheStats exposes hit and miss counters read from stats on every
// scrape.
func (m *Metrics) RegisterCacheStats(cache string, stats func() (hits, misses uint64)) error {
	if m == nil {
		return nil
	}
	labels := prometheus.Labels{"cache": cache}
	hits := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "cache",
		Name:        "hits_total",
		Help:        "Cache lookups served from memory.",
		ConstLabels: labels,
	}, func() float64 {
		h, _ := stats()
		return float64(h)
	})
	misses := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "cache",
		Name:        "misses_total",
		Help:        "Cache lookups that went to the backing store.",
		ConstLabels: labels,
	}, func() float64 {
		_, mi := stats()
		return float64(mi)
	})
	if err := m.reg.Register(hits); err != nil {
		return err
	}
	return m.reg.Register(misses)
}

// RegisterDroppedEvents exposes the number of progress events that a slow
// subscriber missed.
func (m *Metrics) RegisterDroppedEvents(dropped func() uint64) error {
	if m == nil {
		return nil
	}
	return m.reg.Register(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "dropped_total",
		Help:      "Progress events not delivered because a subscriber buffer was full.",
	}, func() float64 {
		return float64(dropped())
	}))
}
