// Package metrics exposes booking counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Commit outcomes.
const (
	OutcomeCommitted   = "committed"
	OutcomeUnchanged   = "unchanged"
	OutcomeConflict    = "slot_conflict"
	OutcomeCapExceeded = "cap_exceeded"
	OutcomeInvalid     = "validation_failed"
	OutcomeNotFound    = "not_found"
	OutcomeTransient   = "transient"
	OutcomeError       = "error"
)

// Booking holds the collectors. A nil *Booking records nothing.
type Booking struct {
	registry       *prometheus.Registry
	commits        *prometheus.CounterVec
	commitDuration prometheus.Histogram
	availability   prometheus.Counter
	notifyFailures prometheus.Counter
}

func New() *Booking {
	reg := prometheus.NewRegistry()
	b := &Booking{
		registry: reg,
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sprintbook",
			Name:      "commits_total",
			Help:      "Slot commit attempts by outcome.",
		}, []string{"outcome"}),
		commitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sprintbook",
			Name:      "commit_duration_seconds",
			Help:      "Time spent in the commit pipeline, lock wait included.",
			Buckets:   prometheus.DefBuckets,
		}),
		availability: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sprintbook",
			Name:      "availability_requests_total",
			Help:      "Availability computations served.",
		}),
		notifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sprintbook",
			Name:      "notify_failures_total",
			Help:      "Change notifications that could not be published.",
		}),
	}
	reg.MustRegister(b.commits, b.commitDuration, b.availability, b.notifyFailures,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return b
}

func (b *Booking) ObserveCommit(outcome string, d time.Duration) {
	if b == nil {
		return
	}
	b.commits.WithLabelValues(outcome).Inc()
	b.commitDuration.Observe(d.Seconds())
}

func (b *Booking) AvailabilityServed() {
	if b == nil {
		return
	}
	b.availability.Inc()
}

func (b *Booking) NotifyFailed() {
	if b == nil {
		return
	}
	b.notifyFailures.Inc()
}

// Registry exposes the underlying registry for gathering.
func (b *Booking) Registry() *prometheus.Registry {
	if b == nil {
		return prometheus.NewRegistry()
	}
	return b.registry
}

// Handler serves the registry in the Prometheus text format.
func (b *Booking) Handler() http.Handler {
	return promhttp.HandlerFor(b.Registry(), promhttp.HandlerOpts{})
}
