// Package metrics exposes Prometheus collectors for the cache, query,
// mutation and transport layers. A nil *Metrics is valid and records nothing,
// so every component can hold one unconditionally.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rawrsync"

// Lookup results reported by CacheLookup.
const (
	LookupHit   = "hit"
	LookupMiss  = "miss"
	LookupStale = "stale"
)

// Invalidation kinds reported by Invalidated.
const (
	InvalidateStale  = "stale"
	InvalidateRemove = "remove"
)

// Metrics bundles every collector the library records into.
type Metrics struct {
	lookups       *prometheus.CounterVec
	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	invalidations *prometheus.CounterVec
	entries       *prometheus.GaugeVec
	mutations     *prometheus.HistogramVec
	requests      *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. Collectors that
// are already registered (for example by a second client sharing the same
// registry) are reused instead of failing.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by resource and result (hit, miss, stale).",
		}, []string{"resource", "result"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "fetches_total",
			Help:      "Fetch attempts by resource; mode is started or joined.",
		}, []string{"resource", "mode"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of settled fetches by resource and outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"resource", "outcome"}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Entries invalidated by resource and kind (stale, remove).",
		}, []string{"resource", "kind"}),
		entries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Number of cache entries by pool (live, retained).",
		}, []string{"pool"}),
		mutations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mutation",
			Name:      "duration_seconds",
			Help:      "Duration of mutations by name and outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"name", "outcome"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "request_duration_seconds",
			Help:      "Duration of transport requests by method, policy group and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "group", "code"}),
	}

	var err error
	if m.lookups, err = register(reg, m.lookups); err != nil {
		return nil, err
	}
	if m.fetches, err = register(reg, m.fetches); err != nil {
		return nil, err
	}
	if m.fetchDuration, err = register(reg, m.fetchDuration); err != nil {
		return nil, err
	}
	if m.invalidations, err = register(reg, m.invalidations); err != nil {
		return nil, err
	}
	if m.entries, err = register(reg, m.entries); err != nil {
		return nil, err
	}
	if m.mutations, err = register(reg, m.mutations); err != nil {
		return nil, err
	}
	if m.requests, err = register(reg, m.requests); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// CacheLookup records a cache read for resource.
func (m *Metrics) CacheLookup(resource, result string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(resource, result).Inc()
}

// FetchStarted records a fetch that issued a new network call.
func (m *Metrics) FetchStarted(resource string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(resource, "started").Inc()
}

// FetchJoined records a caller that attached to an in-flight fetch.
func (m *Metrics) FetchJoined(resource string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(resource, "joined").Inc()
}

// FetchSettled records the outcome and duration of a fetch.
func (m *Metrics) FetchSettled(resource string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.fetchDuration.WithLabelValues(resource, outcome(err)).Observe(d.Seconds())
}

// Invalidated records one invalidated entry.
func (m *Metrics) Invalidated(resource, kind string) {
	if m == nil {
		return
	}
	m.invalidations.WithLabelValues(resource, kind).Inc()
}

// SetEntries reports the current size of the live and retained pools.
func (m *Metrics) SetEntries(live, retained int) {
	if m == nil {
		return
	}
	m.entries.WithLabelValues("live").Set(float64(live))
	m.entries.WithLabelValues("retained").Set(float64(retained))
}

// MutationSettled records the outcome and duration of a mutation.
func (m *Metrics) MutationSettled(name string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(name, outcome(err)).Observe(d.Seconds())
}

// Request records a transport round trip. status is 0 when no response was
// received.
func (m *Metrics) Request(method, group string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if group == "" {
		group = "default"
	}
	m.requests.WithLabelValues(method, group, strconv.Itoa(status)).Observe(d.Seconds())
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
