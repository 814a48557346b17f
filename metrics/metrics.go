package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	FetchResultOK         = "ok"
	FetchResultError      = "error"
	FetchResultSkipped    = "skipped"
	CacheResultHit        = "hit"
	CacheResultMiss       = "miss"
	CacheResultStoreError = "error"
)

// Metrics groups the service counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	fetchRuns      *prometheus.CounterVec
	pricePoints    *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	readingsStored prometheus.Counter
	httpRequests   *prometheus.HistogramVec
}

func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		fetchRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meterit_price_fetch_runs_total",
			Help: "Price fetch runs by result.",
		}, []string{"result"}),
		pricePoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meterit_price_points_total",
			Help: "Price points handled by the fetcher, stored or failed.",
		}, []string{"outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meterit_price_cache_lookups_total",
			Help: "Current price cache lookups by result.",
		}, []string{"result"}),
		readingsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meterit_readings_stored_total",
			Help: "Meter readings accepted and stored.",
		}),
		httpRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "meterit_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status code.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"route", "code"}),
	}

	registerer.MustRegister(m.fetchRuns, m.pricePoints, m.cacheLookups, m.readingsStored, m.httpRequests)
	return m
}

func (m *Metrics) FetchRun(result string) {
	if m == nil {
		return
	}
	m.fetchRuns.WithLabelValues(result).Inc()
}

func (m *Metrics) PricePoints(stored, failed int) {
	if m == nil {
		return
	}
	m.pricePoints.WithLabelValues("stored").Add(float64(stored))
	m.pricePoints.WithLabelValues("failed").Add(float64(failed))
}

func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ReadingStored() {
	if m == nil {
		return
	}
	m.readingsStored.Inc()
}

func (m *Metrics) ObserveRequest(route string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Observe(elapsed.Seconds())
}
