package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tm_alerts"

// Recorder owns a private registry. A nil *Recorder drops every observation.
type Recorder struct {
	registry *prometheus.Registry

	jobsEnqueued        *prometheus.CounterVec
	jobsProcessed       *prometheus.CounterVec
	phaseDuration       *prometheus.HistogramVec
	leaderboardRequests *prometheus.CounterVec
	cacheLookups        *prometheus.CounterVec
	emails              *prometheus.CounterVec
	deadLetters         *prometheus.CounterVec
	circuitOpen         *prometheus.GaugeVec
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		jobsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_enqueued_total",
			Help:      "Phase jobs handed to the queue by the scheduler.",
		}, []string{"type", "result"}),
		jobsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_processed_total",
			Help:      "Phase jobs finished, by terminal history status.",
		}, []string{"type", "status"}),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Wall-clock time spent processing one phase job.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 180, 600},
		}, []string{"type"}),
		leaderboardRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leaderboard_requests_total",
			Help:      "Outgoing leaderboard API requests.",
		}, []string{"endpoint", "outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leaderboard_cache_lookups_total",
			Help:      "Leaderboard response cache lookups.",
		}, []string{"result"}),
		emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_total",
			Help:      "Composed notification emails by delivery result.",
		}, []string{"result"}),
		deadLetters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_letters_total",
			Help:      "Jobs that exhausted their delivery attempts.",
		}, []string{"type"}),
		circuitOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_open",
			Help:      "1 while the named circuit breaker is not closed.",
		}, []string{"name"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.jobsEnqueued,
		r.jobsProcessed,
		r.phaseDuration,
		r.leaderboardRequests,
		r.cacheLookups,
		r.emails,
		r.deadLetters,
		r.circuitOpen,
	)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) JobEnqueued(jobType string, ok bool) {
	if r == nil {
		return
	}
	r.jobsEnqueued.WithLabelValues(jobType, resultLabel(ok)).Inc()
}

func (r *Recorder) JobProcessed(jobType, status string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.jobsProcessed.WithLabelValues(jobType, status).Inc()
	r.phaseDuration.WithLabelValues(jobType).Observe(elapsed.Seconds())
}

func (r *Recorder) LeaderboardRequest(endpoint, outcome string) {
	if r == nil {
		return
	}
	r.leaderboardRequests.WithLabelValues(endpoint, outcome).Inc()
}

func (r *Recorder) CacheLookup(hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}

func (r *Recorder) EmailResult(result string) {
	if r == nil {
		return
	}
	r.emails.WithLabelValues(result).Inc()
}

func (r *Recorder) DeadLetter(jobType string) {
	if r == nil {
		return
	}
	r.deadLetters.WithLabelValues(jobType).Inc()
}

func (r *Recorder) CircuitState(name string, open bool) {
	if r == nil {
		return
	}
	v := 0.0
	if open {
		v = 1
	}
	r.circuitOpen.WithLabelValues(name).Set(v)
}

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
