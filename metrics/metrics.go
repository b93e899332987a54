// Package metrics exports session and fetch metrics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/use-agent/tukibridge/models"
	"github.com/use-agent/tukibridge/session"
)

// Recorder is a session.Observer backed by its own Prometheus registry.
type Recorder struct {
	registry *prometheus.Registry

	fetches    *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	restarts   *prometheus.CounterVec
	unmatched  *prometheus.CounterVec
	state      prometheus.Gauge
	cacheHits  prometheus.Counter
	httpStatus *prometheus.CounterVec
}

// NewRecorder registers every metric on a fresh registry, together with the
// Go runtime and process collectors.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tukibridge",
			Name:      "fetch_total",
			Help:      "Fetches by kind and outcome (success or failure kind).",
		}, []string{"kind", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tukibridge",
			Name:      "fetch_duration_seconds",
			Help:      "Time spent holding the session for one fetch.",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 15, 30, 60},
		}, []string{"kind"}),
		restarts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tukibridge",
			Name:      "session_restarts_total",
			Help:      "Browser session restarts by reason.",
		}, []string{"reason"}),
		unmatched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tukibridge",
			Name:      "condition_unmatched_total",
			Help:      "Fetches where no configured condition option could be selected.",
		}, []string{"kind"}),
		state: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "tukibridge",
			Name:      "session_state",
			Help:      "Session state: 0 uninitialized, 1 ready, 2 broken.",
		}),
		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: "tukibridge",
			Name:      "fetch_cache_hits_total",
			Help:      "Fetch responses served from the response cache.",
		}),
		httpStatus: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tukibridge",
			Name:      "fetch_responses_total",
			Help:      "Fetch API responses by HTTP status.",
		}, []string{"status"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) StateChanged(state session.State) {
	r.state.Set(float64(state))
}

func (r *Recorder) SessionRestarted(reason string) {
	r.restarts.WithLabelValues(reason).Inc()
}

func (r *Recorder) ConditionUnmatched(kind models.Kind) {
	r.unmatched.WithLabelValues(string(kind)).Inc()
}

func (r *Recorder) FetchCompleted(kind models.Kind, res models.FetchResult, elapsed time.Duration) {
	outcome := "success"
	if !res.Success {
		outcome = string(res.Failure)
	}
	r.fetches.WithLabelValues(string(kind), outcome).Inc()
	r.duration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// CacheHit counts a response served from the cache.
func (r *Recorder) CacheHit() {
	r.cacheHits.Inc()
}

// Response counts a fetch API response by status code.
func (r *Recorder) Response(status int) {
	r.httpStatus.WithLabelValues(http.StatusText(status)).Inc()
}
