package monitoring

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector records client-side metrics. A nil collector is valid
// and records nothing.
type PrometheusCollector struct {
	// Counters
	requestsTotal       *prometheus.CounterVec
	forcedLogoutsTotal  prometheus.Counter
	sessionTransitions  *prometheus.CounterVec
	progressWritesTotal *prometheus.CounterVec
	completionsTotal    prometheus.Counter
	catalogCacheTotal   *prometheus.CounterVec

	// Histograms
	requestDuration *prometheus.HistogramVec

	// Gauges
	sessionAuthenticated prometheus.Gauge
}

// NewPrometheusCollector registers the collectors with reg; nil means the
// default registry.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusCollector{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "microcourses_client_requests_total",
			Help: "Backend requests by method, route group and status code",
		}, []string{"method", "group", "status"}),

		forcedLogoutsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "microcourses_client_forced_logouts_total",
			Help: "Sessions ended because an auth endpoint answered 401",
		}),

		sessionTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "microcourses_session_transitions_total",
			Help: "Session store transitions by action",
		}, []string{"action"}),

		progressWritesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "microcourses_progress_writes_total",
			Help: "Playback progress persistence attempts by result",
		}, []string{"result"}),

		completionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "microcourses_lesson_completions_total",
			Help: "Lesson completion calls sent to the backend",
		}),

		catalogCacheTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "microcourses_catalog_cache_total",
			Help: "Catalog cache lookups by result",
		}, []string{"result"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "microcourses_client_request_duration_seconds",
			Help:    "Duration of backend requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"method", "group"}),

		sessionAuthenticated: factory.NewGauge(prometheus.GaugeOpts{
			Name: "microcourses_session_authenticated",
			Help: "1 while a user is signed in",
		}),
	}
}

// RouteGroup reduces a request path to its first segment ("/auth/login" ->
// "auth") to keep label cardinality bounded.
func RouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "root"
	}
	return path
}

func (p *PrometheusCollector) RecordRequest(method, path string, status int, duration time.Duration) {
	if p == nil {
		return
	}
	group := RouteGroup(path)
	code := "none"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	p.requestsTotal.WithLabelValues(method, group, code).Inc()
	p.requestDuration.WithLabelValues(method, group).Observe(duration.Seconds())
}

func (p *PrometheusCollector) RecordForcedLogout() {
	if p == nil {
		return
	}
	p.forcedLogoutsTotal.Inc()
}

func (p *PrometheusCollector) RecordSessionTransition(action string, authenticated bool) {
	if p == nil {
		return
	}
	p.sessionTransitions.WithLabelValues(action).Inc()
	if authenticated {
		p.sessionAuthenticated.Set(1)
	} else {
		p.sessionAuthenticated.Set(0)
	}
}

func (p *PrometheusCollector) RecordProgressWrite(err error) {
	if p == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.progressWritesTotal.WithLabelValues(result).Inc()
}

func (p *PrometheusCollector) RecordLessonCompletion() {
	if p == nil {
		return
	}
	p.completionsTotal.Inc()
}

func (p *PrometheusCollector) RecordCatalogCache(hit bool) {
	if p == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	p.catalogCacheTotal.WithLabelValues(result).Inc()
}
