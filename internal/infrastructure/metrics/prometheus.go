// Package metrics exposes workflow counters to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/memberhub/approval-workflow/internal/application/port"
	"github.com/memberhub/approval-workflow/internal/domain/entity"
	"github.com/memberhub/approval-workflow/internal/domain/event"
)

const namespace = "workflow"

// Recorder implements port.MetricsRecorder on a private registry
type Recorder struct {
	registry *prometheus.Registry

	transitions    *prometheus.CounterVec
	memberFailures prometheus.Counter
	cacheLookups   *prometheus.CounterVec
	events         *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

var _ port.MetricsRecorder = (*Recorder)(nil)

// NewRecorder creates and registers all collectors. Process and Go runtime
// collectors are included when withRuntime is true.
func NewRecorder(withRuntime bool) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Workflow actions by entity type, action and outcome",
		}, []string{"entity_type", "action", "outcome"}),
		memberFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "member_creation_failures_total",
			Help:      "Post-approval member creation failures",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "statistics_cache_total",
			Help:      "Statistics cache lookups by result",
		}, []string{"result"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Domain events dispatched by type",
		}, []string{"type"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	r.registry.MustRegister(r.transitions, r.memberFailures, r.cacheLookups, r.events, r.httpRequests, r.httpDuration)
	if withRuntime {
		r.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return r
}

func (r *Recorder) RecordTransition(entityType entity.EntityType, action, outcome string) {
	r.transitions.WithLabelValues(string(entityType), action, outcome).Inc()
}

func (r *Recorder) RecordMemberCreationFailure() {
	r.memberFailures.Inc()
}

func (r *Recorder) RecordStatisticsCache(result string) {
	r.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveHTTP records one served request. route is the matched pattern, not the raw path.
func (r *Recorder) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// HandleEvent counts dispatched events. It is registered as a dispatcher handler.
func (r *Recorder) HandleEvent(ctx context.Context, evt *event.Event) error {
	r.events.WithLabelValues(evt.Type.String()).Inc()
	return nil
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry exposes the underlying registry for tests and extra collectors
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
