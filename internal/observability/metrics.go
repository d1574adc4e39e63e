// Package observability exposes render pipeline metrics for Prometheus.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"scenecast/internal/render"
)

const namespace = "scenecast"

// Metrics records pipeline progress. It implements pipeline.Observer and is
// safe for concurrent use.
type Metrics struct {
	reg *prometheus.Registry

	jobs          *prometheus.CounterVec
	frames        prometheus.Counter
	stageDuration *prometheus.HistogramVec
	inFlight      prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers the render metrics, plus Go runtime and process
// collectors, on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "render_jobs_total",
			Help:      "Render jobs by outcome and the stage they ended in.",
		}, []string{"outcome", "stage", "code"}),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_captured_total",
			Help:      "Frames captured and written to a workspace.",
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   []float64{.01, .05, .25, 1, 5, 15, 60, 300, 900, 3600},
		}, []string{"stage", "outcome"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "render_jobs_in_flight",
			Help:      "Render jobs that hold a workspace.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(
		m.jobs, m.frames, m.stageDuration, m.inFlight,
		m.httpRequests, m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) StageEntered(stage render.Stage) {
	if stage == render.StagePreparing {
		m.inFlight.Inc()
	}
}

func (m *Metrics) StageFinished(stage render.Stage, d time.Duration, err error) {
	m.stageDuration.WithLabelValues(string(stage), outcome(err)).Observe(d.Seconds())
}

func (m *Metrics) FrameCaptured() { m.frames.Inc() }

func (m *Metrics) JobFinished(stage render.Stage, err error) {
	if stage != render.StageCreated {
		m.inFlight.Dec()
	}
	code := ""
	if err != nil {
		code = string(render.Code(err))
	}
	m.jobs.WithLabelValues(outcome(err), string(stage), code).Inc()
}

// ObserveHTTP records one served API request. route is the matched
// pattern, not the raw path.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
