// Package metrics exposes run, task and review counters for Prometheus.
package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harrison/briefflow/internal/models"
)

// Collectors holds every briefflow metric on its own registry, so that tests
// and concurrent runs in one process never collide on the global one.
type Collectors struct {
	Registry *prometheus.Registry

	runsStarted    *prometheus.CounterVec
	runsFinished   *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	tasksFinished  *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
	taskAttempts   *prometheus.CounterVec
	reviewsPending *prometheus.GaugeVec
	reviewsDecided *prometheus.CounterVec
}

// New registers the collectors, plus the Go and process collectors.
func New() *Collectors {
	reg := prometheus.NewRegistry()
	c := &Collectors{
		Registry: reg,
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "briefflow_runs_started_total",
			Help: "Workflow runs started or resumed.",
		}, []string{"workflow"}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "briefflow_runs_finished_total",
			Help: "Workflow runs that stopped, by final status.",
		}, []string{"workflow", "status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "briefflow_run_duration_seconds",
			Help:    "Wall time of a run invocation.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"workflow"}),
		tasksFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "briefflow_tasks_finished_total",
			Help: "Task executions by task type and outcome.",
		}, []string{"workflow", "task_type", "status"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "briefflow_task_duration_seconds",
			Help:    "Task execution time including retries.",
			Buckets: prometheus.DefBuckets,
		}, []string{"task_type"}),
		taskAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "briefflow_task_attempts_total",
			Help: "Task attempts, retries included.",
		}, []string{"task_type"}),
		reviewsPending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "briefflow_reviews_pending",
			Help: "Review checkpoints waiting for a decision.",
		}, []string{"workflow"}),
		reviewsDecided: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "briefflow_reviews_decided_total",
			Help: "Review decisions applied to runs.",
		}, []string{"workflow", "decision"}),
	}

	reg.MustRegister(
		c.runsStarted,
		c.runsFinished,
		c.runDuration,
		c.tasksFinished,
		c.taskDuration,
		c.taskAttempts,
		c.reviewsPending,
		c.reviewsDecided,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// RunStarted counts a started or resumed run.
func (c *Collectors) RunStarted(workflow string) {
	c.runsStarted.WithLabelValues(workflow).Inc()
}

// RunFinished counts a run that stopped with status.
func (c *Collectors) RunFinished(workflow string, status models.RunStatus, d time.Duration) {
	c.runsFinished.WithLabelValues(workflow, string(status)).Inc()
	c.runDuration.WithLabelValues(workflow).Observe(d.Seconds())
}

// TaskFinished records one task outcome.
func (c *Collectors) TaskFinished(workflow, taskType string, result models.TaskResult) {
	c.tasksFinished.WithLabelValues(workflow, taskType, string(result.Status)).Inc()
	if result.Attempts > 0 {
		c.taskAttempts.WithLabelValues(taskType).Add(float64(result.Attempts))
	}
	if d := result.Duration(); d > 0 {
		c.taskDuration.WithLabelValues(taskType).Observe(d.Seconds())
	}
}

// ReviewOpened counts a checkpoint waiting for a decision.
func (c *Collectors) ReviewOpened(workflow string) {
	c.reviewsPending.WithLabelValues(workflow).Inc()
}

// ReviewClosed records a decision and releases the pending gauge.
func (c *Collectors) ReviewClosed(workflow string, decision models.Decision) {
	c.reviewsPending.WithLabelValues(workflow).Dec()
	c.reviewsDecided.WithLabelValues(workflow, string(decision)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{})
}

// Server exposes /metrics on an address.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Serve starts listening on addr and serves /metrics in the background.
func (c *Collectors) Serve(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	s := &Server{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}
	go func() { _ = s.srv.Serve(ln) }()
	return s, nil
}

// Addr returns the bound address, useful when addr used port 0.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
