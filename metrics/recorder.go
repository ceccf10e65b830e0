// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package metrics

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/poiesic/kbase/queue"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "kbase"
	subsystem = "queue"
)

// ErrQueueRequired is returned when NewRecorder is given a nil queue.
var ErrQueueRequired = errors.New("queue is required")

// Recorder turns queue events into Prometheus metrics.
type Recorder struct {
	submitted *prometheus.CounterVec
	finished  *prometheus.CounterVec
	retries   *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	drains    prometheus.Counter

	pending     prometheus.Gauge
	processing  prometheus.Gauge
	workload    prometheus.Gauge
	maxWorkload prometheus.Gauge
	atCapacity  prometheus.Gauge

	status func() queue.Status
	sub    *queue.Subscription
	logger *slog.Logger
	done   chan struct{}
	once   sync.Once
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRecorder registers the queue metrics with reg and starts following q.
// A nil reg uses prometheus.DefaultRegisterer.
func NewRecorder(q *queue.Queue, reg prometheus.Registerer, opts ...Option) (*Recorder, error) {
	if q == nil {
		return nil, ErrQueueRequired
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	r := &Recorder{
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tasks_submitted_total",
			Help:      "Total tasks accepted by the queue, labelled by kind.",
		}, []string{"kind"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tasks_finished_total",
			Help:      "Total task attempts that settled, labelled by kind and outcome.",
		}, []string{"kind", "status"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "retries_total",
			Help:      "Total attempts started after a failure.",
		}, []string{"kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "task_duration_seconds",
			Help:      "Execution time of one task attempt in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
		}, []string{"kind", "status"}),
		drains: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "drained_total",
			Help:      "Times the queue became empty.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tasks_pending",
			Help:      "Tasks waiting to start.",
		}),
		processing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tasks_inflight",
			Help:      "Tasks currently being executed.",
		}),
		workload: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "workload_bytes",
			Help:      "Sum of the size hints of running tasks.",
		}),
		maxWorkload: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "max_workload_bytes",
			Help:      "Configured workload limit.",
		}),
		atCapacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "at_capacity",
			Help:      "1 when no further task can start.",
		}),
		status: q.GetStatus,
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "metrics")

	for _, c := range r.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	r.refresh()

	r.sub = q.Subscribe()
	go r.run()
	return r, nil
}

func (r *Recorder) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		r.submitted, r.finished, r.retries, r.duration, r.drains,
		r.pending, r.processing, r.workload, r.maxWorkload, r.atCapacity,
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for ev := range r.sub.Events() {
		r.observe(ev)
	}
	r.logger.Debug("stopped following queue")
}

// observe updates the metrics for one event.
func (r *Recorder) observe(ev queue.Event) {
	kind := string(ev.Task.Kind)

	switch ev.Type {
	case queue.EventTaskQueued:
		// A retry requeues a task that was already counted.
		if ev.Task.RetryCount == 0 {
			r.submitted.WithLabelValues(kind).Inc()
		}
	case queue.EventTaskStarted:
		if ev.Task.RetryCount > 0 {
			r.retries.WithLabelValues(kind).Inc()
		}
	case queue.EventTaskCompleted:
		r.settled(ev.Task, "completed")
	case queue.EventTaskFailed:
		r.settled(ev.Task, "failed")
	case queue.EventTaskCancelled:
		r.settled(ev.Task, "cancelled")
	case queue.EventQueueDrained:
		r.drains.Inc()
	}
	r.refresh()
}

func (r *Recorder) settled(task queue.Task, status string) {
	kind := string(task.Kind)
	r.finished.WithLabelValues(kind, status).Inc()
	if !task.StartedAt.IsZero() && task.CompletedAt.After(task.StartedAt) {
		r.duration.WithLabelValues(kind, status).Observe(task.CompletedAt.Sub(task.StartedAt).Seconds())
	}
}

// refresh copies the queue's current status into the gauges.
func (r *Recorder) refresh() {
	s := r.status()
	r.pending.Set(float64(s.Pending))
	r.processing.Set(float64(s.Processing))
	r.workload.Set(float64(s.Workload))
	r.maxWorkload.Set(float64(s.MaxWorkload))
	if s.AtCapacity {
		r.atCapacity.Set(1)
	} else {
		r.atCapacity.Set(0)
	}
}

// Close stops following the queue once the events already published have
// been recorded. It is safe to call more than once.
func (r *Recorder) Close() error {
	r.once.Do(r.sub.Close)
	<-r.done
	return nil
}
