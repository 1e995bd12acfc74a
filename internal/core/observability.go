package core

import (
	"context"
	"expvar"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gitlab.com/tozd/go/errors"

	"graphclone/pkg/clone"
	"graphclone/pkg/domain"
)

var (
	_ clone.Recorder = (*PrometheusRecorder)(nil)
	_ clone.Recorder = (*ExpvarRecorder)(nil)
)

// PrometheusRecorder counts clone operations and their durations per entity
// type.
type PrometheusRecorder struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the clone collectors with reg.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	r := &PrometheusRecorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphclone",
			Subsystem: "clone",
			Name:      "operations_total",
			Help:      "Clone operations by entity type and outcome, nested operations included.",
		}, []string{"entity_type", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "graphclone",
			Subsystem: "clone",
			Name:      "duration_seconds",
			Help:      "Wall time of clone operations by entity type.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"entity_type"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{r.operations, r.durations} {
			if err := reg.Register(c); err != nil {
				return nil, errors.Errorf("register clone metrics: %w", err)
			}
		}
	}
	return r, nil
}

// Observe implements clone.Recorder.
func (r *PrometheusRecorder) Observe(_ context.Context, entityType domain.EntityType, success bool, duration time.Duration) {
	r.operations.WithLabelValues(string(entityType), status(success)).Inc()
	r.durations.WithLabelValues(string(entityType)).Observe(duration.Seconds())
}

var expvarSeq uint64

// ExpvarRecorder publishes aggregate clone timings and outcome counters via
// expvar, for deployments that prefer process-local metrics.
type ExpvarRecorder struct {
	name      string
	mu        sync.Mutex
	durations map[domain.EntityType]float64
	results   map[domain.EntityType]map[string]int64
}

// ExpvarSnapshot is a read-only view of the recorded metrics.
type ExpvarSnapshot struct {
	DurationsMS map[domain.EntityType]float64          `json:"durations_ms_total"`
	Results     map[domain.EntityType]map[string]int64 `json:"results_total"`
	RecordedAt  time.Time                              `json:"recorded_at"`
}

// NewExpvarRecorder publishes a recorder under name. An empty name gets a
// generated unique one.
func NewExpvarRecorder(name string) *ExpvarRecorder {
	if name == "" {
		id := atomic.AddUint64(&expvarSeq, 1)
		name = fmt.Sprintf("graphclone_clone_metrics_%d", id)
	}
	rec := &ExpvarRecorder{
		name:      name,
		durations: make(map[domain.EntityType]float64),
		results:   make(map[domain.EntityType]map[string]int64),
	}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar export name.
func (r *ExpvarRecorder) Name() string {
	return r.name
}

// Snapshot returns a copy of the aggregated metrics.
func (r *ExpvarRecorder) Snapshot() ExpvarSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	durations := make(map[domain.EntityType]float64, len(r.durations))
	for t, total := range r.durations {
		durations[t] = total
	}
	results := make(map[domain.EntityType]map[string]int64, len(r.results))
	for t, counts := range r.results {
		cpy := make(map[string]int64, len(counts))
		for s, n := range counts {
			cpy[s] = n
		}
		results[t] = cpy
	}
	return ExpvarSnapshot{
		DurationsMS: durations,
		Results:     results,
		RecordedAt:  time.Now().UTC(),
	}
}

// Observe implements clone.Recorder.
func (r *ExpvarRecorder) Observe(_ context.Context, entityType domain.EntityType, success bool, duration time.Duration) {
	if entityType == "" {
		return
	}
	ms := float64(duration) / float64(time.Millisecond)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.durations[entityType] += ms
	if _, ok := r.results[entityType]; !ok {
		r.results[entityType] = make(map[string]int64, 2)
	}
	r.results[entityType][status(success)]++
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
