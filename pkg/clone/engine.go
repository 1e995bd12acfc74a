package clone

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"graphclone/pkg/domain"
)

// DefaultMaxDepth bounds recursion through association graphs.
const DefaultMaxDepth = 64

// Recorder observes the outcome of every operation, nested ones included.
type Recorder interface {
	Observe(ctx context.Context, entityType domain.EntityType, success bool, duration time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) Observe(context.Context, domain.EntityType, bool, time.Duration) {}

// Engine creates operations against one store and registry.
type Engine struct {
	store    domain.PersistentStore
	registry *Registry
	recorder Recorder
	tracer   trace.Tracer
	maxDepth int
	now      func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithRecorder sets the operation recorder.
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithTracer sets the tracer used for one span per operation.
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithMaxDepth overrides DefaultMaxDepth. Values below one disable the limit.
func WithMaxDepth(n int) EngineOption {
	return func(e *Engine) { e.maxDepth = n }
}

// WithClock overrides the time source used for durations.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine returns an engine that opens transactions on store and resolves
// specs from registry. store may be nil when every operation joins an
// ambient transaction.
func NewEngine(store domain.PersistentStore, registry *Registry, opts ...EngineOption) *Engine {
	if registry == nil {
		registry = NewRegistry()
	}
	e := &Engine{
		store:    store,
		registry: registry,
		recorder: noopRecorder{},
		tracer:   noop.NewTracerProvider().Tracer("graphclone/clone"),
		maxDepth: DefaultMaxDepth,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the engine's registry.
func (e *Engine) Registry() *Registry { return e.registry }

// New prepares a single-use operation copying target into destination.
// destination may be nil for a detached copy.
func (e *Engine) New(target domain.Entity, destination domain.Association, opts Options) *Operation {
	return &Operation{
		engine:      e,
		target:      target,
		destination: destination,
		options:     opts,
		state:       StateCreated,
	}
}
