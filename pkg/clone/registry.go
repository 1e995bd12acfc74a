package clone

import (
	"sort"
	"sync"

	"gitlab.com/tozd/go/errors"

	"graphclone/pkg/domain"
)

// Registry maps entity types to their Spec. It is filled during startup and
// only read while clones run.
type Registry struct {
	mu    sync.RWMutex
	specs map[domain.EntityType]*Spec
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[domain.EntityType]*Spec)}
}

// Register attaches spec to its entity type.
func (r *Registry) Register(spec *Spec) error {
	if spec == nil {
		return errors.New("clone spec is nil")
	}
	if spec.entityType == "" {
		return errors.New("clone spec has no entity type")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.specs[spec.entityType]; ok {
		return errors.Errorf("%w: %s", ErrDuplicateStrategy, spec.entityType)
	}
	r.specs[spec.entityType] = spec
	return nil
}

// MustRegister registers every spec and panics on the first failure. It is
// meant for static wiring.
func (r *Registry) MustRegister(specs ...*Spec) *Registry {
	for _, spec := range specs {
		if err := r.Register(spec); err != nil {
			panic(err)
		}
	}
	return r
}

// Resolve returns the Spec registered for exactly t.
func (r *Registry) Resolve(t domain.EntityType) (*Spec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[t]
	if !ok {
		return nil, &StrategyNotFoundError{Type: t}
	}
	return spec, nil
}

// Types lists registered entity types in lexical order.
func (r *Registry) Types() []domain.EntityType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.EntityType, 0, len(r.specs))
	for t := range r.specs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
