package clone

import (
	"context"

	"graphclone/pkg/domain"
)

// Hook receives the in-progress copy of an entity.
type Hook func(ctx context.Context, copy domain.Entity) error

// Options are the call-scoped flags of one Operation. Declared association
// options use the same type; nested operations always run with
// SkipTransaction set and the parent's Transaction.
type Options struct {
	// Force saves the copy before Make returns.
	Force bool
	// SkipTransaction joins Transaction instead of opening a new one.
	SkipTransaction bool
	// Transaction is the ambient transaction joined when SkipTransaction is set.
	Transaction domain.Transaction
	// Before and After run ahead of the spec's declared hooks.
	Before Hook
	After  Hook
}

func (o Options) nested(tx domain.Transaction) Options {
	o.SkipTransaction = true
	o.Transaction = tx
	return o
}

// AssociationSpec is one declared association and the options forwarded to
// the operations that copy its members.
type AssociationSpec struct {
	Name    string
	Options Options
}

// Spec is the immutable cloning configuration of one entity type.
type Spec struct {
	entityType   domain.EntityType
	cleared      []string
	associations []AssociationSpec
	before       Hook
	after        Hook
}

// EntityType returns the type the spec is attached to.
func (s *Spec) EntityType() domain.EntityType { return s.entityType }

// Cleared returns the attributes set to nil on every copy.
func (s *Spec) Cleared() []string { return append([]string(nil), s.cleared...) }

// Associations returns the declared associations in declaration order.
func (s *Spec) Associations() []AssociationSpec {
	return append([]AssociationSpec(nil), s.associations...)
}

// Before returns the declared before-hook, or nil.
func (s *Spec) Before() Hook { return s.before }

// After returns the declared after-hook, or nil.
func (s *Spec) After() Hook { return s.after }

// Builder accumulates declarations for one entity type.
type Builder struct {
	spec  Spec
	index map[string]int
}

// Define starts a Spec for entity type t.
func Define(t domain.EntityType) *Builder {
	return &Builder{spec: Spec{entityType: t}, index: make(map[string]int)}
}

// Nullify adds attributes to clear on every copy.
func (b *Builder) Nullify(names ...string) *Builder {
	for _, name := range names {
		if containsString(b.spec.cleared, name) {
			continue
		}
		b.spec.cleared = append(b.spec.cleared, name)
	}
	return b
}

// Association declares an association to copy. Declaring the same name again
// replaces its options and keeps its original position.
func (b *Builder) Association(name string, opts Options) *Builder {
	opts.Transaction = nil
	if i, ok := b.index[name]; ok {
		b.spec.associations[i].Options = opts
		return b
	}
	b.index[name] = len(b.spec.associations)
	b.spec.associations = append(b.spec.associations, AssociationSpec{Name: name, Options: opts})
	return b
}

// Before sets the type-level before-hook. The last call wins.
func (b *Builder) Before(h Hook) *Builder {
	b.spec.before = h
	return b
}

// After sets the type-level after-hook. The last call wins.
func (b *Builder) After(h Hook) *Builder {
	b.spec.after = h
	return b
}

// Build returns an immutable Spec. The builder may keep being used; later
// declarations do not affect specs already built.
func (b *Builder) Build() *Spec {
	s := b.spec
	s.cleared = append([]string(nil), b.spec.cleared...)
	s.associations = append([]AssociationSpec(nil), b.spec.associations...)
	return &s
}

func containsString(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}
