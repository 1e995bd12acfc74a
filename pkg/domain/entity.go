// Package domain defines the entity contracts, the attribute-bag record used by
// the reference stores, and the persistence and rule primitives shared by
// graphclone.
package domain

import (
	"fmt"
	"reflect"
	"time"

	"gitlab.com/tozd/go/errors"
)

// EntityType identifies the type of a record. Strategy lookups and
// persistence buckets are keyed by it.
type EntityType string

// Entity is the surface the clone engine needs from a persisted record.
type Entity interface {
	EntityType() EntityType
	// Duplicate returns an in-memory copy with the same attribute values, no
	// persisted identity, and empty associations.
	Duplicate() Entity
	SetAttribute(name string, value any) error
	Association(name string) (Association, error)
}

// Association is a named relation from one entity to one or more entities.
type Association interface {
	Members() []Entity
	Append(Entity) error
}

// AssociationKind distinguishes single-valued from collection associations.
type AssociationKind string

const (
	// KindOne holds at most one member; appending replaces it.
	KindOne AssociationKind = "one"
	// KindMany holds an ordered collection of members.
	KindMany AssociationKind = "many"
)

var (
	// ErrUnknownAssociation is returned when an association name is not declared on a record.
	ErrUnknownAssociation = errors.Base("unknown association")
	// ErrNilMember is returned when a nil entity is appended to an association.
	ErrNilMember = errors.Base("nil association member")
)

// Base contains common fields for all records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Record is a mutable attribute bag with declared associations. It is the
// entity implementation used by the stores in internal/infra/persistence.
type Record struct {
	Base
	Type       EntityType     `json:"type"`
	Attributes map[string]any `json:"attributes"`

	associations map[string]*Collection
	order        []string
	persisted    bool
	owners       []*Collection
}

var _ Entity = (*Record)(nil)

// NewRecord constructs an unsaved record of type t holding a copy of attrs.
func NewRecord(t EntityType, attrs map[string]any) *Record {
	r := &Record{Type: t, Attributes: make(map[string]any, len(attrs))}
	for k, v := range attrs {
		r.Attributes[k] = v
	}
	return r
}

// EntityType implements Entity.
func (r *Record) EntityType() EntityType {
	if r == nil {
		return ""
	}
	return r.Type
}

// Declare adds an empty association named name when it is not declared yet.
func (r *Record) Declare(name string, kind AssociationKind) *Record {
	if r.associations == nil {
		r.associations = make(map[string]*Collection)
	}
	if _, ok := r.associations[name]; ok {
		return r
	}
	if kind == "" {
		kind = KindMany
	}
	r.associations[name] = &Collection{name: name, kind: kind, owner: r}
	r.order = append(r.order, name)
	return r
}

// Attribute returns the value stored under name.
func (r *Record) Attribute(name string) (any, bool) {
	v, ok := r.Attributes[name]
	return v, ok
}

// SetAttribute implements Entity.
func (r *Record) SetAttribute(name string, value any) error {
	if name == "" {
		return errors.New("attribute name required")
	}
	if r.Attributes == nil {
		r.Attributes = make(map[string]any)
	}
	r.Attributes[name] = value
	return nil
}

// Association implements Entity.
func (r *Record) Association(name string) (Association, error) {
	c, ok := r.Collection(name)
	if !ok {
		return nil, errors.Errorf("%w: %s.%s", ErrUnknownAssociation, r.Type, name)
	}
	return c, nil
}

// Collection returns the concrete association named name.
func (r *Record) Collection(name string) (*Collection, bool) {
	c, ok := r.associations[name]
	return c, ok
}

// AssociationNames lists declared associations in declaration order.
func (r *Record) AssociationNames() []string {
	return append([]string(nil), r.order...)
}

// Duplicate implements Entity. Attribute values are copied shallowly; every
// declared association is present on the copy and empty.
func (r *Record) Duplicate() Entity {
	cp := NewRecord(r.Type, r.Attributes)
	for _, name := range r.order {
		cp.Declare(name, r.associations[name].kind)
	}
	return cp
}

// Persisted reports whether the record was saved by a store.
func (r *Record) Persisted() bool { return r.persisted }

// SetPersisted is used by stores when saving or rolling back.
func (r *Record) SetPersisted(v bool) { r.persisted = v }

// Owners returns the collections this record has been appended to.
func (r *Record) Owners() []*Collection {
	return append([]*Collection(nil), r.owners...)
}

func (r *Record) String() string {
	if r == nil {
		return "<nil>"
	}
	if r.ID == "" {
		return fmt.Sprintf("%s(new)", r.Type)
	}
	return fmt.Sprintf("%s(%s)", r.Type, r.ID)
}

// Collection is the association implementation used by Record. A collection
// without an owner acts as a detached destination.
type Collection struct {
	name    string
	kind    AssociationKind
	owner   *Record
	members []Entity
}

var _ Association = (*Collection)(nil)

// NewCollection returns an ownerless collection.
func NewCollection(name string, kind AssociationKind) *Collection {
	if kind == "" {
		kind = KindMany
	}
	return &Collection{name: name, kind: kind}
}

// Name returns the association name.
func (c *Collection) Name() string { return c.name }

// Kind returns the association kind.
func (c *Collection) Kind() AssociationKind { return c.kind }

// Owner returns the owning record, or nil for a detached collection.
func (c *Collection) Owner() *Record { return c.owner }

// Len returns the number of members.
func (c *Collection) Len() int { return len(c.members) }

// Members implements Association.
func (c *Collection) Members() []Entity {
	return append([]Entity(nil), c.members...)
}

// Records returns the members that are *Record values.
func (c *Collection) Records() []*Record {
	out := make([]*Record, 0, len(c.members))
	for _, m := range c.members {
		if r, ok := m.(*Record); ok {
			out = append(out, r)
		}
	}
	return out
}

// Append implements Association.
func (c *Collection) Append(e Entity) error {
	if isNilEntity(e) {
		return errors.WithStack(ErrNilMember)
	}
	if c.kind == KindOne {
		c.members = []Entity{e}
	} else {
		c.members = append(c.members, e)
	}
	if r, ok := e.(*Record); ok {
		r.owners = append(r.owners, c)
	}
	return nil
}

// IsNil reports whether e is nil or holds a nil value of any nilable kind.
func IsNil(e Entity) bool { return isNilEntity(e) }

func isNilEntity(e Entity) bool {
	if e == nil {
		return true
	}
	if r, ok := e.(*Record); ok {
		return r == nil
	}
	v := reflect.ValueOf(e)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	default:
		return false
	}
}
