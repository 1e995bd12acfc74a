package domain

import (
	"sort"
	"sync"

	"gitlab.com/tozd/go/errors"
)

// AssociationDef declares one association of an entity type.
type AssociationDef struct {
	Name   string          `json:"name" yaml:"name"`
	Kind   AssociationKind `json:"kind" yaml:"kind"`
	Target EntityType      `json:"target" yaml:"target"`
}

// Definition describes the shape of one entity type.
type Definition struct {
	Type         EntityType       `json:"type" yaml:"type"`
	Required     []string         `json:"required,omitempty" yaml:"required"`
	Associations []AssociationDef `json:"associations,omitempty" yaml:"associations"`
}

// ErrUnknownEntityType is returned when a model has no definition for a type.
var ErrUnknownEntityType = errors.Base("unknown entity type")

// Model is the set of entity definitions known to an application. It is built
// at startup and read concurrently afterwards.
type Model struct {
	mu   sync.RWMutex
	defs map[EntityType]Definition
}

// NewModel constructs a model from the provided definitions.
func NewModel(defs ...Definition) *Model {
	m := &Model{defs: make(map[EntityType]Definition, len(defs))}
	for _, def := range defs {
		m.Define(def)
	}
	return m
}

// Define adds or replaces the definition for def.Type.
func (m *Model) Define(def Definition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.defs == nil {
		m.defs = make(map[EntityType]Definition)
	}
	cp := def
	cp.Required = append([]string(nil), def.Required...)
	cp.Associations = append([]AssociationDef(nil), def.Associations...)
	m.defs[def.Type] = cp
}

// Definition returns the definition registered for t.
func (m *Model) Definition(t EntityType) (Definition, bool) {
	if m == nil {
		return Definition{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	def, ok := m.defs[t]
	return def, ok
}

// Types lists the defined entity types in lexical order.
func (m *Model) Types() []EntityType {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]EntityType, 0, len(m.defs))
	for t := range m.defs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// New builds an unsaved record of type t with every declared association.
func (m *Model) New(t EntityType, attrs map[string]any) (*Record, error) {
	def, ok := m.Definition(t)
	if !ok {
		return nil, errors.Errorf("%w: %s", ErrUnknownEntityType, t)
	}
	r := NewRecord(t, attrs)
	for _, assoc := range def.Associations {
		r.Declare(assoc.Name, assoc.Kind)
	}
	return r, nil
}

// Missing returns the required attributes of r that are nil or empty strings.
// Types without a definition have no requirements.
func (m *Model) Missing(r *Record) []string {
	def, ok := m.Definition(r.Type)
	if !ok {
		return nil
	}
	var missing []string
	for _, name := range def.Required {
		if IsBlank(r.Attributes[name]) {
			missing = append(missing, name)
		}
	}
	return missing
}

// IsBlank reports whether v is nil or an empty string.
func IsBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}
