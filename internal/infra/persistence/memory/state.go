package memory

import (
	"graphclone/pkg/domain"
	"sort"
	"time"
)

// Ref points at a stored row.
type Ref struct {
	Type domain.EntityType `json:"type"`
	ID   string            `json:"id"`
}

// Link is the stored form of one association.
type Link struct {
	Kind domain.AssociationKind `json:"kind"`
	Refs []Ref                  `json:"refs"`
}

// Row is the stored form of a record. Associations are kept as links in
// declaration order.
type Row struct {
	ID         string            `json:"id"`
	Type       domain.EntityType `json:"type"`
	Attributes map[string]any    `json:"attributes"`
	Order      []string          `json:"order,omitempty"`
	Links      map[string]Link   `json:"links,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Snapshot captures a point-in-time clone of the store state, one bucket per
// entity type.
type Snapshot struct {
	Buckets map[domain.EntityType]map[string]Row `json:"buckets"`
}

type memoryState struct {
	buckets map[domain.EntityType]map[string]Row
}

func newMemoryState() memoryState {
	return memoryState{buckets: make(map[domain.EntityType]map[string]Row)}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for t, rows := range s.buckets {
		bucket := make(map[string]Row, len(rows))
		for id, row := range rows {
			bucket[id] = cloneRow(row)
		}
		cloned.buckets[t] = bucket
	}
	return cloned
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	return Snapshot{Buckets: state.clone().buckets}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := memoryState{buckets: s.Buckets}
	if state.buckets == nil {
		return newMemoryState()
	}
	return state.clone()
}

func (s memoryState) row(t domain.EntityType, id string) (Row, bool) {
	row, ok := s.buckets[t][id]
	return row, ok
}

func (s memoryState) put(row Row) {
	bucket, ok := s.buckets[row.Type]
	if !ok {
		bucket = make(map[string]Row)
		s.buckets[row.Type] = bucket
	}
	bucket[row.ID] = row
}

func (s memoryState) types() []domain.EntityType {
	out := make([]domain.EntityType, 0, len(s.buckets))
	for t, rows := range s.buckets {
		if len(rows) > 0 {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// sortedIDs orders a bucket by creation time, then ID.
func (s memoryState) sortedIDs(t domain.EntityType) []string {
	bucket := s.buckets[t]
	ids := make([]string, 0, len(bucket))
	for id := range bucket {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := bucket[ids[i]], bucket[ids[j]]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return ids[i] < ids[j]
	})
	return ids
}

// hydrate rebuilds the record graph reachable from (t, id). seen is the
// identity map shared by one read, so a row appears once per graph.
func (s memoryState) hydrate(t domain.EntityType, id string, seen map[Ref]*domain.Record) (*domain.Record, bool) {
	ref := Ref{Type: t, ID: id}
	if rec, ok := seen[ref]; ok {
		return rec, true
	}
	row, ok := s.row(t, id)
	if !ok {
		return nil, false
	}
	rec := recordFromRow(row)
	seen[ref] = rec
	for _, name := range row.Order {
		c, _ := rec.Collection(name)
		for _, member := range row.Links[name].Refs {
			m, ok := s.hydrate(member.Type, member.ID, seen)
			if !ok {
				continue
			}
			_ = c.Append(m)
		}
	}
	return rec, true
}

func (s memoryState) list(t domain.EntityType) []*domain.Record {
	seen := make(map[Ref]*domain.Record)
	ids := s.sortedIDs(t)
	out := make([]*domain.Record, 0, len(ids))
	for _, id := range ids {
		if rec, ok := s.hydrate(t, id, seen); ok {
			out = append(out, rec)
		}
	}
	return out
}

func recordFromRow(row Row) *domain.Record {
	rec := domain.NewRecord(row.Type, row.Attributes)
	rec.ID = row.ID
	rec.CreatedAt = row.CreatedAt
	rec.UpdatedAt = row.UpdatedAt
	for _, name := range row.Order {
		rec.Declare(name, row.Links[name].Kind)
	}
	rec.SetPersisted(true)
	return rec
}

// rowFromRecord captures rec with links to every member that has an ID.
func rowFromRecord(rec *domain.Record) Row {
	row := Row{
		ID:         rec.ID,
		Type:       rec.Type,
		Attributes: cloneAttributes(rec.Attributes),
		Order:      rec.AssociationNames(),
		Links:      make(map[string]Link, len(rec.AssociationNames())),
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}
	for _, name := range row.Order {
		c, _ := rec.Collection(name)
		row.Links[name] = linkFromCollection(c)
	}
	return row
}

func linkFromCollection(c *domain.Collection) Link {
	link := Link{Kind: c.Kind()}
	for _, m := range c.Records() {
		if m.ID == "" {
			continue
		}
		link.Refs = append(link.Refs, Ref{Type: m.Type, ID: m.ID})
	}
	return link
}

func cloneRow(r Row) Row {
	cp := r
	cp.Attributes = cloneAttributes(r.Attributes)
	cp.Order = append([]string(nil), r.Order...)
	if r.Links != nil {
		cp.Links = make(map[string]Link, len(r.Links))
		for name, link := range r.Links {
			cp.Links[name] = Link{Kind: link.Kind, Refs: append([]Ref(nil), link.Refs...)}
		}
	}
	return cp
}

func cloneAttributes(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
