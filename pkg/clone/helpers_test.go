package clone_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"graphclone/internal/infra/persistence/memory"
	"graphclone/pkg/clone"
	"graphclone/pkg/domain"
)

const (
	boardType  domain.EntityType = "board"
	columnType domain.EntityType = "column"
	cardType   domain.EntityType = "card"
)

func boardModel() *domain.Model {
	return domain.NewModel(
		domain.Definition{
			Type:     boardType,
			Required: []string{"name"},
			Associations: []domain.AssociationDef{
				{Name: "columns", Kind: domain.KindMany, Target: columnType},
				{Name: "pinned", Kind: domain.KindOne, Target: cardType},
			},
		},
		domain.Definition{
			Type:     columnType,
			Required: []string{"title"},
			Associations: []domain.AssociationDef{
				{Name: "cards", Kind: domain.KindMany, Target: cardType},
			},
		},
		domain.Definition{
			Type:     cardType,
			Required: []string{"title"},
			Associations: []domain.AssociationDef{
				{Name: "related", Kind: domain.KindMany, Target: cardType},
			},
		},
	)
}

type fixture struct {
	model    *domain.Model
	store    *memory.Store
	registry *clone.Registry
	engine   *clone.Engine
}

func newFixture(t *testing.T, specs ...*clone.Spec) *fixture {
	t.Helper()
	m := boardModel()
	store := newFixtureStore(m)
	registry := clone.NewRegistry()
	for _, spec := range specs {
		require.NoError(t, registry.Register(spec))
	}
	return &fixture{model: m, store: store, registry: registry, engine: clone.NewEngine(store, registry)}
}

func newFixtureStore(m *domain.Model) *memory.Store {
	return memory.NewStore(m, nil, memory.WithClock(func() time.Time {
		return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	}))
}

func (f *fixture) record(t *testing.T, typ domain.EntityType, attrs map[string]any) *domain.Record {
	t.Helper()
	r, err := f.model.New(typ, attrs)
	require.NoError(t, err)
	return r
}

func appendTo(t *testing.T, owner *domain.Record, assoc string, members ...*domain.Record) {
	t.Helper()
	c, ok := owner.Collection(assoc)
	require.True(t, ok, "association %s", assoc)
	for _, m := range members {
		require.NoError(t, c.Append(m))
	}
}

// board builds a board with one column per title list, each holding cards.
func (f *fixture) board(t *testing.T, name string, columns map[string][]string, order ...string) *domain.Record {
	t.Helper()
	b := f.record(t, boardType, map[string]any{"name": name, "slug": name + "-slug", "owner": "ada"})
	for i, title := range order {
		col := f.record(t, columnType, map[string]any{"title": title, "position": i})
		for _, card := range columns[title] {
			appendTo(t, col, "cards", f.record(t, cardType, map[string]any{"title": card, "due": "2024-06-01"}))
		}
		appendTo(t, b, "columns", col)
	}
	return b
}

func members(t *testing.T, e domain.Entity, assoc string) []*domain.Record {
	t.Helper()
	rec, ok := e.(*domain.Record)
	require.True(t, ok)
	c, ok := rec.Collection(assoc)
	require.True(t, ok)
	return c.Records()
}

// shape renders a record graph into comparable values. Cycles are cut at
// the first revisit.
func shape(r *domain.Record, seen map[*domain.Record]bool) map[string]any {
	if seen[r] {
		return map[string]any{"cycle": string(r.Type)}
	}
	seen[r] = true
	out := map[string]any{"type": string(r.Type), "id": r.ID, "persisted": r.Persisted()}
	attrs := make(map[string]any, len(r.Attributes))
	for k, v := range r.Attributes {
		attrs[k] = v
	}
	out["attributes"] = attrs
	for _, name := range r.AssociationNames() {
		c, _ := r.Collection(name)
		var children []map[string]any
		for _, m := range c.Records() {
			children = append(children, shape(m, seen))
		}
		out["assoc:"+name] = children
	}
	return out
}

type hookLog struct {
	entries []string
}

func (l *hookLog) hook(marker string) clone.Hook {
	return func(context.Context, domain.Entity) error {
		l.entries = append(l.entries, marker)
		return nil
	}
}
