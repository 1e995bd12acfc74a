package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"graphclone/internal/infra/persistence/memory"
	"graphclone/pkg/clone"
	"graphclone/pkg/domain"
)

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func boardModel() *domain.Model {
	return domain.NewModel(
		domain.Definition{
			Type:         "workspace",
			Required:     []string{"name"},
			Associations: []domain.AssociationDef{{Name: "boards", Kind: domain.KindMany, Target: "board"}},
		},
		domain.Definition{
			Type:         "board",
			Required:     []string{"name"},
			Associations: []domain.AssociationDef{{Name: "columns", Kind: domain.KindMany, Target: "column"}},
		},
		domain.Definition{Type: "column", Required: []string{"title"}},
	)
}

func boardRules() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(domain.UniqueAttributeRule{Type: "board", Attribute: "slug"})
	return engine
}

func boardRegistry(nullifySlug bool) *clone.Registry {
	board := clone.Define("board").Association("columns", clone.Options{})
	if nullifySlug {
		board.Nullify("slug")
	}
	return clone.NewRegistry().MustRegister(board.Build(), clone.Define("column").Build())
}

type fixture struct {
	svc       *Service
	store     *memory.Store
	workspace *domain.Record
	board     *domain.Record
}

func newFixture(t *testing.T, registry *clone.Registry, opts ...clone.EngineOption) fixture {
	t.Helper()
	model := boardModel()
	store := memory.NewStore(model, boardRules(), memory.WithClock(func() time.Time { return fixedNow }))
	svc := NewService(store, clone.NewEngine(store, registry, opts...))

	workspace, board := seedGraph(t, model)
	_, err := svc.Seed(context.Background(), workspace)
	require.NoError(t, err)
	return fixture{svc: svc, store: store, workspace: workspace, board: board}
}

func seedGraph(t *testing.T, model *domain.Model) (*domain.Record, *domain.Record) {
	t.Helper()
	workspace, err := model.New("workspace", map[string]any{"name": "Team"})
	require.NoError(t, err)
	board, err := model.New("board", map[string]any{"name": "Roadmap", "slug": "roadmap"})
	require.NoError(t, err)
	for _, title := range []string{"Todo", "Done"} {
		column, err := model.New("column", map[string]any{"title": title})
		require.NoError(t, err)
		c, _ := board.Collection("columns")
		require.NoError(t, c.Append(column))
	}
	boards, _ := workspace.Collection("boards")
	require.NoError(t, boards.Append(board))
	return workspace, board
}

func memberCount(t *testing.T, rec *domain.Record, name string) int {
	t.Helper()
	c, ok := rec.Collection(name)
	require.True(t, ok, "association %s", name)
	return c.Len()
}
