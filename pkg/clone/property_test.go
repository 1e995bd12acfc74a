package clone_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"
	"pgregory.net/rapid"

	"graphclone/pkg/clone"
	"graphclone/pkg/domain"
)

// TestMakeNeverMutatesSource draws random boards, optionally poisons one card,
// and checks the source graph is untouched and the store is all-or-nothing.
func TestMakeNeverMutatesSource(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		m := boardModel()
		board, err := m.New(boardType, map[string]any{"name": rapid.StringMatching(`[a-z]{1,8}`).Draw(rt, "name"), "slug": "s"})
		require.NoError(rt, err)
		columns, _ := board.Collection("columns")
		nColumns := rapid.IntRange(0, 4).Draw(rt, "columns")
		totalCards := 0
		for i := 0; i < nColumns; i++ {
			col, err := m.New(columnType, map[string]any{"title": fmt.Sprintf("col-%d", i), "position": i})
			require.NoError(rt, err)
			cards, _ := col.Collection("cards")
			nCards := rapid.IntRange(0, 3).Draw(rt, fmt.Sprintf("cards-%d", i))
			for j := 0; j < nCards; j++ {
				card, err := m.New(cardType, map[string]any{"title": fmt.Sprintf("card-%d-%d", i, j), "due": "d"})
				require.NoError(rt, err)
				require.NoError(rt, cards.Append(card))
				totalCards++
			}
			require.NoError(rt, columns.Append(col))
		}
		poison := ""
		if totalCards > 0 && rapid.Bool().Draw(rt, "poison") {
			poison = fmt.Sprintf("card-%d-0", rapid.IntRange(0, nColumns-1).Draw(rt, "poisoned column"))
		}
		force := rapid.Bool().Draw(rt, "force")

		boom := errors.New("poisoned")
		specs := []*clone.Spec{
			clone.Define(boardType).Nullify("slug").Association("columns", clone.Options{Force: rapid.Bool().Draw(rt, "force columns")}).Build(),
			clone.Define(columnType).Nullify("position").Association("cards", clone.Options{}).Build(),
			clone.Define(cardType).Nullify("due").Before(func(_ context.Context, e domain.Entity) error {
				if poison != "" && e.(*domain.Record).Attributes["title"] == poison {
					return boom
				}
				return e.SetAttribute("title", "copied")
			}).Build(),
		}
		store := newFixtureStore(m)
		f := &fixture{model: m, store: store, registry: clone.NewRegistry().MustRegister(specs...)}
		f.engine = clone.NewEngine(f.store, f.registry)

		before := shape(board, map[*domain.Record]bool{})
		copied, err := f.engine.New(board, nil, clone.Options{Force: force}).Make(context.Background())
		require.Equal(rt, before, shape(board, map[*domain.Record]bool{}))

		poisoned := false
		for _, col := range columns.Records() {
			c, _ := col.Collection("cards")
			if c.Len() > 0 && c.Records()[0].Attributes["title"] == poison {
				poisoned = true
			}
		}
		if poisoned {
			require.Error(rt, err)
			require.Empty(rt, f.store.List(boardType))
			require.Empty(rt, f.store.List(columnType))
			require.Empty(rt, f.store.List(cardType))
			return
		}
		require.NoError(rt, err)
		got := copied.(*domain.Record)
		require.Nil(rt, got.Attributes["slug"])
		copiedColumns, _ := got.Collection("columns")
		require.Equal(rt, nColumns, copiedColumns.Len())
		if force {
			require.Len(rt, f.store.List(cardType), totalCards)
		}
	})
}
