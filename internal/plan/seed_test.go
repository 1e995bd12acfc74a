package plan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphclone/pkg/domain"
)

const boardSeed = `
records:
  - type: board
    attributes: {name: Roadmap, slug: roadmap}
    associations:
      columns:
        - attributes: {title: Todo}
          associations:
            cards:
              - attributes: {text: write plan}
              - attributes: {text: ship}
        - type: column
          attributes: {title: Done}
      owner:
        - attributes: {email: a@example.com}
`

func TestSeedBuildsNestedGraph(t *testing.T) {
	p, err := Parse([]byte(boardPlan))
	require.NoError(t, err)
	seed, err := ParseSeed([]byte(boardSeed))
	require.NoError(t, err)

	roots, err := seed.Build(p.Model())
	require.NoError(t, err)
	require.Len(t, roots, 1)

	board := roots[0]
	assert.Equal(t, domain.EntityType("board"), board.Type)
	assert.Equal(t, "Roadmap", board.Attributes["name"])
	assert.False(t, board.Persisted())

	columns, ok := board.Collection("columns")
	require.True(t, ok)
	require.Equal(t, 2, columns.Len())
	todo := columns.Records()[0]
	assert.Equal(t, domain.EntityType("column"), todo.Type)
	assert.Equal(t, "Todo", todo.Attributes["title"])

	cards, _ := todo.Collection("cards")
	require.Equal(t, 2, cards.Len())
	assert.Equal(t, "ship", cards.Records()[1].Attributes["text"])

	owner, _ := board.Collection("owner")
	require.Equal(t, 1, owner.Len())
	assert.Equal(t, domain.EntityType("member"), owner.Records()[0].Type)
}

func TestSeedBuildErrors(t *testing.T) {
	p, err := Parse([]byte(boardPlan))
	require.NoError(t, err)
	model := p.Model()

	cases := map[string]string{
		"unknown type":        "records: [{type: ghost}]",
		"wrong member type":   "records: [{type: board, associations: {columns: [{type: card}]}}]",
		"unknown association": "records: [{type: board, associations: {lanes: []}}]",
		"nested unknown":      "records: [{type: board, associations: {columns: [{associations: {tags: []}}]}}]",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			seed, err := ParseSeed([]byte(doc))
			require.NoError(t, err)
			_, err = seed.Build(model)
			require.Error(t, err)
		})
	}

	_, err = ParseSeed([]byte("records: {"))
	require.Error(t, err)
}

func TestLoadSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(boardSeed), 0o600))

	seed, err := LoadSeedFile(path)
	require.NoError(t, err)
	require.Len(t, seed.Records, 1)

	_, err = LoadSeedFile(path + ".missing")
	require.Error(t, err)
}
