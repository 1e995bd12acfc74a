package plan

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphclone/pkg/clone"
	"graphclone/pkg/domain"
)

const boardPlan = `
entities:
  - type: board
    required: [name]
    associations:
      - {name: columns, kind: many, target: column}
      - {name: owner, kind: one, target: member}
  - type: column
    required: [title]
    associations:
      - {name: cards, kind: many, target: card}
  - type: card
  - type: member
unique:
  - {type: board, attribute: slug}
clones:
  - type: board
    nullify: [slug]
    before: append_copy_suffix
    after: stamp_cloned_at
    associations:
      - {name: columns, force: true}
  - type: column
    associations:
      - name: cards
        before: append_copy_suffix
  - type: card
`

func TestParseBuildsModelRulesAndRegistry(t *testing.T) {
	p, err := Parse([]byte(boardPlan))
	require.NoError(t, err)

	model := p.Model()
	assert.Equal(t, []domain.EntityType{"board", "card", "column", "member"}, model.Types())
	def, ok := model.Definition("board")
	require.True(t, ok)
	assert.Equal(t, []string{"name"}, def.Required)
	assert.Equal(t, domain.KindOne, def.Associations[1].Kind)

	rules := p.RulesEngine().Rules()
	require.Len(t, rules, 1)
	assert.Equal(t, "unique_board_slug", rules[0].Name())

	registry, err := p.Registry(NewHooks(nil))
	require.NoError(t, err)
	assert.Equal(t, []domain.EntityType{"board", "card", "column"}, registry.Types())

	spec, err := registry.Resolve("board")
	require.NoError(t, err)
	assert.Equal(t, []string{"slug"}, spec.Cleared())
	assert.NotNil(t, spec.Before())
	assert.NotNil(t, spec.After())
	require.Len(t, spec.Associations(), 1)
	assert.True(t, spec.Associations()[0].Options.Force)

	column, err := registry.Resolve("column")
	require.NoError(t, err)
	assert.Nil(t, column.Before())
	assert.NotNil(t, column.Associations()[0].Options.Before)
}

func TestParseRejectsInconsistentPlans(t *testing.T) {
	cases := map[string]string{
		"bad yaml":              "entities: [",
		"missing type":          "entities: [{required: [name]}]",
		"duplicate entity":      "entities: [{type: a}, {type: a}]",
		"bad kind":              "entities: [{type: a, associations: [{name: b, kind: few, target: a}]}]",
		"undeclared target":     "entities: [{type: a, associations: [{name: b, kind: many, target: z}]}]",
		"unique on unknown":     "entities: [{type: a}]\nunique: [{type: z, attribute: x}]",
		"unique no attribute":   "entities: [{type: a}]\nunique: [{type: a}]",
		"clone on unknown":      "entities: [{type: a}]\nclones: [{type: z}]",
		"clone declared twice":  "entities: [{type: a}]\nclones: [{type: a}, {type: a}]",
		"undeclared assoc name": "entities: [{type: a}]\nclones: [{type: a, associations: [{name: b}]}]",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestRegistryRejectsUnknownHook(t *testing.T) {
	p, err := Parse([]byte("entities: [{type: a}]\nclones: [{type: a, after: shout}]"))
	require.NoError(t, err)

	_, err = p.Registry(nil)
	require.ErrorIs(t, err, ErrUnknownHook)
}

func TestRegistryUsesCustomHooks(t *testing.T) {
	p, err := Parse([]byte("entities: [{type: a}]\nclones: [{type: a, before: shout}]"))
	require.NoError(t, err)

	hooks := NewHooks(nil)
	require.NoError(t, hooks.Register("shout", func(_ context.Context, c domain.Entity) error {
		return c.SetAttribute("loud", true)
	}))
	require.Error(t, hooks.Register("shout", func(context.Context, domain.Entity) error { return nil }))
	require.Error(t, hooks.Register("", nil))
	assert.Equal(t, []string{HookAppendCopySuffix, "shout", HookStampClonedAt}, hooks.Names())

	registry, err := p.Registry(hooks)
	require.NoError(t, err)

	source := domain.NewRecord("a", nil)
	source.ID = "a-1"
	source.SetPersisted(true)
	copied, err := clone.NewEngine(nil, registry).New(source, nil, clone.Options{SkipTransaction: true}).Make(context.Background())
	require.NoError(t, err)
	loud, _ := copied.(*domain.Record).Attribute("loud")
	assert.Equal(t, true, loud)
}

func TestBuiltinHooks(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	hooks := NewHooks(func() time.Time { return fixed })

	suffix, err := hooks.lookup(HookAppendCopySuffix)
	require.NoError(t, err)
	stamp, err := hooks.lookup(HookStampClonedAt)
	require.NoError(t, err)

	rec := domain.NewRecord("board", map[string]any{"name": "Roadmap"})
	require.NoError(t, suffix(context.Background(), rec))
	require.NoError(t, stamp(context.Background(), rec))
	assert.Equal(t, "Roadmap (copy)", rec.Attributes["name"])
	assert.Equal(t, "2026-03-01T12:00:00Z", rec.Attributes["cloned_at"])

	unnamed := domain.NewRecord("board", map[string]any{"name": 7})
	require.NoError(t, suffix(context.Background(), unnamed))
	assert.Equal(t, 7, unnamed.Attributes["name"], "non-string names are left alone")

	none, err := hooks.lookup("")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(boardPlan), 0o600))

	p, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, p.Clones, 3)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("clones: [{type: ghost}]"), 0o600))
	_, err = LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}
