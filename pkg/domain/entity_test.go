package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"
)

func TestRecordDuplicateIsDetached(t *testing.T) {
	src := NewRecord("project", map[string]any{"name": "Apollo", "code": "APL"})
	src.ID = "p-1"
	src.SetPersisted(true)
	src.Declare("tasks", KindMany).Declare("lead", KindOne)
	tasks, _ := src.Collection("tasks")
	require.NoError(t, tasks.Append(NewRecord("task", nil)))

	dup, ok := src.Duplicate().(*Record)
	require.True(t, ok)

	assert.Empty(t, dup.ID)
	assert.False(t, dup.Persisted())
	assert.Equal(t, src.Attributes, dup.Attributes)
	assert.Equal(t, []string{"tasks", "lead"}, dup.AssociationNames())
	dupTasks, ok := dup.Collection("tasks")
	require.True(t, ok)
	assert.Zero(t, dupTasks.Len())
	lead, _ := dup.Collection("lead")
	assert.Equal(t, KindOne, lead.Kind())

	require.NoError(t, dup.SetAttribute("name", "changed"))
	assert.Equal(t, "Apollo", src.Attributes["name"])
}

func TestRecordUnknownAssociation(t *testing.T) {
	r := NewRecord("project", nil)
	_, err := r.Association("missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownAssociation))
}

func TestCollectionAppendKinds(t *testing.T) {
	owner := NewRecord("project", nil).Declare("tasks", KindMany).Declare("lead", KindOne)

	many, _ := owner.Collection("tasks")
	a, b := NewRecord("task", nil), NewRecord("task", nil)
	require.NoError(t, many.Append(a))
	require.NoError(t, many.Append(b))
	assert.Equal(t, []*Record{a, b}, many.Records())
	assert.Equal(t, []*Collection{many}, a.Owners())
	assert.Same(t, owner, many.Owner())

	one, _ := owner.Collection("lead")
	require.NoError(t, one.Append(a))
	require.NoError(t, one.Append(b))
	assert.Equal(t, 1, one.Len())
	assert.Same(t, b, one.Records()[0])

	var nilRecord *Record
	err := many.Append(nilRecord)
	assert.True(t, errors.Is(err, ErrNilMember))
	assert.True(t, IsNil(nilRecord))
	assert.True(t, IsNil(nil))
}

func TestRecordString(t *testing.T) {
	r := NewRecord("task", map[string]any{"title": "x"})
	assert.Equal(t, "task(new)", r.String())
	r.ID = "t-1"
	assert.Equal(t, "task(t-1)", r.String())
	assert.Equal(t, "<nil>", (*Record)(nil).String())
}

func TestDetachedCollection(t *testing.T) {
	c := NewCollection("roots", "")
	assert.Equal(t, KindMany, c.Kind())
	assert.Nil(t, c.Owner())
	require.NoError(t, c.Append(NewRecord("project", nil)))
	assert.Len(t, c.Members(), 1)
}
