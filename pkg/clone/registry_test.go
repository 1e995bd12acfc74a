package clone_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"

	"graphclone/pkg/clone"
	"graphclone/pkg/domain"
)

func TestRegistryRegisterAndResolve(t *testing.T) {
	r := clone.NewRegistry()
	spec := clone.Define(cardType).Build()
	require.NoError(t, r.Register(spec))
	require.NoError(t, r.Register(clone.Define(boardType).Build()))

	got, err := r.Resolve(cardType)
	require.NoError(t, err)
	assert.Same(t, spec, got)
	assert.Equal(t, []domain.EntityType{boardType, cardType}, r.Types())
}

func TestRegistryRejectsDuplicatesAndInvalidSpecs(t *testing.T) {
	r := clone.NewRegistry()
	require.NoError(t, r.Register(clone.Define(cardType).Build()))
	err := r.Register(clone.Define(cardType).Nullify("title").Build())
	assert.True(t, errors.Is(err, clone.ErrDuplicateStrategy))

	require.Error(t, r.Register(nil))
	require.Error(t, r.Register(clone.Define("").Build()))
}

func TestRegistryResolveIsExact(t *testing.T) {
	r := clone.NewRegistry().MustRegister(clone.Define(cardType).Build())
	_, err := r.Resolve("Card")
	var notFound *clone.StrategyNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, domain.EntityType("Card"), notFound.Type)
	assert.Contains(t, err.Error(), `"Card"`)
}

func TestRegistryMustRegisterPanics(t *testing.T) {
	r := clone.NewRegistry()
	assert.Panics(t, func() {
		r.MustRegister(clone.Define(cardType).Build(), clone.Define(cardType).Build())
	})
}
