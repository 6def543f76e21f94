package conflict

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casampa-lab/sinaliza/internal/model"
	"github.com/casampa-lab/sinaliza/internal/store"
)

var placasSel = model.Selection{LotID: "L1", HighwayID: "BR-101", AssetType: model.AssetPlacas}

func newTestService(t *testing.T, needs ...model.NeedRecord) (*Service, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	if len(needs) > 0 {
		_, err = st.InsertNeeds(context.Background(), needs)
		require.NoError(t, err)
	}
	return NewService(st, Options{}), st
}

func TestServiceDetectPersistsAndFlags(t *testing.T) {
	svc, st := newTestService(t,
		signNeed("a", 1, 5.0, "Implantar"),
		signNeed("b", 2, 5.0, "Remover"),
		signNeed("c", 3, 9.0, "Substituir"),
	)
	ctx := context.Background()

	found, err := svc.Detect(ctx, placasSel)
	require.NoError(t, err)
	require.Len(t, found, 1)

	listed, err := svc.List(ctx, "L1", "BR-101", "")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, model.ConflictContradictory, listed[0].Kind)

	a, err := st.GetNeed(ctx, "a")
	require.NoError(t, err)
	assert.True(t, a.HasConflict)
	c, err := st.GetNeed(ctx, "c")
	require.NoError(t, err)
	assert.False(t, c.HasConflict)
}

func TestServiceResolveRequiresJustification(t *testing.T) {
	svc, st := newTestService(t, signNeed("a", 1, 5.0, "Implantar"), signNeed("b", 2, 5.0, "Remover"))
	ctx := context.Background()
	found, err := svc.Detect(ctx, placasSel)
	require.NoError(t, err)
	id := found[0].ID

	err = svc.Resolve(ctx, id, ResolveInput{Justification: "  ", ResolvedBy: "ana"})
	assert.ErrorIs(t, err, model.ErrValidation)
	a, err := st.GetNeed(ctx, "a")
	require.NoError(t, err)
	assert.True(t, a.HasConflict, "no mutation on validation failure")

	require.NoError(t, svc.Resolve(ctx, id, ResolveInput{Justification: "placas em pistas distintas", ResolvedBy: "ana"}))
	a, err = st.GetNeed(ctx, "a")
	require.NoError(t, err)
	assert.False(t, a.HasConflict)
	assert.False(t, a.Reconciled)

	err = svc.Resolve(ctx, id, ResolveInput{Justification: "de novo", ResolvedBy: "ana"})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestServiceResolveUnknownConflict(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.Resolve(context.Background(), "missing", ResolveInput{Justification: "x", ResolvedBy: "ana"})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestServiceDeleteNeed(t *testing.T) {
	svc, st := newTestService(t, signNeed("a", 1, 5.0, "Substituir"), signNeed("b", 2, 5.0, "Substituir"))
	ctx := context.Background()
	_, err := svc.Detect(ctx, placasSel)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteNeed(ctx, "b"))
	listed, err := svc.List(ctx, "L1", "BR-101", model.AssetPlacas)
	require.NoError(t, err)
	assert.Empty(t, listed)
	a, err := st.GetNeed(ctx, "a")
	require.NoError(t, err)
	assert.False(t, a.HasConflict)

	assert.ErrorIs(t, svc.DeleteNeed(ctx, ""), model.ErrValidation)
	assert.ErrorIs(t, svc.DeleteNeed(ctx, "b"), model.ErrNotFound)
}

func TestServiceValidatesSelection(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Detect(context.Background(), model.Selection{LotID: "L1", HighwayID: "BR-101", AssetType: "semaforos"})
	assert.ErrorIs(t, err, model.ErrUnknownAssetType)
	_, err = svc.List(context.Background(), "", "BR-101", "")
	assert.ErrorIs(t, err, model.ErrValidation)
}
