package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casampa-lab/sinaliza/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

var tachaSel = model.Selection{LotID: "L1", HighwayID: "BR-101", AssetType: model.AssetTachas}

func tachaNeed(id string, row int, start, end float64) model.NeedRecord {
	return model.NeedRecord{
		ID:        id,
		AssetType: model.AssetTachas,
		LotID:     "L1",
		HighwayID: "BR-101",
		SourceRow: row,
		Geometry: model.Geometry{
			KmStart:    model.Float(start),
			KmEnd:      model.Float(end),
			CoordStart: &model.Coord{Lat: -27.1, Lon: -48.6},
		},
		Side:            "Direito",
		Attrs:           &model.StudAttributes{LocalImplantacao: "Bordo", Corpo: "Resina"},
		DeclaredService: "Substituição",
		Quantity:        model.Float(40),
	}
}

func TestSQLite_InsertAndGetNeed(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	n, err := st.InsertNeeds(ctx, []model.NeedRecord{tachaNeed("n1", 2, 10, 10.5)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := st.GetNeed(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, model.AssetTachas, got.AssetType)
	assert.Equal(t, 2, got.SourceRow)
	require.NotNil(t, got.Geometry.KmStart)
	assert.InDelta(t, 10.0, *got.Geometry.KmStart, 1e-9)
	assert.InDelta(t, 10.5, *got.Geometry.KmEnd, 1e-9)
	require.NotNil(t, got.Geometry.CoordStart)
	assert.InDelta(t, -27.1, got.Geometry.CoordStart.Lat, 1e-9)
	assert.Nil(t, got.Geometry.CoordEnd)
	assert.Nil(t, got.Geometry.Km)

	attrs, ok := got.Attrs.(*model.StudAttributes)
	require.True(t, ok)
	assert.Equal(t, "Bordo", attrs.LocalImplantacao)
	assert.Equal(t, "Substituição", got.DeclaredService)
	require.NotNil(t, got.Quantity)
	assert.InDelta(t, 40.0, *got.Quantity, 1e-9)
	assert.Nil(t, got.Extension)
	assert.False(t, got.Matched())
	assert.Nil(t, got.Decision)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestSQLite_GetNeedNotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.GetNeed(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSQLite_InsertNeedsAssignsIDs(t *testing.T) {
	st := newTestSQLiteStore(t)
	needs := []model.NeedRecord{tachaNeed("", 1, 1, 2)}
	_, err := st.InsertNeeds(context.Background(), needs)
	require.NoError(t, err)
	assert.NotEmpty(t, needs[0].ID)
}

func TestSQLite_ListNeedsFiltersSelectionAndReconciled(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	other := tachaNeed("other", 1, 1, 2)
	other.HighwayID = "BR-116"
	_, err := st.InsertNeeds(ctx, []model.NeedRecord{
		tachaNeed("n2", 3, 2, 3),
		tachaNeed("n1", 1, 1, 2),
		other,
	})
	require.NoError(t, err)

	require.NoError(t, st.UpdateNeed(ctx, "n2", NeedUpdate{Decision: &model.ReconciliationDecision{
		DecidedBy:    "ana",
		ChosenSource: model.SourceProjeto,
		FinalService: model.ServiceSubstituir,
	}}))

	all, err := st.ListNeeds(ctx, tachaSel, false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "n1", all[0].ID, "ordered by source row")
	assert.Equal(t, "n2", all[1].ID)

	pending, err := st.ListNeeds(ctx, tachaSel, true)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "n1", pending[0].ID)
}

func TestSQLite_UpdateNeedOutcomeAndDecision(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	_, err := st.InsertNeeds(ctx, []model.NeedRecord{tachaNeed("n1", 1, 10, 10.5)})
	require.NoError(t, err)

	err = st.UpdateNeed(ctx, "n1", NeedUpdate{Outcome: &Outcome{
		MatchedInventoryID: "inv-1",
		OverlapPct:         model.Float(70),
		Tier:               model.TierAlto,
		Inferred:           model.ServiceSubstituir,
		Final:              model.ServiceSubstituir,
		Divergence:         true,
	}})
	require.NoError(t, err)

	got, err := st.GetNeed(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "inv-1", got.MatchedInventoryID)
	assert.Equal(t, model.TierAlto, got.MatchTier)
	assert.Nil(t, got.MatchDistanceM)
	assert.True(t, got.Divergence)
	assert.Equal(t, model.StatusPendenteAprovacao, got.Status())

	decidedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	err = st.UpdateNeed(ctx, "n1", NeedUpdate{Decision: &model.ReconciliationDecision{
		DecidedBy:     "ana",
		DecidedAt:     decidedAt,
		ChosenSource:  model.SourceInferencia,
		Justification: "vistoria confirmou desgaste",
		FinalService:  model.ServiceSubstituir,
	}})
	require.NoError(t, err)

	got, err = st.GetNeed(ctx, "n1")
	require.NoError(t, err)
	assert.True(t, got.Reconciled)
	require.NotNil(t, got.Decision)
	assert.Equal(t, "ana", got.Decision.DecidedBy)
	assert.Equal(t, model.SourceInferencia, got.Decision.ChosenSource)
	assert.True(t, decidedAt.Equal(got.Decision.DecidedAt))
	assert.Equal(t, model.StatusRejeitado, got.Status())

	// Clearing the match writes NULLs.
	require.NoError(t, st.UpdateNeed(ctx, "n1", NeedUpdate{Outcome: &Outcome{
		Inferred: model.ServiceImplantar,
		Final:    model.ServiceImplantar,
	}}))
	got, err = st.GetNeed(ctx, "n1")
	require.NoError(t, err)
	assert.False(t, got.Matched())
	assert.Nil(t, got.MatchOverlapPct)
	assert.Empty(t, got.MatchTier)
}

func TestSQLite_UpdateNeedNotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	err := st.UpdateNeed(context.Background(), "missing", NeedUpdate{Outcome: &Outcome{Inferred: model.ServiceImplantar}})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSQLite_ResetReconciled(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	_, err := st.InsertNeeds(ctx, []model.NeedRecord{tachaNeed("n1", 1, 1, 2), tachaNeed("n2", 2, 2, 3)})
	require.NoError(t, err)
	for _, id := range []string{"n1", "n2"} {
		require.NoError(t, st.UpdateNeed(ctx, id, NeedUpdate{Decision: &model.ReconciliationDecision{
			DecidedBy: "ana", ChosenSource: model.SourceProjeto, FinalService: model.ServiceSubstituir,
		}}))
	}

	n, err := st.ResetReconciled(ctx, tachaSel)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	pending, err := st.ListNeeds(ctx, tachaSel, true)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
	assert.Nil(t, pending[0].Decision)
}

func TestSQLite_InventoryUpsertAndActiveFilter(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	records := []model.InventoryRecord{
		{ID: "i1", AssetType: model.AssetPlacas, HighwayID: "BR-101", Active: true,
			Geometry: model.Geometry{Km: model.Float(5), Coord: &model.Coord{Lat: -27, Lon: -48}},
			Side:     "D", Attrs: &model.SignAttributes{Codigo: "R-1"}},
		{ID: "i2", AssetType: model.AssetPlacas, HighwayID: "BR-101", Active: false,
			Geometry: model.Geometry{Km: model.Float(6)}},
		{ID: "i3", AssetType: model.AssetDefensas, HighwayID: "BR-101", Active: true,
			Geometry: model.Geometry{KmStart: model.Float(1), KmEnd: model.Float(2)}},
	}
	n, err := st.InsertInventory(ctx, records)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	active, err := st.ListInventory(ctx, "BR-101", model.AssetPlacas, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "i1", active[0].ID)
	assert.Equal(t, model.OriginCadastroInicial, active[0].Origin)
	sign, ok := active[0].Attrs.(*model.SignAttributes)
	require.True(t, ok)
	assert.Equal(t, "R-1", sign.Codigo)

	all, err := st.ListInventory(ctx, "BR-101", model.AssetPlacas, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// Re-import updates in place.
	records[1].Active = true
	_, err = st.InsertInventory(ctx, records[1:2])
	require.NoError(t, err)
	active, err = st.ListInventory(ctx, "BR-101", model.AssetPlacas, true)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestSQLite_ToleranceFallback(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	m, err := st.GetTolerance(ctx, "BR-101", model.AssetPorticos)
	require.NoError(t, err)
	assert.Equal(t, 200.0, m, "legacy per-type default")

	require.NoError(t, st.SetTolerance(ctx, "BR-101", "", 35))
	m, err = st.GetTolerance(ctx, "BR-101", model.AssetPorticos)
	require.NoError(t, err)
	assert.Equal(t, 35.0, m, "highway-wide value")

	require.NoError(t, st.SetTolerance(ctx, "BR-101", model.AssetPorticos, 120))
	m, err = st.GetTolerance(ctx, "BR-101", model.AssetPorticos)
	require.NoError(t, err)
	assert.Equal(t, 120.0, m, "per-type value")

	require.NoError(t, st.SetTolerance(ctx, "BR-101", model.AssetPorticos, 150))
	m, err = st.GetTolerance(ctx, "BR-101", model.AssetPorticos)
	require.NoError(t, err)
	assert.Equal(t, 150.0, m, "upsert")

	m, err = st.GetTolerance(ctx, "BR-116", model.AssetPlacas)
	require.NoError(t, err)
	assert.Equal(t, 50.0, m)
}

func TestSQLite_SetToleranceValidation(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	assert.ErrorIs(t, st.SetTolerance(ctx, "", model.AssetPlacas, 10), model.ErrValidation)
	assert.ErrorIs(t, st.SetTolerance(ctx, "BR-101", model.AssetPlacas, 0), model.ErrValidation)
	assert.ErrorIs(t, st.SetTolerance(ctx, "BR-101", "semaforos", 10), model.ErrUnknownAssetType)
}

func seedConflict(t *testing.T, st *SQLiteStore) {
	t.Helper()
	ctx := context.Background()
	_, err := st.InsertNeeds(ctx, []model.NeedRecord{
		tachaNeed("n1", 1, 1, 2), tachaNeed("n2", 2, 1, 2), tachaNeed("n3", 3, 1, 2),
	})
	require.NoError(t, err)
	require.NoError(t, st.ReplaceConflicts(ctx, tachaSel, []model.ConflictRecord{
		{ID: "c1", Kind: model.ConflictContradictory, NeedAID: "n1", NeedBID: "n2", RowA: 1, RowB: 2, Details: "Implantar x Remover"},
		{ID: "c2", Kind: model.ConflictDuplicate, NeedAID: "n2", NeedBID: "n3", RowA: 2, RowB: 3, Details: "duplicata"},
	}))
}

func TestSQLite_ReplaceConflictsFlagsNeeds(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedConflict(t, st)

	list, err := st.ListConflicts(ctx, "L1", "BR-101", "")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c1", list[0].ID)
	assert.Equal(t, model.AssetTachas, list[0].AssetType)

	n1, err := st.GetNeed(ctx, "n1")
	require.NoError(t, err)
	assert.True(t, n1.HasConflict)
	assert.Equal(t, model.ConflictContradictory, n1.ConflictKind)

	// A new pass without conflicts clears the flags.
	require.NoError(t, st.ReplaceConflicts(ctx, tachaSel, nil))
	n1, err = st.GetNeed(ctx, "n1")
	require.NoError(t, err)
	assert.False(t, n1.HasConflict)
	list, err = st.ListConflicts(ctx, "L1", "BR-101", model.AssetTachas)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSQLite_ResolveConflictKeepsFlagWhileOtherConflictOpen(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedConflict(t, st)

	require.NoError(t, st.ResolveConflict(ctx, "c1", "linhas distintas no projeto", "ana"))

	c1, err := st.GetConflict(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, c1.Resolved)
	assert.Equal(t, "ana", c1.ResolvedBy)
	require.NotNil(t, c1.ResolvedAt)

	n1, err := st.GetNeed(ctx, "n1")
	require.NoError(t, err)
	assert.False(t, n1.HasConflict)
	n2, err := st.GetNeed(ctx, "n2")
	require.NoError(t, err)
	assert.True(t, n2.HasConflict, "still referenced by c2")

	// The resolved pair is not raised again.
	require.NoError(t, st.ReplaceConflicts(ctx, tachaSel, []model.ConflictRecord{
		{Kind: model.ConflictContradictory, NeedAID: "n2", NeedBID: "n1"},
	}))
	list, err := st.ListConflicts(ctx, "L1", "BR-101", model.AssetTachas)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Resolved)
}

func TestSQLite_ResolveConflictNotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	err := st.ResolveConflict(context.Background(), "missing", "x", "ana")
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = st.GetConflict(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSQLite_DeleteNeedDropsConflicts(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedConflict(t, st)

	require.NoError(t, st.DeleteNeed(ctx, "n2"))

	_, err := st.GetNeed(ctx, "n2")
	assert.ErrorIs(t, err, model.ErrNotFound)
	list, err := st.ListConflicts(ctx, "L1", "BR-101", "")
	require.NoError(t, err)
	assert.Empty(t, list)
	for _, id := range []string{"n1", "n3"} {
		n, err := st.GetNeed(ctx, id)
		require.NoError(t, err)
		assert.False(t, n.HasConflict, id)
	}

	assert.ErrorIs(t, st.DeleteNeed(ctx, "n2"), model.ErrNotFound)
}

func TestDefaultTolerance(t *testing.T) {
	assert.Equal(t, 200.0, DefaultTolerance(model.AssetPorticos))
	assert.Equal(t, 25.0, DefaultTolerance(model.AssetCilindros))
	assert.Equal(t, SystemDefaultToleranceM, DefaultTolerance("outro"))
}

func TestNeedUpdateApply(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	n := &model.NeedRecord{ID: "n1", DeclaredService: "Remover"}
	NeedUpdate{
		Outcome: &Outcome{MatchedInventoryID: "i1", Inferred: model.ServiceSubstituir, Final: model.ServiceRemover, Divergence: true},
	}.Apply(n, now)
	assert.Equal(t, model.StatusPendenteAprovacao, n.Status())

	NeedUpdate{Decision: &model.ReconciliationDecision{ChosenSource: model.SourceProjeto, FinalService: model.ServiceRemover}}.Apply(n, now)
	assert.True(t, n.Reconciled)
	assert.Equal(t, now, n.Decision.DecidedAt)
	assert.Equal(t, model.StatusAprovado, n.Status())

	assert.Empty(t, NeedUpdate{}.assignments(now))
}
