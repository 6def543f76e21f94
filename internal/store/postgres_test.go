package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casampa-lab/sinaliza/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return &PostgresStore{pool: mock}, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE EXTENSION IF NOT EXISTS postgis`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetNeed_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, asset_type, lot_id.* FROM needs WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetNeed(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateNeed_Outcome(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE needs SET matched_inventory_id = \$1, match_distance_m = \$2, match_overlap_pct = \$3, match_tier = \$4, inferred_service = \$5, final_service = \$6, divergence = \$7, updated_at = \$8 WHERE id = \$9`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			"Substituir", "Substituir", true, pgxmock.AnyArg(), "n1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateNeed(context.Background(), "n1", NeedUpdate{Outcome: &Outcome{
		MatchedInventoryID: "i1",
		DistanceM:          model.Float(12.5),
		Inferred:           model.ServiceSubstituir,
		Final:              model.ServiceSubstituir,
		Divergence:         true,
	}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateNeed_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE needs SET reconciled = \$1`).
		WithArgs(true, "Implantar", "", pgxmock.AnyArg(), "projeto", "", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateNeed(context.Background(), "missing", NeedUpdate{Decision: &model.ReconciliationDecision{
		ChosenSource: model.SourceProjeto, FinalService: model.ServiceImplantar,
	}})
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateNeed_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	require.NoError(t, s.UpdateNeed(context.Background(), "n1", NeedUpdate{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ResetReconciled(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE needs SET reconciled = false`).
		WithArgs(pgxmock.AnyArg(), "L1", "BR-101", "tachas").
		WillReturnResult(pgxmock.NewResult("UPDATE", 7))

	n, err := s.ResetReconciled(context.Background(), tachaSel)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertNeeds_Copy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"needs"}, append(columnNames(needColumns), "geom_ewkb")).
		WillReturnResult(2)

	n, err := s.InsertNeeds(context.Background(), []model.NeedRecord{
		tachaNeed("n1", 1, 1, 2), tachaNeed("n2", 2, 2, 3),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetTolerance_Fallbacks(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT asset_type, meters FROM tolerances`).
		WithArgs("BR-101", "defensas").
		WillReturnRows(pgxmock.NewRows([]string{"asset_type", "meters"}).AddRow("", 40.0))
	mock.ExpectQuery(`SELECT asset_type, meters FROM tolerances`).
		WithArgs("BR-101", "defensas").
		WillReturnRows(pgxmock.NewRows([]string{"asset_type", "meters"}).
			AddRow("", 40.0).AddRow("defensas", 15.0))
	mock.ExpectQuery(`SELECT asset_type, meters FROM tolerances`).
		WithArgs("BR-116", "defensas").
		WillReturnRows(pgxmock.NewRows([]string{"asset_type", "meters"}))

	ctx := context.Background()
	m, err := s.GetTolerance(ctx, "BR-101", model.AssetDefensas)
	require.NoError(t, err)
	assert.Equal(t, 40.0, m)

	m, err = s.GetTolerance(ctx, "BR-101", model.AssetDefensas)
	require.NoError(t, err)
	assert.Equal(t, 15.0, m)

	m, err = s.GetTolerance(ctx, "BR-116", model.AssetDefensas)
	require.NoError(t, err)
	assert.Equal(t, 20.0, m)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetTolerance_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT asset_type, meters FROM tolerances`).
		WithArgs("BR-101", "placas").
		WillReturnError(errors.New("connection refused"))

	_, err := s.GetTolerance(context.Background(), "BR-101", model.AssetPlacas)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get tolerance")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetTolerance(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO tolerances .* ON CONFLICT`).
		WithArgs("BR-101", "", 30.0, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SetTolerance(context.Background(), "BR-101", "", 30))
	assert.ErrorIs(t, s.SetTolerance(context.Background(), "BR-101", "", -1), model.ErrValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ResolveConflict_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE conflicts SET resolved = true`).
		WithArgs("ok", "ana", pgxmock.AnyArg(), "missing").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err := s.ResolveConflict(context.Background(), "missing", "ok", "ana")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ResolveConflict(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE conflicts SET resolved = true`).
		WithArgs("duplicidade conferida", "ana", pgxmock.AnyArg(), "c1").
		WillReturnRows(pgxmock.NewRows([]string{"need_a_id", "need_b_id"}).AddRow("n1", "n2"))
	mock.ExpectExec(`UPDATE needs SET has_conflict = false`).
		WithArgs(pgxmock.AnyArg(), []string{"n1", "n2"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectCommit()
	mock.ExpectRollback()

	require.NoError(t, s.ResolveConflict(context.Background(), "c1", "duplicidade conferida", "ana"))
}

func TestColumnNames(t *testing.T) {
	cols := columnNames(inventoryColumns)
	assert.Len(t, cols, 18)
	assert.Equal(t, "id", cols[0])
	assert.Equal(t, "updated_at", cols[len(cols)-1])
	assert.Equal(t, "$1, $2, $3", pgPlaceholders(3))
}
