package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/casampa-lab/sinaliza/internal/db"
	"github.com/casampa-lab/sinaliza/internal/geometry"
	"github.com/casampa-lab/sinaliza/internal/model"
)

// PostgresStore implements Store on PostgreSQL with PostGIS. Geometry is
// written as EWKB; a generated column derives the PostGIS geometry from it.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS needs (
	id                   TEXT PRIMARY KEY,
	asset_type           TEXT NOT NULL,
	lot_id               TEXT NOT NULL,
	highway_id           TEXT NOT NULL,
	source_row           INTEGER NOT NULL DEFAULT 0,
	km                   DOUBLE PRECISION,
	lat                  DOUBLE PRECISION,
	lon                  DOUBLE PRECISION,
	km_start             DOUBLE PRECISION,
	km_end               DOUBLE PRECISION,
	lat_start            DOUBLE PRECISION,
	lon_start            DOUBLE PRECISION,
	lat_end              DOUBLE PRECISION,
	lon_end              DOUBLE PRECISION,
	side                 TEXT NOT NULL DEFAULT '',
	attributes           JSONB,
	declared_service     TEXT NOT NULL DEFAULT '',
	quantity             DOUBLE PRECISION,
	extension            DOUBLE PRECISION,
	solution             TEXT NOT NULL DEFAULT '',
	inferred_service     TEXT NOT NULL DEFAULT '',
	final_service        TEXT NOT NULL DEFAULT '',
	matched_inventory_id TEXT,
	match_distance_m     DOUBLE PRECISION,
	match_overlap_pct    DOUBLE PRECISION,
	match_tier           TEXT,
	divergence           BOOLEAN NOT NULL DEFAULT false,
	reconciled           BOOLEAN NOT NULL DEFAULT false,
	decided_by           TEXT NOT NULL DEFAULT '',
	decided_at           TIMESTAMPTZ,
	chosen_source        TEXT NOT NULL DEFAULT '',
	justification        TEXT NOT NULL DEFAULT '',
	has_conflict         BOOLEAN NOT NULL DEFAULT false,
	conflict_kind        TEXT NOT NULL DEFAULT '',
	conflict_details     TEXT NOT NULL DEFAULT '',
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	geom_ewkb            BYTEA,
	geom                 geometry GENERATED ALWAYS AS (ST_GeomFromEWKB(geom_ewkb)) STORED
);

CREATE TABLE IF NOT EXISTS inventory (
	id         TEXT PRIMARY KEY,
	asset_type TEXT NOT NULL,
	highway_id TEXT NOT NULL,
	km         DOUBLE PRECISION,
	lat        DOUBLE PRECISION,
	lon        DOUBLE PRECISION,
	km_start   DOUBLE PRECISION,
	km_end     DOUBLE PRECISION,
	lat_start  DOUBLE PRECISION,
	lon_start  DOUBLE PRECISION,
	lat_end    DOUBLE PRECISION,
	lon_end    DOUBLE PRECISION,
	side       TEXT NOT NULL DEFAULT '',
	attributes JSONB,
	origin     TEXT NOT NULL DEFAULT 'cadastro_inicial',
	active     BOOLEAN NOT NULL DEFAULT true,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	geom_ewkb  BYTEA,
	geom       geometry GENERATED ALWAYS AS (ST_GeomFromEWKB(geom_ewkb)) STORED
);

CREATE TABLE IF NOT EXISTS tolerances (
	highway_id TEXT NOT NULL,
	asset_type TEXT NOT NULL DEFAULT '',
	meters     DOUBLE PRECISION NOT NULL CHECK (meters > 0),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (highway_id, asset_type)
);

CREATE TABLE IF NOT EXISTS conflicts (
	id            TEXT PRIMARY KEY,
	lot_id        TEXT NOT NULL,
	highway_id    TEXT NOT NULL,
	asset_type    TEXT NOT NULL,
	kind          TEXT NOT NULL,
	need_a_id     TEXT NOT NULL,
	need_b_id     TEXT NOT NULL,
	row_a         INTEGER NOT NULL DEFAULT 0,
	row_b         INTEGER NOT NULL DEFAULT 0,
	details       TEXT NOT NULL DEFAULT '',
	resolved      BOOLEAN NOT NULL DEFAULT false,
	justification TEXT NOT NULL DEFAULT '',
	resolved_by   TEXT NOT NULL DEFAULT '',
	resolved_at   TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_needs_selection ON needs(lot_id, highway_id, asset_type);
CREATE INDEX IF NOT EXISTS idx_needs_geom ON needs USING GIST (geom);
CREATE INDEX IF NOT EXISTS idx_inventory_highway_type ON inventory(highway_id, asset_type);
CREATE INDEX IF NOT EXISTS idx_inventory_geom ON inventory USING GIST (geom);
CREATE INDEX IF NOT EXISTS idx_conflicts_selection ON conflicts(lot_id, highway_id, asset_type);
CREATE INDEX IF NOT EXISTS idx_conflicts_need_a ON conflicts(need_a_id);
CREATE INDEX IF NOT EXISTS idx_conflicts_need_b ON conflicts(need_b_id);
`

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Migrate creates the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// ListNeeds returns the needs of a selection ordered by source row.
func (s *PostgresStore) ListNeeds(ctx context.Context, sel model.Selection, onlyUnreconciled bool) ([]model.NeedRecord, error) {
	query := `SELECT ` + needColumns + ` FROM needs WHERE lot_id = $1 AND highway_id = $2 AND asset_type = $3`
	if onlyUnreconciled {
		query += ` AND NOT reconciled`
	}
	query += ` ORDER BY source_row, id`

	rows, err := s.pool.Query(ctx, query, sel.LotID, sel.HighwayID, string(sel.AssetType))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list needs")
	}
	defer rows.Close()

	var needs []model.NeedRecord
	for rows.Next() {
		n, err := scanNeed(rows)
		if err != nil {
			return nil, err
		}
		needs = append(needs, *n)
	}
	return needs, eris.Wrap(rows.Err(), "postgres: list needs iterate")
}

// GetNeed returns one need or a wrapped model.ErrNotFound.
func (s *PostgresStore) GetNeed(ctx context.Context, id string) (*model.NeedRecord, error) {
	n, err := scanNeed(s.pool.QueryRow(ctx, `SELECT `+needColumns+` FROM needs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrNotFound, "need %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get need %s", id)
	}
	return n, nil
}

// UpdateNeed applies a partial update to one need.
func (s *PostgresStore) UpdateNeed(ctx context.Context, id string, u NeedUpdate) error {
	sets := u.assignments(time.Now().UTC())
	if len(sets) == 0 {
		return nil
	}
	clauses := make([]string, len(sets))
	args := make([]any, 0, len(sets)+1)
	for i, a := range sets {
		args = append(args, a.value)
		clauses[i] = a.column + " = " + pgPlaceholder(len(args))
	}
	args = append(args, id)

	tag, err := s.pool.Exec(ctx,
		`UPDATE needs SET `+strings.Join(clauses, ", ")+` WHERE id = `+pgPlaceholder(len(args)), args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update need %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(model.ErrNotFound, "need %s", id)
	}
	return nil
}

// InsertNeeds bulk-loads needs with COPY.
func (s *PostgresStore) InsertNeeds(ctx context.Context, needs []model.NeedRecord) (int, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(needs))
	for i := range needs {
		args, err := needArgs(&needs[i], now)
		if err != nil {
			return 0, err
		}
		ewkb, err := geometry.EncodeEWKB(needs[i].Geometry, needs[i].AssetType.GeometryKind())
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: encode geometry of need %s", needs[i].ID)
		}
		rows = append(rows, append(args, ewkb))
	}
	n, err := db.CopyFrom(ctx, s.pool, "needs", append(columnNames(needColumns), "geom_ewkb"), rows)
	return int(n), eris.Wrap(err, "postgres: insert needs")
}

// ResetReconciled clears the decision of every need in the selection.
func (s *PostgresStore) ResetReconciled(ctx context.Context, sel model.Selection) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE needs SET reconciled = false, decided_by = '', decided_at = NULL, chosen_source = '',
		 justification = '', updated_at = $1
		 WHERE lot_id = $2 AND highway_id = $3 AND asset_type = $4`,
		time.Now().UTC(), sel.LotID, sel.HighwayID, string(sel.AssetType),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: reset reconciled")
	}
	return int(tag.RowsAffected()), nil
}

// ListInventory returns the inventory of one highway and asset type.
func (s *PostgresStore) ListInventory(ctx context.Context, highwayID string, t model.AssetType, activeOnly bool) ([]model.InventoryRecord, error) {
	query := `SELECT ` + inventoryColumns + ` FROM inventory WHERE highway_id = $1 AND asset_type = $2`
	if activeOnly {
		query += ` AND active`
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query, highwayID, string(t))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list inventory")
	}
	defer rows.Close()

	var out []model.InventoryRecord
	for rows.Next() {
		r, err := scanInventory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list inventory iterate")
}

// InsertInventory upserts inventory records by ID through a staging table.
func (s *PostgresStore) InsertInventory(ctx context.Context, records []model.InventoryRecord) (int, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(records))
	for i := range records {
		args, err := inventoryArgs(&records[i], now)
		if err != nil {
			return 0, err
		}
		ewkb, err := geometry.EncodeEWKB(records[i].Geometry, records[i].AssetType.GeometryKind())
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: encode geometry of inventory %s", records[i].ID)
		}
		rows = append(rows, append(args, ewkb))
	}
	cols := append(columnNames(inventoryColumns), "geom_ewkb")
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "inventory",
		Columns:      cols,
		ConflictKeys: []string{"id"},
	}, rows)
	return int(n), eris.Wrap(err, "postgres: insert inventory")
}

// GetTolerance resolves the admission distance for a highway and type.
func (s *PostgresStore) GetTolerance(ctx context.Context, highwayID string, t model.AssetType) (float64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT asset_type, meters FROM tolerances WHERE highway_id = $1 AND asset_type IN ($2, '')`,
		highwayID, string(t),
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: get tolerance %s/%s", highwayID, t)
	}
	defer rows.Close()

	var perType, generic *float64
	for rows.Next() {
		var at string
		var m float64
		if err := rows.Scan(&at, &m); err != nil {
			return 0, eris.Wrap(err, "postgres: scan tolerance")
		}
		if at == "" {
			generic = &m
		} else {
			perType = &m
		}
	}
	if err := rows.Err(); err != nil {
		return 0, eris.Wrap(err, "postgres: get tolerance iterate")
	}
	return resolveTolerance(t, perType, generic), nil
}

// SetTolerance upserts a tolerance.
func (s *PostgresStore) SetTolerance(ctx context.Context, highwayID string, t model.AssetType, meters float64) error {
	if err := validateTolerance(highwayID, t, meters); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tolerances (highway_id, asset_type, meters, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (highway_id, asset_type) DO UPDATE SET meters = EXCLUDED.meters, updated_at = EXCLUDED.updated_at`,
		highwayID, string(t), meters, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: set tolerance %s/%s", highwayID, t)
}

// ListConflicts lists conflicts of a lot and highway, optionally one type.
func (s *PostgresStore) ListConflicts(ctx context.Context, lotID, highwayID string, t model.AssetType) ([]model.ConflictRecord, error) {
	query := `SELECT ` + conflictColumns + ` FROM conflicts WHERE lot_id = $1 AND highway_id = $2`
	args := []any{lotID, highwayID}
	if t != "" {
		query += ` AND asset_type = $3`
		args = append(args, string(t))
	}
	query += ` ORDER BY row_a, row_b, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list conflicts")
	}
	defer rows.Close()

	var out []model.ConflictRecord
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list conflicts iterate")
}

// GetConflict returns one conflict or a wrapped model.ErrNotFound.
func (s *PostgresStore) GetConflict(ctx context.Context, id string) (*model.ConflictRecord, error) {
	c, err := scanConflict(s.pool.QueryRow(ctx, `SELECT `+conflictColumns+` FROM conflicts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrNotFound, "conflict %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get conflict %s", id)
	}
	return c, nil
}

// ReplaceConflicts stores a fresh detection pass for the selection.
func (s *PostgresStore) ReplaceConflicts(ctx context.Context, sel model.Selection, conflicts []model.ConflictRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace conflicts")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	selArgs := []any{sel.LotID, sel.HighwayID, string(sel.AssetType)}
	resolved := make(map[string]bool)
	rows, err := tx.Query(ctx,
		`SELECT kind, need_a_id, need_b_id FROM conflicts
		 WHERE lot_id = $1 AND highway_id = $2 AND asset_type = $3 AND resolved`, selArgs...)
	if err != nil {
		return eris.Wrap(err, "postgres: list resolved conflicts")
	}
	for rows.Next() {
		var c model.ConflictRecord
		if err := rows.Scan(&c.Kind, &c.NeedAID, &c.NeedBID); err != nil {
			rows.Close()
			return eris.Wrap(err, "postgres: scan resolved conflict")
		}
		resolved[pairKey(&c)] = true
	}
	rows.Close()

	if _, err := tx.Exec(ctx,
		`DELETE FROM conflicts WHERE lot_id = $1 AND highway_id = $2 AND asset_type = $3 AND NOT resolved`,
		selArgs...); err != nil {
		return eris.Wrap(err, "postgres: delete unresolved conflicts")
	}
	now := time.Now().UTC()
	if _, err := tx.Exec(ctx,
		`UPDATE needs SET has_conflict = false, conflict_kind = '', conflict_details = '', updated_at = $1
		 WHERE lot_id = $2 AND highway_id = $3 AND asset_type = $4`,
		append([]any{now}, selArgs...)...); err != nil {
		return eris.Wrap(err, "postgres: clear conflict flags")
	}

	var inserts, flags [][]any
	for i := range conflicts {
		c := &conflicts[i]
		if resolved[pairKey(c)] {
			continue
		}
		prepareConflict(c, sel, now)
		inserts = append(inserts, conflictArgs(c))
		flags = append(flags,
			[]any{string(c.Kind), c.Details, now, c.NeedAID},
			[]any{string(c.Kind), c.Details, now, c.NeedBID})
	}
	if _, err := db.SendBatch(ctx, tx,
		`INSERT INTO conflicts (`+conflictColumns+`) VALUES (`+pgPlaceholders(15)+`)`, inserts); err != nil {
		return eris.Wrap(err, "postgres: insert conflicts")
	}
	if _, err := db.SendBatch(ctx, tx,
		`UPDATE needs SET has_conflict = true, conflict_kind = $1, conflict_details = $2, updated_at = $3 WHERE id = $4`,
		flags); err != nil {
		return eris.Wrap(err, "postgres: flag needs")
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace conflicts")
}

// ResolveConflict marks a conflict resolved and clears stale need flags.
func (s *PostgresStore) ResolveConflict(ctx context.Context, id, justification, resolvedBy string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin resolve conflict")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var needA, needB string
	err = tx.QueryRow(ctx,
		`UPDATE conflicts SET resolved = true, justification = $1, resolved_by = $2, resolved_at = $3
		 WHERE id = $4 RETURNING need_a_id, need_b_id`,
		justification, resolvedBy, time.Now().UTC(), id,
	).Scan(&needA, &needB)
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(model.ErrNotFound, "conflict %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: resolve conflict %s", id)
	}
	if err := clearStaleFlagsPG(ctx, tx, needA, needB); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit resolve conflict")
}

// DeleteNeed removes a need and the conflicts that reference it.
func (s *PostgresStore) DeleteNeed(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin delete need")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := tx.Query(ctx,
		`DELETE FROM conflicts WHERE need_a_id = $1 OR need_b_id = $1 RETURNING need_a_id, need_b_id`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete conflicts of need %s", id)
	}
	var others []string
	for rows.Next() {
		var a, b string
		if err := rows.Scan(&a, &b); err != nil {
			rows.Close()
			return eris.Wrap(err, "postgres: scan conflict pair")
		}
		if a == id {
			others = append(others, b)
		} else {
			others = append(others, a)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return eris.Wrap(err, "postgres: delete conflicts iterate")
	}

	tag, err := tx.Exec(ctx, `DELETE FROM needs WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete need %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(model.ErrNotFound, "need %s", id)
	}
	if err := clearStaleFlagsPG(ctx, tx, others...); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit delete need")
}

func clearStaleFlagsPG(ctx context.Context, tx pgx.Tx, needIDs ...string) error {
	if len(needIDs) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx,
		`UPDATE needs SET has_conflict = false, conflict_kind = '', conflict_details = '', updated_at = $1
		 WHERE id = ANY($2) AND NOT EXISTS (
			SELECT 1 FROM conflicts c WHERE NOT c.resolved AND (c.need_a_id = needs.id OR c.need_b_id = needs.id))`,
		time.Now().UTC(), needIDs)
	return eris.Wrap(err, "postgres: clear conflict flags")
}

func pgPlaceholder(i int) string {
	return fmt.Sprintf("$%d", i)
}

// pgPlaceholders returns "$1, $2, ..., $n".
func pgPlaceholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = pgPlaceholder(i + 1)
	}
	return strings.Join(parts, ", ")
}

// columnNames splits a column list constant into names.
func columnNames(list string) []string {
	parts := strings.Split(list, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
