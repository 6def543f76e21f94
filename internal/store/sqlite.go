package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/casampa-lab/sinaliza/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection keeps the pragmas in effect for every statement and
	// serializes writers.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS needs (
	id                   TEXT PRIMARY KEY,
	asset_type           TEXT NOT NULL,
	lot_id               TEXT NOT NULL,
	highway_id           TEXT NOT NULL,
	source_row           INTEGER NOT NULL DEFAULT 0,
	km                   REAL,
	lat                  REAL,
	lon                  REAL,
	km_start             REAL,
	km_end               REAL,
	lat_start            REAL,
	lon_start            REAL,
	lat_end              REAL,
	lon_end              REAL,
	side                 TEXT NOT NULL DEFAULT '',
	attributes           TEXT,
	declared_service     TEXT NOT NULL DEFAULT '',
	quantity             REAL,
	extension            REAL,
	solution             TEXT NOT NULL DEFAULT '',
	inferred_service     TEXT NOT NULL DEFAULT '',
	final_service        TEXT NOT NULL DEFAULT '',
	matched_inventory_id TEXT,
	match_distance_m     REAL,
	match_overlap_pct    REAL,
	match_tier           TEXT,
	divergence           INTEGER NOT NULL DEFAULT 0,
	reconciled           INTEGER NOT NULL DEFAULT 0,
	decided_by           TEXT NOT NULL DEFAULT '',
	decided_at           DATETIME,
	chosen_source        TEXT NOT NULL DEFAULT '',
	justification        TEXT NOT NULL DEFAULT '',
	has_conflict         INTEGER NOT NULL DEFAULT 0,
	conflict_kind        TEXT NOT NULL DEFAULT '',
	conflict_details     TEXT NOT NULL DEFAULT '',
	created_at           DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at           DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS inventory (
	id         TEXT PRIMARY KEY,
	asset_type TEXT NOT NULL,
	highway_id TEXT NOT NULL,
	km         REAL,
	lat        REAL,
	lon        REAL,
	km_start   REAL,
	km_end     REAL,
	lat_start  REAL,
	lon_start  REAL,
	lat_end    REAL,
	lon_end    REAL,
	side       TEXT NOT NULL DEFAULT '',
	attributes TEXT,
	origin     TEXT NOT NULL DEFAULT 'cadastro_inicial',
	active     INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS tolerances (
	highway_id TEXT NOT NULL,
	asset_type TEXT NOT NULL DEFAULT '',
	meters     REAL NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
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
	resolved      INTEGER NOT NULL DEFAULT 0,
	justification TEXT NOT NULL DEFAULT '',
	resolved_by   TEXT NOT NULL DEFAULT '',
	resolved_at   DATETIME,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_needs_selection ON needs(lot_id, highway_id, asset_type);
CREATE INDEX IF NOT EXISTS idx_inventory_highway_type ON inventory(highway_id, asset_type);
CREATE INDEX IF NOT EXISTS idx_conflicts_selection ON conflicts(lot_id, highway_id, asset_type);
CREATE INDEX IF NOT EXISTS idx_conflicts_need_a ON conflicts(need_a_id);
CREATE INDEX IF NOT EXISTS idx_conflicts_need_b ON conflicts(need_b_id);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ListNeeds returns the needs of a selection ordered by source row.
func (s *SQLiteStore) ListNeeds(ctx context.Context, sel model.Selection, onlyUnreconciled bool) ([]model.NeedRecord, error) {
	query := `SELECT ` + needColumns + ` FROM needs WHERE lot_id = ? AND highway_id = ? AND asset_type = ?`
	if onlyUnreconciled {
		query += ` AND reconciled = 0`
	}
	query += ` ORDER BY source_row, id`

	rows, err := s.db.QueryContext(ctx, query, sel.LotID, sel.HighwayID, string(sel.AssetType))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list needs")
	}
	defer rows.Close() //nolint:errcheck

	var needs []model.NeedRecord
	for rows.Next() {
		n, err := scanNeed(rows)
		if err != nil {
			return nil, err
		}
		needs = append(needs, *n)
	}
	return needs, eris.Wrap(rows.Err(), "sqlite: list needs iterate")
}

// GetNeed returns one need or a wrapped model.ErrNotFound.
func (s *SQLiteStore) GetNeed(ctx context.Context, id string) (*model.NeedRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+needColumns+` FROM needs WHERE id = ?`, id)
	n, err := scanNeed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrNotFound, "need %s", id)
	}
	return n, err
}

// UpdateNeed applies a partial update to one need.
func (s *SQLiteStore) UpdateNeed(ctx context.Context, id string, u NeedUpdate) error {
	sets := u.assignments(time.Now().UTC())
	if len(sets) == 0 {
		return nil
	}
	clauses := make([]string, len(sets))
	args := make([]any, 0, len(sets)+1)
	for i, a := range sets {
		clauses[i] = a.column + " = ?"
		args = append(args, a.value)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE needs SET `+strings.Join(clauses, ", ")+` WHERE id = ?`, derefArgs(args)...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update need %s", id)
	}
	return checkRowsAffected(res, "need", id)
}

// InsertNeeds inserts needs in one transaction, assigning IDs where missing.
func (s *SQLiteStore) InsertNeeds(ctx context.Context, needs []model.NeedRecord) (int, error) {
	if len(needs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert needs")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO needs (`+needColumns+`) VALUES (`+placeholders(37)+`)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert need")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	for i := range needs {
		args, err := needArgs(&needs[i], now)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, derefArgs(args)...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert need row %d", needs[i].SourceRow)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit insert needs")
	}
	return len(needs), nil
}

// ResetReconciled clears the decision of every need in the selection.
func (s *SQLiteStore) ResetReconciled(ctx context.Context, sel model.Selection) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE needs SET reconciled = 0, decided_by = '', decided_at = NULL, chosen_source = '',
		 justification = '', updated_at = ?
		 WHERE lot_id = ? AND highway_id = ? AND asset_type = ?`,
		time.Now().UTC(), sel.LotID, sel.HighwayID, string(sel.AssetType),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: reset reconciled")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// ListInventory returns the inventory of one highway and asset type.
func (s *SQLiteStore) ListInventory(ctx context.Context, highwayID string, t model.AssetType, activeOnly bool) ([]model.InventoryRecord, error) {
	query := `SELECT ` + inventoryColumns + ` FROM inventory WHERE highway_id = ? AND asset_type = ?`
	if activeOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, highwayID, string(t))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list inventory")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.InventoryRecord
	for rows.Next() {
		r, err := scanInventory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list inventory iterate")
}

// InsertInventory upserts inventory records by ID.
func (s *SQLiteStore) InsertInventory(ctx context.Context, records []model.InventoryRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert inventory")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO inventory (`+inventoryColumns+`) VALUES (`+placeholders(18)+`)
		ON CONFLICT(id) DO UPDATE SET
			asset_type = excluded.asset_type, highway_id = excluded.highway_id,
			km = excluded.km, lat = excluded.lat, lon = excluded.lon,
			km_start = excluded.km_start, km_end = excluded.km_end,
			lat_start = excluded.lat_start, lon_start = excluded.lon_start,
			lat_end = excluded.lat_end, lon_end = excluded.lon_end,
			side = excluded.side, attributes = excluded.attributes,
			origin = excluded.origin, active = excluded.active, updated_at = excluded.updated_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert inventory")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	for i := range records {
		args, err := inventoryArgs(&records[i], now)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, derefArgs(args)...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert inventory %s", records[i].ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit insert inventory")
	}
	return len(records), nil
}

// GetTolerance resolves the admission distance for a highway and type.
func (s *SQLiteStore) GetTolerance(ctx context.Context, highwayID string, t model.AssetType) (float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT asset_type, meters FROM tolerances WHERE highway_id = ? AND asset_type IN (?, '')`,
		highwayID, string(t),
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: get tolerance %s/%s", highwayID, t)
	}
	defer rows.Close() //nolint:errcheck

	var perType, generic *float64
	for rows.Next() {
		var at string
		var m float64
		if err := rows.Scan(&at, &m); err != nil {
			return 0, eris.Wrap(err, "sqlite: scan tolerance")
		}
		if at == "" {
			generic = &m
		} else {
			perType = &m
		}
	}
	if err := rows.Err(); err != nil {
		return 0, eris.Wrap(err, "sqlite: get tolerance iterate")
	}
	return resolveTolerance(t, perType, generic), nil
}

// SetTolerance upserts a tolerance.
func (s *SQLiteStore) SetTolerance(ctx context.Context, highwayID string, t model.AssetType, meters float64) error {
	if err := validateTolerance(highwayID, t, meters); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tolerances (highway_id, asset_type, meters, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(highway_id, asset_type) DO UPDATE SET meters = excluded.meters, updated_at = excluded.updated_at`,
		highwayID, string(t), meters, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: set tolerance %s/%s", highwayID, t)
}

// ListConflicts lists conflicts of a lot and highway, optionally one type.
func (s *SQLiteStore) ListConflicts(ctx context.Context, lotID, highwayID string, t model.AssetType) ([]model.ConflictRecord, error) {
	query := `SELECT ` + conflictColumns + ` FROM conflicts WHERE lot_id = ? AND highway_id = ?`
	args := []any{lotID, highwayID}
	if t != "" {
		query += ` AND asset_type = ?`
		args = append(args, string(t))
	}
	query += ` ORDER BY row_a, row_b, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list conflicts")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ConflictRecord
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list conflicts iterate")
}

// GetConflict returns one conflict or a wrapped model.ErrNotFound.
func (s *SQLiteStore) GetConflict(ctx context.Context, id string) (*model.ConflictRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conflictColumns+` FROM conflicts WHERE id = ?`, id)
	c, err := scanConflict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrNotFound, "conflict %s", id)
	}
	return c, err
}

// ReplaceConflicts stores a fresh detection pass for the selection.
func (s *SQLiteStore) ReplaceConflicts(ctx context.Context, sel model.Selection, conflicts []model.ConflictRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace conflicts")
	}
	defer tx.Rollback() //nolint:errcheck

	selArgs := []any{sel.LotID, sel.HighwayID, string(sel.AssetType)}
	resolved, err := resolvedPairsSQLite(ctx, tx, selArgs)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM conflicts WHERE lot_id = ? AND highway_id = ? AND asset_type = ? AND resolved = 0`,
		selArgs...); err != nil {
		return eris.Wrap(err, "sqlite: delete unresolved conflicts")
	}
	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE needs SET has_conflict = 0, conflict_kind = '', conflict_details = '', updated_at = ?
		 WHERE lot_id = ? AND highway_id = ? AND asset_type = ?`,
		append([]any{now}, selArgs...)...); err != nil {
		return eris.Wrap(err, "sqlite: clear conflict flags")
	}

	for i := range conflicts {
		c := &conflicts[i]
		if resolved[pairKey(c)] {
			continue
		}
		prepareConflict(c, sel, now)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conflicts (`+conflictColumns+`) VALUES (`+placeholders(15)+`)`,
			derefArgs(conflictArgs(c))...); err != nil {
			return eris.Wrapf(err, "sqlite: insert conflict %s", c.ID)
		}
		for _, needID := range []string{c.NeedAID, c.NeedBID} {
			if _, err := tx.ExecContext(ctx,
				`UPDATE needs SET has_conflict = 1, conflict_kind = ?, conflict_details = ?, updated_at = ? WHERE id = ?`,
				string(c.Kind), c.Details, now, needID); err != nil {
				return eris.Wrapf(err, "sqlite: flag need %s", needID)
			}
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit replace conflicts")
}

func resolvedPairsSQLite(ctx context.Context, tx *sql.Tx, selArgs []any) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT kind, need_a_id, need_b_id FROM conflicts
		 WHERE lot_id = ? AND highway_id = ? AND asset_type = ? AND resolved = 1`, selArgs...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list resolved conflicts")
	}
	defer rows.Close() //nolint:errcheck

	out := make(map[string]bool)
	for rows.Next() {
		var c model.ConflictRecord
		if err := rows.Scan(&c.Kind, &c.NeedAID, &c.NeedBID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan resolved conflict")
		}
		out[pairKey(&c)] = true
	}
	return out, eris.Wrap(rows.Err(), "sqlite: resolved conflicts iterate")
}

// ResolveConflict marks a conflict resolved and clears stale need flags.
func (s *SQLiteStore) ResolveConflict(ctx context.Context, id, justification, resolvedBy string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin resolve conflict")
	}
	defer tx.Rollback() //nolint:errcheck

	var needA, needB string
	err = tx.QueryRowContext(ctx, `SELECT need_a_id, need_b_id FROM conflicts WHERE id = ?`, id).Scan(&needA, &needB)
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Wrapf(model.ErrNotFound, "conflict %s", id)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: get conflict %s", id)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE conflicts SET resolved = 1, justification = ?, resolved_by = ?, resolved_at = ? WHERE id = ?`,
		justification, resolvedBy, now, id); err != nil {
		return eris.Wrapf(err, "sqlite: resolve conflict %s", id)
	}
	if err := clearStaleFlags(ctx, tx, now, needA, needB); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit resolve conflict")
}

// DeleteNeed removes a need and the conflicts that reference it.
func (s *SQLiteStore) DeleteNeed(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin delete need")
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx,
		`SELECT need_a_id, need_b_id FROM conflicts WHERE need_a_id = ? OR need_b_id = ?`, id, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: conflicts of need %s", id)
	}
	var others []string
	for rows.Next() {
		var a, b string
		if err := rows.Scan(&a, &b); err != nil {
			rows.Close() //nolint:errcheck
			return eris.Wrap(err, "sqlite: scan conflict pair")
		}
		if a == id {
			others = append(others, b)
		} else {
			others = append(others, a)
		}
	}
	rows.Close() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM conflicts WHERE need_a_id = ? OR need_b_id = ?`, id, id); err != nil {
		return eris.Wrapf(err, "sqlite: delete conflicts of need %s", id)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM needs WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete need %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Wrapf(model.ErrNotFound, "need %s", id)
	}
	if err := clearStaleFlags(ctx, tx, time.Now().UTC(), others...); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit delete need")
}

// clearStaleFlags clears the conflict flag of needs no longer referenced by
// an unresolved conflict.
func clearStaleFlags(ctx context.Context, tx *sql.Tx, now time.Time, needIDs ...string) error {
	for _, needID := range needIDs {
		_, err := tx.ExecContext(ctx,
			`UPDATE needs SET has_conflict = 0, conflict_kind = '', conflict_details = '', updated_at = ?
			 WHERE id = ? AND NOT EXISTS (
				SELECT 1 FROM conflicts WHERE resolved = 0 AND (need_a_id = ? OR need_b_id = ?))`,
			now, needID, needID, needID)
		if err != nil {
			return eris.Wrapf(err, "sqlite: clear conflict flag %s", needID)
		}
	}
	return nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(model.ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// derefArgs replaces typed pointers with their value or an untyped nil so
// the driver only sees the scalar types it binds.
func derefArgs(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case *float64:
			if v != nil {
				out[i] = *v
			}
		case *string:
			if v != nil {
				out[i] = *v
			}
		case *time.Time:
			if v != nil {
				out[i] = *v
			}
		default:
			out[i] = a
		}
	}
	return out
}

type scannable interface {
	Scan(dest ...any) error
}

func scanNeed(row scannable) (*model.NeedRecord, error) {
	var n model.NeedRecord
	var g geometryScan
	var attrs, matchedID, tier *string
	var decidedBy, chosen, justification string
	var decidedAt *time.Time

	dest := []any{&n.ID, &n.AssetType, &n.LotID, &n.HighwayID, &n.SourceRow}
	dest = append(dest, g.dest()...)
	dest = append(dest,
		&n.Side, &attrs, &n.DeclaredService, &n.Quantity, &n.Extension, &n.Solution,
		&n.InferredService, &n.FinalService, &matchedID, &n.MatchDistanceM,
		&n.MatchOverlapPct, &tier, &n.Divergence, &n.Reconciled,
		&decidedBy, &decidedAt, &chosen, &justification,
		&n.HasConflict, &n.ConflictKind, &n.ConflictDetails, &n.CreatedAt, &n.UpdatedAt,
	)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "scan need")
	}

	n.Geometry = g.geometry()
	if matchedID != nil {
		n.MatchedInventoryID = *matchedID
	}
	if tier != nil {
		n.MatchTier = model.MatchTier(*tier)
	}
	if n.Reconciled && chosen != "" {
		d := &model.ReconciliationDecision{
			DecidedBy:     decidedBy,
			ChosenSource:  model.Source(chosen),
			Justification: justification,
			FinalService:  n.FinalService,
		}
		if decidedAt != nil {
			d.DecidedAt = decidedAt.UTC()
		}
		n.Decision = d
	}
	if attrs != nil && *attrs != "" {
		a, err := model.DecodeAttributes(n.AssetType, []byte(*attrs))
		if err != nil {
			return nil, eris.Wrapf(err, "decode attributes of need %s", n.ID)
		}
		n.Attrs = a
	}
	return &n, nil
}

func scanInventory(row scannable) (*model.InventoryRecord, error) {
	var r model.InventoryRecord
	var g geometryScan
	var attrs *string

	dest := []any{&r.ID, &r.AssetType, &r.HighwayID}
	dest = append(dest, g.dest()...)
	dest = append(dest, &r.Side, &attrs, &r.Origin, &r.Active, &r.CreatedAt, &r.UpdatedAt)
	if err := row.Scan(dest...); err != nil {
		return nil, eris.Wrap(err, "scan inventory")
	}
	r.Geometry = g.geometry()
	if attrs != nil && *attrs != "" {
		a, err := model.DecodeAttributes(r.AssetType, []byte(*attrs))
		if err != nil {
			return nil, eris.Wrapf(err, "decode attributes of inventory %s", r.ID)
		}
		r.Attrs = a
	}
	return &r, nil
}

func scanConflict(row scannable) (*model.ConflictRecord, error) {
	var c model.ConflictRecord
	var resolvedAt *time.Time
	err := row.Scan(&c.ID, &c.LotID, &c.HighwayID, &c.AssetType, &c.Kind,
		&c.NeedAID, &c.NeedBID, &c.RowA, &c.RowB, &c.Details,
		&c.Resolved, &c.Justification, &c.ResolvedBy, &resolvedAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "scan conflict")
	}
	c.ResolvedAt = resolvedAt
	return &c, nil
}

func needArgs(n *model.NeedRecord, now time.Time) ([]any, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now
	attrs, err := encodeAttrs(n.Attrs)
	if err != nil {
		return nil, eris.Wrapf(err, "encode attributes of need %s", n.ID)
	}

	var decidedBy, chosen, justification string
	var decidedAt *time.Time
	if d := n.Decision; d != nil {
		decidedBy, chosen, justification = d.DecidedBy, string(d.ChosenSource), d.Justification
		decidedAt = &d.DecidedAt
	}

	args := []any{n.ID, string(n.AssetType), n.LotID, n.HighwayID, n.SourceRow}
	args = append(args, geometryArgs(n.Geometry)...)
	args = append(args,
		n.Side, attrs, n.DeclaredService, n.Quantity, n.Extension, n.Solution,
		string(n.InferredService), string(n.FinalService), nullString(n.MatchedInventoryID), n.MatchDistanceM,
		n.MatchOverlapPct, nullString(string(n.MatchTier)), n.Divergence, n.Reconciled,
		decidedBy, decidedAt, chosen, justification,
		n.HasConflict, string(n.ConflictKind), n.ConflictDetails, n.CreatedAt, n.UpdatedAt,
	)
	return args, nil
}

func inventoryArgs(r *model.InventoryRecord, now time.Time) ([]any, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Origin == "" {
		r.Origin = model.OriginCadastroInicial
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	attrs, err := encodeAttrs(r.Attrs)
	if err != nil {
		return nil, eris.Wrapf(err, "encode attributes of inventory %s", r.ID)
	}
	args := []any{r.ID, string(r.AssetType), r.HighwayID}
	args = append(args, geometryArgs(r.Geometry)...)
	args = append(args, r.Side, attrs, string(r.Origin), r.Active, r.CreatedAt, r.UpdatedAt)
	return args, nil
}

func conflictArgs(c *model.ConflictRecord) []any {
	return []any{c.ID, c.LotID, c.HighwayID, string(c.AssetType), string(c.Kind),
		c.NeedAID, c.NeedBID, c.RowA, c.RowB, c.Details,
		c.Resolved, c.Justification, c.ResolvedBy, c.ResolvedAt, c.CreatedAt}
}

func prepareConflict(c *model.ConflictRecord, sel model.Selection, now time.Time) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.LotID, c.HighwayID, c.AssetType = sel.LotID, sel.HighwayID, sel.AssetType
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
}

// pairKey identifies a conflict by kind and unordered need pair, so a pair
// an operator already resolved is not raised again by the next detection.
func pairKey(c *model.ConflictRecord) string {
	a, b := c.NeedAID, c.NeedBID
	if b < a {
		a, b = b, a
	}
	return string(c.Kind) + "|" + a + "|" + b
}

func encodeAttrs(a model.Attributes) (*string, error) {
	if a == nil {
		return nil, nil
	}
	raw, err := model.EncodeAttributes(a)
	if err != nil {
		return nil, err
	}
	s := string(raw)
	return &s, nil
}

func resolveTolerance(t model.AssetType, perType, generic *float64) float64 {
	switch {
	case perType != nil:
		return *perType
	case generic != nil:
		return *generic
	default:
		return DefaultTolerance(t)
	}
}

func validateTolerance(highwayID string, t model.AssetType, meters float64) error {
	if highwayID == "" {
		return eris.Wrap(model.ErrValidation, "tolerance requires highway_id")
	}
	if t != "" && !t.Valid() {
		return eris.Wrapf(model.ErrUnknownAssetType, "tolerance asset type %q", t)
	}
	if meters <= 0 {
		return eris.Wrapf(model.ErrValidation, "tolerance must be positive, got %v", meters)
	}
	return nil
}
