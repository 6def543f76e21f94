package store

import (
	"context"
	"time"

	"github.com/casampa-lab/sinaliza/internal/model"
)

// NeedRepository persists project need rows.
type NeedRepository interface {
	ListNeeds(ctx context.Context, sel model.Selection, onlyUnreconciled bool) ([]model.NeedRecord, error)
	GetNeed(ctx context.Context, id string) (*model.NeedRecord, error)
	UpdateNeed(ctx context.Context, id string, u NeedUpdate) error
	InsertNeeds(ctx context.Context, needs []model.NeedRecord) (int, error)
	// ResetReconciled clears the decision of every need in the selection so
	// a forced run recomputes them from scratch.
	ResetReconciled(ctx context.Context, sel model.Selection) (int, error)
}

// InventoryRepository persists surveyed assets.
type InventoryRepository interface {
	ListInventory(ctx context.Context, highwayID string, t model.AssetType, activeOnly bool) ([]model.InventoryRecord, error)
	InsertInventory(ctx context.Context, records []model.InventoryRecord) (int, error)
}

// ToleranceRepository resolves the point-match admission distance.
type ToleranceRepository interface {
	// GetTolerance falls back from the per-type value to the highway-wide
	// value to DefaultTolerance(t).
	GetTolerance(ctx context.Context, highwayID string, t model.AssetType) (float64, error)
	// SetTolerance stores a value; an empty asset type sets the highway-wide
	// default.
	SetTolerance(ctx context.Context, highwayID string, t model.AssetType, meters float64) error
}

// ConflictRepository persists conflicts between need rows.
type ConflictRepository interface {
	// ListConflicts lists conflicts of a lot and highway; an empty asset type
	// lists every type.
	ListConflicts(ctx context.Context, lotID, highwayID string, t model.AssetType) ([]model.ConflictRecord, error)
	GetConflict(ctx context.Context, id string) (*model.ConflictRecord, error)
	// ReplaceConflicts drops the unresolved conflicts of the selection,
	// stores the given ones and rewrites the conflict flags of its needs.
	ReplaceConflicts(ctx context.Context, sel model.Selection, conflicts []model.ConflictRecord) error
	// ResolveConflict marks a conflict resolved. The conflict flag of each
	// involved need is cleared unless another unresolved conflict still
	// references it.
	ResolveConflict(ctx context.Context, id, justification, resolvedBy string) error
	// DeleteNeed removes a need row together with the conflicts that
	// reference it.
	DeleteNeed(ctx context.Context, id string) error
}

// Store bundles every repository with the backend lifecycle.
type Store interface {
	NeedRepository
	InventoryRepository
	ToleranceRepository
	ConflictRepository

	Migrate(ctx context.Context) error
	Close() error
}

// SystemDefaultToleranceM is the last resort admission distance.
const SystemDefaultToleranceM = 50.0

var legacyTolerances = map[model.AssetType]float64{
	model.AssetPlacas:              50,
	model.AssetPorticos:            200,
	model.AssetDefensas:            20,
	model.AssetMarcasLongitudinais: 20,
	model.AssetTachas:              20,
	model.AssetCilindros:           25,
	model.AssetInscricoes:          30,
}

// DefaultTolerance returns the built-in tolerance for t when nothing is
// configured for the highway.
func DefaultTolerance(t model.AssetType) float64 {
	if m, ok := legacyTolerances[t]; ok {
		return m
	}
	return SystemDefaultToleranceM
}

// Outcome is the result of one pipeline pass over a need.
type Outcome struct {
	MatchedInventoryID string
	DistanceM          *float64
	OverlapPct         *float64
	Tier               model.MatchTier
	Inferred           model.Service
	Final              model.Service
	Divergence         bool
}

// NeedUpdate is a partial update of a need row. Nil sections are left
// untouched.
type NeedUpdate struct {
	Outcome  *Outcome
	Decision *model.ReconciliationDecision
}

type assignment struct {
	column string
	value  any
}

func (u NeedUpdate) assignments(now time.Time) []assignment {
	var out []assignment
	if o := u.Outcome; o != nil {
		out = append(out,
			assignment{"matched_inventory_id", nullString(o.MatchedInventoryID)},
			assignment{"match_distance_m", o.DistanceM},
			assignment{"match_overlap_pct", o.OverlapPct},
			assignment{"match_tier", nullString(string(o.Tier))},
			assignment{"inferred_service", string(o.Inferred)},
			assignment{"final_service", string(o.Final)},
			assignment{"divergence", o.Divergence},
		)
	}
	if d := u.Decision; d != nil {
		decidedAt := d.DecidedAt
		if decidedAt.IsZero() {
			decidedAt = now
		}
		out = append(out,
			assignment{"reconciled", true},
			assignment{"final_service", string(d.FinalService)},
			assignment{"decided_by", d.DecidedBy},
			assignment{"decided_at", decidedAt},
			assignment{"chosen_source", string(d.ChosenSource)},
			assignment{"justification", d.Justification},
		)
	}
	if len(out) > 0 {
		out = append(out, assignment{"updated_at", now})
	}
	return out
}

// Apply writes the update onto an in-memory record.
func (u NeedUpdate) Apply(n *model.NeedRecord, now time.Time) {
	if o := u.Outcome; o != nil {
		n.MatchedInventoryID = o.MatchedInventoryID
		n.MatchDistanceM = o.DistanceM
		n.MatchOverlapPct = o.OverlapPct
		n.MatchTier = o.Tier
		n.InferredService = o.Inferred
		n.FinalService = o.Final
		n.Divergence = o.Divergence
	}
	if d := u.Decision; d != nil {
		dec := *d
		if dec.DecidedAt.IsZero() {
			dec.DecidedAt = now
		}
		n.Reconciled = true
		n.FinalService = dec.FinalService
		n.Decision = &dec
	}
	n.UpdatedAt = now
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// needColumns is the column order shared by inserts and selects.
const needColumns = `id, asset_type, lot_id, highway_id, source_row,
	km, lat, lon, km_start, km_end, lat_start, lon_start, lat_end, lon_end,
	side, attributes, declared_service, quantity, extension, solution,
	inferred_service, final_service, matched_inventory_id, match_distance_m,
	match_overlap_pct, match_tier, divergence, reconciled,
	decided_by, decided_at, chosen_source, justification,
	has_conflict, conflict_kind, conflict_details, created_at, updated_at`

const inventoryColumns = `id, asset_type, highway_id,
	km, lat, lon, km_start, km_end, lat_start, lon_start, lat_end, lon_end,
	side, attributes, origin, active, created_at, updated_at`

const conflictColumns = `id, lot_id, highway_id, asset_type, kind,
	need_a_id, need_b_id, row_a, row_b, details,
	resolved, justification, resolved_by, resolved_at, created_at`

// geometryArgs flattens a geometry into its nullable columns.
func geometryArgs(g model.Geometry) []any {
	var lat, lon, latS, lonS, latE, lonE *float64
	if g.Coord != nil {
		lat, lon = &g.Coord.Lat, &g.Coord.Lon
	}
	if g.CoordStart != nil {
		latS, lonS = &g.CoordStart.Lat, &g.CoordStart.Lon
	}
	if g.CoordEnd != nil {
		latE, lonE = &g.CoordEnd.Lat, &g.CoordEnd.Lon
	}
	return []any{g.Km, lat, lon, g.KmStart, g.KmEnd, latS, lonS, latE, lonE}
}

// geometryScan holds the nullable geometry columns while scanning.
type geometryScan struct {
	km, lat, lon, kmStart, kmEnd, latS, lonS, latE, lonE *float64
}

func (g *geometryScan) dest() []any {
	return []any{&g.km, &g.lat, &g.lon, &g.kmStart, &g.kmEnd, &g.latS, &g.lonS, &g.latE, &g.lonE}
}

func (g *geometryScan) geometry() model.Geometry {
	out := model.Geometry{Km: g.km, KmStart: g.kmStart, KmEnd: g.kmEnd}
	out.Coord = coord(g.lat, g.lon)
	out.CoordStart = coord(g.latS, g.lonS)
	out.CoordEnd = coord(g.latE, g.lonE)
	return out
}

func coord(lat, lon *float64) *model.Coord {
	if lat == nil || lon == nil {
		return nil
	}
	return &model.Coord{Lat: *lat, Lon: *lon}
}
