// Package matching ranks the inventory records of a highway against one
// need using geometry and attribute compatibility.
package matching

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/casampa-lab/sinaliza/internal/compat"
	"github.com/casampa-lab/sinaliza/internal/geometry"
	"github.com/casampa-lab/sinaliza/internal/model"
)

// pctEpsilon absorbs float error in km arithmetic so that a 0.35 km overlap
// of a 0.5 km need counts as exactly 70%.
const pctEpsilon = 1e-6

// Options tunes the admission filters and tier boundaries.
type Options struct {
	// KmTolerance is the km-post window for point candidates.
	KmTolerance float64 `yaml:"km_tolerance" mapstructure:"km_tolerance"`
	// MinOverlapPct is the overlap floor for linear candidates.
	MinOverlapPct float64 `yaml:"min_overlap_pct" mapstructure:"min_overlap_pct"`
	// TierExactPct and TierHighPct bound the exato and alto tiers.
	TierExactPct float64 `yaml:"tier_exact_pct" mapstructure:"tier_exact_pct"`
	TierHighPct  float64 `yaml:"tier_high_pct" mapstructure:"tier_high_pct"`
}

// DefaultOptions returns the production thresholds.
func DefaultOptions() Options {
	return Options{
		KmTolerance:   0.05,
		MinOverlapPct: 50,
		TierExactPct:  95,
		TierHighPct:   75,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.KmTolerance <= 0 {
		o.KmTolerance = d.KmTolerance
	}
	if o.MinOverlapPct <= 0 {
		o.MinOverlapPct = d.MinOverlapPct
	}
	if o.TierExactPct <= 0 {
		o.TierExactPct = d.TierExactPct
	}
	if o.TierHighPct <= 0 {
		o.TierHighPct = d.TierHighPct
	}
	return o
}

// Candidate is one admitted inventory record and its score. Point
// candidates fill DistanceM; linear candidates fill the overlap fields.
type Candidate struct {
	InventoryID string          `json:"inventory_id"`
	DistanceM   float64         `json:"distance_m,omitempty"`
	OverlapKm   float64         `json:"overlap_km,omitempty"`
	OverlapPct  float64         `json:"overlap_pct,omitempty"`
	Tier        model.MatchTier `json:"tier,omitempty"`
}

// Engine ranks candidates. It holds no state besides its options and is
// safe for concurrent use.
type Engine struct {
	opts Options
}

// New creates an Engine. Zero option fields take their defaults.
func New(opts Options) *Engine {
	return &Engine{opts: opts.withDefaults()}
}

// Options returns the effective options.
func (e *Engine) Options() Options {
	return e.opts
}

// Rank returns every inventory record that passes the compatibility and
// geometry filters for need, best first. Linear candidates are admitted by
// the overlap floor; point candidates are only pre-filtered by the km window
// so the caller can apply its distance tolerance and still inspect
// runner-up candidates. Ties keep inventory order.
func (e *Engine) Rank(need *model.NeedRecord, inventory []model.InventoryRecord) ([]Candidate, error) {
	t := need.AssetType
	if !t.Valid() {
		return nil, eris.Wrapf(model.ErrUnknownAssetType, "matching: need %s has asset type %q", need.ID, t)
	}
	if err := need.Geometry.Validate(t.GeometryKind()); err != nil {
		return nil, eris.Wrapf(err, "matching: need %s", need.ID)
	}

	var out []Candidate
	for i := range inventory {
		inv := &inventory[i]
		if !eligible(need, inv) {
			continue
		}
		if reason := compat.Check(t, need.Features(), inv.Features()); reason != "" {
			zap.L().Debug("matching: candidate rejected",
				zap.String("need_id", need.ID),
				zap.String("inventory_id", inv.ID),
				zap.String("reason", reason),
			)
			continue
		}

		var (
			c  Candidate
			ok bool
		)
		if t.Linear() {
			c, ok = e.scoreLinear(need, inv)
		} else {
			c, ok = e.scorePoint(need, inv)
		}
		if ok {
			out = append(out, c)
		}
	}

	if t.Linear() {
		sort.SliceStable(out, func(i, j int) bool { return out[i].OverlapPct > out[j].OverlapPct })
	} else {
		sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceM < out[j].DistanceM })
	}
	return out, nil
}

// eligible keeps active records of the same highway and type with a
// usable geometry.
func eligible(need *model.NeedRecord, inv *model.InventoryRecord) bool {
	if !inv.Active || inv.AssetType != need.AssetType {
		return false
	}
	if inv.HighwayID != "" && need.HighwayID != "" && inv.HighwayID != need.HighwayID {
		return false
	}
	return inv.Geometry.Validate(need.AssetType.GeometryKind()) == nil
}

func (e *Engine) scoreLinear(need *model.NeedRecord, inv *model.InventoryRecord) (Candidate, bool) {
	ns, ne := need.Geometry.Segment()
	cs, ce := inv.Geometry.Segment()
	km, pct := geometry.SegmentOverlap(ns, ne, cs, ce)
	if km <= 0 || pct+pctEpsilon < e.opts.MinOverlapPct {
		return Candidate{}, false
	}
	return Candidate{
		InventoryID: inv.ID,
		OverlapKm:   km,
		OverlapPct:  pct,
		Tier:        e.Tier(pct),
	}, true
}

func (e *Engine) scorePoint(need *model.NeedRecord, inv *model.InventoryRecord) (Candidate, bool) {
	ng, ig := need.Geometry, inv.Geometry
	if ng.Km != nil && ig.Km != nil && math.Abs(*ng.Km-*ig.Km) > e.opts.KmTolerance+1e-9 {
		return Candidate{}, false
	}
	d, ok := geometry.PointDistanceM(ng, ig)
	if !ok {
		return Candidate{}, false
	}
	return Candidate{InventoryID: inv.ID, DistanceM: d}, true
}

// Tier classifies a linear overlap percentage.
func (e *Engine) Tier(pct float64) model.MatchTier {
	switch {
	case pct+pctEpsilon >= e.opts.TierExactPct:
		return model.TierExato
	case pct+pctEpsilon >= e.opts.TierHighPct:
		return model.TierAlto
	default:
		return model.TierParcial
	}
}

// Select picks the match from a ranked list. Linear lists are already
// admitted, so the first entry wins. Point lists admit the first entry only
// when it lies within toleranceM.
func Select(kind model.GeometryKind, ranked []Candidate, toleranceM float64) (Candidate, bool) {
	if len(ranked) == 0 {
		return Candidate{}, false
	}
	best := ranked[0]
	if kind == model.GeometryPontual && best.DistanceM > toleranceM {
		return Candidate{}, false
	}
	return best, true
}
