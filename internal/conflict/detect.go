// Package conflict finds contradictory or duplicated rows inside a project
// plan and lets operators resolve them.
package conflict

import (
	"fmt"
	"math"

	"github.com/casampa-lab/sinaliza/internal/compat"
	"github.com/casampa-lab/sinaliza/internal/geometry"
	"github.com/casampa-lab/sinaliza/internal/inference"
	"github.com/casampa-lab/sinaliza/internal/model"
)

// Options sets how close two rows must be to describe the same location.
type Options struct {
	// KmTolerance is the km window for point rows without coordinates.
	KmTolerance float64 `yaml:"km_tolerance" mapstructure:"km_tolerance"`
	// DistanceM is the great-circle window for point rows with coordinates.
	DistanceM float64 `yaml:"distance_m" mapstructure:"distance_m"`
	// MinOverlapPct is the overlap, relative to the shorter segment, above
	// which two linear rows share a location.
	MinOverlapPct float64 `yaml:"min_overlap_pct" mapstructure:"min_overlap_pct"`
}

// DefaultOptions returns the detection thresholds used when none are
// configured.
func DefaultOptions() Options {
	return Options{KmTolerance: 0.02, DistanceM: 20, MinOverlapPct: 50}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.KmTolerance <= 0 {
		o.KmTolerance = d.KmTolerance
	}
	if o.DistanceM <= 0 {
		o.DistanceM = d.DistanceM
	}
	if o.MinOverlapPct <= 0 {
		o.MinOverlapPct = d.MinOverlapPct
	}
	return o
}

// Detect compares every pair of needs and returns one conflict per pair
// that shares a location and describes an equivalent element:
//
//   - ConflictContradictory when both rows declare different canonical
//     services;
//   - ConflictDuplicate when both declare the same service or both leave
//     it blank.
//
// Rows with unusable geometry never conflict. The result is ordered by the
// rows' position in needs.
func Detect(needs []model.NeedRecord, opts Options) []model.ConflictRecord {
	opts = opts.withDefaults()
	var out []model.ConflictRecord
	for i := 0; i < len(needs); i++ {
		a := &needs[i]
		if a.Geometry.Validate(a.AssetType.GeometryKind()) != nil {
			continue
		}
		for j := i + 1; j < len(needs); j++ {
			b := &needs[j]
			if b.AssetType != a.AssetType || b.HighwayID != a.HighwayID || b.LotID != a.LotID {
				continue
			}
			if b.Geometry.Validate(b.AssetType.GeometryKind()) != nil {
				continue
			}
			if !sameLocation(a, b, opts) || !compat.Equivalent(a.AssetType, a.Features(), b.Features()) {
				continue
			}
			if c, ok := classify(a, b); ok {
				out = append(out, c)
			}
		}
	}
	return out
}

func classify(a, b *model.NeedRecord) (model.ConflictRecord, bool) {
	sa, okA := inference.NormalizeService(a.DeclaredService)
	sb, okB := inference.NormalizeService(b.DeclaredService)

	c := model.ConflictRecord{
		LotID:     a.LotID,
		HighwayID: a.HighwayID,
		AssetType: a.AssetType,
		NeedAID:   a.ID,
		NeedBID:   b.ID,
		RowA:      a.SourceRow,
		RowB:      b.SourceRow,
	}
	switch {
	case okA && okB && sa != sb:
		c.Kind = model.ConflictContradictory
		c.Details = fmt.Sprintf("rows %d and %d at %s declare %s and %s",
			a.SourceRow, b.SourceRow, location(a), sa, sb)
	case model.SameText(string(sa), string(sb)):
		c.Kind = model.ConflictDuplicate
		declared := string(sa)
		if declared == "" {
			declared = "no service"
		}
		c.Details = fmt.Sprintf("rows %d and %d at %s repeat the same element (%s)",
			a.SourceRow, b.SourceRow, location(a), declared)
	default:
		return c, false
	}
	return c, true
}

func sameLocation(a, b *model.NeedRecord, opts Options) bool {
	if a.AssetType.Linear() {
		return segmentsOverlap(a.Geometry, b.Geometry, opts)
	}
	ga, gb := a.Geometry, b.Geometry
	bothKm := ga.Km != nil && gb.Km != nil
	if bothKm && math.Abs(*ga.Km-*gb.Km) > opts.KmTolerance+1e-9 {
		return false
	}
	if ga.Coord != nil && gb.Coord != nil {
		return geometry.HaversineM(ga.Coord.Lat, ga.Coord.Lon, gb.Coord.Lat, gb.Coord.Lon) <= opts.DistanceM
	}
	return bothKm
}

func segmentsOverlap(a, b model.Geometry, opts Options) bool {
	as, ae := a.Segment()
	bs, be := b.Segment()
	if ae-as == 0 || be-bs == 0 {
		// A zero-length row is a point on the segment axis.
		return math.Abs(as-bs) <= opts.KmTolerance+1e-9 || (as >= bs && ae <= be) || (bs >= as && be <= ae)
	}
	_, pctA := geometry.SegmentOverlap(as, ae, bs, be)
	_, pctB := geometry.SegmentOverlap(bs, be, as, ae)
	return math.Max(pctA, pctB)+1e-6 >= opts.MinOverlapPct
}

func location(n *model.NeedRecord) string {
	g := n.Geometry
	if n.AssetType.Linear() {
		s, e := g.Segment()
		return fmt.Sprintf("km %.3f-%.3f", s, e)
	}
	if g.Km != nil {
		return fmt.Sprintf("km %.3f", *g.Km)
	}
	return fmt.Sprintf("%.6f,%.6f", g.Coord.Lat, g.Coord.Lon)
}
