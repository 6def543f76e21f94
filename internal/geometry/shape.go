package geometry

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/casampa-lab/sinaliza/internal/model"
)

// SRID of every stored shape (WGS84).
const SRID = 4326

// Shape converts a record location to a go-geom shape: a Point for point
// assets, a LineString between the segment ends for linear assets. Returns
// nil when the record has no coordinates for its kind.
func Shape(g model.Geometry, kind model.GeometryKind) geom.T {
	switch kind {
	case model.GeometryPontual:
		if g.Coord == nil {
			return nil
		}
		return geom.NewPointFlat(geom.XY, []float64{g.Coord.Lon, g.Coord.Lat}).SetSRID(SRID)
	case model.GeometryLinear:
		if g.CoordStart == nil || g.CoordEnd == nil {
			return nil
		}
		return geom.NewLineStringFlat(geom.XY, []float64{
			g.CoordStart.Lon, g.CoordStart.Lat,
			g.CoordEnd.Lon, g.CoordEnd.Lat,
		}).SetSRID(SRID)
	}
	return nil
}

// EncodeEWKB returns the EWKB encoding of the record location, or nil when
// the record has no coordinates.
func EncodeEWKB(g model.Geometry, kind model.GeometryKind) ([]byte, error) {
	shape := Shape(g, kind)
	if shape == nil {
		return nil, nil
	}
	data, err := ewkb.Marshal(shape, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geometry: encode EWKB")
	}
	return data, nil
}

// PointDistanceM measures two point locations. It uses the haversine
// distance when both carry coordinates, and falls back to the km-post
// difference in meters otherwise. ok is false when neither measure is
// available.
func PointDistanceM(a, b model.Geometry) (meters float64, ok bool) {
	if a.Coord != nil && b.Coord != nil {
		return HaversineM(a.Coord.Lat, a.Coord.Lon, b.Coord.Lat, b.Coord.Lon), true
	}
	if a.Km != nil && b.Km != nil {
		return absKmDiff(*a.Km, *b.Km) * 1000, true
	}
	return 0, false
}

func absKmDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
