package model

import "github.com/rotisserie/eris"

// Coord is a WGS84 position in decimal degrees.
type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Geometry locates a need or inventory record. Point assets use Km and
// Coord; linear assets use the Start/End pairs. Nil means not surveyed.
type Geometry struct {
	Km         *float64 `json:"km,omitempty"`
	Coord      *Coord   `json:"coord,omitempty"`
	KmStart    *float64 `json:"km_inicial,omitempty"`
	KmEnd      *float64 `json:"km_final,omitempty"`
	CoordStart *Coord   `json:"coord_inicial,omitempty"`
	CoordEnd   *Coord   `json:"coord_final,omitempty"`
}

// Validate checks that g carries enough location data for kind.
func (g Geometry) Validate(kind GeometryKind) error {
	switch kind {
	case GeometryPontual:
		if g.Km == nil && g.Coord == nil {
			return eris.Wrap(ErrInvalidGeometry, "point geometry has neither km nor lat/lon")
		}
	case GeometryLinear:
		if g.KmStart == nil || g.KmEnd == nil {
			return eris.Wrap(ErrInvalidGeometry, "linear geometry requires km_inicial and km_final")
		}
	default:
		return eris.Wrapf(ErrUnknownAssetType, "geometry kind %q", kind)
	}
	return nil
}

// Segment returns the km interval ordered so that start <= end. Callers
// must Validate first.
func (g Geometry) Segment() (start, end float64) {
	start, end = *g.KmStart, *g.KmEnd
	if start > end {
		start, end = end, start
	}
	return start, end
}
