// Package geometry holds the distance and overlap primitives used by the
// matching engine, plus conversion of record locations to go-geom shapes.
package geometry

import (
	"math"
)

// EarthRadiusM is the mean Earth radius used by every distance computation
// in the engine. Tolerances are expressed against this constant.
const EarthRadiusM = 6371000.0

// HaversineM returns the great-circle distance in meters between two
// WGS84 positions.
func HaversineM(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusM * c
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// SegmentOverlap returns how much of the need segment [necStart, necEnd] is
// covered by the candidate segment [cadStart, cadEnd]. The percentage is
// relative to the need's length, clamped to [0, 100], and 0 when the need
// has no length.
func SegmentOverlap(necStart, necEnd, cadStart, cadEnd float64) (overlapKm, overlapPct float64) {
	if necStart > necEnd {
		necStart, necEnd = necEnd, necStart
	}
	if cadStart > cadEnd {
		cadStart, cadEnd = cadEnd, cadStart
	}

	overlapKm = math.Max(0, math.Min(necEnd, cadEnd)-math.Max(necStart, cadStart))
	length := necEnd - necStart
	if length <= 0 {
		return overlapKm, 0
	}
	overlapPct = math.Min(100, overlapKm/length*100)
	return overlapKm, overlapPct
}
