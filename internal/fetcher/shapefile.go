package fetcher

import (
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Geometry columns appended to shapefile tables. Point layers get
// ColLat/ColLon; line layers get the first and last vertex.
const (
	ColLat      = "latitude"
	ColLon      = "longitude"
	ColLatStart = "latitude_inicial"
	ColLonStart = "longitude_inicial"
	ColLatEnd   = "latitude_final"
	ColLonEnd   = "longitude_final"
)

// ReadShapefile reads the attribute table of a survey shapefile and appends
// its geometry as coordinate columns, so spreadsheet and GIS surveys import
// through the same header mapping. Coordinates must be WGS84.
func ReadShapefile(path string) (*Table, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: open %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	header := make([]string, 0, len(fields)+4)
	for _, f := range fields {
		header = append(header, strings.TrimSpace(strings.TrimRight(f.String(), "\x00")))
	}

	linear := false
	switch reader.GeometryType {
	case shp.POLYLINE, shp.POLYLINEZ, shp.POLYLINEM:
		linear = true
		header = append(header, ColLatStart, ColLonStart, ColLatEnd, ColLonEnd)
	default:
		header = append(header, ColLat, ColLon)
	}

	t := &Table{Header: header}
	var skipped int
	for reader.Next() {
		n, shape := reader.Shape()
		cells := make([]string, 0, len(header))
		for i := range fields {
			val := strings.TrimRight(reader.Attribute(i), "\x00")
			cells = append(cells, strings.TrimSpace(val))
		}

		coords, ok := shapeCoords(shape, linear)
		if !ok {
			skipped++
		}
		cells = append(cells, coords...)
		t.Rows = append(t.Rows, Row{Number: n + 1, Cells: cells})
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "shapefile: read %s", path)
	}

	if skipped > 0 {
		zap.L().Warn("shapefile: records without usable geometry",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return t, nil
}

// shapeCoords formats the location of a shape as lat/lon strings. Empty
// strings are returned for unsupported or empty shapes.
func shapeCoords(shape shp.Shape, linear bool) ([]string, bool) {
	var pts []shp.Point
	switch s := shape.(type) {
	case *shp.Point:
		pts = []shp.Point{*s}
	case *shp.PointZ:
		pts = []shp.Point{{X: s.X, Y: s.Y}}
	case *shp.PolyLine:
		pts = s.Points
	case *shp.PolyLineZ:
		pts = s.Points
	case *shp.PolyLineM:
		pts = s.Points
	}

	if linear {
		if len(pts) < 2 {
			return []string{"", "", "", ""}, false
		}
		first, last := pts[0], pts[len(pts)-1]
		return []string{ftoa(first.Y), ftoa(first.X), ftoa(last.Y), ftoa(last.X)}, true
	}
	if len(pts) == 0 {
		return []string{"", ""}, false
	}
	return []string{ftoa(pts[0].Y), ftoa(pts[0].X)}, true
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
