package geo

import (
	"errors"
	"math"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"

	"github.com/warfront/simcore/pkg/core"
)

// Positions are map-local metres (easting/northing/elevation). The maps table
// stores the origin georeference in EPSG:3857 because SQLite has no spatial
// awareness and points must round-trip through plain WKB scans.

// ErrInvalidCoordinates is returned when a coordinate string cannot be parsed.
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// ParsePosition parses "x,y" or "x,y,z" (map-local metres) into a Position3D.
func ParsePosition(coords string) (core.Position3D, error) {
	parts := strings.Split(coords, ",")
	if len(parts) < 2 {
		return core.Position3D{}, ErrInvalidCoordinates
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return core.Position3D{}, ErrInvalidCoordinates
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return core.Position3D{}, ErrInvalidCoordinates
	}
	var z float64
	if len(parts) > 2 {
		z, err = strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil {
			return core.Position3D{}, ErrInvalidCoordinates
		}
	}
	return core.Position3D{X: x, Y: y, Z: z}, nil
}

// Dist2D returns the horizontal distance between two positions. Zone
// occupancy and materialization radii are horizontal by convention.
func Dist2D(a, b core.Position3D) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Dist3D returns the full euclidean distance between two positions.
func Dist3D(a, b core.Position3D) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Origin3857 projects a map origin longitude/latitude into an EPSG:3857
// point for the maps table.
func Origin3857(longitude, latitude float64) geom.Point {
	epsg := wgs84.EPSG()
	f := epsg.Transform(4326, 3857)
	x, y, _ := f(longitude, latitude, 0)
	return geom.NewPoint(
		geom.Coordinates{
			XY: geom.XY{X: x, Y: y},
		},
	)
}

// Origin4326 recovers the origin longitude/latitude from a stored EPSG:3857
// point. An empty point yields the null island origin.
func Origin4326(point geom.Point) (longitude, latitude float64) {
	coords, ok := point.Coordinates()
	if !ok {
		return 0, 0
	}
	epsg := wgs84.EPSG()
	f := epsg.Transform(3857, 4326)
	longitude, latitude, _ = f(coords.XY.X, coords.XY.Y, 0)
	return longitude, latitude
}
