package geo

import (
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/warfront/simcore/pkg/core"
)

// Track builds a LineString from a movement trace for after-action export.
// At least two samples are required.
func Track(positions []core.Position3D) (geom.LineString, error) {
	if len(positions) < 2 {
		return geom.LineString{}, fmt.Errorf("track must have at least 2 points, got %d", len(positions))
	}

	flat := make([]float64, 0, len(positions)*2)
	for _, p := range positions {
		flat = append(flat, p.X, p.Y)
	}

	seq := geom.NewSequence(flat, geom.DimXY)
	return geom.NewLineString(seq), nil
}

// TrackZM builds a LineStringZM carrying elevation and sim-time per sample,
// so replay viewers can scrub a trace. Samples and times must be equal length.
func TrackZM(positions []core.Position3D, times []float64) (geom.LineString, error) {
	if len(positions) < 2 {
		return geom.LineString{}, fmt.Errorf("track must have at least 2 points, got %d", len(positions))
	}
	if len(positions) != len(times) {
		return geom.LineString{}, fmt.Errorf("got %d positions but %d times", len(positions), len(times))
	}

	flat := make([]float64, 0, len(positions)*4)
	for i, p := range positions {
		flat = append(flat, p.X, p.Y, p.Z, times[i])
	}

	seq := geom.NewSequence(flat, geom.DimXYZM)
	return geom.NewLineString(seq), nil
}
