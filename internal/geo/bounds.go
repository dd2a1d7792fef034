package geo

import (
	"errors"
	"math"
	"sort"
)

// BoundingRegion is an axis-aligned region in degrees.
type BoundingRegion struct {
	West  float64
	South float64
	East  float64
	North float64
}

var ErrBoundsUnavailable = errors.New("bounds unavailable")

// CenterLon and CenterLat return the region midpoint in degrees.
func (r BoundingRegion) CenterLon() float64 { return (r.West + r.East) / 2 }
func (r BoundingRegion) CenterLat() float64 { return (r.South + r.North) / 2 }

// WidthRad and HeightRad return the angular spans in radians.
func (r BoundingRegion) WidthRad() float64  { return (r.East - r.West) * math.Pi / 180 }
func (r BoundingRegion) HeightRad() float64 { return (r.North - r.South) * math.Pi / 180 }

// MaxSpanRad returns the larger angular dimension in radians.
func (r BoundingRegion) MaxSpanRad() float64 {
	return math.Max(r.WidthRad(), r.HeightRad())
}

// FootprintBounds computes the bounding region of a footprint feature's
// polygon rings. Features without decodable polygon geometry yield
// ErrBoundsUnavailable.
func FootprintBounds(f *Feature) (BoundingRegion, error) {
	if f == nil {
		return BoundingRegion{}, ErrBoundsUnavailable
	}
	rings, err := f.Geometry.PolygonRings()
	if err != nil || len(rings) == 0 {
		return BoundingRegion{}, ErrBoundsUnavailable
	}

	r := BoundingRegion{West: math.MaxFloat64, South: math.MaxFloat64, East: -math.MaxFloat64, North: -math.MaxFloat64}
	var found bool
	for _, ring := range rings {
		for _, pt := range ring {
			found = true
			r.West = math.Min(r.West, pt[0])
			r.East = math.Max(r.East, pt[0])
			r.South = math.Min(r.South, pt[1])
			r.North = math.Max(r.North, pt[1])
		}
	}
	if !found {
		return BoundingRegion{}, ErrBoundsUnavailable
	}
	return r, nil
}

// Level is one floor of a building, identified by id and elevation.
type Level struct {
	ID     string
	Name   string
	ZValue float64
}

// TopmostLevel returns the level with the highest elevation, breaking ties by
// id for determinism. ok is false for an empty slice.
func TopmostLevel(levels []Level) (Level, bool) {
	if len(levels) == 0 {
		return Level{}, false
	}
	best := levels[0]
	for _, l := range levels[1:] {
		if l.ZValue > best.ZValue || (l.ZValue == best.ZValue && l.ID > best.ID) {
			best = l
		}
	}
	return best, true
}

// SortLevels orders levels bottom-up by elevation.
func SortLevels(levels []Level) {
	sort.SliceStable(levels, func(i, j int) bool {
		if levels[i].ZValue != levels[j].ZValue {
			return levels[i].ZValue < levels[j].ZValue
		}
		return levels[i].ID < levels[j].ID
	})
}

// MidHeight returns the vertical midpoint between the lowest and highest
// level elevations (used for whole-building views).
func MidHeight(levels []Level) float64 {
	if len(levels) == 0 {
		return 0
	}
	lo, hi := levels[0].ZValue, levels[0].ZValue
	for _, l := range levels[1:] {
		lo = math.Min(lo, l.ZValue)
		hi = math.Max(hi, l.ZValue)
	}
	return (lo + hi) / 2
}
