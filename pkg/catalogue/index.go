package catalogue

import (
	"math"

	"github.com/tidwall/rtree"

	"transit_router/pkg/geo"
)

const nearestCandidates = 8

// StopIndex is an R-tree over stop coordinates for nearest-stop lookups.
// Points are stored as (lng, lat) boxes of zero size.
type StopIndex struct {
	tr     rtree.RTreeG[StopID]
	coords []geo.Coordinates
}

// NewStopIndex indexes stops by their position in the slice.
func NewStopIndex(stops []Stop) *StopIndex {
	idx := &StopIndex{}
	for i, s := range stops {
		idx.Insert(StopID(i), s.Coordinates)
	}
	return idx
}

// Insert adds a stop to the index. Ids must be inserted in increasing order.
func (idx *StopIndex) Insert(id StopID, c geo.Coordinates) {
	for int(id) >= len(idx.coords) {
		idx.coords = append(idx.coords, geo.Coordinates{})
	}
	idx.coords[id] = c
	pt := [2]float64{c.Lng, c.Lat}
	idx.tr.Insert(pt, pt, id)
}

// Len returns the number of indexed stops.
func (idx *StopIndex) Len() int { return idx.tr.Len() }

// Nearest returns the closest stop to p within maxMeters (great-circle).
// A non-positive maxMeters disables the radius limit.
func (idx *StopIndex) Nearest(p geo.Coordinates, maxMeters float64) (StopID, float64, bool) {
	if maxMeters <= 0 {
		maxMeters = math.Inf(1)
	}
	target := [2]float64{p.Lng, p.Lat}

	best := StopID(-1)
	bestDist := math.Inf(1)
	seen := 0
	// Box distance is planar in degrees, so re-rank the first few candidates
	// by great-circle distance.
	idx.tr.Nearby(
		rtree.BoxDist[float64, StopID](target, target, nil),
		func(_, _ [2]float64, id StopID, _ float64) bool {
			d := geo.Distance(p, idx.coords[id])
			if d < bestDist || (d == bestDist && id < best) {
				best, bestDist = id, d
			}
			seen++
			return seen < nearestCandidates
		},
	)
	if best < 0 || bestDist > maxMeters {
		return 0, 0, false
	}
	return best, bestDist, true
}

// Within calls fn for every stop within maxMeters of p.
func (idx *StopIndex) Within(p geo.Coordinates, maxMeters float64, fn func(id StopID, meters float64) bool) {
	// One degree of latitude is ~111 km; widen longitude by the latitude cosine.
	dLat := maxMeters / 111_000
	cosLat := math.Cos(p.Lat * math.Pi / 180)
	dLng := dLat
	if cosLat > 1e-6 {
		dLng = dLat / cosLat
	}
	lo := [2]float64{p.Lng - dLng, p.Lat - dLat}
	hi := [2]float64{p.Lng + dLng, p.Lat + dLat}
	idx.tr.Search(lo, hi, func(_, _ [2]float64, id StopID) bool {
		d := geo.Distance(p, idx.coords[id])
		if d <= maxMeters {
			return fn(id, d)
		}
		return true
	})
}
