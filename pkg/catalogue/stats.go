package catalogue

import (
	"errors"
	"fmt"
	"sort"

	"transit_router/pkg/geo"
)

// ErrMissingDistance means two consecutive stops of a line have no recorded
// distance in either direction. The catalogue is corrupt.
var ErrMissingDistance = errors.New("missing distance between consecutive stops")

// LineStats summarizes one line.
type LineStats struct {
	StopCount       int     // stops visited on a full trip, repeats included
	UniqueStopCount int     // distinct stops
	RouteLength     int     // road meters of a full trip
	Curvature       float64 // road length / great-circle length
}

// StopLines returns the sorted names of the lines that serve a stop.
func (c *Catalogue) StopLines(name string) ([]string, bool) {
	id, ok := c.stopByName[name]
	if !ok {
		return nil, false
	}
	names := make([]string, 0, len(c.stopLines[id]))
	for _, l := range c.stopLines[id] {
		names = append(names, c.lines[l].Name)
	}
	sort.Strings(names)
	return names, true
}

// LineStats computes trip statistics for the named line.
func (c *Catalogue) LineStats(name string) (LineStats, bool, error) {
	id, ok := c.lineByName[name]
	if !ok {
		return LineStats{}, false, nil
	}
	line := c.lines[id]
	n := len(line.Stops)

	var stats LineStats
	var geoLength float64
	for i := 1; i < n; i++ {
		prev, cur := line.Stops[i-1], line.Stops[i]
		fwd, err := c.mustDistance(prev, cur)
		if err != nil {
			return LineStats{}, true, fmt.Errorf("line %q: %w", name, err)
		}
		stats.RouteLength += fwd
		geoLength += geo.Distance(c.stops[prev].Coordinates, c.stops[cur].Coordinates)
		if !line.IsRoundtrip {
			back, err := c.mustDistance(cur, prev)
			if err != nil {
				return LineStats{}, true, fmt.Errorf("line %q: %w", name, err)
			}
			stats.RouteLength += back
		}
	}

	stats.StopCount = n
	if !line.IsRoundtrip && n > 0 {
		stats.StopCount = 2*n - 1
		geoLength *= 2
	}
	if geoLength > 0 {
		stats.Curvature = float64(stats.RouteLength) / geoLength
	}

	unique := make(map[StopID]struct{}, n)
	for _, s := range line.Stops {
		unique[s] = struct{}{}
	}
	stats.UniqueStopCount = len(unique)
	return stats, true, nil
}

func (c *Catalogue) mustDistance(from, to StopID) (int, error) {
	d, ok := c.Distance(from, to)
	if !ok {
		return 0, fmt.Errorf("%w: %q -> %q", ErrMissingDistance, c.stops[from].Name, c.stops[to].Name)
	}
	return d, nil
}

// CheckDistances verifies every pair of consecutive stops on every line has a
// recorded distance in at least one direction.
func (c *Catalogue) CheckDistances() error {
	for _, l := range c.lines {
		for i := 1; i < len(l.Stops); i++ {
			if _, err := c.mustDistance(l.Stops[i-1], l.Stops[i]); err != nil {
				return fmt.Errorf("line %q: %w", l.Name, err)
			}
		}
	}
	return nil
}
