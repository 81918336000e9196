package osm

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"

	"transit_router/pkg/catalogue"
	"transit_router/pkg/geo"
)

// MergeRadiusMeters is how close two same-named stop nodes must be to become one stop.
const MergeRadiusMeters = 150

// busRoutes lists route tag values imported as lines.
var busRoutes = map[string]bool{
	"bus":        true,
	"trolleybus": true,
	"minibus":    true,
	"share_taxi": true,
}

// isBusRoute returns true if the relation describes a bus-like route.
func isBusRoute(tags osm.Tags) bool {
	if tags.Find("type") != "route" {
		return false
	}
	return busRoutes[tags.Find("route")]
}

// memberKind classifies a route relation member.
type memberKind int

const (
	memberOther memberKind = iota
	memberStop
	memberPlatform
)

// classifyMember sorts node members into stop positions and platforms.
// Ways and nested relations are ignored.
func classifyMember(m osm.Member) memberKind {
	if m.Type != osm.TypeNode {
		return memberOther
	}
	switch m.Role {
	case "stop", "stop_entry_only", "stop_exit_only":
		return memberStop
	case "platform", "platform_entry_only", "platform_exit_only":
		return memberPlatform
	}
	return memberOther
}

// lineName picks the public label of a route: ref first, then name.
func lineName(tags osm.Tags, id osm.RelationID) string {
	if ref := tags.Find("ref"); ref != "" {
		return ref
	}
	if name := tags.Find("name"); name != "" {
		return name
	}
	return fmt.Sprintf("route %d", id)
}

// routeInfo holds a route relation collected during Pass 1.
type routeInfo struct {
	ID        osm.RelationID
	Name      string
	Roundtrip bool
	Stops     []osm.NodeID
}

// stopsOf returns the stop-position members of a route, falling back to
// platforms when the relation tags none.
func stopsOf(r *osm.Relation) []osm.NodeID {
	var stops, platforms []osm.NodeID
	for _, m := range r.Members {
		switch classifyMember(m) {
		case memberStop:
			stops = append(stops, osm.NodeID(m.Ref))
		case memberPlatform:
			platforms = append(platforms, osm.NodeID(m.Ref))
		}
	}
	if len(stops) > 0 {
		return stops
	}
	return platforms
}

// nodeInfo holds a stop node collected during Pass 2.
type nodeInfo struct {
	Name   string
	Coords geo.Coordinates
}

// BBox defines a geographic bounding box for filtering.
// If non-zero, only stops inside the box are kept.
type BBox struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// IsZero returns true if the bbox is unset.
func (b BBox) IsZero() bool {
	return b.MinLat == 0 && b.MaxLat == 0 && b.MinLng == 0 && b.MaxLng == 0
}

// Contains returns true if the point is inside the bounding box.
func (b BBox) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// ImportOptions configures the importer.
type ImportOptions struct {
	BBox BBox // if non-zero, drop stops outside this box
}

// ImportStats summarizes an import.
type ImportStats struct {
	Routes       int // route relations found
	Lines        int // lines added
	Stops        int // stops added after merging
	MergedNodes  int // stop nodes folded into an existing stop
	SkippedLines int // routes left with fewer than two stops
}

// Import reads bus route relations from an OSM PBF file and adds their stops,
// haversine distances and lines to b. The reader is consumed twice (seeks
// back to start for the second pass), so it must implement io.ReadSeeker.
func Import(ctx context.Context, rs io.ReadSeeker, b *catalogue.Builder, opts ...ImportOptions) (ImportStats, error) {
	var opt ImportOptions
	if len(opts) > 0 {
		opt = opts[0]
	}

	// Pass 1: Scan relations to collect routes and referenced stop nodes.
	referencedNodes := make(map[osm.NodeID]struct{})
	var routes []routeInfo

	scanner := osmpbf.New(ctx, rs, 1)
	scanner.SkipNodes = true
	scanner.SkipWays = true

	for scanner.Scan() {
		r, ok := scanner.Object().(*osm.Relation)
		if !ok || !isBusRoute(r.Tags) {
			continue
		}
		stops := stopsOf(r)
		for _, id := range stops {
			referencedNodes[id] = struct{}{}
		}
		routes = append(routes, routeInfo{
			ID:        r.ID,
			Name:      lineName(r.Tags, r.ID),
			// Each PTv2 relation is one direction; roundtrip=no asks for the way back too.
			Roundtrip: r.Tags.Find("roundtrip") != "no",
			Stops:     stops,
		})
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return ImportStats{}, fmt.Errorf("pass 1 (relations): %w", err)
	}
	scanner.Close()

	log.Printf("Pass 1 complete: %d routes, %d referenced stop nodes", len(routes), len(referencedNodes))

	// Pass 2: Scan nodes to collect names and coordinates for referenced nodes only.
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return ImportStats{}, fmt.Errorf("seek for pass 2: %w", err)
	}

	nodes := make(map[osm.NodeID]nodeInfo, len(referencedNodes))

	scanner = osmpbf.New(ctx, rs, 1)
	scanner.SkipWays = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		n, ok := scanner.Object().(*osm.Node)
		if !ok {
			continue
		}
		if _, needed := referencedNodes[n.ID]; !needed {
			continue
		}
		nodes[n.ID] = nodeInfo{
			Name:   n.Tags.Find("name"),
			Coords: geo.Coordinates{Lat: n.Lat, Lng: n.Lon},
		}
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return ImportStats{}, fmt.Errorf("pass 2 (nodes): %w", err)
	}
	scanner.Close()

	log.Printf("Pass 2 complete: %d stop nodes collected", len(nodes))

	stats, err := assemble(routes, nodes, b, opt)
	if err != nil {
		return stats, err
	}
	log.Printf("Imported %d lines over %d stops (%d nodes merged, %d routes skipped)",
		stats.Lines, stats.Stops, stats.MergedNodes, stats.SkippedLines)
	return stats, nil
}

// assembler turns collected routes into catalogue entries.
type assembler struct {
	b      *catalogue.Builder
	opt    ImportOptions
	index  *catalogue.StopIndex // over stops added by this import, keyed by position in names
	names  []string
	bases  []string // OSM name before disambiguation, parallel to names
	coords map[string]geo.Coordinates
	byNode map[osm.NodeID]string
	lines  map[string]int // times each route label was used
	stats  ImportStats
}

func assemble(routes []routeInfo, nodes map[osm.NodeID]nodeInfo, b *catalogue.Builder, opt ImportOptions) (ImportStats, error) {
	a := &assembler{
		b:      b,
		opt:    opt,
		index:  catalogue.NewStopIndex(nil),
		coords: make(map[string]geo.Coordinates),
		byNode: make(map[osm.NodeID]string),
		lines:  make(map[string]int),
	}
	a.stats.Routes = len(routes)

	var skippedNodes int
	for _, r := range routes {
		var names []string
		for _, id := range r.Stops {
			n, ok := nodes[id]
			if !ok {
				skippedNodes++
				continue
			}
			if !opt.BBox.IsZero() && !opt.BBox.Contains(n.Coords.Lat, n.Coords.Lng) {
				continue
			}
			name, err := a.stop(id, n)
			if err != nil {
				return a.stats, err
			}
			if len(names) > 0 && names[len(names)-1] == name {
				continue // consecutive members merged into one stop
			}
			names = append(names, name)
		}
		if len(names) < 2 {
			a.stats.SkippedLines++
			continue
		}
		if err := a.line(r, names); err != nil {
			return a.stats, err
		}
	}
	if skippedNodes > 0 {
		log.Printf("Warning: skipped %d route members due to missing stop nodes", skippedNodes)
	}
	return a.stats, nil
}

// stop resolves a node to a stop name, merging it into a same-named stop
// within MergeRadiusMeters or adding a new stop.
func (a *assembler) stop(id osm.NodeID, n nodeInfo) (string, error) {
	if name, ok := a.byNode[id]; ok {
		return name, nil
	}
	base := n.Name
	if base == "" {
		base = fmt.Sprintf("Stop %d", id)
	}

	var merged string
	a.index.Within(n.Coords, MergeRadiusMeters, func(local catalogue.StopID, _ float64) bool {
		if a.bases[local] == base {
			merged = a.names[local]
			return false
		}
		return true
	})
	if merged != "" {
		a.stats.MergedNodes++
		a.byNode[id] = merged
		return merged, nil
	}

	name := base
	if a.b.HasStop(name) {
		name = fmt.Sprintf("%s (%d)", base, id)
	}
	if _, err := a.b.AddStop(name, n.Coords); err != nil {
		return "", fmt.Errorf("node %d: %w", id, err)
	}
	a.index.Insert(catalogue.StopID(len(a.names)), n.Coords)
	a.names = append(a.names, name)
	a.bases = append(a.bases, base)
	a.coords[name] = n.Coords
	a.byNode[id] = name
	a.stats.Stops++
	return name, nil
}

// line records haversine distances between consecutive stops and adds the line.
// A label already used by another route gets a "#n" suffix.
func (a *assembler) line(r routeInfo, names []string) error {
	for i := 1; i < len(names); i++ {
		meters := int(math.Round(geo.Distance(a.coords[names[i-1]], a.coords[names[i]])))
		if err := a.b.SetDistance(names[i-1], names[i], meters); err != nil {
			return fmt.Errorf("route %d: %w", r.ID, err)
		}
	}

	name := r.Name
	a.lines[name]++
	if n := a.lines[name]; n > 1 {
		name = fmt.Sprintf("%s #%d", r.Name, n)
	}
	if _, err := a.b.AddLine(name, names, r.Roundtrip); err != nil {
		return fmt.Errorf("route %d: %w", r.ID, err)
	}
	a.stats.Lines++
	return nil
}
