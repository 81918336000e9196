// Package transit compiles a catalogue into a routing graph and answers
// stop-to-stop trip queries over it.
//
// Every stop owns two vertices: a waiting vertex (standing at the stop) and a
// riding vertex (on board). A wait edge leads from the first to the second; ride
// edges lead from the riding vertex of one stop to the waiting vertex of any
// later stop of the same line.
package transit

import (
	"errors"
	"fmt"
	"slices"

	"transit_router/pkg/catalogue"
	"transit_router/pkg/graph"
)

// ErrBadSettings is returned for non-positive velocity or negative wait time.
var ErrBadSettings = errors.New("invalid routing settings")

// Settings are the routing parameters.
type Settings struct {
	WaitTime float64 // minutes spent waiting at a stop before boarding
	Velocity float64 // km/h
}

// Validate checks the settings can produce finite non-negative weights.
func (s Settings) Validate() error {
	if s.WaitTime < 0 || s.Velocity <= 0 {
		return fmt.Errorf("%w: wait %v min, velocity %v km/h", ErrBadSettings, s.WaitTime, s.Velocity)
	}
	return nil
}

// metersPerMinute converts the km/h velocity.
func (s Settings) metersPerMinute() float64 {
	return s.Velocity * 1000 / 60
}

// Vertex annotates one graph vertex.
type Vertex struct {
	StopName string
	Waiting  bool
}

// EdgeInfo annotates one graph edge. Wait edges have an empty Line and SpanCount 0.
type EdgeInfo struct {
	Line      string
	SpanCount int
}

// Network is a compiled routing graph plus positional vertex and edge metadata.
type Network struct {
	Graph    *graph.DirectedWeightedGraph[float64]
	Edges    []EdgeInfo // indexed by graph.EdgeID
	Vertices []Vertex   // indexed by graph.VertexID
}

// Validate checks metadata lengths against the graph.
func (n *Network) Validate() error {
	if len(n.Edges) != n.Graph.EdgeCount() {
		return fmt.Errorf("%w: %d edge annotations for %d edges", graph.ErrCorrupt, len(n.Edges), n.Graph.EdgeCount())
	}
	if len(n.Vertices) != n.Graph.VertexCount() {
		return fmt.Errorf("%w: %d vertex annotations for %d vertices", graph.ErrCorrupt, len(n.Vertices), n.Graph.VertexCount())
	}
	return nil
}

// waitingVertex and ridingVertex give the positional ids of a stop's vertices.
func waitingVertex(s catalogue.StopID) graph.VertexID { return graph.VertexID(2 * s) }
func ridingVertex(s catalogue.StopID) graph.VertexID  { return graph.VertexID(2*s + 1) }

// Build compiles the catalogue into a Network. Given identical inputs the
// vertex and edge order is identical, which the store relies on.
func Build(cat *catalogue.Catalogue, s Settings) (*Network, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	stops := cat.Stops()
	net := &Network{
		Graph:    graph.New[float64](2 * len(stops)),
		Vertices: make([]Vertex, 0, 2*len(stops)),
	}

	for i, st := range stops {
		id := catalogue.StopID(i)
		net.Vertices = append(net.Vertices,
			Vertex{StopName: st.Name, Waiting: true},
			Vertex{StopName: st.Name, Waiting: false},
		)
		net.addEdge(waitingVertex(id), ridingVertex(id), s.WaitTime, EdgeInfo{})
	}

	speed := s.metersPerMinute()
	for _, line := range cat.Lines() {
		if err := net.addRideEdges(cat, line.Name, line.Stops, speed); err != nil {
			return nil, err
		}
		if line.IsRoundtrip {
			continue
		}
		back := slices.Clone(line.Stops)
		slices.Reverse(back)
		if err := net.addRideEdges(cat, line.Name, back, speed); err != nil {
			return nil, err
		}
	}
	return net, nil
}

func (n *Network) addEdge(from, to graph.VertexID, weight float64, info EdgeInfo) {
	n.Graph.AddEdge(graph.Edge[float64]{From: from, To: to, Weight: weight})
	n.Edges = append(n.Edges, info)
}

// addRideEdges adds an edge for every forward sub-segment i<j of the sequence.
func (n *Network) addRideEdges(cat *catalogue.Catalogue, line string, stops []catalogue.StopID, speed float64) error {
	for i := range stops {
		meters := 0
		for j := i + 1; j < len(stops); j++ {
			d, ok := cat.Distance(stops[j-1], stops[j])
			if !ok {
				return fmt.Errorf("line %q: %w: %q -> %q", line, catalogue.ErrMissingDistance,
					cat.Stop(stops[j-1]).Name, cat.Stop(stops[j]).Name)
			}
			meters += d
			n.addEdge(ridingVertex(stops[i]), waitingVertex(stops[j]), float64(meters)/speed,
				EdgeInfo{Line: line, SpanCount: j - i})
		}
	}
	return nil
}
