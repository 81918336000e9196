// Package graph provides a generic directed weighted graph with positional
// vertex and edge ids, independent of any transit semantics.
package graph

import (
	"errors"
	"fmt"
)

// ErrCorrupt is returned when a graph assembled from raw parts is inconsistent.
var ErrCorrupt = errors.New("corrupt graph")

// Weight is the set of numeric types usable as edge weights.
type Weight interface {
	~int | ~int32 | ~int64 | ~uint32 | ~uint64 | ~float32 | ~float64
}

// VertexID indexes a vertex in [0, VertexCount).
type VertexID = uint32

// EdgeID indexes an edge in insertion order.
type EdgeID = uint32

// Edge is a directed weighted edge.
type Edge[W Weight] struct {
	From   VertexID
	To     VertexID
	Weight W
}

// DirectedWeightedGraph has a fixed vertex count and an append-only edge list.
// Incidence lists hold outgoing edge ids per vertex in insertion order.
type DirectedWeightedGraph[W Weight] struct {
	edges     []Edge[W]
	incidence [][]EdgeID
}

// New creates a graph with n vertices and no edges.
func New[W Weight](n int) *DirectedWeightedGraph[W] {
	return &DirectedWeightedGraph[W]{incidence: make([][]EdgeID, n)}
}

// FromParts reassembles a graph from an edge list and per-vertex incidence
// lists, checking bounds only.
func FromParts[W Weight](edges []Edge[W], incidence [][]EdgeID) (*DirectedWeightedGraph[W], error) {
	n := uint32(len(incidence))
	for i, e := range edges {
		if e.From >= n || e.To >= n {
			return nil, fmt.Errorf("%w: edge %d (%d->%d) outside %d vertices", ErrCorrupt, i, e.From, e.To, n)
		}
	}
	m := uint32(len(edges))
	for v, list := range incidence {
		for _, id := range list {
			if id >= m {
				return nil, fmt.Errorf("%w: vertex %d lists edge %d of %d", ErrCorrupt, v, id, m)
			}
		}
	}
	return &DirectedWeightedGraph[W]{edges: edges, incidence: incidence}, nil
}

// AddEdge appends e and returns its id.
func (g *DirectedWeightedGraph[W]) AddEdge(e Edge[W]) EdgeID {
	g.checkVertex(e.From)
	g.checkVertex(e.To)
	id := EdgeID(len(g.edges))
	g.edges = append(g.edges, e)
	g.incidence[e.From] = append(g.incidence[e.From], id)
	return id
}

// VertexCount returns the number of vertices.
func (g *DirectedWeightedGraph[W]) VertexCount() int { return len(g.incidence) }

// EdgeCount returns the number of edges.
func (g *DirectedWeightedGraph[W]) EdgeCount() int { return len(g.edges) }

// Edge returns the edge with the given id.
func (g *DirectedWeightedGraph[W]) Edge(id EdgeID) Edge[W] { return g.edges[id] }

// IncidentEdges returns the ids of edges leaving v. Callers must not modify the slice.
func (g *DirectedWeightedGraph[W]) IncidentEdges(v VertexID) []EdgeID {
	g.checkVertex(v)
	return g.incidence[v]
}

func (g *DirectedWeightedGraph[W]) checkVertex(v VertexID) {
	if int(v) >= len(g.incidence) {
		panic(fmt.Sprintf("graph: vertex %d out of range [0, %d)", v, len(g.incidence)))
	}
}
