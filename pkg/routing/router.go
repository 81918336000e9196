// Package routing answers shortest-path queries over a graph.DirectedWeightedGraph.
//
// A Router computes one table row per source vertex the first time that
// source is queried and keeps it for the lifetime of the Router. The graph
// must not change after the Router is created, so rows never go stale.
package routing

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"transit_router/pkg/graph"
)

// ErrBadRows is returned when precomputed rows do not match the graph.
var ErrBadRows = errors.New("router rows do not match graph")

// Entry is the best known way to reach one vertex from a row's source.
type Entry[W graph.Weight] struct {
	Weight   W
	Reached  bool
	HasPrev  bool
	PrevEdge graph.EdgeID
}

// RouteInfo is a shortest path: total weight and edge ids from source to target.
type RouteInfo[W graph.Weight] struct {
	Weight W
	Edges  []graph.EdgeID
}

// Router memoizes single-source shortest-path rows. It is safe for concurrent use.
type Router[W graph.Weight] struct {
	g *graph.DirectedWeightedGraph[W]

	mu   sync.RWMutex
	rows [][]Entry[W] // indexed by source; nil until computed
	pq   MinHeap[W]   // reused under mu
}

// New creates a Router with an empty cache.
func New[W graph.Weight](g *graph.DirectedWeightedGraph[W]) *Router[W] {
	return &Router[W]{
		g:    g,
		rows: make([][]Entry[W], g.VertexCount()),
	}
}

// FromRows creates a Router whose cache is preloaded. rows[v] may be nil for
// sources that were never computed; every non-nil row must have one entry per
// vertex and reference existing edges.
func FromRows[W graph.Weight](g *graph.DirectedWeightedGraph[W], rows [][]Entry[W]) (*Router[W], error) {
	n := g.VertexCount()
	if len(rows) != n {
		return nil, fmt.Errorf("%w: %d rows for %d vertices", ErrBadRows, len(rows), n)
	}
	m := uint32(g.EdgeCount())
	for src, row := range rows {
		if row == nil {
			continue
		}
		if len(row) != n {
			return nil, fmt.Errorf("%w: row %d has %d entries, want %d", ErrBadRows, src, len(row), n)
		}
		for v, e := range row {
			if e.HasPrev && e.PrevEdge >= m {
				return nil, fmt.Errorf("%w: row %d entry %d references edge %d of %d", ErrBadRows, src, v, e.PrevEdge, m)
			}
		}
	}
	return &Router[W]{g: g, rows: rows}, nil
}

// Graph returns the graph the Router searches.
func (r *Router[W]) Graph() *graph.DirectedWeightedGraph[W] { return r.g }

// EnsureRow computes and caches the row for source if it is not cached yet.
func (r *Router[W]) EnsureRow(source graph.VertexID) {
	r.checkVertex(source)

	r.mu.RLock()
	done := r.rows[source] != nil
	r.mu.RUnlock()
	if done {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rows[source] == nil {
		r.rows[source] = relax(r.g, source, &r.pq)
	}
}

// PrecomputeAll fills the row for every vertex.
func (r *Router[W]) PrecomputeAll() {
	for v := range r.g.VertexCount() {
		r.EnsureRow(graph.VertexID(v))
	}
}

// Row returns the cached row for source, if computed. Callers must not modify it.
func (r *Router[W]) Row(source graph.VertexID) ([]Entry[W], bool) {
	r.checkVertex(source)
	r.mu.RLock()
	defer r.mu.RUnlock()
	row := r.rows[source]
	return row, row != nil
}

// Rows returns a snapshot of the cache indexed by source; uncomputed rows are nil.
func (r *Router[W]) Rows() [][]Entry[W] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.rows)
}

// CachedRows returns how many sources have a computed row.
func (r *Router[W]) CachedRows() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, row := range r.rows {
		if row != nil {
			n++
		}
	}
	return n
}

// BuildRoute returns the shortest path from one vertex to another, or false
// if to is unreachable.
func (r *Router[W]) BuildRoute(from, to graph.VertexID) (RouteInfo[W], bool) {
	r.checkVertex(to)
	r.EnsureRow(from)

	r.mu.RLock()
	row := r.rows[from]
	r.mu.RUnlock()

	target := row[to]
	if !target.Reached {
		return RouteInfo[W]{}, false
	}

	edges := []graph.EdgeID{}
	for e := target; e.HasPrev; {
		edges = append(edges, e.PrevEdge)
		e = row[r.g.Edge(e.PrevEdge).From]
	}
	slices.Reverse(edges)
	return RouteInfo[W]{Weight: target.Weight, Edges: edges}, true
}

func (r *Router[W]) checkVertex(v graph.VertexID) {
	if int(v) >= r.g.VertexCount() {
		panic(fmt.Sprintf("routing: vertex %d out of range [0, %d)", v, r.g.VertexCount()))
	}
}
