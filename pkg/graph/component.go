package graph

// UnionFind implements a disjoint-set data structure with path compression
// and union by rank.
type UnionFind struct {
	parent []uint32
	rank   []byte
	size   []uint32
}

// NewUnionFind creates a UnionFind for n elements.
func NewUnionFind(n uint32) *UnionFind {
	parent := make([]uint32, n)
	size := make([]uint32, n)
	for i := range n {
		parent[i] = i
		size[i] = 1
	}
	return &UnionFind{
		parent: parent,
		rank:   make([]byte, n),
		size:   size,
	}
}

// Find returns the representative of the set containing x, with path halving.
func (uf *UnionFind) Find(x uint32) uint32 {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

// Union merges the sets containing x and y. Returns false if already same set.
func (uf *UnionFind) Union(x, y uint32) bool {
	rx := uf.Find(x)
	ry := uf.Find(y)
	if rx == ry {
		return false
	}
	if uf.rank[rx] < uf.rank[ry] {
		rx, ry = ry, rx
	}
	uf.parent[ry] = rx
	uf.size[rx] += uf.size[ry]
	if uf.rank[rx] == uf.rank[ry] {
		uf.rank[rx]++
	}
	return true
}

// Size returns the number of elements in x's set.
func (uf *UnionFind) Size(x uint32) uint32 { return uf.size[uf.Find(x)] }

// ComponentStats describes the weak connectivity of a graph.
type ComponentStats struct {
	Count   int // number of weakly connected components
	Largest int // vertices in the largest one
}

// Components computes weakly connected components, treating every edge as undirected.
func Components[W Weight](g *DirectedWeightedGraph[W]) ComponentStats {
	n := uint32(g.VertexCount())
	if n == 0 {
		return ComponentStats{}
	}
	uf := NewUnionFind(n)
	for _, e := range g.edges {
		uf.Union(e.From, e.To)
	}

	var stats ComponentStats
	for v := uint32(0); v < n; v++ {
		if uf.Find(v) != v {
			continue
		}
		stats.Count++
		if s := int(uf.size[v]); s > stats.Largest {
			stats.Largest = s
		}
	}
	return stats
}
