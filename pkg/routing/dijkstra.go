package routing

import "transit_router/pkg/graph"

// MinHeap is a concrete-typed min-heap for the Dijkstra frontier.
// Avoids interface boxing overhead of container/heap.
type MinHeap[W graph.Weight] struct {
	items []PQItem[W]
}

// PQItem is a priority queue entry.
type PQItem[W graph.Weight] struct {
	Vertex graph.VertexID
	Dist   W
}

func (h *MinHeap[W]) Len() int { return len(h.items) }

func (h *MinHeap[W]) Push(v graph.VertexID, dist W) {
	h.items = append(h.items, PQItem[W]{v, dist})
	h.siftUp(len(h.items) - 1)
}

func (h *MinHeap[W]) Pop() PQItem[W] {
	n := len(h.items)
	item := h.items[0]
	h.items[0] = h.items[n-1]
	h.items = h.items[:n-1]
	if len(h.items) > 0 {
		h.siftDown(0)
	}
	return item
}

func (h *MinHeap[W]) Reset() {
	h.items = h.items[:0]
}

func (h *MinHeap[W]) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if h.items[i].Dist >= h.items[parent].Dist {
			break
		}
		h.items[i], h.items[parent] = h.items[parent], h.items[i]
		i = parent
	}
}

func (h *MinHeap[W]) siftDown(i int) {
	n := len(h.items)
	for {
		smallest := i
		left := 2*i + 1
		right := 2*i + 2
		if left < n && h.items[left].Dist < h.items[smallest].Dist {
			smallest = left
		}
		if right < n && h.items[right].Dist < h.items[smallest].Dist {
			smallest = right
		}
		if smallest == i {
			break
		}
		h.items[i], h.items[smallest] = h.items[smallest], h.items[i]
		i = smallest
	}
}

// relax runs single-source Dijkstra from source over the whole graph and
// returns one entry per vertex.
func relax[W graph.Weight](g *graph.DirectedWeightedGraph[W], source graph.VertexID, pq *MinHeap[W]) []Entry[W] {
	row := make([]Entry[W], g.VertexCount())
	row[source] = Entry[W]{Reached: true}

	pq.Reset()
	pq.Push(source, 0)
	for pq.Len() > 0 {
		item := pq.Pop()
		u := item.Vertex
		if item.Dist > row[u].Weight {
			continue // stale entry
		}
		for _, id := range g.IncidentEdges(u) {
			e := g.Edge(id)
			newDist := item.Dist + e.Weight
			cur := &row[e.To]
			if !cur.Reached || newDist < cur.Weight {
				*cur = Entry[W]{Weight: newDist, Reached: true, HasPrev: true, PrevEdge: id}
				pq.Push(e.To, newDist)
			}
		}
	}
	return row
}
