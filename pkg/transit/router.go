package transit

import (
	"fmt"

	"transit_router/pkg/catalogue"
	"transit_router/pkg/graph"
	"transit_router/pkg/routing"
)

// ItemKind distinguishes itinerary legs.
type ItemKind int

const (
	Wait ItemKind = iota
	Ride
)

func (k ItemKind) String() string {
	if k == Wait {
		return "Wait"
	}
	return "Bus"
}

// Item is one itinerary leg. Wait legs set StopName; ride legs set Line and SpanCount.
type Item struct {
	Kind      ItemKind
	StopName  string
	Line      string
	SpanCount int
	Time      float64 // minutes
}

// Itinerary is the answer to a trip query.
type Itinerary struct {
	TotalTime float64 // minutes
	Items     []Item
}

// Router answers stop-to-stop trip queries. It is created fully built and is
// read-only apart from the shortest-path cache, which is internally locked.
type Router struct {
	cat      *catalogue.Catalogue
	settings Settings
	net      *Network
	engine   *routing.Router[float64]
	waiting  map[string]graph.VertexID // stop name -> waiting vertex
}

// New compiles the catalogue and returns a Router with an empty path cache.
func New(cat *catalogue.Catalogue, s Settings) (*Router, error) {
	net, err := Build(cat, s)
	if err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}
	return Restore(cat, s, net, routing.New(net.Graph))
}

// Restore assembles a Router from previously computed parts without rebuilding anything.
func Restore(cat *catalogue.Catalogue, s Settings, net *Network, engine *routing.Router[float64]) (*Router, error) {
	if err := net.Validate(); err != nil {
		return nil, err
	}
	if engine.Graph() != net.Graph {
		return nil, fmt.Errorf("%w: engine searches a different graph", graph.ErrCorrupt)
	}
	waiting := make(map[string]graph.VertexID, len(net.Vertices)/2)
	for id, v := range net.Vertices {
		if v.Waiting {
			waiting[v.StopName] = graph.VertexID(id)
		}
	}
	return &Router{cat: cat, settings: s, net: net, engine: engine, waiting: waiting}, nil
}

// Catalogue returns the network description.
func (r *Router) Catalogue() *catalogue.Catalogue { return r.cat }

// Settings returns the routing settings the graph was built with.
func (r *Router) Settings() Settings { return r.settings }

// Network returns the compiled graph and its metadata.
func (r *Router) Network() *Network { return r.net }

// Engine returns the shortest-path engine.
func (r *Router) Engine() *routing.Router[float64] { return r.engine }

// PrecomputeAll fills the shortest-path table for every source vertex.
func (r *Router) PrecomputeAll() { r.engine.PrecomputeAll() }

// FindRoute returns the fastest itinerary between two stops. Unknown stop
// names and unreachable stops both yield false.
func (r *Router) FindRoute(from, to string) (Itinerary, bool) {
	src, ok := r.waiting[from]
	if !ok {
		return Itinerary{}, false
	}
	dst, ok := r.waiting[to]
	if !ok {
		return Itinerary{}, false
	}

	info, ok := r.engine.BuildRoute(src, dst)
	if !ok {
		return Itinerary{}, false
	}

	it := Itinerary{TotalTime: info.Weight, Items: make([]Item, 0, len(info.Edges))}
	for _, id := range info.Edges {
		e := r.net.Graph.Edge(id)
		meta := r.net.Edges[id]
		if meta.SpanCount == 0 {
			it.Items = append(it.Items, Item{
				Kind:     Wait,
				StopName: r.net.Vertices[e.From].StopName,
				Time:     e.Weight,
			})
			continue
		}
		it.Items = append(it.Items, Item{
			Kind:      Ride,
			Line:      meta.Line,
			SpanCount: meta.SpanCount,
			Time:      e.Weight,
		})
	}
	return it, true
}
