package request

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"transit_router/pkg/render"
	"transit_router/pkg/transit"
)

const notFound = "not found"

// ErrorResponse answers a request whose subject does not exist.
type ErrorResponse struct {
	RequestID    int    `json:"request_id"`
	ErrorMessage string `json:"error_message"`
}

// StopResponse lists the lines through a stop.
type StopResponse struct {
	RequestID int      `json:"request_id"`
	Buses     []string `json:"buses"`
}

// BusResponse carries line statistics.
type BusResponse struct {
	RequestID       int     `json:"request_id"`
	RouteLength     int     `json:"route_length"`
	StopCount       int     `json:"stop_count"`
	Curvature       float64 `json:"curvature"`
	UniqueStopCount int     `json:"unique_stop_count"`
}

// MapResponse carries the rendered SVG document.
type MapResponse struct {
	RequestID int    `json:"request_id"`
	Map       string `json:"map"`
}

// RouteItem is one itinerary leg: a wait (StopName set) or a ride (Bus and SpanCount set).
type RouteItem struct {
	Type      string  `json:"type"`
	StopName  string  `json:"stop_name,omitempty"`
	Bus       string  `json:"bus,omitempty"`
	SpanCount int     `json:"span_count,omitempty"`
	Time      float64 `json:"time"`
}

// RouteResponse carries the fastest itinerary.
type RouteResponse struct {
	RequestID int         `json:"request_id"`
	TotalTime float64     `json:"total_time"`
	Items     []RouteItem `json:"items"`
}

// Handler answers stat requests. It is safe for concurrent use.
type Handler struct {
	router *transit.Router
	render *render.Settings

	mapOnce sync.Once
	mapSVG  string
}

// NewHandler creates a Handler. rs may be nil, in which case map requests
// are answered as not found.
func NewHandler(r *transit.Router, rs *render.Settings) *Handler {
	return &Handler{router: r, render: rs}
}

// Router returns the underlying router.
func (h *Handler) Router() *transit.Router { return h.router }

// Process answers every request in order. Unknown names produce an error
// entry and do not stop the batch; an error return means the loaded network
// itself is inconsistent.
func (h *Handler) Process(reqs []StatRequest) ([]any, error) {
	out := make([]any, 0, len(reqs))
	for _, req := range reqs {
		resp, err := h.Answer(req)
		if err != nil {
			return nil, err
		}
		out = append(out, resp)
	}
	return out, nil
}

// Answer handles one request.
func (h *Handler) Answer(req StatRequest) (any, error) {
	id := 0
	if req.ID != nil {
		id = *req.ID
	}
	switch req.Type {
	case TypeStop:
		buses, ok := h.router.Catalogue().StopLines(req.Name)
		if !ok {
			return ErrorResponse{RequestID: id, ErrorMessage: notFound}, nil
		}
		return StopResponse{RequestID: id, Buses: buses}, nil

	case TypeBus:
		stats, ok, err := h.router.Catalogue().LineStats(req.Name)
		if err != nil {
			return nil, err
		}
		if !ok {
			return ErrorResponse{RequestID: id, ErrorMessage: notFound}, nil
		}
		return BusResponse{
			RequestID:       id,
			RouteLength:     stats.RouteLength,
			StopCount:       stats.StopCount,
			Curvature:       stats.Curvature,
			UniqueStopCount: stats.UniqueStopCount,
		}, nil

	case TypeMap:
		if h.render == nil {
			return ErrorResponse{RequestID: id, ErrorMessage: notFound}, nil
		}
		return MapResponse{RequestID: id, Map: h.Map()}, nil

	case TypeRoute:
		it, ok := h.router.FindRoute(req.From, req.To)
		if !ok {
			return ErrorResponse{RequestID: id, ErrorMessage: notFound}, nil
		}
		return RouteResponse{RequestID: id, TotalTime: it.TotalTime, Items: Items(it)}, nil
	}
	return nil, fmt.Errorf("%w: unknown request type %q", ErrMalformed, req.Type)
}

// Map renders the network once and returns the cached SVG afterwards.
func (h *Handler) Map() string {
	h.mapOnce.Do(func() {
		if h.render != nil {
			h.mapSVG = render.Map(h.router.Catalogue(), *h.render)
		}
	})
	return h.mapSVG
}

// Items converts an itinerary into its JSON form.
func Items(it transit.Itinerary) []RouteItem {
	items := make([]RouteItem, 0, len(it.Items))
	for _, item := range it.Items {
		ri := RouteItem{Type: item.Kind.String(), Time: item.Time}
		if item.Kind == transit.Wait {
			ri.StopName = item.StopName
		} else {
			ri.Bus = item.Line
			ri.SpanCount = item.SpanCount
		}
		items = append(items, ri)
	}
	return items
}

// Encode writes the answers as an indented JSON array.
func Encode(w io.Writer, answers []any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if answers == nil {
		answers = []any{}
	}
	return enc.Encode(answers)
}
