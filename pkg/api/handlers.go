package api

import (
	"encoding/json"
	"errors"
	"math"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"transit_router/pkg/geo"
	"transit_router/pkg/graph"
	"transit_router/pkg/request"
)

const maxBatchBytes = 1 << 20

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	answers       *request.Handler
	nearestRadius float64
	stats         StatsResponse
}

// NewHandlers creates handlers answering from h. nearestRadius bounds the
// nearest-stop search in meters.
func NewHandlers(h *request.Handler, nearestRadius float64) *Handlers {
	r := h.Router()
	g := r.Network().Graph
	comp := graph.Components(g)
	return &Handlers{
		answers:       h,
		nearestRadius: nearestRadius,
		stats: StatsResponse{
			NumStops:         len(r.Catalogue().Stops()),
			NumLines:         len(r.Catalogue().Lines()),
			NumVertices:      g.VertexCount(),
			NumEdges:         g.EdgeCount(),
			NumComponents:    comp.Count,
			LargestComponent: comp.Largest,
		},
	}
}

// HandleRoute handles GET /api/v1/route?from=&to=.
func (h *Handlers) HandleRoute(w http.ResponseWriter, r *http.Request) {
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	if from == "" {
		writeError(w, http.StatusBadRequest, "missing_parameter", "from")
		return
	}
	if to == "" {
		writeError(w, http.StatusBadRequest, "missing_parameter", "to")
		return
	}

	router := h.answers.Router()
	for _, p := range [][2]string{{"from", from}, {"to", to}} {
		if _, ok := router.Catalogue().StopByName(p[1]); !ok {
			writeError(w, http.StatusNotFound, "unknown_stop", p[0])
			return
		}
	}

	it, ok := router.FindRoute(from, to)
	if !ok {
		writeError(w, http.StatusNotFound, "no_route_found", "")
		return
	}
	writeJSON(w, http.StatusOK, RouteResponse{
		From:      from,
		To:        to,
		TotalTime: it.TotalTime,
		Items:     request.Items(it),
	})
}

// HandleStop handles GET /api/v1/stops/{name}.
func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	name, err := pathParam(r, "name")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "name")
		return
	}
	cat := h.answers.Router().Catalogue()
	id, ok := cat.StopByName(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_stop", "name")
		return
	}
	buses, _ := cat.StopLines(name)
	stop := cat.Stop(id)
	writeJSON(w, http.StatusOK, StopResponse{
		Name:  stop.Name,
		Lat:   stop.Coordinates.Lat,
		Lng:   stop.Coordinates.Lng,
		Buses: buses,
	})
}

// HandleNearestStop handles GET /api/v1/stops/nearest?lat=&lng=.
func (h *Handlers) HandleNearestStop(w http.ResponseWriter, r *http.Request) {
	lat, err := parseCoord(r.URL.Query().Get("lat"), 90)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "lat")
		return
	}
	lng, err := parseCoord(r.URL.Query().Get("lng"), 180)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "lng")
		return
	}

	cat := h.answers.Router().Catalogue()
	id, meters, ok := cat.NearestStop(geo.Coordinates{Lat: lat, Lng: lng}, h.nearestRadius)
	if !ok {
		writeError(w, http.StatusNotFound, "no_stop_nearby", "")
		return
	}
	stop := cat.Stop(id)
	writeJSON(w, http.StatusOK, NearestStopResponse{
		Name:           stop.Name,
		Lat:            stop.Coordinates.Lat,
		Lng:            stop.Coordinates.Lng,
		DistanceMeters: meters,
	})
}

// HandleBus handles GET /api/v1/buses/{name}.
func (h *Handlers) HandleBus(w http.ResponseWriter, r *http.Request) {
	name, err := pathParam(r, "name")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "name")
		return
	}
	cat := h.answers.Router().Catalogue()
	id, ok := cat.LineByName(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_bus", "name")
		return
	}
	stats, _, err := cat.LineStats(name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	line := cat.Line(id)
	stops := make([]string, len(line.Stops))
	for i, s := range line.Stops {
		stops[i] = cat.Stop(s).Name
	}
	writeJSON(w, http.StatusOK, BusResponse{
		Name:            line.Name,
		IsRoundtrip:     line.IsRoundtrip,
		Stops:           stops,
		RouteLength:     stats.RouteLength,
		StopCount:       stats.StopCount,
		UniqueStopCount: stats.UniqueStopCount,
		Curvature:       stats.Curvature,
	})
}

// HandleMap handles GET /api/v1/map.
func (h *Handlers) HandleMap(w http.ResponseWriter, r *http.Request) {
	svg := h.answers.Map()
	if svg == "" {
		writeError(w, http.StatusNotFound, "no_render_settings", "")
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Write([]byte(svg))
}

// HandleBatch handles POST /api/v1/stats: a JSON array of stat requests
// answered exactly like a serve run.
func (h *Handlers) HandleBatch(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return
	}

	var reqs []request.StatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchBytes)).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return
	}
	if err := request.ValidateStatRequests(reqs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return
	}

	answers, err := h.answers.Process(reqs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	request.Encode(w, answers)
}

// HandleHealth handles GET /api/v1/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// HandleStats handles GET /api/v1/stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats := h.stats
	stats.CachedSources = h.answers.Router().Engine().CachedRows()
	writeJSON(w, http.StatusOK, stats)
}

// pathParam returns a decoded URL parameter. chi matches against RawPath
// when it is set (escapes such as %2F), so the segment is still escaped then.
func pathParam(r *http.Request, key string) (string, error) {
	v := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return v, nil
	}
	return url.PathUnescape(v)
}

func parseCoord(s string, limit float64) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("coordinate must be a finite number")
	}
	if v < -limit || v > limit {
		return 0, errors.New("coordinate out of range")
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, field string) {
	writeJSON(w, status, ErrorResponse{Error: code, Field: field})
}
