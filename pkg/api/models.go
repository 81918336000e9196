package api

import "transit_router/pkg/request"

// RouteResponse is the JSON response for GET /api/v1/route.
type RouteResponse struct {
	From      string              `json:"from"`
	To        string              `json:"to"`
	TotalTime float64             `json:"total_time"`
	Items     []request.RouteItem `json:"items"`
}

// StopResponse is the JSON response for GET /api/v1/stops/{name}.
type StopResponse struct {
	Name  string   `json:"name"`
	Lat   float64  `json:"lat"`
	Lng   float64  `json:"lng"`
	Buses []string `json:"buses"`
}

// NearestStopResponse is the JSON response for GET /api/v1/stops/nearest.
type NearestStopResponse struct {
	Name           string  `json:"name"`
	Lat            float64 `json:"lat"`
	Lng            float64 `json:"lng"`
	DistanceMeters float64 `json:"distance_meters"`
}

// BusResponse is the JSON response for GET /api/v1/buses/{name}.
type BusResponse struct {
	Name            string   `json:"name"`
	IsRoundtrip     bool     `json:"is_roundtrip"`
	Stops           []string `json:"stops"`
	RouteLength     int      `json:"route_length"`
	StopCount       int      `json:"stop_count"`
	UniqueStopCount int      `json:"unique_stop_count"`
	Curvature       float64  `json:"curvature"`
}

// ErrorResponse is the JSON response for errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// StatsResponse is the JSON response for GET /api/v1/stats.
type StatsResponse struct {
	NumStops         int `json:"num_stops"`
	NumLines         int `json:"num_lines"`
	NumVertices      int `json:"num_vertices"`
	NumEdges         int `json:"num_edges"`
	NumComponents    int `json:"num_components"`
	LargestComponent int `json:"largest_component"`
	CachedSources    int `json:"cached_sources"`
}

// HealthResponse is the JSON response for GET /api/v1/health.
type HealthResponse struct {
	Status string `json:"status"`
}
