// Package request decodes the build and serve input documents and answers
// stat requests against a loaded router.
package request

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/go-playground/validator/v10"

	"transit_router/pkg/catalogue"
	"transit_router/pkg/geo"
	"transit_router/pkg/render"
	"transit_router/pkg/transit"
)

// ErrMalformed is returned for a document that cannot be decoded or is
// missing required fields. Nothing is processed from such a document.
var ErrMalformed = errors.New("malformed request document")

// Request types.
const (
	TypeStop  = "Stop"
	TypeBus   = "Bus"
	TypeMap   = "Map"
	TypeRoute = "Route"
)

// SerializationSettings names the store file. File may be left empty when
// the caller supplies the path some other way.
type SerializationSettings struct {
	File string `json:"file"`
}

// RoutingSettings are the wait time in minutes and the bus velocity in km/h.
type RoutingSettings struct {
	BusWaitTime float64 `json:"bus_wait_time" validate:"gte=0"`
	BusVelocity float64 `json:"bus_velocity" validate:"gt=0"`
}

// BaseRequest describes one stop or one line of the network.
type BaseRequest struct {
	Type string `json:"type" validate:"oneof=Stop Bus"`
	Name string `json:"name" validate:"required"`

	// Stop fields.
	Latitude      *float64       `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude     *float64       `json:"longitude,omitempty" validate:"omitempty,longitude"`
	RoadDistances map[string]int `json:"road_distances,omitempty" validate:"omitempty,dive,keys,required,endkeys,gte=0"`

	// Bus fields.
	Stops       []string `json:"stops,omitempty" validate:"omitempty,dive,required"`
	IsRoundtrip *bool    `json:"is_roundtrip,omitempty"`
}

// BuildDocument is the input of a build run.
type BuildDocument struct {
	Serialization   *SerializationSettings `json:"serialization_settings" validate:"required"`
	RoutingSettings *RoutingSettings       `json:"routing_settings" validate:"required"`
	RenderSettings  *render.Settings       `json:"render_settings,omitempty"`
	BaseRequests    []BaseRequest          `json:"base_requests" validate:"dive"`
}

// StatRequest is one query of a serve run.
type StatRequest struct {
	ID   *int   `json:"id" validate:"required"`
	Type string `json:"type" validate:"oneof=Stop Bus Map Route"`
	Name string `json:"name,omitempty"`
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// ServeDocument is the input of a serve run.
type ServeDocument struct {
	Serialization *SerializationSettings `json:"serialization_settings" validate:"required"`
	StatRequests  []StatRequest          `json:"stat_requests" validate:"dive"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(validateBaseRequest, BaseRequest{})
	v.RegisterStructValidation(validateStatRequest, StatRequest{})
	return v
}

// validateBaseRequest enforces the fields each base request type needs.
func validateBaseRequest(sl validator.StructLevel) {
	r := sl.Current().Interface().(BaseRequest)
	switch r.Type {
	case TypeStop:
		if r.Latitude == nil {
			sl.ReportError(r.Latitude, "latitude", "Latitude", "required", "")
		}
		if r.Longitude == nil {
			sl.ReportError(r.Longitude, "longitude", "Longitude", "required", "")
		}
	case TypeBus:
		if r.Stops == nil {
			sl.ReportError(r.Stops, "stops", "Stops", "required", "")
		}
		if r.IsRoundtrip == nil {
			sl.ReportError(r.IsRoundtrip, "is_roundtrip", "IsRoundtrip", "required", "")
		}
	}
}

func validateStatRequest(sl validator.StructLevel) {
	r := sl.Current().Interface().(StatRequest)
	switch r.Type {
	case TypeStop, TypeBus:
		if r.Name == "" {
			sl.ReportError(r.Name, "name", "Name", "required", "")
		}
	case TypeRoute:
		if r.From == "" {
			sl.ReportError(r.From, "from", "From", "required", "")
		}
		if r.To == "" {
			sl.ReportError(r.To, "to", "To", "required", "")
		}
	}
}

func decode(r io.Reader, doc any) error {
	if err := json.NewDecoder(r).Decode(doc); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if err := validate.Struct(doc); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return nil
}

// DecodeBuild reads and validates a build document.
func DecodeBuild(r io.Reader) (*BuildDocument, error) {
	var doc BuildDocument
	if err := decode(r, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// DecodeServe reads and validates a serve document.
func DecodeServe(r io.Reader) (*ServeDocument, error) {
	var doc ServeDocument
	if err := decode(r, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ValidateStatRequests checks a batch of stat requests that did not arrive
// inside a serve document.
func ValidateStatRequests(reqs []StatRequest) error {
	for i := range reqs {
		if err := validate.Struct(&reqs[i]); err != nil {
			return fmt.Errorf("%w: request %d: %w", ErrMalformed, i, err)
		}
	}
	return nil
}

// Settings returns the routing settings of the document.
func (d *BuildDocument) Settings() transit.Settings {
	return transit.Settings{
		WaitTime: d.RoutingSettings.BusWaitTime,
		Velocity: d.RoutingSettings.BusVelocity,
	}
}

// Populate adds the document's stops, distances and lines to b. All stops
// are added first so distances and lines may name stops declared later.
func (d *BuildDocument) Populate(b *catalogue.Builder) error {
	for _, r := range d.BaseRequests {
		if r.Type != TypeStop {
			continue
		}
		c := geo.Coordinates{Lat: *r.Latitude, Lng: *r.Longitude}
		if _, err := b.AddStop(r.Name, c); err != nil {
			return err
		}
	}
	for _, r := range d.BaseRequests {
		switch r.Type {
		case TypeStop:
			for _, to := range slices.Sorted(maps.Keys(r.RoadDistances)) {
				meters := r.RoadDistances[to]
				if err := b.SetDistance(r.Name, to, meters); err != nil {
					return fmt.Errorf("stop %q: %w", r.Name, err)
				}
			}
		case TypeBus:
			if _, err := b.AddLine(r.Name, r.Stops, *r.IsRoundtrip); err != nil {
				return err
			}
		}
	}
	return nil
}
