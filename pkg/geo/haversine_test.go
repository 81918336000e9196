package geo

import (
	"math"
	"testing"
)

func TestHaversine(t *testing.T) {
	tests := []struct {
		name             string
		lat1, lon1       float64
		lat2, lon2       float64
		wantMeters       float64
		tolerancePercent float64
	}{
		{
			name: "Singapore CBD to Changi Airport",
			lat1: 1.2830, lon1: 103.8513,
			lat2: 1.3644, lon2: 103.9915,
			wantMeters:       18_023,
			tolerancePercent: 1,
		},
		{
			name: "Same point",
			lat1: 55.611087, lon1: 37.20829,
			lat2: 55.611087, lon2: 37.20829,
			wantMeters:       0,
			tolerancePercent: 0,
		},
		{
			name: "London to Paris",
			lat1: 51.5074, lon1: -0.1278,
			lat2: 48.8566, lon2: 2.3522,
			wantMeters:       343_500,
			tolerancePercent: 1,
		},
		{
			name: "One degree of latitude",
			lat1: 0, lon1: 0,
			lat2: 1, lon2: 0,
			wantMeters:       111_195,
			tolerancePercent: 0.1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Haversine(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if tt.wantMeters == 0 {
				if got != 0 {
					t.Errorf("expected 0, got %f", got)
				}
				return
			}
			diff := math.Abs(got-tt.wantMeters) / tt.wantMeters * 100
			if diff > tt.tolerancePercent {
				t.Errorf("Haversine = %f m, want ~%f m (diff %.2f%%)", got, tt.wantMeters, diff)
			}
		})
	}
}

func TestDistanceSymmetric(t *testing.T) {
	a := Coordinates{Lat: 55.595884, Lng: 37.209755}
	b := Coordinates{Lat: 55.632761, Lng: 37.333324}

	ab := Distance(a, b)
	ba := Distance(b, a)
	if math.Abs(ab-ba) > 1e-6 {
		t.Errorf("Distance(a,b)=%f != Distance(b,a)=%f", ab, ba)
	}
	if Distance(a, a) != 0 {
		t.Errorf("Distance(a,a) = %f, want 0", Distance(a, a))
	}
}

func TestCoordinatesValid(t *testing.T) {
	tests := []struct {
		c    Coordinates
		want bool
	}{
		{Coordinates{0, 0}, true},
		{Coordinates{90, 180}, true},
		{Coordinates{91, 0}, false},
		{Coordinates{0, -181}, false},
		{Coordinates{math.NaN(), 0}, false},
		{Coordinates{0, math.Inf(1)}, false},
	}
	for _, tt := range tests {
		if got := tt.c.Valid(); got != tt.want {
			t.Errorf("%+v.Valid() = %v, want %v", tt.c, got, tt.want)
		}
	}
}
