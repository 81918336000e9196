package catalogue

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"transit_router/pkg/geo"
)

// buildTestCatalogue creates a small network:
//
//	Line 14 (round trip):      A -> B -> C -> A
//	Line 750 (there and back): C -> D
func buildTestCatalogue(t *testing.T) *Catalogue {
	t.Helper()
	b := NewBuilder()
	stops := []struct {
		name     string
		lat, lng float64
	}{
		{"A", 55.611087, 37.20829},
		{"B", 55.595884, 37.209755},
		{"C", 55.632761, 37.333324},
		{"D", 55.574371, 37.6517},
		{"E", 55.0, 37.0}, // not served by any line
	}
	for _, s := range stops {
		if _, err := b.AddStop(s.name, geo.Coordinates{Lat: s.lat, Lng: s.lng}); err != nil {
			t.Fatalf("AddStop(%s): %v", s.name, err)
		}
	}
	dists := []struct {
		from, to string
		m        int
	}{
		{"A", "B", 3900},
		{"B", "C", 9900},
		{"C", "B", 9500},
		{"C", "A", 100},
		{"C", "D", 5000},
	}
	for _, d := range dists {
		if err := b.SetDistance(d.from, d.to, d.m); err != nil {
			t.Fatalf("SetDistance: %v", err)
		}
	}
	if _, err := b.AddLine("14", []string{"A", "B", "C", "A"}, true); err != nil {
		t.Fatalf("AddLine: %v", err)
	}
	if _, err := b.AddLine("750", []string{"C", "D"}, false); err != nil {
		t.Fatalf("AddLine: %v", err)
	}
	return b.Build()
}

func TestDistanceSymmetricFallback(t *testing.T) {
	c := buildTestCatalogue(t)
	a, _ := c.StopByName("A")
	b, _ := c.StopByName("B")
	cc, _ := c.StopByName("C")
	e, _ := c.StopByName("E")

	if d, ok := c.Distance(a, b); !ok || d != 3900 {
		t.Errorf("Distance(A,B) = %d,%v, want 3900,true", d, ok)
	}
	// Only A->B recorded: B->A falls back.
	if d, ok := c.Distance(b, a); !ok || d != 3900 {
		t.Errorf("Distance(B,A) = %d,%v, want 3900,true", d, ok)
	}
	// Both directions recorded: each keeps its own value.
	if d, _ := c.Distance(b, cc); d != 9900 {
		t.Errorf("Distance(B,C) = %d, want 9900", d)
	}
	if d, _ := c.Distance(cc, b); d != 9500 {
		t.Errorf("Distance(C,B) = %d, want 9500", d)
	}
	if _, ok := c.Distance(a, e); ok {
		t.Error("Distance(A,E) should be unset")
	}
}

func TestBuilderErrors(t *testing.T) {
	b := NewBuilder()
	if _, err := b.AddStop("A", geo.Coordinates{}); err != nil {
		t.Fatalf("AddStop: %v", err)
	}
	if _, err := b.AddStop("A", geo.Coordinates{}); !errors.Is(err, ErrDuplicateStop) {
		t.Errorf("duplicate stop err = %v, want ErrDuplicateStop", err)
	}
	if _, err := b.AddStop("", geo.Coordinates{}); !errors.Is(err, ErrEmptyName) {
		t.Errorf("empty name err = %v, want ErrEmptyName", err)
	}
	if err := b.SetDistance("A", "Z", 10); !errors.Is(err, ErrUnknownStop) {
		t.Errorf("unknown stop err = %v, want ErrUnknownStop", err)
	}
	if err := b.SetDistance("A", "A", -1); !errors.Is(err, ErrBadDistance) {
		t.Errorf("negative distance err = %v, want ErrBadDistance", err)
	}
	if _, err := b.AddLine("1", []string{"A", "Z"}, true); !errors.Is(err, ErrUnknownStop) {
		t.Errorf("unknown line stop err = %v, want ErrUnknownStop", err)
	}
	if _, err := b.AddLine("1", []string{"A"}, true); err != nil {
		t.Fatalf("AddLine: %v", err)
	}
	if _, err := b.AddLine("1", []string{"A"}, true); !errors.Is(err, ErrDuplicateLine) {
		t.Errorf("duplicate line err = %v, want ErrDuplicateLine", err)
	}
}

func TestSetDistanceOverwriteKeepsOrder(t *testing.T) {
	b := NewBuilder()
	b.AddStop("A", geo.Coordinates{})
	b.AddStop("B", geo.Coordinates{})
	b.SetDistance("A", "B", 10)
	b.SetDistance("B", "A", 20)
	b.SetDistance("A", "B", 30)
	c := b.Build()

	want := []Distance{{From: 0, To: 1, Meters: 30}, {From: 1, To: 0, Meters: 20}}
	if !reflect.DeepEqual(c.Distances(), want) {
		t.Errorf("Distances() = %+v, want %+v", c.Distances(), want)
	}
}

func TestStopLines(t *testing.T) {
	c := buildTestCatalogue(t)

	got, ok := c.StopLines("C")
	if !ok || !reflect.DeepEqual(got, []string{"14", "750"}) {
		t.Errorf("StopLines(C) = %v,%v, want [14 750],true", got, ok)
	}
	got, ok = c.StopLines("E")
	if !ok || len(got) != 0 {
		t.Errorf("StopLines(E) = %v,%v, want [],true", got, ok)
	}
	if _, ok := c.StopLines("nowhere"); ok {
		t.Error("StopLines(nowhere) should not be found")
	}
}

func TestLineStatsRoundTrip(t *testing.T) {
	c := buildTestCatalogue(t)
	stats, ok, err := c.LineStats("14")
	if err != nil || !ok {
		t.Fatalf("LineStats(14) = ok %v err %v", ok, err)
	}
	if stats.StopCount != 4 {
		t.Errorf("StopCount = %d, want 4", stats.StopCount)
	}
	if stats.UniqueStopCount != 3 {
		t.Errorf("UniqueStopCount = %d, want 3", stats.UniqueStopCount)
	}
	if stats.RouteLength != 3900+9900+100 {
		t.Errorf("RouteLength = %d, want %d", stats.RouteLength, 3900+9900+100)
	}
	if stats.Curvature <= 0 || math.IsInf(stats.Curvature, 0) {
		t.Errorf("Curvature = %f, want finite positive", stats.Curvature)
	}
}

func TestLineStatsThereAndBack(t *testing.T) {
	c := buildTestCatalogue(t)
	stats, ok, err := c.LineStats("750")
	if err != nil || !ok {
		t.Fatalf("LineStats(750) = ok %v err %v", ok, err)
	}
	if stats.StopCount != 3 {
		t.Errorf("StopCount = %d, want 3", stats.StopCount)
	}
	if stats.UniqueStopCount != 2 {
		t.Errorf("UniqueStopCount = %d, want 2", stats.UniqueStopCount)
	}
	// C->D recorded, D->C falls back.
	if stats.RouteLength != 10000 {
		t.Errorf("RouteLength = %d, want 10000", stats.RouteLength)
	}

	cid, _ := c.StopByName("C")
	did, _ := c.StopByName("D")
	geoLen := 2 * geo.Distance(c.Stop(cid).Coordinates, c.Stop(did).Coordinates)
	if math.Abs(stats.Curvature-10000/geoLen) > 1e-9 {
		t.Errorf("Curvature = %f, want %f", stats.Curvature, 10000/geoLen)
	}

	if _, ok, _ := c.LineStats("nope"); ok {
		t.Error("LineStats(nope) should not be found")
	}
}

func TestCheckDistancesMissing(t *testing.T) {
	b := NewBuilder()
	b.AddStop("A", geo.Coordinates{})
	b.AddStop("B", geo.Coordinates{})
	b.AddLine("1", []string{"A", "B"}, false)
	c := b.Build()

	if err := c.CheckDistances(); !errors.Is(err, ErrMissingDistance) {
		t.Errorf("CheckDistances err = %v, want ErrMissingDistance", err)
	}
	if _, _, err := c.LineStats("1"); !errors.Is(err, ErrMissingDistance) {
		t.Errorf("LineStats err = %v, want ErrMissingDistance", err)
	}
}

func TestSortedLinesAndServedStops(t *testing.T) {
	c := buildTestCatalogue(t)

	var lines []string
	for _, id := range c.SortedLines() {
		lines = append(lines, c.Line(id).Name)
	}
	if !reflect.DeepEqual(lines, []string{"14", "750"}) {
		t.Errorf("SortedLines = %v", lines)
	}

	var stops []string
	for _, id := range c.ServedStops() {
		stops = append(stops, c.Stop(id).Name)
	}
	if !reflect.DeepEqual(stops, []string{"A", "B", "C", "D"}) {
		t.Errorf("ServedStops = %v, want [A B C D]", stops)
	}
}

func TestNearestStop(t *testing.T) {
	c := buildTestCatalogue(t)

	id, d, ok := c.NearestStop(geo.Coordinates{Lat: 55.6111, Lng: 37.2083}, 500)
	if !ok {
		t.Fatal("NearestStop: not found")
	}
	if got := c.Stop(id).Name; got != "A" {
		t.Errorf("NearestStop = %s, want A", got)
	}
	if d > 50 {
		t.Errorf("distance = %f m, want < 50", d)
	}

	if _, _, ok := c.NearestStop(geo.Coordinates{Lat: 10, Lng: 10}, 500); ok {
		t.Error("NearestStop far away should not be found")
	}
}

func TestStopIndexWithin(t *testing.T) {
	c := buildTestCatalogue(t)
	var found []string
	c.index.Within(geo.Coordinates{Lat: 55.6035, Lng: 37.209}, 2000, func(id StopID, _ float64) bool {
		found = append(found, c.Stop(id).Name)
		return true
	})
	if len(found) != 2 {
		t.Errorf("Within found %v, want A and B", found)
	}
}
