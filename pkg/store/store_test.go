package store_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"transit_router/pkg/catalogue"
	"transit_router/pkg/geo"
	"transit_router/pkg/render"
	"transit_router/pkg/store"
	"transit_router/pkg/transit"
)

func buildTestRouter(t *testing.T) *transit.Router {
	t.Helper()
	b := catalogue.NewBuilder()
	stops := []struct {
		name     string
		lat, lng float64
	}{
		{"Marushkino", 55.595884, 37.209755},
		{"Tolstopaltsevo", 55.611087, 37.20829},
		{"Rasskazovka", 55.632761, 37.333324},
		{"Universam", 55.587655, 37.645687},
		{"Biryusinka", 55.581065, 37.64839},
		{"Isolated", 55.5, 37.5},
	}
	for _, s := range stops {
		if _, err := b.AddStop(s.name, geo.Coordinates{Lat: s.lat, Lng: s.lng}); err != nil {
			t.Fatal(err)
		}
	}
	for _, d := range []struct {
		from, to string
		m        int
	}{
		{"Tolstopaltsevo", "Marushkino", 3900},
		{"Marushkino", "Rasskazovka", 9900},
		{"Marushkino", "Tolstopaltsevo", 4000},
		{"Universam", "Biryusinka", 760},
		{"Biryusinka", "Universam", 750},
		{"Rasskazovka", "Universam", 12000},
		{"Biryusinka", "Rasskazovka", 11400},
	} {
		if err := b.SetDistance(d.from, d.to, d.m); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := b.AddLine("750", []string{"Tolstopaltsevo", "Marushkino", "Rasskazovka"}, false); err != nil {
		t.Fatal(err)
	}
	if _, err := b.AddLine("14", []string{"Rasskazovka", "Universam", "Biryusinka", "Rasskazovka"}, true); err != nil {
		t.Fatal(err)
	}
	r, err := transit.New(b.Build(), transit.Settings{WaitTime: 2, Velocity: 30})
	if err != nil {
		t.Fatalf("transit.New: %v", err)
	}
	return r
}

func testRender() *render.Settings {
	return &render.Settings{
		Width: 600, Height: 400, Padding: 50, LineWidth: 14, StopRadius: 5,
		BusLabelFontSize: 20, BusLabelOffset: [2]float64{7, 15},
		StopLabelFontSize: 20, StopLabelOffset: [2]float64{7, -3},
		UnderlayerColor: render.RGBA(255, 255, 255, 0.85), UnderlayerWidth: 3,
		ColorPalette: []render.Color{"green", render.RGB(255, 160, 0), "red"},
	}
}

func writeAndRead(t *testing.T, snap store.Snapshot) store.Snapshot {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transit.db")
	if err := store.Write(path, snap); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}
	loaded, err := store.Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	return loaded
}

func TestRoundTripAnswersMatch(t *testing.T) {
	original := buildTestRouter(t)
	loaded := writeAndRead(t, store.Snapshot{Router: original, Render: testRender()})

	stops := original.Catalogue().Stops()
	for _, a := range stops {
		for _, b := range stops {
			want, wantOK := original.FindRoute(a.Name, b.Name)
			got, gotOK := loaded.Router.FindRoute(a.Name, b.Name)
			if gotOK != wantOK || !reflect.DeepEqual(got, want) {
				t.Errorf("%s -> %s: loaded %+v,%v original %+v,%v", a.Name, b.Name, got, gotOK, want, wantOK)
			}
		}
	}
}

func TestRoundTripStructure(t *testing.T) {
	original := buildTestRouter(t)
	loaded := writeAndRead(t, store.Snapshot{Router: original, Render: testRender()})
	lr := loaded.Router

	if !reflect.DeepEqual(lr.Catalogue().Stops(), original.Catalogue().Stops()) {
		t.Error("stops differ")
	}
	if !reflect.DeepEqual(lr.Catalogue().Lines(), original.Catalogue().Lines()) {
		t.Error("lines differ")
	}
	if !reflect.DeepEqual(lr.Catalogue().Distances(), original.Catalogue().Distances()) {
		t.Error("distances differ")
	}
	if lr.Settings() != original.Settings() {
		t.Errorf("settings: got %+v, want %+v", lr.Settings(), original.Settings())
	}
	if !reflect.DeepEqual(lr.Network(), original.Network()) {
		t.Error("network differs")
	}
	if !reflect.DeepEqual(loaded.Render, testRender()) {
		t.Errorf("render settings: got %+v", loaded.Render)
	}
	stats, ok, err := lr.Catalogue().LineStats("750")
	if err != nil || !ok || stats.RouteLength != 3900+9900+4000+9900 {
		t.Errorf("LineStats(750) = %+v,%v,%v", stats, ok, err)
	}
}

func TestRoundTripKeepsComputedRows(t *testing.T) {
	original := buildTestRouter(t)
	original.PrecomputeAll()
	loaded := writeAndRead(t, store.Snapshot{Router: original})

	if got, want := loaded.Router.Engine().CachedRows(), original.Network().Graph.VertexCount(); got != want {
		t.Errorf("CachedRows = %d, want %d", got, want)
	}
	if !reflect.DeepEqual(loaded.Router.Engine().Rows(), original.Engine().Rows()) {
		t.Error("router table differs")
	}
	if loaded.Render != nil {
		t.Errorf("Render = %+v, want nil", loaded.Render)
	}
}

func TestRoundTripLazyRows(t *testing.T) {
	original := buildTestRouter(t)
	loaded := writeAndRead(t, store.Snapshot{Router: original})
	if n := loaded.Router.Engine().CachedRows(); n != 0 {
		t.Errorf("CachedRows = %d, want 0", n)
	}
	if _, ok := loaded.Router.FindRoute("Tolstopaltsevo", "Biryusinka"); !ok {
		t.Error("lazy row not computed after load")
	}
}

func TestReadInvalidMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.db")
	os.WriteFile(path, []byte("NOT_TRNSTORE_HEADER_BLAH_BLAH_MORE_DATA"), 0644)

	if _, err := store.Read(path); !errors.Is(err, store.ErrFormat) {
		t.Fatalf("err = %v, want ErrFormat", err)
	}
}

func TestReadTruncatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "full.db")
	if err := store.Write(path, store.Snapshot{Router: buildTestRouter(t)}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range []int{8, 12, 20, len(data) / 2, len(data) - 1} {
		cut := filepath.Join(t.TempDir(), "cut.db")
		os.WriteFile(cut, data[:n], 0644)
		if _, err := store.Read(cut); err == nil {
			t.Errorf("truncated to %d bytes: expected error", n)
		}
	}
}

func TestReadCorruptedPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flip.db")
	if err := store.Write(path, store.Snapshot{Router: buildTestRouter(t)}); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	// Flip a byte inside the last section, clear of headers.
	data[len(data)-10] ^= 0xFF
	os.WriteFile(path, data, 0644)

	if _, err := store.Read(path); !errors.Is(err, store.ErrFormat) {
		t.Fatalf("err = %v, want ErrFormat", err)
	}
}

func TestReadMissingFile(t *testing.T) {
	if _, err := store.Read(filepath.Join(t.TempDir(), "absent.db")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want ErrNotExist", err)
	}
}
