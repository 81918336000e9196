package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"transit_router/pkg/request"
)

const buildDoc = `{
  "serialization_settings": {"file": %q},
  "routing_settings": {"bus_wait_time": 2, "bus_velocity": 30},
  "render_settings": {
    "width": 200, "height": 200, "padding": 30,
    "line_width": 14, "stop_radius": 5,
    "bus_label_font_size": 20, "bus_label_offset": [7, 15],
    "stop_label_font_size": 20, "stop_label_offset": [7, -3],
    "underlayer_color": [255, 255, 255, 0.85], "underlayer_width": 3,
    "color_palette": ["green", [255, 160, 0], "red"]
  },
  "base_requests": [
    {"type": "Bus", "name": "114", "stops": ["Morskoy vokzal", "Rivierskiy most"], "is_roundtrip": false},
    {"type": "Stop", "name": "Rivierskiy most", "latitude": 43.587795, "longitude": 39.716901,
     "road_distances": {"Morskoy vokzal": 850}},
    {"type": "Stop", "name": "Morskoy vokzal", "latitude": 43.581969, "longitude": 39.719848,
     "road_distances": {"Rivierskiy most": 850}}
  ]
}`

const serveDoc = `{
  "serialization_settings": {"file": %q},
  "stat_requests": [
    {"id": 1, "type": "Bus", "name": "114"},
    {"id": 2, "type": "Route", "from": "Morskoy vokzal", "to": "Rivierskiy most"},
    {"id": 3, "type": "Stop", "name": "Nowhere"},
    {"id": 4, "type": "Map"}
  ]
}`

func TestBuildThenServe(t *testing.T) {
	t.Setenv("TRANSIT_STORE", "")
	path := filepath.Join(t.TempDir(), "transport.db")

	for _, precompute := range []string{"-precompute=true", "-precompute=false"} {
		t.Run(precompute, func(t *testing.T) {
			if err := runBuild([]string{precompute}, strings.NewReader(fmt.Sprintf(buildDoc, path))); err != nil {
				t.Fatalf("build: %v", err)
			}

			var out bytes.Buffer
			if err := runServe(nil, strings.NewReader(fmt.Sprintf(serveDoc, path)), &out); err != nil {
				t.Fatalf("serve: %v", err)
			}

			var answers []map[string]any
			if err := json.Unmarshal(out.Bytes(), &answers); err != nil {
				t.Fatalf("decode answers: %v\n%s", err, out.String())
			}
			if len(answers) != 4 {
				t.Fatalf("got %d answers, want 4", len(answers))
			}
			if answers[0]["route_length"] != float64(1700) || answers[0]["stop_count"] != float64(3) {
				t.Errorf("bus answer = %v", answers[0])
			}
			// 2 minutes waiting plus 850 m at 500 m/min.
			if tt, _ := answers[1]["total_time"].(float64); math.Abs(tt-3.7) > 1e-9 {
				t.Errorf("route answer = %v", answers[1])
			}
			if answers[2]["error_message"] != "not found" {
				t.Errorf("stop answer = %v", answers[2])
			}
			if svg, _ := answers[3]["map"].(string); !strings.HasPrefix(svg, "<?xml") {
				t.Errorf("map answer = %v", answers[3])
			}
		})
	}
}

func TestStoreFlagOverridesDocument(t *testing.T) {
	t.Setenv("TRANSIT_STORE", "")
	dir := t.TempDir()
	docPath := filepath.Join(dir, "unused.db")
	flagPath := filepath.Join(dir, "flag.db")

	if err := runBuild([]string{"-store", flagPath}, strings.NewReader(fmt.Sprintf(buildDoc, docPath))); err != nil {
		t.Fatalf("build: %v", err)
	}
	var out bytes.Buffer
	if err := runServe([]string{"-store", flagPath}, strings.NewReader(fmt.Sprintf(serveDoc, docPath)), &out); err != nil {
		t.Fatalf("serve: %v", err)
	}
	if err := runServe(nil, strings.NewReader(fmt.Sprintf(serveDoc, docPath)), &out); err == nil {
		t.Error("serve from the document path should fail: nothing was written there")
	}
}

func TestBuildMalformed(t *testing.T) {
	err := runBuild(nil, strings.NewReader(`{"base_requests": []}`))
	if !errors.Is(err, request.ErrMalformed) {
		t.Errorf("err = %v, want ErrMalformed", err)
	}
}

func TestExtraArgumentsAreUsageErrors(t *testing.T) {
	t.Setenv("TRANSIT_STORE", "")
	path := filepath.Join(t.TempDir(), "transport.db")
	doc := fmt.Sprintf(buildDoc, path)

	for _, args := range [][]string{{"extra", "args"}, {"-precompute=false", "extra"}, {"-nosuchflag"}} {
		if err := runBuild(args, strings.NewReader(doc)); !errors.Is(err, errUsage) {
			t.Errorf("build %v: err = %v, want errUsage", args, err)
		}
		if err := runServe(args, strings.NewReader(fmt.Sprintf(serveDoc, path)), io.Discard); !errors.Is(err, errUsage) {
			t.Errorf("serve %v: err = %v, want errUsage", args, err)
		}
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("store written despite usage error: %v", err)
	}
}

func TestStoreFileRequired(t *testing.T) {
	t.Setenv("TRANSIT_STORE", "")
	if err := runBuild(nil, strings.NewReader(fmt.Sprintf(buildDoc, ""))); !errors.Is(err, errNoStore) {
		t.Errorf("err = %v, want errNoStore", err)
	}

	// The flag alone is enough when the document leaves the file empty.
	path := filepath.Join(t.TempDir(), "flag.db")
	if err := runBuild([]string{"-store", path, "-precompute=false"}, strings.NewReader(fmt.Sprintf(buildDoc, ""))); err != nil {
		t.Fatalf("build: %v", err)
	}
	var out bytes.Buffer
	if err := runServe([]string{"-store", path}, strings.NewReader(fmt.Sprintf(serveDoc, "")), &out); err != nil {
		t.Fatalf("serve: %v", err)
	}
}
