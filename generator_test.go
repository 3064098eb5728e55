package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/paulmach/orb/geojson"
)

func imageServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngStub)
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

func testGenerator(t *testing.T, serverURL, outputDir string) *MapGenerator {
	t.Helper()
	target := testTarget("100")
	parcels := []*geojson.Feature{
		rawParcel("201", -87.51, 37.0),
		rawParcel("202", -87.49, 37.0),
		rawParcel("203", -87.5, 37.01),
	}
	profiles := []*OwnerProfile{
		profile("SMITH, ALICE", InfluenceHigh, StanceOppose, "201"),
		profile("JONES, BOB", InfluenceMedium, StanceSupport, "202"),
		profile("DOE, CAROL", InfluenceLow, StanceOppose, "203"),
	}
	return NewMapGenerator(target, parcels, profiles, testClient(serverURL), NewGeometryEngine(), outputDir, "satellite-streets-v12")
}

func TestGenerateDetailMap(t *testing.T) {
	server, requests := imageServer(t)
	outputDir := t.TempDir()

	gen := testGenerator(t, server.URL, outputDir)
	result := gen.GenerateDetailMap(context.Background(), "testrun")

	if !result.Success {
		t.Fatalf("detail map failed: %v", result.Metadata["error"])
	}
	if n := requests.Load(); n != 2 {
		t.Errorf("made %d requests, want full image plus thumbnail", n)
	}

	for _, name := range []string{"testrun_map_full.png", "testrun_map_thumb.png"} {
		if _, err := os.Stat(filepath.Join(outputDir, name)); err != nil {
			t.Errorf("%s missing: %v", name, err)
		}
	}

	// Detail labels exclude the Low influence owner: target plus two
	// neighbors.
	if len(result.Labels) != 3 {
		t.Errorf("labels = %d, want 3", len(result.Labels))
	}
	for _, label := range result.Labels {
		if label.Influence == InfluenceLow {
			t.Errorf("detail map labeled a Low influence owner: %+v", label)
		}
	}
	if len(result.Legend) != 2 {
		t.Errorf("legend entries = %d, want 2", len(result.Legend))
	}

	metaData, err := os.ReadFile(filepath.Join(outputDir, "testrun_map_metadata.json"))
	if err != nil {
		t.Fatalf("metadata sidecar missing: %v", err)
	}
	var metadata map[string]any
	if err := json.Unmarshal(metaData, &metadata); err != nil {
		t.Fatalf("metadata not valid JSON: %v", err)
	}
	if metadata["run_id"] != "testrun" {
		t.Errorf("metadata run_id = %v", metadata["run_id"])
	}
	if metadata["labels_count"] != float64(3) {
		t.Errorf("metadata labels_count = %v, want 3", metadata["labels_count"])
	}
	bbox, ok := metadata["bbox"].([]any)
	if !ok || len(bbox) != 4 {
		t.Fatalf("metadata bbox = %v, want [minLon minLat maxLon maxLat]", metadata["bbox"])
	}
	if bbox[0].(float64) >= bbox[2].(float64) || bbox[1].(float64) >= bbox[3].(float64) {
		t.Errorf("metadata bbox not a proper extent: %v", bbox)
	}

	legendData, err := os.ReadFile(filepath.Join(outputDir, "testrun_map_legend.json"))
	if err != nil {
		t.Fatalf("legend sidecar missing: %v", err)
	}
	var legend []LegendEntry
	if err := json.Unmarshal(legendData, &legend); err != nil {
		t.Fatalf("legend not valid JSON: %v", err)
	}
	if len(legend) != 2 {
		t.Errorf("legend sidecar entries = %d, want 2", len(legend))
	}
	for _, entry := range legend {
		if entry.IsTarget {
			t.Error("legend should never contain the target parcel")
		}
	}
}

func TestGenerateDetailMap_NoFeatures(t *testing.T) {
	server, requests := imageServer(t)

	gen := NewMapGenerator(&TargetParcel{PIN: "100"}, nil, nil, testClient(server.URL), NewGeometryEngine(), t.TempDir(), "satellite-streets-v12")
	result := gen.GenerateDetailMap(context.Background(), "testrun")

	if result.Success {
		t.Fatal("expected failure with no features")
	}
	if n := requests.Load(); n != 0 {
		t.Errorf("made %d requests, want 0", n)
	}
}

func TestGenerateFullPageMap(t *testing.T) {
	server, _ := imageServer(t)
	outputDir := t.TempDir()

	gen := testGenerator(t, server.URL, outputDir)
	result := gen.GenerateFullPageMap(context.Background(), "testrun")

	if !result.Success {
		t.Fatalf("full-page map failed: %v", result.Metadata["error"])
	}
	if _, err := os.Stat(filepath.Join(outputDir, "testrun_map_fullpage.png")); err != nil {
		t.Errorf("full-page image missing: %v", err)
	}

	// Full-page labels include every influence level: target plus three
	// neighbors.
	if len(result.Labels) != 4 {
		t.Fatalf("labels = %d, want 4", len(result.Labels))
	}
	var sawLow bool
	for _, label := range result.Labels {
		if label.Influence == InfluenceLow {
			sawLow = true
		}
	}
	if !sawLow {
		t.Error("full-page map did not label the Low influence owner")
	}
}
