package main

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func squareAt(lon, lat float64) orb.Polygon {
	return orb.Polygon{
		{
			{lon, lat},
			{lon + 0.001, lat},
			{lon + 0.001, lat + 0.001},
			{lon, lat + 0.001},
			{lon, lat},
		},
	}
}

func rawParcel(pin string, lon, lat float64) *geojson.Feature {
	f := geojson.NewFeature(squareAt(lon, lat))
	f.Properties = geojson.Properties{"parcelnumb": pin}
	return f
}

func testTarget(pin string) *TargetParcel {
	return &TargetParcel{
		PIN:      pin,
		Geometry: geojson.NewGeometry(squareAt(-87.5, 37.0)),
		Lat:      37.0005,
		Lon:      -87.4995,
	}
}

func profile(name, influence, stance string, pins ...string) *OwnerProfile {
	return &OwnerProfile{
		Name:               name,
		EntityCategory:     "Resident",
		CommunityInfluence: influence,
		NotedStance:        stance,
		PINs:               pins,
		OwnsAdjacentParcel: "No",
	}
}

func TestBuildMapFeatures_EndToEnd(t *testing.T) {
	target := testTarget("100")
	parcels := []*geojson.Feature{
		rawParcel("201", -87.51, 37.0),
		rawParcel("202", -87.49, 37.0),
		rawParcel("203", -87.5, 37.01),
	}
	profiles := []*OwnerProfile{
		profile("SMITH, ALICE", InfluenceHigh, StanceOppose, "201"),
		profile("JONES, BOB", InfluenceMedium, StanceSupport, "202"),
		profile("DOE, CAROL", InfluenceLow, StanceNeutral, "203"),
	}

	builder := NewFeatureBuilder(target, parcels, profiles)
	features, stats := builder.BuildMapFeatures()

	// Low/neutral resolves no style, so: Medium, High, Target.
	if len(features) != 3 {
		t.Fatalf("expected 3 features, got %d", len(features))
	}
	if features[0].Influence != InfluenceMedium {
		t.Errorf("expected Medium first, got %s", features[0].Influence)
	}
	if features[1].Influence != InfluenceHigh {
		t.Errorf("expected High second, got %s", features[1].Influence)
	}
	if !features[2].IsTarget {
		t.Error("expected target feature last")
	}

	if stats.Highlighted != 2 {
		t.Errorf("expected 2 highlighted owners, got %d", stats.Highlighted)
	}
	if !stats.TargetIncluded {
		t.Error("expected target_included")
	}
	if stats.SkippedNotHighlighted != 1 {
		t.Errorf("expected 1 skipped owner, got %d", stats.SkippedNotHighlighted)
	}
}

func TestBuildMapFeatures_NoDuplicatePINs(t *testing.T) {
	target := testTarget("100")
	parcels := []*geojson.Feature{
		rawParcel("201", -87.51, 37.0),
	}
	// The same PIN listed twice on one profile must render once.
	profiles := []*OwnerProfile{
		profile("SMITH, ALICE", InfluenceHigh, StanceNeutral, "201", "201", " 201"),
	}

	builder := NewFeatureBuilder(target, parcels, profiles)
	features, _ := builder.BuildMapFeatures()

	seen := make(map[string]bool)
	for _, f := range features {
		pin := normalizePIN(f.PIN)
		if seen[pin] {
			t.Fatalf("duplicate feature for PIN %q", pin)
		}
		seen[pin] = true
	}
}

func TestBuildMapFeatures_TargetPINNeverRendersAsNeighbor(t *testing.T) {
	target := testTarget("100")
	// Target PIN also present in the raw parcel feed and owned by a profile.
	parcels := []*geojson.Feature{
		rawParcel("100", -87.5, 37.0),
		rawParcel("201", -87.51, 37.0),
	}
	profiles := []*OwnerProfile{
		profile("SMITH, ALICE", InfluenceHigh, StanceNeutral, "100", "201"),
	}

	builder := NewFeatureBuilder(target, parcels, profiles)
	features, _ := builder.BuildMapFeatures()

	targetCount := 0
	for _, f := range features {
		if normalizePIN(f.PIN) == "100" {
			if !f.IsTarget {
				t.Error("target PIN rendered as a neighbor")
			}
			targetCount++
		}
	}
	if targetCount != 1 {
		t.Errorf("expected exactly 1 feature for the target PIN, got %d", targetCount)
	}
}

func TestBuildMapFeatures_MissingGeometryCounted(t *testing.T) {
	target := testTarget("100")
	profiles := []*OwnerProfile{
		profile("SMITH, ALICE", InfluenceHigh, StanceNeutral, "999"),
	}

	builder := NewFeatureBuilder(target, nil, profiles)
	features, stats := builder.BuildMapFeatures()

	if stats.SkippedNoGeometry != 1 {
		t.Errorf("expected 1 skipped_no_geometry, got %d", stats.SkippedNoGeometry)
	}
	// Target still renders.
	if len(features) != 1 || !features[0].IsTarget {
		t.Fatalf("expected only the target feature, got %d features", len(features))
	}
}

func TestBuildMapFeatures_EmptyResultIsNotError(t *testing.T) {
	builder := NewFeatureBuilder(&TargetParcel{PIN: "100"}, nil, nil)
	features, stats := builder.BuildMapFeatures()

	if len(features) != 0 {
		t.Fatalf("expected empty feature list, got %d", len(features))
	}
	if stats.TargetIncluded {
		t.Error("target without geometry should not be included")
	}
}

func TestBuildMapFeatures_NormalizedPINJoin(t *testing.T) {
	target := testTarget("100")
	// Geometry feed carries a zero-width space, profile a double space.
	parcels := []*geojson.Feature{
		rawParcel("04\u200B 22000400000000", -87.51, 37.0),
	}
	profiles := []*OwnerProfile{
		profile("SMITH, ALICE", InfluenceHigh, StanceNeutral, "04  22000400000000"),
	}

	builder := NewFeatureBuilder(target, parcels, profiles)
	features, stats := builder.BuildMapFeatures()

	if stats.SkippedNoGeometry != 0 {
		t.Errorf("normalized join failed: %d parcels skipped", stats.SkippedNoGeometry)
	}
	if len(features) != 2 {
		t.Fatalf("expected neighbor + target, got %d features", len(features))
	}
}

func TestExtractPIN_Aliases(t *testing.T) {
	testCases := []struct {
		name     string
		props    geojson.Properties
		expected string
	}{
		{
			name:     "Nested fields parcelnumb",
			props:    geojson.Properties{"fields": map[string]interface{}{"parcelnumb": "111"}},
			expected: "111",
		},
		{
			name:     "Top-level parcelnumb",
			props:    geojson.Properties{"parcelnumb": "222"},
			expected: "222",
		},
		{
			name:     "Top-level apn",
			props:    geojson.Properties{"apn": "333"},
			expected: "333",
		},
		{
			name:     "Nested apn beats top-level pin",
			props:    geojson.Properties{"fields": map[string]interface{}{"apn": "444"}, "pin": "555"},
			expected: "444",
		},
		{
			name:     "Pin fallback",
			props:    geojson.Properties{"pin": "666"},
			expected: "666",
		},
		{
			name:     "No alias present",
			props:    geojson.Properties{"owner": "nobody"},
			expected: "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := extractPIN(tc.props); got != tc.expected {
				t.Errorf("extractPIN = %q, expected %q", got, tc.expected)
			}
		})
	}
}

func TestToGeoJSON_CarriesStyleAndLabelProps(t *testing.T) {
	target := testTarget("100")
	parcels := []*geojson.Feature{rawParcel("201", -87.51, 37.0)}
	profiles := []*OwnerProfile{profile("SMITH, ALICE", InfluenceHigh, StanceOppose, "201")}

	builder := NewFeatureBuilder(target, parcels, profiles)
	features, _ := builder.BuildMapFeatures()
	geo := featuresToGeoJSON(features)

	if len(geo) != 2 {
		t.Fatalf("expected 2 GeoJSON features, got %d", len(geo))
	}

	neighbor := geo[0]
	if neighbor.Properties.MustString("fill", "") != "#8B0000" {
		t.Errorf("oppose fill = %v", neighbor.Properties["fill"])
	}
	if neighbor.Properties.MustString("stance", "") != StanceOppose {
		t.Errorf("stance prop = %v", neighbor.Properties["stance"])
	}

	targetFeature := geo[1]
	if got := targetFeature.Properties.MustBool("is_target", false); !got {
		t.Error("target feature missing is_target property")
	}
}
