package main

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func TestHaversineMiles(t *testing.T) {
	testCases := []struct {
		name         string
		lon1, lat1   float64
		lon2, lat2   float64
		expectedMi   float64
		tolerancePct float64
	}{
		{
			name:         "One degree of latitude at the equator",
			lon1:         0, lat1: 0,
			lon2:         0, lat2: 1,
			expectedMi:   69.17,
			tolerancePct: 1.0,
		},
		{
			name:         "Indianapolis to Louisville (~100 mi)",
			lon1:         -86.158, lat1: 39.768,
			lon2:         -85.758, lat2: 38.253,
			expectedMi:   107,
			tolerancePct: 3.0,
		},
		{
			name:         "Zero distance",
			lon1:         -87.5, lat1: 37.0,
			lon2:         -87.5, lat2: 37.0,
			expectedMi:   0,
			tolerancePct: 0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := haversineMiles(tc.lon1, tc.lat1, tc.lon2, tc.lat2)
			if tc.expectedMi == 0 {
				if got != 0 {
					t.Errorf("expected 0 miles, got %f", got)
				}
				return
			}
			diff := math.Abs(got-tc.expectedMi) / tc.expectedMi * 100
			if diff > tc.tolerancePct {
				t.Errorf("distance mismatch: got %.2f mi, expected %.2f mi (%.1f%% off)",
					got, tc.expectedMi, diff)
			}
		})
	}
}

func TestCirclePolygon(t *testing.T) {
	ring := circlePolygon(-87.5, 37.0, 0.5, 32)

	if len(ring) != 33 {
		t.Fatalf("expected 33 coordinates (32 + closure), got %d", len(ring))
	}

	if ring[0] != ring[len(ring)-1] {
		t.Errorf("ring not closed: first %v != last %v", ring[0], ring[len(ring)-1])
	}

	// Every vertex should sit roughly radius miles from the center.
	for i, p := range ring[:len(ring)-1] {
		d := haversineMiles(-87.5, 37.0, p.Lon(), p.Lat())
		if math.Abs(d-0.5) > 0.01 {
			t.Errorf("vertex %d is %.4f mi from center, expected ~0.5", i, d)
		}
	}
}

func TestCirclePolygon_CustomPointCount(t *testing.T) {
	ring := circlePolygon(0, 0, 1.0, 8)
	if len(ring) != 9 {
		t.Errorf("expected 9 coordinates, got %d", len(ring))
	}
}

func TestRoundGeometry(t *testing.T) {
	poly := orb.Polygon{
		{
			{-87.123456789, 37.987654321},
			{-87.2, 37.9},
			{-87.15, 37.95},
			{-87.123456789, 37.987654321},
		},
	}

	rounded := roundGeometry(poly, 5).(orb.Polygon)

	if rounded[0][0].Lon() != -87.12346 {
		t.Errorf("expected lon -87.12346, got %v", rounded[0][0].Lon())
	}
	if rounded[0][0].Lat() != 37.98765 {
		t.Errorf("expected lat 37.98765, got %v", rounded[0][0].Lat())
	}

	// Original must be untouched.
	if poly[0][0].Lon() != -87.123456789 {
		t.Error("roundGeometry mutated the input geometry")
	}
}

func TestGeometryToPolyline(t *testing.T) {
	poly := orb.Polygon{
		{
			{-87.5, 37.0},
			{-87.5, 37.01},
			{-87.49, 37.01},
			{-87.5, 37.0},
		},
	}

	encoded, err := geometryToPolyline(poly)
	if err != nil {
		t.Fatal(err)
	}
	if encoded == "" {
		t.Error("expected non-empty polyline")
	}

	// MultiPolygon uses the first polygon's outer ring, so it encodes
	// identically to the bare polygon.
	mp := orb.MultiPolygon{poly}
	encodedMP, err := geometryToPolyline(mp)
	if err != nil {
		t.Fatal(err)
	}
	if encodedMP != encoded {
		t.Errorf("MultiPolygon encoding differs from Polygon: %q vs %q", encodedMP, encoded)
	}
}

func TestGeometryToPolyline_UnsupportedType(t *testing.T) {
	_, err := geometryToPolyline(orb.Point{-87.5, 37.0})
	if err == nil {
		t.Fatal("expected error for Point geometry")
	}

	var typeErr *GeometryTypeError
	if !errors.As(err, &typeErr) {
		t.Fatalf("expected GeometryTypeError, got %T", err)
	}
	if typeErr.Type != "Point" {
		t.Errorf("expected type Point in error, got %q", typeErr.Type)
	}
}

func TestEstimateGeoJSONURLLength(t *testing.T) {
	f := geojson.NewFeature(orb.Polygon{
		{{-87.5, 37.0}, {-87.5, 37.01}, {-87.49, 37.01}, {-87.5, 37.0}},
	})
	f.Properties = geojson.Properties{"fill": "#FFD700"}

	n := estimateGeoJSONURLLength([]*geojson.Feature{f})
	if n <= urlBaseAllowance {
		t.Errorf("expected estimate above base allowance, got %d", n)
	}

	// More features means a longer estimate.
	n2 := estimateGeoJSONURLLength([]*geojson.Feature{f, f, f})
	if n2 <= n {
		t.Errorf("expected estimate to grow with feature count: %d <= %d", n2, n)
	}
}

func TestPlanarEngineCentroid(t *testing.T) {
	engine := NewGeometryEngine()

	square := orb.Polygon{
		{{0, 0}, {2, 0}, {2, 2}, {0, 2}, {0, 0}},
	}
	centroid, ok := engine.Centroid(square)
	if !ok {
		t.Fatal("expected centroid for square")
	}
	if math.Abs(centroid.Lon()-1) > 1e-9 || math.Abs(centroid.Lat()-1) > 1e-9 {
		t.Errorf("expected centroid (1,1), got %v", centroid)
	}
}

func TestVertexEngineCentroid_NotAreaWeighted(t *testing.T) {
	fallback := NewFallbackGeometryEngine()

	// Vertices clustered on one side pull the vertex-average centroid
	// toward them even though the shape is a plain square.
	ring := orb.Ring{{0, 0}, {0.1, 0}, {0.2, 0}, {2, 0}, {2, 2}, {0, 2}, {0, 0}}
	centroid, ok := fallback.Centroid(orb.Polygon{ring})
	if !ok {
		t.Fatal("expected centroid")
	}
	if centroid.Lat() >= 1 {
		t.Errorf("expected vertex-average bias below center, got %v", centroid)
	}
}

func TestEngineSimplify(t *testing.T) {
	// A line with a redundant collinear midpoint.
	poly := orb.Polygon{
		{{0, 0}, {0.5, 0.000001}, {1, 0}, {1, 1}, {0, 1}, {0, 0}},
	}

	simplified := NewGeometryEngine().Simplify(poly, 0.0001).(orb.Polygon)
	if len(simplified[0]) >= len(poly[0]) {
		t.Errorf("expected simplification to drop a vertex: %d >= %d",
			len(simplified[0]), len(poly[0]))
	}

	// Input must not be mutated.
	if len(poly[0]) != 6 {
		t.Errorf("Simplify mutated the input: %d vertices", len(poly[0]))
	}

	// Fallback engine passes geometry through unchanged.
	same := NewFallbackGeometryEngine().Simplify(poly, 0.0001).(orb.Polygon)
	if len(same[0]) != len(poly[0]) {
		t.Error("fallback Simplify should be an identity pass")
	}
}

func TestEngineBounds(t *testing.T) {
	geoms := []orb.Geometry{
		orb.Polygon{{{-1, -1}, {0, -1}, {0, 0}, {-1, 0}, {-1, -1}}},
		orb.Polygon{{{1, 1}, {2, 1}, {2, 3}, {1, 3}, {1, 1}}},
	}

	for _, engine := range []GeometryEngine{NewGeometryEngine(), NewFallbackGeometryEngine()} {
		bound, ok := engine.Bounds(geoms)
		if !ok {
			t.Fatal("expected bounds")
		}
		if bound.Min.Lon() != -1 || bound.Min.Lat() != -1 ||
			bound.Max.Lon() != 2 || bound.Max.Lat() != 3 {
			t.Errorf("unexpected union bound: %v", bound)
		}
	}
}

func TestEngineBounds_Empty(t *testing.T) {
	for _, engine := range []GeometryEngine{NewGeometryEngine(), NewFallbackGeometryEngine()} {
		if _, ok := engine.Bounds(nil); ok {
			t.Error("expected no bounds for empty input")
		}
	}
}
