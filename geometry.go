package main

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
	polylinecodec "github.com/twpayne/go-polyline"
)

// Mean Earth radius in miles.
const earthRadiusMi = 3958.8

// Static-map base URL allowance added on top of the doubled payload size
// when estimating encoded URL length.
const urlBaseAllowance = 200

// GeometryTypeError reports a geometry type that cannot be encoded as a
// polyline path.
type GeometryTypeError struct {
	Type string
}

func (e *GeometryTypeError) Error() string {
	return fmt.Sprintf("unsupported geometry type: %s", e.Type)
}

// haversineMiles returns the great-circle distance between two points in
// miles.
func haversineMiles(lon1, lat1, lon2, lat2 float64) float64 {
	lat1R := lat1 * math.Pi / 180
	lat2R := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1R)*math.Cos(lat2R)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusMi * math.Asin(math.Sqrt(a))
}

// circlePolygon builds a closed ring approximating a circle of the given
// radius around a center point. The longitude offset is divided by
// cos(latitude) so circles keep their shape away from the equator; the
// divisor is floored at 1e-10 to stay finite at the poles. The returned
// ring has numPoints+1 coordinates, the last equal to the first.
func circlePolygon(centerLon, centerLat, radiusMi float64, numPoints int) orb.Ring {
	ring := make(orb.Ring, 0, numPoints+1)
	latR := centerLat * math.Pi / 180
	angularRadius := radiusMi / earthRadiusMi

	cosLat := math.Cos(latR)
	if cosLat < 1e-10 {
		cosLat = 1e-10
	}

	for i := 0; i < numPoints; i++ {
		angle := 2 * math.Pi * float64(i) / float64(numPoints)
		dLat := angularRadius * math.Cos(angle)
		dLon := angularRadius * math.Sin(angle) / cosLat

		ring = append(ring, orb.Point{
			roundTo(centerLon+dLon*180/math.Pi, 6),
			roundTo(centerLat+dLat*180/math.Pi, 6),
		})
	}

	ring = append(ring, ring[0])
	return ring
}

func roundTo(v float64, precision int) float64 {
	factor := math.Pow(10, float64(precision))
	return math.Round(v*factor) / factor
}

// roundGeometry returns a copy of the geometry with every coordinate
// rounded to the given number of decimal places (5 is roughly 1 m).
func roundGeometry(g orb.Geometry, precision int) orb.Geometry {
	switch geom := g.(type) {
	case orb.Point:
		return roundPoint(geom, precision)
	case orb.LineString:
		out := make(orb.LineString, len(geom))
		for i, p := range geom {
			out[i] = roundPoint(p, precision)
		}
		return out
	case orb.Ring:
		return orb.Ring(roundGeometry(orb.LineString(geom), precision).(orb.LineString))
	case orb.Polygon:
		out := make(orb.Polygon, len(geom))
		for i, ring := range geom {
			out[i] = roundGeometry(ring, precision).(orb.Ring)
		}
		return out
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(geom))
		for i, poly := range geom {
			out[i] = roundGeometry(poly, precision).(orb.Polygon)
		}
		return out
	default:
		return orb.Clone(g)
	}
}

func roundPoint(p orb.Point, precision int) orb.Point {
	return orb.Point{roundTo(p[0], precision), roundTo(p[1], precision)}
}

// outerRing extracts the outer ring of a Polygon, or the first polygon's
// outer ring of a MultiPolygon.
func outerRing(g orb.Geometry) (orb.Ring, error) {
	switch geom := g.(type) {
	case orb.Polygon:
		if len(geom) == 0 {
			return nil, &GeometryTypeError{Type: "empty Polygon"}
		}
		return geom[0], nil
	case orb.MultiPolygon:
		if len(geom) == 0 || len(geom[0]) == 0 {
			return nil, &GeometryTypeError{Type: "empty MultiPolygon"}
		}
		return geom[0][0], nil
	default:
		return nil, &GeometryTypeError{Type: g.GeoJSONType()}
	}
}

// geometryToPolyline encodes a polygon outline as a Google polyline at
// precision 5. GeoJSON stores (lon, lat); the polyline codec expects
// (lat, lon).
func geometryToPolyline(g orb.Geometry) (string, error) {
	ring, err := outerRing(g)
	if err != nil {
		return "", err
	}

	coords := make([][]float64, len(ring))
	for i, p := range ring {
		coords[i] = []float64{p.Lat(), p.Lon()}
	}

	return string(polylinecodec.EncodeCoords(coords)), nil
}

// estimateGeoJSONURLLength estimates the encoded URL length for a GeoJSON
// overlay. URL encoding roughly doubles the compact JSON size; a fixed
// allowance covers the base URL and query string. This is a pre-check
// heuristic, not a guarantee.
func estimateGeoJSONURLLength(features []*geojson.Feature) int {
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		fc.Append(f)
	}
	data, err := json.Marshal(fc)
	if err != nil {
		return urlBaseAllowance
	}
	return len(data)*2 + urlBaseAllowance
}

// GeometryEngine abstracts the computational-geometry operations that have
// both a full-precision backend and a manual fallback. Callers should treat
// the fallback as a documented approximation, not a drop-in equivalent.
type GeometryEngine interface {
	// Centroid returns a representative interior point for label placement.
	Centroid(g orb.Geometry) (orb.Point, bool)
	// Simplify reduces vertex count while preserving shape.
	Simplify(g orb.Geometry, tolerance float64) orb.Geometry
	// Bounds returns the union bounding box of the geometries.
	Bounds(geoms []orb.Geometry) (orb.Bound, bool)
}

// planarEngine computes centroids, simplification, and bounds with the orb
// computational-geometry routines.
type planarEngine struct{}

// NewGeometryEngine returns the full-precision engine.
func NewGeometryEngine() GeometryEngine {
	return planarEngine{}
}

func (planarEngine) Centroid(g orb.Geometry) (orb.Point, bool) {
	if g == nil {
		return orb.Point{}, false
	}
	centroid, _ := planar.CentroidArea(g)
	return centroid, true
}

func (planarEngine) Simplify(g orb.Geometry, tolerance float64) orb.Geometry {
	if g == nil {
		return nil
	}
	// The orb simplifiers mutate in place; work on a clone.
	return simplify.DouglasPeucker(tolerance).Simplify(orb.Clone(g))
}

func (planarEngine) Bounds(geoms []orb.Geometry) (orb.Bound, bool) {
	var bound orb.Bound
	found := false
	for _, g := range geoms {
		if g == nil {
			continue
		}
		if !found {
			bound = g.Bound()
			found = true
			continue
		}
		bound = bound.Union(g.Bound())
	}
	return bound, found
}

// vertexEngine is the manual fallback: the centroid is the arithmetic mean
// of the outer-ring vertices, which is NOT area-weighted and is biased for
// irregular or concave shapes; simplification is an identity pass; bounds
// come from a recursive coordinate scan.
type vertexEngine struct{}

// NewFallbackGeometryEngine returns the vertex-average fallback engine.
func NewFallbackGeometryEngine() GeometryEngine {
	return vertexEngine{}
}

func (vertexEngine) Centroid(g orb.Geometry) (orb.Point, bool) {
	switch geom := g.(type) {
	case orb.Point:
		return geom, true
	case orb.Polygon, orb.MultiPolygon:
		ring, err := outerRing(g)
		if err != nil || len(ring) == 0 {
			return orb.Point{}, false
		}
		return vertexMean(ring), true
	case orb.LineString:
		if len(geom) == 0 {
			return orb.Point{}, false
		}
		return vertexMean(orb.Ring(geom)), true
	default:
		return orb.Point{}, false
	}
}

func vertexMean(ring orb.Ring) orb.Point {
	var sumLon, sumLat float64
	for _, p := range ring {
		sumLon += p.Lon()
		sumLat += p.Lat()
	}
	n := float64(len(ring))
	return orb.Point{sumLon / n, sumLat / n}
}

// Simplify returns the geometry unchanged. Without the full-precision
// backend this is a documented approximation, not an error.
func (vertexEngine) Simplify(g orb.Geometry, tolerance float64) orb.Geometry {
	return g
}

func (vertexEngine) Bounds(geoms []orb.Geometry) (orb.Bound, bool) {
	minLon, minLat := math.Inf(1), math.Inf(1)
	maxLon, maxLat := math.Inf(-1), math.Inf(-1)
	found := false

	var scan func(g orb.Geometry)
	update := func(p orb.Point) {
		minLon = math.Min(minLon, p.Lon())
		minLat = math.Min(minLat, p.Lat())
		maxLon = math.Max(maxLon, p.Lon())
		maxLat = math.Max(maxLat, p.Lat())
		found = true
	}
	scan = func(g orb.Geometry) {
		switch geom := g.(type) {
		case orb.Point:
			update(geom)
		case orb.LineString:
			for _, p := range geom {
				update(p)
			}
		case orb.Ring:
			scan(orb.LineString(geom))
		case orb.Polygon:
			for _, ring := range geom {
				scan(ring)
			}
		case orb.MultiPolygon:
			for _, poly := range geom {
				scan(poly)
			}
		}
	}

	for _, g := range geoms {
		if g != nil {
			scan(g)
		}
	}

	if !found {
		return orb.Bound{}, false
	}
	return orb.Bound{
		Min: orb.Point{minLon, minLat},
		Max: orb.Point{maxLon, maxLat},
	}, true
}
