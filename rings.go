package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Ring sentiment categories.
const (
	SentimentOppose  = "oppose"
	SentimentSupport = "support"
	SentimentMixed   = "mixed"
	SentimentNeutral = "neutral"
	SentimentNoData  = "no_data"
)

// ringCirclePoints is the vertex count for ring circle approximations.
const ringCirclePoints = 32

// Fill treatments per ring sentiment. Strokes reuse the fill color at
// reduced opacity so band edges read without dominating the basemap.
var ringStyles = map[string]ParcelStyle{
	SentimentOppose:  {FillColor: "DC2626", FillOpacity: 0.25, StrokeColor: "DC2626", StrokeOpacity: 0.6, StrokeWidth: 1},
	SentimentSupport: {FillColor: "16A34A", FillOpacity: 0.20, StrokeColor: "16A34A", StrokeOpacity: 0.6, StrokeWidth: 1},
	SentimentMixed:   {FillColor: "F59E0B", FillOpacity: 0.20, StrokeColor: "F59E0B", StrokeOpacity: 0.6, StrokeWidth: 1},
	SentimentNeutral: {FillColor: "94A3B8", FillOpacity: 0.15, StrokeColor: "94A3B8", StrokeOpacity: 0.6, StrokeWidth: 1},
	SentimentNoData:  {FillColor: "94A3B8", FillOpacity: 0.10, StrokeColor: "94A3B8", StrokeOpacity: 0.6, StrokeWidth: 1},
}

// The target polygon sits on top of the rings with a slightly lower fill
// opacity than on the detail map so the band color shows through.
var ringTargetStyle = ParcelStyle{
	FillColor:     "FFD700",
	FillOpacity:   0.55,
	StrokeColor:   "B8860B",
	StrokeOpacity: 1.0,
	StrokeWidth:   3,
}

// classifyRing reduces a ring's stance counts to one sentiment. A single
// stance dominates when it exceeds 40% of the ring's population.
func classifyRing(oppose, support, neutral, total int) string {
	if total == 0 {
		return SentimentNoData
	}
	switch {
	case float64(oppose)/float64(total) > 0.4:
		return SentimentOppose
	case float64(support)/float64(total) > 0.4:
		return SentimentSupport
	case float64(neutral)/float64(total) > 0.4:
		return SentimentNeutral
	default:
		return SentimentMixed
	}
}

// computeRingBoundaries returns 4 boundary values [0, b1, b2, b3]
// defining 3 rings. A compact neighborhood (max distance at most half a
// mile) splits into equal-width bands; a spread one splits at the 33rd
// and 67th percentiles with a 0.1 mi minimum band width.
func computeRingBoundaries(distances []float64) []float64 {
	if len(distances) == 0 {
		return []float64{0, 0.25, 0.5, 0.75}
	}

	maxD := distances[0]
	for _, d := range distances[1:] {
		if d > maxD {
			maxD = d
		}
	}

	if maxD <= 0.5 {
		band := maxD / 3.0
		return []float64{0, roundTo(band, 4), roundTo(band*2, 4), roundTo(maxD, 4)}
	}

	sorted := append([]float64(nil), distances...)
	sort.Float64s(sorted)
	n := len(sorted)
	p33 := sorted[intMax(0, int(float64(n)*0.33)-1)]
	p67 := sorted[intMax(0, int(float64(n)*0.67)-1)]

	const minWidth = 0.1
	b1 := math.Max(p33, minWidth)
	b2 := math.Max(p67, b1+minWidth)
	b3 := math.Max(maxD, b2+minWidth)

	return []float64{0, roundTo(b1, 4), roundTo(b2, 4), roundTo(b3, 4)}
}

func intMax(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// RingGenerator produces a concentric-ring sentiment map. No individual
// neighbor parcels are rendered, which keeps owners from being
// re-identified through county GIS lookups.
type RingGenerator struct {
	target     *TargetParcel
	profiles   []*OwnerProfile
	rawParcels []*geojson.Feature
	client     *MapboxClient
	engine     GeometryEngine
	outputDir  string
	opts       RenderOptions
	style      string
}

func NewRingGenerator(target *TargetParcel, profiles []*OwnerProfile, rawParcels []*geojson.Feature, client *MapboxClient, engine GeometryEngine, outputDir, style string) *RingGenerator {
	return &RingGenerator{
		target:     target,
		profiles:   profiles,
		rawParcels: rawParcels,
		client:     client,
		engine:     engine,
		outputDir:  outputDir,
		style:      style,
		opts: RenderOptions{
			Width:    800,
			Height:   450,
			Padding:  50,
			Retina:   true,
			Strategy: StrategyGeoJSON,
		},
	}
}

// pinGeometryLookup maps normalized PINs to parcel geometries.
func (g *RingGenerator) pinGeometryLookup() map[string]orb.Geometry {
	lookup := make(map[string]orb.Geometry)
	for _, parcel := range g.rawParcels {
		pin := extractPIN(parcel.Properties)
		if pin == "" || parcel.Geometry == nil {
			continue
		}
		lookup[normalizePIN(pin)] = parcel.Geometry
	}
	return lookup
}

// neighborDistance is one profile's distance from the target centroid.
type neighborDistance struct {
	profile *OwnerProfile
	miles   float64
}

// computeDistances finds each profile's closest parcel. Profiles with no
// resolvable geometry are omitted, not errors.
func (g *RingGenerator) computeDistances(centerLon, centerLat float64) []neighborDistance {
	lookup := g.pinGeometryLookup()

	var out []neighborDistance
	for _, profile := range g.profiles {
		best := -1.0
		for _, pin := range profile.PINs {
			geom, ok := lookup[normalizePIN(pin)]
			if !ok {
				continue
			}
			centroid, ok := g.engine.Centroid(geom)
			if !ok {
				continue
			}
			d := haversineMiles(centerLon, centerLat, centroid.Lon(), centroid.Lat())
			if best < 0 || d < best {
				best = d
			}
		}
		if best >= 0 {
			out = append(out, neighborDistance{profile: profile, miles: best})
		}
	}
	return out
}

// buildRingStats bins neighbors into three distance bands and aggregates
// stance counts plus the influence cross-tabulation per band.
func buildRingStats(neighbors []neighborDistance, boundaries []float64) []RingStat {
	bins := map[int][]*OwnerProfile{1: nil, 2: nil, 3: nil}
	for _, n := range neighbors {
		switch {
		case n.miles <= boundaries[1]:
			bins[1] = append(bins[1], n.profile)
		case n.miles <= boundaries[2]:
			bins[2] = append(bins[2], n.profile)
		default:
			bins[3] = append(bins[3], n.profile)
		}
	}

	stanceOf := func(p *OwnerProfile) string {
		s := strings.ToLower(p.NotedStance)
		switch s {
		case StanceOppose, StanceSupport, StanceNeutral:
			return s
		default:
			return StanceUnknown
		}
	}

	stats := make([]RingStat, 0, 3)
	for ringNum := 1; ringNum <= 3; ringNum++ {
		inRing := bins[ringNum]

		var oppose, support, neutral int
		for _, p := range inRing {
			switch stanceOf(p) {
			case StanceOppose:
				oppose++
			case StanceSupport:
				support++
			case StanceNeutral:
				neutral++
			}
		}
		unknown := len(inRing) - oppose - support - neutral

		crossTab := func(influence, stance string) int {
			count := 0
			for _, p := range inRing {
				if strings.EqualFold(p.CommunityInfluence, influence) && stanceOf(p) == stance {
					count++
				}
			}
			return count
		}

		stats = append(stats, RingStat{
			Ring:          ringNum,
			InnerMi:       roundTo(boundaries[ringNum-1], 2),
			OuterMi:       roundTo(boundaries[ringNum], 2),
			Count:         len(inRing),
			Oppose:        oppose,
			Support:       support,
			Neutral:       neutral,
			Unknown:       unknown,
			Sentiment:     classifyRing(oppose, support, neutral, len(inRing)),
			HighOppose:    crossTab(InfluenceHigh, StanceOppose),
			HighSupport:   crossTab(InfluenceHigh, StanceSupport),
			HighNeutral:   crossTab(InfluenceHigh, StanceNeutral),
			HighUnknown:   crossTab(InfluenceHigh, StanceUnknown),
			MediumOppose:  crossTab(InfluenceMedium, StanceOppose),
			MediumSupport: crossTab(InfluenceMedium, StanceSupport),
			MediumNeutral: crossTab(InfluenceMedium, StanceNeutral),
			MediumUnknown: crossTab(InfluenceMedium, StanceUnknown),
		})
	}
	return stats
}

// ringFeature builds the band polygon for one ring, as a donut with an
// inner hole when the band does not start at the center. Hole rings are
// wound opposite the outer ring per the GeoJSON convention.
func ringFeature(centerLon, centerLat float64, stat RingStat) MapFeature {
	outer := circlePolygon(centerLon, centerLat, stat.OuterMi, ringCirclePoints)

	var polygon orb.Polygon
	if stat.InnerMi > 0 {
		inner := circlePolygon(centerLon, centerLat, stat.InnerMi, ringCirclePoints)
		reversed := make(orb.Ring, len(inner))
		for i, pt := range inner {
			reversed[len(inner)-1-i] = pt
		}
		polygon = orb.Polygon{outer, reversed}
	} else {
		polygon = orb.Polygon{outer}
	}

	return MapFeature{
		Geometry: roundGeometry(polygon, simplifyPrecision),
		Style:    ringStyles[stat.Sentiment],
	}
}

// Generate renders the ring map image and writes the ring-stats sidecar.
func (g *RingGenerator) Generate(ctx context.Context, runID string) RingMapResult {
	logger := slog.With("run_id", runID)
	logger.Info("generating sentiment ring map", "profiles", len(g.profiles))

	if g.target == nil || g.target.Geometry == nil {
		return RingMapResult{
			Metadata: map[string]any{"error": "target parcel has no geometry"},
		}
	}

	center, ok := g.engine.Centroid(g.target.Geometry.Geometry())
	if !ok {
		return RingMapResult{
			Metadata: map[string]any{"error": "target parcel geometry has no resolvable centroid"},
		}
	}
	centerLon, centerLat := center.Lon(), center.Lat()

	neighbors := g.computeDistances(centerLon, centerLat)
	logger.Info("computed neighbor distances", "mapped", len(neighbors), "total", len(g.profiles))

	distances := make([]float64, 0, len(neighbors))
	for _, n := range neighbors {
		distances = append(distances, n.miles)
	}
	boundaries := computeRingBoundaries(distances)
	stats := buildRingStats(neighbors, boundaries)

	// Outermost ring first so inner rings layer on top.
	features := make([]MapFeature, 0, 4)
	for i := len(stats) - 1; i >= 0; i-- {
		features = append(features, ringFeature(centerLon, centerLat, stats[i]))
	}
	features = append(features, MapFeature{
		Geometry: roundGeometry(g.target.Geometry.Geometry(), simplifyPrecision),
		Style:    ringTargetStyle,
		IsTarget: true,
		PIN:      g.target.PIN,
	})

	markerOverlay := fmt.Sprintf("pin-l-t+%s(%.6f,%.6f)", markerColorTarget, centerLon, centerLat)

	imagePath := filepath.Join(g.outputDir, runID+"_ring_map.png")
	mapResult := g.client.GenerateStaticMap(ctx, features, markerOverlay, g.opts, imagePath)

	metadata := map[string]any{
		"run_id":                 runID,
		"generated_at":           time.Now().Format(time.RFC3339),
		"center_lon":             centerLon,
		"center_lat":             centerLat,
		"boundaries_mi":          boundaries,
		"total_neighbors_mapped": len(neighbors),
		"total_neighbors":        len(g.profiles),
		"strategy_used":          mapResult.Strategy,
		"url_length":             mapResult.URLLength,
		"settings": RenderSettings{
			Width:   g.opts.Width,
			Height:  g.opts.Height,
			Padding: g.opts.Padding,
			Style:   g.style,
			Retina:  g.opts.Retina,
		},
	}
	if mapResult.ErrorMessage != "" {
		metadata["error"] = mapResult.ErrorMessage
	}

	metaPath := filepath.Join(g.outputDir, runID+"_ring_metadata.json")
	sidecar := map[string]any{
		"ring_stats": stats,
		"metadata":   metadata,
	}
	if err := writeJSONSidecar(metaPath, sidecar); err != nil {
		logger.Error("failed to write ring metadata", "path", metaPath, "error", err)
	}

	if mapResult.Success {
		logger.Info("sentiment ring map generated", "image", imagePath, "strategy", mapResult.Strategy)
	} else {
		logger.Error("sentiment ring map failed", "error", mapResult.ErrorMessage)
	}

	return RingMapResult{
		Success:   mapResult.Success,
		ImagePath: mapResult.ImagePath,
		RingStats: stats,
		Metadata:  metadata,
		MapResult: &mapResult,
	}
}
