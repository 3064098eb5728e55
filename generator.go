package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/paulmach/orb/geojson"
)

// Default render geometry for each map kind.
var (
	detailMapOptions    = RenderOptions{Width: 800, Height: 450, Padding: 50, Retina: true}
	thumbnailMapOptions = RenderOptions{Width: 400, Height: 300, Padding: 30, Retina: false}
	fullPageMapOptions  = RenderOptions{Width: 1920, Height: 1080, Padding: 80, Retina: true}
)

// MapGenerator renders report map images for one screening run. Detail
// maps label High and Medium influence owners only; full-page maps label
// every owner.
type MapGenerator struct {
	target     *TargetParcel
	rawParcels []*geojson.Feature
	profiles   []*OwnerProfile
	client     *MapboxClient
	engine     GeometryEngine
	outputDir  string
	style      string
}

func NewMapGenerator(target *TargetParcel, rawParcels []*geojson.Feature, profiles []*OwnerProfile, client *MapboxClient, engine GeometryEngine, outputDir, style string) *MapGenerator {
	return &MapGenerator{
		target:     target,
		rawParcels: rawParcels,
		profiles:   profiles,
		client:     client,
		engine:     engine,
		outputDir:  outputDir,
		style:      style,
	}
}

// GenerateDetailMap renders the report-body map plus a thumbnail and
// writes the metadata and legend sidecars.
func (g *MapGenerator) GenerateDetailMap(ctx context.Context, runID string) DetailMapResult {
	logger := slog.With("run_id", runID)
	logger.Info("starting detail map generation")

	builder := NewFeatureBuilder(g.target, g.rawParcels, g.profiles)
	features, stats := builder.BuildMapFeatures()
	logger.Info("built map features",
		"features", len(features),
		"highlighted", stats.Highlighted,
		"skipped_no_geometry", stats.SkippedNoGeometry)

	if len(features) == 0 {
		return DetailMapResult{
			Metadata: map[string]any{"error": "no features to render", "stats": stats},
		}
	}

	labels, legend := GenerateLabels(features, g.engine, false)
	logger.Info("generated labels", "labels", len(labels), "legend_entries", len(legend))

	markerOverlay := buildMarkerOverlay(labels)

	fullPath := filepath.Join(g.outputDir, runID+"_map_full.png")
	result := g.client.GenerateStaticMap(ctx, features, markerOverlay, detailMapOptions, fullPath)

	// Thumbnail reuses the same overlay at report-card size. Failures
	// here are logged, not fatal: the full image is the deliverable.
	var thumbPath string
	if result.Success {
		thumbPath = filepath.Join(g.outputDir, runID+"_map_thumb.png")
		thumbResult := g.client.GenerateStaticMap(ctx, features, markerOverlay, thumbnailMapOptions, thumbPath)
		if !thumbResult.Success {
			logger.Warn("thumbnail generation failed", "error", thumbResult.ErrorMessage)
			thumbPath = ""
		}
	}

	metadata := map[string]any{
		"run_id":           runID,
		"generated_at":     time.Now().Format(time.RFC3339),
		"stats":            stats,
		"strategy_used":    result.Strategy,
		"url_length":       result.URLLength,
		"parcels_rendered": result.ParcelsRendered,
		"labels_count":     len(labels),
		"bbox":             boundsEntry(g.engine, features),
		"settings": RenderSettings{
			Width:   detailMapOptions.Width,
			Height:  detailMapOptions.Height,
			Padding: detailMapOptions.Padding,
			Style:   g.style,
			Retina:  detailMapOptions.Retina,
		},
	}
	if result.ErrorMessage != "" {
		metadata["error"] = result.ErrorMessage
	}

	metadataPath := filepath.Join(g.outputDir, runID+"_map_metadata.json")
	if err := writeJSONSidecar(metadataPath, metadata); err != nil {
		logger.Error("failed to write map metadata", "path", metadataPath, "error", err)
	}

	legendPath := filepath.Join(g.outputDir, runID+"_map_legend.json")
	if err := writeJSONSidecar(legendPath, legend); err != nil {
		logger.Error("failed to write map legend", "path", legendPath, "error", err)
	}

	if result.Success {
		logger.Info("detail map generated", "image", fullPath, "strategy", result.Strategy)
	} else {
		logger.Error("detail map generation failed", "error", result.ErrorMessage)
	}

	return DetailMapResult{
		Success:       result.Success,
		ImagePath:     result.ImagePath,
		ThumbnailPath: thumbPath,
		Labels:        labels,
		Legend:        legend,
		Metadata:      metadata,
		MapResult:     &result,
	}
}

// GenerateFullPageMap renders the large map that labels every owner
// regardless of influence level.
func (g *MapGenerator) GenerateFullPageMap(ctx context.Context, runID string) FullPageMapResult {
	logger := slog.With("run_id", runID)
	logger.Info("starting full-page map generation")

	builder := NewFeatureBuilder(g.target, g.rawParcels, g.profiles)
	features, stats := builder.BuildMapFeatures()
	logger.Info("built map features", "features", len(features))

	if len(features) == 0 {
		return FullPageMapResult{
			Metadata: map[string]any{"error": "no features to render"},
		}
	}

	labels, _ := GenerateLabels(features, g.engine, true)
	logger.Info("generated labels", "labels", len(labels))

	markerOverlay := buildMarkerOverlay(labels)

	fullPagePath := filepath.Join(g.outputDir, runID+"_map_fullpage.png")
	result := g.client.GenerateStaticMap(ctx, features, markerOverlay, fullPageMapOptions, fullPagePath)

	metadata := map[string]any{
		"run_id":        runID,
		"generated_at":  time.Now().Format(time.RFC3339),
		"stats":         stats,
		"strategy_used": result.Strategy,
		"labels_count":  len(labels),
		"bbox":          boundsEntry(g.engine, features),
		"settings": RenderSettings{
			Width:   fullPageMapOptions.Width,
			Height:  fullPageMapOptions.Height,
			Padding: fullPageMapOptions.Padding,
			Style:   g.style,
			Retina:  fullPageMapOptions.Retina,
		},
	}

	if result.Success {
		logger.Info("full-page map generated", "image", fullPagePath, "strategy", result.Strategy)
	} else {
		logger.Error("full-page map generation failed", "error", result.ErrorMessage)
	}

	return FullPageMapResult{
		Success:   result.Success,
		ImagePath: result.ImagePath,
		Labels:    labels,
		Metadata:  metadata,
		MapResult: &result,
	}
}

// boundsEntry computes the rendered extent as [minLon, minLat, maxLon,
// maxLat] for the metadata sidecar. Nil when no feature has geometry.
func boundsEntry(engine GeometryEngine, features []MapFeature) []float64 {
	bound, ok := engine.Bounds(featureGeometries(features))
	if !ok {
		return nil
	}
	return []float64{bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1]}
}

func writeJSONSidecar(path string, payload any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sidecar: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write sidecar: %w", err)
	}
	return nil
}
