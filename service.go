package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/paulmach/orb/geojson"
)

// RenderService orchestrates map generation runs
type RenderService struct {
	s3     *S3Client
	config *Config
	engine GeometryEngine
}

// NewRenderService creates a new render service
func NewRenderService(s3 *S3Client, config *Config) *RenderService {
	return &RenderService{
		s3:     s3,
		config: config,
		engine: NewGeometryEngine(),
	}
}

// RenderJob describes one map generation run
type RenderJob struct {
	RunID       string
	TargetPath  string
	ParcelsPath string
	OwnersPath  string
}

// JobOptions controls which maps a run produces and whether outputs are
// published
type JobOptions struct {
	Detail     bool
	FullPage   bool
	Rings      bool
	SkipUpload bool
}

// loadInputs reads the three JSON snapshots a run needs.
func (s *RenderService) loadInputs(job *RenderJob) (*TargetParcel, []*geojson.Feature, []*OwnerProfile, error) {
	target, err := LoadTargetParcel(job.TargetPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load target parcel: %w", err)
	}

	parcels, err := LoadRawParcels(job.ParcelsPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load parcels: %w", err)
	}

	var profiles []*OwnerProfile
	if job.OwnersPath != "" {
		profiles, err = LoadOwnerProfiles(job.OwnersPath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to load owner profiles: %w", err)
		}
	}

	return target, parcels, profiles, nil
}

// ProcessJob runs the requested map generations for one run and uploads
// the outputs unless skipped. A provider-side render failure fails the
// job; upload problems with a succeeded render do too.
func (s *RenderService) ProcessJob(ctx context.Context, job *RenderJob, opts *JobOptions) error {
	logger := slog.With("run_id", job.RunID)

	// Phase 1: Load inputs
	logger.Info("loading run inputs",
		"target", job.TargetPath,
		"parcels", job.ParcelsPath,
		"owners", job.OwnersPath)
	target, parcels, profiles, err := s.loadInputs(job)
	if err != nil {
		return err
	}
	logger.Info("inputs loaded", "parcels", len(parcels), "profiles", len(profiles))

	if err := os.MkdirAll(s.config.Paths.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	client := NewMapboxClient(s.config.Mapbox, s.engine)

	// Phase 2: Detail map
	if opts.Detail {
		logger.Info("generating detail map")
		gen := NewMapGenerator(target, parcels, profiles, client, s.engine, s.config.Paths.OutputDir, s.config.Mapbox.Style)
		result := gen.GenerateDetailMap(ctx, job.RunID)
		if !result.Success {
			return fmt.Errorf("detail map generation failed: %v", result.Metadata["error"])
		}
	}

	// Phase 3: Full-page map
	if opts.FullPage {
		logger.Info("generating full-page map")
		gen := NewMapGenerator(target, parcels, profiles, client, s.engine, s.config.Paths.OutputDir, s.config.Mapbox.Style)
		result := gen.GenerateFullPageMap(ctx, job.RunID)
		if !result.Success {
			return fmt.Errorf("full-page map generation failed: %v", result.Metadata["error"])
		}
	}

	// Phase 4: Sentiment ring map
	if opts.Rings {
		logger.Info("generating sentiment ring map")
		gen := NewRingGenerator(target, profiles, parcels, client, s.engine, s.config.Paths.OutputDir, s.config.Mapbox.Style)
		result := gen.Generate(ctx, job.RunID)
		if !result.Success {
			return fmt.Errorf("ring map generation failed: %v", result.Metadata["error"])
		}
	}

	// Phase 5: Upload outputs (unless skipped)
	if !opts.SkipUpload {
		if s.s3 == nil {
			logger.Info("no S3 client configured, outputs saved locally", "output_dir", s.config.Paths.OutputDir)
			return nil
		}
		logger.Info("uploading run outputs")
		uploadedBytes, err := s.s3.UploadRunFiles(ctx, s.config.Paths.OutputDir, job.RunID)
		if err != nil {
			return fmt.Errorf("failed to upload run outputs: %w", err)
		}
		logger.Info("upload completed", "uploaded_bytes", uploadedBytes)
	} else {
		logger.Info("skipping upload, outputs saved locally", "output_dir", s.config.Paths.OutputDir)
	}

	logger.Info("run processing complete")
	return nil
}
