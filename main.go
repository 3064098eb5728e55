package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
)

func main() {
	// Parse flags
	configPath := flag.String("config", ".env", "Path to config file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	help := flag.Bool("help", false, "Show help message")
	flag.Parse()

	// Show help if requested or no arguments provided
	args := flag.Args()
	if *help || len(args) == 0 {
		showHelp()
		os.Exit(0)
	}

	command := args[0]

	// Setup logging
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	switch command {
	case "render":
		cmdRender(args[1:], configPath, &JobOptions{Detail: true})
	case "fullpage":
		cmdRender(args[1:], configPath, &JobOptions{FullPage: true})
	case "rings":
		cmdRender(args[1:], configPath, &JobOptions{Rings: true})
	case "all":
		cmdRender(args[1:], configPath, &JobOptions{Detail: true, FullPage: true, Rings: true})
	case "upload":
		cmdUpload(args[1:], configPath)
	case "verify":
		cmdVerify(args[1:])
	default:
		slog.Error("unknown command", "command", command)
		showHelp()
		os.Exit(1)
	}
}

// cmdRender handles the map generation commands. The opts argument
// carries which maps the invoked command produces.
func cmdRender(args []string, configPath *string, opts *JobOptions) {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	targetPath := fs.String("target", "", "Path to target parcel JSON (required)")
	parcelsPath := fs.String("parcels", "", "Path to raw parcel FeatureCollection JSON (required)")
	ownersPath := fs.String("owners", "", "Path to owner profiles JSON")
	runID := fs.String("run-id", "", "Run identifier used in output filenames (default: random)")
	outputDir := fs.String("out", "", "Output directory (overrides OUTPUT_DIR)")
	skipUpload := fs.Bool("skip-upload", false, "Skip upload, keep outputs locally")
	fs.Parse(args)

	if *targetPath == "" || *parcelsPath == "" {
		slog.Error("both -target and -parcels are required")
		os.Exit(1)
	}

	// Load configuration
	cfg, err := LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *outputDir != "" {
		cfg.Paths.OutputDir = *outputDir
	}

	opts.SkipUpload = *skipUpload

	// Initialize S3 client (optional, only needed for upload)
	var s3Client *S3Client
	if !opts.SkipUpload && cfg.S3.Endpoint != "" {
		s3Client, err = NewS3Client(cfg.S3)
		if err != nil {
			slog.Error("failed to initialize S3 client", "error", err)
			os.Exit(1)
		}
	}

	service := NewRenderService(s3Client, cfg)

	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	job := &RenderJob{
		RunID:       *runID,
		TargetPath:  *targetPath,
		ParcelsPath: *parcelsPath,
		OwnersPath:  *ownersPath,
	}
	if job.RunID == "" {
		job.RunID = uuid.NewString()
	}

	slog.Info("starting map generation",
		"run_id", job.RunID,
		"detail", opts.Detail,
		"fullpage", opts.FullPage,
		"rings", opts.Rings,
		"skip_upload", opts.SkipUpload)

	done := make(chan error, 1)
	go func() {
		done <- service.ProcessJob(ctx, job, opts)
	}()

	select {
	case err := <-done:
		if err != nil {
			slog.Error("map generation failed", "error", err)
			os.Exit(1)
		}
		slog.Info("map generation completed successfully", "run_id", job.RunID)
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
		<-done
		os.Exit(1)
	}
}

// cmdUpload publishes an existing run's outputs to object storage
func cmdUpload(args []string, configPath *string) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	outputDir := fs.String("out", "", "Output directory (overrides OUTPUT_DIR)")
	fs.Parse(reorderFlagsFirst(args))

	parsedArgs := fs.Args()
	if len(parsedArgs) == 0 {
		slog.Error("run id required")
		slog.Info("Usage: parcel-map-service upload [-out dir] <run_id>")
		os.Exit(1)
	}
	runID := parsedArgs[0]

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *outputDir != "" {
		cfg.Paths.OutputDir = *outputDir
	}

	s3Client, err := NewS3Client(cfg.S3)
	if err != nil {
		slog.Error("failed to initialize S3 client", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() {
		_, err := s3Client.UploadRunFiles(ctx, cfg.Paths.OutputDir, runID)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			slog.Error("upload failed", "error", err)
			os.Exit(1)
		}
		slog.Info("upload completed", "run_id", runID)
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
		<-done
		os.Exit(1)
	}
}

// cmdVerify handles output verification commands
func cmdVerify(args []string) {
	if len(args) == 0 {
		slog.Error("verify subcommand required: run")
		os.Exit(1)
	}

	subcommand := args[0]
	subArgs := args[1:]

	switch subcommand {
	case "run":
		cmdVerifyRun(subArgs)
	default:
		slog.Error("unknown verify subcommand", "subcommand", subcommand)
		slog.Info("available: run")
		os.Exit(1)
	}
}

func cmdVerifyRun(args []string) {
	fs := flag.NewFlagSet("verify run", flag.ExitOnError)
	fs.Parse(reorderFlagsFirst(args))

	parsedArgs := fs.Args()
	if len(parsedArgs) < 2 {
		slog.Error("output directory and run id required")
		slog.Info("Usage: parcel-map-service verify run <dir> <run_id>")
		os.Exit(1)
	}
	dir := parsedArgs[0]
	runID := parsedArgs[1]

	report, err := VerifyRunOutputs(dir, runID)
	if err != nil {
		slog.Error("verification failed", "error", err)
		os.Exit(1)
	}

	report.Print()

	if !report.OK {
		os.Exit(1)
	}
}

// reorderFlagsFirst moves flag arguments before positional arguments so Go's
// flag package parses them correctly. Go's flag stops at the first non-flag arg.
// This allows "upload <run_id> -out dir" to work like "-out dir <run_id>".
func reorderFlagsFirst(args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		if strings.HasPrefix(args[i], "-") {
			flags = append(flags, args[i])
			// If flag uses "--key value" form (not "--key=value"), grab the next arg as the value
			if !strings.Contains(args[i], "=") && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		} else {
			positional = append(positional, args[i])
		}
	}
	return append(flags, positional...)
}

func showHelp() {
	help := `Parcel Map Service - Generate parcel screening map images

Usage:
  parcel-map-service [global options] <command> [command options] [arguments]

Global Options:
  -config string        Path to .env configuration file (default ".env")
  -debug                Enable debug logging
  -help                 Show this help message

Commands:
  render                Generate the detail map (full image + thumbnail + sidecars)
  fullpage              Generate the full-page map (all influence levels labeled)
  rings                 Generate the privacy-preserving sentiment ring map
  all                   Generate every map kind in one run
  upload                Upload an existing run's outputs to object storage
  verify                Verify a run's output files

Render / Fullpage / Rings / All Commands:
  Usage: parcel-map-service <command> [options]

  Options:
    -target string        Path to target parcel JSON (required)
    -parcels string       Path to raw parcel FeatureCollection JSON (required)
    -owners string        Path to owner profiles JSON
    -run-id string        Run identifier used in output filenames (default: random)
    -out string           Output directory (overrides OUTPUT_DIR)
    -skip-upload          Skip upload, keep outputs locally

  Outputs (named by run id, in the output directory):
    <run_id>_map_full.png        Detail map image
    <run_id>_map_thumb.png       Detail map thumbnail
    <run_id>_map_metadata.json   Detail map stats and render settings
    <run_id>_map_legend.json     Marker legend for report templates
    <run_id>_map_fullpage.png    Full-page map image
    <run_id>_ring_map.png        Sentiment ring map image
    <run_id>_ring_metadata.json  Ring statistics and metadata

Upload Command:
  Usage: parcel-map-service upload [options] <run_id>

  Options:
    -out string           Output directory holding the run files (overrides OUTPUT_DIR)

Verify Command:
  Usage: parcel-map-service verify run <dir> <run_id>

  Description:
    Checks that the run's expected output files exist, images are PNG,
    and JSON sidecars parse. Exits non-zero when the check fails.

Configuration (.env / .env.local):
  MAPBOX_ACCESS_TOKEN   Static Images API token (required)
  MAPBOX_STYLE          Style id (default satellite-streets-v12)
  MAPBOX_USERNAME       Style owner (default mapbox)
  OUTPUT_DIR            Output directory for images and sidecars
  S3_ENDPOINT           S3-compatible endpoint for uploads (optional)
  S3_ACCESS_KEY_ID      Access key for uploads
  S3_SECRET_ACCESS_KEY  Secret key for uploads
  S3_BUCKET             Bucket name (default parcel-maps)
  S3_BUCKET_PATH        Key prefix inside the bucket (default maps)
`
	fmt.Println(help)
}
