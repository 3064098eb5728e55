package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Client wraps AWS S3 operations for R2
type S3Client struct {
	client     *s3.Client
	bucket     string
	bucketPath string
	publicBase string
	uploader   *manager.Uploader
}

// NewS3Client creates a new S3 client for Cloudflare R2
func NewS3Client(cfg S3Config) (*S3Client, error) {
	logger := slog.With("endpoint", cfg.Endpoint, "bucket", cfg.Bucket)
	logger.Info("initializing S3 client for R2")

	// Create custom resolver for R2 endpoint
	customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		if service == s3.ServiceID {
			return aws.Endpoint{
				URL:           cfg.Endpoint,
				SigningRegion: cfg.Region,
			}, nil
		}
		return aws.Endpoint{}, &smithy.GenericAPIError{Code: "UnknownEndpoint"}
	})

	// Custom HTTP client with connection pooling sized for the small
	// parallel uploads a map run produces
	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        16,
			MaxIdleConnsPerHost: 16,
			IdleConnTimeout:     90 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
		Timeout: 5 * time.Minute, // Overall request timeout
	}

	// Load AWS config
	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithHTTPClient(httpClient),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		config.WithRegion(cfg.Region),
		config.WithEndpointResolverWithOptions(customResolver),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Create S3 client
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	// Create uploader
	uploader := manager.NewUploader(s3Client)

	logger.Info("S3 client initialized successfully")

	return &S3Client{
		client:     s3Client,
		bucket:     cfg.Bucket,
		bucketPath: cfg.BucketPath,
		publicBase: cfg.PublicBaseURL,
		uploader:   uploader,
	}, nil
}

// UploadRunFiles uploads every output file belonging to a run (images
// plus JSON sidecars) under <bucketPath>/<runID>/ using parallel workers
func (s *S3Client) UploadRunFiles(ctx context.Context, outputDir, runID string) (int64, error) {
	logger := slog.With("output_dir", outputDir, "run_id", runID)
	logger.Info("starting run upload to R2")

	matches, err := filepath.Glob(filepath.Join(outputDir, runID+"_*"))
	if err != nil {
		return 0, fmt.Errorf("failed to scan output directory: %w", err)
	}
	if len(matches) == 0 {
		return 0, fmt.Errorf("no output files found for run %s in %s", runID, outputDir)
	}

	type fileToUpload struct {
		path  string
		s3Key string
		size  int64
	}

	var files []fileToUpload
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, fileToUpload{
			path:  path,
			s3Key: filepath.ToSlash(filepath.Join(s.bucketPath, runID, filepath.Base(path))),
			size:  info.Size(),
		})
	}

	logger.Info("found files to upload", "count", len(files))

	// Upload files in parallel using a small worker pool
	const numWorkers = 4
	var totalBytes int64
	var mu sync.Mutex
	var wg sync.WaitGroup

	workChan := make(chan fileToUpload, numWorkers)
	errChan := make(chan error, 1)
	done := make(chan struct{})
	var closeOnce sync.Once

	// abort records the first error and signals the feeder to stop, so a
	// failed worker never leaves the feeder blocked on workChan.
	abort := func(err error) {
		select {
		case errChan <- err:
		default:
		}
		closeOnce.Do(func() { close(done) })
	}

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for file := range workChan {
				size, err := s.UploadFile(ctx, file.path, file.s3Key)
				if err != nil {
					abort(err)
					return
				}

				if publicURL := s.GetPublicURL(file.s3Key); publicURL != "" {
					logger.Info("uploaded run file", "key", file.s3Key, "url", publicURL)
				}

				mu.Lock()
				totalBytes += size
				mu.Unlock()
			}
		}()
	}

	go func() {
		defer close(workChan)
		for _, file := range files {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case workChan <- file:
			}
		}
	}()

	wg.Wait()
	close(errChan)

	if err := <-errChan; err != nil {
		logger.Error("upload failed", "error", err)
		return 0, err
	}

	logger.Info("run upload completed", "total_files", len(files), "total_bytes", totalBytes)
	return totalBytes, nil
}

// UploadFile uploads a single file to S3
func (s *S3Client) UploadFile(ctx context.Context, filePath, s3Key string) (int64, error) {
	logger := slog.With("file_path", filePath, "s3_key", s3Key)
	logger.Debug("uploading file to R2")

	info, err := os.Stat(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to stat file %s: %w", filePath, err)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open file %s: %w", filePath, err)
	}
	defer file.Close()

	result, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s3Key),
		Body:   file,
		ACL:    types.ObjectCannedACLPublicRead,
	})

	if err != nil {
		logger.Error("upload failed", "error", err)
		return 0, fmt.Errorf("failed to upload file %s: %w", filePath, err)
	}

	logger.Debug("file uploaded", "location", result.Location)
	return info.Size(), nil
}

// GetPublicURL returns the public URL for an object
func (s *S3Client) GetPublicURL(s3Key string) string {
	if s.publicBase == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s", strings.TrimSuffix(s.publicBase, "/"), strings.TrimPrefix(s3Key, s.bucketPath+"/"))
}
