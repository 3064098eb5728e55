package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"
)

const (
	defaultMapboxBaseURL = "https://api.mapbox.com/styles/v1"

	// Hard limit most HTTP stacks enforce on a request line, and the
	// softer threshold below which full GeoJSON overlays are trusted to
	// survive proxies and signing.
	maxURLLength  = 8192
	safeURLLength = 6000

	// Douglas-Peucker tolerance (degrees) and coordinate precision used
	// by the simplified fallback strategy.
	simplifyTolerance = 0.0001
	simplifyPrecision = 5

	staticMapTimeout = 60 * time.Second
)

// Overlay encoding strategies, in degradation order.
const (
	StrategyGeoJSON    = "geojson"
	StrategySimplified = "simplified"
	StrategyPolyline   = "polyline"
	StrategyNone       = "none"
)

// RenderOptions controls the static image request. Strategy pins the
// overlay encoding instead of letting it degrade; ring maps force
// StrategyGeoJSON because polyline paths lose their fills.
type RenderOptions struct {
	Width    int
	Height   int
	Padding  int
	Retina   bool
	Strategy string
}

// MapboxClient fetches static map images from the Mapbox Static Images
// API. BaseURL is overridable for tests.
type MapboxClient struct {
	baseURL    string
	token      string
	style      string
	username   string
	httpClient *http.Client
	engine     GeometryEngine
}

func NewMapboxClient(cfg MapboxConfig, engine GeometryEngine) *MapboxClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultMapboxBaseURL
	}
	timeout := staticMapTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &MapboxClient{
		baseURL:  baseURL,
		token:    cfg.AccessToken,
		style:    cfg.Style,
		username: cfg.Username,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		engine: engine,
	}
}

// GenerateStaticMap renders features plus a marker overlay to a PNG at
// outputPath. Overlay encoding degrades through three strategies until
// the request URL fits: full GeoJSON, simplified GeoJSON, then encoded
// polyline paths. When even polylines exceed the URL limit the result
// reports failure without making a request.
func (c *MapboxClient) GenerateStaticMap(ctx context.Context, features []MapFeature, markerOverlay string, opts RenderOptions, outputPath string) MapResult {
	logger := slog.With("output", outputPath, "features", len(features))

	overlay, strategy, urlLen := c.selectOverlay(features, markerOverlay, opts)
	if strategy == StrategyNone {
		logger.Warn("no overlay strategy fits the URL limit", "url_length", urlLen)
		return MapResult{
			Strategy:     StrategyNone,
			URLLength:    urlLen,
			ErrorMessage: fmt.Sprintf("overlay too large for static map URL even as polylines (%d chars). Consider reducing number of parcels", urlLen),
		}
	}

	requestURL := c.buildURL(overlay, opts)
	logger.Info("fetching static map", "strategy", strategy, "url_length", len(requestURL))

	if err := c.fetchImage(ctx, requestURL, outputPath); err != nil {
		logger.Error("static map fetch failed", "strategy", strategy, "error", err)
		return MapResult{
			Strategy:     strategy,
			URLLength:    len(requestURL),
			ErrorMessage: err.Error(),
		}
	}

	return MapResult{
		Success:         true,
		ImagePath:       outputPath,
		ImageURL:        requestURL,
		Strategy:        strategy,
		ParcelsRendered: len(features),
		URLLength:       len(requestURL),
	}
}

// selectOverlay walks the degradation cascade and returns the first
// overlay whose built URL fits, the strategy that produced it, and the
// length of the URL it measured. On failure the length is that of the
// last attempted polyline URL. The JSON size estimate is diagnostic
// only; the built URL is the authority at every step.
func (c *MapboxClient) selectOverlay(features []MapFeature, markerOverlay string, opts RenderOptions) (string, string, int) {
	// Full-fidelity GeoJSON.
	full := featuresToGeoJSON(features)
	overlay := joinOverlays(geojsonOverlay(full), markerOverlay)
	urlLen := len(c.buildURL(overlay, opts))
	if opts.Strategy == StrategyGeoJSON {
		return overlay, StrategyGeoJSON, urlLen
	}
	slog.Debug("geojson overlay sizes",
		"estimated_url_length", estimateGeoJSONURLLength(full), "url_length", urlLen)
	if urlLen <= safeURLLength {
		return overlay, StrategyGeoJSON, urlLen
	}

	// Simplified GeoJSON.
	simplified := make([]*geojson.Feature, 0, len(full))
	for i, feat := range features {
		g := c.engine.Simplify(feat.Geometry, simplifyTolerance)
		g = roundGeometry(g, simplifyPrecision)
		f := geojson.NewFeature(g)
		f.Properties = full[i].Properties
		simplified = append(simplified, f)
	}
	overlay = joinOverlays(geojsonOverlay(simplified), markerOverlay)
	if urlLen = len(c.buildURL(overlay, opts)); urlLen <= safeURLLength {
		return overlay, StrategySimplified, urlLen
	}

	// Encoded polyline paths, boundaries only.
	paths := make([]string, 0, len(features))
	for _, feat := range features {
		encoded, err := geometryToPolyline(feat.Geometry)
		if err != nil {
			slog.Debug("skipping feature in polyline overlay", "pin", feat.PIN, "error", err)
			continue
		}
		paths = append(paths, fmt.Sprintf("path-%d+%s-%.2f(%s)",
			feat.Style.StrokeWidth, feat.Style.StrokeColor, feat.Style.StrokeOpacity, url.PathEscape(encoded)))
	}
	overlay = joinOverlays(strings.Join(paths, ","), markerOverlay)
	if urlLen = len(c.buildURL(overlay, opts)); urlLen <= maxURLLength {
		return overlay, StrategyPolyline, urlLen
	}

	return "", StrategyNone, urlLen
}

func (c *MapboxClient) buildURL(overlay string, opts RenderOptions) string {
	size := fmt.Sprintf("%dx%d", opts.Width, opts.Height)
	if opts.Retina {
		size += "@2x"
	}
	return fmt.Sprintf("%s/%s/%s/static/%s/auto/%s?padding=%d&access_token=%s",
		c.baseURL, c.username, c.style, overlay, size, opts.Padding, c.token)
}

func (c *MapboxClient) fetchImage(ctx context.Context, requestURL, outputPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return fmt.Errorf("request timed out after %s", c.httpClient.Timeout)
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return fmt.Errorf("static map request returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
		return fmt.Errorf("expected an image, got %q: %s", contentType, strings.TrimSpace(string(body)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read image body: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	return nil
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

// geojsonOverlay wraps a feature collection as a path-escaped geojson
// overlay segment.
func geojsonOverlay(features []*geojson.Feature) string {
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		fc.Append(f)
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return ""
	}
	return "geojson(" + url.PathEscape(string(data)) + ")"
}

func joinOverlays(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ",")
}
