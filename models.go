package main

import "github.com/paulmach/orb/geojson"

// Influence levels assigned to owner profiles by upstream research.
const (
	InfluenceHigh    = "High"
	InfluenceMedium  = "Medium"
	InfluenceLow     = "Low"
	InfluenceUnknown = "Unknown"
)

// Stance values assigned to owner profiles by upstream research.
const (
	StanceSupport = "support"
	StanceOppose  = "oppose"
	StanceNeutral = "neutral"
	StanceUnknown = "unknown"
)

// OwnerProfile is an enriched ownership record supplied by the screening
// pipeline. One profile may own several parcels; every PIN belongs to at
// most one profile in a given run.
type OwnerProfile struct {
	Name               string   `json:"name"`
	EntityCategory     string   `json:"entity_category"` // "Resident" or "Organization"
	CommunityInfluence string   `json:"community_influence"`
	NotedStance        string   `json:"noted_stance"`
	PINs               []string `json:"pins"`
	OwnsAdjacentParcel string   `json:"owns_adjacent_parcel"` // "Yes" or "No"
}

// IsAdjacent reports whether the profile owns a parcel adjacent to the target.
func (p *OwnerProfile) IsAdjacent() bool {
	return p.OwnsAdjacentParcel == "Yes"
}

// TargetParcel is the parcel under evaluation, with its cadastral geometry.
type TargetParcel struct {
	PIN      string            `json:"pin"`
	Geometry *geojson.Geometry `json:"geometry"`
	Lat      float64           `json:"lat"`
	Lon      float64           `json:"lon"`
}

// FeatureStats accumulates counts while building map features.
type FeatureStats struct {
	TotalOwners           int            `json:"total_owners"`
	Highlighted           int            `json:"highlighted"`
	SkippedNoGeometry     int            `json:"skipped_no_geometry"`
	SkippedNotHighlighted int            `json:"skipped_not_highlighted"`
	ByInfluence           map[string]int `json:"by_influence"`
	ByStance              map[string]int `json:"by_stance"`
	AdjacentHighlighted   int            `json:"adjacent_highlighted"`
	TargetIncluded        bool           `json:"target_included"`
}

// RenderSettings records the image parameters a map was generated with.
type RenderSettings struct {
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Padding int    `json:"padding"`
	Style   string `json:"style"`
	Retina  bool   `json:"retina"`
}

// MapResult is the outcome of a single static-map fetch attempt. Provider
// failures are reported here rather than returned as errors so report
// pipelines can degrade gracefully.
type MapResult struct {
	Success         bool   `json:"success"`
	ImagePath       string `json:"image_path,omitempty"`
	ImageURL        string `json:"-"`
	Strategy        string `json:"strategy_used"` // "geojson", "simplified", "polyline", or "none"
	ErrorMessage    string `json:"error_message,omitempty"`
	ParcelsRendered int    `json:"parcels_rendered"`
	URLLength       int    `json:"url_length"`
}

// DetailMapResult is the complete outcome of a detail-map generation run.
type DetailMapResult struct {
	Success       bool
	ImagePath     string
	ThumbnailPath string
	Labels        []ParcelLabel
	Legend        []LegendEntry
	Metadata      map[string]any
	MapResult     *MapResult
}

// FullPageMapResult is the outcome of a full-page map generation run.
type FullPageMapResult struct {
	Success   bool
	ImagePath string
	Labels    []ParcelLabel
	Metadata  map[string]any
	MapResult *MapResult
}

// RingStat holds aggregate sentiment statistics for one distance ring.
type RingStat struct {
	Ring      int     `json:"ring"` // 1, 2, 3
	InnerMi   float64 `json:"inner_mi"`
	OuterMi   float64 `json:"outer_mi"`
	Count     int     `json:"count"`
	Oppose    int     `json:"oppose"`
	Support   int     `json:"support"`
	Neutral   int     `json:"neutral"`
	Unknown   int     `json:"unknown"`
	Sentiment string  `json:"sentiment"` // "oppose", "support", "mixed", "neutral", "no_data"

	// Influence x stance cross-tabulation for the High and Medium tiers.
	HighOppose    int `json:"high_oppose"`
	HighSupport   int `json:"high_support"`
	HighNeutral   int `json:"high_neutral"`
	HighUnknown   int `json:"high_unknown"`
	MediumOppose  int `json:"medium_oppose"`
	MediumSupport int `json:"medium_support"`
	MediumNeutral int `json:"medium_neutral"`
	MediumUnknown int `json:"medium_unknown"`
}

// RingMapResult is the outcome of a sentiment ring map generation run.
type RingMapResult struct {
	Success   bool
	ImagePath string
	RingStats []RingStat
	Metadata  map[string]any
	MapResult *MapResult
}
