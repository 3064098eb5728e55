package main

import (
	"log/slog"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// MapFeature is one render-ready parcel: geometry joined to a resolved
// style and owner reference.
type MapFeature struct {
	Geometry   orb.Geometry
	Style      ParcelStyle
	Label      string
	Owner      *OwnerProfile
	PIN        string
	IsTarget   bool
	IsAdjacent bool
	Influence  string
	Stance     string
}

// Property keys under which upstream parcel feeds store the parcel number,
// in lookup priority order. Some feeds nest attributes under a "fields"
// object, others put them directly on properties.
var pinPropertyAliases = []string{"parcelnumb", "apn", "pin"}

// FeatureBuilder joins raw parcel geometries to owner profiles by
// normalized PIN and produces the styled feature list for one render call.
type FeatureBuilder struct {
	target   *TargetParcel
	profiles []*OwnerProfile

	pinToGeometry map[string]orb.Geometry
	pinToOwner    map[string]*OwnerProfile
}

// NewFeatureBuilder indexes the caller-supplied snapshots. Geometries are
// referenced, not copied; the inputs must not be mutated for the life of
// the builder.
func NewFeatureBuilder(target *TargetParcel, rawParcels []*geojson.Feature, profiles []*OwnerProfile) *FeatureBuilder {
	b := &FeatureBuilder{
		target:        target,
		profiles:      profiles,
		pinToGeometry: make(map[string]orb.Geometry),
		pinToOwner:    make(map[string]*OwnerProfile),
	}

	for _, parcel := range rawParcels {
		if parcel == nil || parcel.Geometry == nil {
			continue
		}
		pin := extractPIN(parcel.Properties)
		if pin == "" {
			continue
		}
		b.pinToGeometry[normalizePIN(pin)] = parcel.Geometry
	}

	for _, profile := range profiles {
		for _, pin := range profile.PINs {
			b.pinToOwner[normalizePIN(pin)] = profile
		}
	}

	return b
}

// extractPIN pulls a parcel number out of feature properties, trying the
// nested "fields" object first, then the top-level aliases.
func extractPIN(props geojson.Properties) string {
	if fields, ok := props["fields"].(map[string]interface{}); ok {
		for _, key := range pinPropertyAliases {
			if v, ok := fields[key].(string); ok && v != "" {
				return v
			}
		}
	}
	for _, key := range pinPropertyAliases {
		if v, ok := props[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// OwnerForPIN returns the profile owning a normalized PIN, if any.
func (b *FeatureBuilder) OwnerForPIN(pin string) *OwnerProfile {
	return b.pinToOwner[normalizePIN(pin)]
}

// shouldHighlight is the eligibility predicate for neighbor rendering:
// only owners with an assessed influence level are considered.
func shouldHighlight(profile *OwnerProfile) bool {
	switch profile.CommunityInfluence {
	case InfluenceHigh, InfluenceMedium, InfluenceLow:
		return true
	default:
		return false
	}
}

// BuildMapFeatures joins geometry to ownership and returns the features in
// draw order: neighbors ascending by influence rank, target last so it is
// never occluded. An empty feature list means there was nothing resolvable
// to render; that is a reported condition, not an error.
func (b *FeatureBuilder) BuildMapFeatures() ([]MapFeature, FeatureStats) {
	stats := FeatureStats{
		TotalOwners: len(b.profiles),
		ByInfluence: map[string]int{InfluenceHigh: 0, InfluenceMedium: 0, InfluenceLow: 0},
		ByStance:    map[string]int{StanceSupport: 0, StanceOppose: 0, StanceNeutral: 0},
	}

	processedPINs := make(map[string]bool)

	var targetFeature *MapFeature
	var targetPIN string
	if b.target != nil && b.target.Geometry != nil {
		targetPIN = normalizePIN(b.target.PIN)
		targetFeature = &MapFeature{
			Geometry: b.target.Geometry.Geometry(),
			Style:    styleTarget,
			Label:    "TARGET",
			PIN:      b.target.PIN,
			IsTarget: true,
		}
		stats.TargetIncluded = true
		// The target must never re-render as a neighbor even if it shows
		// up in the raw parcel feed.
		if targetPIN != "" {
			processedPINs[targetPIN] = true
		}
	}

	var neighbors []MapFeature
	for _, profile := range b.profiles {
		if !shouldHighlight(profile) {
			stats.SkippedNotHighlighted++
			continue
		}

		style, ok := resolveStyle(profile.CommunityInfluence, profile.NotedStance)
		if !ok {
			stats.SkippedNotHighlighted++
			continue
		}

		stats.Highlighted++
		if _, tracked := stats.ByInfluence[profile.CommunityInfluence]; tracked {
			stats.ByInfluence[profile.CommunityInfluence]++
		}
		if _, tracked := stats.ByStance[profile.NotedStance]; tracked {
			stats.ByStance[profile.NotedStance]++
		}
		if profile.IsAdjacent() {
			stats.AdjacentHighlighted++
		}

		for _, rawPIN := range profile.PINs {
			pin := normalizePIN(rawPIN)
			if pin == "" || processedPINs[pin] {
				// The same PIN can legitimately repeat for one owner
				// across parcel sources; render it once.
				continue
			}

			geometry, found := b.pinToGeometry[pin]
			if !found {
				stats.SkippedNoGeometry++
				continue
			}
			processedPINs[pin] = true

			neighbors = append(neighbors, MapFeature{
				Geometry:   geometry,
				Style:      style,
				Label:      profile.Name,
				Owner:      profile,
				PIN:        rawPIN,
				IsAdjacent: profile.IsAdjacent(),
				Influence:  profile.CommunityInfluence,
				Stance:     profile.NotedStance,
			})
		}
	}

	// Z-order: lowest influence drawn first, target always on top.
	sort.SliceStable(neighbors, func(i, j int) bool {
		return influenceRank(neighbors[i].Influence) < influenceRank(neighbors[j].Influence)
	})

	features := neighbors
	if targetFeature != nil {
		features = append(features, *targetFeature)
	}

	if len(features) == 0 {
		slog.Warn("no resolvable features to render",
			"owners", stats.TotalOwners,
			"skipped_no_geometry", stats.SkippedNoGeometry)
	}

	return features, stats
}

// featuresToGeoJSON converts features to GeoJSON with SimpleStyle
// properties plus the labeling attributes downstream passes need.
func featuresToGeoJSON(features []MapFeature) []*geojson.Feature {
	out := make([]*geojson.Feature, 0, len(features))

	for _, feat := range features {
		f := geojson.NewFeature(feat.Geometry)
		props := feat.Style.SimpleStyle()
		props["label"] = feat.Label
		props["is_target"] = feat.IsTarget
		props["is_adjacent"] = feat.IsAdjacent
		props["pin"] = feat.PIN
		if feat.Influence != "" {
			props["influence"] = feat.Influence
		}
		if feat.Stance != "" {
			props["stance"] = feat.Stance
		}
		f.Properties = props
		out = append(out, f)
	}

	return out
}

// featureGeometries extracts the geometry list for bounding-box work.
func featureGeometries(features []MapFeature) []orb.Geometry {
	geoms := make([]orb.Geometry, 0, len(features))
	for _, feat := range features {
		if feat.Geometry != nil {
			geoms = append(geoms, feat.Geometry)
		}
	}
	return geoms
}
