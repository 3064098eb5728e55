package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Display text is capped at 8 characters so markers stay readable at
// report image sizes.
const maxLabelLength = 8

// Markers closer than this (degrees, ~90 m at mid-latitudes) are treated
// as overlapping and pushed apart by markerOffsetDeg (~67 m).
const (
	markerOverlapThresholdDeg = 0.0008
	markerOffsetDeg           = 0.0006
)

// ParcelLabel is a numbered marker placed at a parcel centroid.
type ParcelLabel struct {
	Text         string  `json:"text"`
	FullName     string  `json:"full_name"`
	Lon          float64 `json:"lon"`
	Lat          float64 `json:"lat"`
	MarkerNumber int     `json:"marker_number"`
	MarkerChar   string  `json:"marker_char"`
	Color        string  `json:"color"`
	IsTarget     bool    `json:"is_target"`
	IsAdjacent   bool    `json:"is_adjacent"`
	Influence    string  `json:"influence,omitempty"`
	Stance       string  `json:"stance,omitempty"`
	PIN          string  `json:"pin"`
}

// LegendEntry describes one labeled owner for the report legend.
type LegendEntry struct {
	MarkerChar string `json:"marker_char"`
	Text       string `json:"text"`
	FullName   string `json:"full_name"`
	Color      string `json:"color"`
	Influence  string `json:"influence,omitempty"`
	Stance     string `json:"stance,omitempty"`
	IsAdjacent bool   `json:"is_adjacent"`
	IsTarget   bool   `json:"is_target"`
}

// labelRun is the per-call generation context. A fresh one is built for
// every call so marker numbering never leaks between renders.
type labelRun struct {
	nextNumber   int
	ownerNumbers map[string]int
	ownerOrder   []*OwnerProfile
}

func newLabelRun() *labelRun {
	return &labelRun{
		nextNumber:   1,
		ownerNumbers: make(map[string]int),
	}
}

// assign gives an owner name its marker number, allocating the next
// sequential number the first time the name is seen. Numbers are per
// owner, not per PIN: all parcels of one owner share one number.
func (r *labelRun) assign(owner *OwnerProfile) int {
	if n, ok := r.ownerNumbers[owner.Name]; ok {
		return n
	}
	n := r.nextNumber
	r.nextNumber++
	r.ownerNumbers[owner.Name] = n
	r.ownerOrder = append(r.ownerOrder, owner)
	return n
}

// GenerateLabels produces markers and a legend for a feature list. The
// detail map passes includeLowInfluence=false so Low-influence owners keep
// their polygon outline but get no numbered pin; the full-page map passes
// true and labels every influence level.
func GenerateLabels(features []MapFeature, engine GeometryEngine, includeLowInfluence bool) ([]ParcelLabel, []LegendEntry) {
	run := newLabelRun()

	eligible := func(owner *OwnerProfile) bool {
		if owner == nil {
			return false
		}
		return includeLowInfluence || owner.CommunityInfluence != InfluenceLow
	}

	// First pass: number owners in feature input order.
	for _, feat := range features {
		if feat.IsTarget || !eligible(feat.Owner) {
			continue
		}
		run.assign(feat.Owner)
	}

	// Second pass: place one label per feature at its centroid.
	var labels []ParcelLabel
	for _, feat := range features {
		if feat.Geometry == nil {
			continue
		}

		centroid, ok := engine.Centroid(feat.Geometry)
		if !ok {
			continue
		}

		if feat.IsTarget {
			labels = append(labels, ParcelLabel{
				Text:       "TARGET",
				FullName:   "Target Site",
				Lon:        centroid.Lon(),
				Lat:        centroid.Lat(),
				MarkerChar: markerChar(0),
				Color:      markerColorTarget,
				IsTarget:   true,
				PIN:        feat.PIN,
			})
			continue
		}

		if !eligible(feat.Owner) {
			continue
		}

		number := run.ownerNumbers[feat.Owner.Name]
		labels = append(labels, ParcelLabel{
			Text:         displayText(feat.Owner, feat.PIN),
			FullName:     feat.Owner.Name,
			Lon:          centroid.Lon(),
			Lat:          centroid.Lat(),
			MarkerNumber: number,
			MarkerChar:   markerChar(number),
			Color:        markerColor(feat.Owner.CommunityInfluence, feat.Owner.NotedStance),
			IsAdjacent:   feat.IsAdjacent,
			Influence:    feat.Owner.CommunityInfluence,
			Stance:       feat.Owner.NotedStance,
			PIN:          feat.PIN,
		})
	}

	// Legend: one entry per unique labeled owner, in assignment order.
	legend := make([]LegendEntry, 0, len(run.ownerOrder))
	for _, owner := range run.ownerOrder {
		number := run.ownerNumbers[owner.Name]
		legend = append(legend, LegendEntry{
			MarkerChar: strings.ToUpper(markerChar(number)),
			Text:       displayText(owner, ""),
			FullName:   owner.Name,
			Color:      markerColor(owner.CommunityInfluence, owner.NotedStance),
			Influence:  owner.CommunityInfluence,
			Stance:     owner.NotedStance,
			IsAdjacent: owner.IsAdjacent(),
		})
	}

	return labels, legend
}

// markerChar maps a marker number to the single character the provider's
// pin overlay accepts: 0 is the target "t", 1-9 are digits, 10-35 map to
// a-z. Beyond 35 distinct owners the mapping wraps to number mod 10 and
// characters can collide; that ceiling is accepted, not extended.
func markerChar(number int) string {
	switch {
	case number == 0:
		return "t"
	case number <= 9:
		return strconv.Itoa(number)
	case number <= 35:
		return string(rune('a' + number - 10))
	default:
		return strconv.Itoa(number % 10)
	}
}

// displayText derives the short marker text for an owner: residents get
// their last name, organizations their leading word, and unowned parcels
// the tail of the PIN.
func displayText(owner *OwnerProfile, pin string) string {
	if owner == nil {
		return pinTail(pin)
	}
	if owner.EntityCategory == "Resident" {
		return extractLastName(owner.Name)
	}
	return abbreviateOrg(owner.Name)
}

var nameSuffixes = []string{" JR", " SR", " II", " III", " IV"}

// extractLastName pulls a surname out of "LAST, FIRST" or "FIRST LAST"
// forms, dropping generational suffixes.
func extractLastName(name string) string {
	if name == "" {
		return "UNKNOWN"
	}

	for _, suffix := range nameSuffixes {
		name = strings.ReplaceAll(name, suffix, "")
		name = strings.ReplaceAll(name, strings.ToLower(suffix), "")
	}

	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "UNKNOWN"
	}

	if strings.Contains(name, ",") {
		return truncateLabel(strings.ToUpper(strings.ReplaceAll(parts[0], ",", "")))
	}
	if len(parts) >= 2 {
		return truncateLabel(strings.ToUpper(parts[len(parts)-1]))
	}
	return truncateLabel(strings.ToUpper(parts[0]))
}

var orgSuffixes = []string{" LLC", " INC", " CORP", " LTD", " CO", " LP", " LLP"}

// abbreviateOrg reduces an organization name to its leading word after
// stripping common legal suffixes.
func abbreviateOrg(name string) string {
	if name == "" {
		return "ORG"
	}

	for _, suffix := range orgSuffixes {
		name = strings.ReplaceAll(name, suffix, "")
		name = strings.ReplaceAll(name, strings.ToLower(suffix), "")
	}

	parts := strings.Fields(strings.ToUpper(name))
	if len(parts) == 0 {
		return "ORG"
	}
	return truncateLabel(parts[0])
}

// pinTail keeps the last 6 non-separator characters of a PIN.
func pinTail(pin string) string {
	if pin == "" {
		return "N/A"
	}
	clean := strings.NewReplacer("-", "", ".", "", " ", "").Replace(pin)
	if len(clean) > 6 {
		return clean[len(clean)-6:]
	}
	return clean
}

func truncateLabel(s string) string {
	if len(s) > maxLabelLength {
		return s[:maxLabelLength]
	}
	return s
}

// resolveMarkerCollisions nudges overlapping marker positions apart. Each
// close pair is offset once along the vector connecting the two markers
// (or at 45 degrees when exactly coincident) in a single pass over all
// pairs. Three or more mutually close markers can keep a residual overlap;
// iterating to convergence is deliberately not attempted.
func resolveMarkerCollisions(labels []ParcelLabel) []ParcelLabel {
	adjusted := make([]ParcelLabel, len(labels))
	copy(adjusted, labels)

	for i := 0; i < len(adjusted); i++ {
		for j := i + 1; j < len(adjusted); j++ {
			dLon := adjusted[i].Lon - adjusted[j].Lon
			dLat := adjusted[i].Lat - adjusted[j].Lat
			dist := math.Sqrt(dLon*dLon + dLat*dLat)

			if dist >= markerOverlapThresholdDeg {
				continue
			}

			var dx, dy float64
			if dist > 0 {
				dx = dLon / dist
				dy = dLat / dist
			} else {
				dx, dy = 0.707, 0.707
			}

			adjusted[i].Lon += dx * markerOffsetDeg
			adjusted[i].Lat += dy * markerOffsetDeg
			adjusted[j].Lon -= dx * markerOffsetDeg
			adjusted[j].Lat -= dy * markerOffsetDeg
		}
	}

	return adjusted
}

// buildMarkerOverlay renders labels as the provider's comma-joined pin
// overlay, with overlapping markers pushed apart first.
func buildMarkerOverlay(labels []ParcelLabel) string {
	adjusted := resolveMarkerCollisions(labels)

	markers := make([]string, 0, len(adjusted))
	for _, label := range adjusted {
		markers = append(markers, fmt.Sprintf("pin-l-%s+%s(%.6f,%.6f)",
			label.MarkerChar, label.Color, label.Lon, label.Lat))
	}
	return strings.Join(markers, ",")
}
