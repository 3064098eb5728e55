package main

import (
	"fmt"

	"github.com/paulmach/orb/geojson"
)

// ParcelStyle is the visual treatment for one parcel polygon. Colors are
// hex without the leading '#'.
type ParcelStyle struct {
	FillColor     string
	FillOpacity   float64
	StrokeColor   string
	StrokeOpacity float64
	StrokeWidth   int
}

// SimpleStyle returns the style as GeoJSON SimpleStyle properties, the
// format the static-map provider reads from feature properties.
func (s ParcelStyle) SimpleStyle() geojson.Properties {
	return geojson.Properties{
		"fill":           fmt.Sprintf("#%s", s.FillColor),
		"fill-opacity":   s.FillOpacity,
		"stroke":         fmt.Sprintf("#%s", s.StrokeColor),
		"stroke-opacity": s.StrokeOpacity,
		"stroke-width":   s.StrokeWidth,
	}
}

var (
	styleTarget = ParcelStyle{
		FillColor:     "FFD700", // gold
		FillOpacity:   0.6,
		StrokeColor:   "B8860B",
		StrokeOpacity: 1.0,
		StrokeWidth:   3,
	}
	styleOppose = ParcelStyle{
		FillColor:     "8B0000", // dark red
		FillOpacity:   0.5,
		StrokeColor:   "4A0000",
		StrokeOpacity: 1.0,
		StrokeWidth:   2,
	}
	styleHighInfluence = ParcelStyle{
		FillColor:     "007BFF", // blue
		FillOpacity:   0.6,
		StrokeColor:   "007BFF",
		StrokeOpacity: 1.0,
		StrokeWidth:   2,
	}
	styleSupport = ParcelStyle{
		FillColor:     "228B22", // forest green
		FillOpacity:   0.4,
		StrokeColor:   "006400",
		StrokeOpacity: 1.0,
		StrokeWidth:   2,
	}
	styleMediumInfluence = ParcelStyle{
		FillColor:     "FF8C00", // dark orange
		FillOpacity:   0.4,
		StrokeColor:   "FF4500",
		StrokeOpacity: 1.0,
		StrokeWidth:   2,
	}
)

const (
	markerColorTarget  = "FFD700"
	markerColorDefault = "808080"
)

// resolveStyle maps an owner's influence and stance to a polygon style.
// The cascade is a fixed priority order, independent of which other
// attributes are set:
//
//  1. oppose stance (highest alert)
//  2. High influence
//  3. support stance
//  4. Medium influence
//  5. no style: the owner is not rendered as a highlighted parcel
func resolveStyle(influence, stance string) (ParcelStyle, bool) {
	switch {
	case stance == StanceOppose:
		return styleOppose, true
	case influence == InfluenceHigh:
		return styleHighInfluence, true
	case stance == StanceSupport:
		return styleSupport, true
	case influence == InfluenceMedium:
		return styleMediumInfluence, true
	default:
		return ParcelStyle{}, false
	}
}

// markerColor returns the pin color for an owner. Marker colors mirror the
// polygon fill colors so pins and parcels read as one unit.
func markerColor(influence, stance string) string {
	style, ok := resolveStyle(influence, stance)
	if !ok {
		return markerColorDefault
	}
	return style.FillColor
}

// influenceRank orders influence levels for z-ordering and marker
// assignment. Unset or unknown levels sort lowest.
func influenceRank(influence string) int {
	switch influence {
	case InfluenceLow:
		return 0
	case InfluenceMedium:
		return 1
	case InfluenceHigh:
		return 2
	default:
		return -1
	}
}
