package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/paulmach/orb/geojson"
)

// LoadTargetParcel reads the target parcel from a JSON file. The file is
// either a TargetParcel object or a bare GeoJSON Feature whose "pin"
// property carries the parcel number.
func LoadTargetParcel(path string) (*TargetParcel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read target parcel file: %w", err)
	}

	// A GeoJSON Feature also has a "geometry" key, so sniff the type
	// before falling back to the plain object form.
	var probe struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(data, &probe)
	if probe.Type == "Feature" {
		feature, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse target parcel %s: %w", path, err)
		}
		return &TargetParcel{
			PIN:      extractPIN(feature.Properties),
			Geometry: geojson.NewGeometry(feature.Geometry),
		}, nil
	}

	var target TargetParcel
	if err := json.Unmarshal(data, &target); err != nil {
		return nil, fmt.Errorf("failed to parse target parcel %s: %w", path, err)
	}
	if target.Geometry == nil {
		return nil, fmt.Errorf("target parcel %s has no geometry", path)
	}
	return &target, nil
}

// LoadRawParcels reads parcel features from a JSON file holding either a
// GeoJSON FeatureCollection or a bare array of Features.
func LoadRawParcels(path string) ([]*geojson.Feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parcels file: %w", err)
	}

	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil {
		slog.Debug("loaded parcel feature collection", "path", path, "features", len(fc.Features))
		return fc.Features, nil
	}

	var features []*geojson.Feature
	if err := json.Unmarshal(data, &features); err != nil {
		return nil, fmt.Errorf("failed to parse parcels %s: %w", path, err)
	}
	slog.Debug("loaded parcel feature array", "path", path, "features", len(features))
	return features, nil
}

// LoadOwnerProfiles reads owner profiles from a JSON file holding either
// a bare array or an object with a "profiles" key.
func LoadOwnerProfiles(path string) ([]*OwnerProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read owner profiles file: %w", err)
	}

	var profiles []*OwnerProfile
	if err := json.Unmarshal(data, &profiles); err == nil {
		return profiles, nil
	}

	var wrapper struct {
		Profiles []*OwnerProfile `json:"profiles"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil || wrapper.Profiles == nil {
		return nil, fmt.Errorf("failed to parse owner profiles %s", path)
	}
	return wrapper.Profiles, nil
}
