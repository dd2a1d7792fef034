package geo

import (
	"encoding/json"
	"fmt"
)

// FeatureCollection is the subset of GeoJSON this service reads and serves.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

type Feature struct {
	Type       string         `json:"type"`
	ID         string         `json:"id,omitempty"`
	Geometry   *Geometry      `json:"geometry"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Geometry keeps coordinates as raw JSON until a caller asks for a concrete
// ring set; building documents carry geometry types we never interpret.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// PolygonRings decodes Polygon or MultiPolygon coordinates into a flat list
// of rings. Other geometry types return an error.
func (g *Geometry) PolygonRings() ([][][2]float64, error) {
	if g == nil {
		return nil, fmt.Errorf("nil geometry")
	}
	switch g.Type {
	case "Polygon":
		var rings [][][2]float64
		if err := json.Unmarshal(g.Coordinates, &rings); err != nil {
			return nil, fmt.Errorf("decode polygon coordinates: %w", err)
		}
		return rings, nil
	case "MultiPolygon":
		var polys [][][][2]float64
		if err := json.Unmarshal(g.Coordinates, &polys); err != nil {
			return nil, fmt.Errorf("decode multipolygon coordinates: %w", err)
		}
		var rings [][][2]float64
		for _, p := range polys {
			rings = append(rings, p...)
		}
		return rings, nil
	default:
		return nil, fmt.Errorf("geometry type %q has no polygon rings", g.Type)
	}
}

// VenueID extracts the venue identifier from a footprint feature. Footprints
// exported by different tools put it either on the feature id or in
// properties.venue_id.
func (f *Feature) VenueID() string {
	if f == nil {
		return ""
	}
	if f.ID != "" {
		return f.ID
	}
	if f.Properties != nil {
		if v, ok := f.Properties["venue_id"].(string); ok {
			return v
		}
	}
	return ""
}

// FindFootprint returns the footprint feature for venueID, or nil.
func (fc *FeatureCollection) FindFootprint(venueID string) *Feature {
	if fc == nil || venueID == "" {
		return nil
	}
	for i := range fc.Features {
		if fc.Features[i].VenueID() == venueID {
			return &fc.Features[i]
		}
	}
	return nil
}
