package interact

import (
	"fmt"

	"wayfinder/core-go/internal/engine"
	"wayfinder/core-go/internal/geo"
	"wayfinder/core-go/internal/mapdata"
)

// loadedBuilding is building geometry loaded into the engine plus its level
// index.
type loadedBuilding struct {
	venueID string
	levels  []geo.Level
	units   engine.SourceHandle
}

func (b *loadedBuilding) Levels() []geo.Level { return b.levels }

// loadedNetwork toggles the network source's visibility through the scene.
type loadedNetwork struct {
	scene  engine.Scene
	source engine.SourceHandle
}

func (n *loadedNetwork) SetVisible(visible bool) {
	n.scene.SetEntityVisible(n.source.Name(), visible)
}

func loadBuilding(scene engine.Scene, venueID string, bd *mapdata.BuildingData) (*loadedBuilding, error) {
	units, err := scene.LoadGeometrySource("building:"+venueID, &bd.Units, engine.SourceStyle{Extruded: true})
	if err != nil {
		return nil, fmt.Errorf("load building source for %s: %w", venueID, err)
	}
	return &loadedBuilding{
		venueID: venueID,
		levels:  bd.BuildingLevels(),
		units:   units,
	}, nil
}

func loadNetwork(scene engine.Scene, venueID string, fc *geo.FeatureCollection) (*loadedNetwork, error) {
	src, err := scene.LoadGeometrySource("network:"+venueID, fc, engine.SourceStyle{StrokeWidth: 2})
	if err != nil {
		return nil, fmt.Errorf("load network source for %s: %w", venueID, err)
	}
	return &loadedNetwork{scene: scene, source: src}, nil
}
