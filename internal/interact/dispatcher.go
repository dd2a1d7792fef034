// Package interact turns raw screen picks into domain events and drives
// venue activation.
package interact

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"wayfinder/core-go/internal/engine"
	"wayfinder/core-go/internal/geo"
	"wayfinder/core-go/internal/mapdata"
	"wayfinder/core-go/internal/viewstate"
)

// Loader fetches venue data. *mapdata.Client satisfies this.
type Loader interface {
	FetchBuildingData(ctx context.Context, venueID string) (*mapdata.BuildingData, error)
	FetchNetworkData(ctx context.Context, venueID string) (*geo.FeatureCollection, error)
}

// Events is an optional listener for resolved clicks that are not venue
// activations.
type Events interface {
	EmptySpace()
	FeatureSelected(e engine.Entity, venueID string)
}

// Dispatcher resolves picks and activates venues. A global click-processing
// flag in the store is the re-entrancy guard: it is set before any fetch
// starts and cleared on the way out regardless of outcome, so overlapping
// clicks during an in-flight fetch are ignored rather than racing.
type Dispatcher struct {
	log     zerolog.Logger
	store   *viewstate.Store
	actions *viewstate.Actions
	loader  Loader

	mu     sync.Mutex
	events Events
}

func NewDispatcher(log zerolog.Logger, store *viewstate.Store, actions *viewstate.Actions, loader Loader) *Dispatcher {
	return &Dispatcher{log: log, store: store, actions: actions, loader: loader}
}

// SetEvents installs the optional click listener.
func (d *Dispatcher) SetEvents(ev Events) {
	d.mu.Lock()
	d.events = ev
	d.mu.Unlock()
}

// HandleClick resolves the pick under p and dispatches it. Returns true when
// the click was handled, false when the guard dropped it.
func (d *Dispatcher) HandleClick(ctx context.Context, p engine.ScreenPoint) bool {
	viewer := d.store.Viewer()
	if viewer == nil {
		d.log.Warn().Msg("click before viewer initialization, ignoring")
		return false
	}

	d.mu.Lock()
	if d.store.ClickProcessing() {
		d.mu.Unlock()
		d.log.Debug().Msg("click dropped, previous click still processing")
		return false
	}
	d.store.SetClickProcessing(true)
	d.mu.Unlock()
	defer d.store.SetClickProcessing(false)

	entity, ok := d.resolvePick(viewer.Scene(), p)
	if !ok {
		d.notifyEmptySpace()
		return true
	}

	if entity.Kind == engine.EntityKindVenue {
		d.activateVenue(ctx, viewer.Scene(), entity)
		return true
	}

	d.mu.Lock()
	ev := d.events
	d.mu.Unlock()
	if ev != nil {
		ev.FeatureSelected(entity, entity.VenueID)
	}
	return true
}

// resolvePick walks the drill pick front to back, skipping non-interactive
// wall surfaces so the click falls through to whatever is behind them.
func (d *Dispatcher) resolvePick(scene engine.Scene, p engine.ScreenPoint) (engine.Entity, bool) {
	for _, e := range scene.DrillPickAt(p) {
		if e.Kind == engine.EntityKindWall {
			continue
		}
		return e, true
	}
	return engine.Entity{}, false
}

func (d *Dispatcher) notifyEmptySpace() {
	d.mu.Lock()
	ev := d.events
	d.mu.Unlock()
	if ev != nil {
		ev.EmptySpace()
	}
}

// activateVenue loads a venue's building (and network, when available) and
// commits it through the façade. An already-active venue is re-activated
// from the handles the store already owns, without refetching. A failed
// building fetch leaves state exactly as it was before the click.
func (d *Dispatcher) activateVenue(ctx context.Context, scene engine.Scene, entity engine.Entity) {
	venueID := entity.VenueID
	if venueID == "" {
		venueID = entity.ID
	}

	if existing, ok := d.store.Building(venueID); ok {
		var network engine.Network
		if nc, ok := d.store.Networks()[venueID]; ok {
			network = nc.Network
		}
		d.actions.LoadBuilding(venueID, existing.Building, network)
		return
	}

	bd, err := d.loader.FetchBuildingData(ctx, venueID)
	if err != nil {
		d.log.Warn().Err(err).Str("venue_id", venueID).Msg("building fetch failed, click abandoned")
		return
	}

	building, err := loadBuilding(scene, venueID, bd)
	if err != nil {
		d.log.Warn().Err(err).Str("venue_id", venueID).Msg("building geometry load failed, click abandoned")
		return
	}

	// The network is optional by the data model: a venue without one (or a
	// failed network fetch) still activates its building.
	var network engine.Network
	if nfc, err := d.loader.FetchNetworkData(ctx, venueID); err != nil {
		d.log.Warn().Err(err).Str("venue_id", venueID).Msg("network fetch failed, activating without network")
	} else if nfc != nil && len(nfc.Features) > 0 {
		if n, err := loadNetwork(scene, venueID, nfc); err != nil {
			d.log.Warn().Err(err).Str("venue_id", venueID).Msg("network geometry load failed, activating without network")
		} else {
			network = n
			network.SetVisible(d.store.NetworksVisible())
		}
	}

	d.actions.LoadBuilding(venueID, building, network)

	// Entering a building hides its flat footprint for the session.
	scene.SetEntityVisible(entity.ID, false)
}
