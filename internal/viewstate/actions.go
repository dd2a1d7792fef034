package viewstate

import (
	"github.com/rs/zerolog"

	"wayfinder/core-go/internal/engine"
)

// Actions is the only sanctioned entry point for compound state changes. It
// keeps the store's invariants intact: after every operation the last-active
// venue is either unset or a key of the active-building map.
type Actions struct {
	store *Store
	log   zerolog.Logger
}

func NewActions(store *Store, log zerolog.Logger) *Actions {
	return &Actions{store: store, log: log}
}

// InitializeApp registers the viewer handle. A second call overwrites the
// handle with a logged warning; it never fails.
func (a *Actions) InitializeApp(v engine.Viewer) {
	if prev := a.store.Viewer(); prev != nil && prev != v {
		a.log.Warn().Msg("viewer already initialized, overwriting handle")
	}
	a.store.SetViewer(v)
}

// LoadBuilding activates a venue's building (and network, when supplied) and
// makes it the last-active venue. Re-loading an already-active venue is a
// last-write-wins overwrite, not an error. Subscribers observe buildingAdded,
// then networkAdded, then lastActiveVenueChanged, each only if the value
// actually changed; every commit lands before the first callback fires.
func (a *Actions) LoadBuilding(venueID string, building engine.Building, network engine.Network) {
	s := a.store

	muts := []mutation{{
		event:   EventBuildingAdded,
		payload: venueID,
		apply: func() bool {
			next := BuildingContext{VenueID: venueID, Building: building}
			if prev, ok := s.buildings[venueID]; ok && buildingEqual(prev, next) {
				return false
			}
			s.buildings[venueID] = next
			return true
		},
	}}

	if network != nil {
		muts = append(muts, mutation{
			event:   EventNetworkAdded,
			payload: venueID,
			apply: func() bool {
				next := NetworkContext{VenueID: venueID, Network: network}
				if prev, ok := s.networks[venueID]; ok && networkEqual(prev, next) {
					return false
				}
				s.networks[venueID] = next
				return true
			},
		})
	}

	muts = append(muts, mutation{
		event:   EventLastActiveVenueChanged,
		payload: venueID,
		apply: func() bool {
			if s.hasLastActive && s.lastActiveVenue == venueID {
				return false
			}
			s.lastActiveVenue = venueID
			s.hasLastActive = true
			return true
		},
	})

	s.commit(muts...)
	a.log.Debug().Str("venue_id", venueID).Bool("network", network != nil).Msg("building loaded")
}

// DeactivateBuilding removes a venue from both active maps. The last-active
// venue is cleared only when it pointed at this venue, and the corresponding
// event fires only when the value actually changed.
func (a *Actions) DeactivateBuilding(venueID string) {
	s := a.store

	s.commit(
		mutation{
			event:   EventBuildingRemoved,
			payload: venueID,
			apply: func() bool {
				if _, ok := s.buildings[venueID]; !ok {
					return false
				}
				delete(s.buildings, venueID)
				return true
			},
		},
		mutation{
			event:   EventNetworkRemoved,
			payload: venueID,
			apply: func() bool {
				if _, ok := s.networks[venueID]; !ok {
					return false
				}
				delete(s.networks, venueID)
				return true
			},
		},
		mutation{
			event:   EventLastActiveVenueChanged,
			payload: "",
			apply: func() bool {
				if !s.hasLastActive || s.lastActiveVenue != venueID {
					return false
				}
				s.lastActiveVenue = ""
				s.hasLastActive = false
				return true
			},
		},
	)
	a.log.Debug().Str("venue_id", venueID).Msg("building deactivated")
}

// ApplyZClipping broadcasts a clipping plane to every active building and
// network handle that supports it. The value is not store state and no event
// fires; this is a pass-through side effect.
func (a *Actions) ApplyZClipping(value float64) {
	for _, ctx := range a.store.Buildings() {
		if ct, ok := ctx.Building.(engine.ClippingTarget); ok {
			ct.SetZClipping(value)
		}
	}
	for _, ctx := range a.store.Networks() {
		if ct, ok := ctx.Network.(engine.ClippingTarget); ok {
			ct.SetZClipping(value)
		}
	}
}
