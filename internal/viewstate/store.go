// Package viewstate holds the canonical viewer state and the action façade
// that mutates it. The Store is explicitly constructed and handed to every
// component; nothing in this module reaches for ambient globals.
package viewstate

import (
	"reflect"
	"sync"

	"github.com/rs/zerolog"

	"wayfinder/core-go/internal/engine"
)

// ViewMode is the global camera mode. The authoritative value lives in the
// Store; consumers request transitions, they never assign directly.
type ViewMode int

const (
	ThreeD ViewMode = iota
	TwoD
)

func (m ViewMode) String() string {
	if m == TwoD {
		return "2d"
	}
	return "3d"
}

// Event names a class of store change. Subscribers register per event.
type Event string

const (
	EventViewModeChanged        Event = "viewModeChanged"
	EventBuildingAdded          Event = "buildingAdded"
	EventBuildingRemoved        Event = "buildingRemoved"
	EventNetworkAdded           Event = "networkAdded"
	EventNetworkRemoved         Event = "networkRemoved"
	EventLastActiveVenueChanged Event = "lastActiveVenueChanged"
	EventViewerChanged          Event = "viewerChanged"
	EventClickProcessingChanged Event = "clickProcessingChanged"
	EventKickModeChanged        Event = "kickModeChanged"
	EventNetworksVisibleChanged Event = "networksVisibleChanged"
	EventLabelStateChanged      Event = "labelStateChanged"
)

// BuildingContext is a loaded building plus its venue identity. Exclusively
// owned by the Store's active map; consumers hold refreshable copies only.
type BuildingContext struct {
	VenueID  string
	Building engine.Building
}

// NetworkContext is loaded pedestrian-network geometry for a venue.
type NetworkContext struct {
	VenueID string
	Network engine.Network
}

// LabelState is the derived on-screen unit label selection. Recomputed on
// every floor-plan entry, reset on exit.
type LabelState struct {
	Active  bool
	VenueID string
	LevelID string
}

// Disposer removes one subscription. Calling it more than once is a no-op.
type Disposer func()

type subscription struct {
	id int
	fn func(payload any)
}

// Store is the single owner of canonical viewer state. Setters commit the
// new value and then synchronously notify subscribers in registration order.
// A set whose value is structurally equal to the current one is a silent
// no-op, which is what keeps the Store and the view controller from feeding
// each other forever.
type Store struct {
	log zerolog.Logger

	mu              sync.Mutex
	mode            ViewMode
	buildings       map[string]BuildingContext
	networks        map[string]NetworkContext
	lastActiveVenue string
	hasLastActive   bool
	viewer          engine.Viewer
	clickProcessing bool
	kickMode        bool
	networksVisible bool
	labelState      LabelState

	subs   map[Event][]subscription
	nextID int
	closed bool
}

func NewStore(log zerolog.Logger) *Store {
	return &Store{
		log:             log,
		mode:            ThreeD,
		buildings:       make(map[string]BuildingContext),
		networks:        make(map[string]NetworkContext),
		networksVisible: true,
		subs:            make(map[Event][]subscription),
	}
}

// Subscribe registers fn for event. The returned disposer is idempotent.
func (s *Store) Subscribe(event Event, fn func(payload any)) Disposer {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return func() {}
	}

	id := s.nextID
	s.nextID++
	s.subs[event] = append(s.subs[event], subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			list := s.subs[event]
			for i := range list {
				if list[i].id == id {
					s.subs[event] = append(list[:i:i], list[i+1:]...)
					break
				}
			}
		})
	}
}

// Close drops every subscription. Further sets commit but notify nobody.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = make(map[Event][]subscription)
	s.closed = true
}

// mutation is one (field, newValue) commit in a transactional batch. apply
// runs with the store lock held and reports whether the value changed.
type mutation struct {
	event   Event
	payload any
	apply   func() bool
}

// commit applies every mutation, then notifies subscribers for the changed
// ones in batch order. All commits land before the first callback fires, so
// a subscriber reading the store mid-notification sees a consistent whole.
func (s *Store) commit(muts ...mutation) {
	type firing struct {
		fns     []func(any)
		payload any
	}

	s.mu.Lock()
	var fired []firing
	for _, m := range muts {
		if !m.apply() {
			continue
		}
		list := s.subs[m.event]
		fns := make([]func(any), len(list))
		for i, sub := range list {
			fns[i] = sub.fn
		}
		fired = append(fired, firing{fns: fns, payload: m.payload})
	}
	s.mu.Unlock()

	for _, f := range fired {
		for _, fn := range f.fns {
			fn(f.payload)
		}
	}
}

// ViewMode returns the current mode. Initial value is ThreeD.
func (s *Store) ViewMode() ViewMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetViewMode requests a mode; equal values are silent no-ops.
func (s *Store) SetViewMode(m ViewMode) {
	s.commit(mutation{
		event:   EventViewModeChanged,
		payload: m,
		apply: func() bool {
			if s.mode == m {
				return false
			}
			s.mode = m
			return true
		},
	})
}

// Buildings returns a copy of the active-venue map.
func (s *Store) Buildings() map[string]BuildingContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]BuildingContext, len(s.buildings))
	for k, v := range s.buildings {
		out[k] = v
	}
	return out
}

// Building returns the context for venueID if it is active.
func (s *Store) Building(venueID string) (BuildingContext, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, ok := s.buildings[venueID]
	return ctx, ok
}

// Networks returns a copy of the active-network map.
func (s *Store) Networks() map[string]NetworkContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]NetworkContext, len(s.networks))
	for k, v := range s.networks {
		out[k] = v
	}
	return out
}

// LastActiveVenue returns the last-active venue id, ok=false when none.
func (s *Store) LastActiveVenue() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActiveVenue, s.hasLastActive
}

// Viewer returns the registered viewer handle, nil before initialization.
func (s *Store) Viewer() engine.Viewer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewer
}

// SetViewer registers the viewer handle.
func (s *Store) SetViewer(v engine.Viewer) {
	s.commit(mutation{
		event:   EventViewerChanged,
		payload: v,
		apply: func() bool {
			if s.viewer == v {
				return false
			}
			s.viewer = v
			return true
		},
	})
}

// ClickProcessing reports whether a click is currently being handled.
func (s *Store) ClickProcessing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clickProcessing
}

// SetClickProcessing flips the re-entrancy guard.
func (s *Store) SetClickProcessing(v bool) {
	s.commit(mutation{
		event:   EventClickProcessingChanged,
		payload: v,
		apply: func() bool {
			if s.clickProcessing == v {
				return false
			}
			s.clickProcessing = v
			return true
		},
	})
}

// KickMode reports whether levels below the selected one are shown.
func (s *Store) KickMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kickMode
}

func (s *Store) SetKickMode(v bool) {
	s.commit(mutation{
		event:   EventKickModeChanged,
		payload: v,
		apply: func() bool {
			if s.kickMode == v {
				return false
			}
			s.kickMode = v
			return true
		},
	})
}

// NetworksVisible reports whether pedestrian networks are shown.
func (s *Store) NetworksVisible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.networksVisible
}

func (s *Store) SetNetworksVisible(v bool) {
	s.commit(mutation{
		event:   EventNetworksVisibleChanged,
		payload: v,
		apply: func() bool {
			if s.networksVisible == v {
				return false
			}
			s.networksVisible = v
			return true
		},
	})
}

// LabelState returns the current unit-label selection.
func (s *Store) LabelState() LabelState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.labelState
}

func (s *Store) SetLabelState(ls LabelState) {
	s.commit(mutation{
		event:   EventLabelStateChanged,
		payload: ls,
		apply: func() bool {
			if s.labelState == ls {
				return false
			}
			s.labelState = ls
			return true
		},
	})
}

func buildingEqual(a, b BuildingContext) bool {
	return a.VenueID == b.VenueID && reflect.DeepEqual(a.Building, b.Building)
}

func networkEqual(a, b NetworkContext) bool {
	return a.VenueID == b.VenueID && reflect.DeepEqual(a.Network, b.Network)
}
