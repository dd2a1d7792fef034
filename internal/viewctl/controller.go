// Package viewctl bridges store events to engine and sidebar side effects.
// The controller is the single place that decides whether a view mode
// transition is legal.
package viewctl

import (
	"sync"

	"github.com/rs/zerolog"

	"wayfinder/core-go/internal/engine"
	"wayfinder/core-go/internal/floorplan"
	"wayfinder/core-go/internal/metrics"
	"wayfinder/core-go/internal/viewstate"
)

// Sidebar is the capability surface a sidebar hands the controller. The
// handle itself is optional (nil when no sidebar is registered).
type Sidebar interface {
	ShowBuilding(venueID string, building engine.Building)
	Clear()
}

// ModeAware is an optional sidebar capability; sidebars that implement it
// are told about committed mode changes.
type ModeAware interface {
	ViewModeChanged(mode viewstate.ViewMode)
}

const noMode = -1

// Controller reconciles the store with the floor-plan manager and sidebar.
// Its currentBuilding/currentVenueID mirror is a cache, not a source of
// truth: it is recomputed from the store on every building event.
type Controller struct {
	log     zerolog.Logger
	store   *viewstate.Store
	actions *viewstate.Actions
	manager *floorplan.Manager
	metrics *metrics.Metrics

	mu              sync.Mutex
	sidebar         Sidebar
	currentBuilding engine.Building
	currentVenueID  string
	lastSeenMode    int
	viewer          engine.Viewer
	disposers       []viewstate.Disposer
	destroyed       bool
}

func New(log zerolog.Logger, store *viewstate.Store, actions *viewstate.Actions, manager *floorplan.Manager, m *metrics.Metrics) *Controller {
	c := &Controller{
		log:          log,
		store:        store,
		actions:      actions,
		manager:      manager,
		metrics:      m,
		lastSeenMode: int(viewstate.ThreeD),
	}

	c.disposers = append(c.disposers,
		store.Subscribe(viewstate.EventViewModeChanged, func(any) {
			c.handleModeChange(store.ViewMode())
		}),
		store.Subscribe(viewstate.EventBuildingAdded, func(any) { c.syncBuildingContext() }),
		store.Subscribe(viewstate.EventBuildingRemoved, func(any) { c.syncBuildingContext() }),
		store.Subscribe(viewstate.EventLastActiveVenueChanged, func(any) { c.syncBuildingContext() }),
		store.Subscribe(viewstate.EventViewerChanged, func(any) { c.handleViewerChange() }),
	)
	return c
}

// handleModeChange is the mode state machine. The controller keeps its own
// last-seen mode because the store's equality suppression cannot catch event
// replays against the controller's separately tracked mirror.
func (c *Controller) handleModeChange(mode viewstate.ViewMode) {
	c.mu.Lock()
	if int(mode) == c.lastSeenMode {
		c.mu.Unlock()
		return
	}

	if mode == viewstate.TwoD {
		// Refresh from the store before trusting anything cached.
		building, venueID, ok := c.resolveContextLocked()
		if !ok {
			c.mu.Unlock()
			c.metrics.IncGuardRejection()
			c.log.Warn().Msg("floor-plan mode requested without building context, reverting")
			c.store.SetViewMode(viewstate.ThreeD)
			return
		}
		c.currentBuilding = building
		c.currentVenueID = venueID
		c.lastSeenMode = int(viewstate.TwoD)
		c.mu.Unlock()

		if _, err := c.manager.Enter2DMode(building, venueID); err != nil {
			c.mu.Lock()
			c.lastSeenMode = int(viewstate.ThreeD)
			c.mu.Unlock()
			c.metrics.IncGuardRejection()
			c.log.Warn().Err(err).Str("venue_id", venueID).Msg("floor-plan entry failed, reverting")
			c.store.SetViewMode(viewstate.ThreeD)
			return
		}
		c.metrics.IncModeTransition(viewstate.ThreeD.String(), viewstate.TwoD.String())
		c.notifySidebarMode(viewstate.TwoD)
		return
	}

	// 2D -> 3D is always legal; the cached context survives the mode change.
	c.lastSeenMode = int(viewstate.ThreeD)
	c.mu.Unlock()

	if c.manager.In2D() {
		c.manager.Exit2DMode()
		c.metrics.IncModeTransition(viewstate.TwoD.String(), viewstate.ThreeD.String())
	}
	c.notifySidebarMode(viewstate.ThreeD)
}

// resolveContextLocked recomputes the building context from the store's
// last-active venue and active map.
func (c *Controller) resolveContextLocked() (engine.Building, string, bool) {
	venueID, ok := c.store.LastActiveVenue()
	if !ok {
		return nil, "", false
	}
	ctx, ok := c.store.Building(venueID)
	if !ok || ctx.Building == nil {
		return nil, "", false
	}
	return ctx.Building, venueID, true
}

// syncBuildingContext re-derives the cached context after any building
// event. Events may coalesce before this handler runs, so the store is read
// instead of event payloads. A last-active venue with no matching active
// entry is treated as "no context": the cache clears and an active
// floor-plan session is forced back to 3D.
func (c *Controller) syncBuildingContext() {
	c.mu.Lock()
	building, venueID, ok := c.resolveContextLocked()
	if !ok {
		hadContext := c.currentBuilding != nil || c.currentVenueID != ""
		c.currentBuilding = nil
		c.currentVenueID = ""
		sidebar := c.sidebar
		c.mu.Unlock()

		if hadContext && sidebar != nil {
			sidebar.Clear()
		}
		if c.store.ViewMode() == viewstate.TwoD {
			c.log.Warn().Msg("building context lost while in floor-plan mode, forcing 3d")
			c.store.SetViewMode(viewstate.ThreeD)
		}
		return
	}

	changed := c.currentVenueID != venueID || c.currentBuilding != building
	c.currentBuilding = building
	c.currentVenueID = venueID
	sidebar := c.sidebar
	c.mu.Unlock()

	if changed && sidebar != nil {
		sidebar.ShowBuilding(venueID, building)
	}
}

// handleViewerChange keeps the manager's viewer current and defends against
// the store being reset independently of the controller's lifetime: a store
// with no viewer while the controller still holds one gets it re-registered.
func (c *Controller) handleViewerChange() {
	v := c.store.Viewer()

	c.mu.Lock()
	local := c.viewer
	if v != nil {
		c.viewer = v
	}
	c.mu.Unlock()

	if v == nil {
		if local != nil {
			c.log.Warn().Msg("store lost viewer handle, re-registering")
			c.store.SetViewer(local)
		}
		return
	}
	c.manager.SetViewer(v)
}

func (c *Controller) notifySidebarMode(mode viewstate.ViewMode) {
	c.mu.Lock()
	sidebar := c.sidebar
	c.mu.Unlock()
	if ma, ok := sidebar.(ModeAware); ok {
		ma.ViewModeChanged(mode)
	}
}

// RegisterSidebar installs the sidebar the controller notifies.
func (c *Controller) RegisterSidebar(sb Sidebar) {
	c.mu.Lock()
	c.sidebar = sb
	c.mu.Unlock()
}

// SetBuildingContext writes a building through to the store, then the cached
// fields, then the sidebar. Exposed to the sidebar and search box.
func (c *Controller) SetBuildingContext(building engine.Building, venueID string) {
	c.actions.LoadBuilding(venueID, building, nil)
	// The buildingAdded subscription has already refreshed the cache by the
	// time LoadBuilding returns; nothing further to write here.
}

// ClearBuildingContext deactivates the current venue and drops the cache.
func (c *Controller) ClearBuildingContext() {
	c.mu.Lock()
	venueID := c.currentVenueID
	c.mu.Unlock()
	if venueID == "" {
		return
	}
	c.actions.DeactivateBuilding(venueID)
}

// CurrentVenue returns the cached venue id, empty when no context is held.
func (c *Controller) CurrentVenue() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentVenueID
}

// ToggleViewMode requests the opposite of the current mode.
func (c *Controller) ToggleViewMode() {
	if c.store.ViewMode() == viewstate.TwoD {
		c.store.SetViewMode(viewstate.ThreeD)
		return
	}
	c.store.SetViewMode(viewstate.TwoD)
}

// ForceSyncWithState re-derives everything from the store and re-runs the
// mode handler, for recovery after external state mutation.
func (c *Controller) ForceSyncWithState() {
	c.syncBuildingContext()
	c.handleViewerChange()

	c.mu.Lock()
	c.lastSeenMode = noMode
	c.mu.Unlock()
	c.handleModeChange(c.store.ViewMode())
}

// Destroy disposes every subscription. Safe to call multiple times.
func (c *Controller) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	disposers := c.disposers
	c.disposers = nil
	c.mu.Unlock()

	for _, d := range disposers {
		d()
	}
}
