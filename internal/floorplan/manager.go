// Package floorplan owns the camera state machine for the constrained
// top-down floor-plan mode.
package floorplan

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"wayfinder/core-go/internal/engine"
	"wayfinder/core-go/internal/geo"
	"wayfinder/core-go/internal/metrics"
	"wayfinder/core-go/internal/viewstate"
)

const (
	// Padding applied to the fitted camera distance so the footprint does
	// not touch the screen edges.
	distancePadding = 1.5
	// Usability floor for the fitted camera distance, meters.
	minCameraDistance = 120.0
	// Oblique overview used when leaving floor-plan mode.
	obliquePitch = -math.Pi / 4
	topDownPitch = -math.Pi / 2
	// Pitch drift beyond this tolerance is snapped back; inside it the
	// user's input is left alone to avoid visible jitter.
	pitchTolerance = 0.05

	flightDuration = 1500 * time.Millisecond
	earthRadiusM   = 6_371_000.0

	// LevelAll selects the whole-building mid-height view.
	LevelAll = "ALL"
)

// Manager drives the camera in and out of floor-plan mode. All entry points
// are safe against missing geometry: they log and skip rather than panic.
type Manager struct {
	log     zerolog.Logger
	store   *viewstate.Store
	metrics *metrics.Metrics

	mu         sync.Mutex
	viewer     engine.Viewer
	footprints *geo.FeatureCollection

	// generation stamps every enter/exit; async completion work compares
	// its captured value and no-ops when a newer transition superseded it.
	generation uint64

	in2D     bool
	venueID  string
	building engine.Building
	bounds   geo.BoundingRegion

	snapshot    engine.Pose
	hasSnapshot bool

	savedControls    engine.ControlSettings
	hasSavedControls bool
	removePoseWatch  func()
	correctingPitch  bool
}

func NewManager(log zerolog.Logger, store *viewstate.Store, m *metrics.Metrics) *Manager {
	return &Manager{log: log, store: store, metrics: m}
}

// SetViewer installs the engine viewer the manager flies.
func (mgr *Manager) SetViewer(v engine.Viewer) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	mgr.viewer = v
}

// SetVenueCollection installs the venue footprint collection bounds are
// computed from.
func (mgr *Manager) SetVenueCollection(fc *geo.FeatureCollection) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	mgr.footprints = fc
}

// In2D reports whether the manager currently holds floor-plan mode.
func (mgr *Manager) In2D() bool {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return mgr.in2D
}

// Enter2DMode snapshots the camera, fits a top-down flight over the venue
// footprint and, once the camera settles, installs interaction constraints
// and the unit-label level. The returned channel closes when that post-flight
// work is done (or was superseded). A venue without a resolvable footprint
// fails with geo.ErrBoundsUnavailable and moves nothing.
func (mgr *Manager) Enter2DMode(building engine.Building, venueID string) (<-chan struct{}, error) {
	mgr.mu.Lock()
	viewer := mgr.viewer
	if viewer == nil {
		mgr.mu.Unlock()
		return nil, fmt.Errorf("enter 2d: no viewer registered")
	}

	footprint := mgr.footprints.FindFootprint(venueID)
	bounds, err := geo.FootprintBounds(footprint)
	if err != nil {
		mgr.mu.Unlock()
		mgr.log.Warn().Str("venue_id", venueID).Msg("no footprint for venue, staying put")
		return nil, fmt.Errorf("enter 2d for %s: %w", venueID, err)
	}

	camera := viewer.Camera()
	// Overwrite any prior snapshot; snapshots are never merged.
	mgr.snapshot = camera.Pose()
	mgr.hasSnapshot = true

	mgr.generation++
	gen := mgr.generation
	mgr.in2D = true
	mgr.venueID = venueID
	mgr.building = building
	mgr.bounds = bounds

	height := fitDistance(bounds, camera.FieldOfView())
	dest := engine.Pose{
		Lon:     bounds.CenterLon(),
		Lat:     bounds.CenterLat(),
		Height:  height,
		Heading: 0,
		Pitch:   topDownPitch,
		Roll:    0,
	}
	mgr.mu.Unlock()

	mgr.metrics.IncCameraFlight("enter_2d")
	flightDone := viewer.Scene().FlyTo(engine.Flight{Dest: dest, Duration: flightDuration})

	done := make(chan struct{})
	select {
	case <-flightDone:
		// Instant flight: finish the post-flight setup before returning so
		// the caller observes a fully installed session.
		mgr.settle2D(gen, venueID, building)
		close(done)
	default:
		go func() {
			defer close(done)
			<-flightDone
			mgr.settle2D(gen, venueID, building)
		}()
	}
	return done, nil
}

// settle2D runs after the entry flight lands: constraints, drift watch,
// label level. Stale generations landed after a newer transition and no-op.
func (mgr *Manager) settle2D(gen uint64, venueID string, building engine.Building) {
	mgr.mu.Lock()
	if gen != mgr.generation {
		mgr.mu.Unlock()
		mgr.log.Debug().Str("venue_id", venueID).Msg("stale floor-plan entry, skipping setup")
		return
	}
	viewer := mgr.viewer
	mgr.installConstraintsLocked(viewer.Camera())
	mgr.mu.Unlock()

	levelID, ok := mgr.labelLevel(building, venueID)
	if !ok {
		mgr.log.Warn().Str("venue_id", venueID).Msg("building has no levels, skipping unit labels")
		mgr.store.SetLabelState(viewstate.LabelState{})
		return
	}
	mgr.store.SetLabelState(viewstate.LabelState{Active: true, VenueID: venueID, LevelID: levelID})
}

// labelLevel picks which level carries unit labels: the selected level when
// one is already chosen for this venue, otherwise the topmost by elevation.
func (mgr *Manager) labelLevel(building engine.Building, venueID string) (string, bool) {
	if building == nil {
		return "", false
	}
	levels := building.Levels()
	if len(levels) == 0 {
		return "", false
	}
	if ls := mgr.store.LabelState(); ls.VenueID == venueID && ls.LevelID != "" && ls.LevelID != LevelAll {
		for _, l := range levels {
			if l.ID == ls.LevelID {
				return l.ID, true
			}
		}
	}
	top, _ := geo.TopmostLevel(levels)
	return top.ID, true
}

// Exit2DMode removes the constraints (restoring the exact pre-entry
// controller settings), clears the label state and returns the camera to an
// oblique overview of the building. The venue footprint that was hidden on
// entry stays hidden for the rest of the session.
func (mgr *Manager) Exit2DMode() {
	mgr.mu.Lock()
	if !mgr.in2D {
		mgr.mu.Unlock()
		return
	}
	mgr.generation++
	mgr.in2D = false
	mgr.building = nil
	venueID := mgr.venueID
	mgr.venueID = ""
	bounds := mgr.bounds
	viewer := mgr.viewer

	if mgr.removePoseWatch != nil {
		mgr.removePoseWatch()
		mgr.removePoseWatch = nil
	}
	var camera engine.Camera
	if viewer != nil {
		camera = viewer.Camera()
	}
	if camera != nil && mgr.hasSavedControls {
		camera.SetControls(mgr.savedControls)
		mgr.hasSavedControls = false
	}
	mgr.mu.Unlock()

	mgr.store.SetLabelState(viewstate.LabelState{})

	if viewer == nil || camera == nil {
		return
	}
	height := fitDistance(bounds, camera.FieldOfView())
	mgr.metrics.IncCameraFlight("exit_2d")
	viewer.Scene().FlyTo(engine.Flight{
		Dest: engine.Pose{
			Lon:    bounds.CenterLon(),
			Lat:    bounds.CenterLat() - heightToLatOffset(height),
			Height: height,
			Pitch:  obliquePitch,
		},
		Duration: flightDuration,
	})
	mgr.log.Debug().Str("venue_id", venueID).Msg("left floor-plan mode")
}

// Update2DViewForLevel re-fits the camera for a level selection. Outside an
// active floor-plan session it is a no-op. LevelAll targets the whole
// building's mid-height. The user's current yaw is preserved.
func (mgr *Manager) Update2DViewForLevel(levelID string, kick bool) {
	mgr.mu.Lock()
	if !mgr.in2D || mgr.building == nil || mgr.viewer == nil {
		mgr.mu.Unlock()
		return
	}
	viewer := mgr.viewer
	venueID := mgr.venueID
	building := mgr.building
	bounds := mgr.bounds
	mgr.mu.Unlock()

	levels := building.Levels()
	if len(levels) == 0 {
		mgr.log.Warn().Str("venue_id", venueID).Msg("no levels to re-fit for")
		return
	}

	var base float64
	if levelID == LevelAll {
		base = geo.MidHeight(levels)
	} else {
		found := false
		for _, l := range levels {
			if l.ID == levelID {
				base = l.ZValue
				found = true
				break
			}
		}
		if !found {
			mgr.log.Warn().Str("venue_id", venueID).Str("level_id", levelID).Msg("unknown level, keeping camera")
			return
		}
	}

	camera := viewer.Camera()
	pose := camera.Pose()
	height := base + fitDistance(bounds, camera.FieldOfView())

	mgr.store.SetKickMode(kick)
	mgr.store.SetLabelState(viewstate.LabelState{Active: true, VenueID: venueID, LevelID: levelID})
	mgr.metrics.IncCameraFlight("level_change")
	viewer.Scene().FlyTo(engine.Flight{
		Dest: engine.Pose{
			Lon:     bounds.CenterLon(),
			Lat:     bounds.CenterLat(),
			Height:  height,
			Heading: pose.Heading, // keep the user's yaw
			Pitch:   topDownPitch,
		},
		Duration: flightDuration,
	})
}

// Snapshot returns the camera pose captured before the last floor-plan
// entry, ok=false if none was captured yet.
func (mgr *Manager) Snapshot() (engine.Pose, bool) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return mgr.snapshot, mgr.hasSnapshot
}

// installConstraintsLocked saves the current controller settings and applies
// the floor-plan ones: no tilt or look, rotation about the vertical axis
// only, pan/zoom/rotate on with no zoom ceiling. A pose watch snaps pitch
// back to top-down when it drifts past tolerance, preserving yaw and
// position, and leaves in-tolerance poses alone.
func (mgr *Manager) installConstraintsLocked(camera engine.Camera) {
	if !mgr.hasSavedControls {
		mgr.savedControls = camera.Controls()
		mgr.hasSavedControls = true
	}
	camera.SetControls(engine.ControlSettings{
		TiltEnabled:      false,
		LookEnabled:      false,
		RotateEnabled:    true,
		TranslateEnabled: true,
		ZoomEnabled:      true,
		MaxZoomDistance:  0,
		RotateAxisLocked: true,
	})

	if mgr.removePoseWatch != nil {
		mgr.removePoseWatch()
	}
	mgr.removePoseWatch = camera.OnPoseChanged(func(p engine.Pose) {
		mgr.correctPitchDrift(camera, p)
	})
}

func (mgr *Manager) correctPitchDrift(camera engine.Camera, p engine.Pose) {
	mgr.mu.Lock()
	if !mgr.in2D || mgr.correctingPitch {
		mgr.mu.Unlock()
		return
	}
	if math.Abs(p.Pitch-topDownPitch) <= pitchTolerance {
		mgr.mu.Unlock()
		return
	}
	mgr.correctingPitch = true
	mgr.mu.Unlock()

	corrected := p
	corrected.Pitch = topDownPitch
	corrected.Roll = 0
	camera.SetPose(corrected)

	mgr.mu.Lock()
	mgr.correctingPitch = false
	mgr.mu.Unlock()
}

// fitDistance computes the camera distance that frames the region's largest
// dimension for the given vertical field of view, padded and floored.
func fitDistance(r geo.BoundingRegion, fov float64) float64 {
	if fov <= 0 {
		fov = 1.0
	}
	spanM := r.MaxSpanRad() * earthRadiusM
	d := (spanM / 2) / math.Tan(fov/2) * distancePadding
	if d < minCameraDistance {
		return minCameraDistance
	}
	return d
}

// heightToLatOffset pulls the oblique overview camera south of center so the
// building sits in frame at a 45 degree pitch.
func heightToLatOffset(height float64) float64 {
	return height / earthRadiusM * 180 / math.Pi
}
