// Package engine abstracts the map rendering engine the viewer core drives.
// The real engine lives on the other side of a rendering boundary; the core
// only needs picking, camera flight, visibility and geometry loading.
package engine

import (
	"time"

	"wayfinder/core-go/internal/geo"
)

// ScreenPoint is a pick location in screen pixels.
type ScreenPoint struct {
	X float64
	Y float64
}

// Entity is one pickable thing in the scene. Kind distinguishes venue
// footprints from interior features; wall surfaces are non-interactive.
type Entity struct {
	ID      string
	Kind    string
	VenueID string
	Props   map[string]any
}

const (
	EntityKindVenue = "venue"
	EntityKindWall  = "wall"
)

// Pose is a camera position and orientation. Angles are radians; Height is
// meters above the ellipsoid.
type Pose struct {
	Lon     float64
	Lat     float64
	Height  float64
	Heading float64
	Pitch   float64
	Roll    float64
}

// Flight is a camera flight request. The returned channel from Scene.FlyTo
// closes when the animation settles; the engine cancels a prior in-flight
// animation when a new flight starts.
type Flight struct {
	Dest     Pose
	Duration time.Duration
}

// ControlSettings mirror the engine's screen-space controller switches.
type ControlSettings struct {
	TiltEnabled       bool
	LookEnabled       bool
	RotateEnabled     bool
	TranslateEnabled  bool
	ZoomEnabled       bool
	MaxZoomDistance   float64 // 0 = no ceiling
	RotateAxisLocked  bool    // rotation constrained to the vertical axis
}

// Scene is the pick/fly/load surface of the rendering engine.
type Scene interface {
	PickEntityAt(p ScreenPoint) (Entity, bool)
	// DrillPickAt returns every entity under the point, front to back.
	DrillPickAt(p ScreenPoint) []Entity
	FlyTo(f Flight) <-chan struct{}
	SetEntityVisible(entityID string, visible bool)
	LoadGeometrySource(name string, fc *geo.FeatureCollection, style SourceStyle) (SourceHandle, error)
}

// SourceStyle is the subset of styling the core passes through untouched.
type SourceStyle struct {
	StrokeWidth float64
	Extruded    bool
}

// SourceHandle refers to loaded geometry.
type SourceHandle interface {
	Name() string
}

// Camera is the camera rig: current pose, controller settings, and pose
// change notification.
type Camera interface {
	Pose() Pose
	SetPose(Pose)
	Controls() ControlSettings
	SetControls(ControlSettings)
	// OnPoseChanged registers a listener; the returned func removes it.
	OnPoseChanged(fn func(Pose)) (remove func())
	// FieldOfView returns the vertical field of view in radians.
	FieldOfView() float64
}

// Viewer bundles the per-instance engine surfaces the core consumes.
type Viewer interface {
	Scene() Scene
	Camera() Camera
}

// Building is the loaded, renderable interior of a venue.
type Building interface {
	Levels() []geo.Level
}

// Network is loaded pedestrian-network geometry for a venue.
type Network interface {
	SetVisible(visible bool)
}

// ClippingTarget is implemented by handles that support Z clipping. Callers
// check for the capability explicitly rather than probing method presence.
type ClippingTarget interface {
	SetZClipping(value float64)
}
