// Package enginetest provides a deterministic in-memory engine for tests.
package enginetest

import (
	"sync"

	"wayfinder/core-go/internal/engine"
	"wayfinder/core-go/internal/geo"
)

// Viewer is a fake engine.Viewer backed by a Scene and Camera pair.
type Viewer struct {
	FakeScene  *Scene
	FakeCamera *Camera
}

func NewViewer() *Viewer {
	return &Viewer{
		FakeScene:  &Scene{},
		FakeCamera: &Camera{FOV: 1.0},
	}
}

func (v *Viewer) Scene() engine.Scene   { return v.FakeScene }
func (v *Viewer) Camera() engine.Camera { return v.FakeCamera }

// Scene records flights and serves scripted pick results.
type Scene struct {
	mu sync.Mutex

	PickResult  engine.Entity
	PickOK      bool
	DrillResult []engine.Entity

	Flights    []engine.Flight
	Hidden     map[string]bool
	Sources    []string
	// ManualFlights keeps flight channels open until SettleFlights is called.
	ManualFlights bool
	pending       []chan struct{}
}

func (s *Scene) PickEntityAt(engine.ScreenPoint) (engine.Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.PickResult, s.PickOK
}

func (s *Scene) DrillPickAt(engine.ScreenPoint) []engine.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]engine.Entity(nil), s.DrillResult...)
}

func (s *Scene) FlyTo(f engine.Flight) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Flights = append(s.Flights, f)
	done := make(chan struct{})
	if s.ManualFlights {
		s.pending = append(s.pending, done)
	} else {
		close(done)
	}
	return done
}

// SettleFlights closes every pending manual flight channel.
func (s *Scene) SettleFlights() {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, ch := range pending {
		close(ch)
	}
}

func (s *Scene) SetEntityVisible(entityID string, visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Hidden == nil {
		s.Hidden = make(map[string]bool)
	}
	s.Hidden[entityID] = !visible
}

func (s *Scene) LoadGeometrySource(name string, _ *geo.FeatureCollection, _ engine.SourceStyle) (engine.SourceHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sources = append(s.Sources, name)
	return sourceHandle(name), nil
}

// FlightCount returns how many flights have been requested.
func (s *Scene) FlightCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Flights)
}

// LastFlight returns the most recent flight and whether one exists.
func (s *Scene) LastFlight() (engine.Flight, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Flights) == 0 {
		return engine.Flight{}, false
	}
	return s.Flights[len(s.Flights)-1], true
}

type sourceHandle string

func (h sourceHandle) Name() string { return string(h) }

// Camera is a fake camera rig with scripted pose and listener fan-out.
type Camera struct {
	mu        sync.Mutex
	pose      engine.Pose
	controls  engine.ControlSettings
	SetCalls  int
	FOV       float64
	listeners map[int]func(engine.Pose)
	nextID    int
}

func (c *Camera) Pose() engine.Pose {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pose
}

func (c *Camera) SetPose(p engine.Pose) {
	c.mu.Lock()
	c.pose = p
	c.SetCalls++
	fns := make([]func(engine.Pose), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(p)
	}
}

func (c *Camera) Controls() engine.ControlSettings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controls
}

func (c *Camera) SetControls(cs engine.ControlSettings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controls = cs
}

func (c *Camera) OnPoseChanged(fn func(engine.Pose)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listeners == nil {
		c.listeners = make(map[int]func(engine.Pose))
	}
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

func (c *Camera) FieldOfView() float64 { return c.FOV }

// ListenerCount reports how many pose listeners are installed.
func (c *Camera) ListenerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

// Building is a fake loaded building with optional clipping capability.
type Building struct {
	Lvls  []geo.Level
	Clips []float64
}

func (b *Building) Levels() []geo.Level { return b.Lvls }

func (b *Building) SetZClipping(v float64) { b.Clips = append(b.Clips, v) }

// Network is a fake pedestrian network handle.
type Network struct {
	Visible bool
	Clips   []float64
}

func (n *Network) SetVisible(v bool)      { n.Visible = v }
func (n *Network) SetZClipping(v float64) { n.Clips = append(n.Clips, v) }
