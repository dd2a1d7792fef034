package viewstate

import (
	"testing"

	"wayfinder/core-go/internal/engine/enginetest"
	"wayfinder/core-go/internal/geo"
)

func TestLoadBuilding_EventOrderAndAtomicity(t *testing.T) {
	s := NewStore(testLogger())
	a := NewActions(s, testLogger())

	var order []string
	s.Subscribe(EventBuildingAdded, func(any) {
		order = append(order, "buildingAdded")
		// All commits land before the first callback: a consumer reading
		// last-active here must already see the new venue.
		if v, ok := s.LastActiveVenue(); !ok || v != "V1" {
			t.Fatalf("expected last-active V1 during buildingAdded, got %q ok=%v", v, ok)
		}
	})
	s.Subscribe(EventNetworkAdded, func(any) { order = append(order, "networkAdded") })
	s.Subscribe(EventLastActiveVenueChanged, func(any) { order = append(order, "lastActiveVenueChanged") })

	a.LoadBuilding("V1", &enginetest.Building{}, &enginetest.Network{})

	want := []string{"buildingAdded", "networkAdded", "lastActiveVenueChanged"}
	if len(order) != len(want) {
		t.Fatalf("expected events %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, order)
		}
	}
}

func TestLoadBuilding_NoNetworkEventWithoutHandle(t *testing.T) {
	s := NewStore(testLogger())
	a := NewActions(s, testLogger())

	var networkEvents int
	s.Subscribe(EventNetworkAdded, func(any) { networkEvents++ })

	a.LoadBuilding("V1", &enginetest.Building{}, nil)
	if networkEvents != 0 {
		t.Fatalf("expected no networkAdded without a handle, got %d", networkEvents)
	}
	if got := s.Networks(); len(got) != 0 {
		t.Fatalf("expected empty network map, got %v", got)
	}
}

func TestLoadBuilding_IdempotentOverwrite(t *testing.T) {
	s := NewStore(testLogger())
	a := NewActions(s, testLogger())

	b := &enginetest.Building{Lvls: []geo.Level{{ID: "L1"}}}
	a.LoadBuilding("V1", b, nil)

	var added, lastActive int
	s.Subscribe(EventBuildingAdded, func(any) { added++ })
	s.Subscribe(EventLastActiveVenueChanged, func(any) { lastActive++ })

	// Same venue, same handle: a structural no-op all the way down.
	a.LoadBuilding("V1", b, nil)
	if added != 0 || lastActive != 0 {
		t.Fatalf("expected suppressed events for identical reload, got added=%d lastActive=%d", added, lastActive)
	}

	// Same venue, new handle: last write wins, buildingAdded fires, the
	// unchanged last-active stays silent.
	a.LoadBuilding("V1", &enginetest.Building{Lvls: []geo.Level{{ID: "L2"}}}, nil)
	if added != 1 {
		t.Fatalf("expected buildingAdded for overwrite, got %d", added)
	}
	if lastActive != 0 {
		t.Fatalf("expected no lastActiveVenueChanged for unchanged value, got %d", lastActive)
	}
}

func TestDeactivateBuilding_ScenarioTwoVenues(t *testing.T) {
	s := NewStore(testLogger())
	a := NewActions(s, testLogger())

	b1 := &enginetest.Building{}
	b2 := &enginetest.Building{Lvls: []geo.Level{{ID: "L1"}}}
	a.LoadBuilding("V1", b1, &enginetest.Network{})
	a.LoadBuilding("V2", b2, nil)

	var lastActiveEvents int
	s.Subscribe(EventLastActiveVenueChanged, func(any) { lastActiveEvents++ })

	a.DeactivateBuilding("V1")

	buildings := s.Buildings()
	if len(buildings) != 1 {
		t.Fatalf("expected exactly one active building, got %v", buildings)
	}
	if ctx, ok := buildings["V2"]; !ok || ctx.Building != b2 {
		t.Fatalf("expected V2 to survive, got %v", buildings)
	}
	if v, ok := s.LastActiveVenue(); !ok || v != "V2" {
		t.Fatalf("expected last-active V2 untouched, got %q ok=%v", v, ok)
	}
	if lastActiveEvents != 0 {
		t.Fatalf("deactivating a non-last-active venue must not emit lastActiveVenueChanged, got %d", lastActiveEvents)
	}
	if len(s.Networks()) != 0 {
		t.Fatalf("expected V1 network removed, got %v", s.Networks())
	}
}

func TestDeactivateBuilding_ClearsLastActive(t *testing.T) {
	s := NewStore(testLogger())
	a := NewActions(s, testLogger())

	a.LoadBuilding("V1", &enginetest.Building{}, nil)

	var lastActiveEvents int
	s.Subscribe(EventLastActiveVenueChanged, func(any) { lastActiveEvents++ })

	a.DeactivateBuilding("V1")
	if _, ok := s.LastActiveVenue(); ok {
		t.Fatalf("expected last-active cleared")
	}
	if lastActiveEvents != 1 {
		t.Fatalf("expected one lastActiveVenueChanged, got %d", lastActiveEvents)
	}
}

// The façade invariant: after any call sequence, the last-active venue is
// either unset or a key of the active-building map.
func TestInvariant_LastActiveAlwaysActive(t *testing.T) {
	s := NewStore(testLogger())
	a := NewActions(s, testLogger())

	check := func(step string) {
		t.Helper()
		v, ok := s.LastActiveVenue()
		if !ok {
			return
		}
		if _, active := s.Building(v); !active {
			t.Fatalf("after %s: last-active %q has no active building", step, v)
		}
	}

	a.LoadBuilding("V1", &enginetest.Building{}, nil)
	check("load V1")
	a.LoadBuilding("V2", &enginetest.Building{}, &enginetest.Network{})
	check("load V2")
	a.DeactivateBuilding("V1")
	check("deactivate V1")
	a.DeactivateBuilding("V2")
	check("deactivate V2")
	a.DeactivateBuilding("V2") // repeat removal is harmless
	check("deactivate V2 again")
	a.LoadBuilding("V3", &enginetest.Building{}, nil)
	check("load V3")
}

func TestApplyZClipping_BroadcastsToCapableHandles(t *testing.T) {
	s := NewStore(testLogger())
	a := NewActions(s, testLogger())

	b := &enginetest.Building{}
	n := &enginetest.Network{}
	a.LoadBuilding("V1", b, n)
	a.LoadBuilding("V2", plainBuilding{}, nil) // no clipping capability

	var events int
	for _, e := range []Event{EventBuildingAdded, EventLabelStateChanged, EventLastActiveVenueChanged} {
		s.Subscribe(e, func(any) { events++ })
	}

	a.ApplyZClipping(12.5)

	if len(b.Clips) != 1 || b.Clips[0] != 12.5 {
		t.Fatalf("expected building clipping applied, got %v", b.Clips)
	}
	if len(n.Clips) != 1 || n.Clips[0] != 12.5 {
		t.Fatalf("expected network clipping applied, got %v", n.Clips)
	}
	if events != 0 {
		t.Fatalf("clipping is a pass-through, expected no events, got %d", events)
	}
}

func TestInitializeApp_SecondCallOverwrites(t *testing.T) {
	s := NewStore(testLogger())
	a := NewActions(s, testLogger())

	v1 := enginetest.NewViewer()
	v2 := enginetest.NewViewer()

	a.InitializeApp(v1)
	a.InitializeApp(v2) // warns, never errors

	if s.Viewer() != v2 {
		t.Fatalf("expected second handle to win")
	}
}

type plainBuilding struct{}

func (plainBuilding) Levels() []geo.Level { return nil }
