package interact

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"wayfinder/core-go/internal/engine"
	"wayfinder/core-go/internal/engine/enginetest"
	"wayfinder/core-go/internal/geo"
	"wayfinder/core-go/internal/mapdata"
	"wayfinder/core-go/internal/viewstate"
)

type fakeLoader struct {
	mu            sync.Mutex
	buildingCalls int
	networkCalls  int

	block chan struct{} // when non-nil, FetchBuildingData waits on it

	bd     *mapdata.BuildingData
	bdErr  error
	nfc    *geo.FeatureCollection
	nfcErr error
}

func (f *fakeLoader) FetchBuildingData(ctx context.Context, venueID string) (*mapdata.BuildingData, error) {
	f.mu.Lock()
	f.buildingCalls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return f.bd, f.bdErr
}

func (f *fakeLoader) FetchNetworkData(ctx context.Context, venueID string) (*geo.FeatureCollection, error) {
	f.mu.Lock()
	f.networkCalls++
	f.mu.Unlock()
	return f.nfc, f.nfcErr
}

func (f *fakeLoader) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buildingCalls, f.networkCalls
}

type recordedEvents struct {
	empty    int
	features []engine.Entity
}

func (r *recordedEvents) EmptySpace() { r.empty++ }
func (r *recordedEvents) FeatureSelected(e engine.Entity, venueID string) {
	r.features = append(r.features, e)
}

func buildingDoc(venueID string) *mapdata.BuildingData {
	return &mapdata.BuildingData{
		VenueID: venueID,
		Levels: geo.FeatureCollection{Features: []geo.Feature{
			{ID: "f1", Properties: map[string]any{"level_id": "L1", "z_value": 0.0}},
			{ID: "f2", Properties: map[string]any{"level_id": "L2", "z_value": 10.0}},
		}},
	}
}

type fixture struct {
	store      *viewstate.Store
	dispatcher *Dispatcher
	viewer     *enginetest.Viewer
	loader     *fakeLoader
}

func newFixture(t *testing.T, loader *fakeLoader) *fixture {
	t.Helper()
	log := zerolog.Nop()
	store := viewstate.NewStore(log)
	actions := viewstate.NewActions(store, log)
	viewer := enginetest.NewViewer()
	actions.InitializeApp(viewer)
	return &fixture{
		store:      store,
		dispatcher: NewDispatcher(log, store, actions, loader),
		viewer:     viewer,
		loader:     loader,
	}
}

func venueEntity(id string) engine.Entity {
	return engine.Entity{ID: id, Kind: engine.EntityKindVenue, VenueID: id}
}

func TestHandleClick_ActivatesVenue(t *testing.T) {
	loader := &fakeLoader{bd: buildingDoc("V1"), nfc: &geo.FeatureCollection{Features: []geo.Feature{{ID: "n1"}}}}
	fx := newFixture(t, loader)
	fx.viewer.FakeScene.DrillResult = []engine.Entity{venueEntity("V1")}

	if !fx.dispatcher.HandleClick(context.Background(), engine.ScreenPoint{}) {
		t.Fatalf("expected click handled")
	}

	ctx, ok := fx.store.Building("V1")
	if !ok {
		t.Fatalf("expected venue activated")
	}
	if got := ctx.Building.Levels(); len(got) != 2 || got[0].ID != "L1" {
		t.Fatalf("expected bottom-up levels, got %v", got)
	}
	if _, ok := fx.store.Networks()["V1"]; !ok {
		t.Fatalf("expected network activated")
	}
	if v, _ := fx.store.LastActiveVenue(); v != "V1" {
		t.Fatalf("expected last-active V1, got %q", v)
	}
	if !fx.viewer.FakeScene.Hidden["V1"] {
		t.Fatalf("expected venue footprint hidden after activation")
	}
	if fx.store.ClickProcessing() {
		t.Fatalf("expected guard cleared")
	}
}

func TestHandleClick_WallFallsThrough(t *testing.T) {
	loader := &fakeLoader{bd: buildingDoc("V1"), nfcErr: mapdata.ErrDataUnavailable}
	fx := newFixture(t, loader)
	fx.viewer.FakeScene.DrillResult = []engine.Entity{
		{ID: "w1", Kind: engine.EntityKindWall},
		venueEntity("V1"),
	}

	fx.dispatcher.HandleClick(context.Background(), engine.ScreenPoint{})

	if _, ok := fx.store.Building("V1"); !ok {
		t.Fatalf("expected the wall to fall through to the venue behind it")
	}
	// Failed network fetch still activates the building, without a network.
	if len(fx.store.Networks()) != 0 {
		t.Fatalf("expected no network after failed fetch")
	}
}

func TestHandleClick_EmptySpace(t *testing.T) {
	loader := &fakeLoader{}
	fx := newFixture(t, loader)
	ev := &recordedEvents{}
	fx.dispatcher.SetEvents(ev)
	fx.viewer.FakeScene.DrillResult = []engine.Entity{{ID: "w1", Kind: engine.EntityKindWall}}

	fx.dispatcher.HandleClick(context.Background(), engine.ScreenPoint{})

	if ev.empty != 1 {
		t.Fatalf("expected one empty-space event, got %d", ev.empty)
	}
	if calls, _ := loader.calls(); calls != 0 {
		t.Fatalf("expected no fetch for empty space")
	}
}

func TestHandleClick_FeatureSelected(t *testing.T) {
	loader := &fakeLoader{}
	fx := newFixture(t, loader)
	ev := &recordedEvents{}
	fx.dispatcher.SetEvents(ev)
	fx.viewer.FakeScene.DrillResult = []engine.Entity{{ID: "unit-7", Kind: "unit", VenueID: "V1"}}

	fx.dispatcher.HandleClick(context.Background(), engine.ScreenPoint{})

	if len(ev.features) != 1 || ev.features[0].ID != "unit-7" {
		t.Fatalf("expected feature event, got %v", ev.features)
	}
	if calls, _ := loader.calls(); calls != 0 {
		t.Fatalf("feature selection must not fetch")
	}
}

func TestHandleClick_FetchFailureLeavesStateUntouched(t *testing.T) {
	loader := &fakeLoader{bdErr: mapdata.ErrDataUnavailable}
	fx := newFixture(t, loader)
	fx.viewer.FakeScene.DrillResult = []engine.Entity{venueEntity("V1")}

	fx.dispatcher.HandleClick(context.Background(), engine.ScreenPoint{})

	if len(fx.store.Buildings()) != 0 {
		t.Fatalf("expected no partial activation")
	}
	if _, ok := fx.store.LastActiveVenue(); ok {
		t.Fatalf("expected last-active untouched")
	}
	if fx.store.ClickProcessing() {
		t.Fatalf("expected guard cleared after failure")
	}
	if len(fx.viewer.FakeScene.Hidden) != 0 {
		t.Fatalf("expected footprint still visible after failed click")
	}
}

func TestHandleClick_ReentrancyGuard(t *testing.T) {
	block := make(chan struct{})
	loader := &fakeLoader{bd: buildingDoc("V1"), block: block}
	fx := newFixture(t, loader)
	fx.viewer.FakeScene.DrillResult = []engine.Entity{venueEntity("V1")}

	var guardSets, guardClears int
	fx.store.Subscribe(viewstate.EventClickProcessingChanged, func(p any) {
		if v, _ := p.(bool); v {
			guardSets++
		} else {
			guardClears++
		}
	})

	first := make(chan bool)
	go func() {
		first <- fx.dispatcher.HandleClick(context.Background(), engine.ScreenPoint{})
	}()

	// Wait for the first click to take the guard.
	deadline := time.After(2 * time.Second)
	for !fx.store.ClickProcessing() {
		select {
		case <-deadline:
			t.Fatalf("first click never took the guard")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	// Second click on a different venue is deduped by the same global flag.
	fx.viewer.FakeScene.DrillResult = []engine.Entity{venueEntity("V2")}
	if fx.dispatcher.HandleClick(context.Background(), engine.ScreenPoint{}) {
		t.Fatalf("expected overlapping click to be dropped")
	}

	close(block)
	if !<-first {
		t.Fatalf("expected first click handled")
	}

	if calls, _ := loader.calls(); calls != 1 {
		t.Fatalf("expected exactly one fetch, got %d", calls)
	}
	if guardSets != 1 || guardClears != 1 {
		t.Fatalf("expected guard set and cleared exactly once, got sets=%d clears=%d", guardSets, guardClears)
	}
	if fx.store.ClickProcessing() {
		t.Fatalf("expected guard clear at the end")
	}
}

func TestHandleClick_AlreadyActiveVenueSkipsFetch(t *testing.T) {
	loader := &fakeLoader{bd: buildingDoc("V1"), nfc: &geo.FeatureCollection{Features: []geo.Feature{{ID: "n1"}}}}
	fx := newFixture(t, loader)
	fx.viewer.FakeScene.DrillResult = []engine.Entity{venueEntity("V1")}

	fx.dispatcher.HandleClick(context.Background(), engine.ScreenPoint{})
	before, _ := loader.calls()

	// Activate another venue, then click V1 again: handles are reused.
	loader.bd = buildingDoc("V2")
	fx.viewer.FakeScene.DrillResult = []engine.Entity{venueEntity("V2")}
	fx.dispatcher.HandleClick(context.Background(), engine.ScreenPoint{})

	fx.viewer.FakeScene.DrillResult = []engine.Entity{venueEntity("V1")}
	fx.dispatcher.HandleClick(context.Background(), engine.ScreenPoint{})

	after, _ := loader.calls()
	if after != before+1 {
		t.Fatalf("expected only V2's fetch after the initial V1 load, got %d -> %d", before, after)
	}
	if v, _ := fx.store.LastActiveVenue(); v != "V1" {
		t.Fatalf("expected re-click to make V1 last-active, got %q", v)
	}
}

func TestHandleClick_NoViewer(t *testing.T) {
	loader := &fakeLoader{}
	log := zerolog.Nop()
	store := viewstate.NewStore(log)
	actions := viewstate.NewActions(store, log)
	d := NewDispatcher(log, store, actions, loader)

	if d.HandleClick(context.Background(), engine.ScreenPoint{}) {
		t.Fatalf("expected click before initialization to be dropped")
	}
	if fx := store.ClickProcessing(); fx {
		t.Fatalf("expected guard untouched")
	}
}
