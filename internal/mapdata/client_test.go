package mapdata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"wayfinder/core-go/internal/geo"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(zerolog.Nop(), nil, srv.URL), srv
}

func TestFetchVenues(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/venues" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"type":"FeatureCollection","features":[{"id":"V1","geometry":{"type":"Polygon","coordinates":[]}}]}`))
	})

	fc, err := c.FetchVenues(context.Background())
	if err != nil {
		t.Fatalf("FetchVenues: %v", err)
	}
	if len(fc.Features) != 1 || fc.Features[0].ID != "V1" {
		t.Fatalf("unexpected collection %+v", fc)
	}
}

func TestFetchBuildingData(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("venue_id"); got != "V1" {
			t.Errorf("expected venue_id=V1, got %q", got)
		}
		w.Write([]byte(`{
			"levels": {"features": [
				{"id": "f2", "properties": {"level_id": "L2", "name": "Second", "z_value": 10}},
				{"id": "f1", "properties": {"level_id": "L1", "name": "Ground", "z_value": 0}}
			]},
			"units": {"features": [{"id": "u1"}]}
		}`))
	})

	bd, err := c.FetchBuildingData(context.Background(), "V1")
	if err != nil {
		t.Fatalf("FetchBuildingData: %v", err)
	}
	if bd.VenueID != "V1" {
		t.Fatalf("expected venue id filled in, got %q", bd.VenueID)
	}
	levels := bd.BuildingLevels()
	want := []geo.Level{
		{ID: "L1", Name: "Ground", ZValue: 0},
		{ID: "L2", Name: "Second", ZValue: 10},
	}
	if len(levels) != len(want) {
		t.Fatalf("expected %d levels, got %v", len(want), levels)
	}
	for i := range want {
		if levels[i] != want[i] {
			t.Fatalf("level %d: got %+v, want %+v", i, levels[i], want[i])
		}
	}
}

func TestFetchBuildingData_NotFound(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"venue not found"}`))
	})

	_, err := c.FetchBuildingData(context.Background(), "missing")
	if !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
}

func TestFetchNetworkData_BadBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"features": "not-a-list"`))
	})

	_, err := c.FetchNetworkData(context.Background(), "V1")
	if !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
}

func TestFetchVenues_ServerDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := NewClient(zerolog.Nop(), nil, srv.URL)

	_, err := c.FetchVenues(context.Background())
	if !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
}

func TestBuildingLevels_SkipsMissingIDs(t *testing.T) {
	bd := &BuildingData{Levels: geo.FeatureCollection{Features: []geo.Feature{
		{Properties: map[string]any{"z_value": 5.0}},
		{ID: "f1", Properties: map[string]any{"level_id": "L1", "z_value": 0.0}},
	}}}
	levels := bd.BuildingLevels()
	if len(levels) != 1 || levels[0].ID != "L1" {
		t.Fatalf("expected only the identified level, got %v", levels)
	}
}
