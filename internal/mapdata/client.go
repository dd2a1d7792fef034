// Package mapdata is the client side of the map data boundary: venue
// footprints, building documents and pedestrian networks served by the API.
// Any non-2xx response is "data unavailable for this venue", never a crash
// of the interaction flow.
package mapdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"wayfinder/core-go/internal/geo"
	"wayfinder/core-go/internal/metrics"
)

// ErrDataUnavailable covers every upstream failure: non-2xx status, network
// error, undecodable body.
var ErrDataUnavailable = errors.New("map data unavailable")

// BuildingData is the nested document served for one venue.
type BuildingData struct {
	VenueID   string                `json:"venue_id"`
	Levels    geo.FeatureCollection `json:"levels"`
	Units     geo.FeatureCollection `json:"units"`
	Openings  geo.FeatureCollection `json:"openings"`
	Windows   geo.FeatureCollection `json:"windows"`
	Amenities geo.FeatureCollection `json:"amenities"`
	Occupants geo.FeatureCollection `json:"occupants"`
}

// BuildingLevels extracts the level list (id, elevation) from the levels
// collection, bottom-up.
func (b *BuildingData) BuildingLevels() []geo.Level {
	if b == nil {
		return nil
	}
	out := make([]geo.Level, 0, len(b.Levels.Features))
	for _, f := range b.Levels.Features {
		l := geo.Level{ID: f.ID}
		if f.Properties != nil {
			if id, ok := f.Properties["level_id"].(string); ok && id != "" {
				l.ID = id
			}
			if name, ok := f.Properties["name"].(string); ok {
				l.Name = name
			}
			if z, ok := f.Properties["z_value"].(float64); ok {
				l.ZValue = z
			}
		}
		if l.ID == "" {
			continue
		}
		out = append(out, l)
	}
	geo.SortLevels(out)
	return out
}

type Client struct {
	log     zerolog.Logger
	metrics *metrics.Metrics
	baseURL string
	http    *http.Client
}

func NewClient(log zerolog.Logger, m *metrics.Metrics, baseURL string) *Client {
	return &Client{
		log:     log,
		metrics: m,
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchVenues returns every venue footprint the caller is allowed to see.
func (c *Client) FetchVenues(ctx context.Context) (*geo.FeatureCollection, error) {
	var fc geo.FeatureCollection
	if err := c.getJSON(ctx, "venues", "/api/v1/venues", nil, &fc); err != nil {
		return nil, err
	}
	return &fc, nil
}

// FetchBuildingData returns the nested building document for one venue.
func (c *Client) FetchBuildingData(ctx context.Context, venueID string) (*BuildingData, error) {
	var bd BuildingData
	q := url.Values{"venue_id": []string{venueID}}
	if err := c.getJSON(ctx, "building", "/api/v1/building_data", q, &bd); err != nil {
		return nil, err
	}
	if bd.VenueID == "" {
		bd.VenueID = venueID
	}
	return &bd, nil
}

// FetchNetworkData returns the pedestrian network for one venue.
func (c *Client) FetchNetworkData(ctx context.Context, venueID string) (*geo.FeatureCollection, error) {
	var fc geo.FeatureCollection
	q := url.Values{"venue_id": []string{venueID}}
	if err := c.getJSON(ctx, "network", "/api/v1/network_data", q, &fc); err != nil {
		return nil, err
	}
	return &fc, nil
}

type errorBody struct {
	Error string `json:"error"`
}

func (c *Client) getJSON(ctx context.Context, kind, path string, q url.Values, dst any) error {
	start := time.Now()
	outcome := "error"
	defer func() {
		c.metrics.ObserveDataFetch(kind, outcome, time.Since(start))
	}()

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("kind", kind).Msg("map data fetch failed")
		return fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		c.log.Warn().Int("status", resp.StatusCode).Str("kind", kind).Str("error", eb.Error).Msg("map data fetch rejected")
		return fmt.Errorf("%w: status %d", ErrDataUnavailable, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		c.log.Warn().Err(err).Str("kind", kind).Msg("map data decode failed")
		return fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	outcome = "ok"
	return nil
}
