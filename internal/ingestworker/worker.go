// Package ingestworker drains the ingest job queue: validating submitted
// venue, building and network payloads and committing them to storage.
package ingestworker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"wayfinder/core-go/internal/geo"
	"wayfinder/core-go/internal/httpapi"
	"wayfinder/core-go/internal/metrics"
	"wayfinder/core-go/internal/sqlcgen"
)

// Queries is the minimal DB interface the ingest worker needs.
//
// NOTE: *sqlcgen.Queries satisfies this.
type Queries interface {
	ClaimNextIngestJob(ctx context.Context) (sqlcgen.IngestJob, error)
	UpdateIngestJob(ctx context.Context, arg sqlcgen.UpdateIngestJobParams) (sqlcgen.IngestJob, error)
	InsertIngestJobLog(ctx context.Context, arg sqlcgen.InsertIngestJobLogParams) error
	UpsertVenue(ctx context.Context, arg sqlcgen.UpsertVenueParams) error
	UpsertBuildingDocument(ctx context.Context, arg sqlcgen.UpsertBuildingDocumentParams) error
	UpsertNetworkDocument(ctx context.Context, arg sqlcgen.UpsertNetworkDocumentParams) error
}

// Notifier publishes change events to connected viewers. *httpapi.Hub
// satisfies this.
type Notifier interface {
	Publish(ev httpapi.Event)
}

type Worker struct {
	log          zerolog.Logger
	q            Queries
	pollInterval time.Duration
	maxRuntime   time.Duration
	notifier     Notifier
	metrics      *metrics.Metrics
}

type Options struct {
	PollInterval time.Duration
	MaxRuntime   time.Duration
	Notifier     Notifier
}

func New(log zerolog.Logger, q Queries, opts Options, m *metrics.Metrics) *Worker {
	pi := opts.PollInterval
	if pi <= 0 {
		pi = 400 * time.Millisecond
	}
	mr := opts.MaxRuntime
	if mr <= 0 {
		mr = 30 * time.Second
	}

	return &Worker{
		log:          log,
		q:            q,
		pollInterval: pi,
		maxRuntime:   mr,
		notifier:     opts.Notifier,
		metrics:      m,
	}
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.q == nil {
		return
	}

	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()

	var consecutiveFailures int
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		for {
			processed, err := w.runOnce(ctx)
			if err != nil {
				consecutiveFailures++
				break
			}
			consecutiveFailures = 0
			if !processed {
				break
			}
		}

		timer.Reset(backoffDuration(w.pollInterval, consecutiveFailures))
	}
}

func backoffDuration(base time.Duration, failures int) time.Duration {
	if base <= 0 {
		base = 400 * time.Millisecond
	}
	if failures <= 0 {
		return base
	}

	// Exponential-ish backoff: base * 2^failures, capped.
	if failures > 6 {
		failures = 6
	}
	d := base * time.Duration(1<<failures)
	if d > 10*time.Second {
		return 10 * time.Second
	}
	return d
}

func (w *Worker) runOnce(ctx context.Context) (bool, error) {
	job, err := w.q.ClaimNextIngestJob(ctx)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		w.log.Error().Err(err).Msg("ingest worker failed to claim next job")
		return false, err
	}

	w.metrics.IncIngestRun()
	start := time.Now()
	defer func() {
		w.metrics.ObserveIngestRunDuration(time.Since(start))
	}()

	w.log.Info().Str("job_id", job.ID).Str("venue_id", job.VenueID).Str("kind", job.Kind).Msg("ingest job claimed")

	execCtx, cancel := context.WithTimeout(ctx, w.maxRuntime)
	defer cancel()

	if err := w.q.InsertIngestJobLog(execCtx, sqlcgen.InsertIngestJobLogParams{
		JobID:   job.ID,
		Level:   "info",
		Message: "ingest job started",
	}); err != nil {
		w.log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to write ingest start log")
	}

	eventType, err := w.process(execCtx, job)
	if err != nil {
		_ = w.failJob(execCtx, job.ID, err.Error())
		return true, err
	}

	completedAt := time.Now()
	if _, err := w.q.UpdateIngestJob(execCtx, sqlcgen.UpdateIngestJobParams{
		ID:          job.ID,
		Status:      "succeeded",
		CompletedAt: &completedAt,
		LastError:   nil,
	}); err != nil {
		w.log.Error().Err(err).Str("job_id", job.ID).Msg("failed to mark ingest job succeeded")
		_ = w.failJob(execCtx, job.ID, err.Error())
		return true, err
	}

	if err := w.q.InsertIngestJobLog(execCtx, sqlcgen.InsertIngestJobLogParams{
		JobID:   job.ID,
		Level:   "info",
		Message: "ingest job completed",
	}); err != nil {
		w.log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to write ingest completion log")
	}

	if w.notifier != nil && eventType != "" {
		w.notifier.Publish(httpapi.Event{Type: eventType, VenueID: job.VenueID})
	}

	return true, nil
}

// venuePayload is the expected payload for kind=venue.
type venuePayload struct {
	Name      string          `json:"name"`
	Footprint json.RawMessage `json:"footprint"`
}

// buildingPayload is the expected payload for kind=building.
type buildingPayload struct {
	Document json.RawMessage `json:"document"`
}

// networkPayload is the expected payload for kind=network.
type networkPayload struct {
	Features json.RawMessage `json:"features"`
}

func (w *Worker) process(ctx context.Context, job sqlcgen.IngestJob) (string, error) {
	switch job.Kind {
	case "venue":
		var p venuePayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return "", fmt.Errorf("decode venue payload: %w", err)
		}
		if err := validateFootprint(p.Footprint); err != nil {
			return "", err
		}
		if err := w.q.UpsertVenue(ctx, sqlcgen.UpsertVenueParams{
			VenueID:   job.VenueID,
			Name:      p.Name,
			Footprint: p.Footprint,
		}); err != nil {
			return "", fmt.Errorf("upsert venue: %w", err)
		}
		return httpapi.EventVenueUpdated, nil

	case "building":
		var p buildingPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return "", fmt.Errorf("decode building payload: %w", err)
		}
		if err := validateBuildingDocument(p.Document); err != nil {
			return "", err
		}
		if err := w.q.UpsertBuildingDocument(ctx, sqlcgen.UpsertBuildingDocumentParams{
			VenueID:  job.VenueID,
			Document: p.Document,
		}); err != nil {
			return "", fmt.Errorf("upsert building document: %w", err)
		}
		return httpapi.EventBuildingUpdated, nil

	case "network":
		var p networkPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return "", fmt.Errorf("decode network payload: %w", err)
		}
		if err := validateFeatureCollection(p.Features); err != nil {
			return "", err
		}
		if err := w.q.UpsertNetworkDocument(ctx, sqlcgen.UpsertNetworkDocumentParams{
			VenueID:  job.VenueID,
			Features: p.Features,
		}); err != nil {
			return "", fmt.Errorf("upsert network document: %w", err)
		}
		return httpapi.EventNetworkUpdated, nil
	}

	return "", fmt.Errorf("unknown ingest kind %q", job.Kind)
}

// validateFootprint requires a GeoJSON feature with polygon geometry so
// that the viewer can always derive a bounding region from it.
func validateFootprint(raw json.RawMessage) error {
	if len(raw) == 0 {
		return errors.New("footprint is required")
	}
	var f geo.Feature
	if err := json.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("footprint is not a GeoJSON feature: %w", err)
	}
	if f.Geometry == nil {
		return errors.New("footprint has no geometry")
	}
	rings, err := f.Geometry.PolygonRings()
	if err != nil {
		return fmt.Errorf("footprint geometry: %w", err)
	}
	if len(rings) == 0 {
		return errors.New("footprint polygon is empty")
	}
	return nil
}

func validateBuildingDocument(raw json.RawMessage) error {
	if len(raw) == 0 {
		return errors.New("document is required")
	}
	var doc struct {
		Levels geo.FeatureCollection `json:"levels"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("document is not a building document: %w", err)
	}
	return nil
}

func validateFeatureCollection(raw json.RawMessage) error {
	if len(raw) == 0 {
		return errors.New("features are required")
	}
	var fc geo.FeatureCollection
	if err := json.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("features are not a feature collection: %w", err)
	}
	return nil
}

func (w *Worker) failJob(ctx context.Context, jobID, errMsg string) error {
	// If the provided context is already canceled/deadlined, still try to
	// mark the job failed with a short background context so we don't
	// leave it stuck in "running".
	if ctx == nil || ctx.Err() != nil {
		bg, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		ctx = bg
	}

	completedAt := time.Now()
	lastErr := errMsg
	_, err := w.q.UpdateIngestJob(ctx, sqlcgen.UpdateIngestJobParams{
		ID:          jobID,
		Status:      "failed",
		CompletedAt: &completedAt,
		LastError:   &lastErr,
	})
	if err != nil {
		w.log.Error().Err(err).Str("job_id", jobID).Msg("failed to mark ingest job failed")
		return err
	}

	_ = w.q.InsertIngestJobLog(ctx, sqlcgen.InsertIngestJobLogParams{
		JobID:   jobID,
		Level:   "error",
		Message: "ingest job failed: " + errMsg,
	})

	return nil
}
