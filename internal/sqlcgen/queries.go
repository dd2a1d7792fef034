package sqlcgen

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX matches the minimal interface needed from pgxpool.Pool or pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgx.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const insertAuditEvent = `-- name: InsertAuditEvent :exec
INSERT INTO audit_events (
  actor,
  action,
  target_type,
  target_id,
  details
)
VALUES ($1, $2, $3, $4, COALESCE($5, '{}'::jsonb))
`

type InsertAuditEventParams struct {
	Actor      string
	Action     string
	TargetType *string
	TargetID   *string
	Details    map[string]any
}

func (q *Queries) InsertAuditEvent(ctx context.Context, arg InsertAuditEventParams) error {
	_, err := q.db.Exec(ctx, insertAuditEvent, arg.Actor, arg.Action, arg.TargetType, arg.TargetID, arg.Details)
	return err
}

const listVenues = `-- name: ListVenues :many
SELECT venue_id, name, footprint, updated_at
FROM venues
ORDER BY venue_id ASC
`

func (q *Queries) ListVenues(ctx context.Context) ([]Venue, error) {
	rows, err := q.db.Query(ctx, listVenues)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Venue
	for rows.Next() {
		var i Venue
		if err := rows.Scan(&i.VenueID, &i.Name, &i.Footprint, &i.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const getVenue = `-- name: GetVenue :one
SELECT venue_id, name, footprint, updated_at
FROM venues
WHERE venue_id = $1
`

func (q *Queries) GetVenue(ctx context.Context, venueID string) (Venue, error) {
	row := q.db.QueryRow(ctx, getVenue, venueID)
	var i Venue
	err := row.Scan(&i.VenueID, &i.Name, &i.Footprint, &i.UpdatedAt)
	return i, err
}

const upsertVenue = `-- name: UpsertVenue :exec
INSERT INTO venues (venue_id, name, footprint)
VALUES ($1, $2, $3::jsonb)
ON CONFLICT (venue_id) DO UPDATE
SET name = EXCLUDED.name,
    footprint = EXCLUDED.footprint,
    updated_at = now()
`

type UpsertVenueParams struct {
	VenueID   string
	Name      string
	Footprint []byte
}

func (q *Queries) UpsertVenue(ctx context.Context, arg UpsertVenueParams) error {
	_, err := q.db.Exec(ctx, upsertVenue, arg.VenueID, arg.Name, arg.Footprint)
	return err
}

const getBuildingDocument = `-- name: GetBuildingDocument :one
SELECT venue_id, document, updated_at
FROM building_documents
WHERE venue_id = $1
`

func (q *Queries) GetBuildingDocument(ctx context.Context, venueID string) (BuildingDocument, error) {
	row := q.db.QueryRow(ctx, getBuildingDocument, venueID)
	var i BuildingDocument
	err := row.Scan(&i.VenueID, &i.Document, &i.UpdatedAt)
	return i, err
}

const upsertBuildingDocument = `-- name: UpsertBuildingDocument :exec
INSERT INTO building_documents (venue_id, document)
VALUES ($1, $2::jsonb)
ON CONFLICT (venue_id) DO UPDATE
SET document = EXCLUDED.document,
    updated_at = now()
`

type UpsertBuildingDocumentParams struct {
	VenueID  string
	Document []byte
}

func (q *Queries) UpsertBuildingDocument(ctx context.Context, arg UpsertBuildingDocumentParams) error {
	_, err := q.db.Exec(ctx, upsertBuildingDocument, arg.VenueID, arg.Document)
	return err
}

const getNetworkDocument = `-- name: GetNetworkDocument :one
SELECT venue_id, features, updated_at
FROM network_documents
WHERE venue_id = $1
`

func (q *Queries) GetNetworkDocument(ctx context.Context, venueID string) (NetworkDocument, error) {
	row := q.db.QueryRow(ctx, getNetworkDocument, venueID)
	var i NetworkDocument
	err := row.Scan(&i.VenueID, &i.Features, &i.UpdatedAt)
	return i, err
}

const upsertNetworkDocument = `-- name: UpsertNetworkDocument :exec
INSERT INTO network_documents (venue_id, features)
VALUES ($1, $2::jsonb)
ON CONFLICT (venue_id) DO UPDATE
SET features = EXCLUDED.features,
    updated_at = now()
`

type UpsertNetworkDocumentParams struct {
	VenueID  string
	Features []byte
}

func (q *Queries) UpsertNetworkDocument(ctx context.Context, arg UpsertNetworkDocumentParams) error {
	_, err := q.db.Exec(ctx, upsertNetworkDocument, arg.VenueID, arg.Features)
	return err
}

const getAccountByUsername = `-- name: GetAccountByUsername :one
SELECT id, username, password_hash, role, created_at
FROM accounts
WHERE username = $1
`

func (q *Queries) GetAccountByUsername(ctx context.Context, username string) (Account, error) {
	row := q.db.QueryRow(ctx, getAccountByUsername, username)
	var i Account
	err := row.Scan(&i.ID, &i.Username, &i.PasswordHash, &i.Role, &i.CreatedAt)
	return i, err
}

const createAccount = `-- name: CreateAccount :one
INSERT INTO accounts (username, password_hash, role)
VALUES ($1, $2, $3)
ON CONFLICT (username) DO NOTHING
RETURNING id, username, password_hash, role, created_at
`

type CreateAccountParams struct {
	Username     string
	PasswordHash string
	Role         string
}

func (q *Queries) CreateAccount(ctx context.Context, arg CreateAccountParams) (Account, error) {
	row := q.db.QueryRow(ctx, createAccount, arg.Username, arg.PasswordHash, arg.Role)
	var i Account
	err := row.Scan(&i.ID, &i.Username, &i.PasswordHash, &i.Role, &i.CreatedAt)
	return i, err
}

const insertIngestJob = `-- name: InsertIngestJob :one
INSERT INTO ingest_jobs (venue_id, kind, status, payload)
VALUES ($1, $2, 'queued', COALESCE($3, '{}'::jsonb))
RETURNING id, venue_id, kind, status, payload, attempts, created_at, completed_at, last_error
`

type InsertIngestJobParams struct {
	VenueID string
	Kind    string
	Payload []byte
}

func (q *Queries) InsertIngestJob(ctx context.Context, arg InsertIngestJobParams) (IngestJob, error) {
	row := q.db.QueryRow(ctx, insertIngestJob, arg.VenueID, arg.Kind, arg.Payload)
	var i IngestJob
	err := row.Scan(
		&i.ID,
		&i.VenueID,
		&i.Kind,
		&i.Status,
		&i.Payload,
		&i.Attempts,
		&i.CreatedAt,
		&i.CompletedAt,
		&i.LastError,
	)
	return i, err
}

const claimNextIngestJob = `-- name: ClaimNextIngestJob :one
WITH next AS (
  SELECT id
  FROM ingest_jobs
  WHERE status = 'queued'
  ORDER BY created_at ASC
  LIMIT 1
  FOR UPDATE SKIP LOCKED
)
UPDATE ingest_jobs j
SET status = 'running',
    attempts = j.attempts + 1,
    completed_at = NULL,
    last_error = NULL
FROM next
WHERE j.id = next.id
RETURNING j.id, j.venue_id, j.kind, j.status, j.payload, j.attempts, j.created_at, j.completed_at, j.last_error
`

func (q *Queries) ClaimNextIngestJob(ctx context.Context) (IngestJob, error) {
	row := q.db.QueryRow(ctx, claimNextIngestJob)
	var i IngestJob
	err := row.Scan(
		&i.ID,
		&i.VenueID,
		&i.Kind,
		&i.Status,
		&i.Payload,
		&i.Attempts,
		&i.CreatedAt,
		&i.CompletedAt,
		&i.LastError,
	)
	return i, err
}

const updateIngestJob = `-- name: UpdateIngestJob :one
UPDATE ingest_jobs
SET status = $2,
    completed_at = $3,
    last_error = $4
WHERE id = $1
RETURNING id, venue_id, kind, status, payload, attempts, created_at, completed_at, last_error
`

type UpdateIngestJobParams struct {
	ID          string
	Status      string
	CompletedAt *time.Time
	LastError   *string
}

func (q *Queries) UpdateIngestJob(ctx context.Context, arg UpdateIngestJobParams) (IngestJob, error) {
	row := q.db.QueryRow(ctx, updateIngestJob, arg.ID, arg.Status, arg.CompletedAt, arg.LastError)
	var i IngestJob
	err := row.Scan(
		&i.ID,
		&i.VenueID,
		&i.Kind,
		&i.Status,
		&i.Payload,
		&i.Attempts,
		&i.CreatedAt,
		&i.CompletedAt,
		&i.LastError,
	)
	return i, err
}

const getIngestJob = `-- name: GetIngestJob :one
SELECT id, venue_id, kind, status, payload, attempts, created_at, completed_at, last_error
FROM ingest_jobs
WHERE id = $1
`

func (q *Queries) GetIngestJob(ctx context.Context, id string) (IngestJob, error) {
	row := q.db.QueryRow(ctx, getIngestJob, id)
	var i IngestJob
	err := row.Scan(
		&i.ID,
		&i.VenueID,
		&i.Kind,
		&i.Status,
		&i.Payload,
		&i.Attempts,
		&i.CreatedAt,
		&i.CompletedAt,
		&i.LastError,
	)
	return i, err
}

const listIngestJobs = `-- name: ListIngestJobs :many
SELECT id, venue_id, kind, status, payload, attempts, created_at, completed_at, last_error
FROM ingest_jobs
ORDER BY created_at DESC
LIMIT $1
`

func (q *Queries) ListIngestJobs(ctx context.Context, limit int32) ([]IngestJob, error) {
	rows, err := q.db.Query(ctx, listIngestJobs, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []IngestJob
	for rows.Next() {
		var i IngestJob
		if err := rows.Scan(
			&i.ID,
			&i.VenueID,
			&i.Kind,
			&i.Status,
			&i.Payload,
			&i.Attempts,
			&i.CreatedAt,
			&i.CompletedAt,
			&i.LastError,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const insertIngestJobLog = `-- name: InsertIngestJobLog :exec
INSERT INTO ingest_job_logs (job_id, level, message)
VALUES ($1, $2, $3)
`

type InsertIngestJobLogParams struct {
	JobID   string
	Level   string
	Message string
}

func (q *Queries) InsertIngestJobLog(ctx context.Context, arg InsertIngestJobLogParams) error {
	_, err := q.db.Exec(ctx, insertIngestJobLog, arg.JobID, arg.Level, arg.Message)
	return err
}
