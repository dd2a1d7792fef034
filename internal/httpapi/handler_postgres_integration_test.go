package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"wayfinder/core-go/internal/auth"
	"wayfinder/core-go/internal/db"
	"wayfinder/core-go/internal/sqlcgen"
)

func requireTestDatabaseURL(t *testing.T) string {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping Postgres integration test")
	}
	return dsn
}

func mustDeriveDatabaseURL(t *testing.T, baseURL, dbName string) string {
	t.Helper()

	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		t.Skipf("TEST_DATABASE_URL must be a URL-style DSN (e.g. postgres://...); got %q", baseURL)
	}

	u.Path = "/" + dbName
	return u.String()
}

func newTestDatabaseName() string {
	// Safe identifier (letters/digits/underscores) so we can use it without quoting.
	return fmt.Sprintf("wayfinder_test_%d", time.Now().UnixNano())
}

func createDatabase(ctx context.Context, adminURL, dbName string) error {
	adminConn, err := pgx.Connect(ctx, adminURL)
	if err != nil {
		return err
	}
	defer adminConn.Close(ctx)

	_, err = adminConn.Exec(ctx, "CREATE DATABASE "+dbName)
	return err
}

func dropDatabase(ctx context.Context, adminURL, dbName string) error {
	adminConn, err := pgx.Connect(ctx, adminURL)
	if err != nil {
		return err
	}
	defer adminConn.Close(ctx)

	if _, err := adminConn.Exec(ctx, "DROP DATABASE "+dbName+" WITH (FORCE)"); err == nil {
		return nil
	}
	_, err = adminConn.Exec(ctx, "DROP DATABASE "+dbName)
	return err
}

func TestHandler_Postgres_VenueFlow(t *testing.T) {
	adminURL := requireTestDatabaseURL(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dbName := newTestDatabaseName()
	testDBURL := mustDeriveDatabaseURL(t, adminURL, dbName)

	if err := createDatabase(ctx, adminURL, dbName); err != nil {
		t.Fatalf("create database: %v", err)
	}
	t.Cleanup(func() {
		_ = dropDatabase(context.Background(), adminURL, dbName)
	})

	pool, err := db.Open(ctx, testDBURL)
	if err != nil {
		t.Fatalf("open db pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := pool.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	q := pool.Queries()
	if err := q.UpsertVenue(ctx, sqlcgen.UpsertVenueParams{
		VenueID:   "V1",
		Name:      "North Mall",
		Footprint: []byte(`{"id":"V1","properties":{"venue_id":"V1"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[0,1],[1,1],[0,0]]]}}`),
	}); err != nil {
		t.Fatalf("upsert venue: %v", err)
	}
	if err := q.UpsertBuildingDocument(ctx, sqlcgen.UpsertBuildingDocumentParams{
		VenueID:  "V1",
		Document: []byte(`{"venue_id":"V1","levels":{"features":[]}}`),
	}); err != nil {
		t.Fatalf("upsert building document: %v", err)
	}

	hash, err := auth.HashPassword("integration-pass")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if _, err := q.CreateAccount(ctx, sqlcgen.CreateAccountParams{
		Username:     "itest",
		PasswordHash: hash,
		Role:         "admin",
	}); err != nil && err != pgx.ErrNoRows {
		t.Fatalf("create account: %v", err)
	}

	sessions := auth.NewSessions(NewLogger("error"), time.Hour)
	h := NewHandler(NewLogger("error"), pool, sessions, nil)
	router := h.Router()

	rrReady := httptest.NewRecorder()
	router.ServeHTTP(rrReady, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rrReady.Code != http.StatusOK {
		t.Fatalf("readyz expected 200, got %d: %s", rrReady.Code, rrReady.Body.String())
	}

	rrVenues := httptest.NewRecorder()
	router.ServeHTTP(rrVenues, httptest.NewRequest(http.MethodGet, "/api/v1/venues", nil))
	if rrVenues.Code != http.StatusOK {
		t.Fatalf("venues expected 200, got %d: %s", rrVenues.Code, rrVenues.Body.String())
	}
	var venues struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(rrVenues.Body.Bytes(), &venues); err != nil {
		t.Fatalf("decode venues: %v", err)
	}
	if venues.Type != "FeatureCollection" || len(venues.Features) != 1 {
		t.Fatalf("expected collection with one footprint, got %+v", venues)
	}

	rrBuilding := httptest.NewRecorder()
	router.ServeHTTP(rrBuilding, httptest.NewRequest(http.MethodGet, "/api/v1/building_data?venue_id=V1", nil))
	if rrBuilding.Code != http.StatusOK {
		t.Fatalf("building_data expected 200, got %d: %s", rrBuilding.Code, rrBuilding.Body.String())
	}

	rrNetwork := httptest.NewRecorder()
	router.ServeHTTP(rrNetwork, httptest.NewRequest(http.MethodGet, "/api/v1/network_data?venue_id=V1", nil))
	if rrNetwork.Code != http.StatusNotFound {
		t.Fatalf("network_data expected 404 before ingest, got %d", rrNetwork.Code)
	}

	rrLogin := httptest.NewRecorder()
	router.ServeHTTP(rrLogin, httptest.NewRequest(http.MethodPost, "/api/v1/login", strings.NewReader(`{"username":"itest","password":"integration-pass"}`)))
	if rrLogin.Code != http.StatusOK {
		t.Fatalf("login expected 200, got %d: %s", rrLogin.Code, rrLogin.Body.String())
	}
	var login loginResponse
	if err := json.Unmarshal(rrLogin.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode login: %v", err)
	}

	rrJob := httptest.NewRecorder()
	reqJob := httptest.NewRequest(http.MethodPost, "/api/v1/ingest/jobs", strings.NewReader(`{"venue_id":"V1","kind":"network","payload":{"features":{"type":"FeatureCollection","features":[]}}}`))
	reqJob.Header.Set("Authorization", "Bearer "+login.Token)
	router.ServeHTTP(rrJob, reqJob)
	if rrJob.Code != http.StatusAccepted {
		t.Fatalf("ingest submit expected 202, got %d: %s", rrJob.Code, rrJob.Body.String())
	}
	var job ingestJobResponse
	if err := json.Unmarshal(rrJob.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.Status != "queued" {
		t.Fatalf("expected queued job, got %+v", job)
	}

	rrGet := httptest.NewRecorder()
	reqGet := httptest.NewRequest(http.MethodGet, "/api/v1/ingest/jobs/"+job.ID, nil)
	reqGet.Header.Set("Authorization", "Bearer "+login.Token)
	router.ServeHTTP(rrGet, reqGet)
	if rrGet.Code != http.StatusOK {
		t.Fatalf("ingest get expected 200, got %d: %s", rrGet.Code, rrGet.Body.String())
	}
}
