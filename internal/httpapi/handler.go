package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"wayfinder/core-go/internal/auth"
	"wayfinder/core-go/internal/db"
	"wayfinder/core-go/internal/metrics"
	"wayfinder/core-go/internal/sqlcgen"
)

type venueQueries interface {
	ListVenues(ctx context.Context) ([]sqlcgen.Venue, error)
	GetBuildingDocument(ctx context.Context, venueID string) (sqlcgen.BuildingDocument, error)
	GetNetworkDocument(ctx context.Context, venueID string) (sqlcgen.NetworkDocument, error)
}

type accountQueries interface {
	GetAccountByUsername(ctx context.Context, username string) (sqlcgen.Account, error)
	InsertAuditEvent(ctx context.Context, arg sqlcgen.InsertAuditEventParams) error
}

type ingestQueries interface {
	InsertIngestJob(ctx context.Context, arg sqlcgen.InsertIngestJobParams) (sqlcgen.IngestJob, error)
	GetIngestJob(ctx context.Context, id string) (sqlcgen.IngestJob, error)
	ListIngestJobs(ctx context.Context, limit int32) ([]sqlcgen.IngestJob, error)
}

type Handler struct {
	log      zerolog.Logger
	pool     *db.Pool
	venues   venueQueries
	accounts accountQueries
	ingest   ingestQueries
	sessions *auth.Sessions
	metrics  *metrics.Metrics
	hub      *Hub
}

func NewHandler(log zerolog.Logger, pool *db.Pool, sessions *auth.Sessions, m *metrics.Metrics) *Handler {
	h := &Handler{
		log:      log,
		pool:     pool,
		sessions: sessions,
		metrics:  m,
		hub:      NewHub(log),
	}
	if pool != nil {
		q := pool.Queries()
		h.venues = q
		h.accounts = q
		h.ingest = q
	}
	return h
}

// EventHub exposes the websocket hub so the ingest worker can publish
// change notifications.
func (h *Handler) EventHub() *Hub {
	return h.hub
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(h.accessLog)

	// Health
	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyZ)

	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	// API
	r.Route("/api", func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			r.Post("/login", h.handleLogin)
			r.Post("/logout", h.handleLogout)

			r.Get("/venues", h.handleListVenues)
			r.Get("/building_data", h.handleBuildingData)
			r.Get("/network_data", h.handleNetworkData)

			r.Get("/events", h.handleEvents)

			r.Route("/ingest", func(r chi.Router) {
				if h.sessions != nil {
					r.Use(h.sessions.RequireSession)
				}
				r.Post("/jobs", h.handleSubmitIngestJob)
				r.Get("/jobs", h.handleListIngestJobs)
				r.Get("/jobs/{id}", h.handleGetIngestJob)
			})
		})
	})

	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		if id := middleware.GetReqID(r.Context()); id != "" {
			ww.Header().Set("X-Request-ID", id)
		}

		next.ServeHTTP(ww, r)

		h.metrics.ObserveHTTPRequest(r.Method, r.URL.Path, ww.Status(), time.Since(start))
		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("http_request")
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeRawJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	resp := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	}
	if details != nil {
		resp["error"].(map[string]any)["details"] = details
	}
	h.writeJSON(w, status, resp)
}

func decodeJSONStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("unexpected extra data after JSON body")
		}
		return err
	}
	return nil
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleReadyZ(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.pool == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return
	}

	if err := h.pool.Ping(ctx); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not ready", map[string]any{"error": err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

func (h *Handler) ensureVenues(w http.ResponseWriter) bool {
	if h.venues == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return false
	}
	return true
}

// handleListVenues assembles every venue footprint into one GeoJSON
// feature collection. Footprints are stored as GeoJSON features and pass
// through untouched.
func (h *Handler) handleListVenues(w http.ResponseWriter, r *http.Request) {
	if !h.ensureVenues(w) {
		return
	}

	rows, err := h.venues.ListVenues(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("list venues failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to list venues", nil)
		return
	}

	features := make([]json.RawMessage, 0, len(rows))
	for _, v := range rows {
		if len(v.Footprint) == 0 {
			continue
		}
		features = append(features, json.RawMessage(v.Footprint))
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"type":     "FeatureCollection",
		"features": features,
	})
}

func venueIDParam(r *http.Request) string {
	return r.URL.Query().Get("venue_id")
}

func (h *Handler) handleBuildingData(w http.ResponseWriter, r *http.Request) {
	venueID := venueIDParam(r)
	if venueID == "" {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "venue_id is required", nil)
		return
	}
	if !h.ensureVenues(w) {
		return
	}

	doc, err := h.venues.GetBuildingDocument(r.Context(), venueID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			h.writeError(w, http.StatusNotFound, "not_found", "no building data for venue", map[string]any{"venue_id": venueID})
			return
		}
		h.log.Error().Err(err).Str("venue_id", venueID).Msg("get building data failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to fetch building data", nil)
		return
	}

	h.writeRawJSON(w, http.StatusOK, doc.Document)
}

func (h *Handler) handleNetworkData(w http.ResponseWriter, r *http.Request) {
	venueID := venueIDParam(r)
	if venueID == "" {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "venue_id is required", nil)
		return
	}
	if !h.ensureVenues(w) {
		return
	}

	doc, err := h.venues.GetNetworkDocument(r.Context(), venueID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			h.writeError(w, http.StatusNotFound, "not_found", "no network data for venue", map[string]any{"venue_id": venueID})
			return
		}
		h.log.Error().Err(err).Str("venue_id", venueID).Msg("get network data failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to fetch network data", nil)
		return
	}

	h.writeRawJSON(w, http.StatusOK, doc.Features)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	if req.Username == "" || req.Password == "" {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "username and password are required", nil)
		return
	}

	if h.accounts == nil || h.sessions == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "login not available", nil)
		return
	}

	account, err := h.accounts.GetAccountByUsername(r.Context(), req.Username)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			h.log.Error().Err(err).Msg("account lookup failed")
		}
		// Unknown user and wrong password are indistinguishable.
		h.writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid username or password", nil)
		return
	}

	if !auth.VerifyPassword(account.PasswordHash, req.Password) {
		h.writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid username or password", nil)
		return
	}

	sess := h.sessions.Create(account.Username, account.Role)
	_ = h.accounts.InsertAuditEvent(r.Context(), sqlcgen.InsertAuditEventParams{
		Actor:  account.Username,
		Action: "login",
	})

	h.writeJSON(w, http.StatusOK, loginResponse{
		Token:     sess.Token,
		Role:      sess.Role,
		ExpiresAt: sess.ExpiresAt,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	token := auth.TokenFromRequest(r)
	if token == "" {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "missing session token", nil)
		return
	}
	if h.sessions.Revoke(token) && h.accounts != nil {
		_ = h.accounts.InsertAuditEvent(r.Context(), sqlcgen.InsertAuditEventParams{
			Actor:  "session",
			Action: "logout",
		})
	}
	w.WriteHeader(http.StatusNoContent)
}

type ingestJobRequest struct {
	VenueID string          `json:"venue_id"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type ingestJobResponse struct {
	ID          string     `json:"id"`
	VenueID     string     `json:"venue_id"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	Attempts    int32      `json:"attempts"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	LastError   *string    `json:"last_error,omitempty"`
}

func toIngestJob(j sqlcgen.IngestJob) ingestJobResponse {
	return ingestJobResponse{
		ID:          j.ID,
		VenueID:     j.VenueID,
		Kind:        j.Kind,
		Status:      j.Status,
		Attempts:    j.Attempts,
		CreatedAt:   j.CreatedAt,
		CompletedAt: j.CompletedAt,
		LastError:   j.LastError,
	}
}

var ingestKinds = map[string]bool{
	"venue":    true,
	"building": true,
	"network":  true,
}

func (h *Handler) handleSubmitIngestJob(w http.ResponseWriter, r *http.Request) {
	var req ingestJobRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	if req.VenueID == "" || !ingestKinds[req.Kind] {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "venue_id and a valid kind are required", nil)
		return
	}

	if h.ingest == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return
	}

	job, err := h.ingest.InsertIngestJob(r.Context(), sqlcgen.InsertIngestJobParams{
		VenueID: req.VenueID,
		Kind:    req.Kind,
		Payload: req.Payload,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("submit ingest job failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to submit ingest job", nil)
		return
	}

	h.writeJSON(w, http.StatusAccepted, toIngestJob(job))
}

func (h *Handler) handleGetIngestJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.ingest == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return
	}

	job, err := h.ingest.GetIngestJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			h.writeError(w, http.StatusNotFound, "not_found", "ingest job not found", map[string]any{"id": id})
			return
		}
		h.log.Error().Err(err).Str("id", id).Msg("get ingest job failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to fetch ingest job", nil)
		return
	}

	h.writeJSON(w, http.StatusOK, toIngestJob(job))
}

func (h *Handler) handleListIngestJobs(w http.ResponseWriter, r *http.Request) {
	if h.ingest == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return
	}

	rows, err := h.ingest.ListIngestJobs(r.Context(), 50)
	if err != nil {
		h.log.Error().Err(err).Msg("list ingest jobs failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to list ingest jobs", nil)
		return
	}

	resp := make([]ingestJobResponse, 0, len(rows))
	for _, j := range rows {
		resp = append(resp, toIngestJob(j))
	}
	h.writeJSON(w, http.StatusOK, resp)
}
