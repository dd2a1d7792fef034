package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"wayfinder/core-go/internal/auth"
	"wayfinder/core-go/internal/config"
	"wayfinder/core-go/internal/db"
	"wayfinder/core-go/internal/floorplan"
	"wayfinder/core-go/internal/httpapi"
	"wayfinder/core-go/internal/ingestworker"
	"wayfinder/core-go/internal/interact"
	"wayfinder/core-go/internal/mapdata"
	"wayfinder/core-go/internal/metrics"
	"wayfinder/core-go/internal/sqlcgen"
	"wayfinder/core-go/internal/viewctl"
	"wayfinder/core-go/internal/viewstate"
)

func main() {
	cfg, err := config.Load(envOr("CONFIG_PATH", "config.yaml"))
	if err != nil {
		errLogger := httpapi.NewLogger("error")
		errLogger.Fatal().Err(err).Msg("failed to load config")
	}

	logger := httpapi.NewLogger(cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	var loader interact.Loader
	if cfg.Viewer.DataBaseURL != "" {
		loader = mapdata.NewClient(logger, m, cfg.Viewer.DataBaseURL)
	}
	core := newViewerCore(logger, m, loader)
	defer core.shutdown()
	if client, ok := loader.(*mapdata.Client); ok {
		if fc, err := client.FetchVenues(ctx); err != nil {
			logger.Warn().Err(err).Msg("venue collection prefetch failed")
		} else {
			core.manager.SetVenueCollection(fc)
		}
	}

	var pool *db.Pool
	if cfg.Database.URL != "" {
		p, err := db.Open(ctx, cfg.Database.URL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer p.Close()
		pool = p

		if cfg.Database.Migrate {
			if err := pool.Migrate(ctx); err != nil {
				logger.Fatal().Err(err).Msg("failed to run migrations")
			}
		}
		if cfg.Auth.AdminUsername != "" && cfg.Auth.AdminPassword != "" {
			if err := seedAdmin(ctx, pool.Queries(), cfg.Auth.AdminUsername, cfg.Auth.AdminPassword); err != nil {
				logger.Fatal().Err(err).Msg("failed to seed admin account")
			}
		}
	}

	sessions := auth.NewSessions(logger, cfg.Auth.SessionTTL.D())
	go sessions.Run(ctx)

	h := httpapi.NewHandler(logger, pool, sessions, m)
	go h.EventHub().Run(ctx)

	if pool != nil && cfg.Ingest.Enabled {
		worker := ingestworker.New(logger, pool.Queries(), ingestworker.Options{
			PollInterval: cfg.Ingest.PollInterval.D(),
			MaxRuntime:   cfg.Ingest.MaxRuntime.D(),
			Notifier:     h.EventHub(),
		}, m)
		go worker.Run(ctx)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("core-go listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.D())
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info().Msg("shutdown complete")
}

// viewerCore is the embedded view/state coordination layer: store, action
// façade, floor-plan manager, view controller and interaction dispatcher.
// An engine viewer attaches later through the action façade; until then the
// core idles with the venue collection primed.
type viewerCore struct {
	store      *viewstate.Store
	actions    *viewstate.Actions
	manager    *floorplan.Manager
	controller *viewctl.Controller
	dispatcher *interact.Dispatcher
}

func newViewerCore(log zerolog.Logger, m *metrics.Metrics, loader interact.Loader) *viewerCore {
	store := viewstate.NewStore(log)
	actions := viewstate.NewActions(store, log)
	manager := floorplan.NewManager(log, store, m)
	return &viewerCore{
		store:      store,
		actions:    actions,
		manager:    manager,
		controller: viewctl.New(log, store, actions, manager, m),
		dispatcher: interact.NewDispatcher(log, store, actions, loader),
	}
}

func (vc *viewerCore) shutdown() {
	vc.controller.Destroy()
	vc.store.Close()
}

// seedAdmin creates the initial admin account if it does not exist yet.
func seedAdmin(ctx context.Context, q *sqlcgen.Queries, username, password string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = q.CreateAccount(ctx, sqlcgen.CreateAccountParams{
		Username:     username,
		PasswordHash: hash,
		Role:         "admin",
	})
	// ON CONFLICT DO NOTHING yields no row when the account already exists.
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	return err
}

func envOr(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
