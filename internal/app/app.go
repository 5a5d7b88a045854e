package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"scenereview/internal/config"
	"scenereview/internal/logger"
	"scenereview/internal/repository/sqlite"
	"scenereview/internal/services"
	"scenereview/internal/services/detector"
	"scenereview/internal/services/ingestion"
	"scenereview/internal/services/maintenance"
	"scenereview/internal/services/review"
	"scenereview/internal/services/scheduler"
	"scenereview/internal/services/stats"
	"scenereview/internal/services/websocket"
)

// App owns the wired service graph and the background workers.
type App struct {
	config      *config.Config
	logger      zerolog.Logger
	db          *sqlite.DB
	manager     *services.Manager
	hub         *websocket.HubService
	scheduler   *scheduler.Scheduler
	maintenance *maintenance.Service
}

// New wires the review service. The detector is injected by the caller;
// a nil detector disables image processing while keeping ingestion of
// precomputed detections available.
func New(det detector.Detector) (*App, error) {
	cfg := config.Load()

	log, err := logger.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sqlite.New(cfg.DatabasePath, cfg.StatementTimeout, cfg.LockWaitTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	sceneRepo := sqlite.NewSceneRepository(db)
	componentRepo := sqlite.NewComponentRepository(db)
	snapshotRepo := sqlite.NewSnapshotRepository(db)

	hub := websocket.NewHubService(log)
	ingestor := ingestion.NewCoordinator(db, sceneRepo, componentRepo, det, log)
	reviewer := review.NewStateMachine(db, sceneRepo, componentRepo, cfg.MinConfidence, log)
	refresher := stats.NewCoordinator(snapshotRepo, cfg.RefreshMaxAttempts, cfg.RefreshBaseDelay, cfg.RefreshMaxDelay, log)
	cache := stats.NewCache(refresher, cfg.CacheTTL, cfg.CacheCapacity, log)

	manager := services.NewManager(ingestor, reviewer, refresher, cache, snapshotRepo, hub, log)

	sched := scheduler.New(cfg.GlobalRefreshInterval, func(ctx context.Context) error {
		_, err := manager.RefreshGlobal(ctx)
		return err
	}, log)

	return &App{
		config:      cfg,
		logger:      log,
		db:          db,
		manager:     manager,
		hub:         hub,
		scheduler:   sched,
		maintenance: maintenance.New(db, cfg.BackupDirectory, log),
	}, nil
}

// Manager returns the review action boundary for the transport layer.
func (a *App) Manager() *services.Manager {
	return a.manager
}

// Hub returns the event hub for the transport layer to register
// websocket connections on.
func (a *App) Hub() *websocket.HubService {
	return a.hub
}

// Maintenance returns the ledger maintenance service.
func (a *App) Maintenance() *maintenance.Service {
	return a.maintenance
}

// Run starts the background workers and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	go a.hub.Run(ctx)
	go a.scheduler.Run(ctx)

	a.logger.Info().
		Int("port", a.config.Port).
		Str("database", a.config.DatabasePath).
		Dur("cache_ttl", a.config.CacheTTL).
		Dur("global_refresh_interval", a.config.GlobalRefreshInterval).
		Msg("scene review service started")

	<-ctx.Done()

	a.logger.Info().Msg("shutting down")
	return a.db.Close()
}
