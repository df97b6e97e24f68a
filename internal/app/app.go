package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"gorm.io/gorm"

	"github.com/yungbote/sciencelab-batchserver/internal/data/db"
	types "github.com/yungbote/sciencelab-batchserver/internal/domain/batch"
	apphttp "github.com/yungbote/sciencelab-batchserver/internal/http"
	"github.com/yungbote/sciencelab-batchserver/internal/observability"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/dbctx"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Metrics  *observability.Metrics
	Clients  Clients
	Repos    Repos
	Services Services
	Server   *apphttp.Server

	dbService     *db.Service
	shutdownTrace func(context.Context) error
	cancel        context.CancelFunc
}

func New(ctx context.Context) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading configuration...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(ctx, log, cfg)
}

// NewWithConfig builds the app from an already loaded config.
func NewWithConfig(ctx context.Context, log *logger.Logger, cfg Config) (*App, error) {
	dbService, err := db.NewService(log, cfg.dbConfig())
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := dbService.AutoMigrateAll(); err != nil {
		_ = dbService.Close()
		log.Sync()
		return nil, fmt.Errorf("database automigrate: %w", err)
	}
	theDB := dbService.DB()

	metrics := observability.NewMetrics()
	if err := metrics.RegisterDBStats(theDB, cfg.Database.Name); err != nil {
		log.Warn("DB stats collector not registered", "error", err)
	}

	shutdownTrace := observability.InitOTel(ctx, log, observability.OtelConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Tracing.Environment,
		Version:     cfg.Tracing.Version,
		Endpoint:    cfg.Tracing.Endpoint,
		Headers:     cfg.Tracing.Headers,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
	})

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = shutdownTrace(ctx)
		_ = dbService.Close()
		log.Sync()
		return nil, err
	}

	reposet := wireRepos(theDB, log)
	serviceset := wireServices(theDB, log, cfg, reposet, clients, metrics)

	sqlDB, err := theDB.DB()
	if err != nil {
		_ = clients.Close()
		_ = shutdownTrace(ctx)
		_ = dbService.Close()
		log.Sync()
		return nil, fmt.Errorf("unwrap sql.DB: %w", err)
	}
	handlerset := wireHandlers(log, serviceset, sqlDB)

	serviceName := ""
	if cfg.Tracing.Enabled {
		serviceName = cfg.Tracing.ServiceName
	}
	router := apphttp.NewRouter(apphttp.RouterConfig{
		Log:              log,
		Metrics:          metrics,
		ServiceName:      serviceName,
		MinClientVersion: cfg.Batch.MinClientVersion,
		CORSOrigins:      cfg.CORSOrigins,
		BatchHandler:     handlerset.Batch,
		HealthHandler:    handlerset.Health,
	})

	return &App{
		Log:           log,
		DB:            theDB,
		Cfg:           cfg,
		Metrics:       metrics,
		Clients:       clients,
		Repos:         reposet,
		Services:      serviceset,
		Server:        apphttp.NewServer(net.JoinHostPort("", cfg.Port), router),
		dbService:     dbService,
		shutdownTrace: shutdownTrace,
	}, nil
}

// Start launches background samplers; it does not block.
func (a *App) Start(ctx context.Context) {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.Metrics.StartInputPoolCollector(ctx, a.Log, a.Cfg.PoolSampleInterval, a.sampleInputPool)
}

func (a *App) sampleInputPool(ctx context.Context) (map[string]int64, error) {
	dbc := dbctx.Context{Ctx: ctx}
	out := make(map[string]int64, 3)
	for _, status := range []types.InputStatus{types.InputStatusReady, types.InputStatusAssigned, types.InputStatusProcessed} {
		n, err := a.Repos.Input.CountByStatus(dbc, status)
		if err != nil {
			return nil, err
		}
		out[status.String()] = n
	}
	return out, nil
}

// Run serves HTTP until Shutdown is called.
func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("HTTP server listening", "addr", a.Server.Addr())
	return a.Server.Run()
}

// Shutdown drains in-flight requests, then stops background work.
func (a *App) Shutdown(ctx context.Context) error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.Server != nil {
		errs = append(errs, a.Server.Shutdown(ctx))
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.shutdownTrace != nil {
		errs = append(errs, a.shutdownTrace(ctx))
	}
	return errors.Join(errs...)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if err := a.Clients.Close(); err != nil {
		a.Log.Warn("Closing clients failed", "error", err)
	}
	if a.dbService != nil {
		if err := a.dbService.Close(); err != nil {
			a.Log.Warn("Closing database failed", "error", err)
		}
	}
	a.Log.Sync()
}
