package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brokerops/portalvault/internal/vault/browser"
	"github.com/brokerops/portalvault/internal/vault/domain"
	httpapi "github.com/brokerops/portalvault/internal/vault/http"
	"github.com/brokerops/portalvault/internal/vault/service"
	"github.com/brokerops/portalvault/internal/vault/store"
	"github.com/brokerops/portalvault/internal/vault/store/drivers/sqlite"
	"github.com/brokerops/portalvault/pkg/cryptox"
	"github.com/brokerops/portalvault/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"

	// staleProfileAge is how old a leftover profile directory must be before
	// the startup sweep removes it.
	staleProfileAge = 24 * time.Hour
)

// Application encapsulates the vault service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db     store.Store
	crypto *cryptox.Context

	tokenService        *service.TokenService
	acquireService      *service.AcquireService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized. Missing or
// short encryption secrets fail here, before anything touches the network;
// the error never contains the secret values themselves.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "portal-vault",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	crypto, err := cryptox.NewContext(cfg.MasterKey, cfg.TableSalt)
	if err != nil {
		return nil, domain.WrapError(domain.KindCryptoConfig, "encryption configuration rejected", err)
	}
	app.crypto = crypto

	if cfg.PortalURL == "" {
		return nil, domain.NewError(domain.KindValidation, "VAULT_PORTAL_URL is required")
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.acquireService.Start()
	app.housekeepingService.Start()

	app.logger.Info("vault service starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"pool_size", app.cfg.PoolSize,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application: stop accepting requests,
// let in-flight acquisitions finish, fail queued ones, close the store.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down vault service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.acquireService.Stop()
	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("vault service stopped")
	return nil
}

// initDatabase initializes the database and applies migrations.
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initServices initializes all business logic services.
func (app *Application) initServices() {
	app.tokenService = &service.TokenService{
		Store:  app.db,
		Crypto: app.crypto,
	}

	provisioner := &browser.Provisioner{
		BaseDir:        app.cfg.ProfileDir,
		BinaryOverride: app.cfg.BrowserBinary,
		Headless:       app.cfg.Headless,
		Containerized:  browser.RunningInContainer(),
		Logger:         app.logger,
	}
	provisioner.SweepStale(staleProfileAge)

	flow := browser.DefaultFlowConfig(app.cfg.PortalURL)
	flow.MFAWait = app.cfg.MFAWait
	flow.AuthWait = app.cfg.AuthWait
	flow.DefaultTokenTTL = app.cfg.DefaultTokenTTL

	runner := &browser.Runner{
		Provisioner: provisioner,
		Flow:        flow,
		Logger:      app.logger,
	}

	app.acquireService = service.NewAcquireService(
		runner,
		app.tokenService,
		app.logger,
		app.cfg.PoolSize,
	)

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.db, app.logger)

	router.TokenService = app.tokenService
	router.AcquireService = app.acquireService
	router.AcquireWait = app.cfg.AcquireWait
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
