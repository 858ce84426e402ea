package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"p4portal/internal/audit"
	"p4portal/internal/auth"
	"p4portal/internal/backup"
	"p4portal/internal/config"
	"p4portal/internal/infrastructure"
	"p4portal/internal/license"
	"p4portal/internal/store"
	"p4portal/internal/tenant"
	handlers "p4portal/internal/transport/http"
)

const (
	// Version is the portal release version.
	Version = "1.0.0"
	// AppName is the human-readable service name.
	AppName = "P4 License Portal"
)

// Application is the portal's dependency container. It owns every long-lived
// component and the HTTP server, and tears them down in order on shutdown.
type Application struct {
	Config          *config.Config
	Router          chi.Router
	Server          *http.Server
	Store           *store.SQLiteStore
	Engine          *license.Engine
	Directory       *tenant.Directory
	Tokens          *auth.TokenService
	BackupScheduler *backup.Scheduler
	Logger          *slog.Logger
	OTelProviders   *infrastructure.OTelProviders
}

// NewApplication loads configuration and wires every service.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("Application starting",
		slog.String("name", AppName),
		slog.String("version", Version))

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices builds the storage, crypto and domain services in
// dependency order. Any missing or malformed key material is fatal here;
// the portal never starts half-configured.
func (a *Application) initializeServices() error {
	db, err := store.Open(a.Config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	a.Store = db

	priv, pub, err := a.Config.Crypto.SigningKeys()
	if err != nil {
		return fmt.Errorf("failed to load signing keys: %w", err)
	}
	signer, err := license.NewSigner(priv, pub)
	if err != nil {
		return fmt.Errorf("failed to build signer: %w", err)
	}

	salt, err := a.Config.Crypto.Salt()
	if err != nil {
		return fmt.Errorf("failed to load key salt: %w", err)
	}
	keys := make(map[int][]byte, len(a.Config.Crypto.Passphrases))
	for version, passphrase := range a.Config.Crypto.Passphrases {
		key, err := license.DeriveKey([]byte(passphrase), salt)
		if err != nil {
			return fmt.Errorf("failed to derive key version %d: %w", version, err)
		}
		keys[version] = key
	}
	ring, err := license.NewKeyring(a.Config.Crypto.ActiveKeyVersion, keys)
	if err != nil {
		return fmt.Errorf("failed to build keyring: %w", err)
	}
	encryptor, err := license.NewEncryptor(ring)
	if err != nil {
		return fmt.Errorf("failed to build encryptor: %w", err)
	}
	a.Logger.Info("Encryption keyring loaded",
		slog.Any("versions", ring.Versions()),
		slog.Int("active_version", ring.ActiveVersion()))

	sqlSink, err := audit.NewSQLSink(db.DB())
	if err != nil {
		return fmt.Errorf("failed to initialize audit log: %w", err)
	}
	sink := audit.MultiSink{audit.NewSlogSink(a.Logger), sqlSink}

	metrics, err := license.NewMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create license metrics: %w", err)
	}

	a.Directory = tenant.NewDirectory(db)

	engine, err := license.NewEngine(signer, encryptor, db, a.Directory, sink, metrics)
	if err != nil {
		return fmt.Errorf("failed to build license engine: %w", err)
	}
	a.Engine = engine

	tokenPriv, tokenPub, err := a.Config.Auth.TokenKeys()
	if err != nil {
		return fmt.Errorf("failed to load auth token keys: %w", err)
	}
	if tokenPub != nil {
		tokens, err := auth.NewTokenService(
			a.Config.Auth.Issuer,
			a.Config.Auth.Audience,
			a.Config.Auth.TokenTTL,
			tokenPriv,
			tokenPub,
		)
		if err != nil {
			return fmt.Errorf("failed to build token service: %w", err)
		}
		a.Tokens = tokens
	} else {
		a.Logger.Warn("No auth token keys configured, API authentication disabled")
	}

	scheduler, err := backup.NewScheduler(
		db.DB(),
		a.Config.Database.BackupDir,
		a.Config.Database.BackupInterval,
		a.Config.Database.BackupRetain,
		a.Logger,
		sink,
	)
	if err != nil {
		return fmt.Errorf("failed to build backup scheduler: %w", err)
	}
	a.BackupScheduler = scheduler

	return nil
}

// setupRouter builds the HTTP surface over the domain services.
func (a *Application) setupRouter() {
	licenseHandler := handlers.NewLicenseHandler(a.Engine, a.Logger)

	var authHandler *handlers.AuthHandler
	if a.Tokens != nil {
		authHandler = handlers.NewAuthHandler(a.Tokens, a.Config.Auth.BootstrapSecret, a.Config.Auth.TokenTTL, a.Logger)
	}

	a.Router = handlers.NewRouter(handlers.RouterDeps{
		Licenses: licenseHandler,
		Tenants:  handlers.NewTenantHandler(a.Directory, licenseHandler, a.Logger),
		Auth:     authHandler,
		Health:   handlers.NewHealthHandler(a.Store.DB(), Version),
		Tokens:   a.Tokens,
		Logger:   a.Logger,
		Metrics:  a.OTelProviders.PrometheusHTTP,
		Security: a.Config.Security,
	})
}

// createServer builds the HTTP server from the router and config timeouts.
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Stop shuts everything down in reverse order of startup.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	a.BackupScheduler.Stop()

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	if err := a.Store.Close(); err != nil {
		a.Logger.ErrorContext(ctx, "Error closing database", slog.String("error", err.Error()))
	}

	if err := infrastructure.CloseLogFile(); err != nil {
		a.Logger.ErrorContext(ctx, "Error closing log file", slog.String("error", err.Error()))
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return nil
}

// Run runs the application until interrupted.
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("name", AppName),
		slog.String("version", Version),
		slog.Int("port", a.Config.Server.Port),
		slog.String("database", a.Store.Path()),
		slog.String("level", a.Config.Logging.Level))

	a.BackupScheduler.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Logger.InfoContext(gctx, "Application started",
			slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)))
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info("Shutdown requested")
		return a.Stop(context.Background())
	})

	return g.Wait()
}
