package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/brokerdesk/brokerdesk/internal/app"
	"github.com/brokerdesk/brokerdesk/internal/applications"
	"github.com/brokerdesk/brokerdesk/internal/audit"
	"github.com/brokerdesk/brokerdesk/internal/auth"
	"github.com/brokerdesk/brokerdesk/internal/authz"
	"github.com/brokerdesk/brokerdesk/internal/observability"
	"github.com/brokerdesk/brokerdesk/internal/orgs"
	"github.com/brokerdesk/brokerdesk/internal/platform/cache"
	"github.com/brokerdesk/brokerdesk/internal/platform/db"
	"github.com/brokerdesk/brokerdesk/internal/principals"
	"github.com/brokerdesk/brokerdesk/internal/roles"
	"github.com/brokerdesk/brokerdesk/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	trail := audit.NewStore(dbpool)
	recorder := audit.NewRecorder(observability.InstrumentAppender(trail, metrics), logger, nil)

	principalCache := cache.NewPrincipalCache(redisClient)
	authzRepo := authz.NewRepository(dbpool)
	authzService := authz.NewService(authzRepo, principalCache, cfg.PrincipalCacheTTL, logger)
	engine := authz.NewEngine(authz.DefaultRules(), recorder, metrics, logger)
	guard := authz.Middleware{Engine: engine, Service: authzService, Logger: logger}

	sessions := auth.NewSessionStore(redisClient, cfg.SessionTTL)
	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo, sessions, recorder, logger)
	authHandler := auth.NewHandler(logger, authService)

	dispatcher := jobs.NewDispatcher(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := dispatcher.Close(); err != nil {
			logger.Warn("dispatcher close", slog.Any("error", err))
		}
	}()

	wrapper := audit.NewWrapper(audit.WrapperConfig{
		Recorder: recorder,
		Alerts:   dispatcher,
		Actor:    authService.ResolveActor,
		Logger:   logger,
	})

	directory := orgs.NewDirectory(dbpool)
	orgsHandler := orgs.NewHandler(logger, directory, guard)

	rolesRepo := roles.NewRepository(dbpool)
	rolesService := roles.NewService(rolesRepo, engine)
	rolesHandler := roles.NewHandler(logger, rolesService, guard)

	principalsRepo := principals.NewRepository(dbpool)
	principalsService := principals.NewService(principalsRepo, authzService, engine, recorder)
	principalsHandler := principals.NewHandler(logger, principalsService, guard)

	applicationsRepo := applications.NewRepository(dbpool)
	applicationsService := applications.NewService(applicationsRepo, directory, engine, recorder)
	applicationsHandler := applications.NewHandler(logger, applicationsService, guard)

	auditHandler := audit.NewHandler(logger, trail, guard)

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		AuthHandler:         authHandler,
		RolesHandler:        rolesHandler,
		PrincipalsHandler:   principalsHandler,
		OrganizationHandler: orgsHandler,
		ApplicationsHandler: applicationsHandler,
		AuditHandler:        auditHandler,
		Metrics:             metrics,
		Wrapper:             wrapper,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
