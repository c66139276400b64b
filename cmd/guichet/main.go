package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/guichet-civil/guichet/internal/app"
	"github.com/guichet-civil/guichet/internal/auth"
	"github.com/guichet-civil/guichet/internal/backoffice"
	"github.com/guichet-civil/guichet/internal/citizen"
	"github.com/guichet-civil/guichet/internal/gate"
	"github.com/guichet-civil/guichet/internal/identity"
	"github.com/guichet-civil/guichet/internal/notify"
	"github.com/guichet-civil/guichet/internal/observability"
	"github.com/guichet-civil/guichet/internal/platform/cache"
	"github.com/guichet-civil/guichet/internal/platform/db"
	"github.com/guichet-civil/guichet/internal/requests"
	"github.com/guichet-civil/guichet/internal/shared"
	"github.com/guichet-civil/guichet/internal/view"
	"github.com/guichet-civil/guichet/jobs"
	"github.com/guichet-civil/guichet/report"
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

	sessionManager := shared.NewSessionManager(redisClient, "guichet_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	identityRepo := identity.NewRepository(dbpool)
	resolver := identity.NewResolver(identityRepo)

	authRepo := auth.NewRepository(dbpool)
	codeStore := auth.NewCodeStore(redisClient, cfg.MagicLinkTTL)
	notifier := notify.NewNotifier(jobClient, authRepo, logger)
	authService := auth.NewService(authRepo, codeStore, resolver, notifier, cfg.SiteURL)
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager)

	auditLogger := shared.NewAuditLogger(dbpool)
	staffService := identity.NewStaffService(identityRepo, resolver, authService, auditLogger, logger)

	requestRepo := requests.NewRepository(dbpool)
	requestService := requests.NewService(requestRepo, resolver, nil, notifier, logger)

	var receipts *report.Receipts
	if cfg.GotenbergURL != "" {
		receipts = report.NewReceipts(report.NewClient(cfg.GotenbergURL), logger)
	}

	citizenHandler := citizen.NewHandler(logger, requestService, resolver, templates, csrfManager, receipts)
	backofficeHandler := backoffice.NewHandler(logger, requestService, staffService, resolver, templates, csrfManager, backoffice.Settings{
		Env:     cfg.AppEnv,
		SiteURL: cfg.SiteURL,
	})

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		Templates:         templates,
		SessionManager:    sessionManager,
		CSRFManager:       csrfManager,
		Gate:              gate.New(resolver, logger),
		AuthHandler:       authHandler,
		CitizenHandler:    citizenHandler,
		BackofficeHandler: backofficeHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exit", slog.Any("error", err))
		os.Exit(1)
	}
}
