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

	"github.com/strataflow/strataflow/internal/app"
	"github.com/strataflow/strataflow/internal/audit"
	audithttp "github.com/strataflow/strataflow/internal/audit/http"
	"github.com/strataflow/strataflow/internal/auth"
	"github.com/strataflow/strataflow/internal/authcache"
	"github.com/strataflow/strataflow/internal/billing"
	"github.com/strataflow/strataflow/internal/catalog"
	"github.com/strataflow/strataflow/internal/observability"
	"github.com/strataflow/strataflow/internal/platform/cache"
	"github.com/strataflow/strataflow/internal/platform/db"
	"github.com/strataflow/strataflow/internal/rbac"
	"github.com/strataflow/strataflow/internal/scope"
	"github.com/strataflow/strataflow/internal/shared"
	"github.com/strataflow/strataflow/internal/tenancy"
	"github.com/strataflow/strataflow/internal/users"
	"github.com/strataflow/strataflow/jobs"
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

	// A broken module/role table is a deploy-time fault, not a per-request
	// denial.
	if err := catalog.Validate(); err != nil {
		logger.Error("permission catalog invalid", slog.Any("error", err))
		os.Exit(1)
	}

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

	sessionManager := shared.NewSessionManager(redisClient, "strataflow_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	authCache := authcache.New(redisClient, cfg.AuthCacheShortTTL, cfg.AuthCacheMediumTTL, cfg.AuthCacheLongTTL)

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

	metrics := observability.NewMetrics()

	auditRepo := audit.NewRepository(dbpool)
	recorder := audit.NewRecorder(jobClient, auditRepo, logger)
	auditService := audit.NewService(auditRepo)

	rbacRepo := rbac.NewRepository(dbpool)
	resolver := rbac.NewResolver(rbacRepo, authCache)
	guard := rbac.NewGuard(resolver)
	admin := rbac.NewAdmin(rbacRepo, authCache, recorder, jobClient, logger)
	rbacMiddleware := rbac.Middleware{Guard: guard, Localizer: rbac.NewLocalizer(), Logger: logger, Denials: metrics}

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, resolver, sessionManager)

	tenancyRepo := tenancy.NewRepository(dbpool)
	scopeManager := scope.NewManager(tenancyRepo, authCache, scope.NewBus(), logger)
	tenancyHandler := tenancy.NewHandler(logger, tenancyRepo, scopeManager, rbacMiddleware)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo, recorder)
	usersHandler := users.NewHandler(logger, usersService, rbacMiddleware)

	billingRepo := billing.NewRepository(dbpool)
	billingService := billing.NewService(billingRepo, resolver, recorder)
	billingHandler := billing.NewHandler(logger, billingService, rbacMiddleware)

	rbacHandler := rbac.NewHandler(logger, admin, guard, rbacMiddleware)
	auditHandler := audithttp.NewHandler(logger, auditService, resolver)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		AuthHandler:    authHandler,
		RBACHandler:    rbacHandler,
		UsersHandler:   usersHandler,
		TenancyHandler: tenancyHandler,
		BillingHandler: billingHandler,
		AuditHandler:   auditHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
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
