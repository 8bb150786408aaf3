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

	"github.com/treasury-erp/treasury-erp/cmd/treasury/cli"
	"github.com/treasury-erp/treasury-erp/internal/app"
	"github.com/treasury-erp/treasury-erp/internal/budget"
	"github.com/treasury-erp/treasury-erp/internal/directory"
	"github.com/treasury-erp/treasury-erp/internal/observability"
	"github.com/treasury-erp/treasury-erp/internal/platform/cache"
	"github.com/treasury-erp/treasury-erp/internal/platform/db"
	"github.com/treasury-erp/treasury-erp/internal/requests"
	"github.com/treasury-erp/treasury-erp/internal/shared"
	"github.com/treasury-erp/treasury-erp/internal/workflow"
	"github.com/treasury-erp/treasury-erp/jobs"
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

	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "serve":
		if err := serve(ctx, cfg, logger); err != nil {
			logger.Error("serve", slog.Any("error", err))
			os.Exit(1)
		}
	case "migrate":
		if err := migrate(ctx, cfg); err != nil {
			logger.Error("migrate", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("migrations applied")
	case "jobs":
		jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
		code := cli.JobsCommand(ctx, jobsCLI, os.Args[2:], os.Stdout, os.Stderr)
		if err := jobsCLI.Close(); err != nil {
			logger.Warn("jobs cli close", slog.Any("error", err))
		}
		os.Exit(code)
	default:
		logger.Error("unknown command", slog.String("command", command))
		os.Exit(2)
	}
}

func migrate(ctx context.Context, cfg *app.Config) error {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()
	return db.Migrate(ctx, pool)
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	overviewCache := cache.NewVersioned(redisClient, "treasury:overview", cfg.CacheTTL)

	budgetService := budget.NewService(budget.NewRepository(pool), overviewCache, auditLogger, logger)
	budgetHandler := budget.NewHandler(logger, budgetService)

	requestService := requests.NewService(requests.NewRepository(pool), idempotencyStore, auditLogger, logger)
	requestHandler := requests.NewHandler(logger, requestService)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	workflowService := workflow.NewService(workflow.NewRepository(pool), auditLogger, budgetService, metrics, jobClient, logger)
	workflowHandler := workflow.NewHandler(logger, workflowService)

	directoryService := directory.NewService(directory.NewRepository(pool))
	directoryHandler := directory.NewHandler(logger, directoryService)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		BudgetHandler:    budgetHandler,
		RequestsHandler:  requestHandler,
		WorkflowHandler:  workflowHandler,
		DirectoryHandler: directoryHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
