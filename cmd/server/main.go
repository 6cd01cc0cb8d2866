package main

import (
	"context"
	"log"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/fieldops/backend/api/handler"
	"github.com/fieldops/backend/internal/collaborators"
	"github.com/fieldops/backend/internal/config"
	"github.com/fieldops/backend/internal/infrastructure/buffer"
	"github.com/fieldops/backend/internal/infrastructure/monitor"
	pgInfra "github.com/fieldops/backend/internal/infrastructure/postgres"
	redisInfra "github.com/fieldops/backend/internal/infrastructure/redis"
	"github.com/fieldops/backend/internal/middleware"
	"github.com/fieldops/backend/internal/router"
	"github.com/fieldops/backend/internal/services"
	"github.com/fieldops/backend/internal/services/lifecycle"
	"github.com/fieldops/backend/pkg/httpcontext"
	"github.com/fieldops/backend/pkg/logger"
	"github.com/fieldops/backend/repository/postgres"
	redisRepo "github.com/fieldops/backend/repository/redis"
	"github.com/fieldops/backend/usecase"
	"github.com/fieldops/backend/usecase/jobs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	manager.Listen(cancel)

	if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
		zapLogger.Fatal("migrations failed", zap.Error(err))
	}

	pool, err := pgInfra.NewPool(appCtx, cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("postgres connection failed", zap.Error(err))
	}
	manager.Register("postgres", func(ctx context.Context) error {
		pool.Close()
		return nil
	})

	redisClient, err := redisInfra.NewClient(cfg.Redis)
	if err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	manager.Register("redis", func(ctx context.Context) error {
		return redisClient.Close()
	})

	bufferStore, err := buffer.Open(cfg.Buffer.Path, "commands")
	if err != nil {
		zapLogger.Fatal("failed to open command buffer", zap.Error(err))
	}
	manager.Register("buffer", func(ctx context.Context) error {
		return bufferStore.Close()
	})

	mon := monitor.New(pool, redisClient, bufferStore, 10*time.Second, zapLogger)
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	jobRepo := postgres.NewJobRepository(pool)
	boardCache := redisRepo.NewBoardCache(redisClient, cfg.BoardCacheTTL)

	lookupTimeout := cfg.Collaborators.LookupTimeout
	directory := collaborators.NewEmployeeDirectoryClient(cfg.Collaborators.EmployeeDirectoryURL, lookupTimeout)
	timeEntries := collaborators.NewTimeEntryClient(cfg.Collaborators.TimeEntryURL, lookupTimeout)
	contracts := collaborators.NewContractClient(cfg.Collaborators.ContractURL, lookupTimeout)
	apartments := collaborators.NewEntityReaderClient(cfg.Collaborators.ApartmentURL, "/apartments", lookupTimeout)
	entityServices := collaborators.NewEntityReaderClient(cfg.Collaborators.ServiceURL, "/services", lookupTimeout)
	invoices := collaborators.NewInvoiceClient(cfg.Collaborators.InvoiceURL, lookupTimeout)

	engine := jobs.NewEngine(
		jobRepo,
		jobs.NewAssignmentManager(directory, timeEntries),
		jobs.NewStepExecutionTracker(),
		jobs.NewMaterialLedger(),
		jobs.NewFinanceRollup(directory, contracts, cfg.Finance.ServiceFee),
		invoices,
		boardCache,
		zapLogger,
	)

	queryService := jobs.NewQueryService(jobRepo, directory, apartments, entityServices, contracts, boardCache, zapLogger)

	dispatcher := usecase.NewDispatcher(services.NewStoreBuffer(bufferStore), mon, zapLogger)
	jobs.RegisterCommands(dispatcher, engine)

	replayer := services.NewCommandReplayer(
		bufferStore,
		mon,
		dispatcher,
		zapLogger,
		services.ReplayerConfig{
			Interval:   cfg.Buffer.SyncInterval,
			BatchSize:  50,
			MaxRetries: cfg.Buffer.MaxRetry,
			Retention:  cfg.Buffer.Retention,
		},
	)
	replayer.Start()
	manager.Register("command_replayer", func(ctx context.Context) error {
		replayer.Stop(ctx)
		return nil
	})

	if cfg.Recurrence.Enabled {
		scheduler := services.NewRecurrenceScheduler(
			postgres.NewRecurrenceRepository(pool),
			engine,
			cfg.Recurrence.PollInterval,
			zapLogger,
		)
		scheduler.Start()
		manager.Register("recurrence_scheduler", func(ctx context.Context) error {
			scheduler.Stop(ctx)
			return nil
		})
	}

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)

	handlers := router.Handlers{
		Job:     apiHandler.NewJobHandler(engine, queryService, ctxAdapter, zapLogger),
		Command: apiHandler.NewCommandHandler(dispatcher, ctxAdapter, zapLogger),
		Health:  apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger),
	}

	authMiddleware := middleware.JWTAuth(cfg.JWT.Secret, zapLogger)
	r := router.New(handlers, authMiddleware)

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Name:         cfg.AppName,
	}

	go func() {
		zapLogger.Info("server started", zap.String("address", cfg.Address()))
		if err := server.ListenAndServe(cfg.Address()); err != nil {
			zapLogger.Fatal("server crashed", zap.Error(err))
		}
	}()

	manager.Register("http_server", func(ctx context.Context) error {
		return server.Shutdown()
	})

	<-appCtx.Done()

	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}
