package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/support-desk/internal/api/http"
	"github.com/spec-kit/support-desk/internal/api/http/handlers"
	"github.com/spec-kit/support-desk/internal/collab"
	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/observability"
	"github.com/spec-kit/support-desk/internal/persistence"
	"github.com/spec-kit/support-desk/internal/repository"
	"github.com/spec-kit/support-desk/internal/scheduler"
	"github.com/spec-kit/support-desk/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	pool := pg.PoolHandle()
	if pool != nil && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pool, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	// Storage: postgres when a DSN is configured, in-memory otherwise.
	var (
		ticketRepo   repository.TicketRepository
		messageRepo  repository.TicketMessageRepository
		memberRepo   repository.TeamMemberRepository
		settingsRepo repository.SettingsRepository
	)
	if pool != nil {
		ticketRepo = repository.NewTicketRepository(pool)
		messageRepo = repository.NewTicketMessageRepository(pool)
		memberRepo = repository.NewTeamMemberRepository(pool)
		settingsRepo = repository.NewSettingsRepository(pool)
	} else {
		logger.Warn("running with in-memory storage; data will not survive restarts")
		ticketRepo = repository.NewMemoryTicketRepository()
		messageRepo = repository.NewMemoryTicketMessageRepository()
		memberRepo = repository.NewMemoryTeamMemberRepository()
		settingsRepo = repository.NewMemorySettingsRepository()
	}

	var guard persistence.InflightGuard
	if redis.Client != nil && redis.Ping(ctx) == nil {
		guard = persistence.NewRedisInflightGuard(redis.Client, 0)
	} else {
		logger.Warn("redis unavailable; using in-process ingest guard")
		guard = persistence.NewMemoryInflightGuard()
	}

	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()

	defaults := domain.SlaPolicy{
		HighHours:   cfg.Sla.HighHours,
		MediumHours: cfg.Sla.MediumHours,
		LowHours:    cfg.Sla.LowHours,
	}

	slaService := service.NewSlaService(service.SlaDependencies{
		TicketRepo:   ticketRepo,
		SettingsRepo: settingsRepo,
		Dispatcher:   dispatcher,
		Logger:       logger,
		Defaults:     defaults,
	})

	var deliverer collab.Deliverer
	if cfg.Delivery.AWSKey != "" {
		deliverer, err = collab.NewSESDeliverer(ctx, cfg.Delivery)
		if err != nil {
			logger.Fatal("failed to init SES deliverer", zap.Error(err))
		}
	} else {
		logger.Warn("AWS credentials not configured; outbound mail is logged only")
		deliverer = collab.NewLogDeliverer(logger)
	}

	var classifier collab.Classifier
	if cfg.Classifier.APIKey != "" {
		classifier = collab.NewOpenAIClassifier(cfg.Classifier)
	} else {
		logger.Warn("classifier api key not configured; using heuristic classifier")
		classifier = collab.NewHeuristicClassifier()
	}

	lifecycleService := service.NewLifecycleService(service.LifecycleDependencies{
		TicketRepo:  ticketRepo,
		MessageRepo: messageRepo,
		MemberRepo:  memberRepo,
		Sla:         slaService,
		Deliverer:   deliverer,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})

	correlator := service.NewCorrelator(service.CorrelatorDependencies{
		TicketRepo:  ticketRepo,
		MessageRepo: messageRepo,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})

	ingestService := service.NewIngestService(service.IngestDependencies{
		Mailbox:    collab.NewDisabledMailbox(logger),
		Classifier: classifier,
		Correlator: correlator,
		Lifecycle:  lifecycleService,
		TicketRepo: ticketRepo,
		Guard:      guard,
		MailboxID:  cfg.Mailbox.Name,
		Logger:     logger,
	})

	queueService := service.NewQueueService(service.QueueDependencies{
		TicketRepo: ticketRepo,
		Logger:     logger,
	})
	bulkService := service.NewBulkService(lifecycleService, logger)
	teamService := service.NewTeamService(memberRepo)

	service.NewNotificationService(cfg.Notification, dispatcher, logger)

	// Each tick ingests new mail, then refreshes breach flags.
	bgScheduler := scheduler.New(func(ctx context.Context) error {
		if _, err := ingestService.FetchAndProcess(ctx); err != nil {
			return err
		}
		metrics.RecordIngestPass()
		_, err := slaService.RefreshAll(ctx)
		return err
	}, cfg.Scheduler.Enabled, time.Duration(cfg.Scheduler.IntervalMinutes)*time.Minute, logger)
	bgScheduler.Start(ctx)
	defer bgScheduler.Stop()

	settingsService := service.NewSettingsService(service.SettingsDependencies{
		SettingsRepo: settingsRepo,
		Scheduler:    bgScheduler,
		Logger:       logger,
		Defaults:     defaults,
	})

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:   handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis, metrics),
		Tickets:  handlers.NewTicketsHandler(lifecycleService, queueService, bulkService, ingestService),
		Sla:      handlers.NewSlaHandler(slaService),
		Settings: handlers.NewSettingsHandler(settingsService),
		Team:     handlers.NewTeamHandler(teamService),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
