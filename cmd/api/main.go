package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/kursadbilgin/attendance-notifier/internal/config"
	"github.com/kursadbilgin/attendance-notifier/internal/domain"
	"github.com/kursadbilgin/attendance-notifier/internal/failures"
	"github.com/kursadbilgin/attendance-notifier/internal/handler"
	"github.com/kursadbilgin/attendance-notifier/internal/infra/postgresql"
	"github.com/kursadbilgin/attendance-notifier/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/attendance-notifier/internal/infra/redis"
	"github.com/kursadbilgin/attendance-notifier/internal/message"
	"github.com/kursadbilgin/attendance-notifier/internal/observability"
	"github.com/kursadbilgin/attendance-notifier/internal/queue"
	"github.com/kursadbilgin/attendance-notifier/internal/ratelimit"
	"github.com/kursadbilgin/attendance-notifier/internal/repository"
	"github.com/kursadbilgin/attendance-notifier/internal/service"
	"github.com/kursadbilgin/attendance-notifier/internal/session"
	"github.com/kursadbilgin/attendance-notifier/internal/transport"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout  = 10 * time.Second
	consumerPrefetch = 1
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("attendance-notifier stopped with error", zap.Error(err))
	}
	logger.Info("attendance-notifier stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	db, err := postgresql.NewPostgres(ctx, cfg.DatabaseDSN, postgresql.PoolOptions{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		SlowQuery:       cfg.DBSlowQuery,
	})
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}
	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	metrics := observability.NewMetrics()
	store := repository.NewGormStore(db)
	students := repository.NewGormStudentRepo(db)
	outcomes := repository.NewGormOutcomeRepo(db)
	broadcasts := repository.NewGormBroadcastRepo(db)

	publisher, consumer, err := newQueue(cfg, logger)
	if err != nil {
		return err
	}
	defer publisher.Close()
	defer consumer.Close()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = infraredis.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		defer rdb.Close()
	}
	limiter, err := newLimiter(cfg, rdb)
	if err != nil {
		return err
	}

	launcher, err := newLauncher(cfg)
	if err != nil {
		return err
	}
	manager, err := session.NewManager(launcher, session.Config{
		AuthTimeout: cfg.SessionAuthTimeout,
		SendTimeout: cfg.SendTimeout,
		MinDigits:   cfg.ContactMinDigits,
		MaxDigits:   cfg.ContactMaxDigits,
		CountryCode: cfg.CountryCode,
		BaseURL:     cfg.ChannelBaseURL,
	}, logger, metrics)
	if err != nil {
		return fmt.Errorf("session manager init failed: %w", err)
	}
	defer func() {
		if err := manager.Close(); err != nil {
			logger.Warn("channel session close failed", zap.Error(err))
		}
	}()

	failureLog, err := failures.Open(cfg.FailureLogPath, cfg.FailureRecordsPath)
	if err != nil {
		return fmt.Errorf("failure store init failed: %w", err)
	}

	composer := message.NewComposer(cfg.MessageSignature)

	gate, err := service.NewGate(store, publisher, composer, logger)
	if err != nil {
		return err
	}
	gate.SetMetrics(metrics)

	risk, err := service.NewRiskService(store, domain.DefaultRiskPolicy())
	if err != nil {
		return err
	}

	sweeper, err := service.NewSweeper(store, risk, publisher, composer, cfg.AbsenceLookbackDays, logger)
	if err != nil {
		return err
	}
	sweeper.SetMetrics(metrics)

	broadcaster, err := service.NewBroadcaster(store, broadcasts, publisher, composer, logger)
	if err != nil {
		return err
	}
	broadcaster.SetMetrics(metrics)

	failureService, err := service.NewFailureService(students, failureLog, logger)
	if err != nil {
		return err
	}
	studentService, err := service.NewStudentService(students, outcomes)
	if err != nil {
		return err
	}

	worker, err := service.NewWorkerService(
		consumer,
		manager,
		limiter,
		session.NewSignatureClassifier(),
		failureLog,
		outcomes,
		logger,
	)
	if err != nil {
		return err
	}
	worker.SetMetrics(metrics)

	var scheduler *service.DailySweepScheduler
	if cfg.SweepEnabled {
		scheduler, err = service.NewDailySweepScheduler(sweeper, cfg.SweepAt, cfg.Location(), 0, logger)
		if err != nil {
			return err
		}
	}

	app := fiber.New(fiber.Config{
		AppName:      "attendance-notifier",
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	clock := handler.Clock{Location: cfg.Location()}
	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	if err := handler.RegisterAttendanceRoutes(app, gate, clock); err != nil {
		return err
	}
	if err := handler.RegisterOperationsRoutes(app, sweeper, broadcaster, clock); err != nil {
		return err
	}
	if err := handler.RegisterStudentRoutes(app, risk, studentService, failureService, clock); err != nil {
		return err
	}
	if err := handler.RegisterFailureRoutes(app, failureService); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("attendance-notifier api started", zap.Int("port", cfg.APIPort))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})

	g.Go(func() error {
		return worker.Start(gctx)
	})

	if scheduler != nil {
		g.Go(func() error {
			return scheduler.Start(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newQueue(cfg *config.Config, logger *zap.Logger) (queue.Publisher, queue.Consumer, error) {
	if cfg.QueueBackend == config.QueueBackendMemory {
		q := queue.NewMemoryQueue()
		return q, q, nil
	}

	client, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	return queue.NewRabbitMQPublisher(client), queue.NewRabbitMQConsumer(client, consumerPrefetch, logger), nil
}

// newLimiter shares pacing through Redis when it is configured so several
// processes on one channel account stay under a single budget.
func newLimiter(cfg *config.Config, rdb *redis.Client) (ratelimit.RateLimiter, error) {
	if rdb == nil {
		return ratelimit.NewIntervalLimiter(cfg.DispatchInterval), nil
	}
	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.DispatchInterval)
	if err != nil {
		return nil, fmt.Errorf("redis rate limiter init failed: %w", err)
	}
	return limiter, nil
}

func newLauncher(cfg *config.Config) (session.Launcher, error) {
	switch cfg.ChannelDriver {
	case config.ChannelDriverGateway:
		return session.NewGatewayLauncher(cfg.GatewayURL, cfg.GatewayToken)
	default:
		return session.NewChromeLauncher(session.ChromeConfig{
			BaseURL:    cfg.ChannelBaseURL,
			ProfileDir: cfg.ChannelProfileDir,
			Headless:   cfg.ChannelHeadless,
		})
	}
}
