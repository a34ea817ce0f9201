package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/course-store/internal/identity"
	"github.com/sakashimaa/course-store/internal/repository"
	"github.com/sakashimaa/course-store/internal/service"
	"github.com/sakashimaa/course-store/internal/storage"
	"github.com/sakashimaa/course-store/internal/transport/http"
	"github.com/sakashimaa/course-store/internal/transport/http/handler"
	"github.com/sakashimaa/course-store/internal/transport/kafka"
	"github.com/sakashimaa/course-store/pkg/config"
	"github.com/sakashimaa/course-store/pkg/db"
	kafka2 "github.com/sakashimaa/course-store/pkg/kafka"
	"github.com/sakashimaa/course-store/pkg/mylogger"
	outboxRepository "github.com/sakashimaa/course-store/pkg/outbox/repository"
	"github.com/sakashimaa/course-store/pkg/outbox/worker"
	"github.com/sakashimaa/course-store/pkg/utils"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// schemaPinger reports the remote store ready only once it answers and its schema is current.
type schemaPinger struct {
	docs       repository.DocumentStore
	url        string
	migrations string
}

func (p schemaPinger) Ping(ctx context.Context) error {
	if err := p.docs.Ping(ctx); err != nil {
		return err
	}

	return db.Migrate(p.migrations, p.url)
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not found: %v\n", err)
	}

	cfg := config.MustLoad()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.LoggerConfig())
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	var tp *sdktrace.TracerProvider
	if cfg.Tracing.Enabled {
		tp, err = utils.InitTracer(ctx, utils.TracerConfig{
			ServiceName: cfg.Tracing.ServiceName,
			Env:         cfg.Env,
			Endpoint:    cfg.Tracing.Endpoint,
			SampleRatio: cfg.Tracing.SampleRatio,
		})
		if err != nil {
			log.Fatalf("failed to init tracer: %v", err)
		}
	}

	localStore := newLocalStore(ctx, cfg, logger)

	issuer, err := identity.NewIssuer(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	if err != nil {
		log.Fatalf("failed to create token issuer: %v", err)
	}

	breakerCfg := func(name string) utils.BreakerConfig {
		return utils.BreakerConfig{
			Name:        name,
			MaxRequests: cfg.Breaker.MaxRequests,
			Interval:    cfg.Breaker.Interval,
			Timeout:     cfg.Breaker.Timeout,
		}
	}

	var (
		pool     *pgxpool.Pool
		docs     repository.DocumentStore
		pinger   service.Pinger
		producer kafka2.Producer
	)

	if cfg.Postgres.URL != "" {
		pool, err = db.NewPostgresPool(ctx, cfg.Postgres.URL, db.WithMaxConns(cfg.Postgres.MaxConns))
		if err != nil {
			log.Fatalf("failed to create pool: %v", err)
		}

		outboxRepo := outboxRepository.NewOutboxRepository(logger)
		docs = repository.NewDocumentRepository(pool, outboxRepo, logger)
		pinger = schemaPinger{docs: docs, url: cfg.Postgres.URL, migrations: cfg.Postgres.Migrations}

		producer, err = kafka2.NewProducer(kafka2.ProducerConfig{
			Brokers:  cfg.Kafka.Brokers,
			ClientID: cfg.Kafka.ClientID,
		}, logger)
		if err != nil {
			mylogger.Warn(ctx, logger, "Kafka unavailable, order events stay in the outbox", zap.Error(err))
		} else {
			outboxProcessor := worker.NewOutboxProcessor(pool, outboxRepo, producer, logger)
			go outboxProcessor.Start(ctx)

			stats := service.NewOrderStatsService(pool, docs, logger)
			consumer := kafka.NewConsumer(stats, kafka2.ConsumerGroupConfig{
				Brokers:      cfg.Kafka.Brokers,
				GroupID:      cfg.Kafka.GroupID,
				Retries:      cfg.Kafka.Retries,
				RetryBackoff: cfg.Kafka.RetryBackoff,
			}, logger)
			go func() {
				if err := consumer.Start(ctx); err != nil {
					mylogger.Error(ctx, logger, "Order stats consumer stopped", zap.Error(err))
				}
			}()
		}
	} else {
		mylogger.Warn(ctx, logger, "No database configured, running local-only")
	}

	readiness := service.NewReadiness(cfg.Sync.ReadinessAttempts, cfg.Sync.ReadinessSpacing, logger)
	go readiness.Probe(ctx, pinger)

	carts := service.NewCartService(localStore, logger, service.WithIdleTTL(cfg.Sync.CartIdleTTL))
	history := service.NewOrderHistory(localStore, docs, utils.NewBreaker(breakerCfg("remote-orders"), logger), cfg.Sync.RemoteTimeout, logger)
	syncService := service.NewSyncService(
		carts,
		docs,
		readiness,
		utils.NewBreaker(breakerCfg("remote-carts"), logger),
		cfg.Sync.Interval,
		cfg.Sync.RemoteTimeout,
		logger,
	)
	checkout := service.NewCheckoutService(carts, history, cfg.Checkout.WizardTTL, logger)

	go syncService.Start(ctx)

	var contactSink handler.ContactSink
	if docs != nil {
		contactSink = docs
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTP.Timeout,
		WriteTimeout: cfg.HTTP.Timeout,
	})

	app.Use(otelfiber.Middleware())

	app.Use(limiter.New(limiter.Config{
		Max:        cfg.Limiter.Max,
		Expiration: cfg.Limiter.Expiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests. Try again later.",
			})
		},
	}))

	handlers := &http.Handlers{
		Auth:        handler.NewAuthHandler(issuer, localStore, syncService, cfg.Sync.RemoteTimeout, logger),
		Cart:        handler.NewCartHandler(carts, syncService, logger),
		Checkout:    handler.NewCheckoutHandler(checkout, logger),
		Order:       handler.NewOrderHandler(history, logger),
		Preferences: handler.NewPreferencesHandler(localStore, logger),
		Contact:     handler.NewContactHandler(contactSink, utils.NewBreaker(breakerCfg("remote-contact"), logger), cfg.Sync.RemoteTimeout, logger),
		Health:      handler.NewHealthHandler(readiness),
	}

	http.RegisterRoutes(app, handlers, issuer, syncService.Track)

	go func() {
		mylogger.Info(ctx, logger, "Storefront listening", zap.String("port", cfg.HTTP.Port))
		if err := app.Listen(cfg.HTTP.Port); err != nil {
			log.Fatalf("Error listening on HTTP port %v: %v\n", cfg.HTTP.Port, err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mylogger.Info(shutdownCtx, logger, "Shutting down storefront")

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Error shutting down HTTP app", zap.Error(err))
	}

	if producer != nil {
		if err := producer.Close(); err != nil {
			mylogger.Warn(shutdownCtx, logger, "Failed to close kafka producer", zap.Error(err))
		}
	}

	if tp != nil {
		if err := tp.Shutdown(shutdownCtx); err != nil {
			mylogger.Warn(shutdownCtx, logger, "Failed to shut down telemetry", zap.Error(err))
		}
	}

	if pool != nil {
		pool.Close()
	}
}

// newLocalStore prefers Redis and falls back to process memory when it is not configured or not
// reachable at boot.
func newLocalStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) storage.LocalStore {
	if cfg.Redis.Addr == "" {
		return storage.NewMemoryStore()
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	store := storage.NewRedisStore(client)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := store.Ping(pingCtx); err != nil {
		mylogger.Warn(ctx, logger, "Redis unreachable, keeping profile state in memory", zap.Error(err))
		_ = client.Close()
		return storage.NewMemoryStore()
	}

	return store
}
