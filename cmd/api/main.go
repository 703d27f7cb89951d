package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/amirsalarsafaei/sqlc-pgx-monitoring/dbtracer"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"fxpay/config"
	"fxpay/internal/fx"
	"fxpay/internal/messages"
	"fxpay/internal/payments"
	"fxpay/internal/payments/handlers"
	"fxpay/internal/payments/workers"
)

func main() {
	appConfig, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := setupLogger(appConfig)

	cleanup, err := config.InitTracer(appConfig.Telemetry, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := setupStore(ctx, appConfig, logger)
	if err != nil {
		logger.Error("Failed to set up payment store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	fxClient := fx.NewClient(setupHttpClient(appConfig), fxClientConfig(appConfig.Fx), logger)

	var sink payments.OutcomeSink
	if publisher := setupPublisher(appConfig, logger); publisher != nil {
		dispatcher := workers.NewOutcomeDispatcher(publisher, appConfig.Events.BufferSize, logger)
		dispatcher.Start()
		defer func() {
			dispatcher.Stop()
			_ = publisher.Close()
		}()
		sink = dispatcher
	}

	paymentService := payments.NewPaymentService(store, fxClient, sink, logger)

	e := echo.New()
	e.HideBanner = true

	if appConfig.Telemetry.Enabled {
		e.Use(otelecho.Middleware(appConfig.Telemetry.ServiceName))
	}
	e.Use(middleware.Recover())

	handlers.Register(e, handlers.NewPaymentHandler(paymentService), handlers.NewHealthHandler(fxClient))

	addr := fmt.Sprintf("%s:%d", appConfig.Server.Host, appConfig.Server.Port)
	go func() {
		logger.Info("Server is running", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shut down server", "error", err)
	}
}

func setupLogger(appConfig *config.AppConfig) *slog.Logger {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(appConfig.Log.Level)); err != nil {
		logLevel = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}

// setupStore keeps payments in memory unless a Postgres URL is configured.
func setupStore(ctx context.Context, appConfig *config.AppConfig, logger *slog.Logger) (payments.PaymentStore, func(), error) {
	if appConfig.Postgres.URL == "" {
		logger.Warn("POSTGRES_URL not set, payments are kept in memory")
		return payments.NewMemoryStore(), func() {}, nil
	}

	dbpool, err := setupDbPool(ctx, appConfig)
	if err != nil {
		return nil, nil, err
	}
	if appConfig.Postgres.Migrate {
		if err := payments.Migrate(ctx, dbpool); err != nil {
			dbpool.Close()
			return nil, nil, err
		}
	}
	return payments.NewPostgresStore(dbpool), dbpool.Close, nil
}

func setupDbPool(ctx context.Context, appConfig *config.AppConfig) (*pgxpool.Pool, error) {
	dbConfig, err := pgxpool.ParseConfig(appConfig.Postgres.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if appConfig.Telemetry.Enabled {
		dbTracer, err := dbtracer.NewDBTracer("payments")
		if err != nil {
			return nil, fmt.Errorf("failed to create db tracer: %w", err)
		}
		dbConfig.ConnConfig.Tracer = dbTracer
	}

	dbpool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := dbpool.Ping(ctx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return dbpool, nil
}

func setupRedisClient(appConfig *config.AppConfig) *redis.Client {
	opt, err := redis.ParseURL(appConfig.Redis.URL)
	if err != nil {
		log.Fatalf("Failed to parse Redis URL: %v", err)
	}

	redisClient := redis.NewClient(opt)

	if appConfig.Telemetry.Enabled {
		if err := redisotel.InstrumentTracing(redisClient); err != nil {
			panic(err)
		}

		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			panic(err)
		}
	}

	return redisClient
}

func setupPublisher(appConfig *config.AppConfig, logger *slog.Logger) messages.Publisher {
	switch strings.ToLower(appConfig.Events.Driver) {
	case "redis":
		return messages.NewRedisStreamPublisher(setupRedisClient(appConfig), appConfig.Redis.StreamName)
	case "kafka":
		return messages.NewKafkaPublisher(appConfig.Kafka.Brokers, appConfig.Kafka.Topic)
	case "", "none":
		return nil
	default:
		logger.Warn("Unknown events driver, outcomes will not be published", "driver", appConfig.Events.Driver)
		return nil
	}
}

// setupHttpClient applies the connect timeout to dialing and the read timeout to waiting
// for response headers.
func setupHttpClient(appConfig *config.AppConfig) *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   appConfig.Fx.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,

		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: appConfig.Fx.ReadTimeout,
	}

	var rt http.RoundTripper = transport
	if appConfig.Telemetry.Enabled {
		rt = otelhttp.NewTransport(transport)
	}

	return &http.Client{
		Transport: rt,
		Timeout:   appConfig.Fx.ConnectTimeout + appConfig.Fx.ReadTimeout,
	}
}

func fxClientConfig(cfg *config.FxConfig) fx.Config {
	return fx.Config{
		BaseURL:     cfg.BaseURL,
		CallTimeout: cfg.CallTimeout,
		Retry: fx.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			Delay:       cfg.Retry.Delay,
			Multiplier:  cfg.Retry.Multiplier,
			MaxDelay:    cfg.Retry.MaxDelay,
		},
		Breaker: fx.BreakerSettings{
			WindowSize:           cfg.Breaker.WindowSize,
			MinimumCalls:         cfg.Breaker.MinimumCalls,
			FailureRateThreshold: cfg.Breaker.FailureRateThreshold,
			OpenWait:             cfg.Breaker.OpenWait,
			HalfOpenCalls:        cfg.Breaker.HalfOpenCalls,
		},
	}
}
