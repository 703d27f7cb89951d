// Command worker follows the payment outcome stream and logs every terminal payment.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"

	"fxpay/config"
	"fxpay/internal/messages"
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

	redisClient := setupRedisClient(appConfig)
	defer redisClient.Close()

	consumer := messages.NewRedisStreamConsumer(
		redisClient,
		appConfig.Redis.StreamName,
		appConfig.Redis.StreamGroup,
		appConfig.Redis.ConsumerName,
		logger,
	)
	if err := consumer.EnsureGroup(ctx); err != nil {
		logger.Error("Failed to prepare consumer group", "error", err)
		os.Exit(1)
	}

	logger.Info("Following payment outcomes", "stream", appConfig.Redis.StreamName, "group", appConfig.Redis.StreamGroup)
	err = consumer.Run(ctx, func(_ context.Context, event *messages.PaymentOutcome) error {
		attrs := []any{
			"paymentId", event.PaymentID,
			"eventId", event.EventID,
			"status", event.Status,
			"amount", event.Amount,
			"pair", event.SourceCurrency + "/" + event.DestinationCurrency,
		}
		if event.PayoutAmount != nil {
			attrs = append(attrs, "payout", *event.PayoutAmount)
		}
		if event.ErrorMessage != nil {
			attrs = append(attrs, "error", *event.ErrorMessage)
		}
		logger.Info("payment outcome", attrs...)
		return nil
	})
	if err != nil {
		logger.Error("Consumer stopped", "error", err)
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
	}

	return redisClient
}
