package messages

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var _ Publisher = (*RedisStreamPublisher)(nil)

// RedisStreamPublisher appends events to a stream, one entry per event under the "data" field.
type RedisStreamPublisher struct {
	redisClient *redis.Client
	stream      string
}

func NewRedisStreamPublisher(redisClient *redis.Client, stream string) *RedisStreamPublisher {
	return &RedisStreamPublisher{
		redisClient: redisClient,
		stream:      stream,
	}
}

func (p *RedisStreamPublisher) Publish(ctx context.Context, event *PaymentOutcome) error {
	tracer := otel.Tracer("outcome-publisher")
	ctx, span := tracer.Start(ctx, "publish-outcome", trace.WithAttributes(
		attribute.String("messaging.system", "redis"),
		attribute.String("messaging.destination", p.stream),
		attribute.Int64("payment.id", event.PaymentID),
	))
	defer span.End()

	data, err := encode(event)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to encode outcome: %w", err)
	}

	err = p.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Err()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "XADD failed")
		return fmt.Errorf("failed to publish outcome: %w", err)
	}
	return nil
}

func (p *RedisStreamPublisher) Close() error {
	return p.redisClient.Close()
}
