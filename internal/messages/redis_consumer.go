package messages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStreamConsumer reads outcome events through a consumer group.
type RedisStreamConsumer struct {
	redisClient *redis.Client
	stream      string
	group       string
	consumer    string
	logger      *slog.Logger
}

func NewRedisStreamConsumer(redisClient *redis.Client, stream, group, consumer string, logger *slog.Logger) *RedisStreamConsumer {
	return &RedisStreamConsumer{
		redisClient: redisClient,
		stream:      stream,
		group:       group,
		consumer:    consumer,
		logger:      logger,
	}
}

// EnsureGroup creates the stream and group if they are missing.
func (c *RedisStreamConsumer) EnsureGroup(ctx context.Context) error {
	err := c.redisClient.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !isGroupExistsErr(err) {
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

// Run hands every event to handle until ctx is done. Entries are acknowledged once handle
// returns nil; undecodable entries are acknowledged and skipped.
func (c *RedisStreamConsumer) Run(ctx context.Context, handle func(context.Context, *PaymentOutcome) error) error {
	for {
		streams, err := c.redisClient.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.consumer,
			Streams:  []string{c.stream, ">"},
			Block:    time.Second,
			Count:    100,
		}).Result()

		if ctx.Err() != nil {
			return nil
		}
		if err != nil && !errors.Is(err, redis.Nil) {
			c.logger.Error("failed to read stream", "stream", c.stream, "consumer", c.consumer, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				c.dispatch(ctx, msg, handle)
			}
		}
	}
}

func (c *RedisStreamConsumer) dispatch(ctx context.Context, msg redis.XMessage, handle func(context.Context, *PaymentOutcome) error) {
	raw, _ := msg.Values["data"].(string)
	event, err := Decode([]byte(raw))
	if err != nil {
		c.logger.Error("invalid outcome entry", "id", msg.ID, "error", err)
		c.ack(ctx, msg.ID)
		return
	}

	if err := handle(ctx, event); err != nil {
		c.logger.Warn("outcome left pending", "id", msg.ID, "paymentId", event.PaymentID, "error", err)
		return
	}
	c.ack(ctx, msg.ID)
}

func (c *RedisStreamConsumer) ack(ctx context.Context, id string) {
	if err := c.redisClient.XAck(context.WithoutCancel(ctx), c.stream, c.group, id).Err(); err != nil {
		c.logger.Error("failed to ack entry", "id", id, "error", err)
	}
}

func isGroupExistsErr(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
