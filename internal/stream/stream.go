// Package stream carries change events over a Redis Stream. A consumer
// group gives at-least-once delivery: events are acknowledged only after
// the handler succeeds, and stale pending entries are reclaimed, so every
// handler downstream must tolerate redelivery.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"arena/sync/internal/store"
)

const eventField = "event"

// Open connects a Redis client from a URL.
func Open(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// Publisher appends change events to the stream. It implements
// store.EventSink.
type Publisher struct {
	rdb    *redis.Client
	stream string
}

func NewPublisher(rdb *redis.Client, stream string) *Publisher {
	return &Publisher{rdb: rdb, stream: stream}
}

func (p *Publisher) Publish(ctx context.Context, event store.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	err = p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{eventField: string(body)},
	}).Err()
	if err != nil {
		return fmt.Errorf("append change event: %w", err)
	}
	return nil
}

// Handler processes one delivered change event.
type Handler func(ctx context.Context, event store.Event) error

// Consumer reads the stream through a consumer group and dispatches each
// entry to the handler. Entries are acked only on success; failed
// entries stay pending and are reclaimed after claimIdle.
type Consumer struct {
	rdb           *redis.Client
	stream        string
	group         string
	name          string
	handler       Handler
	handleTimeout time.Duration
	claimIdle     time.Duration
}

func NewConsumer(rdb *redis.Client, stream, group, name string, handleTimeout time.Duration, handler Handler) *Consumer {
	return &Consumer{
		rdb:           rdb,
		stream:        stream,
		group:         group,
		name:          name,
		handler:       handler,
		handleTimeout: handleTimeout,
		claimIdle:     time.Minute,
	}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.reclaim(ctx)

		streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.name,
			Streams:  []string{c.stream, ">"},
			Count:    16,
			Block:    5 * time.Second,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return ctx.Err()
		}
		if err != nil {
			log.Printf("stream: read group: %v", err)
			continue
		}

		for _, s := range streams {
			for _, message := range s.Messages {
				c.process(ctx, message)
			}
		}
	}
}

// ProcessPending drains entries this consumer has already been
// delivered, used by tests and on startup after a crash.
func (c *Consumer) ProcessPending(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}
	streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  []string{c.stream, "0"},
		Count:    128,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read pending: %w", err)
	}
	for _, s := range streams {
		for _, message := range s.Messages {
			c.process(ctx, message)
		}
	}
	return nil
}

func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.rdb.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// reclaim takes over entries another consumer left pending too long.
func (c *Consumer) reclaim(ctx context.Context) {
	messages, _, err := c.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.name,
		MinIdle:  c.claimIdle,
		Start:    "0-0",
		Count:    16,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) && ctx.Err() == nil {
		log.Printf("stream: autoclaim: %v", err)
		return
	}
	for _, message := range messages {
		c.process(ctx, message)
	}
}

// process handles one entry and acks it on success. Failures are logged
// and left pending for redelivery.
func (c *Consumer) process(ctx context.Context, message redis.XMessage) {
	raw, _ := message.Values[eventField].(string)

	var event store.Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		// Poison entries are acked away; nothing can ever handle them.
		log.Printf("stream: drop undecodable entry %s: %v", message.ID, err)
		c.ack(ctx, message.ID)
		return
	}

	handleCtx, cancel := context.WithTimeout(ctx, c.handleTimeout)
	err := c.handler(handleCtx, event)
	cancel()
	if err != nil {
		log.Printf("stream: handle %s %s/%s: %v", event.Kind, event.Collection, event.ID, err)
		return
	}
	c.ack(ctx, message.ID)
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.rdb.XAck(ctx, c.stream, c.group, id).Err(); err != nil {
		log.Printf("stream: ack %s: %v", id, err)
	}
}
