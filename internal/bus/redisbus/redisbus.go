// Package redisbus implements internal/bus.Bus over Redis Streams, mirroring
// the XADD/XGROUP CREATE/XREADGROUP/XACK/XRANGE shape of
// original_source/bus/python/orion_bus/bus.py.
package redisbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/orion-sre/orion/internal/bus"
	"github.com/orion-sre/orion/internal/contracts"
)

const (
	dataField = "data"
	// blockDuration is how long a single XREADGROUP call blocks for new
	// entries before looping again to re-check ctx.
	blockDuration = 5 * time.Second
	// readCount bounds how many new messages a single XREADGROUP call may
	// return to one consumer.
	readCount = 10
	// defaultMaxLen is the approximate retention cap per stream (§6, L).
	defaultMaxLen = 10000
)

// Bus is a Redis-Streams-backed bus.Bus.
type Bus struct {
	client    *redis.Client
	validator *contracts.Validator
	prefix    string
	maxLen    int64
	log       *zap.Logger
}

// Option configures a Bus at construction.
type Option func(*Bus)

// WithPrefix overrides the default "orion" stream-name prefix.
func WithPrefix(prefix string) Option {
	return func(b *Bus) { b.prefix = prefix }
}

// WithMaxLen overrides the default approximate retention cap.
func WithMaxLen(n int64) Option {
	return func(b *Bus) { b.maxLen = n }
}

// New wraps an already-configured *redis.Client.
func New(client *redis.Client, validator *contracts.Validator, log *zap.Logger, opts ...Option) *Bus {
	b := &Bus{
		client:    client,
		validator: validator,
		prefix:    "orion",
		maxLen:    defaultMaxLen,
		log:       log,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bus) streamName(kind contracts.Kind) string {
	return fmt.Sprintf("%s:%ss", b.prefix, kind)
}

// Publish implements bus.Bus.
func (b *Bus) Publish(ctx context.Context, kind contracts.Kind, v interface{}) error {
	if err := b.validator.Validate(kind, v); err != nil {
		return err
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redisbus: marshal %s: %w", kind, err)
	}

	return b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.streamName(kind),
		MaxLen: b.maxLen,
		Approx: true,
		Values: map[string]interface{}{dataField: raw},
	}).Err()
}

// Subscribe implements bus.Bus.
func (b *Bus) Subscribe(ctx context.Context, kind contracts.Kind, group, consumer string, handler bus.Handler) error {
	stream := b.streamName(kind)

	if err := b.client.XGroupCreateMkStream(ctx, stream, group, "0").Err(); err != nil {
		if !errors.Is(err, redis.Nil) && !alreadyExists(err) {
			return fmt.Errorf("redisbus: create group %s on %s: %w", group, stream, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{stream, ">"},
			Count:    readCount,
			Block:    blockDuration,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.log.Warn("redisbus: transient read error, continuing", zap.String("stream", stream), zap.Error(err))
			continue
		}

		for _, streamRes := range res {
			for _, entry := range streamRes.Messages {
				msg := toMessage(kind, entry)
				if err := handler(ctx, msg); err != nil {
					b.log.Error("redisbus: handler error",
						zap.String("stream", stream),
						zap.String("message_id", entry.ID),
						zap.Error(err),
					)
				}
				// Amplification guard: acknowledge regardless of handler
				// outcome. A failing handler must not cause redelivery.
				if err := b.client.XAck(ctx, stream, group, entry.ID).Err(); err != nil {
					b.log.Error("redisbus: ack failed", zap.String("message_id", entry.ID), zap.Error(err))
				}
			}
		}
	}
}

// Read implements bus.Bus.
func (b *Bus) Read(ctx context.Context, kind contracts.Kind, from string, limit int64) ([]bus.Message, error) {
	entries, err := b.client.XRangeN(ctx, b.streamName(kind), from, "+", limit).Result()
	if err != nil {
		return nil, fmt.Errorf("redisbus: range %s: %w", kind, err)
	}
	out := make([]bus.Message, 0, len(entries))
	for _, e := range entries {
		out = append(out, toMessage(kind, e))
	}
	return out, nil
}

// Close implements bus.Bus.
func (b *Bus) Close() error {
	return b.client.Close()
}

func toMessage(kind contracts.Kind, e redis.XMessage) bus.Message {
	var data []byte
	if raw, ok := e.Values[dataField]; ok {
		switch v := raw.(type) {
		case string:
			data = []byte(v)
		case []byte:
			data = v
		}
	}
	return bus.Message{ID: e.ID, Kind: kind, Data: data, Timestamp: time.Now().UTC()}
}

// alreadyExists reports whether err is Redis's BUSYGROUP response, which
// XGroupCreateMkStream returns when the group already exists — idempotent,
// not a failure.
func alreadyExists(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}
