// Package source delivers inbound chat messages from a Redis stream consumer group.
package source

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// MessageKey carries a JSON message, B64MessageKey a base64 encoded one
	MessageKey    = "message"
	B64MessageKey = "b64_message"

	defaultBlock     = 5 * time.Second
	defaultCount     = 10
	defaultClaimIdle = 5 * time.Minute
)

// Delivery is one stream entry awaiting acknowledgement
type Delivery struct {
	ID      string
	Payload []byte
}

// Source receives deliveries and acknowledges them once handled
type Source interface {
	Receive(ctx context.Context) ([]Delivery, error)
	Ack(ctx context.Context, ids ...string) error
	Close() error
}

// RedisSource reads a stream through a consumer group
type RedisSource struct {
	client    *redis.Client
	stream    string
	group     string
	consumer  string
	block     time.Duration
	count     int64
	claimIdle time.Duration
}

// NewRedisSource creates a source. Call EnsureGroup before the first Receive.
func NewRedisSource(client *redis.Client, stream, group, consumer string) *RedisSource {
	return &RedisSource{
		client:    client,
		stream:    stream,
		group:     group,
		consumer:  consumer,
		block:     defaultBlock,
		count:     defaultCount,
		claimIdle: defaultClaimIdle,
	}
}

// WithBlock sets how long Receive waits for new entries
func (s *RedisSource) WithBlock(d time.Duration) *RedisSource {
	s.block = d
	return s
}

// WithClaimIdle sets how long another consumer's entry must sit unacknowledged
// before Receive takes it over
func (s *RedisSource) WithClaimIdle(d time.Duration) *RedisSource {
	s.claimIdle = d
	return s
}

// EnsureGroup creates the consumer group (and the stream) when missing
func (s *RedisSource) EnsureGroup(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.stream, s.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s on %s: %w", s.group, s.stream, err)
	}
	return nil
}

// Receive returns, in order of preference: this consumer's own unacknowledged
// entries, entries another consumer left idle for longer than the claim time, and
// new entries. It returns none when the block time passes without any.
func (s *RedisSource) Receive(ctx context.Context) ([]Delivery, error) {
	pending, err := s.read(ctx, "0", -1)
	if err != nil || len(pending) > 0 {
		return pending, err
	}

	claimed, err := s.claim(ctx)
	if err != nil || len(claimed) > 0 {
		return claimed, err
	}

	return s.read(ctx, ">", s.block)
}

func (s *RedisSource) read(ctx context.Context, id string, block time.Duration) ([]Delivery, error) {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, id},
		Count:    s.count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("read group %s: %w", s.group, err)
	}

	var deliveries []Delivery
	for _, stream := range streams {
		deliveries = append(deliveries, toDeliveries(stream.Messages)...)
	}
	return deliveries, nil
}

func (s *RedisSource) claim(ctx context.Context) ([]Delivery, error) {
	messages, _, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   s.stream,
		Group:    s.group,
		Consumer: s.consumer,
		MinIdle:  s.claimIdle,
		Start:    "0-0",
		Count:    s.count,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim idle entries of %s: %w", s.group, err)
	}
	return toDeliveries(messages), nil
}

func toDeliveries(messages []redis.XMessage) []Delivery {
	deliveries := make([]Delivery, 0, len(messages))
	for _, entry := range messages {
		deliveries = append(deliveries, Delivery{ID: entry.ID, Payload: payload(entry.Values)})
	}
	return deliveries
}

// Ack acknowledges handled entries
func (s *RedisSource) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.client.XAck(ctx, s.stream, s.group, ids...).Err()
}

// Close closes the Redis connection
func (s *RedisSource) Close() error {
	return s.client.Close()
}

// payload returns the entry's message bytes; undecodable entries yield nil
func payload(values map[string]interface{}) []byte {
	if raw, ok := values[MessageKey].(string); ok {
		return []byte(raw)
	}
	if encoded, ok := values[B64MessageKey].(string); ok {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err == nil {
			return decoded
		}
	}
	return nil
}
