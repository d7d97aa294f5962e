package publisher

import (
	"context"
	"encoding/base64"

	"github.com/redis/go-redis/v9"

	apperrors "sjsage522/deallinker/pkg/errors"
)

// RedisPublisher implements Publisher with a Redis stream
type RedisPublisher struct {
	client          *redis.Client
	stream          string
	streamMaxLength int
}

// NewRedisPublisher creates a publisher writing to stream through client
func NewRedisPublisher(client *redis.Client, stream string, streamMaxLength int) *RedisPublisher {
	return &RedisPublisher{
		client:          client,
		stream:          stream,
		streamMaxLength: streamMaxLength,
	}
}

// Publish appends the message to the stream.
// The message is base64 encoded before publishing
func (p *RedisPublisher) Publish(ctx context.Context, key string, message []byte) error {
	encodedMessage := base64.StdEncoding.EncodeToString(message)

	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			key: encodedMessage,
		},
	}).Err()
	if err != nil {
		return apperrors.NewPublisher("failed to publish to "+p.stream, err)
	}
	return nil
}

// PublishAll appends every message to the stream in one MULTI/EXEC, so a
// redelivered message never leaves a partial set of records behind
func (p *RedisPublisher) PublishAll(ctx context.Context, key string, messages [][]byte) error {
	if len(messages) == 0 {
		return nil
	}
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, message := range messages {
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: p.stream,
				Values: map[string]interface{}{
					key: base64.StdEncoding.EncodeToString(message),
				},
			})
		}
		return nil
	})
	if err != nil {
		return apperrors.NewPublisher("failed to publish batch to "+p.stream, err)
	}
	return nil
}

// TrimStreams trims the stream to the configured maximum length
func (p *RedisPublisher) TrimStreams(ctx context.Context) error {
	if p.streamMaxLength <= 0 {
		return nil
	}
	if err := p.client.XTrimMaxLen(ctx, p.stream, int64(p.streamMaxLength)).Err(); err != nil {
		return apperrors.NewPublisher("failed to trim "+p.stream, err)
	}
	return nil
}

// Close closes the Redis connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
