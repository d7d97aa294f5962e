package publisher

import "context"

// RecordKey is the stream field that carries a base64 encoded product record
const RecordKey = "b64_product"

// Publisher hands product records to the storage collaborator
type Publisher interface {
	// Publish publishes a message to the output stream under key
	Publish(ctx context.Context, key string, message []byte) error

	// PublishAll publishes every message under key, all or none
	PublishAll(ctx context.Context, key string, messages [][]byte) error

	// TrimStreams trims the output stream to the configured maximum length
	TrimStreams(ctx context.Context) error

	// Close closes the publisher connection
	Close() error
}
