package worker

import (
	"context"
	"encoding/json"
	"time"

	"sjsage522/deallinker/internal/bundle"
	"sjsage522/deallinker/internal/metrics"
	"sjsage522/deallinker/logger"
	"sjsage522/deallinker/services/publisher"
	"sjsage522/deallinker/services/source"
)

const receiveBackoff = time.Second

// Processor turns one message into product records
type Processor interface {
	Process(ctx context.Context, msg bundle.Message) bundle.Result
}

// Worker consumes chat messages, processes them and publishes the records
type Worker struct {
	source         source.Source
	publisher      publisher.Publisher
	processor      Processor
	messageTimeout time.Duration
	metrics        *metrics.Metrics
	log            *logger.Logger
}

// NewWorker creates a new worker
func NewWorker(
	src source.Source,
	pub publisher.Publisher,
	processor Processor,
	messageTimeout time.Duration,
	m *metrics.Metrics,
) *Worker {
	return &Worker{
		source:         src,
		publisher:      pub,
		processor:      processor,
		messageTimeout: messageTimeout,
		metrics:        m,
		log:            logger.ForComponent("worker"),
	}
}

// Start runs the receive loop until ctx is cancelled
func (w *Worker) Start(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		deliveries, err := w.source.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.log.Error().Err(err).Msg("Failed to receive messages")
			w.wait(ctx)
			continue
		}

		for _, d := range deliveries {
			if err := w.Handle(ctx, d); err != nil {
				// the entry stays pending and comes back on the next Receive
				w.wait(ctx)
				break
			}
		}
	}
}

func (w *Worker) wait(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(receiveBackoff):
	}
}

// Handle processes one delivery. It is acknowledged once all of its records are
// published, or straight away when the payload cannot be decoded. A publish
// failure is returned and leaves the delivery unacknowledged.
func (w *Worker) Handle(ctx context.Context, d source.Delivery) error {
	var msg bundle.Message
	if err := json.Unmarshal(d.Payload, &msg); err != nil {
		w.log.Warn().Err(err).Str("delivery_id", d.ID).Msg("Dropping undecodable message")
		w.ack(ctx, d.ID)
		return nil
	}
	if msg.ID == "" {
		msg.ID = d.ID
	}

	mctx := ctx
	if w.messageTimeout > 0 {
		var cancel context.CancelFunc
		mctx, cancel = context.WithTimeout(ctx, w.messageTimeout)
		defer cancel()
	}

	start := time.Now()
	result := w.processor.Process(mctx, msg)

	payloads := make([][]byte, 0, len(result.Records))
	for _, record := range result.Records {
		data, err := json.Marshal(record)
		if err != nil {
			w.log.Error().Err(err).Str("message_id", msg.ID).Msg("Dropping message with unencodable record")
			w.ack(ctx, d.ID)
			return nil
		}
		payloads = append(payloads, data)
	}
	if err := w.publisher.PublishAll(ctx, publisher.RecordKey, payloads); err != nil {
		w.log.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to publish records")
		return err
	}
	w.metrics.ObservePublished(len(result.Records))

	if len(result.Records) > 0 {
		if err := w.publisher.TrimStreams(ctx); err != nil {
			w.log.Warn().Err(err).Msg("Stream trimming failed")
		}
	}

	w.ack(ctx, d.ID)

	w.log.Info().
		Str("message_id", msg.ID).
		Str("bundle", string(result.Kind)).
		Int("records", len(result.Records)).
		Int("extracted", result.Succeeded).
		Dur("elapsed", time.Since(start)).
		Msg("Message processed")
	return nil
}

func (w *Worker) ack(ctx context.Context, id string) {
	if err := w.source.Ack(ctx, id); err != nil {
		w.log.Error().Err(err).Str("delivery_id", id).Msg("Failed to acknowledge message")
	}
}
