package events

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	publishTimeout = 2 * time.Second
	// keep roughly the last 500 events, like the ML streams
	streamMaxLen = 500
)

// StreamPublisher appends events to a Redis stream
type StreamPublisher struct {
	client *redis.Client
	stream string
	logger *zap.Logger
}

// NewStreamPublisher creates a publisher writing to stream
func NewStreamPublisher(client *redis.Client, stream string, logger *zap.Logger) *StreamPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamPublisher{client: client, stream: stream, logger: logger}
}

// XAddArgs builds the stream entry for an event
func XAddArgs(stream string, e Event) (*redis.XAddArgs, error) {
	data, err := e.JSON()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize event %s: %w", e.ID, err)
	}
	return &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"kind": string(e.Kind),
			"data": string(data),
		},
	}, nil
}

// Notify publishes the event; failures are logged and never reach the caller
func (p *StreamPublisher) Notify(e Event) {
	args, err := XAddArgs(p.stream, e)
	if err != nil {
		p.logger.Warn("Failed to build stream entry", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		p.logger.Warn("Failed to publish event to Redis",
			zap.String("stream", p.stream), zap.String("kind", string(e.Kind)), zap.Error(err))
		return
	}
	p.logger.Debug("Published event", zap.String("stream", p.stream), zap.String("kind", string(e.Kind)))
}
