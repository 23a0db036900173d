// Package events publishes pipeline completion events to Redis Streams.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	infralogger "github.com/jonesrussell/north-cloud/importer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/importer/internal/domain"
)

// DefaultStream is the stream completion events are written to.
const DefaultStream = "importer:events"

// EventType names the kind of completion.
type EventType string

const (
	EventImportCompleted EventType = "import.completed"
	EventClearCompleted  EventType = "clear.completed"
	EventExpireCompleted EventType = "expire.completed"
)

// Completion is the payload of a completion event.
type Completion struct {
	EventID    uuid.UUID           `json:"event_id"`
	EventType  EventType           `json:"event_type"`
	SourceID   string              `json:"source_id"`
	SourceType string              `json:"source_type"`
	Pipeline   domain.PipelineKind `json:"pipeline"`
	Created    int                 `json:"created"`
	Updated    int                 `json:"updated"`
	Deleted    int                 `json:"deleted"`
	Skipped    int                 `json:"skipped"`
	Failed     int                 `json:"failed"`
	FinishedAt time.Time           `json:"finished_at"`
}

func eventType(kind domain.PipelineKind) EventType {
	switch kind {
	case domain.KindClear:
		return EventClearCompleted
	case domain.KindExpire:
		return EventExpireCompleted
	default:
		return EventImportCompleted
	}
}

// Publisher publishes completion events to a Redis stream.
type Publisher struct {
	client redis.Cmdable
	stream string
	maxLen int64
	log    infralogger.Logger
}

// NewPublisher creates a new event publisher.
// Returns nil if client is nil.
func NewPublisher(client redis.Cmdable, stream string, maxLen int64, log infralogger.Logger) *Publisher {
	if client == nil {
		return nil
	}
	if stream == "" {
		stream = DefaultStream
	}
	if log == nil {
		log = infralogger.NewNop()
	}
	return &Publisher{client: client, stream: stream, maxLen: maxLen, log: log}
}

// PublishCompletion announces a completed pipeline of a source.
func (p *Publisher) PublishCompletion(ctx context.Context, src *domain.Source, summary domain.ImportSummary) error {
	return p.Publish(ctx, Completion{
		EventType:  eventType(summary.Pipeline),
		SourceID:   src.ID,
		SourceType: src.TypeID,
		Pipeline:   summary.Pipeline,
		Created:    summary.Created,
		Updated:    summary.Updated,
		Deleted:    summary.Deleted,
		Skipped:    summary.Skipped,
		Failed:     summary.Failed,
		FinishedAt: summary.FinishedAt,
	})
}

// Publish sends an event to the Redis stream.
func (p *Publisher) Publish(ctx context.Context, event Completion) error {
	if p == nil || p.client == nil {
		return nil
	}

	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	if event.FinishedAt.IsZero() {
		event.FinishedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"event_type": string(event.EventType),
			"event":      string(payload),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		p.log.Error("Failed to publish event",
			infralogger.String("event_type", string(event.EventType)),
			infralogger.SourceID(event.SourceID),
			infralogger.Error(err),
		)
		return fmt.Errorf("publish to stream: %w", err)
	}

	p.log.Info("Published completion event",
		infralogger.String("event_type", string(event.EventType)),
		infralogger.SourceID(event.SourceID),
		infralogger.String("stream_id", id),
	)
	return nil
}
