package usecase

import (
	"context"
	"errors"
	"log/slog"

	syncdomain "vectorsync-backend/internal/sync/domain"
	"vectorsync-backend/internal/sync/queue"
)

// IngestResult is the outcome of a successfully handled notification
type IngestResult string

const (
	IngestQueued  IngestResult = "queued"
	IngestIgnored IngestResult = "ignored"
)

// Ingester maps push notifications to tasks and hands them to the queue without blocking
type Ingester struct {
	mapper *EventMapper
	queue  *queue.Queue
	logger *slog.Logger
}

func NewIngester(mapper *EventMapper, q *queue.Queue, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{
		mapper: mapper,
		queue:  q,
		logger: logger.With("component", "ingester"),
	}
}

// Ingest returns an error wrapping ErrMalformedEvent for invalid events,
// queue.ErrQueueFull or queue.ErrQueueClosed when the task could not be accepted.
func (i *Ingester) Ingest(ctx context.Context, evt *syncdomain.WebhookEvent, source string) (IngestResult, error) {
	task, err := i.mapper.Map(evt)
	if err != nil {
		i.logger.WarnContext(ctx, "rejected malformed event", "source", source, "error", err)
		return "", err
	}
	if task == nil {
		return IngestIgnored, nil
	}
	task.Source = source

	if err := i.queue.TryEnqueue(*task); err != nil {
		if errors.Is(err, queue.ErrQueueFull) {
			i.logger.WarnContext(ctx, "queue full, rejecting event",
				"source", source, "user_id", task.UserID, "doc", task.Identifier())
		}
		return "", err
	}

	i.logger.DebugContext(ctx, "queued task",
		"source", source, "user_id", task.UserID, "kind", task.Kind,
		"doc", task.Identifier(), "operation", task.Operation)
	return IngestQueued, nil
}
