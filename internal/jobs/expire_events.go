package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"

	"github.com/convene-events/server/internal/domain/events"
	"github.com/convene-events/server/internal/metrics"
)

// Events removed per sweep. The periodic job reschedules hourly, so a
// backlog larger than this drains over a few runs instead of one long one.
const expireBatchSize = 200

// ExpireEventsArgs defines the job that removes events past retention.
type ExpireEventsArgs struct{}

func (ExpireEventsArgs) Kind() string { return JobKindExpireEvents }

// ExpireEventsWorker deletes events whose end time passed more than the
// retention window ago. Each removal runs the full teardown: Delete
// activities to followers first, then the actor and its log are purged.
type ExpireEventsWorker struct {
	river.WorkerDefaults[ExpireEventsArgs]
	Service   *events.Service
	Metrics   *metrics.Metrics
	Retention time.Duration
	Logger    *slog.Logger
}

func (ExpireEventsWorker) Kind() string { return JobKindExpireEvents }

func (w ExpireEventsWorker) Work(ctx context.Context, job *river.Job[ExpireEventsArgs]) error {
	if w.Service == nil {
		return fmt.Errorf("events service not configured")
	}

	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}

	start := time.Now()

	logger.Info("starting event expiry sweep",
		"retention", w.Retention.String(),
		"attempt", job.Attempt,
	)

	removed, err := w.Service.ExpireEvents(ctx, w.Retention, expireBatchSize)
	if err != nil {
		logger.Error("event expiry sweep failed",
			"removed_count", removed,
			"error", err,
		)
		return fmt.Errorf("expire events: %w", err)
	}

	if w.Metrics != nil {
		w.Metrics.RecordExpiredEvents(removed)
	}

	logger.Info("event expiry sweep completed",
		"removed_count", removed,
		"duration_seconds", time.Since(start).Seconds(),
	)

	return nil
}

// NewWorkers registers every worker the serve command runs.
func NewWorkers(service *events.Service, m *metrics.Metrics, retention time.Duration, logger *slog.Logger) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker[ExpireEventsArgs](workers, ExpireEventsWorker{
		Service:   service,
		Metrics:   m,
		Retention: retention,
		Logger:    logger,
	})
	return workers
}
