package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/nexport-erp/nexport-erp/internal/jobs"
	"github.com/nexport-erp/nexport-erp/internal/replenish"
)

// ReplenishScanJob runs the daily reorder-level scan that raises material
// requests for depleted items.
type ReplenishScanJob struct {
	Replenish *replenish.Service
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// Handle executes the scan.
func (j *ReplenishScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Replenish == nil {
		return errors.New("replenish scan: handler not configured")
	}
	var payload SweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskTypeReplenishScan)
	created, err := j.Replenish.Scan(ctx)
	j.Metrics.AddMaterialRequests(created)
	if err = tracker.End(err); err != nil {
		j.Logger.Error("replenish scan failed", slog.Any("error", err))
		return err
	}
	if created > 0 {
		j.Logger.Info("replenish scan finished", slog.Int("created", created))
	}
	return nil
}
