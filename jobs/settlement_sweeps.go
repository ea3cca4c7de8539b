package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/nexport-erp/nexport-erp/internal/jobs"
	"github.com/nexport-erp/nexport-erp/internal/settlement"
)

// MarkOverdueJob runs the daily batch flipping past-due pending
// installments to Overdue.
type MarkOverdueJob struct {
	Settlement *settlement.Service
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// Handle executes the sweep.
func (j *MarkOverdueJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Settlement == nil {
		return errors.New("mark overdue: handler not configured")
	}
	var payload SweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskTypeMarkOverdue)
	count, err := j.Settlement.MarkOverdueInstallments(ctx)
	if err = tracker.End(err); err != nil {
		j.Logger.Error("overdue sweep failed", slog.Any("error", err))
		return err
	}
	j.Logger.Info("overdue sweep finished",
		slog.Int64("marked", count),
		slog.Time("scheduled_for", payload.ScheduledFor))
	return nil
}

// RemindersJob runs the daily payment reminder sweep.
type RemindersJob struct {
	Settlement *settlement.Service
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// Handle executes the sweep.
func (j *RemindersJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Settlement == nil {
		return errors.New("reminders: handler not configured")
	}
	var payload SweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskTypeReminders)
	sent, err := j.Settlement.SendPaymentReminders(ctx)
	j.Metrics.AddRemindersSent(sent)
	if err = tracker.End(err); err != nil {
		j.Logger.Error("reminder sweep failed",
			slog.Int("sent_before_failure", sent),
			slog.Any("error", err))
		return err
	}
	j.Logger.Info("reminder sweep finished",
		slog.Int("sent", sent),
		slog.Time("scheduled_for", payload.ScheduledFor))
	return nil
}

// EnqueueMarkOverdue submits an immediate overdue sweep.
func (c *Client) EnqueueMarkOverdue(ctx context.Context) (*asynq.TaskInfo, error) {
	task, err := NewMarkOverdueTask(time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
}
