package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeMarkOverdue is the daily sweep flipping past-due installments.
	TaskTypeMarkOverdue = "settlement:mark_overdue"
	// TaskTypeReminders is the daily payment reminder sweep.
	TaskTypeReminders = "settlement:reminders"
	// TaskTypeReplenishScan is the daily reorder-level scan.
	TaskTypeReplenishScan = "replenish:scan"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// SweepPayload carries scheduling metadata for daily sweeps.
type SweepPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewMarkOverdueTask constructs the overdue sweep task.
func NewMarkOverdueTask(at time.Time) (*asynq.Task, error) {
	return newSweepTask(TaskTypeMarkOverdue, at)
}

// NewRemindersTask constructs the reminder sweep task.
func NewRemindersTask(at time.Time) (*asynq.Task, error) {
	return newSweepTask(TaskTypeReminders, at)
}

// NewReplenishScanTask constructs the reorder scan task.
func NewReplenishScanTask(at time.Time) (*asynq.Task, error) {
	return newSweepTask(TaskTypeReplenishScan, at)
}

func newSweepTask(taskType string, at time.Time) (*asynq.Task, error) {
	data, err := json.Marshal(SweepPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data, asynq.Queue(QueueDefault)), nil
}

// MailSender delivers one email.
type MailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// MailJob handles queued email deliveries.
type MailJob struct {
	Sender MailSender
	Logger *slog.Logger
}

// Handle processes TaskTypeSendEmail tasks.
func (j *MailJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sender == nil {
		return errors.New("mail job: sender not configured")
	}
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if err := j.Sender.Send(ctx, payload.To, payload.Subject, payload.Body); err != nil {
		j.Logger.Warn("mail send failed",
			slog.String("to", payload.To),
			slog.Any("error", err))
		return err
	}
	return nil
}
