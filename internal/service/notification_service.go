package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/visitor-attendance-api/pkg/jobs"
	"github.com/noah-isme/visitor-attendance-api/pkg/mailer"
)

// JobTypeVisitSummary identifies visit summary email jobs.
const JobTypeVisitSummary = "visit_summary_email"

// VisitSummaryPayload is the queued email job payload.
type VisitSummaryPayload struct {
	To      string
	Summary mailer.VisitSummary
}

// NotificationService queues visit summary emails.
type NotificationService struct {
	queue  jobDispatcher
	logger *zap.Logger
}

// NewNotificationService constructs the service. A nil queue disables email.
func NewNotificationService(queue jobDispatcher, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{queue: queue, logger: logger}
}

// Enabled reports whether emails will be queued.
func (s *NotificationService) Enabled() bool {
	return s != nil && s.queue != nil
}

// QueueVisitSummary schedules the departure email for a visitor.
func (s *NotificationService) QueueVisitSummary(to string, summary mailer.VisitSummary) {
	if !s.Enabled() || to == "" {
		return
	}
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    JobTypeVisitSummary,
		Payload: VisitSummaryPayload{To: to, Summary: summary},
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("queue visit summary email", zap.String("job_id", job.ID), zap.Error(err))
	}
}

// NotificationWorker delivers queued emails.
type NotificationWorker struct {
	sender mailer.Sender
	logger *zap.Logger
}

// NewNotificationWorker constructs a worker.
func NewNotificationWorker(sender mailer.Sender, logger *zap.Logger) *NotificationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationWorker{sender: sender, logger: logger}
}

// Handle processes a queue job.
func (w *NotificationWorker) Handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(VisitSummaryPayload)
	if !ok {
		w.logger.Error("unexpected notification payload", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}
	if err := w.sender.SendVisitSummary(ctx, payload.To, payload.Summary); err != nil {
		return fmt.Errorf("send visit summary: %w", err)
	}
	return nil
}
