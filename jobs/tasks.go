package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/strataflow/strataflow/internal/audit"
	jobmetrics "github.com/strataflow/strataflow/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeAuditWrite is the task type for asynchronous audit inserts.
	TaskTypeAuditWrite = "audit:write"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
)

// NewAuditWriteTask constructs an Asynq task carrying one audit entry.
func NewAuditWriteTask(entry audit.Entry) (*asynq.Task, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeAuditWrite, data), nil
}

// AuditWriter handles TaskTypeAuditWrite tasks in the worker.
type AuditWriter struct {
	store   audit.InsertStore
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewAuditWriter constructs the audit write handler.
func NewAuditWriter(store audit.InsertStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditWriter{store: store, logger: logger, metrics: metrics}
}

// Handle persists one audit entry. A malformed payload is dropped rather
// than retried; a storage error is retried by asynq.
func (a *AuditWriter) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := a.metrics.Track("audit_write")
	var entry audit.Entry
	if err := json.Unmarshal(t.Payload(), &entry); err != nil {
		a.logger.Error("audit task payload malformed", slog.Any("error", err))
		_ = tracker.End(err)
		return asynq.SkipRetry
	}
	if err := a.store.Insert(ctx, entry); err != nil {
		return tracker.End(fmt.Errorf("jobs: audit insert: %w", err))
	}
	return tracker.End(nil)
}

// SendEmailPayload describes a role-change notification email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task carrying one notification.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// EmailSender handles TaskTypeSendEmail tasks in the worker. Delivery is
// log-only until an SMTP relay is configured.
type EmailSender struct {
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewEmailSender constructs the notification handler.
func NewEmailSender(logger *slog.Logger, metrics *jobmetrics.Metrics) *EmailSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailSender{logger: logger, metrics: metrics}
}

// Handle delivers one notification. A malformed payload is dropped rather
// than retried.
func (s *EmailSender) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := s.metrics.Track("send_email")
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		s.logger.Error("email task payload malformed", slog.Any("error", err))
		_ = tracker.End(err)
		return asynq.SkipRetry
	}
	if payload.To == "" {
		s.logger.Warn("email task missing recipient", slog.String("subject", payload.Subject))
		_ = tracker.End(nil)
		return asynq.SkipRetry
	}
	s.logger.Info("send email",
		slog.String("to", payload.To),
		slog.String("subject", payload.Subject))
	return tracker.End(nil)
}
