package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/strataflow/strataflow/internal/audit"
)

type memoryStore struct {
	entries []audit.Entry
	err     error
}

func (s *memoryStore) Insert(_ context.Context, entry audit.Entry) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAuditWriterPersistsEntry(t *testing.T) {
	store := &memoryStore{}
	writer := NewAuditWriter(store, discardLogger(), nil)

	task, err := NewAuditWriteTask(audit.Entry{Action: "role.create", ResourceType: "role", ResourceID: "9"})
	require.NoError(t, err)

	require.NoError(t, writer.Handle(context.Background(), task))
	require.Len(t, store.entries, 1)
	require.Equal(t, "role.create", store.entries[0].Action)
	require.Equal(t, "9", store.entries[0].ResourceID)
}

func TestAuditWriterSkipsMalformedPayload(t *testing.T) {
	store := &memoryStore{}
	writer := NewAuditWriter(store, discardLogger(), nil)

	task := asynq.NewTask(TaskTypeAuditWrite, []byte("{not json"))

	err := writer.Handle(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Empty(t, store.entries)
}

func TestAuditWriterRetriesStorageFailure(t *testing.T) {
	store := &memoryStore{err: errors.New("db down")}
	writer := NewAuditWriter(store, discardLogger(), nil)

	task, err := NewAuditWriteTask(audit.Entry{Action: "user.create", ResourceType: "user"})
	require.NoError(t, err)

	err = writer.Handle(context.Background(), task)
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestEmailSenderAcceptsValidPayload(t *testing.T) {
	sender := NewEmailSender(discardLogger(), nil)

	task, err := NewSendEmailTask(SendEmailPayload{To: "user@example.com", Subject: "Role assigned: Staff", Body: "hi"})
	require.NoError(t, err)

	require.NoError(t, sender.Handle(context.Background(), task))
}

func TestEmailSenderSkipsMalformedPayload(t *testing.T) {
	sender := NewEmailSender(discardLogger(), nil)

	task := asynq.NewTask(TaskTypeSendEmail, []byte("{not json"))

	require.ErrorIs(t, sender.Handle(context.Background(), task), asynq.SkipRetry)
}

func TestEmailSenderSkipsMissingRecipient(t *testing.T) {
	sender := NewEmailSender(discardLogger(), nil)

	task, err := NewSendEmailTask(SendEmailPayload{Subject: "Role assigned: Staff"})
	require.NoError(t, err)

	require.ErrorIs(t, sender.Handle(context.Background(), task), asynq.SkipRetry)
}
