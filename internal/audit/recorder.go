package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Enqueuer hands an entry to the background job queue for asynchronous
// persistence. Implemented in the jobs package on top of asynq.
type Enqueuer interface {
	EnqueueAuditWrite(ctx context.Context, entry Entry) error
}

// InsertStore is the synchronous fallback write path.
type InsertStore interface {
	Insert(ctx context.Context, entry Entry) error
}

// Recorder appends audit entries for every state-changing operation.
// Writes are fire-and-forget: the triggering business action has already
// committed, and no failure on this path is ever surfaced to its caller.
// Completeness of the trail is deliberately secondary to availability of
// the primary action.
type Recorder struct {
	enqueuer Enqueuer
	store    InsertStore
	logger   *slog.Logger
	now      func() time.Time
}

// NewRecorder constructs a Recorder. The enqueuer may be nil, in which case
// entries are written directly through the store.
func NewRecorder(enqueuer Enqueuer, store InsertStore, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{enqueuer: enqueuer, store: store, logger: logger, now: time.Now}
}

// Log appends an audit entry. Faults are swallowed and surfaced only to the
// operational log, never to the caller.
func (r *Recorder) Log(ctx context.Context, entry Entry) {
	if r == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("audit write panicked", slog.Any("panic", rec))
		}
	}()
	if err := r.record(ctx, entry); err != nil {
		r.logger.Error("audit write failed",
			slog.String("action", entry.Action),
			slog.String("resource_type", entry.ResourceType),
			slog.Any("error", err))
	}
}

func (r *Recorder) record(ctx context.Context, entry Entry) error {
	if entry.Action == "" || entry.ResourceType == "" {
		return errors.New("audit: entry requires action and resource type")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}
	if r.enqueuer != nil {
		if err := r.enqueuer.EnqueueAuditWrite(ctx, entry); err == nil {
			return nil
		} else {
			r.logger.Warn("audit enqueue failed, writing inline", slog.Any("error", err))
		}
	}
	if r.store == nil {
		return errors.New("audit: no write path configured")
	}
	return r.store.Insert(ctx, entry)
}
