package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryEnqueuer struct {
	mu      sync.Mutex
	entries []Entry
	err     error
}

func (e *memoryEnqueuer) EnqueueAuditWrite(_ context.Context, entry Entry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.entries = append(e.entries, entry)
	return nil
}

type memoryInsertStore struct {
	mu      sync.Mutex
	entries []Entry
	err     error
}

func (s *memoryInsertStore) Insert(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

type panicStore struct{}

func (panicStore) Insert(context.Context, Entry) error { panic("store exploded") }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLogPrefersQueue(t *testing.T) {
	queue := &memoryEnqueuer{}
	store := &memoryInsertStore{}
	rec := NewRecorder(queue, store, testLogger())

	rec.Log(context.Background(), Entry{Action: "role.create", ResourceType: "role", ResourceID: "3"})

	require.Len(t, queue.entries, 1)
	require.Empty(t, store.entries)
	require.Equal(t, "role.create", queue.entries[0].Action)
	require.False(t, queue.entries[0].CreatedAt.IsZero())
}

func TestLogFallsBackToInlineWrite(t *testing.T) {
	queue := &memoryEnqueuer{err: errors.New("redis down")}
	store := &memoryInsertStore{}
	rec := NewRecorder(queue, store, testLogger())

	rec.Log(context.Background(), Entry{Action: "bill.create", ResourceType: "bill"})

	require.Empty(t, queue.entries)
	require.Len(t, store.entries, 1)
	require.Equal(t, "bill.create", store.entries[0].Action)
}

func TestLogSwallowsTotalFailure(t *testing.T) {
	queue := &memoryEnqueuer{err: errors.New("redis down")}
	store := &memoryInsertStore{err: errors.New("db down")}
	rec := NewRecorder(queue, store, testLogger())

	require.NotPanics(t, func() {
		rec.Log(context.Background(), Entry{Action: "role.delete", ResourceType: "role"})
	})
}

func TestLogRecoversPanickingStore(t *testing.T) {
	rec := NewRecorder(nil, panicStore{}, testLogger())

	require.NotPanics(t, func() {
		rec.Log(context.Background(), Entry{Action: "user.create", ResourceType: "user"})
	})
}

func TestLogRejectsIncompleteEntry(t *testing.T) {
	queue := &memoryEnqueuer{}
	rec := NewRecorder(queue, nil, testLogger())

	rec.Log(context.Background(), Entry{ResourceType: "role"})
	rec.Log(context.Background(), Entry{Action: "role.create"})

	require.Empty(t, queue.entries)
}

func TestLogKeepsCallerTimestamp(t *testing.T) {
	queue := &memoryEnqueuer{}
	rec := NewRecorder(queue, nil, testLogger())
	at := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

	rec.Log(context.Background(), Entry{Action: "payment.confirm", ResourceType: "payment", CreatedAt: at})

	require.Len(t, queue.entries, 1)
	require.Equal(t, at, queue.entries[0].CreatedAt)
}

func TestNilRecorderIsNoop(t *testing.T) {
	var rec *Recorder
	require.NotPanics(t, func() {
		rec.Log(context.Background(), Entry{Action: "role.create", ResourceType: "role"})
	})
}
