package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryListStore struct {
	last    Filters
	entries []Entry
}

func (s *memoryListStore) List(_ context.Context, filters Filters) (Result, error) {
	s.last = filters
	return Result{Entries: s.entries, Total: len(s.entries)}, nil
}

func TestListDefaultsPagination(t *testing.T) {
	store := &memoryListStore{}
	svc := NewService(store)

	_, err := svc.List(context.Background(), Filters{Offset: -5})
	require.NoError(t, err)
	require.Equal(t, 20, store.last.Limit)
	require.Equal(t, 0, store.last.Offset)
}

func TestListClampsLimit(t *testing.T) {
	store := &memoryListStore{}
	svc := NewService(store)

	_, err := svc.List(context.Background(), Filters{Limit: 500})
	require.NoError(t, err)
	require.Equal(t, 100, store.last.Limit)
}

func TestListRejectsInvertedDateRange(t *testing.T) {
	store := &memoryListStore{}
	svc := NewService(store)

	_, err := svc.List(context.Background(), Filters{
		DateFrom: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		DateTo:   time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
	})
	require.Error(t, err)
}

func TestListPassesFiltersThrough(t *testing.T) {
	actor := int64(7)
	store := &memoryListStore{entries: []Entry{{ID: 1, Action: "role.create", ResourceType: "role"}}}
	svc := NewService(store)

	res, err := svc.List(context.Background(), Filters{ActorID: &actor, Action: "role.create", Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	require.Equal(t, &actor, store.last.ActorID)
	require.Equal(t, "role.create", store.last.Action)
	require.Equal(t, 10, store.last.Limit)
}
