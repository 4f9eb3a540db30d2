package scope

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strataflow/strataflow/internal/shared"
)

type fakeSource struct {
	projects map[int64][]int64
	calls    int
}

func (s *fakeSource) AccessibleProjects(ctx context.Context, userID int64) ([]int64, error) {
	s.calls++
	return s.projects[userID], nil
}

type fakeClientState map[string]string

func (c fakeClientState) Get(key string) string {
	return c[key]
}

func (c fakeClientState) Set(key, value string) {
	c[key] = value
}

func (c fakeClientState) Delete(key string) {
	delete(c, key)
}

func newTestManager(source *fakeSource) *Manager {
	return NewManager(source, nil, NewBus(), nil)
}

func TestLoadAutoSelectsSoleProject(t *testing.T) {
	source := &fakeSource{projects: map[int64][]int64{2: {9}}}
	manager := newTestManager(source)
	client := fakeClientState{}

	tracker := manager.Begin(2, "staff", client)
	require.Equal(t, StateUninitialized, tracker.State())

	require.NoError(t, tracker.Load(context.Background()))
	require.Equal(t, StateReady, tracker.State())
	require.True(t, tracker.IsProjectSelected())
	require.Equal(t, int64(9), *tracker.Selected())
	require.Equal(t, "9", client[shared.SessionKeySelectedProject])
}

func TestLoadRestoresPersistedSelection(t *testing.T) {
	source := &fakeSource{projects: map[int64][]int64{1: {3, 5, 8}}}
	manager := newTestManager(source)
	client := fakeClientState{shared.SessionKeySelectedProject: "5"}

	tracker := manager.Begin(1, "project_admin", client)
	require.NoError(t, tracker.Load(context.Background()))
	require.Equal(t, int64(5), *tracker.Selected())
}

func TestLoadDropsInaccessiblePersistedSelection(t *testing.T) {
	source := &fakeSource{projects: map[int64][]int64{1: {3, 8}}}
	manager := newTestManager(source)
	client := fakeClientState{shared.SessionKeySelectedProject: "5"}

	tracker := manager.Begin(1, "project_admin", client)
	require.NoError(t, tracker.Load(context.Background()))
	require.False(t, tracker.IsProjectSelected())
	_, ok := client[shared.SessionKeySelectedProject]
	require.False(t, ok, "stale persisted selection must be removed")
}

func TestLoadIgnoresGarbagePersistedValue(t *testing.T) {
	source := &fakeSource{projects: map[int64][]int64{1: {3, 8}}}
	manager := newTestManager(source)
	client := fakeClientState{shared.SessionKeySelectedProject: "not-a-number"}

	tracker := manager.Begin(1, "staff", client)
	require.NoError(t, tracker.Load(context.Background()))
	require.False(t, tracker.IsProjectSelected())
}

func TestSelectPersistsAndBroadcasts(t *testing.T) {
	source := &fakeSource{projects: map[int64][]int64{1: {3, 5}}}
	manager := newTestManager(source)
	client := fakeClientState{}

	changes, cancel := manager.Bus().Subscribe(4)
	defer cancel()

	tracker := manager.Begin(1, "project_admin", client)
	require.NoError(t, tracker.Load(context.Background()))

	id := int64(5)
	require.NoError(t, tracker.Select(context.Background(), &id))
	require.Equal(t, "5", client[shared.SessionKeySelectedProject])

	change := <-changes
	require.Equal(t, int64(1), change.UserID)
	require.Nil(t, change.Old)
	require.Equal(t, int64(5), *change.New)

	// Clearing the selection also broadcasts and removes the persisted value.
	require.NoError(t, tracker.Select(context.Background(), nil))
	change = <-changes
	require.Equal(t, int64(5), *change.Old)
	require.Nil(t, change.New)
	_, ok := client[shared.SessionKeySelectedProject]
	require.False(t, ok)
}

func TestSelectRejectsInaccessibleProject(t *testing.T) {
	source := &fakeSource{projects: map[int64][]int64{1: {3}}}
	manager := newTestManager(source)
	client := fakeClientState{}

	tracker := manager.Begin(1, "staff", client)
	require.NoError(t, tracker.Load(context.Background()))

	id := int64(44)
	err := tracker.Select(context.Background(), &id)
	require.ErrorIs(t, err, ErrProjectNotAccessible)
	require.False(t, tracker.IsProjectSelected())
}

func TestSelectBeforeLoadFails(t *testing.T) {
	manager := newTestManager(&fakeSource{})
	tracker := manager.Begin(1, "staff", fakeClientState{})

	id := int64(3)
	require.Error(t, tracker.Select(context.Background(), &id))
}

func TestClearResetsTracker(t *testing.T) {
	source := &fakeSource{projects: map[int64][]int64{1: {7}}}
	manager := newTestManager(source)
	client := fakeClientState{}

	changes, cancel := manager.Bus().Subscribe(2)
	defer cancel()

	tracker := manager.Begin(1, "resident", client)
	require.NoError(t, tracker.Load(context.Background()))
	require.True(t, tracker.IsProjectSelected())

	tracker.Clear()
	require.Equal(t, StateUninitialized, tracker.State())
	require.False(t, tracker.IsProjectSelected())
	_, ok := client[shared.SessionKeySelectedProject]
	require.False(t, ok)

	change := <-changes
	require.Equal(t, int64(7), *change.Old)
	require.Nil(t, change.New)
}

func TestBusPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(1)
	defer cancel()

	// Fill the buffer, then publish again; the second publish must drop
	// rather than block.
	bus.Publish(Change{UserID: 1})
	bus.Publish(Change{UserID: 2})

	change := <-ch
	require.Equal(t, int64(1), change.UserID)
	select {
	case <-ch:
		t.Fatal("expected second change to be dropped")
	default:
	}
}

func TestSubscribeCancelClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(1)
	cancel()
	cancel() // idempotent

	_, open := <-ch
	require.False(t, open)
	bus.Publish(Change{UserID: 1}) // no subscribers left, must not panic
}
