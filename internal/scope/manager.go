package scope

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/strataflow/strataflow/internal/authcache"
	"github.com/strataflow/strataflow/internal/shared"
)

// ErrProjectNotAccessible is returned when a selection falls outside the
// user's accessible-project set.
var ErrProjectNotAccessible = errors.New("scope: project not accessible")

// State tracks the lifecycle of a session's project selection.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// ProjectSource resolves the set of project ids a user may operate on.
// Super admins receive every project.
type ProjectSource interface {
	AccessibleProjects(ctx context.Context, userID int64) ([]int64, error)
}

// ClientState is the persisted per-session key/value store the manager
// keeps its selection in. *shared.Session satisfies it.
type ClientState interface {
	Get(key string) string
	Set(key, value string)
	Delete(key string)
}

// Manager owns the accessible-project lookup and the change bus. One
// Manager serves the whole process; per-session selection state lives in
// the Tracker it hands out.
type Manager struct {
	source ProjectSource
	cache  *authcache.Cache
	bus    *Bus
	logger *slog.Logger
}

// NewManager constructs the scope manager.
func NewManager(source ProjectSource, cache *authcache.Cache, bus *Bus, logger *slog.Logger) *Manager {
	if bus == nil {
		bus = NewBus()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{source: source, cache: cache, bus: bus, logger: logger}
}

// Bus exposes the change bus so consumers can subscribe.
func (m *Manager) Bus() *Bus { return m.bus }

// AccessibleProjects returns the user's accessible set, cached for the
// medium TTL tier.
func (m *Manager) AccessibleProjects(ctx context.Context, userID int64) ([]int64, error) {
	key, err := m.cache.BuildKey(ctx, "projects", userID, nil, nil)
	if err != nil {
		return nil, err
	}
	var ids []int64
	err = m.cache.Fetch(ctx, authcache.TierMedium, key, &ids, func(ctx context.Context) (any, error) {
		return m.source.AccessibleProjects(ctx, userID)
	})
	if err != nil {
		return nil, fmt.Errorf("scope: accessible projects: %w", err)
	}
	return ids, nil
}

// Begin starts tracking a session. The tracker is Uninitialized until
// Load runs.
func (m *Manager) Begin(userID int64, role string, client ClientState) *Tracker {
	return &Tracker{manager: m, userID: userID, role: role, client: client}
}

// Tracker is the per-session selection state machine:
// Uninitialized -> Loading -> Ready.
type Tracker struct {
	manager *Manager
	userID  int64
	role    string
	client  ClientState

	mu         sync.Mutex
	state      State
	accessible []int64
	selected   *int64
}

// Load fetches the accessible set and settles the initial selection: a
// persisted selection still in the set is restored, a sole accessible
// project is auto-selected, anything else starts unselected. A persisted
// selection that is no longer accessible is dropped from client state.
func (t *Tracker) Load(ctx context.Context) error {
	t.mu.Lock()
	t.state = StateLoading
	t.mu.Unlock()

	accessible, err := t.manager.AccessibleProjects(ctx, t.userID)
	if err != nil {
		t.mu.Lock()
		t.state = StateUninitialized
		t.mu.Unlock()
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.accessible = accessible
	t.selected = nil

	if persisted, ok := t.persistedSelection(); ok {
		if containsID(accessible, persisted) {
			t.selected = &persisted
		} else {
			t.client.Delete(shared.SessionKeySelectedProject)
		}
	}
	if t.selected == nil && len(accessible) == 1 {
		only := accessible[0]
		t.selected = &only
		t.client.Set(shared.SessionKeySelectedProject, strconv.FormatInt(only, 10))
	}
	t.state = StateReady
	return nil
}

// State returns the tracker's lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Selected returns the current selection, nil when unselected.
func (t *Tracker) Selected() *int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.selected == nil {
		return nil
	}
	id := *t.selected
	return &id
}

// IsProjectSelected reports whether a project is currently selected.
func (t *Tracker) IsProjectSelected() bool {
	return t.Selected() != nil
}

// Accessible returns the accessible-project set loaded by Load.
func (t *Tracker) Accessible() []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]int64, len(t.accessible))
	copy(out, t.accessible)
	return out
}

// Select changes the selection, persists it and broadcasts the change.
// A nil projectID clears the selection. This is the only path allowed to
// invalidate scope-dependent data downstream.
func (t *Tracker) Select(ctx context.Context, projectID *int64) error {
	t.mu.Lock()
	if t.state != StateReady {
		t.mu.Unlock()
		return fmt.Errorf("scope: select before load (state %s)", t.state)
	}
	if projectID != nil && !containsID(t.accessible, *projectID) {
		t.mu.Unlock()
		return ErrProjectNotAccessible
	}

	old := t.selected
	if projectID == nil {
		t.selected = nil
		t.client.Delete(shared.SessionKeySelectedProject)
	} else {
		id := *projectID
		t.selected = &id
		t.client.Set(shared.SessionKeySelectedProject, strconv.FormatInt(id, 10))
	}
	change := Change{UserID: t.userID, Old: old, New: t.selected}
	t.mu.Unlock()

	t.manager.bus.Publish(change)
	t.manager.logger.InfoContext(ctx, "project scope changed",
		slog.Int64("user_id", change.UserID),
		slog.String("old", scopeLabel(change.Old)),
		slog.String("new", scopeLabel(change.New)))
	return nil
}

// Clear drops the selection and persisted value, used at logout. The
// tracker returns to Uninitialized.
func (t *Tracker) Clear() {
	t.mu.Lock()
	old := t.selected
	t.selected = nil
	t.accessible = nil
	t.state = StateUninitialized
	t.client.Delete(shared.SessionKeySelectedProject)
	userID := t.userID
	t.mu.Unlock()

	if old != nil {
		t.manager.bus.Publish(Change{UserID: userID, Old: old, New: nil})
	}
}

func (t *Tracker) persistedSelection() (int64, bool) {
	raw := t.client.Get(shared.SessionKeySelectedProject)
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		t.client.Delete(shared.SessionKeySelectedProject)
		return 0, false
	}
	return id, true
}

func containsID(ids []int64, id int64) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func scopeLabel(id *int64) string {
	if id == nil {
		return "none"
	}
	return strconv.FormatInt(*id, 10)
}
