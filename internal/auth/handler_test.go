package auth

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/strataflow/strataflow/internal/rbac"
	"github.com/strataflow/strataflow/internal/shared"
)

type memoryRepo struct {
	users    map[string]*User
	sessions map[string]int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{users: make(map[string]*User), sessions: make(map[string]int64)}
}

func (r *memoryRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	user, ok := r.users[strings.ToLower(email)]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return user, nil
}

func (r *memoryRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	r.sessions[id] = userID
	return nil
}

func (r *memoryRepo) DeleteSession(ctx context.Context, id string) error {
	delete(r.sessions, id)
	return nil
}

type staticRoles struct {
	role string
}

func (s staticRoles) PrimaryRole(ctx context.Context, userID int64, scope rbac.Scope) (string, bool, error) {
	if s.role == "" {
		return "", false, nil
	}
	return s.role, true, nil
}

func newFixture(t *testing.T, roles RoleSource) (*Handler, *memoryRepo, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sm := shared.NewSessionManager(client, "strataflow_session", "test-secret", time.Hour, false)
	repo := newMemoryRepo()

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	repo.users["admin@example.com"] = &User{
		ID:           1,
		Email:        "admin@example.com",
		Name:         "Admin",
		PasswordHash: string(hash),
		IsActive:     true,
	}

	handler := NewHandler(slog.Default(), NewService(repo), roles, sm)
	return handler, repo, sm
}

func requestWithSession(t *testing.T, sm *shared.SessionManager, method, target, body string) (*http.Request, *shared.Session) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	sess, err := sm.Load(req.Context(), req)
	require.NoError(t, err)
	return req.WithContext(shared.ContextWithSession(req.Context(), sess)), sess
}

func TestLoginSetsUserAndRole(t *testing.T) {
	handler, repo, sm := newFixture(t, staticRoles{role: "accountant"})

	req, sess := requestWithSession(t, sm, http.MethodPost, "/login", `{"email":"admin@example.com","password":"correct horse"}`)
	rec := httptest.NewRecorder()
	handler.handleLogin(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "1", sess.User())
	require.Equal(t, "accountant", sess.Get(shared.SessionKeyRole))
	require.Contains(t, rec.Body.String(), `"accountant"`)
	require.Equal(t, int64(1), repo.sessions[sess.ID])
}

func TestLoginRejectsBadPassword(t *testing.T) {
	handler, _, sm := newFixture(t, staticRoles{})

	req, sess := requestWithSession(t, sm, http.MethodPost, "/login", `{"email":"admin@example.com","password":"wrong password"}`)
	rec := httptest.NewRecorder()
	handler.handleLogin(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, sess.User())
}

func TestLoginRejectsInactiveUser(t *testing.T) {
	handler, repo, sm := newFixture(t, staticRoles{})
	repo.users["admin@example.com"].IsActive = false

	req, _ := requestWithSession(t, sm, http.MethodPost, "/login", `{"email":"admin@example.com","password":"correct horse"}`)
	rec := httptest.NewRecorder()
	handler.handleLogin(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutClearsSelectedProject(t *testing.T) {
	handler, repo, sm := newFixture(t, staticRoles{role: "staff"})

	req, sess := requestWithSession(t, sm, http.MethodPost, "/logout", "")
	sess.SetUser("1")
	sess.Set(shared.SessionKeySelectedProject, "9")
	repo.sessions[sess.ID] = 1

	rec := httptest.NewRecorder()
	handler.handleLogout(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, sess.Get(shared.SessionKeySelectedProject))
	_, still := repo.sessions[sess.ID]
	require.False(t, still)
}
