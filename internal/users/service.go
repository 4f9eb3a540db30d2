package users

import (
	"context"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/strataflow/strataflow/internal/audit"
	"github.com/strataflow/strataflow/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	CreateUser(ctx context.Context, email, name, passwordHash string) (User, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// Recorder appends audit entries without ever failing the caller.
type Recorder interface {
	Log(ctx context.Context, entry audit.Entry)
}

// Service handles user business logic.
type Service struct {
	repo     RepositoryPort
	recorder Recorder
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, recorder Recorder) *Service {
	return &Service{repo: repo, recorder: recorder}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// GetUser fetches one user.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// CreateUser provisions an account with a bcrypt-hashed password.
func (s *Service) CreateUser(ctx context.Context, input NewUserInput) (User, error) {
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	input.Name = strings.TrimSpace(input.Name)
	if input.Email == "" || input.Name == "" {
		return User{}, ErrMissingDetails
	}
	if len(input.Password) < 8 {
		return User{}, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	user, err := s.repo.CreateUser(ctx, input.Email, input.Name, string(hash))
	if err != nil {
		return User{}, err
	}
	s.audit(ctx, "user.create", user.ID, nil, map[string]any{"email": user.Email, "name": user.Name})
	return user, nil
}

// SetActive enables or disables an account.
func (s *Service) SetActive(ctx context.Context, id int64, active bool) error {
	before, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if before.IsActive == active {
		return nil
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return err
	}
	s.audit(ctx, "user.set_active", id,
		map[string]any{"is_active": before.IsActive},
		map[string]any{"is_active": active})
	return nil
}

func (s *Service) audit(ctx context.Context, action string, userID int64, oldValues, newValues map[string]any) {
	if s.recorder == nil {
		return
	}
	entry := audit.Entry{
		Action:       action,
		ResourceType: "user",
		ResourceID:   strconv.FormatInt(userID, 10),
		OldValues:    oldValues,
		NewValues:    newValues,
	}
	if actorID, ok := shared.ActorFromContext(ctx); ok {
		entry.ActorID = &actorID
	}
	s.recorder.Log(ctx, entry)
}
