package audit

import (
	"context"
	"fmt"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// ListStore is the query surface the service reads from.
type ListStore interface {
	List(ctx context.Context, filters Filters) (Result, error)
}

// Service coordinates audit log retrieval.
type Service struct {
	store ListStore
}

// NewService builds a query service.
func NewService(store ListStore) *Service {
	return &Service{store: store}
}

// List returns entries newest-first with clamped pagination and the exact
// total count of matching rows.
func (s *Service) List(ctx context.Context, filters Filters) (Result, error) {
	if s.store == nil {
		return Result{}, fmt.Errorf("audit: store not configured")
	}
	if filters.Limit <= 0 {
		filters.Limit = defaultLimit
	}
	if filters.Limit > maxLimit {
		filters.Limit = maxLimit
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}
	if !filters.DateFrom.IsZero() && !filters.DateTo.IsZero() && filters.DateFrom.After(filters.DateTo) {
		return Result{}, fmt.Errorf("audit: date range inverted")
	}
	return s.store.List(ctx, filters)
}
