package audit

import "time"

// Entry is an immutable audit record: who did what to which resource, with
// optional before/after snapshots and tenant scope. Entries are created once
// and never mutated or deleted by application code.
type Entry struct {
	ID           int64          `json:"id"`
	ActorID      *int64         `json:"actor_id,omitempty"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id,omitempty"`
	OldValues    map[string]any `json:"old_values,omitempty"`
	NewValues    map[string]any `json:"new_values,omitempty"`
	CompanyID    *int64         `json:"company_id,omitempty"`
	ProjectID    *int64         `json:"project_id,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Filters narrows audit log queries. Zero values mean "no filter".
type Filters struct {
	ActorID      *int64
	Action       string
	ResourceType string
	DateFrom     time.Time
	DateTo       time.Time
	Limit        int
	Offset       int
}

// Result holds one page of entries, newest first, with the exact total.
type Result struct {
	Entries []Entry
	Total   int
}
