package shared

// Session value keys shared across packages. The session's key/value store
// is the persisted client state; these are the well-known entries.
const (
	// SessionKeyRole holds the primary role name captured at login.
	SessionKeyRole = "role"
	// SessionKeyCompany holds the company the session operates under.
	SessionKeyCompany = "company_id"
	// SessionKeySelectedProject holds the currently selected project id.
	SessionKeySelectedProject = "selected_project"
)
