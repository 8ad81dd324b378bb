package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	// RoleAdmin may perform destructive operations (clears, announcements,
	// channel control) in addition to everything a viewer can do.
	RoleAdmin = "admin"
	// RoleViewer may browse records, statistics and logs but not mutate.
	RoleViewer = "viewer"
)

func IsAdmin(role string) bool { return role == RoleAdmin }
