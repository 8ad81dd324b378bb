package audit

import "time"

// Event is an immutable, append-only audit record of a staff action.
//
// Invariants:
// - Events are never updated or deleted.
// - Actor and ip capture are best-effort; audit failures must not block
//   the administrative flow they describe.
//
// Storage (Postgres, when enabled):
// - Table audit_events with an INSERT-only policy.
// - Optional: trigger to prevent UPDATE/DELETE.

type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// Actor is the authenticated staff identity causing the event.
	Actor string `json:"actor,omitempty" db:"actor"`
	// ActorRole is the role the actor held at the time.
	ActorRole string `json:"actor_role,omitempty" db:"actor_role"`

	// IPAddress is the resolved client IP when available.
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	// CaseID links the event to a case record when one is involved.
	CaseID string `json:"case_id,omitempty" db:"case_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeAdminLogin    EventType = "admin_login"
	EventTypeAdminAction   EventType = "admin_action"
	EventTypeBroadcastTest EventType = "broadcast_test"
	EventTypeRecordsClear  EventType = "records_clear"
	EventTypeLogsClear     EventType = "logs_clear"
	EventTypeAnnouncement  EventType = "announcement"
)
