package session

import (
	"context"
	"errors"

	"incident-platform/internal/incident"
)

var ErrNotFound = errors.New("session: not found")

// Step is the wizard position stored with the session. Handlers assert the
// session is at the expected step before accepting input, so a bookmarked or
// replayed POST cannot produce a half-filled report.
type Step int

const (
	StepSelectCategory Step = iota
	StepSelectLocation
	StepSelectRoom
	StepEnterContent
	StepConfirm
	StepSend
	StepCompleted
)

func (s Step) String() string {
	switch s {
	case StepSelectCategory:
		return "select_category"
	case StepSelectLocation:
		return "select_location"
	case StepSelectRoom:
		return "select_room"
	case StepEnterContent:
		return "enter_content"
	case StepConfirm:
		return "confirm"
	case StepSend:
		return "send"
	case StepCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// State is one in-progress report. It exists only between the first wizard
// step and completion or TTL expiry.
type State struct {
	Step       Step               `json:"step"`
	Event      incident.EventType `json:"event"`
	LocationID int                `json:"location_id"`

	// Locations is the per-session overlay over the immutable default
	// building table. Only custom entries live here; resolution falls back
	// to the default table for everything else.
	Locations map[int]string `json:"locations,omitempty"`

	Room    string `json:"room"`
	Content string `json:"content"`

	// Message is derived once at submission time.
	Message string `json:"message,omitempty"`
}

// LocationName resolves the selected location against the session overlay.
func (s State) LocationName() string {
	return incident.LocationName(s.LocationID, s.Locations)
}

// SetCustomLocation records a reporter-typed location under the custom
// sentinel without touching the shared default table.
func (s *State) SetCustomLocation(name string) {
	if s.Locations == nil {
		s.Locations = make(map[int]string, 1)
	}
	s.Locations[incident.CustomLocationID] = name
	s.LocationID = incident.CustomLocationID
}

// Store is the persistence contract for wizard sessions.
type Store interface {
	Get(ctx context.Context, id string) (State, error)
	Put(ctx context.Context, id string, s State) error
	Delete(ctx context.Context, id string) error
}
