package domain

import "time"

// IncidentStatus is the lifecycle state of an incident. An incident is
// "active" while open or acknowledged; resolved is terminal for that
// occurrence.
type IncidentStatus string

const (
	IncidentOpen         IncidentStatus = "open"
	IncidentAcknowledged IncidentStatus = "acknowledged"
	IncidentResolved     IncidentStatus = "resolved"
)

// Active reports whether the status still counts against the
// one-active-incident-per-target invariant.
func (s IncidentStatus) Active() bool {
	return s == IncidentOpen || s == IncidentAcknowledged
}

// Incident is a contiguous period during which a target is believed
// unreachable.
type Incident struct {
	ID          string         `json:"id"`
	TargetID    TargetID       `json:"target_id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Severity    string         `json:"severity"`
	Status      IncidentStatus `json:"status"`
	Notes       string         `json:"notes,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	EndedAt     *time.Time     `json:"ended_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
