package domain

import "time"

// Status is the verdict of one check.
type Status string

const (
	StatusOnline  Status = "online"
	StatusSlow    Status = "slow"
	StatusOffline Status = "offline"
)

// CheckOutcome is the result of one full probe of one target. Pointer fields
// stay nil when the attempt never produced the value (e.g. no response was
// received, or the target is not HTTPS).
type CheckOutcome struct {
	ID             string    `json:"id"`
	TargetID       TargetID  `json:"target_id"`
	Status         Status    `json:"status"`
	ResponseTimeMS *int      `json:"response_time_ms"`
	StatusCode     *int      `json:"status_code"`
	Error          string    `json:"error,omitempty"`
	SSLDaysLeft    *int      `json:"ssl_days_left"`
	Region         string    `json:"region,omitempty"`
	CheckedAt      time.Time `json:"checked_at"`
}
