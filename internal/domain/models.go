package domain

import "time"

type TargetID string

// AuthType selects how the Authorization header is synthesized for a check.
type AuthType string

const (
	AuthNone   AuthType = ""
	AuthBasic  AuthType = "basic"
	AuthBearer AuthType = "bearer"
)

// Target is a monitored endpoint together with its check configuration.
// A Target is immutable for the duration of a single check run; only the
// management surface mutates it.
type Target struct {
	ID             TargetID          `json:"id"`
	Name           string            `json:"name"`
	URL            string            `json:"url"`
	Method         string            `json:"method"`
	ExpectedStatus string            `json:"expected_status"` // comma-separated codes, empty means "200"
	Timeout        time.Duration     `json:"timeout"`
	Retries        int               `json:"retries"`
	Headers        map[string]string `json:"headers,omitempty"`
	ContentMatch   string            `json:"content_match,omitempty"` // regexp tested against the response body
	AuthType       AuthType          `json:"auth_type,omitempty"`
	AuthUsername   string            `json:"auth_username,omitempty"`
	AuthPassword   string            `json:"auth_password,omitempty"`
	AuthToken      string            `json:"auth_token,omitempty"`
	FollowRedirect bool              `json:"follow_redirects"`
	SSLCheck       bool              `json:"ssl_check_enabled"`
	CreatedAt      time.Time         `json:"created_at"`
}
