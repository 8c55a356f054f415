package domain

import "time"

// ChannelKind identifies the delivery mechanism of a notification channel.
type ChannelKind string

const (
	ChannelWebhook ChannelKind = "webhook"
	ChannelSlack   ChannelKind = "slack"
	ChannelDiscord ChannelKind = "discord"
	ChannelEmail   ChannelKind = "email"
)

// Event kinds a channel may subscribe to.
const (
	EventStatusChange    = "status_change"
	EventIncidentCreated = "incident_created"
)

// Channel is a configured notification destination for one target. URL is
// set for webhook/slack/discord kinds, Email for the email kind.
type Channel struct {
	ID        string      `json:"id"`
	TargetID  TargetID    `json:"target_id"`
	Kind      ChannelKind `json:"kind"`
	URL       string      `json:"url,omitempty"`
	Email     string      `json:"email,omitempty"`
	Active    bool        `json:"is_active"`
	Events    []string    `json:"events"`
	CreatedAt time.Time   `json:"created_at"`
}

// Subscribed reports whether the channel wants the given event kind.
func (c Channel) Subscribed(event string) bool {
	for _, e := range c.Events {
		if e == event {
			return true
		}
	}
	return false
}
