package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/omniapi/monitor/internal/domain"
)

// DiscordSender posts a Discord webhook message as an embed.
type DiscordSender struct {
	Client *http.Client
}

func NewDiscordSender() *DiscordSender {
	return &DiscordSender{Client: &http.Client{Timeout: 10 * time.Second}}
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields"`
	Timestamp   string         `json:"timestamp"`
	Footer      struct {
		Text string `json:"text"`
	} `json:"footer"`
}

type discordMessage struct {
	Embeds []discordEmbed `json:"embeds"`
}

func (s *DiscordSender) Send(ctx context.Context, ch *domain.Channel, ev Event) error {
	fields := []discordField{{Name: "URL", Value: ev.APIURL}}
	if ev.ResponseTimeMS != nil {
		fields = append(fields, discordField{Name: "Response Time", Value: fmt.Sprintf("%dms", *ev.ResponseTimeMS), Inline: true})
	}
	if ev.Error != "" {
		fields = append(fields, discordField{Name: "Error", Value: ev.Error})
	}

	embed := discordEmbed{
		Title: fmt.Sprintf("%s API Status Changed", statusEmoji(ev.CurrentStatus)),
		Description: fmt.Sprintf("**%s** status changed from **%s** to **%s**",
			ev.APIName, ev.PreviousStatus, ev.CurrentStatus),
		Color:     discordColor(ev.CurrentStatus),
		Fields:    fields,
		Timestamp: ev.Timestamp.Format(time.RFC3339),
	}
	embed.Footer.Text = "OmniAPI Monitor"

	body, err := json.Marshal(discordMessage{Embeds: []discordEmbed{embed}})
	if err != nil {
		return err
	}
	return postJSON(ctx, s.Client, ch.URL, body)
}
