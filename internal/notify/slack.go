package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/omniapi/monitor/internal/domain"
)

// SlackSender posts a Slack incoming-webhook message with an attachment
// colored by the new status.
type SlackSender struct {
	Client *http.Client
}

func NewSlackSender() *SlackSender {
	return &SlackSender{Client: &http.Client{Timeout: 10 * time.Second}}
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Fields []slackField `json:"fields"`
	Footer string       `json:"footer"`
	TS     int64        `json:"ts"`
}

type slackMessage struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments"`
}

func (s *SlackSender) Send(ctx context.Context, ch *domain.Channel, ev Event) error {
	fields := []slackField{
		{Title: "API", Value: ev.APIName, Short: true},
		{Title: "Status", Value: fmt.Sprintf("%s → %s", ev.PreviousStatus, ev.CurrentStatus), Short: true},
		{Title: "URL", Value: ev.APIURL, Short: false},
	}
	if ev.ResponseTimeMS != nil {
		fields = append(fields, slackField{Title: "Response Time", Value: fmt.Sprintf("%dms", *ev.ResponseTimeMS), Short: true})
	}
	if ev.Error != "" {
		fields = append(fields, slackField{Title: "Error", Value: ev.Error, Short: false})
	}

	msg := slackMessage{
		Text: fmt.Sprintf("%s API Status Changed: %s", statusEmoji(ev.CurrentStatus), ev.APIName),
		Attachments: []slackAttachment{{
			Color:  slackColor(ev.CurrentStatus),
			Fields: fields,
			Footer: "OmniAPI Monitor",
			TS:     ev.Timestamp.Unix(),
		}},
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return postJSON(ctx, s.Client, ch.URL, body)
}
