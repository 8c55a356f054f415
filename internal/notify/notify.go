package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/omniapi/monitor/internal/domain"
	"github.com/omniapi/monitor/internal/repo"
)

// Event is the status-change payload fanned out to channels. Field names are
// the wire format of the generic webhook body.
type Event struct {
	APIID          string        `json:"apiId"`
	APIName        string        `json:"apiName"`
	APIURL         string        `json:"apiUrl"`
	PreviousStatus domain.Status `json:"previousStatus"`
	CurrentStatus  domain.Status `json:"currentStatus"`
	ResponseTimeMS *int          `json:"responseTime,omitempty"`
	Error          string        `json:"error,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
}

// Sender delivers one formatted event to one channel.
type Sender interface {
	Send(ctx context.Context, ch *domain.Channel, ev Event) error
}

// Dispatcher fans status-change events out to a target's active channels.
// Delivery is fire-and-forget: every failure is logged and swallowed, and no
// channel's failure affects another's.
type Dispatcher struct {
	Logger   *zap.Logger
	Channels repo.ChannelStore
	senders  map[domain.ChannelKind]Sender
}

func NewDispatcher(logger *zap.Logger, channels repo.ChannelStore, smtp SMTPConfig) *Dispatcher {
	return &Dispatcher{
		Logger:   logger,
		Channels: channels,
		senders: map[domain.ChannelKind]Sender{
			domain.ChannelWebhook: NewWebhookSender(),
			domain.ChannelSlack:   NewSlackSender(),
			domain.ChannelDiscord: NewDiscordSender(),
			domain.ChannelEmail:   NewEmailSender(smtp),
		},
	}
}

// WithSender replaces the sender for a kind. Tests use it; production wiring
// sticks with the defaults.
func (d *Dispatcher) WithSender(kind domain.ChannelKind, s Sender) *Dispatcher {
	d.senders[kind] = s
	return d
}

// NotifyStatusChange dispatches to every active channel of the target that
// subscribes to status_change events. No-op when the status did not actually
// change.
func (d *Dispatcher) NotifyStatusChange(ctx context.Context, t *domain.Target, prev, cur domain.Status, responseMS *int, errMsg string) {
	if prev == cur {
		return
	}
	ev := Event{
		APIID:          string(t.ID),
		APIName:        t.Name,
		APIURL:         t.URL,
		PreviousStatus: prev,
		CurrentStatus:  cur,
		ResponseTimeMS: responseMS,
		Error:          errMsg,
		Timestamp:      time.Now().UTC(),
	}
	d.fanOut(ctx, t, domain.EventStatusChange, ev)
}

// NotifyIncidentCreated dispatches to channels subscribed to
// incident_created events when a new incident is opened.
func (d *Dispatcher) NotifyIncidentCreated(ctx context.Context, t *domain.Target, inc *domain.Incident) {
	ev := Event{
		APIID:          string(t.ID),
		APIName:        t.Name,
		APIURL:         t.URL,
		PreviousStatus: domain.StatusOnline,
		CurrentStatus:  domain.StatusOffline,
		Error:          inc.Description,
		Timestamp:      inc.StartedAt,
	}
	d.fanOut(ctx, t, domain.EventIncidentCreated, ev)
}

func (d *Dispatcher) fanOut(ctx context.Context, t *domain.Target, event string, ev Event) {
	channels, err := d.Channels.ListActive(ctx, t.ID)
	if err != nil {
		d.Logger.Warn("notify_list_channels_error",
			zap.String("target_id", string(t.ID)),
			zap.Error(err),
		)
		return
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	for _, ch := range channels {
		if !ch.Subscribed(event) {
			continue
		}
		sender, ok := d.senders[ch.Kind]
		if !ok {
			d.Logger.Warn("notify_unknown_kind",
				zap.String("channel_id", ch.ID),
				zap.String("kind", string(ch.Kind)),
			)
			continue
		}
		wg.Add(1)
		go func(ch *domain.Channel) {
			defer wg.Done()
			if err := sender.Send(ctx, ch, ev); err != nil {
				d.Logger.Warn("notify_send_error",
					zap.String("channel_id", ch.ID),
					zap.String("kind", string(ch.Kind)),
					zap.String("target_id", string(t.ID)),
					zap.Error(err),
				)
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
		}(ch)
	}
	wg.Wait()

	if errs != nil {
		d.Logger.Debug("notify_partial_failure",
			zap.String("target_id", string(t.ID)),
			zap.Int("failed", len(multierr.Errors(errs))),
		)
	}
}

// statusEmoji and the colors below key all channel formats off the new
// status.
func statusEmoji(s domain.Status) string {
	switch s {
	case domain.StatusOnline:
		return "✅"
	case domain.StatusSlow:
		return "⚠️"
	default:
		return "🔴"
	}
}

func slackColor(s domain.Status) string {
	switch s {
	case domain.StatusOnline:
		return "good"
	case domain.StatusSlow:
		return "warning"
	default:
		return "danger"
	}
}

func discordColor(s domain.Status) int {
	switch s {
	case domain.StatusOnline:
		return 0x00ff00
	case domain.StatusSlow:
		return 0xffaa00
	default:
		return 0xff0000
	}
}
