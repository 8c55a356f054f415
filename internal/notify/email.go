package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"html"
	"strings"
	"time"

	mail "gopkg.in/mail.v2"

	"github.com/omniapi/monitor/internal/domain"
)

// SMTPConfig carries the SMTP settings for the email channel.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	SSL      bool
}

// EmailSender renders the event as an HTML table and sends it to the
// channel's address. A single send, no retry loop.
type EmailSender struct {
	cfg SMTPConfig
}

func NewEmailSender(cfg SMTPConfig) *EmailSender {
	if cfg.From == "" {
		cfg.From = "OmniAPI Monitor <noreply@omniapi.local>"
	}
	return &EmailSender{cfg: cfg}
}

func (s *EmailSender) Send(ctx context.Context, ch *domain.Channel, ev Event) error {
	if s.cfg.Host == "" {
		return fmt.Errorf("smtp not configured")
	}

	emoji := statusEmoji(ev.CurrentStatus)
	m := mail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", ch.Email)
	m.SetHeader("Subject", fmt.Sprintf("%s %s - Status Changed to %s", emoji, ev.APIName, ev.CurrentStatus))
	m.SetBody("text/plain", plainBody(ev))
	m.AddAlternative("text/html", htmlBody(emoji, ev))

	d := mail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.Username, s.cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: s.cfg.Host}
	d.Timeout = 15 * time.Second
	if s.cfg.SSL {
		d.SSL = true
	} else {
		d.StartTLSPolicy = mail.OpportunisticStartTLS
	}

	done := make(chan error, 1)
	go func() { done <- d.DialAndSend(m) }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(20 * time.Second):
		return fmt.Errorf("timeout sending email")
	}
}

func plainBody(ev Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s status changed from %s to %s\n\n", ev.APIName, ev.PreviousStatus, ev.CurrentStatus)
	fmt.Fprintf(&b, "URL: %s\n", ev.APIURL)
	if ev.ResponseTimeMS != nil {
		fmt.Fprintf(&b, "Response Time: %dms\n", *ev.ResponseTimeMS)
	}
	if ev.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", ev.Error)
	}
	fmt.Fprintf(&b, "Timestamp: %s\n\nSent by OmniAPI Monitor\n", ev.Timestamp.Format(time.RFC3339))
	return b.String()
}

func htmlBody(emoji string, ev Event) string {
	row := func(k, v string) string {
		return fmt.Sprintf(`<tr><td style="padding: 8px; border: 1px solid #ddd;"><strong>%s</strong></td><td style="padding: 8px; border: 1px solid #ddd;">%s</td></tr>`, k, html.EscapeString(v))
	}

	var rows strings.Builder
	rows.WriteString(row("API Name", ev.APIName))
	rows.WriteString(row("URL", ev.APIURL))
	rows.WriteString(row("Status Change", fmt.Sprintf("%s → %s", ev.PreviousStatus, ev.CurrentStatus)))
	if ev.ResponseTimeMS != nil {
		rows.WriteString(row("Response Time", fmt.Sprintf("%dms", *ev.ResponseTimeMS)))
	}
	if ev.Error != "" {
		rows.WriteString(row("Error", ev.Error))
	}
	rows.WriteString(row("Timestamp", ev.Timestamp.Format(time.RFC1123)))

	return fmt.Sprintf(`
    <h2>%s API Status Changed</h2>
    <p><strong>%s</strong> status changed from <strong>%s</strong> to <strong>%s</strong></p>
    <table style="border-collapse: collapse; width: 100%%; max-width: 600px;">%s</table>
    <p style="margin-top: 20px; color: #666;">Sent by OmniAPI Monitor</p>`,
		emoji, html.EscapeString(ev.APIName), ev.PreviousStatus, ev.CurrentStatus, rows.String())
}
