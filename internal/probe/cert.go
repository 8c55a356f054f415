package probe

import (
	"crypto/tls"
	"math"
	"net"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// certDialTimeout bounds the TLS handshake so one unreachable host cannot
// stall the inspector.
const certDialTimeout = 5 * time.Second

// CertInspector reads the expiry of a target's leaf certificate. Inspection
// is best-effort: every failure is logged and reported as nil days-left so
// it never blocks the HTTP probe.
type CertInspector struct {
	Logger  *zap.Logger
	Timeout time.Duration
}

func NewCertInspector(logger *zap.Logger) *CertInspector {
	return &CertInspector{Logger: logger, Timeout: certDialTimeout}
}

// DaysLeft returns the whole days remaining until the leaf certificate
// expires, or nil when the URL is not https or the handshake fails.
func (c *CertInspector) DaysLeft(rawURL string) *int {
	if !strings.HasPrefix(rawURL, "https://") {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		c.Logger.Warn("ssl_check_bad_url", zap.String("url", rawURL), zap.Error(err))
		return nil
	}
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "443"
	}

	dialer := &net.Dialer{Timeout: c.Timeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", net.JoinHostPort(host, port), &tls.Config{
		ServerName: host,
		// Expiry is read even when the chain does not verify; the HTTP
		// probe decides reachability on its own.
		InsecureSkipVerify: true,
	})
	if err != nil {
		c.Logger.Warn("ssl_check_error", zap.String("host", host), zap.Error(err))
		return nil
	}
	defer conn.Close()

	certs := conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		c.Logger.Warn("ssl_check_no_certs", zap.String("host", host))
		return nil
	}

	// Index 0 is always the leaf certificate. Floor, not truncate, so an
	// expired cert reads as negative days.
	days := int(math.Floor(time.Until(certs[0].NotAfter).Hours() / 24))
	return &days
}
