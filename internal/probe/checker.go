package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/omniapi/monitor/internal/domain"
)

const (
	// UserAgent is the baseline request header; custom target headers may
	// override it.
	UserAgent = "OmniAPI-Monitor/1.0"

	// slowThreshold classifies a successful response: strictly above it is
	// slow, at or below it is online.
	slowThreshold = 2000 * time.Millisecond

	// retryBackoff is the fixed delay between attempts after a transport
	// failure. Deliberately constant, not exponential.
	retryBackoff = 1 * time.Second

	defaultTimeout = 10 * time.Second
)

// Checker performs one full health probe of one target: optional certificate
// inspection, then an HTTP attempt loop with retries, timeout, auth, content
// validation and status classification.
type Checker struct {
	Logger    *zap.Logger
	Certs     *CertInspector
	Backoff   time.Duration
	Threshold time.Duration

	// Transport overrides the HTTP transport, for tests.
	Transport http.RoundTripper
}

func NewChecker(logger *zap.Logger) *Checker {
	return &Checker{
		Logger:    logger,
		Certs:     NewCertInspector(logger),
		Backoff:   retryBackoff,
		Threshold: slowThreshold,
	}
}

// Check probes the target once (including its internal retry loop) and
// returns the outcome. It never returns an error: every failure mode is
// folded into the outcome itself.
func (c *Checker) Check(ctx context.Context, t *domain.Target) *domain.CheckOutcome {
	out := &domain.CheckOutcome{
		TargetID:  t.ID,
		Status:    domain.StatusOffline,
		CheckedAt: time.Now().UTC(),
	}

	// SSL inspection is independent of the HTTP probe and best-effort.
	if t.SSLCheck {
		out.SSLDaysLeft = c.Certs.DaysLeft(t.URL)
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	expected := parseExpectedStatus(t.ExpectedStatus)
	client := &http.Client{Transport: c.Transport}
	if !t.FollowRedirect {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	maxAttempts := t.Retries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		elapsed, done := c.attempt(ctx, client, t, timeout, expected, out)
		if elapsed >= 0 {
			ms := int(elapsed.Milliseconds())
			out.ResponseTimeMS = &ms
		}
		if done {
			break
		}
		// Transport failure with attempts remaining: fixed backoff, retry.
		if attempt < maxAttempts-1 {
			c.Logger.Debug("check_retry",
				zap.String("target_id", string(t.ID)),
				zap.String("url", t.URL),
				zap.Int("attempt", attempt+1),
				zap.String("error", out.Error),
			)
			select {
			case <-time.After(c.Backoff):
			case <-ctx.Done():
				return out
			}
		}
	}
	return out
}

// attempt issues one request and fills out with the result. It returns the
// attempt's elapsed time (negative if no request was sent) and whether the
// loop is done: true on success or on a non-retryable application mismatch,
// false on a transport failure that may be retried.
func (c *Checker) attempt(ctx context.Context, client *http.Client, t *domain.Target, timeout time.Duration, expected []int, out *domain.CheckOutcome) (time.Duration, bool) {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := t.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(actx, method, t.URL, nil)
	if err != nil {
		out.Status = domain.StatusOffline
		out.Error = err.Error()
		return -1, true
	}

	// Baseline headers first, then target headers (which may override),
	// then synthesized auth (which wins over a custom Authorization).
	req.Header.Set("User-Agent", UserAgent)
	for k, v := range t.Headers {
		req.Header.Set(k, v)
	}
	switch t.AuthType {
	case domain.AuthBasic:
		if t.AuthUsername != "" && t.AuthPassword != "" {
			req.SetBasicAuth(t.AuthUsername, t.AuthPassword)
		}
	case domain.AuthBearer:
		if t.AuthToken != "" {
			req.Header.Set("Authorization", "Bearer "+t.AuthToken)
		}
	}

	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		out.Status = domain.StatusOffline
		out.StatusCode = nil
		if isTimeout(err) {
			out.Error = fmt.Sprintf("Timeout after %dms", timeout.Milliseconds())
		} else {
			out.Error = err.Error()
		}
		return elapsed, false
	}
	defer resp.Body.Close()

	code := resp.StatusCode
	out.StatusCode = &code

	// A wrong-but-received status code is deterministic; never retried.
	if !containsInt(expected, code) {
		out.Status = domain.StatusOffline
		out.Error = fmt.Sprintf("HTTP %d (expected %s)", code, joinInts(expected))
		return elapsed, true
	}

	if t.ContentMatch != "" {
		body, err := io.ReadAll(resp.Body)
		elapsed = time.Since(start)
		if err != nil {
			out.Status = domain.StatusOffline
			out.Error = err.Error()
			return elapsed, false
		}
		re, err := regexp.Compile(t.ContentMatch)
		if err != nil || !re.Match(body) {
			out.Status = domain.StatusOffline
			out.Error = "Content match failed"
			return elapsed, true
		}
	}

	out.Status = c.classify(elapsed)
	out.Error = ""
	return elapsed, true
}

// classify maps a successful response's elapsed time to a status. Exactly at
// the threshold is still online; only strictly above is slow.
func (c *Checker) classify(elapsed time.Duration) domain.Status {
	if elapsed > c.Threshold {
		return domain.StatusSlow
	}
	return domain.StatusOnline
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}

// parseExpectedStatus parses the comma-separated expected status codes,
// defaulting to {200}.
func parseExpectedStatus(s string) []int {
	if strings.TrimSpace(s) == "" {
		return []int{200}
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return []int{200}
	}
	return out
}

func containsInt(set []int, n int) bool {
	for _, v := range set {
		if v == n {
			return true
		}
	}
	return false
}

func joinInts(set []int) string {
	parts := make([]string, len(set))
	for i, v := range set {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}
