package probe

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/omniapi/monitor/internal/domain"
)

func testChecker() *Checker {
	c := NewChecker(zap.NewNop())
	c.Backoff = time.Millisecond // keep retries fast in tests
	return c
}

func target(url string) *domain.Target {
	return &domain.Target{
		ID:      "t1",
		Name:    "test api",
		URL:     url,
		Timeout: 2 * time.Second,
	}
}

func TestCheck_OnlineOK(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	}))
	defer s.Close()

	out := testChecker().Check(context.Background(), target(s.URL))
	if out.Status != domain.StatusOnline {
		t.Fatalf("want online, got %+v", out)
	}
	if out.StatusCode == nil || *out.StatusCode != 200 {
		t.Fatalf("want status code 200, got %v", out.StatusCode)
	}
	if out.Error != "" {
		t.Fatalf("want empty error, got %q", out.Error)
	}
	if out.ResponseTimeMS == nil || *out.ResponseTimeMS < 0 {
		t.Fatalf("want non-nil elapsed, got %v", out.ResponseTimeMS)
	}
}

// failingRT fails every request at the transport level and counts attempts.
type failingRT struct {
	calls int32
}

func (f *failingRT) RoundTrip(*http.Request) (*http.Response, error) {
	atomic.AddInt32(&f.calls, 1)
	return nil, errors.New("connection refused")
}

func TestCheck_TransportFailureRetriesExhausted(t *testing.T) {
	rt := &failingRT{}
	c := testChecker()
	c.Transport = rt

	tgt := target("http://example.invalid")
	tgt.Retries = 2

	out := c.Check(context.Background(), tgt)
	if out.Status != domain.StatusOffline {
		t.Fatalf("want offline, got %+v", out)
	}
	if got := atomic.LoadInt32(&rt.calls); got != 3 {
		t.Fatalf("want retries+1 = 3 attempts, got %d", got)
	}
	if out.Error == "" {
		t.Fatalf("want transport error message, got empty")
	}
	if out.StatusCode != nil {
		t.Fatalf("want nil status code on transport failure, got %v", *out.StatusCode)
	}
}

func TestCheck_WrongStatusCodeNeverRetries(t *testing.T) {
	var hits int32
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(500)
	}))
	defer s.Close()

	tgt := target(s.URL)
	tgt.Retries = 5

	out := testChecker().Check(context.Background(), tgt)
	if out.Status != domain.StatusOffline {
		t.Fatalf("want offline, got %+v", out)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("wrong status must not retry: want 1 attempt, got %d", got)
	}
	if out.Error != "HTTP 500 (expected 200)" {
		t.Fatalf("unexpected error message %q", out.Error)
	}
}

func TestCheck_ExpectedStatusList(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(201)
	}))
	defer s.Close()

	tgt := target(s.URL)
	tgt.ExpectedStatus = "200, 201, 204"

	out := testChecker().Check(context.Background(), tgt)
	if out.Status != domain.StatusOnline {
		t.Fatalf("201 should match expected list, got %+v", out)
	}

	tgt.ExpectedStatus = "204"
	out = testChecker().Check(context.Background(), tgt)
	if out.Status != domain.StatusOffline {
		t.Fatalf("want offline on mismatch, got %+v", out)
	}
	if out.Error != "HTTP 201 (expected 204)" {
		t.Fatalf("unexpected error message %q", out.Error)
	}
}

func TestCheck_ContentMatch(t *testing.T) {
	var hits int32
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer s.Close()

	tgt := target(s.URL)
	tgt.ContentMatch = `"status":\s*"healthy"`
	out := testChecker().Check(context.Background(), tgt)
	if out.Status != domain.StatusOnline {
		t.Fatalf("want online on content match, got %+v", out)
	}

	tgt.ContentMatch = `"status":\s*"degraded"`
	tgt.Retries = 3
	atomic.StoreInt32(&hits, 0)
	out = testChecker().Check(context.Background(), tgt)
	if out.Status != domain.StatusOffline {
		t.Fatalf("want offline on content mismatch, got %+v", out)
	}
	if out.Error != "Content match failed" {
		t.Fatalf("unexpected error message %q", out.Error)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("content mismatch must not retry: want 1 attempt, got %d", got)
	}
}

func TestCheck_TimeoutMessage(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(200)
	}))
	defer s.Close()

	tgt := target(s.URL)
	tgt.Timeout = 50 * time.Millisecond

	out := testChecker().Check(context.Background(), tgt)
	if out.Status != domain.StatusOffline {
		t.Fatalf("want offline on timeout, got %+v", out)
	}
	if out.Error != "Timeout after 50ms" {
		t.Fatalf("unexpected timeout message %q", out.Error)
	}
	if out.ResponseTimeMS == nil {
		t.Fatalf("timeout still records elapsed time")
	}
}

func TestClassify_SlowBoundary(t *testing.T) {
	c := NewChecker(zap.NewNop())
	if got := c.classify(2000 * time.Millisecond); got != domain.StatusOnline {
		t.Fatalf("2000ms is exactly at the threshold and must be online, got %s", got)
	}
	if got := c.classify(2001 * time.Millisecond); got != domain.StatusSlow {
		t.Fatalf("2001ms is above the threshold and must be slow, got %s", got)
	}
}

func TestCheck_Headers(t *testing.T) {
	var gotUA, gotAuth, gotCustom string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAuth = r.Header.Get("Authorization")
		gotCustom = r.Header.Get("X-Custom")
		w.WriteHeader(200)
	}))
	defer s.Close()

	tgt := target(s.URL)
	tgt.Headers = map[string]string{"X-Custom": "yes"}
	tgt.AuthType = domain.AuthBasic
	tgt.AuthUsername = "user"
	tgt.AuthPassword = "pass"

	out := testChecker().Check(context.Background(), tgt)
	if out.Status != domain.StatusOnline {
		t.Fatalf("want online, got %+v", out)
	}
	if gotUA != UserAgent {
		t.Fatalf("want baseline user agent %q, got %q", UserAgent, gotUA)
	}
	if gotCustom != "yes" {
		t.Fatalf("custom header missing, got %q", gotCustom)
	}
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("user:pass"))
	if gotAuth != want {
		t.Fatalf("want %q, got %q", want, gotAuth)
	}
}

func TestCheck_CustomHeaderOverridesUserAgent(t *testing.T) {
	var gotUA string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(200)
	}))
	defer s.Close()

	tgt := target(s.URL)
	tgt.Headers = map[string]string{"User-Agent": "custom-agent/2.0"}

	testChecker().Check(context.Background(), tgt)
	if gotUA != "custom-agent/2.0" {
		t.Fatalf("custom header should override baseline, got %q", gotUA)
	}
}

func TestCheck_BearerAuth(t *testing.T) {
	var gotAuth string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(200)
	}))
	defer s.Close()

	tgt := target(s.URL)
	tgt.AuthType = domain.AuthBearer
	tgt.AuthToken = "tok123"

	testChecker().Check(context.Background(), tgt)
	if gotAuth != "Bearer tok123" {
		t.Fatalf("want bearer header, got %q", gotAuth)
	}
}

func TestCheck_RedirectPolicy(t *testing.T) {
	dest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	defer dest.Close()
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, dest.URL, http.StatusFound)
	}))
	defer src.Close()

	// do-not-follow: the 302 itself is the response
	tgt := target(src.URL)
	tgt.ExpectedStatus = "302"
	out := testChecker().Check(context.Background(), tgt)
	if out.Status != domain.StatusOnline || out.StatusCode == nil || *out.StatusCode != 302 {
		t.Fatalf("want online with 302, got %+v", out)
	}

	// follow: lands on the destination 200
	tgt = target(src.URL)
	tgt.FollowRedirect = true
	out = testChecker().Check(context.Background(), tgt)
	if out.Status != domain.StatusOnline || out.StatusCode == nil || *out.StatusCode != 200 {
		t.Fatalf("want online with 200 after redirect, got %+v", out)
	}
}

func TestParseExpectedStatus(t *testing.T) {
	got := parseExpectedStatus("")
	if len(got) != 1 || got[0] != 200 {
		t.Fatalf("empty list defaults to 200, got %v", got)
	}
	got = parseExpectedStatus("200,301, 404")
	if len(got) != 3 || got[2] != 404 {
		t.Fatalf("want [200 301 404], got %v", got)
	}
	got = parseExpectedStatus("garbage")
	if len(got) != 1 || got[0] != 200 {
		t.Fatalf("unparseable list defaults to 200, got %v", got)
	}
}
