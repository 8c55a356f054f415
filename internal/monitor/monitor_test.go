package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/omniapi/monitor/internal/domain"
	"github.com/omniapi/monitor/internal/incident"
	"github.com/omniapi/monitor/internal/notify"
	"github.com/omniapi/monitor/internal/probe"
	"github.com/omniapi/monitor/internal/repo/memory"
)

// recordingSender captures dispatched events in place of a real channel.
type recordingSender struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingSender) Send(_ context.Context, _ *domain.Channel, ev notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSender) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type testEnv struct {
	store   *memory.Store
	svc     *Service
	sender  *recordingSender
	tracker *incident.Tracker
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	store := memory.New()
	checker := probe.NewChecker(logger)
	checker.Backoff = time.Millisecond
	tracker := incident.NewTracker(logger, store)
	sender := &recordingSender{}
	dispatcher := notify.NewDispatcher(logger, store, notify.SMTPConfig{}).
		WithSender(domain.ChannelWebhook, sender)
	return &testEnv{
		store:   store,
		svc:     NewService(logger, store, checker, tracker, dispatcher),
		sender:  sender,
		tracker: tracker,
	}
}

func (e *testEnv) addTarget(t *testing.T, name, url string, at time.Time) domain.TargetID {
	t.Helper()
	tgt := &domain.Target{
		Name:      name,
		URL:       url,
		Timeout:   2 * time.Second,
		CreatedAt: at,
	}
	e.store.AddTarget(tgt)
	return tgt.ID
}

func (e *testEnv) subscribe(id domain.TargetID, url string) {
	e.store.AddChannel(&domain.Channel{
		TargetID: id, Kind: domain.ChannelWebhook, URL: url,
		Active: true, Events: []string{domain.EventStatusChange},
	})
}

func TestCheckOne_UnknownTarget(t *testing.T) {
	env := newEnv(t)
	_, err := env.svc.CheckOne(context.Background(), "missing")
	if err == nil || err.Error() != "API not found" {
		t.Fatalf("want API not found, got %v", err)
	}
}

func TestCheckOne_PersistsOutcome(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	defer s.Close()

	env := newEnv(t)
	id := env.addTarget(t, "a", s.URL, time.Now())

	out, err := env.svc.CheckOne(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if out.Status != domain.StatusOnline {
		t.Fatalf("want online, got %+v", out)
	}

	last, err := env.store.LastByTarget(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if last == nil || last.Status != domain.StatusOnline {
		t.Fatalf("outcome not persisted: %+v", last)
	}
	if last.Region != "default" {
		t.Fatalf("want default region stamp, got %q", last.Region)
	}
}

// flipServer serves the status codes it is told to, in order, then repeats
// the last one.
type flipServer struct {
	mu    sync.Mutex
	codes []int
	i     int
}

func (f *flipServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	code := f.codes[f.i]
	if f.i < len(f.codes)-1 {
		f.i++
	}
	f.mu.Unlock()
	w.WriteHeader(code)
}

func TestPipeline_TransitionsNotifyAndTrackIncidents(t *testing.T) {
	// online, online, offline, offline, online
	fs := &flipServer{codes: []int{200, 200, 500, 500, 200}}
	s := httptest.NewServer(fs)
	defer s.Close()

	env := newEnv(t)
	id := env.addTarget(t, "flappy", s.URL, time.Now())
	env.subscribe(id, "http://unused.invalid")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := env.svc.CheckOne(ctx, id); err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
	}

	// transitions online->offline and offline->online: two notifications
	if got := env.sender.len(); got != 2 {
		t.Fatalf("want 2 status-change notifications, got %d", got)
	}

	// exactly one incident, created once, resolved once
	incidents, err := env.store.ListSince(ctx, id, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(incidents) != 1 {
		t.Fatalf("want exactly 1 incident, got %d", len(incidents))
	}
	inc := incidents[0]
	if inc.Status != domain.IncidentResolved || inc.EndedAt == nil {
		t.Fatalf("incident should end resolved, got %+v", inc)
	}
}

func TestPipeline_FirstCheckDoesNotNotify(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer s.Close()

	env := newEnv(t)
	id := env.addTarget(t, "fresh", s.URL, time.Now())
	env.subscribe(id, "http://unused.invalid")

	if _, err := env.svc.CheckOne(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	// no previous stored outcome, so no transition to report
	if got := env.sender.len(); got != 0 {
		t.Fatalf("first check has no baseline and must not notify, got %d", got)
	}
}

func TestCheckAll_OneBadTargetDoesNotAbortBatch(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	defer s.Close()

	env := newEnv(t)
	base := time.Now()
	idA := env.addTarget(t, "a", s.URL, base)
	idB := env.addTarget(t, "b", "://not-a-url", base.Add(time.Second))
	idC := env.addTarget(t, "c", s.URL, base.Add(2*time.Second))

	res, err := env.svc.CheckAll(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if res.Checked != 3 || len(res.Results) != 3 {
		t.Fatalf("want 3 results, got checked=%d len=%d", res.Checked, len(res.Results))
	}

	// input order preserved
	wantOrder := []string{string(idA), string(idB), string(idC)}
	for i, want := range wantOrder {
		if res.Results[i].APIID != want {
			t.Fatalf("result %d out of order: want %s got %s", i, want, res.Results[i].APIID)
		}
	}

	if res.Results[0].Status != domain.StatusOnline || res.Results[2].Status != domain.StatusOnline {
		t.Fatalf("healthy targets should be online: %+v", res.Results)
	}
	if res.Results[1].Status != domain.StatusOffline || res.Results[1].Error == "" {
		t.Fatalf("bad target should be offline with an error, got %+v", res.Results[1])
	}
}

func TestCheckAll_RespectsConcurrencyBound(t *testing.T) {
	var inflight, peak int32
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt32(&inflight, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		atomic.AddInt32(&inflight, -1)
		w.WriteHeader(200)
	}))
	defer s.Close()

	env := newEnv(t)
	base := time.Now()
	for i := 0; i < 10; i++ {
		env.addTarget(t, "t", s.URL, base.Add(time.Duration(i)*time.Second))
	}

	res, err := env.svc.CheckAll(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if res.Checked != 10 {
		t.Fatalf("want 10 checked, got %d", res.Checked)
	}
	if got := atomic.LoadInt32(&peak); got > 3 {
		t.Fatalf("concurrency bound exceeded: peak %d > 3", got)
	}
}
