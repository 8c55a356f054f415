package memory

import (
	"context"
	"testing"
	"time"

	"github.com/omniapi/monitor/internal/domain"
	"github.com/omniapi/monitor/internal/repo"
)

func TestTargets_GetAndListOrder(t *testing.T) {
	m := New()
	ctx := context.Background()

	base := time.Now().UTC()
	a := &domain.Target{Name: "a", URL: "https://a.example.com", CreatedAt: base}
	b := &domain.Target{Name: "b", URL: "https://b.example.com", CreatedAt: base.Add(time.Second)}
	m.AddTarget(b)
	m.AddTarget(a)

	got, err := m.Get(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "a" {
		t.Fatalf("want a, got %+v", got)
	}

	if _, err := m.Get(ctx, "missing"); err != repo.ErrNotFound {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	list, err := m.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Name != "a" || list[1].Name != "b" {
		t.Fatalf("want creation order [a b], got %+v", list)
	}
}

func TestOutcomes_LastByTarget(t *testing.T) {
	m := New()
	ctx := context.Background()

	tgt := &domain.Target{Name: "a", URL: "https://a.example.com"}
	m.AddTarget(tgt)

	if last, err := m.LastByTarget(ctx, tgt.ID); err != nil || last != nil {
		t.Fatalf("empty history: want nil, nil; got %v, %v", last, err)
	}

	base := time.Now().UTC()
	first := &domain.CheckOutcome{TargetID: tgt.ID, Status: domain.StatusOnline, CheckedAt: base}
	second := &domain.CheckOutcome{TargetID: tgt.ID, Status: domain.StatusOffline, CheckedAt: base.Add(time.Minute)}
	if err := m.Append(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := m.Append(ctx, second); err != nil {
		t.Fatal(err)
	}

	last, err := m.LastByTarget(ctx, tgt.ID)
	if err != nil {
		t.Fatal(err)
	}
	if last == nil || last.Status != domain.StatusOffline {
		t.Fatalf("want newest outcome by checked_at, got %+v", last)
	}
}

func TestIncidents_FindActiveAndUpdate(t *testing.T) {
	m := New()
	ctx := context.Background()

	inc := &domain.Incident{
		TargetID:  "t1",
		Title:     "t1 is offline",
		Status:    domain.IncidentOpen,
		StartedAt: time.Now().UTC(),
	}
	if err := m.Create(ctx, inc); err != nil {
		t.Fatal(err)
	}

	active, err := m.FindActive(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if active == nil || active.ID != inc.ID {
		t.Fatalf("want the open incident, got %+v", active)
	}

	now := time.Now().UTC()
	active.Status = domain.IncidentResolved
	active.EndedAt = &now
	if err := m.Update(ctx, active); err != nil {
		t.Fatal(err)
	}

	if again, _ := m.FindActive(ctx, "t1"); again != nil {
		t.Fatalf("resolved incident must not be active, got %+v", again)
	}

	if err := m.Update(ctx, &domain.Incident{ID: "nope"}); err != repo.ErrNotFound {
		t.Fatalf("want ErrNotFound on unknown incident, got %v", err)
	}
}

func TestChannels_ListActiveFilters(t *testing.T) {
	m := New()
	ctx := context.Background()

	m.AddChannel(&domain.Channel{TargetID: "t1", Kind: domain.ChannelWebhook, URL: "https://x", Active: true})
	m.AddChannel(&domain.Channel{TargetID: "t1", Kind: domain.ChannelSlack, URL: "https://y", Active: false})
	m.AddChannel(&domain.Channel{TargetID: "t2", Kind: domain.ChannelWebhook, URL: "https://z", Active: true})

	got, err := m.ListActive(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Kind != domain.ChannelWebhook {
		t.Fatalf("want only t1's active channel, got %+v", got)
	}
}
