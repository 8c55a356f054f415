package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/omniapi/monitor/internal/domain"
	"github.com/omniapi/monitor/internal/repo"
)

var _ repo.Store = (*Store)(nil)

// Store keeps everything in process memory. Used by tests and by the API
// when no DATABASE_URL is configured.
type Store struct {
	mu        sync.RWMutex
	targets   map[domain.TargetID]*domain.Target
	outcomes  []*domain.CheckOutcome
	incidents map[string]*domain.Incident
	channels  map[domain.TargetID][]*domain.Channel
}

func New() *Store {
	return &Store{
		targets:   make(map[domain.TargetID]*domain.Target),
		outcomes:  make([]*domain.CheckOutcome, 0, 128),
		incidents: make(map[string]*domain.Incident),
		channels:  make(map[domain.TargetID][]*domain.Channel),
	}
}

// AddTarget registers a target. Not part of the core's store contract; it
// exists so the trigger surface and tests can seed the store.
func (m *Store) AddTarget(t *domain.Target) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = domain.TargetID(uuid.NewString())
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	m.targets[t.ID] = t
}

// AddChannel registers a notification channel for a target.
func (m *Store) AddChannel(c *domain.Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	m.channels[c.TargetID] = append(m.channels[c.TargetID], c)
}

func (m *Store) Get(ctx context.Context, id domain.TargetID) (*domain.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.targets[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *Store) List(ctx context.Context) ([]*domain.Target, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Target, 0, len(m.targets))
	for _, t := range m.targets {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Store) Append(ctx context.Context, o *domain.CheckOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	cp := *o
	m.outcomes = append(m.outcomes, &cp)
	return nil
}

func (m *Store) LastByTarget(ctx context.Context, id domain.TargetID) (*domain.CheckOutcome, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var last *domain.CheckOutcome
	for _, o := range m.outcomes {
		if o.TargetID != id {
			continue
		}
		if last == nil || o.CheckedAt.After(last.CheckedAt) {
			last = o
		}
	}
	if last == nil {
		return nil, nil
	}
	cp := *last
	return &cp, nil
}

func (m *Store) FindActive(ctx context.Context, id domain.TargetID) (*domain.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var newest *domain.Incident
	for _, inc := range m.incidents {
		if inc.TargetID != id || !inc.Status.Active() {
			continue
		}
		if newest == nil || inc.StartedAt.After(newest.StartedAt) {
			newest = inc
		}
	}
	if newest == nil {
		return nil, nil
	}
	cp := *newest
	return &cp, nil
}

func (m *Store) Create(ctx context.Context, inc *domain.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	cp := *inc
	m.incidents[inc.ID] = &cp
	return nil
}

func (m *Store) Update(ctx context.Context, inc *domain.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.incidents[inc.ID]; !ok {
		return repo.ErrNotFound
	}
	cp := *inc
	m.incidents[inc.ID] = &cp
	return nil
}

func (m *Store) ListSince(ctx context.Context, id domain.TargetID, since time.Time) ([]*domain.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Incident, 0)
	for _, inc := range m.incidents {
		if inc.TargetID != id || inc.StartedAt.Before(since) {
			continue
		}
		cp := *inc
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (m *Store) ListActive(ctx context.Context, id domain.TargetID) ([]*domain.Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Channel, 0)
	for _, c := range m.channels[id] {
		if !c.Active {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}
