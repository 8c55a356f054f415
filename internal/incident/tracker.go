package incident

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/omniapi/monitor/internal/domain"
	"github.com/omniapi/monitor/internal/repo"
)

const resolvedNote = "Auto-resolved: API returned to online status"

// Tracker advances the per-target incident record from check outcomes.
// Invariant: at most one open/acknowledged incident per target. The
// find-then-write is serialized per target so concurrent checks of the same
// target cannot create duplicates.
type Tracker struct {
	Logger *zap.Logger
	Store  repo.IncidentStore

	mu    sync.Mutex
	locks map[domain.TargetID]*sync.Mutex
}

func NewTracker(logger *zap.Logger, store repo.IncidentStore) *Tracker {
	return &Tracker{
		Logger: logger,
		Store:  store,
		locks:  make(map[domain.TargetID]*sync.Mutex),
	}
}

func (tr *Tracker) lockFor(id domain.TargetID) *sync.Mutex {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	l, ok := tr.locks[id]
	if !ok {
		l = &sync.Mutex{}
		tr.locks[id] = l
	}
	return l
}

// Apply feeds the newest outcome status into the state machine:
//
//	offline, no active incident  -> create open incident
//	offline, active incident     -> update it in place, never duplicate
//	online, active incident      -> resolve it
//	online, no active incident   -> no-op
//	slow                         -> no-op; latency noise is not an incident
//
// It returns the touched incident (nil when nothing changed) and whether a
// new incident was created by this call.
func (tr *Tracker) Apply(ctx context.Context, t *domain.Target, status domain.Status, errMsg string) (*domain.Incident, bool, error) {
	l := tr.lockFor(t.ID)
	l.Lock()
	defer l.Unlock()

	active, err := tr.Store.FindActive(ctx, t.ID)
	if err != nil {
		return nil, false, err
	}

	if status != domain.StatusOffline {
		if active != nil && status == domain.StatusOnline {
			now := time.Now().UTC()
			active.Status = domain.IncidentResolved
			active.EndedAt = &now
			active.Notes = resolvedNote
			active.UpdatedAt = now
			if err := tr.Store.Update(ctx, active); err != nil {
				return nil, false, err
			}
			tr.Logger.Info("incident_resolved",
				zap.String("incident_id", active.ID),
				zap.String("target_id", string(t.ID)),
			)
			return active, false, nil
		}
		return nil, false, nil
	}

	if active != nil {
		active.Description = orDefault(errMsg, "API is offline")
		active.UpdatedAt = time.Now().UTC()
		if err := tr.Store.Update(ctx, active); err != nil {
			return nil, false, err
		}
		return active, false, nil
	}

	now := time.Now().UTC()
	inc := &domain.Incident{
		TargetID:    t.ID,
		Title:       t.Name + " is offline",
		Description: orDefault(errMsg, "API is not responding"),
		Severity:    "high",
		Status:      domain.IncidentOpen,
		StartedAt:   now,
		UpdatedAt:   now,
	}
	if err := tr.Store.Create(ctx, inc); err != nil {
		return nil, false, err
	}
	tr.Logger.Info("incident_created",
		zap.String("incident_id", inc.ID),
		zap.String("target_id", string(t.ID)),
		zap.String("description", inc.Description),
	)
	return inc, true, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
