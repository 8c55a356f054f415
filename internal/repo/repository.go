package repo

import (
	"context"
	"errors"
	"time"

	"github.com/omniapi/monitor/internal/domain"
)

// ErrNotFound is returned by Get-style calls when the row does not exist.
var ErrNotFound = errors.New("not found")

// Ports (interfaces); swap in any DB adapter later.

type TargetStore interface {
	Get(ctx context.Context, id domain.TargetID) (*domain.Target, error)
	List(ctx context.Context) ([]*domain.Target, error)
}

type ResultStore interface {
	Append(ctx context.Context, o *domain.CheckOutcome) error
	// LastByTarget returns the most recent outcome by checked_at, or
	// nil, nil when the target has no history yet.
	LastByTarget(ctx context.Context, id domain.TargetID) (*domain.CheckOutcome, error)
}

type IncidentStore interface {
	// FindActive returns the newest open/acknowledged incident for the
	// target, or nil, nil when there is none.
	FindActive(ctx context.Context, id domain.TargetID) (*domain.Incident, error)
	Create(ctx context.Context, inc *domain.Incident) error
	Update(ctx context.Context, inc *domain.Incident) error
	// ListSince returns incidents started at or after the given time,
	// newest first.
	ListSince(ctx context.Context, id domain.TargetID, since time.Time) ([]*domain.Incident, error)
}

type ChannelStore interface {
	// ListActive returns the active channels configured for the target.
	ListActive(ctx context.Context, id domain.TargetID) ([]*domain.Channel, error)
}

// Store bundles the ports the check pipeline consumes. All adapters in this
// repo implement the whole bundle.
type Store interface {
	TargetStore
	ResultStore
	IncidentStore
	ChannelStore
}
