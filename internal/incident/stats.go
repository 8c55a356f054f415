package incident

import (
	"context"
	"time"

	"github.com/omniapi/monitor/internal/domain"
)

// Stats summarizes a target's incident history over a window.
type Stats struct {
	Total       int `json:"total_incidents"`
	Resolved    int `json:"resolved_incidents"`
	Open        int `json:"open_incidents"`
	MTTRMinutes int `json:"mttr_minutes"`
}

// StatsFor computes counts and mean time to resolution over the last `days`
// days of incidents.
func (tr *Tracker) StatsFor(ctx context.Context, id domain.TargetID, days int) (*Stats, error) {
	if days <= 0 {
		days = 30
	}
	since := time.Now().UTC().AddDate(0, 0, -days)
	incidents, err := tr.Store.ListSince(ctx, id, since)
	if err != nil {
		return nil, err
	}

	st := &Stats{Total: len(incidents)}
	var resolvedDur time.Duration
	var resolvedWithTime int
	for _, inc := range incidents {
		if inc.Status == domain.IncidentResolved {
			st.Resolved++
		}
		if inc.Status.Active() {
			st.Open++
		}
		if inc.EndedAt != nil {
			resolvedDur += inc.EndedAt.Sub(inc.StartedAt)
			resolvedWithTime++
		}
	}
	if resolvedWithTime > 0 {
		st.MTTRMinutes = int((resolvedDur / time.Duration(resolvedWithTime)).Round(time.Minute) / time.Minute)
	}
	return st, nil
}
