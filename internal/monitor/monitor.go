package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/omniapi/monitor/internal/domain"
	"github.com/omniapi/monitor/internal/incident"
	"github.com/omniapi/monitor/internal/notify"
	"github.com/omniapi/monitor/internal/probe"
	"github.com/omniapi/monitor/internal/repo"
)

const defaultConcurrency = 5

// Service runs the check pipeline: probe a target, persist the outcome,
// notify on status change, advance the incident record.
type Service struct {
	Logger    *zap.Logger
	Store     repo.Store
	Checker   *probe.Checker
	Incidents *incident.Tracker
	Notifier  *notify.Dispatcher
	Region    string
}

func NewService(logger *zap.Logger, store repo.Store, checker *probe.Checker, incidents *incident.Tracker, notifier *notify.Dispatcher) *Service {
	return &Service{
		Logger:    logger,
		Store:     store,
		Checker:   checker,
		Incidents: incidents,
		Notifier:  notifier,
		Region:    "default",
	}
}

// CheckOne probes a single target end to end and returns its outcome. The
// only fatal condition is an unknown target ID.
func (s *Service) CheckOne(ctx context.Context, id domain.TargetID) (*domain.CheckOutcome, error) {
	t, err := s.Store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("API not found")
		}
		return nil, fmt.Errorf("get target: %w", err)
	}

	// Read the baseline before appending so the transition comparison sees
	// the previous outcome, not this one.
	prev, err := s.Store.LastByTarget(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("last outcome: %w", err)
	}

	out := s.Checker.Check(ctx, t)
	out.Region = s.Region

	// Persisting the outcome is part of the check's completion.
	if err := s.Store.Append(ctx, out); err != nil {
		return nil, fmt.Errorf("append outcome: %w", err)
	}

	if prev != nil && prev.Status != out.Status {
		s.Notifier.NotifyStatusChange(ctx, t, prev.Status, out.Status, out.ResponseTimeMS, out.Error)
	}

	inc, created, err := s.Incidents.Apply(ctx, t, out.Status, out.Error)
	if err != nil {
		s.Logger.Warn("incident_apply_error",
			zap.String("target_id", string(t.ID)),
			zap.Error(err),
		)
	} else if created {
		s.Notifier.NotifyIncidentCreated(ctx, t, inc)
	}

	s.Logger.Debug("check_done",
		zap.String("target_id", string(t.ID)),
		zap.String("url", t.URL),
		zap.String("status", string(out.Status)),
		zap.String("error", out.Error),
	)
	return out, nil
}

// BatchResult is what one full scheduler pass returns.
type BatchResult struct {
	Checked int            `json:"checked"`
	Results []TargetResult `json:"results"`
}

// TargetResult is one target's outcome inside a batch, in input order.
type TargetResult struct {
	APIID          string        `json:"apiId"`
	APIName        string        `json:"apiName"`
	Status         domain.Status `json:"status"`
	ResponseTimeMS *int          `json:"responseTime"`
	StatusCode     *int          `json:"statusCode"`
	Error          string        `json:"error,omitempty"`
	SSLDaysLeft    *int          `json:"sslDaysLeft"`
}

// CheckAll runs CheckOne over every known target with at most concurrency
// checks in flight. One target's failure never aborts the batch; it shows up
// as an offline result. Results are in target-input order regardless of
// completion order.
func (s *Service) CheckAll(ctx context.Context, concurrency int) (*BatchResult, error) {
	targets, err := s.Store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}

	results := make([]TargetResult, len(targets))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, tgt := range targets {
		i, t := i, tgt
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() { <-sem }()
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					s.Logger.Error("check_panic",
						zap.String("target_id", string(t.ID)),
						zap.Any("panic", r),
					)
					results[i] = offlineResult(t, fmt.Sprintf("panic: %v", r))
				}
			}()

			out, err := s.CheckOne(ctx, t.ID)
			if err != nil {
				s.Logger.Warn("check_error",
					zap.String("target_id", string(t.ID)),
					zap.Error(err),
				)
				results[i] = offlineResult(t, err.Error())
				return
			}
			results[i] = TargetResult{
				APIID:          string(t.ID),
				APIName:        t.Name,
				Status:         out.Status,
				ResponseTimeMS: out.ResponseTimeMS,
				StatusCode:     out.StatusCode,
				Error:          out.Error,
				SSLDaysLeft:    out.SSLDaysLeft,
			}
		}()
	}
	wg.Wait()

	s.Logger.Info("check_all_done",
		zap.Int("checked", len(targets)),
		zap.Int("concurrency", concurrency),
	)
	return &BatchResult{Checked: len(targets), Results: results}, nil
}

func offlineResult(t *domain.Target, errMsg string) TargetResult {
	return TargetResult{
		APIID:   string(t.ID),
		APIName: t.Name,
		Status:  domain.StatusOffline,
		Error:   errMsg,
	}
}
