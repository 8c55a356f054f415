package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/omniapi/monitor/internal/domain"
	"github.com/omniapi/monitor/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	s := &Store{pool: pool, log: log}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS targets (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	url               TEXT NOT NULL,
	method            TEXT NOT NULL DEFAULT 'GET',
	expected_status   TEXT NOT NULL DEFAULT '200',
	timeout_ms        BIGINT NOT NULL DEFAULT 10000,
	retries           INT NOT NULL DEFAULT 0,
	headers           TEXT,
	content_match     TEXT,
	auth_type         TEXT NOT NULL DEFAULT '',
	auth_username     TEXT NOT NULL DEFAULT '',
	auth_password     TEXT NOT NULL DEFAULT '',
	auth_token        TEXT NOT NULL DEFAULT '',
	follow_redirects  BOOLEAN NOT NULL DEFAULT TRUE,
	ssl_check_enabled BOOLEAN NOT NULL DEFAULT FALSE,
	created_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS checks (
	id               TEXT PRIMARY KEY,
	target_id        TEXT NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
	status           TEXT NOT NULL,
	response_time_ms INT,
	status_code      INT,
	error            TEXT NOT NULL DEFAULT '',
	ssl_days_left    INT,
	region           TEXT NOT NULL DEFAULT 'default',
	checked_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS checks_target_checked_at ON checks (target_id, checked_at DESC);

CREATE TABLE IF NOT EXISTS incidents (
	id          TEXT PRIMARY KEY,
	target_id   TEXT NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	severity    TEXT NOT NULL DEFAULT 'high',
	status      TEXT NOT NULL DEFAULT 'open',
	notes       TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMPTZ NOT NULL,
	ended_at    TIMESTAMPTZ,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS incidents_target_status ON incidents (target_id, status);

CREATE TABLE IF NOT EXISTS channels (
	id         TEXT PRIMARY KEY,
	target_id  TEXT NOT NULL REFERENCES targets(id) ON DELETE CASCADE,
	kind       TEXT NOT NULL,
	url        TEXT NOT NULL DEFAULT '',
	email      TEXT NOT NULL DEFAULT '',
	is_active  BOOLEAN NOT NULL DEFAULT TRUE,
	events     TEXT NOT NULL DEFAULT 'status_change',
	created_at TIMESTAMPTZ NOT NULL
);
`

func (s *Store) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// ---- TargetStore ----

func (s *Store) Get(ctx context.Context, id domain.TargetID) (*domain.Target, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, name, url, method, expected_status, timeout_ms, retries, headers,
       content_match, auth_type, auth_username, auth_password, auth_token,
       follow_redirects, ssl_check_enabled, created_at
  FROM targets
 WHERE id = $1`, string(id))
	t, err := scanTarget(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		return nil, fmt.Errorf("get target: %w", err)
	}
	return t, nil
}

func (s *Store) List(ctx context.Context) ([]*domain.Target, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, name, url, method, expected_status, timeout_ms, retries, headers,
       content_match, auth_type, auth_username, auth_password, auth_token,
       follow_redirects, ssl_check_enabled, created_at
  FROM targets
 ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	var out []*domain.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTarget(r rowScanner) (*domain.Target, error) {
	var (
		t         domain.Target
		id        string
		timeoutMS int64
		headers   *string
		content   *string
		authType  string
		createdAt time.Time
	)
	if err := r.Scan(&id, &t.Name, &t.URL, &t.Method, &t.ExpectedStatus, &timeoutMS,
		&t.Retries, &headers, &content, &authType, &t.AuthUsername, &t.AuthPassword,
		&t.AuthToken, &t.FollowRedirect, &t.SSLCheck, &createdAt); err != nil {
		return nil, err
	}
	t.ID = domain.TargetID(id)
	t.Timeout = time.Duration(timeoutMS) * time.Millisecond
	t.AuthType = domain.AuthType(authType)
	t.CreatedAt = createdAt
	if content != nil {
		t.ContentMatch = *content
	}
	if headers != nil && *headers != "" {
		if err := json.Unmarshal([]byte(*headers), &t.Headers); err != nil {
			return nil, fmt.Errorf("decode headers: %w", err)
		}
	}
	return &t, nil
}

// AddTarget inserts a target. Used by seeding and tests; the management
// surface owns target mutation in production.
func (s *Store) AddTarget(ctx context.Context, t *domain.Target) error {
	if t.ID == "" {
		t.ID = domain.TargetID(uuid.NewString())
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	var headers *string
	if len(t.Headers) > 0 {
		b, err := json.Marshal(t.Headers)
		if err != nil {
			return fmt.Errorf("encode headers: %w", err)
		}
		str := string(b)
		headers = &str
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO targets (id, name, url, method, expected_status, timeout_ms, retries,
                     headers, content_match, auth_type, auth_username, auth_password,
                     auth_token, follow_redirects, ssl_check_enabled, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		string(t.ID), t.Name, t.URL, t.Method, t.ExpectedStatus,
		t.Timeout.Milliseconds(), t.Retries, headers, t.ContentMatch,
		string(t.AuthType), t.AuthUsername, t.AuthPassword, t.AuthToken,
		t.FollowRedirect, t.SSLCheck, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert target: %w", err)
	}
	return nil
}

// ---- ResultStore ----

func (s *Store) Append(ctx context.Context, o *domain.CheckOutcome) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO checks (id, target_id, status, response_time_ms, status_code, error,
                    ssl_days_left, region, checked_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		o.ID, string(o.TargetID), string(o.Status), o.ResponseTimeMS, o.StatusCode,
		o.Error, o.SSLDaysLeft, o.Region, o.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("insert check: %w", err)
	}
	return nil
}

func (s *Store) LastByTarget(ctx context.Context, id domain.TargetID) (*domain.CheckOutcome, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, target_id, status, response_time_ms, status_code, error, ssl_days_left,
       region, checked_at
  FROM checks
 WHERE target_id = $1
 ORDER BY checked_at DESC
 LIMIT 1`, string(id))

	o, err := scanOutcome(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("last check: %w", err)
	}
	return o, nil
}

func scanOutcome(r rowScanner) (*domain.CheckOutcome, error) {
	var (
		o        domain.CheckOutcome
		targetID string
		status   string
	)
	if err := r.Scan(&o.ID, &targetID, &status, &o.ResponseTimeMS, &o.StatusCode,
		&o.Error, &o.SSLDaysLeft, &o.Region, &o.CheckedAt); err != nil {
		return nil, err
	}
	o.TargetID = domain.TargetID(targetID)
	o.Status = domain.Status(status)
	return &o, nil
}

// ---- IncidentStore ----

func (s *Store) FindActive(ctx context.Context, id domain.TargetID) (*domain.Incident, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, target_id, title, description, severity, status, notes, started_at,
       ended_at, updated_at
  FROM incidents
 WHERE target_id = $1 AND status IN ('open', 'acknowledged')
 ORDER BY started_at DESC
 LIMIT 1`, string(id))

	inc, err := scanIncident(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active incident: %w", err)
	}
	return inc, nil
}

func (s *Store) Create(ctx context.Context, inc *domain.Incident) error {
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO incidents (id, target_id, title, description, severity, status, notes,
                       started_at, ended_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		inc.ID, string(inc.TargetID), inc.Title, inc.Description, inc.Severity,
		string(inc.Status), inc.Notes, inc.StartedAt, inc.EndedAt, inc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, inc *domain.Incident) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE incidents
   SET description = $2, severity = $3, status = $4, notes = $5, ended_at = $6,
       updated_at = $7
 WHERE id = $1`,
		inc.ID, inc.Description, inc.Severity, string(inc.Status), inc.Notes,
		inc.EndedAt, inc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update incident: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) ListSince(ctx context.Context, id domain.TargetID, since time.Time) ([]*domain.Incident, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, target_id, title, description, severity, status, notes, started_at,
       ended_at, updated_at
  FROM incidents
 WHERE target_id = $1 AND started_at >= $2
 ORDER BY started_at DESC`, string(id), since)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	var out []*domain.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

func scanIncident(r rowScanner) (*domain.Incident, error) {
	var (
		inc      domain.Incident
		targetID string
		status   string
	)
	if err := r.Scan(&inc.ID, &targetID, &inc.Title, &inc.Description, &inc.Severity,
		&status, &inc.Notes, &inc.StartedAt, &inc.EndedAt, &inc.UpdatedAt); err != nil {
		return nil, err
	}
	inc.TargetID = domain.TargetID(targetID)
	inc.Status = domain.IncidentStatus(status)
	return &inc, nil
}

// ---- ChannelStore ----

func (s *Store) ListActive(ctx context.Context, id domain.TargetID) ([]*domain.Channel, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, target_id, kind, url, email, is_active, events, created_at
  FROM channels
 WHERE target_id = $1 AND is_active`, string(id))
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var out []*domain.Channel
	for rows.Next() {
		var (
			c        domain.Channel
			targetID string
			kind     string
			events   string
		)
		if err := rows.Scan(&c.ID, &targetID, &kind, &c.URL, &c.Email, &c.Active,
			&events, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		c.TargetID = domain.TargetID(targetID)
		c.Kind = domain.ChannelKind(kind)
		if events != "" {
			c.Events = strings.Split(events, ",")
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// AddChannel inserts a channel. Seeding/tests helper, like AddTarget.
func (s *Store) AddChannel(ctx context.Context, c *domain.Channel) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO channels (id, target_id, kind, url, email, is_active, events, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		c.ID, string(c.TargetID), string(c.Kind), c.URL, c.Email, c.Active,
		strings.Join(c.Events, ","), c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert channel: %w", err)
	}
	return nil
}
