package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/omniapi/monitor/internal/domain"
	"github.com/omniapi/monitor/internal/repo"
)

var _ repo.Store = (*Store)(nil)

// Store implements the store bundle on a SQLite file database. Times are
// stored as RFC3339Nano text.
type Store struct {
	db *sql.DB
}

func New(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS targets (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	url               TEXT NOT NULL,
	method            TEXT NOT NULL DEFAULT 'GET',
	expected_status   TEXT NOT NULL DEFAULT '200',
	timeout_ms        INTEGER NOT NULL DEFAULT 10000,
	retries           INTEGER NOT NULL DEFAULT 0,
	headers           TEXT,
	content_match     TEXT NOT NULL DEFAULT '',
	auth_type         TEXT NOT NULL DEFAULT '',
	auth_username     TEXT NOT NULL DEFAULT '',
	auth_password     TEXT NOT NULL DEFAULT '',
	auth_token        TEXT NOT NULL DEFAULT '',
	follow_redirects  INTEGER NOT NULL DEFAULT 1,
	ssl_check_enabled INTEGER NOT NULL DEFAULT 0,
	created_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS checks (
	id               TEXT PRIMARY KEY,
	target_id        TEXT NOT NULL,
	status           TEXT NOT NULL,
	response_time_ms INTEGER,
	status_code      INTEGER,
	error            TEXT NOT NULL DEFAULT '',
	ssl_days_left    INTEGER,
	region           TEXT NOT NULL DEFAULT 'default',
	checked_at       TEXT NOT NULL,
	FOREIGN KEY(target_id) REFERENCES targets(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_checks_target_checked_at ON checks (target_id, checked_at DESC);

CREATE TABLE IF NOT EXISTS incidents (
	id          TEXT PRIMARY KEY,
	target_id   TEXT NOT NULL,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	severity    TEXT NOT NULL DEFAULT 'high',
	status      TEXT NOT NULL DEFAULT 'open',
	notes       TEXT NOT NULL DEFAULT '',
	started_at  TEXT NOT NULL,
	ended_at    TEXT,
	updated_at  TEXT NOT NULL,
	FOREIGN KEY(target_id) REFERENCES targets(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_incidents_target_status ON incidents (target_id, status);

CREATE TABLE IF NOT EXISTS channels (
	id         TEXT PRIMARY KEY,
	target_id  TEXT NOT NULL,
	kind       TEXT NOT NULL,
	url        TEXT NOT NULL DEFAULT '',
	email      TEXT NOT NULL DEFAULT '',
	is_active  INTEGER NOT NULL DEFAULT 1,
	events     TEXT NOT NULL DEFAULT 'status_change',
	created_at TEXT NOT NULL,
	FOREIGN KEY(target_id) REFERENCES targets(id) ON DELETE CASCADE
);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) }

// ---- TargetStore ----

const targetColumns = `id, name, url, method, expected_status, timeout_ms, retries,
	headers, content_match, auth_type, auth_username, auth_password, auth_token,
	follow_redirects, ssl_check_enabled, created_at`

func (s *Store) Get(ctx context.Context, id domain.TargetID) (*domain.Target, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+targetColumns+` FROM targets WHERE id = ?`, string(id))
	t, err := scanTarget(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		return nil, fmt.Errorf("get target: %w", err)
	}
	return t, nil
}

func (s *Store) List(ctx context.Context) ([]*domain.Target, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+targetColumns+` FROM targets ORDER BY created_at, id`)
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
		headers   sql.NullString
		authType  string
		createdAt string
	)
	if err := r.Scan(&id, &t.Name, &t.URL, &t.Method, &t.ExpectedStatus, &timeoutMS,
		&t.Retries, &headers, &t.ContentMatch, &authType, &t.AuthUsername,
		&t.AuthPassword, &t.AuthToken, &t.FollowRedirect, &t.SSLCheck, &createdAt); err != nil {
		return nil, err
	}
	t.ID = domain.TargetID(id)
	t.Timeout = time.Duration(timeoutMS) * time.Millisecond
	t.AuthType = domain.AuthType(authType)
	if headers.Valid && headers.String != "" {
		if err := json.Unmarshal([]byte(headers.String), &t.Headers); err != nil {
			return nil, fmt.Errorf("decode headers: %w", err)
		}
	}
	ts, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	t.CreatedAt = ts
	return &t, nil
}

// AddTarget inserts a target. Seeding/tests helper.
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
	_, err := s.db.ExecContext(ctx, `
INSERT INTO targets (`+targetColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		string(t.ID), t.Name, t.URL, t.Method, t.ExpectedStatus,
		t.Timeout.Milliseconds(), t.Retries, headers, t.ContentMatch,
		string(t.AuthType), t.AuthUsername, t.AuthPassword, t.AuthToken,
		t.FollowRedirect, t.SSLCheck, fmtTime(t.CreatedAt),
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
	_, err := s.db.ExecContext(ctx, `
INSERT INTO checks (id, target_id, status, response_time_ms, status_code, error,
                    ssl_days_left, region, checked_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		o.ID, string(o.TargetID), string(o.Status), nullableInt(o.ResponseTimeMS),
		nullableInt(o.StatusCode), o.Error, nullableInt(o.SSLDaysLeft), o.Region,
		fmtTime(o.CheckedAt),
	)
	if err != nil {
		return fmt.Errorf("insert check: %w", err)
	}
	return nil
}

func (s *Store) LastByTarget(ctx context.Context, id domain.TargetID) (*domain.CheckOutcome, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, target_id, status, response_time_ms, status_code, error, ssl_days_left,
       region, checked_at
  FROM checks
 WHERE target_id = ?
 ORDER BY checked_at DESC
 LIMIT 1`, string(id))

	var (
		o         domain.CheckOutcome
		targetID  string
		status    string
		respMS    sql.NullInt64
		code      sql.NullInt64
		sslDays   sql.NullInt64
		checkedAt string
	)
	err := row.Scan(&o.ID, &targetID, &status, &respMS, &code, &o.Error, &sslDays,
		&o.Region, &checkedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last check: %w", err)
	}
	o.TargetID = domain.TargetID(targetID)
	o.Status = domain.Status(status)
	o.ResponseTimeMS = intPtr(respMS)
	o.StatusCode = intPtr(code)
	o.SSLDaysLeft = intPtr(sslDays)
	ts, err := parseTime(checkedAt)
	if err != nil {
		return nil, fmt.Errorf("parse checked_at: %w", err)
	}
	o.CheckedAt = ts
	return &o, nil
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

// ---- IncidentStore ----

func (s *Store) FindActive(ctx context.Context, id domain.TargetID) (*domain.Incident, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, target_id, title, description, severity, status, notes, started_at,
       ended_at, updated_at
  FROM incidents
 WHERE target_id = ? AND status IN ('open', 'acknowledged')
 ORDER BY started_at DESC
 LIMIT 1`, string(id))

	inc, err := scanIncident(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
	var endedAt *string
	if inc.EndedAt != nil {
		v := fmtTime(*inc.EndedAt)
		endedAt = &v
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO incidents (id, target_id, title, description, severity, status, notes,
                       started_at, ended_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		inc.ID, string(inc.TargetID), inc.Title, inc.Description, inc.Severity,
		string(inc.Status), inc.Notes, fmtTime(inc.StartedAt), endedAt,
		fmtTime(inc.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, inc *domain.Incident) error {
	var endedAt *string
	if inc.EndedAt != nil {
		v := fmtTime(*inc.EndedAt)
		endedAt = &v
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE incidents
   SET description = ?, severity = ?, status = ?, notes = ?, ended_at = ?,
       updated_at = ?
 WHERE id = ?`,
		inc.Description, inc.Severity, string(inc.Status), inc.Notes, endedAt,
		fmtTime(inc.UpdatedAt), inc.ID,
	)
	if err != nil {
		return fmt.Errorf("update incident: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) ListSince(ctx context.Context, id domain.TargetID, since time.Time) ([]*domain.Incident, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, target_id, title, description, severity, status, notes, started_at,
       ended_at, updated_at
  FROM incidents
 WHERE target_id = ? AND started_at >= ?
 ORDER BY started_at DESC`, string(id), fmtTime(since))
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
		inc       domain.Incident
		targetID  string
		status    string
		startedAt string
		endedAt   sql.NullString
		updatedAt string
	)
	if err := r.Scan(&inc.ID, &targetID, &inc.Title, &inc.Description, &inc.Severity,
		&status, &inc.Notes, &startedAt, &endedAt, &updatedAt); err != nil {
		return nil, err
	}
	inc.TargetID = domain.TargetID(targetID)
	inc.Status = domain.IncidentStatus(status)

	ts, err := parseTime(startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	inc.StartedAt = ts
	if endedAt.Valid {
		te, err := parseTime(endedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse ended_at: %w", err)
		}
		inc.EndedAt = &te
	}
	tu, err := parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	inc.UpdatedAt = tu
	return &inc, nil
}

// ---- ChannelStore ----

func (s *Store) ListActive(ctx context.Context, id domain.TargetID) ([]*domain.Channel, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, target_id, kind, url, email, is_active, events, created_at
  FROM channels
 WHERE target_id = ? AND is_active = 1`, string(id))
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var out []*domain.Channel
	for rows.Next() {
		var (
			c         domain.Channel
			targetID  string
			kind      string
			events    string
			createdAt string
		)
		if err := rows.Scan(&c.ID, &targetID, &kind, &c.URL, &c.Email, &c.Active,
			&events, &createdAt); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		c.TargetID = domain.TargetID(targetID)
		c.Kind = domain.ChannelKind(kind)
		if events != "" {
			c.Events = strings.Split(events, ",")
		}
		ts, err := parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		c.CreatedAt = ts
		out = append(out, &c)
	}
	return out, rows.Err()
}

// AddChannel inserts a channel. Seeding/tests helper.
func (s *Store) AddChannel(ctx context.Context, c *domain.Channel) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO channels (id, target_id, kind, url, email, is_active, events, created_at)
VALUES (?,?,?,?,?,?,?,?)`,
		c.ID, string(c.TargetID), string(c.Kind), c.URL, c.Email, c.Active,
		strings.Join(c.Events, ","), fmtTime(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert channel: %w", err)
	}
	return nil
}
