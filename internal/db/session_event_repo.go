package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/user/alphacentauri/internal/pty"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

type SessionEventRepo struct {
	db *sql.DB
}

func NewSessionEventRepo(db *sql.DB) *SessionEventRepo {
	return &SessionEventRepo{db: db}
}

var _ pty.Journal = (*SessionEventRepo)(nil)

func (r *SessionEventRepo) Create(ctx context.Context, ev *SessionEvent) error {
	if ev == nil {
		return fmt.Errorf("session event is required")
	}
	if strings.TrimSpace(ev.Kind) == "" {
		return fmt.Errorf("session event kind is required")
	}
	if ev.ID == "" {
		ev.ID = NewID()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = nowUTC()
	}

	var exitCode sql.NullInt64
	if ev.ExitCode != nil {
		exitCode = sql.NullInt64{Int64: int64(*ev.ExitCode), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO session_events (id, handle, kind, command_line, cwd, exit_code, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		ev.ID,
		ev.Handle,
		ev.Kind,
		ev.CommandLine,
		ev.Cwd,
		exitCode,
		formatTimestamp(ev.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create session event: %w", err)
	}
	return nil
}

// RecordSessionEvent stores a lifecycle event reported by the session manager.
func (r *SessionEventRepo) RecordSessionEvent(ctx context.Context, ev pty.LifecycleEvent) error {
	return r.Create(ctx, &SessionEvent{
		Handle:      int(ev.Handle),
		Kind:        string(ev.Kind),
		CommandLine: ev.CommandLine,
		Cwd:         ev.Cwd,
		ExitCode:    ev.ExitCode,
		CreatedAt:   ev.At,
	})
}

// ListFilter narrows List. A zero Handle matches every session.
type ListFilter struct {
	Handle int
	Limit  int
}

// List returns journal rows newest first.
func (r *SessionEventRepo) List(ctx context.Context, f ListFilter) ([]*SessionEvent, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := `
SELECT id, handle, kind, command_line, cwd, exit_code, created_at
FROM session_events
`
	args := []any{}
	if f.Handle != 0 {
		query += "WHERE handle = ?\n"
		args = append(args, f.Handle)
	}
	query += "ORDER BY created_at DESC, rowid DESC\nLIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list session events: %w", err)
	}
	defer rows.Close()

	events := make([]*SessionEvent, 0)
	for rows.Next() {
		ev, err := scanSessionEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session events: %w", err)
	}
	return events, nil
}

// Prune deletes rows older than before and returns how many were removed.
func (r *SessionEventRepo) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM session_events WHERE created_at < ?`, formatTimestamp(before))
	if err != nil {
		return 0, fmt.Errorf("failed to prune session events: %w", err)
	}
	return res.RowsAffected()
}

func scanSessionEvent(rows *sql.Rows) (*SessionEvent, error) {
	var (
		ev           SessionEvent
		exitCode     sql.NullInt64
		createdAtRaw string
	)
	if err := rows.Scan(&ev.ID, &ev.Handle, &ev.Kind, &ev.CommandLine, &ev.Cwd, &exitCode, &createdAtRaw); err != nil {
		return nil, fmt.Errorf("failed to scan session event: %w", err)
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		ev.ExitCode = &code
	}
	createdAt, err := parseTimestamp(createdAtRaw)
	if err != nil {
		return nil, err
	}
	ev.CreatedAt = createdAt
	return &ev, nil
}
