// Package journal records routed remote requests in the command_journal
// table and lists them for the local API.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Page size limits for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// timeLayout is fixed-width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Entry is one handled request.
type Entry struct {
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	Method     string    `json:"method,omitempty"`
	OriginID   string    `json:"origin_id"`
	MsgID      string    `json:"msg_id,omitempty"`
	Status     int       `json:"status"` // 0 when no response was sent
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Filter controls which entries List returns.
type Filter struct {
	Path     string // optional: exact command path ("/printer/move")
	OriginID string // optional: requesting client
	Limit    int    // default 50, max 200
	Offset   int
}

// ListResult is one page of entries, most recent first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository stores and lists journal entries.
type Repository interface {
	Record(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository is the SQLite-backed Repository.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a repository on db. The command_journal
// table must exist.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Record inserts e. ID and CreatedAt are filled in when empty.
func (r *SQLiteRepository) Record(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = "cmd-" + uuid.NewString()[:8]
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_journal (id, path, method, origin_id, msg_id, status, duration_ms, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Path, nullableString(e.Method), e.OriginID, nullableString(e.MsgID),
		e.Status, e.DurationMS, nullableString(e.Error),
		e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting journal entry: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns entries matching filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Path != "" {
		conditions = append(conditions, "path = ?")
		args = append(args, filter.Path)
	}
	if filter.OriginID != "" {
		conditions = append(conditions, "origin_id = ?")
		args = append(args, filter.OriginID)
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM command_journal " + where //nolint:gosec // parameterised conditions only
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting journal entries: %w", err)
	}

	query := "SELECT id, path, method, origin_id, msg_id, status, duration_ms, error, created_at FROM command_journal " + //nolint:gosec // parameterised conditions only
		where + " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying journal entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var method, msgID, errText sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Path, &method, &e.OriginID, &msgID,
			&e.Status, &e.DurationMS, &errText, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}
		e.Method = method.String
		e.MsgID = msgID.String
		e.Error = errText.String
		t, err := time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing journal timestamp %q: %w", createdAt, err)
		}
		e.CreatedAt = t
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal entries: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}
