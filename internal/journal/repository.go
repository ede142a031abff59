// Package journal provides access to the journal_entries table, the
// persistent record of notable bus activity (publishes, lifecycle
// transitions, bridge forwards).
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entry kinds recorded in the journal.
const (
	KindPublish   = "publish"
	KindLifecycle = "lifecycle"
	KindBridge    = "bridge"
	KindError     = "error"
)

// Entry represents a single journal record.
type Entry struct {
	ID        string         `json:"id"`
	Bus       string         `json:"bus"`
	Kind      string         `json:"kind"`
	Topic     string         `json:"topic,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Filter controls which journal entries to return.
type Filter struct {
	Bus    string // optional: filter by bus name
	Kind   string // optional: filter by kind (publish, lifecycle, bridge, error)
	Topic  string // optional: filter by exact topic
	Limit  int    // default 50, max 200
	Offset int    // pagination offset
}

// ListResult contains the paginated journal results.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository defines the interface for journal operations.
type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores journal entries in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new journal repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new journal entry. The ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = "jrn-" + uuid.NewString()[:8]
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var detailJSON *string
	if entry.Detail != nil {
		b, err := json.Marshal(entry.Detail)
		if err != nil {
			return fmt.Errorf("marshalling journal detail: %w", err)
		}
		s := string(b)
		detailJSON = &s
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO journal_entries (id, bus, kind, topic, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Bus, entry.Kind,
		nullableString(entry.Topic), detailJSON,
		entry.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting journal entry: %w", err)
	}

	return nil
}

// nullableString returns nil for empty strings, or the string otherwise.
// Used for nullable TEXT columns in SQLite.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns journal entries matching the filter, ordered by most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	// Clamp limit.
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	// Build WHERE clause dynamically.
	var conditions []string
	var args []any

	if filter.Bus != "" {
		conditions = append(conditions, "bus = ?")
		args = append(args, filter.Bus)
	}
	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.Topic != "" {
		conditions = append(conditions, "topic = ?")
		args = append(args, filter.Topic)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// WHERE clause is built from parameterised conditions (? placeholders).
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM journal_entries %s", where)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting journal entries: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT id, bus, kind, topic, detail, created_at FROM journal_entries %s ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying journal entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var topic, detailJSON sql.NullString
		var createdAt string

		if err := rows.Scan(&entry.ID, &entry.Bus, &entry.Kind,
			&topic, &detailJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}

		if topic.Valid {
			entry.Topic = topic.String
		}
		if detailJSON.Valid && detailJSON.String != "" {
			var detail map[string]any
			if json.Unmarshal([]byte(detailJSON.String), &detail) == nil {
				entry.Detail = detail
			}
		}

		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing journal timestamp %q: %w", createdAt, err)
		}
		entry.CreatedAt = t

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal entries: %w", err)
	}

	if entries == nil {
		entries = []Entry{}
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}
