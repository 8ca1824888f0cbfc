package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Repository stores journal records.
type Repository interface {
	InsertEntry(ctx context.Context, e Entry) error
	InsertDrop(ctx context.Context, d Drop) error
	ListEntries(ctx context.Context, q Query) ([]Entry, error)
	ListDrops(ctx context.Context, q Query) ([]Drop, error)
	LastSeq(ctx context.Context) (int64, error)
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SQLiteRepository implements Repository on the journal_events and
// journal_drops tables.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// InsertEntry appends a lifecycle entry.
func (r *SQLiteRepository) InsertEntry(ctx context.Context, e Entry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO journal_events
		 (id, seq, time, device, kind, endpoint_id, endpoint_kind, ref_counted, ref_count, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Seq, formatTime(e.Time), e.Device, e.Kind,
		nullString(e.EndpointID), nullString(e.EndpointKind),
		e.RefCounted, e.RefCount, nullString(e.Error),
	)
	if err != nil {
		return fmt.Errorf("inserting journal entry: %w", err)
	}
	return nil
}

// InsertDrop appends a dropped message record.
func (r *SQLiteRepository) InsertDrop(ctx context.Context, d Drop) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO journal_drops (id, seq, time, device, form, error) VALUES (?, ?, ?, ?, ?, ?)",
		d.ID, d.Seq, formatTime(d.Time), d.Device, d.Form, d.Error,
	)
	if err != nil {
		return fmt.Errorf("inserting journal drop: %w", err)
	}
	return nil
}

// ListEntries returns matching entries, newest first.
func (r *SQLiteRepository) ListEntries(ctx context.Context, q Query) ([]Entry, error) {
	where, args := q.where("kind")
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, seq, time, device, kind, endpoint_id, endpoint_kind, ref_counted, ref_count, error
		 FROM journal_events`+where+` ORDER BY seq DESC LIMIT ?`,
		append(args, q.limit())...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying journal entries: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var (
			e                             Entry
			at                            string
			endpointID, endpointKind, msg sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Seq, &at, &e.Device, &e.Kind,
			&endpointID, &endpointKind, &e.RefCounted, &e.RefCount, &msg); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}
		if e.Time, err = parseTime(at); err != nil {
			return nil, err
		}
		e.EndpointID, e.EndpointKind, e.Error = endpointID.String, endpointKind.String, msg.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal entries: %w", err)
	}
	return entries, nil
}

// ListDrops returns matching drop records, newest first. Query.Kind filters
// on the message form.
func (r *SQLiteRepository) ListDrops(ctx context.Context, q Query) ([]Drop, error) {
	where, args := q.where("form")
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, seq, time, device, form, error FROM journal_drops"+where+" ORDER BY seq DESC LIMIT ?",
		append(args, q.limit())...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying journal drops: %w", err)
	}
	defer rows.Close()

	drops := make([]Drop, 0)
	for rows.Next() {
		var d Drop
		var at string
		if err := rows.Scan(&d.ID, &d.Seq, &at, &d.Device, &d.Form, &d.Error); err != nil {
			return nil, fmt.Errorf("scanning journal drop: %w", err)
		}
		if d.Time, err = parseTime(at); err != nil {
			return nil, err
		}
		drops = append(drops, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal drops: %w", err)
	}
	return drops, nil
}

// LastSeq returns the highest sequence number stored, or 0.
func (r *SQLiteRepository) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(s) FROM (
			SELECT COALESCE(MAX(seq), 0) AS s FROM journal_events
			UNION ALL
			SELECT COALESCE(MAX(seq), 0) FROM journal_drops
		)`,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("reading journal sequence: %w", err)
	}
	return seq, nil
}

// Prune deletes records older than olderThan and returns how many went.
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := formatTime(time.Now().Add(-olderThan))
	var total int64
	for _, table := range []string{"journal_events", "journal_drops"} {
		result, err := r.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE time < ?", cutoff)
		if err != nil {
			return total, fmt.Errorf("pruning %s: %w", table, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("checking rows affected: %w", err)
		}
		total += n
	}
	return total, nil
}

// where builds the WHERE clause for q; kindColumn is the column Query.Kind
// filters on.
func (q Query) where(kindColumn string) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if q.Device != "" {
		clauses = append(clauses, "device = ?")
		args = append(args, q.Device)
	}
	if q.Kind != "" {
		clauses = append(clauses, kindColumn+" = ?")
		args = append(args, q.Kind)
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing journal time: %w", err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
