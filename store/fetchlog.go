package store

import (
	"context"
	"fmt"
	"time"
)

// FetchLogEntry records one API fetch.
type FetchLogEntry struct {
	Requester string
	Target    string
	Kind      string
	Success   bool
	Failure   string
	Code      string
	Message   string
	RequestID string
	CreatedAt time.Time
}

// LogFetch appends entry to the fetch log. A zero CreatedAt uses the store clock.
func (s *Store) LogFetch(ctx context.Context, entry FetchLogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fetch_log (requester, target, kind, success, failure, code, message, request_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Requester, entry.Target, entry.Kind, entry.Success, entry.Failure,
		entry.Code, entry.Message, entry.RequestID, entry.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("log fetch: %w", err)
	}
	return nil
}

// RecentFetches returns the latest fetch log entries for target, newest first.
func (s *Store) RecentFetches(ctx context.Context, target string, limit int) ([]FetchLogEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT requester, target, kind, success, failure, code, message, request_id, created_at
		 FROM fetch_log WHERE target = ? ORDER BY id DESC LIMIT ?`, target, limit)
	if err != nil {
		return nil, fmt.Errorf("recent fetches: %w", err)
	}
	defer rows.Close()

	var out []FetchLogEntry
	for rows.Next() {
		var (
			e       FetchLogEntry
			created string
		)
		if err := rows.Scan(&e.Requester, &e.Target, &e.Kind, &e.Success, &e.Failure,
			&e.Code, &e.Message, &e.RequestID, &created); err != nil {
			return nil, fmt.Errorf("recent fetches: %w", err)
		}
		e.CreatedAt, _ = time.Parse(timeLayout, created)
		out = append(out, e)
	}
	return out, rows.Err()
}
