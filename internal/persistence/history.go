package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/basket/need/internal/priority"
)

// ContextUpdate is one recomputation of the context filter.
type ContextUpdate struct {
	ID          int64                  `json:"id"`
	TraceID     string                 `json:"trace_id,omitempty"`
	Trigger     string                 `json:"trigger"`
	Exclude     string                 `json:"excluded_uuid,omitempty"`
	Lowest      priority.Level         `json:"lowest_level"`
	Filter      string                 `json:"filter"`
	Counts      map[priority.Level]int `json:"counts"`
	QueryErrors int                    `json:"query_errors"`
	WriteError  string                 `json:"write_error,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// HasLowest reports whether any level was active.
func (u ContextUpdate) HasLowest() bool { return u.Lowest.Valid() }

// Record appends u and returns its row id. A zero CreatedAt means now.
func (s *Store) Record(ctx context.Context, u ContextUpdate) (int64, error) {
	counts, err := encodeCounts(u.Counts)
	if err != nil {
		return 0, err
	}
	created := u.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	lowest := 0
	if u.Lowest.Valid() {
		lowest = int(u.Lowest)
	}

	var id int64
	err = retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO context_updates (trace_id, trigger, excluded_uuid, lowest_level, filter, counts, query_errors, write_error, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
		`, u.TraceID, u.Trigger, u.Exclude, lowest, u.Filter, counts, u.QueryErrors, u.WriteError, created.UTC())
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("insert context update: %w", err)
	}
	return id, nil
}

// Recent returns up to limit updates, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]ContextUpdate, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trace_id, trigger, excluded_uuid, lowest_level, filter, counts, query_errors, write_error, created_at
		FROM context_updates
		ORDER BY created_at DESC, id DESC
		LIMIT ?;
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query context updates: %w", err)
	}
	defer rows.Close()

	var out []ContextUpdate
	for rows.Next() {
		var (
			u      ContextUpdate
			lowest int
			counts string
		)
		if err := rows.Scan(&u.ID, &u.TraceID, &u.Trigger, &u.Exclude, &lowest, &u.Filter, &counts, &u.QueryErrors, &u.WriteError, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan context update: %w", err)
		}
		u.Lowest = priority.Level(lowest)
		if u.Counts, err = decodeCounts(counts); err != nil {
			return nil, fmt.Errorf("decode counts for update %d: %w", u.ID, err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Prune deletes updates older than retentionDays and reports how many went.
func (s *Store) Prune(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	var n int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM context_updates WHERE created_at < ?;`, cutoff)
		if err != nil {
			return err
		}
		n, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("purge context_updates: %w", err)
	}
	return n, nil
}

// counts are stored as {"1":3,"4":1}; zero levels are omitted.
func encodeCounts(counts map[priority.Level]int) (string, error) {
	m := make(map[string]int, len(counts))
	for l, n := range counts {
		if l.Valid() && n > 0 {
			m[l.String()] = n
		}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode counts: %w", err)
	}
	return string(b), nil
}

func decodeCounts(raw string) (map[priority.Level]int, error) {
	var m map[string]int
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	out := make(map[priority.Level]int, len(priority.Levels))
	for _, l := range priority.Levels {
		out[l] = 0
	}
	for k, n := range m {
		v, err := strconv.Atoi(k)
		if err != nil || !priority.Level(v).Valid() {
			continue
		}
		out[priority.Level(v)] = n
	}
	return out, nil
}
