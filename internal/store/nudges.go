package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Nudges are derived from edge state, never persisted. Only the
// dismissal marker survives recomputation.

// DismissNudge records that the owner dismissed the current nudge for a
// friend. Re-dismissal refreshes the timestamp.
func (db *DB) DismissNudge(ctx context.Context, ownerID, friendID string, at time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO nudge_dismissals (owner_id, friend_id, dismissed_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(owner_id, friend_id) DO UPDATE SET
		   dismissed_at = excluded.dismissed_at`,
		ownerID, friendID, toMillis(at),
	)
	if err != nil {
		return fmt.Errorf("dismiss nudge: %w", err)
	}
	return nil
}

// NudgeDismissedAt returns when the owner last dismissed a nudge for a
// friend, or nil if never.
func (db *DB) NudgeDismissedAt(ctx context.Context, ownerID, friendID string) (*time.Time, error) {
	var dismissedAt int64
	err := db.QueryRowContext(ctx,
		`SELECT dismissed_at FROM nudge_dismissals
		 WHERE owner_id = ? AND friend_id = ?`,
		ownerID, friendID,
	).Scan(&dismissedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("nudge dismissed at: %w", err)
	}
	ts := fromMillis(dismissedAt)
	return &ts, nil
}

// ListNudgeDismissals returns all dismissal timestamps for an owner,
// keyed by friend ID.
func (db *DB) ListNudgeDismissals(ctx context.Context, ownerID string) (map[string]time.Time, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT friend_id, dismissed_at FROM nudge_dismissals WHERE owner_id = ?`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list nudge dismissals: %w", err)
	}
	defer rows.Close()

	dismissals := make(map[string]time.Time)
	for rows.Next() {
		var friendID string
		var dismissedAt int64
		if err := rows.Scan(&friendID, &dismissedAt); err != nil {
			return nil, fmt.Errorf("list nudge dismissals: %w", err)
		}
		dismissals[friendID] = fromMillis(dismissedAt)
	}
	return dismissals, rows.Err()
}
