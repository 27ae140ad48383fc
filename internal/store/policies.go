package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// SetTierPolicy stores the content categories an owner blocks for one
// tier. An empty blocked list clears the row (default allow-all).
func (db *DB) SetTierPolicy(ctx context.Context, ownerID, tier string, blockedTypes []string) error {
	if len(blockedTypes) == 0 {
		if _, err := db.ExecContext(ctx,
			`DELETE FROM tier_policies WHERE owner_id = ? AND tier = ?`,
			ownerID, tier); err != nil {
			return fmt.Errorf("clear tier policy: %w", err)
		}
		return nil
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO tier_policies (owner_id, tier, blocked_types)
		 VALUES (?, ?, ?)
		 ON CONFLICT(owner_id, tier) DO UPDATE SET
		   blocked_types = excluded.blocked_types`,
		ownerID, tier, strings.Join(blockedTypes, ","),
	)
	if err != nil {
		return fmt.Errorf("set tier policy: %w", err)
	}
	return nil
}

// BlockedTypes returns the content categories an owner blocks for one
// tier. Absent rows mean nothing is blocked.
func (db *DB) BlockedTypes(ctx context.Context, ownerID, tier string) ([]string, error) {
	var blocked string
	err := db.QueryRowContext(ctx,
		`SELECT blocked_types FROM tier_policies WHERE owner_id = ? AND tier = ?`,
		ownerID, tier,
	).Scan(&blocked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("blocked types: %w", err)
	}
	if blocked == "" {
		return nil, nil
	}
	return strings.Split(blocked, ","), nil
}
