package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ReservedGroup consumes tier capacity without naming a person.
type ReservedGroup struct {
	ID        string
	OwnerID   string
	Tier      string
	Count     int
	Note      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateReservedGroup inserts a reserved group after a capacity check in
// the same transaction. capacity < 0 means uncapped. The stored count is
// clamped to the remaining capacity; ErrNoCapacity when none remains.
// Returns the group as stored.
func (db *DB) CreateReservedGroup(ctx context.Context, g ReservedGroup, capacity int) (*ReservedGroup, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create reserved group: %w", err)
	}
	defer tx.Rollback()

	if capacity >= 0 {
		used, err := tierUsed(ctx, tx, g.OwnerID, g.Tier)
		if err != nil {
			return nil, err
		}
		available := capacity - used
		if available <= 0 {
			return nil, ErrNoCapacity
		}
		if g.Count > available {
			g.Count = available
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO reserved_groups (id, owner_id, tier, count, note, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.OwnerID, g.Tier, g.Count, g.Note, toMillis(g.CreatedAt), toMillis(g.UpdatedAt),
	); err != nil {
		return nil, fmt.Errorf("insert reserved group: %w", err)
	}
	return &g, tx.Commit()
}

// UpdateReservedGroup changes a group's count and note. The capacity
// check excludes the group's own current count, so shrinking always
// succeeds and growth clamps exactly like creation. capacityFor
// resolves the cap for the group's tier; negative means uncapped.
func (db *DB) UpdateReservedGroup(ctx context.Context, id, ownerID string, count int, note string, capacityFor func(tier string) int, now time.Time) (*ReservedGroup, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update reserved group: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT id, owner_id, tier, count, note, created_at, updated_at
		 FROM reserved_groups WHERE id = ? AND owner_id = ?`, id, ownerID)
	g, err := scanReservedGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load reserved group: %w", err)
	}

	if limit := capacityFor(g.Tier); limit >= 0 && count > g.Count {
		used, err := tierUsed(ctx, tx, g.OwnerID, g.Tier)
		if err != nil {
			return nil, err
		}
		available := limit - (used - g.Count)
		if available <= 0 {
			return nil, ErrNoCapacity
		}
		if count > available {
			count = available
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE reserved_groups SET count = ?, note = ?, updated_at = ? WHERE id = ?`,
		count, note, toMillis(now), id,
	); err != nil {
		return nil, fmt.Errorf("update reserved group: %w", err)
	}

	g.Count = count
	g.Note = note
	g.UpdatedAt = now.UTC()
	return g, tx.Commit()
}

// DeleteReservedGroup removes a group owned by ownerID. Idempotent.
func (db *DB) DeleteReservedGroup(ctx context.Context, id, ownerID string) error {
	if _, err := db.ExecContext(ctx,
		`DELETE FROM reserved_groups WHERE id = ? AND owner_id = ?`, id, ownerID); err != nil {
		return fmt.Errorf("delete reserved group: %w", err)
	}
	return nil
}

// ListReservedGroups returns all groups for a (person, tier).
func (db *DB) ListReservedGroups(ctx context.Context, ownerID, tier string) ([]ReservedGroup, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, owner_id, tier, count, note, created_at, updated_at
		 FROM reserved_groups WHERE owner_id = ? AND tier = ?
		 ORDER BY created_at`, ownerID, tier)
	if err != nil {
		return nil, fmt.Errorf("list reserved groups: %w", err)
	}
	defer rows.Close()

	var groups []ReservedGroup
	for rows.Next() {
		g, err := scanReservedGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("list reserved groups: %w", err)
		}
		groups = append(groups, *g)
	}
	return groups, rows.Err()
}

func scanReservedGroup(row interface{ Scan(...any) error }) (*ReservedGroup, error) {
	var g ReservedGroup
	var createdAt, updatedAt int64
	if err := row.Scan(&g.ID, &g.OwnerID, &g.Tier, &g.Count, &g.Note, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	g.CreatedAt = fromMillis(createdAt)
	g.UpdatedAt = fromMillis(updatedAt)
	return &g, nil
}
