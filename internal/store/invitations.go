package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PendingInvitation is a one-sided intent to connect with someone not
// yet resolvable to a person. InviteeCanonical is the canonicalized
// contact identifier used for matching.
type PendingInvitation struct {
	ID               string
	InviterID        string
	InviteeContact   string
	InviteeCanonical string
	ServiceType      string
	Tier             string
	FriendName       string
	MatchedAt        *time.Time
	MatchedUserID    string
	CreatedAt        time.Time
}

const invitationColumns = `id, inviter_id, invitee_contact, invitee_canonical,
	service_type, tier, friend_name, matched_at, matched_user_id, created_at`

// CreateInvitation inserts a pending invitation.
func (db *DB) CreateInvitation(ctx context.Context, inv PendingInvitation) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO pending_invitations
		   (id, inviter_id, invitee_contact, invitee_canonical, service_type,
		    tier, friend_name, matched_at, matched_user_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?)`,
		inv.ID, inv.InviterID, inv.InviteeContact, inv.InviteeCanonical,
		inv.ServiceType, inv.Tier, inv.FriendName, toMillisPtr(inv.MatchedAt),
		inv.MatchedUserID, toMillis(inv.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create invitation: %w", err)
	}
	return nil
}

// GetInvitation returns one invitation by ID, or ErrNotFound.
func (db *DB) GetInvitation(ctx context.Context, id string) (*PendingInvitation, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+invitationColumns+` FROM pending_invitations WHERE id = ?`, id)
	inv, err := scanInvitation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	return inv, nil
}

// ListInvitationsForInviter returns all invitations authored by a person.
func (db *DB) ListInvitationsForInviter(ctx context.Context, inviterID string) ([]PendingInvitation, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+invitationColumns+` FROM pending_invitations
		 WHERE inviter_id = ? ORDER BY created_at`, inviterID)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()
	return collectInvitations(rows)
}

// ListUnmatchedByCanonical returns open invitations, not authored by
// excludeInviter, whose invitee identifier is one of the given
// canonical forms. These are the reconciliation candidates: someone has
// already tried to invite the owner of those identifiers.
func (db *DB) ListUnmatchedByCanonical(ctx context.Context, canonicals []string, excludeInviter string) ([]PendingInvitation, error) {
	if len(canonicals) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(canonicals))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(canonicals)+1)
	for _, c := range canonicals {
		args = append(args, c)
	}
	args = append(args, excludeInviter)

	rows, err := db.QueryContext(ctx,
		`SELECT `+invitationColumns+` FROM pending_invitations
		 WHERE matched_at IS NULL
		   AND invitee_canonical IN (`+placeholders+`)
		   AND inviter_id != ?
		 ORDER BY created_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("list unmatched invitations: %w", err)
	}
	defer rows.Close()
	return collectInvitations(rows)
}

// UpdateInvitation changes an open invitation's tier and friend name.
// Owner-restricted; matched invitations cannot be edited.
func (db *DB) UpdateInvitation(ctx context.Context, id, inviterID, tier, friendName string) error {
	res, err := db.ExecContext(ctx,
		`UPDATE pending_invitations SET tier = ?, friend_name = ?
		 WHERE id = ? AND inviter_id = ? AND matched_at IS NULL`,
		tier, friendName, id, inviterID,
	)
	if err != nil {
		return fmt.Errorf("update invitation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update invitation: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteInvitation removes an invitation owned by inviterID. Idempotent.
func (db *DB) DeleteInvitation(ctx context.Context, id, inviterID string) error {
	if _, err := db.ExecContext(ctx,
		`DELETE FROM pending_invitations WHERE id = ? AND inviter_id = ?`,
		id, inviterID); err != nil {
		return fmt.Errorf("delete invitation: %w", err)
	}
	return nil
}

// MatchInvitations applies a mutual-invitation reconciliation as one
// all-or-nothing unit: verify both sides still have tier capacity,
// write the confirmed edge, and mark both invitations matched. If
// either invitation was matched concurrently or the pair already has an
// edge, nothing is applied. capacityFor resolves tier caps; negative
// means uncapped.
func (db *DB) MatchInvitations(ctx context.Context, edge Edge, invA, invB PendingInvitation, capacityFor func(tier string) int, now time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin match invitations: %w", err)
	}
	defer tx.Rollback()

	for _, side := range []struct {
		personID string
		tier     string
	}{
		{edge.RequesterID, edge.RequesterTier},
		{edge.TargetID, edge.TargetTier},
	} {
		limit := capacityFor(side.tier)
		if limit < 0 {
			continue
		}
		used, err := tierUsed(ctx, tx, side.personID, side.tier)
		if err != nil {
			return err
		}
		if used >= limit {
			return ErrNoCapacity
		}
	}

	if err := insertEdge(ctx, tx, edge); err != nil {
		return err
	}

	for _, m := range []struct {
		invID       string
		counterpart string
	}{
		{invA.ID, invB.InviterID},
		{invB.ID, invA.InviterID},
	} {
		res, err := tx.ExecContext(ctx,
			`UPDATE pending_invitations SET matched_at = ?, matched_user_id = ?
			 WHERE id = ? AND matched_at IS NULL`,
			toMillis(now), m.counterpart, m.invID,
		)
		if err != nil {
			return fmt.Errorf("mark invitation matched: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("mark invitation matched: %w", err)
		}
		if n == 0 {
			return ErrConflict
		}
	}

	return tx.Commit()
}

func scanInvitation(row interface{ Scan(...any) error }) (*PendingInvitation, error) {
	var (
		inv       PendingInvitation
		matchedAt *int64
		matched   sql.NullString
		createdAt int64
	)
	err := row.Scan(
		&inv.ID, &inv.InviterID, &inv.InviteeContact, &inv.InviteeCanonical,
		&inv.ServiceType, &inv.Tier, &inv.FriendName, &matchedAt, &matched, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	inv.MatchedAt = fromMillisPtr(matchedAt)
	inv.MatchedUserID = matched.String
	inv.CreatedAt = fromMillis(createdAt)
	return &inv, nil
}

func collectInvitations(rows *sql.Rows) ([]PendingInvitation, error) {
	var invitations []PendingInvitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		invitations = append(invitations, *inv)
	}
	return invitations, rows.Err()
}
