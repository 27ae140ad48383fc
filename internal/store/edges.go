package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrConflict indicates an illegal transition on a terminal record.
var ErrConflict = errors.New("conflicting state")

// ErrNoCapacity indicates a tier has no remaining capacity.
var ErrNoCapacity = errors.New("no capacity")

// Edge statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusDeclined  = "declined"
)

// Edge is the single record of a relationship between two persons.
// Each side labels the other independently: RequesterTier is how the
// requester classifies the target, TargetTier the reverse. TargetTier
// stays empty until the target responds.
type Edge struct {
	ID                     string
	RequesterID            string
	TargetID               string
	RequesterTier          string
	TargetTier             string
	Status                 string
	DiscloseCircle         bool
	MatchedContactMethodID string
	LastDeepContact        *time.Time
	CreatedAt              time.Time
	ConfirmedAt            *time.Time
}

type rowQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// countFriendsInTier counts confirmed edges where the person's own
// projected tier label equals tier.
func countFriendsInTier(ctx context.Context, q rowQueryer, personID, tier string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM connection_edges
		 WHERE status = 'confirmed'
		   AND ((requester_id = ? AND requester_tier = ?)
		     OR (target_id = ? AND target_tier = ?))`,
		personID, tier, personID, tier,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count friends in tier: %w", err)
	}
	return n, nil
}

// sumReserved sums the reserved-group counts for a (person, tier).
func sumReserved(ctx context.Context, q rowQueryer, personID, tier string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(count), 0) FROM reserved_groups
		 WHERE owner_id = ? AND tier = ?`,
		personID, tier,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sum reserved: %w", err)
	}
	return n, nil
}

// tierUsed returns friendCount + reserved for a (person, tier).
func tierUsed(ctx context.Context, q rowQueryer, personID, tier string) (int, error) {
	friends, err := countFriendsInTier(ctx, q, personID, tier)
	if err != nil {
		return 0, err
	}
	reserved, err := sumReserved(ctx, q, personID, tier)
	if err != nil {
		return 0, err
	}
	return friends + reserved, nil
}

// CountFriendsInTier counts confirmed friends a person classifies at tier.
func (db *DB) CountFriendsInTier(ctx context.Context, personID, tier string) (int, error) {
	return countFriendsInTier(ctx, db, personID, tier)
}

// SumReserved sums reserved capacity for a (person, tier).
func (db *DB) SumReserved(ctx context.Context, personID, tier string) (int, error) {
	return sumReserved(ctx, db, personID, tier)
}

// CreateEdgeGated inserts a pending edge inside one transaction that
// also verifies the requester has capacity left at the requested tier.
// capacity < 0 means the tier is uncapped. Returns ErrDuplicate when an
// edge already exists for the unordered pair, ErrNoCapacity when the
// tier is full.
func (db *DB) CreateEdgeGated(ctx context.Context, e Edge, capacity int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create edge: %w", err)
	}
	defer tx.Rollback()

	var existing int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM connection_edges WHERE pair_key = ?`,
		pairKey(e.RequesterID, e.TargetID),
	).Scan(&existing); err != nil {
		return fmt.Errorf("check pair: %w", err)
	}
	if existing > 0 {
		return ErrDuplicate
	}

	if capacity >= 0 {
		used, err := tierUsed(ctx, tx, e.RequesterID, e.RequesterTier)
		if err != nil {
			return err
		}
		if used >= capacity {
			return ErrNoCapacity
		}
	}

	if err := insertEdge(ctx, tx, e); err != nil {
		return err
	}
	return tx.Commit()
}

func insertEdge(ctx context.Context, tx *sql.Tx, e Edge) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO connection_edges
		   (id, requester_id, target_id, pair_key, requester_tier, target_tier,
		    status, disclose_circle, matched_contact_method_id, last_deep_contact,
		    created_at, confirmed_at)
		 VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?, NULLIF(?, ''), ?, ?, ?)`,
		e.ID, e.RequesterID, e.TargetID, pairKey(e.RequesterID, e.TargetID),
		e.RequesterTier, e.TargetTier, e.Status, boolToInt(e.DiscloseCircle),
		e.MatchedContactMethodID, toMillisPtr(e.LastDeepContact),
		toMillis(e.CreatedAt), toMillisPtr(e.ConfirmedAt),
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert edge: %w", err)
	}
	return nil
}

const edgeColumns = `id, requester_id, target_id, requester_tier, target_tier,
	status, disclose_circle, matched_contact_method_id, last_deep_contact,
	created_at, confirmed_at`

func scanEdge(row interface{ Scan(...any) error }) (*Edge, error) {
	var (
		e               Edge
		targetTier      sql.NullString
		disclose        int
		matchedContact  sql.NullString
		lastDeepContact *int64
		createdAt       int64
		confirmedAt     *int64
	)
	err := row.Scan(
		&e.ID, &e.RequesterID, &e.TargetID, &e.RequesterTier, &targetTier,
		&e.Status, &disclose, &matchedContact, &lastDeepContact,
		&createdAt, &confirmedAt,
	)
	if err != nil {
		return nil, err
	}
	e.TargetTier = targetTier.String
	e.DiscloseCircle = disclose != 0
	e.MatchedContactMethodID = matchedContact.String
	e.LastDeepContact = fromMillisPtr(lastDeepContact)
	e.CreatedAt = fromMillis(createdAt)
	e.ConfirmedAt = fromMillisPtr(confirmedAt)
	return &e, nil
}

// GetEdge returns one edge by ID, or ErrNotFound.
func (db *DB) GetEdge(ctx context.Context, id string) (*Edge, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+edgeColumns+` FROM connection_edges WHERE id = ?`, id)
	e, err := scanEdge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get edge: %w", err)
	}
	return e, nil
}

// EdgeForPair returns the edge for an unordered pair, or ErrNotFound.
func (db *DB) EdgeForPair(ctx context.Context, a, b string) (*Edge, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+edgeColumns+` FROM connection_edges WHERE pair_key = ?`, pairKey(a, b))
	e, err := scanEdge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("edge for pair: %w", err)
	}
	return e, nil
}

// RespondEdgeGated applies the single pending → confirmed/declined
// transition. On accept, targetTier "" mirrors the requester's tier and
// the target's own capacity at the resulting tier is verified in the
// same transaction. Returns ErrNotFound, ErrConflict on a non-pending
// edge, or ErrNoCapacity.
func (db *DB) RespondEdgeGated(ctx context.Context, id string, accept bool, targetTier string, capacityFor func(tier string) int, now time.Time) (*Edge, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin respond edge: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+edgeColumns+` FROM connection_edges WHERE id = ?`, id)
	e, err := scanEdge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load edge: %w", err)
	}
	if e.Status != StatusPending {
		return nil, ErrConflict
	}

	if !accept {
		if _, err := tx.ExecContext(ctx,
			`UPDATE connection_edges SET status = 'declined' WHERE id = ? AND status = 'pending'`,
			id,
		); err != nil {
			return nil, fmt.Errorf("decline edge: %w", err)
		}
		e.Status = StatusDeclined
		return e, tx.Commit()
	}

	if targetTier == "" {
		targetTier = e.RequesterTier
	}
	// Pending edges consume no capacity, so confirmation is where both
	// sides' tiers are actually charged. Check both here.
	for _, side := range []struct {
		personID string
		tier     string
	}{
		{e.TargetID, targetTier},
		{e.RequesterID, e.RequesterTier},
	} {
		limit := capacityFor(side.tier)
		if limit < 0 {
			continue
		}
		used, err := tierUsed(ctx, tx, side.personID, side.tier)
		if err != nil {
			return nil, err
		}
		if used >= limit {
			return nil, ErrNoCapacity
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE connection_edges
		 SET status = 'confirmed', target_tier = ?, confirmed_at = ?
		 WHERE id = ? AND status = 'pending'`,
		targetTier, toMillis(now), id,
	); err != nil {
		return nil, fmt.Errorf("confirm edge: %w", err)
	}

	e.Status = StatusConfirmed
	e.TargetTier = targetTier
	confirmed := now.UTC()
	e.ConfirmedAt = &confirmed
	return e, tx.Commit()
}

// DeleteEdge removes an edge unconditionally. Idempotent.
func (db *DB) DeleteEdge(ctx context.Context, id string) error {
	if _, err := db.ExecContext(ctx,
		`DELETE FROM connection_edges WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete edge: %w", err)
	}
	return nil
}

// ListEdgesForPerson returns every edge touching a person, any status.
func (db *DB) ListEdgesForPerson(ctx context.Context, personID string) ([]Edge, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+edgeColumns+` FROM connection_edges
		 WHERE requester_id = ? OR target_id = ?
		 ORDER BY created_at`, personID, personID)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("list edges: %w", err)
		}
		edges = append(edges, *e)
	}
	return edges, rows.Err()
}

// ListConfirmedEdgesForPerson returns only confirmed edges touching a person.
func (db *DB) ListConfirmedEdgesForPerson(ctx context.Context, personID string) ([]Edge, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+edgeColumns+` FROM connection_edges
		 WHERE status = 'confirmed' AND (requester_id = ? OR target_id = ?)
		 ORDER BY created_at`, personID, personID)
	if err != nil {
		return nil, fmt.Errorf("list confirmed edges: %w", err)
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("list confirmed edges: %w", err)
		}
		edges = append(edges, *e)
	}
	return edges, rows.Err()
}

// TouchLastDeepContact records a high-fidelity contact between two
// connected persons. No-op when the pair has no confirmed edge.
func (db *DB) TouchLastDeepContact(ctx context.Context, a, b string, at time.Time) error {
	_, err := db.ExecContext(ctx,
		`UPDATE connection_edges SET last_deep_contact = ?
		 WHERE pair_key = ? AND status = 'confirmed'`,
		toMillis(at), pairKey(a, b),
	)
	if err != nil {
		return fmt.Errorf("touch last deep contact: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
