package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Person is a registered member of the network.
type Person struct {
	ID          string
	DisplayName string
	CreatedAt   time.Time
}

// ContactMethod is one contact identifier owned by a person. Canonical
// is the normalized form and is globally unique.
type ContactMethod struct {
	ID          string
	PersonID    string
	ServiceType string // "email", "phone", "handle"
	Identifier  string
	Canonical   string
	CreatedAt   time.Time
}

// CreatePerson inserts a new person.
func (db *DB) CreatePerson(ctx context.Context, p Person) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO people (id, display_name, created_at) VALUES (?, ?, ?)`,
		p.ID, p.DisplayName, toMillis(p.CreatedAt),
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("create person: %w", err)
	}
	return nil
}

// GetPerson returns one person by ID.
func (db *DB) GetPerson(ctx context.Context, id string) (*Person, error) {
	row := db.QueryRowContext(ctx,
		`SELECT id, display_name, created_at FROM people WHERE id = ?`, id)

	var p Person
	var createdAt int64
	if err := row.Scan(&p.ID, &p.DisplayName, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get person: %w", err)
	}
	p.CreatedAt = fromMillis(createdAt)
	return &p, nil
}

// ListPeople returns every registered person.
func (db *DB) ListPeople(ctx context.Context) ([]Person, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, display_name, created_at FROM people ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list people: %w", err)
	}
	defer rows.Close()

	var people []Person
	for rows.Next() {
		var p Person
		var createdAt int64
		if err := rows.Scan(&p.ID, &p.DisplayName, &createdAt); err != nil {
			return nil, fmt.Errorf("list people: %w", err)
		}
		p.CreatedAt = fromMillis(createdAt)
		people = append(people, p)
	}
	return people, rows.Err()
}

// AddContactMethod registers a contact identifier for a person.
// Returns ErrDuplicate if the canonical form is already claimed.
func (db *DB) AddContactMethod(ctx context.Context, cm ContactMethod) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO contact_methods (id, person_id, service_type, identifier, canonical, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		cm.ID, cm.PersonID, cm.ServiceType, cm.Identifier, cm.Canonical, toMillis(cm.CreatedAt),
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("add contact method: %w", err)
	}
	return nil
}

// ListContactMethods returns all contact identifiers owned by a person.
func (db *DB) ListContactMethods(ctx context.Context, personID string) ([]ContactMethod, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, person_id, service_type, identifier, canonical, created_at
		 FROM contact_methods WHERE person_id = ? ORDER BY created_at`, personID)
	if err != nil {
		return nil, fmt.Errorf("list contact methods: %w", err)
	}
	defer rows.Close()

	var methods []ContactMethod
	for rows.Next() {
		cm, err := scanContactMethod(rows)
		if err != nil {
			return nil, err
		}
		methods = append(methods, *cm)
	}
	return methods, rows.Err()
}

// LookupContact resolves a canonical identifier to its owning contact
// method, or ErrNotFound.
func (db *DB) LookupContact(ctx context.Context, canonical string) (*ContactMethod, error) {
	row := db.QueryRowContext(ctx,
		`SELECT id, person_id, service_type, identifier, canonical, created_at
		 FROM contact_methods WHERE canonical = ?`, canonical)

	var cm ContactMethod
	var createdAt int64
	err := row.Scan(&cm.ID, &cm.PersonID, &cm.ServiceType, &cm.Identifier, &cm.Canonical, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup contact: %w", err)
	}
	cm.CreatedAt = fromMillis(createdAt)
	return &cm, nil
}

func scanContactMethod(rows *sql.Rows) (*ContactMethod, error) {
	var cm ContactMethod
	var createdAt int64
	if err := rows.Scan(&cm.ID, &cm.PersonID, &cm.ServiceType, &cm.Identifier, &cm.Canonical, &createdAt); err != nil {
		return nil, fmt.Errorf("scan contact method: %w", err)
	}
	cm.CreatedAt = fromMillis(createdAt)
	return &cm, nil
}
