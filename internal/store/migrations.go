package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "people + contact_methods: person registry and owned contact identifiers",
		SQL: `
CREATE TABLE people (
    id           TEXT PRIMARY KEY,
    display_name TEXT NOT NULL,
    created_at   INTEGER NOT NULL
);

CREATE TABLE contact_methods (
    id           TEXT PRIMARY KEY,
    person_id    TEXT NOT NULL,
    service_type TEXT NOT NULL CHECK (service_type IN ('email', 'phone', 'handle')),
    identifier   TEXT NOT NULL,
    canonical    TEXT NOT NULL UNIQUE,
    created_at   INTEGER NOT NULL,

    FOREIGN KEY (person_id) REFERENCES people(id) ON DELETE CASCADE
);

CREATE INDEX idx_contacts_person ON contact_methods(person_id);
`,
	},
	{
		Version:     2,
		Description: "connection_edges: one edge per unordered pair, two tier labels",
		SQL: `
CREATE TABLE connection_edges (
    id                TEXT PRIMARY KEY,
    requester_id      TEXT NOT NULL,
    target_id         TEXT NOT NULL,
    pair_key          TEXT NOT NULL UNIQUE,
    requester_tier    TEXT NOT NULL,
    target_tier       TEXT,
    status            TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'confirmed', 'declined')),
    disclose_circle   INTEGER NOT NULL DEFAULT 0,
    matched_contact_method_id TEXT,
    last_deep_contact INTEGER,
    created_at        INTEGER NOT NULL,
    confirmed_at      INTEGER
);

CREATE INDEX idx_edges_requester ON connection_edges(requester_id);
CREATE INDEX idx_edges_target    ON connection_edges(target_id);
CREATE INDEX idx_edges_status    ON connection_edges(status);
`,
	},
	{
		Version:     3,
		Description: "reserved_groups: capacity placeholders without a named person",
		SQL: `
CREATE TABLE reserved_groups (
    id         TEXT PRIMARY KEY,
    owner_id   TEXT NOT NULL,
    tier       TEXT NOT NULL,
    count      INTEGER NOT NULL,
    note       TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX idx_groups_owner_tier ON reserved_groups(owner_id, tier);
`,
	},
	{
		Version:     4,
		Description: "pending_invitations: one-sided intents addressed by contact identifier",
		SQL: `
CREATE TABLE pending_invitations (
    id                TEXT PRIMARY KEY,
    inviter_id        TEXT NOT NULL,
    invitee_contact   TEXT NOT NULL,
    invitee_canonical TEXT NOT NULL,
    service_type      TEXT NOT NULL,
    tier              TEXT NOT NULL,
    friend_name       TEXT NOT NULL DEFAULT '',
    matched_at        INTEGER,
    matched_user_id   TEXT,
    created_at        INTEGER NOT NULL
);

CREATE INDEX idx_invites_inviter   ON pending_invitations(inviter_id);
CREATE INDEX idx_invites_canonical ON pending_invitations(invitee_canonical);
`,
	},
	{
		Version:     5,
		Description: "posts + interactions: tier-scoped content and responses",
		SQL: `
CREATE TABLE posts (
    id           TEXT PRIMARY KEY,
    author_id    TEXT NOT NULL,
    content_type TEXT NOT NULL,
    content      TEXT NOT NULL DEFAULT '',
    visibility   TEXT NOT NULL,
    created_at   INTEGER NOT NULL
);

CREATE INDEX idx_posts_author  ON posts(author_id);
CREATE INDEX idx_posts_created ON posts(created_at DESC);

CREATE TABLE interactions (
    id         TEXT PRIMARY KEY,
    post_id    TEXT NOT NULL,
    user_id    TEXT NOT NULL,
    type       TEXT NOT NULL,
    content    TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,

    FOREIGN KEY (post_id) REFERENCES posts(id) ON DELETE CASCADE
);

CREATE INDEX idx_interactions_post ON interactions(post_id);
`,
	},
	{
		Version:     6,
		Description: "nudge_dismissals: dismissal state for derived sunset nudges",
		SQL: `
CREATE TABLE nudge_dismissals (
    owner_id     TEXT NOT NULL,
    friend_id    TEXT NOT NULL,
    dismissed_at INTEGER NOT NULL,

    PRIMARY KEY (owner_id, friend_id)
);
`,
	},
	{
		Version:     7,
		Description: "tier_policies: per-owner per-tier blocked content categories",
		SQL: `
CREATE TABLE tier_policies (
    owner_id      TEXT NOT NULL,
    tier          TEXT NOT NULL,
    blocked_types TEXT NOT NULL DEFAULT '',

    PRIMARY KEY (owner_id, tier)
);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
