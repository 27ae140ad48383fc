package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Post is a piece of tier-scoped content. Visibility is the set of
// tiers the author shares the post with.
type Post struct {
	ID          string
	AuthorID    string
	ContentType string
	Content     string
	Visibility  []string
	CreatedAt   time.Time
}

// Interaction is a response to a post.
type Interaction struct {
	ID        string
	PostID    string
	UserID    string
	Type      string
	Content   string
	CreatedAt time.Time
}

// CreatePost inserts a new post.
func (db *DB) CreatePost(ctx context.Context, p Post) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO posts (id, author_id, content_type, content, visibility, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.AuthorID, p.ContentType, p.Content,
		strings.Join(p.Visibility, ","), toMillis(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

// GetPost returns one post by ID, or ErrNotFound.
func (db *DB) GetPost(ctx context.Context, id string) (*Post, error) {
	row := db.QueryRowContext(ctx,
		`SELECT id, author_id, content_type, content, visibility, created_at
		 FROM posts WHERE id = ?`, id)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	return p, nil
}

// UpdatePost edits a post's content. Author-restricted.
func (db *DB) UpdatePost(ctx context.Context, id, authorID, content string) error {
	res, err := db.ExecContext(ctx,
		`UPDATE posts SET content = ? WHERE id = ? AND author_id = ?`,
		content, id, authorID,
	)
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePost removes a post and its interactions. Author-restricted.
func (db *DB) DeletePost(ctx context.Context, id, authorID string) error {
	res, err := db.ExecContext(ctx,
		`DELETE FROM posts WHERE id = ? AND author_id = ?`, id, authorID)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPostsByAuthors returns posts by any of the given authors, newest
// first. Empty author list yields an empty result.
func (db *DB) ListPostsByAuthors(ctx context.Context, authorIDs []string) ([]Post, error) {
	if len(authorIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(authorIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(authorIDs))
	for i, id := range authorIDs {
		args[i] = id
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, author_id, content_type, content, visibility, created_at
		 FROM posts WHERE author_id IN (`+placeholders+`)
		 ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("list posts: %w", err)
		}
		posts = append(posts, *p)
	}
	return posts, rows.Err()
}

// AddInteraction inserts an interaction on a post.
func (db *DB) AddInteraction(ctx context.Context, in Interaction) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO interactions (id, post_id, user_id, type, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		in.ID, in.PostID, in.UserID, in.Type, in.Content, toMillis(in.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("add interaction: %w", err)
	}
	return nil
}

// ListInteractions returns all interactions on a post, oldest first.
func (db *DB) ListInteractions(ctx context.Context, postID string) ([]Interaction, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, post_id, user_id, type, content, created_at
		 FROM interactions WHERE post_id = ? ORDER BY created_at`, postID)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	defer rows.Close()

	var interactions []Interaction
	for rows.Next() {
		var in Interaction
		var createdAt int64
		if err := rows.Scan(&in.ID, &in.PostID, &in.UserID, &in.Type, &in.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("list interactions: %w", err)
		}
		in.CreatedAt = fromMillis(createdAt)
		interactions = append(interactions, in)
	}
	return interactions, rows.Err()
}

// DeleteInteraction removes an interaction. Actor-restricted. Idempotent.
func (db *DB) DeleteInteraction(ctx context.Context, id, userID string) error {
	if _, err := db.ExecContext(ctx,
		`DELETE FROM interactions WHERE id = ? AND user_id = ?`, id, userID); err != nil {
		return fmt.Errorf("delete interaction: %w", err)
	}
	return nil
}

func scanPost(row interface{ Scan(...any) error }) (*Post, error) {
	var p Post
	var visibility string
	var createdAt int64
	if err := row.Scan(&p.ID, &p.AuthorID, &p.ContentType, &p.Content, &visibility, &createdAt); err != nil {
		return nil, err
	}
	if visibility != "" {
		p.Visibility = strings.Split(visibility, ",")
	}
	p.CreatedAt = fromMillis(createdAt)
	return &p, nil
}
