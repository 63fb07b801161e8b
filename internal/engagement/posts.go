package engagement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/azure/linkedin-content-bot/internal/models"
	"github.com/google/uuid"
)

const postColumns = `id, chat_id, repo_url, content, trend_matched, style_length, style_with_code,
	mode, reasoning, created_at, published_at, linkedin_post_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*models.PostRecord, error) {
	var (
		p           models.PostRecord
		trend       sql.NullString
		withCode    int
		mode        string
		createdAt   int64
		publishedAt sql.NullInt64
		linkedinID  sql.NullString
	)
	err := row.Scan(&p.ID, &p.ChatID, &p.RepoURL, &p.Content, &trend, &p.Style.Length, &withCode,
		&mode, &p.Reasoning, &createdAt, &publishedAt, &linkedinID)
	if err != nil {
		return nil, err
	}

	if trend.Valid {
		t := trend.String
		p.TrendMatched = &t
	}
	p.Style.WithCode = withCode != 0
	p.Mode = models.Mode(mode)
	p.CreatedAt = fromUnix(createdAt)
	if publishedAt.Valid {
		at := fromUnix(publishedAt.Int64)
		p.PublishedAt = &at
	}
	p.LinkedInPostID = linkedinID.String
	return &p, nil
}

// execer is satisfied by both *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// CreatePost stores a new draft. ID and CreatedAt are assigned when empty.
func (s *Store) CreatePost(ctx context.Context, p *models.PostRecord) error {
	return s.insertPost(ctx, s.db, p)
}

func (s *Store) insertPost(ctx context.Context, ex execer, p *models.PostRecord) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}

	var trend any
	if p.TrendMatched != nil {
		trend = *p.TrendMatched
	}
	withCode := 0
	if p.Style.WithCode {
		withCode = 1
	}

	_, err := ex.ExecContext(ctx, `INSERT INTO posts (`+postColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL)`,
		p.ID, p.ChatID, p.RepoURL, p.Content, trend, p.Style.Length, withCode,
		string(p.Mode), p.Reasoning, toUnix(p.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}
	return nil
}

// MarkPublished records the LinkedIn id and publish time. A post is published once.
func (s *Store) MarkPublished(ctx context.Context, postID, linkedinID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE posts SET published_at = ?, linkedin_post_id = ?
		WHERE id = ? AND published_at IS NULL`, toUnix(at), linkedinID, postID)
	if err != nil {
		return fmt.Errorf("failed to mark post published: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("post %s not found or already published: %w", postID, ErrNotFound)
	}
	return nil
}

// GetPost loads one post
func (s *Store) GetPost(ctx context.Context, postID string) (*models.PostRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ?`, postID)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("post %s: %w", postID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load post: %w", err)
	}
	return p, nil
}

// RecentPosts returns the newest posts of a user first
func (s *Store) RecentPosts(ctx context.Context, chatID int64, limit int) ([]*models.PostRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+postColumns+` FROM posts
		WHERE chat_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	var out []*models.PostRecord
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// LastPost returns the newest post of a user
func (s *Store) LastPost(ctx context.Context, chatID int64) (*models.PostRecord, error) {
	posts, err := s.RecentPosts(ctx, chatID, 1)
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, fmt.Errorf("no posts for chat %d: %w", chatID, ErrNotFound)
	}
	return posts[0], nil
}

// LastPublishedPost returns the most recently published post of a user
func (s *Store) LastPublishedPost(ctx context.Context, chatID int64) (*models.PostRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts
		WHERE chat_id = ? AND published_at IS NOT NULL
		ORDER BY published_at DESC LIMIT 1`, chatID)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no published posts for chat %d: %w", chatID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load post: %w", err)
	}
	return p, nil
}

// PublishedSince returns posts of all users published at or after since
func (s *Store) PublishedSince(ctx context.Context, since time.Time) ([]*models.PostRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+postColumns+` FROM posts
		WHERE published_at IS NOT NULL AND published_at >= ? AND linkedin_post_id IS NOT NULL
		ORDER BY published_at`, toUnix(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query published posts: %w", err)
	}
	defer rows.Close()

	var out []*models.PostRecord
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
