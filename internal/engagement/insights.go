package engagement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/azure/linkedin-content-bot/internal/models"
)

// RecordMetrics stores the engagement numbers of a post, replacing earlier ones, and
// folds updates into the insights of chatID. Nothing is written when either part fails.
func (s *Store) RecordMetrics(ctx context.Context, m *models.MetricRecord, chatID int64, updates []InsightUpdate, floor float64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.upsertMetrics(ctx, tx, m); err != nil {
			return err
		}
		return s.applyInsights(ctx, tx, chatID, updates, floor)
	})
}

func (s *Store) upsertMetrics(ctx context.Context, ex execer, m *models.MetricRecord) error {
	if m.FetchedAt.IsZero() {
		m.FetchedAt = s.now().UTC()
	}
	_, err := ex.ExecContext(ctx, `INSERT INTO metrics (post_id, likes, comments, shares, impressions, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(post_id) DO UPDATE SET
			likes = excluded.likes,
			comments = excluded.comments,
			shares = excluded.shares,
			impressions = excluded.impressions,
			fetched_at = excluded.fetched_at`,
		m.PostID, m.Likes, m.Comments, m.Shares, m.Impressions, toUnix(m.FetchedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert metrics: %w", err)
	}
	return nil
}

// GetMetrics loads the metrics of a post
func (s *Store) GetMetrics(ctx context.Context, postID string) (*models.MetricRecord, error) {
	var (
		m         models.MetricRecord
		fetchedAt int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT post_id, likes, comments, shares, impressions, fetched_at
		FROM metrics WHERE post_id = ?`, postID).
		Scan(&m.PostID, &m.Likes, &m.Comments, &m.Shares, &m.Impressions, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("metrics for %s: %w", postID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load metrics: %w", err)
	}
	m.FetchedAt = fromUnix(fetchedAt)
	return &m, nil
}

// InsightUpdate is one observation fed into an insight
type InsightUpdate struct {
	Category models.InsightCategory
	Key      string
	Score    float64
}

// ApplyInsights folds observations into the user's insights in one transaction.
// Each observation moves the score by weight max(1/(n+1), floor) and adds one sample.
func (s *Store) ApplyInsights(ctx context.Context, chatID int64, updates []InsightUpdate, floor float64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.applyInsights(ctx, tx, chatID, updates, floor)
	})
}

func (s *Store) applyInsights(ctx context.Context, tx *sql.Tx, chatID int64, updates []InsightUpdate, floor float64) error {
	now := toUnix(s.now())
	for _, u := range updates {
		var (
			score float64
			count int
		)
		err := tx.QueryRowContext(ctx, `SELECT score, sample_count FROM insights
			WHERE chat_id = ? AND category = ? AND key = ?`, chatID, string(u.Category), u.Key).Scan(&score, &count)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to read insight %s/%s: %w", u.Category, u.Key, err)
		}

		newScore := blend(score, count, u.Score, floor)
		_, err = tx.ExecContext(ctx, `INSERT INTO insights (chat_id, category, key, score, sample_count, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(chat_id, category, key) DO UPDATE SET
				score = excluded.score,
				sample_count = excluded.sample_count,
				updated_at = excluded.updated_at`,
			chatID, string(u.Category), u.Key, newScore, count+1, now)
		if err != nil {
			return fmt.Errorf("failed to write insight %s/%s: %w", u.Category, u.Key, err)
		}
	}
	return nil
}

// blend returns the updated score after one more observation.
// The newest observation never weighs less than any earlier one.
func blend(old float64, count int, observed, floor float64) float64 {
	if count <= 0 {
		return observed
	}
	w := math.Max(1/float64(count+1), floor)
	if w > 1 {
		w = 1
	}
	return old + w*(observed-old)
}

// Insights lists a user's insights ranked by score, then sample count, then key.
// An empty category returns every category.
func (s *Store) Insights(ctx context.Context, chatID int64, category models.InsightCategory) ([]models.InsightRecord, error) {
	query := `SELECT chat_id, category, key, score, sample_count, updated_at FROM insights WHERE chat_id = ?`
	args := []any{chatID}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, string(category))
	}
	query += ` ORDER BY score DESC, sample_count DESC, key ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query insights: %w", err)
	}
	defer rows.Close()

	var out []models.InsightRecord
	for rows.Next() {
		var (
			r         models.InsightRecord
			cat       string
			updatedAt int64
		)
		if err := rows.Scan(&r.ChatID, &cat, &r.Key, &r.Score, &r.SampleCount, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan insight: %w", err)
		}
		r.Category = models.InsightCategory(cat)
		r.UpdatedAt = fromUnix(updatedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}
