package engagement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/azure/linkedin-content-bot/internal/models"
)

// UpsertRepository records the indexing state of a repository
func (s *Store) UpsertRepository(ctx context.Context, r *models.RepositoryRecord) error {
	if r.IndexedAt.IsZero() {
		r.IndexedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO repositories
		(chat_id, url, name, last_indexed_commit, chunk_count, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, url) DO UPDATE SET
			name = excluded.name,
			last_indexed_commit = excluded.last_indexed_commit,
			chunk_count = excluded.chunk_count,
			indexed_at = excluded.indexed_at`,
		r.ChatID, r.URL, r.Name, r.LastIndexedCommit, r.ChunkCount, toUnix(r.IndexedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert repository: %w", err)
	}
	return nil
}

// GetRepository loads the indexing state of a repository
func (s *Store) GetRepository(ctx context.Context, chatID int64, url string) (*models.RepositoryRecord, error) {
	var (
		r         models.RepositoryRecord
		indexedAt int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT chat_id, url, name, last_indexed_commit, chunk_count, indexed_at
		FROM repositories WHERE chat_id = ? AND url = ?`, chatID, url).
		Scan(&r.ChatID, &r.URL, &r.Name, &r.LastIndexedCommit, &r.ChunkCount, &indexedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("repository %s: %w", url, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load repository: %w", err)
	}
	r.IndexedAt = fromUnix(indexedAt)
	return &r, nil
}

// DeleteRepository forgets a repository's indexing state
func (s *Store) DeleteRepository(ctx context.Context, chatID int64, url string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM repositories WHERE chat_id = ? AND url = ?`, chatID, url)
	if err != nil {
		return fmt.Errorf("failed to delete repository: %w", err)
	}
	return nil
}
