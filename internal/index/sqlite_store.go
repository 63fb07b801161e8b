package index

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/azure/linkedin-content-bot/internal/models"
)

// SQLiteVectorStore keeps vectors in the chunks table and ranks them in process
type SQLiteVectorStore struct {
	db *sql.DB
}

var _ VectorStore = (*SQLiteVectorStore)(nil)

// NewSQLiteVectorStore uses a database already migrated by the engagement store
func NewSQLiteVectorStore(db *sql.DB) *SQLiteVectorStore {
	return &SQLiteVectorStore{db: db}
}

// Replace swaps a repository's chunks in one transaction
func (s *SQLiteVectorStore) Replace(ctx context.Context, chatID int64, repoURL string, chunks []models.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE chat_id = ? AND repo_url = ?`, chatID, repoURL); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks
		(id, chat_id, repo_url, file_path, language, start_line, end_line, content, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, chatID, repoURL, c.FilePath, c.Language,
			c.StartLine, c.EndLine, c.Content, encodeVector(c.Embedding)); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// Search ranks every chunk of the repository by cosine similarity
func (s *SQLiteVectorStore) Search(ctx context.Context, chatID int64, repoURL string, query []float32, k int) ([]models.ScoredChunk, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, file_path, language, start_line, end_line, content, embedding
		FROM chunks WHERE chat_id = ? AND repo_url = ?`, chatID, repoURL)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var hits []models.ScoredChunk
	for rows.Next() {
		var (
			c    models.Chunk
			blob []byte
		)
		if err := rows.Scan(&c.ID, &c.FilePath, &c.Language, &c.StartLine, &c.EndLine, &c.Content, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		c.ChatID = chatID
		c.RepoURL = repoURL
		hits = append(hits, models.ScoredChunk{Chunk: c, Score: cosine(query, decodeVector(blob))})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return topK(hits, k), nil
}

// Count returns the number of chunks stored for a repository
func (s *SQLiteVectorStore) Count(ctx context.Context, chatID int64, repoURL string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE chat_id = ? AND repo_url = ?`, chatID, repoURL).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// Delete drops all chunks of a repository
func (s *SQLiteVectorStore) Delete(ctx context.Context, chatID int64, repoURL string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE chat_id = ? AND repo_url = ?`, chatID, repoURL); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
