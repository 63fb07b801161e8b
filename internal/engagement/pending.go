package engagement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/azure/linkedin-content-bot/internal/models"
)

// errPendingTaken rolls back a draft whose user already has one pending
var errPendingTaken = errors.New("pending draft already exists")

// PutPending marks postID as the user's pending draft unless one already exists.
// It reports whether the draft became pending.
func (s *Store) PutPending(ctx context.Context, chatID int64, postID string) (bool, error) {
	return s.putPending(ctx, s.db, chatID, postID)
}

func (s *Store) putPending(ctx context.Context, ex execer, chatID int64, postID string) (bool, error) {
	res, err := ex.ExecContext(ctx, `INSERT INTO pending_drafts (chat_id, post_id, created_at)
		VALUES (?, ?, ?) ON CONFLICT(chat_id) DO NOTHING`, chatID, postID, toUnix(s.now()))
	if err != nil {
		return false, fmt.Errorf("failed to store pending draft: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CreateDraft stores p and makes it the pending draft of its user in one transaction.
// When another draft is already pending nothing is stored and it reports false.
func (s *Store) CreateDraft(ctx context.Context, p *models.PostRecord) (bool, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.insertPost(ctx, tx, p); err != nil {
			return err
		}
		created, err := s.putPending(ctx, tx, p.ChatID, p.ID)
		if err != nil {
			return err
		}
		if !created {
			return errPendingTaken
		}
		return nil
	})
	if errors.Is(err, errPendingTaken) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PeekPending returns the pending draft id without claiming it
func (s *Store) PeekPending(ctx context.Context, chatID int64) (string, bool, error) {
	var postID string
	err := s.db.QueryRowContext(ctx, `SELECT post_id FROM pending_drafts WHERE chat_id = ?`, chatID).Scan(&postID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read pending draft: %w", err)
	}
	return postID, true, nil
}

// ClaimPending atomically removes and returns the pending draft id.
// Only one caller can claim a given draft.
func (s *Store) ClaimPending(ctx context.Context, chatID int64) (string, bool, error) {
	var postID string
	err := s.db.QueryRowContext(ctx, `DELETE FROM pending_drafts WHERE chat_id = ? RETURNING post_id`, chatID).Scan(&postID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to claim pending draft: %w", err)
	}
	return postID, true, nil
}
