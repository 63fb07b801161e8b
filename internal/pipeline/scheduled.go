package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/azure/linkedin-content-bot/internal/linkedin"
	"github.com/sirupsen/logrus"
)

// MetricsWindow is how far back published posts are polled for engagement
const MetricsWindow = 7 * 24 * time.Hour

// RunScheduled runs the daily post for chatID and tells the user when nothing was drafted
func (s *Service) RunScheduled(ctx context.Context, chatID int64) error {
	_, err := s.Run(ctx, chatID, TriggerScheduled, "")
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrRunInProgress):
		return err
	case errors.Is(err, ErrDraftPending):
		s.notice(ctx, chatID, "Daily post skipped: your previous draft is still waiting. Reply `post` to publish it or /discard to drop it.")
	default:
		s.notice(ctx, chatID, "Daily post: "+UserMessage(err))
	}
	return err
}

func (s *Service) notice(ctx context.Context, chatID int64, text string) {
	if err := s.deps.Notifier.SendNotice(ctx, chatID, text); err != nil {
		logrus.WithField("chat_id", chatID).Errorf("Failed to notify user: %v", err)
	}
}

// FetchMetrics polls LinkedIn for every post published in the last week and feeds the learner.
// It returns the number of posts updated.
func (s *Service) FetchMetrics(ctx context.Context) (int, error) {
	if s.deps.LinkedIn == nil {
		return 0, nil
	}
	posts, err := s.deps.Store.PublishedSince(ctx, s.now().Add(-MetricsWindow))
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, post := range posts {
		log := logrus.WithFields(logrus.Fields{"chat_id": post.ChatID, "post_id": post.ID})

		user, err := s.deps.Users.Get(post.ChatID)
		if err != nil || !user.LinkedInConnected(s.now()) {
			log.Debug("Skipping metrics, LinkedIn not connected")
			continue
		}

		m, err := s.deps.LinkedIn.PostMetrics(ctx, user.LinkedInToken, post.LinkedInPostID)
		if err != nil {
			if errors.Is(err, linkedin.ErrUnauthorized) {
				log.Warn("LinkedIn token rejected while fetching metrics")
			} else {
				log.Errorf("Failed to fetch metrics: %v", err)
			}
			continue
		}
		m.PostID = post.ID

		if _, err := s.deps.Learner.RecordMetrics(ctx, m); err != nil {
			log.Errorf("Failed to learn from metrics: %v", err)
			continue
		}
		updated++
	}

	s.mu.Lock()
	s.metrics.MetricsFetched += updated
	s.mu.Unlock()

	logrus.Infof("Fetched metrics for %d of %d published posts", updated, len(posts))
	return updated, nil
}
