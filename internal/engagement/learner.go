package engagement

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/azure/linkedin-content-bot/internal/metrics"
	"github.com/azure/linkedin-content-bot/internal/models"
	"github.com/sirupsen/logrus"
)

// Minimum samples before an insight is turned into a recommendation
const (
	minTopicSamples = 2
	minStyleSamples = 3
)

// Learner turns post metrics into insights
type Learner struct {
	store *Store
	floor float64
}

// NewLearner creates a learner. floor is the minimum weight of the newest observation.
func NewLearner(store *Store, floor float64) *Learner {
	return &Learner{store: store, floor: floor}
}

// Score converts raw metrics into a 0-100 engagement score
func Score(m *models.MetricRecord) float64 {
	engagement := float64(m.Likes + 3*m.Comments + 2*m.Shares)
	if m.Impressions > 0 {
		rate := engagement / float64(m.Impressions) * 100
		return math.Min(100, rate*10)
	}
	return math.Min(100, engagement*2)
}

// Observations derives the insight keys a post contributes to
func Observations(p *models.PostRecord, score float64) []InsightUpdate {
	var updates []InsightUpdate

	if p.TrendMatched != nil && strings.TrimSpace(*p.TrendMatched) != "" {
		updates = append(updates, InsightUpdate{models.InsightTopic, strings.ToLower(strings.TrimSpace(*p.TrendMatched)), score})
	}

	style := models.StyleNoCode
	if strings.Contains(p.Content, "```") {
		style = models.StyleWithCode
	}
	updates = append(updates, InsightUpdate{models.InsightStyle, style, score})

	words := len(strings.Fields(p.Content))
	updates = append(updates, InsightUpdate{models.InsightLength, models.LengthBucket(words), score})

	if name := models.RepoName(p.RepoURL); name != "" {
		updates = append(updates, InsightUpdate{models.InsightRepo, name, score})
	}

	return updates
}

// RecordMetrics stores metrics for a post and folds them into the author's insights
func (l *Learner) RecordMetrics(ctx context.Context, m *models.MetricRecord) (float64, error) {
	post, err := l.store.GetPost(ctx, m.PostID)
	if err != nil {
		return 0, err
	}

	score := Score(m)
	updates := Observations(post, score)
	if err := l.store.RecordMetrics(ctx, m, post.ChatID, updates, l.floor); err != nil {
		return 0, fmt.Errorf("failed to learn from metrics: %w", err)
	}
	for _, u := range updates {
		metrics.ObserveInsight(string(u.Category))
	}

	logrus.WithFields(logrus.Fields{
		"chat_id": post.ChatID,
		"post_id": post.ID,
		"score":   score,
	}).Info("Learned from post metrics")
	return score, nil
}

// Recommendations summarises what has worked for a user
type Recommendations struct {
	BestTopics []models.InsightRecord `json:"best_topics"`
	BestRepos  []models.InsightRecord `json:"best_repos"`
	BestStyle  *models.InsightRecord  `json:"best_style,omitempty"`
	BestLength *models.InsightRecord  `json:"best_length,omitempty"`
	Summary    string                 `json:"summary"`
}

// Recommendations builds the user's recommendation summary from ranked insights
func (l *Learner) Recommendations(ctx context.Context, chatID int64) (*Recommendations, error) {
	all, err := l.store.Insights(ctx, chatID, "")
	if err != nil {
		return nil, err
	}

	rec := &Recommendations{}
	for i := range all {
		insight := all[i]
		switch insight.Category {
		case models.InsightTopic:
			if insight.SampleCount >= minTopicSamples && len(rec.BestTopics) < 3 {
				rec.BestTopics = append(rec.BestTopics, insight)
			}
		case models.InsightRepo:
			if insight.SampleCount >= minTopicSamples && len(rec.BestRepos) < 3 {
				rec.BestRepos = append(rec.BestRepos, insight)
			}
		case models.InsightStyle:
			if insight.SampleCount >= minStyleSamples && rec.BestStyle == nil {
				rec.BestStyle = &insight
			}
		case models.InsightLength:
			if insight.SampleCount >= minStyleSamples && rec.BestLength == nil {
				rec.BestLength = &insight
			}
		}
	}

	rec.Summary = summarize(rec)
	return rec, nil
}

func summarize(rec *Recommendations) string {
	var parts []string
	if len(rec.BestTopics) > 0 {
		names := make([]string, len(rec.BestTopics))
		for i, t := range rec.BestTopics {
			names[i] = t.Key
		}
		parts = append(parts, "Top topics: "+strings.Join(names, ", "))
	}
	if rec.BestStyle != nil {
		if rec.BestStyle.Key == models.StyleWithCode {
			parts = append(parts, "Posts with code snippets perform better")
		} else {
			parts = append(parts, "Posts without code perform better")
		}
	}
	if rec.BestLength != nil {
		parts = append(parts, fmt.Sprintf("%s posts get more engagement", strings.ToUpper(rec.BestLength.Key[:1])+rec.BestLength.Key[1:]))
	}
	if len(parts) == 0 {
		return "Not enough data yet. Keep posting!"
	}
	return strings.Join(parts, ". ") + "."
}
