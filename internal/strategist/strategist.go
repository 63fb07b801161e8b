// Package strategist picks the repository, trend and style of the next post.
// Selection is a pure function of its input.
package strategist

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/azure/linkedin-content-bot/internal/models"
)

// ErrNoIndexableContent is returned when no candidate has indexed chunks
var ErrNoIndexableContent = errors.New("no repository has indexable content")

const (
	defaultInsightScore = 50.0
	commitPoints        = 10.0
	maxCommitPoints     = 40.0
	repeatPenalty       = 0.5
	trendWeight         = 30.0
	minStyleSamples     = 3
)

// Candidate is one connected repository as seen by the strategist
type Candidate struct {
	URL           string
	Name          string
	ChunkCount    int
	RecentCommits int
	LastCommitAt  time.Time
	TrendHits     map[string]float64 // trend label -> match strength in [0,1]
}

// Input is everything a selection depends on
type Input struct {
	Repos        []Candidate
	Trends       []models.TrendItem
	Insights     []models.InsightRecord
	LastPostRepo string
}

type scored struct {
	cand     Candidate
	base     float64
	bonus    float64
	penalty  bool
	trend    *models.TrendItem
	trendHit float64
}

func (s scored) total() float64 { return s.base + s.bonus }

// Select returns the decision for one run
func Select(in Input) (models.Selection, error) {
	var eligible []Candidate
	for _, c := range in.Repos {
		if c.ChunkCount > 0 {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		return models.Selection{}, ErrNoIndexableContent
	}

	repoScores := insightMap(in.Insights, models.InsightRepo)
	topicScores := insightMap(in.Insights, models.InsightTopic)
	trends := sortedTrends(in.Trends)
	useTrends := anyMatch(eligible, trends)

	ranked := make([]scored, 0, len(eligible))
	for _, c := range eligible {
		s := scored{cand: c, base: scoreOr(repoScores, c.Name, defaultInsightScore)}
		s.base += min(commitPoints*float64(c.RecentCommits), maxCommitPoints)
		if c.URL == in.LastPostRepo && len(eligible) > 1 {
			s.base *= repeatPenalty
			s.penalty = true
		}
		if useTrends {
			for i := range trends {
				t := &trends[i]
				hit, ok := c.TrendHits[t.Label]
				if !ok {
					continue
				}
				bonus := trendWeight*t.Relevance*hit + topicScores[t.Label]/10
				if s.trend == nil || bonus > s.bonus {
					s.trend, s.bonus, s.trendHit = t, bonus, hit
				}
			}
		}
		ranked = append(ranked, s)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.total() != b.total() {
			return a.total() > b.total()
		}
		if !a.cand.LastCommitAt.Equal(b.cand.LastCommitAt) {
			return a.cand.LastCommitAt.After(b.cand.LastCommitAt)
		}
		return a.cand.URL < b.cand.URL
	})

	best := ranked[0]
	mode := models.ModeHighlights
	if best.cand.RecentCommits > 0 && best.trend != nil {
		mode = models.ModeCommits
	}
	style, learned := pickStyle(in.Insights, mode)

	var trend *models.TrendItem
	if best.trend != nil {
		t := *best.trend
		trend = &t
	}

	return models.Selection{
		RepoURL:       best.cand.URL,
		RepoName:      best.cand.Name,
		Trend:         trend,
		Mode:          mode,
		Style:         style,
		Justification: justify(ranked, mode, style, learned, useTrends),
	}, nil
}

func insightMap(insights []models.InsightRecord, cat models.InsightCategory) map[string]float64 {
	m := make(map[string]float64)
	for _, r := range insights {
		if r.Category == cat {
			m[r.Key] = r.Score
		}
	}
	return m
}

func scoreOr(m map[string]float64, key string, def float64) float64 {
	if v, ok := m[key]; ok {
		return v
	}
	return def
}

// sortedTrends orders trends by relevance desc then label so that scoring ties resolve the same way
func sortedTrends(in []models.TrendItem) []models.TrendItem {
	out := append([]models.TrendItem(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Relevance != out[j].Relevance {
			return out[i].Relevance > out[j].Relevance
		}
		return out[i].Label < out[j].Label
	})
	return out
}

func anyMatch(cands []Candidate, trends []models.TrendItem) bool {
	for _, c := range cands {
		for _, t := range trends {
			if _, ok := c.TrendHits[t.Label]; ok {
				return true
			}
		}
	}
	return false
}

// pickStyle prefers learned style and length insights with enough samples
func pickStyle(insights []models.InsightRecord, mode models.Mode) (models.Style, []string) {
	style := models.Style{Length: models.LengthShort, WithCode: true}
	if mode == models.ModeCommits {
		style.Length = models.LengthMedium
	}

	var learned []string
	if r, ok := bestInsight(insights, models.InsightStyle); ok {
		style.WithCode = r.Key == models.StyleWithCode
		learned = append(learned, fmt.Sprintf("%s=%s (%.1f, %d samples)", r.Category, r.Key, r.Score, r.SampleCount))
	}
	if r, ok := bestInsight(insights, models.InsightLength); ok {
		switch r.Key {
		case models.LengthShort, models.LengthMedium, models.LengthLong:
			style.Length = r.Key
			learned = append(learned, fmt.Sprintf("%s=%s (%.1f, %d samples)", r.Category, r.Key, r.Score, r.SampleCount))
		}
	}
	return style, learned
}

func bestInsight(insights []models.InsightRecord, cat models.InsightCategory) (models.InsightRecord, bool) {
	var (
		best  models.InsightRecord
		found bool
	)
	for _, r := range insights {
		if r.Category != cat || r.SampleCount < minStyleSamples {
			continue
		}
		if !found || better(r, best) {
			best, found = r, true
		}
	}
	return best, found
}

func better(a, b models.InsightRecord) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.SampleCount != b.SampleCount {
		return a.SampleCount > b.SampleCount
	}
	return a.Key < b.Key
}

func justify(ranked []scored, mode models.Mode, style models.Style, learned []string, useTrends bool) string {
	best := ranked[0]
	var b strings.Builder

	fmt.Fprintf(&b, "Picked %s with score %.1f", best.cand.Name, best.total())
	if len(ranked) > 1 {
		fmt.Fprintf(&b, " out of %d repositories", len(ranked))
	}
	b.WriteString(".\n")
	fmt.Fprintf(&b, "Recent commits: %d.", best.cand.RecentCommits)
	if best.penalty {
		b.WriteString(" Score halved because the previous post used this repository.")
	}
	b.WriteString("\n")

	switch {
	case best.trend != nil:
		fmt.Fprintf(&b, "Trend: %q from %s (relevance %.2f, code match %.2f).\n",
			best.trend.Label, best.trend.Source, best.trend.Relevance, best.trendHit)
	case useTrends:
		b.WriteString("Trend: none of the matched trends relate to this repository.\n")
	default:
		b.WriteString("Trend: no trend matched code in any repository, trends ignored.\n")
	}

	fmt.Fprintf(&b, "Mode: %s.\n", mode)
	if len(learned) > 0 {
		fmt.Fprintf(&b, "Style: %s from insights %s.", style.Tag(), strings.Join(learned, ", "))
	} else {
		fmt.Fprintf(&b, "Style: %s (default for %s mode).", style.Tag(), mode)
	}

	if len(ranked) > 1 {
		b.WriteString("\nOthers:")
		for _, s := range ranked[1:] {
			fmt.Fprintf(&b, " %s %.1f;", s.cand.Name, s.total())
		}
	}
	return strings.TrimSuffix(b.String(), ";")
}
