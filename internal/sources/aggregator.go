package sources

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/azure/linkedin-content-bot/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrNoTrends is returned when every enabled source failed
var ErrNoTrends = errors.New("no trend source succeeded")

// Aggregator merges trends from all enabled sources
type Aggregator struct {
	sources []Source
	timeout time.Duration
}

// NewAggregator creates an aggregator. timeout bounds each source call.
func NewAggregator(timeout time.Duration, sources ...Source) *Aggregator {
	return &Aggregator{sources: sources, timeout: timeout}
}

// Sources returns the configured sources
func (a *Aggregator) Sources() []Source {
	return a.sources
}

type sourceResult struct {
	name   string
	trends []models.TrendItem
	err    error
}

// Fetch queries enabled sources concurrently and merges their trends by label.
// A failing source is logged and skipped; only total failure is an error.
func (a *Aggregator) Fetch(ctx context.Context, limit int) ([]models.TrendItem, error) {
	var enabled []Source
	for _, src := range a.sources {
		if src.IsEnabled() {
			enabled = append(enabled, src)
		}
	}
	if len(enabled) == 0 {
		return nil, nil
	}

	var wg sync.WaitGroup
	results := make(chan sourceResult, len(enabled))

	for _, source := range enabled {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()

			sctx := ctx
			if a.timeout > 0 {
				var cancel context.CancelFunc
				sctx, cancel = context.WithTimeout(ctx, a.timeout)
				defer cancel()
			}

			trends, err := src.FetchTrends(sctx, limit)
			if err != nil {
				logrus.Errorf("Error fetching trends from %s: %v", src.GetName(), err)
			} else {
				logrus.Debugf("Fetched %d trends from %s", len(trends), src.GetName())
			}
			results <- sourceResult{name: src.GetName(), trends: trends, err: err}
		}(source)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var (
		collected []sourceResult
		failures  []string
	)
	for r := range results {
		if r.err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", r.name, r.err))
			continue
		}
		collected = append(collected, r)
	}

	if len(collected) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoTrends, strings.Join(failures, "; "))
	}

	return merge(collected, limit), nil
}

// merge sums per-source relevance by label and keeps details of the strongest contributor
func merge(results []sourceResult, limit int) []models.TrendItem {
	byLabel := make(map[string]*models.TrendItem)
	strongest := make(map[string]float64)

	for _, r := range results {
		for _, t := range r.trends {
			label := canonicalLabel(t.Label)
			if label == "" {
				continue
			}
			existing, ok := byLabel[label]
			if !ok {
				item := t
				item.Label = label
				byLabel[label] = &item
				strongest[label] = t.Relevance
				continue
			}
			existing.Relevance += t.Relevance
			if t.Relevance > strongest[label] || (t.Relevance == strongest[label] && t.Source < existing.Source) {
				strongest[label] = t.Relevance
				existing.Source = t.Source
				existing.Title = t.Title
				existing.URL = t.URL
			}
			if t.FetchedAt.After(existing.FetchedAt) {
				existing.FetchedAt = t.FetchedAt
			}
		}
	}

	merged := make([]models.TrendItem, 0, len(byLabel))
	for _, t := range byLabel {
		merged = append(merged, *t)
	}
	return rank(normalize(merged), limit)
}
