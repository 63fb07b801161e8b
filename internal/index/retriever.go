package index

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/azure/linkedin-content-bot/internal/models"
)

const (
	// DefaultFocus is the main query when the caller has no focus
	DefaultFocus = "main features and core functionality"

	// TrendMatchThreshold is the similarity at which a chunk supports a trend
	TrendMatchThreshold = 0.30

	retrieveK   = 3
	maxSnippets = 3
)

var supportingQueries = []string{
	"interesting algorithms or clever solutions",
	"API endpoints or public interfaces",
}

// PostContext is the repository context handed to the generator
type PostContext struct {
	Main       []models.ScoredChunk
	Supporting []models.ScoredChunk
	Snippets   []models.ScoredChunk
}

// Text joins main and supporting chunks in rank order
func (pc *PostContext) Text() string {
	var parts []string
	for _, c := range pc.Main {
		parts = append(parts, c.Content)
	}
	for _, c := range pc.Supporting {
		parts = append(parts, c.Content)
	}
	return strings.Join(parts, "\n\n")
}

// Files lists the distinct file paths behind the context
func (pc *PostContext) Files() []string {
	seen := make(map[string]bool)
	var out []string
	for _, group := range [][]models.ScoredChunk{pc.Main, pc.Supporting, pc.Snippets} {
		for _, c := range group {
			if !seen[c.FilePath] {
				seen[c.FilePath] = true
				out = append(out, c.FilePath)
			}
		}
	}
	return out
}

// Retriever answers semantic questions against the index
type Retriever struct {
	embedder Embedder
	store    VectorStore
}

// NewRetriever creates a retriever
func NewRetriever(embedder Embedder, store VectorStore) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// ContextForPost fetches the main context for focus plus supporting context and code snippets
func (r *Retriever) ContextForPost(ctx context.Context, chatID int64, url, focus string) (*PostContext, error) {
	if strings.TrimSpace(focus) == "" {
		focus = DefaultFocus
	}
	queries := append([]string{focus}, supportingQueries...)
	vectors, err := r.embedder.Embed(ctx, queries)
	if err != nil {
		return nil, fmt.Errorf("failed to embed context queries: %w", err)
	}

	pc := &PostContext{}
	used := make(map[string]bool)
	for i, v := range vectors {
		hits, err := r.store.Search(ctx, chatID, url, v, retrieveK)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			if used[h.FilePath] {
				continue
			}
			used[h.FilePath] = true
			if i == 0 {
				pc.Main = append(pc.Main, h)
			} else {
				pc.Supporting = append(pc.Supporting, h)
			}
			if len(pc.Snippets) < maxSnippets && h.Language != "markdown" {
				pc.Snippets = append(pc.Snippets, h)
			}
		}
	}
	return pc, nil
}

// MatchTrends scores each label against the repository. Labels without a hit are absent.
func (r *Retriever) MatchTrends(ctx context.Context, chatID int64, url string, labels []string) (map[string]float64, error) {
	out := make(map[string]float64)
	if len(labels) == 0 {
		return out, nil
	}

	sorted := append([]string(nil), labels...)
	sort.Strings(sorted)
	vectors, err := r.embedder.Embed(ctx, sorted)
	if err != nil {
		return nil, fmt.Errorf("failed to embed trend labels: %w", err)
	}

	for i, label := range sorted {
		hits, err := r.store.Search(ctx, chatID, url, vectors[i], retrieveK)
		if err != nil {
			return nil, err
		}
		needle := strings.ToLower(label)
		best := 0.0
		matched := false
		for _, h := range hits {
			switch {
			case h.Score >= TrendMatchThreshold:
				matched = true
				best = max(best, h.Score)
			case strings.Contains(strings.ToLower(h.Content), needle):
				// a literal mention counts as a threshold-strength hit
				matched = true
				best = max(best, TrendMatchThreshold)
			}
		}
		if matched {
			out[label] = clamp01(best)
		}
	}
	return out, nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
