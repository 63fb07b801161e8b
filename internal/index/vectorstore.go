package index

import (
	"context"
	"math"
	"sort"

	"github.com/azure/linkedin-content-bot/internal/models"
)

// VectorStore keeps embedded chunks per user and repository
type VectorStore interface {
	Replace(ctx context.Context, chatID int64, repoURL string, chunks []models.Chunk) error
	Search(ctx context.Context, chatID int64, repoURL string, query []float32, k int) ([]models.ScoredChunk, error)
	Count(ctx context.Context, chatID int64, repoURL string) (int, error)
	Delete(ctx context.Context, chatID int64, repoURL string) error
}

// cosine returns the cosine similarity of two vectors, 0 when either is empty
func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// topK sorts hits by score then location and keeps k
func topK(hits []models.ScoredChunk, k int) []models.ScoredChunk {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].FilePath != hits[j].FilePath {
			return hits[i].FilePath < hits[j].FilePath
		}
		return hits[i].StartLine < hits[j].StartLine
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}
