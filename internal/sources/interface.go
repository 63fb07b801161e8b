package sources

import (
	"context"

	"github.com/azure/linkedin-content-bot/internal/models"
)

// Source is a developer feed that yields trending topics
type Source interface {
	GetName() string
	FetchTrends(ctx context.Context, limit int) ([]models.TrendItem, error)
	IsEnabled() bool
}
