// Package app wires the shared components from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/azure/linkedin-content-bot/internal/config"
	"github.com/azure/linkedin-content-bot/internal/engagement"
	"github.com/azure/linkedin-content-bot/internal/generator"
	"github.com/azure/linkedin-content-bot/internal/index"
	"github.com/azure/linkedin-content-bot/internal/ingest"
	"github.com/azure/linkedin-content-bot/internal/linkedin"
	"github.com/azure/linkedin-content-bot/internal/sources"
	"github.com/azure/linkedin-content-bot/internal/storage"
	"github.com/azure/linkedin-content-bot/internal/users"
	"github.com/sirupsen/logrus"
)

// App holds every component that does not depend on the chat transport
type App struct {
	Config    *config.Config
	Blobs     storage.StorageInterface
	Users     *users.Store
	Store     *engagement.Store
	Learner   *engagement.Learner
	Loader    *ingest.Loader
	Vectors   index.VectorStore
	Indexer   *index.Indexer
	Retriever *index.Retriever
	Trends    *sources.Aggregator
	Generator *generator.Generator
	LinkedIn  *linkedin.Client
	OAuth     *linkedin.OAuth

	closers []func(context.Context) error
}

// NewStorage selects the blob backend named by STORAGE_BACKEND
func NewStorage(cfg *config.Config) (storage.StorageInterface, error) {
	switch cfg.StorageBackend {
	case "azure":
		return storage.NewAzureStorage(cfg.StorageAccount, cfg.StorageContainer)
	default:
		return storage.NewLocalStorage(cfg.LocalStorageDir)
	}
}

// NewVectorStore selects the chunk store named by VECTOR_BACKEND. close is never nil.
func NewVectorStore(ctx context.Context, cfg *config.Config, store *engagement.Store) (index.VectorStore, func(context.Context) error, error) {
	switch cfg.VectorBackend {
	case "mongo":
		ms, err := index.NewMongoVectorStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		return ms, ms.Close, nil
	default:
		return index.NewSQLiteVectorStore(store.DB()), func(context.Context) error { return nil }, nil
	}
}

// Build creates the components. Call Close when done.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	blobs, err := NewStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.Blobs = blobs
	a.Users = users.NewStore(blobs, cfg.MaxReposPerUser)

	store, err := engagement.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open engagement store: %w", err)
	}
	a.Store = store
	a.closers = append(a.closers, func(context.Context) error { return store.Close() })
	a.Learner = engagement.NewLearner(store, cfg.InsightRecencyFloor)

	vectors, closeVectors, err := NewVectorStore(ctx, cfg, store)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	a.Vectors = vectors
	a.closers = append(a.closers, closeVectors)

	embedder := index.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.EmbeddingModel, cfg.ExternalCallTimeout, cfg.RetryCount)
	a.Loader = ingest.NewLoader(cfg.RepoCacheDir)
	a.Indexer = index.NewIndexer(a.Loader, index.NewChunker(index.DefaultChunkSize, index.DefaultChunkOverlap), embedder, vectors, store)
	a.Retriever = index.NewRetriever(embedder, vectors)

	a.Trends = sources.NewAggregator(cfg.ExternalCallTimeout,
		sources.NewHackerNewsSource(cfg.ExternalCallTimeout, cfg.RetryCount),
		sources.NewTwitterSource(cfg.TwitterBearerToken, cfg.ExternalCallTimeout, cfg.RetryCount),
	)

	apiKey := cfg.OpenAIAPIKey
	if cfg.LLMProvider == "anthropic" {
		apiKey = cfg.AnthropicAPIKey
	}
	provider, err := generator.NewProvider(cfg.LLMProvider, generator.ProviderOptions{
		APIKey:  apiKey,
		Model:   cfg.LLMModel,
		Timeout: cfg.ExternalCallTimeout,
		Retries: cfg.RetryCount,
	})
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Generator, err = generator.NewGenerator(provider, cfg.PromptTokenBudget)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	a.LinkedIn = linkedin.NewClient(cfg.ExternalCallTimeout, cfg.RetryCount)
	a.OAuth = linkedin.NewOAuth(cfg.LinkedInClientID, cfg.LinkedInClientSecret, cfg.LinkedInRedirectURL)

	for _, src := range a.Trends.Sources() {
		logrus.Infof("Trend source %s enabled: %t", src.GetName(), src.IsEnabled())
	}
	logrus.Infof("Using %s model %s, %s storage, %s vectors", provider.Name(), cfg.LLMModel, cfg.StorageBackend, cfg.VectorBackend)
	return a, nil
}

// Close releases databases in reverse order of opening
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			logrus.Warnf("Close failed: %v", err)
		}
	}
	a.closers = nil
}
