package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/azure/linkedin-content-bot/internal/config"
	"github.com/azure/linkedin-content-bot/internal/index"
	"github.com/azure/linkedin-content-bot/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func localConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		LLMProvider:         "openai",
		LLMModel:            "gpt-4o-mini",
		OpenAIAPIKey:        "sk-test",
		StorageBackend:      "local",
		LocalStorageDir:     filepath.Join(dir, "blobs"),
		DatabasePath:        filepath.Join(dir, "bot.db"),
		VectorBackend:       "sqlite",
		RepoCacheDir:        filepath.Join(dir, "repos"),
		MaxReposPerUser:     5,
		ExternalCallTimeout: time.Second,
		InsightRecencyFloor: 0.2,
	}
}

func TestBuild_Local(t *testing.T) {
	ctx := context.Background()
	a, err := Build(ctx, localConfig(t))
	require.NoError(t, err)
	defer a.Close(ctx)

	assert.IsType(t, &storage.LocalStorage{}, a.Blobs)
	assert.IsType(t, &index.SQLiteVectorStore{}, a.Vectors)
	assert.Equal(t, "openai", a.Generator.Provider().Name())
	assert.False(t, a.OAuth.Enabled())
	assert.Len(t, a.Trends.Sources(), 2)

	// users and the engagement database are usable end to end
	_, err = a.Users.AddRepo(1, "https://github.com/acme/bot")
	require.NoError(t, err)
	n, err := a.Vectors.Count(ctx, 1, "https://github.com/acme/bot")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBuild_UnknownProvider(t *testing.T) {
	cfg := localConfig(t)
	cfg.LLMProvider = "llama"
	_, err := Build(context.Background(), cfg)
	assert.Error(t, err)
}
