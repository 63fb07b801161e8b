package engagement

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/azure/linkedin-content-bot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newPost(chatID int64, repo, content string, trend *string) *models.PostRecord {
	return &models.PostRecord{
		ChatID:       chatID,
		RepoURL:      repo,
		Content:      content,
		TrendMatched: trend,
		Style:        models.Style{Length: models.LengthShort, WithCode: true},
		Mode:         models.ModeCommits,
		Reasoning:    "because",
	}
}

func strPtr(s string) *string { return &s }

func TestOpen_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "again.db")
	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestPosts_CreateAndPublish(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	p := newPost(1, "https://github.com/acme/bot", "hello", strPtr("auth"))
	require.NoError(t, s.CreatePost(ctx, p))
	assert.NotEmpty(t, p.ID)

	got, err := s.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)
	require.NotNil(t, got.TrendMatched)
	assert.Equal(t, "auth", *got.TrendMatched)
	assert.False(t, got.IsPublished())
	assert.Equal(t, p.Style, got.Style)

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.MarkPublished(ctx, p.ID, "urn:li:share:1", at))

	// second publish of the same post is rejected
	err = s.MarkPublished(ctx, p.ID, "urn:li:share:2", at)
	assert.True(t, errors.Is(err, ErrNotFound))

	got, err = s.GetPost(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PublishedAt)
	assert.True(t, at.Equal(*got.PublishedAt))
	assert.Equal(t, "urn:li:share:1", got.LinkedInPostID)

	last, err := s.LastPublishedPost(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, p.ID, last.ID)

	since, err := s.PublishedSince(ctx, at.Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, since, 1)
}

func TestPosts_GetMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetPost(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = s.LastPost(context.Background(), 1)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPosts_RecentOrdering(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		p := newPost(1, "https://github.com/acme/bot", "p", nil)
		p.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		p.ID = string(rune('a' + i))
		require.NoError(t, s.CreatePost(ctx, p))
	}
	other := newPost(2, "https://github.com/acme/other", "x", nil)
	require.NoError(t, s.CreatePost(ctx, other))

	posts, err := s.RecentPosts(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, posts, 3)
	assert.Equal(t, "c", posts[0].ID)
	assert.Equal(t, "a", posts[2].ID)
}

func TestPending_OnePerUser(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	p1 := newPost(1, "https://github.com/acme/bot", "one", nil)
	p2 := newPost(1, "https://github.com/acme/bot", "two", nil)
	require.NoError(t, s.CreatePost(ctx, p1))
	require.NoError(t, s.CreatePost(ctx, p2))

	created, err := s.PutPending(ctx, 1, p1.ID)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.PutPending(ctx, 1, p2.ID)
	require.NoError(t, err)
	assert.False(t, created)

	id, ok, err := s.PeekPending(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, p1.ID, id)
}

func TestCreateDraft_StoresPostAndPending(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	first := newPost(1, "https://github.com/acme/bot", "one", nil)
	created, err := s.CreateDraft(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)

	id, ok, err := s.PeekPending(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.ID, id)

	// a second draft loses the slot and leaves no post behind
	second := newPost(1, "https://github.com/acme/other", "two", nil)
	created, err = s.CreateDraft(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)

	_, err = s.GetPost(ctx, second.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	posts, err := s.RecentPosts(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, first.ID, posts[0].ID)

	// other users are unaffected
	created, err = s.CreateDraft(ctx, newPost(2, "https://github.com/acme/bot", "three", nil))
	require.NoError(t, err)
	assert.True(t, created)
}

func TestPending_ClaimOnce(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	p := newPost(1, "https://github.com/acme/bot", "one", nil)
	require.NoError(t, s.CreatePost(ctx, p))
	_, err := s.PutPending(ctx, 1, p.ID)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.ClaimPending(ctx, 1)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				claimed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, claimed)

	_, ok, err := s.PeekPending(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepositories_Upsert(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	r := &models.RepositoryRecord{ChatID: 1, URL: "https://github.com/acme/bot", Name: "bot", LastIndexedCommit: "abc", ChunkCount: 3}
	require.NoError(t, s.UpsertRepository(ctx, r))

	r.LastIndexedCommit = "def"
	r.ChunkCount = 5
	require.NoError(t, s.UpsertRepository(ctx, r))

	got, err := s.GetRepository(ctx, 1, r.URL)
	require.NoError(t, err)
	assert.Equal(t, "def", got.LastIndexedCommit)
	assert.Equal(t, 5, got.ChunkCount)

	_, err = s.GetRepository(ctx, 2, r.URL)
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.DeleteRepository(ctx, 1, r.URL))
	_, err = s.GetRepository(ctx, 1, r.URL)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestInsights_RankingAndUpsert(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.ApplyInsights(ctx, 1, []InsightUpdate{
		{models.InsightTopic, "auth", 40},
		{models.InsightTopic, "rust", 80},
		{models.InsightTopic, "go", 40},
	}, 0))
	require.NoError(t, s.ApplyInsights(ctx, 1, []InsightUpdate{
		{models.InsightTopic, "go", 40},
	}, 0))

	got, err := s.Insights(ctx, 1, models.InsightTopic)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "rust", got[0].Key)
	// equal scores: more samples first
	assert.Equal(t, "go", got[1].Key)
	assert.Equal(t, 2, got[1].SampleCount)
	assert.Equal(t, "auth", got[2].Key)

	others, err := s.Insights(ctx, 2, "")
	require.NoError(t, err)
	assert.Empty(t, others)
}

func TestBlend(t *testing.T) {
	assert.Equal(t, 70.0, blend(0, 0, 70, 0.2))
	// plain mean while 1/(n+1) exceeds the floor
	assert.InDelta(t, 60.0, blend(50, 1, 70, 0.2), 1e-9)
	// floor dominates once many samples exist
	assert.InDelta(t, 54.0, blend(50, 9, 70, 0.2), 1e-9)
	assert.InDelta(t, 70.0, blend(50, 3, 70, 1.5), 1e-9)
}
