package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/azure/linkedin-content-bot/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func TestHackerNewsSource_GetName(t *testing.T) {
	source := NewHackerNewsSource(time.Second, 0)
	assert.Equal(t, "hackernews", source.GetName())
	assert.True(t, source.IsEnabled())
}

func TestTwitterSource_IsEnabled(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		expected bool
	}{
		{"Token provided", "bearer_token", true},
		{"Token missing", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := NewTwitterSource(tt.token, time.Second, 0)
			assert.Equal(t, "twitter", source.GetName())
			assert.Equal(t, tt.expected, source.IsEnabled())
		})
	}
}

func TestMatchKeywords(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected []string
	}{
		{"single word", "Show HN: A tiny OAuth server", []string{"oauth"}},
		{"alias folds", "Golang and K8s tips", []string{"go", "kubernetes"}},
		{"phrase", "Why Open Source maintainers burn out", []string{"open source"}},
		{"whole words only", "Going to the airport", nil},
		{"punctuation", "Rust, Python & SQL!", []string{"python", "rust", "sql"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, matchKeywords(tt.text, devKeywords))
		})
	}
}

func TestIsDevDomain(t *testing.T) {
	assert.True(t, isDevDomain("https://github.com/acme/bot"))
	assert.True(t, isDevDomain("https://www.dev.to/post"))
	assert.True(t, isDevDomain("https://gist.github.com/x"))
	assert.False(t, isDevDomain("https://example.com"))
	assert.False(t, isDevDomain(""))
}

func TestDecay(t *testing.T) {
	assert.Equal(t, 1.0, decay(0))
	assert.InDelta(t, 0.5, decay(24*time.Hour), 1e-9)
	assert.Equal(t, 1.0, decay(-time.Hour))
}

func newHNServer(t *testing.T, items map[int]hackerNewsItem) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/topstories.json" {
			ids := make([]string, 0, len(items))
			for i := 1; i <= len(items); i++ {
				ids = append(ids, fmt.Sprint(i))
			}
			fmt.Fprintf(w, "[%s]", strings.Join(ids, ","))
			return
		}
		var id int
		if _, err := fmt.Sscanf(r.URL.Path, "/item/%d.json", &id); err != nil {
			http.NotFound(w, r)
			return
		}
		item, ok := items[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `{"id":%d,"type":%q,"time":%d,"title":%q,"url":%q,"score":%d,"descendants":%d}`,
			item.ID, item.Type, item.Time, item.Title, item.URL, item.Score, item.Descendants)
	}))
}

func TestHackerNewsSource_FetchTrends(t *testing.T) {
	items := map[int]hackerNewsItem{
		1: {ID: 1, Type: "story", Time: fixedNow.Unix(), Title: "New OAuth flows in Go", Score: 100},
		2: {ID: 2, Type: "story", Time: fixedNow.Add(-24 * time.Hour).Unix(), Title: "Rust in production", Score: 100},
		3: {ID: 3, Type: "story", Time: fixedNow.Unix(), Title: "A recipe for bread", Score: 500},
		4: {ID: 4, Type: "job", Time: fixedNow.Unix(), Title: "Hiring Go engineers", Score: 900},
	}
	server := newHNServer(t, items)
	defer server.Close()

	source := NewHackerNewsSource(5*time.Second, 0)
	source.baseURL = server.URL
	source.now = func() time.Time { return fixedNow }

	trends, err := source.FetchTrends(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, trends, 3)

	// go and oauth tie at full relevance, label order breaks the tie
	assert.Equal(t, "go", trends[0].Label)
	assert.Equal(t, "oauth", trends[1].Label)
	assert.Equal(t, 1.0, trends[0].Relevance)
	assert.Equal(t, "rust", trends[2].Label)
	assert.InDelta(t, 0.5, trends[2].Relevance, 1e-6)
	assert.Equal(t, "hackernews", trends[2].Source)
	assert.Equal(t, "Rust in production", trends[2].Title)
}

func TestHackerNewsSource_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	source := NewHackerNewsSource(time.Second, 0)
	source.baseURL = server.URL

	_, err := source.FetchTrends(context.Background(), 10)
	assert.Error(t, err)
}

func TestTwitterSource_FetchTrends(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		created := fixedNow.Format(time.RFC3339)
		fmt.Fprintf(w, `{"data":[
			{"id":"1","text":"Big #golang release today","created_at":%q,"public_metrics":{"like_count":9}},
			{"id":"2","text":"RT #golang release","created_at":%q,"referenced_tweets":[{"type":"retweeted","id":"1"}]},
			{"id":"3","text":"security fix shipped for our api","created_at":%q,"public_metrics":{"like_count":4}}
		]}`, created, created, created)
	}))
	defer server.Close()

	source := NewTwitterSource("token", 5*time.Second, 0)
	source.baseURL = server.URL
	source.now = func() time.Time { return fixedNow }

	trends, err := source.FetchTrends(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, "Bearer token", gotAuth)

	labels := make([]string, len(trends))
	for i, tr := range trends {
		labels[i] = tr.Label
	}
	assert.Equal(t, []string{"go", "release", "api", "fix", "security"}, labels)
	assert.Equal(t, 1.0, trends[0].Relevance)
}

func TestTwitterSource_RateLimitIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	source := NewTwitterSource("token", time.Second, 0)
	source.baseURL = server.URL

	trends, err := source.FetchTrends(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, trends)
}

func TestTweetKeywords_CapsAtFive(t *testing.T) {
	kws := tweetKeywords("#a #b #c #d #e #f api")
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, kws)
}

// MockSource is a mock implementation of the Source interface
type MockSource struct {
	mock.Mock
}

func (m *MockSource) GetName() string {
	return m.Called().String(0)
}

func (m *MockSource) IsEnabled() bool {
	return m.Called().Bool(0)
}

func (m *MockSource) FetchTrends(ctx context.Context, limit int) ([]models.TrendItem, error) {
	args := m.Called(ctx, limit)
	trends, _ := args.Get(0).([]models.TrendItem)
	return trends, args.Error(1)
}

func TestAggregator_MergesAndSkipsFailures(t *testing.T) {
	hn := &MockSource{}
	hn.On("GetName").Return("hackernews")
	hn.On("IsEnabled").Return(true)
	hn.On("FetchTrends", mock.Anything, 5).Return([]models.TrendItem{
		{Label: "auth", Source: "hackernews", Relevance: 1, Title: "OAuth story"},
		{Label: "rust", Source: "hackernews", Relevance: 0.5},
	}, nil)

	tw := &MockSource{}
	tw.On("GetName").Return("twitter")
	tw.On("IsEnabled").Return(true)
	tw.On("FetchTrends", mock.Anything, 5).Return([]models.TrendItem{
		{Label: "Rust", Source: "twitter", Relevance: 1},
	}, nil)

	broken := &MockSource{}
	broken.On("GetName").Return("broken")
	broken.On("IsEnabled").Return(true)
	broken.On("FetchTrends", mock.Anything, 5).Return(nil, errors.New("boom"))

	disabled := &MockSource{}
	disabled.On("IsEnabled").Return(false)

	agg := NewAggregator(time.Second, hn, tw, broken, disabled)
	trends, err := agg.Fetch(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, trends, 2)

	assert.Equal(t, "rust", trends[0].Label)
	assert.Equal(t, 1.0, trends[0].Relevance)
	assert.Equal(t, "twitter", trends[0].Source)
	assert.Equal(t, "auth", trends[1].Label)
	assert.InDelta(t, 1/1.5, trends[1].Relevance, 1e-6)

	disabled.AssertNotCalled(t, "FetchTrends", mock.Anything, mock.Anything)
}

func TestAggregator_AllFail(t *testing.T) {
	broken := &MockSource{}
	broken.On("GetName").Return("broken")
	broken.On("IsEnabled").Return(true)
	broken.On("FetchTrends", mock.Anything, 3).Return(nil, errors.New("boom"))

	_, err := NewAggregator(time.Second, broken).Fetch(context.Background(), 3)
	assert.ErrorIs(t, err, ErrNoTrends)
}
