package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/azure/linkedin-content-bot/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const (
	twitterAPI         = "https://api.twitter.com/2"
	twitterMaxKeywords = 5
	twitterQuery       = `(#golang OR #rustlang OR #javascript OR #typescript OR #python OR #devops OR #opensource OR #kubernetes) lang:en -is:retweet`
)

var hashtagPattern = regexp.MustCompile(`#(\w+)`)

// TwitterSource reads trending developer topics from X recent search. Requires a paid bearer token.
type TwitterSource struct {
	bearerToken string
	client      *resty.Client
	baseURL     string
	now         func() time.Time
}

type twitterSearchResponse struct {
	Data []twitterTweet `json:"data"`
	Meta struct {
		ResultCount int    `json:"result_count"`
		NextToken   string `json:"next_token"`
	} `json:"meta"`
}

type twitterTweet struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	CreatedAt     string `json:"created_at"`
	PublicMetrics struct {
		RetweetCount int `json:"retweet_count"`
		LikeCount    int `json:"like_count"`
		ReplyCount   int `json:"reply_count"`
	} `json:"public_metrics"`
	ReferencedTweets []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets"`
}

// NewTwitterSource creates a Twitter source; it is disabled without a token
func NewTwitterSource(bearerToken string, timeout time.Duration, retries int) *TwitterSource {
	return &TwitterSource{
		bearerToken: bearerToken,
		client:      newClient(timeout, retries),
		baseURL:     twitterAPI,
		now:         time.Now,
	}
}

func (t *TwitterSource) GetName() string {
	return "twitter"
}

func (t *TwitterSource) IsEnabled() bool {
	return t.bearerToken != ""
}

// FetchTrends aggregates hashtags and developer terms over the last day of tweets
func (t *TwitterSource) FetchTrends(ctx context.Context, limit int) ([]models.TrendItem, error) {
	if !t.IsEnabled() {
		logrus.Debug("Twitter source disabled - missing bearer token")
		return nil, nil
	}

	tweets, err := t.search(ctx)
	if err != nil {
		return nil, err
	}

	return t.trendsFromTweets(tweets, limit), nil
}

func (t *TwitterSource) search(ctx context.Context) ([]twitterTweet, error) {
	startTime := t.now().Add(-24 * time.Hour).UTC().Format(time.RFC3339)
	searchURL := fmt.Sprintf("%s/tweets/search/recent?query=%s&start_time=%s&max_results=100&tweet.fields=created_at,public_metrics,referenced_tweets",
		t.baseURL, url.QueryEscape(twitterQuery), startTime)

	resp, err := t.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+t.bearerToken).
		Get(searchURL)
	if err != nil {
		return nil, err
	}

	// Rate limited: give up on this feed for the run instead of blocking the others
	if resp.StatusCode() == 429 {
		logrus.Warnf("Twitter API rate limit hit, reset at %s - skipping", resp.Header().Get("x-rate-limit-reset"))
		return nil, nil
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("twitter API returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	var searchResp twitterSearchResponse
	if err := json.Unmarshal(resp.Body(), &searchResp); err != nil {
		return nil, fmt.Errorf("failed to parse Twitter response: %w", err)
	}

	logrus.Debugf("Twitter API returned %d tweets", len(searchResp.Data))
	return searchResp.Data, nil
}

func (t *TwitterSource) trendsFromTweets(tweets []twitterTweet, limit int) []models.TrendItem {
	now := t.now()
	weights := make(map[string]float64)
	seen := make(map[string]bool)

	for _, tweet := range tweets {
		if seen[tweet.ID] || isRetweet(tweet) {
			continue
		}
		seen[tweet.ID] = true

		createdAt, err := time.Parse(time.RFC3339, tweet.CreatedAt)
		if err != nil {
			logrus.Debugf("Failed to parse Twitter timestamp %q: %v", tweet.CreatedAt, err)
			createdAt = now
		}

		m := tweet.PublicMetrics
		weight := float64(1+m.LikeCount+2*m.RetweetCount+m.ReplyCount) * decay(now.Sub(createdAt))
		for _, kw := range tweetKeywords(tweet.Text) {
			weights[kw] += weight
		}
	}

	trends := make([]models.TrendItem, 0, len(weights))
	for label, w := range weights {
		trends = append(trends, models.TrendItem{
			Label:     label,
			Source:    t.GetName(),
			Relevance: w,
			FetchedAt: now,
		})
	}
	return rank(normalize(trends), limit)
}

// tweetKeywords extracts up to five topic keywords: hashtags first, then developer terms
func tweetKeywords(text string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(kw string) {
		kw = canonicalLabel(kw)
		if kw == "" || seen[kw] || len(out) >= twitterMaxKeywords {
			return
		}
		seen[kw] = true
		out = append(out, kw)
	}

	for _, m := range hashtagPattern.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, kw := range matchKeywords(text, tweetTerms) {
		add(kw)
	}
	return out
}

func isRetweet(tweet twitterTweet) bool {
	for _, ref := range tweet.ReferencedTweets {
		if ref.Type == "retweeted" {
			return true
		}
	}
	return false
}
