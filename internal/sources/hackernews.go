package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/azure/linkedin-content-bot/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	hackerNewsAPI      = "https://hacker-news.firebaseio.com/v0"
	hackerNewsScanned  = 50
	hackerNewsStories  = 10
	hackerNewsParallel = 8
)

// HackerNewsSource reads trending topics from the Hacker News front page
type HackerNewsSource struct {
	client  *resty.Client
	baseURL string
	now     func() time.Time
}

type hackerNewsItem struct {
	ID          int    `json:"id"`
	Type        string `json:"type"`
	By          string `json:"by"`
	Time        int64  `json:"time"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Score       int    `json:"score"`
	Descendants int    `json:"descendants"`
}

// NewHackerNewsSource creates a Hacker News source
func NewHackerNewsSource(timeout time.Duration, retries int) *HackerNewsSource {
	return &HackerNewsSource{
		client:  newClient(timeout, retries),
		baseURL: hackerNewsAPI,
		now:     time.Now,
	}
}

func (h *HackerNewsSource) GetName() string {
	return "hackernews"
}

func (h *HackerNewsSource) IsEnabled() bool {
	return true // public API, no key
}

// FetchTrends labels the developer stories among the current top stories
func (h *HackerNewsSource) FetchTrends(ctx context.Context, limit int) ([]models.TrendItem, error) {
	ids, err := h.topStories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get top stories: %w", err)
	}
	if len(ids) > hackerNewsScanned {
		ids = ids[:hackerNewsScanned]
	}

	items := make([]*hackerNewsItem, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hackerNewsParallel)
	for i, id := range ids {
		g.Go(func() error {
			item, err := h.getItem(gctx, id)
			if err != nil {
				logrus.Debugf("Failed to get HN item %d: %v", id, err)
				return nil
			}
			items[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return h.trendsFromStories(items, limit), nil
}

func (h *HackerNewsSource) trendsFromStories(items []*hackerNewsItem, limit int) []models.TrendItem {
	now := h.now()
	type agg struct {
		weight float64
		best   float64
		title  string
		url    string
	}
	byLabel := make(map[string]*agg)
	stories := 0

	for _, item := range items {
		if item == nil || item.Type != "story" || item.Title == "" {
			continue
		}
		labels := matchKeywords(item.Title, devKeywords)
		if len(labels) == 0 {
			continue
		}

		stories++
		if stories > hackerNewsStories {
			break
		}

		weight := float64(item.Score+item.Descendants) * decay(now.Sub(time.Unix(item.Time, 0)))
		if isDevDomain(item.URL) {
			weight *= 1.5
		}
		link := item.URL
		if link == "" {
			link = fmt.Sprintf("https://news.ycombinator.com/item?id=%d", item.ID)
		}
		for _, label := range labels {
			a, ok := byLabel[label]
			if !ok {
				a = &agg{}
				byLabel[label] = a
			}
			a.weight += weight
			if weight > a.best {
				a.best = weight
				a.title = item.Title
				a.url = link
			}
		}
	}

	trends := make([]models.TrendItem, 0, len(byLabel))
	for label, a := range byLabel {
		trends = append(trends, models.TrendItem{
			Label:     label,
			Source:    h.GetName(),
			Relevance: a.weight,
			FetchedAt: now,
			Title:     a.title,
			URL:       a.url,
		})
	}
	return rank(normalize(trends), limit)
}

func (h *HackerNewsSource) topStories(ctx context.Context) ([]int, error) {
	resp, err := h.client.R().
		SetContext(ctx).
		Get(h.baseURL + "/topstories.json")
	if err != nil {
		return nil, err
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("hacker news API returned status %d", resp.StatusCode())
	}

	var ids []int
	if err := json.Unmarshal(resp.Body(), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (h *HackerNewsSource) getItem(ctx context.Context, id int) (*hackerNewsItem, error) {
	resp, err := h.client.R().
		SetContext(ctx).
		Get(fmt.Sprintf("%s/item/%d.json", h.baseURL, id))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("hacker news API returned status %d for item %d", resp.StatusCode(), id)
	}

	var item hackerNewsItem
	if err := json.Unmarshal(resp.Body(), &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// newClient builds the shared resty client with bounded retries on 5xx
func newClient(timeout time.Duration, retries int) *resty.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return resty.New().
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		}).
		SetHeader("User-Agent", "LinkedIn-Content-Bot/1.0")
}

// normalize scales relevance into 0-1 by the strongest item
func normalize(trends []models.TrendItem) []models.TrendItem {
	max := 0.0
	for _, t := range trends {
		if t.Relevance > max {
			max = t.Relevance
		}
	}
	for i := range trends {
		if max > 0 {
			trends[i].Relevance = roundRelevance(trends[i].Relevance / max)
		} else {
			trends[i].Relevance = 0
		}
	}
	return trends
}

// rank orders by relevance then label and truncates to limit
func rank(trends []models.TrendItem, limit int) []models.TrendItem {
	sort.SliceStable(trends, func(i, j int) bool {
		if trends[i].Relevance != trends[j].Relevance {
			return trends[i].Relevance > trends[j].Relevance
		}
		return trends[i].Label < trends[j].Label
	})
	if limit > 0 && len(trends) > limit {
		trends = trends[:limit]
	}
	return trends
}
