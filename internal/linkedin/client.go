package linkedin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/azure/linkedin-content-bot/internal/metrics"
	"github.com/azure/linkedin-content-bot/internal/models"
	"github.com/go-resty/resty/v2"
)

const (
	apiURL     = "https://api.linkedin.com"
	apiVersion = "202401"
	feedURL    = "https://www.linkedin.com/feed/update/"
)

var (
	// ErrUnauthorized means the member token is invalid or expired
	ErrUnauthorized = errors.New("LinkedIn token is invalid or expired")
	// ErrAPI wraps any other non-success response
	ErrAPI = errors.New("LinkedIn API error")
)

// PostResult identifies a published post
type PostResult struct {
	ID  string
	URL string
}

// Client calls the LinkedIn REST API on behalf of a member
type Client struct {
	http    *resty.Client
	baseURL string
	now     func() time.Time
}

type userInfo struct {
	Sub  string `json:"sub"`
	Name string `json:"name"`
}

type createPostRequest struct {
	Author                    string       `json:"author"`
	Commentary                string       `json:"commentary"`
	Visibility                string       `json:"visibility"`
	Distribution              distribution `json:"distribution"`
	LifecycleState            string       `json:"lifecycleState"`
	IsReshareDisabledByAuthor bool         `json:"isReshareDisabledByAuthor"`
}

type distribution struct {
	FeedDistribution               string   `json:"feedDistribution"`
	TargetEntities                 []string `json:"targetEntities"`
	ThirdPartyDistributionChannels []string `json:"thirdPartyDistributionChannels"`
}

type socialActions struct {
	LikesSummary struct {
		TotalLikes int `json:"totalLikes"`
	} `json:"likesSummary"`
	CommentsSummary struct {
		AggregatedTotalComments int `json:"aggregatedTotalComments"`
	} `json:"commentsSummary"`
}

// NewClient creates a client retrying reads on errors, 429 and 5xx.
// Creates are only retried on 429.
func NewClient(timeout time.Duration, retries int) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rc := resty.New().
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		AddRetryCondition(shouldRetry).
		SetHeader("User-Agent", "LinkedIn-Content-Bot/1.0")
	return &Client{http: rc, baseURL: apiURL, now: time.Now}
}

// shouldRetry never resends a POST the server may already have accepted
func shouldRetry(r *resty.Response, err error) bool {
	if r == nil {
		return err != nil
	}
	if r.Request != nil && r.Request.Method == http.MethodPost {
		return err == nil && r.StatusCode() == http.StatusTooManyRequests
	}
	return err != nil || r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
}

func (c *Client) request(ctx context.Context, token string) *resty.Request {
	return c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("LinkedIn-Version", apiVersion).
		SetHeader("X-Restli-Protocol-Version", "2.0.0")
}

func checkResponse(resp *resty.Response, what string) error {
	switch {
	case resp.StatusCode() == http.StatusUnauthorized:
		return fmt.Errorf("%s: %w", what, ErrUnauthorized)
	case resp.IsError():
		return fmt.Errorf("%s: %w: status %d: %s", what, ErrAPI, resp.StatusCode(), truncate(resp.String(), 200))
	}
	return nil
}

// UserURN resolves the member URN of the token owner
func (c *Client) UserURN(ctx context.Context, token string) (string, error) {
	start := time.Now()
	var info userInfo
	resp, err := c.request(ctx, token).
		SetResult(&info).
		Get(c.baseURL + "/v2/userinfo")
	metrics.ObserveExternal("linkedin", start, err)
	if err != nil {
		return "", fmt.Errorf("failed to get user info: %w", err)
	}
	if err := checkResponse(resp, "user info"); err != nil {
		return "", err
	}
	if info.Sub == "" {
		return "", fmt.Errorf("user info: %w: missing member id", ErrAPI)
	}
	return "urn:li:person:" + info.Sub, nil
}

// CreatePost publishes text publicly as author
func (c *Client) CreatePost(ctx context.Context, token, author, text string) (*PostResult, error) {
	body := createPostRequest{
		Author:     author,
		Commentary: text,
		Visibility: "PUBLIC",
		Distribution: distribution{
			FeedDistribution:               "MAIN_FEED",
			TargetEntities:                 []string{},
			ThirdPartyDistributionChannels: []string{},
		},
		LifecycleState: "PUBLISHED",
	}

	start := time.Now()
	resp, err := c.request(ctx, token).
		SetBody(body).
		Post(c.baseURL + "/v2/posts")
	metrics.ObserveExternal("linkedin", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}
	if err := checkResponse(resp, "create post"); err != nil {
		return nil, err
	}

	id := resp.Header().Get("x-restli-id")
	if id == "" {
		id = resp.Header().Get("X-LinkedIn-Id")
	}
	if id == "" {
		return nil, fmt.Errorf("create post: %w: response carried no post id", ErrAPI)
	}
	return &PostResult{ID: id, URL: PostURL(id)}, nil
}

// PostMetrics reads likes and comments of a published post
func (c *Client) PostMetrics(ctx context.Context, token, postID string) (*models.MetricRecord, error) {
	start := time.Now()
	var actions socialActions
	resp, err := c.request(ctx, token).
		SetResult(&actions).
		Get(c.baseURL + "/v2/socialActions/" + url.PathEscape(postID))
	metrics.ObserveExternal("linkedin", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get post metrics: %w", err)
	}
	if err := checkResponse(resp, "post metrics"); err != nil {
		return nil, err
	}
	return &models.MetricRecord{
		PostID:    postID,
		Likes:     actions.LikesSummary.TotalLikes,
		Comments:  actions.CommentsSummary.AggregatedTotalComments,
		FetchedAt: c.now().UTC(),
	}, nil
}

// DeletePost removes a post. A post that is already gone counts as deleted.
func (c *Client) DeletePost(ctx context.Context, token, postID string) error {
	resp, err := c.request(ctx, token).
		Delete(c.baseURL + "/v2/posts/" + url.PathEscape(postID))
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil
	}
	return checkResponse(resp, "delete post")
}

// PostURL is the public feed link of a post id
func PostURL(id string) string {
	return feedURL + id
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
